// upload.go — запись файла ревизии на диск до транзакции БД.
//
// Файл пишется до начала транзакции. pendingFile удаляет его на любом
// пути выхода, пока вызывающий код не вызвал Keep() после коммита:
//
//	pending, err := u.write(...)
//	if err != nil { ... }
//	defer pending.Release()
//	... store.InTx(...) ...
//	pending.Keep()
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"github.com/bigkaa/ncstore/internal/storage/filestore"
)

// FileInput — загружаемый файл.
type FileInput struct {
	// Reader — поток данных; nil означает отсутствие файла
	Reader io.Reader
	// Filename — оригинальное имя файла
	Filename string
	// ContentType — MIME-тип из запроса (может быть пустым)
	ContentType string
}

// uploader — запись файлов ревизий с подсчётом SHA-256 и чтением текста.
type uploader struct {
	files   *filestore.FileStore
	maxSize int64
	logger  *slog.Logger
}

func newUploader(files *filestore.FileStore, maxSize int64, logger *slog.Logger) *uploader {
	return &uploader{
		files:   files,
		maxSize: maxSize,
		logger:  logger.With(slog.String("component", "upload")),
	}
}

// pendingFile — записанный файл, ещё не закреплённый коммитом транзакции.
type pendingFile struct {
	files  *filestore.FileStore
	logger *slog.Logger
	dir    string
	kept   bool

	result      *filestore.SaveResult
	content     *string
	contentType string
	filename    string
}

// write сохраняет файл в директорию программы и читает его обратно как UTF-8.
// Ошибка чтения текста не прерывает загрузку: content остаётся nil.
func (u *uploader) write(file *FileInput, programID, author string) (*pendingFile, error) {
	filename := strings.TrimSpace(file.Filename)
	if filename == "" {
		filename = "program"
	}

	res, err := u.files.SaveFile(file.Reader, programID, filename, author, u.maxSize)
	if err != nil {
		if errors.Is(err, filestore.ErrTooLarge) {
			return nil, fmt.Errorf("%w: лимит %d байт", ErrTooLarge, u.maxSize)
		}
		u.logger.Error("Ошибка сохранения файла",
			slog.String("program_id", programID),
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	p := &pendingFile{
		files:    u.files,
		logger:   u.logger,
		dir:      programID,
		result:   res,
		filename: filename,
	}

	content, err := u.files.ReadText(res.StoragePath)
	if err != nil {
		u.logger.Warn("Не удалось прочитать содержимое как текст",
			slog.String("storage_path", res.StoragePath),
			slog.String("error", err.Error()),
		)
		content = nil
	}
	p.content = content
	p.contentType = resolveContentType(file.ContentType, filename, content != nil)

	uploadBytesTotal.Add(float64(res.Size))
	return p, nil
}

// Keep закрепляет файл: Release после Keep ничего не удаляет.
func (p *pendingFile) Keep() {
	p.kept = true
}

// Release удаляет файл, если он не был закреплён. Ошибки логируются (WARN).
func (p *pendingFile) Release() {
	if p == nil || p.kept {
		return
	}
	p.kept = true

	if err := p.files.DeleteFile(p.result.StoragePath); err != nil {
		orphanFilesTotal.WithLabelValues("failed").Inc()
		p.logger.Warn("Не удалось удалить файл после отката",
			slog.String("storage_path", p.result.StoragePath),
			slog.String("error", err.Error()),
		)
		return
	}
	orphanFilesTotal.WithLabelValues("removed").Inc()
	if err := p.files.RemoveDir(p.dir); err != nil {
		p.logger.Warn("Не удалось удалить директорию программы",
			slog.String("dir", p.dir),
			slog.String("error", err.Error()),
		)
	}
	p.logger.Debug("Файл удалён после отката", slog.String("storage_path", p.result.StoragePath))
}

// resolveContentType выбирает MIME-тип: из запроса, text/plain для текста,
// по расширению для бинарных файлов, иначе application/octet-stream.
// Расширения NC-программ (.nc, .tap) в системных таблицах MIME
// бывают связаны с чужими форматами, поэтому текст определяется первым.
func resolveContentType(requested, filename string, isText bool) string {
	if ct := strings.TrimSpace(requested); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if isText {
		return "text/plain; charset=utf-8"
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
