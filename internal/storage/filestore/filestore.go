// Пакет filestore — файлы ревизий NC-программ на локальном диске.
// Обеспечивает streaming-запись с подсчётом SHA-256 на лету,
// чтение, удаление и проверку целостности.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	// ErrTooLarge — размер данных превышает лимит записи.
	ErrTooLarge = errors.New("превышен максимальный размер файла")
	// ErrNotFound — файл отсутствует на диске.
	ErrNotFound = errors.New("файл не найден")
	// ErrInvalidPath — путь выходит за пределы директории данных.
	ErrInvalidPath = errors.New("недопустимый путь файла")
)

// FileStore — управление файлами ревизий на диске.
type FileStore struct {
	// dataDir — корневая директория хранения файлов (NC_DATA_DIR)
	dataDir string
	// now — источник времени для имён файлов
	now func() time.Time
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StoragePath — относительный путь файла в dataDir (через "/")
	StoragePath string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 хэш содержимого файла
	Checksum string
}

// New создаёт новый FileStore. Создаёт директорию, если она не существует.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: dataDir, now: time.Now}, nil
}

// SaveFile записывает данные из reader в поддиректорию dir с подсчётом SHA-256.
// Формат имени файла: {name}_{user}_{timestamp}_{uuid8}{ext}
// maxSize <= 0 отключает ограничение размера.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) SaveFile(reader io.Reader, dir, originalFilename, uploadedBy string, maxSize int64) (*SaveResult, error) {
	if err := checkRelative(dir); err != nil {
		return nil, err
	}

	targetDir := filepath.Join(fs.dataDir, dir)
	if err := os.MkdirAll(targetDir, 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", dir, err)
	}

	storageName := generateStorageName(originalFilename, uploadedBy, fs.now())
	fullPath := filepath.Join(targetDir, storageName)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if maxSize > 0 {
		// Читаем на байт больше лимита, чтобы отличить "ровно лимит" от превышения
		reader = io.LimitReader(reader, maxSize+1)
	}

	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if maxSize > 0 && size > maxSize {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: лимит %d байт", ErrTooLarge, maxSize)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StoragePath: filepath.ToSlash(filepath.Join(dir, storageName)),
		FullPath:    fullPath,
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (fs *FileStore) Open(storagePath string) (*os.File, error) {
	fullPath, err := fs.resolve(storagePath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, storagePath)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storagePath, err)
	}
	return f, nil
}

// ReadText читает файл и возвращает его содержимое как текст.
// Возвращает nil без ошибки, если содержимое не является корректным UTF-8.
func (fs *FileStore) ReadText(storagePath string) (*string, error) {
	fullPath, err := fs.resolve(storagePath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, storagePath)
		}
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", storagePath, err)
	}
	if !utf8.Valid(data) {
		return nil, nil
	}
	text := string(data)
	return &text, nil
}

// DeleteFile удаляет файл с диска.
// Возвращает nil, если файл уже не существует.
func (fs *FileStore) DeleteFile(storagePath string) error {
	fullPath, err := fs.resolve(storagePath)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storagePath, err)
	}
	return nil
}

// RemoveDir удаляет поддиректорию, если она пуста.
// Непустая или отсутствующая директория не считается ошибкой.
func (fs *FileStore) RemoveDir(dir string) error {
	if err := checkRelative(dir); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(fs.dataDir, dir))
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	entries, readErr := os.ReadDir(filepath.Join(fs.dataDir, dir))
	if readErr == nil && len(entries) > 0 {
		return nil
	}
	return fmt.Errorf("ошибка удаления директории %s: %w", dir, err)
}

// Size возвращает размер файла в байтах.
func (fs *FileStore) Size(storagePath string) (int64, error) {
	fullPath, err := fs.resolve(storagePath)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, storagePath)
		}
		return 0, fmt.Errorf("ошибка чтения атрибутов %s: %w", storagePath, err)
	}
	return info.Size(), nil
}

// Walk обходит все файлы в dataDir. storagePath передаётся в том же
// формате, что и SaveResult.StoragePath.
func (fs *FileStore) Walk(fn func(storagePath string, size int64) error) error {
	return filepath.WalkDir(fs.dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == healthCheckFile {
			return nil
		}
		rel, err := filepath.Rel(fs.dataDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), info.Size())
	})
}

// ComputeChecksum вычисляет SHA-256 хэш существующего файла.
// Используется командой verify для проверки целостности.
func (fs *FileStore) ComputeChecksum(storagePath string) (string, error) {
	f, err := fs.Open(storagePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("ошибка вычисления checksum %s: %w", storagePath, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// resolve преобразует относительный путь в абсолютный внутри dataDir.
func (fs *FileStore) resolve(storagePath string) (string, error) {
	if err := checkRelative(storagePath); err != nil {
		return "", err
	}
	return filepath.Join(fs.dataDir, filepath.FromSlash(storagePath)), nil
}

func checkRelative(p string) error {
	if p == "" || filepath.IsAbs(p) || !filepath.IsLocal(filepath.FromSlash(p)) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return nil
}

// generateStorageName генерирует имя файла для хранения на диске.
// Формат: {name}_{user}_{timestamp}_{uuid8}{ext}
// Пример: O1001_ivanov_20260221150405_a1b2c3d4.nc
func generateStorageName(originalFilename, uploadedBy string, now time.Time) string {
	ext := sanitizeExt(filepath.Ext(originalFilename))
	name := strings.TrimSuffix(filepath.Base(originalFilename), filepath.Ext(originalFilename))

	name = sanitize(name)
	user := sanitize(uploadedBy)

	// Ограничиваем длину по рунам, чтобы не разрезать кириллицу
	name = truncateRunes(name, 50)
	user = truncateRunes(user, 20)

	ts := now.UTC().Format("20060102150405")
	uid := uuid.New().String()[:8]

	return fmt.Sprintf("%s_%s_%s_%s%s", name, user, ts, uid, ext)
}

// sanitize оставляет только буквы, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' ||
			(r >= 0x0400 && r <= 0x04FF) { // Кириллица
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}

func sanitizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	clean := sanitize(strings.TrimPrefix(ext, "."))
	if clean == "file" && !strings.EqualFold(ext, ".file") {
		return ""
	}
	return "." + truncateRunes(clean, 10)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

// healthCheckFile — временный файл проверки записи.
const healthCheckFile = ".health_check"

// CheckReady проверяет, что директория данных доступна на запись.
// Реализует ReadinessChecker для /health/ready.
func (fs *FileStore) CheckReady() (status, message string) {
	testFile := filepath.Join(fs.dataDir, healthCheckFile)
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return "fail", "директория данных недоступна для записи: " + err.Error()
	}
	_ = os.Remove(testFile)
	return "ok", ""
}
