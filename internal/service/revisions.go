// revisions.go — загрузка новых ревизий, список, чтение метаданных
// и открытие файлов ревизий для скачивания.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/ncstore/internal/domain/model"
	"github.com/bigkaa/ncstore/internal/domain/version"
	"github.com/bigkaa/ncstore/internal/repository"
	"github.com/bigkaa/ncstore/internal/storage/filestore"
)

// UploadRevisionParams — параметры загрузки новой ревизии.
type UploadRevisionParams struct {
	ProgramID string     `validate:"required" field:"program_id"`
	File      *FileInput `validate:"required" field:"file"`
	Comment   *string    `field:"comment"`
	// Bump — patch (по умолчанию), minor, major
	Bump string `validate:"omitempty,oneof=patch minor major" field:"bump"`
	// Version — явная версия M.N.P, строго больше последней
	Version *string `field:"version"`
	// IsCAMOriginal — признак выгрузки из CAM; nil — только для первой ревизии
	IsCAMOriginal *bool `field:"is_cam_original"`
	Author        string `field:"-"`
}

// revisionAttrs — вычисленные атрибуты новой ревизии.
type revisionAttrs struct {
	version       version.Version
	comment       *string
	isCAMOriginal bool
	stateID       int16
	author        string
}

// createRevision вставляет ревизию из записанного файла и делает её текущей.
// Должна вызываться внутри транзакции. stateID == 0 — состояние программы.
func createRevision(ctx context.Context, tx repository.Store, p *model.Program, file *pendingFile, attrs revisionAttrs) (*model.Revision, error) {
	stateID := attrs.stateID
	if stateID == 0 {
		stateID = p.StateID
	}

	rev := &model.Revision{
		ID:               uuid.New().String(),
		ProgramID:        p.ID,
		Version:          attrs.version,
		StoragePath:      file.result.StoragePath,
		OriginalFilename: file.filename,
		FileSize:         file.result.Size,
		Checksum:         file.result.Checksum,
		ContentType:      file.contentType,
		Content:          file.content,
		Comment:          attrs.comment,
		IsCAMOriginal:    attrs.isCAMOriginal,
		StateID:          stateID,
		CreatedBy:        attrs.author,
	}
	if err := tx.Revisions().Create(ctx, rev); err != nil {
		return nil, mapRepoError(err, "создание ревизии "+attrs.version.String())
	}
	if err := tx.Programs().SetCurrentRevision(ctx, p.ID, rev.ID, stateID); err != nil {
		return nil, mapRepoError(err, "переключение текущей ревизии")
	}

	created, err := tx.Revisions().GetByID(ctx, rev.ID)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// RevisionService — сервис ревизий программ.
type RevisionService struct {
	store    repository.Store
	files    *filestore.FileStore
	uploader *uploader
	cache    *ContentCache
	logger   *slog.Logger
}

// NewRevisionService создаёт сервис ревизий.
func NewRevisionService(
	store repository.Store,
	files *filestore.FileStore,
	cache *ContentCache,
	maxUploadSize int64,
	logger *slog.Logger,
) *RevisionService {
	return &RevisionService{
		store:    store,
		files:    files,
		uploader: newUploader(files, maxUploadSize, logger),
		cache:    cache,
		logger:   logger.With(slog.String("component", "revision_service")),
	}
}

// Upload добавляет ревизию к программе и делает её текущей.
// Версия: явная (строго больше последней) или последняя + bump.
func (s *RevisionService) Upload(ctx context.Context, params UploadRevisionParams) (*model.Revision, error) {
	params.Bump = strings.ToLower(strings.TrimSpace(params.Bump))
	if params.File != nil && params.File.Reader == nil {
		params.File = nil
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}
	bump, err := version.ParseBump(params.Bump)
	if err != nil {
		return nil, invalidField("bump", "%v", err)
	}

	var explicit *version.Version
	if params.Version != nil && strings.TrimSpace(*params.Version) != "" {
		v, err := version.Parse(*params.Version)
		if err != nil {
			return nil, invalidField("version", "%v", err)
		}
		explicit = &v
	}

	if _, err := s.store.Programs().GetByID(ctx, params.ProgramID); err != nil {
		return nil, mapRepoError(err, "программа "+params.ProgramID)
	}

	pending, err := s.uploader.write(params.File, params.ProgramID, params.Author)
	if err != nil {
		return nil, err
	}
	defer pending.Release()

	var created *model.Revision
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		p, err := tx.Programs().GetForUpdate(ctx, params.ProgramID)
		if err != nil {
			return mapRepoError(err, "программа "+params.ProgramID)
		}

		var latest *version.Version
		last, err := tx.Revisions().Latest(ctx, p.ID)
		switch {
		case err == nil:
			latest = &last.Version
		case errors.Is(err, repository.ErrNotFound):
		default:
			return fmt.Errorf("последняя ревизия программы: %w", err)
		}

		next, err := version.Sequence(latest, bump, explicit)
		if err != nil {
			if errors.Is(err, version.ErrNotGreater) || errors.Is(err, version.ErrOverflow) {
				return fmt.Errorf("%w: %v", ErrConflict, err)
			}
			return err
		}

		isCAM := latest == nil
		if params.IsCAMOriginal != nil {
			isCAM = *params.IsCAMOriginal
		}

		created, err = createRevision(ctx, tx, p, pending, revisionAttrs{
			version:       next,
			comment:       params.Comment,
			isCAMOriginal: isCAM,
			author:        params.Author,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	pending.Keep()

	revisionsCreatedTotal.WithLabelValues("subsequent").Inc()
	s.logger.Info("Ревизия загружена",
		slog.String("program_id", params.ProgramID),
		slog.String("revision_id", created.ID),
		slog.String("version", created.Version.String()),
		slog.Int64("size", created.FileSize),
		slog.String("author", params.Author),
	)
	return created, nil
}

// List возвращает ревизии программы, новые первыми.
func (s *RevisionService) List(ctx context.Context, programID string) ([]*model.Revision, error) {
	if _, err := s.store.Programs().GetByID(ctx, programID); err != nil {
		return nil, mapRepoError(err, "программа "+programID)
	}
	revisions, err := s.store.Revisions().ListByProgram(ctx, programID)
	if err != nil {
		return nil, fmt.Errorf("список ревизий: %w", err)
	}
	return revisions, nil
}

// Get возвращает ревизию программы. Ревизия другой программы → ErrNotFound.
func (s *RevisionService) Get(ctx context.Context, programID, revisionID string) (*model.Revision, error) {
	return getProgramRevision(ctx, s.store, programID, revisionID)
}

// Content возвращает текстовое содержимое ревизии (nil для бинарных).
func (s *RevisionService) Content(ctx context.Context, rev *model.Revision) (*string, error) {
	return loadContent(ctx, s.store, s.cache, rev.ID)
}

// Open открывает файл ревизии для скачивания. Вызывающий закрывает файл.
func (s *RevisionService) Open(ctx context.Context, programID, revisionID string) (*model.Revision, *os.File, error) {
	rev, err := getProgramRevision(ctx, s.store, programID, revisionID)
	if err != nil {
		return nil, nil, err
	}
	return s.open(rev)
}

// OpenCurrent открывает файл текущей ревизии программы.
func (s *RevisionService) OpenCurrent(ctx context.Context, programID string) (*model.Revision, *os.File, error) {
	p, err := s.store.Programs().GetByID(ctx, programID)
	if err != nil {
		return nil, nil, mapRepoError(err, "программа "+programID)
	}
	if p.CurrentRevisionID == nil {
		return nil, nil, fmt.Errorf("%w: у программы %s нет текущей ревизии", ErrNotFound, programID)
	}
	return s.Open(ctx, programID, *p.CurrentRevisionID)
}

func (s *RevisionService) open(rev *model.Revision) (*model.Revision, *os.File, error) {
	f, err := s.files.Open(rev.StoragePath)
	if err != nil {
		s.logger.Error("Файл ревизии недоступен",
			slog.String("revision_id", rev.ID),
			slog.String("storage_path", rev.StoragePath),
			slog.String("error", err.Error()),
		)
		return nil, nil, fmt.Errorf("%w: ревизия %s: %v", ErrStorage, rev.ID, err)
	}
	return rev, f, nil
}

// getProgramRevision загружает ревизию и проверяет её принадлежность программе.
func getProgramRevision(ctx context.Context, store repository.Store, programID, revisionID string) (*model.Revision, error) {
	rev, err := store.Revisions().GetByID(ctx, revisionID)
	if err != nil {
		return nil, mapRepoError(err, "ревизия "+revisionID)
	}
	if rev.ProgramID != programID {
		return nil, fmt.Errorf("%w: ревизия %s не принадлежит программе %s", ErrNotFound, revisionID, programID)
	}
	return rev, nil
}

// loadContent читает содержимое ревизии через кэш.
func loadContent(ctx context.Context, store repository.Store, cache *ContentCache, revisionID string) (*string, error) {
	if cache != nil {
		if text, ok := cache.Get(revisionID); ok {
			return text, nil
		}
	}
	text, err := store.Revisions().GetContent(ctx, revisionID)
	if err != nil {
		return nil, mapRepoError(err, "содержимое ревизии "+revisionID)
	}
	if cache != nil {
		cache.Set(revisionID, text)
	}
	return text, nil
}
