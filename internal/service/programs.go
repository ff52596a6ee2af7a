// programs.go — агрегат программы: создание с первой ревизией,
// чтение, список, изменение метаданных и удаление.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/ncstore/internal/domain/model"
	"github.com/bigkaa/ncstore/internal/domain/version"
	"github.com/bigkaa/ncstore/internal/domain/workflow"
	"github.com/bigkaa/ncstore/internal/repository"
	"github.com/bigkaa/ncstore/internal/storage/filestore"
)

// CreateProgramParams — параметры создания программы.
type CreateProgramParams struct {
	OperationID   int64      `validate:"required" field:"operation_id"`
	Name          string     `validate:"required" field:"name"`
	File          *FileInput `validate:"required" field:"file"`
	Description   *string    `field:"description"`
	ProgramNumber *string    `field:"program_number"`
	Comment       *string    `field:"comment"`
	// Author — автор (sub из JWT)
	Author string `field:"-"`
}

// UpdateProgramParams — изменяемые метаданные программы (nil — без изменений).
type UpdateProgramParams struct {
	ProgramNumber *string
	Name          *string
	Description   *string
}

// ProgramWithRevision — результат создания программы.
type ProgramWithRevision struct {
	Program  *model.Program
	Revision *model.Revision
}

// ProgramService — сервис агрегата программы.
type ProgramService struct {
	store    repository.Store
	files    *filestore.FileStore
	uploader *uploader
	cache    *ContentCache
	logger   *slog.Logger
}

// NewProgramService создаёт сервис программ.
func NewProgramService(
	store repository.Store,
	files *filestore.FileStore,
	cache *ContentCache,
	maxUploadSize int64,
	logger *slog.Logger,
) *ProgramService {
	return &ProgramService{
		store:    store,
		files:    files,
		uploader: newUploader(files, maxUploadSize, logger),
		cache:    cache,
		logger:   logger.With(slog.String("component", "program_service")),
	}
}

// Create создаёт программу в операции вместе с первой ревизией 1.0.0.
// Номер программы без явного значения: <op_number>-<NNN>, NNN = число программ операции + 1.
func (s *ProgramService) Create(ctx context.Context, params CreateProgramParams) (*ProgramWithRevision, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.File != nil && params.File.Reader == nil {
		params.File = nil
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if params.ProgramNumber != nil {
		number := strings.TrimSpace(*params.ProgramNumber)
		if number == "" {
			params.ProgramNumber = nil
		} else {
			params.ProgramNumber = &number
		}
	}

	op, err := s.store.Operations().GetByID(ctx, params.OperationID)
	if err != nil {
		return nil, mapRepoError(err, fmt.Sprintf("операция %d", params.OperationID))
	}

	programID := uuid.New().String()

	pending, err := s.uploader.write(params.File, programID, params.Author)
	if err != nil {
		return nil, err
	}
	defer pending.Release()

	var result ProgramWithRevision
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		draft, err := tx.Workflow().GetStateByName(ctx, string(workflow.InitialState))
		if err != nil {
			return fmt.Errorf("состояние %s в каталоге: %w", workflow.InitialState, err)
		}

		number := ""
		if params.ProgramNumber != nil {
			number = *params.ProgramNumber
		} else {
			count, err := tx.Programs().CountByOperation(ctx, op.ID)
			if err != nil {
				return err
			}
			number = fmt.Sprintf("%s-%03d", op.OpNumber, count+1)
		}

		p := &model.Program{
			ID:            programID,
			OperationID:   op.ID,
			ProgramNumber: number,
			Name:          params.Name,
			Description:   params.Description,
			StateID:       draft.ID,
			State:         draft.Name,
			CreatedBy:     params.Author,
		}
		if err := tx.Programs().Create(ctx, p); err != nil {
			return mapRepoError(err, "создание программы")
		}

		rev, err := createRevision(ctx, tx, p, pending, revisionAttrs{
			version:       version.Initial(),
			comment:       params.Comment,
			isCAMOriginal: true,
			author:        params.Author,
		})
		if err != nil {
			return err
		}

		result.Program, err = tx.Programs().GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		result.Revision = rev
		return nil
	})
	if err != nil {
		return nil, err
	}
	pending.Keep()

	revisionsCreatedTotal.WithLabelValues("initial").Inc()
	s.logger.Info("Программа создана",
		slog.String("program_id", result.Program.ID),
		slog.String("program_number", result.Program.ProgramNumber),
		slog.Int64("operation_id", op.ID),
		slog.String("revision_id", result.Revision.ID),
		slog.String("checksum", result.Revision.Checksum),
		slog.String("author", params.Author),
	)
	return &result, nil
}

// Get возвращает программу по id.
func (s *ProgramService) Get(ctx context.Context, id string) (*model.Program, error) {
	p, err := s.store.Programs().GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "программа "+id)
	}
	return p, nil
}

// List возвращает страницу программ и общее количество по фильтрам.
func (s *ProgramService) List(ctx context.Context, filters repository.ProgramListFilters, sort repository.ProgramSort, limit, offset int) ([]*model.Program, int, error) {
	if filters.State != nil {
		if _, err := workflow.ParseState(*filters.State); err != nil {
			return nil, 0, invalidField("state", "%v", err)
		}
	}

	programs, err := s.store.Programs().List(ctx, filters, sort, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("список программ: %w", err)
	}
	total, err := s.store.Programs().Count(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт программ: %w", err)
	}
	return programs, total, nil
}

// Update изменяет только номер, имя и описание программы.
func (s *ProgramService) Update(ctx context.Context, id string, params UpdateProgramParams) (*model.Program, error) {
	if params.ProgramNumber == nil && params.Name == nil && params.Description == nil {
		return nil, &ValidationError{Message: "нет полей для обновления: program_number, name, description"}
	}

	var updated *model.Program
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		p, err := tx.Programs().GetForUpdate(ctx, id)
		if err != nil {
			return mapRepoError(err, "программа "+id)
		}

		if params.ProgramNumber != nil {
			number := strings.TrimSpace(*params.ProgramNumber)
			if number == "" {
				return invalidField("program_number", "program_number не может быть пустым")
			}
			p.ProgramNumber = number
		}
		if params.Name != nil {
			name := strings.TrimSpace(*params.Name)
			if name == "" {
				return invalidField("name", "name не может быть пустым")
			}
			p.Name = name
		}
		if params.Description != nil {
			if desc := strings.TrimSpace(*params.Description); desc == "" {
				p.Description = nil
			} else {
				p.Description = &desc
			}
		}

		if err := tx.Programs().UpdateMetadata(ctx, p); err != nil {
			return mapRepoError(err, "обновление программы")
		}
		updated, err = tx.Programs().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Метаданные программы обновлены",
		slog.String("program_id", id),
		slog.String("program_number", updated.ProgramNumber),
	)
	return updated, nil
}

// Delete удаляет программу и её ревизии. Файлы удаляются после коммита;
// ошибки удаления файлов логируются и не возвращаются.
func (s *ProgramService) Delete(ctx context.Context, id string) error {
	var revisions []*model.Revision
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Programs().GetForUpdate(ctx, id); err != nil {
			return mapRepoError(err, "программа "+id)
		}
		var err error
		revisions, err = tx.Revisions().ListByProgram(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Programs().Delete(ctx, id); err != nil {
			return mapRepoError(err, "удаление программы")
		}
		return nil
	})
	if err != nil {
		return err
	}

	failed := 0
	for _, rev := range revisions {
		s.cache.Delete(rev.ID)
		if err := s.files.DeleteFile(rev.StoragePath); err != nil {
			failed++
			s.logger.Warn("Не удалось удалить файл ревизии",
				slog.String("program_id", id),
				slog.String("storage_path", rev.StoragePath),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.files.RemoveDir(id); err != nil && !errors.Is(err, filestore.ErrInvalidPath) {
		s.logger.Warn("Не удалось удалить директорию программы",
			slog.String("program_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Программа удалена",
		slog.String("program_id", id),
		slog.Int("revisions", len(revisions)),
		slog.Int("files_failed", failed),
	)
	return nil
}
