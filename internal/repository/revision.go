package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/ncstore/internal/domain/model"
	"github.com/bigkaa/ncstore/internal/domain/version"
)

// RevisionRepository — доступ к таблицам program_revisions и revision_transitions.
// Методы чтения не загружают content, кроме GetContent.
type RevisionRepository interface {
	// Create вставляет ревизию. Дубликат версии в программе → ErrConflict.
	Create(ctx context.Context, rev *model.Revision) error
	GetByID(ctx context.Context, id string) (*model.Revision, error)
	// GetByVersion возвращает ревизию программы с указанной версией.
	GetByVersion(ctx context.Context, programID string, v version.Version) (*model.Revision, error)
	// Latest возвращает ревизию с наибольшей версией. Нет ревизий → ErrNotFound.
	Latest(ctx context.Context, programID string) (*model.Revision, error)
	// ListByProgram возвращает ревизии программы, новые первыми.
	ListByProgram(ctx context.Context, programID string) ([]*model.Revision, error)
	// ListAll — постраничный обход всех ревизий по возрастанию id (keyset).
	ListAll(ctx context.Context, afterID string, limit int) ([]*model.Revision, error)
	// GetContent возвращает текстовое содержимое (nil для бинарных ревизий).
	GetContent(ctx context.Context, id string) (*string, error)
	// SetState обновляет состояние ревизии.
	SetState(ctx context.Context, id string, stateID int16) error
	// AddTransition записывает переход в журнал.
	AddTransition(ctx context.Context, t *model.Transition) error
	// ListTransitions возвращает журнал переходов ревизии в хронологическом порядке.
	ListTransitions(ctx context.Context, revisionID string) ([]*model.Transition, error)
}

const revisionSelect = `
	SELECT r.id, r.program_id, r.version_major, r.version_minor, r.version_patch,
		r.storage_path, r.original_filename, r.file_size, r.checksum, r.content_type,
		r.comment, r.is_cam_original, r.state_id, s.name, r.created_by, r.created_at
	FROM program_revisions r
	JOIN workflow_states s ON s.id = r.state_id`

type revisionRepo struct {
	db DBTX
}

// NewRevisionRepository создаёт репозиторий ревизий.
func NewRevisionRepository(db DBTX) RevisionRepository {
	return &revisionRepo{db: db}
}

func scanRevision(row pgx.Row) (*model.Revision, error) {
	rev := &model.Revision{}
	err := row.Scan(
		&rev.ID, &rev.ProgramID, &rev.Version.Major, &rev.Version.Minor, &rev.Version.Patch,
		&rev.StoragePath, &rev.OriginalFilename, &rev.FileSize, &rev.Checksum, &rev.ContentType,
		&rev.Comment, &rev.IsCAMOriginal, &rev.StateID, &rev.State, &rev.CreatedBy, &rev.CreatedAt,
	)
	return rev, err
}

func (r *revisionRepo) Create(ctx context.Context, rev *model.Revision) error {
	query := `
		INSERT INTO program_revisions (id, program_id, version_major, version_minor, version_patch,
			version, storage_path, original_filename, file_size, checksum, content_type,
			content, comment, is_cam_original, state_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		rev.ID, rev.ProgramID, rev.Version.Major, rev.Version.Minor, rev.Version.Patch,
		rev.Version.String(), rev.StoragePath, rev.OriginalFilename, rev.FileSize, rev.Checksum,
		rev.ContentType, rev.Content, rev.Comment, rev.IsCAMOriginal, rev.StateID, rev.CreatedBy,
	).Scan(&rev.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: версия %s уже существует", ErrConflict, rev.Version)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: программа %s", ErrNotFound, rev.ProgramID)
		}
		return fmt.Errorf("ошибка создания ревизии: %w", err)
	}
	return nil
}

func (r *revisionRepo) GetByID(ctx context.Context, id string) (*model.Revision, error) {
	return r.get(ctx, revisionSelect+` WHERE r.id = $1`, id)
}

func (r *revisionRepo) GetByVersion(ctx context.Context, programID string, v version.Version) (*model.Revision, error) {
	return r.get(ctx, revisionSelect+`
		WHERE r.program_id = $1
			AND r.version_major = $2 AND r.version_minor = $3 AND r.version_patch = $4`,
		programID, v.Major, v.Minor, v.Patch)
}

func (r *revisionRepo) Latest(ctx context.Context, programID string) (*model.Revision, error) {
	return r.get(ctx, revisionSelect+`
		WHERE r.program_id = $1
		ORDER BY r.version_major DESC, r.version_minor DESC, r.version_patch DESC
		LIMIT 1`, programID)
}

func (r *revisionRepo) get(ctx context.Context, query string, args ...any) (*model.Revision, error) {
	rev, err := scanRevision(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ревизии: %w", err)
	}
	return rev, nil
}

func (r *revisionRepo) ListByProgram(ctx context.Context, programID string) ([]*model.Revision, error) {
	return r.list(ctx, revisionSelect+`
		WHERE r.program_id = $1
		ORDER BY r.created_at DESC,
			r.version_major DESC, r.version_minor DESC, r.version_patch DESC`, programID)
}

func (r *revisionRepo) ListAll(ctx context.Context, afterID string, limit int) ([]*model.Revision, error) {
	if afterID == "" {
		return r.list(ctx, revisionSelect+` ORDER BY r.id LIMIT $1`, limit)
	}
	return r.list(ctx, revisionSelect+` WHERE r.id > $1 ORDER BY r.id LIMIT $2`, afterID, limit)
}

func (r *revisionRepo) list(ctx context.Context, query string, args ...any) ([]*model.Revision, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка ревизий: %w", err)
	}
	defer rows.Close()

	var result []*model.Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования ревизии: %w", err)
		}
		result = append(result, rev)
	}
	return result, rows.Err()
}

func (r *revisionRepo) GetContent(ctx context.Context, id string) (*string, error) {
	var content *string
	err := r.db.QueryRow(ctx, `SELECT content FROM program_revisions WHERE id = $1`, id).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения содержимого ревизии: %w", err)
	}
	return content, nil
}

func (r *revisionRepo) SetState(ctx context.Context, id string, stateID int16) error {
	tag, err := r.db.Exec(ctx, `UPDATE program_revisions SET state_id = $2 WHERE id = $1`, id, stateID)
	if err != nil {
		return fmt.Errorf("ошибка обновления состояния ревизии: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *revisionRepo) AddTransition(ctx context.Context, t *model.Transition) error {
	query := `
		INSERT INTO revision_transitions (revision_id, action, from_state, to_state, actor, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		t.RevisionID, string(t.Action), string(t.FromState), string(t.ToState), t.Actor, t.Comment,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: ревизия %s", ErrNotFound, t.RevisionID)
		}
		return fmt.Errorf("ошибка записи перехода: %w", err)
	}
	return nil
}

func (r *revisionRepo) ListTransitions(ctx context.Context, revisionID string) ([]*model.Transition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, revision_id, action, from_state, to_state, actor, comment, created_at
		FROM revision_transitions
		WHERE revision_id = $1
		ORDER BY created_at, id`, revisionID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала переходов: %w", err)
	}
	defer rows.Close()

	var result []*model.Transition
	for rows.Next() {
		t := &model.Transition{}
		if err := rows.Scan(&t.ID, &t.RevisionID, &t.Action, &t.FromState, &t.ToState,
			&t.Actor, &t.Comment, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования перехода: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
