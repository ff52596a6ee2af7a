package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/ncstore/internal/domain/model"
)

// ProgramRepository — доступ к таблице programs.
type ProgramRepository interface {
	// Create создаёт программу. Дубликат номера в операции → ErrConflict.
	Create(ctx context.Context, p *model.Program) error
	// GetByID возвращает программу с именем состояния и версией текущей ревизии.
	GetByID(ctx context.Context, id string) (*model.Program, error)
	// GetForUpdate — GetByID с блокировкой строки программы до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (*model.Program, error)
	// List возвращает список программ с фильтрацией и сортировкой.
	List(ctx context.Context, filters ProgramListFilters, sort ProgramSort, limit, offset int) ([]*model.Program, error)
	// Count возвращает количество программ с фильтрацией.
	Count(ctx context.Context, filters ProgramListFilters) (int, error)
	// CountByOperation — количество программ операции (для автономера).
	CountByOperation(ctx context.Context, operationID int64) (int, error)
	// UpdateMetadata обновляет номер, имя и описание.
	UpdateMetadata(ctx context.Context, p *model.Program) error
	// SetCurrentRevision переключает текущую ревизию и состояние программы.
	SetCurrentRevision(ctx context.Context, programID, revisionID string, stateID int16) error
	// SetState обновляет только состояние программы.
	SetState(ctx context.Context, programID string, stateID int16) error
	// Delete удаляет программу (ревизии удаляются каскадно).
	Delete(ctx context.Context, id string) error
}

// ProgramListFilters — фильтры для списка программ.
type ProgramListFilters struct {
	OperationID *int64
	// State — имя состояния workflow
	State *string
	// Query — подстрока номера или имени (ILIKE)
	Query *string
}

// ProgramSort — параметры сортировки списка программ.
type ProgramSort struct {
	// SortBy — created_at, program_number, name, updated_at
	SortBy string
	// SortOrder — asc, desc
	SortOrder string
}

const programSelect = `
	SELECT p.id, p.operation_id, p.program_number, p.name, p.description,
		p.state_id, s.name, p.current_revision_id, r.version,
		p.created_by, p.created_at, p.updated_at
	FROM programs p
	JOIN workflow_states s ON s.id = p.state_id
	LEFT JOIN program_revisions r ON r.id = p.current_revision_id`

type programRepo struct {
	db DBTX
}

// NewProgramRepository создаёт репозиторий программ.
func NewProgramRepository(db DBTX) ProgramRepository {
	return &programRepo{db: db}
}

func scanProgram(row pgx.Row) (*model.Program, error) {
	p := &model.Program{}
	err := row.Scan(
		&p.ID, &p.OperationID, &p.ProgramNumber, &p.Name, &p.Description,
		&p.StateID, &p.State, &p.CurrentRevisionID, &p.CurrentVersion,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (r *programRepo) Create(ctx context.Context, p *model.Program) error {
	query := `
		INSERT INTO programs (id, operation_id, program_number, name, description,
			state_id, current_revision_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.OperationID, p.ProgramNumber, p.Name, p.Description,
		p.StateID, p.CurrentRevisionID, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: программа %s уже существует в операции", ErrConflict, p.ProgramNumber)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: операция %d", ErrNotFound, p.OperationID)
		}
		return fmt.Errorf("ошибка создания программы: %w", err)
	}
	return nil
}

func (r *programRepo) GetByID(ctx context.Context, id string) (*model.Program, error) {
	return r.get(ctx, programSelect+` WHERE p.id = $1`, id)
}

func (r *programRepo) GetForUpdate(ctx context.Context, id string) (*model.Program, error) {
	return r.get(ctx, programSelect+` WHERE p.id = $1 FOR UPDATE OF p`, id)
}

func (r *programRepo) get(ctx context.Context, query, id string) (*model.Program, error) {
	p, err := scanProgram(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения программы: %w", err)
	}
	return p, nil
}

// buildProgramWhere строит WHERE-условие и аргументы для фильтрации программ.
func buildProgramWhere(filters ProgramListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.OperationID != nil {
		conditions = append(conditions, fmt.Sprintf("p.operation_id = $%d", argNum))
		args = append(args, *filters.OperationID)
		argNum++
	}
	if filters.State != nil {
		conditions = append(conditions, fmt.Sprintf("s.name = $%d", argNum))
		args = append(args, *filters.State)
		argNum++
	}
	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		conditions = append(conditions,
			fmt.Sprintf("(p.program_number ILIKE $%d OR p.name ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+escapeLike(strings.TrimSpace(*filters.Query))+"%")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// escapeLike экранирует спецсимволы шаблона LIKE.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

const defaultProgramSortColumn = "created_at"

// buildProgramOrderBy строит ORDER BY с безопасным whitelist полей.
func buildProgramOrderBy(sort ProgramSort) string {
	column := defaultProgramSortColumn
	switch sort.SortBy {
	case "program_number", "name", "updated_at":
		column = sort.SortBy
	}

	direction := "DESC"
	if strings.EqualFold(sort.SortOrder, "asc") {
		direction = "ASC"
	}

	// p.id — стабильный порядок при равных значениях
	return fmt.Sprintf("ORDER BY p.%s %s, p.id %s", column, direction, direction)
}

func (r *programRepo) List(ctx context.Context, filters ProgramListFilters, sort ProgramSort, limit, offset int) ([]*model.Program, error) {
	where, args := buildProgramWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`%s
		%s
		%s
		LIMIT $%d OFFSET $%d`, programSelect, where, buildProgramOrderBy(sort), argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка программ: %w", err)
	}
	defer rows.Close()

	var result []*model.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования программы: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *programRepo) Count(ctx context.Context, filters ProgramListFilters) (int, error) {
	where, args := buildProgramWhere(filters, 1)
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM programs p
		JOIN workflow_states s ON s.id = p.state_id
		%s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта программ: %w", err)
	}
	return count, nil
}

func (r *programRepo) CountByOperation(ctx context.Context, operationID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM programs WHERE operation_id = $1`, operationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта программ операции: %w", err)
	}
	return count, nil
}

func (r *programRepo) UpdateMetadata(ctx context.Context, p *model.Program) error {
	query := `
		UPDATE programs
		SET program_number = $2, name = $3, description = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, p.ID, p.ProgramNumber, p.Name, p.Description).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: программа %s уже существует в операции", ErrConflict, p.ProgramNumber)
		}
		return fmt.Errorf("ошибка обновления программы: %w", err)
	}
	return nil
}

func (r *programRepo) SetCurrentRevision(ctx context.Context, programID, revisionID string, stateID int16) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE programs
		SET current_revision_id = $2, state_id = $3, updated_at = NOW()
		WHERE id = $1`, programID, revisionID, stateID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: ревизия %s не принадлежит программе %s", ErrNotFound, revisionID, programID)
		}
		return fmt.Errorf("ошибка обновления текущей ревизии: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *programRepo) SetState(ctx context.Context, programID string, stateID int16) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE programs SET state_id = $2, updated_at = NOW() WHERE id = $1`,
		programID, stateID)
	if err != nil {
		return fmt.Errorf("ошибка обновления состояния программы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *programRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM programs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления программы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
