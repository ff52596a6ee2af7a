package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/ncstore/internal/domain/model"
)

// OperationRepository — чтение реестра операций.
type OperationRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Operation, error)
}

// WorkflowRepository — чтение каталога состояний workflow.
type WorkflowRepository interface {
	// ListStates возвращает состояния в порядке sort_order.
	ListStates(ctx context.Context) ([]model.WorkflowState, error)
	GetStateByName(ctx context.Context, name string) (*model.WorkflowState, error)
}

type operationRepo struct {
	db DBTX
}

// NewOperationRepository создаёт репозиторий операций.
func NewOperationRepository(db DBTX) OperationRepository {
	return &operationRepo{db: db}
}

func (r *operationRepo) GetByID(ctx context.Context, id int64) (*model.Operation, error) {
	op := &model.Operation{}
	err := r.db.QueryRow(ctx,
		`SELECT id, op_number, name FROM operations WHERE id = $1`, id,
	).Scan(&op.ID, &op.OpNumber, &op.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения операции: %w", err)
	}
	return op, nil
}

type workflowRepo struct {
	db DBTX
}

// NewWorkflowRepository создаёт репозиторий каталога состояний.
func NewWorkflowRepository(db DBTX) WorkflowRepository {
	return &workflowRepo{db: db}
}

func (r *workflowRepo) ListStates(ctx context.Context) ([]model.WorkflowState, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, color, sort_order FROM workflow_states ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения каталога состояний: %w", err)
	}
	defer rows.Close()

	var result []model.WorkflowState
	for rows.Next() {
		var s model.WorkflowState
		if err := rows.Scan(&s.ID, &s.Name, &s.Color, &s.SortOrder); err != nil {
			return nil, fmt.Errorf("ошибка сканирования состояния: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *workflowRepo) GetStateByName(ctx context.Context, name string) (*model.WorkflowState, error) {
	s := &model.WorkflowState{}
	err := r.db.QueryRow(ctx,
		`SELECT id, name, color, sort_order FROM workflow_states WHERE name = $1`, name,
	).Scan(&s.ID, &s.Name, &s.Color, &s.SortOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения состояния %s: %w", name, err)
	}
	return s, nil
}
