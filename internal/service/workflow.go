// workflow.go — применение действий workflow к ревизиям и каталог состояний.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/ncstore/internal/domain/model"
	"github.com/bigkaa/ncstore/internal/domain/workflow"
	"github.com/bigkaa/ncstore/internal/repository"
)

// TransitionParams — параметры действия workflow над ревизией.
type TransitionParams struct {
	ProgramID  string  `validate:"required" field:"program_id"`
	RevisionID string  `validate:"required" field:"revision_id"`
	Action     string  `validate:"required" field:"action"`
	Comment    *string `field:"comment"`
	Actor      string  `field:"-"`
}

// TransitionResult — ревизия после перехода и запись журнала.
type TransitionResult struct {
	Revision   *model.Revision
	Transition *model.Transition
	// ProgramState — состояние программы после перехода
	ProgramState workflow.State
}

// CatalogState — состояние каталога с допустимыми действиями.
type CatalogState struct {
	ID        int16
	Name      workflow.State
	Color     string
	SortOrder int
	Terminal  bool
	Actions   []workflow.Action
}

// Catalog — каталог состояний и таблица переходов.
type Catalog struct {
	States []CatalogState
	Rules  []workflow.Rule
}

// WorkflowService — сервис workflow ревизий.
type WorkflowService struct {
	store  repository.Store
	logger *slog.Logger
}

// NewWorkflowService создаёт сервис workflow.
func NewWorkflowService(store repository.Store, logger *slog.Logger) *WorkflowService {
	return &WorkflowService{
		store:  store,
		logger: logger.With(slog.String("component", "workflow_service")),
	}
}

// Transition применяет действие к ревизии. Если ревизия текущая,
// новое состояние переносится на программу в той же транзакции.
// Недопустимый переход → *workflow.TransitionError.
func (s *WorkflowService) Transition(ctx context.Context, params TransitionParams) (*TransitionResult, error) {
	params.Action = strings.ToLower(strings.TrimSpace(params.Action))
	if err := validateParams(params); err != nil {
		return nil, err
	}
	action, err := workflow.ParseAction(params.Action)
	if err != nil {
		return nil, invalidField("action", "%v", err)
	}

	var result TransitionResult
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		p, err := tx.Programs().GetForUpdate(ctx, params.ProgramID)
		if err != nil {
			return mapRepoError(err, "программа "+params.ProgramID)
		}
		rev, err := getProgramRevision(ctx, tx, p.ID, params.RevisionID)
		if err != nil {
			return err
		}

		to, err := workflow.Next(rev.State, action)
		if err != nil {
			return err
		}
		st, err := tx.Workflow().GetStateByName(ctx, string(to))
		if err != nil {
			return fmt.Errorf("состояние %s в каталоге: %w", to, err)
		}

		if err := tx.Revisions().SetState(ctx, rev.ID, st.ID); err != nil {
			return mapRepoError(err, "состояние ревизии")
		}
		t := &model.Transition{
			RevisionID: rev.ID,
			Action:     action,
			FromState:  rev.State,
			ToState:    to,
			Actor:      params.Actor,
			Comment:    params.Comment,
		}
		if err := tx.Revisions().AddTransition(ctx, t); err != nil {
			return mapRepoError(err, "журнал переходов")
		}

		result.ProgramState = p.State
		if p.CurrentRevisionID != nil && *p.CurrentRevisionID == rev.ID {
			if err := tx.Programs().SetState(ctx, p.ID, st.ID); err != nil {
				return mapRepoError(err, "состояние программы")
			}
			result.ProgramState = to
		}

		result.Revision, err = tx.Revisions().GetByID(ctx, rev.ID)
		if err != nil {
			return err
		}
		result.Transition = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	workflowTransitionsTotal.WithLabelValues(string(action)).Inc()
	s.logger.Info("Переход workflow",
		slog.String("program_id", params.ProgramID),
		slog.String("revision_id", params.RevisionID),
		slog.String("action", string(action)),
		slog.String("from", string(result.Transition.FromState)),
		slog.String("to", string(result.Transition.ToState)),
		slog.String("actor", params.Actor),
	)
	return &result, nil
}

// History возвращает журнал переходов ревизии в хронологическом порядке.
func (s *WorkflowService) History(ctx context.Context, programID, revisionID string) ([]*model.Transition, error) {
	if _, err := getProgramRevision(ctx, s.store, programID, revisionID); err != nil {
		return nil, err
	}
	transitions, err := s.store.Revisions().ListTransitions(ctx, revisionID)
	if err != nil {
		return nil, fmt.Errorf("журнал переходов: %w", err)
	}
	return transitions, nil
}

// Catalog возвращает состояния из каталога БД и таблицу переходов.
func (s *WorkflowService) Catalog(ctx context.Context) (*Catalog, error) {
	rows, err := s.store.Workflow().ListStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("каталог состояний: %w", err)
	}

	cat := &Catalog{
		States: make([]CatalogState, 0, len(rows)),
		Rules:  workflow.Rules(),
	}
	for _, row := range rows {
		cat.States = append(cat.States, CatalogState{
			ID:        row.ID,
			Name:      row.Name,
			Color:     row.Color,
			SortOrder: row.SortOrder,
			Terminal:  workflow.IsTerminal(row.Name),
			Actions:   workflow.AllowedActions(row.Name),
		})
	}
	return cat, nil
}

// VerifyCatalog проверяет, что каждое состояние автомата есть в каталоге БД.
// Вызывается при старте сервера.
func (s *WorkflowService) VerifyCatalog(ctx context.Context) error {
	rows, err := s.store.Workflow().ListStates(ctx)
	if err != nil {
		return fmt.Errorf("каталог состояний: %w", err)
	}
	known := make(map[workflow.State]bool, len(rows))
	for _, row := range rows {
		known[row.Name] = true
	}

	var missing []string
	for _, st := range workflow.States() {
		if !known[st] {
			missing = append(missing, string(st))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("в каталоге workflow_states нет состояний: %s", strings.Join(missing, ", "))
	}
	s.logger.Debug("Каталог состояний проверен", slog.Int("states", len(rows)))
	return nil
}
