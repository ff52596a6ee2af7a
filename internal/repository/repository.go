// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store — единая точка доступа к репозиториям.
// InTx выполняет fn в транзакции: репозитории переданного Store
// работают в её рамках. Вложенный InTx использует ту же транзакцию.
type Store interface {
	Programs() ProgramRepository
	Revisions() RevisionRepository
	Operations() OperationRepository
	Workflow() WorkflowRepository
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается, при успехе — коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("ошибка коммита транзакции: %w", err)
	}
	return nil
}

// pgStore — реализация Store поверх pgxpool.
type pgStore struct {
	db DBTX
	// runner == nil внутри транзакции
	runner *TxRunner
}

// NewStore создаёт Store поверх пула подключений.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{db: pool, runner: NewTxRunner(pool)}
}

func (s *pgStore) Programs() ProgramRepository     { return NewProgramRepository(s.db) }
func (s *pgStore) Revisions() RevisionRepository   { return NewRevisionRepository(s.db) }
func (s *pgStore) Operations() OperationRepository { return NewOperationRepository(s.db) }
func (s *pgStore) Workflow() WorkflowRepository    { return NewWorkflowRepository(s.db) }

func (s *pgStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.runner == nil {
		return fn(s)
	}
	return s.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgStore{db: tx})
	})
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isForeignKeyViolation — нарушение внешнего ключа (23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}
