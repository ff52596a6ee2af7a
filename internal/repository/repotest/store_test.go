package repotest

import (
	"context"
	"errors"
	"testing"

	"github.com/bigkaa/ncstore/internal/domain/model"
	"github.com/bigkaa/ncstore/internal/domain/version"
	"github.com/bigkaa/ncstore/internal/repository"
)

func TestInTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	opID := s.AddOperation("OP10", "Facing")

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx repository.Store) error {
		p := &model.Program{ID: "p1", OperationID: opID, ProgramNumber: "OP10-001", Name: "A", StateID: 1}
		if err := tx.Programs().Create(ctx, p); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ожидалась boom, получено %v", err)
	}
	if s.ProgramCount() != 0 {
		t.Errorf("после отката осталось программ: %d", s.ProgramCount())
	}
}

func TestConstraints(t *testing.T) {
	ctx := context.Background()
	s := New()
	opID := s.AddOperation("OP10", "Facing")

	p := &model.Program{ID: "p1", OperationID: opID, ProgramNumber: "OP10-001", Name: "A", StateID: 1}
	if err := s.Programs().Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dup := &model.Program{ID: "p2", OperationID: opID, ProgramNumber: "OP10-001", Name: "B", StateID: 1}
	if err := s.Programs().Create(ctx, dup); !errors.Is(err, repository.ErrConflict) {
		t.Errorf("дубликат номера: %v", err)
	}
	noOp := &model.Program{ID: "p3", OperationID: 42, ProgramNumber: "X", Name: "C", StateID: 1}
	if err := s.Programs().Create(ctx, noOp); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("неизвестная операция: %v", err)
	}

	rev := &model.Revision{ID: "r1", ProgramID: "p1", Version: version.Initial(), StateID: 1}
	if err := s.Revisions().Create(ctx, rev); err != nil {
		t.Fatalf("Create revision: %v", err)
	}
	again := &model.Revision{ID: "r2", ProgramID: "p1", Version: version.Initial(), StateID: 1}
	if err := s.Revisions().Create(ctx, again); !errors.Is(err, repository.ErrConflict) {
		t.Errorf("дубликат версии: %v", err)
	}

	other := &model.Program{ID: "p4", OperationID: opID, ProgramNumber: "OP10-002", Name: "D", StateID: 1}
	_ = s.Programs().Create(ctx, other)
	if err := s.Programs().SetCurrentRevision(ctx, "p4", "r1", 1); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("чужая ревизия: %v", err)
	}

	if err := s.Programs().Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.RevisionCount() != 0 {
		t.Errorf("каскадное удаление: осталось ревизий %d", s.RevisionCount())
	}
}
