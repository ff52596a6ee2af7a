// rollback.go — откат текущей ревизии и выдача содержимого двух ревизий
// для внешнего сравнения.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/ncstore/internal/domain/model"
	"github.com/bigkaa/ncstore/internal/domain/version"
	"github.com/bigkaa/ncstore/internal/repository"
)

// ComparedRevision — ревизия и её текстовое содержимое.
// Content == nil для бинарных ревизий.
type ComparedRevision struct {
	Revision *model.Revision
	Content  *string
}

// Comparison — пара ревизий для сравнения. Diff вычисляет клиент.
type Comparison struct {
	A ComparedRevision
	B ComparedRevision
}

// RollbackService — откат и сравнение ревизий.
type RollbackService struct {
	store  repository.Store
	cache  *ContentCache
	logger *slog.Logger
}

// NewRollbackService создаёт сервис отката и сравнения.
func NewRollbackService(store repository.Store, cache *ContentCache, logger *slog.Logger) *RollbackService {
	return &RollbackService{
		store:  store,
		cache:  cache,
		logger: logger.With(slog.String("component", "rollback_service")),
	}
}

// Rollback делает текущей ревизию программы с указанной версией.
// Более поздние ревизии не изменяются. Повторный откат на текущую
// ревизию ничего не записывает.
func (s *RollbackService) Rollback(ctx context.Context, programID, target string) (*model.Program, error) {
	v, err := version.Parse(target)
	if err != nil {
		return nil, invalidField("version", "%v", err)
	}

	applied := false
	var rev *model.Revision
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		p, err := tx.Programs().GetForUpdate(ctx, programID)
		if err != nil {
			return mapRepoError(err, "программа "+programID)
		}
		rev, err = tx.Revisions().GetByVersion(ctx, p.ID, v)
		if err != nil {
			return mapRepoError(err, fmt.Sprintf("версия %s программы %s", v, programID))
		}
		if p.CurrentRevisionID != nil && *p.CurrentRevisionID == rev.ID {
			return nil
		}
		if err := tx.Programs().SetCurrentRevision(ctx, p.ID, rev.ID, rev.StateID); err != nil {
			return mapRepoError(err, "переключение текущей ревизии")
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied {
		rollbacksTotal.WithLabelValues("applied").Inc()
		s.logger.Info("Текущая ревизия откачена",
			slog.String("program_id", programID),
			slog.String("revision_id", rev.ID),
			slog.String("version", v.String()),
		)
	} else {
		rollbacksTotal.WithLabelValues("noop").Inc()
		s.logger.Debug("Ревизия уже текущая",
			slog.String("program_id", programID),
			slog.String("version", v.String()),
		)
	}

	p, err := s.store.Programs().GetByID(ctx, programID)
	if err != nil {
		return nil, mapRepoError(err, "программа "+programID)
	}
	return p, nil
}

// CompareVersions загружает две версии одной программы.
func (s *RollbackService) CompareVersions(ctx context.Context, programID, a, b string) (*Comparison, error) {
	va, err := version.Parse(a)
	if err != nil {
		return nil, invalidField("a", "%v", err)
	}
	vb, err := version.Parse(b)
	if err != nil {
		return nil, invalidField("b", "%v", err)
	}
	if _, err := s.store.Programs().GetByID(ctx, programID); err != nil {
		return nil, mapRepoError(err, "программа "+programID)
	}

	return s.compare(ctx,
		func(ctx context.Context) (*model.Revision, error) {
			rev, err := s.store.Revisions().GetByVersion(ctx, programID, va)
			return rev, mapRepoError(err, "версия "+va.String())
		},
		func(ctx context.Context) (*model.Revision, error) {
			rev, err := s.store.Revisions().GetByVersion(ctx, programID, vb)
			return rev, mapRepoError(err, "версия "+vb.String())
		},
	)
}

// CompareRevisions загружает две ревизии по id (возможно, разных программ).
func (s *RollbackService) CompareRevisions(ctx context.Context, idA, idB string) (*Comparison, error) {
	byID := func(id string) func(context.Context) (*model.Revision, error) {
		return func(ctx context.Context) (*model.Revision, error) {
			rev, err := s.store.Revisions().GetByID(ctx, id)
			return rev, mapRepoError(err, "ревизия "+id)
		}
	}
	return s.compare(ctx, byID(idA), byID(idB))
}

type revisionLoader func(ctx context.Context) (*model.Revision, error)

func (s *RollbackService) compare(ctx context.Context, loadA, loadB revisionLoader) (*Comparison, error) {
	var cmp Comparison
	g, gctx := errgroup.WithContext(ctx)
	load := func(dst *ComparedRevision, loader revisionLoader) func() error {
		return func() error {
			rev, err := loader(gctx)
			if err != nil {
				return err
			}
			text, err := loadContent(gctx, s.store, s.cache, rev.ID)
			if err != nil {
				return err
			}
			dst.Revision = rev
			dst.Content = text
			return nil
		}
	}
	g.Go(load(&cmp.A, loadA))
	g.Go(load(&cmp.B, loadB))
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &cmp, nil
}
