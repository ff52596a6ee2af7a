// integrity.go — проверка целостности файлов ревизий.
//
// Сравнивает записи program_revisions с файлами в NC_DATA_DIR:
//   - missing_file: ревизия есть, файла нет
//   - size_mismatch: размер файла не совпадает с file_size
//   - checksum_mismatch: SHA-256 не совпадает с checksum
//   - orphaned_file: файл на диске, на который не ссылается ни одна ревизия
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/ncstore/internal/domain/model"
	"github.com/bigkaa/ncstore/internal/repository"
	"github.com/bigkaa/ncstore/internal/storage/filestore"
)

// IssueType — тип проблемы целостности.
type IssueType string

const (
	IssueMissingFile      IssueType = "missing_file"
	IssueSizeMismatch     IssueType = "size_mismatch"
	IssueChecksumMismatch IssueType = "checksum_mismatch"
	IssueOrphanedFile     IssueType = "orphaned_file"
)

// IntegrityIssue — обнаруженная проблема.
type IntegrityIssue struct {
	Type        IssueType
	StoragePath string
	// RevisionID пуст для orphaned_file
	RevisionID string
	ProgramID  string
	Expected   string
	Actual     string
}

// IntegrityReport — результат проверки.
type IntegrityReport struct {
	Checked  int
	Issues   []IntegrityIssue
	Duration time.Duration
}

// OK — проблем не найдено.
func (r *IntegrityReport) OK() bool {
	return len(r.Issues) == 0
}

// IntegrityService — проверка файлов ревизий.
type IntegrityService struct {
	store    repository.Store
	files    *filestore.FileStore
	pageSize int
	workers  int
	logger   *slog.Logger
}

// NewIntegrityService создаёт сервис проверки целостности.
// workers — число параллельных проверок файлов.
func NewIntegrityService(store repository.Store, files *filestore.FileStore, workers int, logger *slog.Logger) *IntegrityService {
	if workers <= 0 {
		workers = 4
	}
	return &IntegrityService{
		store:    store,
		files:    files,
		pageSize: 500,
		workers:  workers,
		logger:   logger.With(slog.String("component", "integrity")),
	}
}

// Verify проверяет все ревизии постранично и ищет файлы-сироты.
func (s *IntegrityService) Verify(ctx context.Context) (*IntegrityReport, error) {
	started := time.Now()
	s.logger.Info("Проверка целостности начата")

	var (
		mu     sync.Mutex
		report IntegrityReport
		known  = make(map[string]struct{})
	)
	addIssue := func(issue IntegrityIssue) {
		mu.Lock()
		report.Issues = append(report.Issues, issue)
		mu.Unlock()
	}

	afterID := ""
	for {
		page, err := s.store.Revisions().ListAll(ctx, afterID, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("обход ревизий: %w", err)
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for _, rev := range page {
			known[rev.StoragePath] = struct{}{}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if issue := s.check(rev); issue != nil {
					addIssue(*issue)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		report.Checked += len(page)
		afterID = page[len(page)-1].ID
		if len(page) < s.pageSize {
			break
		}
	}

	err := s.files.Walk(func(storagePath string, _ int64) error {
		if _, ok := known[storagePath]; !ok {
			addIssue(IntegrityIssue{Type: IssueOrphanedFile, StoragePath: storagePath})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("обход файлов: %w", err)
	}

	sort.Slice(report.Issues, func(i, j int) bool {
		if report.Issues[i].Type != report.Issues[j].Type {
			return report.Issues[i].Type < report.Issues[j].Type
		}
		return report.Issues[i].StoragePath < report.Issues[j].StoragePath
	})
	report.Duration = time.Since(started)

	verifyDurationSeconds.Observe(report.Duration.Seconds())
	for _, issue := range report.Issues {
		verifyIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
	}

	s.logger.Info("Проверка целостности завершена",
		slog.Int("checked", report.Checked),
		slog.Int("issues", len(report.Issues)),
		slog.String("duration", report.Duration.String()),
	)
	return &report, nil
}

// check проверяет файл одной ревизии. nil — проблем нет.
func (s *IntegrityService) check(rev *model.Revision) *IntegrityIssue {
	issue := &IntegrityIssue{
		StoragePath: rev.StoragePath,
		RevisionID:  rev.ID,
		ProgramID:   rev.ProgramID,
	}

	size, err := s.files.Size(rev.StoragePath)
	if err != nil {
		issue.Type = IssueMissingFile
		if !errors.Is(err, filestore.ErrNotFound) {
			issue.Actual = err.Error()
		}
		return issue
	}
	if size != rev.FileSize {
		issue.Type = IssueSizeMismatch
		issue.Expected = fmt.Sprintf("%d", rev.FileSize)
		issue.Actual = fmt.Sprintf("%d", size)
		return issue
	}

	sum, err := s.files.ComputeChecksum(rev.StoragePath)
	if err != nil {
		issue.Type = IssueMissingFile
		issue.Actual = err.Error()
		return issue
	}
	if sum != rev.Checksum {
		issue.Type = IssueChecksumMismatch
		issue.Expected = rev.Checksum
		issue.Actual = sum
		return issue
	}
	return nil
}
