package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/ncstore/internal/domain/model"
	"github.com/bigkaa/ncstore/internal/repository/repotest"
	"github.com/bigkaa/ncstore/internal/storage/filestore"
)

// testEnv — сервисы поверх in-memory хранилища и временной директории.
type testEnv struct {
	store     *repotest.Store
	files     *filestore.FileStore
	cache     *ContentCache
	programs  *ProgramService
	revisions *RevisionService
	rollback  *RollbackService
	workflow  *WorkflowService
	integrity *IntegrityService
	opID      int64
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	files, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	store := repotest.New()
	cache := NewContentCache(64, time.Minute)
	logger := discardLogger()

	return &testEnv{
		store:     store,
		files:     files,
		cache:     cache,
		programs:  NewProgramService(store, files, cache, 1<<20, logger),
		revisions: NewRevisionService(store, files, cache, 1<<20, logger),
		rollback:  NewRollbackService(store, cache, logger),
		workflow:  NewWorkflowService(store, logger),
		integrity: NewIntegrityService(store, files, 2, logger),
		opID:      store.AddOperation("OP10", "Токарная"),
	}
}

func textFile(name, body string) *FileInput {
	return &FileInput{Reader: strings.NewReader(body), Filename: name}
}

func binaryFile(name string, data []byte) *FileInput {
	return &FileInput{Reader: bytes.NewReader(data), Filename: name}
}

func sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func strPtr(s string) *string { return &s }

// createProgram создаёт программу с текстовым файлом в операции OP10.
func (e *testEnv) createProgram(t *testing.T, name, body string) *ProgramWithRevision {
	t.Helper()
	res, err := e.programs.Create(context.Background(), CreateProgramParams{
		OperationID: e.opID,
		Name:        name,
		File:        textFile("O1001.nc", body),
		Author:      "ivanov",
	})
	if err != nil {
		t.Fatalf("создание программы: %v", err)
	}
	return res
}

// upload загружает новую ревизию с bump по умолчанию.
func (e *testEnv) upload(t *testing.T, programID, body string) *model.Revision {
	t.Helper()
	rev, err := e.revisions.Upload(context.Background(), UploadRevisionParams{
		ProgramID: programID,
		File:      textFile("O1001.nc", body),
		Author:    "petrov",
	})
	if err != nil {
		t.Fatalf("загрузка ревизии: %v", err)
	}
	return rev
}

// storedFiles возвращает все файлы в директории данных.
func (e *testEnv) storedFiles(t *testing.T) []string {
	t.Helper()
	var paths []string
	err := e.files.Walk(func(storagePath string, _ int64) error {
		paths = append(paths, storagePath)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return paths
}
