package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/bigkaa/ncstore/internal/domain/workflow"
)

// TestUploadRevision_NextPatch — вторая загрузка получает 1.0.1 и становится текущей.
func TestUploadRevision_NextPatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.createProgram(t, "Вал", "G0 X0\n")

	rev := env.upload(t, res.Program.ID, "G0 X1\n")
	if rev.Version.String() != "1.0.1" {
		t.Errorf("версия %s, ожидалась 1.0.1", rev.Version)
	}
	if rev.IsCAMOriginal {
		t.Error("последующая ревизия не должна быть is_cam_original")
	}
	if rev.CreatedBy != "petrov" {
		t.Errorf("автор %q, ожидался petrov", rev.CreatedBy)
	}

	p, err := env.programs.Get(ctx, res.Program.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *p.CurrentRevisionID != rev.ID || *p.CurrentVersion != "1.0.1" {
		t.Errorf("текущая ревизия %s (%s), ожидалась %s", *p.CurrentRevisionID, *p.CurrentVersion, rev.ID)
	}

	list, err := env.revisions.List(ctx, res.Program.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Version.String() != "1.0.1" || list[1].Version.String() != "1.0.0" {
		t.Errorf("ожидался список [1.0.1 1.0.0], получено %d ревизий", len(list))
	}
}

func TestUploadRevision_Overrides(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.createProgram(t, "Вал", "G0\n")
	id := res.Program.ID

	tests := []struct {
		name    string
		bump    string
		version *string
		cam     *bool
		want    string
		wantCAM bool
	}{
		{name: "minor", bump: "minor", want: "1.1.0"},
		{name: "major в верхнем регистре", bump: "MAJOR", want: "2.0.0"},
		{name: "patch по умолчанию", want: "2.0.1"},
		{name: "явная версия", version: strPtr("v3.2.1"), want: "3.2.1"},
		{name: "признак CAM", cam: boolPtr(true), want: "3.2.2", wantCAM: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rev, err := env.revisions.Upload(ctx, UploadRevisionParams{
				ProgramID:     id,
				File:          textFile("a.nc", "G0 "+tt.want+"\n"),
				Bump:          tt.bump,
				Version:       tt.version,
				IsCAMOriginal: tt.cam,
			})
			if err != nil {
				t.Fatalf("Upload: %v", err)
			}
			if rev.Version.String() != tt.want {
				t.Errorf("версия %s, ожидалась %s", rev.Version, tt.want)
			}
			if rev.IsCAMOriginal != tt.wantCAM {
				t.Errorf("is_cam_original = %v, ожидалось %v", rev.IsCAMOriginal, tt.wantCAM)
			}
		})
	}
}

// TestUploadRevision_ExplicitNotGreater — явная версия не больше последней → конфликт.
func TestUploadRevision_ExplicitNotGreater(t *testing.T) {
	env := newTestEnv(t)
	res := env.createProgram(t, "Вал", "G0\n")
	env.upload(t, res.Program.ID, "G1\n")

	for _, v := range []string{"1.0.0", "1.0.1"} {
		_, err := env.revisions.Upload(context.Background(), UploadRevisionParams{
			ProgramID: res.Program.ID,
			File:      textFile("a.nc", "G2\n"),
			Version:   strPtr(v),
		})
		if !errors.Is(err, ErrConflict) {
			t.Errorf("версия %s: ожидалась ErrConflict, получено: %v", v, err)
		}
	}
	if n := env.store.RevisionCount(); n != 2 {
		t.Errorf("ревизий %d, ожидалось 2", n)
	}
	if files := env.storedFiles(t); len(files) != 2 {
		t.Errorf("файлы отклонённых загрузок не удалены: %v", files)
	}
}

// TestUploadRevision_VersionLimit — версия вне диапазона INT: явная отклоняется
// валидацией, автоматическое увеличение на пределе даёт конфликт.
func TestUploadRevision_VersionLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.createProgram(t, "Вал", "G0\n")
	id := res.Program.ID

	_, err := env.revisions.Upload(ctx, UploadRevisionParams{
		ProgramID: id,
		File:      textFile("a.nc", "G1\n"),
		Version:   strPtr("1.0.3000000000"),
	})
	var ve *ValidationError
	if !errors.As(err, &ve) || len(ve.Fields) != 1 || ve.Fields[0] != "version" {
		t.Fatalf("ожидалась ValidationError по полю version, получено: %v", err)
	}

	if _, err := env.revisions.Upload(ctx, UploadRevisionParams{
		ProgramID: id,
		File:      textFile("a.nc", "G2\n"),
		Version:   strPtr("1.0.2147483647"),
	}); err != nil {
		t.Fatalf("Upload 1.0.2147483647: %v", err)
	}

	_, err = env.revisions.Upload(ctx, UploadRevisionParams{
		ProgramID: id,
		File:      textFile("a.nc", "G3\n"),
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("patch на пределе: ожидалась ErrConflict, получено: %v", err)
	}

	rev, err := env.revisions.Upload(ctx, UploadRevisionParams{
		ProgramID: id,
		File:      textFile("a.nc", "G4\n"),
		Bump:      "minor",
	})
	if err != nil || rev.Version.String() != "1.1.0" {
		t.Errorf("minor после 1.0.max: %v, %v", rev, err)
	}
	if n := env.store.RevisionCount(); n != 3 {
		t.Errorf("ревизий %d, ожидалось 3", n)
	}
}

func TestUploadRevision_Validation(t *testing.T) {
	env := newTestEnv(t)
	res := env.createProgram(t, "Вал", "G0\n")

	tests := []struct {
		name   string
		params UploadRevisionParams
		field  string
	}{
		{
			name:   "нет файла",
			params: UploadRevisionParams{ProgramID: res.Program.ID},
			field:  "file",
		},
		{
			name:   "файл без потока",
			params: UploadRevisionParams{ProgramID: res.Program.ID, File: &FileInput{Filename: "a.nc"}},
			field:  "file",
		},
		{
			name:   "неизвестный bump",
			params: UploadRevisionParams{ProgramID: res.Program.ID, File: textFile("a.nc", "G0"), Bump: "huge"},
			field:  "bump",
		},
		{
			name:   "некорректная версия",
			params: UploadRevisionParams{ProgramID: res.Program.ID, File: textFile("a.nc", "G0"), Version: strPtr("1.02.3")},
			field:  "version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.revisions.Upload(context.Background(), tt.params)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("ожидалась *ValidationError, получено: %v", err)
			}
			if len(ve.Fields) != 1 || ve.Fields[0] != tt.field {
				t.Errorf("поля %v, ожидалось [%s]", ve.Fields, tt.field)
			}
		})
	}

	if files := env.storedFiles(t); len(files) != 1 {
		t.Errorf("при ошибке валидации файлы не пишутся: %v", files)
	}
}

func TestUploadRevision_UnknownProgram(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.revisions.Upload(context.Background(), UploadRevisionParams{
		ProgramID: "00000000-0000-0000-0000-000000000000",
		File:      textFile("a.nc", "G0\n"),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получено: %v", err)
	}
}

// TestUploadRevision_SetCurrentFails — ошибка переключения текущей ревизии
// откатывает вставку ревизии и удаляет файл.
func TestUploadRevision_SetCurrentFails(t *testing.T) {
	env := newTestEnv(t)
	res := env.createProgram(t, "Вал", "G0\n")
	injected := errors.New("serialization failure")
	env.store.FailSetCurrentRevision = injected

	_, err := env.revisions.Upload(context.Background(), UploadRevisionParams{
		ProgramID: res.Program.ID,
		File:      textFile("a.nc", "G1\n"),
	})
	if !errors.Is(err, injected) {
		t.Fatalf("ожидалась исходная ошибка, получено: %v", err)
	}
	if n := env.store.RevisionCount(); n != 1 {
		t.Errorf("ревизий %d, ожидалась 1", n)
	}
	if files := env.storedFiles(t); len(files) != 1 {
		t.Errorf("файл-сирота не удалён: %v", files)
	}
}

// TestUploadRevision_InheritsProgramState — новая ревизия получает состояние программы.
func TestUploadRevision_InheritsProgramState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.createProgram(t, "Вал", "G0\n")

	if _, err := env.workflow.Transition(ctx, TransitionParams{
		ProgramID: res.Program.ID, RevisionID: res.Revision.ID, Action: "submit",
	}); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	rev := env.upload(t, res.Program.ID, "G1\n")
	if rev.State != workflow.StateReview {
		t.Errorf("состояние новой ревизии %s, ожидалось review", rev.State)
	}
}

// TestUploadRevision_BinaryContent — не-UTF-8 содержимое хранится без текста.
func TestUploadRevision_BinaryContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.createProgram(t, "Вал", "G0\n")

	rev, err := env.revisions.Upload(ctx, UploadRevisionParams{
		ProgramID: res.Program.ID,
		File:      binaryFile("dump.zzz", []byte{0xff, 0xfe, 0x00, 0x01}),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	content, err := env.revisions.Content(ctx, rev)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if content != nil {
		t.Errorf("для бинарной ревизии ожидался nil, получено %q", *content)
	}
	if rev.ContentType != "application/octet-stream" {
		t.Errorf("content type %q", rev.ContentType)
	}
	if res.Revision.ContentType != "text/plain; charset=utf-8" {
		t.Errorf("content type текстовой ревизии %q", res.Revision.ContentType)
	}
}

// TestOpenRevision — скачанные байты совпадают с загруженными, checksum сходится.
func TestOpenRevision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	body := "O1001\nT1 M6\nG0 X10 Z5\nM30\n"
	res := env.createProgram(t, "Вал", body)
	second := env.upload(t, res.Program.ID, "G1\n")

	rev, f, err := env.revisions.Open(ctx, res.Program.ID, res.Revision.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		t.Fatalf("чтение: %v", err)
	}
	if string(data) != body || sha256Hex(string(data)) != rev.Checksum {
		t.Errorf("содержимое файла не совпадает с загруженным")
	}

	cur, f, err := env.revisions.OpenCurrent(ctx, res.Program.ID)
	if err != nil {
		t.Fatalf("OpenCurrent: %v", err)
	}
	f.Close()
	if cur.ID != second.ID {
		t.Errorf("текущая ревизия %s, ожидалась %s", cur.ID, second.ID)
	}

	other := env.createProgram(t, "Фланец", "G2\n")
	if _, _, err := env.revisions.Open(ctx, other.Program.ID, res.Revision.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("ревизия чужой программы: ожидалась ErrNotFound, получено: %v", err)
	}
	if _, err := env.revisions.Get(ctx, other.Program.ID, res.Revision.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get чужой ревизии: ожидалась ErrNotFound, получено: %v", err)
	}

	if err := env.files.DeleteFile(second.StoragePath); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if _, _, err := env.revisions.OpenCurrent(ctx, res.Program.ID); !errors.Is(err, ErrStorage) {
		t.Errorf("отсутствующий файл: ожидалась ErrStorage, получено: %v", err)
	}
}

// TestUploadRevision_Concurrent — параллельные загрузки получают разные версии.
func TestUploadRevision_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.createProgram(t, "Вал", "G0\n")

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.revisions.Upload(ctx, UploadRevisionParams{
				ProgramID: res.Program.ID,
				File:      textFile("a.nc", fmt.Sprintf("G0 X%d\n", i)),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}

	list, err := env.revisions.List(ctx, res.Program.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	seen := make(map[string]bool)
	for _, rev := range list {
		v := rev.Version.String()
		if seen[v] {
			t.Errorf("версия %s выдана дважды", v)
		}
		seen[v] = true
	}
	if len(seen) != n+1 || !seen["1.0.10"] {
		t.Errorf("версий %d, ожидалось %d с последней 1.0.10", len(seen), n+1)
	}
}

func boolPtr(b bool) *bool { return &b }
