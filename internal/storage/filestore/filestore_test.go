package filestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNew_CreatesDirectory проверяет создание директории данных.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	fs, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	if fs.DataDir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, fs.DataDir())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestSaveFile проверяет сохранение файла с подсчётом SHA-256.
func TestSaveFile(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	fs.now = func() time.Time { return time.Date(2026, 2, 21, 15, 4, 5, 0, time.UTC) }

	content := []byte("%\nO1001 (FACING)\nG90 G54\nM30\n%\n")

	result, err := fs.SaveFile(bytes.NewReader(content), "prog-1", "O1001.nc", "ivanov", 0)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}

	expectedHash := sha256.Sum256(content)
	if result.Checksum != hex.EncodeToString(expectedHash[:]) {
		t.Errorf("checksum: получено %s", result.Checksum)
	}

	if !strings.HasPrefix(result.StoragePath, "prog-1/O1001_ivanov_20260221150405_") {
		t.Errorf("неожиданный путь: %s", result.StoragePath)
	}
	if !strings.HasSuffix(result.StoragePath, ".nc") {
		t.Errorf("имя файла должно сохранять расширение: %s", result.StoragePath)
	}

	data, err := os.ReadFile(result.FullPath)
	if err != nil {
		t.Fatalf("ошибка чтения файла: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}

	if _, err := os.Stat(result.FullPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("временный файл не удалён после сохранения")
	}
}

// TestSaveFile_Empty проверяет, что пустой файл принимается.
func TestSaveFile_Empty(t *testing.T) {
	fs, _ := New(t.TempDir())

	result, err := fs.SaveFile(bytes.NewReader(nil), "p", "empty.nc", "u", 10)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	if result.Size != 0 {
		t.Errorf("размер: ожидалось 0, получено %d", result.Size)
	}
	emptyHash := sha256.Sum256(nil)
	if result.Checksum != hex.EncodeToString(emptyHash[:]) {
		t.Errorf("checksum пустого файла: %s", result.Checksum)
	}
}

// TestSaveFile_TooLarge проверяет отказ при превышении лимита и удаление temp файла.
func TestSaveFile_TooLarge(t *testing.T) {
	dataDir := t.TempDir()
	fs, _ := New(dataDir)

	_, err := fs.SaveFile(bytes.NewReader(make([]byte, 11)), "p", "big.nc", "u", 10)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("ожидалась ErrTooLarge, получено %v", err)
	}

	entries, _ := os.ReadDir(filepath.Join(dataDir, "p"))
	if len(entries) != 0 {
		t.Errorf("после отказа в директории остались файлы: %d", len(entries))
	}

	// Ровно лимит — допустимо
	if _, err := fs.SaveFile(bytes.NewReader(make([]byte, 10)), "p", "ok.nc", "u", 10); err != nil {
		t.Errorf("файл размером ровно в лимит: %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestSaveFile_ReaderError(t *testing.T) {
	dataDir := t.TempDir()
	fs, _ := New(dataDir)

	if _, err := fs.SaveFile(failingReader{}, "p", "x.nc", "u", 0); err == nil {
		t.Fatal("ожидалась ошибка чтения")
	}
	entries, _ := os.ReadDir(filepath.Join(dataDir, "p"))
	if len(entries) != 0 {
		t.Errorf("temp файл не удалён: %d записей", len(entries))
	}
}

func TestSaveFile_InvalidDir(t *testing.T) {
	fs, _ := New(t.TempDir())

	for _, dir := range []string{"", "../escape", "/abs"} {
		if _, err := fs.SaveFile(bytes.NewReader(nil), dir, "x.nc", "u", 0); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("dir %q: ожидалась ErrInvalidPath, получено %v", dir, err)
		}
	}
}

func TestReadText(t *testing.T) {
	fs, _ := New(t.TempDir())

	text, _ := fs.SaveFile(strings.NewReader("G01 X10 Y20 ; подача"), "p", "a.nc", "u", 0)
	got, err := fs.ReadText(text.StoragePath)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if got == nil || *got != "G01 X10 Y20 ; подача" {
		t.Errorf("ReadText = %v", got)
	}

	bin, _ := fs.SaveFile(bytes.NewReader([]byte{0xff, 0xfe, 0x00, 0x81}), "p", "b.bin", "u", 0)
	got, err = fs.ReadText(bin.StoragePath)
	if err != nil {
		t.Fatalf("ReadText(binary): %v", err)
	}
	if got != nil {
		t.Errorf("для не-UTF-8 ожидался nil, получено %q", *got)
	}

	if _, err := fs.ReadText("p/missing.nc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

func TestOpenAndDelete(t *testing.T) {
	fs, _ := New(t.TempDir())

	res, _ := fs.SaveFile(strings.NewReader("data"), "p", "f.nc", "u", 0)
	if _, err := os.Stat(res.FullPath); err != nil {
		t.Fatalf("файл должен существовать: %v", err)
	}

	f, err := fs.Open(res.StoragePath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "data" {
		t.Errorf("содержимое: %q", data)
	}

	if err := fs.DeleteFile(res.StoragePath); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if _, err := os.Stat(res.FullPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("файл должен быть удалён: %v", err)
	}
	// Повторное удаление — без ошибки
	if err := fs.DeleteFile(res.StoragePath); err != nil {
		t.Errorf("повторный DeleteFile: %v", err)
	}
	if _, err := fs.Open(res.StoragePath); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open удалённого файла: %v", err)
	}
}

func TestRemoveDir(t *testing.T) {
	dataDir := t.TempDir()
	fs, _ := New(dataDir)

	res, _ := fs.SaveFile(strings.NewReader("x"), "p", "f.nc", "u", 0)

	// Непустая директория остаётся
	if err := fs.RemoveDir("p"); err != nil {
		t.Fatalf("RemoveDir(непустая): %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "p")); err != nil {
		t.Fatal("непустая директория не должна удаляться")
	}

	_ = fs.DeleteFile(res.StoragePath)
	if err := fs.RemoveDir("p"); err != nil {
		t.Fatalf("RemoveDir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "p")); !os.IsNotExist(err) {
		t.Error("пустая директория должна быть удалена")
	}
	if err := fs.RemoveDir("p"); err != nil {
		t.Errorf("RemoveDir(отсутствующая): %v", err)
	}
}

func TestComputeChecksum(t *testing.T) {
	fs, _ := New(t.TempDir())

	res, _ := fs.SaveFile(strings.NewReader("checksum me"), "p", "c.nc", "u", 0)
	sum, err := fs.ComputeChecksum(res.StoragePath)
	if err != nil {
		t.Fatalf("ComputeChecksum: %v", err)
	}
	if sum != res.Checksum {
		t.Errorf("checksum %s != %s", sum, res.Checksum)
	}
}

func TestSizeAndWalk(t *testing.T) {
	fs, _ := New(t.TempDir())

	a, _ := fs.SaveFile(strings.NewReader("12345"), "p1", "a.nc", "u", 0)
	b, _ := fs.SaveFile(strings.NewReader(""), "p2", "b.nc", "u", 0)

	size, err := fs.Size(a.StoragePath)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 5 {
		t.Errorf("размер %d, ожидалось 5", size)
	}
	if _, err := fs.Size("p1/none.nc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено: %v", err)
	}

	seen := map[string]int64{}
	err = fs.Walk(func(storagePath string, size int64) error {
		seen[storagePath] = size
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("обойдено %d файлов, ожидалось 2: %v", len(seen), seen)
	}
	if seen[a.StoragePath] != 5 {
		t.Errorf("размер %s = %d, ожидалось 5", a.StoragePath, seen[a.StoragePath])
	}
	if sz, ok := seen[b.StoragePath]; !ok || sz != 0 {
		t.Errorf("файл %s не найден или неверный размер %d", b.StoragePath, sz)
	}
}

func TestGenerateStorageName(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		filename, user string
		prefix, suffix string
	}{
		{"O1001.nc", "ivanov", "O1001_ivanov_20260102030405_", ".nc"},
		{"Торцовка.NC", "петров", "Торцовка_петров_20260102030405_", ".NC"},
		{"../../etc/passwd", "u", "passwd_u_", ""},
		{"noext", "", "noext_file_", ""},
		{"a b*c?.h", "x@y", "abc_xy_", ".h"},
	}

	for _, tt := range tests {
		name := generateStorageName(tt.filename, tt.user, now)
		if !strings.HasPrefix(name, tt.prefix) {
			t.Errorf("generateStorageName(%q, %q) = %q, ожидался префикс %q", tt.filename, tt.user, name, tt.prefix)
		}
		if tt.suffix != "" && !strings.HasSuffix(name, tt.suffix) {
			t.Errorf("generateStorageName(%q) = %q, ожидался суффикс %q", tt.filename, name, tt.suffix)
		}
		if strings.ContainsAny(name, "/\\") {
			t.Errorf("имя %q содержит разделитель пути", name)
		}
	}
}

func TestCheckReady(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	fs, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	if status, msg := fs.CheckReady(); status != "ok" {
		t.Errorf("статус %q (%s), ожидался ok", status, msg)
	}
	if _, err := os.Stat(filepath.Join(dir, healthCheckFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("файл проверки не удалён: %v", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if status, _ := fs.CheckReady(); status != "fail" {
		t.Errorf("статус %q без директории, ожидался fail", status)
	}
}
