package toolkit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ergon73/langchain-cli-multi-agent/internal/sandbox"
)

func newFileDeps(t *testing.T, maxBytes int64) Deps {
	t.Helper()
	return Deps{
		Sandbox: sandbox.New(t.TempDir(), maxBytes),
		Logger:  zerolog.Nop(),
	}
}

func TestFileRead_Execute(t *testing.T) {
	deps := newFileDeps(t, 1024)
	content := "привет, мир\nвторая строка"
	if err := os.WriteFile(filepath.Join(deps.Sandbox.Root(), "notes.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewFileReadTool(deps).Execute(context.Background(), map[string]interface{}{"file_path": "notes.txt"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("Execute success = false, output: %s", res.Output)
	}
	want := fmt.Sprintf("📁 Содержимое файла 'notes.txt':\n\n%s", content)
	if res.Output != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
}

func TestFileRead_NotFound(t *testing.T) {
	deps := newFileDeps(t, 1024)

	res, err := NewFileReadTool(deps).Execute(context.Background(), map[string]interface{}{"file_path": "missing.txt"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Output != "❌ Файл 'missing.txt' не найден" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestFileRead_Traversal(t *testing.T) {
	deps := newFileDeps(t, 1024)

	res, err := NewFileReadTool(deps).Execute(context.Background(), map[string]interface{}{"file_path": "../../etc/passwd"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Output != "❌ Недопустимый путь к файлу" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestFileRead_Directory(t *testing.T) {
	deps := newFileDeps(t, 1024)
	if err := os.Mkdir(filepath.Join(deps.Sandbox.Root(), "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := NewFileReadTool(deps).Execute(context.Background(), map[string]interface{}{"file_path": "sub"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Output != "❌ 'sub' не является файлом" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestFileRead_TooLarge(t *testing.T) {
	deps := newFileDeps(t, 1024)
	big := strings.Repeat("x", 2048)
	if err := os.WriteFile(filepath.Join(deps.Sandbox.Root(), "big.txt"), []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewFileReadTool(deps).Execute(context.Background(), map[string]interface{}{"file_path": "big.txt"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.HasPrefix(res.Output, "❌ Файл слишком большой (0.00 MB)") {
		t.Errorf("output = %q", res.Output)
	}
	if !strings.Contains(res.Output, "Максимальный размер: 0 MB") {
		t.Errorf("limit missing from output: %q", res.Output)
	}
}

func TestFileRead_Binary(t *testing.T) {
	deps := newFileDeps(t, 1024)
	if err := os.WriteFile(filepath.Join(deps.Sandbox.Root(), "blob.bin"), []byte{0x00, 0x01, 0xFF}, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewFileReadTool(deps).Execute(context.Background(), map[string]interface{}{"file_path": "blob.bin"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Output != "❌ Файл содержит не текстовые данные" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestFileWrite_Execute(t *testing.T) {
	deps := newFileDeps(t, 1024)
	content := "строка один\nстрока два"

	res, err := NewFileWriteTool(deps).Execute(context.Background(), map[string]interface{}{
		"file_path": "out/result.txt",
		"content":   content,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("Execute success = false, output: %s", res.Output)
	}
	want := fmt.Sprintf("✅ Файл 'out/result.txt' успешно создан.\nРазмер: %d байт", len(content))
	if res.Output != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}

	written, err := os.ReadFile(filepath.Join(deps.Sandbox.Root(), "out", "result.txt"))
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(written) != content {
		t.Errorf("file content = %q, want %q", written, content)
	}
}

func TestFileWrite_PreservesWhitespace(t *testing.T) {
	deps := newFileDeps(t, 1024)
	content := "  indented line\nsecond line\n"

	res, err := NewFileWriteTool(deps).Execute(context.Background(), map[string]interface{}{
		"file_path": "raw.txt",
		"content":   content,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("Execute success = false, output: %s", res.Output)
	}

	written, err := os.ReadFile(filepath.Join(deps.Sandbox.Root(), "raw.txt"))
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(written) != content {
		t.Errorf("file content = %q, want %q", written, content)
	}

	back, err := NewFileReadTool(deps).Execute(context.Background(), map[string]interface{}{"file_path": "raw.txt"})
	if err != nil {
		t.Fatalf("read back returned error: %v", err)
	}
	if !strings.HasSuffix(back.Output, content) {
		t.Errorf("read back = %q, want suffix %q", back.Output, content)
	}
}

func TestFileWrite_EmptyContent(t *testing.T) {
	deps := newFileDeps(t, 1024)

	res, err := NewFileWriteTool(deps).Execute(context.Background(), map[string]interface{}{
		"file_path": "empty.txt",
		"content":   "",
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("Execute success = false, output: %s", res.Output)
	}
	info, err := os.Stat(filepath.Join(deps.Sandbox.Root(), "empty.txt"))
	if err != nil {
		t.Fatalf("stat written file: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("file size = %d, want 0", info.Size())
	}
}

func TestFileWrite_Traversal(t *testing.T) {
	deps := newFileDeps(t, 1024)

	res, err := NewFileWriteTool(deps).Execute(context.Background(), map[string]interface{}{
		"file_path": "../escape.txt",
		"content":   "x",
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Output != "❌ Недопустимый путь к файлу" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestFileWrite_MissingContent(t *testing.T) {
	deps := newFileDeps(t, 1024)

	for name, params := range map[string]map[string]interface{}{
		"absent": {"file_path": "a.txt"},
		"nil":    {"file_path": "a.txt", "content": nil},
	} {
		res, err := NewFileWriteTool(deps).Execute(context.Background(), params)
		if err != nil {
			t.Fatalf("%s: Execute returned error: %v", name, err)
		}
		if res.Success || !strings.HasPrefix(res.Output, "❌ Ошибка при записи файла:") {
			t.Errorf("%s: output = %q", name, res.Output)
		}
		if _, statErr := os.Stat(filepath.Join(deps.Sandbox.Root(), "a.txt")); !os.IsNotExist(statErr) {
			t.Errorf("%s: file was created despite missing content", name)
		}
	}
}
