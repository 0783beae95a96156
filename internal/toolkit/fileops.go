package toolkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/rs/zerolog"

	"github.com/ergon73/langchain-cli-multi-agent/internal/sandbox"
)

// FileReadTool returns the text content of a file inside the sandbox root.
type FileReadTool struct {
	box *sandbox.Sandbox
	log zerolog.Logger
}

func NewFileReadTool(deps Deps) *FileReadTool {
	return &FileReadTool{
		box: deps.Sandbox,
		log: deps.Logger.With().Str("tool", "file_read").Logger(),
	}
}

func (t *FileReadTool) Name() string { return "file_read" }

func (t *FileReadTool) Description() string {
	return "Read the content of a text file. The path is relative to the project root; paths outside the root are rejected."
}

func (t *FileReadTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Relative path to the file from the project root",
			},
		},
		Required: []string{"file_path"},
	}
}

func (t *FileReadTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	filePath, err := stringParam(params, "file_path")
	if err != nil {
		return failure("Ошибка при чтении файла: %v", err)
	}

	t.log.Info().Str("path", filePath).Msg("reading file")

	content, err := t.box.ReadFile(filePath)
	if err != nil {
		return t.readFailure(filePath, err)
	}
	return success(fmt.Sprintf("📁 Содержимое файла '%s':\n\n%s", filePath, content))
}

func (t *FileReadTool) readFailure(filePath string, err error) (*tool.ToolResult, error) {
	switch {
	case errors.Is(err, sandbox.ErrNotAllowed):
		t.log.Error().Str("path", filePath).Msg("path escapes sandbox")
		return failure("Недопустимый путь к файлу")
	case errors.Is(err, sandbox.ErrNotFound):
		t.log.Warn().Str("path", filePath).Msg("file not found")
		return failure("Файл '%s' не найден", filePath)
	case errors.Is(err, sandbox.ErrNotRegular):
		t.log.Warn().Str("path", filePath).Msg("not a regular file")
		return failure("'%s' не является файлом", filePath)
	case errors.Is(err, sandbox.ErrTooLarge):
		t.log.Warn().Str("path", filePath).Msg("file too large")
		var tooLarge *sandbox.TooLargeError
		size := t.box.MaxBytes()
		if errors.As(err, &tooLarge) {
			size = tooLarge.Size
		}
		return failure("Файл слишком большой (%.2f MB). Максимальный размер: %d MB",
			float64(size)/1024/1024, t.box.MaxBytes()/1024/1024)
	case errors.Is(err, sandbox.ErrBinary):
		t.log.Warn().Str("path", filePath).Msg("binary content")
		return failure("Файл содержит не текстовые данные")
	default:
		t.log.Error().Err(err).Str("path", filePath).Msg("read failed")
		return failure("Ошибка при чтении файла: %v", err)
	}
}

// FileWriteTool writes text content to a file inside the sandbox root,
// creating parent directories as needed.
type FileWriteTool struct {
	box *sandbox.Sandbox
	log zerolog.Logger
}

func NewFileWriteTool(deps Deps) *FileWriteTool {
	return &FileWriteTool{
		box: deps.Sandbox,
		log: deps.Logger.With().Str("tool", "file_write").Logger(),
	}
}

func (t *FileWriteTool) Name() string { return "file_write" }

func (t *FileWriteTool) Description() string {
	return "Write content to a file. The path is relative to the project root; existing content is overwritten and missing directories are created."
}

func (t *FileWriteTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"file_path": map[string]interface{}{
				"type":        "string",
				"description": "Relative path to the file from the project root",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to write",
			},
		},
		Required: []string{"file_path", "content"},
	}
}

func (t *FileWriteTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	filePath, err := stringParam(params, "file_path")
	if err != nil {
		return failure("Ошибка при записи файла: %v", err)
	}
	content, err := rawStringParam(params, "content")
	if err != nil {
		return failure("Ошибка при записи файла: %v", err)
	}

	t.log.Info().Str("path", filePath).Int("bytes", len(content)).Msg("writing file")

	size, err := t.box.WriteFile(filePath, content)
	if err != nil {
		if errors.Is(err, sandbox.ErrNotAllowed) {
			t.log.Error().Str("path", filePath).Msg("path escapes sandbox")
			return failure("Недопустимый путь к файлу")
		}
		t.log.Error().Err(err).Str("path", filePath).Msg("write failed")
		return failure("Ошибка при записи файла: %v", err)
	}
	return success(fmt.Sprintf("✅ Файл '%s' успешно создан.\nРазмер: %d байт", filePath, size))
}
