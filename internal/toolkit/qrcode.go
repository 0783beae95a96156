package toolkit

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/ergon73/langchain-cli-multi-agent/internal/sandbox"
)

const qrImageSize = 256

// QRCodeTool renders arbitrary text or URLs as PNG QR codes inside the
// project's qr_codes directory.
type QRCodeTool struct {
	box   *sandbox.Sandbox
	qrDir string
	log   zerolog.Logger
}

func NewQRCodeTool(deps Deps) *QRCodeTool {
	return &QRCodeTool{
		box:   deps.Sandbox,
		qrDir: deps.QRDir,
		log:   deps.Logger.With().Str("tool", "generate_qr_code").Logger(),
	}
}

func (t *QRCodeTool) Name() string { return "generate_qr_code" }

func (t *QRCodeTool) Description() string {
	return "Generate a QR code image (PNG) for a URL or text and save it under the qr_codes directory."
}

func (t *QRCodeTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"data": map[string]interface{}{
				"type":        "string",
				"description": "URL or text to encode",
			},
			"filename": map[string]interface{}{
				"type":        "string",
				"description": "Optional output file name, .png is appended when missing",
			},
		},
		Required: []string{"data"},
	}
}

func (t *QRCodeTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	data, err := stringParam(params, "data")
	if err != nil {
		return failure("Ошибка при создании QR-кода: %v", err)
	}
	filename := deriveQRFilename(data, optionalStringParam(params, "filename"))

	target, err := t.box.Resolve(filepath.Join(t.qrDir, filename))
	if err != nil {
		t.log.Error().Str("filename", filename).Msg("path escapes sandbox")
		return failure("Ошибка при создании QR-кода: недопустимое имя файла")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.log.Error().Err(err).Msg("ensure qr directory")
		return failure("Ошибка при создании QR-кода: %v", err)
	}
	if err := qrcode.WriteFile(data, qrcode.Medium, qrImageSize, target); err != nil {
		t.log.Error().Err(err).Msg("qr encode failed")
		return failure("Ошибка при создании QR-кода: %v", err)
	}

	t.log.Info().Str("file", filename).Msg("qr code written")
	return success(fmt.Sprintf("🎨 QR-код успешно создан.\nФайл: %s/%s", t.qrDir, filename))
}

// deriveQRFilename picks the output name: the explicit name when given,
// otherwise one derived from the encoded data. URLs produce a name from the
// host, plain text from its first runes.
func deriveQRFilename(data, explicit string) string {
	name := strings.TrimSpace(explicit)
	if name == "" {
		if host := urlHost(data); host != "" {
			name = sanitizeName(host) + "_qr_code"
		} else {
			runes := []rune(strings.TrimSpace(data))
			if len(runes) > 20 {
				runes = runes[:20]
			}
			name = sanitizeName(string(runes)) + "_qr_code"
		}
	}
	if !strings.HasSuffix(strings.ToLower(name), ".png") {
		name += ".png"
	}
	return sanitizeFilename(name)
}

func urlHost(data string) string {
	trimmed := strings.TrimSpace(data)
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

// sanitizeName replaces everything but letters, digits, '_' and '-' with
// underscores. Unicode letters are kept so Cyrillic text stays readable.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// sanitizeFilename is sanitizeName plus dots, so the extension survives.
func sanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
