// Package toolkit implements the assistant's eight tool adapters. Each
// adapter wraps one or two external HTTP APIs (or local state) behind the
// agentsdk tool.Tool contract and always answers with a localized,
// user-facing string: failures become "❌ …" payloads, never errors
// propagated to the runtime.
package toolkit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cexll/agentsdk-go/pkg/tool"
	"github.com/rs/zerolog"

	"github.com/ergon73/langchain-cli-multi-agent/internal/config"
	"github.com/ergon73/langchain-cli-multi-agent/internal/memstore"
	"github.com/ergon73/langchain-cli-multi-agent/internal/sandbox"
)

// Deps bundles everything the adapters need injected. Tests construct it
// directly; production wiring goes through All.
type Deps struct {
	Sandbox          *sandbox.Sandbox
	Store            *memstore.Store
	Client           *http.Client
	Logger           zerolog.Logger
	MaxSearchResults int
	QRDir            string // directory name under the sandbox root
}

// All builds the full tool set from config. The returned slice is what gets
// registered with the agent runtime; the model never sees anything else.
func All(cfg *config.Config) []tool.Tool {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	deps := Deps{
		Sandbox:          sandbox.New(cfg.Agent.Workspace, cfg.Tools.MaxFileSize),
		Store:            memstore.New(filepath.Join(cfg.Agent.Workspace, cfg.Tools.MemoryFile), cfg.Tools.MemoryMaxEntries),
		Client:           &http.Client{Timeout: time.Duration(cfg.Tools.RequestTimeout) * time.Second},
		Logger:           logger,
		MaxSearchResults: cfg.Tools.MaxSearchResults,
		QRDir:            cfg.Tools.QRDir,
	}
	return FromDeps(deps)
}

// FromDeps builds the tool set from explicit dependencies.
func FromDeps(deps Deps) []tool.Tool {
	if deps.Client == nil {
		deps.Client = &http.Client{Timeout: time.Duration(config.DefaultRequestTimeout) * time.Second}
	}
	if deps.MaxSearchResults <= 0 {
		deps.MaxSearchResults = config.DefaultMaxSearchResults
	}
	if deps.QRDir == "" {
		deps.QRDir = config.DefaultQRDir
	}
	return []tool.Tool{
		NewWebSearchTool(deps),
		NewWeatherTool(deps),
		NewCryptoPriceTool(deps),
		NewFiatRateTool(deps),
		NewFileReadTool(deps),
		NewFileWriteTool(deps),
		NewMemorySaveTool(deps),
		NewQRCodeTool(deps),
	}
}

// failure renders an error payload. Adapters return these instead of Go
// errors so one bad turn never kills the conversation loop.
func failure(format string, args ...any) (*tool.ToolResult, error) {
	return &tool.ToolResult{
		Success: false,
		Output:  "❌ " + fmt.Sprintf(format, args...),
	}, nil
}

func success(output string) (*tool.ToolResult, error) {
	return &tool.ToolResult{Success: true, Output: output}, nil
}

// isTimeout distinguishes deadline expiry from other transport failures.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func stringParam(params map[string]interface{}, key string) (string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("%s is required", key)
	}
	value, err := coerceString(raw)
	if err != nil {
		return "", fmt.Errorf("%s must be a string: %w", key, err)
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s cannot be empty", key)
	}
	return value, nil
}

// rawStringParam extracts key without trimming, so the caller receives the
// value byte-for-byte. Missing, nil, and non-string values are errors.
func rawStringParam(params map[string]interface{}, key string) (string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("%s is required", key)
	}
	value, err := coerceString(raw)
	if err != nil {
		return "", fmt.Errorf("%s must be a string: %w", key, err)
	}
	return value, nil
}

func optionalStringParam(params map[string]interface{}, key string) string {
	raw, ok := params[key]
	if !ok || raw == nil {
		return ""
	}
	value, err := coerceString(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	raw, ok := params[key]
	if !ok || raw == nil {
		return fallback
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func coerceString(raw interface{}) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unexpected type %T", raw)
	}
}

// truncateRunes shortens s to at most limit visible characters, appending an
// ellipsis marker when anything was cut.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
