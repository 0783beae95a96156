// Package sandbox confines the file tools to a single project root.
// Path validation is delegated to the agentsdk security sandbox, which
// resolves symlinks and relative segments before the allowlist check.
package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/cexll/agentsdk-go/pkg/security"
)

var (
	// ErrNotAllowed means the candidate path escapes the sandbox root.
	ErrNotAllowed = errors.New("sandbox: path not allowed")
	// ErrNotFound means the file does not exist.
	ErrNotFound = errors.New("sandbox: file not found")
	// ErrNotRegular means the path exists but is not a regular file.
	ErrNotRegular = errors.New("sandbox: not a regular file")
	// ErrTooLarge means the file exceeds the configured size limit.
	ErrTooLarge = errors.New("sandbox: file too large")
	// ErrBinary means the file content is not decodable as UTF-8 text.
	ErrBinary = errors.New("sandbox: binary content")
)

// TooLargeError reports the actual size of a file rejected by the limit.
// It unwraps to ErrTooLarge.
type TooLargeError struct {
	Size int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("sandbox: file too large: %d bytes", e.Size)
}

func (e *TooLargeError) Unwrap() error { return ErrTooLarge }

// Sandbox validates candidate paths against a fixed root and performs the
// guarded read/write operations shared by the file tools.
type Sandbox struct {
	root     string
	guard    *security.Sandbox
	maxBytes int64
}

// New creates a sandbox rooted at root with the given file size limit in bytes.
func New(root string, maxBytes int64) *Sandbox {
	resolved := resolveRoot(root)
	return &Sandbox{
		root:     resolved,
		guard:    security.NewSandbox(resolved),
		maxBytes: maxBytes,
	}
}

// Root returns the resolved confinement root.
func (s *Sandbox) Root() string { return s.root }

// MaxBytes returns the configured file size limit.
func (s *Sandbox) MaxBytes() int64 { return s.maxBytes }

// Resolve joins raw against the root when relative, cleans it, and validates
// that the result stays inside the root. No I/O happens on failure.
func (s *Sandbox) Resolve(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotAllowed)
	}
	candidate := trimmed
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(s.root, candidate)
	}
	candidate = filepath.Clean(candidate)
	if err := s.guard.ValidatePath(candidate); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotAllowed, trimmed)
	}
	return candidate, nil
}

// ReadFile resolves raw and returns the decoded text content. The size limit
// is enforced from file metadata before any content is read.
func (s *Sandbox) ReadFile(raw string) (string, error) {
	path, err := s.Resolve(raw)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, raw)
		}
		return "", fmt.Errorf("stat %s: %w", raw, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotRegular, raw)
	}
	if s.maxBytes > 0 && info.Size() > s.maxBytes {
		return "", &TooLargeError{Size: info.Size()}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", raw, err)
	}
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s", ErrBinary, raw)
	}
	return string(data), nil
}

// WriteFile resolves raw, creates missing parent directories, overwrites any
// existing content, and reports the written byte size.
func (s *Sandbox) WriteFile(raw, content string) (int64, error) {
	path, err := s.Resolve(raw)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("ensure directory: %w", err)
	}
	data := []byte(content)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", raw, err)
	}
	return int64(len(data)), nil
}

func resolveRoot(root string) string {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Clean(root)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
