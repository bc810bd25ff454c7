package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
}

// EnvProvider resolves "secretref:env:VAR" from the process environment.
type EnvProvider struct{}

// NewEnvProvider creates an environment-backed provider.
func NewEnvProvider() *EnvProvider { return &EnvProvider{} }

// Name returns "env".
func (*EnvProvider) Name() string { return "env" }

// Resolve looks the ref up as an environment variable. A variable that is
// unset errors; one set to the empty string resolves to "".
func (*EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	value, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("secret: environment variable %s is not set", ref)
	}
	return value, nil
}

// FileProvider resolves "secretref:file:/path" by reading the file. Intended
// for container secret mounts.
type FileProvider struct{}

// NewFileProvider creates a file-backed provider.
func NewFileProvider() *FileProvider { return &FileProvider{} }

// Name returns "file".
func (*FileProvider) Name() string { return "file" }

// Resolve reads the file at ref. Trailing newlines are stripped since secret
// files commonly end with one.
func (*FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("secret: failed to read secret file: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

var (
	_ Provider = (*EnvProvider)(nil)
	_ Provider = (*FileProvider)(nil)
)
