// Package build produces the front-end artifact. Stack outputs are
// injected as build-time configuration before the package manager
// build runs, so the artifact is compiled against the real endpoints.
package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// EnvFileName is the build-time configuration file written into the
// front-end directory before each build
const EnvFileName = ".env.production"

// Builder runs the front-end build inside a source directory
type Builder struct {
	dir         string
	command     string
	artifactDir string
}

// New creates a Builder. command runs via the shell inside dir;
// artifactDir is the expected build output, relative to dir.
func New(dir, command, artifactDir string) *Builder {
	return &Builder{dir: dir, command: command, artifactDir: artifactDir}
}

// WriteEnv writes the build-time configuration file from the given
// key/value pairs, sorted for stable output.
func (b *Builder) WriteEnv(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%s\n", k, values[k])
	}

	path := filepath.Join(b.dir, EnvFileName)
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write build config %s: %w", path, err)
	}
	return nil
}

// Build runs the build command and returns the absolute artifact
// directory. The command inherits the process environment; its output
// streams through to the operator.
func (b *Builder) Build(ctx context.Context) (string, error) {
	if _, err := os.Stat(b.dir); err != nil {
		return "", fmt.Errorf("front-end directory %q not found: %w", b.dir, err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", b.command)
	cmd.Dir = b.dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("front-end build %q failed: %w", b.command, err)
	}

	artifact := filepath.Join(b.dir, b.artifactDir)
	entry := filepath.Join(artifact, "index.html")
	if _, err := os.Stat(entry); err != nil {
		return "", fmt.Errorf("build produced no entry document at %s", entry)
	}

	return artifact, nil
}
