package typeset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Fixed working-directory file names other tooling depends on.
const (
	SourceFile   = "content.md"
	TemplateFile = "template.tex"
	ArtifactFile = "final.pdf"
)

// Renderer abstracts the external typesetting step so tests and alternative
// engines can swap in without changing stage orchestration.
//
// Execute runs inside workDir where content.md and the template bundle are
// already in place, and is expected to produce final.pdf. The exit code is the
// engine's raw exit status (-1 when the process could not start); output is
// combined stdout/stderr. err is non-nil for any nonzero exit so callers can
// propagate, but the exit code must be recorded verbatim either way.
type Renderer interface {
	Execute(ctx context.Context, workDir string) (exitCode int, output string, err error)
}

// PandocRenderer invokes pandoc with a fixed argument set: the bundle's
// template, a fixed PDF engine, explicit output path. No retry is performed on
// failure; a nonzero exit is recorded and surfaced to the caller.
type PandocRenderer struct {
	// Binary is the pandoc executable (default "pandoc").
	Binary string
	// Engine is the --pdf-engine value (default "xelatex").
	Engine string
	// Timeout bounds one invocation; 0 means unbounded and a hung engine
	// blocks the build indefinitely.
	Timeout time.Duration
}

func (p *PandocRenderer) Execute(ctx context.Context, workDir string) (int, string, error) {
	binary := p.Binary
	if binary == "" {
		binary = "pandoc"
	}
	engine := p.Engine
	if engine == "" {
		engine = "xelatex"
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	if _, err := os.Stat(filepath.Join(workDir, TemplateFile)); err != nil {
		return -1, "", fmt.Errorf("template missing in %s: %w", workDir, err)
	}

	cmd := exec.CommandContext(ctx, binary,
		SourceFile,
		"--template="+TemplateFile,
		"--pdf-engine="+engine,
		"-o", ArtifactFile,
	)
	cmd.Dir = workDir
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	slog.Debug("Invoking typesetting engine", "binary", binary, "engine", engine, "dir", workDir)
	err := cmd.Run()
	output := combined.String()

	if err == nil {
		return 0, output, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		return code, output, fmt.Errorf("typesetting engine exited %d: %w", code, err)
	}
	// Process never started (binary missing, context deadline before start).
	return -1, output, fmt.Errorf("start typesetting engine %s: %w", binary, err)
}

// NoopRenderer writes an empty artifact and exits 0; useful in tests and when
// only document assembly is wanted.
type NoopRenderer struct{}

func (NoopRenderer) Execute(_ context.Context, workDir string) (int, string, error) {
	if err := os.WriteFile(filepath.Join(workDir, ArtifactFile), []byte("%PDF-1.4\n"), 0o644); err != nil {
		return -1, "", err
	}
	return 0, "", nil
}
