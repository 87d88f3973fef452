// Package typeset runs the document build pipeline: working-directory
// preparation, QR generation, header assembly, external rendering, and
// artifact version rotation.
package typeset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/docpress/internal/assets"
	"git.home.luguber.info/inful/docpress/internal/header"
	"git.home.luguber.info/inful/docpress/internal/layouts"
	"git.home.luguber.info/inful/docpress/internal/metrics"
	"git.home.luguber.info/inful/docpress/internal/model"
	"git.home.luguber.info/inful/docpress/internal/qrcode"
)

// Input carries one build's records, preloaded by the caller.
type Input struct {
	Instance    *model.Instance
	ContentType *model.ContentType
	Layout      *model.Layout
}

// Pipeline executes typeset runs. Construct with NewPipeline; safe for
// concurrent use (builds of the same instance serialize internally).
type Pipeline struct {
	uploadsDir string
	bundles    *layouts.Bundles
	resolver   assets.URLResolver
	renderer   Renderer
	recorder   metrics.Recorder
	locks      *instanceLocks
}

// NewPipeline wires a pipeline. renderer may be nil (defaults to
// PandocRenderer); recorder may be nil (defaults to NoopRecorder).
func NewPipeline(uploadsDir string, bundles *layouts.Bundles, resolver assets.URLResolver, renderer Renderer, recorder metrics.Recorder) *Pipeline {
	if renderer == nil {
		renderer = &PandocRenderer{}
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Pipeline{
		uploadsDir: uploadsDir,
		bundles:    bundles,
		resolver:   resolver,
		renderer:   renderer,
		recorder:   recorder,
		locks:      newInstanceLocks(),
	}
}

// WorkDirFor returns the per-instance working directory for a sequence code.
// The path is derived once here and threaded through every stage.
func (p *Pipeline) WorkDirFor(code string) string {
	return filepath.Join(p.uploadsDir, "contents", code)
}

// buildState carries mutable state across stages of one run.
type buildState struct {
	in      Input
	workDir string
	qrPath  string
	report  *BuildReport

	// mu guards report map writes from the concurrent prepare/qrcode stages.
	mu sync.Mutex
}

// Build executes one typeset run and always returns a report; err is non-nil
// when a stage failed or the renderer exited nonzero. The report's ExitCode is
// the renderer's raw status and must be recorded by the caller regardless of err.
//
// History rotation is detached: it only touches the history/ subdirectory and
// its completion is not awaited, so callers must not assume rotation has
// finished when Build returns.
func (p *Pipeline) Build(ctx context.Context, in Input) (*BuildReport, error) {
	unlock := p.locks.acquire(in.Instance.ID)
	defer unlock()

	workDir := p.WorkDirFor(in.Instance.InstanceCode)
	bs := &buildState{
		in:      in,
		workDir: workDir,
		report: &BuildReport{
			InstanceCode:   in.Instance.InstanceCode,
			WorkDir:        workDir,
			ExitCode:       -1,
			StartTime:      time.Now(),
			StageDurations: make(map[string]time.Duration),
		},
	}
	defer func() {
		bs.report.EndTime = time.Now()
		p.recorder.ObserveBuildDuration(bs.report.Duration())
	}()

	// Rotate the previous artifact into history/ without delaying the build.
	go func(dir string) {
		if err := RotateArtifact(dir); err != nil {
			slog.Error("Artifact rotation failed", "dir", dir, "error", err)
		}
	}(workDir)

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return bs.report, p.failStage(bs, StagePrepare, fmt.Errorf("create working dir %s: %w", workDir, err))
	}

	// Bundle copy and QR generation have no data dependency; run them
	// concurrently and join before assembly.
	var wg sync.WaitGroup
	var prepErr, qrErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		prepErr = runStage(ctx, bs, StagePrepare, p.stagePrepare)
	}()
	go func() {
		defer wg.Done()
		qrErr = runStage(ctx, bs, StageQRCode, p.stageQRCode)
	}()
	wg.Wait()
	p.observeStage(bs, StagePrepare)
	p.observeStage(bs, StageQRCode)

	if prepErr != nil {
		return bs.report, p.recordStageErr(bs, StagePrepare, prepErr)
	}
	if qrErr != nil {
		return bs.report, p.recordStageErr(bs, StageQRCode, qrErr)
	}
	p.recorder.IncStageResult(StagePrepare, metrics.ResultSuccess)
	p.recorder.IncStageResult(StageQRCode, metrics.ResultSuccess)

	err := runStage(ctx, bs, StageAssemble, p.stageAssemble)
	p.observeStage(bs, StageAssemble)
	if err != nil {
		return bs.report, p.recordStageErr(bs, StageAssemble, err)
	}
	p.recorder.IncStageResult(StageAssemble, metrics.ResultSuccess)

	err = runStage(ctx, bs, StageRender, p.stageRender)
	p.observeStage(bs, StageRender)
	if err != nil {
		return bs.report, p.recordStageErr(bs, StageRender, err)
	}
	p.recorder.IncStageResult(StageRender, metrics.ResultSuccess)

	bs.report.DocPath = filepath.Join(workDir, ArtifactFile)
	return bs.report, nil
}

func (p *Pipeline) observeStage(bs *buildState, stage string) {
	bs.mu.Lock()
	d, ok := bs.report.StageDurations[stage]
	bs.mu.Unlock()
	if ok {
		p.recorder.ObserveStageDuration(stage, d)
	}
}

func (p *Pipeline) failStage(bs *buildState, stage string, err error) error {
	return p.recordStageErr(bs, stage, newFatalStageError(stage, err))
}

func (p *Pipeline) recordStageErr(bs *buildState, stage string, err error) error {
	var result metrics.ResultLabel = metrics.ResultFatal
	if se, ok := err.(*StageError); ok && se.Kind == StageErrorCanceled {
		result = metrics.ResultCanceled
	}
	p.recorder.IncStageResult(stage, result)
	return err
}

// stagePrepare copies the layout's template bundle into the working directory.
func (p *Pipeline) stagePrepare(_ context.Context, bs *buildState) error {
	if err := p.bundles.CopyInto(bs.in.Layout.Slug, bs.workDir); err != nil {
		return fmt.Errorf("copy layout bundle: %w", err)
	}
	return nil
}

// stageQRCode encodes the instance id into workdir/qr.png.
func (p *Pipeline) stageQRCode(_ context.Context, bs *buildState) error {
	path, err := qrcode.Write(bs.in.Instance.ID.String(), bs.workDir)
	if err != nil {
		return err
	}
	bs.mu.Lock()
	bs.qrPath = path
	bs.mu.Unlock()
	return nil
}

// stageAssemble builds the metadata header and writes the concatenated source
// document to workdir/content.md.
func (p *Pipeline) stageAssemble(_ context.Context, bs *buildState) error {
	block := header.Assemble(header.Input{
		Fields:     bs.in.ContentType.Fields,
		Serialized: bs.in.Instance.Serialized,
		Assets:     bs.in.Layout.Assets,
		QRPath:     bs.qrPath,
		WorkDir:    bs.workDir,
	}, p.resolver)

	doc := header.Document(block, bs.in.Instance.RawBody)
	path := filepath.Join(bs.workDir, SourceFile)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write source document %s: %w", path, err)
	}
	return nil
}

// stageRender invokes the external engine and records its raw exit status.
func (p *Pipeline) stageRender(ctx context.Context, bs *buildState) error {
	code, output, err := p.renderer.Execute(ctx, bs.workDir)
	bs.report.ExitCode = code
	bs.report.Output = output
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}
