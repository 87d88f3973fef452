package typeset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpress/internal/layouts"
	"git.home.luguber.info/inful/docpress/internal/model"
)

type testResolver struct{}

func (testResolver) Resolve(a model.Asset) (string, error) {
	return "http://assets.local/" + a.FilePath, nil
}

// exitRenderer exits with a fixed code without producing an artifact.
type exitRenderer struct {
	code   int
	called atomic.Int32
}

func (r *exitRenderer) Execute(context.Context, string) (int, string, error) {
	r.called.Add(1)
	if r.code == 0 {
		return 0, "ok", nil
	}
	return r.code, "engine blew up", fmt.Errorf("typesetting engine exited %d", r.code)
}

func testInput(t *testing.T) Input {
	t.Helper()
	ct := &model.ContentType{
		ID:     uuid.New(),
		Prefix: "OFF",
		Fields: []model.ContentTypeField{
			{Name: "name", Type: model.FieldTypeString},
			{Name: "position", Type: model.FieldTypeString},
		},
	}
	return Input{
		Instance: &model.Instance{
			ID:            uuid.New(),
			InstanceCode:  "OFF0001",
			Serialized:    map[string]string{"name": "John Doe"},
			RawBody:       "# Offer\n\nWelcome aboard.\n",
			ContentTypeID: ct.ID,
		},
		ContentType: ct,
		Layout: &model.Layout{
			ID:     uuid.New(),
			Slug:   "letterhead",
			Assets: []model.Asset{{Name: "logo", FilePath: "org/logo.png"}},
		},
	}
}

func testPipeline(t *testing.T, r Renderer) *Pipeline {
	t.Helper()
	layoutsDir := t.TempDir()
	bundleDir := filepath.Join(layoutsDir, "letterhead")
	require.NoError(t, os.MkdirAll(bundleDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundleDir, layouts.TemplateFile), []byte("\\documentclass{article}"), 0o644))

	uploads := t.TempDir()
	return NewPipeline(uploads, layouts.NewBundles(layoutsDir), testResolver{}, r, nil)
}

func TestBuildProducesWorkingDirectoryContract(t *testing.T) {
	p := testPipeline(t, NoopRenderer{})
	in := testInput(t)

	report, err := p.Build(t.Context(), in)
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.Equal(t, 0, report.ExitCode)
	assert.Equal(t, filepath.Join(report.WorkDir, ArtifactFile), report.DocPath)

	for _, f := range []string{TemplateFile, SourceFile, ArtifactFile, "qr.png"} {
		_, statErr := os.Stat(filepath.Join(report.WorkDir, f))
		assert.NoError(t, statErr, f)
	}

	src, err := os.ReadFile(filepath.Join(report.WorkDir, SourceFile))
	require.NoError(t, err)
	doc := string(src)
	assert.True(t, strings.HasPrefix(doc, "---\n"))
	assert.Contains(t, doc, "name: John Doe\n")
	assert.NotContains(t, doc, "position:")
	assert.Contains(t, doc, "qrcode: "+filepath.Join(report.WorkDir, "qr.png"))
	assert.Contains(t, doc, "path: "+report.WorkDir)
	assert.Contains(t, doc, "# Offer")
	// asset URL with the first byte stripped
	assert.Contains(t, doc, "logo: ttp://assets.local/org/logo.png")
}

func TestBuildRecordsRendererExitCodeVerbatim(t *testing.T) {
	r := &exitRenderer{code: 43}
	p := testPipeline(t, r)

	report, err := p.Build(t.Context(), testInput(t))
	require.Error(t, err)
	assert.Equal(t, 43, report.ExitCode)
	assert.Equal(t, "engine blew up", report.Output)
	assert.Empty(t, report.DocPath)
	assert.False(t, report.Succeeded())
}

func TestBuildAbortsBeforeRenderOnMissingBundle(t *testing.T) {
	r := &exitRenderer{code: 0}
	p := testPipeline(t, r)
	in := testInput(t)
	in.Layout.Slug = "no-such-bundle"

	report, err := p.Build(t.Context(), in)
	require.Error(t, err)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StagePrepare, se.Stage)
	assert.EqualValues(t, 0, r.called.Load(), "renderer must not run when preparation fails")
	assert.Equal(t, -1, report.ExitCode)
}

func TestRebuildRotatesPreviousArtifact(t *testing.T) {
	p := testPipeline(t, NoopRenderer{})
	in := testInput(t)

	_, err := p.Build(t.Context(), in)
	require.NoError(t, err)

	_, err = p.Build(t.Context(), in)
	require.NoError(t, err)

	// Rotation is detached; it only touches history/ and is not awaited.
	histFile := filepath.Join(p.WorkDirFor("OFF0001"), HistoryDir, "final-v1.pdf")
	assert.Eventually(t, func() bool {
		_, err := os.Stat(histFile)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

// overlapRenderer detects concurrent executions for the same pipeline.
type overlapRenderer struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (r *overlapRenderer) Execute(_ context.Context, workDir string) (int, string, error) {
	if r.inFlight.Add(1) > 1 {
		r.overlap.Store(true)
	}
	time.Sleep(20 * time.Millisecond)
	r.inFlight.Add(-1)
	_ = os.WriteFile(filepath.Join(workDir, ArtifactFile), []byte("pdf"), 0o644)
	return 0, "", nil
}

func TestConcurrentBuildsOfSameInstanceSerialize(t *testing.T) {
	r := &overlapRenderer{}
	p := testPipeline(t, r)
	in := testInput(t)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Build(context.Background(), in)
		}()
	}
	wg.Wait()

	assert.False(t, r.overlap.Load(), "builds of one instance must not interleave")
}

func TestWorkDirFor(t *testing.T) {
	p := NewPipeline("uploads", layouts.NewBundles("layouts"), testResolver{}, NoopRenderer{}, nil)
	assert.Equal(t, filepath.Join("uploads", "contents", "OFF0007"), p.WorkDirFor("OFF0007"))
}
