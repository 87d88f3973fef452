// Package build coordinates one build end to end: load the records, run the
// typeset pipeline, record the history row, render the preview, and publish
// lifecycle events.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docpress/internal/events"
	"git.home.luguber.info/inful/docpress/internal/metrics"
	"git.home.luguber.info/inful/docpress/internal/model"
	"git.home.luguber.info/inful/docpress/internal/preview"
	"git.home.luguber.info/inful/docpress/internal/store"
	"git.home.luguber.info/inful/docpress/internal/typeset"
)

// Request identifies one build: the instance, the layout to typeset it with,
// and the acting user.
type Request struct {
	InstanceID uuid.UUID
	LayoutSlug string
	CreatorID  uuid.UUID
}

// Result is the outcome of one build attempt. History is populated whenever
// the pipeline ran, including failed renders.
type Result struct {
	Report      *typeset.BuildReport
	History     model.BuildHistory
	PreviewPath string
	Links       []string
}

// Service runs builds. Implementations must be safe for concurrent use.
type Service interface {
	Build(ctx context.Context, req Request) (*Result, error)
}

type service struct {
	store     store.Store
	pipeline  *typeset.Pipeline
	publisher *events.Publisher
	recorder  metrics.Recorder
}

// NewService wires a build service. publisher may be nil (events disabled);
// recorder may be nil (defaults to NoopRecorder).
func NewService(st store.Store, pipeline *typeset.Pipeline, publisher *events.Publisher, recorder metrics.Recorder) Service {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &service{store: st, pipeline: pipeline, publisher: publisher, recorder: recorder}
}

// Build executes one build attempt. The history row is written for every run
// that reached the pipeline, with the renderer's exit code recorded verbatim;
// a history insertion failure is returned to the caller unmasked.
func (s *service) Build(ctx context.Context, req Request) (*Result, error) {
	inst, err := s.store.GetInstance(ctx, req.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance %s: %w", req.InstanceID, err)
	}
	ct, err := s.store.GetContentType(ctx, inst.ContentTypeID)
	if err != nil {
		return nil, fmt.Errorf("load content type %s: %w", inst.ContentTypeID, err)
	}
	layout, err := s.store.GetLayoutBySlug(ctx, req.LayoutSlug)
	if err != nil {
		return nil, fmt.Errorf("load layout %q: %w", req.LayoutSlug, err)
	}

	s.publisher.Publish(ctx, events.BuildEvent{
		Type:         events.TypeBuildStarted,
		InstanceID:   inst.ID.String(),
		InstanceCode: inst.InstanceCode,
	})

	report, buildErr := s.pipeline.Build(ctx, typeset.Input{
		Instance:    inst,
		ContentType: ct,
		Layout:      layout,
	})

	history := model.NewBuildHistory(inst.ID, req.CreatorID, report.StartTime, report.EndTime, report.ExitCode)
	if err := s.store.AppendBuildHistory(ctx, &history); err != nil {
		return nil, fmt.Errorf("record build history: %w", err)
	}

	res := &Result{Report: report, History: history}

	if buildErr != nil {
		s.recorder.IncBuildOutcome(string(model.StatusFailed))
		s.publisher.Publish(ctx, events.BuildEvent{
			Type:         events.TypeBuildFailed,
			InstanceID:   inst.ID.String(),
			InstanceCode: inst.InstanceCode,
			ExitCode:     report.ExitCode,
			DelayMS:      history.DelayMS,
			Error:        buildErr.Error(),
		})
		return res, buildErr
	}

	s.recorder.IncBuildOutcome(string(model.StatusSuccess))
	s.publisher.Publish(ctx, events.BuildEvent{
		Type:         events.TypeBuildCompleted,
		InstanceID:   inst.ID.String(),
		InstanceCode: inst.InstanceCode,
		ExitCode:     report.ExitCode,
		DelayMS:      history.DelayMS,
	})

	// Preview rendering is cosmetic; a failure here never fails the build.
	if path, links, err := preview.Render(report.WorkDir); err != nil {
		slog.Warn("Preview rendering failed", "instance", inst.InstanceCode, "error", err)
	} else {
		res.PreviewPath = path
		res.Links = links
	}

	return res, nil
}

// IsNotFound reports whether a build error stems from a missing record rather
// than a pipeline failure.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
