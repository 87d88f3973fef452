// Package store persists document-management records in SQLite.
//
// Build history is append-only: rows are inserted once and never updated or
// deleted here. Sequence counters are incremented atomically inside the
// database so concurrent instance creation cannot mint duplicate codes.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docpress/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence surface the build pipeline and CLI depend on.
type Store interface {
	// CreateContentType persists a content type with its field declarations.
	CreateContentType(ctx context.Context, ct *model.ContentType) error
	// GetContentType loads a content type by id.
	GetContentType(ctx context.Context, id uuid.UUID) (*model.ContentType, error)

	// CreateLayout persists a layout and its ordered assets.
	CreateLayout(ctx context.Context, l *model.Layout) error
	// GetLayout loads a layout by id.
	GetLayout(ctx context.Context, id uuid.UUID) (*model.Layout, error)
	// GetLayoutBySlug loads a layout by its bundle slug.
	GetLayoutBySlug(ctx context.Context, slug string) (*model.Layout, error)

	// NextSequence atomically increments and returns the counter for a content
	// type. The first call for a given content type returns 1.
	NextSequence(ctx context.Context, contentTypeID uuid.UUID) (int64, error)

	// CreateInstance assigns the instance its sequence code and persists it.
	CreateInstance(ctx context.Context, inst *model.Instance) error
	// GetInstance loads an instance. DocURL is populated only when the
	// instance has at least one build-history entry with exit code 0.
	GetInstance(ctx context.Context, id uuid.UUID) (*model.Instance, error)
	// UpdateInstance persists edits to serialized values and the raw body.
	UpdateInstance(ctx context.Context, inst *model.Instance) error
	// ListInstanceCodes returns every assigned instance code. Used by the
	// daemon to tell live working directories from leftovers.
	ListInstanceCodes(ctx context.Context) ([]string, error)

	// AppendBuildHistory inserts an immutable build record. Constraint
	// violations are returned to the caller unchanged.
	AppendBuildHistory(ctx context.Context, h *model.BuildHistory) error
	// ListBuildHistory returns all build records for an instance, newest first.
	ListBuildHistory(ctx context.Context, instanceID uuid.UUID) ([]model.BuildHistory, error)
	// LatestSuccess returns the most recent build record with exit code 0, or
	// ErrNotFound when the instance has never built successfully.
	LatestSuccess(ctx context.Context, instanceID uuid.UUID) (*model.BuildHistory, error)

	Close() error
}
