// Package model holds the persistent record types shared by the store, the
// build pipeline, and the CLI.
package model

import (
	"time"

	"github.com/google/uuid"
)

// FieldType enumerates the value kinds a content type can declare.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeNumber FieldType = "number"
	FieldTypeDate   FieldType = "date"
)

// ContentTypeField is one declared field of a content type. Declaration order
// is significant: header assembly emits fields in this order.
type ContentTypeField struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// ContentType is a document category, e.g. "Offer Letter". Prefix seeds the
// per-type sequence codes ("OFF" yields OFF0001, OFF0002, ...).
type ContentType struct {
	ID     uuid.UUID          `json:"id"`
	Name   string             `json:"name"`
	Prefix string             `json:"prefix"`
	Fields []ContentTypeField `json:"fields"`
}

// Asset is a binary resource a layout references, addressed by storage path.
type Asset struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	FilePath string    `json:"file_path"`
}

// Layout is a template bundle association. Slug names the bundle directory on
// disk; Assets keep their association order.
type Layout struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Slug   string    `json:"slug"`
	Assets []Asset   `json:"assets"`
}

// Instance is one concrete document of a content type.
type Instance struct {
	ID            uuid.UUID         `json:"id"`
	InstanceCode  string            `json:"instance_code"`
	Serialized    map[string]string `json:"serialized"`
	RawBody       string            `json:"raw_body"`
	ContentTypeID uuid.UUID         `json:"content_type_id"`
	StateID       uuid.UUID         `json:"state_id,omitempty"`
	CreatorID     uuid.UUID         `json:"creator_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`

	// DocURL is derived, not stored: it is set on load only when the instance
	// has at least one successful build.
	DocURL string `json:"build,omitempty"`
}

// BuildStatus classifies one build attempt.
type BuildStatus string

const (
	StatusSuccess BuildStatus = "success"
	StatusFailed  BuildStatus = "failed"
)

// StatusForExitCode maps a renderer exit code to a build status. Only exit
// code zero counts as success; every other code, including signal-derived
// ones, is a failure.
func StatusForExitCode(code int) BuildStatus {
	if code == 0 {
		return StatusSuccess
	}
	return StatusFailed
}

// BuildHistory is one immutable build record for an instance.
type BuildHistory struct {
	ID         uuid.UUID   `json:"id"`
	InstanceID uuid.UUID   `json:"instance_id"`
	CreatorID  uuid.UUID   `json:"creator_id,omitempty"`
	Status     BuildStatus `json:"status"`
	ExitCode   int         `json:"exit_code"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	// DelayMS is the wall-clock build duration in milliseconds, end minus
	// start, recorded even for failed builds.
	DelayMS int64 `json:"delay"`
}

// NewBuildHistory derives a complete record from a build's observed times and
// raw exit code.
func NewBuildHistory(instanceID, creatorID uuid.UUID, start, end time.Time, exitCode int) BuildHistory {
	return BuildHistory{
		ID:         uuid.New(),
		InstanceID: instanceID,
		CreatorID:  creatorID,
		Status:     StatusForExitCode(exitCode),
		ExitCode:   exitCode,
		StartTime:  start,
		EndTime:    end,
		DelayMS:    end.Sub(start).Milliseconds(),
	}
}
