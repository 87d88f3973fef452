package typeset

import "time"

// BuildReport captures the outcome of one typeset run for the caller to
// record and surface.
type BuildReport struct {
	InstanceCode string
	WorkDir      string

	// DocPath is the produced artifact path (workdir/final.pdf) when the
	// renderer exited 0.
	DocPath string

	// ExitCode is the renderer's raw exit status, recorded verbatim.
	// -1 means the renderer could not be started at all.
	ExitCode int
	// Output is the renderer's combined stdout/stderr.
	Output string

	StartTime time.Time
	EndTime   time.Time

	// StageDurations maps stage name to elapsed time.
	StageDurations map[string]time.Duration
}

// Succeeded reports whether the renderer exited cleanly.
func (r *BuildReport) Succeeded() bool { return r.ExitCode == 0 }

// Duration is the total wall time of the build.
func (r *BuildReport) Duration() time.Duration { return r.EndTime.Sub(r.StartTime) }
