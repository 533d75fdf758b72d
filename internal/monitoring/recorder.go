// Package monitoring records build, watch and reload metrics and reports
// the health of a running dev session.
package monitoring

import "time"

// BuildKind labels what triggered a build.
type BuildKind string

const (
	BuildFull        BuildKind = "full"
	BuildIncremental BuildKind = "incremental"
	BuildProduction  BuildKind = "production"
)

// Outcome labels how a build ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Recorder receives metric observations. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveBuild(kind BuildKind, outcome Outcome, d time.Duration)
	IncReloadBroadcast()
	SetConnectedClients(n int)
	IncWatchEvent(action string)
}

// NopRecorder discards every observation.
type NopRecorder struct{}

func (NopRecorder) ObserveBuild(BuildKind, Outcome, time.Duration) {}
func (NopRecorder) IncReloadBroadcast()                            {}
func (NopRecorder) SetConnectedClients(int)                        {}
func (NopRecorder) IncWatchEvent(string)                           {}

// OutcomeOf maps a build error to its outcome label.
func OutcomeOf(err error) Outcome {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeSuccess
}
