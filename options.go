// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import "time"

// Telemetry is the instrumentation seam a Runner records stage activity
// through (§6 "external interfaces" extended with the ambient stack of
// SPEC_FULL.md). The default implementation lives in the telemetry
// subpackage and is otel-backed, the way the teacher's vertex.go wraps
// every handler with metrics/span recording.
type Telemetry interface {
	PayloadSize(stageID string, n int64)
	IncrementRowCount(stageID string)
	IncrementErrorCount(stageID string)
	Duration(stageID string, d time.Duration)
	StartSpan(stageID string) Span
}

// Span is the per-batch tracing handle a Telemetry implementation opens.
type Span interface {
	RecordRows(n int)
	RecordError(err error)
	End()
}

type noopTelemetry struct{}

func (noopTelemetry) PayloadSize(string, int64)     {}
func (noopTelemetry) IncrementRowCount(string)       {}
func (noopTelemetry) IncrementErrorCount(string)     {}
func (noopTelemetry) Duration(string, time.Duration) {}
func (noopTelemetry) StartSpan(string) Span          { return noopSpan{} }

type noopSpan struct{}

func (noopSpan) RecordRows(int)     {}
func (noopSpan) RecordError(error)  {}
func (noopSpan) End()               {}

// NoopTelemetry is a Telemetry implementation that records nothing, the
// Runner's default when no Telemetry is configured.
var NoopTelemetry Telemetry = noopTelemetry{}

// Option holds per-Runner/per-stage settings, generalized from the
// teacher's generic Option[T] in options.go to this engine's Row-oriented
// pipeline.
type Option struct {
	// FIFO is carried and merged by merge; Runner does not read it.
	FIFO bool
	// BufferSize sets the RowChannel buffer between adjacent stages.
	BufferSize int
	// MaxParallel is carried and merged by merge; Runner does not read
	// it, and runs each stage as a single invocation.
	MaxParallel int
	// Telemetry records stage metrics/spans; defaults to NoopTelemetry.
	Telemetry Telemetry
	// PanicHandler is invoked when a worker panics, after recovery;
	// default logs via logrus (see job.go's default).
	PanicHandler func(jobID, stageID string, err error)
	// DeepCopy mirrors the teacher's DeepCopy option; Runner does not
	// read it, so rows are never copied before reaching a stage.
	DeepCopy bool
}

// defaultOption mirrors the teacher's defaultOptions(): conservative
// FIFO=false, unbuffered channels, telemetry and deep-copy both off by
// default so a freshly built Runner behaves predictably without extra
// configuration.
func defaultOption() *Option {
	return &Option{
		FIFO:       false,
		BufferSize: 0,
		Telemetry:  NoopTelemetry,
	}
}

// merge overlays non-zero fields of each subsequent Option onto a copy of
// o, in order — the same join/merge chaining the teacher's
// (*Option).merge/(*Option).join provide in options.go/types.go.
func (o *Option) merge(options ...*Option) *Option {
	out := *o
	for _, opt := range options {
		if opt == nil {
			continue
		}
		if opt.FIFO {
			out.FIFO = true
		}
		if opt.BufferSize != 0 {
			out.BufferSize = opt.BufferSize
		}
		if opt.MaxParallel != 0 {
			out.MaxParallel = opt.MaxParallel
		}
		if opt.Telemetry != nil {
			out.Telemetry = opt.Telemetry
		}
		if opt.PanicHandler != nil {
			out.PanicHandler = opt.PanicHandler
		}
		if opt.DeepCopy {
			out.DeepCopy = true
		}
	}
	return &out
}
