// Package telemetry provides an OpenTelemetry-backed implementation of
// crush.Telemetry, generalized from the teacher's vertex.go metrics/span
// wrapping (inCounter/outCounter/errorsCounter/batchDuration, and the
// per-packet trace.Span lifecycle driven from machine.go/vertex.go).
//
// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/trace"

	"github.com/crush-sh/crush"
)

var (
	meter  = global.Meter("crush")
	tracer = otel.GetTracerProvider().Tracer("crush")

	rowCounter   = metric.Must(meter).NewInt64ValueRecorder("crush.rows")
	errorCounter = metric.Must(meter).NewInt64ValueRecorder("crush.errors")
	sizeRecorder = metric.Must(meter).NewInt64ValueRecorder("crush.payload_size")
	durRecorder  = metric.Must(meter).NewInt64ValueRecorder("crush.duration")
)

// Telemetry is an otel-backed crush.Telemetry. It records against the
// package-level recorders above, tagging every point with a stage_id
// attribute, and opens one trace span per StartSpan call — the same
// shape the teacher's vertex.go metrics()/run() closures produce for
// every vertex invocation, generalized from one meter per vertex type to
// one shared meter tagged by stage ID.
type Telemetry struct {
	ctx context.Context
}

// New builds a Telemetry bound to ctx for recording. ctx should outlive
// the Runner using it.
func New(ctx context.Context) (*Telemetry, error) {
	return &Telemetry{ctx: ctx}, nil
}

func (t *Telemetry) PayloadSize(stageID string, n int64) {
	sizeRecorder.Record(t.ctx, n, attribute.String("stage_id", stageID))
}

func (t *Telemetry) IncrementRowCount(stageID string) {
	rowCounter.Record(t.ctx, 1, attribute.String("stage_id", stageID))
}

func (t *Telemetry) IncrementErrorCount(stageID string) {
	errorCounter.Record(t.ctx, 1, attribute.String("stage_id", stageID))
}

func (t *Telemetry) Duration(stageID string, d time.Duration) {
	durRecorder.Record(t.ctx, int64(d), attribute.String("stage_id", stageID))
}

func (t *Telemetry) StartSpan(stageID string) crush.Span {
	_, span := tracer.Start(t.ctx, stageID)
	return &spanHandle{span: span}
}

type spanHandle struct {
	span trace.Span
}

func (s *spanHandle) RecordRows(n int) {
	s.span.SetAttributes(attribute.Int("rows", n))
}

func (s *spanHandle) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}

func (s *spanHandle) End() {
	s.span.End()
}
