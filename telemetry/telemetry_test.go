// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestNewReturnsTelemetry(t *testing.T) {
	tel, err := New(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tel == nil {
		t.Fatalf("expected a non-nil Telemetry")
	}
}

func TestTelemetryRecordingDoesNotPanic(t *testing.T) {
	tel, err := New(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tel.IncrementRowCount("stage")
	tel.IncrementErrorCount("stage")
	tel.PayloadSize("stage", 128)
	tel.Duration("stage", 10*time.Millisecond)

	span := tel.StartSpan("stage")
	span.RecordRows(3)
	span.RecordError(nil)
	span.End()
}
