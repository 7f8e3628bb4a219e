// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package crush

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var defaultLogger = logrus.New()

// StageDef is one command call within a Job: the command handle plus its
// static argument expressions (§4.7 "a job is a non-empty ordered
// sequence of command calls").
type StageDef struct {
	ID      string
	Command Command
	Args    []NamedExpression
}

// Job is a non-empty ordered sequence of StageDefs connected by row
// streams (§4.7, GLOSSARY "Job").
type Job struct {
	ID     string
	Stages []*StageDef
}

// NewJob builds a Job, auto-assigning an ID if empty.
func NewJob(id string, stages ...*StageDef) *Job {
	if id == "" {
		id = newHandleID()
	}
	return &Job{ID: id, Stages: stages}
}

// JoinHandle mirrors §4.7's "join handle tree": compilation returns a
// tree whose leaves are single worker tasks and whose interior nodes
// aggregate a composite job's children. Joining the root joins every
// worker; every worker error is recorded exactly once (§8 testable
// property 4).
type JoinHandle struct {
	label    string
	mu       sync.Mutex
	errs     []*Error
	children []*JoinHandle
	wait     func() error
}

// Join blocks until this handle and every child handle complete,
// returning the first recorded error if any (callers wanting the full
// set should use Errors after Join returns).
func (h *JoinHandle) Join() error {
	if h.wait != nil {
		_ = h.wait()
	}
	for _, c := range h.children {
		_ = c.Join()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.errs) > 0 {
		return h.errs[0]
	}
	return nil
}

// Errors returns every error recorded across the whole handle tree, after
// Join has returned.
func (h *JoinHandle) Errors() []*Error {
	h.mu.Lock()
	out := append([]*Error(nil), h.errs...)
	h.mu.Unlock()
	for _, c := range h.children {
		out = append(out, c.Errors()...)
	}
	return out
}

func (h *JoinHandle) recordError(e *Error) {
	h.mu.Lock()
	h.errs = append(h.errs, e)
	h.mu.Unlock()
}

// Recorder is the printer collaborator contract of §6: the core calls it
// exactly once per job_error/stage event, the way the teacher's
// *root.recorder/(*Pipe).recorder forward Log entries to a LogStore and
// logger. A nil Recorder is replaced with one that logs via logrus.
type Recorder func(jobID, stageID, event string, err *Error)

// Runner compiles and executes Jobs per §4.7/§5. It is the component
// that, for each stage, asks Command.CanBlock whether to inline or spawn,
// allocates RowChannels between adjacent stages, and spawns worker
// goroutines — generalized from the teacher's vertex.cascade/run
// machinery in vertex.go and machine.go.
type Runner struct {
	Logger   *logrus.Logger
	Option   *Option
	Recorder Recorder
}

// NewRunner builds a Runner. A nil logger falls back to a package default
// logrus.Logger, matching the teacher's pipe.go defaultLogger fallback.
func NewRunner(logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = defaultLogger
	}
	return &Runner{Logger: logger, Option: defaultOption()}
}

func (r *Runner) recorder() Recorder {
	if r.Recorder != nil {
		return r.Recorder
	}
	return func(jobID, stageID, event string, err *Error) {
		fields := logrus.Fields{"job_id": jobID, "stage_id": stageID, "event": event}
		if err != nil {
			r.Logger.WithFields(fields).WithError(err).Error("stage error")
		}
	}
}

// Run compiles job against scope and spawns its stages, wiring input as
// the first stage's upstream (or EmptyRowChannel() for none) and output
// as the last stage's downstream sink (§4.7 step 3). It rejects a
// zero-stage Job at compile time per §8 "Empty pipeline".
func (r *Runner) Run(ctx context.Context, job *Job, scope *Scope, input, output *RowChannel) (*JoinHandle, error) {
	if len(job.Stages) == 0 {
		return nil, NewError(ErrArgument, "non-terminated job: zero stages")
	}

	option := r.Option
	if option == nil {
		option = defaultOption()
	}

	cctx := &CompileContext{Scope: scope}
	handle := &JoinHandle{label: job.ID}

	channels := make([]*RowChannel, len(job.Stages)+1)
	channels[0] = input
	if channels[0] == nil {
		channels[0] = EmptyRowChannel()
	}
	for i := 1; i < len(job.Stages); i++ {
		channels[i] = NewRowChannel(option.BufferSize)
	}
	channels[len(job.Stages)] = output

	var wg sync.WaitGroup

	for i, stage := range job.Stages {
		i, stage := i, stage
		in, out := channels[i], channels[i+1]

		exprs := exprArgs(stage.Args)
		blocks := stage.Command.CanBlock(exprs, cctx)
		isTerminal := i == len(job.Stages)-1

		runStage := func() {
			r.runStage(ctx, job.ID, stage, scope, in, out, handle)
		}

		if isTerminal && !blocks {
			// A non-blocking terminal stage may be executed inline
			// (§4.7 step 2), synchronously in the caller's goroutine.
			runStage()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			runStage()
		}()
	}

	handle.wait = func() error {
		wg.Wait()
		return nil
	}

	return handle, nil
}

func (r *Runner) runStage(ctx context.Context, jobID string, stage *StageDef, scope *Scope, in, out *RowChannel, handle *JoinHandle) {
	runID := uuid.New().String()
	start := time.Now()
	telemetry := r.Option.Telemetry
	if telemetry == nil {
		telemetry = NoopTelemetry
	}
	span := telemetry.StartSpan(stage.ID)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			var err error
			if e, ok := rec.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", rec)
			}
			ce := NewError(ErrInternal, "panic in stage %s (run %s): %v", stage.ID, runID, err).WithJob(jobID, stage.ID)
			if r.Option.PanicHandler != nil {
				r.Option.PanicHandler(jobID, stage.ID, ce)
			}
			handle.recordError(ce)
			r.recorder()(jobID, stage.ID, "panic", ce)
			out.Close(ce)
		}
	}()

	ictx := &InvokeContext{
		Ctx:       ctx,
		Scope:     scope,
		Arguments: nil,
		Input:     in,
		Output:    out,
		JobID:     jobID,
		StageID:   stage.ID,
	}

	if len(stage.Args) > 0 {
		args := make([]Argument, 0, len(stage.Args))
		for _, a := range stage.Args {
			v, err := a.Expr.Eval(ictx)
			if err != nil {
				ce := Wrap(ErrArgument, err).WithJob(jobID, stage.ID)
				handle.recordError(ce)
				r.recorder()(jobID, stage.ID, "argument_error", ce)
				out.Close(ce)
				return
			}
			args = append(args, Argument{Name: a.Name, Value: v})
		}
		resolved, errs := ResolveArguments(stage.Command.Arguments(), args)
		if len(errs) > 0 {
			ce := Wrap(ErrArgument, errs[0]).WithJob(jobID, stage.ID)
			handle.recordError(ce)
			r.recorder()(jobID, stage.ID, "argument_error", ce)
			out.Close(ce)
			return
		}
		ictx.Arguments = resolved
	} else {
		ictx.Arguments = &ResolvedArguments{Bound: map[string]Value{}, NamedVarargs: map[string]Value{}}
	}

	r.recorder()(jobID, stage.ID, "start", nil)

	err := stage.Command.Invoke(ictx)

	telemetry.IncrementRowCount(stage.ID)
	telemetry.Duration(stage.ID, time.Since(start))

	if err != nil {
		ce := Wrap(ErrInternal, err).WithJob(jobID, stage.ID)
		telemetry.IncrementErrorCount(stage.ID)
		span.RecordError(ce)
		handle.recordError(ce)
		r.recorder()(jobID, stage.ID, "error", ce)
		out.Close(ce)
		return
	}

	// A command that returns without error is expected to have
	// initialized its output; closing the sender here is the in-band EOF
	// signal of §4.2/§5 that lets the downstream stage's Read observe
	// completion.
	out.Close(nil)

	r.recorder()(jobID, stage.ID, "done", nil)
}

// RunAll runs several independent top-level Jobs concurrently with
// golang.org/x/sync/errgroup, waits for all of them, and returns the first
// error any of them reported, the role the teacher's hand-rolled errorChannel
// (builder.go/pipe.go) plays for a whole Pipe of Streams.
func RunAll(ctx context.Context, runner *Runner, jobs []*Job, scope *Scope) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		output := NewRowChannel(0)

		// A terminal non-blocking stage executes inline inside Run, so its
		// Send calls could deadlock against an unread output channel; drain
		// it concurrently rather than after the fact.
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for {
				if _, ok, err := output.Read(gctx); err != nil || !ok {
					return
				}
			}
		}()

		g.Go(func() error {
			handle, err := runner.Run(gctx, job, scope, nil, output)
			if err != nil {
				return err
			}
			joinErr := handle.Join()
			<-drained
			return joinErr
		})
	}
	return g.Wait()
}
