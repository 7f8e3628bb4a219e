// Package debugserver exposes introspection endpoints over a running
// engine: a liveness health check and a scope-dump endpoint, generalized
// from the teacher's pipe.go NewPipe/Run (fiber.App + recover middleware
// + GET /health) to this engine's Scope-graph domain.
//
// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.
package debugserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	crush "github.com/crush-sh/crush"
)

var defaultLogger = logrus.New()

// JobStatus is a point-in-time snapshot of one running or finished job,
// the same shape the teacher's Log records for a vertex but aggregated
// per job rather than per packet.
type JobStatus struct {
	JobID     string    `json:"job_id"`
	StartedAt time.Time `json:"started_at"`
	Done      bool      `json:"done"`
	Errors    []string  `json:"errors,omitempty"`
}

// Server hosts a fiber.App exposing /health and /scopes/:id, the
// introspection counterpart to the teacher's Pipe — it never runs jobs
// itself, only records the scopes passed to TrackScope and the events a
// Runner reports through the Recorder it hands out.
type Server struct {
	id     string
	app    *fiber.App
	logger *logrus.Logger

	mu     sync.Mutex
	scopes map[string]*crush.Scope
	jobs   map[string]*JobStatus
}

// New builds a Server. A nil logger falls back to a package default
// logrus.Logger, matching the teacher's NewPipe fallback.
func New(id string, logger *logrus.Logger, config ...fiber.Config) *Server {
	if logger == nil {
		logger = defaultLogger
	}

	s := &Server{
		id:     id,
		app:    fiber.New(config...),
		logger: logger,
		scopes: map[string]*crush.Scope{},
		jobs:   map[string]*JobStatus{},
	}

	s.app.Use(recover.New())

	s.app.Get("/health", func(c *fiber.Ctx) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"server_id": s.id,
			"scopes":    len(s.scopes),
			"jobs":      s.jobs,
		})
	})

	s.app.Get("/scopes/:id", func(c *fiber.Ctx) error {
		s.mu.Lock()
		scope, ok := s.scopes[c.Params("id")]
		s.mu.Unlock()
		if !ok {
			return c.SendStatus(http.StatusNotFound)
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"scope_id": scope.ID(),
			"names":    scope.Dump(),
			"stopped":  scope.IsStopped(),
		})
	})

	return s
}

// TrackScope registers scope so it is reachable from GET /scopes/:id,
// keyed by its own ID.
func (s *Server) TrackScope(scope *crush.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[scope.ID()] = scope
}

// Recorder returns a crush.Recorder that updates this server's job table,
// suitable for Runner.Recorder — the same collaboration the teacher's
// (*Pipe).recorder forwards Log entries from a vertex into.
func (s *Server) Recorder() crush.Recorder {
	return func(jobID, stageID, event string, err *crush.Error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		status, ok := s.jobs[jobID]
		if !ok {
			status = &JobStatus{JobID: jobID, StartedAt: time.Now()}
			s.jobs[jobID] = status
		}
		if err != nil {
			status.Errors = append(status.Errors, err.Error())
		}
		if event == "done" && stageID != "" {
			status.Done = true
		}
	}
}

// Run serves the app on addr until ctx is done, then shuts down
// gracefully, mirroring the teacher's Pipe.Run context-driven shutdown
// goroutine.
func (s *Server) Run(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Error(err)
		}
	}()
	return s.app.Listen(addr)
}
