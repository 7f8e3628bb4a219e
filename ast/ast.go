// Package ast declares a minimal YAML document format for describing Jobs
// outside of Go source — a declarative bootstrap format, not a language
// parser (the real surface parser is out of scope per spec.md §1). It
// plays the role the teacher's loader.serialization.go's
// StreamSerialization/VertexSerialization tree-of-maps plays for
// describing a Pipe's Streams, narrowed to this engine's flat
// Job/StageDef shape.
//
// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.
package ast

import (
	"gopkg.in/yaml.v3"

	crush "github.com/crush-sh/crush"
)

// ArgDoc is one supplied argument: an optional name (unnamed = positional)
// and a literal scalar value. Only literal arguments are representable —
// variable references and nested subpipelines require the real parser.
type ArgDoc struct {
	Name  string      `yaml:"name,omitempty"`
	Value interface{} `yaml:"value"`
}

// StageDoc is one command call within a job.
type StageDoc struct {
	ID      string   `yaml:"id"`
	Command string   `yaml:"command"`
	Args    []ArgDoc `yaml:"args,omitempty"`
}

// JobDoc is one job: a non-empty ordered list of stages.
type JobDoc struct {
	ID     string     `yaml:"id,omitempty"`
	Stages []StageDoc `yaml:"stages"`
}

// Document is the top-level YAML shape: a named list of jobs, the
// artifact a cmd/crush `run` invocation loads from disk.
type Document struct {
	Jobs []JobDoc `yaml:"jobs"`
}

// Parse decodes a YAML document.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, crush.Wrap(crush.ErrIO, err)
	}
	return doc, nil
}

// Compile resolves every stage's Command against scope (by name through
// Scope.Get, as registry.go's Register declared them) and builds the *crush.Job
// tree the Runner consumes, converting each ArgDoc into a LiteralExpr —
// the compile step a real surface parser would otherwise perform (§4.7
// step 1, narrowed to literal-only arguments).
func (d *Document) Compile(scope *crush.Scope) ([]*crush.Job, error) {
	jobs := make([]*crush.Job, 0, len(d.Jobs))
	for _, jd := range d.Jobs {
		stages := make([]*crush.StageDef, 0, len(jd.Stages))
		for _, sd := range jd.Stages {
			cmdVal, ok := scope.Get(sd.Command)
			if !ok || cmdVal.Type().Kind != crush.KindCommand {
				return nil, crush.NewError(crush.ErrName, "unknown command %q", sd.Command)
			}

			args := make([]crush.NamedExpression, 0, len(sd.Args))
			for _, ad := range sd.Args {
				args = append(args, crush.NamedExpression{
					Name: ad.Name,
					Expr: crush.LiteralExpr{Value: toValue(ad.Value)},
				})
			}

			stages = append(stages, &crush.StageDef{
				ID:      sd.ID,
				Command: cmdVal.Command().Unbound(),
				Args:    args,
			})
		}
		jobs = append(jobs, crush.NewJob(jd.ID, stages...))
	}
	return jobs, nil
}

// toValue converts a YAML-decoded scalar into the corresponding Value,
// the same narrow type switch the teacher's VertexSerialization.fromMap
// performs over interface{} payloads pulled out of a parsed map.
func toValue(raw interface{}) crush.Value {
	switch v := raw.(type) {
	case string:
		return crush.Text(v)
	case int:
		return crush.Integer(int64(v))
	case int64:
		return crush.Integer(v)
	case float64:
		return crush.Float(v)
	case bool:
		return crush.Bool(v)
	case nil:
		return crush.Empty()
	default:
		return crush.Empty()
	}
}
