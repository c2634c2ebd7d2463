// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workflowrun composes Process invocations declared by a
// Workflow-class Application Package into a step graph, staging
// intermediate artifacts between steps and dispatching each step to
// whichever backend its own principal requirement names.
package workflowrun

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/crim-ca/weaver/internal/dispatch"
	"github.com/crim-ca/weaver/pkg/process"
	"github.com/crim-ca/weaver/pkg/status"
)

// ProgressStart and ProgressEnd bound the window into which step progress
// is linearly mapped, matching the parent job's own Execute phase window.
const (
	ProgressStart = 10
	ProgressEnd   = 95
)

// StatusFunc reports a step's progress back to the owning job.
type StatusFunc func(message string, progress int, st status.Status)

// StepExecutor runs a single resolved Process to completion and returns
// its output values, keyed by output id. A file-valued output is reported
// as a local filesystem path; Runner re-hosts it before the next step
// that consumes it runs. Implementations dispatch to whatever backend the
// step's own principal requirement names (container runtime, or one of
// the remote provider Dispatchers).
type StepExecutor interface {
	Execute(ctx context.Context, proc *process.Process, inputs map[string]any, outDir string) (map[string]any, error)
}

// ProcessResolver looks up the normalized Process backing a workflow
// step's ProcessID.
type ProcessResolver interface {
	Resolve(ctx context.Context, processID string) (*process.Process, error)
}

// Runner walks a Workflow-class Process's step graph in topological order.
type Runner struct {
	Resolver ProcessResolver
	Executor StepExecutor
	Rehost   *dispatch.Base
}

// New constructs a Runner. rehost re-exposes a completed step's local
// output files over HTTP so a downstream step, possibly dispatched to a
// different host, can fetch them as its own inputs.
func New(resolver ProcessResolver, executor StepExecutor, rehost *dispatch.Base) *Runner {
	return &Runner{Resolver: resolver, Executor: executor, Rehost: rehost}
}

// Run executes every step of wf in dependency order, wiring each step's
// `in` sources to either a workflow-level input or an upstream step's
// already-computed output, and returns the subset of final step outputs
// matching the workflow's own declared Outputs.
func (r *Runner) Run(ctx context.Context, wf *process.Process, workflowInputs map[string]any, outDir string, report StatusFunc) (map[string]any, error) {
	if wf.Requirement.Kind != process.RequirementWorkflow {
		return nil, fmt.Errorf("workflowrun: process %q is not a Workflow-class package", wf.ID)
	}

	order, err := topologicalOrder(wf.Requirement.Steps)
	if err != nil {
		return nil, fmt.Errorf("workflowrun: %w", err)
	}

	stepOutputs := make(map[string]map[string]any, len(order))
	producedBy := make(map[string]string, len(order))

	for i, stepID := range order {
		step := stepByID(wf.Requirement.Steps, stepID)
		progress := ProgressStart + (ProgressEnd-ProgressStart)*i/max(len(order), 1)
		report(fmt.Sprintf("running workflow step %q", step.ID), progress, status.Running)

		proc, err := r.Resolver.Resolve(ctx, step.ProcessID)
		if err != nil {
			return nil, fmt.Errorf("workflowrun: resolve step %q process %q: %w", step.ID, step.ProcessID, err)
		}

		inputs, err := r.resolveStepInputs(step, workflowInputs, stepOutputs)
		if err != nil {
			return nil, fmt.Errorf("workflowrun: step %q: %w", step.ID, err)
		}

		stepDir := filepath.Join(outDir, step.ID)
		outputs, err := r.Executor.Execute(ctx, proc, inputs, stepDir)
		if err != nil {
			return nil, fmt.Errorf("workflowrun: step %q execution failed: %w", step.ID, err)
		}

		rehosted, err := r.rehostOutputs(outputs)
		if err != nil {
			return nil, fmt.Errorf("workflowrun: step %q: %w", step.ID, err)
		}

		stepOutputs[step.ID] = rehosted
		for outputID := range rehosted {
			producedBy[step.ID+"."+outputID] = step.ID
		}
	}

	report("collecting workflow outputs", ProgressEnd, status.Running)
	return r.collectWorkflowOutputs(wf, order, stepOutputs), nil
}

// resolveStepInputs maps every declared `in` source to a concrete value:
// a workflow-level input (source "workflow.<id>") or an upstream step's
// already-computed output (source "<stepID>.<outputID>").
func (r *Runner) resolveStepInputs(step process.WorkflowStep, workflowInputs map[string]any, stepOutputs map[string]map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(step.In))
	for inputID, source := range step.In {
		owner, field, isStepOutput := splitSource(source)
		if !isStepOutput {
			value, ok := workflowInputs[field]
			if !ok {
				return nil, fmt.Errorf("workflow input %q referenced by step input %q is not provided", field, inputID)
			}
			resolved[inputID] = value
			continue
		}

		outputs, ok := stepOutputs[owner]
		if !ok {
			return nil, fmt.Errorf("step input %q references output of step %q, which has not run yet", inputID, owner)
		}
		value, ok := outputs[field]
		if !ok {
			return nil, fmt.Errorf("step %q has no output %q (referenced by step input %q)", owner, field, inputID)
		}
		resolved[inputID] = value
	}
	return resolved, nil
}

// splitSource parses an `in` source reference. "workflow.<id>" names a
// workflow-level input; anything else is "<stepID>.<outputID>".
func splitSource(source string) (owner, field string, isStepOutput bool) {
	i := strings.IndexByte(source, '.')
	if i <= 0 {
		return "", source, false
	}
	owner = source[:i]
	field = source[i+1:]
	if owner == "workflow" {
		return "", field, false
	}
	return owner, field, true
}

// rehostOutputs re-exposes every local-path output (an absolute path or a
// file:// URL) over HTTP via the runner's Rehost. The path handed to
// Rehost is only cleaned by flattenToBaseName, which keeps its directory
// part. Other values, including non-path strings, pass through unchanged.
func (r *Runner) rehostOutputs(outputs map[string]any) (map[string]any, error) {
	if r.Rehost == nil {
		return outputs, nil
	}
	rehosted := make(map[string]any, len(outputs))
	for id, value := range outputs {
		path, ok := value.(string)
		if !ok || !looksLikeLocalPath(path) {
			rehosted[id] = value
			continue
		}
		href, err := r.Rehost.HostFile(flattenToBaseName(path))
		if err != nil {
			return nil, fmt.Errorf("re-host output %q: %w", id, err)
		}
		rehosted[id] = href
	}
	return rehosted, nil
}

func looksLikeLocalPath(s string) bool {
	return filepath.IsAbs(s) || len(s) > len("file://") && s[:len("file://")] == "file://"
}

func flattenToBaseName(path string) string {
	return filepath.Join(filepath.Dir(path), filepath.Base(path))
}

// collectWorkflowOutputs matches each of wf's declared Outputs to the
// step output of the same id, preferring the value produced by the step
// that runs latest in topological order (the AP format carries no
// explicit outputSource wiring in the normalized model, so the last
// producer of a matching id is taken to be the intended final value).
func (r *Runner) collectWorkflowOutputs(wf *process.Process, order []string, stepOutputs map[string]map[string]any) map[string]any {
	final := make(map[string]any, len(wf.Outputs))
	for _, out := range wf.Outputs {
		for i := len(order) - 1; i >= 0; i-- {
			if value, ok := stepOutputs[order[i]][out.ID]; ok {
				final[out.ID] = value
				break
			}
		}
	}
	return final
}

func stepByID(steps []process.WorkflowStep, id string) process.WorkflowStep {
	for _, s := range steps {
		if s.ID == id {
			return s
		}
	}
	return process.WorkflowStep{}
}
