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

package apploader

import (
	"context"
	"fmt"
	"strings"

	"github.com/crim-ca/weaver/pkg/process"
)

// resolveWorkflowSteps builds the ordered step graph of a Workflow-class
// package, dereferencing each step's `run` reference (a sibling process id
// or a package URL) through the Loader's Fetcher, and rejecting any cycle
// among step data-flow dependencies.
func (l *Loader) resolveWorkflowSteps(ctx context.Context, raw *rawPackage) ([]process.WorkflowStep, error) {
	if len(raw.Steps) == 0 {
		return nil, errInvalidRequirement("Workflow-class package %q declares no steps", raw.ID)
	}

	ids := sortedKeys(raw.Steps)
	steps := make([]process.WorkflowStep, 0, len(ids))
	for _, id := range ids {
		step := raw.Steps[id]
		processID, err := l.resolveStepProcessID(ctx, step.Run)
		if err != nil {
			return nil, err
		}
		steps = append(steps, process.WorkflowStep{
			ID:        id,
			ProcessID: processID,
			In:        step.In,
		})
	}

	if err := checkStepCycles(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// resolveStepProcessID dereferences a step's `run` value to a process id.
// A bare identifier (no scheme, no path separator) names a sibling process
// already deployed on this instance; anything else is fetched as an AP
// document and its own id is used.
func (l *Loader) resolveStepProcessID(ctx context.Context, run string) (string, error) {
	if run == "" {
		return "", errInvalidRequirement("workflow step has an empty run reference")
	}
	if isBareIdentifier(run) {
		doc, err := l.fetcher.ResolveSibling(ctx, run)
		if err != nil {
			return "", errInvalidRequirement("failed to resolve workflow step reference %q: %s", run, errMessage(err))
		}
		raw, err := decodeAnyPackage(doc)
		if err != nil || raw.ID == "" {
			return run, nil // sibling already deployed: id is sufficient
		}
		return raw.ID, nil
	}

	doc, err := l.fetcher.Fetch(ctx, run)
	if err != nil {
		return "", errInvalidRequirement("failed to resolve workflow step reference %q: %s", run, errMessage(err))
	}
	raw, err := decodeAnyPackage(doc)
	if err != nil {
		return "", err
	}
	if raw.ID == "" {
		return "", errInvalidRequirement("workflow step document %q declares no process id", run)
	}
	return raw.ID, nil
}

func isBareIdentifier(run string) bool {
	return !strings.ContainsAny(run, "/:")
}

// checkStepCycles rejects a step graph containing a cycle among
// step-to-step data-flow dependencies, via depth-first traversal with a
// recursion stack.
func checkStepCycles(steps []process.WorkflowStep) error {
	bySource := make(map[string][]string, len(steps))
	for _, step := range steps {
		for _, src := range step.In {
			if depID, ok := stepDependency(src); ok {
				bySource[step.ID] = append(bySource[step.ID], depID)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(steps))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return errInvalidRequirement("workflow step cycle detected: %s -> %s", strings.Join(path, " -> "), id)
		}
		state[id] = visiting
		path = append(path, id)
		for _, dep := range bySource[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, step := range steps {
		if err := visit(step.ID); err != nil {
			return err
		}
	}
	return nil
}

// stepDependency extracts the producing step id from an `In` source
// reference of the form "<stepID>.<outputID>". A "workflow.<id>" reference
// names a workflow-level input and has no step dependency.
func stepDependency(source string) (string, bool) {
	i := strings.IndexByte(source, '.')
	if i <= 0 {
		return "", false
	}
	stepID := source[:i]
	if stepID == "workflow" {
		return "", false
	}
	return stepID, true
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}
