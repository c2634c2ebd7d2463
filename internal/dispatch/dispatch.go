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

// Package dispatch drives execution of a process on a remote OAP, WPS-1/2,
// ESGF-CWT, or ADES provider through a common phased template, mirroring
// the local container runtime's contract but for providers reached over
// HTTP instead of a local process.
package dispatch

import (
	"context"
	"fmt"

	"github.com/crim-ca/weaver/pkg/status"
)

// Progress marks contractual to every remote dispatch, regardless of
// provider kind.
const (
	ProgressPrepare   = 2
	ProgressReady     = 5
	ProgressStageIn   = 10
	ProgressFormatIO  = 12
	ProgressExecute   = 15
	ProgressMonitor   = 20
	ProgressResults   = 85
	ProgressStageOut  = 90
	ProgressCleanup   = 95
	ProgressCompleted = 100
)

// StatusFunc reports intermediate progress back to the owning job.
type StatusFunc func(message string, progress int, st status.Status)

// ResultValue is one value of a remote process output: either a reference
// (href) or an inline literal, matching the OAP results document shape.
type ResultValue struct {
	Href  string
	Value any
}

// Result is one output of a completed remote process execution, named by
// its OAP output id. GetResults never fetches data, only locates it.
type Result struct {
	ID     string
	Values []ResultValue
}

// MonitorRef is whatever a Dispatch call needs to later poll and fetch
// results for the job it started; its shape is provider-specific.
type MonitorRef any

// Dispatcher is the common contract every remote provider adapter
// implements. The phased sequence that drives these hooks is Run, below.
type Dispatcher interface {
	// Prepare performs implementation-specific setup before inputs are
	// staged. Optional: a no-op implementation is valid.
	Prepare(ctx context.Context) error

	// StageInputs hosts any input that needs to be reachable from the
	// remote provider (e.g. re-exposing a local file over HTTP) and
	// returns the staged input set in whatever shape FormatInputs expects.
	StageInputs(ctx context.Context, inputs map[string]any) (any, error)

	// FormatInputs converts staged inputs into the provider's wire shape.
	FormatInputs(staged any) (any, error)

	// FormatOutputs converts the expected output id list into the
	// provider's wire shape.
	FormatOutputs(expectedOutputs []string) (any, error)

	// Dispatch submits the execution request and returns a reference used
	// to monitor and later retrieve results.
	Dispatch(ctx context.Context, inputs, outputs any) (MonitorRef, error)

	// Monitor blocks until the dispatched job reaches a terminal remote
	// status, reporting whether it succeeded.
	Monitor(ctx context.Context, ref MonitorRef) (bool, error)

	// GetResults locates (without fetching) the output values of a
	// successfully completed remote job.
	GetResults(ctx context.Context, ref MonitorRef) ([]Result, error)

	// StageResults fetches or links result values into outDir, restricted
	// to ids present in expectedOutputs.
	StageResults(ctx context.Context, results []Result, expectedOutputs map[string]string, outDir string) error

	// Cleanup releases any temporary staging resources. Optional.
	Cleanup()
}

// Run drives dispatcher through the full phased template, reporting the
// contractual progress marks via report. On failure it invokes Cleanup and
// returns the failing phase's error wrapped with fmt.Errorf.
func Run(ctx context.Context, d Dispatcher, report StatusFunc, inputs map[string]any, outDir string, expectedOutputs []string) error {
	report("preparing process for remote execution", ProgressPrepare, status.Running)
	if err := d.Prepare(ctx); err != nil {
		d.Cleanup()
		return fmt.Errorf("dispatch: prepare: %w", err)
	}
	report("process ready for remote execution", ProgressReady, status.Running)

	report("staging inputs for remote execution", ProgressStageIn, status.Running)
	staged, err := d.StageInputs(ctx, inputs)
	if err != nil {
		d.Cleanup()
		return fmt.Errorf("dispatch: stage inputs: %w", err)
	}

	report("preparing inputs/outputs for remote execution", ProgressFormatIO, status.Running)
	formattedInputs, err := d.FormatInputs(staged)
	if err != nil {
		d.Cleanup()
		return fmt.Errorf("dispatch: format inputs: %w", err)
	}
	formattedOutputs, err := d.FormatOutputs(expectedOutputs)
	if err != nil {
		d.Cleanup()
		return fmt.Errorf("dispatch: format outputs: %w", err)
	}

	report("executing remote process job", ProgressExecute, status.Running)
	ref, err := d.Dispatch(ctx, formattedInputs, formattedOutputs)
	if err != nil {
		d.Cleanup()
		return fmt.Errorf("dispatch: dispatch: %w", err)
	}

	report("monitoring remote process job until completion", ProgressMonitor, status.Running)
	succeeded, err := d.Monitor(ctx, ref)
	if err != nil || !succeeded {
		report("running final cleanup operations following failed execution", ProgressCleanup, status.Running)
		d.Cleanup()
		if err != nil {
			return fmt.Errorf("dispatch: monitor: %w", err)
		}
		return fmt.Errorf("dispatch: remote process execution failed")
	}

	report("retrieving job results definitions", ProgressResults, status.Running)
	results, err := d.GetResults(ctx, ref)
	if err != nil {
		d.Cleanup()
		return fmt.Errorf("dispatch: get results: %w", err)
	}

	report("staging job outputs from remote process", ProgressStageOut, status.Running)
	expected := make(map[string]string, len(expectedOutputs))
	for _, id := range expectedOutputs {
		expected[id] = id
	}
	if err := d.StageResults(ctx, results, expected, outDir); err != nil {
		d.Cleanup()
		return fmt.Errorf("dispatch: stage results: %w", err)
	}

	report("running final cleanup operations before completion", ProgressCleanup, status.Running)
	d.Cleanup()

	report("execution of remote process completed successfully", ProgressCompleted, status.Succeeded)
	return nil
}
