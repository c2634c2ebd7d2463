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

package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/crim-ca/weaver/pkg/status"
)

// fakeDispatcher records which phases ran and lets a test force a failure
// at any one of them.
type fakeDispatcher struct {
	failAt    string
	cleaned   bool
	calls     []string
	succeeded bool
	results   []Result
}

func (f *fakeDispatcher) record(name string) error {
	f.calls = append(f.calls, name)
	if f.failAt == name {
		return errors.New("forced failure at " + name)
	}
	return nil
}

func (f *fakeDispatcher) Prepare(ctx context.Context) error { return f.record("prepare") }

func (f *fakeDispatcher) StageInputs(ctx context.Context, inputs map[string]any) (any, error) {
	if err := f.record("stage-inputs"); err != nil {
		return nil, err
	}
	return inputs, nil
}

func (f *fakeDispatcher) FormatInputs(staged any) (any, error) {
	if err := f.record("format-inputs"); err != nil {
		return nil, err
	}
	return staged, nil
}

func (f *fakeDispatcher) FormatOutputs(expectedOutputs []string) (any, error) {
	if err := f.record("format-outputs"); err != nil {
		return nil, err
	}
	return expectedOutputs, nil
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, inputs, outputs any) (MonitorRef, error) {
	if err := f.record("dispatch"); err != nil {
		return nil, err
	}
	return "ref", nil
}

func (f *fakeDispatcher) Monitor(ctx context.Context, ref MonitorRef) (bool, error) {
	if err := f.record("monitor"); err != nil {
		return false, err
	}
	return f.succeeded, nil
}

func (f *fakeDispatcher) GetResults(ctx context.Context, ref MonitorRef) ([]Result, error) {
	if err := f.record("get-results"); err != nil {
		return nil, err
	}
	return f.results, nil
}

func (f *fakeDispatcher) StageResults(ctx context.Context, results []Result, expectedOutputs map[string]string, outDir string) error {
	return f.record("stage-results")
}

func (f *fakeDispatcher) Cleanup() { f.cleaned = true }

func TestRunHappyPathVisitsEveryPhaseInOrder(t *testing.T) {
	d := &fakeDispatcher{succeeded: true}
	var marks []int

	err := Run(context.Background(), d, func(msg string, progress int, st status.Status) {
		marks = append(marks, progress)
	}, map[string]any{"in": "value"}, t.TempDir(), []string{"out"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !d.cleaned {
		t.Fatalf("expected Cleanup to run")
	}

	wantCalls := []string{"prepare", "stage-inputs", "format-inputs", "format-outputs", "dispatch", "monitor", "get-results", "stage-results"}
	if len(d.calls) != len(wantCalls) {
		t.Fatalf("calls = %v, want %v", d.calls, wantCalls)
	}
	for i, name := range wantCalls {
		if d.calls[i] != name {
			t.Fatalf("calls[%d] = %q, want %q", i, d.calls[i], name)
		}
	}

	if marks[len(marks)-1] != ProgressCompleted {
		t.Fatalf("expected final progress mark %d, got %d", ProgressCompleted, marks[len(marks)-1])
	}
}

func TestRunCleansUpOnMonitorFailure(t *testing.T) {
	d := &fakeDispatcher{succeeded: false}

	err := Run(context.Background(), d, func(string, int, status.Status) {}, nil, t.TempDir(), nil)
	if err == nil {
		t.Fatalf("expected error when monitor reports failure")
	}
	if !d.cleaned {
		t.Fatalf("expected Cleanup to run even on failure")
	}
	if d.calls[len(d.calls)-1] != "monitor" {
		t.Fatalf("expected dispatch to stop after monitor, got %v", d.calls)
	}
}

func TestRunStopsAtFirstFailingPhase(t *testing.T) {
	d := &fakeDispatcher{failAt: "format-inputs", succeeded: true}

	err := Run(context.Background(), d, func(string, int, status.Status) {}, nil, t.TempDir(), nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !d.cleaned {
		t.Fatalf("expected Cleanup to run on early failure")
	}
	for _, name := range []string{"dispatch", "monitor", "get-results", "stage-results"} {
		for _, called := range d.calls {
			if called == name {
				t.Fatalf("phase %q ran after earlier failure", name)
			}
		}
	}
}
