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

package workflowrun

import (
	"testing"

	"github.com/crim-ca/weaver/pkg/process"
)

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestTopologicalOrderRespectsDependencies(t *testing.T) {
	steps := []process.WorkflowStep{
		{ID: "c", ProcessID: "p", In: map[string]string{"x": "b.out"}},
		{ID: "a", ProcessID: "p", In: map[string]string{"x": "workflow.input1"}},
		{ID: "b", ProcessID: "p", In: map[string]string{"x": "a.out"}},
	}
	order, err := topologicalOrder(steps)
	if err != nil {
		t.Fatalf("topologicalOrder: %v", err)
	}
	if indexOf(order, "a") > indexOf(order, "b") || indexOf(order, "b") > indexOf(order, "c") {
		t.Fatalf("expected order a, b, c; got %v", order)
	}
}

func TestTopologicalOrderDetectsCycle(t *testing.T) {
	steps := []process.WorkflowStep{
		{ID: "a", ProcessID: "p", In: map[string]string{"x": "b.out"}},
		{ID: "b", ProcessID: "p", In: map[string]string{"x": "a.out"}},
	}
	if _, err := topologicalOrder(steps); err == nil {
		t.Fatalf("expected cycle error")
	}
}

func TestTopologicalOrderIsDeterministic(t *testing.T) {
	steps := []process.WorkflowStep{
		{ID: "z", ProcessID: "p", In: map[string]string{"x": "workflow.input1"}},
		{ID: "y", ProcessID: "p", In: map[string]string{"x": "workflow.input1"}},
	}
	first, err := topologicalOrder(steps)
	if err != nil {
		t.Fatalf("topologicalOrder: %v", err)
	}
	second, err := topologicalOrder(steps)
	if err != nil {
		t.Fatalf("topologicalOrder: %v", err)
	}
	if len(first) != len(second) || first[0] != second[0] || first[1] != second[1] {
		t.Fatalf("expected deterministic order, got %v then %v", first, second)
	}
}
