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
	"fmt"
	"sort"

	"github.com/crim-ca/weaver/pkg/process"
)

// topologicalOrder returns step ids ordered so that every step appears
// after every step it depends on. Steps are otherwise ordered by id for
// a deterministic result. Cycles are already rejected at load time by
// the apploader, but topologicalOrder re-checks since a Runner may be
// handed a Process built by any caller, not only the loader.
func topologicalOrder(steps []process.WorkflowStep) ([]string, error) {
	deps := make(map[string][]string, len(steps))
	for _, step := range steps {
		for _, source := range step.In {
			if owner, _, isStepOutput := splitSource(source); isStepOutput {
				deps[step.ID] = append(deps[step.ID], owner)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(steps))
	order := make([]string, 0, len(steps))

	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ID
	}
	sort.Strings(ids)

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("step cycle detected at %q", id)
		}
		state[id] = visiting
		depIDs := append([]string(nil), deps[id]...)
		sort.Strings(depIDs)
		for _, dep := range depIDs {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}
