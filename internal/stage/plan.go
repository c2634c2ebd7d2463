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

package stage

import (
	"fmt"
	"path/filepath"

	"github.com/crim-ca/weaver/pkg/process"
)

// ExpectedOutputs computes, for every declared output of proc, the glob
// pattern its file is expected to match once execution finishes, keyed by
// output id. Every pattern lives in a single flat directory rather than
// under any nested path the underlying package might otherwise produce,
// so a workflow step's outputs can always be re-hosted and consumed by a
// downstream step without either side needing to know the other's
// internal directory layout.
func ExpectedOutputs(proc *process.Process) map[string]string {
	expected := make(map[string]string, len(proc.Outputs))
	for _, out := range proc.Outputs {
		expected[out.ID] = fmt.Sprintf("%s*", out.ID)
	}
	return expected
}

// ResolveOutputPath finds the single file or directory within outDir
// produced for outputID, matching the flat, id-prefixed convention
// ExpectedOutputs assumes. It returns an empty string if nothing matched.
func ResolveOutputPath(outDir, outputID string) (string, error) {
	matches, err := globInDir(outDir, outputID+"*")
	if err != nil {
		return "", fmt.Errorf("stage: resolve output %q: %w", outputID, err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	return matches[0], nil
}

func globInDir(dir, pattern string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, pattern))
}
