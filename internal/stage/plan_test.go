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
	"os"
	"path/filepath"
	"testing"

	"github.com/crim-ca/weaver/pkg/process"
)

func TestExpectedOutputsUsesIDPrefixedGlob(t *testing.T) {
	proc := &process.Process{
		Outputs: []process.OutputDef{{ID: "result"}, {ID: "log"}},
	}
	expected := ExpectedOutputs(proc)
	if expected["result"] != "result*" || expected["log"] != "log*" {
		t.Fatalf("unexpected expected outputs: %+v", expected)
	}
}

func TestResolveOutputPathFindsFlatMatch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "result.nc"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	path, err := ResolveOutputPath(dir, "result")
	if err != nil {
		t.Fatalf("ResolveOutputPath: %v", err)
	}
	if path != filepath.Join(dir, "result.nc") {
		t.Fatalf("path = %q", path)
	}
}

func TestResolveOutputPathReturnsEmptyWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path, err := ResolveOutputPath(dir, "missing")
	if err != nil {
		t.Fatalf("ResolveOutputPath: %v", err)
	}
	if path != "" {
		t.Fatalf("expected empty path, got %q", path)
	}
}
