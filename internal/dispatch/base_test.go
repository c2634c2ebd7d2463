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
	"os"
	"path/filepath"
	"testing"
)

func TestHostFileRewritesURLForFileUnderOutputDir(t *testing.T) {
	outDir := t.TempDir()
	localPath := filepath.Join(outDir, "result.nc")
	if err := os.WriteFile(localPath, []byte("data"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	base := NewBase(nil, outDir, "https://weaver.example.org/wpsoutputs")
	href, err := base.HostFile(localPath)
	if err != nil {
		t.Fatalf("HostFile: %v", err)
	}
	want := "https://weaver.example.org/wpsoutputs/result.nc"
	if href != want {
		t.Fatalf("href = %q, want %q", href, want)
	}
}

func TestHostFileCopiesFileOutsideOutputDir(t *testing.T) {
	outDir := t.TempDir()
	otherDir := t.TempDir()
	localPath := filepath.Join(otherDir, "result.nc")
	if err := os.WriteFile(localPath, []byte("data"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	base := NewBase(nil, outDir, "https://weaver.example.org/wpsoutputs")
	href, err := base.HostFile(localPath)
	if err != nil {
		t.Fatalf("HostFile: %v", err)
	}
	if filepath.Dir(href) == otherDir {
		t.Fatalf("expected href to be re-hosted, not point back at %q: %q", otherDir, href)
	}

	base.Cleanup()
	if len(base.tempDirs) != 0 {
		t.Fatalf("expected Cleanup to clear tempDirs")
	}
}

func TestStageInputsPassesThroughNonFileValues(t *testing.T) {
	base := NewBase(nil, t.TempDir(), "https://weaver.example.org/wpsoutputs")
	staged, err := base.StageInputs(context.Background(), map[string]any{
		"threshold": 0.5,
		"label":     "run-1",
	})
	if err != nil {
		t.Fatalf("StageInputs: %v", err)
	}
	m := staged.(map[string]any)
	if m["threshold"] != 0.5 || m["label"] != "run-1" {
		t.Fatalf("expected literal values passed through unchanged, got %#v", m)
	}
}
