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
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Base is embedded by every provider adapter and implements the parts of
// the Dispatcher contract that don't vary by provider: re-hosting local
// files so a remote provider can fetch them over HTTP, and tracking
// temporary staging directories for Cleanup.
type Base struct {
	HTTPClient *http.Client

	// WPSOutputDir and WPSOutputURL let HostFile skip re-hosting a file
	// that is already reachable under the externally-served output
	// directory, and compute the public href for files that aren't.
	WPSOutputDir string
	WPSOutputURL string

	tempDirs []string
}

// NewBase constructs a Base with sane defaults for client and temp
// tracking. Provider adapters embed it and set WPSOutputDir/WPSOutputURL.
func NewBase(client *http.Client, wpsOutputDir, wpsOutputURL string) Base {
	if client == nil {
		client = http.DefaultClient
	}
	return Base{HTTPClient: client, WPSOutputDir: wpsOutputDir, WPSOutputURL: wpsOutputURL}
}

// Prepare is a no-op by default; adapters override it when they need setup.
func (b *Base) Prepare(ctx context.Context) error { return nil }

// Cleanup removes every temporary staging directory HostFile created.
func (b *Base) Cleanup() {
	for _, dir := range b.tempDirs {
		_ = os.RemoveAll(dir)
	}
	b.tempDirs = nil
}

// HostFile exposes a local file path over HTTP so a remote provider
// (possibly on a different host) can fetch it as a workflow step input.
// A file already under WPSOutputDir is assumed already reachable and is
// rewritten to its public URL without copying.
func (b *Base) HostFile(localPath string) (string, error) {
	localPath = strings.TrimPrefix(localPath, "file://")
	realPath, err := filepath.Abs(localPath)
	if err != nil {
		return "", fmt.Errorf("dispatch: resolve local path %q: %w", localPath, err)
	}

	if b.WPSOutputDir != "" && strings.HasPrefix(realPath, b.WPSOutputDir) {
		return strings.Replace(realPath, b.WPSOutputDir, b.WPSOutputURL, 1), nil
	}

	tmpDir, err := os.MkdirTemp(b.WPSOutputDir, "host-*")
	if err != nil {
		return "", fmt.Errorf("dispatch: create staging dir: %w", err)
	}
	b.tempDirs = append(b.tempDirs, tmpDir)

	dst := filepath.Join(tmpDir, filepath.Base(realPath))
	if err := linkOrCopy(realPath, dst); err != nil {
		return "", fmt.Errorf("dispatch: host file %q: %w", realPath, err)
	}

	return strings.Replace(dst, b.WPSOutputDir, b.WPSOutputURL, 1), nil
}

func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// StageInputs re-hosts any input value that looks like a local file
// reference (a bare "file://" URL) and passes every other value through
// unchanged. Provider adapters that need no staging at all can use this
// default directly.
func (b *Base) StageInputs(ctx context.Context, inputs map[string]any) (any, error) {
	staged := make(map[string]any, len(inputs))
	for id, value := range inputs {
		stagedValue, err := b.stageValue(value)
		if err != nil {
			return nil, err
		}
		staged[id] = stagedValue
	}
	return staged, nil
}

func (b *Base) stageValue(value any) (any, error) {
	switch v := value.(type) {
	case string:
		if strings.HasPrefix(v, "file://") {
			return b.HostFile(v)
		}
		return v, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			staged, err := b.stageValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = staged
		}
		return out, nil
	default:
		return value, nil
	}
}
