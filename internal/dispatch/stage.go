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

// stageResultsByHTTPOrLiteral fetches every Result value present in
// expectedOutputs into its own flat subdirectory of outDir, named after
// the output id: a file-valued result lands at outDir/<id>/<basename>, a
// literal at outDir/<id>.txt. Keeping every output under its own id
// subdirectory, rather than a single flat outDir, lets a caller resolve
// "the file for output X" unambiguously even when two outputs' hrefs
// happen to share a basename.
func stageResultsByHTTPOrLiteral(ctx context.Context, client *http.Client, results []Result, expectedOutputs map[string]string, outDir string) error {
	outDir = strings.TrimRight(outDir, "/")
	for _, result := range results {
		if _, wanted := expectedOutputs[result.ID]; !wanted {
			continue
		}
		for _, value := range result.Values {
			if value.Href != "" {
				dest := filepath.Join(outDir, result.ID)
				if err := os.MkdirAll(dest, 0o755); err != nil {
					return fmt.Errorf("dispatch: stage result %q: %w", result.ID, err)
				}
				if err := fetchToDir(ctx, client, value.Href, dest); err != nil {
					return fmt.Errorf("dispatch: stage result %q from %q: %w", result.ID, value.Href, err)
				}
				continue
			}
			if err := writeLiteralToDir(value.Value, result.ID, outDir); err != nil {
				return fmt.Errorf("dispatch: stage literal result %q: %w", result.ID, err)
			}
		}
	}
	return nil
}

func fetchToDir(ctx context.Context, client *http.Client, href, outDir string) error {
	name := href
	if idx := strings.LastIndex(href, "/"); idx >= 0 {
		name = href[idx+1:]
	}
	dst := filepath.Join(outDir, name)

	if strings.HasPrefix(href, "file://") {
		return linkOrCopy(strings.TrimPrefix(href, "file://"), dst)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %q: HTTP %d", href, resp.StatusCode)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

func writeLiteralToDir(value any, outputID, outDir string) error {
	dst := filepath.Join(outDir, outputID+".txt")
	return os.WriteFile(dst, []byte(fmt.Sprintf("%v", value)), 0o644)
}
