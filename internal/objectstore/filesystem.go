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

package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore writes objects under a root directory, served back out
// under an external base URL (e.g. by a static file handler mounted at
// that URL's path).
type FilesystemStore struct {
	rootDir string
	baseURL string
}

// NewFilesystemStore creates a FilesystemStore rooted at rootDir, whose
// contents are reachable at baseURL.
func NewFilesystemStore(rootDir, baseURL string) *FilesystemStore {
	return &FilesystemStore{
		rootDir: rootDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *FilesystemStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	dest := filepath.Join(s.rootDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("writing output file: %w", err)
	}
	return s.URL(key), nil
}

func (s *FilesystemStore) PutEmpty(ctx context.Context, key string) (string, error) {
	return s.Put(ctx, key, nil, "")
}

func (s *FilesystemStore) URL(key string) string {
	return s.baseURL + "/" + strings.TrimPrefix(key, "/")
}
