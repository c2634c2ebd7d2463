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

// Package stage moves a completed job's local output files into durable
// storage (filesystem or S3, via internal/objectstore) and rewrites their
// locations as pseudo-relative references a job's result records can
// carry forward across a reconfiguration of the public output URL.
package stage

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/crim-ca/weaver/internal/objectstore"
)

// ResultValue is one staged value of a job output: either a stored
// reference (Href) or an inline literal passed through unchanged.
type ResultValue struct {
	Href  string
	Value any
}

// Result is one finished job output, named by its declared output id.
type Result struct {
	ID     string
	Values []ResultValue
}

// Output describes a single output produced by a local execution: either
// a local file or directory to move into storage, or an inline literal
// value that never touches the object store.
type Output struct {
	ID   string
	Path string
	// Value carries an inline literal. Used only when Path is empty.
	Value any
}

// Stager moves local output files into a Store and rewrites the returned
// href as a pseudo-relative path when it falls under the configured WPS
// output URL, so the public base URL can be recomputed later without
// invalidating already-recorded results.
type Stager struct {
	Store        objectstore.Store
	WPSOutputURL string
}

// New builds a Stager. wpsOutputURL is the externally-reachable base URL
// Store's filesystem backend (if any) serves objects under; an empty
// string disables pseudo-relative rewriting, which is appropriate for an
// S3-backed Store whose URLs are never relative to it.
func New(store objectstore.Store, wpsOutputURL string) *Stager {
	return &Stager{Store: store, WPSOutputURL: strings.TrimSuffix(wpsOutputURL, "/")}
}

// Stage moves every output in outputs under a key prefixed by jobCtx (may
// be empty), jobID, and the output's own id, and returns the rewritten
// Result records. A directory output is staged file by file, preserving
// its internal structure; an empty directory is recorded as a zero-byte
// marker object. Every staged local path is removed once its contents
// are durably stored.
func (s *Stager) Stage(ctx context.Context, jobCtx, jobID string, outputs []Output) ([]Result, error) {
	results := make([]Result, 0, len(outputs))
	for _, out := range outputs {
		if out.Path == "" {
			results = append(results, Result{ID: out.ID, Values: []ResultValue{{Value: out.Value}}})
			continue
		}
		values, err := s.stagePath(ctx, keyPrefix(jobCtx, jobID, out.ID), out.Path)
		if err != nil {
			return nil, fmt.Errorf("stage: output %q: %w", out.ID, err)
		}
		results = append(results, Result{ID: out.ID, Values: values})
	}
	return results, nil
}

func (s *Stager) stagePath(ctx context.Context, prefix, localPath string) ([]ResultValue, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", localPath, err)
	}
	if !info.IsDir() {
		return s.stageFile(ctx, prefix, localPath)
	}
	return s.stageDir(ctx, prefix, localPath)
}

func (s *Stager) stageFile(ctx context.Context, prefix, localPath string) ([]ResultValue, error) {
	href, err := s.putFile(ctx, prefix+"/"+filepath.Base(localPath), localPath)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(localPath); err != nil {
		return nil, fmt.Errorf("removing staged source %q: %w", localPath, err)
	}
	return []ResultValue{{Href: href}}, nil
}

// stageDir stores every file under localPath individually, preserving
// its relative layout, but returns a single ResultValue naming the
// directory itself: directory-valued outputs are recorded as one href a
// caller lists or fetches recursively, not one href per contained file.
func (s *Stager) stageDir(ctx context.Context, prefix, localPath string) ([]ResultValue, error) {
	fileCount := 0
	err := filepath.WalkDir(localPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		if _, err := s.putFile(ctx, prefix+"/"+filepath.ToSlash(rel), path); err != nil {
			return err
		}
		fileCount++
		return nil
	})
	if err != nil {
		return nil, err
	}
	if fileCount == 0 {
		if _, err := s.Store.PutEmpty(ctx, prefix+"/.keep"); err != nil {
			return nil, fmt.Errorf("staging empty directory %q: %w", localPath, err)
		}
	}
	if err := os.RemoveAll(localPath); err != nil {
		return nil, fmt.Errorf("removing staged source directory %q: %w", localPath, err)
	}
	return []ResultValue{{Href: s.pseudoRelative(s.Store.URL(prefix + "/"))}}, nil
}

func (s *Stager) putFile(ctx context.Context, key, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("reading %q: %w", localPath, err)
	}
	href, err := s.Store.Put(ctx, key, data, contentTypeFor(localPath))
	if err != nil {
		return "", err
	}
	return s.pseudoRelative(href), nil
}

// pseudoRelative strips the configured WPS output URL from href, leaving
// a "/"-rooted path; anything else (an S3 URL, or a filesystem URL under
// a different base) is returned verbatim.
func (s *Stager) pseudoRelative(href string) string {
	if s.WPSOutputURL == "" || !strings.HasPrefix(href, s.WPSOutputURL) {
		return href
	}
	rel := strings.TrimPrefix(href, s.WPSOutputURL)
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return rel
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func keyPrefix(jobCtx, jobID, outputID string) string {
	parts := make([]string, 0, 3)
	if jobCtx != "" {
		parts = append(parts, strings.Trim(jobCtx, "/"))
	}
	parts = append(parts, jobID, outputID)
	return strings.Join(parts, "/")
}
