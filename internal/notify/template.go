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

package notify

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/crim-ca/weaver/internal/jobstore"
)

const defaultEmailTemplate = `Job {{.ID}} ({{.ProcessID}}) finished with status {{.Status}}.
{{- if .Message}}

{{.Message}}
{{- end}}
`

// templateResolver locates and renders the notification email body for a
// job, preferring the most specific template available under its
// directory before falling back to a built-in default.
type templateResolver struct {
	dir      string
	fallback *template.Template
}

func newTemplateResolver(dir string) *templateResolver {
	return &templateResolver{
		dir:      dir,
		fallback: template.Must(template.New("default").Parse(defaultEmailTemplate)),
	}
}

// resolve finds the template file for job, checked in order of
// specificity: "{processID}/{status}.tmpl", "{processID}.tmpl",
// "default.tmpl" under the configured directory. If no directory is
// configured, or none of those files exist, the built-in default is
// used.
func (r *templateResolver) resolve(job *jobstore.Job) (*template.Template, error) {
	if r.dir == "" {
		return r.fallback, nil
	}
	info, err := os.Stat(r.dir)
	if err != nil || !info.IsDir() {
		return r.fallback, nil
	}

	candidates := []string{
		filepath.Join(r.dir, fmt.Sprintf("%s/%s.tmpl", job.ProcessID, job.Status)),
		filepath.Join(r.dir, fmt.Sprintf("%s.tmpl", job.ProcessID)),
		filepath.Join(r.dir, "default.tmpl"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return template.ParseFiles(path)
		}
	}
	return r.fallback, nil
}

// render produces the email body for job using the most specific
// template resolvable under the notifier's template directory.
func (r *templateResolver) render(job *jobstore.Job) (string, error) {
	tmpl, err := r.resolve(job)
	if err != nil {
		return "", fmt.Errorf("notify: resolving email template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, job); err != nil {
		return "", fmt.Errorf("notify: rendering email template: %w", err)
	}
	return buf.String(), nil
}
