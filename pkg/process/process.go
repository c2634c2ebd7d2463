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

// Package process defines the normalized, in-memory representation of a
// registered process: the product of merging an Application Package
// document (CWL-like) with its peer OGC API / WPS description.
package process

import "time"

// RequirementKind identifies the principal requirement class of a
// process, i.e. how the orchestrator executes it.
type RequirementKind string

const (
	RequirementBuiltin  RequirementKind = "builtin"
	RequirementDocker   RequirementKind = "docker"
	RequirementOGCAPI   RequirementKind = "ogcapi"
	RequirementWPS1     RequirementKind = "wps1"
	RequirementESGFCWT  RequirementKind = "esgf-cwt"
	RequirementWorkflow RequirementKind = "workflow"
)

// Requirement describes how a process is executed.
type Requirement struct {
	Kind RequirementKind

	// Docker
	DockerImage string
	DockerAuth  *DockerAuth

	// OGCAPI / WPS1 / ESGF-CWT: the remote provider this process proxies.
	ProviderID  string
	ProviderURL string
	RemoteProcessID string

	// Workflow: ordered steps and their data-flow dependencies.
	Steps []WorkflowStep
}

// DockerAuth carries credentials for pulling a private container image.
type DockerAuth struct {
	Registry string
	Username string
	Password string
}

// WorkflowStep is one node of a Workflow requirement's step graph.
type WorkflowStep struct {
	ID        string
	ProcessID string
	// In maps this step's input id to a source: either "workflow.<id>"
	// (a workflow-level input) or "<stepID>.<outputID>" (another step's
	// output). Cycles among step dependencies are rejected at load time.
	In map[string]string
}

// InputDef describes one process input.
type InputDef struct {
	ID          string
	Title       string
	Abstract    string
	Type        string // "string","integer","float","boolean","bbox","file","directory"
	MimeTypes   []string
	MinOccurs   int
	MaxOccurs   int // 0 means unbounded
	Default     any
	Schema      map[string]any
}

// OutputDef describes one process output.
type OutputDef struct {
	ID        string
	Title     string
	Abstract  string
	Type      string
	MimeTypes []string
	Schema    map[string]any
}

// Process is the normalized representation of a registered process: the
// Application Package is authoritative for Type/Requirement; a peer OAP
// or WPS ProcessDescription may add Title/Abstract/Keywords metadata that
// the AP document omitted. Merge never lets peer metadata override the
// AP's type or requirement.
type Process struct {
	ID          string
	Version     string
	Title       string
	Abstract    string
	Keywords    []string
	Inputs      []InputDef
	Outputs     []OutputDef
	Requirement Requirement

	// JobControlOptions declares supported execution modes, e.g.
	// "sync-execute", "async-execute".
	JobControlOptions []string

	// OutputTransmission declares supported output delivery modes:
	// "value", "reference".
	OutputTransmission []string

	Deployed  time.Time
	Updated   time.Time
	Visibility string // "public" or "private"
}

// InputByID returns the input definition for id, or false if absent.
func (p *Process) InputByID(id string) (InputDef, bool) {
	for _, in := range p.Inputs {
		if in.ID == id {
			return in, true
		}
	}
	return InputDef{}, false
}

// OutputByID returns the output definition for id, or false if absent.
func (p *Process) OutputByID(id string) (OutputDef, bool) {
	for _, out := range p.Outputs {
		if out.ID == id {
			return out, true
		}
	}
	return OutputDef{}, false
}

// SupportsSync reports whether the process may be executed synchronously.
func (p *Process) SupportsSync() bool {
	for _, m := range p.JobControlOptions {
		if m == "sync-execute" {
			return true
		}
	}
	return false
}

// SupportsAsync reports whether the process may be executed asynchronously.
func (p *Process) SupportsAsync() bool {
	for _, m := range p.JobControlOptions {
		if m == "async-execute" {
			return true
		}
	}
	return false
}
