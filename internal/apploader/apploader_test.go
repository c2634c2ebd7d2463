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

package apploader

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/crim-ca/weaver/internal/config"
	"github.com/crim-ca/weaver/pkg/ogcerrors"
	"github.com/crim-ca/weaver/pkg/process"
)

const sampleDockerPackage = `
id: greeter
version: "1.0"
title: Greeter
requirements:
  - class: DockerRequirement
    dockerPull: ghcr.io/example/greeter:1.0
inputs:
  name:
    type: string
    title: AP provided title
outputs:
  greeting:
    type: file
    format: [text/plain]
`

func TestLoadDockerPackage(t *testing.T) {
	l := New(config.ModeADES, &fakeFetcher{})
	proc, err := l.Load(context.Background(), Document{Body: []byte(sampleDockerPackage)}, LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if proc.ID != "greeter" || proc.Requirement.Kind != process.RequirementDocker {
		t.Fatalf("Load() = %+v", proc)
	}
	if proc.Requirement.DockerImage != "ghcr.io/example/greeter:1.0" {
		t.Errorf("DockerImage = %q", proc.Requirement.DockerImage)
	}
	if !proc.SupportsSync() || !proc.SupportsAsync() {
		t.Errorf("JobControlOptions = %v, want default sync+async", proc.JobControlOptions)
	}
}

func TestLoadMergesPeerMetadata(t *testing.T) {
	l := New(config.ModeADES, &fakeFetcher{})
	peer := Document{
		ContentType: "application/json",
		Body: []byte(`{"id":"greeter","inputs":{"name":{"title":"Peer Name Title","schema":{"type":"string"}}}}`),
	}
	proc, err := l.Load(context.Background(), Document{Body: []byte(sampleDockerPackage)}, LoadOptions{Peer: &peer})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	in, ok := proc.InputByID("name")
	if !ok {
		t.Fatal("expected input \"name\"")
	}
	if in.Title != "AP provided title" {
		t.Errorf("Title = %q, want AP title to win over peer", in.Title)
	}
}

func TestLoadRejectsRemoteRequirementOnADES(t *testing.T) {
	l := New(config.ModeADES, &fakeFetcher{})
	doc := Document{Body: []byte(`
id: remote-op
requirements:
  - class: WPS1Requirement
    url: https://example.com/wps
    process: remote-op
`)}
	_, err := l.Load(context.Background(), doc, LoadOptions{})
	var verr *ogcerrors.ValidationError
	if !errors.As(err, &verr) || verr.ExceptionType() != "DeploymentIncompatible" {
		t.Fatalf("Load() error = %v, want DeploymentIncompatible", err)
	}
}

func TestLoadWithDockerAuth(t *testing.T) {
	l := New(config.ModeADES, &fakeFetcher{})
	token := base64.StdEncoding.EncodeToString([]byte("alice:s3cret"))
	proc, err := l.Load(context.Background(), Document{Body: []byte(sampleDockerPackage)}, LoadOptions{
		Auth: &AuthHeader{Scheme: "Basic", Token: token},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if proc.Requirement.DockerAuth == nil || proc.Requirement.DockerAuth.Username != "alice" {
		t.Fatalf("DockerAuth = %+v", proc.Requirement.DockerAuth)
	}
}

func TestLoadWorkflowPackage(t *testing.T) {
	fetcher := &fakeFetcher{siblings: map[string]Document{
		"hello": {ContentType: "application/json", Body: []byte(`{"id":"hello"}`)},
	}}
	l := New(config.ModeHybrid, fetcher)
	doc := Document{Body: []byte(`
id: wf
class: Workflow
steps:
  say:
    run: hello
    in:
      msg: workflow.greeting
inputs:
  greeting:
    type: string
outputs:
  result:
    type: string
`)}
	proc, err := l.Load(context.Background(), doc, LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if proc.Requirement.Kind != process.RequirementWorkflow {
		t.Fatalf("Requirement.Kind = %v, want workflow", proc.Requirement.Kind)
	}
	if len(proc.Requirement.Steps) != 1 || proc.Requirement.Steps[0].ProcessID != "hello" {
		t.Fatalf("Steps = %+v", proc.Requirement.Steps)
	}
}
