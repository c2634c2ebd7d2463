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

// Package apploader converts heterogeneous process descriptions —
// Application Package (AP/CWL-like) documents, legacy WPS-1/2
// DescribeProcess XML, and OGC API - Processes JSON descriptions — into
// the normalized pkg/process.Process representation, with a validated
// principal requirement and merged I/O.
package apploader

import (
	"context"
	"fmt"

	"github.com/crim-ca/weaver/internal/config"
	"github.com/crim-ca/weaver/pkg/ogcerrors"
	"github.com/crim-ca/weaver/pkg/process"
)

// Document is a fetched, content-typed process description handed to the
// Loader, e.g. the body of a deploy request or the result of dereferencing
// a package reference URL.
type Document struct {
	Body        []byte
	ContentType string
	// URL is the origin of Body when it was dereferenced from a
	// reference (used to resolve relative sibling references and to
	// inform content sniffing when ContentType is absent).
	URL string
}

// Fetcher retrieves a Document for a package reference URL, and resolves
// sibling process ids (e.g. workflow step `run: siblingID`) against the
// instance's own process catalog.
type Fetcher interface {
	// Fetch retrieves the document at ref.
	Fetch(ctx context.Context, ref string) (Document, error)

	// ResolveSibling returns the AP document previously deployed under
	// processID, for workflow step references that are bare ids rather
	// than URLs.
	ResolveSibling(ctx context.Context, processID string) (Document, error)
}

// Loader converts Documents into normalized Process values.
type Loader struct {
	mode    config.Mode
	fetcher Fetcher
}

// New builds a Loader. mode is the deploying instance's own configuration
// (ADES/EMS/Hybrid), used by the compatibility gate.
func New(mode config.Mode, fetcher Fetcher) *Loader {
	return &Loader{mode: mode, fetcher: fetcher}
}

// AuthHeader is the parsed form of a deploy request's `X-Auth-Docker`
// header, used for Docker registry authentication extraction.
type AuthHeader struct {
	Scheme string
	Token  string
}

// LoadOptions carries the per-call inputs to Load beyond the document
// itself: an optional peer description (OAP/WPS process description used
// to enrich metadata) and Docker auth header.
type LoadOptions struct {
	Peer *Document
	Auth *AuthHeader
}

// Load parses doc into a normalized Process. doc's shape is resolved by
// sniffing (see sniff.go): AP/CWL JSON or YAML, or WPS-1/2 DescribeProcess
// XML. When the result is a Workflow-class process, every step's `run`
// reference is recursively resolved through the Loader's Fetcher, with
// cycles among step dependencies rejected.
func (l *Loader) Load(ctx context.Context, doc Document, opts LoadOptions) (*process.Process, error) {
	raw, err := decodeAnyPackage(doc)
	if err != nil {
		return nil, err
	}

	proc, err := l.buildProcess(ctx, raw, doc)
	if err != nil {
		return nil, err
	}

	if opts.Peer != nil {
		peerRaw, err := l.decodePeer(*opts.Peer)
		if err != nil {
			return nil, err
		}
		mergeIO(proc, peerRaw)
	}

	if opts.Auth != nil && proc.Requirement.Kind == process.RequirementDocker {
		auth, err := buildDockerAuth(proc.Requirement.DockerImage, opts.Auth.Scheme, opts.Auth.Token)
		if err != nil {
			return nil, err
		}
		proc.Requirement.DockerAuth = auth
	}

	if err := l.checkCompatibility(proc); err != nil {
		return nil, err
	}

	return proc, nil
}

// decodePeer parses a peer description (OAP JSON or WPS XML) purely for
// its I/O metadata; peer documents never carry a principal requirement.
func (l *Loader) decodePeer(doc Document) (*rawPackage, error) {
	return decodeAnyPackage(doc)
}

// decodeAnyPackage sniffs doc's format and decodes it into a rawPackage,
// dispatching to the WPS XML or OAP JSON mapper as needed.
func decodeAnyPackage(doc Document) (*rawPackage, error) {
	kind, err := sniff(doc)
	if err != nil {
		return nil, err
	}
	switch kind {
	case formatWPSXML:
		return rawPackageFromWPSXML(doc.Body)
	case formatOAPJSON:
		return rawPackageFromOAPJSON(doc.Body)
	default:
		return decodeRawPackage(doc.Body, kind)
	}
}

func (l *Loader) buildProcess(ctx context.Context, raw *rawPackage, doc Document) (*process.Process, error) {
	proc := &process.Process{
		ID:       raw.ID,
		Version:  raw.Version,
		Title:    raw.Title,
		Abstract: raw.Abstract,
		Keywords: raw.Keywords,
	}
	proc.Inputs = toInputDefs(raw.Inputs)
	proc.Outputs = toOutputDefs(raw.Outputs)
	proc.JobControlOptions = raw.JobControlOptions
	proc.OutputTransmission = raw.OutputTransmission
	if len(proc.JobControlOptions) == 0 {
		proc.JobControlOptions = []string{"sync-execute", "async-execute"}
	}

	requirement, err := resolveRequirement(raw)
	if err != nil {
		return nil, err
	}
	proc.Requirement = requirement

	if proc.Requirement.Kind == process.RequirementWorkflow {
		steps, err := l.resolveWorkflowSteps(ctx, raw)
		if err != nil {
			return nil, err
		}
		proc.Requirement.Steps = steps
	}

	return proc, nil
}

func errInvalidRequirement(format string, args ...any) error {
	return &ogcerrors.ValidationError{Type: "InvalidRequirement", Message: fmt.Sprintf(format, args...)}
}
