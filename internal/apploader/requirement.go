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
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/crim-ca/weaver/internal/config"
	"github.com/crim-ca/weaver/pkg/ogcerrors"
	"github.com/crim-ca/weaver/pkg/process"
)

// principalClasses maps an AP/CWL requirement class name to the
// RequirementKind it selects. Exactly one of these may appear across a
// (non-Workflow) package's requirements and hints combined.
var principalClasses = map[string]process.RequirementKind{
	"DockerRequirement":  process.RequirementDocker,
	"BuiltinRequirement": process.RequirementBuiltin,
	"OGCAPIRequirement":  process.RequirementOGCAPI,
	"WPS1Requirement":    process.RequirementWPS1,
	"ESGFCWTRequirement": process.RequirementESGFCWT,
}

// auxiliaryClasses lists requirement classes permitted alongside a
// principal requirement.
var auxiliaryClasses = map[string]bool{
	"EnvVarRequirement":        true,
	"ResourceRequirement":      true,
	"InitialWorkDirRequirement": true,
}

// remoteKinds classifies a principal RequirementKind as always requiring
// dispatch to an external provider.
var remoteKinds = map[process.RequirementKind]bool{
	process.RequirementOGCAPI:   true,
	process.RequirementWPS1:     true,
	process.RequirementESGFCWT:  true,
	process.RequirementWorkflow: true,
}

// resolveRequirement extracts raw's principal requirement and validates
// that every remaining requirement/hint entry belongs to the supported
// auxiliary set, mirroring get_application_requirement's single-match
// rule.
func resolveRequirement(raw *rawPackage) (process.Requirement, error) {
	all := append(append([]rawRequirement{}, raw.Requirements...), raw.Hints...)

	var principal []rawRequirement
	var aux []rawRequirement
	for _, r := range all {
		if _, ok := principalClasses[r.Class]; ok {
			principal = append(principal, r)
		} else {
			aux = append(aux, r)
		}
	}

	for _, r := range aux {
		if !auxiliaryClasses[r.Class] {
			return process.Requirement{}, errInvalidRequirement(
				"unsupported requirement/hint class %q", r.Class)
		}
	}

	if strings.EqualFold(raw.Class, "Workflow") {
		if len(principal) > 0 {
			return process.Requirement{}, errInvalidRequirement(
				"a Workflow-class package must not declare an application principal requirement (found %q)",
				principal[0].Class)
		}
		return process.Requirement{Kind: process.RequirementWorkflow}, nil
	}

	if len(principal) == 0 {
		return process.Requirement{}, errInvalidRequirement(
			"package declares no principal application requirement amongst %s", principalClassNames())
	}
	if len(principal) > 1 {
		names := make([]string, len(principal))
		for i, r := range principal {
			names[i] = r.Class
		}
		return process.Requirement{}, errInvalidRequirement(
			"package requirements/hints define conflicting principal requirements: %v", names)
	}

	req := principal[0]
	kind := principalClasses[req.Class]
	out := process.Requirement{Kind: kind}

	switch kind {
	case process.RequirementDocker:
		if req.DockerPull == "" {
			return process.Requirement{}, errInvalidRequirement("DockerRequirement is missing dockerPull")
		}
		out.DockerImage = req.DockerPull
	case process.RequirementOGCAPI, process.RequirementWPS1, process.RequirementESGFCWT:
		if req.ProviderURL == "" {
			return process.Requirement{}, errInvalidRequirement("%s is missing a provider url", req.Class)
		}
		out.ProviderID = req.ProviderID
		out.ProviderURL = req.ProviderURL
		out.RemoteProcessID = req.ProcessID
	}
	return out, nil
}

func principalClassNames() []string {
	names := make([]string, 0, len(principalClasses))
	for name := range principalClasses {
		names = append(names, name)
	}
	return names
}

// checkCompatibility classifies proc as always-remote (a kind listed in
// remoteKinds) or local-capable (every other kind; there is no separate
// ambiguous class), and rejects always-remote packages deployed on an
// instance that cannot dispatch remotely.
func (l *Loader) checkCompatibility(proc *process.Process) error {
	if !remoteKinds[proc.Requirement.Kind] {
		return nil // local-capable: Builtin, Docker
	}
	if l.mode == config.ModeADES {
		return &ogcerrors.ValidationError{
			Type: "DeploymentIncompatible",
			Message: fmt.Sprintf(
				"process %q requires remote dispatch (%s) but this instance is configured as ADES-only",
				proc.ID, proc.Requirement.Kind),
		}
	}
	return nil
}

// buildDockerAuth validates a deploy request's X-Auth-Docker header and
// binds it to image, accepting only the Basic scheme.
func buildDockerAuth(image, scheme, token string) (*process.DockerAuth, error) {
	if !strings.EqualFold(scheme, "Basic") {
		return nil, &ogcerrors.ValidationError{
			Type:    "InvalidAuthenticationScheme",
			Message: fmt.Sprintf("unsupported Docker authentication scheme %q", scheme),
		}
	}
	registry := dockerRegistryHost(image)
	username, password, err := decodeBasicToken(token)
	if err != nil {
		return nil, err
	}
	return &process.DockerAuth{Registry: registry, Username: username, Password: password}, nil
}

// dockerRegistryHost extracts the registry host from a dockerPull
// reference, e.g. "registry.example.com/org/image:tag" -> the host, or ""
// for Docker Hub images that carry no explicit registry.
func dockerRegistryHost(image string) string {
	ref := image
	if i := strings.IndexByte(ref, '/'); i > 0 {
		host := ref[:i]
		if strings.ContainsAny(host, ".:") || host == "localhost" {
			return host
		}
	}
	return ""
}

// decodeBasicToken decodes a base64 "username:password" Basic credential
// token, as carried by the X-Auth-Docker header's token part.
func decodeBasicToken(token string) (username, password string, err error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", &ogcerrors.ValidationError{
			Type:    "InvalidAuthenticationScheme",
			Message: "X-Auth-Docker token is not valid base64",
		}
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", &ogcerrors.ValidationError{
			Type:    "InvalidAuthenticationScheme",
			Message: "X-Auth-Docker token must decode to \"username:password\"",
		}
	}
	return parts[0], parts[1], nil
}
