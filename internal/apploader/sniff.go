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
	"bytes"
	"path"
	"strings"
)

// format identifies the wire shape of a Document once resolved, prior to
// being decoded into a rawPackage.
type format int

const (
	formatUnknown format = iota
	formatJSON
	formatYAML
	formatWPSXML
	formatOAPJSON
)

// sniff resolves doc's format. Content-Type is checked first; when it is
// absent or generic (text/plain), extension and content sniffing decide:
// a leading '{' is JSON, a leading "<?xml" is XML, and ".yml"/".yaml"
// extensions select YAML. OAP JSON process descriptions are JSON payloads
// distinguished from AP/CWL JSON by the presence of an "outputTransmission"
// or "jobControlOptions" key, found by a substring scan of the raw body.
func sniff(doc Document) (format, error) {
	switch normalizeContentType(doc.ContentType) {
	case "application/json":
		return classifyJSON(doc.Body), nil
	case "application/xml", "text/xml":
		return formatWPSXML, nil
	case "application/x-yaml", "application/yaml", "text/yaml":
		return formatYAML, nil
	}

	body := bytes.TrimSpace(doc.Body)
	switch {
	case bytes.HasPrefix(body, []byte("<?xml")), bytes.HasPrefix(body, []byte("<")):
		return formatWPSXML, nil
	case bytes.HasPrefix(body, []byte("{")):
		return classifyJSON(doc.Body), nil
	}

	switch strings.ToLower(path.Ext(doc.URL)) {
	case ".yml", ".yaml", ".cwl":
		return formatYAML, nil
	case ".json":
		return classifyJSON(doc.Body), nil
	case ".xml":
		return formatWPSXML, nil
	}

	// Default to YAML: a superset of JSON, and the AP/CWL document
	// format most commonly used without an explicit extension.
	return formatYAML, nil
}

func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}

// classifyJSON distinguishes an OAP process description (which carries
// "jobControlOptions" or "outputTransmission") from an AP/CWL document.
// The keys are matched anywhere in the body, not only at the document root.
func classifyJSON(body []byte) format {
	if bytes.Contains(body, []byte(`"jobControlOptions"`)) || bytes.Contains(body, []byte(`"outputTransmission"`)) {
		return formatOAPJSON
	}
	return formatJSON
}
