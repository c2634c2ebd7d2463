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

import "github.com/crim-ca/weaver/pkg/process"

// mergeIO folds a peer process/provider description's metadata into proc's
// inputs and outputs. The Application Package remains authoritative for
// type and cardinality; the peer description may only contribute title,
// abstract, and additional supported media types that the AP document
// didn't declare (plus the process-level keywords when the AP has none). Peer I/O entries with no AP counterpart are ignored: the
// AP's input/output set is the contract.
func mergeIO(proc *process.Process, peer *rawPackage) {
	if proc.Title == "" {
		proc.Title = peer.Title
	}
	if proc.Abstract == "" {
		proc.Abstract = peer.Abstract
	}
	if len(proc.Keywords) == 0 {
		proc.Keywords = peer.Keywords
	}

	for i := range proc.Inputs {
		mergeIODef(&proc.Inputs[i].Title, &proc.Inputs[i].Abstract, &proc.Inputs[i].MimeTypes, peer.Inputs[proc.Inputs[i].ID])
	}
	for i := range proc.Outputs {
		mergeIODef(&proc.Outputs[i].Title, &proc.Outputs[i].Abstract, &proc.Outputs[i].MimeTypes, peer.Outputs[proc.Outputs[i].ID])
	}
}

// mergeIODef fills title/abstract when the AP side left them empty and
// appends any peer-declared media type not already present, deduplicating
// by exact string match.
func mergeIODef(title, abstract *string, mimeTypes *[]string, peer rawIO) {
	if *title == "" {
		*title = peer.Title
	}
	if *abstract == "" {
		*abstract = peer.Abstract
	}
	for _, mt := range peer.Format {
		if !containsString(*mimeTypes, mt) {
			*mimeTypes = append(*mimeTypes, mt)
		}
	}
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
