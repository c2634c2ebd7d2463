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

package scheduler

import (
	"strconv"
	"strings"
	"time"
)

// ParsePrefer parses the value of an incoming request's Prefer header.
// Only the two preferences OGC API - Processes profiles are recognized:
// `respond-async` and `wait=<seconds>`; anything else is ignored.
func ParsePrefer(header string) Prefer {
	var p Prefer
	for _, tok := range strings.Split(header, ",") {
		tok = strings.TrimSpace(tok)
		switch {
		case tok == "":
			continue
		case strings.EqualFold(tok, "respond-async"):
			p.RespondAsync = true
		case strings.HasPrefix(strings.ToLower(tok), "wait="):
			secs := strings.TrimSpace(tok[len("wait="):])
			secs = strings.Trim(secs, `"`)
			if n, err := strconv.Atoi(secs); err == nil && n > 0 {
				p.Wait = time.Duration(n) * time.Second
			}
		}
	}
	return p
}
