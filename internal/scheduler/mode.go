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
	"time"

	"github.com/crim-ca/weaver/pkg/process"
)

type resolvedMode struct {
	async             bool
	wait              time.Duration
	preferenceApplied string
}

// resolveMode computes the effective execution mode in precedence order:
// the Prefer header, the body's `mode` field, then the process's declared
// jobControlOptions. A sync request against a process that only supports
// async is downgraded, echoing `Preference-Applied: respond-async`.
func resolveMode(prefer Prefer, bodyMode string, proc *process.Process) resolvedMode {
	wantsSync := false
	explicit := false

	switch {
	case prefer.RespondAsync:
		explicit = true
	case bodyMode == "sync":
		wantsSync = true
		explicit = true
	case bodyMode == "async":
		explicit = true
	}

	if !explicit {
		wantsSync = proc.SupportsSync()
	}

	if wantsSync && !proc.SupportsSync() {
		return resolvedMode{async: true, wait: prefer.Wait, preferenceApplied: "respond-async"}
	}

	return resolvedMode{async: !wantsSync, wait: prefer.Wait}
}
