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

package status

import "testing"

func TestMapNormalizesProviderSpellings(t *testing.T) {
	cases := map[string]Status{
		"ProcessSucceeded": Succeeded,
		"ProcessFailed":    Failed,
		"ProcessStarted":   Started,
		"ProcessPaused":    Paused,
		"ProcessAccepted":  Accepted,
	}
	for raw, want := range cases {
		if got := Map(raw, CompliantOGC, false); got != want {
			t.Errorf("Map(%q, OGC, false) = %q, want %q", raw, got, want)
		}
	}
}

func TestMapOpenEOReexpression(t *testing.T) {
	if got := Map("ProcessSucceeded", CompliantOpenEO, false); got != Finished {
		t.Errorf("openeo success = %q, want finished", got)
	}
	if got := Map("ProcessFailed", CompliantOpenEO, false); got != Error {
		t.Errorf("openeo failed = %q, want error", got)
	}
}

func TestMapCategory(t *testing.T) {
	if got := Map("ProcessSucceeded", CompliantOGC, true); got != Status(CategorySuccess) {
		t.Errorf("category(success) = %q, want %q", got, CategorySuccess)
	}
	if got := Map("ProcessRunning", CompliantOGC, true); got != Status(CategoryRunning) {
		t.Errorf("category(running) = %q, want %q", got, CategoryRunning)
	}
}

func TestIsDone(t *testing.T) {
	done := []Status{Succeeded, Failed, Dismissed, Finished, Error, Canceled}
	for _, s := range done {
		if !IsDone(s) {
			t.Errorf("IsDone(%q) = false, want true", s)
		}
	}
	inFlight := []Status{Accepted, Started, Running, Paused, Queued, Created}
	for _, s := range inFlight {
		if IsDone(s) {
			t.Errorf("IsDone(%q) = true, want false", s)
		}
	}
}
