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

// Package status defines job status constants and the mapping between
// the orchestrator's canonical status vocabulary and the vocabularies
// used by OGC API - Processes, legacy PyWPS/WPS, OWSLib and OpenEO
// compliant clients.
package status

import "strings"

// Status is a canonical job status value.
type Status string

// Canonical statuses. These are the values stored in the job store and
// reported on the OGC API - Processes wire unless a client requests a
// different compliance profile via Map.
const (
	Created    Status = "created"
	Queued     Status = "queued"
	Accepted   Status = "accepted"
	Started    Status = "started"
	Paused     Status = "paused"
	Running    Status = "running"
	Succeeded  Status = "succeeded"
	Successful Status = "successful"
	Failed     Status = "failed"
	Error      Status = "error"
	Finished   Status = "finished"
	Canceled   Status = "canceled"
	Dismissed  Status = "dismissed"
	Exception  Status = "exception"
	Unknown    Status = "unknown"
)

// Category buckets statuses for category-based queries (e.g. "give me all
// jobs that are still in flight").
type Category string

const (
	CategoryFinished Category = "finished"
	CategoryRunning  Category = "running"
	CategoryPending  Category = "pending"
	CategoryFailed   Category = "failed"
	CategorySuccess  Category = "success"
)

// Compliant identifies the status vocabulary a caller expects back.
type Compliant string

const (
	CompliantOGC    Compliant = "ogc"
	CompliantPyWPS  Compliant = "pywps"
	CompliantOWSLib Compliant = "owslib"
	CompliantOpenEO Compliant = "openeo"
)

// categories maps each compliance profile and category to the set of
// status values that belong to it. Mirrors JOB_STATUS_CATEGORIES.
var categories = map[Compliant]map[Category]map[Status]struct{}{
	CompliantOGC: {
		CategoryFinished: set(Succeeded, Failed, Dismissed),
		CategoryRunning:  set(Running),
		CategoryPending:  set(Accepted),
		CategoryFailed:   set(Failed),
		CategorySuccess:  set(Succeeded),
	},
	CompliantPyWPS: {
		CategoryFinished: set(Succeeded, Failed),
		CategoryRunning:  set(Started, Paused),
		CategoryPending:  set(Accepted),
		CategoryFailed:   set(Failed, Exception),
		CategorySuccess:  set(Succeeded),
	},
	CompliantOWSLib: {
		CategoryFinished: set(Succeeded, Failed),
		CategoryRunning:  set(Started, Paused),
		CategoryPending:  set(Accepted),
		CategoryFailed:   set(Failed),
		CategorySuccess:  set(Succeeded),
	},
	CompliantOpenEO: {
		CategoryFinished: set(Finished, Error, Canceled),
		CategoryRunning:  set(Running),
		CategoryPending:  set(Created, Queued),
		CategoryFailed:   set(Error),
		CategorySuccess:  set(Finished),
	},
}

func set(vals ...Status) map[Status]struct{} {
	m := make(map[Status]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

// InCategory reports whether status belongs to category under the given
// compliance profile.
func InCategory(s Status, compliant Compliant, category Category) bool {
	profile, ok := categories[compliant]
	if !ok {
		profile = categories[CompliantOGC]
	}
	statuses, ok := profile[category]
	if !ok {
		return false
	}
	_, found := statuses[s]
	return found
}

// Map translates an arbitrary upstream status string (as reported by a
// WPS-1/2, ESGF-CWT or OGC API provider) into the canonical Status the
// orchestrator stores, optionally re-expressed in a target compliance
// vocabulary. When category is true the category name is returned instead
// of the individual status, mirroring map_status(..., category=True).
func Map(wpsStatus string, compliant Compliant, category bool) Status {
	canonical := normalize(wpsStatus)

	if !category {
		return reexpress(canonical, compliant)
	}

	switch {
	case InCategory(canonical, compliant, CategorySuccess):
		return Status(CategorySuccess)
	case InCategory(canonical, compliant, CategoryFailed):
		return Status(CategoryFailed)
	case InCategory(canonical, compliant, CategoryRunning):
		return Status(CategoryRunning)
	case InCategory(canonical, compliant, CategoryPending):
		return Status(CategoryPending)
	default:
		return Status(CategoryRunning)
	}
}

// normalize folds the many spellings used by upstream providers
// (ProcessStarted, ProcessSucceeded, ProcessFailed, status=running, ...)
// onto the canonical vocabulary.
func normalize(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "process")
	switch {
	case strings.Contains(s, "succeed"), strings.Contains(s, "success"):
		return Succeeded
	case strings.Contains(s, "fail"):
		return Failed
	case strings.Contains(s, "except"):
		return Exception
	case strings.Contains(s, "error"):
		return Error
	case strings.Contains(s, "dismiss"), strings.Contains(s, "cancel"):
		return Dismissed
	case strings.Contains(s, "start"):
		return Started
	case strings.Contains(s, "pause"):
		return Paused
	case strings.Contains(s, "running") || strings.Contains(s, "accept"):
		if strings.Contains(s, "accept") {
			return Accepted
		}
		return Running
	case strings.Contains(s, "queue"):
		return Queued
	case strings.Contains(s, "created"):
		return Created
	case strings.Contains(s, "finish"):
		return Finished
	default:
		return Unknown
	}
}

// reexpress renders the canonical status in the vocabulary of the
// requested compliance profile.
func reexpress(s Status, compliant Compliant) Status {
	switch compliant {
	case CompliantOpenEO:
		switch s {
		case Succeeded, Successful:
			return Finished
		case Failed, Exception:
			return Error
		case Dismissed:
			return Canceled
		case Accepted:
			return Created
		default:
			return s
		}
	case CompliantPyWPS, CompliantOWSLib:
		switch s {
		case Dismissed:
			return Failed
		default:
			return s
		}
	default: // OGC
		switch s {
		case Successful:
			return Succeeded
		case Finished:
			return Succeeded
		case Error, Exception:
			return Failed
		case Canceled:
			return Dismissed
		case Created, Queued:
			return Accepted
		default:
			return s
		}
	}
}

// IsDone reports whether a status is terminal under the OGC vocabulary:
// no further progress updates should be accepted once a job reaches one
// of these.
func IsDone(s Status) bool {
	switch reexpress(s, CompliantOGC) {
	case Succeeded, Failed, Dismissed:
		return true
	default:
		return false
	}
}
