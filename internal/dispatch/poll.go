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

package dispatch

import (
	"context"
	"fmt"
	"time"
)

// PollResult is returned by a PollFunc on each polling attempt.
type PollResult struct {
	// Done reports whether the remote job reached a terminal state.
	Done bool
	// Succeeded is only meaningful when Done is true.
	Succeeded bool
}

// PollFunc performs one status check against a remote provider.
type PollFunc func(ctx context.Context) (PollResult, error)

// PollBackoffConfig bounds the exponential backoff used while monitoring a
// remote job: the interval starts at Initial, doubles on every attempt,
// and is capped at Max. Monitoring gives up after MaxFailures consecutive
// read failures.
type PollBackoffConfig struct {
	Initial     time.Duration
	Max         time.Duration
	MaxFailures int
}

// DefaultPollBackoff matches the monitoring contract: initial 2s, doubling,
// capped at 60s, failing after 5 consecutive read failures.
func DefaultPollBackoff() PollBackoffConfig {
	return PollBackoffConfig{Initial: 2 * time.Second, Max: 60 * time.Second, MaxFailures: 5}
}

// Poll blocks, calling poll on the given backoff schedule, until poll
// reports Done, ctx is canceled, or MaxFailures consecutive errors occur.
func Poll(ctx context.Context, cfg PollBackoffConfig, poll PollFunc) (bool, error) {
	if cfg.Initial <= 0 {
		cfg = DefaultPollBackoff()
	}
	interval := cfg.Initial
	failures := 0

	for {
		result, err := poll(ctx)
		if err != nil {
			failures++
			if failures >= cfg.MaxFailures {
				return false, fmt.Errorf("dispatch: monitoring aborted after %d consecutive failures: %w", failures, err)
			}
		} else {
			failures = 0
			if result.Done {
				return result.Succeeded, nil
			}
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}

		interval *= 2
		if interval > cfg.Max {
			interval = cfg.Max
		}
	}
}
