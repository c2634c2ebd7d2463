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

package notify

import "github.com/crim-ca/weaver/internal/jobstore"

// SubmitSubscribers is the `subscribers` object of an Execute request
// body, plus the back-compat top-level `notification_email` alias.
type SubmitSubscribers struct {
	InProgressEmail string `json:"inProgressEmail,omitempty"`
	FailedEmail     string `json:"failedEmail,omitempty"`
	SuccessEmail    string `json:"successEmail,omitempty"`

	InProgressURI string `json:"inProgressUri,omitempty"`
	FailedURI     string `json:"failedUri,omitempty"`
	SuccessURI    string `json:"successUri,omitempty"`

	// NotificationEmail is the legacy alias submitted at the request
	// root. When set, it fills FailedEmail and SuccessEmail wherever
	// those were not otherwise provided.
	NotificationEmail string `json:"-"`
}

// MapSubscribers converts a submitted subscribers object into the
// encrypted-at-rest form persisted on the Job. Returns nil if no
// subscriber target was requested at all.
func (n *Notifier) MapSubscribers(sub SubmitSubscribers) (*jobstore.Subscribers, error) {
	failedEmail := sub.FailedEmail
	if failedEmail == "" {
		failedEmail = sub.NotificationEmail
	}
	successEmail := sub.SuccessEmail
	if successEmail == "" {
		successEmail = sub.NotificationEmail
	}

	out := &jobstore.Subscribers{
		InProgressURI: sub.InProgressURI,
		FailedURI:     sub.FailedURI,
		SuccessURI:    sub.SuccessURI,
	}

	for _, pair := range []struct {
		plaintext string
		dst       *[]byte
	}{
		{sub.InProgressEmail, &out.RunningEmail},
		{failedEmail, &out.FailedEmail},
		{successEmail, &out.SuccessEmail},
	} {
		if pair.plaintext == "" {
			continue
		}
		token, err := n.EncryptEmail(pair.plaintext)
		if err != nil {
			return nil, err
		}
		*pair.dst = []byte(token)
	}

	if !out.HasEmail() && !out.HasCallback() {
		return nil, nil
	}
	return out, nil
}
