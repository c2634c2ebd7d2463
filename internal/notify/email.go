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

import (
	"fmt"

	"github.com/crim-ca/weaver/internal/jobstore"
	"github.com/wneessen/go-mail"
)

// sendJobEmail renders the configured template for job and delivers it
// to recipient over the configured SMTP transport.
func (n *Notifier) sendJobEmail(job *jobstore.Job, recipient string) error {
	smtp := n.cfg.SMTP
	if smtp.Host == "" || smtp.Port == 0 {
		return errNotConfigured("SMTP host/port")
	}

	body, err := n.templates.render(job)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(smtp.From); err != nil {
		return fmt.Errorf("notify: invalid from address %q: %w", smtp.From, err)
	}
	if err := msg.To(recipient); err != nil {
		return fmt.Errorf("notify: invalid recipient address: %w", err)
	}
	msg.Subject(fmt.Sprintf("[weaver] job %s: %s", job.ID, job.Status))
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{mail.WithPort(smtp.Port)}
	if smtp.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if smtp.Username != "" {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthPlain), mail.WithUsername(smtp.Username), mail.WithPassword(smtp.Password))
	}

	client, err := mail.NewClient(smtp.Host, opts...)
	if err != nil {
		return fmt.Errorf("notify: building SMTP client: %w", err)
	}
	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("notify: sending email: %w", err)
	}
	return nil
}
