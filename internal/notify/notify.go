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

// Package notify sends job-completion notifications to subscribers
// registered at Execute time: encrypted-at-rest email addresses sent via
// SMTP, and callback URIs sent as an HTTP POST of the job result.
//
// All notification operations are non-raising by design: a failure to
// reach an SMTP host or a callback endpoint is logged and never prevents
// the owning job from reaching its terminal status.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/crim-ca/weaver/internal/config"
	"github.com/crim-ca/weaver/internal/jobstore"
	"github.com/crim-ca/weaver/internal/log"
	"github.com/crim-ca/weaver/pkg/status"
	"log/slog"
)

// Notifier dispatches subscriber notifications for completed jobs.
type Notifier struct {
	cfg        config.NotifyConfig
	passphrase []byte
	httpClient *http.Client
	logger     *slog.Logger
	templates  *templateResolver
}

// New builds a Notifier from cfg. The encryption passphrase is read from
// the environment variable named by cfg.EncryptionKeyEnv; an unset or
// empty variable still yields a usable Notifier (email encryption will
// simply use an empty passphrase), matching the source system's
// behavior of warning rather than refusing to start.
func New(cfg config.NotifyConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	passphrase := []byte(os.Getenv(cfg.EncryptionKeyEnv))
	if len(passphrase) == 0 {
		logger.Warn("notification email encryption key is not set; email subscribers are insecure",
			"env", cfg.EncryptionKeyEnv)
	}
	return &Notifier{
		cfg:        cfg,
		passphrase: passphrase,
		httpClient: &http.Client{Timeout: cfg.CallbackTimeout},
		logger:     logger,
		templates:  newTemplateResolver(cfg.TemplateDir),
	}
}

// EncryptEmail encrypts email under the Notifier's configured passphrase.
func (n *Notifier) EncryptEmail(email string) (string, error) {
	return EncryptEmail(email, n.passphrase)
}

// DecryptEmail decrypts a token produced by EncryptEmail.
func (n *Notifier) DecryptEmail(token string) (string, error) {
	return DecryptEmail(token, n.passphrase)
}

// NotifySubscribers sends every subscriber notification configured for
// job's current terminal status category. Errors are logged against
// job's identity and swallowed; execution always resumes.
func (n *Notifier) NotifySubscribers(ctx context.Context, job *jobstore.Job) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("panic while notifying job subscribers", "job_id", job.ID, "panic", r)
		}
	}()

	logger := log.WithJobContext(n.logger, job.ID, job.ProcessID)
	n.sendEmail(ctx, job, logger)
	n.sendCallback(ctx, job, logger)
}

func (n *Notifier) category(job *jobstore.Job) (status.Category, bool) {
	switch {
	case status.InCategory(job.Status, status.CompliantOGC, status.CategorySuccess):
		return status.CategorySuccess, true
	case status.InCategory(job.Status, status.CompliantOGC, status.CategoryFailed):
		return status.CategoryFailed, true
	case status.InCategory(job.Status, status.CompliantOGC, status.CategoryRunning):
		return status.CategoryRunning, true
	default:
		return "", false
	}
}

func (n *Notifier) sendEmail(ctx context.Context, job *jobstore.Job, logger *slog.Logger) {
	if !job.Subscribers.HasEmail() {
		return
	}
	category, ok := n.category(job)
	if !ok {
		logger.Warn("unmapped status category for email subscriber notification", "status", job.Status)
		return
	}
	var encrypted []byte
	switch category {
	case status.CategoryRunning:
		encrypted = job.Subscribers.RunningEmail
	case status.CategoryFailed:
		encrypted = job.Subscribers.FailedEmail
	case status.CategorySuccess:
		encrypted = job.Subscribers.SuccessEmail
	}
	if len(encrypted) == 0 {
		return
	}

	email, err := n.DecryptEmail(string(encrypted))
	if err != nil {
		logger.Error("could not decrypt subscriber email", "error", err)
		return
	}
	if err := n.sendJobEmail(job, email); err != nil {
		logger.Error("could not send notification email", "error", err)
		return
	}
	logger.Info("notification email sent successfully")
}

func (n *Notifier) sendCallback(ctx context.Context, job *jobstore.Job, logger *slog.Logger) {
	if !job.Subscribers.HasCallback() {
		return
	}
	category, ok := n.category(job)
	if !ok {
		logger.Warn("unmapped status category for callback subscriber notification", "status", job.Status)
		return
	}
	var uri string
	switch category {
	case status.CategoryRunning:
		uri = job.Subscribers.InProgressURI
	case status.CategoryFailed:
		uri = job.Subscribers.FailedURI
	case status.CategorySuccess:
		uri = job.Subscribers.SuccessURI
	}
	if uri == "" {
		return
	}

	if err := n.postCallback(ctx, uri, job, category == status.CategorySuccess); err != nil {
		logger.Error("could not send notification callback request", "error", err)
		return
	}
	logger.Info("notification callback request sent successfully")
}

// callbackTimeoutContext bounds a callback POST by cfg.CallbackTimeout,
// falling back to a conservative default when unset.
func (n *Notifier) callbackTimeoutContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := n.cfg.CallbackTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func errNotConfigured(what string) error {
	return fmt.Errorf("notify: %s is not configured", what)
}
