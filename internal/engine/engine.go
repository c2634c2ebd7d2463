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

// Package engine implements the Execution Engine: the scheduler.Executor
// that drives one accepted job from its declared inputs through whichever
// backend its process's principal requirement names — a local Docker
// container, an in-process builtin, a remote OAP/WPS-1/ESGF-CWT/ADES
// provider, or a nested Workflow step graph — collecting its outputs,
// staging them to durable storage, and notifying subscribers.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/crim-ca/weaver/internal/config"
	"github.com/crim-ca/weaver/internal/containerrt"
	"github.com/crim-ca/weaver/internal/dispatch"
	"github.com/crim-ca/weaver/internal/jobstore"
	"github.com/crim-ca/weaver/internal/log"
	"github.com/crim-ca/weaver/internal/notify"
	"github.com/crim-ca/weaver/internal/objectstore"
	"github.com/crim-ca/weaver/internal/stage"
	"github.com/crim-ca/weaver/internal/workflowrun"
	"github.com/crim-ca/weaver/pkg/ogcerrors"
	"github.com/crim-ca/weaver/pkg/process"
	"github.com/crim-ca/weaver/pkg/status"
)

// Progress marks contractual to every job this engine drives, regardless
// of which backend its requirement dispatches to.
const (
	ProgressSetup      = 1
	ProgressStageIn    = 5
	ProgressExecute    = 10
	ProgressStageOut   = 95
	ProgressStatistics = 98
	ProgressNotify     = 99
	ProgressComplete   = 100
)

// Engine wires together every collaborator a job execution needs.
type Engine struct {
	store    jobstore.Store
	runtime  containerrt.Runtime
	builtins *containerrt.BuiltinRegistry
	stager   *stage.Stager
	notifier *notify.Notifier
	logger   *slog.Logger
	vault    VaultStore

	workDir      string
	wpsOutputDir string
	wpsOutputURL string
	jobTimeout   time.Duration

	providers map[string]config.ProviderConfig

	workflowRunner *workflowrun.Runner
}

// New builds an Engine. workDir is the scratch directory job and step
// working directories are created under, rooted separately from the
// object store's own durable storage.
func New(
	store jobstore.Store,
	runtime containerrt.Runtime,
	builtins *containerrt.BuiltinRegistry,
	objStore objectstore.Store,
	notifier *notify.Notifier,
	logger *slog.Logger,
	workDir string,
	object config.ObjectConfig,
	jobTimeout time.Duration,
	providers map[string]config.ProviderConfig,
	vault VaultStore,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:        store,
		runtime:      runtime,
		builtins:     builtins,
		stager:       stage.New(objStore, object.WPSOutputURL),
		notifier:     notifier,
		logger:       logger,
		vault:        vault,
		workDir:      workDir,
		wpsOutputDir: object.WPSOutputDir,
		wpsOutputURL: object.WPSOutputURL,
		jobTimeout:   jobTimeout,
		providers:    providers,
	}
	rehost := dispatch.NewBase(nil, object.WPSOutputDir, object.WPSOutputURL)
	e.workflowRunner = workflowrun.New(e, stepExecutor{engine: e}, &rehost)
	return e
}

// Resolve implements workflowrun.ProcessResolver by looking up a step's
// process in the same store that backs deploy-time registration.
func (e *Engine) Resolve(ctx context.Context, processID string) (*process.Process, error) {
	return e.store.GetProcess(ctx, processID)
}

// stepExecutor adapts Engine's core dispatch to workflowrun.StepExecutor's
// contract, which reports no progress of its own (the Runner reports step
// -level progress around it).
type stepExecutor struct{ engine *Engine }

func (s stepExecutor) Execute(ctx context.Context, proc *process.Process, inputs map[string]any, outDir string) (map[string]any, error) {
	return s.engine.runRaw(ctx, proc, inputs, outDir, func(string, int, status.Status) {})
}

// Execute implements scheduler.Executor: it drives jobID through the full
// phased sequence, persisting status/progress as it goes, and never
// returns an error itself — failures are recorded on the job.
func (e *Engine) Execute(ctx context.Context, jobID string) {
	snap, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		e.logger.Error("engine: could not load job for execution", "job_id", jobID, "error", err)
		return
	}
	logger := log.WithJobContext(e.logger, jobID, snap.ProcessID)

	proc, err := e.store.GetProcess(ctx, snap.ProcessID)
	if err != nil {
		e.fail(ctx, jobID, logger, &ogcerrors.PackageExecutionError{JobID: jobID, Message: "process not found", Cause: err})
		return
	}

	started := time.Now()
	workDir := filepath.Join(e.workDir, jobID)

	if err := e.store.UpdateJob(ctx, jobID, func(j *jobstore.Job) error {
		now := time.Now()
		j.Status = status.Running
		j.Progress = ProgressSetup
		j.Message = "setting up job execution"
		j.WorkDir = workDir
		j.StartedAt = &now
		j.UpdatedAt = now
		return nil
	}); err != nil {
		logger.Error("engine: could not mark job started", "error", err)
		return
	}

	jobCtx := e.jobTimeoutContext(ctx)
	defer jobCtx.cancel()

	report := func(message string, progress int, st status.Status) {
		if uerr := e.store.UpdateJob(ctx, jobID, func(j *jobstore.Job) error {
			j.Status = st
			j.Progress = progress
			j.Message = message
			j.UpdatedAt = time.Now()
			return nil
		}); uerr != nil {
			logger.Warn("engine: could not persist progress update", "error", uerr)
		}
		logger.Info(message, "progress", progress, "status", st)
	}

	rawOutputs, runErr := e.runRaw(jobCtx.ctx, proc, toRawInputs(snap.Inputs), workDir, report)
	if runErr != nil {
		e.fail(ctx, jobID, logger, &ogcerrors.PackageExecutionError{JobID: jobID, Message: "execution failed", Cause: runErr})
		return
	}

	outputs, err := fromRawOutputs(proc, rawOutputs)
	if err != nil {
		e.fail(ctx, jobID, logger, &ogcerrors.PackageExecutionError{JobID: jobID, Message: "could not interpret process outputs", Cause: err})
		return
	}

	report("computing execution statistics", ProgressStatistics, status.Running)
	duration := time.Since(started)

	var final *jobstore.Job
	if err := e.store.UpdateJob(ctx, jobID, func(j *jobstore.Job) error {
		now := time.Now()
		j.Status = status.Succeeded
		j.Progress = ProgressComplete
		j.Message = "job completed successfully"
		j.Outputs = outputs
		j.FinishedAt = &now
		j.UpdatedAt = now
		final = j
		return nil
	}); err != nil {
		logger.Error("engine: could not record job completion", "error", err)
		return
	}
	logger.Info("job succeeded", "duration_ms", duration.Milliseconds())

	e.notify(ctx, jobID, final)
}

// runRaw dispatches proc by its principal requirement kind and returns its
// raw output values (local paths once staged, or hrefs for remote/workflow
// results), keyed by output id. It is the shared core behind both the
// top-level job driver and workflow step execution.
func (e *Engine) runRaw(ctx context.Context, proc *process.Process, raw map[string]any, workDir string, report dispatch.StatusFunc) (map[string]any, error) {
	switch proc.Requirement.Kind {
	case process.RequirementWorkflow:
		report("running workflow steps", ProgressExecute, status.Running)
		return e.workflowRunner.Run(ctx, proc, raw, workDir, workflowrun.StatusFunc(report))

	case process.RequirementDocker:
		report("staging inputs for container execution", ProgressStageIn, status.Running)
		localRaw, err := e.stageLocalInputs(ctx, proc, raw, filepath.Join(workDir, "inputs"))
		if err != nil {
			return nil, err
		}
		report("running containerized process", ProgressExecute, status.Running)
		out, err := e.runDocker(ctx, proc, localRaw, workDir)
		if err != nil {
			return nil, err
		}
		report("staging job outputs", ProgressStageOut, status.Running)
		return e.stageOutputs(ctx, proc, workDir, out)

	case process.RequirementBuiltin:
		report("staging inputs for builtin execution", ProgressStageIn, status.Running)
		localRaw, err := e.stageLocalInputs(ctx, proc, raw, filepath.Join(workDir, "inputs"))
		if err != nil {
			return nil, err
		}
		report("running builtin process", ProgressExecute, status.Running)
		out, err := e.runBuiltin(ctx, proc, localRaw, workDir)
		if err != nil {
			return nil, err
		}
		report("staging job outputs", ProgressStageOut, status.Running)
		return e.stageOutputs(ctx, proc, workDir, out)

	case process.RequirementOGCAPI, process.RequirementWPS1, process.RequirementESGFCWT:
		out, err := e.runRemote(ctx, proc, raw, workDir, report)
		if err != nil {
			return nil, err
		}
		return e.stageOutputs(ctx, proc, workDir, out)

	default:
		return nil, fmt.Errorf("engine: process %q has an unsupported requirement kind %q", proc.ID, proc.Requirement.Kind)
	}
}

// stageOutputs moves every local output file/directory runRaw produced
// into durable storage, keyed under a prefix derived from workDir so that
// both top-level job outputs and nested workflow step outputs land at a
// stable, collision-free location.
func (e *Engine) stageOutputs(ctx context.Context, proc *process.Process, workDir string, localOutputs map[string]any) (map[string]any, error) {
	outs := make([]stage.Output, 0, len(localOutputs))
	for _, def := range proc.Outputs {
		value, ok := localOutputs[def.ID]
		if !ok {
			continue
		}
		path, ok := value.(string)
		if !ok {
			continue
		}
		outs = append(outs, stage.Output{ID: def.ID, Path: path})
	}

	results, err := e.stager.Stage(ctx, "", e.resultKey(workDir), outs)
	if err != nil {
		return nil, err
	}

	raw := make(map[string]any, len(results))
	for _, r := range results {
		if len(r.Values) == 0 {
			continue
		}
		v := r.Values[0]
		if v.Href != "" {
			raw[r.ID] = v.Href
		} else {
			raw[r.ID] = v.Value
		}
	}
	return raw, nil
}

// resultKey derives a stable, collision-free object-store key prefix from
// a job or workflow step's working directory, by taking its path relative
// to the engine's own scratch root.
func (e *Engine) resultKey(workDir string) string {
	rel, err := filepath.Rel(e.workDir, workDir)
	if err != nil || rel == "." {
		return filepath.Base(workDir)
	}
	return filepath.ToSlash(rel)
}

func (e *Engine) fail(ctx context.Context, jobID string, logger *slog.Logger, err *ogcerrors.PackageExecutionError) {
	logger.Error("job execution failed", "error", err)
	var final *jobstore.Job
	if uerr := e.store.UpdateJob(ctx, jobID, func(j *jobstore.Job) error {
		now := time.Now()
		j.Status = status.Failed
		j.Message = err.Message
		j.ErrorType = err.ExceptionType()
		j.ErrorMessage = err.Error()
		j.FinishedAt = &now
		j.UpdatedAt = now
		final = j
		return nil
	}); uerr != nil {
		logger.Error("engine: could not record job failure", "error", uerr)
		return
	}
	e.notify(ctx, jobID, final)
}

func (e *Engine) notify(ctx context.Context, jobID string, job *jobstore.Job) {
	if e.notifier == nil || job == nil {
		return
	}
	e.notifier.NotifySubscribers(ctx, job)
}

type cancelableContext struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (e *Engine) jobTimeoutContext(parent context.Context) cancelableContext {
	if e.jobTimeout <= 0 {
		ctx, cancel := context.WithCancel(parent)
		return cancelableContext{ctx: ctx, cancel: cancel}
	}
	ctx, cancel := context.WithTimeout(parent, e.jobTimeout)
	return cancelableContext{ctx: ctx, cancel: cancel}
}
