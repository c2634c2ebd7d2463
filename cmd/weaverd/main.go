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

// Command weaverd runs the weaver orchestrator daemon: it loads the
// instance's Settings, wires the job store, object store, container
// runtime, execution engine, and scheduler together, and accepts Execute
// submissions until asked to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crim-ca/weaver/internal/config"
	"github.com/crim-ca/weaver/internal/containerrt"
	"github.com/crim-ca/weaver/internal/engine"
	"github.com/crim-ca/weaver/internal/jobstore"
	"github.com/crim-ca/weaver/internal/jobstore/memory"
	"github.com/crim-ca/weaver/internal/log"
	"github.com/crim-ca/weaver/internal/notify"
	"github.com/crim-ca/weaver/internal/objectstore"
	"github.com/crim-ca/weaver/internal/queue"
	"github.com/crim-ca/weaver/internal/scheduler"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to the weaver config file")
		listenAddr   = flag.String("listen", "", "HTTP listen address (overrides config)")
		storeBackend = flag.String("store-backend", "", "Job store backend (memory, postgres)")
		showVersion  = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("weaverd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weaverd: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.HTTP.ListenAddr = *listenAddr
	}
	if *storeBackend != "" {
		cfg.Store.Backend = *storeBackend
	}

	logCfg := log.FromEnv()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = log.Format(cfg.Log.Format)
	logCfg.AddSource = cfg.Log.AddSource
	logger := log.New(logCfg)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newJobStore(cfg.Store)
	if err != nil {
		logger.Error("failed to initialize job store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	objStore, err := newObjectStore(ctx, cfg.Object)
	if err != nil {
		logger.Error("failed to initialize object store", "error", err)
		os.Exit(1)
	}

	notifier := notify.New(cfg.Notify, logger)
	runtime := containerrt.NewDockerCLIRuntime(cfg.Engine.DockerBinary)
	builtins := containerrt.NewBuiltinRegistry()

	eng := engine.New(
		store,
		runtime,
		builtins,
		objStore,
		notifier,
		logger,
		os.TempDir(),
		cfg.Object,
		cfg.Engine.DefaultJobTimeout,
		cfg.Providers,
		nil,
	)

	q := queue.New(cfg.Engine.MaxConcurrentJobs)
	maxSyncWait := time.Duration(cfg.HTTP.MaxSyncWait) * time.Second
	sched := scheduler.New(store, q, eng, notifier, maxSyncWait, logger)

	logger.Info("weaverd starting",
		"version", version,
		"commit", commit,
		"mode", cfg.Mode,
		"listen_addr", cfg.HTTP.ListenAddr,
		"store_backend", cfg.Store.Backend,
	)

	// TODO: serve the OGC API - Processes HTTP surface (internal/api) over
	// sched once that package exists; until then the scheduler is live and
	// submittable in-process but has no listener wired to it.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal, draining queue",
		"signal", sig.String(),
		"pending_waiters", sched.PendingWaiters(),
	)
	cancel()

	if err := q.Shutdown(cfg.HTTP.ShutdownTimeout); err != nil {
		logger.Error("error during shutdown", "error", err)
		os.Exit(1)
	}
}

// newJobStore builds the configured jobstore.Store backend. Only the
// in-memory backend is implemented today; a "postgres" selection is
// rejected with a clear configuration error rather than silently falling
// back, so a misconfigured deployment fails at startup instead of losing
// job history on restart.
func newJobStore(cfg config.StoreConfig) (jobstore.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("store backend %q is not yet implemented", cfg.Backend)
	}
}

func newObjectStore(ctx context.Context, cfg config.ObjectConfig) (objectstore.Store, error) {
	switch cfg.Backend {
	case "", "filesystem":
		return objectstore.NewFilesystemStore(cfg.WPSOutputDir, cfg.WPSOutputURL), nil
	case "s3":
		return objectstore.NewS3Store(ctx, objectstore.S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	default:
		return nil, fmt.Errorf("object store backend %q is not supported", cfg.Backend)
	}
}
