package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/guven8/beamng-telemetry-platform/internal/api"
	"github.com/guven8/beamng-telemetry-platform/internal/ingest"
	"github.com/guven8/beamng-telemetry-platform/internal/persist"
	"github.com/guven8/beamng-telemetry-platform/internal/pipeline"
	"github.com/guven8/beamng-telemetry-platform/internal/session"
	"github.com/guven8/beamng-telemetry-platform/internal/storage"
	"github.com/guven8/beamng-telemetry-platform/internal/stream"
)

const storageDir = "data"

// Run wires the pipeline and blocks until the context is cancelled or
// a task fails fatally. Tasks: UDP receiver, broadcast consumer,
// persistence worker, HTTP server. Each observes cancellation at its
// next suspension point and releases its resources before exiting.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("creating storage: %w", err)
	}
	defer store.Close()

	queue := pipeline.NewQueue(pipeline.WithBufferSize(config.Ingest.QueueSize))
	hub := stream.NewHub(logger)
	receiver := ingest.NewReceiver(queue, logger, ingest.WithPort(config.Ingest.UDPPort))

	subjectID := config.Ingest.SubjectID
	broadcaster := stream.NewBroadcaster(queue.Subscribe("broadcast"), hub, subjectID, logger)

	tracker := session.NewTracker(store, subjectID, logger)
	writer := persist.NewWriter(queue.Subscribe("persistence"), tracker, store, logger)

	server := api.NewServer(store, hub, queue, receiver, subjectID, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := func(name string, task func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := task(ctx); err != nil {
				logger.Error(fmt.Sprintf("%s: %s", name, err.Error()))

				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()

				cancel() // one fatal task takes the process down
			}
		}()
	}

	start("udp receiver", receiver.Run)
	start("broadcast consumer", broadcaster.Run)
	start("persistence worker", writer.Run)
	start("http server", func(ctx context.Context) error {
		logger.Info("HTTP server listening", slog.String("addr", config.Server.ListenAddr))
		return server.ListenAndServe(ctx, config.Server.ListenAddr)
	})

	wg.Wait()
	return errors.Join(errs...)
}

func createStorage(config *StorageConfig) (*storage.Store, error) {
	dir := config.DataDirectory
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting current working directory: %w", err)
		}
		dir = filepath.Join(wd, storageDir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory %q: %w", dir, err)
	}

	return storage.New(filepath.Join(dir, config.FileName)), nil
}
