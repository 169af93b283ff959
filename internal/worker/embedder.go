// Package worker runs embedding computation off the request path. Entry
// creation enqueues the entry ID and returns immediately; the worker calls the
// embedding service and stores the vector, logging failures instead of
// propagating them back into request handling.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kiroku/internal/provider"
	"github.com/hyperjump/kiroku/internal/storage"
)

const (
	defaultQueueSize = 256
	retryDelay       = 5 * time.Second
	maxAttempts      = 3
)

type job struct {
	entryID string
	attempt int
}

// Embedder consumes queued entry IDs and persists their embeddings.
type Embedder struct {
	storage  storage.Storage
	provider provider.Client
	logger   *zap.Logger

	jobs   chan job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewEmbedder creates a worker. Call Start to begin consuming.
func NewEmbedder(store storage.Storage, client provider.Client, logger *zap.Logger) *Embedder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Embedder{
		storage:  store,
		provider: client,
		logger:   logger,
		jobs:     make(chan job, defaultQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutine.
func (e *Embedder) Start() {
	e.wg.Add(1)
	go e.run()
}

// Stop cancels pending work and waits for the worker goroutine to exit.
func (e *Embedder) Stop() {
	e.once.Do(e.cancel)
	e.wg.Wait()
}

// Enqueue schedules embedding computation for an entry. Never blocks request
// handling: when the queue is full the job is dropped and logged; the batch
// process endpoint picks up anything left unembedded.
func (e *Embedder) Enqueue(entryID string) {
	select {
	case e.jobs <- job{entryID: entryID, attempt: 1}:
	default:
		e.logger.Warn("embedding queue full, dropping job", zap.String("entry_id", entryID))
	}
}

func (e *Embedder) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case j := <-e.jobs:
			e.process(j)
		}
	}
}

func (e *Embedder) process(j job) {
	entry, err := e.storage.GetEntry(e.ctx, j.entryID)
	if err != nil {
		// Deleted before the worker got to it; nothing to do.
		e.logger.Debug("entry gone before embedding", zap.String("entry_id", j.entryID))
		return
	}

	result, err := e.provider.Embed(e.ctx, entry.Content)
	if err != nil {
		if j.attempt < maxAttempts {
			e.logger.Warn("embedding failed, will retry",
				zap.String("entry_id", j.entryID),
				zap.Int("attempt", j.attempt),
				zap.Error(err))
			e.retryLater(j)
			return
		}
		e.logger.Error("embedding failed permanently",
			zap.String("entry_id", j.entryID), zap.Error(err))
		return
	}

	if err := e.storage.UpsertEmbedding(e.ctx, j.entryID, result.Vector, result.Chunks); err != nil {
		e.logger.Error("storing embedding failed",
			zap.String("entry_id", j.entryID), zap.Error(err))
		return
	}
	e.logger.Debug("embedding stored",
		zap.String("entry_id", j.entryID), zap.Int("chunks", result.Chunks))
}

func (e *Embedder) retryLater(j job) {
	j.attempt++
	timer := time.NewTimer(retryDelay)
	go func() {
		defer timer.Stop()
		select {
		case <-e.ctx.Done():
		case <-timer.C:
			select {
			case e.jobs <- j:
			default:
				e.logger.Warn("embedding queue full, dropping retry", zap.String("entry_id", j.entryID))
			}
		}
	}()
}
