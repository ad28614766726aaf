package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/khushi89012/syook/common/logging"
	"github.com/khushi89012/syook/listener/internal/metrics"
	"github.com/khushi89012/syook/listener/internal/models"
	"github.com/khushi89012/syook/listener/internal/repository"
)

// ErrNotConnected is returned by every Supervisor call made before the
// first successful connection.
var ErrNotConnected = fmt.Errorf("%w: store not connected", repository.ErrPersistence)

// Connector opens a store. It is called until it succeeds.
type Connector func(ctx context.Context) (repository.Store, error)

// Supervisor is a repository.Store that connects lazily in the background.
// Calls fail fast with ErrNotConnected until the connection is up, so the
// ingestion path never waits on the store.
type Supervisor struct {
	connect Connector
	policy  Policy
	logger  *slog.Logger

	mu    sync.RWMutex
	store repository.Store
	ready chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSupervisor(connect Connector, policy Policy, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		connect: connect,
		policy:  policy,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Start begins connecting in the background and returns immediately.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *Supervisor) run(ctx context.Context) {
	defer s.wg.Done()

	b := backoff.WithContext(s.policy.newBackOff(), ctx)
	attempt := 0

	op := func() error {
		attempt++
		store, err := s.connect(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.store = store
		s.mu.Unlock()
		close(s.ready)
		return nil
	}
	notify := func(err error, next time.Duration) {
		s.logger.Warn("store connection failed, retrying",
			logging.Error(err),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", next),
		)
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		s.logger.Info("store connection abandoned", logging.Error(err))
		return
	}

	metrics.StoreConnected.Set(1)
	s.logger.Info("store connected", slog.Int("attempts", attempt))
}

// Ready is closed once the store is connected.
func (s *Supervisor) Ready() <-chan struct{} {
	return s.ready
}

func (s *Supervisor) Connected() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

func (s *Supervisor) current() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return nil, ErrNotConnected
	}
	return s.store, nil
}

func (s *Supervisor) UpsertBucket(ctx context.Context, minute time.Time, records []models.Reading) (*repository.UpsertResult, error) {
	store, err := s.current()
	if err != nil {
		return nil, err
	}
	return store.UpsertBucket(ctx, minute, records)
}

func (s *Supervisor) GetBucket(ctx context.Context, minute time.Time) (*models.MinuteBucket, error) {
	store, err := s.current()
	if err != nil {
		return nil, err
	}
	return store.GetBucket(ctx, minute)
}

func (s *Supervisor) ListBuckets(ctx context.Context, from, to time.Time) ([]models.MinuteBucket, error) {
	store, err := s.current()
	if err != nil {
		return nil, err
	}
	return store.ListBuckets(ctx, from, to)
}

func (s *Supervisor) Ping(ctx context.Context) error {
	store, err := s.current()
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

// Close stops any pending connection attempts and closes the store.
func (s *Supervisor) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		s.store.Close()
		s.store = nil
		metrics.StoreConnected.Set(0)
	}
}
