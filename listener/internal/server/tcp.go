package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khushi89012/syook/common/framing"
	"github.com/khushi89012/syook/common/logging"
	"github.com/khushi89012/syook/listener/internal/metrics"
	"github.com/khushi89012/syook/listener/internal/models"
	"github.com/khushi89012/syook/listener/internal/ratelimit"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("tcp server closed")

// BatchProcessor handles one complete batch.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batch []byte, receivedAt time.Time) models.Outcome
}

type TCPConfig struct {
	Addr          string
	MaxBatchBytes int
	ReadBuffer    int
	// IdleTimeout closes connections that send nothing for this long. Zero disables it.
	IdleTimeout time.Duration
}

// TCPServer accepts producer connections. Each connection is served by its
// own goroutine with its own framer, so batches on one connection are
// processed in arrival order and a slow connection never holds up another.
type TCPServer struct {
	cfg       TCPConfig
	processor BatchProcessor
	limiter   ratelimit.RateLimiter
	logger    *logging.Logger
	now       func() time.Time

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool

	wg sync.WaitGroup
}

func NewTCPServer(cfg TCPConfig, processor BatchProcessor, limiter ratelimit.RateLimiter, logger *logging.Logger) *TCPServer {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = 64 * 1024
	}
	return &TCPServer{
		cfg:       cfg,
		processor: processor,
		limiter:   limiter,
		logger:    logger,
		now:       time.Now,
		conns:     make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on cfg.Addr and serves until Shutdown.
func (s *TCPServer) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until Shutdown. ctx is the parent of
// every connection's context.
func (s *TCPServer) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > time.Second {
					tempDelay = time.Second
				}
				s.logger.Warn("accept error, retrying", logging.Error(err), slog.Duration("retry_in", tempDelay))
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0

		if !s.track(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}
		go s.handleConn(ctx, conn)
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *TCPServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *TCPServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *TCPServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *TCPServer) handleConn(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	connID := uuid.NewString()
	ctx = logging.ContextWithConnID(ctx, connID)
	remote := conn.RemoteAddr().String()
	logger := s.logger.WithContext(ctx).With(logging.RemoteAddr(remote))

	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	allowed, err := s.limiter.Allow(ctx, host)
	if err != nil {
		// Fail open: a broken limiter must not stop ingestion.
		logger.Warn("rate limit check failed", logging.Error(err))
	} else if !allowed {
		metrics.ConnectionsTotal.WithLabelValues("rate_limited").Inc()
		logger.Warn("connection rate limited")
		return
	}

	metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	logger.Info("connection opened")
	start := time.Now()

	framer := framing.New(s.cfg.MaxBatchBytes)
	// A partial batch left when the connection ends is discarded.
	defer framer.Reset()

	buf := make([]byte, s.cfg.ReadBuffer)
	batches := 0
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			receivedAt := s.now()
			complete, ferr := framer.Write(buf[:n])
			for _, batch := range complete {
				s.processor.ProcessBatch(ctx, batch, receivedAt)
				batches++
			}
			if ferr != nil {
				logger.Warn("closing connection", logging.Error(ferr))
				return
			}
		}

		if err != nil {
			var ne net.Error
			switch {
			case errors.Is(err, io.EOF):
			case errors.As(err, &ne) && ne.Timeout():
				logger.Info("connection idle, closing")
			case s.isClosed():
			default:
				logger.Warn("connection read failed", logging.Error(err))
			}
			if pending := framer.Buffered(); pending > 0 {
				logger.Debug("discarding partial batch", slog.Int("bytes", pending))
			}
			logger.Info("connection closed",
				slog.Int("batches", batches),
				logging.Duration(time.Since(start)),
			)
			return
		}
	}
}

// Shutdown stops accepting, waits for open connections to finish until ctx
// is done, then closes whatever is left.
func (s *TCPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}
