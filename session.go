package beatsync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/rhythmnet/beatsync/internal/bundle"
	"github.com/rhythmnet/beatsync/internal/cache"
	"github.com/rhythmnet/beatsync/internal/wire"
)

// shutdownAck is the literal the server sends to acknowledge EndSession,
// clearing the client to upload its score records.
const shutdownAck = "ReqInfoPkgThenEnd"

// Session is one client lifetime against a content server: a live stream,
// an ephemeral cache root, and a single background sync worker. Create with
// New, connect with Start, tear down with Stop.
type Session struct {
	opts  *Options
	log   *zap.Logger
	cache *cache.Cache

	conn     *wire.Conn
	requests chan Request
	signals  chan Signal
	notify   func(Signal)

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
	sigCh  chan os.Signal

	started  atomic.Bool
	stopOnce sync.Once
	stopErr  error

	mu        sync.Mutex
	workerErr error
}

// New creates an unconnected session.
func New(opts ...Option) *Session {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Session{
		opts:     options,
		log:      options.Logger,
		cache:    cache.New(options.CacheDir),
		requests: make(chan Request, options.QueueSize),
		signals:  make(chan Signal, options.QueueSize),
	}
}

// OnSignal registers the notification callback. Register before Start; the
// callback runs on the caller's own thread, inside CheckForSignals.
func (s *Session) OnSignal(fn func(Signal)) {
	s.notify = fn
}

// Start establishes the connection, recreates the cache root empty, and
// launches the sync worker. Stop is also hooked to run on process exit.
func (s *Session) Start(serverAddress string) error {
	if s.started.Load() {
		return errors.New("beatsync: session already started")
	}

	conn, err := wire.Dial(s.address(serverAddress), s.opts.DialTimeout, s.opts.ReadTimeout)
	if err != nil {
		return err
	}
	if err := s.cache.Reset(); err != nil {
		conn.Close()
		return err
	}

	s.conn = conn
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.started.Store(true)

	s.sigCh = make(chan os.Signal, 1)
	signal.Notify(s.sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-s.sigCh:
			s.Stop()
		case <-s.ctx.Done():
		}
	}()

	s.wg.Go(func() {
		if err := s.runWorker(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.setErr(err)
			s.log.Error("sync worker exited", zap.Error(err))
			s.cancel()
		}
	})

	s.log.Info("session started",
		zap.String("server", serverAddress),
		zap.String("cache", s.cache.Root()))
	return nil
}

// Stop runs the disconnect handshake, closes the connection, and deletes
// the entire cache root. A no-op when no connection was ever established;
// safe to call more than once.
func (s *Session) Stop() error {
	if !s.started.Load() {
		return nil
	}
	s.stopOnce.Do(func() { s.stopErr = s.shutdown() })
	return s.stopErr
}

func (s *Session) shutdown() error {
	signal.Stop(s.sigCh)

	// Ask the worker loop to finish between items. If the queue is jammed
	// or the worker is already gone, fall back to cooperative cancellation.
	select {
	case s.requests <- Request{Kind: EndSession}:
	default:
		s.cancel()
	}

	// The worker may be parked posting a completion nobody reads anymore;
	// drain stray signals until it is gone.
	workerDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(workerDone)
	}()
	for draining := true; draining; {
		select {
		case <-s.signals:
		case <-workerDone:
			draining = false
		}
	}

	herr := s.disconnect()
	cerr := s.conn.Close()
	derr := s.cache.Destroy()

	s.log.Info("session stopped")
	s.cancel()
	return errors.Join(herr, cerr, derr)
}

// disconnect runs the final exchange: announce EndSession, wait for the
// server's acknowledgment, then upload the score records as one framed
// bundle. The acknowledgment wait is bounded by the ack timeout.
func (s *Session) disconnect() error {
	if err := s.conn.SendCommand(Request{Kind: EndSession}.encode()); err != nil {
		return err
	}
	if err := s.conn.AwaitText(shutdownAck, s.opts.AckTimeout); err != nil {
		return fmt.Errorf("disconnect handshake: %w", err)
	}

	tmp := s.cache.TempFile(".scores")
	if err := bundle.Create(tmp, s.cache.ScorePath()); err != nil {
		return fmt.Errorf("package scores: %w", err)
	}
	defer os.Remove(tmp)

	f, err := os.Open(tmp)
	if err != nil {
		return fmt.Errorf("open score bundle: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat score bundle: %w", err)
	}
	if err := s.conn.SendFrame(f, info.Size()); err != nil {
		return fmt.Errorf("upload scores: %w", err)
	}

	s.log.Info("score records uploaded", zap.Int64("bytes", info.Size()))
	return nil
}

// CheckForSignals drains all currently-available signals, invoking the
// notification callback once per signal in FIFO order on the caller's own
// thread. Returns immediately when the channel is empty.
func (s *Session) CheckForSignals() {
	for {
		select {
		case sig := <-s.signals:
			if s.notify != nil {
				s.notify(sig)
			}
		default:
			return
		}
	}
}

// RequestDownload asks for a song bundle. If the bundle is already
// materialized the completion signal is posted immediately and nothing goes
// over the network; otherwise a fetch is enqueued. Never blocks on I/O.
func (s *Session) RequestDownload(path string) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	addr := cache.Address(path)
	if s.cache.HasSong(addr) {
		s.post(Signal{Kind: DownloadComplete, ID: addr})
		return nil
	}
	return s.enqueue(Request{Kind: FetchSong, Path: path})
}

// RequestAlbumCover asks for album art, with the same dedup contract as
// RequestDownload.
func (s *Session) RequestAlbumCover(path string) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	addr := cache.Address(path)
	if s.cache.HasCover(addr) {
		s.post(Signal{Kind: AlbumCoverComplete, ID: addr})
		return nil
	}
	return s.enqueue(Request{Kind: FetchAlbumCover, Path: path})
}

// WriteScores notifies the server that score records are ready. The command
// is fire-and-forget: no response is awaited and no signal is produced.
func (s *Session) WriteScores() error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	return s.enqueue(Request{Kind: UploadScores})
}

// ScorePath returns the score-record file the disconnect handshake uploads.
// The caller appends records to it during the session.
func (s *Session) ScorePath() string {
	return s.cache.ScorePath()
}

// CacheDir returns the session's cache root.
func (s *Session) CacheDir() string {
	return s.cache.Root()
}

// Done is closed once the session is no longer usable: after Stop has torn
// everything down, or once the worker has died of a connection-fatal error.
// Nil before Start.
func (s *Session) Done() <-chan struct{} {
	if !s.started.Load() {
		return nil
	}
	return s.ctx.Done()
}

// Err reports a connection-fatal worker error, if any. Per-item transfer
// errors are logged and recovered; only errors that invalidate the whole
// session surface here, leaving the disconnect/retry decision to the
// caller.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workerErr
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workerErr == nil {
		s.workerErr = err
	}
}

func (s *Session) enqueue(req Request) error {
	select {
	case s.requests <- req:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

func (s *Session) post(sig Signal) {
	select {
	case s.signals <- sig:
	case <-s.ctx.Done():
	}
}

func (s *Session) address(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, strconv.Itoa(s.opts.Port))
}
