package beatsync

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rhythmnet/beatsync/internal/bundle"
	"github.com/rhythmnet/beatsync/internal/cache"
)

// connError marks an error that invalidates the whole session, as opposed
// to one that aborts only the in-flight item.
type connError struct{ err error }

func (e *connError) Error() string { return e.err.Error() }
func (e *connError) Unwrap() error { return e.err }

func fatal(err error) error {
	if err == nil {
		return nil
	}
	return &connError{err: err}
}

func isFatal(err error) bool {
	var ce *connError
	return errors.As(err, &ce)
}

// runWorker owns the steady-state loop: it drains the request queue, issues
// commands over the transport, materializes responses into the cache, and
// posts completions to the signal channel. Exactly one worker runs per
// session; a second would corrupt the single-stream protocol.
//
// Cancellation is cooperative, checked between dispatch steps; the worker
// is never interrupted mid-write.
func (s *Session) runWorker(ctx context.Context) error {
	if err := s.fetchInfoPackage(); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.requests:
			if req.Kind == EndSession {
				// the disconnect handshake that follows is driven by the
				// controller, not this loop
				return nil
			}
			if err := s.dispatch(req); err != nil {
				if isFatal(err) {
					return err
				}
				// transfer and local I/O errors abort the current item only
				s.log.Error("request failed",
					zap.String("command", req.encode()),
					zap.Error(err))
			}
		}
	}
}

func (s *Session) dispatch(req Request) error {
	switch req.Kind {
	case FetchSong:
		return s.fetchSong(req.Path)
	case FetchAlbumCover:
		return s.fetchCover(req.Path)
	case UploadScores:
		// fire-and-forget: the server acts on it asynchronously and this
		// path never produces a signal
		return fatal(s.conn.SendCommand(req.encode()))
	case FetchInfoPackage:
		return s.fetchInfoPackage()
	}
	return nil
}

// fetchInfoPackage pulls the full info package into the cache root. It runs
// once before the loop as the bootstrap handshake; the package is stale by
// construction next session, since the cache root never survives a restart.
func (s *Session) fetchInfoPackage() error {
	if err := s.conn.SendCommand(Request{Kind: FetchInfoPackage}.encode()); err != nil {
		return fatal(err)
	}

	tmp := s.cache.TempFile(".pkg")
	defer os.Remove(tmp)

	n, err := s.receiveToFile(tmp)
	if err != nil {
		return err
	}
	if err := bundle.Extract(tmp, s.cache.Root()); err != nil {
		return err
	}

	s.log.Info("info package applied", zap.Int64("bytes", n))
	return nil
}

func (s *Session) fetchSong(path string) error {
	if err := s.conn.SendCommand(Request{Kind: FetchSong, Path: path}.encode()); err != nil {
		return fatal(err)
	}

	addr := cache.Address(path)
	tmp := s.cache.TempFile(".bundle")
	defer os.Remove(tmp)

	n, err := s.receiveToFile(tmp)
	if err != nil {
		return err
	}
	if err := bundle.Extract(tmp, s.cache.SongDir(addr)); err != nil {
		// a partial directory must not mark the entry complete
		os.RemoveAll(s.cache.SongDir(addr))
		return err
	}

	s.log.Debug("song bundle materialized",
		zap.String("path", path),
		zap.String("address", addr),
		zap.Int64("bytes", n))
	s.post(Signal{Kind: DownloadComplete, ID: addr})
	return nil
}

func (s *Session) fetchCover(path string) error {
	if err := s.conn.SendCommand(Request{Kind: FetchAlbumCover, Path: path}.encode()); err != nil {
		return fatal(err)
	}

	// album art is raw image bytes, received straight to its final location
	addr := cache.Address(path)
	dest := s.cache.CoverPath(addr)
	n, err := s.receiveToFile(dest)
	if err != nil {
		// a partial file must not mark the entry complete
		os.Remove(dest)
		return err
	}

	s.log.Debug("album cover materialized",
		zap.String("path", path),
		zap.String("address", addr),
		zap.Int64("bytes", n))
	s.post(Signal{Kind: AlbumCoverComplete, ID: addr})
	return nil
}

func (s *Session) receiveToFile(path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	n, rerr := s.conn.ReceiveFrame(f)
	if cerr := f.Close(); rerr == nil {
		rerr = cerr
	}
	return n, rerr
}
