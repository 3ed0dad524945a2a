// Package beatsync maintains a persistent connection to a remote content
// server and mirrors song bundles, album art, and the startup info package
// into a local ephemeral cache, uploading score records when the session
// ends.
//
// The caller-facing surface never blocks on network I/O: requests go onto a
// queue drained by a single background worker, and completions come back on
// a signal channel the caller drains at its own cadence (e.g. once per UI
// frame).
//
// Basic usage:
//
//	s := beatsync.New(beatsync.WithCacheDir(dir))
//
//	s.OnSignal(func(sig beatsync.Signal) {
//	    // sig.ID is the content address of the finished item
//	})
//
//	if err := s.Start("play.example.net"); err != nil { ... }
//
//	// enqueue fetches; already-cached paths complete immediately
//	s.RequestDownload("songs/neon-drift")
//	s.RequestAlbumCover("covers/neon-drift")
//
//	// on the caller's own schedule
//	s.CheckForSignals()
//
//	// notify the server that score records are ready
//	s.WriteScores()
//
//	// disconnect handshake: uploads scores, then deletes the cache root
//	s.Stop()
package beatsync
