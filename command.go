package beatsync

import "github.com/rhythmnet/beatsync/internal/cache"

// RequestKind enumerates the outbound commands of the sync protocol.
type RequestKind int

const (
	FetchInfoPackage RequestKind = iota
	FetchSong
	FetchAlbumCover
	UploadScores
	EndSession
)

// Request is an outbound command. Immutable once enqueued; the request
// queue preserves FIFO order.
type Request struct {
	Kind RequestKind
	Path string // logical remote path for FetchSong and FetchAlbumCover
}

// encode returns the request's wire text.
func (r Request) encode() string {
	switch r.Kind {
	case FetchInfoPackage:
		return "FetchInfoPackage"
	case FetchSong:
		return "FetchSong," + r.Path
	case FetchAlbumCover:
		return "FetchAlbumCover," + r.Path
	case UploadScores:
		return "UploadScores"
	case EndSession:
		return "EndSession"
	}
	return ""
}

// SignalKind enumerates worker-to-caller completion notifications.
type SignalKind int

const (
	DownloadComplete SignalKind = iota
	AlbumCoverComplete
)

// Signal is a one-way completion notification. ID is the content address
// derived from the originally requested path.
type Signal struct {
	Kind SignalKind
	ID   string
}

// Address returns the content address for a logical remote path: the cache
// key, the local directory or file name, and the identifier carried in
// signals.
func Address(path string) string {
	return cache.Address(path)
}
