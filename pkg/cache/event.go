// SPDX-License-Identifier: MPL-2.0

package cache

import "fmt"

// EventKind classifies cache progress events.
type EventKind int

const (
	// EventChecking means an existing cache entry is being verified.
	EventChecking EventKind = iota
	// EventBusting means a cache entry failed verification and is being removed.
	EventBusting
	// EventAlreadyDownloading means another request is downloading the same
	// artifact and this one has attached to it.
	EventAlreadyDownloading
	// EventProgress reports bytes received so far.
	EventProgress
	// EventDownloaded means the download finished and verified.
	EventDownloaded
	// EventUnpacking means the cached artifact is being copied or extracted.
	EventUnpacking
)

// Event is a progress notification from the cache.
type Event struct {
	Kind EventKind
	URL  string
	Path string
	// Bytes is the number of bytes received so far.
	Bytes int64
	// Total is the expected size, or -1 when unknown.
	Total int64
}

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case EventChecking:
		return "checking"
	case EventBusting:
		return "busting"
	case EventAlreadyDownloading:
		return "already-downloading"
	case EventProgress:
		return "progress"
	case EventDownloaded:
		return "downloaded"
	case EventUnpacking:
		return "unpacking"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Percent returns download completion in [0, 100], or -1 when the total size
// is unknown.
func (e Event) Percent() int {
	if e.Total <= 0 {
		return -1
	}
	return int(min(100, e.Bytes*100/e.Total))
}
