// Package upstream implements the authenticated client pool (§4.B) and the
// per-client byte streamer (§4.C) that together resolve a channel video
// message into a finite, ordered sequence of raw media bytes.
package upstream

import "context"

// FileDescriptor is the volatile, per-message metadata needed to address
// and fetch a video's bytes. It mirrors the upstream chat protocol's file
// identifier structure directly.
type FileDescriptor struct {
	MediaID       int64
	AccessHash    int64
	FileReference []byte
	ThumbSize     string
	DCID          int32
	FileType      int32
	FileSize      int64
	MimeType      string
	FileName      string
	UniqueID      string
}

// MediaSession represents an open, authenticated byte-range-fetch session
// bound to a specific datacenter. Sessions are cached by dc_id and reused
// across files that live in the same datacenter.
type MediaSession interface {
	// GetFile requests (offset, limit) bytes from location and returns the
	// raw buffer, which may be shorter than limit only at EOF.
	GetFile(ctx context.Context, desc *FileDescriptor, offset, limit int64) ([]byte, error)
}

// Client is the upstream authenticated-fetcher abstraction. There is no
// MTProto/Telegram client library in the retrieved example pack, so the
// boundary is modeled as an interface satisfying exactly the capabilities
// the core pipeline needs (spec §9's "explicit capability set" guidance);
// a real implementation wraps whatever chat-protocol SDK is available, a
// test implementation is a hand-written fake.
type Client interface {
	// Start connects and authenticates the client.
	Start(ctx context.Context) error
	// Stop disconnects the client, waiting for it to fully terminate.
	Stop(ctx context.Context) error
	// DCID returns the client's home datacenter.
	DCID() int32
	// GetFileProperties fetches the chat message identified by
	// (chatID, messageID), rejects anything that is not a video message
	// (msg.video, or msg.document with a video/* MIME type) with a
	// NotFoundError, and returns its augmented file descriptor.
	GetFileProperties(ctx context.Context, chatID, messageID int64) (*FileDescriptor, error)
	// OpenSession returns a MediaSession bound to dcID, creating one via
	// export/import authorization handoff from the home session when
	// dcID differs from the client's home datacenter.
	OpenSession(ctx context.Context, dcID int32) (MediaSession, error)
	// ScanRecentVideos implements playlist.Scanner for this client: it
	// walks up to limit messages starting at startFrom (0 = most recent)
	// and returns the IDs of those that are video messages.
	ScanRecentVideos(ctx context.Context, chatID int64, startFrom int64, limit int) ([]int64, error)
	// ChannelDisplayName best-effort resolves a human-readable name for
	// chatID; returns "" if unavailable.
	ChannelDisplayName(ctx context.Context, chatID int64) string
}
