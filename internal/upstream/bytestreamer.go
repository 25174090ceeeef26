package upstream

import (
	"context"
	"sync"
	"time"

	"github.com/arung-agamani/denpa-stream/internal/xerrors"
)

// ChunkSize is the fixed byte-range request size used by YieldFile.
const ChunkSize = 512 * 1024

// descriptorCacheTTL is the sweep interval after which the whole per-client
// descriptor cache is cleared at once.
const descriptorCacheTTL = 30 * time.Minute

// PartCount returns the number of chunks a file of the given size splits
// into, at least 1.
func PartCount(fileSize int64) int {
	if fileSize <= 0 {
		return 1
	}
	n := fileSize / ChunkSize
	if fileSize%ChunkSize != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return int(n)
}

// LastCut returns the byte offset within the final chunk at which the
// file ends: file_size mod chunk_size, or chunk_size when it divides
// evenly.
func LastCut(fileSize int64) int64 {
	cut := fileSize % ChunkSize
	if cut == 0 {
		return ChunkSize
	}
	return cut
}

// descriptorKey identifies a cached FileDescriptor.
type descriptorKey struct {
	ChatID    int64
	MessageID int64
}

// ByteStreamer resolves channel video messages into file descriptors and
// streams their raw bytes in fixed-size chunks with cut offsets, per
// client. Descriptors are cached with a TTL sweep; media sessions are
// cached per datacenter.
type ByteStreamer struct {
	client Client

	descMu    sync.RWMutex
	descCache map[descriptorKey]*FileDescriptor

	sessMu   sync.Mutex
	sessions map[int32]MediaSession

	sweepStop chan struct{}
}

// NewByteStreamer constructs a ByteStreamer for client and starts its
// background cache-sweep goroutine.
func NewByteStreamer(client Client) *ByteStreamer {
	bs := &ByteStreamer{
		client:    client,
		descCache: make(map[descriptorKey]*FileDescriptor),
		sessions:  make(map[int32]MediaSession),
		sweepStop: make(chan struct{}),
	}
	go bs.sweepLoop()
	return bs
}

func (bs *ByteStreamer) sweepLoop() {
	ticker := time.NewTicker(descriptorCacheTTL)
	defer ticker.Stop()
	for {
		select {
		case <-bs.sweepStop:
			return
		case <-ticker.C:
			bs.descMu.Lock()
			bs.descCache = make(map[descriptorKey]*FileDescriptor)
			bs.descMu.Unlock()
		}
	}
}

// Stop ends the background cache-sweep goroutine.
func (bs *ByteStreamer) Stop() {
	close(bs.sweepStop)
}

// GetFileProperties resolves (chatID, messageID) to a file descriptor,
// using the cache when available.
func (bs *ByteStreamer) GetFileProperties(ctx context.Context, chatID, messageID int64) (*FileDescriptor, error) {
	key := descriptorKey{ChatID: chatID, MessageID: messageID}

	bs.descMu.RLock()
	if desc, ok := bs.descCache[key]; ok {
		bs.descMu.RUnlock()
		return desc, nil
	}
	bs.descMu.RUnlock()

	desc, err := bs.client.GetFileProperties(ctx, chatID, messageID)
	if err != nil {
		return nil, err
	}

	bs.descMu.Lock()
	bs.descCache[key] = desc
	bs.descMu.Unlock()

	return desc, nil
}

// sessionFor returns a MediaSession bound to desc.DCID, reusing the home
// client session when dc_id matches, else a cached or freshly
// exported/imported session for that datacenter.
func (bs *ByteStreamer) sessionFor(ctx context.Context, desc *FileDescriptor) (MediaSession, error) {
	if desc.DCID == bs.client.DCID() {
		return bs.client.OpenSession(ctx, desc.DCID)
	}

	bs.sessMu.Lock()
	defer bs.sessMu.Unlock()

	if sess, ok := bs.sessions[desc.DCID]; ok {
		return sess, nil
	}

	sess, err := bs.client.OpenSession(ctx, desc.DCID)
	if err != nil {
		return nil, err
	}
	bs.sessions[desc.DCID] = sess
	return sess, nil
}

// YieldFile produces a finite sequence of byte buffers over a channel,
// implementing the cut-arithmetic of spec §4.C: a single-part file is
// sliced [firstCut:lastCut]; a multi-part file's first chunk is sliced
// [firstCut:], its last chunk [:lastCut], and every chunk in between is
// yielded whole. The channel is closed on exhaustion, a transient error,
// or context cancellation — never left open.
func (bs *ByteStreamer) YieldFile(ctx context.Context, desc *FileDescriptor, offset int64, firstCut, lastCut int64, partCount int) <-chan []byte {
	out := make(chan []byte)

	go func() {
		defer close(out)

		sess, err := bs.sessionFor(ctx, desc)
		if err != nil {
			return
		}

		currentPart := 0
		for currentPart < partCount {
			buf, err := sess.GetFile(ctx, desc, offset, ChunkSize)
			if err != nil {
				// Transient network/timeout error: terminate cleanly, the
				// caller (supervisor) restarts.
				return
			}
			if len(buf) == 0 {
				return
			}

			var slice []byte
			switch {
			case partCount == 1:
				slice = sliceBounded(buf, firstCut, lastCut)
			case currentPart == 0:
				slice = sliceBounded(buf, firstCut, int64(len(buf)))
			case currentPart == partCount-1:
				slice = sliceBounded(buf, 0, lastCut)
			default:
				slice = buf
			}

			select {
			case out <- slice:
			case <-ctx.Done():
				return
			}

			offset += ChunkSize
			currentPart++
		}
	}()

	return out
}

func sliceBounded(buf []byte, from, to int64) []byte {
	if from < 0 {
		from = 0
	}
	if to > int64(len(buf)) {
		to = int64(len(buf))
	}
	if from > to {
		from = to
	}
	return buf[from:to]
}

// EnsureVideoMessage rejects descriptors for messages that are not a
// video (or a document with a video/* MIME type), per spec §9's resolved
// open question.
func EnsureVideoMessage(mimeType string, isVideoKind bool) error {
	if isVideoKind {
		return nil
	}
	if len(mimeType) >= 6 && mimeType[:6] == "video/" {
		return nil
	}
	return xerrors.NewNotFound("message is not a video")
}
