// Package cleaner wraps an external ffmpeg process that normalizes raw
// media bytes into a strictly well-formed MPEG-TS stream: video copied
// through, audio re-encoded to AAC stereo 128k, timestamps regenerated.
package cleaner

import (
	"context"
	"io"
	"log/slog"
	"os/exec"

	"github.com/arung-agamani/denpa-stream/internal/procreg"
)

// stdoutReadSize is the fixed read buffer used when draining the cleaner's
// stdout: 188 (one MPEG-TS packet) times 256.
const stdoutReadSize = 188 * 256

// Run spawns the cleaner ffmpeg process, pumps byteSource into its stdin,
// and returns a channel yielding fixed-size reads from its stdout. The
// returned channel is closed when the process exits or ctx is cancelled;
// the process is registered with reg for the duration of its life.
func Run(ctx context.Context, reg *procreg.Registry, byteSource <-chan []byte, streamName string) <-chan []byte {
	out := make(chan []byte)

	go func() {
		defer close(out)

		args := []string{
			"-loglevel", "error",
			"-fflags", "+genpts",
			"-avoid_negative_ts", "make_zero",
			"-i", "pipe:0",
			"-map", "0:v:0",
			"-map", "0:a?",
			"-c:v", "copy",
			"-c:a", "aac",
			"-b:a", "128k",
			"-ac", "2",
			"-f", "mpegts",
			"pipe:1",
		}

		cmd := exec.CommandContext(ctx, "ffmpeg", args...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			slog.Error("cleaner: stdin pipe failed", "stream", streamName, "error", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			slog.Error("cleaner: stdout pipe failed", "stream", streamName, "error", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			slog.Error("cleaner: stderr pipe failed", "stream", streamName, "error", err)
			return
		}

		if err := cmd.Start(); err != nil {
			slog.Error("cleaner: start failed", "stream", streamName, "error", err)
			return
		}

		handle := reg.Register(cmd.Process, stdin)
		defer reg.Deregister(handle)

		go drainStderr(streamName, stderr)

		pumpDone := make(chan struct{})
		go func() {
			defer close(pumpDone)
			pump(byteSource, stdin)
		}()

		readLoop(ctx, stdout, out)

		<-pumpDone
		_ = cmd.Wait()
	}()

	return out
}

// pump writes every buffer from byteSource into stdin, stopping cleanly
// on a broken pipe or when byteSource closes, then closes stdin so the
// encoder sees EOF.
func pump(byteSource <-chan []byte, stdin io.WriteCloser) {
	defer stdin.Close()
	for buf := range byteSource {
		if _, err := stdin.Write(buf); err != nil {
			return
		}
	}
}

// readLoop drains stdout in fixed-size reads, forwarding each non-empty
// read to out until EOF, a read error, or ctx cancellation.
func readLoop(ctx context.Context, stdout io.Reader, out chan<- []byte) {
	buf := make([]byte, stdoutReadSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func drainStderr(streamName string, stderr io.Reader) {
	buf := make([]byte, 1024)
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			slog.Debug("cleaner: ffmpeg stderr", "stream", streamName, "output", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}
