package rtc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// recorder writes remote VP8 video to IVF and Opus audio to Ogg files in
// dir. Without a dir, remote tracks are only read so their buffers drain.
type recorder struct {
	dir string

	mu      sync.Mutex
	writers []rtpWriter
	closed  bool
}

func newRecorder(dir string) *recorder {
	return &recorder{dir: dir}
}

// consume reads remote until it ends or done closes.
func (r *recorder) consume(remote *webrtc.TrackRemote, done <-chan struct{}) {
	w, err := r.open(remote)
	if err != nil {
		slog.Warn("not recording remote track", "kind", remote.Kind().String(), "err", err)
	}

	for {
		select {
		case <-done:
			return
		default:
		}

		pkt, _, err := remote.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("remote track ended", "ssrc", remote.SSRC(), "err", err)
			}
			return
		}
		if w == nil {
			continue
		}
		if err := r.write(w, pkt); err != nil {
			slog.Warn("recording failed", "err", err)
			w = nil
		}
	}
}

func (r *recorder) open(remote *webrtc.TrackRemote) (rtpWriter, error) {
	if r.dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, err
	}

	mime := remote.Codec().MimeType
	stamp := time.Now().Format("20060102-150405")
	var (
		w   rtpWriter
		err error
	)
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		w, err = ivfwriter.New(filepath.Join(r.dir, fmt.Sprintf("video-%s-%d.ivf", stamp, remote.SSRC())))
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		w, err = oggwriter.New(filepath.Join(r.dir, fmt.Sprintf("audio-%s-%d.ogg", stamp, remote.SSRC())), opusRate, opusChannel)
	default:
		return nil, fmt.Errorf("no container for codec %s", mime)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = w.Close()
		return nil, errClosed
	}
	r.writers = append(r.writers, w)
	return w, nil
}

func (r *recorder) write(w rtpWriter, pkt *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errClosed
	}
	return w.WriteRTP(pkt)
}

func (r *recorder) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, w := range r.writers {
		errs = append(errs, w.Close())
	}
	r.writers = nil
	return errors.Join(errs...)
}
