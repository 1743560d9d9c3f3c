package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	opusFrame   = 20 * time.Millisecond
	opusRate    = 48000
	opusChannel = 2
)

// opusSilence is a single 20ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// FileCapturer streams an IVF video file and an Ogg/Opus audio file on
// loop. Without an audio file it sends Opus silence so the peer still
// negotiates an audio stream; without a video file no video is sent.
type FileCapturer struct {
	VideoPath string
	AudioPath string
}

func (c FileCapturer) Register(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (c FileCapturer) Capture(ctx context.Context) (*LocalMedia, error) {
	if c.VideoPath != "" {
		if _, err := os.Stat(c.VideoPath); err != nil {
			return nil, fmt.Errorf("video source: %w", err)
		}
	}
	if c.AudioPath != "" {
		if _, err := os.Stat(c.AudioPath); err != nil {
			return nil, fmt.Errorf("audio source: %w", err)
		}
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	lm := newLocalMedia(cancel)

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusRate, Channels: opusChannel},
		"audio", streamID)
	if err != nil {
		cancel()
		return nil, err
	}
	lm.add(call.TrackAudio, audio)
	if c.AudioPath != "" {
		go loopSource(pumpCtx, "audio", func(ctx context.Context) error { return playOgg(ctx, c.AudioPath, audio) })
	} else {
		go playSilence(pumpCtx, audio)
	}

	if c.VideoPath != "" {
		mime, err := ivfMimeType(c.VideoPath)
		if err != nil {
			cancel()
			return nil, err
		}
		video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video", streamID)
		if err != nil {
			cancel()
			return nil, err
		}
		lm.add(call.TrackVideo, video)
		go loopSource(pumpCtx, "video", func(ctx context.Context) error { return playIVF(ctx, c.VideoPath, video) })
	}

	select {
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	default:
	}
	return lm, nil
}

// loopSource replays a file source until ctx ends or it fails.
func loopSource(ctx context.Context, kind string, play func(context.Context) error) {
	for ctx.Err() == nil {
		if err := play(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Warn("local media source stopped", "kind", kind, "err", err)
			}
			return
		}
	}
}

func playSilence(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := track.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrame}); err != nil {
				slog.Debug("writing silence", "err", err)
			}
		}
	}
}

func ivfMimeType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return "", fmt.Errorf("read ivf header: %w", err)
	}
	switch header.FourCC {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	}
	return "", fmt.Errorf("unsupported ivf codec %q", header.FourCC)
}

// playIVF writes one pass of an IVF file at the file's frame rate. It
// returns nil at end of file.
func playIVF(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		return err
	}
	if header.TimebaseDenominator == 0 {
		return errors.New("ivf header has zero timebase")
	}
	frameDuration := time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	if frameDuration <= 0 {
		frameDuration = time.Second / 30
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return err
		}
	}
}

// playOgg writes one pass of an Ogg/Opus file, pacing pages by their
// granule positions.
func playOgg(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return err
	}

	var lastGranule uint64
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples) / opusRate * float64(time.Second))
		if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			return err
		}
	}
}
