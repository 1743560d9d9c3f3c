//go:build devices

package rtc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/call"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

func init() {
	deviceCapturer = newDeviceCapturer
}

// DeviceCapturer captures the system camera and microphone.
type DeviceCapturer struct {
	selector *mediadevices.CodecSelector
}

func newDeviceCapturer() (Capturer, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_000_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &DeviceCapturer{selector: mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)}, nil
}

func (d *DeviceCapturer) Register(m *webrtc.MediaEngine) error {
	d.selector.Populate(m)
	return nil
}

// Capture tries camera and microphone together, then each alone, so one
// missing device does not prevent the call.
func (d *DeviceCapturer) Capture(ctx context.Context) (*LocalMedia, error) {
	for _, dev := range mediadevices.EnumerateDevices() {
		slog.Debug("media device", "kind", dev.Kind, "label", dev.Label)
	}

	attempts := []struct {
		video, audio bool
	}{{true, true}, {true, false}, {false, true}}

	var lastErr error
	for _, a := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		constraints := mediadevices.MediaStreamConstraints{Codec: d.selector}
		if a.video {
			constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
				c.FrameFormat = prop.FrameFormatOneOf{frame.FormatYUYV, frame.FormatI420, frame.FormatI444}
				c.Width = prop.IntRanged{Max: 640}
				c.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			slog.Info("device capture attempt failed", "video", a.video, "audio", a.audio, "err", err)
			lastErr = err
			continue
		}

		tracks := stream.GetTracks()
		lm := newLocalMedia(func() {
			for _, t := range tracks {
				_ = t.Close()
			}
		})
		for _, t := range tracks {
			kind, err := kindOf(t.Kind())
			if err != nil {
				continue
			}
			t.OnEnded(func(err error) {
				if err != nil {
					slog.Warn("local track ended", "kind", kind, "err", err)
				}
			})
			lm.add(kind, t)
		}
		if len(lm.Tracks()) == 0 {
			_ = lm.Close()
			lastErr = errNoTracks
			continue
		}
		if _, ok := lm.Tracks()[call.TrackVideo]; !ok {
			lm.SetEnabled(call.TrackVideo, false)
		}
		return lm, nil
	}
	return nil, fmt.Errorf("capture devices: %w", lastErr)
}
