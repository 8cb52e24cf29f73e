package media

import (
	"context"
	"fmt"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// SourceFunc opens a packet source for one capture.
type SourceFunc func(ctx context.Context) (PacketSource, error)

// SilenceSourceFunc is the SourceFunc used when no capture device is wired.
func SilenceSourceFunc(context.Context) (PacketSource, error) {
	return NewSilenceSource(), nil
}

var _ core.Capturer = (*AudioCapturer)(nil)

// AudioCapturer captures one Opus track per room.
type AudioCapturer struct {
	Open     SourceFunc
	StreamID string
}

func (c *AudioCapturer) Capture(ctx context.Context) ([]core.Resource, error) {
	src, err := c.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open audio source: %w", err)
	}
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio-"+uuid.NewString(),
		c.StreamID,
	)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	// The pump outlives the call that started it; Release stops it.
	pumpCtx, cancel := context.WithCancel(context.Background())
	lt := NewLocalTrack(core.ResourceAudio, track, func() error {
		cancel()
		return src.Close()
	})

	logger := log.With().
		Str("module", "media.capture").
		Str("track", track.ID()).
		Logger()
	logger.Info().Msg("starting capture pump")
	go Pump(pumpCtx, src, lt, &logger)

	return []core.Resource{lt}, nil
}
