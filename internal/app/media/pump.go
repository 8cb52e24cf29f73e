package media

import (
	"context"
	"errors"
	"io"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// PacketSource yields captured RTP packets, e.g. from an encoder fed by a device.
type PacketSource interface {
	ReadRTP() (*rtp.Packet, error)
	Close() error
}

// Pump reads packets from src and forwards them to dst until ctx is done,
// the source fails or the track is released.
func Pump(ctx context.Context, src PacketSource, dst *LocalTrack, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("capture ctx done, stopping pump")
			return
		default:
		}
		pkt, err := src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Msg("capture source closed")
			} else {
				logger.Error().Err(err).Msg("capture read RTP error, stopping")
			}
			return
		}
		if err := dst.WriteRTP(pkt); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				logger.Info().Msg("track released, stopping pump")
				return
			}
			logger.Debug().Err(err).Msg("write RTP")
		}
	}
}
