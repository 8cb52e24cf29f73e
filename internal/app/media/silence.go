package media

import (
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pion/rtp"
)

const (
	opusPayloadType = 111
	opusFrame       = 20 * time.Millisecond
	// 48 kHz clock, 20 ms per packet.
	opusSamplesPerFrame = 960
)

// opusSilence is a single Opus DTX frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceSource paces Opus silence packets in real time. It stands in for
// a capture device so a participant can join without one.
type SilenceSource struct {
	ticker    *time.Ticker
	done      chan struct{}
	closeOnce sync.Once

	seq  uint16
	ts   uint32
	ssrc uint32
}

func NewSilenceSource() *SilenceSource {
	return &SilenceSource{
		ticker: time.NewTicker(opusFrame),
		done:   make(chan struct{}),
		seq:    uint16(rand.Uint32()),
		ts:     rand.Uint32(),
		ssrc:   rand.Uint32(),
	}
}

func (s *SilenceSource) ReadRTP() (*rtp.Packet, error) {
	select {
	case <-s.done:
		return nil, io.EOF
	case <-s.ticker.C:
	}
	s.seq++
	s.ts += opusSamplesPerFrame
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.ts,
			SSRC:           s.ssrc,
		},
		Payload: opusSilence,
	}, nil
}

func (s *SilenceSource) Close() error {
	s.closeOnce.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}
