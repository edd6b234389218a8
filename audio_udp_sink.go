package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"time"
)

// UDPAudioSink is a concrete AudioSink that streams mixed transmit audio
// to a playback endpoint over UDP, the output-side counterpart of
// UDPAudioSource: same 8-byte big-endian timestamp header followed by
// big-endian float32 PCM, so a single playback daemon can sit on either
// end of the wire. Grounded on the teacher's setupDataSocket dial path
// (deleted audio.go), generalized from multicast transmit framing to a
// unicast PlayAudio call.
type UDPAudioSink struct {
	conn *net.UDPConn
}

// NewUDPAudioSink dials playbackAddr (host:port) for outbound PCM.
func NewUDPAudioSink(playbackAddr string) (*UDPAudioSink, error) {
	addr, err := net.ResolveUDPAddr("udp4", playbackAddr)
	if err != nil {
		return nil, fmt.Errorf("audio sink: resolve %s: %w", playbackAddr, err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("audio sink: dial %s: %w", playbackAddr, err)
	}
	return &UDPAudioSink{conn: conn}, nil
}

// PlayAudio sends pcm as one (or several, if large) UDP datagrams
// stamped with startAt (or now, if nil), and reports completion once the
// nominal playback duration has elapsed. The network write itself is
// effectively instantaneous; the returned channel models the playback
// device's real-time constraint so callers (the transmit controller) can
// hold PTT for the correct duration.
func (s *UDPAudioSink) PlayAudio(pcm []float32, sampleRate int, startAt *time.Time) (<-chan time.Time, error) {
	at := time.Now()
	if startAt != nil {
		at = *startAt
	}

	// Each datagram carries its own header, stamped with the play time of
	// its first sample, and fits the largest IPv4 UDP payload.
	const maxSamplesPerDatagram = (65507 - 8) / 4
	for off := 0; off == 0 || off < len(pcm); off += maxSamplesPerDatagram {
		chunk := pcm[off:min(off+maxSamplesPerDatagram, len(pcm))]
		chunkAt := at.Add(time.Duration(int64(off)*1000/int64(sampleRate)) * time.Millisecond)
		buf := make([]byte, 8+len(chunk)*4)
		binary.BigEndian.PutUint64(buf[:8], uint64(chunkAt.UnixMilli()))
		for i, v := range chunk {
			binary.BigEndian.PutUint32(buf[8+i*4:12+i*4], math.Float32bits(v))
		}
		if _, err := s.conn.Write(buf); err != nil {
			return nil, fmt.Errorf("audio sink: write: %w", err)
		}
	}

	done := make(chan time.Time, 1)
	durationMs := int64(len(pcm)) * 1000 / int64(sampleRate)
	delay := time.Until(at.Add(time.Duration(durationMs) * time.Millisecond))
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() { done <- time.Now() })
	return done, nil
}

// Close releases the underlying socket.
func (s *UDPAudioSink) Close() error { return s.conn.Close() }
