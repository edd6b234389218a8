package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// UDPAudioSource is a concrete AudioSource reading PCM blocks from a UDP
// socket: an 8-byte big-endian capture timestamp (ms) followed by
// interleaved big-endian float32 samples. Grounded on the teacher's
// setupDataSocket (deleted audio.go): identical SO_REUSEPORT/SO_REUSEADDR
// socket-option dance via golang.org/x/sys/unix, generalized from
// ka9q-radio's RTP/multicast framing (which depended on the dropped
// pion/rtp package) to a plain unicast PCM datagram stream, since
// spec.md §6 only requires "a stream of interleaved float32 PCM ... with
// a monotonic capture timestamp per block", not any particular framing.
type UDPAudioSource struct {
	addr       *net.UDPAddr
	sampleRate int

	conn *net.UDPConn
	out  chan AudioBlock

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewUDPAudioSource builds a source bound to listenAddr (host:port).
func NewUDPAudioSource(listenAddr string, sampleRate int) (*UDPAudioSource, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("audio source: resolve %s: %w", listenAddr, err)
	}
	return &UDPAudioSource{addr: udpAddr, sampleRate: sampleRate, out: make(chan AudioBlock, 32)}, nil
}

// setupSocket opens the UDP listener with SO_REUSEPORT/SO_REUSEADDR set,
// matching the teacher's listen_mcast()-style socket preparation.
func setupSocket(addr *net.UDPAddr) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					sockErr = fmt.Errorf("set SO_REUSEPORT: %w", err)
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					sockErr = fmt.Errorf("set SO_REUSEADDR: %w", err)
					return
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := lc.ListenPacket(context.Background(), "udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	udpConn := conn.(*net.UDPConn)
	if err := udpConn.SetReadBuffer(1024 * 1024); err != nil {
		log.Printf("audio source: failed to set read buffer: %v", err)
	}
	return udpConn, nil
}

func (s *UDPAudioSource) Blocks() <-chan AudioBlock { return s.out }
func (s *UDPAudioSource) SampleRate() int           { return s.sampleRate }

// Start opens the socket and begins the receive loop.
func (s *UDPAudioSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("audio source: already running")
	}
	conn, err := setupSocket(s.addr)
	if err != nil {
		return err
	}
	s.conn = conn
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.receiveLoop(ctx)
	return nil
}

// Stop halts the receive loop and closes the socket.
func (s *UDPAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()
	err := s.conn.Close()
	close(s.out)
	return err
}

const udpAudioHeaderBytes = 8

func (s *UDPAudioSource) receiveLoop(ctx context.Context) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed by Stop
		}
		if n < udpAudioHeaderBytes {
			continue
		}
		captureMs := int64(binary.BigEndian.Uint64(buf[:udpAudioHeaderBytes]))
		sampleBytes := buf[udpAudioHeaderBytes:n]
		samples := make([]float32, len(sampleBytes)/4)
		for i := range samples {
			bits := binary.BigEndian.Uint32(sampleBytes[i*4 : i*4+4])
			samples[i] = math.Float32frombits(bits)
		}

		block := AudioBlock{Samples: samples, CaptureTimeMs: captureMs}
		select {
		case s.out <- block:
		default:
			log.Printf("audio source: consumer backlogged, dropping block")
		}
	}
}
