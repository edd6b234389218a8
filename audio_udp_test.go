package main

import (
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPAudioSourceReceivesAndDecodesBlocks(t *testing.T) {
	source, err := NewUDPAudioSource("127.0.0.1:0", 12000)
	require.NoError(t, err)
	require.NoError(t, source.Start())
	defer source.Stop()

	bound := source.conn.LocalAddr().(*net.UDPAddr)
	client, err := net.DialUDP("udp4", nil, bound)
	require.NoError(t, err)
	defer client.Close()

	pcm := []float32{0.25, -0.5, 1.0}
	buf := make([]byte, 8+len(pcm)*4)
	binary.BigEndian.PutUint64(buf[:8], 123456)
	for i, v := range pcm {
		binary.BigEndian.PutUint32(buf[8+i*4:12+i*4], math.Float32bits(v))
	}
	_, err = client.Write(buf)
	require.NoError(t, err)

	select {
	case block := <-source.Blocks():
		assert.Equal(t, int64(123456), block.CaptureTimeMs)
		assert.Equal(t, pcm, block.Samples)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audio block")
	}
}

func TestUDPAudioSourceDropsShortPackets(t *testing.T) {
	source, err := NewUDPAudioSource("127.0.0.1:0", 12000)
	require.NoError(t, err)
	require.NoError(t, source.Start())
	defer source.Stop()

	bound := source.conn.LocalAddr().(*net.UDPAddr)
	client, err := net.DialUDP("udp4", nil, bound)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte{1, 2, 3}) // shorter than the 8-byte header
	require.NoError(t, err)

	select {
	case <-source.Blocks():
		t.Fatal("a too-short packet must not produce an audio block")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUDPAudioSinkPlayAudioReportsCompletion(t *testing.T) {
	packetCh := make(chan []byte, 1)
	serverConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer serverConn.Close()

	go func() {
		buf := make([]byte, 1024)
		n, _, err := serverConn.ReadFromUDP(buf)
		if err == nil {
			packetCh <- append([]byte(nil), buf[:n]...)
		}
	}()

	sink, err := NewUDPAudioSink(serverConn.LocalAddr().String())
	require.NoError(t, err)
	defer sink.Close()

	start := time.Now()
	done, err := sink.PlayAudio([]float32{0.1, 0.2}, 1000, nil) // 2 samples @ 1kHz = 2ms
	require.NoError(t, err)

	select {
	case data := <-packetCh:
		assert.Len(t, data, 8+2*4)
	case <-time.After(time.Second):
		t.Fatal("server never received the datagram")
	}

	select {
	case <-done:
		assert.WithinDuration(t, start, time.Now(), time.Second)
	case <-time.After(time.Second):
		t.Fatal("playback completion was never signaled")
	}
}
