package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestReceiveFrameAcrossPartialReads(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := bytes.Repeat([]byte("beatsync"), 512)
	go func() {
		var hdr [8]byte
		binary.LittleEndian.PutUint64(hdr[:], uint64(len(payload)))
		server.Write(hdr[:])
		// dribble the payload to force short reads on the receiver
		for i := 0; i < len(payload); i += 97 {
			end := i + 97
			if end > len(payload) {
				end = len(payload)
			}
			server.Write(payload[i:end])
		}
	}()

	c := New(client, time.Second)
	var got bytes.Buffer
	n, err := c.ReceiveFrame(&got)
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("length mismatch: got %d, want %d", n, len(payload))
	}
	if !bytes.Equal(got.Bytes(), payload) {
		t.Error("payload mismatch")
	}
}

func TestReceiveFrameZeroLength(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		var hdr [8]byte
		server.Write(hdr[:])
	}()

	c := New(client, time.Second)
	var got bytes.Buffer
	n, err := c.ReceiveFrame(&got)
	if err != nil {
		t.Fatalf("ReceiveFrame: %v", err)
	}
	if n != 0 || got.Len() != 0 {
		t.Errorf("expected empty frame, got %d bytes", n)
	}
}

func TestReceiveFramePeerClosesMidPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		var hdr [8]byte
		binary.LittleEndian.PutUint64(hdr[:], 100)
		server.Write(hdr[:])
		server.Write(make([]byte, 10))
		server.Close()
	}()

	c := New(client, time.Second)
	n, err := c.ReceiveFrame(io.Discard)
	if !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
	if n != 10 {
		t.Errorf("expected 10 bytes before the cut, got %d", n)
	}
}

func TestReceiveFrameStalledPayloadTimesOut(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		var hdr [8]byte
		binary.LittleEndian.PutUint64(hdr[:], 1<<20)
		server.Write(hdr[:])
		server.Write(make([]byte, 16))
		// then nothing: the receiver must not hang forever
	}()

	c := New(client, 100*time.Millisecond)
	start := time.Now()
	if _, err := c.ReceiveFrame(io.Discard); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("receive took too long: %v", elapsed)
	}
}

func TestSendFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("score records")
	type result struct {
		hdr  uint64
		data []byte
		err  error
	}
	got := make(chan result, 1)
	go func() {
		var hdr [8]byte
		if _, err := io.ReadFull(server, hdr[:]); err != nil {
			got <- result{err: err}
			return
		}
		size := binary.LittleEndian.Uint64(hdr[:])
		data := make([]byte, size)
		_, err := io.ReadFull(server, data)
		got <- result{hdr: size, data: data, err: err}
	}()

	c := New(client, time.Second)
	if err := c.SendFrame(bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	r := <-got
	if r.err != nil {
		t.Fatalf("read frame: %v", r.err)
	}
	if r.hdr != uint64(len(payload)) {
		t.Errorf("header length: got %d, want %d", r.hdr, len(payload))
	}
	if !bytes.Equal(r.data, payload) {
		t.Error("payload mismatch")
	}
}

func TestSendCommandSingleWrite(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, err := server.Read(buf)
		if err != nil {
			got <- ""
			return
		}
		got <- string(buf[:n])
	}()

	c := New(client, time.Second)
	if err := c.SendCommand("FetchSong,songs/a"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if cmd := <-got; cmd != "FetchSong,songs/a" {
		t.Errorf("command mismatch: got %q", cmd)
	}
}

func TestAwaitTextDiscardsOtherData(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.Write([]byte("noise"))
		time.Sleep(50 * time.Millisecond)
		server.Write([]byte("ReqInfoPkgThenEnd"))
	}()

	c := New(client, time.Second)
	if err := c.AwaitText("ReqInfoPkgThenEnd", 2*time.Second); err != nil {
		t.Fatalf("AwaitText: %v", err)
	}
}

func TestAwaitTextTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := New(client, time.Second)
	start := time.Now()
	err := c.AwaitText("ReqInfoPkgThenEnd", 100*time.Millisecond)
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("wait took too long: %v", elapsed)
	}
}
