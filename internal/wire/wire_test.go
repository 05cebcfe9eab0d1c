package wire

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// pair returns two ends of a TCP connection on the loopback interface.
func pair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()
	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	server, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestReadFrame(t *testing.T) {
	type chunk struct {
		data  []byte
		sleep time.Duration
	}
	tests := []struct {
		name    string
		chunks  []chunk
		timeout time.Duration
		want    *Message
		wantErr bool
	}{
		{"Simple", []chunk{{[]byte{0, 0, 0, 1, 'Q'}, 0}}, time.Second, &Message{Code: CodeQuit}, false},
		{"WithData", []chunk{{[]byte{0, 0, 0, 5, 'H', 'h', 'o', 's', 't'}, 0}}, time.Second, &Message{Code: CodeHelo, Data: []byte("host")}, false},
		{"SplitHeader", []chunk{{[]byte{0, 0}, 0}, {[]byte{0, 2, 'L', 'x'}, 0}}, time.Second, &Message{Code: CodeHeader, Data: []byte("x")}, false},
		{"EmptyFrame", []chunk{{[]byte{0, 0, 0, 0}, 0}}, time.Second, nil, true},
		{"HeaderTimeout", []chunk{{[]byte{0, 0}, 0}, {[]byte{0, 1, 'Q'}, 500 * time.Millisecond}}, 100 * time.Millisecond, nil, true},
		{"PayloadTimeout", []chunk{{[]byte{0, 0, 0, 3, 'B'}, 0}, {[]byte{'a', 'b'}, 500 * time.Millisecond}}, 100 * time.Millisecond, nil, true},
		// The timeout bounds each read, not the whole frame: a frame that
		// dribbles in slower than the timeout in total still succeeds.
		{"SlowFrame", []chunk{
			{[]byte{0, 0, 0, 4}, 60 * time.Millisecond},
			{[]byte{'B', 'a'}, 60 * time.Millisecond},
			{[]byte{'b', 'c'}, 0},
		}, 100 * time.Millisecond, &Message{Code: CodeBody, Data: []byte("abc")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := pair(t)
			go func() {
				for _, c := range tt.chunks {
					if c.sleep > 0 {
						time.Sleep(c.sleep)
					}
					if _, err := server.Write(c.data); err != nil {
						return
					}
				}
			}()
			got, err := ReadFrame(client, tt.timeout)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadFrame() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.want == nil {
				return
			}
			if got.Code != tt.want.Code || !bytes.Equal(got.Data, tt.want.Data) {
				t.Errorf("ReadFrame() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestReadFramePeerClose(t *testing.T) {
	client, server := pair(t)
	_ = server.Close()
	_, err := ReadFrame(client, time.Second)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadFrameTimeoutError(t *testing.T) {
	client, _ := pair(t)
	_, err := ReadFrame(client, 50*time.Millisecond)
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

// TestFrameRoundTrip checks WriteFrame || ReadFrame over a range of
// payload shapes, including one larger than the 4 KiB read chunk.
func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{},
		[]byte("short"),
		[]byte{0, 1, 2, 0, 0, 3},
		bytes.Repeat([]byte{'x'}, 10000),
	}
	for _, payload := range payloads {
		client, server := pair(t)
		msg := &Message{Code: CodeBody, Data: payload}
		errCh := make(chan error, 1)
		go func() {
			errCh <- WriteFrame(server, msg, time.Second)
		}()
		got, err := ReadFrame(client, time.Second)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if err := <-errCh; err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		if got.Code != msg.Code {
			t.Errorf("code = %c, want %c", got.Code, msg.Code)
		}
		if !bytes.Equal(got.Data, payload) {
			t.Errorf("payload length = %d, want %d", len(got.Data), len(payload))
		}
		_ = client.Close()
		_ = server.Close()
	}
}

func TestWriteFrameEncoding(t *testing.T) {
	client, server := pair(t)
	go func() {
		_ = WriteFrame(server, &Message{Code: CodeContinue}, time.Second)
	}()
	buf := make([]byte, 5)
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{0, 0, 0, 1, 0x06}) {
		t.Fatalf("wire bytes = % x", buf)
	}
}

func TestCodeName(t *testing.T) {
	tests := []struct {
		code Code
		name string
		ok   bool
	}{
		{CodeAbort, "ABORT", true},
		{CodeMacro, "DATA", true},
		{CodeEOH, "EOH", true},
		{CodeContinue, "CONTINUE", true},
		{CodeAccept, "ACCEPT", true},
		{CodeDelRcpt, "DELRCPT", true},
		{Code('Z'), "", false},
		{Code(0x00), "", false},
	}
	for _, tt := range tests {
		name, ok := tt.code.Name()
		if name != tt.name || ok != tt.ok {
			t.Errorf("Name(0x%02x) = %q, %v; want %q, %v", byte(tt.code), name, ok, tt.name, tt.ok)
		}
	}
}
