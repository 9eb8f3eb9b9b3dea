package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/guven8/beamng-telemetry-platform/internal/outgauge"
	"github.com/guven8/beamng-telemetry-platform/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// outgaugePacket builds a minimal valid 96-byte packet carrying the
// given speed with the gear byte set to ASCII neutral.
func outgaugePacket(t *testing.T, speed float32) []byte {
	t.Helper()

	var buf bytes.Buffer
	fields := []any{
		uint32(0),     // time
		[4]byte{},     // car
		uint16(0),     // flags
		byte('N'),     // gear
		uint8(0),      // player id
		speed,         // speed
		float32(2200), // rpm
	}
	for _, f := range fields {
		if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
			t.Fatalf("building packet: %v", err)
		}
	}
	buf.Write(make([]byte, outgauge.PacketSize-buf.Len()))
	return buf.Bytes()
}

func TestReceiver_DecodesAndPublishes(t *testing.T) {
	queue := pipeline.NewQueue()
	sub := queue.Subscribe("test")

	recv := NewReceiver(queue, testLogger(), WithPort(freePort(t)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- recv.Run(ctx) }()
	waitForSocket(t, recv.Port())

	conn, err := net.Dial("udp", net.JoinHostPort("127.0.0.1", strconv.Itoa(recv.Port())))
	if err != nil {
		t.Fatalf("dialing receiver: %v", err)
	}
	defer conn.Close()

	if _, err = conn.Write(outgaugePacket(t, 12.5)); err != nil {
		t.Fatalf("sending packet: %v", err)
	}
	if _, err = conn.Write([]byte("BNG1garbage")); err != nil {
		t.Fatalf("sending foreign packet: %v", err)
	}

	sample, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("expected a published sample: %v", err)
	}
	if sample.Speed == nil || *sample.Speed != 12.5 {
		t.Errorf("expected speed 12.5, got %v", sample.Speed)
	}

	// The foreign packet is received but rejected, never published.
	deadline := time.Now().Add(2 * time.Second)
	for recv.Received() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if recv.Received() < 2 {
		t.Fatalf("expected 2 received datagrams, got %d", recv.Received())
	}
	if recv.Rejected() != 1 {
		t.Errorf("expected 1 rejected datagram, got %d", recv.Rejected())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() returned error on cancellation: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("receiver did not stop after cancellation")
	}
}

func TestReceiver_BindFailure(t *testing.T) {
	queue := pipeline.NewQueue()

	port := freePort(t)
	blocker, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		t.Fatalf("binding blocker socket: %v", err)
	}
	defer blocker.Close()

	recv := NewReceiver(queue, testLogger(), WithPort(port))
	if err := recv.Run(context.Background()); err == nil {
		t.Error("expected bind error when the port is taken")
	}
}

func freePort(t *testing.T) int {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func waitForSocket(t *testing.T, port int) {
	t.Helper()

	// Give the receiver goroutine a moment to bind before sending.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
		if err != nil {
			return // port taken, receiver is up
		}
		_ = conn.Close()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("receiver never bound its socket")
}
