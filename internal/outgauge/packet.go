// Package outgauge decodes the BeamNG.drive OutGauge UDP wire format
// into telemetry samples.
//
// BeamNG can emit more than one protocol on the same UDP port: OutGauge
// packets (fixed 96-byte layout) and MotionSim packets, which start
// with the ASCII marker "BNG1" and are meant for motion rigs. MotionSim
// traffic must be skipped, never misparsed as OutGauge.
package outgauge

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/guven8/beamng-telemetry-platform/internal/telemetry"
)

// PacketSize is the exact size of an OutGauge packet in bytes. Packets
// of any other size are rejected; undersized packets are never
// partially decoded.
const PacketSize = 96

var motionSimMarker = []byte("BNG1")

var (
	// ErrForeignProtocol is returned for MotionSim ("BNG1") packets
	// sharing the OutGauge port.
	ErrForeignProtocol = errors.New("foreign protocol packet")

	// ErrWrongSize is returned when the datagram is not exactly
	// PacketSize bytes.
	ErrWrongSize = errors.New("wrong packet size")

	// ErrTruncated is returned when the fixed layout cannot be decoded
	// from the packet body.
	ErrTruncated = errors.New("truncated packet structure")
)

// packet is the full OutGauge wire layout, little-endian. Every field
// is decoded so a malformed packet fails structurally, but only Gear,
// Speed and RPM feed the resulting sample.
type packet struct {
	Time        uint32
	Car         [4]byte
	Flags       uint16
	Gear        byte
	PlayerID    uint8
	Speed       float32
	RPM         float32
	Turbo       float32
	EngineTemp  float32
	Fuel        float32
	OilPressure float32
	OilTemp     float32
	Spare1      float32
	DashLights  uint32
	ShowLights  uint32
	Throttle    float32
	Brake       float32
	Clutch      float32
	Spare2      float32
	Display1    [12]byte
	Display2    [12]byte
	ID          int32
}

// Decode parses a raw UDP datagram into a telemetry sample. It is total
// over arbitrary input: every failure mode is reported as one of the
// sentinel errors above, never a panic.
//
// The sample's CapturedAt is the local clock at decode time. The
// in-packet time field is sender-local and not trusted.
func Decode(data []byte) (*telemetry.Sample, error) {
	if bytes.HasPrefix(data, motionSimMarker) {
		return nil, ErrForeignProtocol
	}
	if len(data) != PacketSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrWrongSize, len(data), PacketSize)
	}

	var p packet
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	speed := float64(p.Speed)
	rpm := int(p.RPM) // truncated, not rounded

	sample := telemetry.Sample{
		Speed:      &speed,
		RPM:        &rpm,
		CapturedAt: time.Now().UTC(),
	}
	if gear, ok := decodeGear(p.Gear); ok {
		sample.Gear = &gear
	}

	return &sample, nil
}
