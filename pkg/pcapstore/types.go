package pcapstore

import (
	"time"
)

// Packet is a timestamped opaque byte payload. Packets are created by the
// caller and are immutable after construction: neither readers nor writers
// modify Payload.
type Packet struct {
	// Time is the capture time. Stored with second+nanosecond precision
	// in the UTC epoch; the location is not persisted.
	Time time.Time

	// Payload is the opaque packet data.
	Payload []byte
}

// NewPacket builds a packet from a capture time and payload.
// The payload is used as-is, not copied.
func NewPacket(ts time.Time, payload []byte) *Packet {
	return &Packet{Time: ts, Payload: payload}
}

// TimestampNs returns the capture time as nanoseconds since epoch.
func (p *Packet) TimestampNs() uint64 {
	return uint64(p.Time.Unix())*uint64(nanosPerSecond) + uint64(p.Time.Nanosecond())
}

// header derives the on-disk packet header, including the payload CRC.
func (p *Packet) header() PacketHeader {
	return PacketHeader{
		Seconds:  uint32(p.Time.Unix()),
		Nanos:    uint32(p.Time.Nanosecond()),
		Length:   uint32(len(p.Payload)),
		Checksum: Checksum(p.Payload),
	}
}

// ValidatedPacket is a packet paired with the outcome of its read-time CRC
// verification. Checksum corruption is data, not an error: a packet with
// IsValid=false was delivered intact structurally but its stored CRC did not
// match the recomputed one.
type ValidatedPacket struct {
	Packet  Packet
	IsValid bool
}

// packetTime converts an on-disk header timestamp to a UTC time.
func packetTime(h PacketHeader) time.Time {
	return time.Unix(int64(h.Seconds), int64(h.Nanos)).UTC()
}
