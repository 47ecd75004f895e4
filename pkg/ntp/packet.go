package ntp

import (
	"encoding/binary"
	"net"
	"time"
)

const (
	// PacketLen is the size of request and reply datagrams.
	PacketLen = 48
	// Port is the server port.
	Port = 123
	// Delta is the seconds from 1900-01-01 to 1970-01-01.
	Delta = 2208988800

	// ModeClient is the mode of requests.
	ModeClient = 3
	// ModeServer is the mode of valid replies.
	ModeServer = 4
	// Version is the protocol version in requests.
	Version = 3

	// byte 0: LI 0, VN 3, Mode 3.
	requestHeader = Version<<3 | ModeClient

	offsetTransmitSecs = 40
	offsetTransmitFrac = 44

	eraSeconds = 1 << 32
)

// NewRequest encodes a request datagram.
func NewRequest() []byte {
	b := make([]byte, PacketLen)
	b[0] = requestHeader
	return b
}

// Sample is the transmit timestamp of a validated reply.
type Sample struct {
	// Seconds since 1900-01-01 modulo 2^32.
	Seconds uint32
	// Fraction in units of 2^-32 seconds.
	Fraction uint32
}

// FractionMicros converts Fraction to microseconds.
func FractionMicros(fraction uint32) int64 {
	return int64(fraction) * 1000000 >> 32
}

// Micros returns microseconds since 1900-01-01 within the era.
func (s Sample) Micros() int64 {
	return int64(s.Seconds)*1000000 + FractionMicros(s.Fraction)
}

// UnixSeconds converts Seconds to Unix seconds.
// Timestamps with the most significant bit clear are in era 1,
// starting 2036-02-07.
func (s Sample) UnixSeconds() int64 {
	secs := int64(s.Seconds)
	if s.Seconds&0x80000000 == 0 {
		secs += eraSeconds
	}
	return secs - Delta
}

// UnixMicros returns microseconds since the Unix epoch.
func (s Sample) UnixMicros() int64 {
	return s.UnixSeconds()*1000000 + FractionMicros(s.Fraction)
}

// Time returns the sample as time.Time.
func (s Sample) Time() time.Time {
	return time.Unix(s.UnixSeconds(), FractionMicros(s.Fraction)*1000)
}

// SampleFromTime encodes t as a Sample.
func SampleFromTime(t time.Time) Sample {
	secs := t.Unix() + Delta
	// rounded up so the fraction converts back to the same microsecond.
	frac := (uint64(t.Nanosecond())<<32 + 999999999) / 1000000000
	return Sample{Seconds: uint32(secs), Fraction: uint32(frac)}
}

// EncodeReply encodes a server reply carrying s as transmit timestamp.
func EncodeReply(s Sample, stratum byte) []byte {
	b := make([]byte, PacketLen)
	b[0] = Version<<3 | ModeServer
	b[1] = stratum
	binary.BigEndian.PutUint32(b[offsetTransmitSecs:], s.Seconds)
	binary.BigEndian.PutUint32(b[offsetTransmitFrac:], s.Fraction)
	return b
}

// ParseReply validates a reply received from addr:port which is expected
// from server. The checks run in order: source address, source port,
// length, mode and stratum.
func ParseReply(server, addr net.IP, port int, data []byte) (Sample, error) {
	if !server.Equal(addr) {
		return Sample{}, &ValidationError{Reason: ReasonAddress}
	}
	if port != Port {
		return Sample{}, &ValidationError{Reason: ReasonPort, Value: port}
	}
	if len(data) != PacketLen {
		return Sample{}, &ValidationError{Reason: ReasonLength, Value: len(data)}
	}
	if mode := data[0] & 7; mode != ModeServer {
		return Sample{}, &ValidationError{Reason: ReasonMode, Value: int(mode)}
	}
	if data[1] == 0 {
		return Sample{}, &ValidationError{Reason: ReasonStratum}
	}
	return Sample{
		Seconds:  binary.BigEndian.Uint32(data[offsetTransmitSecs:]),
		Fraction: binary.BigEndian.Uint32(data[offsetTransmitFrac:]),
	}, nil
}
