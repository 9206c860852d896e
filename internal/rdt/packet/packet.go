// Package packet implements the wire codec and the tagged-variant view of
// the reliable-transport packet described in spec §3 and §4.1.
package packet

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
)

// ErrMalformed is returned by Decode when the input is shorter than the
// header. It is never fatal: callers drop the datagram and move on.
var ErrMalformed = errors.New("malformed packet")

// Header is the fixed-size part of every datagram: seqno, ackno and flags,
// each little-endian uint16, in that field order, no padding.
type Header struct {
	Seqno uint16
	Ackno uint16
	Flags uint16
}

// Packet is a header plus an optional payload.
type Packet struct {
	Header  Header
	Payload []byte
}

// Kind is the tagged-variant classification of a packet's flag bits,
// resolving the flag-bitmask ambiguity spec §9 calls out (Open Question 2):
// named combinations are compared by exact equality, except that FIN is
// recognized whenever the FIN bit is set, even combined with other bits.
type Kind int

const (
	KindData Kind = iota
	KindSyn
	KindSynAck
	KindAck
	KindFin
	KindFinAck
)

// ClassifyKind derives the tagged variant from a header's flags.
func ClassifyKind(flags uint16) Kind {
	switch {
	case flags&rdtcfg.FlagFIN != 0:
		if flags&rdtcfg.FlagACK != 0 {
			return KindFinAck
		}
		return KindFin
	case flags == rdtcfg.FlagSynAck:
		return KindSynAck
	case flags == rdtcfg.FlagSYN:
		return KindSyn
	case flags == rdtcfg.FlagACK:
		return KindAck
	default:
		return KindData
	}
}

// Kind reports this packet's tagged variant.
func (p Packet) Kind() Kind {
	return ClassifyKind(p.Header.Flags)
}

// IsFIN reports whether the FIN bit is set, regardless of other bits.
func (h Header) IsFIN() bool {
	return h.Flags&rdtcfg.FlagFIN != 0
}

// IsACK reports whether the ACK bit is set.
func (h Header) IsACK() bool {
	return h.Flags&rdtcfg.FlagACK != 0
}

// IsSYN reports whether the SYN bit is set.
func (h Header) IsSYN() bool {
	return h.Flags&rdtcfg.FlagSYN != 0
}

// New builds a packet with the given flags, seqno, ackno and payload.
func New(flags, seqno, ackno uint16, payload []byte) Packet {
	return Packet{
		Header: Header{
			Seqno: seqno,
			Ackno: ackno,
			Flags: flags,
		},
		Payload: payload,
	}
}

// Encode serializes the packet as header || payload, little-endian,
// no padding.
func Encode(p Packet) []byte {
	buf := make([]byte, rdtcfg.HeaderSize+len(p.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], p.Header.Seqno)
	binary.LittleEndian.PutUint16(buf[2:4], p.Header.Ackno)
	binary.LittleEndian.PutUint16(buf[4:6], p.Header.Flags)
	copy(buf[rdtcfg.HeaderSize:], p.Payload)
	return buf
}

// Decode is the inverse of Encode. It fails with ErrMalformed if b is
// shorter than the header.
func Decode(b []byte) (Packet, error) {
	if len(b) < rdtcfg.HeaderSize {
		return Packet{}, errors.Wrapf(ErrMalformed, "got %d bytes, want at least %d", len(b), rdtcfg.HeaderSize)
	}
	h := Header{
		Seqno: binary.LittleEndian.Uint16(b[0:2]),
		Ackno: binary.LittleEndian.Uint16(b[2:4]),
		Flags: binary.LittleEndian.Uint16(b[4:6]),
	}
	var payload []byte
	if len(b) > rdtcfg.HeaderSize {
		payload = make([]byte, len(b)-rdtcfg.HeaderSize)
		copy(payload, b[rdtcfg.HeaderSize:])
	}
	return Packet{Header: h, Payload: payload}, nil
}
