package link

import (
	"io"
	"time"
)

// PacketSeq is the sequence number of a packet, 1 to 0xef.
type PacketSeq byte

// MaxPacketSize is the largest data length of a packet.
const MaxPacketSize = 0xef

const maxSeq = 0xef

// NewPacketSeq picks a starting sequence number from the clock.
func NewPacketSeq() PacketSeq {
	return PacketSeq(time.Now().UnixNano()).Next()
}

// Next returns the following sequence number, wrapping to 1.
func (s PacketSeq) Next() PacketSeq {
	if s >= maxSeq {
		return 1
	}
	return s + 1
}

// IsValid tells if s can number a packet. Larger values are sync bytes.
func (s PacketSeq) IsValid() bool {
	return s >= 1 && s <= maxSeq
}

// Packet is one unit of data on the link, encoded as
// seq, len, data..., checksum.
type Packet struct {
	Seq  PacketSeq
	Data []byte
}

// Checksum is the XOR of seq, len and the data bytes.
func (p *Packet) Checksum() byte {
	sum := byte(p.Seq) ^ byte(len(p.Data))
	for _, b := range p.Data {
		sum ^= b
	}
	return sum
}

// Bytes encodes the packet.
func (p *Packet) Bytes() []byte {
	b := make([]byte, 0, len(p.Data)+3)
	b = append(b, byte(p.Seq), byte(len(p.Data)))
	b = append(b, p.Data...)
	return append(b, p.Checksum())
}

// WriteTo writes the encoded packet in a single Write, so a packet is
// never interleaved with sync bytes.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Bytes())
	return int64(n), err
}
