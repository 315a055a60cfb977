package link

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketSeqWraps(t *testing.T) {
	seq := PacketSeq(1)
	for i := 1; i < maxSeq; i++ {
		require.True(t, seq.IsValid())
		seq = seq.Next()
	}
	require.Equal(t, PacketSeq(maxSeq), seq)
	require.Equal(t, PacketSeq(1), seq.Next())

	for _, b := range []byte{0, maxSeq + 1, syncACK, syncREQ} {
		require.False(t, PacketSeq(b).IsValid())
		require.Equal(t, PacketSeq(1), PacketSeq(b).Next())
	}
	require.True(t, NewPacketSeq().IsValid())
}

func TestPacketEncoding(t *testing.T) {
	pkts := map[string]struct {
		pkt  Packet
		want []byte
	}{
		"empty":    {Packet{Seq: 1}, []byte{1, 0, 1}},
		"one byte": {Packet{Seq: 2, Data: []byte{0xff}}, []byte{2, 1, 0xff, 0xfc}},
		"frame":    {Packet{Seq: 3, Data: []byte{0x81, 1, 2, 0, 0}}, []byte{3, 5, 0x81, 1, 2, 0, 0, 0x84}},
	}
	for name, c := range pkts {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, c.want, c.pkt.Bytes())
			var buf bytes.Buffer
			n, err := c.pkt.WriteTo(&buf)
			require.NoError(t, err)
			require.Equal(t, int64(len(c.want)), n)

			var p Parser
			p.Reset()
			p.Parse(syncACK)
			p.Parse(byte(c.pkt.Seq))
			var pr ParseResult
			for _, b := range buf.Bytes() {
				pr = p.Parse(b)
			}
			require.NotNil(t, pr.Packet)
			require.Equal(t, c.pkt.Seq, pr.Packet.Seq)
			require.Equal(t, c.pkt.Data, pr.Packet.Data)
		})
	}
}
