package link

// SyncState indicates the state of the link.
type SyncState int

// Sync states, Ready and Receiving are bit flags.
const (
	SyncStateSyncing   SyncState = 0
	SyncStateReady     SyncState = 0x01
	SyncStateReceiving SyncState = 0x02
)

// IsReady tells if packets can be exchanged.
func (s SyncState) IsReady() bool {
	return s&SyncStateReady != 0
}

// IsReceiving tells if a sync or a packet is partially received.
func (s SyncState) IsReceiving() bool {
	return s&SyncStateReceiving != 0
}

// TimerAction tells what to do with the sync timer.
type TimerAction int

// Timer actions.
const (
	TimerNoChange TimerAction = iota
	TimerRestart
	TimerStop
)

// ParseResult is the outcome of feeding the Parser.
type ParseResult struct {
	// Sync is the sync byte to send to the peer, 0 for none.
	Sync   byte
	State  SyncState
	Packet *Packet
}

// WhatAboutTimer decides what to do with the sync timer.
func (r ParseResult) WhatAboutTimer() TimerAction {
	switch {
	case r.State.IsReceiving(), r.Sync == syncREQ:
		return TimerRestart
	case r.State.IsReady():
		return TimerStop
	}
	return TimerNoChange
}

const (
	syncREQ byte = 0xff
	syncACK byte = 0xfe
)

type phase int

const (
	phaseUnsynced phase = iota // syncREQ sent, expecting syncREQ or syncACK
	phaseReqSeq                // expecting the seq of a syncREQ
	phaseAckSeq                // expecting the seq of a syncACK while unsynced
	phaseIdle                  // synced, expecting a packet or a sync
	phaseIdleAckSeq            // synced, expecting the seq of a syncACK
	phaseLen                   // expecting the data length
	phaseData                  // expecting data
	phaseSum                   // expecting the checksum
)

// ParserStats counts what the Parser has seen.
type ParserStats struct {
	Packets        int
	Resyncs        int
	ChecksumErrors int
}

// Parser decodes the incoming byte stream of a link.
type Parser struct {
	phase   phase
	peerSeq PacketSeq
	packet  *Packet
	recvLen int
	sum     byte
	stats   ParserStats
}

// Stats returns the counters.
func (p *Parser) Stats() ParserStats {
	return p.stats
}

// State gets the current sync state.
func (p *Parser) State() SyncState {
	switch {
	case p.phase == phaseUnsynced:
		return SyncStateSyncing
	case p.phase == phaseIdle:
		return SyncStateReady
	case p.phase > phaseIdle:
		return SyncStateReady | SyncStateReceiving
	}
	return SyncStateSyncing | SyncStateReceiving
}

// Reset drops any partial input and requests a sync.
func (p *Parser) Reset() ParseResult {
	return p.result(p.resync())
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) ParseResult {
	var sync byte
	var pkt *Packet
	switch p.phase {
	case phaseUnsynced:
		p.expectSync(b, phaseAckSeq)
	case phaseReqSeq, phaseAckSeq:
		sync = p.acceptPeerSeq(b)
	case phaseIdle:
		if !p.expectSync(b, phaseIdleAckSeq) {
			sync = p.beginPacket(b)
		}
	case phaseIdleAckSeq:
		if PacketSeq(b) == p.peerSeq {
			p.phase = phaseIdle
		} else {
			sync = p.resync()
		}
	case phaseLen:
		sync = p.acceptLen(b)
	case phaseData:
		p.packet.Data[p.recvLen] = b
		p.sum ^= b
		if p.recvLen++; p.recvLen == len(p.packet.Data) {
			p.phase = phaseSum
		}
	case phaseSum:
		sync, pkt = p.acceptSum(b)
	}
	return ParseResult{Sync: sync, State: p.State(), Packet: pkt}
}

// Timeout tells the Parser the sync timer expired. Unless idle, the
// partial input is dropped and a sync requested.
func (p *Parser) Timeout() ParseResult {
	if p.phase == phaseIdle {
		return p.result(0)
	}
	return p.result(p.resync())
}

func (p *Parser) result(sync byte) ParseResult {
	return ParseResult{Sync: sync, State: p.State()}
}

// expectSync moves to phaseReqSeq on syncREQ and to ackPhase on syncACK.
func (p *Parser) expectSync(b byte, ackPhase phase) bool {
	switch b {
	case syncREQ:
		p.phase = phaseReqSeq
	case syncACK:
		p.phase = ackPhase
	default:
		return false
	}
	return true
}

func (p *Parser) acceptPeerSeq(b byte) byte {
	seq := PacketSeq(b)
	if !seq.IsValid() {
		return p.resync()
	}
	var sync byte
	if p.phase == phaseReqSeq {
		sync = syncACK
	}
	p.peerSeq, p.phase = seq, phaseIdle
	return sync
}

func (p *Parser) beginPacket(b byte) byte {
	if PacketSeq(b) != p.peerSeq {
		return p.resync()
	}
	p.packet = &Packet{Seq: p.peerSeq}
	p.peerSeq = p.peerSeq.Next()
	p.sum, p.phase = b, phaseLen
	return 0
}

func (p *Parser) acceptLen(b byte) byte {
	if b > MaxPacketSize {
		return p.resync()
	}
	p.sum ^= b
	p.packet.Data, p.recvLen = make([]byte, b), 0
	if b == 0 {
		p.phase = phaseSum
	} else {
		p.phase = phaseData
	}
	return 0
}

func (p *Parser) acceptSum(b byte) (byte, *Packet) {
	if b != p.sum {
		p.stats.ChecksumErrors++
		return p.resync(), nil
	}
	pkt := p.packet
	if len(pkt.Data) == 0 {
		pkt.Data = nil
	}
	p.packet, p.phase = nil, phaseIdle
	p.stats.Packets++
	return 0, pkt
}

func (p *Parser) resync() byte {
	p.phase, p.packet = phaseUnsynced, nil
	p.stats.Resyncs++
	return syncREQ
}
