// Package receiver implements the in-order receive buffer, dedup list and
// cumulative-ACK emission described in spec §4.5, grounded on the
// teacher's addOutOfOrderPacket/oooQueue shape in pkg/vif/tcp/handler.go,
// reimplemented as a map keyed by seqno per spec §9's "Ownership" note.
package receiver

import (
	"container/list"
	"context"
	"net"

	"github.com/datawire/dlib/dlog"
	"github.com/pkg/errors"

	"github.com/telepresenceio/rdt/internal/rdt/packet"
	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
	"github.com/telepresenceio/rdt/internal/rdt/transport"
)

// Sink is the byte-sink the receiver writes delivered bytes to, in strict
// ascending sequence order, per spec §5's ordering guarantee.
type Sink interface {
	Write(p []byte) (int, error)
}

// Engine drives the receive side of one transfer: dedup, reorder buffer,
// in-order delivery to Sink, and FIN detection. It does not itself run the
// event loop (the caller's driver pumps packets into HandlePacket), since
// the receiver-side driver also has to react to handshake and teardown
// packets interleaved with data.
type Engine struct {
	cfg     rdtcfg.Config
	t       transport.Transport
	peer    net.Addr
	sink    Sink

	rcvBase uint16
	buf     map[uint16]packet.Packet

	seen     map[uint16]struct{}
	seenList *list.List
}

// NewEngine builds a receiver engine. rcvBase is the next in-order seqno
// expected, set by the handshake to ISN_s+1 on the client side.
func NewEngine(t transport.Transport, peer net.Addr, cfg rdtcfg.Config, sink Sink, rcvBase uint16) *Engine {
	return &Engine{
		cfg:      cfg,
		t:        t,
		peer:     peer,
		sink:     sink,
		rcvBase:  rcvBase,
		buf:      make(map[uint16]packet.Packet),
		seen:     make(map[uint16]struct{}),
		seenList: list.New(),
	}
}

// RcvBase reports the next in-order seqno expected, the cumulative-ACK
// monotonic measure from spec §8 property 3.
func (e *Engine) RcvBase() uint16 {
	return e.rcvBase
}

// HandlePacket processes one inbound datagram per spec §4.5. It returns
// true if the packet signaled FIN, handing control to the teardown FSM.
func (e *Engine) HandlePacket(ctx context.Context, pkt packet.Packet) (isFin bool, err error) {
	if pkt.Header.IsFIN() {
		return true, nil
	}

	seq := pkt.Header.Seqno
	dlog.Debugf(ctx, "receiver: got packet seq=%d len=%d", seq, len(pkt.Payload))

	if e.isDuplicate(seq) {
		e.ack(ctx, e.rcvBase)
		return false, nil
	}
	e.markSeen(seq)

	switch {
	case seq == e.rcvBase:
		if err := e.deliver(pkt); err != nil {
			return false, err
		}
		e.drainBuffered()
	case packet.SeqPrecedes(e.rcvBase, seq):
		// Ahead of rcv_base: buffer for later in-order promotion.
		e.buf[seq] = pkt
	default:
		// Behind rcv_base: stale, drop.
		dlog.Tracef(ctx, "receiver: dropped stale packet seq=%d", seq)
	}

	// ackno is always the cumulative next-expected seqno, rcv_base, not the
	// seqno of the packet that triggered this ACK: the sender's window
	// marks a packet acked only once ackno reaches its endSeq (seq+len),
	// so an ACK must name the next byte it still wants, not the one just
	// arrived.
	e.ack(ctx, e.rcvBase)
	return false, nil
}

func (e *Engine) deliver(pkt packet.Packet) error {
	if len(pkt.Payload) > 0 {
		if _, err := e.sink.Write(pkt.Payload); err != nil {
			return errors.Wrap(err, "write to sink")
		}
	}
	e.rcvBase = packet.SeqAdd(e.rcvBase, len(pkt.Payload))
	return nil
}

func (e *Engine) drainBuffered() {
	for {
		pkt, ok := e.buf[e.rcvBase]
		if !ok {
			return
		}
		delete(e.buf, e.rcvBase)
		if err := e.deliver(pkt); err != nil {
			return
		}
	}
}

func (e *Engine) ack(ctx context.Context, seqno uint16) {
	ack := packet.New(rdtcfg.FlagACK, 0, seqno, nil)
	if _, err := e.t.Send(ack, e.peer); err != nil {
		dlog.Errorf(ctx, "receiver: send ACK ackno=%d: %v", seqno, err)
		return
	}
	dlog.Infof(ctx, "Receiving packet %d", seqno)
}

func (e *Engine) isDuplicate(seq uint16) bool {
	_, ok := e.seen[seq]
	return ok
}

func (e *Engine) markSeen(seq uint16) {
	if _, ok := e.seen[seq]; ok {
		return
	}
	e.seen[seq] = struct{}{}
	e.seenList.PushBack(seq)
	if max := e.cfg.DedupWindow(); e.seenList.Len() > max {
		oldest := e.seenList.Remove(e.seenList.Front()).(uint16)
		delete(e.seen, oldest)
	}
}
