// Package sender implements the windowed, congestion-controlled send side
// of the reliable-transport protocol described in spec §4.4, grounded on
// the teacher's ackWaitQueue/processResends shape in
// pkg/vif/tcp/handler.go and on original_source/p2/rdt_server_cc.cpp's
// sendFile event loop for the Reno arithmetic.
package sender

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/pkg/errors"

	"github.com/telepresenceio/rdt/internal/rdt/packet"
	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
	"github.com/telepresenceio/rdt/internal/rdt/transport"
)

// Source is the byte-source the sender reads the file from, per spec §1's
// "treated as a byte-source ... interface" framing.
type Source interface {
	Read(p []byte) (int, error)
}

// Engine drives one file transfer to a single peer. It owns no goroutines
// of its own: Run is the entire event loop, with the only suspension
// point being a bounded-deadline Receive.
type Engine struct {
	t    transport.Transport
	peer net.Addr
	cfg  rdtcfg.Config
	src  Source

	win *window
	cc  *congestion

	nextSeqno     uint16
	lastAckno     uint16
	haveLastAckno bool
	filenameAckno uint16
	firstData     bool

	fileDone bool
}

// NewEngine builds a sender engine. filenameAckno is the seqno of the
// handshake-completing ACK (spec §4.3 S1), cumulatively acked on the first
// data packet. startSeqno is the sender's next_seqno, typically ISN_s+1.
func NewEngine(t transport.Transport, peer net.Addr, cfg rdtcfg.Config, src Source, startSeqno, filenameAckno uint16) *Engine {
	return &Engine{
		t:             t,
		peer:          peer,
		cfg:           cfg,
		src:           src,
		win:           newWindow(),
		cc:            newCongestion(cfg),
		nextSeqno:     startSeqno,
		filenameAckno: filenameAckno,
		firstData:     true,
	}
}

// FinalSeqno reports the seqno the FIN packet will carry, for callers that
// need it ahead of Run returning (e.g. teardown bookkeeping in tests).
func (e *Engine) FinalSeqno() uint16 {
	return e.nextSeqno
}

// Run executes the loop invariant from spec §4.4 until the whole file has
// been cumulatively acked, then sends FIN and returns its seqno so the
// caller can drive teardown (§4.6).
func (e *Engine) Run(ctx context.Context) (finSeqno uint16, err error) {
	for {
		if err := e.topUpWindow(ctx); err != nil {
			return 0, err
		}

		if e.fileDone && e.win.AllAcked() {
			fin := packet.New(rdtcfg.FlagFIN, e.nextSeqno, 0, nil)
			if _, err := e.t.Send(fin, e.peer); err != nil {
				return 0, errors.Wrap(err, "send FIN")
			}
			logSend(ctx, fin.Header.Seqno, e.cc.cwnd, e.cc.ssthresh, "FIN")
			return fin.Header.Seqno, nil
		}

		deadline, hasDeadline := e.win.EarliestDeadline()
		var wait time.Duration
		if hasDeadline {
			// A zero or negative wait would be indistinguishable from
			// transport.Transport's "block indefinitely" sentinel, so an
			// already-elapsed retransmission deadline is rounded up to
			// the smallest positive duration instead.
			wait = time.Until(deadline)
			if wait <= 0 {
				wait = time.Nanosecond
			}
		} else {
			wait = e.cfg.Timeout
		}

		pkt, _, rerr := e.t.Receive(wait)
		if rerr != nil {
			if !errors.Is(rerr, transport.ErrTimeout) {
				// A malformed datagram, not a timeout: spec §7 requires
				// it be silently dropped without touching the window,
				// congestion state, or retransmission timer.
				dlog.Debugf(ctx, "sender: dropped malformed packet: %v", rerr)
				continue
			}
			if hasDeadline {
				e.onTimeout(ctx)
			}
			continue
		}
		e.onPacket(ctx, pkt)
	}
}

// topUpWindow admits chunks until cwnd/MTU packets are in flight or the
// file is exhausted, per spec §4.4's "Admitting a chunk".
func (e *Engine) topUpWindow(ctx context.Context) error {
	for !e.fileDone && e.win.Len() < e.cc.windowCapacity() {
		buf := make([]byte, rdtcfg.MaxPayload)
		n, rerr := e.src.Read(buf)
		if n > 0 {
			e.admit(ctx, buf[:n])
		}
		if rerr != nil {
			if rerr != io.EOF {
				return errors.Wrap(rerr, "read file chunk")
			}
			e.fileDone = true
			return nil
		}
	}
	return nil
}

func (e *Engine) admit(ctx context.Context, chunk []byte) {
	var flags, ackno uint16
	if e.firstData {
		flags = rdtcfg.FlagACK
		ackno = e.filenameAckno
		e.firstData = false
	}
	seq := e.nextSeqno
	endSeq := packet.SeqAdd(seq, len(chunk))
	pkt := packet.New(flags, seq, ackno, chunk)
	e.nextSeqno = endSeq

	deadline := time.Now().Add(e.cfg.Timeout)
	e.win.Append(pkt, endSeq, deadline)
	if _, err := e.t.Send(pkt, e.peer); err != nil {
		dlog.Errorf(ctx, "sender: send data packet seq=%d: %v", seq, err)
		return
	}
	logSend(ctx, seq, e.cc.cwnd, e.cc.ssthresh, "")
}

// onPacket implements "ACK handling" from spec §4.4.
func (e *Engine) onPacket(ctx context.Context, pkt packet.Packet) {
	if !pkt.Header.IsACK() {
		dlog.Debugf(ctx, "sender: dropped non-ACK packet")
		return
	}
	ackno := pkt.Header.Ackno
	dlog.Debugf(ctx, "Receiving packet %d", ackno)

	if e.haveLastAckno && ackno == e.lastAckno {
		if e.cc.onDupAck() {
			for _, f := range e.win.Unacked() {
				f.deadline = time.Now().Add(e.cfg.Timeout)
				if _, err := e.t.Send(f.pkt, e.peer); err != nil {
					dlog.Errorf(ctx, "sender: fast retransmit seq=%d: %v", f.pkt.Header.Seqno, err)
					continue
				}
				logSend(ctx, f.pkt.Header.Seqno, e.cc.cwnd, e.cc.ssthresh, "Retransmission")
			}
		}
		return
	}

	e.cc.onNewAck()
	e.win.MarkAcked(ackno)
	e.lastAckno = ackno
	e.haveLastAckno = true
}

// onTimeout implements the retransmission-timer row of spec §4.4.
func (e *Engine) onTimeout(ctx context.Context) {
	e.cc.onTimeout()
	f := e.win.OldestUnacked()
	if f == nil {
		return
	}
	f.deadline = time.Now().Add(e.cfg.Timeout)
	if _, err := e.t.Send(f.pkt, e.peer); err != nil {
		dlog.Errorf(ctx, "sender: timeout retransmit seq=%d: %v", f.pkt.Header.Seqno, err)
		return
	}
	logSend(ctx, f.pkt.Header.Seqno, e.cc.cwnd, e.cc.ssthresh, "Retransmission")
}

// logSend emits the plain-text telemetry line spec §6 mandates as an
// observable test event, as a single info-level log line.
func logSend(ctx context.Context, seqno uint16, cwnd, ssthresh int, kind string) {
	dlog.Infof(ctx, "Sending packet %d %d %d %s", seqno, cwnd, ssthresh, kind)
}
