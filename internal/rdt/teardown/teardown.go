// Package teardown implements the four-way close described in spec §4.6,
// grounded on the teacher's stopLocked/setStopTimer TIME-WAIT pattern in
// pkg/vif/tcp/handler.go, adapted from its 30s constant to this protocol's
// 2*TIMEOUT.
package teardown

import (
	"context"
	"net"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/pkg/errors"

	"github.com/telepresenceio/rdt/internal/rdt/packet"
	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
	"github.com/telepresenceio/rdt/internal/rdt/transport"
)

// ErrTeardownTimedOut is returned when the hard 16*TIMEOUT bound elapses
// without completing the close.
var ErrTeardownTimedOut = errors.New("teardown timed out")

// SenderSide runs the sender's half of teardown: it has already sent FIN
// with seqno finSeqno (spec §4.4's termination step); this retransmits FIN
// until FIN-ACK arrives, sends the final ACK, then lingers through the
// timed wait, resending that final ACK if the peer's FIN-ACK shows up
// again (meaning the ACK was lost).
func SenderSide(ctx context.Context, t transport.Transport, peer net.Addr, cfg rdtcfg.Config, finSeqno uint16) error {
	deadline := time.Now().Add(cfg.TeardownDeadline())

	for time.Now().Before(deadline) {
		pkt, _, err := t.Receive(cfg.Timeout)
		if err != nil {
			if !errors.Is(err, transport.ErrTimeout) {
				// Malformed datagram: silently dropped, no retransmit.
				dlog.Debugf(ctx, "teardown: dropped malformed packet while awaiting FIN-ACK: %v", err)
				continue
			}
			fin := packet.New(rdtcfg.FlagFIN, finSeqno, 0, nil)
			if _, serr := t.Send(fin, peer); serr != nil {
				return errors.Wrap(serr, "retransmit FIN")
			}
			dlog.Debugf(ctx, "Sending packet %d 0 0 FIN", finSeqno)
			continue
		}
		if packet.ClassifyKind(pkt.Header.Flags) != packet.KindFinAck {
			dlog.Debugf(ctx, "teardown: dropped non-FIN-ACK packet")
			continue
		}
		if pkt.Header.Ackno != finSeqno {
			dlog.Debugf(ctx, "teardown: dropped FIN-ACK with wrong ackno")
			continue
		}
		finAckSeqno := pkt.Header.Seqno
		ack := packet.New(rdtcfg.FlagACK, 0, finAckSeqno, nil)
		if _, err := t.Send(ack, peer); err != nil {
			return errors.Wrap(err, "send final ACK")
		}
		senderTimedWait(ctx, t, peer, cfg, finSeqno, finAckSeqno)
		return nil
	}
	return ErrTeardownTimedOut
}

// ReceiverSide runs the receiver's half: on FIN it sends FIN-ACK and waits
// for the sender's final ACK, retransmitting FIN-ACK on timeout, then
// lingers through the timed wait.
func ReceiverSide(ctx context.Context, t transport.Transport, peer net.Addr, cfg rdtcfg.Config, finSeq uint16) error {
	deadline := time.Now().Add(cfg.TeardownDeadline())
	finAckSeq := uint16(0)

	for time.Now().Before(deadline) {
		finAck := packet.New(rdtcfg.FlagFinAck, finAckSeq, finSeq, nil)
		if _, err := t.Send(finAck, peer); err != nil {
			return errors.Wrap(err, "send FIN-ACK")
		}
		dlog.Debugf(ctx, "teardown: sent FIN-ACK ack=%d", finSeq)

		pkt, _, err := t.Receive(cfg.Timeout)
		if err != nil {
			if !errors.Is(err, transport.ErrTimeout) {
				dlog.Debugf(ctx, "teardown: dropped malformed packet while awaiting final ACK: %v", err)
			}
			continue
		}
		if pkt.Header.IsACK() && pkt.Header.Ackno == finAckSeq && !pkt.Header.IsFIN() {
			timedWait(ctx, t, cfg)
			return nil
		}
		if pkt.Header.IsFIN() {
			// Sender retransmitted FIN; loop resends FIN-ACK.
			continue
		}
	}
	return ErrTeardownTimedOut
}

// senderTimedWait lingers for 2*TIMEOUT absorbing late retransmissions, the
// way timedWait does, but additionally recognizes the peer's FIN-ACK
// retransmission as a sign that the final ACK this side just sent was
// lost, and resends it so the receiver's own teardown can still complete
// cleanly (spec §8 property 7: both sides exit cleanly under finite loss).
func senderTimedWait(ctx context.Context, t transport.Transport, peer net.Addr, cfg rdtcfg.Config, finSeqno, finAckSeqno uint16) {
	deadline := time.Now().Add(cfg.TimedWait())
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		pkt, _, err := t.Receive(remaining)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				return
			}
			// Malformed datagram: drop and keep waiting out the remainder.
			continue
		}
		if packet.ClassifyKind(pkt.Header.Flags) == packet.KindFinAck && pkt.Header.Ackno == finSeqno {
			ack := packet.New(rdtcfg.FlagACK, 0, finAckSeqno, nil)
			if _, serr := t.Send(ack, peer); serr != nil {
				dlog.Errorf(ctx, "teardown: resend final ACK: %v", serr)
			}
			continue
		}
		// Other late retransmission absorbed; keep waiting out the remainder.
	}
}

// timedWait absorbs late retransmissions for 2*TIMEOUT before the caller
// closes the socket and exits, per spec §4.6 step 4.
func timedWait(ctx context.Context, t transport.Transport, cfg rdtcfg.Config) {
	deadline := time.Now().Add(cfg.TimedWait())
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if _, _, err := t.Receive(remaining); err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				return
			}
			// Malformed datagram: drop and keep waiting out the remainder.
			continue
		}
		// Late retransmission absorbed; keep waiting out the remainder.
	}
}
