// Package handshake implements the three-way handshake FSM of spec §4.3
// on both endpoints, grounded on the teacher's setState/illegalStateTransition
// pattern in pkg/vif/tcp/handler.go, generalized to this protocol's states.
package handshake

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/pkg/errors"

	"github.com/telepresenceio/rdt/internal/rdt/packet"
	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
	"github.com/telepresenceio/rdt/internal/rdt/transport"
)

// ErrHandshakeFailed is returned by DoClient when the three-way handshake
// does not complete within its maxRetries SYN retransmissions. DoServer
// has no retry bound and never returns it.
var ErrHandshakeFailed = errors.New("handshake failed")

// ClientResult is what the client side learns from a completed handshake.
type ClientResult struct {
	ISN       uint16 // our initial sequence number, ISN_c
	PeerISN   uint16 // the server's initial sequence number, ISN_s
	RcvBase   uint16 // next in-order seqno expected from the server
	ServerAddr net.Addr
}

// DoClient runs states C0/C1: pick ISN_c, send SYN, retransmit on TIMEOUT,
// and on SYN-ACK send the filename-carrying ACK. maxRetries bounds the
// number of SYN retransmissions before giving up.
func DoClient(ctx context.Context, t transport.Transport, peer net.Addr, cfg rdtcfg.Config, filename string, maxRetries int) (ClientResult, error) {
	isnC := uint16(rand.Intn(rdtcfg.SeqSpace))
	syn := packet.New(rdtcfg.FlagSYN, isnC, 0, nil)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if _, err := t.Send(syn, peer); err != nil {
			return ClientResult{}, errors.Wrap(err, "send SYN")
		}
		dlog.Debugf(ctx, "handshake: sent SYN seq=%d (attempt %d)", isnC, attempt+1)

		deadline := time.Now().Add(cfg.Timeout)
		for time.Now().Before(deadline) {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				remaining = time.Nanosecond
			}
			pkt, from, err := t.Receive(remaining)
			if err != nil {
				if !errors.Is(err, transport.ErrTimeout) {
					// Malformed datagram: silently dropped, keep waiting
					// out the same SYN attempt rather than retransmitting.
					dlog.Debugf(ctx, "handshake: dropped malformed packet while waiting: %v", err)
					continue
				}
				break
			}
			hdr := pkt.Header
			if packet.ClassifyKind(hdr.Flags) != packet.KindSynAck {
				dlog.Debugf(ctx, "handshake: dropped non-SYN-ACK packet while waiting")
				continue
			}
			if hdr.Ackno != packet.SeqAdd(isnC, 1) {
				dlog.Debugf(ctx, "handshake: dropped SYN-ACK with wrong ackno %d", hdr.Ackno)
				continue
			}
			isnS := hdr.Seqno
			rcvBase := packet.SeqAdd(isnS, 1)
			ackSeq := packet.SeqAdd(isnC, 1)
			payload := append([]byte(filename), 0)
			ack := packet.New(rdtcfg.FlagACK, ackSeq, rcvBase, payload)
			if _, err := t.Send(ack, peer); err != nil {
				return ClientResult{}, errors.Wrap(err, "send filename ACK")
			}
			dlog.Debugf(ctx, "handshake: completed, ISN_s=%d rcv_base=%d", isnS, rcvBase)
			return ClientResult{ISN: isnC, PeerISN: isnS, RcvBase: rcvBase, ServerAddr: from}, nil
		}
	}
	return ClientResult{}, ErrHandshakeFailed
}

// ServerResult is what the server side learns from a completed handshake.
type ServerResult struct {
	ISN           uint16 // our initial sequence number, ISN_s
	PeerISN       uint16 // the client's ISN_c
	Filename      string
	FilenameAckno uint16 // seqno of the filename-carrying ACK, cumulatively acked on first data packet
	ClientAddr    net.Addr
}

// DoServer runs states S0/S1: block for SYN, send SYN-ACK, retransmit on
// TIMEOUT until a matching ACK carrying a filename arrives.
func DoServer(ctx context.Context, t transport.Transport, cfg rdtcfg.Config) (ServerResult, error) {
	var (
		isnS   uint16
		isnC   uint16
		client net.Addr
	)

	for {
		pkt, from, err := t.Receive(0)
		if err != nil {
			// deadline 0 blocks indefinitely, so any error here is a
			// malformed datagram, not a timeout: silently dropped, spec §7.
			dlog.Debugf(ctx, "handshake: dropped malformed packet while listening for SYN: %v", err)
			continue
		}
		if packet.ClassifyKind(pkt.Header.Flags) == packet.KindSyn {
			isnC = pkt.Header.Seqno
			isnS = uint16(rand.Intn(rdtcfg.SeqSpace))
			client = from
			break
		}
		dlog.Debugf(ctx, "handshake: dropped non-SYN packet while listening")
	}

	for {
		synAck := packet.New(rdtcfg.FlagSynAck, isnS, packet.SeqAdd(isnC, 1), nil)
		if _, err := t.Send(synAck, client); err != nil {
			return ServerResult{}, errors.Wrap(err, "send SYN-ACK")
		}
		dlog.Debugf(ctx, "handshake: sent SYN-ACK seq=%d ack=%d", isnS, packet.SeqAdd(isnC, 1))

		deadline := time.Now().Add(cfg.Timeout)
		for time.Now().Before(deadline) {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				remaining = time.Nanosecond
			}
			pkt, _, err := t.Receive(remaining)
			if err != nil {
				if !errors.Is(err, transport.ErrTimeout) {
					// Malformed datagram: silently dropped, keep waiting
					// out the same SYN-ACK attempt rather than retransmitting.
					dlog.Debugf(ctx, "handshake: dropped malformed packet in S1: %v", err)
					continue
				}
				break
			}
			if packet.ClassifyKind(pkt.Header.Flags) != packet.KindAck {
				dlog.Debugf(ctx, "handshake: dropped non-ACK packet in S1")
				continue
			}
			if pkt.Header.Ackno != packet.SeqAdd(isnS, 1) || len(pkt.Payload) == 0 {
				dlog.Debugf(ctx, "handshake: dropped mismatched or payload-less ACK in S1")
				continue
			}
			filename := trimNUL(pkt.Payload)
			return ServerResult{
				ISN:           isnS,
				PeerISN:       isnC,
				Filename:      filename,
				FilenameAckno: pkt.Header.Seqno,
				ClientAddr:    client,
			}, nil
		}
	}
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
