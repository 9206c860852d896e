package sender

import (
	"time"

	"github.com/telepresenceio/rdt/internal/rdt/packet"
)

// inFlight is one packet sitting in the send window: sent at least once,
// possibly acked, with an absolute deadline for its next retransmission.
type inFlight struct {
	pkt      packet.Packet
	endSeq   uint16 // seqno one past the last byte this packet covers
	acked    bool
	deadline time.Time
}

// window is the ordered, owning container of in-flight packets described
// in spec §3: element 0 always has seqno == baseSeqno (the oldest
// unacknowledged packet), and the acked prefix is removed eagerly.
type window struct {
	elems []*inFlight
}

func newWindow() *window {
	return &window{}
}

// Len reports the number of packets currently in the window.
func (w *window) Len() int {
	return len(w.elems)
}

// Append adds a freshly transmitted packet to the back of the window.
func (w *window) Append(pkt packet.Packet, endSeq uint16, deadline time.Time) {
	w.elems = append(w.elems, &inFlight{pkt: pkt, endSeq: endSeq, deadline: deadline})
}

// EarliestDeadline returns the smallest deadline among unacked packets and
// whether the window holds any unacked packet at all.
func (w *window) EarliestDeadline() (time.Time, bool) {
	var (
		best  time.Time
		found bool
	)
	for _, e := range w.elems {
		if e.acked {
			continue
		}
		if !found || e.deadline.Before(best) {
			best = e.deadline
			found = true
		}
	}
	return best, found
}

// OldestUnacked returns the element with the earliest deadline, for
// timeout-driven retransmission (spec §4.4: "only this one packet is
// retransmitted per timeout").
func (w *window) OldestUnacked() *inFlight {
	var best *inFlight
	for _, e := range w.elems {
		if e.acked {
			continue
		}
		if best == nil || e.deadline.Before(best.deadline) {
			best = e
		}
	}
	return best
}

// MarkAcked marks every element whose coverage ends at or before ackno as
// acked (ackno is cumulative: one ACK can cover several packets sent
// since the last one), then advances the base forward over any
// contiguous acked prefix, deleting those entries. Returns whether
// anything changed.
func (w *window) MarkAcked(ackno uint16) bool {
	changed := false
	for _, e := range w.elems {
		if !e.acked && packet.SeqLessOrEqual(e.endSeq, ackno) {
			e.acked = true
			changed = true
		}
	}
	i := 0
	for i < len(w.elems) && w.elems[i].acked {
		i++
	}
	if i > 0 {
		w.elems = w.elems[i:]
		changed = true
	}
	return changed
}

// AllAcked reports whether the window is empty (every packet cumulatively
// acked), the sender's signal to proceed to teardown.
func (w *window) AllAcked() bool {
	return len(w.elems) == 0
}

// Unacked returns every currently-unacked packet, in order, for fast
// retransmit (spec §4.4: "retransmit unacked packets").
func (w *window) Unacked() []*inFlight {
	out := make([]*inFlight, 0, len(w.elems))
	for _, e := range w.elems {
		if !e.acked {
			out = append(out, e)
		}
	}
	return out
}

// BaseSeqno returns the seqno of the oldest unacknowledged packet, the
// front of the window per spec §3 invariant 2. Returns ok == false when
// the window is empty.
func (w *window) BaseSeqno() (uint16, bool) {
	if len(w.elems) == 0 {
		return 0, false
	}
	return w.elems[0].pkt.Header.Seqno, true
}
