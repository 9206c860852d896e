// Package faketransport provides an in-process, lossy, reordering,
// duplicating substrate for driving the sender and receiver engines
// against each other without real sockets, per spec §8.
package faketransport

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/telepresenceio/rdt/internal/rdt/packet"
	"github.com/telepresenceio/rdt/internal/rdt/transport"
)

// Addr is a trivial net.Addr identifying one side of a fake link.
type Addr string

func (a Addr) Network() string { return "fake" }
func (a Addr) String() string  { return string(a) }

type datagram struct {
	pkt packet.Packet
	at  time.Time
}

// Link is a unidirectional, unreliable channel between two Endpoints.
// Loss, duplication and reordering are applied when a datagram is
// delivered to the link, not when it is read back out.
type Link struct {
	LossRate   float64
	DupRate    float64
	ReorderMax int

	mu    sync.Mutex
	rnd   *rand.Rand
	queue []datagram
}

// NewLink builds a Link with the given fault rates, seeded deterministically
// so property tests are reproducible.
func NewLink(lossRate, dupRate float64, reorderMax int, seed int64) *Link {
	return &Link{
		LossRate:   lossRate,
		DupRate:    dupRate,
		ReorderMax: reorderMax,
		rnd:        rand.New(rand.NewSource(seed)),
	}
}

// Deliver enqueues pkt onto the link, subject to loss/duplication/reordering.
func (l *Link) Deliver(pkt packet.Packet) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rnd.Float64() < l.LossRate {
		return
	}
	d := datagram{pkt: pkt, at: time.Now()}
	if l.ReorderMax > 0 && len(l.queue) > 0 && l.rnd.Intn(2) == 0 {
		idx := l.rnd.Intn(len(l.queue) + 1)
		l.queue = append(l.queue, datagram{})
		copy(l.queue[idx+1:], l.queue[idx:])
		l.queue[idx] = d
	} else {
		l.queue = append(l.queue, d)
	}
	if l.rnd.Float64() < l.DupRate {
		l.queue = append(l.queue, d)
	}
}

// Pop removes and returns the next queued datagram, if any.
func (l *Link) Pop() (packet.Packet, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return packet.Packet{}, false
	}
	d := l.queue[0]
	l.queue = l.queue[1:]
	return d.pkt, true
}

// Endpoint is a fake socket bound to one side of a pair of Links: outbound
// writes go to "to", inbound reads drain "from".
type Endpoint struct {
	self Addr
	peer Addr
	to   *Link
	from *Link
}

// NewPair builds two Endpoints wired to each other through two independent
// Links, one per direction, mirroring a real bidirectional UDP channel.
func NewPair(aAddr, bAddr Addr, aToB, bToA *Link) (a, b *Endpoint) {
	a = &Endpoint{self: aAddr, peer: bAddr, to: aToB, from: bToA}
	b = &Endpoint{self: bAddr, peer: aAddr, to: bToA, from: aToB}
	return a, b
}

// Send enqueues pkt for delivery to the peer.
func (e *Endpoint) Send(pkt packet.Packet, _ net.Addr) (int, error) {
	e.to.Deliver(pkt)
	return len(packet.Encode(pkt)), nil
}

// pollInterval bounds how long Receive sleeps between queue checks while
// waiting out a deadline, so state machines written against a real
// wall-clock socket (deadline == 0 meaning "block indefinitely") drive
// correctly against this in-process substrate too.
const pollInterval = 100 * time.Microsecond

// Receive pops the next inbound datagram, waiting up to deadline for one to
// arrive (deadline == 0 blocks until a packet is queued). Returns
// ErrNoPacket once the deadline elapses with nothing queued.
func (e *Endpoint) Receive(deadline time.Duration) (packet.Packet, net.Addr, error) {
	if pkt, ok := e.from.Pop(); ok {
		return pkt, e.peer, nil
	}
	if deadline == 0 {
		for {
			time.Sleep(pollInterval)
			if pkt, ok := e.from.Pop(); ok {
				return pkt, e.peer, nil
			}
		}
	}
	deadlineAt := time.Now().Add(deadline)
	for time.Now().Before(deadlineAt) {
		time.Sleep(pollInterval)
		if pkt, ok := e.from.Pop(); ok {
			return pkt, e.peer, nil
		}
	}
	return packet.Packet{}, nil, ErrNoPacket
}

// ErrNoPacket is returned by Receive when the deadline elapses with nothing
// queued. It wraps transport.ErrTimeout so callers written against the
// transport.Transport interface can recognize it with errors.Is without
// importing this package.
var ErrNoPacket = errors.Wrap(transport.ErrTimeout, "faketransport")
