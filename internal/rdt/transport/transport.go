// Package transport defines the narrow interface the handshake, sender,
// receiver and teardown state machines need from a datagram channel, so
// that they can run unmodified against a real netio.Endpoint or an
// in-process faketransport.Endpoint in tests.
package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/telepresenceio/rdt/internal/rdt/packet"
)

// Transport is the bounded-deadline send/receive pair spec §4.2 describes.
type Transport interface {
	Send(pkt packet.Packet, peer net.Addr) (int, error)
	Receive(deadline time.Duration) (packet.Packet, net.Addr, error)
}

// ErrTimeout is the sentinel every Transport implementation's Receive wraps
// when a deadline elapses with nothing queued. Callers use errors.Is
// against this value to tell an expected timeout (drives retransmission)
// apart from a genuine transport or decode failure such as
// packet.ErrMalformed (spec §7: a malformed datagram is silently dropped
// and must not trip the retransmission/congestion-control timeout path).
var ErrTimeout = errors.New("timeout")
