// Package netio wraps a UDP socket with the bind/send/receive primitives
// described in spec §4.2: bounded-deadline receive is the only suspension
// point either engine's event loop ever uses.
package netio

import (
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/telepresenceio/rdt/internal/rdt/packet"
	"github.com/telepresenceio/rdt/internal/rdt/transport"
)

// ErrBindFailed is returned by Listen when the local endpoint cannot be
// allocated.
var ErrBindFailed = errors.New("bind failed")

// ErrResolveFailed is returned by Dial when the remote address cannot be
// resolved.
var ErrResolveFailed = errors.New("resolve failed")

// ErrTimeout is returned by Receive when the deadline elapses with nothing
// to read. It is not an error condition for the caller's state machine; it
// drives retransmission. It wraps transport.ErrTimeout so callers written
// against the transport.Transport interface can recognize it with
// errors.Is without importing this package.
var ErrTimeout = errors.Wrap(transport.ErrTimeout, "netio")

const readBufferSize = 64 * 1024

// Endpoint is a single-owner UDP socket, bound either passively (server)
// or connected to a peer (client).
type Endpoint struct {
	conn *net.UDPConn
}

// Listen allocates a local endpoint bound to port, for the server side.
func Listen(port int) (*Endpoint, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(ErrBindFailed, "listen on port %d: %v", port, err)
	}
	return &Endpoint{conn: conn}, nil
}

// Dial resolves host:port and connects a local endpoint to it, for the
// client side.
func Dial(host string, port int) (*Endpoint, net.Addr, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, nil, errors.Wrapf(ErrResolveFailed, "resolve %s:%d: %v", host, port, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrBindFailed, "dial %s: %v", addr, err)
	}
	return &Endpoint{conn: conn}, addr, nil
}

// Close releases the underlying socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// Send transmits a single datagram to peer and returns the number of bytes
// written. Partial sends are not possible at this layer.
func (e *Endpoint) Send(pkt packet.Packet, peer net.Addr) (int, error) {
	b := packet.Encode(pkt)
	var (
		n   int
		err error
	)
	if peer == nil {
		n, err = e.conn.Write(b)
	} else {
		n, err = e.conn.WriteTo(b, peer)
	}
	if err != nil {
		return 0, errors.Wrap(err, "send")
	}
	return n, nil
}

// Receive waits at most deadline for a datagram. deadline == 0 blocks
// indefinitely. Returns ErrTimeout on expiry.
func (e *Endpoint) Receive(deadline time.Duration) (packet.Packet, net.Addr, error) {
	if deadline > 0 {
		if err := e.conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return packet.Packet{}, nil, errors.Wrap(err, "set read deadline")
		}
	} else {
		if err := e.conn.SetReadDeadline(time.Time{}); err != nil {
			return packet.Packet{}, nil, errors.Wrap(err, "clear read deadline")
		}
	}

	buf := make([]byte, readBufferSize)
	n, peer, err := e.conn.ReadFrom(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return packet.Packet{}, nil, ErrTimeout
		}
		return packet.Packet{}, nil, errors.Wrap(err, "receive")
	}

	pkt, err := packet.Decode(buf[:n])
	if err != nil {
		return packet.Packet{}, peer, err
	}
	return pkt, peer, nil
}

// LocalAddr returns the endpoint's local address.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}
