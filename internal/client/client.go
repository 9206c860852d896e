// Package client wires the handshake, receiver engine and teardown FSM
// into the single transfer the client side drives, grounded on the
// teacher's userd/service.go dgroup-supervised bootstrap.
package client

import (
	"context"
	"os"
	"time"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/pkg/errors"

	"github.com/telepresenceio/rdt/internal/rdt/handshake"
	"github.com/telepresenceio/rdt/internal/rdt/netio"
	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
	"github.com/telepresenceio/rdt/internal/rdt/receiver"
	"github.com/telepresenceio/rdt/internal/rdt/teardown"
)

// OutputFile is the name spec §6 mandates: "received.data", truncate on
// open, in the current working directory.
const OutputFile = "received.data"

// defaultHandshakeRetries bounds the number of SYN retransmissions before
// the client gives up, roughly 6s of retries at the default 500ms TIMEOUT.
const defaultHandshakeRetries = 12

// Run resolves host:port, runs the handshake, receives the file into
// OutputFile, and drives teardown, returning a non-nil error for every
// fatal condition in spec §7.
func Run(ctx context.Context, host string, port int, filename string, cfg rdtcfg.Config) error {
	ep, _, err := netio.Dial(host, port)
	if err != nil {
		return err
	}
	defer ep.Close()

	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		SoftShutdownTimeout:  2 * time.Second,
		EnableSignalHandling: true,
		ShutdownOnNonError:   true,
	})

	g.Go("transfer", func(c context.Context) (err error) {
		defer func() {
			if perr := derror.PanicToError(recover()); perr != nil {
				dlog.Errorf(c, "%+v", perr)
				err = perr
			}
		}()
		return receiveOnce(c, ep, filename, cfg)
	})

	return g.Wait()
}

func receiveOnce(ctx context.Context, ep *netio.Endpoint, filename string, cfg rdtcfg.Config) error {
	// The socket is already connected (netio.Dial uses net.DialUDP), so
	// every Send below passes a nil peer and relies on the connected
	// destination, and every Receive's returned address is ignored.
	hs, err := handshake.DoClient(ctx, ep, nil, cfg, filename, defaultHandshakeRetries)
	if err != nil {
		return errors.Wrap(err, "handshake")
	}
	dlog.Infof(ctx, "handshake complete with ISN_s=%d", hs.PeerISN)

	out, err := os.Create(OutputFile)
	if err != nil {
		return errors.Wrapf(err, "create %q", OutputFile)
	}
	defer out.Close()

	eng := receiver.NewEngine(ep, nil, cfg, out, hs.RcvBase)

	for {
		pkt, _, rerr := ep.Receive(0)
		if rerr != nil {
			return errors.Wrap(rerr, "receive")
		}
		isFin, herr := eng.HandlePacket(ctx, pkt)
		if herr != nil {
			return errors.Wrap(herr, "receiver engine")
		}
		if isFin {
			if err := teardown.ReceiverSide(ctx, ep, nil, cfg, pkt.Header.Seqno); err != nil {
				return errors.Wrap(err, "teardown")
			}
			dlog.Info(ctx, "transfer complete, exiting")
			return nil
		}
	}
}
