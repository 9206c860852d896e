// Package server wires the handshake, sender engine and teardown FSM into
// the single per-process transfer the server side runs, grounded on the
// teacher's userd/service.go dgroup-supervised bootstrap.
package server

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
	"github.com/telepresenceio/rdt/internal/rdt/packet"
	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
	"github.com/telepresenceio/rdt/internal/rdt/sender"
	"github.com/telepresenceio/rdt/internal/rdt/teardown"
)

// ErrFileOpenFailed is fatal on the server side, before any data is sent:
// spec §7 notes the client will observe no response and time out its own
// handshake retries.
var ErrFileOpenFailed = errors.New("file open failed")

// Run binds port, accepts exactly one transfer end to end (spec §1:
// "exactly one active transfer per server process at a time"), then
// exits. It returns a non-nil error for every fatal condition in spec §7;
// the cmd/rdt-server entry point maps that to exit code 1.
func Run(ctx context.Context, port int, cfg rdtcfg.Config) error {
	ep, err := netio.Listen(port)
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
		return serveOnce(c, ep, cfg)
	})

	return g.Wait()
}

func serveOnce(ctx context.Context, ep *netio.Endpoint, cfg rdtcfg.Config) error {
	hs, err := handshake.DoServer(ctx, ep, cfg)
	if err != nil {
		return errors.Wrap(err, "handshake")
	}
	dlog.Infof(ctx, "accepted connection from %s, serving %q", hs.ClientAddr, hs.Filename)

	f, err := os.Open(hs.Filename)
	if err != nil {
		return errors.Wrapf(ErrFileOpenFailed, "open %q: %v", hs.Filename, err)
	}
	defer f.Close()

	eng := sender.NewEngine(ep, hs.ClientAddr, cfg, f, packet.SeqAdd(hs.ISN, 1), hs.FilenameAckno)
	finSeqno, err := eng.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "sender engine")
	}

	if err := teardown.SenderSide(ctx, ep, hs.ClientAddr, cfg, finSeqno); err != nil {
		return errors.Wrap(err, "teardown")
	}
	dlog.Info(ctx, "transfer complete, exiting")
	return nil
}
