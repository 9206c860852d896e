// Package endtoend drives the handshake, sender, receiver and teardown
// state machines against each other over faketransport, the way spec §8
// describes testing the protocol as a whole rather than packet by packet.
package endtoend

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telepresenceio/rdt/internal/rdt/handshake"
	"github.com/telepresenceio/rdt/internal/rdt/netio/faketransport"
	"github.com/telepresenceio/rdt/internal/rdt/packet"
	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
	"github.com/telepresenceio/rdt/internal/rdt/receiver"
	"github.com/telepresenceio/rdt/internal/rdt/sender"
	"github.com/telepresenceio/rdt/internal/rdt/teardown"
)

const (
	clientAddr faketransport.Addr = "client"
	serverAddr faketransport.Addr = "server"
)

// runTransfer wires a client and server pair over a faketransport.Link with
// the given fault parameters and drives one whole file transfer to
// completion, returning the bytes the receiver wrote.
func runTransfer(t *testing.T, cfg rdtcfg.Config, content []byte, lossRate, dupRate float64, reorderMax int, seed int64) []byte {
	t.Helper()
	ctx := dlog.NewTestContext(t, true)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientToServer := faketransport.NewLink(lossRate, dupRate, reorderMax, seed)
	serverToClient := faketransport.NewLink(lossRate, dupRate, reorderMax, seed+1)
	epClient, epServer := faketransport.NewPair(clientAddr, serverAddr, clientToServer, serverToClient)

	errc := make(chan error, 2)
	var received bytes.Buffer

	go func() {
		hs, err := handshake.DoServer(ctx, epServer, cfg)
		if err != nil {
			errc <- fmt.Errorf("server handshake: %w", err)
			return
		}
		eng := sender.NewEngine(epServer, hs.ClientAddr, cfg, bytes.NewReader(content), packet.SeqAdd(hs.ISN, 1), hs.FilenameAckno)
		finSeqno, err := eng.Run(ctx)
		if err != nil {
			errc <- fmt.Errorf("sender engine: %w", err)
			return
		}
		if err := teardown.SenderSide(ctx, epServer, hs.ClientAddr, cfg, finSeqno); err != nil {
			errc <- fmt.Errorf("sender teardown: %w", err)
			return
		}
		errc <- nil
	}()

	go func() {
		hs, err := handshake.DoClient(ctx, epClient, nil, cfg, "requested.txt", 40)
		if err != nil {
			errc <- fmt.Errorf("client handshake: %w", err)
			return
		}
		eng := receiver.NewEngine(epClient, nil, cfg, &received, hs.RcvBase)
		for {
			pkt, _, rerr := epClient.Receive(cfg.Timeout)
			if rerr != nil {
				continue
			}
			isFin, herr := eng.HandlePacket(ctx, pkt)
			if herr != nil {
				errc <- fmt.Errorf("receiver engine: %w", herr)
				return
			}
			if isFin {
				if err := teardown.ReceiverSide(ctx, epClient, nil, cfg, pkt.Header.Seqno); err != nil {
					errc <- fmt.Errorf("receiver teardown: %w", err)
					return
				}
				errc <- nil
				return
			}
		}
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errc:
			require.NoError(t, err)
		case <-ctx.Done():
			t.Fatal("transfer did not complete before the test deadline")
		}
	}

	return received.Bytes()
}

func testConfig() rdtcfg.Config {
	cfg := rdtcfg.Default()
	cfg.Timeout = 5 * time.Millisecond
	cfg.InitialCwnd = rdtcfg.MTU
	cfg.InitialSsthresh = 4 * rdtcfg.MTU
	return cfg
}

func TestTransferReliableLink(t *testing.T) {
	content := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 200)
	got := runTransfer(t, testConfig(), content, 0, 0, 0, 1)
	assert.Equal(t, content, got)
}

func TestTransferSmallFile(t *testing.T) {
	content := []byte("hi")
	got := runTransfer(t, testConfig(), content, 0, 0, 0, 2)
	assert.Equal(t, content, got)
}

func TestTransferEmptyFile(t *testing.T) {
	got := runTransfer(t, testConfig(), nil, 0, 0, 0, 3)
	assert.Empty(t, got)
}

func TestTransferSurvivesLossAndReorderAndDuplication(t *testing.T) {
	content := bytes.Repeat([]byte("reliable delivery over an unreliable substrate. "), 500)
	for _, seed := range []int64{10, 11, 12, 13} {
		seed := seed
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			got := runTransfer(t, testConfig(), content, 0.1, 0.05, 3, seed)
			assert.Equal(t, content, got)
		})
	}
}
