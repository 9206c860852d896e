package sender

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
)

func TestSlowStartGrowsByMTUOnNewAck(t *testing.T) {
	cfg := rdtcfg.Default()
	cfg.InitialCwnd = rdtcfg.MTU
	cfg.InitialSsthresh = 4 * rdtcfg.MTU
	cc := newCongestion(cfg)

	cc.onNewAck()
	assert.Equal(t, 2*rdtcfg.MTU, cc.cwnd)
	assert.Equal(t, slowStart, cc.state)

	cc.onNewAck()
	assert.Equal(t, 3*rdtcfg.MTU, cc.cwnd)

	cc.onNewAck()
	assert.Equal(t, 4*rdtcfg.MTU, cc.cwnd)
	assert.Equal(t, congestionAvoidance, cc.state)
}

func TestThirdDupAckTriggersFastRetransmit(t *testing.T) {
	cfg := rdtcfg.Default()
	cc := newCongestion(cfg)
	cc.cwnd = 8 * rdtcfg.MTU

	assert.False(t, cc.onDupAck())
	assert.False(t, cc.onDupAck())
	assert.True(t, cc.onDupAck())

	assert.Equal(t, fastRecovery, cc.state)
	assert.Equal(t, 4*rdtcfg.MTU, cc.ssthresh)
	assert.Equal(t, 7*rdtcfg.MTU, cc.cwnd)
}

func TestFastRecoveryInflatesThenDeflatesOnNewAck(t *testing.T) {
	cfg := rdtcfg.Default()
	cc := newCongestion(cfg)
	cc.cwnd = 8 * rdtcfg.MTU
	cc.onDupAck()
	cc.onDupAck()
	cc.onDupAck()
	assert.Equal(t, fastRecovery, cc.state)

	inflated := cc.cwnd
	cc.onDupAck()
	assert.Equal(t, inflated+rdtcfg.MTU, cc.cwnd)
	assert.Equal(t, fastRecovery, cc.state)

	cc.onNewAck()
	assert.Equal(t, cc.ssthresh, cc.cwnd)
	assert.Equal(t, congestionAvoidance, cc.state)
}

func TestTimeoutResetsToSlowStart(t *testing.T) {
	cfg := rdtcfg.Default()
	cc := newCongestion(cfg)
	cc.cwnd = 10 * rdtcfg.MTU
	cc.state = congestionAvoidance

	cc.onTimeout()
	assert.Equal(t, slowStart, cc.state)
	assert.Equal(t, rdtcfg.MTU, cc.cwnd)
	assert.Equal(t, 5*rdtcfg.MTU, cc.ssthresh)
	assert.Equal(t, 0, cc.dupAcks)
}

func TestCwndNeverFloorsBelowMTU(t *testing.T) {
	cfg := rdtcfg.Default()
	cfg.InitialCwnd = rdtcfg.MTU
	cc := newCongestion(cfg)
	cc.onTimeout()
	assert.GreaterOrEqual(t, cc.cwnd, rdtcfg.MTU)
	assert.Equal(t, 1, cc.windowCapacity())
}
