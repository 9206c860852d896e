package sender

import "github.com/telepresenceio/rdt/internal/rdt/rdtcfg"

// ccState is the three-valued TCP Reno state from spec §3/§4.4.
type ccState int

const (
	slowStart ccState = iota
	congestionAvoidance
	fastRecovery
)

func (s ccState) String() string {
	switch s {
	case slowStart:
		return "SLOW_START"
	case congestionAvoidance:
		return "CONGESTION_AVOIDANCE"
	case fastRecovery:
		return "FAST_RECOVERY"
	default:
		return "UNKNOWN"
	}
}

// congestion holds the Reno scalars: cwnd, ssthresh, dup_acks and state,
// exactly as spec §3 defines them. Transitions below mirror the classical
// table in spec §4.4, pinned against Open Question 3 (dup_acks increments,
// fast recovery only triggers on the third duplicate).
type congestion struct {
	cwnd     int
	ssthresh int
	dupAcks  int
	state    ccState
}

func newCongestion(cfg rdtcfg.Config) *congestion {
	return &congestion{
		cwnd:     cfg.InitialCwnd,
		ssthresh: cfg.InitialSsthresh,
		state:    slowStart,
	}
}

// onNewAck applies the "New ACK" row of the Reno table.
func (c *congestion) onNewAck() {
	c.dupAcks = 0
	switch c.state {
	case slowStart:
		c.cwnd += rdtcfg.MTU
		if c.cwnd >= c.ssthresh {
			c.state = congestionAvoidance
		}
	case congestionAvoidance:
		c.cwnd += rdtcfg.MTU * rdtcfg.MTU / c.cwnd
	case fastRecovery:
		c.cwnd = c.ssthresh
		c.state = congestionAvoidance
	}
	c.floorCwnd()
}

// onDupAck applies the dup-ACK rows of the Reno table. fastRetransmit
// reports whether this call crossed the fast-retransmit threshold and the
// window should retransmit every currently unacked packet.
func (c *congestion) onDupAck() (fastRetransmit bool) {
	switch c.state {
	case slowStart, congestionAvoidance:
		c.dupAcks++
		if c.dupAcks == rdtcfg.FastRetransmitThreshold {
			c.ssthresh = c.cwnd / 2
			c.cwnd = c.ssthresh + rdtcfg.FastRetransmitThreshold*rdtcfg.MTU
			c.state = fastRecovery
			fastRetransmit = true
		}
	case fastRecovery:
		c.cwnd += rdtcfg.MTU
	}
	c.floorCwnd()
	return fastRetransmit
}

// onTimeout applies the "Timeout" row of the Reno table.
func (c *congestion) onTimeout() {
	c.ssthresh = c.cwnd / 2
	c.cwnd = rdtcfg.MTU
	c.dupAcks = 0
	c.state = slowStart
	c.floorCwnd()
}

func (c *congestion) floorCwnd() {
	if c.cwnd < rdtcfg.MTU {
		c.cwnd = rdtcfg.MTU
	}
}

// windowCapacity is floor(cwnd / MTU), the admission bound from spec §3
// invariant 3 and the loop invariant in §4.4.
func (c *congestion) windowCapacity() int {
	return c.cwnd / rdtcfg.MTU
}
