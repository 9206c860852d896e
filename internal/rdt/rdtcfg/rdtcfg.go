// Package rdtcfg holds the tunable constants of the reliable-transport
// protocol as a configuration struct instead of compile-time globals, so
// that tests can vary them and the CLI can override a subset from flags
// or the environment.
package rdtcfg

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// MTU is the maximum total datagram size (header + payload) this protocol
// emits.
const MTU = 1024

// HeaderSize is the on-wire size of a packet header: seqno, ackno and
// flags, each a 16-bit unsigned integer, little-endian, no padding.
const HeaderSize = 6

// MaxPayload is the largest payload a single packet may carry.
const MaxPayload = MTU - HeaderSize

// SeqSpace is the modulus over which seqno/ackno wrap.
const SeqSpace = 30720

// Flag bits, matching the wire contract in spec §6.
const (
	FlagFIN = 1
	FlagSYN = 2
	FlagACK = 16
	FlagCWR = 128
)

// Named flag combinations, compared by exact equality per Open Question 2.
const (
	FlagSynAck = FlagSYN | FlagACK
	FlagFinAck = FlagFIN | FlagACK
)

// FastRetransmitThreshold is the number of duplicate ACKs that triggers a
// fast retransmit.
const FastRetransmitThreshold = 3

// Config is the set of tunables both peers must agree on. Constructed once
// at process start; every component takes it by value or pointer rather
// than reaching for package globals.
type Config struct {
	// Timeout is the retransmission/handshake timer, TIMEOUT in the spec.
	Timeout time.Duration `env:"RDT_TIMEOUT, default=500ms"`

	// InitialCwnd is the sender's starting congestion window, in bytes.
	InitialCwnd int `env:"RDT_INITIAL_CWND, default=1024"`

	// InitialSsthresh is the sender's starting slow-start threshold, in bytes.
	InitialSsthresh int `env:"RDT_INITIAL_SSTHRESH, default=5120"`

	// IncHeader controls whether header bytes consume sequence space.
	// Fixed to false per Open Question 1: only data bytes (and the SYN
	// itself) occupy sequence space.
	IncHeader bool

	// MaxTeardownRounds is loaded from the environment but is not read by
	// the teardown code: teardown is bounded only by TeardownDeadline
	// (16*Timeout), not by a count of FIN retransmissions.
	MaxTeardownRounds int `env:"RDT_MAX_TEARDOWN_ROUNDS, default=16"`
}

// Default returns the configuration spec §6 names as the wire contract.
func Default() Config {
	return Config{
		Timeout:           500 * time.Millisecond,
		InitialCwnd:       MTU,
		InitialSsthresh:   5120,
		IncHeader:         false,
		MaxTeardownRounds: 16,
	}
}

// FromEnvironment starts from Default and applies RDT_* overrides, letting
// integration tests and operators tune timing without recompiling.
func FromEnvironment(ctx context.Context) (Config, error) {
	cfg := Default()
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DedupWindow is the number of recently-seen seqnos the receiver keeps
// around to recognize replayed packets, per spec §3: "window size >= S/P".
func (c Config) DedupWindow() int {
	n := (SeqSpace + MaxPayload - 1) / MaxPayload
	if n < 1 {
		n = 1
	}
	return n
}

// TimedWait is the duration both sides linger in after teardown to absorb
// late retransmissions: 2*TIMEOUT per spec §4.6.
func (c Config) TimedWait() time.Duration {
	return 2 * c.Timeout
}

// TeardownDeadline is the hard upper bound on the whole teardown sequence.
func (c Config) TeardownDeadline() time.Duration {
	return 16 * c.Timeout
}
