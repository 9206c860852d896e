package sender

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/telepresenceio/rdt/internal/rdt/packet"
	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
)

func TestWindowMarkAckedAdvancesContiguousPrefix(t *testing.T) {
	w := newWindow()
	now := time.Now()
	w.Append(packet.New(0, 0, 0, nil), 100, now)
	w.Append(packet.New(0, 100, 0, nil), 200, now)
	w.Append(packet.New(0, 200, 0, nil), 300, now)

	base, ok := w.BaseSeqno()
	assert.True(t, ok)
	assert.Equal(t, uint16(0), base)

	// A single cumulative ACK covering the first two packets should drop
	// both, even though only the second packet's endSeq equals the ackno.
	changed := w.MarkAcked(200)
	assert.True(t, changed)
	assert.Equal(t, 1, w.Len())

	base, ok = w.BaseSeqno()
	assert.True(t, ok)
	assert.Equal(t, uint16(200), base)
}

func TestWindowAllAckedWhenEmpty(t *testing.T) {
	w := newWindow()
	assert.True(t, w.AllAcked())
	w.Append(packet.New(0, 0, 0, nil), 100, time.Now())
	assert.False(t, w.AllAcked())
	w.MarkAcked(100)
	assert.True(t, w.AllAcked())
}

func TestWindowOldestUnackedPicksEarliestDeadline(t *testing.T) {
	w := newWindow()
	now := time.Now()
	w.Append(packet.New(0, 0, 0, nil), 100, now.Add(2*time.Second))
	w.Append(packet.New(0, 100, 0, nil), 200, now.Add(time.Second))

	f := w.OldestUnacked()
	assert.Equal(t, uint16(100), f.pkt.Header.Seqno)
}

func TestWindowUnackedExcludesAcked(t *testing.T) {
	w := newWindow()
	now := time.Now()
	w.Append(packet.New(0, 0, 0, nil), 100, now)
	w.Append(packet.New(0, 100, 0, nil), 200, now)
	w.MarkAcked(100)

	unacked := w.Unacked()
	assert.Len(t, unacked, 1)
	assert.Equal(t, uint16(100), unacked[0].pkt.Header.Seqno)
}

func TestWindowWrapsAroundSeqSpace(t *testing.T) {
	w := newWindow()
	now := time.Now()
	start := uint16(rdtcfg.SeqSpace - 50)
	w.Append(packet.New(0, start, 0, nil), packet.SeqAdd(start, 60), now)

	assert.True(t, w.MarkAcked(packet.SeqAdd(start, 60)))
	assert.True(t, w.AllAcked())
}
