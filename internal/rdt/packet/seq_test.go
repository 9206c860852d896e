package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
)

func TestSeqAddWraps(t *testing.T) {
	assert.Equal(t, uint16(5), SeqAdd(rdtcfg.SeqSpace-3, 8))
	assert.Equal(t, uint16(0), SeqAdd(rdtcfg.SeqSpace-1, 1))
}

func TestSeqPrecedes(t *testing.T) {
	assert.True(t, SeqPrecedes(10, 20))
	assert.False(t, SeqPrecedes(20, 10))
	assert.False(t, SeqPrecedes(10, 10))

	// Wraparound: a seqno just below the modulus precedes one just above zero.
	assert.True(t, SeqPrecedes(rdtcfg.SeqSpace-1, 5))
	assert.False(t, SeqPrecedes(5, rdtcfg.SeqSpace-1))
}

func TestSeqLessOrEqual(t *testing.T) {
	assert.True(t, SeqLessOrEqual(10, 10))
	assert.True(t, SeqLessOrEqual(10, 11))
	assert.False(t, SeqLessOrEqual(11, 10))
}
