package packet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := New(rdtcfg.FlagACK, 42, 7, []byte("hello"))
	b := Encode(p)
	assert.Len(t, b, rdtcfg.HeaderSize+5)

	got, err := Decode(b)
	assert.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("decoded packet differs from original (-want +got):\n%s", diff)
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeEmptyPayload(t *testing.T) {
	p := New(rdtcfg.FlagSYN, 1, 0, nil)
	got, err := Decode(Encode(p))
	assert.NoError(t, err)
	assert.Empty(t, got.Payload)
}

func TestClassifyKind(t *testing.T) {
	cases := []struct {
		name  string
		flags uint16
		want  Kind
	}{
		{"data", 0, KindData},
		{"syn", rdtcfg.FlagSYN, KindSyn},
		{"synack", rdtcfg.FlagSynAck, KindSynAck},
		{"ack", rdtcfg.FlagACK, KindAck},
		{"fin", rdtcfg.FlagFIN, KindFin},
		{"finack", rdtcfg.FlagFinAck, KindFinAck},
		{"fin with stray bits", rdtcfg.FlagFIN | rdtcfg.FlagSYN, KindFin},
		{"finack with stray bits", rdtcfg.FlagFinAck | rdtcfg.FlagCWR, KindFinAck},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ClassifyKind(c.flags))
		})
	}
}

func TestHeaderPredicates(t *testing.T) {
	h := Header{Flags: rdtcfg.FlagFIN | rdtcfg.FlagACK}
	assert.True(t, h.IsFIN())
	assert.True(t, h.IsACK())
	assert.False(t, h.IsSYN())
}
