package rdtcfg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultDerivedDurations(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1*time.Second, cfg.TimedWait())
	assert.Equal(t, 8*time.Second, cfg.TeardownDeadline())
}

func TestDedupWindowAtLeastOne(t *testing.T) {
	cfg := Default()
	assert.GreaterOrEqual(t, cfg.DedupWindow(), 1)
}
