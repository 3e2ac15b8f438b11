package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPresenceGauge(t *testing.T) {
	n := 3
	g := NewPresenceGauge(func() int { return n })

	g.PresenceChanged(1, true)
	assert.Equal(t, 3.0, testutil.ToFloat64(OnlineUsers))

	n = 2
	g.PresenceChanged(1, false)
	assert.Equal(t, 2.0, testutil.ToFloat64(OnlineUsers))
}
