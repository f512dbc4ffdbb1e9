package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndPoints(t *testing.T) {
	require.NoError(t, InitMetrics(""))
	defer Close()

	assert.Equal(t, int64(1), Incr("test_slips_created"))
	assert.Equal(t, int64(2), Incr("test_slips_created"))
	assert.Equal(t, int64(2), Counter("test_slips_created"))

	SetGauge("test_gauge", 42)
	pts, err := Points("test_gauge", time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.NotEmpty(t, pts)
	assert.Equal(t, float64(42), pts[len(pts)-1].Value)
}

func TestNoStorageIsNoop(t *testing.T) {
	require.NoError(t, Close())
	SetGauge("ignored", 1)
	pts, err := Points("ignored", time.Now().Add(-time.Minute), time.Now())
	assert.NoError(t, err)
	assert.Nil(t, pts)
}
