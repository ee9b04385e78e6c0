package agentdb

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_CoalescesRapidTriggers(t *testing.T) {
	var fired int64
	d := newDebouncer(20*time.Millisecond, func() { atomic.AddInt64(&fired, 1) })
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&fired) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&fired))
}

func TestDebouncer_StopCancelsPendingRun(t *testing.T) {
	var fired int64
	d := newDebouncer(20*time.Millisecond, func() { atomic.AddInt64(&fired, 1) })

	d.Trigger()
	d.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt64(&fired))

	// Triggers after Stop are rejected.
	d.Trigger()
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt64(&fired))
}

func TestDebouncer_RunsAgainAfterQuietPeriod(t *testing.T) {
	var fired int64
	d := newDebouncer(10*time.Millisecond, func() { atomic.AddInt64(&fired, 1) })
	defer d.Stop()

	d.Trigger()
	require.Eventually(t, func() bool { return atomic.LoadInt64(&fired) == 1 }, time.Second, 2*time.Millisecond)

	d.Trigger()
	require.Eventually(t, func() bool { return atomic.LoadInt64(&fired) == 2 }, time.Second, 2*time.Millisecond)
}
