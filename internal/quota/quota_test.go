package quota

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryConsume_ExactLimit(t *testing.T) {
	tr := NewTracker(110)

	require.True(t, tr.TryConsume(CostSearch))
	require.True(t, tr.TryConsume(CostTranscript))
	assert.Equal(t, 110, tr.Consumed())

	assert.False(t, tr.TryConsume(CostSourceFetch), "one unit over the limit must be denied")
	assert.Equal(t, 110, tr.Consumed(), "denied request must not change state")
	assert.Equal(t, 0, tr.Remaining())
}

func TestTryConsume_ZeroLimitDeniesEverything(t *testing.T) {
	tr := NewTracker(0)

	assert.False(t, tr.TryConsume(CostSearch))
	assert.False(t, tr.TryConsume(CostTranscript))
	assert.False(t, tr.TryConsume(CostSourceFetch))
	assert.True(t, tr.TryConsume(0))
	assert.Equal(t, State{Consumed: 0, Limit: 0}, tr.Snapshot())
}

func TestTryConsume_NegativeRejected(t *testing.T) {
	tr := NewTracker(10)
	require.True(t, tr.TryConsume(5))

	assert.False(t, tr.TryConsume(-5))
	assert.Equal(t, 5, tr.Consumed())
}

func TestNewTracker_NegativeLimit(t *testing.T) {
	tr := NewTracker(-3)
	assert.Equal(t, 0, tr.Limit())
}

func TestTryConsume_ConcurrentNeverExceedsLimit(t *testing.T) {
	const limit = 1000
	tr := NewTracker(limit)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if tr.TryConsume(CostTranscript) {
					granted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(limit/CostTranscript), granted.Load())
	assert.Equal(t, limit, tr.Consumed())
}

func TestCharge_NotifiesObserver(t *testing.T) {
	tr := NewTracker(105)

	type call struct {
		kind    Kind
		cost    int
		allowed bool
	}
	var calls []call
	tr.SetObserver(func(kind Kind, cost int, allowed bool) {
		calls = append(calls, call{kind, cost, allowed})
	})

	assert.True(t, tr.Charge(KindSearch))
	assert.False(t, tr.Charge(KindTranscript))
	assert.True(t, tr.Charge(KindSourceFetch))

	require.Len(t, calls, 3)
	assert.Equal(t, call{KindSearch, 100, true}, calls[0])
	assert.Equal(t, call{KindTranscript, 10, false}, calls[1])
	assert.Equal(t, call{KindSourceFetch, 1, true}, calls[2])
	assert.Equal(t, 101, tr.Consumed())
}

func TestKindCost(t *testing.T) {
	assert.Equal(t, 100, KindSearch.Cost())
	assert.Equal(t, 10, KindTranscript.Cost())
	assert.Equal(t, 1, KindSourceFetch.Cost())
	assert.Equal(t, 0, Kind("other").Cost())
}
