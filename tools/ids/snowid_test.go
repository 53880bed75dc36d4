package ids

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnowflakeRange(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.Error(t, err)
	_, err = NewSnowflake(MaxNode + 1)
	assert.Error(t, err)
	_, err = NewSnowflake(MaxNode)
	assert.NoError(t, err)
}

func TestSnowflakeIncreasingAndUnique(t *testing.T) {
	g, err := NewSnowflake(7)
	require.NoError(t, err)

	const n = 4 * 4096
	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, n)
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := int64(-1)
			for i := 0; i < n/4; i++ {
				id := g.Next()
				assert.Greater(t, id, prev)
				prev = id
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)

	for id := range seen {
		assert.EqualValues(t, 7, Node(id))
		break
	}
}

func TestSnowflakeWaitsOutClockRollback(t *testing.T) {
	g, err := NewSnowflake(1)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-5 * time.Millisecond), base.Add(time.Millisecond)}
	var slept time.Duration
	g.now = func() time.Time {
		t := clock[0]
		if len(clock) > 1 {
			clock = clock[1:]
		}
		return t
	}
	g.sleep = func(d time.Duration) { slept += d }

	first := g.Next()
	second := g.Next()
	assert.Greater(t, second, first)
	assert.Equal(t, 5*time.Millisecond, slept)
}

func TestNextString(t *testing.T) {
	g, err := NewSnowflake(3)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]+$`, g.NextString())
}
