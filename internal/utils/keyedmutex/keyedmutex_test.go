package keyedmutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesPerKeyAndForgetsReleasedKeys(t *testing.T) {
	k := New()
	counters := map[string]int{"a": 0, "b": 0}
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, key := range []string{"a", "b"} {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				release := k.Lock(key)
				defer release()
				mu.Lock()
				counters[key]++
				mu.Unlock()
			}(key)
		}
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"a": 50, "b": 50}, counters)
	assert.Zero(t, k.Len())
}
