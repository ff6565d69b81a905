package flight

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "sales:12.345.678/0001-95:2024-03-01:2024-03-15",
		Key("sales", "12.345.678/0001-95", "2024-03-01", "2024-03-15"))
}

func TestAcquireRelease(t *testing.T) {
	r := New()
	key := Key("sales", "cnpj", "a", "b")

	assert.NoError(t, r.Acquire(key))
	assert.ErrorIs(t, r.Acquire(key), ErrInFlight)

	r.Release(key)
	assert.NoError(t, r.Acquire(key))
}

func TestDifferentKeysDoNotConflict(t *testing.T) {
	r := New()

	assert.NoError(t, r.Acquire(Key("sales", "cnpj", "a", "b")))
	assert.NoError(t, r.Acquire(Key("reimburse", "cnpj", "a", "b")))
	assert.NoError(t, r.Acquire(Key("sales", "other", "a", "b")))
}

func TestReleaseUnheldKeyIsNoop(t *testing.T) {
	r := New()
	r.Release("never-acquired")
	assert.NoError(t, r.Acquire("never-acquired"))
}

func TestConcurrentAcquireAdmitsExactlyOne(t *testing.T) {
	r := New()
	key := Key("sales", "cnpj", "2024-03-01", "2024-03-15")

	const goroutines = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Acquire(key) == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}
