package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapSerializesPerKey(t *testing.T) {
	m := New()

	const workers = 32
	counter := 0
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("letter-1")
			defer m.Unlock("letter-1")
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, workers, counter)
}

func TestMapIndependentKeys(t *testing.T) {
	m := New()
	m.Lock("a")

	done := make(chan struct{})
	go func() {
		m.Lock("b")
		m.Unlock("b")
		close(done)
	}()
	<-done

	m.Unlock("a")
}

func TestMapReleasesEntries(t *testing.T) {
	m := New()
	m.Lock("x")
	m.Unlock("x")

	// The key can be locked again after a full release cycle.
	m.Lock("x")
	m.Unlock("x")
}

func TestUnlockOfUnheldKeyPanics(t *testing.T) {
	m := New()
	assert.Panics(t, func() { m.Unlock("never-locked") })
}
