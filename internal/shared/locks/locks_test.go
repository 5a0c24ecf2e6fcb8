package locks

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	key := uuid.New()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(key)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	first := uuid.New()
	second := uuid.New()

	unlockFirst := km.Lock(first)
	defer unlockFirst()

	// A different key must not block.
	done := make(chan struct{})
	go func() {
		unlock := km.Lock(second)
		unlock()
		close(done)
	}()
	<-done
}
