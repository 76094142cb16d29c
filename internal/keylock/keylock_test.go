package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	l := New[int64]()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Do(7, func() {
				v := counter
				time.Sleep(time.Microsecond)
				counter = v + 1
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, counter)
	assert.Equal(t, 0, l.Len())
}

func TestLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := New[string]()
	unlockA := l.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		l.Do("b", func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestLocker_UnlockIsIdempotent(t *testing.T) {
	l := New[string]()
	unlock := l.Lock("k")
	unlock()
	unlock()

	assert.Equal(t, 0, l.Len())
	l.Do("k", func() {})
}
