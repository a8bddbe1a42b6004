package grade

import (
	"sync"
	"testing"
)

func TestKeyedMutex(t *testing.T) {
	km := newKeyedMutex()

	var wg sync.WaitGroup
	counts := map[string]int{}
	var mu sync.Mutex
	active := map[string]int{}

	for i := 0; i < 50; i++ {
		key := []string{"a", "b"}[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(key)
			defer unlock()

			mu.Lock()
			active[key]++
			if active[key] > 1 {
				t.Errorf("Key %s held twice", key)
			}
			counts[key]++
			mu.Unlock()

			mu.Lock()
			active[key]--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if counts["a"] != 25 || counts["b"] != 25 {
		t.Errorf("Unexpected counts: %v", counts)
	}
	if len(km.locks) != 0 {
		t.Errorf("Expected unused locks to be dropped, %d left", len(km.locks))
	}
}
