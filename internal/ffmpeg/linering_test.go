package ffmpeg

import (
	"fmt"
	"sync"
	"testing"
)

func TestLineRingLastN(t *testing.T) {
	r := NewLineRing(3)
	if got := r.LastN(5); got != nil {
		t.Errorf("empty ring LastN = %q, want nil", got)
	}

	r.Add("a")
	r.Add("b")
	if want := []string{"a", "b"}; !equalStrings(r.LastN(5), want) {
		t.Errorf("LastN = %q, want %q", r.LastN(5), want)
	}

	r.Add("c")
	r.Add("d")
	if want := []string{"b", "c", "d"}; !equalStrings(r.LastN(3), want) {
		t.Errorf("LastN(3) = %q, want %q", r.LastN(3), want)
	}
	if want := []string{"c", "d"}; !equalStrings(r.LastN(2), want) {
		t.Errorf("LastN(2) = %q, want %q", r.LastN(2), want)
	}
	if n := len(r.LastN(10)); n != 3 {
		t.Errorf("stored %d lines, want 3", n)
	}
}

func TestLineRingConcurrent(t *testing.T) {
	r := NewLineRing(10)
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				r.Add(fmt.Sprintf("%d-%d", i, j))
				_ = r.LastN(5)
			}
		}()
	}
	wg.Wait()

	if n := len(r.LastN(100)); n != 10 {
		t.Errorf("stored %d lines, want 10", n)
	}
}
