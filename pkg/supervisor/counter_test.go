package supervisor

import (
	"sync"
	"testing"
)

// TestCounterOutcomeSequence replays fail, fail, success, fail, fail. A success
// is an open (reset) followed by that connection's termination (increment).
func TestCounterOutcomeSequence(t *testing.T) {
	c := NewCounter()
	if c.Value() != 0 {
		t.Fatalf("new counter = %d, want 0", c.Value())
	}

	type outcome struct {
		name    string
		success bool
	}
	outcomes := []outcome{{"fail", false}, {"fail", false}, {"success", true}, {"fail", false}, {"fail", false}}
	want := []int{1, 2, 1, 2, 3}

	aborted := -1
	for i, o := range outcomes {
		if o.success {
			c.Reset()
		}
		got := c.Increment()
		if got != want[i] {
			t.Errorf("after event %d (%s): counter = %d, want %d", i+1, o.name, got, want[i])
		}
		if got >= MaxFailures && aborted < 0 {
			aborted = i
		}
	}
	if aborted != 4 {
		t.Errorf("abort triggered at event %d, want event 5", aborted+1)
	}
}

func TestCounterTwoFailuresThenSuccessNeverAborts(t *testing.T) {
	c := NewCounter()
	for range 10 {
		if c.Increment() >= MaxFailures {
			t.Fatal("aborted")
		}
		if c.Increment() >= MaxFailures {
			t.Fatal("aborted")
		}
		c.Reset()
	}
}

func TestCounterConcurrentAccess(t *testing.T) {
	c := NewCounter()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.Increment()
				_ = c.Value()
			}
		}()
	}
	wg.Wait()
	if c.Value() != 5000 {
		t.Errorf("counter = %d, want 5000", c.Value())
	}
	c.Reset()
	if c.Value() != 0 {
		t.Errorf("counter after reset = %d, want 0", c.Value())
	}
}
