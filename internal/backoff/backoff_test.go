package backoff

import (
	"errors"
	"testing"
	"time"

	cenkalti "github.com/cenkalti/backoff/v4"
)

func TestNextBackOffStaysWithinCap(t *testing.T) {
	f := New(time.Second, 10*time.Second)
	for i := 0; i < 20; i++ {
		d := f.NextBackOff()
		if d < 0 || d > 10*time.Second {
			t.Fatalf("attempt %d: delay %v out of [0, cap]", i, d)
		}
	}
}

func TestResetRestartsGrowth(t *testing.T) {
	f := New(time.Millisecond, time.Hour)
	for i := 0; i < 10; i++ {
		f.NextBackOff()
	}
	f.Reset()
	if f.attempt != 0 {
		t.Fatalf("attempt = %d after Reset, want 0", f.attempt)
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	f := New(time.Millisecond, 10*time.Millisecond)
	tries := 0
	op := func() error {
		tries++
		if tries < 3 {
			return errors.New("transient")
		}
		return nil
	}
	if err := cenkalti.Retry(op, f); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if tries != 3 {
		t.Errorf("tries = %d, want 3", tries)
	}
}
