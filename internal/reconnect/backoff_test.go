package reconnect

import (
	"testing"
	"time"
)

func TestBackoff_Next_GrowsByFactorUntilCapped(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second, 2, 0)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, w := range want {
		got := b.Next()
		if got != w {
			t.Fatalf("Next() call %d = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoff_Reset_ReturnsToInitial(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second, 2, 0)

	b.Next()
	b.Next()
	b.Reset()

	if got := b.Next(); got != time.Second {
		t.Fatalf("Next() after Reset = %v, want %v", got, time.Second)
	}
}

func TestBackoff_Next_NeverBelowInitialWithJitter(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second, 2, 0.5)

	for i := 0; i < 100; i++ {
		d := b.Next()
		if d < time.Second {
			t.Fatalf("jittered delay %v fell below Initial %v", d, time.Second)
		}
	}
}

func TestBackoff_Next_StaysWithinJitterOfMax(t *testing.T) {
	b := NewBackoff(time.Second, 5*time.Second, 3, 0.9)

	var d time.Duration
	for i := 0; i < 20; i++ {
		d = b.Next()
		if d > 5*time.Second+time.Duration(float64(5*time.Second)*0.9) {
			t.Fatalf("delay %v grew unreasonably past Max", d)
		}
	}
}
