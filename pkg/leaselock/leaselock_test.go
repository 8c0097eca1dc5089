package leaselock

import (
	"testing"
	"time"
)

func TestOptionsWithDefaults(t *testing.T) {
	got := Options{}.withDefaults()
	if got.TTL != defaultTTL {
		t.Errorf("TTL = %v, want %v", got.TTL, defaultTTL)
	}
	if got.RenewEvery != defaultTTL/2 {
		t.Errorf("RenewEvery = %v, want %v", got.RenewEvery, defaultTTL/2)
	}
	if got.PollInterval != defaultPoll {
		t.Errorf("PollInterval = %v, want %v", got.PollInterval, defaultPoll)
	}

	got = Options{TTL: time.Second, RenewEvery: 2 * time.Second}.withDefaults()
	if got.RenewEvery >= got.TTL {
		t.Errorf("RenewEvery = %v not clamped below TTL %v", got.RenewEvery, got.TTL)
	}
}
