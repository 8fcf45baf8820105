package vm

import (
	"bytes"
	"testing"
	"time"
)

func TestStatsReportRoundTrip(t *testing.T) {
	GCPass()
	r := Report()
	if len(r.Passes) == 0 {
		t.Fatal("report carries no pass history")
	}
	if r.Symbols == 0 || r.Alive == 0 {
		t.Errorf("empty report: %+v", r)
	}

	data, err := MarshalStats(r)
	if err != nil {
		t.Fatalf("MarshalStats: %v", err)
	}
	again, err := MarshalStats(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Error("canonical encoding is not deterministic")
	}

	got, err := UnmarshalStats(data)
	if err != nil {
		t.Fatalf("UnmarshalStats: %v", err)
	}
	if got.Epoch != r.Epoch || got.Allocator != r.Allocator || len(got.Passes) != len(r.Passes) {
		t.Errorf("decoded %+v, want %+v", got, r)
	}
	last := got.Passes[len(got.Passes)-1]
	want := r.Passes[len(r.Passes)-1]
	if last.Epoch != want.Epoch || last.Trigger != want.Trigger || last.Survivors != want.Survivors {
		t.Errorf("last pass %+v, want %+v", last, want)
	}
	if !last.Timestamp.Equal(want.Timestamp.Truncate(time.Second)) && !last.Timestamp.Equal(want.Timestamp) {
		t.Errorf("timestamp %v, want %v", last.Timestamp, want.Timestamp)
	}
}

func TestUnmarshalStatsRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalStats([]byte{0xff, 0x00}); err == nil {
		t.Error("garbage decoded without error")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	c := newCollector()
	for i := range historyLimit + 10 {
		c.record(Stats{Epoch: uint64(i)})
	}
	h := c.History()
	if len(h) != historyLimit {
		t.Fatalf("history length %d", len(h))
	}
	if h[0].Epoch != 10 || h[len(h)-1].Epoch != historyLimit+9 {
		t.Errorf("history spans %d..%d", h[0].Epoch, h[len(h)-1].Epoch)
	}
}

func TestConfigure(t *testing.T) {
	defer Configure(DefaultConfig())

	Configure(Config{StackCapacity: 128, GCThreshold: 4096, Allocator: AllocChannel})
	if CurrentConfig().StackCapacity != 128 {
		t.Errorf("stack capacity = %d", CurrentConfig().StackCapacity)
	}
	if GC().Threshold() != 4096 {
		t.Errorf("threshold = %d", GC().Threshold())
	}
	if registry.mode() != AllocChannel {
		t.Error("allocator mode not applied")
	}
	th := newTestThread(t)
	if th.Stack().Cap() != 128 {
		t.Errorf("new thread stack cap = %d", th.Stack().Cap())
	}

	Configure(Config{})
	if c := CurrentConfig(); c.StackCapacity != DefaultStackCapacity || c.GCThreshold != DefaultGCThreshold {
		t.Errorf("zero config not defaulted: %+v", c)
	}
	if registry.mode() != AllocInline {
		t.Error("allocator goroutine still running")
	}
}
