package cache

import (
	"fmt"
	"testing"
	"time"
)

func newTestCache(maxEntries int) (*Cache, *time.Time) {
	c := New(Opts{MaxEntries: maxEntries})
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestKey_SortedParams(t *testing.T) {
	a := Key("/fixtures", map[string]string{"id": "12345", "league": "39"})
	b := Key("/fixtures", map[string]string{"league": "39", "id": "12345"})
	if a != b {
		t.Errorf("Key order-dependent: %q vs %q", a, b)
	}
	want := "/fixtures?id=12345?league=39"
	if a != want {
		t.Errorf("Key = %q, want %q", a, want)
	}
}

func TestKey_NoParams(t *testing.T) {
	if got := Key("/standings", nil); got != "/standings" {
		t.Errorf("Key = %q, want %q", got, "/standings")
	}
}

func TestKey_DistinctValues(t *testing.T) {
	a := Key("/fixtures", map[string]string{"id": "1"})
	b := Key("/fixtures", map[string]string{"id": "2"})
	if a == b {
		t.Errorf("distinct params produced equal key %q", a)
	}
}

func TestTTLFor(t *testing.T) {
	tests := []struct {
		endpoint string
		want     time.Duration
	}{
		{"/fixtures", 60 * time.Second},
		{"/fixtures/statistics", 2 * time.Minute},
		{"/fixtures/lineups", 5 * time.Minute},
		{"/injuries", 10 * time.Minute},
		{"/fixtures/headtohead", time.Hour},
		{"/standings", time.Hour},
		{"/unknown", DefaultTTL},
	}
	for _, tt := range tests {
		if got := TTLFor(tt.endpoint); got != tt.want {
			t.Errorf("TTLFor(%q) = %v, want %v", tt.endpoint, got, tt.want)
		}
	}
}

func TestGetSet_WithinTTL(t *testing.T) {
	c, now := newTestCache(0)
	params := map[string]string{"id": "12345"}

	c.Set("/fixtures", params, "payload")
	got, ok := c.Get("/fixtures", params)
	if !ok {
		t.Fatal("Get = miss, want hit")
	}
	if got != "payload" {
		t.Errorf("Get = %v, want %q", got, "payload")
	}

	*now = now.Add(59 * time.Second)
	if _, ok := c.Get("/fixtures", params); !ok {
		t.Error("Get just before expiry = miss, want hit")
	}
}

func TestGet_ExpiredEvictsLazily(t *testing.T) {
	c, now := newTestCache(0)
	params := map[string]string{"id": "12345"}

	c.Set("/fixtures", params, "payload")
	*now = now.Add(61 * time.Second)

	if _, ok := c.Get("/fixtures", params); ok {
		t.Error("Get after expiry = hit, want miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len after expired Get = %d, want 0", c.Len())
	}
}

func TestGet_Miss(t *testing.T) {
	c, _ := newTestCache(0)
	if _, ok := c.Get("/fixtures", map[string]string{"id": "1"}); ok {
		t.Error("Get on empty cache = hit, want miss")
	}
}

func TestSetWithTTL_Override(t *testing.T) {
	c, now := newTestCache(0)
	c.SetWithTTL("/fixtures", nil, "x", 10*time.Second)

	*now = now.Add(11 * time.Second)
	if _, ok := c.Get("/fixtures", nil); ok {
		t.Error("Get after override TTL = hit, want miss")
	}
}

func TestSweep(t *testing.T) {
	c, now := newTestCache(0)
	c.SetWithTTL("/a", nil, 1, 10*time.Second)
	c.SetWithTTL("/b", nil, 2, 20*time.Second)
	c.SetWithTTL("/c", nil, 3, 30*time.Second)

	*now = now.Add(25 * time.Second)
	if removed := c.Sweep(); removed != 2 {
		t.Errorf("Sweep = %d, want 2", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len after sweep = %d, want 1", c.Len())
	}
	if _, ok := c.Get("/c", nil); !ok {
		t.Error("surviving entry evicted by sweep")
	}
}

func TestMaxEntries_EvictsSoonestExpiry(t *testing.T) {
	c, _ := newTestCache(3)
	c.SetWithTTL("/a", nil, 1, 10*time.Second)
	c.SetWithTTL("/b", nil, 2, time.Hour)
	c.SetWithTTL("/c", nil, 3, time.Hour)
	c.SetWithTTL("/d", nil, 4, time.Hour)

	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}
	if _, ok := c.Get("/a", nil); ok {
		t.Error("soonest-expiring entry survived overflow")
	}
	if _, ok := c.Get("/d", nil); !ok {
		t.Error("newest entry missing after overflow")
	}
}

func TestMaxEntries_OverwriteDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(2)
	c.SetWithTTL("/a", nil, 1, time.Hour)
	c.SetWithTTL("/b", nil, 2, time.Hour)
	c.SetWithTTL("/a", nil, 10, time.Hour)

	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if got, _ := c.Get("/a", nil); got != 10 {
		t.Errorf("Get(/a) = %v, want 10", got)
	}
	if _, ok := c.Get("/b", nil); !ok {
		t.Error("untouched entry evicted by overwrite")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(Opts{})
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				params := map[string]string{"id": fmt.Sprintf("%d", j%10)}
				c.Set("/fixtures", params, n)
				c.Get("/fixtures", params)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
