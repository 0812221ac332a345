package synthesis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vanguardlabs/frontdesk/internal/session"
)

func newTestCache(t *testing.T, synth Synthesizer) *Cache {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return NewCache(store, synth, CacheConfig{
		BaseAddress: "https://bot.example.com",
		TTL:         time.Hour,
		MaxAssets:   8,
	}, nil)
}

func TestCacheSynthesizesOnceUnderConcurrency(t *testing.T) {
	mock := NewMockSynthesizer()
	c := newTestCache(t, mock)

	const callers = 12
	urls := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := c.AudioURL(context.Background(), "Hello, thank you for calling.", "rachel", session.LangEnglish)
			if res.Fallback {
				t.Errorf("caller %d got fallback", i)
				return
			}
			urls[i] = res.URL
		}(i)
	}
	wg.Wait()

	if got := mock.Calls(); got != 1 {
		t.Fatalf("synthesis calls = %d, want exactly 1", got)
	}
	for i := 1; i < callers; i++ {
		if urls[i] != urls[0] {
			t.Fatalf("caller %d URL = %q, want %q", i, urls[i], urls[0])
		}
	}
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *countingMetrics) ObserveSynthesis(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func (m *countingMetrics) count(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[outcome]
}

func TestCacheRecordsOneMissPerSynthesis(t *testing.T) {
	mock := NewMockSynthesizer()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	metrics := &countingMetrics{}
	c := NewCache(store, mock, CacheConfig{
		BaseAddress: "https://bot.example.com",
		TTL:         time.Hour,
		MaxAssets:   8,
	}, metrics)

	const callers = 12
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.AudioURL(context.Background(), "Shared line.", "rachel", session.LangEnglish)
		}()
	}
	wg.Wait()

	if got := mock.Calls(); got != 1 {
		t.Fatalf("synthesis calls = %d, want exactly 1", got)
	}
	if got := metrics.count("miss"); got != 1 {
		t.Fatalf("miss observations = %d, want 1 for a single shared synthesis", got)
	}
	if got := metrics.count("fallback"); got != 0 {
		t.Fatalf("fallback observations = %d, want 0", got)
	}
}

func TestCacheHitSkipsSynthesis(t *testing.T) {
	mock := NewMockSynthesizer()
	c := newTestCache(t, mock)

	first := c.AudioURL(context.Background(), "We're open Monday through Friday.", "rachel", session.LangEnglish)
	second := c.AudioURL(context.Background(), "We're open Monday through Friday.", "rachel", session.LangEnglish)
	if first.Fallback || second.Fallback {
		t.Fatalf("unexpected fallback: first=%+v second=%+v", first, second)
	}
	if first.URL != second.URL {
		t.Fatalf("URLs differ: %q vs %q", first.URL, second.URL)
	}
	if got := mock.Calls(); got != 1 {
		t.Fatalf("synthesis calls = %d, want 1", got)
	}
}

func TestCacheKeyVariesByVoiceAndLanguage(t *testing.T) {
	en := ContentKey("Hello", "rachel", session.LangEnglish)
	es := ContentKey("Hello", "rachel", session.LangSpanish)
	other := ContentKey("Hello", "antonio", session.LangEnglish)
	if en == es || en == other {
		t.Fatalf("keys should differ: en=%s es=%s voice=%s", en, es, other)
	}
	if en != ContentKey("  hello  ", "rachel", session.LangEnglish) {
		t.Fatalf("normalization should make keys case and whitespace insensitive")
	}
}

func TestCacheFallbackOnSynthesisFailure(t *testing.T) {
	mock := NewMockSynthesizer()
	mock.FailWith("Doomed prompt.", errors.New("quota exceeded"))
	c := newTestCache(t, mock)

	res := c.AudioURL(context.Background(), "Doomed prompt.", "rachel", session.LangEnglish)
	if !res.Fallback {
		t.Fatalf("expected fallback result, got %+v", res)
	}
	if res.URL != "" {
		t.Fatalf("fallback result should carry no URL, got %q", res.URL)
	}
}

func TestCacheJanitorEvictsExpired(t *testing.T) {
	mock := NewMockSynthesizer()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	c := NewCache(store, mock, CacheConfig{
		BaseAddress: "https://bot.example.com",
		TTL:         10 * time.Millisecond,
		MaxAssets:   8,
	}, nil)

	res := c.AudioURL(context.Background(), "Short lived.", "rachel", session.LangEnglish)
	if res.Fallback {
		t.Fatalf("unexpected fallback")
	}
	time.Sleep(20 * time.Millisecond)
	c.evictStale()
	if c.Len() != 0 {
		t.Fatalf("index size after eviction = %d, want 0", c.Len())
	}

	key, err := ParseAssetURL(res.URL)
	if err != nil {
		t.Fatalf("ParseAssetURL() error = %v", err)
	}
	if store.Has(key) {
		t.Fatalf("asset file should be removed after eviction")
	}
}

func TestAssetURLRoundTrip(t *testing.T) {
	storageKey := StorageKey(ContentKey("Hello there", "rachel", session.LangEnglish))
	u := AssetURL("https://bot.example.com/", storageKey)
	got, err := ParseAssetURL(u)
	if err != nil {
		t.Fatalf("ParseAssetURL(%q) error = %v", u, err)
	}
	if got != storageKey {
		t.Fatalf("round trip = %q, want %q", got, storageKey)
	}
}

func TestValidStorageKey(t *testing.T) {
	ok := StorageKey(ContentKey("x", "v", session.LangEnglish))
	tests := []struct {
		key  string
		want bool
	}{
		{ok, true},
		{"../../etc/passwd", false},
		{"abc.mp3x", false},
		{".mp3", false},
		{"ABCDEF.mp3", false},
		{"deadbeef.mp3", true},
	}
	for _, tt := range tests {
		if got := ValidStorageKey(tt.key); got != tt.want {
			t.Errorf("ValidStorageKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
