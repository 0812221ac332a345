package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestManagerCreatesOnFirstContact(t *testing.T) {
	m := NewManager(time.Minute)

	err := m.WithCall("CA123", "+15550100", func(c *Call) error {
		if c.Stage != StageGreeting {
			t.Fatalf("Stage = %q, want %q", c.Stage, StageGreeting)
		}
		if c.Language != LangEnglish {
			t.Fatalf("Language = %q, want %q", c.Language, LangEnglish)
		}
		c.SetSlot(SlotName, "Jane Doe")
		c.EnterStage(StageRouting)
		return nil
	})
	if err != nil {
		t.Fatalf("WithCall() error = %v", err)
	}

	got, err := m.Get("CA123")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SlotValue(SlotName) != "Jane Doe" {
		t.Fatalf("slot name = %q, want %q", got.SlotValue(SlotName), "Jane Doe")
	}
	if got.Stage != StageRouting {
		t.Fatalf("Stage = %q, want %q", got.Stage, StageRouting)
	}
	if got.From != "+15550100" {
		t.Fatalf("From = %q, want +15550100", got.From)
	}
}

func TestManagerEvict(t *testing.T) {
	m := NewManager(time.Minute)
	_ = m.WithCall("CA1", "", func(c *Call) error { return nil })

	ended, err := m.Evict("CA1")
	if err != nil {
		t.Fatalf("Evict() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("Status = %q, want %q", ended.Status, StatusEnded)
	}
	if _, err := m.Get("CA1"); err != ErrNotFound {
		t.Fatalf("Get() after evict error = %v, want ErrNotFound", err)
	}
	if _, err := m.Evict("CA1"); err != ErrNotFound {
		t.Fatalf("second Evict() error = %v, want ErrNotFound", err)
	}
}

func TestManagerSerializesSameCall(t *testing.T) {
	m := NewManager(time.Minute)

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithCall("CA-race", "", func(c *Call) error {
				c.Attempts++
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := m.Get("CA-race")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Attempts != workers {
		t.Fatalf("Attempts = %d, want %d", got.Attempts, workers)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)

	expired := make(chan *Call, 1)
	m.SetExpireHook(func(c *Call) { expired <- c })
	_ = m.WithCall("CA-idle", "", func(c *Call) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case c := <-expired:
		if c.CallID != "CA-idle" {
			t.Fatalf("expired CallID = %q, want CA-idle", c.CallID)
		}
	case <-time.After(time.Second):
		t.Fatalf("janitor did not expire inactive call")
	}
	if _, err := m.Get("CA-idle"); err != ErrNotFound {
		t.Fatalf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestEnterStageResetsAttempts(t *testing.T) {
	c := &Call{Stage: StageRouting, Attempts: 2}
	c.EnterStage(StageRouting)
	if c.Attempts != 2 {
		t.Fatalf("Attempts after re-enter = %d, want 2", c.Attempts)
	}
	c.EnterStage(StageCollectName)
	if c.Attempts != 0 {
		t.Fatalf("Attempts after transition = %d, want 0", c.Attempts)
	}
}
