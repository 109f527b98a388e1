package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// scriptedPinger возвращает ошибки по порядку и сообщает о каждом вызове.
type scriptedPinger struct {
	results []error
	calls   chan struct{}
}

func (p *scriptedPinger) Ping(context.Context) error {
	var err error
	if len(p.results) > 0 {
		err, p.results = p.results[0], p.results[1:]
	}
	p.calls <- struct{}{}
	return err
}

// --- watchLeadership Tests ---

func TestWatchLeadership_SessionLost(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	lost := errors.New("connection reset")
	conn := &scriptedPinger{results: []error{nil, lost}, calls: make(chan struct{}, 2)}

	done := make(chan error, 1)
	go func() { done <- watchLeadership(ctx, clock, conn, time.Second) }()

	for i := 0; i < 2; i++ {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			t.Fatalf("BlockUntilContext: %v", err)
		}
		clock.Advance(time.Second)
		select {
		case <-conn.calls:
		case <-ctx.Done():
			t.Fatalf("ping %d was not called", i+1)
		}
	}

	select {
	case err := <-done:
		if !errors.Is(err, lost) {
			t.Errorf("expected session lost error, got %v", err)
		}
	case <-ctx.Done():
		t.Fatal("watchLeadership did not return after failed ping")
	}
}

func TestWatchLeadership_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	conn := &scriptedPinger{calls: make(chan struct{}, 1)}

	done := make(chan error, 1)
	go func() { done <- watchLeadership(ctx, clock, conn, time.Second) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watchLeadership did not return after cancel")
	}
}
