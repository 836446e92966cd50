// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package eventstream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/rkuska/dappboard/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// fakeSource hands out scripted subscribe results.
type fakeSource struct {
	mu      sync.Mutex
	results []subscribeResult
	calls   int
}

type subscribeResult struct {
	ch  chan *message.Message
	err error
}

func (f *fakeSource) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return nil, errors.New("no more scripted results")
	}
	r := f.results[0]
	f.results = f.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.ch, nil
}

func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestManagerNilSource(t *testing.T) {
	m := NewManager(nil, TopicReviewSubmitted, time.Millisecond, time.Second, nil)
	if err := m.Run(context.Background()); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport, got %v", err)
	}
	if m.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", m.State())
	}
}

func TestManagerSingleStart(t *testing.T) {
	ch := make(chan *message.Message)
	src := &fakeSource{results: []subscribeResult{{ch: ch}}}
	m := NewManager(src, TopicReviewSubmitted, time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// Wait for the first Run to hold the started flag.
	deadline := time.After(2 * time.Second)
	for m.State() != StateSubscribed {
		select {
		case <-deadline:
			t.Fatal("manager never reached subscribed state")
		case <-time.After(time.Millisecond):
		}
	}

	if err := m.Run(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Run: expected ErrAlreadyStarted, got %v", err)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestManagerResubscribesWithBackoff(t *testing.T) {
	closed := make(chan *message.Message)
	close(closed)
	live := make(chan *message.Message)

	src := &fakeSource{results: []subscribeResult{
		{err: errors.New("broker down")},
		{ch: closed},
		{ch: live},
	}}
	m := NewManager(src, TopicReviewSubmitted, time.Millisecond, 4*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for m.State() != StateSubscribed || src.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("manager never recovered, calls=%d state=%s", src.callCount(), m.State())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestManagerAcksOnHandlerSuccess(t *testing.T) {
	ch := make(chan *message.Message, 1)
	src := &fakeSource{results: []subscribeResult{{ch: ch}}}

	handled := make(chan string, 1)
	m := NewManager(src, TopicReviewSubmitted, time.Millisecond, time.Second,
		func(ctx context.Context, msg *message.Message) error {
			handled <- msg.UUID
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	msg := message.NewMessage("m-1", []byte(`{}`))
	ch <- msg

	select {
	case uuid := <-handled:
		if uuid != "m-1" {
			t.Errorf("handled uuid = %s", uuid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never invoked")
	}

	select {
	case <-msg.Acked():
	case <-time.After(2 * time.Second):
		t.Fatal("message not acked after successful handling")
	}
}

func TestManagerNacksOnHandlerError(t *testing.T) {
	ch := make(chan *message.Message, 1)
	src := &fakeSource{results: []subscribeResult{{ch: ch}}}

	m := NewManager(src, TopicReviewSubmitted, time.Millisecond, time.Second,
		func(ctx context.Context, msg *message.Message) error {
			return errors.New("transient store failure")
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	msg := message.NewMessage("m-2", []byte(`{}`))
	ch <- msg

	select {
	case <-msg.Nacked():
	case <-time.After(2 * time.Second):
		t.Fatal("message not nacked after handler error")
	}
}

func TestBackoffDelayDoublingAndCap(t *testing.T) {
	m := NewManager(&fakeSource{}, TopicReviewSubmitted, 10*time.Millisecond, 40*time.Millisecond, nil)

	ctx := context.Background()
	delay := m.backoffBase
	want := []time.Duration{
		20 * time.Millisecond,
		40 * time.Millisecond,
		40 * time.Millisecond, // capped
	}
	for i, w := range want {
		if !m.waitBackoff(ctx, &delay, i+1, errors.New("test")) {
			t.Fatal("waitBackoff aborted without cancellation")
		}
		if delay != w {
			t.Errorf("after attempt %d: delay = %s, want %s", i+1, delay, w)
		}
	}
}

func TestWaitBackoffHonorsCancellation(t *testing.T) {
	m := NewManager(&fakeSource{}, TopicReviewSubmitted, time.Hour, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	delay := m.backoffBase
	start := time.Now()
	if m.waitBackoff(ctx, &delay, 1, errors.New("test")) {
		t.Fatal("expected waitBackoff to report cancellation")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("waitBackoff blocked %s after cancellation", elapsed)
	}
}
