// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

package eventstream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/rkuska/dappboard/internal/logging"
	"github.com/rkuska/dappboard/internal/metrics"
)

// State is the subscription lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// ErrNoTransport is returned by Run when the manager was built without a
// source. The service keeps running degraded on durable state.
var ErrNoTransport = errors.New("eventstream: no transport configured")

// ErrAlreadyStarted is returned by Run when the manager is already
// consuming. Only one consume loop may exist per manager.
var ErrAlreadyStarted = errors.New("eventstream: manager already started")

// Handler processes one delivered message. A nil return acks the message;
// an error nacks it for redelivery. Handlers that decide a message is
// permanently unprocessable must return nil after dropping it.
type Handler func(ctx context.Context, msg *message.Message) error

// Manager keeps one durable subscription alive. On mid-stream failure it
// re-subscribes with exponential backoff that starts at base, doubles per
// attempt, caps at max and resets after the next successful delivery.
// Retries continue indefinitely.
type Manager struct {
	source  Source
	topic   string
	handler Handler

	backoffBase time.Duration
	backoffMax  time.Duration

	state   atomic.Int32
	started atomic.Bool
}

// NewManager creates a subscription manager. A nil source is allowed and
// produces a degraded manager whose Run returns ErrNoTransport.
func NewManager(source Source, topic string, base, max time.Duration, handler Handler) *Manager {
	m := &Manager{
		source:      source,
		topic:       topic,
		handler:     handler,
		backoffBase: base,
		backoffMax:  max,
	}
	m.setState(StateDisconnected)
	return m
}

// State returns the current subscription state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	metrics.SubscriptionState.Set(float64(s))
}

// Run consumes until the context is canceled. It never returns on broker
// failures; those are absorbed by the backoff loop.
func (m *Manager) Run(ctx context.Context) error {
	if m.source == nil {
		logging.Warn().Msg("No event transport configured, running degraded on durable state")
		return ErrNoTransport
	}
	if !m.started.CompareAndSwap(false, true) {
		logging.Warn().Msg("Subscription manager already started, ignoring duplicate start")
		return ErrAlreadyStarted
	}
	defer m.started.Store(false)
	defer m.setState(StateDisconnected)

	delay := m.backoffBase
	attempt := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.setState(StateConnecting)
		messages, err := m.source.Subscribe(ctx, m.topic)
		if err != nil {
			attempt++
			if !m.waitBackoff(ctx, &delay, attempt, err) {
				return ctx.Err()
			}
			continue
		}

		m.setState(StateSubscribed)
		logging.Info().Str("topic", m.topic).Msg("Subscribed to event stream")

		m.consume(ctx, messages, &delay, &attempt)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Channel closed mid-stream. Successful deliveries in the closed
		// cycle already reset the delay to base.
		attempt++
		if !m.waitBackoff(ctx, &delay, attempt, errors.New("message channel closed")) {
			return ctx.Err()
		}
	}
}

// consume drains the message channel until it closes or the context ends.
func (m *Manager) consume(ctx context.Context, messages <-chan *message.Message, delay *time.Duration, attempt *int) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			// A delivery proves the subscription is healthy again.
			*delay = m.backoffBase
			*attempt = 0
			metrics.EventsConsumed.Inc()
			m.dispatch(ctx, msg)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, msg *message.Message) {
	if m.handler == nil {
		msg.Ack()
		return
	}
	if err := m.handler(ctx, msg); err != nil {
		logging.Warn().
			Err(err).
			Str("message_uuid", msg.UUID).
			Msg("Message processing failed, requeueing")
		msg.Nack()
		return
	}
	msg.Ack()
}

// waitBackoff sleeps the current delay then doubles it up to the cap.
// Returns false when the context ended during the wait.
func (m *Manager) waitBackoff(ctx context.Context, delay *time.Duration, attempt int, cause error) bool {
	m.setState(StateBackoff)
	metrics.ReconnectAttempts.Inc()
	logging.Warn().
		Err(cause).
		Int("attempt", attempt).
		Dur("delay", *delay).
		Str("topic", m.topic).
		Msg("Subscription lost, backing off")

	timer := time.NewTimer(*delay)
	defer timer.Stop()

	next := *delay * 2
	if next > m.backoffMax {
		next = m.backoffMax
	}
	*delay = next

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
