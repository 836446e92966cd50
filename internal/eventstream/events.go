// Dappboard - dApp Review Aggregation and Progression Service
// Copyright 2026 Radek Kuska (rkuska)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rkuska/dappboard

// Package eventstream consumes review events from NATS JetStream via
// Watermill and keeps the subscription alive across broker outages.
package eventstream

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/rkuska/dappboard/internal/models"
)

// TopicReviewSubmitted is the JetStream subject carrying review events.
const TopicReviewSubmitted = "reviews.submitted"

// ReviewSubmittedEvent is the wire shape of a submitted review. The id is
// the chain transaction hash and is globally unique; redeliveries reuse it.
type ReviewSubmittedEvent struct {
	ID         string    `json:"id"`
	DappID     string    `json:"dappId"`
	Rater      string    `json:"rater"`
	StarRating int       `json:"starRating"`
	Text       string    `json:"text,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Validate reports whether the event is structurally usable. Invalid
// events are acked and dropped; redelivery cannot fix them.
func (e *ReviewSubmittedEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event missing id")
	}
	if e.DappID == "" {
		return fmt.Errorf("event %s missing dappId", e.ID)
	}
	if e.Rater == "" {
		return fmt.Errorf("event %s missing rater", e.ID)
	}
	if e.StarRating < 1 || e.StarRating > 5 {
		return fmt.Errorf("event %s star rating %d out of range 1-5", e.ID, e.StarRating)
	}
	return nil
}

// Review converts the event into the domain model, normalizing addresses
// and forcing timestamps to UTC. A missing createdAt defaults to the
// current process time.
func (e *ReviewSubmittedEvent) Review() *models.Review {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &models.Review{
		ID:         e.ID,
		DappID:     e.DappID,
		Rater:      models.NormalizeAddress(e.Rater),
		StarRating: e.StarRating,
		Text:       e.Text,
		CreatedAt:  createdAt.UTC(),
	}
}

// DecodeReviewSubmitted parses and validates an event payload.
func DecodeReviewSubmitted(payload []byte) (*ReviewSubmittedEvent, error) {
	var event ReviewSubmittedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decoding review event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}
