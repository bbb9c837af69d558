// Package message defines the training event bus contract.
package message

import (
	"context"
	"time"

	"github.com/openrmt/openrmt/pkg/types"
)

// Event is one training lifecycle notification.
type Event struct {
	ID        string                 `json:"id"`
	Type      types.EventType        `json:"type"`
	RunID     string                 `json:"run_id"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Publisher delivers training events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
