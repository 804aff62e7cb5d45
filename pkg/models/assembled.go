package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AssembledContext is the payload written back by C7 as the context of an
// "agent.context.v1" breadcrumb, keyed idempotently by (ConsumerID, Session).
type AssembledContext struct {
	ConsumerID       string     `json:"consumer_id"`
	TriggerEventID   *uuid.UUID `json:"trigger_event_id,omitempty"`
	AssembledAt      time.Time  `json:"assembled_at"`
	TokenEstimate    int        `json:"token_estimate"`
	SourcesAssembled int        `json:"sources_assembled"`
	FormattedContext string     `json:"formatted_context"`
	BreadcrumbCount  int        `json:"breadcrumb_count"`
}

// ChangeEvent is a single frame off the store's change stream (§6): the
// event loop ignores every type except the two breadcrumb-creation variants.
type ChangeEvent struct {
	Type          string    `json:"type"`
	BreadcrumbID  *uuid.UUID `json:"breadcrumb_id,omitempty"`
	SchemaName    string    `json:"schema_name,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Context       json.RawMessage `json:"context,omitempty"`
}

// IsBreadcrumbCreated reports whether e is one of the two creation event
// spellings the event loop dispatches on (§4.8).
func (e ChangeEvent) IsBreadcrumbCreated() bool {
	return (e.Type == "bc.created" || e.Type == "breadcrumb.created") && e.BreadcrumbID != nil
}

// IsPing reports whether e is a keepalive frame to be silently discarded.
func (e ChangeEvent) IsPing() bool {
	return e.Type == "ping"
}

// SchemaPriority implements the §4.7 step 7 ordering table: lower sorts
// first, everything unmatched falls through to the same bucket (10).
func SchemaPriority(schemaName string) int {
	switch schemaName {
	case "tool.catalog.v1":
		return 1
	case "agent.catalog.v1":
		return 2
	case "browser.tab.context.v1":
		return 3
	case "knowledge.v1":
		return 4
	case "user.message.v1", "agent.response.v1":
		return 5
	default:
		return 10
	}
}
