// Package models defines the domain types shared across the context engine:
// breadcrumbs, edges, agent definitions, and assembled context records.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Breadcrumb is the primary entity: an append-only record in the backing
// store. Only the fields the core subsystem touches are modeled here — the
// full record also carries ttl/llm_hints/read_count metadata that is the
// record store's concern, not ours.
type Breadcrumb struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	SchemaName string
	Title     string
	Tags      []string
	Context   json.RawMessage
	Embedding []float32

	// EntityKeywords is lowercased, sorted, and duplicate-free whenever
	// present — computed by pkg/entities from Title+Context.
	EntityKeywords []string

	TriggerEventID *uuid.UUID
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// stateTags is the closed set of lifecycle markers that are never treated as
// pointer tags, even though they carry no ":" separator.
var stateTags = map[string]struct{}{
	"approved":   {},
	"validated":  {},
	"bootstrap":  {},
	"deprecated": {},
	"draft":      {},
	"archived":   {},
	"ephemeral":  {},
	"error":      {},
	"warning":    {},
	"info":       {},
}

// IsStateTag reports whether tag is one of the closed set of state tags.
func IsStateTag(tag string) bool {
	_, ok := stateTags[tag]
	return ok
}

// IsSessionTag reports whether tag carries the "session:" scope prefix.
func IsSessionTag(tag string) bool {
	return strings.HasPrefix(tag, "session:")
}

// IsPointerTag reports whether tag should be treated as a retrieval pointer:
// no ":" separator and not a state tag.
func IsPointerTag(tag string) bool {
	if strings.Contains(tag, ":") {
		return false
	}
	return !IsStateTag(tag)
}

// SessionTag returns the first tag with the "session:" prefix, if any.
func SessionTag(tags []string) (string, bool) {
	for _, t := range tags {
		if IsSessionTag(t) {
			return t, true
		}
	}
	return "", false
}
