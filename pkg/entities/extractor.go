// Package entities implements C2: deterministic keyword/entity extraction
// from breadcrumb text via regex and a closed domain vocabulary. Grounded on
// original_source/.../entity_extractor.rs — same regex+wordlist shape,
// generalized from RCRT-specific terms to the retrieval-engine domain.
package entities

import (
	"regexp"
	"sort"
	"strings"
)

// schemaPattern matches dotted, versioned schema names such as
// "tool.catalog.v1" or "user.message.v1".
var schemaPattern = regexp.MustCompile(`\b[a-z_]+(?:\.[a-z_]+)+\.v\d+\b`)

// domainTerms is the closed vocabulary of retrieval-engine concepts. Matching
// is substring-based against the lowercased text, same as the original.
var domainTerms = buildTermSet([]string{
	// Core concepts
	"breadcrumb", "breadcrumbs", "agent", "agents", "tool", "tools",
	"context", "embedding", "embeddings", "semantic", "vector",
	"schema", "schemas", "tag", "tags", "edge", "edges", "graph",

	// Actions
	"create", "search", "execute", "configure", "update", "delete",
	"publish", "subscribe", "trigger", "respond", "assemble",

	// Technologies
	"postgresql", "pgvector", "jwt", "api", "sse", "websocket", "docker",

	// Features
	"permission", "permissions", "bootstrap", "schedule", "workflow",
	"catalog", "config", "definition", "blacklist", "budget",

	// Components
	"database", "frontend", "backend", "dashboard", "runner", "consumer",
})

func buildTermSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

// Extracted is the result of Extract: a lowercased, deduplicated, sorted
// keyword vector plus the raw entities grouped by kind, for diagnostics.
type Extracted struct {
	Entities map[string][]string
	Keywords []string
}

// Extract derives keywords and grouped entities from text. Empty text yields
// an empty, non-nil result. Schema names are extracted with higher priority
// (checked first) than the generic domain-term scan, mirroring the original.
func Extract(text string) Extracted {
	result := Extracted{Entities: map[string][]string{}}
	if text == "" {
		return result
	}

	lower := strings.ToLower(text)
	seen := map[string]struct{}{}

	for _, schema := range schemaPattern.FindAllString(lower, -1) {
		if _, dup := seen[schema]; !dup {
			result.Entities["schema"] = append(result.Entities["schema"], schema)
			result.Keywords = append(result.Keywords, schema)
			seen[schema] = struct{}{}
		}
	}

	for term := range domainTerms {
		if strings.Contains(lower, term) {
			if _, dup := seen[term]; !dup {
				result.Entities["concept"] = append(result.Entities["concept"], term)
				result.Keywords = append(result.Keywords, term)
				seen[term] = struct{}{}
			}
		}
	}

	sort.Strings(result.Keywords)
	for k := range result.Entities {
		sort.Strings(result.Entities[k])
	}

	return result
}

// Keywords is a convenience wrapper returning just Extract(text).Keywords,
// matching the func(string) []string shape pkg/eventloop's dispatch and
// backfill paths expect.
func Keywords(text string) []string {
	return Extract(text).Keywords
}
