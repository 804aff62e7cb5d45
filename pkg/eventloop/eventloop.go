// Package eventloop implements C8: subscribing to the store's change
// stream and dispatching each breadcrumb-creation event to C3 (edge
// building, fire-and-forget) and to C6→C7 (trigger matching then context
// assembly, per-consumer isolated). Grounded on the teacher's
// pkg/events/listener.go for the single-owning-goroutine-plus-reconnect
// shape, adapted from Postgres LISTEN/NOTIFY to the store's SSE change
// stream (§6) since this system has no direct database NOTIFY channel of
// its own to listen on.
package eventloop

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/contextengine/pkg/models"
	"github.com/codeready-toolchain/contextengine/pkg/triggers"
)

// recordStore is the slice of C1 the event loop needs directly (entity
// extraction write-back and agent-definition lookup). Declared locally so
// tests can substitute a fake, matching pkg/assembler's accept-interfaces
// convention.
type recordStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.Breadcrumb, error)
	UpdateEntities(ctx context.Context, id uuid.UUID, keywords []string) error
	ListAgentDefinitions(ctx context.Context) ([]models.AgentDefinition, error)
}

// edgeBuilder is the slice of C3 the event loop dispatches to.
type edgeBuilder interface {
	BuildEdgesForBreadcrumb(ctx context.Context, bc models.Breadcrumb) error
}

// assembler is the slice of C7 the event loop dispatches to, once per
// matching consumer.
type assembler interface {
	Assemble(ctx context.Context, def models.AgentDefinition, event models.ChangeEvent) error
}

// extractKeywords is the pkg/entities.Keywords shape, injected so this
// package doesn't need to import pkg/entities just for one function call.
type extractKeywords func(text string) []string

// Loop owns the SSE subscription to the store's change stream and the
// per-event dispatch fan-out. One Loop per process (§5 "a single
// event-stream subscription per subsystem").
type Loop struct {
	streamURL   string
	bearerToken string
	httpClient  *http.Client

	store    recordStore
	edges    edgeBuilder
	assemble assembler
	extract  extractKeywords

	logger *slog.Logger

	connected   atomic.Bool
	lastEventAt atomic.Int64 // unix nanos, 0 if no event has ever been seen
}

// Stats is a point-in-time snapshot of the loop's state, exposed for the
// debug/admin stats endpoint.
type Stats struct {
	Connected   bool
	LastEventAt time.Time // zero value if no event has been seen yet
}

// Stats returns the loop's current connection state and the timestamp of
// the last change-stream event it processed.
func (l *Loop) Stats() Stats {
	stats := Stats{Connected: l.connected.Load()}
	if nanos := l.lastEventAt.Load(); nanos != 0 {
		stats.LastEventAt = time.Unix(0, nanos)
	}
	return stats
}

// New constructs a Loop. logger defaults to slog.Default() when nil.
func New(streamURL, bearerToken string, httpClient *http.Client, store recordStore, edges edgeBuilder, asm assembler, extract extractKeywords, logger *slog.Logger) *Loop {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		streamURL:   streamURL,
		bearerToken: bearerToken,
		httpClient:  httpClient,
		store:       store,
		edges:       edges,
		assemble:    asm,
		extract:     extract,
		logger:      logger,
	}
}

// Run subscribes to the change stream and dispatches events until ctx is
// canceled. A dropped connection reconnects with exponential backoff
// (§6 "Reconnect with backoff on drop"); Run only returns once ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry forever; only ctx cancellation stops us

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := l.consumeOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			l.logger.Error("change stream disconnected", "error", err)
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			bo.Reset()
			wait = bo.NextBackOff()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		bo.Reset()
	}
}

// consumeOnce opens one SSE connection and reads frames until the
// connection drops or ctx is canceled.
func (l *Loop) consumeOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.streamURL, nil)
	if err != nil {
		return fmt.Errorf("build change-stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if l.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+l.bearerToken)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect to change stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("change stream returned status %d", resp.StatusCode)
	}

	l.logger.Info("change stream connected")
	l.connected.Store(true)
	defer l.connected.Store(false)

	var wg sync.WaitGroup
	defer wg.Wait()

	for data := range scanSSEFrames(resp.Body) {
		var event models.ChangeEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			l.logger.Warn("malformed change-stream frame", "error", err)
			continue
		}
		l.lastEventAt.Store(time.Now().UnixNano())
		wg.Add(1)
		go func(event models.ChangeEvent) {
			defer wg.Done()
			l.dispatch(ctx, event)
		}(event)
	}
	return nil
}

// dispatch fans a single breadcrumb-creation event out to C3 and to every
// matching consumer's C6→C7 pipeline (§4.8). Ping frames and any event
// without a breadcrumb_id are silently ignored.
func (l *Loop) dispatch(ctx context.Context, event models.ChangeEvent) {
	if event.IsPing() {
		return
	}
	if !event.IsBreadcrumbCreated() {
		return
	}

	l.extractAndBuildEdges(ctx, *event.BreadcrumbID)

	defs, err := l.store.ListAgentDefinitions(ctx)
	if err != nil {
		l.logger.Error("list agent definitions", "error", err)
		return
	}

	matched := triggers.MatchingDefinitions(event, defs)
	var wg sync.WaitGroup
	for _, def := range matched {
		wg.Add(1)
		go func(def models.AgentDefinition) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error("assembly panicked", "consumer", def.AgentID, "panic", r)
				}
			}()
			if err := l.assemble.Assemble(ctx, def, event); err != nil {
				// §8 S5: one consumer's failure must never block another's.
				l.logger.Error("assembly failed", "consumer", def.AgentID, "error", err)
			}
		}(def)
	}
	wg.Wait()
}

// extractAndBuildEdges runs C2 (entity extraction, write-back) and C3 (edge
// building) for a freshly created record, fire-and-forget: failures here
// are logged and never propagate to the C6→C7 dispatch below (§4.8).
func (l *Loop) extractAndBuildEdges(ctx context.Context, id uuid.UUID) {
	bc, err := l.store.GetByID(ctx, id)
	if err != nil {
		l.logger.Error("fetch breadcrumb for edge build", "id", id, "error", err)
		return
	}

	// Idempotency guard (§4.8): skip keyword extraction for records that
	// already carry entity_keywords.
	if len(bc.EntityKeywords) == 0 {
		keywords := l.extract(bc.Title + "\n" + string(bc.Context))
		if len(keywords) > 0 {
			if err := l.store.UpdateEntities(ctx, bc.ID, keywords); err != nil {
				l.logger.Error("update entities", "id", id, "error", err)
			} else {
				bc.EntityKeywords = keywords
			}
		}
	}

	if err := l.edges.BuildEdgesForBreadcrumb(ctx, bc); err != nil {
		l.logger.Error("build edges", "id", id, "error", err)
	}
}

// scanSSEFrames reads "data: ..." lines off r, joining continuation lines
// within one frame and yielding the frame's payload (trimmed) on each
// blank-line frame terminator, the minimal subset of the SSE wire format
// (§6) this system's frames ever use — one "data:" line per event, no
// "event:"/"id:"/multi-line payloads.
func scanSSEFrames(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		var buf strings.Builder
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "data:"):
				if buf.Len() > 0 {
					buf.WriteByte('\n')
				}
				buf.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			case line == "":
				if buf.Len() > 0 {
					out <- buf.String()
					buf.Reset()
				}
			}
		}
	}()
	return out
}
