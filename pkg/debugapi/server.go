// Package debugapi provides the small echo-based admin surface SPEC_FULL.md
// adds on top of spec.md: a health check, a stats snapshot, and a manual
// backfill trigger. Grounded on the teacher's pkg/api/server.go (Echo v5
// server shape, Set*-style optional wiring) and handler_health.go (checks
// map + overall-status rollup).
package debugapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/contextengine/pkg/database"
	"github.com/codeready-toolchain/contextengine/pkg/eventloop"
	"github.com/codeready-toolchain/contextengine/pkg/graphbuilder"
	"github.com/codeready-toolchain/contextengine/pkg/pathfinder"
)

const defaultCausalChainDepth = 5

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// blacklistStats is the slice of C1 the stats endpoint reports on.
type blacklistStats interface {
	BlacklistSize() int
}

// loopStats is the slice of C8 the stats endpoint reports on.
type loopStats interface {
	Stats() eventloop.Stats
}

// backfiller is the slice of the resumable entity backfill this server can
// re-trigger on demand (POST /debug/backfill).
type backfiller func(ctx context.Context) error

// subgraphLoader is the slice of C4 the causal-chain diagnostic needs to
// materialize a subgraph around a seed before walking it.
type subgraphLoader interface {
	LoadSubgraph(ctx context.Context, seeds []uuid.UUID, radius int) (*graphbuilder.Graph, error)
}

// DashboardHub is the slice of pkg/dashboardpush.Hub the websocket upgrade
// route needs: accept one connection and block until it closes. Exported so
// callers can declare a nil value of this interface type explicitly, rather
// than pass a typed-nil *dashboardpush.Hub that would make the interface
// value itself non-nil.
type DashboardHub interface {
	HandleConnection(ctx context.Context, conn *websocket.Conn)
}

// Server is the debug/admin HTTP server. Constructed via New and started
// with Start; the database pool, event loop, backfiller, and dashboard hub
// are all optional (nil-safe) so the server can come up before the rest of
// the process has finished wiring.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	pool       *database.Client
	blacklist  blacklistStats
	loop       loopStats
	backfiller backfiller
	hub        DashboardHub
	loader     subgraphLoader
}

// New constructs a Server and registers its routes. Any of dbClient,
// blacklist, loop, backfill, hub, and loader may be nil; GET /debug/stats then
// reports blacklist_size -1 (nil blacklist) or change_stream_connected false
// with no last_event_at (nil loop), POST /debug/backfill returns 503 if backfill is
// nil, GET /dashboard/stream returns 503 if hub is nil, and
// GET /debug/causal-chain returns 503 if loader is nil.
func New(dbClient *database.Client, blacklist blacklistStats, loop loopStats, backfill backfiller, hub DashboardHub, loader subgraphLoader) *Server {
	e := echo.New()
	s := &Server{echo: e, pool: dbClient, blacklist: blacklist, loop: loop, backfiller: backfill, hub: hub, loader: loader}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthzHandler)
	s.echo.GET("/debug/stats", s.statsHandler)
	s.echo.POST("/debug/backfill", s.backfillHandler)
	s.echo.GET("/dashboard/stream", s.dashboardStreamHandler)
	s.echo.GET("/debug/causal-chain", s.causalChainHandler)
}

// Start starts the HTTP server on addr (blocking, like http.Server.Serve).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// HealthResponse is the GET /healthz response body.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Database *database.HealthStatus `json:"database,omitempty"`
}

// healthzHandler handles GET /healthz. The database is this process's only
// hard dependency, so a database failure is unhealthy; a database that's up
// but a change stream (C8) that isn't connected is merely degraded, since
// cached context can still be served while reconnection is in progress.
func (s *Server) healthzHandler(c *echo.Context) error {
	if s.pool == nil {
		return c.JSON(http.StatusOK, &HealthResponse{Status: statusHealthy})
	}

	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.pool.Pool())
	status := statusHealthy
	httpStatus := http.StatusOK
	switch {
	case err != nil:
		status = statusUnhealthy
		httpStatus = http.StatusServiceUnavailable
	case s.loop != nil && !s.loop.Stats().Connected:
		status = statusDegraded
	}

	return c.JSON(httpStatus, &HealthResponse{Status: status, Database: dbHealth})
}

// StatsResponse is the GET /debug/stats response body.
type StatsResponse struct {
	BlacklistSize      int        `json:"blacklist_size"`
	ChangeStreamLinked bool       `json:"change_stream_connected"`
	LastEventAt        *time.Time `json:"last_event_at,omitempty"`
}

// statsHandler handles GET /debug/stats: blacklist size, whether the
// change-stream subscription (C8) is currently connected, and the
// timestamp of the last event it processed.
func (s *Server) statsHandler(c *echo.Context) error {
	resp := StatsResponse{BlacklistSize: -1}
	if s.blacklist != nil {
		resp.BlacklistSize = s.blacklist.BlacklistSize()
	}
	if s.loop != nil {
		st := s.loop.Stats()
		resp.ChangeStreamLinked = st.Connected
		if !st.LastEventAt.IsZero() {
			resp.LastEventAt = &st.LastEventAt
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// backfillHandler handles POST /debug/backfill: manually re-runs the
// startup entity backfill (§4.8), resuming from its persisted cursor
// rather than rescanning from the beginning.
func (s *Server) backfillHandler(c *echo.Context) error {
	if s.backfiller == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "backfill not configured")
	}
	if err := s.backfiller(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

// dashboardStreamHandler handles GET /dashboard/stream: upgrades the HTTP
// connection to a websocket and hands it to the dashboard-push hub, which
// blocks on it until the client disconnects.
func (s *Server) dashboardStreamHandler(c *echo.Context) error {
	if s.hub == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "dashboard push not configured")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	s.hub.HandleConnection(c.Request().Context(), conn)
	return nil
}

// CausalChainResponse is the GET /debug/causal-chain response body.
type CausalChainResponse struct {
	Seed  uuid.UUID   `json:"seed"`
	Chain []uuid.UUID `json:"chain"`
}

// causalChainHandler handles GET /debug/causal-chain?seed=<id>&depth=<n>:
// loads a subgraph around the given seed and walks only its Causal edges, in
// both directions (pathfinder.CausalChain), surfacing the seed's causes and
// effects for operators without running the full budgeted §4.5 walk.
func (s *Server) causalChainHandler(c *echo.Context) error {
	if s.loader == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "causal chain diagnostics not configured")
	}

	seed, err := uuid.Parse(c.QueryParam("seed"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "seed must be a valid UUID")
	}

	depth := defaultCausalChainDepth
	if raw := c.QueryParam("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "depth must be a positive integer")
		}
		depth = parsed
	}

	graph, err := s.loader.LoadSubgraph(c.Request().Context(), []uuid.UUID{seed}, depth)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	chain := pathfinder.CausalChain(graph, seed, depth)
	return c.JSON(http.StatusOK, &CausalChainResponse{Seed: seed, Chain: chain})
}
