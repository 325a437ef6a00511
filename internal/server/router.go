package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/learning152/ui-tars-launcher/internal/bridge"
	"github.com/learning152/ui-tars-launcher/internal/envcheck"
	"github.com/learning152/ui-tars-launcher/internal/history"
	"github.com/learning152/ui-tars-launcher/internal/process"
	"github.com/learning152/ui-tars-launcher/internal/profile"
)

// Environment checks and installs the agent toolchain.
type Environment interface {
	Check(ctx context.Context) envcheck.Status
	Install(ctx context.Context, emit func(line string)) error
}

// Deps are the components the HTTP surface exposes. Commands and Events are
// required; the rest switch their endpoints off when nil.
type Deps struct {
	Commands bridge.Commands
	Events   *bridge.Events
	Profiles *profile.Store
	Env      Environment
	History  history.Querier
	Metrics  http.Handler
	Logger   *slog.Logger
}

// Router provides embeddable HTTP handlers for the launcher.
// Endpoints (relative to basePath):
//
//	POST /launch                  body: profile JSON, or ?profile=<id|name>
//	GET  /processes
//	POST /processes/:id/kill
//	GET  /events                  server-sent events
//	GET  /profiles                ?q=term&provider=p
//	POST /profiles                create or replace
//	GET  /profiles/:id, DELETE /profiles/:id
//	POST /profiles/:id/default, POST /profiles/:id/duplicate
//	GET  /profiles/export, POST /profiles/import, GET /profiles/stats
//	GET  /providers
//	GET  /env, POST /env/install
//	GET  /history                 ?limit=n
//	GET  /metrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	deps     Deps
	basePath string
	log      *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(deps Deps, basePath string) *Router {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Router{deps: deps, basePath: normalizeBasePath(basePath), log: log.With("component", "http")}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/launch", r.handleLaunch)
	group.GET("/processes", r.handleProcesses)
	group.POST("/processes/:id/kill", r.handleKill)
	group.GET("/events", r.handleEvents)
	group.GET("/providers", r.handleProviders)
	if r.deps.Profiles != nil {
		group.GET("/profiles", r.handleProfileList)
		group.POST("/profiles", r.handleProfileSave)
		group.GET("/profiles/export", r.handleProfileExport)
		group.POST("/profiles/import", r.handleProfileImport)
		group.GET("/profiles/stats", r.handleProfileStats)
		group.GET("/profiles/:id", r.handleProfileGet)
		group.DELETE("/profiles/:id", r.handleProfileDelete)
		group.POST("/profiles/:id/default", r.handleProfileDefault)
		group.POST("/profiles/:id/duplicate", r.handleProfileDuplicate)
	}
	if r.deps.Env != nil {
		group.GET("/env", r.handleEnvCheck)
		group.POST("/env/install", r.handleEnvInstall)
	}
	if r.deps.History != nil {
		group.GET("/history", r.handleHistory)
	}
	if r.deps.Metrics != nil {
		group.GET("/metrics", gin.WrapH(r.deps.Metrics))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Only header reads are bounded so event streams are not cut off.
func NewServer(addr, basePath string, deps Deps) (*http.Server, error) {
	r := NewRouter(deps, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("http server stopped", "addr", addr, "error", err)
		}
	}()
	return server, nil
}

// --- Handlers ---

type result struct {
	Success    bool   `json:"success"`
	TrackingID string `json:"trackingId,omitempty"`
	Error      string `json:"error,omitempty"`
}

func fail(c *gin.Context, code int, err error) {
	writeJSON(c, code, result{Success: false, Error: err.Error()})
}

func (r *Router) handleLaunch(c *gin.Context) {
	var p profile.Profile
	if ref, stored := c.GetQuery("profile"); stored {
		// ?profile= with no value selects the default profile
		if r.deps.Profiles == nil {
			writeJSON(c, http.StatusBadRequest, result{Error: "profile store not configured"})
			return
		}
		found, err := r.storedProfile(ref)
		if err != nil {
			fail(c, statusOf(err), err)
			return
		}
		p = found
	} else if err := c.ShouldBindJSON(&p); err != nil {
		writeJSON(c, http.StatusBadRequest, result{Error: "invalid JSON: " + err.Error()})
		return
	}
	if p.Provider == "" || p.Model == "" {
		writeJSON(c, http.StatusBadRequest, result{Error: "provider and model are required"})
		return
	}
	if !validWorkDir(p.WorkingDir) {
		writeJSON(c, http.StatusBadRequest, result{Error: "invalid workingDir: must be absolute path without traversal"})
		return
	}
	id, err := r.deps.Commands.Launch(c.Request.Context(), p)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	writeJSON(c, http.StatusOK, result{Success: true, TrackingID: id})
}

func (r *Router) storedProfile(ref string) (profile.Profile, error) {
	if ref != "" {
		return r.deps.Profiles.Find(ref)
	}
	p, ok, err := r.deps.Profiles.Default()
	if err != nil {
		return profile.Profile{}, err
	}
	if !ok {
		return profile.Profile{}, fmt.Errorf("%w: no default profile", profile.ErrNotFound)
	}
	return p, nil
}

func (r *Router) handleProcesses(c *gin.Context) {
	list, err := r.deps.Commands.ListProcesses(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	writeJSON(c, http.StatusOK, list)
}

func (r *Router) handleKill(c *gin.Context) {
	id := c.Param("id")
	if !validTrackingID(id) {
		writeJSON(c, http.StatusBadRequest, result{Error: "invalid tracking id"})
		return
	}
	if err := r.deps.Commands.KillProcess(c.Request.Context(), id); err != nil {
		fail(c, statusOf(err), err)
		return
	}
	writeJSON(c, http.StatusOK, result{Success: true})
}

func (r *Router) handleProviders(c *gin.Context) {
	writeJSON(c, http.StatusOK, profile.Providers())
}

func (r *Router) handleEnvCheck(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.deps.Env.Check(c.Request.Context()))
}

// handleEnvInstall runs the installer synchronously; its output is published
// on the log topic as it arrives.
func (r *Router) handleEnvInstall(c *gin.Context) {
	emit := func(line string) { r.deps.Events.Log(bridge.KindInfo, "", line) }
	if err := r.deps.Env.Install(c.Request.Context(), emit); err != nil {
		r.deps.Events.Log(bridge.KindError, "", err.Error())
		fail(c, http.StatusInternalServerError, err)
		return
	}
	writeJSON(c, http.StatusOK, result{Success: true})
}

func (r *Router) handleHistory(c *gin.Context) {
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, result{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	events, err := r.deps.History.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	writeJSON(c, http.StatusOK, events)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, process.ErrNotFound), errors.Is(err, profile.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, process.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
