package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"animatron/internal/choreo"
	"animatron/internal/config"
	"animatron/internal/engine"
	"animatron/internal/light"
	"animatron/internal/task/scheduler"
)

const source = "api"

// Router holds the handler dependencies.
type Router struct {
	eng      Engine
	events   Events
	triggers Triggers
}

func NewRouter(eng Engine, events Events, triggers Triggers) *Router {
	return &Router{eng: eng, events: events, triggers: triggers}
}

// SetupRoutes registers every endpoint on r.
func (h *Router) SetupRoutes(r gin.IRouter) {
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api")
	{
		api.GET("/status", h.handleStatus)
		api.GET("/events", h.handleRecentEvents)
		api.POST("/events/:code", h.handleDispatch)
		api.GET("/triggers", h.handleTriggers)

		api.GET("/clips", h.handleClips)
		api.POST("/clips/:name/play", h.handlePlayClip)
		api.POST("/stop", h.handleStop)

		api.GET("/jobs", h.handleJobs)
		api.POST("/jobs/:name/start", h.handleStartJob)
		api.POST("/jobs/:name/cancel", h.handleCancelJob)
		api.POST("/jobs/cancel", h.handleCancelJob)

		// GET kept for the plain browser slider page.
		api.GET("/servo", h.handleServo)
		api.POST("/servo", h.handleServo)

		api.POST("/lights", h.handleLight)
		api.POST("/scenes/:name", h.handleScene)
		api.POST("/pulse", h.handlePulse)
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Status: "success", Data: data})
}

func fail(c *gin.Context, code int, err error) {
	c.JSON(code, Response{Status: "error", Error: err.Error()})
}

// statusFor maps engine and domain errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownClip),
		errors.Is(err, engine.ErrUnknownJob),
		errors.Is(err, engine.ErrUnknownCue),
		errors.Is(err, engine.ErrUnknownAxis),
		errors.Is(err, engine.ErrNoScene),
		errors.Is(err, light.ErrUnknownPartition):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrRejected), errors.Is(err, light.ErrDisabled):
		return http.StatusConflict
	case errors.Is(err, engine.ErrBusy), errors.Is(err, scheduler.ErrNoFreeSlot):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, light.ErrUnknownMode),
		errors.Is(err, scheduler.ErrInvalidFrequency),
		errors.Is(err, scheduler.ErrNoToggles):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Router) handleStatus(c *gin.Context) {
	snap, err := h.eng.Snapshot(c.Request.Context())
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, snap)
}

func (h *Router) handleRecentEvents(c *gin.Context) {
	if h.events == nil {
		ok(c, []any{})
		return
	}
	n, err := strconv.Atoi(c.DefaultQuery("n", "50"))
	if err != nil || n <= 0 {
		fail(c, http.StatusBadRequest, errors.New("n must be a positive integer"))
		return
	}
	ok(c, h.events.Recent(n))
}

func (h *Router) handleTriggers(c *gin.Context) {
	if h.triggers == nil {
		ok(c, nil)
		return
	}
	ok(c, h.triggers.Snapshot())
}

// parseCode accepts decimal or 0x-prefixed 16-bit codes.
func parseCode(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, errors.New("invalid event code " + strconv.Quote(s))
	}
	return uint16(v), nil
}

func (h *Router) handleDispatch(c *gin.Context) {
	code, err := parseCode(c.Param("code"))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := h.eng.Dispatch(c.Request.Context(), code, source); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, Response{Status: "success", Message: "cue dispatched", Data: gin.H{"code": code}})
}

func (h *Router) handleClips(c *gin.Context) {
	snap, err := h.eng.Snapshot(c.Request.Context())
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, gin.H{"clips": snap.Library.Clips, "motion": snap.Motion})
}

func (h *Router) handlePlayClip(c *gin.Context) {
	name := c.Param("name")
	if err := h.eng.PlayClip(c.Request.Context(), name, source); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, Response{Status: "success", Message: "clip started", Data: gin.H{"clip": name}})
}

func (h *Router) handleStop(c *gin.Context) {
	if err := h.eng.StopMotion(c.Request.Context(), source); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, Response{Status: "success", Message: "motion stopped"})
}

func (h *Router) handleJobs(c *gin.Context) {
	snap, err := h.eng.Snapshot(c.Request.Context())
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, gin.H{"jobs": snap.Library.Jobs, "scheduler": snap.Scheduler})
}

func (h *Router) handleStartJob(c *gin.Context) {
	id, err := h.eng.StartJob(c.Request.Context(), c.Param("name"), source)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, gin.H{"id": id})
}

func (h *Router) handleCancelJob(c *gin.Context) {
	n, err := h.eng.CancelJob(c.Request.Context(), c.Param("name"), source)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, gin.H{"cancelled": n})
}

func (h *Router) handleServo(c *gin.Context) {
	name := c.Query("name")
	raw := c.Query("value")
	if name == "" || raw == "" {
		fail(c, http.StatusBadRequest, errors.New("name and value are required"))
		return
	}
	deg, err := strconv.Atoi(raw)
	if err != nil {
		fail(c, http.StatusBadRequest, errors.New("value must be an integer angle"))
		return
	}
	angle, err := h.eng.SetAngle(c.Request.Context(), name, deg)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, ServoResult{Axis: name, Angle: angle})
}

func (h *Router) handleLight(c *gin.Context) {
	var req LightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := h.eng.SetLight(c.Request.Context(), req.Partition, req.Mode); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, req)
}

func (h *Router) handleScene(c *gin.Context) {
	if err := h.eng.ApplyScene(c.Request.Context(), c.Param("name")); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, Response{Status: "success", Message: "scene applied"})
}

func (h *Router) handlePulse(c *gin.Context) {
	var req PulseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	delay, err := config.ParseDurationField("delay", req.Delay)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	p := choreo.Pulse{Pin: req.Pin, Hz: req.Hz, Toggles: req.Toggles, Delay: delay}
	if err := h.eng.Pulse(c.Request.Context(), p); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, Response{Status: "success", Message: "pulse registered"})
}
