// Package httpapi exposes the supervisor's query/command API over HTTP,
// using gin the way seakee-dockmon's app/http/router package groups routes
// around a shared dependency container.
package httpapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hwio/circlekeeper/supervisor"
)

// Handler wires a supervisor.Client to gin routes.
type Handler struct {
	client *supervisor.Client
}

// New returns a Handler backed by client.
func New(client *supervisor.Client) *Handler {
	return &Handler{client: client}
}

// Register mounts the query/command surface of spec.md §4.5/§6 under mux:
//
//	GET  /circles
//	GET  /circles/:alias
//	POST /circles/:alias/switch
func (h *Handler) Register(mux *gin.Engine) *gin.Engine {
	circles := mux.Group("circles")
	{
		circles.GET("", h.list())
		circles.GET(":alias", h.get())
		circles.POST(":alias/switch", h.switchCircle())
	}
	return mux
}

func (h *Handler) list() gin.HandlerFunc {
	return func(c *gin.Context) {
		aliases, err := h.client.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"circles": aliases})
	}
}

type validEventEntry struct {
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
}

type getResponse struct {
	Alias       string            `json:"alias"`
	State       string            `json:"state"`
	ValidEvents []validEventEntry `json:"valid_events"`
}

func (h *Handler) get() gin.HandlerFunc {
	return func(c *gin.Context) {
		alias := c.Param("alias")

		snap, ok, err := h.client.Get(c.Request.Context(), alias)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown circle alias"})
			return
		}

		events := make([]validEventEntry, 0, len(snap.ValidEvents))
		for ts, state := range snap.ValidEvents {
			events = append(events, validEventEntry{Timestamp: ts, State: state.String()})
		}
		sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

		c.JSON(http.StatusOK, getResponse{
			Alias:       snap.Alias,
			State:       snap.State.String(),
			ValidEvents: events,
		})
	}
}

type switchRequest struct {
	State string `json:"state" binding:"required,oneof=on off"`
}

func (h *Handler) switchCircle() gin.HandlerFunc {
	return func(c *gin.Context) {
		alias := c.Param("alias")

		var req switchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		state, err := h.client.Switch(c.Request.Context(), alias, req.State == "on")
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"alias": alias, "state": state.String()})
	}
}
