// Package api exposes the data tree over HTTP as (path, value) pairs:
// the wire contract clients speak. Every request runs as the verified
// caller, so the access control evaluator decides each read and write;
// denials surface as a generic permission error with no reason codes.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AlanDaniels101/chill/pkg/chill/auth"
	"github.com/AlanDaniels101/chill/pkg/chill/metrics"
	"github.com/AlanDaniels101/chill/pkg/chill/models"
	"github.com/AlanDaniels101/chill/pkg/chill/store"
)

// Handler serves the data API.
type Handler struct {
	store *store.Store
}

// NewHandler creates a data API handler over the given store.
func NewHandler(st *store.Store) *Handler {
	return &Handler{store: st}
}

// RegisterRoutes registers the data API routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/data/*path", h.Get)
	rg.PUT("/data/*path", h.Set)
	rg.PATCH("/data/*path", h.Update)
	rg.POST("/data/*path", h.Push)
	rg.DELETE("/data/*path", h.Delete)
	rg.POST("/hangouts/:id/close-poll", h.ClosePoll)
}

// session resolves the caller's store handle: a gated session for user
// tokens, the privileged one for the service key.
func (h *Handler) session(c *gin.Context) *store.Session {
	if auth.IsService(c) {
		return h.store.SystemSession()
	}
	uid, _ := auth.GetUID(c)
	return h.store.Session(uid)
}

// Get reads the value at a path; absent paths read as null.
func (h *Handler) Get(c *gin.Context) {
	p := store.ParsePath(c.Param("path"))
	v, err := h.session(c).Get(p)
	if err != nil {
		writeError(c, p, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Set replaces the value at a path with the request body.
func (h *Handler) Set(c *gin.Context) {
	var v any
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	p := store.ParsePath(c.Param("path"))
	if err := h.session(c).Set(p, v); err != nil {
		writeError(c, p, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Update applies a multi-location merge anchored at a path. All
// locations commit or none do.
func (h *Handler) Update(c *gin.Context) {
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	p := store.ParsePath(c.Param("path"))
	if err := h.session(c).Update(p, values); err != nil {
		writeError(c, p, err)
		return
	}
	c.JSON(http.StatusOK, values)
}

// Push writes the body under a new server-generated child key.
func (h *Handler) Push(c *gin.Context) {
	var v any
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	p := store.ParsePath(c.Param("path"))
	key, err := h.session(c).Push(p, v)
	if err != nil {
		writeError(c, p, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": key})
}

// Delete removes the subtree at a path.
func (h *Handler) Delete(c *gin.Context) {
	p := store.ParsePath(c.Param("path"))
	if err := h.session(c).Delete(p); err != nil {
		writeError(c, p, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
}

// ClosePoll resolves a hangout's date poll: the most-voted candidate
// wins, earliest timestamp on a tie. The winning time is written and
// the poll flag removed in one update, which is what fires the
// poll-closed notification.
func (h *Handler) ClosePoll(c *gin.Context) {
	hangoutID := c.Param("id")
	sess := h.session(c)
	p := store.Path{"hangouts", hangoutID}

	v, err := sess.Get(p)
	if err != nil {
		writeError(c, p, err)
		return
	}
	hangout := models.HangoutFromValue(hangoutID, v)
	if hangout == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Hangout not found"})
		return
	}
	if !hangout.DatetimePollInProgress {
		c.JSON(http.StatusConflict, gin.H{"error": "No date poll in progress"})
		return
	}
	winner, voted := hangout.WinningDate()
	if !voted {
		c.JSON(http.StatusConflict, gin.H{"error": "Nobody has voted yet"})
		return
	}

	err = sess.Update(p, map[string]any{
		"time":                   winner,
		"datetimePollInProgress": nil,
	})
	if err != nil {
		writeError(c, p, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"time": winner})
}

func writeError(c *gin.Context, p store.Path, err error) {
	if errors.Is(err, store.ErrPermissionDenied) {
		collection := "root"
		if len(p) > 0 {
			collection = p[0]
		}
		metrics.RuleDenials.WithLabelValues(collection).Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}
