package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"signal_bot/internal/intake"
	"signal_bot/internal/models"
	"signal_bot/internal/runner"
	"signal_bot/pkg/logger"
)

type submitRequest struct {
	Destination int64  `json:"destination" binding:"required"`
	Text        string `json:"text" binding:"required"`
}

type destinationQuery struct {
	Destination int64 `form:"destination" binding:"required"`
}

type recapQuery struct {
	Destination int64 `form:"destination" binding:"required"`
	// часы назад от текущего момента; 0 = 24
	Hours int `form:"hours" binding:"gte=0,lte=720"`
}

type Handler struct {
	svc *runner.Service
}

func NewHandler(svc *runner.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the routes under /api.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/api")
	g.GET("/signals", h.listSignals)
	g.POST("/signals", h.submitSignal)
	g.GET("/signals/:id", h.getSignal)
	g.GET("/recap", h.recap)
}

func (h *Handler) listSignals(c *gin.Context) {
	var q destinationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": h.svc.ListActive(q.Destination)})
}

func (h *Handler) submitSignal(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig, id, err := h.svc.SubmitText(req.Text, req.Destination)
	switch {
	case errors.Is(err, intake.ErrNoBlock), errors.Is(err, models.ErrInvalidSignal):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.Error("[api] submit: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	logger.Info("[api] signal %s registered: %s %s chat=%d", id, sig.Pair, sig.Side, req.Destination)
	c.JSON(http.StatusCreated, gin.H{"id": id, "signal": sig})
}

func (h *Handler) getSignal(c *gin.Context) {
	s, ok := h.svc.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}
	c.JSON(http.StatusOK, s.Summary())
}

func (h *Handler) recap(c *gin.Context) {
	var q recapQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Hours == 0 {
		q.Hours = 24
	}

	since := h.svc.Now().Add(-time.Duration(q.Hours) * time.Hour)
	sum, err := h.svc.Recap(c.Request.Context(), q.Destination, since)
	if err != nil {
		logger.Error("[api] recap: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, sum)
}
