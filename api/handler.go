package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/internal/model"
	"github.com/yoyowasa/BOT-WEBULL/internal/store"
	"github.com/yoyowasa/BOT-WEBULL/internal/timeutil"
)

// SnapshotSource yields the latest per-symbol indicator readings. The
// pipeline runner implements it.
type SnapshotSource interface {
	Latest() []model.Snapshot
}

type Handler struct {
	logger    *zap.Logger
	store     *store.Store
	snapshots SnapshotSource
	loc       *time.Location
}

func NewHandler(st *store.Store, snapshots SnapshotSource, loc *time.Location, logger *zap.Logger) *Handler {
	return &Handler{
		logger:    logger,
		store:     st,
		snapshots: snapshots,
		loc:       loc,
	}
}

// GetSignals returns the signals emitted for a session date. The optional
// "date" query is YYYYMMDD; it defaults to the current session date.
func (h *Handler) GetSignals(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = timeutil.SessionDate(time.Now(), h.loc)
	}
	if len(date) != 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYYMMDD"})
		return
	}

	signals, err := h.store.ListSignals(date)
	if err != nil {
		h.logger.Error("failed to list signals", zap.String("date", date), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list signals"})
		return
	}
	if signals == nil {
		signals = []model.Signal{}
	}

	c.JSON(http.StatusOK, gin.H{
		"date":    date,
		"count":   len(signals),
		"signals": signals,
	})
}

// GetSnapshot returns the latest indicator snapshot for every tracked symbol.
func (h *Handler) GetSnapshot(c *gin.Context) {
	snaps := h.snapshots.Latest()
	if snaps == nil {
		snaps = []model.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     len(snaps),
		"snapshots": snaps,
	})
}
