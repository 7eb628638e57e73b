package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/yoyowasa/BOT-WEBULL/internal/model"
	"github.com/yoyowasa/BOT-WEBULL/internal/store"
	"github.com/yoyowasa/BOT-WEBULL/internal/timeutil"
)

var nyc = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}()

type stubSnapshots struct {
	snaps []model.Snapshot
}

func (s stubSnapshots) Latest() []model.Snapshot { return s.snaps }

func newTestRouter(t *testing.T, snaps SnapshotSource) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.New(t.TempDir(), nyc, decimal.NewFromFloat(0.001), zap.NewNop())
	h := NewHandler(st, snaps, nyc, zap.NewNop())

	r := gin.New()
	r.GET("/api/v1/signals", h.GetSignals)
	r.GET("/api/v1/snapshot", h.GetSnapshot)
	return r, st
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGetSignals_DefaultsToCurrentSessionDate(t *testing.T) {
	r, st := newTestRouter(t, stubSnapshots{})

	now := time.Now()
	today := timeutil.SessionDate(now, nyc)
	sig := model.Signal{
		Date:      today,
		Symbol:    "AAPL",
		Setup:     "A",
		EntryType: "stop_limit",
		Qty:       100,
		Entry:     model.Entry{Price: decimal.NewFromFloat(10.05)},
	}
	written, err := st.WriteSignal(sig, now)
	assert.NoError(t, err)
	assert.True(t, written)

	w := get(r, "/api/v1/signals")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Date    string         `json:"date"`
		Count   int            `json:"count"`
		Signals []model.Signal `json:"signals"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, today, resp.Date)
	assert.Equal(t, 1, resp.Count)
	assert.Len(t, resp.Signals, 1)
	assert.Equal(t, "AAPL", resp.Signals[0].Symbol)
}

func TestGetSignals_ExplicitDate(t *testing.T) {
	r, st := newTestRouter(t, stubSnapshots{})

	sig := model.Signal{
		Date:      "20250314",
		Symbol:    "TSLA",
		Setup:     "B",
		EntryType: "limit",
		Qty:       50,
		Entry:     model.Entry{Price: decimal.NewFromFloat(10.00)},
	}
	written, err := st.WriteSignal(sig, time.Date(2025, 3, 14, 9, 45, 0, 0, nyc))
	assert.NoError(t, err)
	assert.True(t, written)

	w := get(r, "/api/v1/signals?date=20250314")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"TSLA"`)

	// A quiet date returns an empty list, not null.
	w = get(r, "/api/v1/signals?date=20250317")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"signals":[]`)
}

func TestGetSignals_BadDate(t *testing.T) {
	r, _ := newTestRouter(t, stubSnapshots{})
	w := get(r, "/api/v1/signals?date=2025-03-14")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSnapshot(t *testing.T) {
	snaps := stubSnapshots{snaps: []model.Snapshot{
		{
			Symbol: "AAPL",
			VWAP:   decimal.NullDecimal{Decimal: decimal.NewFromFloat(10.5), Valid: true},
		},
	}}
	r, _ := newTestRouter(t, snaps)

	w := get(r, "/api/v1/snapshot")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count     int              `json:"count"`
		Snapshots []model.Snapshot `json:"snapshots"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "AAPL", resp.Snapshots[0].Symbol)
}

func TestGetSnapshot_Empty(t *testing.T) {
	r, _ := newTestRouter(t, stubSnapshots{})
	w := get(r, "/api/v1/snapshot")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"snapshots":[]`)
}
