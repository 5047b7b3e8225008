package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeras-mobility/aeras-backend/internal/coordinator"
	"github.com/aeras-mobility/aeras-backend/internal/ledger"
	"github.com/aeras-mobility/aeras-backend/internal/models"
	"github.com/aeras-mobility/aeras-backend/internal/store"
)

type stubAccounts struct{}

func (stubAccounts) PassengerByID(ctx context.Context, id uint) (*models.Passenger, error) {
	if id == 1 {
		p := &models.Passenger{Username: "ama"}
		p.ID = 1
		return p, nil
	}
	return nil, store.ErrNotFound
}

func (stubAccounts) PullerByID(ctx context.Context, id uint) (*models.Puller, error) {
	p := &models.Puller{Username: "kofi"}
	p.ID = id
	return p, nil
}

// asUser stands in for the auth middleware.
func asUser(id uint, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userId", id)
		c.Set("role", role)
		c.Next()
	}
}

func newTestRouter(t *testing.T) (*gin.Engine, *coordinator.Coordinator, *store.MemoryRideStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	rides := store.NewMemoryRideStore(store.NewMemoryFeed())
	ml := ledger.NewMemoryLedger()
	co := coordinator.New(rides, stubAccounts{}, ledger.NewEngine(ml, ml, 30, log), coordinator.Options{
		RequestTimeout: time.Minute,
		AcceptTimeout:  time.Minute,
	}, log)
	t.Cleanup(co.Shutdown)

	r := gin.New()
	r.POST("/rides", asUser(1, models.RolePassenger), CreateRide(co))
	r.POST("/rides/:id/cancel", asUser(1, models.RolePassenger), CancelRide(co))
	r.POST("/puller/rides/:id/accept", asUser(10, models.RolePuller), AcceptRide(co))
	r.POST("/puller/rides/:id/start", asUser(10, models.RolePuller), StartRide(co))
	r.POST("/puller/rides/:id/complete", asUser(10, models.RolePuller), CompleteRide(co))
	r.POST("/other/rides/:id/complete", asUser(11, models.RolePuller), CompleteRide(co))
	return r, co, rides
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createRide(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/rides", gin.H{
		"pickupLocationId":      "loc-a",
		"destinationLocationId": "loc-b",
	})
	require.Equal(t, 201, w.Code, w.Body.String())

	var resp struct {
		Ride models.Ride `json:"ride"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Ride.ID)
	return resp.Ride.ID
}

func TestCreateRide_ValidatesInput(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/rides", gin.H{"pickupLocationId": "loc-a"})
	assert.Equal(t, 400, w.Code)
}

func TestRideLifecycle_HappyPath(t *testing.T) {
	r, _, rides := newTestRouter(t)
	id := createRide(t, r)

	w := doJSON(t, r, http.MethodPost, "/puller/rides/"+id+"/accept", nil)
	require.Equal(t, 200, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/puller/rides/"+id+"/start", nil)
	require.Equal(t, 200, w.Code, w.Body.String())

	w = doJSON(t, r, http.MethodPost, "/puller/rides/"+id+"/complete", nil)
	require.Equal(t, 200, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"pointsAmount":30`)

	got, err := rides.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusCompleted, got.Status)
}

func TestAcceptRide_LoserGets409(t *testing.T) {
	r, _, _ := newTestRouter(t)
	id := createRide(t, r)

	w := doJSON(t, r, http.MethodPost, "/puller/rides/"+id+"/accept", nil)
	require.Equal(t, 200, w.Code)

	w = doJSON(t, r, http.MethodPost, "/puller/rides/"+id+"/accept", nil)
	assert.Equal(t, 409, w.Code)
}

func TestAcceptRide_UnknownRideGets404(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/puller/rides/no-such-ride/accept", nil)
	assert.Equal(t, 404, w.Code)
}

func TestCompleteRide_WrongPullerGets403(t *testing.T) {
	r, _, _ := newTestRouter(t)
	id := createRide(t, r)

	w := doJSON(t, r, http.MethodPost, "/puller/rides/"+id+"/accept", nil)
	require.Equal(t, 200, w.Code)

	w = doJSON(t, r, http.MethodPost, "/other/rides/"+id+"/complete", nil)
	assert.Equal(t, 403, w.Code)
}

func TestCompleteRide_BeforeAcceptGets422(t *testing.T) {
	r, _, _ := newTestRouter(t)
	id := createRide(t, r)

	w := doJSON(t, r, http.MethodPost, "/puller/rides/"+id+"/complete", nil)
	assert.Equal(t, 422, w.Code)
}

func TestCancelRide_TerminalGets422(t *testing.T) {
	r, _, _ := newTestRouter(t)
	id := createRide(t, r)

	w := doJSON(t, r, http.MethodPost, "/rides/"+id+"/cancel", nil)
	require.Equal(t, 200, w.Code)

	w = doJSON(t, r, http.MethodPost, "/rides/"+id+"/cancel", nil)
	assert.Equal(t, 422, w.Code)
}
