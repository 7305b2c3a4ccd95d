package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/itbasis/go-clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contest-scoring-engine/middleware"
	"contest-scoring-engine/models"
	"contest-scoring-engine/repository"
	"contest-scoring-engine/services"
	"contest-scoring-engine/testutils"
)

const testToken = "gateway-secret"

type testAPI struct {
	app      *fiber.App
	clock    *clock.Mock
	contests *services.ContestService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := repository.New(testutils.NewDB(t))
	clk := clock.NewMock()
	clk.Set(testutils.Epoch)

	contests := services.NewContestService(store, clk)
	predictions := services.NewPredictionService(store, clk)
	leaderboard := services.NewLeaderboardService(store, clk)
	evaluation := services.NewEvaluationService(store, clk, nil, leaderboard)
	payouts := services.NewPayoutService(store, clk, nil, leaderboard, nil, 3)
	reviews := services.NewReviewService(store, clk, payouts)

	app := fiber.New()
	SetupOpsRoutes(app)
	app.Use(middleware.GatewayAuthMiddleware(testToken))
	SetupContestRoutes(app, &ContestHandler{Contests: contests, Predictions: predictions, Leaderboard: leaderboard})
	SetupAdminRoutes(app, &AdminHandler{Contests: contests, Evaluation: evaluation, Payouts: payouts, Reviews: reviews}, "admin")

	return &testAPI{app: app, clock: clk, contests: contests}
}

type caller struct {
	user  string
	roles string
}

var (
	anonymous = caller{}
	player    = caller{user: "u1"}
	operator  = caller{user: "ops", roles: "staff, admin"}
)

func (a *testAPI) do(t *testing.T, method, path string, who caller, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	if who.user != "" {
		req.Header.Set("X-User-ID", who.user)
	}
	if who.roles != "" {
		req.Header.Set("X-User-Roles", who.roles)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func (a *testAPI) contestBody() map[string]any {
	now := a.clock.Now()
	return map[string]any{
		"name":             "Sunday Slate",
		"type":             "weekly",
		"season":           2026,
		"week":             2,
		"start_time":       now.Add(-time.Hour),
		"end_time":         now.Add(72 * time.Hour),
		"entry_fee":        "20.00",
		"max_participants": 10,
	}
}

func TestGatewayAndRoles(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/contests/nope", nil)
	resp, err := api.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "no gateway token")

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err = api.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "health is open")

	tests := map[string]struct {
		method string
		path   string
		who    caller
		want   int
	}{
		"secured route without user":   {http.MethodPost, "/contests/c1/participants", anonymous, fiber.StatusUnauthorized},
		"admin route without role":     {http.MethodPost, "/admin/contests", player, fiber.StatusForbidden},
		"admin route without user":     {http.MethodGet, "/admin/reviews", anonymous, fiber.StatusUnauthorized},
		"admin lists reviews":          {http.MethodGet, "/admin/reviews", operator, fiber.StatusOK},
		"public read of unknown id":    {http.MethodGet, "/contests/nope", anonymous, fiber.StatusNotFound},
		"leaderboard of unknown id":    {http.MethodGet, "/contests/nope/leaderboard", anonymous, fiber.StatusNotFound},
		"register for unknown contest": {http.MethodPost, "/contests/nope/participants", player, fiber.StatusNotFound},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var body any
			if tc.method == http.MethodPost {
				body = map[string]any{}
			}
			status, _ := api.do(t, tc.method, tc.path, tc.who, body)
			assert.Equal(t, tc.want, status)
		})
	}
}

func TestContestFlow(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(t, http.MethodPost, "/admin/contests", operator, map[string]any{"name": ""})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "name is required")

	status, body = api.do(t, http.MethodPost, "/admin/contests", operator, api.contestBody())
	require.Equal(t, fiber.StatusCreated, status, body)
	id := body["id"].(string)
	assert.Equal(t, "sunday-slate-2026-week-2", body["slug"])
	assert.Equal(t, "pending", body["status"])

	status, body = api.do(t, http.MethodPost, "/admin/contests/"+id+"/definitions", operator, map[string]any{
		"game_id":    "g1",
		"type":       "spread",
		"question":   "KC -3.5?",
		"choices":    []string{"home", "away"},
		"difficulty": "medium",
		"line":       -3.5,
		"deadline":   api.clock.Now().Add(time.Hour),
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	defID := body["id"].(string)

	status, _ = api.do(t, http.MethodPost, "/admin/contests/"+id+"/activate", operator, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, body = api.do(t, http.MethodPost, "/contests/"+id+"/participants", player, map[string]any{})
	assert.Equal(t, fiber.StatusBadRequest, status, "payment reference is required for a paid contest")

	status, body = api.do(t, http.MethodPost, "/contests/"+id+"/participants", player, map[string]any{"payment_ref": "pay-u1"})
	require.Equal(t, fiber.StatusCreated, status, body)

	status, _ = api.do(t, http.MethodPost, "/contests/"+id+"/participants", player, map[string]any{"payment_ref": "pay-u1"})
	assert.Equal(t, fiber.StatusConflict, status, "already registered")

	pick := map[string]any{"prediction_id": defID, "choice": models.ChoiceHome, "confidence": 70}
	status, body = api.do(t, http.MethodPost, "/contests/"+id+"/predictions", player, pick)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.EqualValues(t, 1, body["version"])

	status, body = api.do(t, http.MethodGet, "/contests/"+id+"/predictions/"+defID, player, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 70, body["confidence"])

	api.clock.Add(time.Hour)
	status, _ = api.do(t, http.MethodPost, "/contests/"+id+"/predictions", player, pick)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status, "deadline is exclusive")

	status, body = api.do(t, http.MethodGet, "/contests/"+id, anonymous, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["participants"])
	assert.EqualValues(t, 1, body["submissions_total"])

	status, _ = api.do(t, http.MethodPost, "/admin/contests/"+id+"/cancel", operator, map[string]any{"reason": ""})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = api.do(t, http.MethodPost, "/admin/contests/"+id+"/cancel", operator, map[string]any{"reason": "weather"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "cancelled", body["status"])

	status, _ = api.do(t, http.MethodPost, "/admin/contests/"+id+"/evaluate", operator, nil)
	assert.Equal(t, fiber.StatusConflict, status, "cancelled contests are not evaluated")
}

func TestStatusFor(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"validation":       {fmt.Errorf("%w: bad", services.ErrValidation), fiber.StatusBadRequest},
		"not registered":   {services.ErrNotRegistered, fiber.StatusBadRequest},
		"not found":        {services.ErrNotFound, fiber.StatusNotFound},
		"contest full":     {services.ErrContestFull, fiber.StatusConflict},
		"concurrency":      {services.ErrConcurrencyConflict, fiber.StatusConflict},
		"deadline":         {services.ErrDeadlinePassed, fiber.StatusUnprocessableEntity},
		"external":         {services.ErrExternalService, fiber.StatusBadGateway},
		"unresolved data":  {services.ErrUnresolvedData, fiber.StatusServiceUnavailable},
		"unclassified":     {errors.New("boom"), fiber.StatusInternalServerError},
		"context canceled": {context.Canceled, fiber.StatusInternalServerError},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}
