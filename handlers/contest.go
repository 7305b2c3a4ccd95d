package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"contest-scoring-engine/middleware"
	"contest-scoring-engine/services"
)

// ContestHandler serves the participant-facing contest API.
type ContestHandler struct {
	Contests    *services.ContestService
	Predictions *services.PredictionService
	Leaderboard *services.LeaderboardService
}

func SetupContestRoutes(app *fiber.App, h *ContestHandler) {
	// Public reads, still behind gateway auth
	app.Get("/contests/:id", h.GetContestStatus)
	app.Get("/contests/:id/leaderboard", h.GetLeaderboard)
	app.Get("/contests/:id/leaderboard/stream", h.StreamLeaderboard)

	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/contests/:id/participants", h.Register)
	secured.Post("/contests/:id/predictions", h.SubmitPrediction)
	secured.Get("/contests/:id/predictions/:prediction_id", h.GetSubmission)
}

func (h *ContestHandler) GetContestStatus(c *fiber.Ctx) error {
	view, err := h.Contests.GetContestStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

func (h *ContestHandler) GetLeaderboard(c *fiber.Ctx) error {
	snap, err := h.Leaderboard.GetLeaderboard(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}

func (h *ContestHandler) StreamLeaderboard(c *fiber.Ctx) error {
	if err := h.Leaderboard.StreamLeaderboardSSE(c, c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return nil
}

type registerRequest struct {
	PaymentRef string `json:"payment_ref"`
}

func (h *ContestHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	p, err := h.Contests.RegisterParticipant(c.UserContext(), c.Params("id"),
		middleware.UserID(c), middleware.Username(c), strings.TrimSpace(req.PaymentRef))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

type submitRequest struct {
	PredictionID string `json:"prediction_id"`
	Choice       int    `json:"choice"`
	Confidence   int    `json:"confidence"`
	Reasoning    string `json:"reasoning"`
}

func (h *ContestHandler) SubmitPrediction(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	sub, err := h.Predictions.SubmitPrediction(c.UserContext(), services.SubmitInput{
		ContestID:    c.Params("id"),
		UserID:       middleware.UserID(c),
		PredictionID: req.PredictionID,
		Choice:       req.Choice,
		Confidence:   req.Confidence,
		Reasoning:    req.Reasoning,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (h *ContestHandler) GetSubmission(c *fiber.Ctx) error {
	sub, err := h.Predictions.Submission(c.UserContext(), middleware.UserID(c), c.Params("prediction_id"))
	if err != nil {
		return respondError(c, err)
	}
	if sub.ContestID != c.Params("id") {
		return respondError(c, services.ErrNotFound)
	}
	return c.JSON(sub)
}
