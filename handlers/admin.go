package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"contest-scoring-engine/middleware"
	"contest-scoring-engine/models"
	"contest-scoring-engine/services"
)

// AdminHandler serves contest administration and the operator review queue.
type AdminHandler struct {
	Contests   *services.ContestService
	Evaluation *services.EvaluationService
	Payouts    *services.PayoutService
	Reviews    *services.ReviewService
}

func SetupAdminRoutes(app *fiber.App, h *AdminHandler, adminRole string) {
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireRole(adminRole))

	admin.Post("/contests", h.CreateContest)
	admin.Post("/contests/:id/definitions", h.AddPredictionDefinition)
	admin.Post("/contests/:id/activate", h.Activate)
	admin.Post("/contests/:id/complete", h.Complete)
	admin.Post("/contests/:id/cancel", h.Cancel)
	admin.Post("/contests/:id/evaluate", h.ForceEvaluate)
	admin.Post("/contests/:id/payouts", h.SettlePayouts)

	admin.Get("/reviews", h.ListReviews)
	admin.Post("/reviews/:id/resolve", h.ResolveReview)
}

func (h *AdminHandler) CreateContest(c *fiber.Ctx) error {
	var in services.CreateContestInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(c, err)
	}
	contest, err := h.Contests.CreateContest(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(contest)
}

func (h *AdminHandler) AddPredictionDefinition(c *fiber.Ctx) error {
	var in services.DefinitionInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(c, err)
	}
	def, err := h.Contests.AddPredictionDefinition(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *AdminHandler) Activate(c *fiber.Ctx) error {
	contest, err := h.Contests.Activate(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(contest)
}

func (h *AdminHandler) Complete(c *fiber.Ctx) error {
	contest, err := h.Contests.Complete(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(contest)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) Cancel(c *fiber.Ctx) error {
	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	contest, err := h.Contests.Cancel(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	log.Printf("[API] contest %s cancelled by %s", contest.ID, middleware.UserID(c))
	return c.JSON(contest)
}

func (h *AdminHandler) ForceEvaluate(c *fiber.Ctx) error {
	report, err := h.Evaluation.ForceEvaluate(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

func (h *AdminHandler) SettlePayouts(c *fiber.Ctx) error {
	payouts, err := h.Payouts.SettleContest(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payouts": payouts})
}

func (h *AdminHandler) ListReviews(c *fiber.Ctx) error {
	items, err := h.Reviews.List(c.UserContext(), models.ReviewKind(c.Query("kind")), c.QueryBool("all"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"items": items})
}

func (h *AdminHandler) ResolveReview(c *fiber.Ctx) error {
	var in services.ResolveInput
	if err := c.BodyParser(&in); err != nil {
		return badBody(c, err)
	}
	item, err := h.Reviews.Resolve(c.UserContext(), c.Params("id"), middleware.UserID(c), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}
