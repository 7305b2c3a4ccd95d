package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"contest-scoring-engine/models"
	"contest-scoring-engine/utils"
)

// SportsDataClient is the live game data collaborator.
type SportsDataClient interface {
	GetGameStatus(ctx context.Context, gameID string) (*models.GameResult, error)
	GetScheduledGames(ctx context.Context, season, week int) ([]string, error)
}

// OracleClient serves the AI baseline pick for a prediction.
type OracleClient interface {
	GetBaselineChoice(ctx context.Context, predictionID string) (*models.OracleBaseline, error)
}

// PaymentClient executes money movement.
type PaymentClient interface {
	RequestPayout(ctx context.Context, userID string, amount decimal.Decimal, contestID string) (string, error)
	RequestRefund(ctx context.Context, userID string, amount decimal.Decimal, contestID string) (string, error)
}

// external wraps a transport failure into ErrExternalService.
func external(service string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalService, service, err)
}

type HTTPSportsDataClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewSportsDataClient(baseURL, token string, timeout time.Duration) *HTTPSportsDataClient {
	return &HTTPSportsDataClient{BaseURL: baseURL, Token: token, Client: utils.NewHTTPClient(timeout)}
}

func (c *HTTPSportsDataClient) GetGameStatus(ctx context.Context, gameID string) (*models.GameResult, error) {
	u := fmt.Sprintf("%s/api/v1/games/%s", c.BaseURL, url.PathEscape(gameID))
	var out models.GameResult
	if err := utils.DoJSON(ctx, c.Client, http.MethodGet, u, c.Token, nil, &out); err != nil {
		return nil, external("sports data", err)
	}
	if out.GameID == "" {
		out.GameID = gameID
	}
	return &out, nil
}

func (c *HTTPSportsDataClient) GetScheduledGames(ctx context.Context, season, week int) ([]string, error) {
	u, err := url.Parse(c.BaseURL + "/api/v1/schedule")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("season", strconv.Itoa(season))
	q.Set("week", strconv.Itoa(week))
	u.RawQuery = q.Encode()

	var out struct {
		GameIDs []string `json:"game_ids"`
	}
	if err := utils.DoJSON(ctx, c.Client, http.MethodGet, u.String(), c.Token, nil, &out); err != nil {
		return nil, external("sports data", err)
	}
	return out.GameIDs, nil
}

type HTTPOracleClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewOracleClient(baseURL, token string, timeout time.Duration) *HTTPOracleClient {
	return &HTTPOracleClient{BaseURL: baseURL, Token: token, Client: utils.NewHTTPClient(timeout)}
}

func (c *HTTPOracleClient) GetBaselineChoice(ctx context.Context, predictionID string) (*models.OracleBaseline, error) {
	u := fmt.Sprintf("%s/api/v1/baselines/%s", c.BaseURL, url.PathEscape(predictionID))
	var out struct {
		Choice     int `json:"choice"`
		Confidence int `json:"confidence"`
	}
	if err := utils.DoJSON(ctx, c.Client, http.MethodGet, u, c.Token, nil, &out); err != nil {
		return nil, external("oracle", err)
	}
	return &models.OracleBaseline{PredictionID: predictionID, ChoiceIndex: out.Choice, Confidence: out.Confidence}, nil
}

type HTTPPaymentClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewPaymentClient(baseURL, token string, timeout time.Duration) *HTTPPaymentClient {
	return &HTTPPaymentClient{BaseURL: baseURL, Token: token, Client: utils.NewHTTPClient(timeout)}
}

type transferRequest struct {
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	ContestID string `json:"contest_id"`
	// IdempotencyKey lets the gateway drop duplicate retries.
	IdempotencyKey string `json:"idempotency_key"`
}

type transferResponse struct {
	PaymentRef string `json:"payment_ref"`
}

func (c *HTTPPaymentClient) transfer(ctx context.Context, path, kind, userID string, amount decimal.Decimal, contestID string) (string, error) {
	req := transferRequest{
		UserID:         userID,
		Amount:         amount.StringFixed(2),
		ContestID:      contestID,
		IdempotencyKey: kind + ":" + contestID + ":" + userID,
	}
	var out transferResponse
	if err := utils.DoJSON(ctx, c.Client, http.MethodPost, c.BaseURL+path, c.Token, req, &out); err != nil {
		return "", external("payment", err)
	}
	return out.PaymentRef, nil
}

func (c *HTTPPaymentClient) RequestPayout(ctx context.Context, userID string, amount decimal.Decimal, contestID string) (string, error) {
	return c.transfer(ctx, "/api/v1/payouts", "payout", userID, amount, contestID)
}

func (c *HTTPPaymentClient) RequestRefund(ctx context.Context, userID string, amount decimal.Decimal, contestID string) (string, error) {
	return c.transfer(ctx, "/api/v1/refunds", "refund", userID, amount, contestID)
}
