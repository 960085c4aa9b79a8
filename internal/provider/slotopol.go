package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SlotopolClient asks the Slotopol game server for round outcomes.
type SlotopolClient struct {
	baseURL string
	logger  *slog.Logger
	client  *http.Client
}

// NewSlotopolClient creates a new Slotopol HTTP client.
func NewSlotopolClient(baseURL string, logger *slog.Logger) *SlotopolClient {
	return &SlotopolClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SlotopolSpinRequest is the request body for a spin.
type SlotopolSpinRequest struct {
	GameID  string `json:"game_id"`
	RoundID string `json:"round_id"`
	UserID  string `json:"user_id"`
	Bet     int64  `json:"bet"` // in cents
}

// SlotopolSpinResult is the response from a spin.
type SlotopolSpinResult struct {
	GameRoundID string    `json:"game_round_id"`
	Win         int64     `json:"win"` // in cents
	Reels       [][]int   `json:"reels,omitempty"`
	Paylines    []Payline `json:"paylines,omitempty"`
	FreeSpins   int       `json:"free_spins"`
}

// Payline describes a winning payline.
type Payline struct {
	Line   int    `json:"line"`
	Symbol string `json:"symbol"`
	Count  int    `json:"count"`
	Payout int64  `json:"payout"`
}

// Spin executes a spin on the Slotopol server.
func (c *SlotopolClient) Spin(ctx context.Context, spin SlotopolSpinRequest) (*SlotopolSpinResult, error) {
	body, err := json.Marshal(spin)
	if err != nil {
		return nil, fmt.Errorf("encode spin: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/spin", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spin request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("slotopol spin returned %d", resp.StatusCode)
	}

	var result SlotopolSpinResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode spin result: %w", err)
	}
	if result.Win < 0 {
		return nil, fmt.Errorf("slotopol returned negative win %d", result.Win)
	}
	return &result, nil
}

// Payout plays one round and returns the amount won.
func (c *SlotopolClient) Payout(ctx context.Context, userID, gameID, roundID string, bet decimal.Decimal) (decimal.Decimal, error) {
	res, err := c.Spin(ctx, SlotopolSpinRequest{
		GameID:  gameID,
		RoundID: roundID,
		UserID:  userID,
		Bet:     bet.Shift(2).IntPart(),
	})
	if err != nil {
		return decimal.Zero, err
	}
	c.logger.Debug("slotopol round settled", "round_id", roundID, "game_id", gameID, "win_cents", res.Win, "free_spins", res.FreeSpins)
	return decimal.New(res.Win, -2), nil
}
