package handler

import (
	"net/http"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/internal/service"
	"github.com/shopspring/decimal"
)

// GameHandler handles game round endpoints.
type GameHandler struct {
	games *service.GameService
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(games *service.GameService) *GameHandler {
	return &GameHandler{games: games}
}

type playRoundRequest struct {
	GameID string          `json:"gameId"`
	Bet    decimal.Decimal `json:"bet"`
}

// PlayRound handles POST /game/rounds. A round whose outcome could not be
// resolved answers 502 with the round attached so the client can show it.
func (h *GameHandler) PlayRound(w http.ResponseWriter, r *http.Request) {
	p, err := principalFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req playRoundRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		RespondError(w, err)
		return
	}

	res, err := h.games.PlayRound(r.Context(), p.UserID, req.GameID, req.Bet)
	if err != nil {
		if appErr, ok := domain.AsAppError(err); ok && res != nil {
			RespondJSON(w, appErr.Status, map[string]any{
				"code":    appErr.Code,
				"message": appErr.Message,
				"round":   res,
			})
			return
		}
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, res)
}
