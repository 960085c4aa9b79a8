//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/attaboy/wallet/internal/domain"
	"github.com/attaboy/wallet/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameRound_WinCredited(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Fund("player-slot", "20")
	env.SetSpinWin(550)

	resp := env.POST("/game/rounds", map[string]string{"gameId": "book-of-ra", "bet": "2"}, env.PlayerToken("player-slot"))
	testutil.AssertStatus(t, resp, http.StatusOK)
	var res struct {
		RoundID string `json:"roundId"`
		Status  string `json:"status"`
	}
	testutil.DecodeJSON(t, resp, &res)
	assert.NotEmpty(t, res.RoundID)

	testutil.AssertBalance(t, env, "player-slot", "23.50")
	// adjustment, bet, win
	assert.Equal(t, 3, testutil.CountLedgerEntries(t, env, "player-slot"))
}

func TestGameRound_EngineFailureKeepsStakeForReview(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Fund("player-down", "20")
	env.FailSpins(true)

	resp := env.POST("/game/rounds", map[string]string{"gameId": "book-of-ra", "bet": "4"}, env.PlayerToken("player-down"))
	testutil.AssertStatus(t, resp, http.StatusBadGateway)
	var body struct {
		Code string `json:"code"`
	}
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, "PROVIDER_UNAVAILABLE", body.Code)

	testutil.AssertBalance(t, env, "player-down", "16")
	assert.Equal(t, 1, testutil.CountAudit(t, env, string(domain.AuditGameRoundFailed), "player-down"))
}

func TestGameRound_BetOverLimitRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.Fund("player-big", "5000")

	resp := env.POST("/game/rounds", map[string]string{"gameId": "book-of-ra", "bet": "1500"}, env.PlayerToken("player-big"))
	testutil.AssertStatus(t, resp, http.StatusUnprocessableEntity)
	testutil.AssertErrorCode(t, resp, "LIMIT_EXCEEDED")
	testutil.AssertBalance(t, env, "player-big", "5000")
	require.Equal(t, 1, testutil.CountLedgerEntries(t, env, "player-big"))
}
