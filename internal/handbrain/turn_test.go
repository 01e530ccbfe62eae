package handbrain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seatedGame() *Game {
	g := &Game{ID: "g", Status: StatusForming}
	g.bind(White, Brain, "wb")
	g.bind(White, Hand, "wh")
	g.bind(Black, Brain, "bb")
	g.bind(Black, Hand, "bh")
	start(g)
	return g
}

func TestAllowedActions(t *testing.T) {
	g := &Game{Status: StatusForming}
	assert.Equal(t, []Action{ActionJoin}, AllowedActions(g))

	g = seatedGame()
	assert.Equal(t, []Action{ActionSuggest}, AllowedActions(g))
	g.CurrentRole = Hand
	assert.Equal(t, []Action{ActionMove}, AllowedActions(g))

	g.Status = StatusFinished
	assert.Empty(t, AllowedActions(g))
}

func TestCheckTurn(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Game)
		action Action
		player string
		kind   Kind
		msg    string
	}{
		{"brain suggests", nil, ActionSuggest, "wb", "", ""},
		{"hand early", nil, ActionMove, "wh", KindTurn, "not hand's turn"},
		{"opponent brain", nil, ActionSuggest, "bb", KindTurn, "not your turn"},
		{"hand moves", func(g *Game) { g.CurrentRole = Hand }, ActionMove, "wh", "", ""},
		{"brain twice", func(g *Game) { g.CurrentRole = Hand }, ActionSuggest, "wb", KindTurn, "not brain's turn"},
		{"black hand", func(g *Game) { g.CurrentTeam, g.CurrentRole = Black, Hand }, ActionMove, "bh", "", ""},
		{"forming", func(g *Game) { g.Status = StatusForming }, ActionSuggest, "wb", KindState, "game has not started: waiting for players"},
		{"finished", func(g *Game) { g.Status = StatusFinished }, ActionMove, "wh", KindState, "game is finished"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := seatedGame()
			if tc.mutate != nil {
				tc.mutate(g)
			}
			_, err := checkTurn(g, tc.action, tc.player)
			if tc.kind == "" {
				require.NoError(t, err)
				return
			}
			var de *Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tc.kind, de.Kind)
			assert.Equal(t, tc.msg, de.Message)
		})
	}
}

func TestTransitionsAlternate(t *testing.T) {
	g := seatedGame()

	tr, err := checkTurn(g, ActionSuggest, "wb")
	require.NoError(t, err)
	tr.apply(g)
	assert.Equal(t, White, g.CurrentTeam)
	assert.Equal(t, Hand, g.CurrentRole)

	tr, err = checkTurn(g, ActionMove, "wh")
	require.NoError(t, err)
	tr.apply(g)
	assert.Equal(t, Black, g.CurrentTeam)
	assert.Equal(t, Brain, g.CurrentRole)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify("op", nil))

	rule := ruleErr("illegal move")
	assert.Same(t, rule, classify("op", rule))

	err := classify("submit_move", ErrTxConflict)
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.True(t, errors.Is(err, ErrTxConflict))

	err = classify("submit_move", errors.New("boom"))
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Contains(t, err.Error(), "submit_move: boom")
}
