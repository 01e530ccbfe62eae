package handbrain

// Action is an operation a participant can take on a game.
type Action string

const (
	ActionJoin    Action = "join"
	ActionSuggest Action = "suggest"
	ActionMove    Action = "move"
)

type phase struct {
	status Status
	role   Role
}

type transition struct {
	actor    Role
	next     Role
	flipTeam bool
}

// turnTable is the whole turn state machine: every (status, role) pair maps to
// the actions it accepts and the phase each action leads to. Pairs missing
// from the table accept nothing.
var turnTable = map[phase]map[Action]transition{
	{StatusForming, ""}: {
		ActionJoin: {},
	},
	{StatusInProgress, Brain}: {
		ActionSuggest: {actor: Brain, next: Hand},
	},
	{StatusInProgress, Hand}: {
		ActionMove: {actor: Hand, next: Brain, flipTeam: true},
	},
}

var wrongRole = map[Action]string{
	ActionSuggest: "not brain's turn",
	ActionMove:    "not hand's turn",
}

// AllowedActions lists what the game accepts right now.
func AllowedActions(g *Game) []Action {
	var out []Action
	for _, a := range []Action{ActionJoin, ActionSuggest, ActionMove} {
		if _, ok := turnTable[phaseOf(g)][a]; ok {
			out = append(out, a)
		}
	}
	return out
}

func phaseOf(g *Game) phase {
	if g.Status != StatusInProgress {
		return phase{status: g.Status}
	}
	return phase{status: g.Status, role: g.CurrentRole}
}

// checkTurn validates that playerID may perform action now and returns the
// transition to apply once the action succeeds.
func checkTurn(g *Game, action Action, playerID string) (transition, error) {
	switch g.Status {
	case StatusForming:
		return transition{}, stateErr("game has not started: waiting for players")
	case StatusFinished:
		return transition{}, stateErr("game is finished")
	}
	t, ok := turnTable[phaseOf(g)][action]
	if !ok {
		return transition{}, turnErr(wrongRole[action])
	}
	if g.PlayerAt(g.CurrentTeam, t.actor) != playerID {
		return transition{}, turnErr("not your turn")
	}
	return t, nil
}

func (t transition) apply(g *Game) {
	g.CurrentRole = t.next
	if t.flipTeam {
		g.CurrentTeam = g.CurrentTeam.Opponent()
	}
}

func start(g *Game) {
	g.Status = StatusInProgress
	g.CurrentTeam = White
	g.CurrentRole = Brain
	g.SelectedPiece = ""
	g.Position = StartPosition
	g.InitialPosition = StartPosition
}
