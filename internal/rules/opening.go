package rules

import (
	"fmt"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

// Opening is an ECO classification.
type Opening struct {
	Code  string
	Title string
}

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// ClassifyOpening replays uci from the standard start and returns the deepest
// ECO opening the line reaches; ok is false when none matches.
func ClassifyOpening(uci []string) (op Opening, ok bool, err error) {
	game := nchess.NewGame()
	for _, mv := range uci {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return Opening{}, false, fmt.Errorf("replay %s: %w", mv, err)
		}
	}
	if len(game.Moves()) == 0 {
		return Opening{}, false, nil
	}
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	found := ecoBook.Find(game.Moves())
	if found == nil {
		return Opening{}, false, nil
	}
	return Opening{Code: found.Code(), Title: found.Title()}, true, nil
}
