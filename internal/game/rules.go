package game

import "strings"

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// ParseDifficulty accepts any casing ("Easy", "HARD"). Unknown values fall back to Easy
// with ok=false so callers can log the substitution.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case Easy:
		return Easy, true
	case Medium:
		return Medium, true
	case Hard:
		return Hard, true
	}
	return Easy, false
}

// Rules holds the scoring constants. It is built once from config and passed by value.
type Rules struct {
	easyWeight   int
	mediumWeight int
	hardWeight   int
	scoreUnit    int
	boardSize    int
}

func NewRules(easy, medium, hard, unit, boardSize int) Rules {
	d := DefaultRules()
	r := Rules{easyWeight: easy, mediumWeight: medium, hardWeight: hard, scoreUnit: unit, boardSize: boardSize}
	if r.easyWeight <= 0 {
		r.easyWeight = d.easyWeight
	}
	if r.mediumWeight <= 0 {
		r.mediumWeight = d.mediumWeight
	}
	if r.hardWeight <= 0 {
		r.hardWeight = d.hardWeight
	}
	if r.scoreUnit <= 0 {
		r.scoreUnit = d.scoreUnit
	}
	if r.boardSize <= 0 {
		r.boardSize = d.boardSize
	}
	return r
}

func DefaultRules() Rules {
	return Rules{easyWeight: 1, mediumWeight: 3, hardWeight: 5, scoreUnit: 10, boardSize: 10}
}

func (r Rules) Weight(d Difficulty) int {
	switch d {
	case Medium:
		return r.mediumWeight
	case Hard:
		return r.hardWeight
	default:
		return r.easyWeight
	}
}

func (r Rules) Score(d Difficulty) int { return r.Weight(d) * r.scoreUnit }

// LeaderboardSize is K, the number of entries kept in the cached leaderboard.
func (r Rules) LeaderboardSize() int { return r.boardSize }
