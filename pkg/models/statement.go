package models

// Statement difficulty levels
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Statement is a practice prompt the user reframes
type Statement struct {
	ID         int    `json:"id"`
	Text       string `json:"statement"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	// TechniqueIDs lists affiliated techniques. Empty means the statement fits any technique.
	TechniqueIDs []int `json:"techniques,omitempty"`
}

// AppliesTo reports whether the statement can be practiced with the technique
func (s Statement) AppliesTo(techniqueID int) bool {
	if len(s.TechniqueIDs) == 0 {
		return true
	}
	for _, id := range s.TechniqueIDs {
		if id == techniqueID {
			return true
		}
	}
	return false
}
