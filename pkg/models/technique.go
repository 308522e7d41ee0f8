package models

// Technique is one verbal-reframing pattern from the catalog
type Technique struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Definition string   `json:"definition"`
	Keywords   []string `json:"keywords"`
	Examples   []string `json:"examples"`
}
