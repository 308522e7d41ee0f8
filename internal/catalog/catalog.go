package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/example/langfocus/pkg/models"
)

// Lookup errors
var (
	ErrUnknownTechnique = errors.New("unknown technique")
	ErrUnknownStatement = errors.New("unknown statement")
)

// Loader is the read-only catalog contract consumed by the learning core
type Loader interface {
	GetTechniques() []models.Technique
	GetStatements(techniqueID *int) []models.Statement
}

// Catalog is the immutable in-memory set of techniques and statements
type Catalog struct {
	techniques []models.Technique
	statements []models.Statement
	byID       map[int]models.Technique
}

// New validates the given data and builds a Catalog from it
func New(techniques []models.Technique, statements []models.Statement) (*Catalog, error) {
	if err := Validate(techniques, statements); err != nil {
		return nil, err
	}

	c := &Catalog{
		techniques: append([]models.Technique(nil), techniques...),
		statements: append([]models.Statement(nil), statements...),
		byID:       make(map[int]models.Technique, len(techniques)),
	}
	sort.Slice(c.techniques, func(i, j int) bool { return c.techniques[i].ID < c.techniques[j].ID })
	sort.Slice(c.statements, func(i, j int) bool { return c.statements[i].ID < c.statements[j].ID })
	for _, t := range c.techniques {
		c.byID[t.ID] = t
	}
	return c, nil
}

// Load reads a catalog file, choosing the format by extension
func Load(path string) (*Catalog, error) {
	var (
		techniques []models.Technique
		statements []models.Statement
		err        error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		techniques, statements, err = readJSON(path)
	case ".xlsx":
		techniques, statements, err = readExcel(path, DefaultSheetConfig())
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", path)
	}
	if err != nil {
		return nil, err
	}
	return New(techniques, statements)
}

// GetTechniques returns all techniques ordered by id
func (c *Catalog) GetTechniques() []models.Technique {
	return append([]models.Technique(nil), c.techniques...)
}

// GetStatements returns every statement, or those usable with the technique when an id is given
func (c *Catalog) GetStatements(techniqueID *int) []models.Statement {
	if techniqueID == nil {
		return append([]models.Statement(nil), c.statements...)
	}
	var out []models.Statement
	for _, s := range c.statements {
		if s.AppliesTo(*techniqueID) {
			out = append(out, s)
		}
	}
	return out
}

// Technique looks a technique up by id
func (c *Catalog) Technique(id int) (models.Technique, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Statement looks a statement up by id
func (c *Catalog) Statement(id int) (models.Statement, bool) {
	i := sort.Search(len(c.statements), func(i int) bool { return c.statements[i].ID >= id })
	if i < len(c.statements) && c.statements[i].ID == id {
		return c.statements[i], true
	}
	return models.Statement{}, false
}

// Validate checks ids, required fields and statement references
func Validate(techniques []models.Technique, statements []models.Statement) error {
	if len(techniques) == 0 {
		return errors.New("catalog has no techniques")
	}
	if len(statements) == 0 {
		return errors.New("catalog has no statements")
	}

	var problems []string
	known := make(map[int]bool, len(techniques))
	for i, t := range techniques {
		switch {
		case t.ID <= 0:
			problems = append(problems, fmt.Sprintf("technique %d: id must be positive", i+1))
		case known[t.ID]:
			problems = append(problems, fmt.Sprintf("technique %d: duplicate id %d", i+1, t.ID))
		}
		if strings.TrimSpace(t.Name) == "" {
			problems = append(problems, fmt.Sprintf("technique %d: empty name", i+1))
		}
		known[t.ID] = true
	}

	seen := make(map[int]bool, len(statements))
	for i, s := range statements {
		switch {
		case s.ID <= 0:
			problems = append(problems, fmt.Sprintf("statement %d: id must be positive", i+1))
		case seen[s.ID]:
			problems = append(problems, fmt.Sprintf("statement %d: duplicate id %d", i+1, s.ID))
		}
		seen[s.ID] = true
		if strings.TrimSpace(s.Text) == "" {
			problems = append(problems, fmt.Sprintf("statement %d: empty text", i+1))
		}
		for _, ref := range s.TechniqueIDs {
			if !known[ref] {
				problems = append(problems, fmt.Sprintf("statement %d: unknown technique %d", i+1, ref))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid catalog: %s", strings.Join(problems, "; "))
	}
	return nil
}
