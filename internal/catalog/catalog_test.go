package catalog

import (
	"path/filepath"
	"testing"

	"github.com/example/langfocus/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJSON(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "catalog.json"))
	require.NoError(t, err)

	techniques := c.GetTechniques()
	require.Len(t, techniques, 3)
	assert.Equal(t, "Intention", techniques[0].Name)
	assert.Equal(t, []string{"purpose", "goal"}, techniques[0].Keywords)

	assert.Len(t, c.GetStatements(nil), 3)

	one := 1
	forIntention := c.GetStatements(&one)
	require.Len(t, forIntention, 2, "statement 3 is restricted to techniques 2 and 3")
	assert.Equal(t, 1, forIntention[0].ID)
	assert.Equal(t, 2, forIntention[1].ID)

	three := 3
	assert.Len(t, c.GetStatements(&three), 3)

	s, ok := c.Statement(3)
	require.True(t, ok)
	assert.Equal(t, "My boss never listens to me.", s.Text)
	_, ok = c.Statement(99)
	assert.False(t, ok)
}

func TestExcelRoundTrip(t *testing.T) {
	src, err := Load(filepath.Join("testdata", "catalog.json"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	require.NoError(t, WriteExcel(src, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, src.GetTechniques(), loaded.GetTechniques())

	s, ok := loaded.Statement(3)
	require.True(t, ok)
	assert.Equal(t, []int{2, 3}, s.TechniqueIDs)
	assert.Equal(t, "work", s.Category)
}

func TestValidateRejectsBadCatalogs(t *testing.T) {
	techniques := []models.Technique{{ID: 1, Name: "Intention"}}
	statements := []models.Statement{{ID: 1, Text: "x"}}

	require.NoError(t, Validate(techniques, statements))

	assert.Error(t, Validate(nil, statements))
	assert.Error(t, Validate(techniques, nil))
	assert.ErrorContains(t, Validate(append(techniques, models.Technique{ID: 1, Name: "dup"}), statements), "duplicate id")
	assert.ErrorContains(t, Validate(techniques, []models.Statement{{ID: 1, Text: "x", TechniqueIDs: []int{9}}}), "unknown technique 9")
	assert.ErrorContains(t, Validate(techniques, []models.Statement{{ID: 2, Text: "  "}}), "empty text")
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := Load("catalog.csv")
	assert.ErrorContains(t, err, "unsupported catalog format")
}
