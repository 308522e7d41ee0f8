package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/example/langfocus/pkg/models"
)

type jsonFile struct {
	LanguagePatterns struct {
		Patterns []models.Technique `json:"patterns"`
	} `json:"languagePatterns"`
	TrainingStatements []models.Statement `json:"trainingStatements"`
}

func readJSON(path string) ([]models.Technique, []models.Statement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var f jsonFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return f.LanguagePatterns.Patterns, f.TrainingStatements, nil
}
