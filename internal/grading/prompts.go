package grading

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

type promptFile struct {
	Grading struct {
		SystemPrompt       string `yaml:"system_prompt"`
		UserPromptTemplate string `yaml:"user_prompt_template"`
	} `yaml:"grading"`
}

// Prompts renders grading requests
type Prompts struct {
	system string
	user   *template.Template
}

// LoadPrompts reads prompt templates from a YAML file, or the built-in ones when path is empty
func LoadPrompts(path string) (*Prompts, error) {
	data := defaultPrompts
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read prompts: %w", err)
		}
	}
	return parsePrompts(data)
}

func parsePrompts(data []byte) (*Prompts, error) {
	var f promptFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	if f.Grading.SystemPrompt == "" || f.Grading.UserPromptTemplate == "" {
		return nil, fmt.Errorf("prompts: grading.system_prompt and grading.user_prompt_template are required")
	}
	tmpl, err := template.New("grading").Option("missingkey=error").Parse(f.Grading.UserPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user prompt template: %w", err)
	}
	return &Prompts{system: f.Grading.SystemPrompt, user: tmpl}, nil
}

// Render builds the system and user messages for a request
func (p *Prompts) Render(req Request) (string, string, error) {
	var buf bytes.Buffer
	if err := p.user.Execute(&buf, req); err != nil {
		return "", "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return p.system, buf.String(), nil
}
