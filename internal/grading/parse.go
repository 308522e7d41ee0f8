package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidResponse means the model output is not a well-formed grading object
var ErrInvalidResponse = errors.New("invalid grading response")

var requiredFields = []string{"is_correct", "score", "feedback", "improvements", "detected_trick"}

// ParseResult extracts and validates the grading object from raw model output.
// Missing or mistyped fields are an error; score is clamped into [0, 100].
func ParseResult(raw string) (*Result, error) {
	block := extractJSONBlock(stripCodeFences(raw))
	if block == "" {
		return nil, fmt.Errorf("%w: no JSON object found", ErrInvalidResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(block), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrInvalidResponse, name)
		}
	}

	var res Result
	for _, f := range []struct {
		name     string
		dst      interface{}
		nullable bool
	}{
		{"is_correct", &res.IsCorrect, false},
		{"score", &res.Score, false},
		{"feedback", &res.Feedback, false},
		{"improvements", &res.Improvements, false},
		{"detected_trick", &res.DetectedTrick, true},
	} {
		if err := decodeField(fields[f.name], f.name, f.dst, f.nullable); err != nil {
			return nil, err
		}
	}

	res.Score = math.Max(0, math.Min(100, res.Score))
	res.Feedback = strings.TrimSpace(res.Feedback)
	if res.DetectedTrick != nil && strings.TrimSpace(*res.DetectedTrick) == "" {
		res.DetectedTrick = nil
	}
	return &res, nil
}

func decodeField(raw json.RawMessage, name string, dst interface{}, nullable bool) error {
	if !nullable && strings.TrimSpace(string(raw)) == "null" {
		return fmt.Errorf("%w: field %q is null", ErrInvalidResponse, name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: field %q: %v", ErrInvalidResponse, name, err)
	}
	return nil
}

// stripCodeFences removes markdown code fences around the payload
func stripCodeFences(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// extractJSONBlock returns the outermost {...} span
func extractJSONBlock(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
