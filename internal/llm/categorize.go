package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Categorization is the structured output of one inference call over a
// memory record's content.
type Categorization struct {
	Type         string
	Category     string
	Subcategory  string
	Confidence   float64
	Entities     []string
	Technologies []string
	Method       string
}

const categorizeSystemPrompt = `You are a software knowledge analyst. Categorize the given project memory into structured insights.

Insight types: pattern, technology, lesson, decision, preference

Output format (one per line):
INSIGHT|type|category|subcategory|confidence
ENTITY|name
TECH|name

Guidelines:
- Emit one INSIGHT line per distinct conclusion (zero is valid for trivial content)
- confidence is a decimal in [0,1] reflecting how certain the categorization is
- Use lowercase hyphenated names for categories (e.g. "error-handling", "api-design")
- ENTITY lines name people, services or concepts the memory references
- TECH lines name languages, frameworks or tools in use`

// Categorize runs one inference call over text and parses the structured
// result. Zero insights is a legitimate outcome, not an error.
func (m *Model) Categorize(ctx context.Context, text string) ([]Categorization, error) {
	userPrompt := fmt.Sprintf("Memory:\n%s\n\nStructured insights:", text)

	start := time.Now()
	raw, err := m.GenerateWithSystem(ctx, categorizeSystemPrompt, userPrompt)
	if err != nil {
		slog.Warn("categorize failed", "model", m.modelName, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, err
	}
	slog.Debug("categorize complete", "model", m.modelName, "duration_ms", time.Since(start).Milliseconds())

	return parseCategorizations(raw), nil
}

// parseCategorizations decodes the pipe-delimited line protocol. Malformed
// lines are skipped; ENTITY/TECH lines attach to the most recent INSIGHT.
func parseCategorizations(raw string) []Categorization {
	var results []Categorization

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		parts := strings.Split(line, "|")

		switch {
		case len(parts) >= 5 && parts[0] == "INSIGHT":
			confidence, err := strconv.ParseFloat(strings.TrimSpace(parts[4]), 64)
			if err != nil {
				slog.Debug("skipping insight line with bad confidence", "line", line)
				continue
			}
			if confidence < 0 {
				confidence = 0
			}
			if confidence > 1 {
				confidence = 1
			}
			results = append(results, Categorization{
				Type:        strings.TrimSpace(parts[1]),
				Category:    strings.TrimSpace(parts[2]),
				Subcategory: strings.TrimSpace(parts[3]),
				Confidence:  confidence,
				Method:      "llm_categorize",
			})

		case len(parts) >= 2 && parts[0] == "ENTITY":
			if len(results) == 0 {
				continue
			}
			name := strings.TrimSpace(parts[1])
			if name != "" {
				last := &results[len(results)-1]
				last.Entities = append(last.Entities, name)
			}

		case len(parts) >= 2 && parts[0] == "TECH":
			if len(results) == 0 {
				continue
			}
			name := strings.TrimSpace(parts[1])
			if name != "" {
				last := &results[len(results)-1]
				last.Technologies = append(last.Technologies, name)
			}
		}
	}

	return results
}
