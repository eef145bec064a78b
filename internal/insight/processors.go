package insight

import (
	"context"

	"github.com/raphaelgruber/insightd-go/internal/llm"
	"github.com/raphaelgruber/insightd-go/internal/models"
)

// Categorizer is the inference surface processors need. *llm.Model satisfies
// it; tests supply canned responses.
type Categorizer interface {
	Categorize(ctx context.Context, text string) ([]llm.Categorization, error)
}

// CategorizeProcessor is the general-purpose processor: one inference call
// per record, structured output mapped to candidates. It handles free-form
// memory types and doubles as the registry default.
type CategorizeProcessor struct {
	model Categorizer
}

func NewCategorizeProcessor(model Categorizer) *CategorizeProcessor {
	return &CategorizeProcessor{model: model}
}

func (p *CategorizeProcessor) Name() string { return "categorize" }

func (p *CategorizeProcessor) Types() []string {
	return []string{"note", "observation", "conversation", "snippet"}
}

func (p *CategorizeProcessor) Detect(ctx context.Context, rec models.MemoryRecord) ([]models.CandidateInsight, error) {
	cats, err := p.model.Categorize(ctx, rec.Content)
	if err != nil {
		return nil, err
	}

	memoryID := models.MustRecordIDString(rec.ID)
	candidates := make([]models.CandidateInsight, 0, len(cats))
	for _, c := range cats {
		candidates = append(candidates, models.CandidateInsight{
			Type:         c.Type,
			Category:     c.Category,
			Subcategory:  c.Subcategory,
			Confidence:   c.Confidence,
			Entities:     c.Entities,
			Technologies: c.Technologies,
			MemoryID:     memoryID,
			Method:       c.Method,
			Content:      rec.Content,
		})
	}
	return candidates, nil
}

// DecisionProcessor handles records that capture an explicit choice. It runs
// the same inference but keeps only decision and preference candidates; when
// the model produces none, the strongest candidate is coerced to a decision
// so the recorded choice is never silently dropped.
type DecisionProcessor struct {
	model Categorizer
}

func NewDecisionProcessor(model Categorizer) *DecisionProcessor {
	return &DecisionProcessor{model: model}
}

func (p *DecisionProcessor) Name() string { return "decision" }

func (p *DecisionProcessor) Types() []string {
	return []string{"decision", "preference"}
}

func (p *DecisionProcessor) Detect(ctx context.Context, rec models.MemoryRecord) ([]models.CandidateInsight, error) {
	cats, err := p.model.Categorize(ctx, rec.Content)
	if err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		return nil, nil
	}

	memoryID := models.MustRecordIDString(rec.ID)

	var kept []models.CandidateInsight
	best := -1
	all := make([]models.CandidateInsight, 0, len(cats))

	for i, c := range cats {
		cand := models.CandidateInsight{
			Type:         c.Type,
			Category:     c.Category,
			Subcategory:  c.Subcategory,
			Confidence:   c.Confidence,
			Entities:     c.Entities,
			Technologies: c.Technologies,
			MemoryID:     memoryID,
			Method:       "llm_decision",
			Content:      rec.Content,
		}
		all = append(all, cand)

		if c.Type == "decision" || c.Type == "preference" {
			kept = append(kept, cand)
		}
		if best < 0 || c.Confidence > cats[best].Confidence {
			best = i
		}
	}

	if len(kept) == 0 {
		coerced := all[best]
		coerced.Type = rec.Type
		kept = append(kept, coerced)
	}
	return kept, nil
}
