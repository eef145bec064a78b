package insight

import (
	"github.com/raphaelgruber/insightd-go/internal/models"
)

// knownInsightTypes are the types the extraction prompt is allowed to emit.
// Candidates outside this set are model hallucinations and never persist.
var knownInsightTypes = map[string]struct{}{
	"pattern":    {},
	"technology": {},
	"lesson":     {},
	"decision":   {},
	"preference": {},
}

// Gate filters candidates before deduplication. The confidence bound is
// inclusive: a candidate exactly at MinConfidence is accepted.
type Gate struct {
	MinConfidence     float64
	RequireValidation bool
}

// Check evaluates one candidate. When accepted, it also returns the
// validation status new insights are created with: pending when operators
// require manual promotion, auto_validated otherwise.
func (g Gate) Check(c models.CandidateInsight) (models.ValidationStatus, bool, string) {
	if c.Type == "" || c.Category == "" {
		return "", false, "missing type or category"
	}
	if _, ok := knownInsightTypes[c.Type]; !ok {
		return "", false, "unknown insight type " + c.Type
	}
	if c.Confidence < g.MinConfidence {
		return "", false, "confidence below threshold"
	}

	status := models.ValidationAutoValidated
	if g.RequireValidation {
		status = models.ValidationPending
	}
	return status, true, ""
}
