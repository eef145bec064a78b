package insight

import (
	"testing"

	"github.com/raphaelgruber/insightd-go/internal/models"
)

func TestGateCheck(t *testing.T) {
	gate := Gate{MinConfidence: 0.3}

	tests := []struct {
		name       string
		candidate  models.CandidateInsight
		wantOK     bool
		wantStatus models.ValidationStatus
	}{
		{
			name:       "well-formed candidate passes",
			candidate:  models.CandidateInsight{Type: "pattern", Category: "error-handling", Confidence: 0.8},
			wantOK:     true,
			wantStatus: models.ValidationAutoValidated,
		},
		{
			name:       "confidence exactly at the threshold passes",
			candidate:  models.CandidateInsight{Type: "lesson", Category: "testing", Confidence: 0.3},
			wantOK:     true,
			wantStatus: models.ValidationAutoValidated,
		},
		{
			name:      "confidence below the threshold is rejected",
			candidate: models.CandidateInsight{Type: "pattern", Category: "error-handling", Confidence: 0.29},
			wantOK:    false,
		},
		{
			name:      "missing type is rejected",
			candidate: models.CandidateInsight{Category: "error-handling", Confidence: 0.9},
			wantOK:    false,
		},
		{
			name:      "missing category is rejected",
			candidate: models.CandidateInsight{Type: "pattern", Confidence: 0.9},
			wantOK:    false,
		},
		{
			name:      "hallucinated type is rejected",
			candidate: models.CandidateInsight{Type: "prophecy", Category: "architecture", Confidence: 0.9},
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok, reason := gate.Check(tt.candidate)
			if ok != tt.wantOK {
				t.Fatalf("Check() ok = %v (reason %q), want %v", ok, reason, tt.wantOK)
			}
			if ok && status != tt.wantStatus {
				t.Errorf("Check() status = %q, want %q", status, tt.wantStatus)
			}
			if !ok && reason == "" {
				t.Error("Check() rejected without a reason")
			}
		})
	}
}

func TestGateRequireValidation(t *testing.T) {
	gate := Gate{MinConfidence: 0.3, RequireValidation: true}

	status, ok, _ := gate.Check(models.CandidateInsight{Type: "decision", Category: "architecture", Confidence: 0.9})
	if !ok {
		t.Fatal("Check() rejected a well-formed candidate")
	}
	if status != models.ValidationPending {
		t.Errorf("Check() status = %q, want %q", status, models.ValidationPending)
	}
}
