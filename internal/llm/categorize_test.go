package llm

import (
	"errors"
	"testing"
)

func TestParseCategorizations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []Categorization
	}{
		{
			name: "single insight with attachments",
			raw: `INSIGHT|pattern|error-handling|retries|0.85
ENTITY|OrderService
TECH|go
TECH|grpc`,
			want: []Categorization{{
				Type: "pattern", Category: "error-handling", Subcategory: "retries",
				Confidence: 0.85, Entities: []string{"OrderService"},
				Technologies: []string{"go", "grpc"}, Method: "llm_categorize",
			}},
		},
		{
			name: "attachments bind to the most recent insight",
			raw: `INSIGHT|lesson|testing|flakiness|0.6
TECH|go
INSIGHT|decision|storage||0.9
TECH|surrealdb`,
			want: []Categorization{
				{Type: "lesson", Category: "testing", Subcategory: "flakiness", Confidence: 0.6,
					Technologies: []string{"go"}, Method: "llm_categorize"},
				{Type: "decision", Category: "storage", Confidence: 0.9,
					Technologies: []string{"surrealdb"}, Method: "llm_categorize"},
			},
		},
		{
			name: "malformed lines are skipped",
			raw: `some preamble the model added
INSIGHT|pattern|caching
INSIGHT|pattern|caching|ttl|not-a-number
INSIGHT|pattern|caching|ttl|0.7
ENTITY|
TECH|redis`,
			want: []Categorization{{
				Type: "pattern", Category: "caching", Subcategory: "ttl", Confidence: 0.7,
				Technologies: []string{"redis"}, Method: "llm_categorize",
			}},
		},
		{
			name: "confidence is clamped to the unit interval",
			raw:  "INSIGHT|lesson|testing||1.4\nINSIGHT|lesson|ci||-0.2",
			want: []Categorization{
				{Type: "lesson", Category: "testing", Confidence: 1, Method: "llm_categorize"},
				{Type: "lesson", Category: "ci", Confidence: 0, Method: "llm_categorize"},
			},
		},
		{
			name: "orphan attachments before any insight are dropped",
			raw:  "TECH|go\nENTITY|Billing",
			want: nil,
		},
		{
			name: "whitespace around fields is trimmed",
			raw:  "INSIGHT| pattern | api-design |  | 0.5 ",
			want: []Categorization{{
				Type: "pattern", Category: "api-design", Confidence: 0.5, Method: "llm_categorize",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategorizations(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d categorizations, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range tt.want {
				g, w := got[i], tt.want[i]
				if g.Type != w.Type || g.Category != w.Category || g.Subcategory != w.Subcategory ||
					g.Confidence != w.Confidence || g.Method != w.Method {
					t.Errorf("categorization %d = %+v, want %+v", i, g, w)
				}
				if len(g.Entities) != len(w.Entities) || len(g.Technologies) != len(w.Technologies) {
					t.Errorf("categorization %d attachments = %v/%v, want %v/%v",
						i, g.Entities, g.Technologies, w.Entities, w.Technologies)
				}
			}
		})
	}
}

func TestWrapInferenceError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantFatal bool
	}{
		{"credit exhaustion is fatal", errors.New("your credit balance is too low"), true},
		{"invalid key is fatal", errors.New("401 invalid api key"), true},
		{"quota is fatal", errors.New("monthly quota exceeded"), true},
		{"timeout is transient", errors.New("context deadline exceeded"), false},
		{"connection reset is transient", errors.New("connection reset by peer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrapInferenceError(tt.err)
			if errors.Is(wrapped, ErrFatalAPI) != tt.wantFatal {
				t.Errorf("errors.Is(ErrFatalAPI) = %v, want %v", !tt.wantFatal, tt.wantFatal)
			}
			if errors.Is(wrapped, ErrInference) == tt.wantFatal {
				t.Errorf("errors.Is(ErrInference) = %v, want %v", tt.wantFatal, !tt.wantFatal)
			}
		})
	}

	if wrapInferenceError(nil) != nil {
		t.Error("wrapInferenceError(nil) != nil")
	}
}
