package router

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyFamilies(t *testing.T) {
	tests := []struct {
		question string
		method   Method
		intent   Intent
	}{
		{"Who is Commissioner Smith?", MethodLocal, IntentEntity},
		{"Tell me about the Biltmore Hotel", MethodLocal, IntentEntity},
		{"What is ordinance 2024-01 about?", MethodLocal, IntentEntity},
		{"What is agenda item E-1?", MethodLocal, IntentEntity},
		{"E.-3. details", MethodLocal, IntentEntity},
		{"What are the main themes in city development?", MethodGlobal, IntentHolistic},
		{"Summarize the commission's work this year", MethodGlobal, IntentHolistic},
		{"What are the trends in spending?", MethodGlobal, IntentHolistic},
		{"Patterns across all meetings", MethodGlobal, IntentHolistic},
		{"How has parking policy changed?", MethodDrift, IntentTemporal},
		{"Give me a timeline of the Gables Station project", MethodDrift, IntentTemporal},
		{"Were there changes in the tree ordinance?", MethodDrift, IntentTemporal},
		{"What happened with the trolley?", MethodDrift, IntentExploratory},
		{"", MethodDrift, IntentExploratory},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			r := Classify(tt.question)
			assert.Equal(t, tt.method, r.Method, r.Reason)
			assert.Equal(t, tt.intent, r.Intent, r.Reason)
			assert.NotEmpty(t, r.Reason)
		})
	}
}

func TestEntityBeatsHolistic(t *testing.T) {
	// Matches the holistic "summarize" family too; entity checks run first.
	r := Classify("Summarize ordinance 2024-01")
	assert.Equal(t, MethodLocal, r.Method)
	assert.Equal(t, []Entity{{Type: EntityOrdinance, Value: "2024-01"}}, r.Entities)

	r = Classify("How has item E-4 changed?")
	assert.Equal(t, MethodLocal, r.Method)
}

func TestWhoIsExtractsCleanName(t *testing.T) {
	r := Classify("Who is Commissioner Smith?")
	assert.Equal(t, []Entity{{Type: EntityPerson, Value: "Smith"}}, r.Entities)
	assert.Equal(t, 10, r.Params.TopKEntities)
}

func TestCommunityLevel(t *testing.T) {
	tests := []struct {
		question string
		level    int
	}{
		{"Summarize the entire year", 0},
		{"What are the overall priorities?", 0},
		{"Summarize all resolutions", 0},
		{"What are the key issues for the police department?", 1},
		{"Trends in district 3", 1},
		{"What are the main themes in city development?", 2},
		{"Summarize smaller initiatives", 2},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			r := Classify(tt.question)
			require.Equal(t, MethodGlobal, r.Method)
			require.NotNil(t, r.Params.CommunityLevel)
			assert.Equal(t, tt.level, *r.Params.CommunityLevel)
		})
	}
}

func TestFollowUpBounds(t *testing.T) {
	assert.Equal(t, 5, Classify("What is the history of the Miracle Mile?").Params.MaxFollowUps)
	assert.Equal(t, 2, Classify("Anything notable lately?").Params.MaxFollowUps)
}

func TestEntityFocus(t *testing.T) {
	tests := []struct {
		question string
		focus    Focus
		topK     int
	}{
		{"What is agenda item E-1?", FocusSpecific, 1},
		{"Tell me about E-1", FocusSpecific, 1},
		{"Which documents are related to E-1 and linked through the zoning context?", FocusContextual, 10},
		{"What are E-1 and E-2?", FocusMultiple, 1},
		{"Compare E-1 and E-2", FocusComparison, 5},
		{"E-1 vs E-2", FocusComparison, 5},
		{"How do E-1 and E-2 relate?", FocusContextual, 10},
		{"What is the relationship between E-1 and E-2?", FocusContextual, 10},
		{"Show me E-1, E-2, and E-3 separately", FocusMultiple, 1},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			r := Classify(tt.question)
			require.Equal(t, MethodLocal, r.Method)
			assert.Equal(t, tt.focus, r.Focus)
			assert.Equal(t, tt.topK, r.Params.TopKEntities)
		})
	}
}

func TestExtractEntities(t *testing.T) {
	got := ExtractEntities("Did item E1 pass with Resolution No. 2024-05, and what about F.-10 and 2023-45?")
	assert.Equal(t, []Entity{
		{Type: EntityAgendaItem, Value: "E-1"},
		{Type: EntityResolution, Value: "2024-05"},
		{Type: EntityAgendaItem, Value: "F-10"},
		{Type: EntityDocument, Value: "2023-45"},
	}, got)

	assert.Empty(t, ExtractEntities("COVID-19 relief programs"))
	assert.Equal(t, []Entity{{Type: EntityAgendaItem, Value: "E-1"}}, ExtractEntities("E-1 and again E-1"))
}

func TestRouteAccessors(t *testing.T) {
	r := Classify("Compare E-2 with Ordinance 2024-01")
	assert.Equal(t, []string{"E-2"}, r.Codes())
	assert.Equal(t, []string{"2024-01"}, r.DocumentNumbers())
}

func TestParamsJSONOmitsZero(t *testing.T) {
	data, err := json.Marshal(Classify("Summarize the entire year").Params)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"community_level": 0,
		"response_type": "multiple paragraphs",
		"track_sources": true,
		"include_source_metadata": true,
		"citation_style": "inline"
	}`, string(data))
}
