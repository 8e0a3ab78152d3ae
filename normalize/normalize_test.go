package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"E-1", "E-1"},
		{"E.-1.", "E-1"},
		{"E.-1", "E-1"},
		{"E.1", "E-1"},
		{"E1", "E-1"},
		{"E-1.", "E-1"},
		{" E-12 ", "E-12"},
		{"Item E-1", "E-1"},
		{"Item E1", "E-1"},
		{"(Agenda Item: E-1)", "E-1"},
		{"(Agenda Item: E.-1.)", "E-1"},
		{"F.-10.", "F-10"},
		{"e-2", "E-2"},
		{"e.-1.", "E-1"},
		{"e - 1", "E-1"},
		{"Item e1", "E-1"},
		{"covid-19", "covid-19"},
		{"no code here", "no code here"},
		{"2024-01", "2024-01"},
		{"COVID-19", "COVID-19"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.raw))
		})
	}
}

func TestCodeIdempotent(t *testing.T) {
	for _, raw := range []string{"E.-1.", "E1", "e - 1", "Item F-3", "(Agenda Item: K.2)", "H-10", "nothing"} {
		once := Code(raw)
		assert.Equal(t, once, Code(once), "Code not idempotent for %q", raw)
	}
}

func TestCodeEquivalenceClass(t *testing.T) {
	assert.Equal(t, "E-1", Code("E.-1."))
	assert.Equal(t, Code("E.-1."), Code("E-1"))
	assert.Equal(t, Code("E-1"), Code("E1"))
	assert.Equal(t, Code("E-1"), Code("e.-1."))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("E-1"))
	assert.True(t, Valid("K-12"))
	assert.False(t, Valid("E1"))
	assert.False(t, Valid("e-1"))
	assert.False(t, Valid("2-1"))
}

func TestItemCodes(t *testing.T) {
	tests := []struct {
		info string
		want []string
	}{
		{"F-7 and F-10", []string{"F-7", "F-10"}},
		{"2-1 AND 2-2", []string{"2-1", "2-2"}},
		{"E-5 E-6 E-7 E-8", []string{"E-5", "E-6", "E-7", "E-8"}},
		{"E-1, E.2, E3", []string{"E-1", "E-2", "E-3"}},
		{"H-1 and H-1", []string{"H-1"}},
		{"Public Comment", nil},
	}
	for _, tt := range tests {
		t.Run(tt.info, func(t *testing.T) {
			assert.Equal(t, tt.want, ItemCodes(tt.info))
		})
	}
}

func TestMeetingDate(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"01.09.2024", "2024-01-09"},
		{"1.9.2024", "2024-01-09"},
		{"01_09_2024", "2024-01-09"},
		{"01-09-2024", "2024-01-09"},
		{"1/9/2024", "2024-01-09"},
		{"2024-01-09", "2024-01-09"},
		{"2024-1-9", "2024-01-09"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			d, err := MeetingDate(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.ISO())
		})
	}
}

func TestMeetingDateRejects(t *testing.T) {
	for _, raw := range []string{"", "yesterday", "13.01.2024", "02.30.2024", "2024/01/09"} {
		_, err := MeetingDate(raw)
		assert.ErrorIs(t, err, ErrInvalidDate, raw)
	}
}

func TestDateRenderings(t *testing.T) {
	d, err := NewDate(2024, 1, 9)
	require.NoError(t, err)
	assert.Equal(t, "01.09.2024", d.Dotted())
	assert.Equal(t, "01_09_2024", d.Underscore())
	assert.Equal(t, "01-09-2024", d.Dashed())
	assert.Equal(t, "2024-01-09", d.String())
}

func TestDateJSON(t *testing.T) {
	type wrapper struct {
		Date Date `json:"date"`
	}
	d, _ := NewDate(2024, 2, 13)
	b, err := json.Marshal(wrapper{Date: d})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-02-13"}`, string(b))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"date":"02.13.2024"}`), &w))
	assert.Equal(t, d, w.Date)
}
