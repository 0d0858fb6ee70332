package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		want    MessageRange
		wantErr bool
	}{
		{in: "1-40", want: MessageRange{Start: 1, End: 40}},
		{in: " 7 - 10 ", want: MessageRange{Start: 7, End: 10}},
		{in: "3-3", want: MessageRange{Start: 3, End: 3}},
		{in: "0-4", wantErr: true},
		{in: "5-4", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1-x", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) MessageRange {
	t.Helper()
	r, err := ParseRange(s)
	require.NoError(t, err)
	return r
}

func TestEncodeContent_EmptyListsAsArrays(t *testing.T) {
	data, err := EncodeContent(Content{Summary: "s"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"s","importantTopics":[],"keyFacts":[],"preferences":[],"context":""}`, string(data))
}

func TestRecord_SummaryTextAndCoveredEnd(t *testing.T) {
	r := Record{Content: mustEncode(t, Content{Summary: "hello"}), SourceMessageRange: "3-8"}
	assert.Equal(t, "hello", r.SummaryText())
	assert.Equal(t, 8, r.CoveredEnd())
	assert.Equal(t, "", r.AgentIDValue())

	legacy := Record{Content: datatypes.JSON(`not json`), SourceMessageRange: "broken"}
	assert.Equal(t, "not json", legacy.SummaryText())
	assert.Equal(t, 0, legacy.CoveredEnd())

	agent := "a1"
	r.AgentID = &agent
	assert.Equal(t, "a1", r.AgentIDValue())
}

func TestMemoryType_Valid(t *testing.T) {
	assert.True(t, TypeSummary.Valid())
	assert.True(t, TypeImportant.Valid())
	assert.False(t, MemoryType("other").Valid())
}
