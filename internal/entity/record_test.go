package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryTypeValid(t *testing.T) {
	assert.True(t, QueryTypeIP.Valid())
	assert.True(t, QueryTypeURL.Valid())
	assert.True(t, QueryTypeFile.Valid())
	assert.False(t, QueryType("").Valid())
	assert.False(t, QueryType("domain").Valid())
	assert.False(t, QueryType("IP").Valid())
}

func TestThreatLevelFromScore(t *testing.T) {
	tests := []struct {
		score    int
		expected string
	}{
		{score: -100, expected: ThreatLevelHigh},
		{score: -1, expected: ThreatLevelHigh},
		{score: 0, expected: ThreatLevelLow},
		{score: 1, expected: ThreatLevelLow},
		{score: 60, expected: ThreatLevelLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ThreatLevelFromScore(tt.score), "score %d", tt.score)
	}
}

func TestValidBlockAction(t *testing.T) {
	assert.True(t, ValidBlockAction(BlockActionBlock))
	assert.True(t, ValidBlockAction(BlockActionUnblock))
	assert.True(t, ValidBlockAction(BlockActionWhitelist))
	assert.False(t, ValidBlockAction(""))
	assert.False(t, ValidBlockAction("ban"))
}
