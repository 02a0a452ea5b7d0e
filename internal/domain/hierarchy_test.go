package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHierarchyPathLevels(t *testing.T) {
	tests := []struct {
		name string
		path HierarchyPath
		want []LevelRef
	}{
		{
			name: "full path most specific first",
			path: HierarchyPath{AgentID: "a", TeamID: "t", DepartmentID: "d"},
			want: []LevelRef{{LevelAgent, "a"}, {LevelTeam, "t"}, {LevelDepartment, "d"}},
		},
		{
			name: "missing team",
			path: HierarchyPath{AgentID: "a", DepartmentID: "d"},
			want: []LevelRef{{LevelAgent, "a"}, {LevelDepartment, "d"}},
		},
		{
			name: "skipped agent",
			path: HierarchyPath{AgentID: "a", TeamID: "t", Skip: []BudgetLevel{LevelAgent}},
			want: []LevelRef{{LevelTeam, "t"}},
		},
		{
			name: "empty",
			path: HierarchyPath{},
			want: []LevelRef{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.path.Levels())
		})
	}
}

func TestDirectionSigned(t *testing.T) {
	assert.Equal(t, int64(10), DirectionDebit.Signed(10))
	assert.Equal(t, int64(-10), DirectionCredit.Signed(10))
	assert.Equal(t, DirectionCredit, DirectionDebit.Opposite())
}

func TestCurrencyIsValid(t *testing.T) {
	assert.True(t, Currency("USD").IsValid())
	assert.False(t, Currency("usd").IsValid())
	assert.False(t, Currency("US").IsValid())
	assert.False(t, Currency("").IsValid())
}
