package domain

import "slices"

type LevelRef struct {
	Level   BudgetLevel
	LevelID string
}

// HierarchyPath names the budget owners an agent's spend rolls up to.
// Empty ids and levels listed in Skip are not enforced.
type HierarchyPath struct {
	AgentID      string
	TeamID       string
	DepartmentID string
	Skip         []BudgetLevel
}

func (p HierarchyPath) ID(level BudgetLevel) string {
	switch level {
	case LevelAgent:
		return p.AgentID
	case LevelTeam:
		return p.TeamID
	case LevelDepartment:
		return p.DepartmentID
	}
	return ""
}

// Levels returns the enforced levels, most specific first.
func (p HierarchyPath) Levels() []LevelRef {
	refs := make([]LevelRef, 0, len(LevelOrder))
	for _, level := range LevelOrder {
		id := p.ID(level)
		if id == "" || slices.Contains(p.Skip, level) {
			continue
		}
		refs = append(refs, LevelRef{Level: level, LevelID: id})
	}
	return refs
}
