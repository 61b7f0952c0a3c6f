// Package scoring ranks catalog foods against a health goal.
package scoring

import (
	"math"
	"sort"

	"github.com/thebtf/lishe/pkg/models"
)

// Catalog is the read-only view of the nutrient catalog the engine needs.
type Catalog interface {
	Rows() []models.FoodItem
	Columns() []string
}

// Engine computes per-group food rankings.
// It holds only the reference tables; every call is a pure function of its inputs.
type Engine struct {
	tables *Tables
}

// NewEngine creates a new ranking engine.
// If tables is nil, uses the built-in goal and group tables.
func NewEngine(tables *Tables) *Engine {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Engine{tables: tables}
}

// Tables returns the reference tables used by the engine.
func (e *Engine) Tables() *Tables {
	return e.tables
}

// RankedFood is one scored catalog row.
type RankedFood struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Code  int     `json:"code"`
}

// GroupResult is the ranking for one requested group.
type GroupResult struct {
	Group string       `json:"group"`
	Foods []RankedFood `json:"foods"`
}

// Result is the output of one Recommend call, in request order.
type Result struct {
	Goal    string        `json:"goal"`
	Columns []string      `json:"columns"`
	Groups  []GroupResult `json:"groups"`
}

// Names projects the result to food names per group.
func (r Result) Names() models.GroupFoodsList {
	out := make(models.GroupFoodsList, 0, len(r.Groups))
	for _, g := range r.Groups {
		names := make([]string, 0, len(g.Foods))
		for _, f := range g.Foods {
			names = append(names, f.Name)
		}
		out = append(out, models.GroupFoods{Group: g.Group, Foods: names})
	}
	return out
}

// Group returns the ranking for a group code.
func (r Result) Group(code string) (GroupResult, bool) {
	for _, g := range r.Groups {
		if g.Group == code {
			return g, true
		}
	}
	return GroupResult{}, false
}

// ScoringColumns resolves a goal to the scoring columns present in the catalog.
// Goal order is kept. Unknown goals resolve to no columns.
func (e *Engine) ScoringColumns(catalog Catalog, goal string) []string {
	g, ok := e.tables.Goal(goal)
	if !ok {
		return nil
	}
	present := make(map[string]bool)
	for _, c := range catalog.Columns() {
		present[c] = true
	}
	seen := make(map[string]bool, len(g.Columns))
	cols := make([]string, 0, len(g.Columns))
	for _, c := range g.Columns {
		if present[c] && !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	return cols
}

// Recommend ranks foods of each requested group by the goal's scoring columns.
//
// For every group the result holds at most topN foods, highest score first.
// Ties keep catalog order. Unknown group codes yield an empty list; duplicate
// codes are collapsed. topN <= 0 yields empty lists.
func (e *Engine) Recommend(catalog Catalog, goal string, groupCodes []string, topN int) Result {
	columns := e.ScoringColumns(catalog, goal)
	rows := catalog.Rows()

	result := Result{Goal: goal, Columns: columns}
	seen := make(map[string]bool, len(groupCodes))
	for _, code := range groupCodes {
		if seen[code] {
			continue
		}
		seen[code] = true

		gr := GroupResult{Group: code, Foods: []RankedFood{}}
		group, ok := e.tables.Group(code)
		if ok && topN > 0 {
			gr.Foods = rankGroup(rows, group, columns, topN)
		}
		result.Groups = append(result.Groups, gr)
	}
	return result
}

func rankGroup(rows []models.FoodItem, group models.FoodGroup, columns []string, topN int) []RankedFood {
	var ranked []RankedFood
	for _, row := range rows {
		if !group.Contains(row.Code) {
			continue
		}
		ranked = append(ranked, RankedFood{
			Code:  row.Code,
			Name:  row.Name,
			Score: Score(row, columns),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	if ranked == nil {
		ranked = []RankedFood{}
	}
	return ranked
}

// Score sums the item's values across columns. Missing, NaN and infinite values count as 0.
func Score(item models.FoodItem, columns []string) float64 {
	total := 0.0
	for _, c := range columns {
		v := item.Nutrient(c)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		total += v
	}
	return total
}
