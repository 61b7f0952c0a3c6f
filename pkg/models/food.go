// Package models contains domain models for lishe.
package models

// FoodItem is one immutable row of the nutrient catalog.
// Nutrient values that were missing or non-numeric in the source are stored as 0.
type FoodItem struct {
	Nutrients map[string]float64 `json:"nutrients,omitempty"`
	Name      string             `json:"name"`
	Code      int                `json:"code"`
}

// Nutrient returns the value of a nutrient column, or 0 when the column is absent.
func (f FoodItem) Nutrient(column string) float64 {
	return f.Nutrients[column]
}

// CodeRange is an inclusive range of catalog codes.
type CodeRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Contains reports whether code falls inside the range.
func (r CodeRange) Contains(code int) bool {
	return code >= r.Start && code <= r.End
}

// FoodGroup is a named bucket of catalog rows selected by code range.
type FoodGroup struct {
	Code   string      `json:"code" yaml:"code"`
	Name   string      `json:"name" yaml:"name"`
	Ranges []CodeRange `json:"ranges" yaml:"ranges"`
}

// Contains reports whether code belongs to any of the group's ranges.
func (g FoodGroup) Contains(code int) bool {
	for _, r := range g.Ranges {
		if r.Contains(code) {
			return true
		}
	}
	return false
}

// HealthGoal maps a goal name to the nutrient columns that drive its score.
type HealthGoal struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
}

// Highlight columns reported next to each recommended food.
const (
	ColumnProtein  = "PROCNT"
	ColumnFiber    = "FIB"
	ColumnOmega3   = "FAPU"
	ColumnVitaminC = "VITC"
	ColumnEnergy   = "ENERGY_KC"
)

// NutrientHighlights is the short nutrient summary shown for a recommended food.
type NutrientHighlights struct {
	ProteinG   float64 `json:"protein_g"`
	FiberG     float64 `json:"fiber_g"`
	Omega3G    float64 `json:"omega3_g"`
	VitaminCMg float64 `json:"vitamin_c_mg"`
	CaloriesKc float64 `json:"calories_kc"`
}

// HighlightsOf extracts the highlight columns from a catalog row.
func HighlightsOf(item FoodItem) NutrientHighlights {
	return NutrientHighlights{
		ProteinG:   item.Nutrient(ColumnProtein),
		FiberG:     item.Nutrient(ColumnFiber),
		Omega3G:    item.Nutrient(ColumnOmega3),
		VitaminCMg: item.Nutrient(ColumnVitaminC),
		CaloriesKc: item.Nutrient(ColumnEnergy),
	}
}
