package scoring

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/thebtf/lishe/pkg/models"
	"gopkg.in/yaml.v3"
)

// Tables holds the health-goal and food-group reference tables.
// Slices keep the display order; lookups go through the index maps.
type Tables struct {
	goalIdx  map[string]int
	groupIdx map[string]int
	Goals    []models.HealthGoal `yaml:"goals"`
	Groups   []models.FoodGroup  `yaml:"groups"`
}

// NewTables indexes goals and groups. Later duplicates replace earlier entries.
func NewTables(goals []models.HealthGoal, groups []models.FoodGroup) *Tables {
	t := &Tables{Goals: goals, Groups: groups}
	t.reindex()
	return t
}

func (t *Tables) reindex() {
	t.goalIdx = make(map[string]int, len(t.Goals))
	for i, g := range t.Goals {
		t.goalIdx[g.Name] = i
	}
	t.groupIdx = make(map[string]int, len(t.Groups))
	for i, g := range t.Groups {
		t.groupIdx[g.Code] = i
	}
}

// Goal looks up a health goal by exact name.
func (t *Tables) Goal(name string) (models.HealthGoal, bool) {
	i, ok := t.goalIdx[name]
	if !ok {
		return models.HealthGoal{}, false
	}
	return t.Goals[i], true
}

// Group looks up a food group by code.
func (t *Tables) Group(code string) (models.FoodGroup, bool) {
	i, ok := t.groupIdx[code]
	if !ok {
		return models.FoodGroup{}, false
	}
	return t.Groups[i], true
}

// Validate checks every goal and group entry.
func (t *Tables) Validate() error {
	if len(t.Goals) == 0 {
		return errors.New("no health goals defined")
	}
	if len(t.Groups) == 0 {
		return errors.New("no food groups defined")
	}
	for i, g := range t.Goals {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("goal %d: empty name", i)
		}
		if len(g.Columns) == 0 {
			return fmt.Errorf("goal %q: no scoring columns", g.Name)
		}
	}
	for i, g := range t.Groups {
		if strings.TrimSpace(g.Code) == "" {
			return fmt.Errorf("group %d: empty code", i)
		}
		if len(g.Ranges) == 0 {
			return fmt.Errorf("group %q: no code ranges", g.Code)
		}
		for _, r := range g.Ranges {
			if r.Start > r.End {
				return fmt.Errorf("group %q: range start %d > end %d", g.Code, r.Start, r.End)
			}
		}
	}
	return nil
}

// LoadTables reads goal and group tables from a YAML file.
// A section missing from the file falls back to the built-in table.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables file: %w", err)
	}
	return ParseTables(data)
}

// ParseTables decodes YAML table data. See LoadTables.
func ParseTables(data []byte) (*Tables, error) {
	var raw struct {
		Goals  []models.HealthGoal `yaml:"goals"`
		Groups []models.FoodGroup  `yaml:"groups"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tables: %w", err)
	}

	def := DefaultTables()
	if len(raw.Goals) == 0 {
		raw.Goals = def.Goals
	}
	if len(raw.Groups) == 0 {
		raw.Groups = def.Groups
	}

	t := NewTables(raw.Goals, raw.Groups)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func ranges(pairs ...int) []models.CodeRange {
	out := make([]models.CodeRange, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.CodeRange{Start: pairs[i], End: pairs[i+1]})
	}
	return out
}

// DefaultTables returns the built-in reference tables.
func DefaultTables() *Tables {
	goals := []models.HealthGoal{
		{Name: "Kudhibiti Kolesteroli", Columns: []string{"FASAT", "FAMS", "FAPU", "CHOLE", "FAT"}},
		{Name: "Kudhibiti Sukari", Columns: []string{"CHOCDF", "SUCS", "FIB"}},
		{Name: "Kupunguza Uzito", Columns: []string{"ENERGY_KC", "PROCNT", "FAT", "CHOCDF", "FIB"}},
		{Name: "Kuongeza Misuli", Columns: []string{"PROCNT", "A_PROTEI", "MFP_PROT", "LEU", "ILE", "LYS", "VAL", "ARG"}},
		{Name: "Kuongeza Stamina", Columns: []string{"ENERGY_KC", "PROCNT", "FAT", "CHOCDF", "VIT B6", "MG", "K"}},
		{Name: "Usagaji Bora", Columns: []string{"FIB", "PHYTAC", "NA", "K", "MG"}},
		{Name: "Kuongeza Kinga", Columns: []string{"VITC", "VITA", "A_VITA", "VITD", "ZN", "CU", "FE", "MFP_FE"}},
		{Name: "Afya ya Mifupa", Columns: []string{"CA", "P", "MG", "VITD"}},
		{Name: "Afya ya Moyo", Columns: []string{"FASAT", "FAMS", "FAPU", "NA", "K", "CHOLE", "PROCNT"}},
		{Name: "Afya ya Ubongo", Columns: []string{"FE", "VIT B12", "FOL", "VIT B6", "ILE", "LEU", "LYS", "TYR", "PHE", "ENERGY_KC"}},
	}

	groups := []models.FoodGroup{
		{Code: "A1", Name: "Nafaka na bidhaa za nafaka", Ranges: ranges(1, 100)},
		{Code: "A2", Name: "Vyakula vyenye asili ya nafaka", Ranges: ranges(501, 550)},
		{Code: "B1", Name: "Mizizi, Viazi na Ndizi", Ranges: ranges(351, 400)},
		{Code: "B2", Name: "Asili ya Mizizi, Viazi na Ndizi", Ranges: ranges(951, 1000)},
		{Code: "C1", Name: "Maharage, Njugu, Mbegu", Ranges: ranges(151, 200)},
		{Code: "C2", Name: "Asili ya maharage na mbegu", Ranges: ranges(651, 700)},
		{Code: "D1", Name: "Nyama, Kuku, Samaki", Ranges: ranges(201, 250, 301, 350)},
		{Code: "D2", Name: "Asili ya wanyama/ndege", Ranges: ranges(551, 600)},
		{Code: "D3", Name: "Maziwa na Bidhaa", Ranges: ranges(251, 300)},
		{Code: "E", Name: "Mafuta", Ranges: ranges(1101, 1150)},
		{Code: "F1", Name: "Matunda & Juisi", Ranges: ranges(101, 150)},
		{Code: "F2", Name: "Juisi za Matunda", Ranges: ranges(601, 650)},
		{Code: "F3", Name: "Mboga", Ranges: ranges(401, 450)},
		{Code: "F4", Name: "Asili ya mboga", Ranges: ranges(751, 800)},
	}

	return NewTables(goals, groups)
}
