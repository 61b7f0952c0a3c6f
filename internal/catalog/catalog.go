// Package catalog loads the nutrient catalog and keeps the current snapshot.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/thebtf/lishe/pkg/models"
)

// CodeColumn is the header of the integer food code column.
const CodeColumn = "code"

// DefaultNameColumn is the header of the food name column in the stock catalog.
const DefaultNameColumn = "Chakula"

// ErrMissingColumn is returned when the header lacks the code or name column.
var ErrMissingColumn = errors.New("catalog: required column missing")

// Catalog is an immutable snapshot of the nutrient table.
type Catalog struct {
	LoadedAt   time.Time
	byCode     map[int]int
	Path       string
	nameColumn string
	rows       []models.FoodItem
	columns    []string
	skipped    int
}

// Rows returns catalog rows in file order. Callers must not modify them.
func (c *Catalog) Rows() []models.FoodItem {
	return c.rows
}

// Columns returns the nutrient column names in header order.
func (c *Catalog) Columns() []string {
	return c.columns
}

// Len returns the number of loaded rows.
func (c *Catalog) Len() int {
	return len(c.rows)
}

// Skipped returns how many rows were dropped because their code was not an integer.
func (c *Catalog) Skipped() int {
	return c.skipped
}

// NameColumn returns the header used for food names.
func (c *Catalog) NameColumn() string {
	return c.nameColumn
}

// ByCode finds a row by catalog code. The first row with that code wins.
func (c *Catalog) ByCode(code int) (models.FoodItem, bool) {
	i, ok := c.byCode[code]
	if !ok {
		return models.FoodItem{}, false
	}
	return c.rows[i], true
}

// Load reads a catalog CSV file.
func Load(path, nameColumn string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	c, err := Parse(f, nameColumn)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// Parse reads a catalog from CSV data with a header row.
// Every column other than code and name is a nutrient column.
func Parse(r io.Reader, nameColumn string) (*Catalog, error) {
	if nameColumn == "" {
		nameColumn = DefaultNameColumn
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	codeIdx, nameIdx := -1, -1
	type nutrientCol struct {
		name string
		idx  int
	}
	var nutrients []nutrientCol
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		header[i] = h
		switch {
		case h == CodeColumn && codeIdx < 0:
			codeIdx = i
		case h == nameColumn && nameIdx < 0:
			nameIdx = i
		case h != "":
			nutrients = append(nutrients, nutrientCol{name: h, idx: i})
		}
	}
	if codeIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, CodeColumn)
	}
	if nameIdx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, nameColumn)
	}

	c := &Catalog{
		LoadedAt:   time.Now(),
		byCode:     make(map[int]int),
		nameColumn: nameColumn,
		columns:    make([]string, 0, len(nutrients)),
	}
	for _, n := range nutrients {
		c.columns = append(c.columns, n.name)
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		code, ok := parseCode(field(rec, codeIdx))
		if !ok {
			c.skipped++
			continue
		}

		item := models.FoodItem{
			Code:      code,
			Name:      strings.TrimSpace(field(rec, nameIdx)),
			Nutrients: make(map[string]float64, len(nutrients)),
		}
		for _, n := range nutrients {
			item.Nutrients[n.name] = parseNumber(field(rec, n.idx))
		}

		if _, dup := c.byCode[item.Code]; !dup {
			c.byCode[item.Code] = len(c.rows)
		}
		c.rows = append(c.rows, item)
	}

	return c, nil
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

// parseCode accepts integers and integral floats such as "12.0".
func parseCode(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// parseNumber coerces a cell to float64. Blank, malformed, NaN and infinite values become 0.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// WriteCSV writes the snapshot back out with the code and name columns first.
func (c *Catalog) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := append([]string{CodeColumn, c.nameColumn}, c.columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	rec := make([]string, len(header))
	for _, row := range c.rows {
		rec[0] = strconv.Itoa(row.Code)
		rec[1] = row.Name
		for i, col := range c.columns {
			rec[i+2] = strconv.FormatFloat(row.Nutrient(col), 'f', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
