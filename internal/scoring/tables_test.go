package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTables(t *testing.T) {
	tables := DefaultTables()
	require.NoError(t, tables.Validate())

	assert.Len(t, tables.Goals, 10)
	assert.Len(t, tables.Groups, 14)

	g, ok := tables.Goal("Kuongeza Kinga")
	require.True(t, ok)
	assert.Equal(t, []string{"VITC", "VITA", "A_VITA", "VITD", "ZN", "CU", "FE", "MFP_FE"}, g.Columns)

	d1, ok := tables.Group("D1")
	require.True(t, ok)
	assert.True(t, d1.Contains(201))
	assert.True(t, d1.Contains(350))
	assert.False(t, d1.Contains(275))

	_, ok = tables.Goal("kuongeza kinga")
	assert.False(t, ok, "goal lookup is exact")
}

func TestParseTables(t *testing.T) {
	t.Run("overrides goals and keeps default groups", func(t *testing.T) {
		data := []byte(`
goals:
  - name: Nguvu
    columns: [ENERGY_KC, FAT]
`)
		tables, err := ParseTables(data)
		require.NoError(t, err)

		require.Len(t, tables.Goals, 1)
		assert.Equal(t, "Nguvu", tables.Goals[0].Name)
		assert.Len(t, tables.Groups, 14)
	})

	t.Run("overrides groups", func(t *testing.T) {
		data := []byte(`
groups:
  - code: X
    name: Test
    ranges:
      - {start: 1, end: 10}
      - {start: 20, end: 30}
`)
		tables, err := ParseTables(data)
		require.NoError(t, err)

		x, ok := tables.Group("X")
		require.True(t, ok)
		assert.True(t, x.Contains(25))
		assert.Len(t, tables.Goals, 10)
	})

	t.Run("rejects inverted range", func(t *testing.T) {
		data := []byte(`
groups:
  - code: X
    ranges:
      - {start: 10, end: 1}
`)
		_, err := ParseTables(data)
		assert.ErrorContains(t, err, "range start")
	})

	t.Run("rejects goal without columns", func(t *testing.T) {
		_, err := ParseTables([]byte("goals:\n  - name: Tupu\n"))
		assert.ErrorContains(t, err, "no scoring columns")
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		_, err := ParseTables([]byte("goals: [unclosed"))
		assert.Error(t, err)
	})
}

func TestLoadTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("goals:\n  - name: A\n    columns: [FIB]\n"), 0o600))

	tables, err := LoadTables(path)
	require.NoError(t, err)
	require.Len(t, tables.Goals, 1)
	assert.Equal(t, "A", tables.Goals[0].Name)

	_, err = LoadTables(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
