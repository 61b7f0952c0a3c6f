package catalog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "\ufeffcode,Chakula,PROCNT,FIB,VITC\n" +
	"1,Mahindi,9.4,7.3,0\n" +
	"2,Mtama,11,,\n" +
	"x1,Broken,1,1,1\n" +
	"3.0,Ulezi,7.3,n/a,NaN\n" +
	"4, Wali ,2.7,0.4,Inf\n"

func TestParse(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleCSV), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"PROCNT", "FIB", "VITC"}, c.Columns())
	assert.Equal(t, 4, c.Len())
	assert.Equal(t, 1, c.Skipped())
	assert.Equal(t, DefaultNameColumn, c.NameColumn())

	rows := c.Rows()
	assert.Equal(t, 1, rows[0].Code)
	assert.Equal(t, "Mahindi", rows[0].Name)
	assert.InDelta(t, 9.4, rows[0].Nutrient("PROCNT"), 1e-9)

	// blanks, malformed numbers, NaN and Inf coerce to 0
	assert.Zero(t, rows[1].Nutrient("FIB"))
	assert.Equal(t, 3, rows[2].Code)
	assert.Zero(t, rows[2].Nutrient("FIB"))
	assert.Zero(t, rows[2].Nutrient("VITC"))
	assert.Equal(t, "Wali", rows[3].Name)
	assert.Zero(t, rows[3].Nutrient("VITC"))
}

func TestParse_CustomNameColumn(t *testing.T) {
	c, err := Parse(strings.NewReader("name,code,FAT\nSiagi,1101,81\n"), "name")
	require.NoError(t, err)

	item, ok := c.ByCode(1101)
	require.True(t, ok)
	assert.Equal(t, "Siagi", item.Name)
	assert.Equal(t, []string{"FAT"}, c.Columns())
}

func TestParse_MissingColumns(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no code", "Chakula,FAT\nSiagi,81\n"},
		{"no name", "code,FAT\n1,81\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.data), "")
			assert.ErrorIs(t, err, ErrMissingColumn)
		})
	}
}

func TestByCode(t *testing.T) {
	c, err := Parse(strings.NewReader("code,Chakula,FIB\n1,Mtama,1\n2,Mtama,2\n2,Nazi,3\n"), "")
	require.NoError(t, err)

	item, ok := c.ByCode(2)
	require.True(t, ok)
	assert.Equal(t, "Mtama", item.Name, "first row with the code")
	assert.Equal(t, 2.0, item.Nutrient("FIB"))

	_, ok = c.ByCode(99)
	assert.False(t, ok)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleCSV), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.WriteCSV(&buf))

	again, err := Parse(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, c.Rows(), again.Rows())
	assert.Equal(t, c.Columns(), again.Columns())
}

func writeCatalog(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
}

func TestHolder_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")
	writeCatalog(t, path, "code,Chakula,FIB\n1,Mtama,1\n")

	h, err := NewHolder(path, "")
	require.NoError(t, err)
	first := h.Get()
	assert.Equal(t, 1, first.Len())

	writeCatalog(t, path, "code,Chakula,FIB\n1,Mtama,1\n2,Ulezi,3\n")
	c, err := h.Reload()
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Same(t, c, h.Get())

	// the old snapshot is untouched
	assert.Equal(t, 1, first.Len())

	// a broken file keeps the current snapshot
	writeCatalog(t, path, "FIB\n1\n")
	_, err = h.Reload()
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.Same(t, c, h.Get())
}

func TestStaticHolder(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleCSV), "")
	require.NoError(t, err)

	h := NewStaticHolder(c)
	assert.Same(t, c, h.Get())
	_, err = h.Reload()
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.csv")
	writeCatalog(t, path, "code,Chakula,FIB\n1,Mtama,1\n")

	h, err := NewHolder(path, "")
	require.NoError(t, err)

	w, err := NewWatcher(h, 20*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeCatalog(t, path, "code,Chakula,FIB\n1,Mtama,1\n2,Ulezi,3\n3,Wali,0\n")

	assert.Eventually(t, func() bool {
		return h.Get().Len() == 3
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewWatcher_RequiresFile(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleCSV), "")
	require.NoError(t, err)

	_, err = NewWatcher(NewStaticHolder(c), 0, zerolog.Nop())
	assert.Error(t, err)
}
