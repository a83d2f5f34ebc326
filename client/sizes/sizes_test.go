package sizes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMMToPx(t *testing.T) {
	assert.Equal(t, 295, MMToPx(25))
	assert.Equal(t, 413, MMToPx(35))
	assert.Equal(t, 531, MMToPx(45))
	assert.Equal(t, 0, MMToPx(0))
}

func TestResolve(t *testing.T) {
	table := DefaultTable()

	s, err := table.Resolve("35x45", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "passport", s.Label)
	w, h := s.Pixels()
	assert.Equal(t, 413, w)
	assert.Equal(t, 531, h)

	s, err = table.Resolve("", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPreset, s.Name)

	s, err = table.Resolve(CustomPreset, 40, 0)
	require.NoError(t, err)
	assert.Equal(t, 40.0, s.WidthMM)
	assert.Equal(t, float64(DefaultHeightMM), s.HeightMM)

	s, err = table.Resolve("50x50", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 50.0, s.HeightMM)

	_, err = table.Resolve("huge", 0, 0)
	assert.ErrorIs(t, err, ErrUnknownPreset)

	_, err = table.Resolve("0x10", 0, 0)
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestResolve_RejectsSubPixelSizes(t *testing.T) {
	table := DefaultTable()

	_, err := table.Resolve(CustomPreset, 0.03, 35)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = table.Resolve(CustomPreset, 25, 0.04)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = table.Resolve("0.01x35", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	s, err := table.Resolve(CustomPreset, 0.05, 0.05)
	require.NoError(t, err)
	w, h := s.Pixels()
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)
}

func TestLoadTable_OverridesAndExtends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sizes.yaml")
	content := `
sizes:
  - name: visa
    label: US visa
    width_mm: 51
    height_mm: 51
  - name: 25x35
    label: one inch
    width_mm: 25
    height_mm: 35
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)

	visa, err := table.Resolve("visa", 0, 0)
	require.NoError(t, err)
	w, h := visa.Pixels()
	assert.Equal(t, 602, w)
	assert.Equal(t, 602, h)

	one, err := table.Resolve("25x35", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "one inch", one.Label)

	assert.Len(t, table.All(), len(defaults())+1)
}

func TestLoadTable_InvalidEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sizes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sizes:\n  - name: bad\n    width_mm: -1\n    height_mm: 10\n"), 0o644))

	_, err := LoadTable(path)

	assert.Error(t, err)
}

func TestLoadTable_EmptyPath(t *testing.T) {
	table, err := LoadTable("")

	require.NoError(t, err)
	assert.Len(t, table.All(), len(defaults()))
}
