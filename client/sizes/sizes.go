// Package sizes converts physical photo sizes to pixel dimensions.
package sizes

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// PixelsPerMM is 300 dpi expressed per millimetre.
const PixelsPerMM = 11.81

const (
	DefaultWidthMM  = 25
	DefaultHeightMM = 35
	DefaultPreset   = "25x35"
	CustomPreset    = "custom"
)

var (
	ErrUnknownPreset = errors.New("unknown size preset")
	ErrInvalidSize   = errors.New("size is smaller than one pixel")
)

type Size struct {
	Name     string  `yaml:"name"`
	Label    string  `yaml:"label"`
	WidthMM  float64 `yaml:"width_mm"`
	HeightMM float64 `yaml:"height_mm"`
}

// Pixels returns the target canvas size.
func (s Size) Pixels() (width, height int) {
	return MMToPx(s.WidthMM), MMToPx(s.HeightMM)
}

func MMToPx(mm float64) int {
	return int(math.Round(mm * PixelsPerMM))
}

type Table struct {
	sizes map[string]Size
}

func defaults() []Size {
	return []Size{
		{Name: "25x35", Label: "1 inch", WidthMM: 25, HeightMM: 35},
		{Name: "22x32", Label: "small 1 inch", WidthMM: 22, HeightMM: 32},
		{Name: "33x48", Label: "large 1 inch", WidthMM: 33, HeightMM: 48},
		{Name: "35x49", Label: "2 inch", WidthMM: 35, HeightMM: 49},
		{Name: "35x53", Label: "large 2 inch", WidthMM: 35, HeightMM: 53},
		{Name: "35x45", Label: "passport", WidthMM: 35, HeightMM: 45},
	}
}

func DefaultTable() *Table {
	t := &Table{sizes: make(map[string]Size)}
	for _, s := range defaults() {
		t.sizes[s.Name] = s
	}
	return t
}

type fileFormat struct {
	Sizes []Size `yaml:"sizes"`
}

// LoadTable returns the default table extended by the YAML file at path.
// Entries in the file replace defaults of the same name. An empty path
// yields the defaults.
func LoadTable(path string) (*Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sizes file: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sizes file: %w", err)
	}

	for _, s := range f.Sizes {
		if s.Name == "" || s.WidthMM <= 0 || s.HeightMM <= 0 {
			return nil, fmt.Errorf("invalid size entry %+v", s)
		}
		t.sizes[s.Name] = s
	}
	return t, nil
}

// Resolve returns the named preset, or for "custom" a size built from
// widthMM x heightMM (each falling back to 25x35 when not positive).
// Names of the form "WxH" are accepted even when not in the table.
// A size that rounds to zero pixels on either axis is rejected.
func (t *Table) Resolve(name string, widthMM, heightMM float64) (Size, error) {
	s, err := t.lookup(name, widthMM, heightMM)
	if err != nil {
		return Size{}, err
	}
	if w, h := s.Pixels(); w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("%w: %gx%g mm is %dx%d px", ErrInvalidSize, s.WidthMM, s.HeightMM, w, h)
	}
	return s, nil
}

func (t *Table) lookup(name string, widthMM, heightMM float64) (Size, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultPreset
	}

	if name == CustomPreset {
		if widthMM <= 0 {
			widthMM = DefaultWidthMM
		}
		if heightMM <= 0 {
			heightMM = DefaultHeightMM
		}
		return Size{Name: CustomPreset, WidthMM: widthMM, HeightMM: heightMM}, nil
	}

	if s, ok := t.sizes[name]; ok {
		return s, nil
	}

	w, h, ok := parseDims(name)
	if !ok {
		return Size{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return Size{Name: name, WidthMM: w, HeightMM: h}, nil
}

// All returns the presets ordered by name.
func (t *Table) All() []Size {
	out := make([]Size, 0, len(t.sizes))
	for _, s := range t.sizes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func parseDims(name string) (float64, float64, bool) {
	ws, hs, found := strings.Cut(strings.ToLower(name), "x")
	if !found {
		return 0, 0, false
	}
	w, err := strconv.ParseFloat(ws, 64)
	if err != nil || w <= 0 {
		return 0, 0, false
	}
	h, err := strconv.ParseFloat(hs, 64)
	if err != nil || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
