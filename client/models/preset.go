package models

// RemovalPreset is a named set of server-side removal parameters. Presets are
// managed elsewhere; the client only selects one by ID when submitting.
type RemovalPreset struct {
	ID              int
	Name            string
	Model           string
	MaxSize         int
	UseAlphaMatting bool
	AlphaForeground int
	AlphaBackground int
	AlphaErode      int
	IsDefault       bool
	Description     string
}
