package compressor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelProfile carries the per-model knobs referenced by the budget formula.
type ModelProfile struct {
	MaxContextTokens          int     `yaml:"max_context_tokens"`
	OptimalIntelligenceTokens int     `yaml:"optimal_intelligence_tokens"`
	CompressionTolerance      float64 `yaml:"compression_tolerance"`
}

// Dictionary is the compressor's loaded model-profile and abbreviation
// configuration, versioned per spec.md §9 so a change to the abbreviation
// map is always a deliberate, traceable edit.
type Dictionary struct {
	ModelProfiles map[string]ModelProfile `yaml:"model_profiles"`
	Version       int                     `yaml:"abbreviation_dictionary_version"`
	Abbreviations map[string]string       `yaml:"abbreviations"`
}

// LoadDictionary reads the model profile and abbreviation dictionary from
// the YAML file at path (config.Config.ModelsConfigPath).
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models config %s: %w", path, err)
	}
	var d Dictionary
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse models config %s: %w", path, err)
	}
	if _, ok := d.ModelProfiles["default"]; !ok {
		return nil, fmt.Errorf("models config %s missing required 'default' profile", path)
	}
	return &d, nil
}

// Profile returns the profile for model, falling back to "default" for any
// unrecognized model name.
func (d *Dictionary) Profile(model string) ModelProfile {
	if p, ok := d.ModelProfiles[model]; ok {
		return p
	}
	return d.ModelProfiles["default"]
}

// Abbreviate returns the dictionary's short code for key, or key itself
// when no abbreviation is defined.
func (d *Dictionary) Abbreviate(key string) string {
	if a, ok := d.Abbreviations[key]; ok {
		return a
	}
	return key
}
