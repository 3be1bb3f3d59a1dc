package vidquota

import (
	"fmt"
	"strings"
)

// Model identifies a supported video-generation model.
type Model string

const (
	ModelSeedance20 Model = "2.0"
	ModelSeedance18 Model = "1.8"
)

// DefaultModel is used when a request does not name a model.
const DefaultModel = ModelSeedance20

// SupportedModels lists every model in display order.
var SupportedModels = []Model{ModelSeedance20, ModelSeedance18}

func (m Model) String() string { return string(m) }

// Valid reports whether m is one of SupportedModels.
func (m Model) Valid() bool {
	for _, s := range SupportedModels {
		if s == m {
			return true
		}
	}
	return false
}

// ProviderName returns the identifier the remote provider expects.
func (m Model) ProviderName() string {
	return "sedance-" + string(m)
}

// ParseModel normalizes a user-supplied model identifier. Surrounding
// whitespace, letter case and a "seedance-"/"sedance-" prefix are ignored.
// An empty identifier resolves to DefaultModel.
func ParseModel(s string) (Model, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, "seedance-")
	norm = strings.TrimPrefix(norm, "sedance-")
	if norm == "" {
		return DefaultModel, nil
	}
	m := Model(norm)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedModel, s)
	}
	return m, nil
}
