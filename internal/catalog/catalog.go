// Package catalog describes the video generation models the pipeline
// accepts: which models exist, which clip durations each supports, and
// which output resolutions are available.
package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// Static errors for catalog validation.
var (
	// ErrUnknownModel is returned when a model is not in the catalog.
	ErrUnknownModel = errors.New("catalog: unknown model")
	// ErrUnknownResolution is returned when a resolution is not supported.
	ErrUnknownResolution = errors.New("catalog: unknown resolution")
)

// DefaultModel is used when a submission does not name a model.
const DefaultModel = "sora-2"

// DefaultResolution is used when a submission does not name a resolution.
const DefaultResolution = "720x1280"

// Model describes one generation model.
type Model struct {
	// Name is the provider-facing model identifier.
	Name string
	// Durations is the set of allowed clip durations in seconds, ascending.
	Durations []int
}

// models is the known model set. Durations must stay sorted ascending.
var models = map[string]Model{
	"sora-2":     {Name: "sora-2", Durations: []int{4, 8, 12}},
	"sora-2-pro": {Name: "sora-2-pro", Durations: []int{4, 8, 12}},
}

// resolutions is the set of accepted output resolutions ("WxH").
var resolutions = map[string]bool{
	"720x1280":  true,
	"1280x720":  true,
	"1024x1792": true,
	"1792x1024": true,
}

// Lookup returns the model definition for name.
func Lookup(name string) (Model, error) {
	m, ok := models[name]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// ValidModel reports whether name is a known model.
func ValidModel(name string) bool {
	_, ok := models[name]
	return ok
}

// ValidResolution reports whether res is a supported "WxH" resolution.
func ValidResolution(res string) bool {
	return resolutions[res]
}

// SnapDuration snaps a requested duration to the nearest allowed value
// less than or equal to it. Requests below the model's minimum receive
// the minimum; the result never exceeds the request when the request is
// at or above the minimum.
func SnapDuration(model string, requested int) (int, error) {
	m, err := Lookup(model)
	if err != nil {
		return 0, err
	}

	allowed := m.Durations
	if requested <= allowed[0] {
		return allowed[0], nil
	}

	// Largest allowed value <= requested.
	i := sort.SearchInts(allowed, requested)
	if i < len(allowed) && allowed[i] == requested {
		return requested, nil
	}
	return allowed[i-1], nil
}

// Names returns the known model names, sorted.
func Names() []string {
	out := make([]string, 0, len(models))
	for name := range models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
