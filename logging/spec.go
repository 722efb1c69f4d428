package logging

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Spec is a base level with optional per-component overrides.
//
// Format: "<base-level>[,<component>=<level>]..."
//
// Examples:
//   - "warn" - base level warn
//   - "warn,loader=debug" - base warn, loader at debug
//   - "info,loader=debug,kernel=trace" - multiple overrides
type Spec struct {
	BaseLevel  Level
	Components map[string]Level
}

// ParseSpec parses a log specification. An empty string yields base
// level def with no overrides; so does a spec holding only component
// overrides, for its base.
func ParseSpec(s string, def Level) (Spec, error) {
	spec := Spec{
		BaseLevel:  def,
		Components: make(map[string]Level),
	}

	for i, part := range strings.Split(strings.TrimSpace(s), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		component, levelStr, ok := strings.Cut(part, "=")
		if !ok {
			if i != 0 {
				return spec, fmt.Errorf("base level %q must be first in spec", part)
			}
			level, err := ParseLevel(part)
			if err != nil {
				return spec, err
			}
			spec.BaseLevel = level
			continue
		}

		component = strings.TrimSpace(component)
		if component == "" {
			return spec, fmt.Errorf("empty component name in %q", part)
		}
		level, err := ParseLevel(levelStr)
		if err != nil {
			return spec, fmt.Errorf("invalid level for component %q: %w", component, err)
		}
		spec.Components[component] = level
	}

	return spec, nil
}

// LevelFor returns the effective level for a component.
func (s *Spec) LevelFor(component string) Level {
	if level, ok := s.Components[component]; ok {
		return level
	}
	return s.BaseLevel
}

// String returns the spec in parseable form with components sorted
// by name.
func (s *Spec) String() string {
	parts := []string{s.BaseLevel.String()}
	for _, component := range slices.Sorted(maps.Keys(s.Components)) {
		parts = append(parts, component+"="+s.Components[component].String())
	}
	return strings.Join(parts, ",")
}
