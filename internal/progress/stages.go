package progress

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed stages.toml
var defaultStagesTOML []byte

// Stages labels progress slots by position.
type Stages struct {
	Names    []string
	Fallback string
}

type stagesFile struct {
	Fallback string `toml:"fallback"`
	Stage    []struct {
		Name string `toml:"name"`
	} `toml:"stage"`
}

// ParseStages reads a stage list in the stages.toml format.
func ParseStages(data []byte) (Stages, error) {
	var f stagesFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return Stages{}, fmt.Errorf("parsing stages: %w", err)
	}
	s := Stages{Fallback: f.Fallback}
	for _, st := range f.Stage {
		s.Names = append(s.Names, strings.TrimSpace(st.Name))
	}
	if !strings.Contains(s.Fallback, "%d") {
		s.Fallback = "Step %d"
	}
	return s, nil
}

// DefaultStages returns the five built-in pipeline stages.
func DefaultStages() Stages {
	s, err := ParseStages(defaultStagesTOML)
	if err != nil {
		panic(err)
	}
	return s
}

// Label names slot i (0-based). Positions past the list use the 1-based
// fallback.
func (s Stages) Label(i int) string {
	if i >= 0 && i < len(s.Names) && s.Names[i] != "" {
		return s.Names[i]
	}
	pattern := s.Fallback
	if pattern == "" {
		pattern = "Step %d"
	}
	return fmt.Sprintf(pattern, i+1)
}
