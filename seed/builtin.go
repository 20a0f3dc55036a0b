package seed

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
)

// =============================================================================
// BUILT-IN SCENARIOS
// =============================================================================

//go:embed scenarios/*.yaml
var builtinFS embed.FS

// ErrUnknownScenario is returned for an ID no built-in scenario has.
var ErrUnknownScenario = errors.New("unknown scenario")

// Info describes a scenario without its data.
type Info struct {
	ID          string
	Name        string
	Description string
}

// Builtins parses every embedded scenario, sorted by ID.
func Builtins() ([]*Scenario, error) {
	entries, err := fs.Glob(builtinFS, "scenarios/*.yaml")
	if err != nil {
		return nil, err
	}
	scenarios := make([]*Scenario, 0, len(entries))
	for _, name := range entries {
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		s, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path.Base(name), err)
		}
		scenarios = append(scenarios, s)
	}
	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ID < scenarios[j].ID })
	return scenarios, nil
}

// Builtin returns the embedded scenario with the given ID.
func Builtin(id string) (*Scenario, error) {
	all, err := Builtins()
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
}

// List describes the embedded scenarios.
func List() ([]Info, error) {
	all, err := Builtins()
	if err != nil {
		return nil, err
	}
	infos := make([]Info, len(all))
	for i, s := range all {
		infos[i] = Info{ID: s.ID, Name: s.Name, Description: s.Description}
	}
	return infos, nil
}
