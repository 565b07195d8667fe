// Package suite discovers the Robot Framework suites of a run.
package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Ext is the extension of suite files.
const Ext = ".robot"

// initStem marks suite initialisation files, which are never run on their own.
const initStem = "__init__"

// Suite is one unit of scheduling.
type Suite struct {
	// File is the file name handed to the runner, relative to the tests directory.
	File string

	// Name is File without its extension, e.g. "Login_Flow".
	Name string
}

// New builds a Suite from a file name.
func New(file string) Suite {
	base := filepath.Base(file)
	return Suite{
		File: base,
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
	}
}

// DisplayName is Name with underscores replaced by spaces, the form used in
// rewritten screenshot names, e.g. "Login Flow".
func (s Suite) DisplayName() string {
	return strings.ReplaceAll(s.Name, "_", " ")
}

// Discover lists the suites of dir in lexicographic file name order.
// Only regular *.robot files count, __init__ files are skipped.
func Discover(dir string) ([]Suite, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading tests directory: %w", err)
	}

	var suites []Suite
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != Ext || strings.HasPrefix(name, initStem) {
			continue
		}
		suites = append(suites, New(name))
	}

	sort.Slice(suites, func(i, j int) bool { return suites[i].File < suites[j].File })
	return suites, nil
}

// Single returns the suite for an explicitly selected file, after checking
// that it exists.
func Single(path string) (Suite, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Suite{}, fmt.Errorf("reading suite file: %w", err)
	}
	if info.IsDir() {
		return Suite{}, fmt.Errorf("suite file %s is a directory", path)
	}
	return New(path), nil
}
