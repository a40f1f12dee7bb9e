// Package rules defines the ticket shape and number range of a tambola game.
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules describes the number range and ticket layout.
//
// Invariant (after Validate): every column spans at least Rows values, so a
// column can always be filled top to bottom without repeats.
type Rules struct {
	// MinValue and MaxValue bound the drawable numbers, inclusive.
	MinValue int `yaml:"min_value"`
	MaxValue int `yaml:"max_value"`
	// Rows and Columns give the ticket grid shape.
	Rows    int `yaml:"rows"`
	Columns int `yaml:"columns"`
	// PerRow is how many cells of each row hold a number.
	PerRow int `yaml:"per_row"`
}

// Default returns classic 90-ball tambola rules: 3×9 tickets, 5 numbers per row.
func Default() Rules {
	return Rules{
		MinValue: 1,
		MaxValue: 90,
		Rows:     3,
		Columns:  9,
		PerRow:   5,
	}
}

// Span returns the count of drawable values.
func (r Rules) Span() int {
	return r.MaxValue - r.MinValue + 1
}

// ColumnWidth returns how many consecutive values map to one column.
func (r Rules) ColumnWidth() int {
	return (r.Span() + r.Columns - 1) / r.Columns
}

// Column returns the ticket column that value belongs to.
//
// Precondition: MinValue <= value <= MaxValue.
// Postcondition: Returns a column in [0, Columns).
func (r Rules) Column(value int) int {
	c := (value - r.MinValue) / r.ColumnWidth()
	if c >= r.Columns {
		c = r.Columns - 1
	}
	return c
}

// ColumnValues returns the ascending values that belong to column c.
func (r Rules) ColumnValues(c int) []int {
	var out []int
	for v := r.MinValue; v <= r.MaxValue; v++ {
		if r.Column(v) == c {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks all rule invariants.
//
// Postcondition: Returns nil if the rules can produce tickets, or an error describing all violations.
func (r Rules) Validate() error {
	var errs []string
	// Zero marks a blank ticket cell.
	if r.MinValue < 1 {
		errs = append(errs, fmt.Sprintf("min_value must be >= 1, got %d", r.MinValue))
	}
	if r.MaxValue < r.MinValue {
		errs = append(errs, fmt.Sprintf("max_value %d must be >= min_value %d", r.MaxValue, r.MinValue))
	}
	if r.Rows < 1 {
		errs = append(errs, fmt.Sprintf("rows must be >= 1, got %d", r.Rows))
	}
	if r.Columns < 1 {
		errs = append(errs, fmt.Sprintf("columns must be >= 1, got %d", r.Columns))
	}
	if r.PerRow < 1 || r.PerRow > r.Columns {
		errs = append(errs, fmt.Sprintf("per_row must be in [1, columns], got %d", r.PerRow))
	}
	if len(errs) == 0 {
		for c := 0; c < r.Columns; c++ {
			if n := len(r.ColumnValues(c)); n < r.Rows {
				errs = append(errs, fmt.Sprintf("column %d holds %d values, needs at least rows=%d", c, n, r.Rows))
			}
		}
	}
	if len(errs) > 0 {
		return errors.New("invalid rules: " + strings.Join(errs, "; "))
	}
	return nil
}

// Load reads rules from a YAML file. Keys absent from the file keep their
// Default values.
//
// Precondition: path must be a readable YAML file.
// Postcondition: Returns valid Rules or a non-nil error.
func Load(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading %s: %w", path, err)
	}
	r := Default()
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parsing rules file %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return Rules{}, fmt.Errorf("rules file %s: %w", path, err)
	}
	return r, nil
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (Rules, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
