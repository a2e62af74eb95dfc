// Package patterns provides shared regex patterns and helper functions for telegram parsing.
// This file contains the grok-style pattern compiler.

package patterns

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// Format represents a telegram field format with named capture groups.
type Format struct {
	Name     string         // Format name for identification
	Pattern  string         // Pattern with {PLACEHOLDER} syntax
	Compiled *regexp.Regexp // Compiled regex (populated by Compile)
	Fields   []string       // Field names in capture order (for documentation)
}

// Compiler manages pattern compilation and matching for a set of formats.
//
// Unlike a first-match parser, every format is addressed by name: telegram
// fields are independent probes over the same text.
type Compiler struct {
	basePatterns map[string]string
	formats      []Format
	byName       map[string]int
}

// NewCompiler returns a compiler for formats. localPatterns are laid over
// BasePatterns, so a format set can redefine a placeholder.
func NewCompiler(formats []Format, localPatterns map[string]string) *Compiler {
	c := &Compiler{
		basePatterns: maps.Clone(BasePatterns),
		formats:      slices.Clone(formats),
		byName:       make(map[string]int, len(formats)),
	}
	maps.Copy(c.basePatterns, localPatterns)

	for i, f := range c.formats {
		c.byName[f.Name] = i
	}
	return c
}

// Compile expands placeholders and compiles every format. The first bad
// pattern aborts with its format name.
func (c *Compiler) Compile() error {
	for i := range c.formats {
		f := &c.formats[i]
		re, err := regexp.Compile(c.expand(f.Pattern))
		if err != nil {
			return fmt.Errorf("compile format %s: %w", f.Name, err)
		}
		f.Compiled = re
	}
	return nil
}

// expand substitutes {NAME} placeholders. Base patterns must not contain
// placeholders themselves.
func (c *Compiler) expand(pattern string) string {
	for name, re := range c.basePatterns {
		pattern = strings.ReplaceAll(pattern, "{"+name+"}", re)
	}
	return pattern
}

// Match represents a successful pattern match with extracted fields.
type Match struct {
	FormatName string            // Name of the matched format
	Captures   map[string]string // Named capture group values
}

// format returns the compiled format with the given name, or nil.
func (c *Compiler) format(name string) *Format {
	i, ok := c.byName[name]
	if !ok || c.formats[i].Compiled == nil {
		return nil
	}
	return &c.formats[i]
}

// Find returns the first (leftmost) match of the named format, or nil.
// Text is matched as-is; telegram markers are case-sensitive.
func (c *Compiler) Find(text, formatName string) *Match {
	f := c.format(formatName)
	if f == nil {
		return nil
	}

	match := f.Compiled.FindStringSubmatch(text)
	if match == nil {
		return nil
	}

	return &Match{
		FormatName: f.Name,
		Captures:   captures(f.Compiled, match),
	}
}

// FindAllMatches finds all occurrences of a pattern in text, in textual order.
// Useful for patterns that can match multiple times (e.g. waypoints, time marks).
func (c *Compiler) FindAllMatches(text string, formatName string) []map[string]string {
	f := c.format(formatName)
	if f == nil {
		return nil
	}

	var results []map[string]string
	for _, match := range f.Compiled.FindAllStringSubmatch(text, -1) {
		results = append(results, captures(f.Compiled, match))
	}
	return results
}

func captures(re *regexp.Regexp, match []string) map[string]string {
	out := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		out[name] = match[i]
	}
	return out
}

// GetCapture is a helper to safely get a capture value with a default.
func (m *Match) GetCapture(name string, defaultVal string) string {
	if m == nil {
		return defaultVal
	}
	if val, ok := m.Captures[name]; ok && val != "" {
		return val
	}
	return defaultVal
}

// FormatTrace contains debug information about a format match attempt.
type FormatTrace struct {
	Name     string              // Format name
	Matched  bool                // Whether the pattern matched at least once
	Pattern  string              // The expanded regex pattern
	Captures []map[string]string // Captured groups for every occurrence
}

// Trace runs every format over text and reports what each one captured.
// This is useful for debugging why a telegram field came out empty.
func (c *Compiler) Trace(text string) []FormatTrace {
	traces := make([]FormatTrace, 0, len(c.formats))

	for _, format := range c.formats {
		ft := FormatTrace{
			Name:    format.Name,
			Pattern: c.expand(format.Pattern),
		}

		if format.Compiled != nil {
			for _, match := range format.Compiled.FindAllStringSubmatch(text, -1) {
				ft.Captures = append(ft.Captures, captures(format.Compiled, match))
			}
			ft.Matched = len(ft.Captures) > 0
		}

		traces = append(traces, ft)
	}

	return traces
}
