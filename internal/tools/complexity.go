package tools

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Level is a complexity grade.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

func (l Level) rank() int {
	switch l {
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

// Thresholds used by Assess.
const (
	HighChanges       = 500
	MediumChanges     = 200
	HighFiles         = 10
	MediumFiles       = 5
	DiverseExtensions = 3
)

// Complexity is the derived grade with the reasons that produced it.
type Complexity struct {
	Level   Level    `json:"level"`
	Reasons []string `json:"reasons"`
}

// raise escalates to l. It never lowers the current level.
func (c *Complexity) raise(l Level, reason string) {
	if l.rank() > c.Level.rank() {
		c.Level = l
	}
	c.Reasons = append(c.Reasons, reason)
}

// Assess grades a change from its line count, file count and extension
// histogram.
func Assess(totalChanges, filesChanged int, fileTypes map[string]int) Complexity {
	c := Complexity{Level: LevelLow, Reasons: []string{}}

	switch {
	case totalChanges > HighChanges:
		c.raise(LevelHigh, fmt.Sprintf("Large number of changes: %d lines", totalChanges))
	case totalChanges > MediumChanges:
		c.raise(LevelMedium, fmt.Sprintf("Moderate number of changes: %d lines", totalChanges))
	}

	switch {
	case filesChanged > HighFiles:
		c.raise(LevelHigh, fmt.Sprintf("Many files changed: %d files", filesChanged))
	case filesChanged > MediumFiles:
		c.raise(LevelMedium, fmt.Sprintf("Multiple files changed: %d files", filesChanged))
	}

	if len(fileTypes) > DiverseExtensions {
		exts := make([]string, 0, len(fileTypes))
		for ext := range fileTypes {
			exts = append(exts, ext)
		}
		sort.Strings(exts)
		c.raise(LevelMedium, fmt.Sprintf("Multiple file types affected: %s", strings.Join(exts, ", ")))
	}

	return c
}

// FileExtension returns the text after the last dot of the file name,
// or "no_extension".
func FileExtension(p string) string {
	base := path.Base(p)
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return "no_extension"
	}
	return base[i+1:]
}
