// internal/diff/diff.go

// Package diff renders line diffs between two artifact snapshots. The repo's
// Diff operation returns raw content pairs; this engine turns them into
// something a human can read in the CLI.
package diff

import (
	"bytes"
	"fmt"
)

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// Line is a single line of diff output.
type Line struct {
	Type    LineType
	Content string
}

// Result holds the computed diff and its summary counts.
type Result struct {
	Lines     []Line
	Additions int
	Deletions int
}

// Changed reports whether the two inputs differed at all.
func (r *Result) Changed() bool {
	return r.Additions > 0 || r.Deletions > 0
}

// Compare computes a line diff between two contents using a longest common
// subsequence walk.
func Compare(oldContent, newContent []byte) *Result {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	lcs := computeLCS(oldLines, newLines)

	// Walk the matrix from the end, collecting lines in reverse.
	var reversed []Line
	i, j := len(oldLines), len(newLines)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && bytes.Equal(oldLines[i-1], newLines[j-1]):
			reversed = append(reversed, Line{Type: Context, Content: string(oldLines[i-1])})
			i--
			j--
		case j > 0 && (i == 0 || lcs[i][j-1] >= lcs[i-1][j]):
			reversed = append(reversed, Line{Type: Addition, Content: string(newLines[j-1])})
			j--
		default:
			reversed = append(reversed, Line{Type: Deletion, Content: string(oldLines[i-1])})
			i--
		}
	}

	result := &Result{Lines: make([]Line, 0, len(reversed))}
	for k := len(reversed) - 1; k >= 0; k-- {
		line := reversed[k]
		switch line.Type {
		case Addition:
			result.Additions++
		case Deletion:
			result.Deletions++
		}
		result.Lines = append(result.Lines, line)
	}
	return result
}

func splitLines(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}
	return bytes.Split(bytes.TrimSuffix(content, []byte{'\n'}), []byte{'\n'})
}

func computeLCS(oldLines, newLines [][]byte) [][]int {
	matrix := make([][]int, len(oldLines)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(newLines)+1)
	}

	for i := 1; i <= len(oldLines); i++ {
		for j := 1; j <= len(newLines); j++ {
			if bytes.Equal(oldLines[i-1], newLines[j-1]) {
				matrix[i][j] = matrix[i-1][j-1] + 1
			} else {
				matrix[i][j] = max(matrix[i-1][j], matrix[i][j-1])
			}
		}
	}

	return matrix
}

// Format returns the diff as plain text with +/- prefixes.
func (r *Result) Format() string {
	var buf bytes.Buffer
	for _, line := range r.Lines {
		switch line.Type {
		case Addition:
			buf.WriteString("+ ")
		case Deletion:
			buf.WriteString("- ")
		case Context:
			buf.WriteString("  ")
		}
		buf.WriteString(line.Content)
		buf.WriteString("\n")
	}
	fmt.Fprintf(&buf, "(%d additions, %d deletions)\n", r.Additions, r.Deletions)
	return buf.String()
}
