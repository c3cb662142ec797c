// internal/bundle/parser.go
package bundle

import (
	"strings"
)

const fence = "```"

// Parse scans source for change blocks and returns them in source order.
//
// A change block is a metadata fence holding "operation:" and "file_path:"
// lines, followed (for every operation except Delete) by the next
// fence-delimited region, whose interior is the new content. Malformed
// blocks are dropped silently, never reported: a block with no closing
// fence, or missing either metadata line, yields no change record.
func Parse(source []byte, sourcePath string) *ChangeSet {
	text := string(source)
	changes := []Change{}
	cursor := 0

	for {
		meta, next, ok := nextRegion(text, cursor)
		if !ok {
			break
		}
		cursor = next

		op, rawOp, path, ok := parseMetadata(meta)
		if !ok {
			continue // Not a metadata fence; skip
		}

		change := Change{Op: op, RawOp: rawOp, Path: path}

		if op != OpDelete {
			body, next, ok := nextRegion(text, cursor)
			if !ok {
				// No terminated content region after the metadata
				// fence: the whole block is dropped.
				break
			}
			cursor = next
			change.NewContent = []byte(stripLeadingNewline(body))
		}

		changes = append(changes, change)
	}

	return &ChangeSet{Changes: changes, SourcePath: sourcePath}
}

// nextRegion returns the interior of the next fence-delimited region at or
// after cursor, and the cursor position just past its closing fence. The
// search is first-match-after-cursor; nothing is counted globally, so
// fence-like text inside an already-consumed region can never shift later
// blocks.
func nextRegion(text string, cursor int) (interior string, next int, ok bool) {
	open := strings.Index(text[cursor:], fence)
	if open < 0 {
		return "", len(text), false
	}
	open += cursor + len(fence)

	close := strings.Index(text[open:], fence)
	if close < 0 {
		return "", len(text), false
	}
	close += open

	return text[open:close], close + len(fence), true
}

// parseMetadata extracts the operation and file_path lines from a metadata
// fence interior. Both are required; the file path is trimmed of surrounding
// whitespace and the operation token is the first word after the colon.
func parseMetadata(meta string) (op Op, rawOp, path string, ok bool) {
	for _, line := range strings.Split(meta, "\n") {
		line = strings.TrimSpace(line)
		if value, found := strings.CutPrefix(line, "operation:"); found {
			rawOp = firstWord(strings.TrimSpace(value))
		} else if value, found := strings.CutPrefix(line, "file_path:"); found {
			path = strings.TrimSpace(value)
		}
	}

	if rawOp == "" || path == "" {
		return "", "", "", false
	}

	switch {
	case strings.EqualFold(rawOp, "create"):
		op = OpCreate
	case strings.EqualFold(rawOp, "modify"):
		op = OpModify
	case strings.EqualFold(rawOp, "delete"):
		op = OpDelete
	default:
		op = OpUnknown
	}
	return op, rawOp, path, true
}

// firstWord returns the leading run of word characters, matching the
// operation token shape.
func firstWord(s string) string {
	for i, r := range s {
		wordChar := r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9')
		if !wordChar {
			return s[:i]
		}
	}
	return s
}

// stripLeadingNewline removes exactly one newline immediately following the
// opening fence marker. All other whitespace, including trailing newlines,
// is preserved verbatim.
func stripLeadingNewline(s string) string {
	if strings.HasPrefix(s, "\r\n") {
		return s[2:]
	}
	if strings.HasPrefix(s, "\n") {
		return s[1:]
	}
	return s
}
