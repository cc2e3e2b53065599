// Package patch applies unified diffs to file content.
//
// Diffs handed to the engine are frequently produced against a base that no
// longer matches the file on disk. Resolve therefore runs in two stages: a
// strict structural apply, and when that fails, a lossy reconstruction from
// the added lines only. The Result always records which stage produced the
// content so callers can report it.
package patch

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/melih-ucgun/graft/internal/types"
)

var (
	// ErrPatchFailed is returned when a hunk no longer matches the current content.
	ErrPatchFailed = fmt.Errorf("%w: hunk does not match current content", types.ErrPatch)
	// ErrMalformed is returned when the diff text cannot be parsed.
	ErrMalformed = fmt.Errorf("%w: malformed diff", types.ErrPatch)
	// ErrNoHunks is returned when the diff text contains no hunk at all.
	ErrNoHunks = fmt.Errorf("%w: no hunks found in diff", types.ErrPatch)
	// ErrMultiFile is returned when the diff edits more than one file.
	// Neither stage of Resolve accepts it.
	ErrMultiFile = fmt.Errorf("%w: diff touches more than one file", ErrMalformed)
)

// Stage identifies the path that produced Result.Content.
type Stage string

const (
	StagePatched   Stage = "PATCHED"
	StageExtracted Stage = "EXTRACTED"
)

// Result is the outcome of Resolve or Apply.
type Result struct {
	Content string
	Stage   Stage
	// Hunks is the number of hunks in the diff.
	Hunks int
	// Cause is the structural apply error that triggered the extraction fallback.
	Cause error
}

var hunkHeader = regexp.MustCompile(`^@@ -\d+(,\d+)? \+\d+(,\d+)? @@`)

// LooksLikeDiff reports whether content is shaped like a unified diff:
// it carries a hunk header, or a ---/+++ file header pair.
func LooksLikeDiff(content string) bool {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if hunkHeader.MatchString(line) {
			return true
		}
		if strings.HasPrefix(line, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ ") {
			return true
		}
	}
	return false
}

// Resolve applies diffText to current, falling back to ExtractAddedLines when
// the structural apply fails. An error is returned only when both stages fail;
// it wraps types.ErrPatch.
func Resolve(current, diffText string) (Result, error) {
	res, err := Apply(current, diffText)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, ErrMultiFile) {
		return Result{}, err
	}

	content, extractErr := ExtractAddedLines(diffText)
	if extractErr != nil {
		return Result{Cause: err}, fmt.Errorf("%w (after apply failed: %v)", extractErr, err)
	}
	return Result{
		Content: content,
		Stage:   StageExtracted,
		Hunks:   res.Hunks,
		Cause:   err,
	}, nil
}

// Apply structurally applies every hunk of diffText to current.
// It fails with ErrPatchFailed as soon as a hunk's context and removed lines
// cannot be located in the content.
func Apply(current, diffText string) (Result, error) {
	hunks, err := parse(diffText)
	if err != nil {
		return Result{}, err
	}
	if len(hunks) == 0 {
		return Result{}, ErrNoHunks
	}

	lines, sep, eol := splitLines(current)
	out := make([]string, 0, len(lines))
	cursor, offset := 0, 0

	for i, h := range hunks {
		ph, err := readHunk(h)
		if err != nil {
			return Result{Hunks: len(hunks)}, fmt.Errorf("hunk %d: %w", i+1, err)
		}

		declared := int(h.OrigStartLine) - 1
		if len(ph.old) == 0 {
			// Pure insertion: the header names the line after which to insert.
			declared = int(h.OrigStartLine)
		}
		pos, ok := locate(lines, ph.old, declared+offset, cursor)
		if !ok {
			return Result{Hunks: len(hunks)}, fmt.Errorf("%w: hunk %d (-%d,%d)", ErrPatchFailed, i+1, h.OrigStartLine, h.OrigLines)
		}

		out = append(out, lines[cursor:pos]...)
		out = append(out, ph.new...)
		cursor = pos + len(ph.old)
		offset = pos - declared

		if cursor == len(lines) && ph.endsOnNewSide {
			eol = ph.trailingNewline
		}
	}
	out = append(out, lines[cursor:]...)

	return Result{
		Content: joinLines(out, sep, eol),
		Stage:   StagePatched,
		Hunks:   len(hunks),
	}, nil
}

// ExtractAddedLines concatenates the added lines of every hunk, in order, with
// the leading '+' stripped, joined by newlines. Context and removed lines are
// ignored, so the result is only an approximation for diffs that edit the
// middle of a file.
func ExtractAddedLines(diffText string) (string, error) {
	hunks, err := parse(diffText)
	if errors.Is(err, ErrMultiFile) {
		return "", err
	}
	if err != nil {
		// The parser is strict; the reconstruction must not be.
		added, found := scanAddedLines(diffText)
		if !found {
			return "", fmt.Errorf("%w: %v", ErrNoHunks, err)
		}
		return strings.Join(added, "\n"), nil
	}
	if len(hunks) == 0 {
		return "", ErrNoHunks
	}

	var added []string
	for _, h := range hunks {
		for _, line := range bodyLines(h.Body) {
			if strings.HasPrefix(line, "+") {
				added = append(added, line[1:])
			}
		}
	}
	return strings.Join(added, "\n"), nil
}

// parse accepts either a single-file diff with ---/+++ headers or bare hunks.
func parse(diffText string) ([]*diff.Hunk, error) {
	text := sanitize(diffText)
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoHunks
	}

	if hasFileHeader(text) {
		fileDiffs, err := diff.ParseMultiFileDiff([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		var hunks []*diff.Hunk
		touched := 0
		for _, fd := range fileDiffs {
			if len(fd.Hunks) == 0 {
				continue
			}
			touched++
			hunks = fd.Hunks
		}
		if touched > 1 {
			return nil, fmt.Errorf("%w: %d files", ErrMultiFile, touched)
		}
		return hunks, nil
	}

	hunks, err := diff.ParseHunks([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return hunks, nil
}

// sanitize drops markdown fences and any preamble before the first header.
func sanitize(diffText string) string {
	var kept []string
	started := false
	scanner := bufio.NewScanner(strings.NewReader(diffText))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.HasPrefix(line, "```") {
			continue
		}
		if !started {
			if !strings.HasPrefix(line, "diff ") && !strings.HasPrefix(line, "--- ") && !hunkHeader.MatchString(line) {
				continue
			}
			started = true
		}
		kept = append(kept, line)
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, "\n") + "\n"
}

func hasFileHeader(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if hunkHeader.MatchString(line) {
			return false
		}
		if strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "diff ") {
			return true
		}
	}
	return false
}

// scanAddedLines is a tolerant scan used when the parser rejects the text.
// Any line starting with "@@" opens a hunk, including headers without ranges.
func scanAddedLines(diffText string) ([]string, bool) {
	var added []string
	inHunk, found := false, false
	lines := strings.Split(diffText, "\n")
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, "@@"):
			inHunk, found = true, true
		case strings.HasPrefix(line, "diff "):
			inHunk = false
		case strings.HasPrefix(line, "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ "):
			inHunk = false
		case inHunk && strings.HasPrefix(line, "+"):
			added = append(added, line[1:])
		}
	}
	return added, found
}

type parsedHunk struct {
	old, new        []string
	endsOnNewSide   bool
	trailingNewline bool
}

func readHunk(h *diff.Hunk) (parsedHunk, error) {
	var ph parsedHunk
	body := string(h.Body)
	ph.trailingNewline = strings.HasSuffix(body, "\n")

	var last byte
	for _, line := range bodyLines(h.Body) {
		if line == "" {
			// Some generators strip the single space of blank context lines.
			ph.old = append(ph.old, "")
			ph.new = append(ph.new, "")
			last = ' '
			continue
		}
		switch line[0] {
		case ' ':
			ph.old = append(ph.old, line[1:])
			ph.new = append(ph.new, line[1:])
		case '-':
			ph.old = append(ph.old, line[1:])
		case '+':
			ph.new = append(ph.new, line[1:])
		case '\\':
			continue
		default:
			return ph, fmt.Errorf("%w: unexpected line %q", ErrMalformed, line)
		}
		last = line[0]
	}
	ph.endsOnNewSide = last == ' ' || last == '+'
	return ph, nil
}

func bodyLines(body []byte) []string {
	s := strings.TrimSuffix(string(body), "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return lines
}

// locate finds where old occurs in lines, preferring the position closest to
// want and never before floor.
func locate(lines, old []string, want, floor int) (int, bool) {
	maxPos := len(lines) - len(old)
	if maxPos < floor {
		return 0, false
	}
	if want < floor {
		want = floor
	}
	if want > maxPos {
		want = maxPos
	}
	for d := 0; want-d >= floor || want+d <= maxPos; d++ {
		if p := want + d; p <= maxPos && matchAt(lines, old, p) {
			return p, true
		}
		if p := want - d; d > 0 && p >= floor && matchAt(lines, old, p) {
			return p, true
		}
	}
	return 0, false
}

func matchAt(lines, old []string, pos int) bool {
	for i, l := range old {
		if lines[pos+i] != l {
			return false
		}
	}
	return true
}

// splitLines returns the lines of content without terminators, the line
// separator the content uses, and whether it ends with one. The separator is
// taken from the first line break.
func splitLines(content string) ([]string, string, bool) {
	if content == "" {
		return nil, "\n", true
	}
	sep := "\n"
	if i := strings.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		sep = "\r\n"
	}
	eol := strings.HasSuffix(content, "\n")
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if sep == "\r\n" {
		for i := range lines {
			lines[i] = strings.TrimSuffix(lines[i], "\r")
		}
	}
	return lines, sep, eol
}

func joinLines(lines []string, sep string, eol bool) string {
	if len(lines) == 0 {
		return ""
	}
	s := strings.Join(lines, sep)
	if eol {
		s += sep
	}
	return s
}

// IsPatchFailure reports whether err came from a hunk mismatch rather than a
// parse problem.
func IsPatchFailure(err error) bool {
	return errors.Is(err, ErrPatchFailed)
}
