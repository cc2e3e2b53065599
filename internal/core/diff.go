package core

import (
	"bytes"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// GenerateDiff renders a line-level preview of going from current to desired,
// with git-style file headers. Unchanged lines are kept as context.
func GenerateDiff(name, current, desired string) string {
	if current == desired {
		return ""
	}
	dmp := diffmatchpatch.New()

	a, b, c := dmp.DiffLinesToChars(current, desired)
	diffs := dmp.DiffMain(a, b, false)
	result := dmp.DiffCharsToLines(diffs, c)

	var buff bytes.Buffer
	buff.WriteString("--- a/" + name + "\n")
	buff.WriteString("+++ b/" + name + "\n")
	for _, diff := range result {
		prefix := " "
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.SplitAfter(diff.Text, "\n") {
			if line == "" {
				continue
			}
			buff.WriteString(prefix + strings.TrimSuffix(line, "\n") + "\n")
		}
	}
	return buff.String()
}
