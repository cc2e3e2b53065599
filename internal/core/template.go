package core

import (
	"bytes"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// ExecuteTemplate renders content against data with the sprig function map
// plus the record helpers below. Used by the CLI --template flags; data is
// usually a record or a slice of records.
//
// Records are structs, so a misspelled field already fails at execution.
// missingkey=error extends that to map data instead of printing "<no value>".
func ExecuteTemplate(content string, data interface{}) (string, error) {
	tmpl, err := template.New("graft").Funcs(recordFuncs()).Option("missingkey=error").Parse(content)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func recordFuncs() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["shortID"] = shortID
	funcs["elapsed"] = elapsed
	return funcs
}

// shortID trims a UUID to its first group.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// elapsed is the run time of a record; empty while it has no CompletedAt.
func elapsed(start time.Time, end *time.Time) string {
	if end == nil {
		return ""
	}
	return end.Sub(start).Round(time.Millisecond).String()
}
