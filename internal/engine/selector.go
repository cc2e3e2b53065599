package engine

import (
	"fmt"
	"path"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/melih-ucgun/graft/internal/types"
)

// selectorEnv is what a When expression can see about a change.
type selectorEnv struct {
	Path        string `expr:"path"`
	Dir         string `expr:"dir"`
	Ext         string `expr:"ext"`
	Operation   string `expr:"operation"`
	ContentType string `expr:"contentType"`
	Size        int    `expr:"size"`
}

func envFor(c types.GeneratedChange) selectorEnv {
	p := strings.TrimPrefix(path.Clean("/"+c.FilePath), "/")
	ct := c.ContentType
	if ct == "" {
		ct = types.ContentFull
	}
	return selectorEnv{
		Path:        p,
		Dir:         path.Dir(p),
		Ext:         path.Ext(p),
		Operation:   string(c.Operation),
		ContentType: string(ct),
		Size:        len(c.Content),
	}
}

// Selector decides which changes of a batch are processed.
type Selector struct {
	allow   map[string]bool
	program *vm.Program
}

// NewSelector compiles when and indexes filter. Both may be empty.
//
//	operation == "DELETE" && dir startsWith "legacy"
//	ext in [".go", ".mod"]
func NewSelector(filter []string, when string) (*Selector, error) {
	s := &Selector{allow: allowSet(filter)}
	if strings.TrimSpace(when) == "" {
		return s, nil
	}
	program, err := expr.Compile(when, expr.Env(selectorEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid when expression %q: %w", when, err)
	}
	s.program = program
	return s, nil
}

// Match reports whether c passes the allow-list and the expression.
func (s *Selector) Match(c types.GeneratedChange) (bool, error) {
	if s.allow != nil && !s.allow[c.FilePath] {
		return false, nil
	}
	if s.program == nil {
		return true, nil
	}
	out, err := expr.Run(s.program, envFor(c))
	if err != nil {
		return false, fmt.Errorf("evaluate when for %s: %w", c.FilePath, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Filter returns the matching changes in their original order.
func (s *Selector) Filter(changes []types.GeneratedChange) ([]types.GeneratedChange, error) {
	if s.allow == nil && s.program == nil {
		return changes, nil
	}
	out := make([]types.GeneratedChange, 0, len(changes))
	for _, c := range changes {
		ok, err := s.Match(c)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}
