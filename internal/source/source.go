// Package source resolves an execution id to the ordered list of changes
// produced for it.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/melih-ucgun/graft/internal/types"
)

// Manifest is the on-disk form of an execution.
//
//	executionId: exec-42
//	changes:
//	  - filePath: src/main.go
//	    operation: MODIFY
//	    contentType: DIFF
//	    content: |
//	      @@ -1,1 +1,1 @@
//	      ...
type Manifest struct {
	ExecutionID string                  `yaml:"executionId" json:"executionId"`
	Changes     []types.GeneratedChange `yaml:"changes" json:"changes"`
}

var manifestExts = []string{".yaml", ".yml", ".json"}

// ManifestSource reads executions from <Dir>/<executionID>.yaml|.yml|.json.
type ManifestSource struct {
	Dir string
}

func NewManifestSource(dir string) *ManifestSource {
	return &ManifestSource{Dir: dir}
}

// Changes loads and validates the manifest of executionID.
func (s *ManifestSource) Changes(ctx context.Context, executionID string) ([]types.GeneratedChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if executionID == "" || strings.ContainsAny(executionID, `/\`) || executionID == "." || executionID == ".." {
		return nil, fmt.Errorf("source: invalid execution id %q", executionID)
	}

	for _, ext := range manifestExts {
		path := filepath.Join(s.Dir, executionID+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("source: %w: read %s: %v", types.ErrIO, path, err)
		}
		m, err := ParseManifest(data)
		if err != nil {
			return nil, fmt.Errorf("source: %s: %w", path, err)
		}
		if m.ExecutionID != "" && m.ExecutionID != executionID {
			return nil, fmt.Errorf("source: %s declares execution %q, expected %q", path, m.ExecutionID, executionID)
		}
		return m.Changes, nil
	}
	return nil, fmt.Errorf("source: execution %s: %w", executionID, types.ErrNotFound)
}

// ParseManifest decodes a YAML or JSON manifest and checks every change.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	for i := range m.Changes {
		if err := normalize(&m.Changes[i]); err != nil {
			return nil, fmt.Errorf("change %d: %w", i+1, err)
		}
	}
	return &m, nil
}

func normalize(c *types.GeneratedChange) error {
	if strings.TrimSpace(c.FilePath) == "" {
		return errors.New("filePath is required")
	}
	c.FilePath = filepath.ToSlash(filepath.Clean(c.FilePath))

	c.Operation = types.Operation(strings.ToUpper(string(c.Operation)))
	switch c.Operation {
	case types.OpCreate, types.OpModify, types.OpDelete:
	default:
		return fmt.Errorf("unknown operation %q for %s", c.Operation, c.FilePath)
	}

	// Anything that is not an explicit diff is full content.
	if strings.EqualFold(string(c.ContentType), string(types.ContentDiff)) {
		c.ContentType = types.ContentDiff
	} else {
		c.ContentType = types.ContentFull
	}
	return nil
}

// MemorySource serves executions registered in process.
type MemorySource struct {
	mu         sync.RWMutex
	executions map[string][]types.GeneratedChange
}

func NewMemorySource() *MemorySource {
	return &MemorySource{executions: make(map[string][]types.GeneratedChange)}
}

// Put registers changes under executionID, replacing any previous list.
func (s *MemorySource) Put(executionID string, changes ...types.GeneratedChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[executionID] = append([]types.GeneratedChange(nil), changes...)
}

func (s *MemorySource) Changes(ctx context.Context, executionID string) ([]types.GeneratedChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	changes, ok := s.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("source: execution %s: %w", executionID, types.ErrNotFound)
	}
	return append([]types.GeneratedChange(nil), changes...), nil
}
