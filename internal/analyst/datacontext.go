package analyst

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ChamsBouzaiene/analyst/internal/prompts"
)

// Well-known data context keys.
const (
	KeyFilePath = "file_path"
	KeySchema   = "schema"
	KeyColumns  = "columns"
	KeyRowCount = "row_count"
)

// DataContext is the accumulated set of known facts about the dataset. It is
// an open mapping; only file_path and the schema are read by the core.
type DataContext map[string]any

// Clone returns a deep copy.
func (dc DataContext) Clone() DataContext {
	out := make(DataContext, len(dc))
	for k, v := range dc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case DataContext:
		return map[string]any(t.Clone())
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// FilePath returns the dataset path, if known.
func (dc DataContext) FilePath() string {
	s, _ := dc[KeyFilePath].(string)
	return s
}

// HasSchema reports whether column information is known.
func (dc DataContext) HasSchema() bool {
	return len(dc.Columns()) > 0
}

// Columns returns the known column names, sorted when they come from a
// column -> dtype mapping and in order when they come from a list.
func (dc DataContext) Columns() []string {
	for _, key := range []string{KeySchema, KeyColumns} {
		switch v := dc[key].(type) {
		case map[string]any:
			cols := make([]string, 0, len(v))
			for c := range v {
				cols = append(cols, c)
			}
			sort.Strings(cols)
			if len(cols) > 0 {
				return cols
			}
		case []any:
			cols := make([]string, 0, len(v))
			for _, c := range v {
				cols = append(cols, fmt.Sprint(c))
			}
			if len(cols) > 0 {
				return cols
			}
		case []string:
			if len(v) > 0 {
				return append([]string(nil), v...)
			}
		}
	}
	return nil
}

// JSON renders the context as indented JSON for prompts.
func (dc DataContext) JSON() string {
	if len(dc) == 0 {
		return "{}"
	}
	b, err := json.MarshalIndent(dc, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(dc))
	}
	return string(b)
}

// Fingerprint identifies the content of the context. Map keys are
// marshalled in sorted order, so equal contexts give equal fingerprints.
func (dc DataContext) Fingerprint() string {
	b, err := json.Marshal(dc)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", map[string]any(dc)))
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum[:12])
}

// FoldDataContext merges the facts reported on ANALYST_CONTEXT lines of a
// step's stdout into a copy of dc. Existing keys are never removed: nested
// objects merge recursively, other values are replaced, nulls are ignored.
// It returns the new context and the top-level keys that changed.
func FoldDataContext(dc DataContext, stdout string) (DataContext, []string) {
	out := dc.Clone()
	changed := make(map[string]bool)

	for _, line := range strings.Split(stdout, "\n") {
		idx := strings.Index(line, prompts.ContextMarker)
		if idx == -1 {
			continue
		}
		payload := strings.TrimSpace(line[idx+len(prompts.ContextMarker):])
		if !gjson.Valid(payload) {
			continue
		}
		parsed := gjson.Parse(payload)
		if !parsed.IsObject() {
			continue
		}
		parsed.ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			if k == "" || value.Type == gjson.Null {
				return true
			}
			if mergeInto(out, k, value.Value()) {
				changed[k] = true
			}
			return true
		})
	}

	keys := make([]string, 0, len(changed))
	for k := range changed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return out, keys
}

// mergeInto sets m[key] = v, merging maps recursively. Reports whether
// anything changed.
func mergeInto(m map[string]any, key string, v any) bool {
	incoming, isMap := v.(map[string]any)
	if existing, ok := m[key].(map[string]any); ok && isMap {
		changed := false
		for k, vv := range incoming {
			if vv == nil {
				continue
			}
			if mergeInto(existing, k, vv) {
				changed = true
			}
		}
		return changed
	}
	if old, ok := m[key]; ok && sameJSON(old, v) {
		return false
	}
	m[key] = v
	return true
}

func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
