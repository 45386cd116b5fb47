package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store used by tests and local development. It
// honors the same per-document conditional-update semantics as the
// Postgres implementation, including registered unique indexes.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]map[string]Document
	uniques []uniqueIndex
}

type uniqueIndex struct {
	entity string
	path   string
	where  Filter
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]Document)}
}

// AddUniqueIndex registers a unique constraint on path for documents
// matching where, mirroring a partial unique index.
func (m *Memory) AddUniqueIndex(entity, path string, where Filter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uniques = append(m.uniques, uniqueIndex{entity: entity, path: path, where: where})
}

func (m *Memory) Get(ctx context.Context, entity string, filter Filter) (Document, error) {
	docs, err := m.Find(ctx, entity, filter, Page{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (m *Memory) Find(_ context.Context, entity string, filter Filter, page Page) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.data[entity]))
	for id, doc := range m.data[entity] {
		if matches(doc, filter) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if page.Skip > 0 {
		if page.Skip >= len(ids) {
			ids = nil
		} else {
			ids = ids[page.Skip:]
		}
	}
	if page.Limit > 0 && len(ids) > page.Limit {
		ids = ids[:page.Limit]
	}

	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(m.data[entity][id]))
	}
	return out, nil
}

func (m *Memory) Insert(_ context.Context, entity string, doc Document) error {
	id, _ := doc["id"].(string)
	if id == "" {
		return errMissingID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkUniques(entity, doc, id); err != nil {
		return err
	}
	if m.data[entity] == nil {
		m.data[entity] = make(map[string]Document)
	}
	if _, exists := m.data[entity][id]; exists {
		return ErrConflict
	}
	m.data[entity][id] = clone(doc)
	return nil
}

func (m *Memory) ConditionalUpdate(_ context.Context, entity string, filter Filter, mut Mutation) (int64, error) {
	if mut.empty() {
		return 0, errEmptyMutation
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Two phases so a unique-index violation applies nothing, the same
	// all-or-nothing outcome a single UPDATE statement has in Postgres.
	var matched int64
	updated := make(map[string]Document)
	for id, doc := range m.data[entity] {
		if !matches(doc, filter) {
			continue
		}
		matched++

		next := clone(doc)
		if !apply(next, mut) {
			continue // membership guard skipped the mutation
		}
		if err := m.checkUniques(entity, next, id); err != nil {
			return 0, err
		}
		updated[id] = next
	}
	for id, next := range updated {
		m.data[entity][id] = next
	}
	return matched, nil
}

func (m *Memory) Delete(_ context.Context, entity string, filter Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, doc := range m.data[entity] {
		if matches(doc, filter) {
			delete(m.data[entity], id)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) checkUniques(entity string, doc Document, id string) error {
	for _, u := range m.uniques {
		if u.entity != entity || !matches(doc, u.where) {
			continue
		}
		val, ok := getPath(doc, u.path)
		if !ok || val == nil {
			continue
		}
		for otherID, other := range m.data[entity] {
			if otherID == id || !matches(other, u.where) {
				continue
			}
			if otherVal, ok := getPath(other, u.path); ok && equal(otherVal, val) {
				return ErrConflict
			}
		}
	}
	return nil
}

// apply mutates doc in place. It returns false when an AddToSet element was
// already present or a Pull element was absent, in which case doc must be
// discarded unchanged.
func apply(doc Document, mut Mutation) bool {
	for path, elem := range mut.AddToSet {
		if arrayContains(doc, path, elem) {
			return false
		}
	}
	for path, elem := range mut.Pull {
		if !arrayContains(doc, path, elem) {
			return false
		}
	}

	for path, elem := range mut.AddToSet {
		arr, _ := getPath(doc, path)
		list, _ := arr.([]any)
		setPath(doc, path, append(list, elem))
	}
	for path, elem := range mut.Pull {
		arr, _ := getPath(doc, path)
		list, _ := arr.([]any)
		next := make([]any, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok && s == elem {
				continue
			}
			next = append(next, v)
		}
		setPath(doc, path, next)
	}
	for path, v := range mut.Set {
		setPath(doc, path, normalize(v))
	}
	for path, delta := range mut.Inc {
		cur, _ := getPath(doc, path)
		setPath(doc, path, asFloat(cur)+float64(delta))
	}
	for _, path := range mut.Unset {
		unsetPath(doc, path)
	}
	return true
}

func arrayContains(doc Document, path, elem string) bool {
	val, ok := getPath(doc, path)
	if !ok {
		return false
	}
	list, ok := val.([]any)
	if !ok {
		return false
	}
	for _, v := range list {
		if s, ok := v.(string); ok && s == elem {
			return true
		}
	}
	return false
}

func matches(doc Document, filter Filter) bool {
	for path, cond := range filter {
		val, present := getPath(doc, path)
		switch c := cond.(type) {
		case Missing:
			if present && val != nil {
				return false
			}
		case In:
			s, ok := val.(string)
			if !ok {
				return false
			}
			found := false
			for _, candidate := range c {
				if candidate == s {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case Cmp:
			if !present || !compare(val, c) {
				return false
			}
		case []Cmp:
			if !present {
				return false
			}
			for _, cc := range c {
				if !compare(val, cc) {
					return false
				}
			}
		default:
			if !present {
				return false
			}
			if list, ok := val.([]any); ok {
				found := false
				for _, v := range list {
					if equal(v, cond) {
						found = true
						break
					}
				}
				if !found {
					return false
				}
			} else if !equal(val, cond) {
				return false
			}
		}
	}
	return true
}

func compare(val any, c Cmp) bool {
	if ls, ok := val.(string); ok {
		rs, ok := normalize(c.Value).(string)
		if !ok {
			return false
		}
		switch c.Op {
		case "lte":
			return ls <= rs
		case "gte":
			return ls >= rs
		case "lt":
			return ls < rs
		case "gt":
			return ls > rs
		case "eq":
			return ls == rs
		}
		return false
	}

	l, r := asFloat(val), asFloat(normalize(c.Value))
	switch c.Op {
	case "lte":
		return l <= r
	case "gte":
		return l >= r
	case "lt":
		return l < r
	case "gt":
		return l > r
	case "eq":
		return l == r
	}
	return false
}

func equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if af, ok := numeric(a); ok {
		if bf, ok := numeric(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asFloat(v any) float64 {
	f, _ := numeric(v)
	return f
}

// normalize converts Go-typed filter/mutation values into document shape.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case nil, bool, float64, string, []any, map[string]any:
		return v
	default:
		doc, err := Encode(v)
		if err == nil {
			return map[string]any(doc)
		}
		return v
	}
}

func getPath(doc Document, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(doc)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc Document, path string, val any) {
	parts := strings.Split(path, ".")
	cur := map[string]any(doc)
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = val
}

func unsetPath(doc Document, path string) {
	parts := strings.Split(path, ".")
	cur := map[string]any(doc)
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

func clone(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clone(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
