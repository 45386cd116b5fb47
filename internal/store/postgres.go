package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores each entity in a (id text, doc jsonb) table. A
// conditional update is one UPDATE statement, so Postgres row atomicity is
// the serialization primitive; AddToSet/Pull membership guards are folded
// into the SET expression so a skipped mutation still counts as matched.
type Postgres struct {
	pool *pgxpool.Pool
}

var tables = map[string]string{
	EntityUsers:     "users",
	EntityTeams:     "teams",
	EntityPlayers:   "players",
	EntityTransfers: "transfers",
	EntityOutbox:    "outbox_events",
}

var pathPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

// NewPostgres creates a Postgres-backed Store over the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func tableFor(entity string) (string, error) {
	t, ok := tables[entity]
	if !ok {
		return "", fmt.Errorf("unknown entity %q", entity)
	}
	return t, nil
}

// jsonPath renders a dotted path as a jsonb path array literal.
func jsonPath(path string) (string, error) {
	if !pathPattern.MatchString(path) {
		return "", fmt.Errorf("invalid field path %q", path)
	}
	return "'{" + strings.ReplaceAll(path, ".", ",") + "}'", nil
}

type queryArgs struct {
	vals []any
}

func (a *queryArgs) add(v any) string {
	a.vals = append(a.vals, v)
	return fmt.Sprintf("$%d", len(a.vals))
}

func buildWhere(filter Filter, args *queryArgs) (string, error) {
	if len(filter) == 0 {
		return "TRUE", nil
	}

	// Stable clause order keeps prepared statements cacheable.
	paths := make([]string, 0, len(filter))
	for p := range filter {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	clauses := make([]string, 0, len(paths))
	for _, path := range paths {
		jp, err := jsonPath(path)
		if err != nil {
			return "", err
		}
		switch c := filter[path].(type) {
		case Missing:
			clauses = append(clauses, fmt.Sprintf("(doc #> %s IS NULL OR doc #> %s = 'null'::jsonb)", jp, jp))
		case In:
			clauses = append(clauses, fmt.Sprintf("doc #>> %s = ANY(%s)", jp, args.add([]string(c))))
		case Cmp:
			clause, err := cmpClause(jp, c, args)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, clause)
		case []Cmp:
			for _, cc := range c {
				clause, err := cmpClause(jp, cc, args)
				if err != nil {
					return "", err
				}
				clauses = append(clauses, clause)
			}
		default:
			// Containment covers both scalar equality and array membership.
			raw, err := json.Marshal(normalize(c))
			if err != nil {
				return "", err
			}
			clauses = append(clauses, fmt.Sprintf("doc #> %s @> %s::jsonb", jp, args.add(string(raw))))
		}
	}
	return strings.Join(clauses, " AND "), nil
}

func cmpClause(jp string, c Cmp, args *queryArgs) (string, error) {
	op, ok := sqlOp(c.Op)
	if !ok {
		return "", fmt.Errorf("unknown comparison operator %q", c.Op)
	}
	if _, isNum := numeric(normalize(c.Value)); isNum {
		return fmt.Sprintf("(doc #>> %s)::numeric %s %s", jp, op, args.add(c.Value)), nil
	}
	return fmt.Sprintf("doc #>> %s %s %s", jp, op, args.add(c.Value)), nil
}

func sqlOp(op string) (string, bool) {
	switch op {
	case "lte":
		return "<=", true
	case "gte":
		return ">=", true
	case "lt":
		return "<", true
	case "gt":
		return ">", true
	case "eq":
		return "=", true
	}
	return "", false
}

// buildSet renders the new-document expression for a mutation, wrapping it
// in CASE guards so AddToSet/Pull no-ops leave the document untouched.
func buildSet(m Mutation, args *queryArgs) (string, error) {
	expr := "doc"

	for _, path := range sortedKeys(m.Pull) {
		jp, err := jsonPath(path)
		if err != nil {
			return "", err
		}
		elem := args.add(m.Pull[path])
		expr = fmt.Sprintf(
			"jsonb_set(%s, %s, (SELECT coalesce(jsonb_agg(e), '[]'::jsonb) FROM jsonb_array_elements(doc #> %s) AS e WHERE e <> to_jsonb(%s::text)))",
			expr, jp, jp, elem)
	}
	for _, path := range sortedKeys(m.AddToSet) {
		jp, err := jsonPath(path)
		if err != nil {
			return "", err
		}
		elem := args.add(m.AddToSet[path])
		expr = fmt.Sprintf("jsonb_set(%s, %s, coalesce(doc #> %s, '[]'::jsonb) || to_jsonb(%s::text))",
			expr, jp, jp, elem)
	}
	for _, path := range sortedKeys(m.Set) {
		jp, err := jsonPath(path)
		if err != nil {
			return "", err
		}
		raw, err := json.Marshal(normalize(m.Set[path]))
		if err != nil {
			return "", err
		}
		expr = fmt.Sprintf("jsonb_set(%s, %s, %s::jsonb, true)", expr, jp, args.add(string(raw)))
	}
	for _, path := range sortedKeys(m.Inc) {
		jp, err := jsonPath(path)
		if err != nil {
			return "", err
		}
		expr = fmt.Sprintf("jsonb_set(%s, %s, to_jsonb(coalesce((doc #>> %s)::numeric, 0) + %s))",
			expr, jp, jp, args.add(m.Inc[path]))
	}
	for _, path := range m.Unset {
		if strings.Contains(path, ".") {
			return "", fmt.Errorf("unset supports top-level fields only, got %q", path)
		}
		if !pathPattern.MatchString(path) {
			return "", fmt.Errorf("invalid field path %q", path)
		}
		expr = fmt.Sprintf("(%s) - '%s'", expr, path)
	}

	// Membership guards: skip the whole mutation when an AddToSet element
	// is already present or a Pull element is absent.
	guards := make([]string, 0, len(m.AddToSet)+len(m.Pull))
	for _, path := range sortedKeys(m.AddToSet) {
		jp, _ := jsonPath(path)
		guards = append(guards, fmt.Sprintf("coalesce(doc #> %s, '[]'::jsonb) @> to_jsonb(%s::text)",
			jp, args.add(m.AddToSet[path])))
	}
	for _, path := range sortedKeys(m.Pull) {
		jp, _ := jsonPath(path)
		guards = append(guards, fmt.Sprintf("NOT coalesce(doc #> %s, '[]'::jsonb) @> to_jsonb(%s::text)",
			jp, args.add(m.Pull[path])))
	}
	if len(guards) > 0 {
		expr = fmt.Sprintf("CASE WHEN %s THEN doc ELSE %s END", strings.Join(guards, " OR "), expr)
	}
	return expr, nil
}

func (p *Postgres) Get(ctx context.Context, entity string, filter Filter) (Document, error) {
	docs, err := p.Find(ctx, entity, filter, Page{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (p *Postgres) Find(ctx context.Context, entity string, filter Filter, page Page) ([]Document, error) {
	table, err := tableFor(entity)
	if err != nil {
		return nil, err
	}
	args := &queryArgs{}
	where, err := buildWhere(filter, args)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("SELECT doc FROM %s WHERE %s ORDER BY id", table, where)
	if page.Skip > 0 {
		q += fmt.Sprintf(" OFFSET %s", args.add(page.Skip))
	}
	if page.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %s", args.add(page.Limit))
	}

	rows, err := p.pool.Query(ctx, q, args.vals...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", entity, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", entity, err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (p *Postgres) Insert(ctx context.Context, entity string, doc Document) error {
	table, err := tableFor(entity)
	if err != nil {
		return err
	}
	id, _ := doc["id"].(string)
	if id == "" {
		return errMissingID
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf("INSERT INTO %s (id, doc) VALUES ($1, $2)", table), id, doc)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert %s: %w", entity, err)
	}
	return nil
}

func (p *Postgres) ConditionalUpdate(ctx context.Context, entity string, filter Filter, m Mutation) (int64, error) {
	if m.empty() {
		return 0, errEmptyMutation
	}
	table, err := tableFor(entity)
	if err != nil {
		return 0, err
	}

	args := &queryArgs{}
	set, err := buildSet(m, args)
	if err != nil {
		return 0, err
	}
	where, err := buildWhere(filter, args)
	if err != nil {
		return 0, err
	}

	tag, err := p.pool.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET doc = %s WHERE %s", table, set, where), args.vals...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("conditional update %s: %w", entity, err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Delete(ctx context.Context, entity string, filter Filter) (int64, error) {
	table, err := tableFor(entity)
	if err != nil {
		return 0, err
	}
	args := &queryArgs{}
	where, err := buildWhere(filter, args)
	if err != nil {
		return 0, err
	}

	tag, err := p.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), args.vals...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", entity, err)
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
