package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/squadmarket/platform/internal/auth"
	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/scope"
	"github.com/squadmarket/platform/internal/store"
)

// identityFrom pulls the authenticated caller off the request context.
func identityFrom(r *http.Request) (scope.Identity, error) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return scope.Identity{}, domain.ErrInvalidAccessToken()
	}
	return ident, nil
}

// parsePage reads skip/limit query params with a capped default limit.
func parsePage(r *http.Request) store.Page {
	page := store.Page{Limit: 50}
	if s := r.URL.Query().Get("skip"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			page.Skip = n
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			page.Limit = n
		}
	}
	return page
}

var cmpSuffixes = []string{"gte", "lte", "gt", "lt"}

// cmpParams reads range filters written as field_gte=100&field_lt=500.
func cmpParams(q url.Values, field string) []store.Cmp {
	var out []store.Cmp
	for _, op := range cmpSuffixes {
		raw := q.Get(field + "_" + op)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, store.Cmp{Op: op, Value: n})
	}
	return out
}
