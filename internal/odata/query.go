// Package odata translates between the proxy's structured request options
// and the OData v2/v4 wire conventions SAP backends speak: $-prefixed query
// parameters, formatted entity keys, and the two envelope shapes.
package odata

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// QueryOptions is the structured form of an OData query. Nil/empty fields
// are omitted from the output, never defaulted.
type QueryOptions struct {
	Select  string
	Filter  string
	OrderBy string
	Expand  string
	Search  string
	Top     *int
	Skip    *int
	Count   bool
}

// BuildQuery maps options to their $-prefixed OData query parameters.
func BuildQuery(opts QueryOptions) url.Values {
	q := url.Values{}
	if opts.Select != "" {
		q.Set("$select", opts.Select)
	}
	if opts.Filter != "" {
		q.Set("$filter", opts.Filter)
	}
	if opts.OrderBy != "" {
		q.Set("$orderby", opts.OrderBy)
	}
	if opts.Expand != "" {
		q.Set("$expand", opts.Expand)
	}
	if opts.Search != "" {
		q.Set("$search", opts.Search)
	}
	if opts.Top != nil {
		q.Set("$top", strconv.Itoa(*opts.Top))
	}
	if opts.Skip != nil {
		q.Set("$skip", strconv.Itoa(*opts.Skip))
	}
	if opts.Count {
		q.Set("$count", "true")
	}
	return q
}

// odataParams are the standard query options forwarded to the backend.
var odataParams = map[string]bool{
	"$select": true, "$filter": true, "$orderby": true, "$expand": true,
	"$search": true, "$top": true, "$skip": true, "$count": true,
	"$inlinecount": true, "$format": true, "$skiptoken": true, "$apply": true,
}

// MergeQuery combines caller-supplied raw query parameters with structured
// options. OData $-parameters and custom parameters pass through largely
// unchanged; values produced from opts win over raw duplicates.
func MergeQuery(raw url.Values, opts QueryOptions) url.Values {
	merged := url.Values{}
	for key, vals := range raw {
		if strings.HasPrefix(key, "$") && !odataParams[strings.ToLower(key)] {
			continue
		}
		for _, v := range vals {
			merged.Add(key, v)
		}
	}
	for key, vals := range BuildQuery(opts) {
		merged.Del(key)
		for _, v := range vals {
			merged.Add(key, v)
		}
	}
	return merged
}

// guidPattern matches the canonical 8-4-4-4-12 GUID form.
var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// FormatKey renders an entity key for use inside EntitySet(...). Typed
// numeric keys stay unquoted, GUIDs get the guid'' literal form, strings
// containing '=' are treated as pre-formatted composite keys and pass
// through, and every other string is single-quoted with embedded quotes
// doubled, numeric-looking or not.
func FormatKey(key interface{}) string {
	switch k := key.(type) {
	case nil:
		return ""
	case int:
		return strconv.Itoa(k)
	case int64:
		return strconv.FormatInt(k, 10)
	case float64:
		// JSON numbers decode as float64; render integral values plainly.
		if k == float64(int64(k)) {
			return strconv.FormatInt(int64(k), 10)
		}
		return strconv.FormatFloat(k, 'f', -1, 64)
	case string:
		if guidPattern.MatchString(k) {
			return fmt.Sprintf("guid'%s'", k)
		}
		if strings.Contains(k, "=") {
			return k
		}
		return "'" + strings.ReplaceAll(k, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", k)
	}
}

// BuildPath composes the entity path segment: Entity or Entity(key).
func BuildPath(entity string, key interface{}) string {
	entity = strings.Trim(entity, "/")
	if key == nil || key == "" {
		return entity
	}
	return fmt.Sprintf("%s(%s)", entity, FormatKey(key))
}

// JoinURL assembles the full backend URL from its parts, normalizing the
// slashes between segments.
func JoinURL(baseURL, servicePath, entityPath string) string {
	base := strings.TrimSuffix(baseURL, "/")
	service := "/" + strings.Trim(servicePath, "/")
	entity := strings.Trim(entityPath, "/")
	if entity == "" {
		return base + service
	}
	return base + service + "/" + entity
}
