package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// keyPrefix namespaces all cache keys in Redis.
const keyPrefix = "ct"

// Key identifies a cached GET response.
type Key struct {
	// Path is the API path, e.g. "/api/groups/42/members".
	Path string

	// Query holds the request's query parameters. All values of repeated
	// parameters (ids[]=1&ids[]=2) are part of the key.
	Query url.Values

	// Scope separates callers with different permissions. See ScopeFor.
	Scope string
}

// ScopeFor derives a stable, non-reversible scope from a login token.
func ScopeFor(token string) string {
	if token == "" {
		return "anon"
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}

// String generates a deterministic key.
//
// Format: ct:<scope>:<path>[?k=v&k=v]
//
// Example:
//
//	ct:anon:api/groups/42/members?page=2
func (k Key) String() string {
	scope := k.Scope
	if scope == "" {
		scope = "anon"
	}

	var b strings.Builder
	b.WriteString(pathPrefix(scope, k.Path))

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		pairs := make([]string, 0, len(names))
		for _, name := range names {
			values := append([]string(nil), k.Query[name]...)
			sort.Strings(values)
			for _, v := range values {
				pairs = append(pairs, fmt.Sprintf("%s=%s", name, v))
			}
		}
		b.WriteString("?")
		b.WriteString(strings.Join(pairs, "&"))
	}

	return b.String()
}

// pathPrefix is the key part shared by every entry under path.
func pathPrefix(scope, path string) string {
	return keyPrefix + ":" + scope + ":" + strings.Trim(path, "/")
}
