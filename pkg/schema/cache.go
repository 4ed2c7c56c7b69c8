package schema

import (
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"
)

// compiledCache maps a schema's canonical-JSON encoding to the schema
// itself. Entries are only checked for presence; nothing read from the
// cache is used by validation.
var compiledCache = cache.New(10*time.Minute, 20*time.Minute)

// ValidateCached returns the same result as Validate. It records each
// schema's canonical-JSON key in compiledCache, but every call still
// encodes the schema and runs Validate in full: validation results are
// not cached.
func ValidateCached(value any, schema any, path string) error {
	key, ok := cacheKey(schema)
	if !ok {
		return Validate(value, schema, path)
	}
	if _, found := compiledCache.Get(key); !found {
		compiledCache.Set(key, schema, cache.DefaultExpiration)
	}
	return Validate(value, schema, path)
}

func cacheKey(schema any) (string, bool) {
	if schema == nil {
		return "", false
	}
	if _, ok := schema.(Callable); ok {
		return "", false
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return "", false
	}
	return string(b), true
}
