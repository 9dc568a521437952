package schema

import (
	"fmt"
	"strings"
)

// DefaultCacheName is the data cache types use unless they name another
const DefaultCacheName = "default"

// cachePolicy holds the include and exclude lists of the data cache
// configuration. It is parsed once per repository.
type cachePolicy struct {
	types    map[string]bool
	excluded map[string]bool
}

// parseCachePolicy parses "Types=a;b,ExcludedTypes=c;d". Entries match full
// or simple type names.
func parseCachePolicy(s string) (*cachePolicy, error) {
	p := &cachePolicy{types: map[string]bool{}, excluded: map[string]bool{}}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "true") {
		return p, nil
	}

	for _, prop := range strings.Split(s, ",") {
		prop = strings.TrimSpace(prop)
		if prop == "" {
			continue
		}
		kv := strings.SplitN(prop, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid cache property %q", prop)
		}

		var into map[string]bool
		switch strings.TrimSpace(kv[0]) {
		case "Types":
			into = p.types
		case "ExcludedTypes":
			into = p.excluded
		default:
			return nil, fmt.Errorf("unknown cache property %q", kv[0])
		}
		for _, name := range strings.Split(kv[1], ";") {
			if name = strings.TrimSpace(name); name != "" {
				into[name] = true
			}
		}
	}
	return p, nil
}

// decide returns the policy's verdict for c; decided is false when the
// lists say nothing about it
func (p *cachePolicy) decide(c *Class) (cacheable, decided bool) {
	if p == nil {
		return false, false
	}
	if p.excluded[c.Name] || p.excluded[c.SimpleName()] {
		return false, true
	}
	if p.types[c.Name] || p.types[c.SimpleName()] {
		return true, true
	}
	if len(p.types) > 0 {
		return false, true
	}
	return false, false
}
