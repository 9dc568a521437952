package schema

import (
	"sort"

	"go.uber.org/zap"
)

// Registration announces a persistent type at runtime
type Registration struct {
	Type *Class
	// Superclass is the nearest persistent superclass, if any
	Superclass   *Class
	ObjectIDType *Class
	Alias        string
}

// Register queues a runtime registration. It is safe to call from any
// goroutine, including while the repository is resolving; the queue is
// drained under the repository lock before subclass, alias, identity and
// implementor lookups.
func (r *Repository) Register(reg Registration) {
	if reg.Type == nil {
		return
	}
	r.regMu.Lock()
	r.registered = append(r.registered, reg)
	r.regMu.Unlock()
}

// drainRegistered processes queued registrations. The caller holds r.mu.
func (r *Repository) drainRegistered() {
	if r.draining {
		return
	}

	r.regMu.Lock()
	pending := r.registered
	r.registered = nil
	r.regMu.Unlock()
	if len(pending) == 0 {
		return
	}

	r.draining = true
	defer func() { r.draining = false }()

	names := r.persistentTypeNameSet(false, r.loader)
	for _, reg := range pending {
		if names != nil && !names[reg.Type.Name] {
			r.log.Warn("discarding registration of non-persistent type", zap.String("type", reg.Type.Name))
			continue
		}
		r.processRegistration(reg)
	}
	r.log.Debug("drained registrations", zap.Int("count", len(pending)))
}

func (r *Repository) processRegistration(reg Registration) {
	r.regs[reg.Type] = reg

	for sup := reg.Superclass; sup != nil; sup = r.persistentSuper(sup) {
		r.addSubclass(sup, reg.Type)
	}
	if reg.ObjectIDType != nil {
		r.addOID(reg.ObjectIDType, reg.Type)
	}
	r.addImplementor(reg.Type)

	alias := reg.Alias
	if alias == "" {
		alias = reg.Type.SimpleName()
	}
	r.addAlias(alias, reg.Type)
}

// recordResolved adds the bookkeeping of a descriptor that finished
// resolving, as a registration would
func (r *Repository) recordResolved(meta *ClassMetaData) {
	if meta.owner != nil {
		return
	}
	for sup := meta.PCSuperclassMetaData(); sup != nil; sup = sup.PCSuperclassMetaData() {
		r.addSubclass(sup.typ, meta.typ)
	}
	if oid := meta.ObjectIDType(); oid != nil && !oid.IsBuiltin() {
		r.addOID(oid, meta.typ)
	}
	r.addAlias(meta.TypeAlias(), meta.typ)
}

// persistentSuper returns the persistent superclass of c known from
// registrations or cached metadata. The caller holds r.mu.
func (r *Repository) persistentSuper(c *Class) *Class {
	if reg, ok := r.regs[c]; ok {
		return reg.Superclass
	}
	if meta := r.cachedMetaData(c); meta != nil {
		return meta.PCSuperclass()
	}
	return nil
}

func (r *Repository) addSubclass(sup, sub *Class) {
	r.subsMu.Lock()
	subs := r.subs[sup]
	found := false
	for _, s := range subs {
		if s == sub {
			found = true
			break
		}
	}
	if !found {
		r.subs[sup] = append(subs, sub)
	}
	r.subsMu.Unlock()

	if !found {
		if meta := r.cachedMetaData(sup); meta != nil {
			meta.clearSubclassCache()
		}
	}
}

func (r *Repository) subclassesOf(c *Class) []*Class {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	return append([]*Class(nil), r.subs[c]...)
}

// addOID maps an identity class to the type it identifies. When two types
// share an identity class the least-derived persistent ancestor of both
// wins; only persistent superclasses are considered.
func (r *Repository) addOID(oid, cls *Class) {
	r.oidsMu.Lock()
	defer r.oidsMu.Unlock()

	existing := r.oids[oid]
	if existing == nil || existing == cls {
		r.oids[oid] = cls
		return
	}
	for sup := cls; sup != nil; sup = r.persistentSuper(sup) {
		if sup.IsAssignableFrom(existing) {
			r.oids[oid] = sup
			return
		}
	}
}

// addImplementor records cls for each interface it implements, keeping only
// the least-derived implementors
func (r *Repository) addImplementor(cls *Class) {
	if cls.Interface {
		return
	}

	r.implsMu.Lock()
	defer r.implsMu.Unlock()

	for _, iface := range interfacesOf(cls) {
		if iface.IsBuiltin() {
			continue
		}
		impls := r.impls[iface]
		redundant := false
		kept := impls[:0]
		for _, impl := range impls {
			if impl.IsAssignableFrom(cls) {
				redundant = true
			}
			if impl != cls && cls.IsAssignableFrom(impl) {
				continue
			}
			kept = append(kept, impl)
		}
		if !redundant {
			kept = append(kept, cls)
		}
		r.impls[iface] = kept
	}
}

// interfacesOf returns every interface cls implements, directly or through
// its supertypes
func interfacesOf(cls *Class) []*Class {
	seen := make(map[*Class]bool)
	var result []*Class
	var walk func(c *Class)
	walk = func(c *Class) {
		for _, iface := range c.Interfaces {
			if !seen[iface] {
				seen[iface] = true
				result = append(result, iface)
				walk(iface)
			}
		}
		if c.Super != nil {
			walk(c.Super)
		}
	}
	walk(cls)
	return result
}

func (r *Repository) addAlias(alias string, cls *Class) {
	if alias == "" {
		return
	}
	r.aliasesMu.Lock()
	defer r.aliasesMu.Unlock()

	for _, c := range r.aliases[alias] {
		if c == cls {
			return
		}
	}
	r.aliases[alias] = append(r.aliases[alias], cls)
}

// classForAlias picks the type an alias names for loader: loadable by it
// and listed among the persistent types. Registration order breaks ties.
func (r *Repository) classForAlias(alias string, loader *Loader) *Class {
	names := r.persistentTypeNameSet(false, loader)
	accept := func(c *Class) bool {
		return c.LoadableBy(loader) && (names == nil || names[c.Name])
	}

	r.aliasesMu.RLock()
	var candidates []*Class
	for _, c := range r.aliases[alias] {
		if accept(c) {
			candidates = append(candidates, c)
		}
	}
	r.aliasesMu.RUnlock()

	if len(candidates) == 0 {
		for _, meta := range r.cachedMetaDatas() {
			if meta.TypeAlias() == alias && accept(meta.typ) {
				candidates = append(candidates, meta.typ)
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) > 1 {
		r.log.Debug("alias names several types",
			zap.String("alias", alias), zap.String("chosen", candidates[0].Name), zap.Int("candidates", len(candidates)))
	}
	return candidates[0]
}

func (r *Repository) aliasNames() []string {
	seen := make(map[string]bool)

	r.aliasesMu.RLock()
	for alias, classes := range r.aliases {
		if len(classes) > 0 {
			seen[alias] = true
		}
	}
	r.aliasesMu.RUnlock()

	for _, meta := range r.cachedMetaDatas() {
		seen[meta.TypeAlias()] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Repository) implementors(iface *Class, loader *Loader) []*Class {
	r.implsMu.RLock()
	defer r.implsMu.RUnlock()

	var result []*Class
	for _, c := range r.impls[iface] {
		if c.LoadableBy(loader) {
			result = append(result, c)
		}
	}
	return result
}
