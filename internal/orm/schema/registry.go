package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	utilstrings "github.com/conduit-lang/persist/internal/util/strings"
)

// Options configures a Repository. Start from DefaultOptions.
type Options struct {
	Logger  *zap.Logger
	Factory Factory
	Mapper  Mapper
	// Loader is used by Preload and registration filtering
	Loader *Loader

	Resolve  Mode
	Validate Validate
	Source   Mode

	// Types lists the persistent type names; empty defers to the factory
	Types []string
	// CachePolicy is the data cache include/exclude list,
	// e.g. "Types=a;b,ExcludedTypes=c"
	CachePolicy string

	IdentityTypes   []IdentityType
	DefaultIdentity IdentityType
	Strategies      []ValueStrategy

	Listeners []Listener
	Preload   bool
}

// DefaultOptions returns options that resolve and validate metadata and
// mapping and load every source kind
func DefaultOptions() Options {
	return Options{
		Resolve:         ModeMeta | ModeMapping,
		Validate:        ValidateMeta | ValidateMapping,
		Source:          ModeMeta | ModeMapping | ModeQuery,
		IdentityTypes:   []IdentityType{IdentityDatastore, IdentityApplication},
		DefaultIdentity: IdentityDatastore,
		Strategies: []ValueStrategy{
			StrategyNative, StrategySequence, StrategyAutoassign,
			StrategyIncrement, StrategyUUIDString, StrategyUUIDHex,
		},
	}
}

// Repository caches and resolves the metadata of persistent types.
//
// Public methods serialize on one lock. Resolution of one type commonly
// requests related types from the same call; those requests are queued in
// an inheritance-ordered buffer owned by the outermost call instead of
// resolving in place. Subclass, alias, identity and implementor maps have
// their own locks so runtime registrations never wait on resolution.
type Repository struct {
	id        string
	log       *zap.Logger
	factory   Factory
	populator Populator
	mapper    Mapper
	loader    *Loader
	listeners []Listener

	resMode         Mode
	validate        Validate
	source          Mode
	types           []string
	cachePolicy     *cachePolicy
	identities      map[IdentityType]bool
	defaultIdentity IdentityType
	strategies      map[ValueStrategy]bool

	mu        sync.Mutex
	closed    bool
	resolving metaBuffer
	mapping   metaBuffer
	errs      []error
	loaded    []*ClassMetaData
	aware     map[string]*Class
	queries   map[queryKey]*QueryMetaData
	seqs      map[string]*SequenceMetaData
	typeNames []string
	namesRead bool
	regs      map[*Class]Registration
	draining  bool

	metasMu sync.RWMutex
	metas   map[string]*ClassMetaData

	oidsMu sync.RWMutex
	oids   map[*Class]*Class

	aliasesMu sync.RWMutex
	aliases   map[string][]*Class

	subsMu sync.RWMutex
	subs   map[*Class][]*Class

	implsMu sync.RWMutex
	impls   map[*Class][]*Class

	regMu      sync.Mutex
	registered []Registration
}

// NewRepository creates a repository
func NewRepository(opts Options) (*Repository, error) {
	policy, err := parseCachePolicy(opts.CachePolicy)
	if err != nil {
		return nil, fmt.Errorf("cache policy: %w", err)
	}

	r := &Repository{
		id:              uuid.New().String(),
		log:             opts.Logger,
		factory:         opts.Factory,
		mapper:          opts.Mapper,
		loader:          opts.Loader,
		listeners:       opts.Listeners,
		resMode:         opts.Resolve,
		validate:        opts.Validate,
		source:          opts.Source,
		types:           opts.Types,
		cachePolicy:     policy,
		defaultIdentity: opts.DefaultIdentity,
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	r.log = r.log.With(zap.String("repository", r.id))
	if r.factory == nil {
		r.factory = NoneFactory{}
	}
	if r.loader == nil {
		r.loader = NewLoader("default", nil)
	}
	r.populator = r.factory.Defaults()
	if r.populator == nil {
		r.populator = ReflectPopulator{}
	}

	if len(opts.IdentityTypes) > 0 {
		r.identities = make(map[IdentityType]bool)
		for _, id := range opts.IdentityTypes {
			r.identities[id] = true
		}
	}
	if len(opts.Strategies) > 0 {
		r.strategies = make(map[ValueStrategy]bool)
		for _, s := range opts.Strategies {
			r.strategies[s] = true
		}
	}

	r.reset()

	if opts.Preload {
		if err := r.Preload(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// reset empties every cache. The caller holds r.mu or owns r exclusively.
func (r *Repository) reset() {
	r.resolving.drain()
	r.mapping.drain()
	r.errs = nil
	r.loaded = nil
	r.aware = make(map[string]*Class)
	r.queries = make(map[queryKey]*QueryMetaData)
	r.seqs = make(map[string]*SequenceMetaData)
	r.seqs[SystemSequence] = newSequenceMetaData(SystemSequence)
	r.typeNames = nil
	r.namesRead = false
	r.regs = make(map[*Class]Registration)

	r.metasMu.Lock()
	r.metas = make(map[string]*ClassMetaData)
	r.metasMu.Unlock()

	r.oidsMu.Lock()
	r.oids = make(map[*Class]*Class)
	r.oidsMu.Unlock()

	r.aliasesMu.Lock()
	r.aliases = make(map[string][]*Class)
	r.aliasesMu.Unlock()

	r.subsMu.Lock()
	r.subs = make(map[*Class][]*Class)
	r.subsMu.Unlock()

	r.implsMu.Lock()
	r.impls = make(map[*Class][]*Class)
	r.implsMu.Unlock()

	r.regMu.Lock()
	r.registered = nil
	r.regMu.Unlock()
}

func (r *Repository) lock() {
	r.mu.Lock()
}

// unlock releases r.mu and then tells listeners about resolved descriptors
func (r *Repository) unlock() {
	loaded := r.loaded
	r.loaded = nil
	listeners := r.listeners
	r.mu.Unlock()

	for _, meta := range loaded {
		for _, l := range listeners {
			l.OnLoaded(meta)
		}
	}
}

// ID returns the repository instance id
func (r *Repository) ID() string {
	return r.id
}

// Logger returns the repository logger
func (r *Repository) Logger() *zap.Logger {
	return r.log
}

// Factory returns the metadata factory
func (r *Repository) Factory() Factory {
	return r.factory
}

// ResolveMode returns the phases descriptors go through before they are
// handed out
func (r *Repository) ResolveMode() Mode {
	r.lock()
	defer r.unlock()
	return r.resMode
}

// SetResolveMode sets the resolution phases
func (r *Repository) SetResolveMode(mode Mode) {
	r.lock()
	defer r.unlock()
	r.resMode = mode
}

// ValidateMode returns the validation passes
func (r *Repository) ValidateMode() Validate {
	r.lock()
	defer r.unlock()
	return r.validate
}

// SetValidateMode sets the validation passes
func (r *Repository) SetValidateMode(v Validate) {
	r.lock()
	defer r.unlock()
	r.validate = v
}

// SourceMode returns the source kinds loaded from the factory
func (r *Repository) SourceMode() Mode {
	r.lock()
	defer r.unlock()
	return r.source
}

// SetSourceMode sets the source kinds loaded from the factory
func (r *Repository) SetSourceMode(mode Mode) {
	r.lock()
	defer r.unlock()
	r.source = mode
}

func (r *Repository) supportsIdentity(id IdentityType) bool {
	return r.identities == nil || r.identities[id]
}

func (r *Repository) supportsStrategy(s ValueStrategy) bool {
	return r.strategies == nil || r.strategies[s]
}

func (r *Repository) defaultIdentityType() IdentityType {
	if r.defaultIdentity == IdentityUnknown {
		return IdentityDatastore
	}
	return r.defaultIdentity
}

// reportedError carries a failure already recorded in r.errs
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// addError records err unless it was recorded already
func (r *Repository) addError(err error) {
	var re *reportedError
	if errors.As(err, &re) {
		return
	}
	r.errs = append(r.errs, err)
}

// takeErrors returns the recorded errors as one error and clears them. A
// single error is returned as-is.
func (r *Repository) takeErrors() error {
	if len(r.errs) == 0 {
		return nil
	}
	err := multierr.Combine(r.errs...)
	r.errs = nil
	return err
}

// finish turns the result of an internal call into the error a public
// method returns
func (r *Repository) finish(err error) error {
	if recorded := r.takeErrors(); recorded != nil {
		return recorded
	}
	var re *reportedError
	if errors.As(err, &re) {
		return re.err
	}
	return err
}

// fail evicts meta after err and records err
func (r *Repository) fail(meta *ClassMetaData, err error) {
	r.addError(err)
	r.removeMetaData(meta)
}

func (r *Repository) lastError() error {
	if len(r.errs) == 0 {
		return &InternalError{Message: "resolution failed without an error"}
	}
	return r.errs[len(r.errs)-1]
}

// MetaData returns the resolved descriptor of cls. Missing metadata is an
// error only when mustExist is set.
func (r *Repository) MetaData(cls *Class, loader *Loader, mustExist bool) (*ClassMetaData, error) {
	r.lock()
	defer r.unlock()

	if r.closed {
		return nil, ErrClosed
	}
	meta, err := r.metaData(cls, loader, mustExist)
	if err = r.finish(err); err != nil {
		return nil, err
	}
	return meta, nil
}

// lookup returns the cached entry for cls; known is true for a "no
// metadata" entry as well
func (r *Repository) lookup(cls *Class) (meta *ClassMetaData, known bool) {
	r.metasMu.RLock()
	defer r.metasMu.RUnlock()
	meta, known = r.metas[cls.Name]
	return meta, known
}

// cachedMetaData returns the cached descriptor of cls without loading or
// resolving it
func (r *Repository) cachedMetaData(cls *Class) *ClassMetaData {
	if cls == nil {
		return nil
	}
	if meta, _ := r.lookup(cls); meta != nil && meta.typ == cls {
		return meta
	}
	return nil
}

// CachedMetaData returns the cached descriptor of the named type, resolved
// or not
func (r *Repository) CachedMetaData(name string) *ClassMetaData {
	r.metasMu.RLock()
	defer r.metasMu.RUnlock()
	return r.metas[name]
}

func (r *Repository) cachedMetaDatas() []*ClassMetaData {
	r.metasMu.RLock()
	metas := make([]*ClassMetaData, 0, len(r.metas))
	for _, meta := range r.metas {
		if meta != nil {
			metas = append(metas, meta)
		}
	}
	r.metasMu.RUnlock()

	sort.Slice(metas, func(i, j int) bool { return metas[i].typ.Name < metas[j].typ.Name })
	return metas
}

// AllMetaData returns every cached descriptor ordered by type name
func (r *Repository) AllMetaData() []*ClassMetaData {
	return r.cachedMetaDatas()
}

func (r *Repository) setMetaData(name string, meta *ClassMetaData) {
	r.metasMu.Lock()
	r.metas[name] = meta
	r.metasMu.Unlock()
}

// metaData is MetaData without the lock; it may run reentrantly
func (r *Repository) metaData(cls *Class, loader *Loader, mustExist bool) (*ClassMetaData, error) {
	if cls == nil {
		return nil, &InternalError{Message: "metadata requested for nil type"}
	}
	if loader == nil {
		loader = cls.Loader()
	}
	if cls.IsBuiltin() {
		if mustExist {
			return nil, &NotFoundError{Kind: "type", Name: cls.Name}
		}
		return nil, nil
	}

	meta, known := r.lookup(cls)
	if meta != nil && meta.typ != cls {
		r.log.Debug("replacing metadata of reloaded type",
			zap.String("type", cls.Name), zap.String("loader", loader.Name()))
		r.removeMetaData(meta)
		meta, known = nil, false
	}

	if !known && r.validate&ValidateRuntime != 0 {
		if names := r.persistentTypeNameSet(false, loader); names != nil && !names[cls.Name] {
			known = true
		}
	}

	if (meta == nil && !known) || (meta != nil && !meta.sourceMode.Has(ModeMeta)) {
		if err := r.load(cls, loader); err != nil {
			return nil, err
		}
		meta = r.cachedMetaData(cls)
		if meta == nil {
			r.setMetaData(cls.Name, nil)
		}
	}

	if meta == nil {
		if mustExist {
			return nil, &NotFoundError{Kind: "type", Name: cls.Name}
		}
		return nil, nil
	}

	if !meta.resMode.Has(ModeMeta) && r.resMode != ModeNone {
		if err := r.resolve(meta); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

// load asks the factory for the metadata source of cls
func (r *Repository) load(cls *Class, loader *Loader) error {
	if r.source&ModeMeta == 0 {
		return nil
	}
	mode := r.source &^ ModeMapping
	if err := r.factory.Load(target{r}, cls, mode, loader); err != nil {
		return fmt.Errorf("load metadata for %s: %w", cls.Name, err)
	}
	if meta := r.cachedMetaData(cls); meta != nil {
		meta.sourceMode |= mode
	}
	return nil
}

// resolve runs meta through the configured phases. Only the call that owns
// the resolution buffer does work; reentrant calls leave meta queued.
func (r *Repository) resolve(meta *ClassMetaData) error {
	if r.resolving.contains(meta) {
		return nil
	}
	processed, owner, err := r.resolveMeta(meta)
	if err != nil {
		return &reportedError{err: err}
	}
	if !owner {
		return nil
	}

	for _, m := range processed {
		if err := r.loadMapping(m); err != nil {
			r.fail(m, err)
		}
	}
	for _, m := range processed {
		if r.cachedMetaData(m.typ) != m {
			continue
		}
		if err := r.preMapping(m); err != nil {
			r.fail(m, err)
		}
	}

	if r.resMode&ModeMapping != 0 {
		var mapped []*ClassMetaData
		for _, m := range processed {
			if r.cachedMetaData(m.typ) != m {
				continue
			}
			done, owner, _ := r.processBuffer(m, &r.mapping, ModeMapping)
			if owner {
				mapped = append(mapped, done...)
			}
		}
		if r.resMode&ModeMappingInit != 0 {
			for _, m := range mapped {
				if _, err := m.resolve(ModeMappingInit); err != nil {
					r.fail(m, err)
				}
			}
		}
	}

	for _, m := range processed {
		if r.cachedMetaData(m.typ) == m {
			r.recordResolved(m)
			r.loaded = append(r.loaded, m)
		}
	}

	if r.cachedMetaData(meta.typ) != meta {
		return &reportedError{err: r.lastError()}
	}
	return nil
}

// resolveMeta links meta to its persistent superclass, loads the types of
// its primary key relations and runs the metadata phase through the buffer
func (r *Repository) resolveMeta(meta *ClassMetaData) ([]*ClassMetaData, bool, error) {
	if meta.owner == nil && meta.superType != nil {
		if _, err := r.metaData(meta.superType, meta.loader, true); err != nil {
			owner := r.resolving.len() == 0
			r.fail(meta, err)
			return nil, owner, err
		}
	} else if meta.owner == nil {
		sup, err := r.findSuperclass(meta)
		if err != nil {
			r.fail(meta, err)
			return nil, r.resolving.len() == 0, err
		}
		if sup != nil {
			meta.SetPCSuperclass(sup.typ)
		}
	}

	for _, f := range meta.DeclaredFields() {
		if !f.primaryKey {
			continue
		}
		if c := f.DeclaredType(); c != nil && !c.IsBuiltin() {
			if _, err := r.metaData(c, meta.loader, false); err != nil {
				owner := r.resolving.len() == 0
				r.fail(meta, err)
				return nil, owner, err
			}
		}
	}

	return r.processBuffer(meta, &r.resolving, ModeMeta)
}

// findSuperclass walks the supertype chain of the described type for the
// first type with metadata. Interfaces search their declared supertypes.
func (r *Repository) findSuperclass(meta *ClassMetaData) (*ClassMetaData, error) {
	for c := meta.typ.Super; c != nil; c = c.Super {
		sup, err := r.metaData(c, meta.loader, false)
		if err != nil || sup != nil {
			return sup, err
		}
	}
	if meta.typ.Interface {
		for _, iface := range meta.typ.Interfaces {
			sup, err := r.metaData(iface, meta.loader, false)
			if err != nil || sup != nil {
				return sup, err
			}
		}
	}
	return nil, nil
}

// processBuffer adds meta to buf. The call that finds buf empty owns it: it
// resolves entries least-derived first until buf is empty and returns them
// in resolution order. If one fails, every descriptor of the batch is
// evicted. Other calls return immediately.
func (r *Repository) processBuffer(meta *ClassMetaData, buf *metaBuffer, mode Mode) ([]*ClassMetaData, bool, error) {
	if !buf.add(meta) || buf.len() != 1 {
		return nil, false, nil
	}

	var processed []*ClassMetaData
	for buf.len() > 0 {
		cur := buf.first()
		if _, err := cur.resolve(mode); err != nil {
			r.addError(err)

			failed := append([]*ClassMetaData{cur}, processed...)
			for _, m := range buf.drain() {
				if m != cur {
					failed = append(failed, m)
				}
			}
			names := make([]string, len(failed))
			for i, m := range failed {
				names[i] = m.typ.Name
				r.removeMetaData(m)
			}
			r.log.Warn("resolution batch failed",
				zap.Stringer("mode", mode), zap.Strings("evicted", names), zap.Error(err))
			return nil, true, err
		}
		buf.remove(cur)
		processed = append(processed, cur)
	}
	return processed, true, nil
}

func (r *Repository) loadMapping(meta *ClassMetaData) error {
	if meta.sourceMode.Has(ModeMapping) {
		return nil
	}
	defer func() { meta.sourceMode |= ModeMapping }()

	if meta.embeddedOnly || r.source&ModeMapping == 0 {
		return nil
	}
	if err := r.factory.Load(target{r}, meta.typ, ModeMapping, meta.loader); err != nil {
		return fmt.Errorf("load mapping for %s: %w", meta.typ.Name, err)
	}
	return nil
}

func (r *Repository) preMapping(meta *ClassMetaData) error {
	if err := meta.DefineSuperclassFields(false); err != nil {
		return err
	}
	if r.mapper != nil {
		return r.mapper.PrepareMapping(meta)
	}
	return nil
}

// AddMetaData creates an unresolved descriptor for cls, seeds it with the
// factory's default populator and caches it
func (r *Repository) AddMetaData(cls *Class, access AccessType) (*ClassMetaData, error) {
	r.lock()
	defer r.unlock()

	if r.closed {
		return nil, ErrClosed
	}
	return r.addMetaData(cls, access)
}

func (r *Repository) addMetaData(cls *Class, access AccessType) (*ClassMetaData, error) {
	if cls == nil {
		return nil, &InternalError{Message: "metadata added for nil type"}
	}
	if cls.IsBuiltin() {
		return nil, &InternalError{Message: fmt.Sprintf("cannot describe built-in type %s", cls.Name)}
	}
	if _, ok := r.aware[cls.Name]; ok {
		return nil, fmt.Errorf("%s: %w", cls.Name, ErrPersistenceAware)
	}

	loader := cls.Loader()
	if loader == nil {
		loader = r.loader
	}
	meta := newClassMetaData(r, cls, loader)
	if err := r.populator.Populate(meta, access); err != nil {
		return nil, fmt.Errorf("populate %s: %w", cls.Name, err)
	}
	r.setMetaData(cls.Name, meta)
	r.log.Debug("added metadata", zap.String("type", cls.Name))
	return meta, nil
}

// AddEmbeddedMetaData marks v embedded and returns its embedded descriptor
func (r *Repository) AddEmbeddedMetaData(v *ValueMetaData) *ClassMetaData {
	v.SetEmbedded(true)
	return v.EmbeddedMetaData()
}

func (r *Repository) newEmbeddedMetaData(v *ValueMetaData) *ClassMetaData {
	meta := newClassMetaData(r, v.Type(), v.owner.owner.loader)
	meta.owner = v
	if err := r.populator.Populate(meta, v.owner.owner.AccessType()); err != nil {
		r.log.Warn("populating embedded metadata", zap.String("value", v.String()), zap.Error(err))
	}
	return meta
}

// RemoveMetaData evicts the descriptor of cls
func (r *Repository) RemoveMetaData(cls *Class) bool {
	r.lock()
	defer r.unlock()

	meta := r.cachedMetaData(cls)
	if meta == nil {
		return false
	}
	return r.removeMetaData(meta)
}

func (r *Repository) removeMetaData(meta *ClassMetaData) bool {
	r.metasMu.Lock()
	defer r.metasMu.Unlock()

	if r.metas[meta.typ.Name] != meta {
		return false
	}
	delete(r.metas, meta.typ.Name)
	return true
}

// MetaDataByAlias returns the descriptor of the type an alias names
func (r *Repository) MetaDataByAlias(alias string, loader *Loader, mustExist bool) (*ClassMetaData, error) {
	r.lock()
	defer r.unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if loader == nil {
		loader = r.loader
	}
	r.drainRegistered()

	cls := r.classForAlias(alias, loader)
	if cls == nil {
		// metadata sources may declare the alias
		r.scanPersistentTypes(loader)
		cls = r.classForAlias(alias, loader)
	}
	if cls == nil {
		if err := r.finish(nil); err != nil {
			return nil, err
		}
		if mustExist {
			return nil, &NotFoundError{Kind: "alias", Name: alias, Candidates: utilstrings.Similar(alias, r.aliasNames(), 0)}
		}
		return nil, nil
	}

	meta, err := r.metaData(cls, loader, mustExist)
	if err = r.finish(err); err != nil {
		return nil, err
	}
	return meta, nil
}

// MetaDataByOID returns the descriptor of the type identified by instances
// of the identity class oid
func (r *Repository) MetaDataByOID(oid *Class, loader *Loader, mustExist bool) (*ClassMetaData, error) {
	r.lock()
	defer r.unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if loader == nil {
		loader = r.loader
	}
	r.drainRegistered()

	r.oidsMu.RLock()
	cls, known := r.oids[oid]
	r.oidsMu.RUnlock()

	if !known {
		cls = r.resolveIdentityClass(oid, loader)
		if !oid.IsBuiltin() {
			r.oidsMu.Lock()
			r.oids[oid] = cls
			r.oidsMu.Unlock()
		}
	}
	if cls == nil {
		if err := r.finish(nil); err != nil {
			return nil, err
		}
		if mustExist {
			return nil, &NotFoundError{Kind: "oid", Name: oid.Name}
		}
		return nil, nil
	}

	meta, err := r.metaData(cls, loader, mustExist)
	if err = r.finish(err); err != nil {
		return nil, err
	}
	return meta, nil
}

var oidSuffixes = []string{"ID", "Id", "Key", "PK"}

// resolveIdentityClass finds the type an unmapped identity class belongs to:
// the least-derived cached descriptor using it, else the type named like the
// identity class without its ID/Id/Key/PK suffix
func (r *Repository) resolveIdentityClass(oid *Class, loader *Loader) *Class {
	var found *ClassMetaData
	for _, meta := range r.cachedMetaDatas() {
		if meta.ObjectIDType() != oid {
			continue
		}
		if found == nil || meta.typ.IsAssignableFrom(found.typ) {
			found = meta
		}
	}
	if found != nil {
		return found.typ
	}

	for _, suffix := range oidSuffixes {
		if !strings.HasSuffix(oid.Name, suffix) {
			continue
		}
		name := strings.TrimRight(strings.TrimSuffix(oid.Name, suffix), "./")
		c, ok := loader.Load(name)
		if !ok {
			continue
		}
		meta, err := r.metaData(c, loader, false)
		if err != nil {
			r.addError(err)
			continue
		}
		if meta != nil && meta.ObjectIDType() == oid {
			return c
		}
	}
	return nil
}

// AddPersistenceAware registers cls as a persistence-aware type, one that
// uses persistent types without being one
func (r *Repository) AddPersistenceAware(cls *Class) error {
	r.lock()
	defer r.unlock()

	if r.cachedMetaData(cls) != nil {
		return fmt.Errorf("%s: %w", cls.Name, ErrPersistenceAware)
	}
	r.aware[cls.Name] = cls
	return nil
}

// IsPersistenceAware reports whether cls was registered persistence-aware
func (r *Repository) IsPersistenceAware(cls *Class) bool {
	r.lock()
	defer r.unlock()
	return r.isPersistenceAware(cls)
}

func (r *Repository) isPersistenceAware(cls *Class) bool {
	_, ok := r.aware[cls.Name]
	return ok
}

// RemovePersistenceAware removes a persistence-aware registration
func (r *Repository) RemovePersistenceAware(cls *Class) bool {
	r.lock()
	defer r.unlock()

	if _, ok := r.aware[cls.Name]; !ok {
		return false
	}
	delete(r.aware, cls.Name)
	return true
}

// PersistenceAwareClasses returns the persistence-aware types
func (r *Repository) PersistenceAwareClasses() []*Class {
	r.lock()
	defer r.unlock()

	classes := make([]*Class, 0, len(r.aware))
	for _, c := range r.aware {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes
}

// PersistentTypeNames returns the configured persistent type names, or the
// factory's when none are configured
func (r *Repository) PersistentTypeNames(devpath bool, loader *Loader) []string {
	r.lock()
	defer r.unlock()
	return append([]string(nil), r.persistentTypeNames(devpath, loader)...)
}

func (r *Repository) persistentTypeNames(devpath bool, loader *Loader) []string {
	if len(r.types) > 0 {
		return r.types
	}
	if !r.namesRead {
		r.typeNames = r.factory.PersistentTypeNames(devpath, loader)
		r.namesRead = true
	}
	return r.typeNames
}

func (r *Repository) persistentTypeNameSet(devpath bool, loader *Loader) map[string]bool {
	names := r.persistentTypeNames(devpath, loader)
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

// LoadPersistentTypes loads and resolves every persistent type loader can
// find
func (r *Repository) LoadPersistentTypes(devpath bool, loader *Loader) ([]*Class, error) {
	r.lock()
	defer r.unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if loader == nil {
		loader = r.loader
	}
	classes, err := r.loadPersistentTypes(devpath, loader)
	if err = r.finish(err); err != nil {
		return nil, err
	}
	return classes, nil
}

func (r *Repository) loadPersistentTypes(devpath bool, loader *Loader) ([]*Class, error) {
	var classes []*Class
	var errs error
	for _, name := range r.persistentTypeNames(devpath, loader) {
		c, ok := loader.Load(name)
		if !ok {
			r.log.Warn("persistent type not found", zap.String("type", name), zap.String("loader", loader.Name()))
			continue
		}
		if _, err := r.metaData(c, loader, false); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		classes = append(classes, c)
	}
	return classes, errs
}

// scanPersistentTypes loads every persistent type while looking for a
// declaration by name. Failures of the types scanned are logged and left out
// of the errors the caller returns.
func (r *Repository) scanPersistentTypes(loader *Loader) {
	mark := len(r.errs)
	_, err := r.loadPersistentTypes(false, loader)
	for _, e := range r.errs[mark:] {
		err = multierr.Append(err, e)
	}
	r.errs = r.errs[:mark]
	if err != nil {
		r.log.Warn("persistent type scan failed", zap.Error(err))
	}
}

// Preload loads and resolves every persistent type of the repository loader
func (r *Repository) Preload() error {
	_, err := r.LoadPersistentTypes(false, r.loader)
	return err
}

// PCSubclasses returns the known persistent subclasses of cls
func (r *Repository) PCSubclasses(cls *Class) []*Class {
	r.lock()
	defer r.unlock()

	r.drainRegistered()
	return r.subclassesOf(cls)
}

// Implementors returns the least-derived persistent types implementing
// iface that loader can load
func (r *Repository) Implementors(iface *Class, loader *Loader) []*Class {
	r.lock()
	defer r.unlock()

	if loader == nil {
		loader = r.loader
	}
	r.drainRegistered()
	return r.implementors(iface, loader)
}

// AliasNames returns every known alias, sorted
func (r *Repository) AliasNames() []string {
	r.lock()
	defer r.unlock()

	r.drainRegistered()
	return r.aliasNames()
}

// ClosestAliasName returns the known alias nearest to alias by edit
// distance, or ""
func (r *Repository) ClosestAliasName(alias string) string {
	return utilstrings.Closest(alias, r.AliasNames(), 0)
}

// SequenceMetaData returns the named sequence. The system sequence always
// exists.
func (r *Repository) SequenceMetaData(name string, loader *Loader, mustExist bool) (*SequenceMetaData, error) {
	r.lock()
	defer r.unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if loader == nil {
		loader = r.loader
	}

	seq := r.seqs[name]
	if seq == nil {
		r.scanPersistentTypes(loader)
		seq = r.seqs[name]
	}
	if err := r.finish(nil); err != nil {
		return nil, err
	}
	if seq == nil && mustExist {
		return nil, &NotFoundError{Kind: "sequence", Name: name}
	}
	return seq, nil
}

// AddSequenceMetaData creates or returns the named sequence
func (r *Repository) AddSequenceMetaData(name string) *SequenceMetaData {
	r.lock()
	defer r.unlock()
	return r.addSequenceMetaData(name)
}

func (r *Repository) addSequenceMetaData(name string) *SequenceMetaData {
	if seq, ok := r.seqs[name]; ok {
		return seq
	}
	seq := newSequenceMetaData(name)
	r.seqs[name] = seq
	return seq
}

// RemoveSequenceMetaData removes a sequence; the system sequence stays
func (r *Repository) RemoveSequenceMetaData(name string) bool {
	r.lock()
	defer r.unlock()

	if _, ok := r.seqs[name]; !ok || name == SystemSequence {
		return false
	}
	delete(r.seqs, name)
	return true
}

// SequenceMetaDatas returns every sequence ordered by name
func (r *Repository) SequenceMetaDatas() []*SequenceMetaData {
	r.lock()
	defer r.unlock()
	return r.sequenceMetaDatas()
}

func (r *Repository) sequenceMetaDatas() []*SequenceMetaData {
	seqs := make([]*SequenceMetaData, 0, len(r.seqs))
	for _, seq := range r.seqs {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i].name < seqs[j].name })
	return seqs
}

// QueryMetaData returns a named query. With a defining type the query is
// looked up under that type first; otherwise by name alone.
func (r *Repository) QueryMetaData(definingType *Class, name string, loader *Loader, mustExist bool) (*QueryMetaData, error) {
	r.lock()
	defer r.unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if loader == nil {
		loader = r.loader
	}

	q := r.queryLookup(definingType, name)
	if q == nil && definingType != nil {
		if _, err := r.metaData(definingType, loader, false); err != nil {
			r.addError(err)
		}
		if r.source&ModeQuery != 0 {
			if err := r.factory.Load(target{r}, definingType, ModeQuery, loader); err != nil {
				r.addError(fmt.Errorf("load queries for %s: %w", definingType.Name, err))
			}
		}
		q = r.queryLookup(definingType, name)
	}
	if q == nil {
		if r.source&ModeQuery != 0 {
			if err := r.factory.Load(target{r}, nil, ModeQuery, loader); err != nil {
				r.addError(fmt.Errorf("load queries: %w", err))
			}
		}
		r.scanPersistentTypes(loader)
		q = r.queryLookup(definingType, name)
	}

	if err := r.finish(nil); err != nil {
		return nil, err
	}
	if q == nil && mustExist {
		return nil, &NotFoundError{Kind: "query", Name: name}
	}
	return q, nil
}

func (r *Repository) queryLookup(definingType *Class, name string) *QueryMetaData {
	if q, ok := r.queries[keyOf(definingType, name)]; ok {
		return q
	}
	if definingType != nil {
		if q, ok := r.queries[keyOf(nil, name)]; ok {
			return q
		}
	}
	for _, q := range r.queryMetaDatas() {
		if q.name == name {
			return q
		}
	}
	return nil
}

// AddQueryMetaData creates or returns a named query
func (r *Repository) AddQueryMetaData(definingType *Class, name string) *QueryMetaData {
	r.lock()
	defer r.unlock()
	return r.addQueryMetaData(definingType, name)
}

func (r *Repository) addQueryMetaData(definingType *Class, name string) *QueryMetaData {
	key := keyOf(definingType, name)
	if q, ok := r.queries[key]; ok {
		return q
	}
	q := newQueryMetaData(definingType, name)
	r.queries[key] = q
	return q
}

// RemoveQueryMetaData removes a named query
func (r *Repository) RemoveQueryMetaData(definingType *Class, name string) bool {
	r.lock()
	defer r.unlock()

	key := keyOf(definingType, name)
	if _, ok := r.queries[key]; !ok {
		return false
	}
	delete(r.queries, key)
	return true
}

// QueryMetaDatas returns every query ordered by defining type and name
func (r *Repository) QueryMetaDatas() []*QueryMetaData {
	r.lock()
	defer r.unlock()
	return r.queryMetaDatas()
}

func (r *Repository) queryMetaDatas() []*QueryMetaData {
	queries := make([]*QueryMetaData, 0, len(r.queries))
	for _, q := range r.queries {
		queries = append(queries, q)
	}
	sort.Slice(queries, func(i, j int) bool {
		ki, kj := keyOf(queries[i].definingType, queries[i].name), keyOf(queries[j].definingType, queries[j].name)
		if ki.definingType != kj.definingType {
			return ki.definingType < kj.definingType
		}
		return ki.name < kj.name
	})
	return queries
}

// Store hands every cached descriptor, supertypes first, and every query and
// sequence to the factory
func (r *Repository) Store(mode Mode, out map[string][]byte) (bool, error) {
	r.lock()
	defer r.unlock()

	if r.closed {
		return false, ErrClosed
	}
	metas := r.cachedMetaDatas()
	sortByInheritance(metas)
	return r.factory.Store(metas, r.queryMetaDatas(), r.sequenceMetaDatas(), mode, out)
}

// Drop asks the factory to delete the stored metadata of classes and evicts
// their descriptors
func (r *Repository) Drop(classes []*Class, mode Mode, loader *Loader) (bool, error) {
	r.lock()
	defer r.unlock()

	if r.closed {
		return false, ErrClosed
	}
	ok, err := r.factory.Drop(classes, mode, loader)
	if err != nil {
		return false, err
	}
	for _, c := range classes {
		if meta := r.cachedMetaData(c); meta != nil {
			r.removeMetaData(meta)
		}
	}
	return ok, nil
}

// Stats is a snapshot of the repository caches
type Stats struct {
	Types                int
	Resolved             int
	Queries              int
	Sequences            int
	Aliases              int
	PendingRegistrations int
}

// Stats returns cache counts. Pending registrations are not drained.
func (r *Repository) Stats() Stats {
	r.lock()
	defer r.unlock()

	var stats Stats
	for _, meta := range r.cachedMetaDatas() {
		stats.Types++
		if meta.resMode.Has(ModeMeta) {
			stats.Resolved++
		}
	}
	stats.Queries = len(r.queries)
	stats.Sequences = len(r.seqs)
	stats.Aliases = len(r.aliasNames())

	r.regMu.Lock()
	stats.PendingRegistrations = len(r.registered)
	r.regMu.Unlock()
	return stats
}

// Clear empties every cache and clears the factory
func (r *Repository) Clear() {
	r.lock()
	defer r.unlock()

	r.log.Debug("clearing repository")
	r.reset()
	r.factory.Clear()
}

// Close clears the repository; later calls return ErrClosed
func (r *Repository) Close() error {
	r.lock()
	defer r.unlock()

	if r.closed {
		return nil
	}
	r.reset()
	r.factory.Clear()
	r.closed = true
	return nil
}
