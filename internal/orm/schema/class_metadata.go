package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DetachedStateSynthetic asks for a generated detached-state field
const DetachedStateSynthetic = "`syn"

// ClassMetaData describes one persistent type. Descriptors are created by a
// Repository, populated while unresolved and handed out by the repository
// once resolved. Mutators are meant for the unresolved phase.
type ClassMetaData struct {
	repos  *Repository
	log    *zap.Logger
	typ    *Class
	loader *Loader
	owner  *ValueMetaData

	superType *Class
	superMeta *ClassMetaData

	subMu     sync.Mutex
	subMetas  []*ClassMetaData
	subsValid bool

	identity      IdentityType
	identityMemo  IdentityType
	idStrategy    ValueStrategy
	idSeqName     string
	oidType       *Class
	oidMemo       *Class
	access        AccessType
	cacheName     string
	cacheNameSet  bool
	cacheTimeout  int
	cacheTimeSet  bool
	detachable    Tristate
	detachedState string
	alias         string
	abstract      bool
	mapped        Tristate
	embeddedOnly  bool
	sourceName    string

	fields      map[string]*FieldMetaData
	fieldOrder  []string
	superFields map[string]*FieldMetaData

	cacheMu       sync.Mutex
	allFields     []*FieldMetaData
	declFields    []*FieldMetaData
	unmgdFields   []*FieldMetaData
	pkFields      []*FieldMetaData
	dfgFields     []*FieldMetaData
	listingFields []*FieldMetaData
	definedFields []*FieldMetaData
	abstractPK    Tristate
	defSupFields  bool

	fetchGroups map[string]*FetchGroup
	fgOrder     []string
	customFGs   []*FetchGroup

	resMode    Mode
	sourceMode Mode
}

func newClassMetaData(r *Repository, typ *Class, loader *Loader) *ClassMetaData {
	return &ClassMetaData{
		repos:       r,
		log:         r.log.With(zap.String("type", typ.Name)),
		typ:         typ,
		loader:      loader,
		fields:      make(map[string]*FieldMetaData),
		superFields: make(map[string]*FieldMetaData),
		fetchGroups: make(map[string]*FetchGroup),
	}
}

// DescribedType returns the described class
func (cm *ClassMetaData) DescribedType() *Class {
	return cm.typ
}

// Repository returns the owning repository
func (cm *ClassMetaData) Repository() *Repository {
	return cm.repos
}

// Loader returns the environment loader the descriptor was loaded with
func (cm *ClassMetaData) Loader() *Loader {
	return cm.loader
}

// EmbeddingValue returns the value this descriptor is embedded in, or nil
func (cm *ClassMetaData) EmbeddingValue() *ValueMetaData {
	return cm.owner
}

// IsEmbedded reports whether this is an embedded descriptor
func (cm *ClassMetaData) IsEmbedded() bool {
	return cm.owner != nil
}

// SourceName returns where the descriptor was loaded from
func (cm *ClassMetaData) SourceName() string {
	return cm.sourceName
}

// SetSourceName records where the descriptor was loaded from
func (cm *ClassMetaData) SetSourceName(name string) {
	cm.sourceName = name
}

// ResolveMode returns the resolution phases completed or in progress
func (cm *ClassMetaData) ResolveMode() Mode {
	return cm.resMode
}

// SourceMode returns the source kinds already loaded for the type
func (cm *ClassMetaData) SourceMode() Mode {
	return cm.sourceMode
}

// SetSourceMode sets or clears source mode bits
func (cm *ClassMetaData) SetSourceMode(mode Mode, on bool) {
	cm.sourceMode = cm.sourceMode.With(mode, on)
}

// MappingLoaded reports whether mapping information was loaded
func (cm *ClassMetaData) MappingLoaded() bool {
	return cm.sourceMode.Has(ModeMapping)
}

// IsEmbeddedOnly reports whether the type is only ever embedded
func (cm *ClassMetaData) IsEmbeddedOnly() bool {
	return cm.embeddedOnly
}

// SetEmbeddedOnly sets the embedded-only flag
func (cm *ClassMetaData) SetEmbeddedOnly(embeddedOnly bool) {
	cm.embeddedOnly = embeddedOnly
}

// IsAbstract reports whether the type is abstract
func (cm *ClassMetaData) IsAbstract() bool {
	return cm.abstract
}

// SetAbstract sets the abstract flag
func (cm *ClassMetaData) SetAbstract(abstract bool) {
	cm.abstract = abstract
	cm.cacheMu.Lock()
	cm.abstractPK = Unset
	cm.cacheMu.Unlock()
}

// IsMapped reports whether the type maps its own fields. Subtypes of an
// unmapped type take over its fields.
func (cm *ClassMetaData) IsMapped() bool {
	return cm.mapped.Bool(true)
}

// SetMapped sets the mapped flag
func (cm *ClassMetaData) SetMapped(mapped bool) {
	cm.mapped = Of(mapped)
}

// PCSuperclass returns the persistent superclass type
func (cm *ClassMetaData) PCSuperclass() *Class {
	if cm.superType != nil {
		return cm.superType
	}
	if sup := cm.PCSuperclassMetaData(); sup != nil {
		return sup.typ
	}
	return nil
}

// SetPCSuperclass sets the persistent superclass type explicitly
func (cm *ClassMetaData) SetPCSuperclass(c *Class) {
	cm.superType = c
	cm.superMeta = nil
	cm.ClearAllFieldCache()
}

// PCSuperclassMetaData returns the descriptor of the persistent superclass.
// Before resolution the supertype chain is searched among cached descriptors.
func (cm *ClassMetaData) PCSuperclassMetaData() *ClassMetaData {
	if cm.superMeta != nil || cm.owner != nil {
		return cm.superMeta
	}
	if cm.superType != nil {
		return cm.repos.cachedMetaData(cm.superType)
	}
	if cm.resMode.Has(ModeMeta) {
		return nil
	}
	for c := cm.typ.Super; c != nil; c = c.Super {
		if meta := cm.repos.cachedMetaData(c); meta != nil {
			return meta
		}
	}
	return nil
}

// PCSubclasses returns the known persistent subclasses
func (cm *ClassMetaData) PCSubclasses() []*Class {
	return cm.repos.subclassesOf(cm.typ)
}

// PCSubclassMetaDatas returns the descriptors of the known persistent
// subclasses
func (cm *ClassMetaData) PCSubclassMetaDatas() []*ClassMetaData {
	cm.subMu.Lock()
	defer cm.subMu.Unlock()

	if !cm.subsValid {
		cm.subMetas = nil
		for _, sub := range cm.repos.subclassesOf(cm.typ) {
			if meta := cm.repos.cachedMetaData(sub); meta != nil {
				cm.subMetas = append(cm.subMetas, meta)
			}
		}
		cm.subsValid = true
	}
	return append([]*ClassMetaData(nil), cm.subMetas...)
}

func (cm *ClassMetaData) clearSubclassCache() {
	cm.subMu.Lock()
	cm.subsValid = false
	cm.subMetas = nil
	cm.subMu.Unlock()
}

// isAssignableTo reports whether cm is other or one of its subclasses
func (cm *ClassMetaData) isAssignableTo(other *ClassMetaData) bool {
	return other != nil && other.typ.IsAssignableFrom(cm.typ)
}

// IdentityType returns the identity type. When unset it is inherited from the
// persistent superclass, else derived from the primary key fields. The value
// is fixed when the descriptor resolves.
func (cm *ClassMetaData) IdentityType() IdentityType {
	if cm.identity != IdentityUnknown {
		return cm.identity
	}
	if cm.identityMemo != IdentityUnknown {
		return cm.identityMemo
	}
	return cm.computeIdentityType()
}

func (cm *ClassMetaData) computeIdentityType() IdentityType {
	if cm.owner != nil {
		return IdentityUnknown
	}
	if sup := cm.PCSuperclassMetaData(); sup != nil {
		if id := sup.IdentityType(); id != IdentityUnknown {
			return id
		}
	}
	if len(cm.PrimaryKeyFields()) > 0 {
		return IdentityApplication
	}
	if cm.abstract {
		return IdentityUnknown
	}
	return cm.repos.defaultIdentityType()
}

// SetIdentityType sets the identity type explicitly
func (cm *ClassMetaData) SetIdentityType(id IdentityType) {
	cm.identity = id
}

// IdentityStrategy returns the datastore identity strategy
func (cm *ClassMetaData) IdentityStrategy() ValueStrategy {
	if cm.idStrategy == StrategyNone && cm.IdentityType() == IdentityDatastore {
		if sup := cm.PCSuperclassMetaData(); sup != nil {
			return sup.IdentityStrategy()
		}
	}
	return cm.idStrategy
}

// SetIdentityStrategy sets the datastore identity strategy
func (cm *ClassMetaData) SetIdentityStrategy(s ValueStrategy) {
	cm.idStrategy = s
}

// IdentitySequenceName returns the sequence used for datastore identity
func (cm *ClassMetaData) IdentitySequenceName() string {
	if cm.idSeqName == "" {
		if sup := cm.PCSuperclassMetaData(); sup != nil {
			return sup.IdentitySequenceName()
		}
	}
	return cm.idSeqName
}

// SetIdentitySequenceName sets the datastore identity sequence
func (cm *ClassMetaData) SetIdentitySequenceName(name string) {
	cm.idSeqName = name
}

// ObjectIDType returns the identity class. Application identity types with a
// single primary key and no declared class get a built-in one.
func (cm *ClassMetaData) ObjectIDType() *Class {
	if cm.oidType != nil {
		return cm.oidType
	}
	if cm.oidMemo != nil {
		return cm.oidMemo
	}
	return cm.computeObjectIDType()
}

func (cm *ClassMetaData) computeObjectIDType() *Class {
	if sup := cm.PCSuperclassMetaData(); sup != nil {
		if oid := sup.ObjectIDType(); oid != nil {
			return oid
		}
	}
	if cm.IdentityType() != IdentityApplication {
		return nil
	}
	pks := cm.PrimaryKeyFields()
	if len(pks) != 1 || pks[0].ValueStrategy() == StrategyAutoassign {
		return nil
	}
	return builtinIDClass(pks[0].DeclaredTypeCode())
}

// SetObjectIDType sets the identity class
func (cm *ClassMetaData) SetObjectIDType(c *Class) {
	cm.oidType = c
	cm.oidMemo = nil
}

// IsBuiltinIdentity reports whether the identity class is a built-in
// single-field class
func (cm *ClassMetaData) IsBuiltinIdentity() bool {
	oid := cm.ObjectIDType()
	return oid != nil && oid.IsBuiltin()
}

// AccessType returns the access type. An unset access type is inherited
// from the persistent superclass; a type with no ancestor declaring one
// uses field access.
func (cm *ClassMetaData) AccessType() AccessType {
	if cm.access == AccessUnknown {
		if sup := cm.PCSuperclassMetaData(); sup != nil {
			return sup.AccessType()
		}
		return AccessField
	}
	return cm.access
}

// SetAccessType sets the access type
func (cm *ClassMetaData) SetAccessType(a AccessType) {
	cm.access = a
}

// CacheName returns the data cache name; "" disables caching
func (cm *ClassMetaData) CacheName() string {
	if cm.cacheNameSet {
		return cm.cacheName
	}
	if sup := cm.PCSuperclassMetaData(); sup != nil {
		return sup.CacheName()
	}
	return DefaultCacheName
}

// SetCacheName sets the data cache name
func (cm *ClassMetaData) SetCacheName(name string) {
	cm.cacheName = name
	cm.cacheNameSet = true
}

// CacheTimeout returns the cache timeout in milliseconds, -1 for none
func (cm *ClassMetaData) CacheTimeout() int {
	if cm.cacheTimeSet {
		return cm.cacheTimeout
	}
	if sup := cm.PCSuperclassMetaData(); sup != nil {
		return sup.CacheTimeout()
	}
	return -1
}

// SetCacheTimeout sets the cache timeout in milliseconds
func (cm *ClassMetaData) SetCacheTimeout(ms int) {
	cm.cacheTimeout = ms
	cm.cacheTimeSet = true
}

// IsCacheable reports whether instances go to the data cache, consulting the
// repository's include/exclude lists first
func (cm *ClassMetaData) IsCacheable() bool {
	if ok, decided := cm.repos.cachePolicy.decide(cm.typ); decided {
		return ok
	}
	return cm.CacheName() != ""
}

// IsDetachable reports whether instances can be detached
func (cm *ClassMetaData) IsDetachable() bool {
	if !cm.detachable.IsSet() {
		if sup := cm.PCSuperclassMetaData(); sup != nil {
			return sup.IsDetachable()
		}
	}
	return cm.detachable.Bool(false)
}

// SetDetachable sets the detachable flag
func (cm *ClassMetaData) SetDetachable(detachable bool) {
	cm.detachable = Of(detachable)
}

// DetachedState returns the detached-state field name
func (cm *ClassMetaData) DetachedState() string {
	if cm.detachedState == "" {
		if sup := cm.PCSuperclassMetaData(); sup != nil {
			return sup.DetachedState()
		}
	}
	return cm.detachedState
}

// SetDetachedState sets the detached-state field name
func (cm *ClassMetaData) SetDetachedState(name string) {
	cm.detachedState = name
}

// TypeAlias returns the alias used in queries; defaults to the simple name
func (cm *ClassMetaData) TypeAlias() string {
	if cm.alias == "" {
		return cm.typ.SimpleName()
	}
	return cm.alias
}

// SetTypeAlias sets the alias
func (cm *ClassMetaData) SetTypeAlias(alias string) {
	cm.alias = alias
}

// AddDeclaredField adds a field declared by this type, replacing a field of
// the same name
func (cm *ClassMetaData) AddDeclaredField(name string, typ *Class) *FieldMetaData {
	f := newFieldMetaData(name, typ, cm)
	if _, exists := cm.fields[name]; !exists {
		cm.fieldOrder = append(cm.fieldOrder, name)
	}
	cm.fields[name] = f
	cm.ClearFieldCache()
	return f
}

// RemoveDeclaredField removes a declared field
func (cm *ClassMetaData) RemoveDeclaredField(f *FieldMetaData) bool {
	if f == nil || cm.fields[f.name] != f {
		return false
	}
	delete(cm.fields, f.name)
	for i, name := range cm.fieldOrder {
		if name == f.name {
			cm.fieldOrder = append(cm.fieldOrder[:i], cm.fieldOrder[i+1:]...)
			break
		}
	}
	cm.ClearFieldCache()
	return true
}

// DeclaredField returns a managed field declared by this type
func (cm *ClassMetaData) DeclaredField(name string) *FieldMetaData {
	if f := cm.fields[name]; f != nil && f.manage != ManageNone {
		return f
	}
	return nil
}

// DeclaredFields returns the managed fields declared by this type in
// declaration order
func (cm *ClassMetaData) DeclaredFields() []*FieldMetaData {
	cm.cacheMu.Lock()
	defer cm.cacheMu.Unlock()
	return cm.declaredFieldsLocked()
}

func (cm *ClassMetaData) declaredFieldsLocked() []*FieldMetaData {
	if cm.declFields == nil {
		fields := make([]*FieldMetaData, 0, len(cm.fieldOrder))
		for _, name := range cm.fieldOrder {
			if f := cm.fields[name]; f.manage != ManageNone {
				f.declIndex = len(fields)
				fields = append(fields, f)
			}
		}
		cm.declFields = fields
	}
	return cm.declFields
}

// DeclaredUnmanagedFields returns the declared fields with ManageNone
func (cm *ClassMetaData) DeclaredUnmanagedFields() []*FieldMetaData {
	cm.cacheMu.Lock()
	defer cm.cacheMu.Unlock()

	if cm.unmgdFields == nil {
		fields := []*FieldMetaData{}
		for _, name := range cm.fieldOrder {
			if f := cm.fields[name]; f.manage == ManageNone {
				fields = append(fields, f)
			}
		}
		cm.unmgdFields = fields
	}
	return cm.unmgdFields
}

// DeclaredUnmanagedField returns an unmanaged declared field
func (cm *ClassMetaData) DeclaredUnmanagedField(name string) *FieldMetaData {
	if f := cm.fields[name]; f != nil && f.manage == ManageNone {
		return f
	}
	return nil
}

// Fields returns every managed field: superclass fields first, with the
// fields this type redefines substituted, then the declared fields. Element
// i has Index() i.
func (cm *ClassMetaData) Fields() []*FieldMetaData {
	cm.cacheMu.Lock()
	defer cm.cacheMu.Unlock()
	return cm.fieldsLocked()
}

func (cm *ClassMetaData) fieldsLocked() []*FieldMetaData {
	if cm.allFields != nil {
		return cm.allFields
	}

	var fields []*FieldMetaData
	if sup := cm.PCSuperclassMetaData(); sup != nil {
		for _, f := range sup.Fields() {
			if rf, ok := cm.superFields[f.name]; ok {
				f = rf
			}
			fields = append(fields, f)
		}
	}
	fields = append(fields, cm.declaredFieldsLocked()...)

	for i, f := range fields {
		if f.owner == cm {
			f.index = i
		}
	}
	cm.allFields = fields
	return fields
}

// Field returns the managed field with the given name, searching superclass
// fields as well. A full name ("Type.field") selects the declaring type.
func (cm *ClassMetaData) Field(name string) *FieldMetaData {
	full := strings.Contains(name, ".")
	for _, f := range cm.Fields() {
		if f.name == name || (full && f.FullName() == name) {
			return f
		}
	}
	return nil
}

// FieldAt returns the field with the given absolute index
func (cm *ClassMetaData) FieldAt(index int) *FieldMetaData {
	fields := cm.Fields()
	if index < 0 || index >= len(fields) {
		return nil
	}
	return fields[index]
}

// PrimaryKeyFields returns the primary key fields in field order; each
// field's PrimaryKeyIndex is its position in the result
func (cm *ClassMetaData) PrimaryKeyFields() []*FieldMetaData {
	if sup := cm.PCSuperclassMetaData(); sup != nil {
		sup.PrimaryKeyFields()
	}

	cm.cacheMu.Lock()
	defer cm.cacheMu.Unlock()

	if cm.pkFields == nil {
		pks := []*FieldMetaData{}
		for _, f := range cm.fieldsLocked() {
			if !f.primaryKey {
				continue
			}
			if f.owner == cm {
				f.pkIndex = len(pks)
			}
			pks = append(pks, f)
		}
		cm.pkFields = pks
	}
	return cm.pkFields
}

// VersionField returns the version field, or nil
func (cm *ClassMetaData) VersionField() *FieldMetaData {
	for _, f := range cm.Fields() {
		if f.version {
			return f
		}
	}
	return nil
}

func (cm *ClassMetaData) versionFields() []*FieldMetaData {
	var result []*FieldMetaData
	for _, f := range cm.Fields() {
		if f.version {
			result = append(result, f)
		}
	}
	return result
}

// DefaultFetchGroupFields returns the fields in the default fetch group
func (cm *ClassMetaData) DefaultFetchGroupFields() []*FieldMetaData {
	cm.cacheMu.Lock()
	defer cm.cacheMu.Unlock()

	if cm.dfgFields == nil {
		dfg := []*FieldMetaData{}
		for _, f := range cm.fieldsLocked() {
			if f.IsInDefaultFetchGroup() {
				dfg = append(dfg, f)
			}
		}
		cm.dfgFields = dfg
	}
	return cm.dfgFields
}

// FieldsInListingOrder returns the fields ordered by listing index; fields
// without one follow in field order
func (cm *ClassMetaData) FieldsInListingOrder() []*FieldMetaData {
	cm.cacheMu.Lock()
	defer cm.cacheMu.Unlock()

	if cm.listingFields == nil {
		fields := append([]*FieldMetaData(nil), cm.fieldsLocked()...)
		sort.SliceStable(fields, func(i, j int) bool {
			a, b := fields[i].listIndex, fields[j].listIndex
			if a == -1 || b == -1 {
				return a != -1 && b == -1
			}
			return a < b
		})
		cm.listingFields = fields
	}
	return cm.listingFields
}

// DefinedFields returns the declared fields plus the superclass fields this
// type redefines
func (cm *ClassMetaData) DefinedFields() []*FieldMetaData {
	cm.cacheMu.Lock()
	defer cm.cacheMu.Unlock()

	if cm.definedFields == nil {
		var fields []*FieldMetaData
		for _, f := range cm.fieldsLocked() {
			if f.owner == cm {
				fields = append(fields, f)
			}
		}
		cm.definedFields = fields
	}
	return cm.definedFields
}

// DefinedSuperclassField returns this type's redefinition of an inherited
// field
func (cm *ClassMetaData) DefinedSuperclassField(name string) *FieldMetaData {
	return cm.superFields[name]
}

// IsAccessibleField reports whether the named field is managed by this type
// or an ancestor
func (cm *ClassMetaData) IsAccessibleField(name string) bool {
	if cm.DeclaredField(name) != nil || cm.superFields[name] != nil {
		return true
	}
	sup := cm.PCSuperclassMetaData()
	return sup != nil && sup.IsAccessibleField(name)
}

// DefineSuperclassFields creates local redefinitions of inherited fields
// declared by unmapped ancestors, or of every inherited field not yet
// redefined when force is set. It runs once.
func (cm *ClassMetaData) DefineSuperclassFields(force bool) error {
	cm.cacheMu.Lock()
	done := cm.defSupFields
	cm.defSupFields = true
	cm.cacheMu.Unlock()
	if done {
		return nil
	}

	sup := cm.PCSuperclassMetaData()
	if sup == nil {
		return nil
	}

	added := false
	for _, f := range sup.Fields() {
		if _, ok := cm.superFields[f.name]; ok {
			continue
		}
		if !force && f.DefiningMetaData().IsMapped() {
			continue
		}
		rf := newFieldMetaData(f.name, f.DeclaredType(), cm)
		rf.CopyFrom(f)
		rf.declaringType = f.DeclaringType()
		cm.superFields[f.name] = rf
		added = true

		if cm.resMode.Has(ModeMeta) {
			if err := rf.resolve(ModeMeta); err != nil {
				return err
			}
		}
	}
	if added {
		cm.log.Debug("redefined superclass fields", zap.Int("count", len(cm.superFields)))
		cm.ClearAllFieldCache()
	}
	return nil
}

// HasAbstractPKField reports whether the type or an ancestor is abstract and
// declares primary key fields
func (cm *ClassMetaData) HasAbstractPKField() bool {
	cm.cacheMu.Lock()
	memo := cm.abstractPK
	cm.cacheMu.Unlock()
	if memo.IsSet() {
		return memo == True
	}

	has := false
	if cm.abstract {
		for _, f := range cm.DeclaredFields() {
			if f.primaryKey {
				has = true
				break
			}
		}
	}
	if !has {
		if sup := cm.PCSuperclassMetaData(); sup != nil {
			has = sup.HasAbstractPKField()
		}
	}

	cm.cacheMu.Lock()
	cm.abstractPK = Of(has)
	cm.cacheMu.Unlock()
	return has
}

// ClearFieldCache drops the declared-field arrays and everything derived
// from them
func (cm *ClassMetaData) ClearFieldCache() {
	cm.cacheMu.Lock()
	cm.declFields = nil
	cm.unmgdFields = nil
	cm.abstractPK = Unset
	cm.cacheMu.Unlock()
	cm.ClearAllFieldCache()
}

// ClearAllFieldCache drops the arrays derived from the full field list
func (cm *ClassMetaData) ClearAllFieldCache() {
	cm.cacheMu.Lock()
	defer cm.cacheMu.Unlock()

	cm.allFields = nil
	cm.pkFields = nil
	cm.dfgFields = nil
	cm.listingFields = nil
	cm.clearDefinedFieldCacheLocked()
}

func (cm *ClassMetaData) clearDefinedFieldCacheLocked() {
	cm.definedFields = nil
}

// AddDeclaredFetchGroup adds a custom fetch group, or returns the existing
// one of that name
func (cm *ClassMetaData) AddDeclaredFetchGroup(name string) (*FetchGroup, error) {
	if name == "" {
		return nil, validationErr(cm, "", "empty fetch group name")
	}
	if IsBuiltinFetchGroup(name) {
		return nil, &InternalError{Message: fmt.Sprintf("cannot declare built-in fetch group %q", name)}
	}
	if fg, ok := cm.fetchGroups[name]; ok {
		return fg, nil
	}
	fg := newFetchGroup(cm, name)
	cm.fetchGroups[name] = fg
	cm.fgOrder = append(cm.fgOrder, name)
	cm.clearFetchGroupCache()
	return fg, nil
}

// RemoveDeclaredFetchGroup removes a custom fetch group
func (cm *ClassMetaData) RemoveDeclaredFetchGroup(name string) bool {
	if _, ok := cm.fetchGroups[name]; !ok {
		return false
	}
	delete(cm.fetchGroups, name)
	for i, n := range cm.fgOrder {
		if n == name {
			cm.fgOrder = append(cm.fgOrder[:i], cm.fgOrder[i+1:]...)
			break
		}
	}
	cm.clearFetchGroupCache()
	return true
}

// DeclaredFetchGroups returns the custom groups declared by this type
func (cm *ClassMetaData) DeclaredFetchGroups() []*FetchGroup {
	groups := make([]*FetchGroup, 0, len(cm.fgOrder))
	for _, name := range cm.fgOrder {
		groups = append(groups, cm.fetchGroups[name])
	}
	return groups
}

// FetchGroup returns the named group: a built-in, a declared group or one
// inherited from the superclass
func (cm *ClassMetaData) FetchGroup(name string) *FetchGroup {
	switch name {
	case FetchGroupDefault:
		return builtinDefault
	case FetchGroupAll:
		return builtinAll
	}
	if fg, ok := cm.fetchGroups[name]; ok {
		return fg
	}
	if sup := cm.PCSuperclassMetaData(); sup != nil {
		return sup.FetchGroup(name)
	}
	return nil
}

// CustomFetchGroups returns every custom group visible to this type, own
// declarations shadowing inherited ones
func (cm *ClassMetaData) CustomFetchGroups() []*FetchGroup {
	cm.cacheMu.Lock()
	cached := cm.customFGs
	cm.cacheMu.Unlock()
	if cached != nil {
		return cached
	}

	groups := []*FetchGroup{}
	if sup := cm.PCSuperclassMetaData(); sup != nil {
		for _, fg := range sup.CustomFetchGroups() {
			if _, shadowed := cm.fetchGroups[fg.name]; !shadowed {
				groups = append(groups, fg)
			}
		}
	}
	groups = append(groups, cm.DeclaredFetchGroups()...)

	cm.cacheMu.Lock()
	cm.customFGs = groups
	cm.cacheMu.Unlock()
	return groups
}

func (cm *ClassMetaData) clearFetchGroupCache() {
	cm.cacheMu.Lock()
	cm.customFGs = nil
	cm.cacheMu.Unlock()
}

// CopyFrom copies the declared state of other, which must describe the same
// type
func (cm *ClassMetaData) CopyFrom(other *ClassMetaData) error {
	if other.typ != cm.typ {
		return &InternalError{Message: fmt.Sprintf("cannot copy metadata of %s into %s", other.typ, cm.typ)}
	}

	cm.superType = other.superType
	cm.identity = other.identity
	cm.idStrategy = other.idStrategy
	cm.idSeqName = other.idSeqName
	cm.oidType = other.oidType
	cm.access = other.access
	cm.cacheName, cm.cacheNameSet = other.cacheName, other.cacheNameSet
	cm.cacheTimeout, cm.cacheTimeSet = other.cacheTimeout, other.cacheTimeSet
	cm.detachable = other.detachable
	cm.detachedState = other.detachedState
	cm.alias = other.alias
	cm.abstract = other.abstract
	cm.mapped = other.mapped
	cm.embeddedOnly = other.embeddedOnly
	cm.sourceName = other.sourceName

	for _, name := range other.fieldOrder {
		of := other.fields[name]
		f := cm.fields[name]
		if f == nil {
			f = cm.AddDeclaredField(name, of.DeclaredType())
		}
		f.CopyFrom(of)
		f.declaringType = nil
	}
	for _, ofg := range other.DeclaredFetchGroups() {
		fg, err := cm.AddDeclaredFetchGroup(ofg.name)
		if err != nil {
			return err
		}
		fg.copyFrom(ofg)
	}
	cm.ClearFieldCache()
	return nil
}

// Resolve runs the resolution phases in mode on this descriptor. It reports
// true when every phase had already run. A descriptor whose metadata phase
// has not run goes through the repository like MetaData does, so a failure
// evicts its whole batch.
func (cm *ClassMetaData) Resolve(mode Mode) (bool, error) {
	r := cm.repos
	r.lock()
	defer r.unlock()

	if r.closed {
		return false, ErrClosed
	}
	if cm.owner == nil && r.cachedMetaData(cm.typ) != cm {
		return false, &NotFoundError{Kind: "type", Name: cm.typ.Name}
	}
	if cm.resMode.Has(mode) {
		return true, nil
	}
	if cm.owner != nil {
		_, err := cm.resolve(mode)
		return false, r.finish(err)
	}

	if !cm.resMode.Has(ModeMeta) {
		if err := r.resolve(cm); err != nil {
			return false, r.finish(err)
		}
	}
	if _, err := cm.resolve(mode); err != nil {
		r.fail(cm, err)
		return false, r.finish(&reportedError{err: err})
	}
	return false, r.finish(nil)
}

func (cm *ClassMetaData) resolve(mode Mode) (bool, error) {
	if cm.resMode.Has(mode) {
		return true, nil
	}
	cur := cm.resMode
	cm.resMode |= mode

	if mode&ModeMeta != 0 && cur&ModeMeta == 0 {
		if err := cm.resolveMeta(); err != nil {
			return false, err
		}
		if cm.repos.validate&ValidateMeta != 0 {
			if err := newMetaValidator(cm).validateMeta(); err != nil {
				return false, err
			}
		}
	}
	if mode&ModeMapping != 0 && cur&ModeMapping == 0 {
		if err := cm.resolveMapping(); err != nil {
			return false, err
		}
		if cm.repos.validate&ValidateMapping != 0 {
			if err := newMetaValidator(cm).validateMapping(); err != nil {
				return false, err
			}
		}
	}
	if mode&ModeMappingInit != 0 && cur&ModeMappingInit == 0 {
		if err := cm.initializeMapping(); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (cm *ClassMetaData) resolveMeta() error {
	cm.log.Debug("resolve-meta")

	if cm.owner == nil {
		sup := cm.PCSuperclassMetaData()
		if cm.superType != nil && sup == nil {
			return validationErr(cm, "", "persistent superclass %s has no metadata", cm.superType.Name)
		}
		if sup != nil {
			if !sup.typ.IsAssignableFrom(cm.typ) {
				return validationErr(cm, "", "%s is not a supertype", sup.typ.Name)
			}
			if _, err := sup.resolve(ModeMeta); err != nil {
				return err
			}
		}
		cm.superMeta = sup
		cm.ClearAllFieldCache()
	}

	for _, f := range cm.DeclaredFields() {
		if !f.explicit && f.DeclaredType() == ObjectClass && !f.val.IsSerialized() {
			cm.log.Warn("removing untyped field", zap.String("field", f.name))
			cm.RemoveDeclaredField(f)
		}
	}

	for _, f := range cm.DeclaredFields() {
		if err := f.resolve(ModeMeta); err != nil {
			return err
		}
	}
	for _, f := range cm.superFields {
		if err := f.resolve(ModeMeta); err != nil {
			return err
		}
	}

	if cm.owner == nil {
		if err := cm.checkSupported(); err != nil {
			return err
		}
		cm.identityMemo = cm.computeIdentityType()
		cm.oidMemo = cm.computeObjectIDType()
	}

	for _, fg := range cm.DeclaredFetchGroups() {
		if err := fg.resolve(); err != nil {
			return err
		}
	}
	return nil
}

// checkSupported rejects identity types and strategies the repository was
// not configured for
func (cm *ClassMetaData) checkSupported() error {
	id := cm.IdentityType()
	if id != IdentityUnknown && !cm.repos.supportsIdentity(id) {
		return &UnsupportedError{Type: cm.typ.Name, Feature: id.String() + " identity"}
	}
	if s := cm.idStrategy; s != StrategyNone && !cm.repos.supportsStrategy(s) {
		return &UnsupportedError{Type: cm.typ.Name, Feature: "identity strategy " + s.String()}
	}
	return nil
}

func (cm *ClassMetaData) resolveMapping() error {
	cm.log.Debug("resolve-mapping")

	for _, f := range cm.DefinedFields() {
		if err := f.resolve(ModeMapping); err != nil {
			return err
		}
	}
	if m := cm.repos.mapper; m != nil {
		return m.ResolveMapping(cm)
	}
	return nil
}

func (cm *ClassMetaData) initializeMapping() error {
	cm.log.Debug("init-mapping")

	if m := cm.repos.mapper; m != nil {
		return m.InitializeMapping(cm)
	}
	return nil
}

func (cm *ClassMetaData) String() string {
	return cm.typ.Name
}
