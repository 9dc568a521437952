package factory

import (
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// Describe renders the effective state of a descriptor as a definition that
// Load accepts again. Fields of superclasses are left to their own
// definitions.
func Describe(meta *schema.ClassMetaData) TypeDef {
	def := TypeDef{
		Name:             meta.DescribedType().Name,
		Abstract:         meta.IsAbstract(),
		EmbeddedOnly:     meta.IsEmbeddedOnly(),
		Identity:         identityName(meta.IdentityType()),
		IdentityStrategy: strategyName(meta.IdentityStrategy()),
		IdentitySequence: meta.IdentitySequenceName(),
		DetachedState:    meta.DetachedState(),
	}
	if sup := meta.PCSuperclass(); sup != nil {
		def.Extends = sup.Name
	}
	if alias := meta.TypeAlias(); alias != meta.DescribedType().SimpleName() {
		def.Alias = alias
	}
	if oid := meta.ObjectIDType(); oid != nil && !oid.IsBuiltin() {
		def.ObjectID = oid.Name
		def.ObjectIDEquality = oid.Equality
	}
	if access := meta.AccessType(); access != schema.AccessUnknown {
		def.Access = access.String()
	}
	if meta.IsDetachable() {
		detachable := true
		def.Detachable = &detachable
	}
	if name := meta.CacheName(); name != schema.DefaultCacheName || meta.CacheTimeout() >= 0 {
		timeout := meta.CacheTimeout()
		def.Cache = &Cache{Name: &name, Timeout: &timeout}
	}
	if !meta.IsMapped() {
		mapped := false
		def.Mapped = &mapped
	}

	for _, fm := range append(meta.DeclaredFields(), meta.DeclaredUnmanagedFields()...) {
		def.Fields = append(def.Fields, describeField(fm))
	}
	for _, fg := range meta.DeclaredFetchGroups() {
		def.FetchGroups = append(def.FetchGroups, describeFetchGroup(meta, fg))
	}
	return def
}

func describeField(fm *schema.FieldMetaData) FieldDef {
	def := FieldDef{
		Name:           fm.Name(),
		Type:           fm.DeclaredType().Name,
		PrimaryKey:     fm.IsPrimaryKey(),
		Version:        fm.IsVersion(),
		FetchGroups:    fm.CustomFetchGroups(),
		LoadFetchGroup: fm.LoadFetchGroup(),
		LRS:            fm.IsLRS(),
		Strategy:       strategyName(fm.ValueStrategy()),
		Sequence:       fm.ValueSequenceName(),
		Externalizer:   fm.Externalizer(),
		Factory:        fm.Factory(),
		Order:          fm.OrderDeclaration(),
		MappedBy:       fm.MappedBy(),
		Inverse:        fm.InverseLogical(),
		Embedded:       fm.Value().IsEmbedded(),
		ElemEmbedded:   fm.Element().IsEmbedded(),
		Serialized:     fm.Value().IsSerialized(),
	}
	if k := fm.Key().DeclaredType(); k != nil && k != schema.ObjectClass {
		def.Key = k.Name
	}
	if e := fm.Element().DeclaredType(); e != nil && e != schema.ObjectClass {
		def.Elem = e.Name
	}
	if m := fm.Management(); m != schema.ManagePersistent {
		def.Management = m.String()
	}
	if n := fm.NullValue(); n != schema.NullNone {
		def.NullValue = n.String()
	}
	if fm.IsDefaultFetchGroupExplicit() {
		in := fm.IsInDefaultFetchGroup()
		def.DefaultFetchGroup = &in
	}
	for _, op := range cascadeOps {
		if c := fm.Value().Cascade(op); c != schema.CascadeNone {
			if def.Cascade == nil {
				def.Cascade = make(map[string]string)
			}
			def.Cascade[op.String()] = c.String()
		}
	}
	return def
}

func describeFetchGroup(meta *schema.ClassMetaData, fg *schema.FetchGroup) FetchGroupDef {
	def := FetchGroupDef{
		Name:     fg.Name(),
		Includes: fg.DeclaredIncludes(),
	}
	if fg.IsPostLoadExplicit() {
		postLoad := fg.IsPostLoad()
		def.PostLoad = &postLoad
	}
	for _, fm := range meta.DeclaredFields() {
		if depth, ok := fg.DeclaredRecursionDepth(fm); ok {
			if def.Depths == nil {
				def.Depths = make(map[string]int)
			}
			def.Depths[fm.Name()] = depth
		}
	}
	return def
}

// DescribeQuery renders a query descriptor as a definition
func DescribeQuery(q *schema.QueryMetaData) QueryDef {
	def := QueryDef{
		Name:     q.Name(),
		Language: q.Language(),
		Query:    q.QueryString(),
		ReadOnly: q.IsReadOnly(),
	}
	if rt := q.ResultType(); rt != nil {
		def.Result = rt.Name
	}
	if hints := q.Hints(); len(hints) > 0 {
		def.Hints = hints
	}
	return def
}

// DescribeSequence renders a sequence descriptor as a definition
func DescribeSequence(s *schema.SequenceMetaData) SequenceDef {
	initial, increment, allocate := s.Initial(), s.Increment(), s.Allocate()
	return SequenceDef{
		Name:      s.Name(),
		Strategy:  strategyName(s.Strategy()),
		Plugin:    s.Plugin(),
		Initial:   &initial,
		Increment: &increment,
		Allocate:  &allocate,
	}
}

func identityName(id schema.IdentityType) string {
	if id == schema.IdentityUnknown {
		return ""
	}
	return id.String()
}

func strategyName(s schema.ValueStrategy) string {
	if s == schema.StrategyNone {
		return ""
	}
	return s.String()
}
