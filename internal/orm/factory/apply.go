package factory

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/conduit-lang/persist/internal/orm/schema"
)

var cascadeOps = []schema.CascadeOp{
	schema.CascadeDelete,
	schema.CascadePersist,
	schema.CascadeAttach,
	schema.CascadeDetach,
	schema.CascadeRefresh,
}

// applyType copies the class-level settings and fields of def onto meta
func applyType(meta *schema.ClassMetaData, def *TypeDef, loader *schema.Loader) error {
	var err error

	identity, e := schema.ParseIdentityType(def.Identity)
	err = multierr.Append(err, e)
	if identity != schema.IdentityUnknown {
		meta.SetIdentityType(identity)
	}
	strategy, e := schema.ParseValueStrategy(def.IdentityStrategy)
	err = multierr.Append(err, e)
	if strategy != schema.StrategyNone {
		meta.SetIdentityStrategy(strategy)
	}
	if def.IdentitySequence != "" {
		meta.SetIdentitySequenceName(def.IdentitySequence)
	}
	if def.ObjectID != "" {
		oid, ok := loader.Load(def.ObjectID)
		if !ok {
			oid = &schema.Class{Name: def.ObjectID, Equality: def.ObjectIDEquality}
			loader.Define(oid)
		}
		meta.SetObjectIDType(oid)
	}

	access, e := schema.ParseAccessType(def.Access)
	err = multierr.Append(err, e)
	if access != schema.AccessUnknown {
		meta.SetAccessType(access)
	}
	if def.Alias != "" {
		meta.SetTypeAlias(def.Alias)
	}
	if def.Abstract {
		meta.SetAbstract(true)
	}
	if def.EmbeddedOnly {
		meta.SetEmbeddedOnly(true)
	}
	if def.Detachable != nil {
		meta.SetDetachable(*def.Detachable)
	}
	if def.DetachedState != "" {
		meta.SetDetachedState(def.DetachedState)
	}
	if def.Cache != nil {
		if def.Cache.Name != nil {
			meta.SetCacheName(*def.Cache.Name)
		}
		if def.Cache.Timeout != nil {
			meta.SetCacheTimeout(*def.Cache.Timeout)
		}
	}

	for i := range def.Fields {
		err = multierr.Append(err, applyField(meta, &def.Fields[i], loader))
	}
	for i := range def.FetchGroups {
		err = multierr.Append(err, applyFetchGroup(meta, &def.FetchGroups[i]))
	}
	if err != nil {
		return fmt.Errorf("definition of %s: %w", def.Name, err)
	}
	return nil
}

// declaredField finds a field of meta regardless of its management
func declaredField(meta *schema.ClassMetaData, name string) *schema.FieldMetaData {
	if f := meta.DeclaredField(name); f != nil {
		return f
	}
	return meta.DeclaredUnmanagedField(name)
}

// addField declares a field, taking key and element types from the native
// member of the same name
func addField(meta *schema.ClassMetaData, name string, typ *schema.Class) *schema.FieldMetaData {
	fm := meta.AddDeclaredField(name, typ)
	if m := meta.DescribedType().Member(name); m != nil {
		if m.Key != nil {
			fm.Key().SetDeclaredType(m.Key)
		}
		if m.Elem != nil {
			fm.Element().SetDeclaredType(m.Elem)
		}
	}
	return fm
}

func applyField(meta *schema.ClassMetaData, def *FieldDef, loader *schema.Loader) error {
	fm := declaredField(meta, def.Name)
	if def.Type != "" {
		typ, err := classFor(def.Type, loader)
		if err != nil {
			return fmt.Errorf("field %s: %w", def.Name, err)
		}
		if fm == nil || fm.DeclaredType() != typ {
			fm = addField(meta, def.Name, typ)
		}
	}
	if fm == nil {
		m := meta.DescribedType().Member(def.Name)
		if m == nil {
			return fmt.Errorf("field %s: no type declared", def.Name)
		}
		fm = addField(meta, def.Name, m.Type)
	}
	fm.SetExplicit(true)

	var err error
	if def.Key != "" {
		c, e := classFor(def.Key, loader)
		err = multierr.Append(err, e)
		if c != nil {
			fm.Key().SetDeclaredType(c)
		}
	}
	if def.Elem != "" {
		c, e := classFor(def.Elem, loader)
		err = multierr.Append(err, e)
		if c != nil {
			fm.Element().SetDeclaredType(c)
		}
	}

	manage, e := schema.ParseManagement(def.Management)
	err = multierr.Append(err, e)
	if manage != fm.Management() {
		fm.SetManagement(manage)
	}
	if def.PrimaryKey {
		fm.SetPrimaryKey(true)
	}
	if def.Version {
		fm.SetVersion(true)
	}
	null, e := schema.ParseNullValue(def.NullValue)
	err = multierr.Append(err, e)
	fm.SetNullValue(null)

	if def.DefaultFetchGroup != nil {
		fm.SetInDefaultFetchGroup(*def.DefaultFetchGroup)
	}
	for _, g := range def.FetchGroups {
		err = multierr.Append(err, fm.SetInFetchGroup(g, true))
	}
	if def.LoadFetchGroup != "" {
		fm.SetLoadFetchGroup(def.LoadFetchGroup)
	}
	if def.LRS {
		fm.SetLRS(true)
	}

	strategy, e := schema.ParseValueStrategy(def.Strategy)
	err = multierr.Append(err, e)
	if strategy != schema.StrategyNone {
		fm.SetValueStrategy(strategy)
	}
	if def.Sequence != "" {
		fm.SetValueSequenceName(def.Sequence)
	}
	if def.Externalizer != "" {
		fm.SetExternalizer(def.Externalizer)
	}
	if def.Factory != "" {
		fm.SetFactory(def.Factory)
	}
	if def.Order != "" {
		fm.SetOrderDeclaration(def.Order)
	}
	if def.MappedBy != "" {
		fm.SetMappedBy(def.MappedBy)
	}
	if def.Inverse != "" {
		fm.SetInverseLogical(def.Inverse)
	}

	if def.Embedded {
		fm.Value().SetEmbedded(true)
	}
	if def.ElemEmbedded {
		fm.Element().SetEmbedded(true)
	}
	if def.Serialized {
		fm.Value().SetSerialized(true)
	}
	for name, value := range def.Cascade {
		op, ok := parseCascadeOp(name)
		if !ok {
			err = multierr.Append(err, fmt.Errorf("field %s: unknown cascade operation: %s", def.Name, name))
			continue
		}
		c, e := schema.ParseCascade(value)
		if e != nil {
			err = multierr.Append(err, fmt.Errorf("field %s: %w", def.Name, e))
			continue
		}
		fm.Value().SetCascade(op, c)
	}
	return err
}

func parseCascadeOp(name string) (schema.CascadeOp, bool) {
	for _, op := range cascadeOps {
		if op.String() == name {
			return op, true
		}
	}
	return 0, false
}

func applyFetchGroup(meta *schema.ClassMetaData, def *FetchGroupDef) error {
	fg, err := meta.AddDeclaredFetchGroup(def.Name)
	if err != nil {
		return err
	}
	for _, inc := range def.Includes {
		err = multierr.Append(err, fg.AddDeclaredInclude(inc))
	}
	if def.PostLoad != nil {
		err = multierr.Append(err, fg.SetPostLoad(*def.PostLoad))
	}
	for name, depth := range def.Depths {
		fm := meta.DeclaredField(name)
		if fm == nil {
			err = multierr.Append(err, fmt.Errorf("fetch group %s: recursion depth for unknown field %s", def.Name, name))
			continue
		}
		err = multierr.Append(err, fg.SetRecursionDepth(fm, depth))
	}
	return err
}

func applyQuery(q *schema.QueryMetaData, def *QueryDef, loader *schema.Loader, source string) error {
	q.SetLanguage(orDefault(def.Language, q.Language()))
	q.SetQueryString(def.Query)
	q.SetReadOnly(def.ReadOnly)
	q.SetSource(source)
	for k, v := range def.Hints {
		q.AddHint(k, v)
	}
	if def.Result != "" {
		c, err := classFor(def.Result, loader)
		if err != nil {
			return fmt.Errorf("query %s: %w", def.Name, err)
		}
		q.SetResultType(c)
	}
	return nil
}

func applySequence(s *schema.SequenceMetaData, def *SequenceDef, source string) error {
	s.SetSource(source)
	if def.Strategy != "" {
		strategy, err := schema.ParseValueStrategy(def.Strategy)
		if err != nil {
			return fmt.Errorf("sequence %s: %w", def.Name, err)
		}
		s.SetStrategy(strategy)
	}
	if def.Plugin != "" {
		s.SetPlugin(def.Plugin)
	}
	if def.Initial != nil {
		s.SetInitial(*def.Initial)
	}
	if def.Increment != nil {
		s.SetIncrement(*def.Increment)
	}
	if def.Allocate != nil {
		s.SetAllocate(*def.Allocate)
	}
	return nil
}
