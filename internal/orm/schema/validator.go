package schema

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// metaValidator checks a resolved descriptor for inconsistent declarations
type metaValidator struct {
	meta     *ClassMetaData
	errors   []error
	warnings []string
}

func newMetaValidator(meta *ClassMetaData) *metaValidator {
	return &metaValidator{meta: meta}
}

// validateMeta runs the metadata checks and combines their errors
func (v *metaValidator) validateMeta() error {
	if v.meta.owner == nil {
		v.validateIdentity()
		v.validateAccess()
		v.validatePersistenceAware()
	}
	v.validateVersion()
	v.validateDetachedState()
	v.validateFields()

	for _, w := range v.warnings {
		v.meta.log.Warn(w)
	}
	return multierr.Combine(v.errors...)
}

// validateMapping runs the mapping checks
func (v *metaValidator) validateMapping() error {
	v.validateMappedBy()
	v.validateEmbeddedKeys()
	return multierr.Combine(v.errors...)
}

func (v *metaValidator) fail(field, hint, format string, args ...interface{}) {
	e := validationErr(v.meta, field, format, args...)
	e.Hint = hint
	v.errors = append(v.errors, e)
}

// validateIdentity checks the identity type against the superclass and the
// identity class against the primary key fields
func (v *metaValidator) validateIdentity() {
	meta := v.meta
	id := meta.IdentityType()
	sup := meta.PCSuperclassMetaData()

	if sup != nil && meta.identity != IdentityUnknown {
		if supID := sup.IdentityType(); supID != IdentityUnknown && supID != meta.identity {
			v.fail("", "remove the identity declaration or match the superclass",
				"identity type %s does not match superclass %s identity type %s",
				meta.identity, sup.typ.Name, supID)
		}
	}

	pks := meta.PrimaryKeyFields()
	if id != IdentityApplication {
		for _, f := range meta.DeclaredFields() {
			if f.primaryKey {
				v.fail(f.name, "declare application identity to use primary key fields",
					"primary key field in type with %s identity", id)
			}
		}
	}

	switch id {
	case IdentityApplication:
		v.validateAppIdentity(sup, pks)
	case IdentityDatastore:
		if meta.IdentityStrategy() == StrategySequence && meta.IdentitySequenceName() == "" {
			v.fail("", "name the sequence to draw identity values from",
				"identity strategy sequence requires a sequence name")
		}
	case IdentityUnknown:
		if !meta.abstract {
			v.fail("", "", "no identity type")
		}
	}
}

func (v *metaValidator) validateAppIdentity(sup *ClassMetaData, pks []*FieldMetaData) {
	meta := v.meta
	if meta.idStrategy != StrategyNone {
		v.fail("", "use a value strategy on the primary key fields instead",
			"application identity cannot use identity strategy %s", meta.idStrategy)
	}
	if len(pks) == 0 {
		if !meta.abstract {
			v.fail("", "mark at least one field as primary key", "application identity without primary key fields")
		}
		return
	}

	oid := meta.ObjectIDType()
	if oid == nil {
		if !meta.abstract {
			v.fail("", "declare an identity class for compound or auto-assigned keys",
				"application identity requires an identity class")
		}
		return
	}
	if oid.IsBuiltin() {
		if len(pks) != 1 {
			v.fail("", "declare an identity class for compound keys",
				"built-in identity class %s needs exactly one primary key field, found %d", oid.Name, len(pks))
		}
	} else if !oid.Equality {
		v.fail("", "the identity class must define value equality",
			"identity class %s does not define equality", oid.Name)
	}

	if sup != nil {
		if supOID := sup.ObjectIDType(); supOID != nil && supOID != oid && !supOID.IsAssignableFrom(oid) {
			v.fail("", "", "identity class %s is not assignable to superclass identity class %s", oid.Name, supOID.Name)
		}
	}
}

// validateAccess checks access type consistency with ancestors that have fields
func (v *metaValidator) validateAccess() {
	meta := v.meta
	if meta.access == AccessUnknown {
		return
	}
	for sup := meta.PCSuperclassMetaData(); sup != nil; sup = sup.PCSuperclassMetaData() {
		if len(sup.DeclaredFields()) == 0 {
			continue
		}
		if supAccess := sup.AccessType(); supAccess != AccessUnknown && supAccess != meta.access {
			v.fail("", "", "access type %s conflicts with %s access of %s", meta.access, supAccess, sup.typ.Name)
		}
		return
	}
}

func (v *metaValidator) validatePersistenceAware() {
	if v.meta.repos.isPersistenceAware(v.meta.typ) {
		v.errors = append(v.errors, fmt.Errorf("%s: %w", v.meta.typ.Name, ErrPersistenceAware))
	}
}

func (v *metaValidator) validateVersion() {
	versions := v.meta.versionFields()
	if len(versions) > 1 {
		v.fail(versions[1].name, "", "duplicate version field, %s is already the version field", versions[0].FullName())
	}
}

func (v *metaValidator) validateDetachedState() {
	ds := v.meta.detachedState
	if ds == "" || ds == DetachedStateSynthetic {
		return
	}
	if v.meta.typ.Member(ds) == nil {
		v.fail(ds, "", "detached state field not found")
		return
	}
	if v.meta.DeclaredField(ds) != nil {
		v.fail(ds, "declare the detached state field as unmanaged", "detached state field is managed")
	}
}

func (v *metaValidator) validateFields() {
	for _, f := range v.meta.DeclaredFields() {
		if f.strategy == StrategySequence && f.seqName == "" {
			v.fail(f.name, "name the sequence to draw values from", "value strategy sequence requires a sequence name")
		}
		if f.loadFetchGroup != "" && v.meta.FetchGroup(f.loadFetchGroup) == nil {
			v.fail(f.name, "", "load fetch group %q not found", f.loadFetchGroup)
		}
		for _, g := range f.fetchGroups {
			if v.meta.FetchGroup(g) == nil {
				v.warnings = append(v.warnings, fmt.Sprintf("%s is in undeclared fetch group %q", f.FullName(), g))
			}
		}
	}
}

// validateMappedBy rejects relations mapped by each other
func (v *metaValidator) validateMappedBy() {
	for _, f := range v.meta.DefinedFields() {
		other := f.MappedByMetaData()
		if other != nil && other.mappedBy == f.name && other.MappedByMetaData() == f {
			v.fail(f.name, "only the inverse side declares mapped-by",
				"%s and %s are mapped by each other", f.FullName(), other.FullName())
		}
	}
}

// validateEmbeddedKeys rejects embedded-only types used as primary keys
func (v *metaValidator) validateEmbeddedKeys() {
	for _, f := range v.meta.PrimaryKeyFields() {
		if related := f.val.TypeMetaData(); related != nil && related.embeddedOnly {
			v.fail(f.name, "", "primary key field of embedded-only type %s", related.typ.Name)
		}
	}
	if len(v.warnings) > 0 {
		v.meta.log.Debug("mapping warnings", zap.Strings("warnings", v.warnings))
	}
}
