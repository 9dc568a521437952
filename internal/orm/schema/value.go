package schema

import "sync"

// valueRole tells which slot of its field a ValueMetaData describes
type valueRole int

const (
	roleValue valueRole = iota
	roleKey
	roleElement
)

func (r valueRole) String() string {
	switch r {
	case roleKey:
		return "key"
	case roleElement:
		return "element"
	default:
		return "value"
	}
}

// ValueMetaData describes a single typed slot: a field's value, its map key
// or its collection element.
type ValueMetaData struct {
	owner *FieldMetaData
	role  valueRole

	declType     *Class
	declCode     TypeCode
	typeOverride *Class
	code         TypeCode
	codeSet      bool

	declTypeMeta *ClassMetaData
	typeMeta     *ClassMetaData

	embedded     bool
	embedMu      sync.Mutex
	embeddedMeta *ClassMetaData

	cascades   [numCascadeOps]Cascade
	cascadeSet [numCascadeOps]bool
	serialized bool
	mappedBy   string

	resolved Mode
}

func newValueMetaData(owner *FieldMetaData, role valueRole) *ValueMetaData {
	return &ValueMetaData{owner: owner, role: role}
}

// FieldMetaData returns the owning field
func (v *ValueMetaData) FieldMetaData() *FieldMetaData {
	return v.owner
}

func (v *ValueMetaData) repository() *Repository {
	return v.owner.owner.repos
}

// DeclaredType returns the declared class of the slot
func (v *ValueMetaData) DeclaredType() *Class {
	return v.declType
}

// SetDeclaredType sets the declared class and recomputes its type code
func (v *ValueMetaData) SetDeclaredType(c *Class) {
	v.declType = c
	v.declTypeMeta = nil
	if c == nil {
		v.declCode = TypeObject
	} else {
		v.declCode = c.Kind
	}
	if !v.codeSet {
		v.code = v.declCode
	}
}

// DeclaredTypeCode returns the type code of the declared class
func (v *ValueMetaData) DeclaredTypeCode() TypeCode {
	return v.declCode
}

// Type returns the override class if set, else the declared class
func (v *ValueMetaData) Type() *Class {
	if v.typeOverride != nil {
		return v.typeOverride
	}
	return v.declType
}

// SetType overrides the declared class
func (v *ValueMetaData) SetType(c *Class) {
	v.typeOverride = c
	v.typeMeta = nil
	if c != nil && !v.codeSet {
		v.code = c.Kind
	}
}

// TypeCode returns the resolved type code
func (v *ValueMetaData) TypeCode() TypeCode {
	return v.code
}

// SetTypeCode overrides the resolved type code
func (v *ValueMetaData) SetTypeCode(code TypeCode) {
	v.code = code
	v.codeSet = true
}

// DeclaredTypeMetaData returns the metadata of the declared class, if cached
func (v *ValueMetaData) DeclaredTypeMetaData() *ClassMetaData {
	if v.declTypeMeta == nil && v.declType != nil && !v.declType.builtin {
		return v.repository().cachedMetaData(v.declType)
	}
	return v.declTypeMeta
}

// TypeMetaData returns the metadata of Type(), if cached
func (v *ValueMetaData) TypeMetaData() *ClassMetaData {
	if v.typeOverride == nil {
		return v.DeclaredTypeMetaData()
	}
	if v.typeMeta == nil && !v.typeOverride.builtin {
		return v.repository().cachedMetaData(v.typeOverride)
	}
	return v.typeMeta
}

// IsEmbedded reports whether the value is stored embedded in its owner
func (v *ValueMetaData) IsEmbedded() bool {
	return v.embedded
}

// SetEmbedded sets the embedded flag
func (v *ValueMetaData) SetEmbedded(embedded bool) {
	v.embedMu.Lock()
	defer v.embedMu.Unlock()
	v.embedded = embedded
	if !embedded {
		v.embeddedMeta = nil
	}
}

// IsEmbeddedPC reports whether the value is an embedded persistent type
func (v *ValueMetaData) IsEmbeddedPC() bool {
	return v.embedded && v.code == TypePC
}

// EmbeddedMetaData returns the embedded descriptor, creating it on first
// use. Concurrent callers get the same descriptor.
func (v *ValueMetaData) EmbeddedMetaData() *ClassMetaData {
	v.embedMu.Lock()
	defer v.embedMu.Unlock()
	if v.embedded && v.embeddedMeta == nil && v.Type() != nil {
		v.embeddedMeta = v.repository().newEmbeddedMetaData(v)
	}
	return v.embeddedMeta
}

// Cascade returns the cascade behavior for op. Embedded persistent values
// cascade immediately unless configured otherwise.
func (v *ValueMetaData) Cascade(op CascadeOp) Cascade {
	if !v.cascadeSet[op] && v.IsEmbeddedPC() {
		return CascadeImmediate
	}
	return v.cascades[op]
}

// SetCascade sets the cascade behavior for op
func (v *ValueMetaData) SetCascade(op CascadeOp, c Cascade) {
	v.cascades[op] = c
	v.cascadeSet[op] = true
}

// IsSerialized reports whether the value is stored serialized
func (v *ValueMetaData) IsSerialized() bool {
	return v.serialized
}

// SetSerialized sets the serialized flag
func (v *ValueMetaData) SetSerialized(serialized bool) {
	v.serialized = serialized
}

// ValueMappedBy returns the field of the related type that maps this value
func (v *ValueMetaData) ValueMappedBy() string {
	return v.mappedBy
}

// SetValueMappedBy sets the mapped-by field name
func (v *ValueMetaData) SetValueMappedBy(name string) {
	v.mappedBy = name
}

// CopyFrom copies the declared state of other into v
func (v *ValueMetaData) CopyFrom(other *ValueMetaData) {
	v.declType = other.declType
	v.declCode = other.declCode
	v.typeOverride = other.typeOverride
	v.code = other.code
	v.codeSet = other.codeSet
	v.embedded = other.embedded
	v.cascades = other.cascades
	v.cascadeSet = other.cascadeSet
	v.serialized = other.serialized
	v.mappedBy = other.mappedBy
	v.declTypeMeta = nil
	v.typeMeta = nil
	v.embedMu.Lock()
	v.embeddedMeta = nil
	v.embedMu.Unlock()
}

func (v *ValueMetaData) String() string {
	if v.role == roleValue {
		return v.owner.FullName()
	}
	return v.owner.FullName() + "<" + v.role.String() + ">"
}

// resolve looks up the metadata of the slot's types so relation slots turn
// into persistent-type slots. Lookups may enqueue the related type for
// resolution; they never resolve it in place.
func (v *ValueMetaData) resolve(mode Mode) error {
	if v.resolved.Has(mode) {
		return nil
	}
	cur := v.resolved
	v.resolved |= mode
	if mode&ModeMeta == 0 || cur&ModeMeta != 0 {
		return nil
	}

	r := v.repository()
	loader := v.owner.owner.loader

	if c := v.declType; c != nil && !c.builtin && v.declCode == TypeObject {
		meta, err := r.metaData(c, loader, false)
		if err != nil {
			return err
		}
		v.declTypeMeta = meta
		if meta != nil {
			v.declCode = TypePC
			if v.typeOverride == nil && !v.codeSet {
				v.code = TypePC
			}
		}
	}
	if c := v.typeOverride; c != nil && !c.builtin {
		meta, err := r.metaData(c, loader, false)
		if err != nil {
			return err
		}
		v.typeMeta = meta
		if meta != nil && !v.codeSet {
			v.code = TypePC
		}
	} else if v.typeOverride == nil {
		v.typeMeta = v.declTypeMeta
	}

	if v.embedded && v.code == TypePC {
		if embed := v.EmbeddedMetaData(); embed != nil {
			if _, err := embed.resolve(ModeMeta); err != nil {
				return err
			}
		}
	}
	return nil
}
