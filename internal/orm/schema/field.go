package schema

import (
	"fmt"
	"strings"
)

// Order is one element of a field's ordering declaration
type Order struct {
	// Name is a field of the element type, or OrderElement for the element
	// value itself.
	Name string
	Asc  bool
}

// OrderElement orders by the element value itself
const OrderElement = "#element"

// FieldMetaData describes one managed field of a persistent type
type FieldMetaData struct {
	owner         *ClassMetaData
	name          string
	declaringType *Class

	val  *ValueMetaData
	key  *ValueMetaData
	elem *ValueMetaData

	manage     Management
	index      int
	declIndex  int
	pkIndex    int
	listIndex  int
	primaryKey bool
	version    bool
	explicit   bool
	nullValue  NullValue

	dfg            Tristate
	fetchGroups    []string
	loadFetchGroup string
	lrs            bool

	strategy     ValueStrategy
	seqName      string
	externalizer string
	factory      string

	orderDecl string
	orders    []Order

	mappedBy     string
	mappedByMeta *FieldMetaData
	inverse      string

	resolved Mode
}

func newFieldMetaData(name string, typ *Class, owner *ClassMetaData) *FieldMetaData {
	f := &FieldMetaData{
		owner:     owner,
		name:      name,
		index:     -1,
		declIndex: -1,
		pkIndex:   -1,
		listIndex: -1,
	}
	f.val = newValueMetaData(f, roleValue)
	f.key = newValueMetaData(f, roleKey)
	f.elem = newValueMetaData(f, roleElement)
	f.SetDeclaredType(typ)
	return f
}

// Name returns the field name
func (f *FieldMetaData) Name() string {
	return f.name
}

// DefiningMetaData returns the descriptor that holds this field
func (f *FieldMetaData) DefiningMetaData() *ClassMetaData {
	return f.owner
}

// DeclaringType returns the type that declares the field. It defaults to the
// owner's type and differs when a subtype redefines an inherited field.
func (f *FieldMetaData) DeclaringType() *Class {
	if f.declaringType == nil {
		return f.owner.DescribedType()
	}
	return f.declaringType
}

// SetDeclaringType sets the declaring type
func (f *FieldMetaData) SetDeclaringType(c *Class) {
	f.declaringType = c
}

// DeclaringMetaData returns the descriptor of the declaring type
func (f *FieldMetaData) DeclaringMetaData() *ClassMetaData {
	if f.declaringType == nil || f.declaringType == f.owner.DescribedType() {
		return f.owner
	}
	for sup := f.owner.PCSuperclassMetaData(); sup != nil; sup = sup.PCSuperclassMetaData() {
		if sup.DescribedType() == f.declaringType {
			return sup
		}
	}
	return f.owner.repos.cachedMetaData(f.declaringType)
}

// FullName returns "<declaring type>.<name>"
func (f *FieldMetaData) FullName() string {
	return f.DeclaringType().Name + "." + f.name
}

// Value returns the value slot
func (f *FieldMetaData) Value() *ValueMetaData { return f.val }

// Key returns the map key slot
func (f *FieldMetaData) Key() *ValueMetaData { return f.key }

// Element returns the collection/array/map-value element slot
func (f *FieldMetaData) Element() *ValueMetaData { return f.elem }

// DeclaredType returns the declared class of the field
func (f *FieldMetaData) DeclaredType() *Class {
	return f.val.DeclaredType()
}

// SetDeclaredType sets the declared class; element and key default from the
// class' own element and key types
func (f *FieldMetaData) SetDeclaredType(c *Class) {
	f.val.SetDeclaredType(c)
	if c == nil {
		return
	}
	if c.Elem != nil && f.elem.DeclaredType() == nil {
		f.elem.SetDeclaredType(c.Elem)
	}
	if c.Key != nil && f.key.DeclaredType() == nil {
		f.key.SetDeclaredType(c.Key)
	}
}

// DeclaredTypeCode returns the value's declared type code
func (f *FieldMetaData) DeclaredTypeCode() TypeCode {
	return f.val.DeclaredTypeCode()
}

// TypeCode returns the value's resolved type code
func (f *FieldMetaData) TypeCode() TypeCode {
	return f.val.TypeCode()
}

// Management returns the management level
func (f *FieldMetaData) Management() Management {
	return f.manage
}

// SetManagement sets the management level
func (f *FieldMetaData) SetManagement(m Management) {
	f.manage = m
	f.owner.ClearFieldCache()
}

// Index returns the absolute index in the owner's Fields array
func (f *FieldMetaData) Index() int { return f.index }

// DeclaredIndex returns the index among the owner's declared fields
func (f *FieldMetaData) DeclaredIndex() int { return f.declIndex }

// PrimaryKeyIndex returns the position among the owner's primary keys
func (f *FieldMetaData) PrimaryKeyIndex() int { return f.pkIndex }

// ListingIndex returns the declaration listing position, or -1
func (f *FieldMetaData) ListingIndex() int { return f.listIndex }

// SetListingIndex sets the listing position
func (f *FieldMetaData) SetListingIndex(i int) {
	f.listIndex = i
	f.owner.ClearAllFieldCache()
}

// IsPrimaryKey reports whether the field is part of the primary key
func (f *FieldMetaData) IsPrimaryKey() bool { return f.primaryKey }

// SetPrimaryKey sets the primary-key flag
func (f *FieldMetaData) SetPrimaryKey(pk bool) {
	f.primaryKey = pk
	f.owner.ClearFieldCache()
}

// IsVersion reports whether the field holds the optimistic version
func (f *FieldMetaData) IsVersion() bool { return f.version }

// SetVersion sets the version flag
func (f *FieldMetaData) SetVersion(version bool) {
	f.version = version
	f.owner.ClearFieldCache()
}

// IsExplicit reports whether the field was declared by metadata rather than
// inferred by a populator
func (f *FieldMetaData) IsExplicit() bool { return f.explicit }

// SetExplicit sets the explicit flag
func (f *FieldMetaData) SetExplicit(explicit bool) { f.explicit = explicit }

// NullValue returns the null-value policy
func (f *FieldMetaData) NullValue() NullValue { return f.nullValue }

// SetNullValue sets the null-value policy
func (f *FieldMetaData) SetNullValue(n NullValue) { f.nullValue = n }

// IsInDefaultFetchGroup reports default fetch group membership. When not set
// explicitly it is computed from the field's type.
func (f *FieldMetaData) IsInDefaultFetchGroup() bool {
	if f.dfg.IsSet() {
		return f.dfg == True
	}
	if f.manage != ManagePersistent || f.primaryKey || f.version {
		return false
	}
	switch f.TypeCode() {
	case TypeObject:
		return f.val.IsSerialized() || f.DeclaredType() == ObjectClass
	case TypeArray, TypeCollection, TypeMap, TypePC, TypePCUntyped:
		return false
	default:
		return true
	}
}

// IsDefaultFetchGroupExplicit reports whether membership was set explicitly
func (f *FieldMetaData) IsDefaultFetchGroupExplicit() bool {
	return f.dfg.IsSet()
}

// SetInDefaultFetchGroup sets default fetch group membership explicitly
func (f *FieldMetaData) SetInDefaultFetchGroup(in bool) {
	f.dfg = Of(in)
	f.owner.ClearAllFieldCache()
}

// CustomFetchGroups returns the names of the custom groups the field is in
func (f *FieldMetaData) CustomFetchGroups() []string {
	return append([]string(nil), f.fetchGroups...)
}

// IsInFetchGroup reports membership in the named group
func (f *FieldMetaData) IsInFetchGroup(name string) bool {
	switch name {
	case FetchGroupAll:
		return f.manage != ManageNone
	case FetchGroupDefault:
		return f.IsInDefaultFetchGroup()
	}
	for _, g := range f.fetchGroups {
		if g == name {
			return true
		}
	}
	return false
}

// SetInFetchGroup adds or removes membership in a custom group
func (f *FieldMetaData) SetInFetchGroup(name string, in bool) error {
	if name == "" {
		return validationErr(f.owner, f.name, "empty fetch group name")
	}
	if name == FetchGroupAll {
		return validationErr(f.owner, f.name, "cannot change membership of the %q fetch group", name)
	}
	if name == FetchGroupDefault {
		f.SetInDefaultFetchGroup(in)
		return nil
	}
	for i, g := range f.fetchGroups {
		if g == name {
			if !in {
				f.fetchGroups = append(f.fetchGroups[:i], f.fetchGroups[i+1:]...)
			}
			return nil
		}
	}
	if in {
		f.fetchGroups = append(f.fetchGroups, name)
	}
	return nil
}

// LoadFetchGroup returns the group loaded together with this field
func (f *FieldMetaData) LoadFetchGroup() string { return f.loadFetchGroup }

// SetLoadFetchGroup sets the load fetch group
func (f *FieldMetaData) SetLoadFetchGroup(name string) { f.loadFetchGroup = name }

// IsLRS reports whether the field is a large result set
func (f *FieldMetaData) IsLRS() bool { return f.lrs }

// SetLRS sets the large-result-set flag
func (f *FieldMetaData) SetLRS(lrs bool) { f.lrs = lrs }

// ValueStrategy returns the value-generation strategy
func (f *FieldMetaData) ValueStrategy() ValueStrategy { return f.strategy }

// SetValueStrategy sets the value-generation strategy
func (f *FieldMetaData) SetValueStrategy(s ValueStrategy) { f.strategy = s }

// ValueSequenceName returns the sequence used by the sequence strategy
func (f *FieldMetaData) ValueSequenceName() string { return f.seqName }

// SetValueSequenceName sets the value sequence name
func (f *FieldMetaData) SetValueSequenceName(name string) { f.seqName = name }

// Externalizer returns the externalizer method name
func (f *FieldMetaData) Externalizer() string { return f.externalizer }

// SetExternalizer sets the externalizer method name
func (f *FieldMetaData) SetExternalizer(name string) { f.externalizer = name }

// Factory returns the factory method name
func (f *FieldMetaData) Factory() string { return f.factory }

// SetFactory sets the factory method name
func (f *FieldMetaData) SetFactory(name string) { f.factory = name }

// IsExternalized reports whether an externalizer or factory is configured
func (f *FieldMetaData) IsExternalized() bool {
	return f.externalizer != "" || f.factory != ""
}

// OrderDeclaration returns the raw ordering declaration
func (f *FieldMetaData) OrderDeclaration() string { return f.orderDecl }

// SetOrderDeclaration sets the ordering declaration, e.g. "name asc, #element desc"
func (f *FieldMetaData) SetOrderDeclaration(decl string) {
	f.orderDecl = decl
	f.orders = nil
}

// Orders returns the parsed ordering; populated during resolution
func (f *FieldMetaData) Orders() []Order {
	return f.orders
}

// MappedBy returns the field of the related type that owns the relation
func (f *FieldMetaData) MappedBy() string { return f.mappedBy }

// SetMappedBy sets the mapped-by field name
func (f *FieldMetaData) SetMappedBy(name string) {
	f.mappedBy = name
	f.mappedByMeta = nil
}

// MappedByMetaData returns the field this one is mapped by
func (f *FieldMetaData) MappedByMetaData() *FieldMetaData {
	if f.mappedByMeta == nil && f.mappedBy != "" {
		if meta := f.relatedMetaData(); meta != nil {
			return meta.Field(f.mappedBy)
		}
	}
	return f.mappedByMeta
}

// InverseLogical returns the explicitly declared inverse field name
func (f *FieldMetaData) InverseLogical() string { return f.inverse }

// SetInverseLogical sets the declared inverse field name
func (f *FieldMetaData) SetInverseLogical(name string) { f.inverse = name }

// InverseMetaDatas returns the fields of the related type that point back
// at this field's owner
func (f *FieldMetaData) InverseMetaDatas() []*FieldMetaData {
	related := f.relatedMetaData()
	if related == nil {
		return nil
	}

	var result []*FieldMetaData
	for _, other := range related.Fields() {
		if other.mappedBy == f.name && f.owner.isAssignableTo(other.relatedMetaData()) {
			result = append(result, other)
			continue
		}
		if f.mappedBy != "" && other.name == f.mappedBy {
			result = append(result, other)
			continue
		}
		if f.inverse != "" && other.name == f.inverse {
			result = append(result, other)
		}
	}
	return result
}

// relatedMetaData returns the metadata of the value or element type
func (f *FieldMetaData) relatedMetaData() *ClassMetaData {
	switch f.TypeCode() {
	case TypePC:
		return f.val.TypeMetaData()
	case TypeCollection, TypeArray, TypeMap:
		return f.elem.TypeMetaData()
	}
	return nil
}

// CopyFrom copies the declared state of other into f, except name, owner and
// indexes
func (f *FieldMetaData) CopyFrom(other *FieldMetaData) {
	f.declaringType = other.declaringType
	f.manage = other.manage
	f.primaryKey = other.primaryKey
	f.version = other.version
	f.explicit = other.explicit
	f.nullValue = other.nullValue
	f.dfg = other.dfg
	f.fetchGroups = append([]string(nil), other.fetchGroups...)
	f.loadFetchGroup = other.loadFetchGroup
	f.lrs = other.lrs
	f.strategy = other.strategy
	f.seqName = other.seqName
	f.externalizer = other.externalizer
	f.factory = other.factory
	f.orderDecl = other.orderDecl
	f.orders = nil
	f.mappedBy = other.mappedBy
	f.mappedByMeta = nil
	f.inverse = other.inverse
	f.listIndex = other.listIndex

	f.val.CopyFrom(other.val)
	f.key.CopyFrom(other.key)
	f.elem.CopyFrom(other.elem)
}

func (f *FieldMetaData) String() string {
	return f.FullName()
}

// resolve resolves the field's value slots and validates its declaration
func (f *FieldMetaData) resolve(mode Mode) error {
	if f.resolved.Has(mode) {
		return nil
	}
	cur := f.resolved
	f.resolved |= mode
	if mode&ModeMeta == 0 || cur&ModeMeta != 0 {
		return nil
	}

	f.owner.log.Debug("resolve field")

	for _, v := range []*ValueMetaData{f.val, f.key, f.elem} {
		if err := v.resolve(ModeMeta); err != nil {
			return err
		}
	}

	if err := f.validateDeclaration(); err != nil {
		return err
	}

	if f.orderDecl != "" {
		orders, err := f.parseOrders()
		if err != nil {
			return err
		}
		f.orders = orders
	}

	if f.mappedBy != "" {
		related := f.relatedMetaData()
		if related == nil {
			return validationErr(f.owner, f.name, "mapped-by %q requires a persistent relation type", f.mappedBy)
		}
		mapped := related.Field(f.mappedBy)
		if mapped == nil {
			return validationErr(f.owner, f.name, "mapped-by field %q not found in %s", f.mappedBy, related.DescribedType().Name)
		}
		f.mappedByMeta = mapped
	}
	return nil
}

func (f *FieldMetaData) validateDeclaration() error {
	code := f.TypeCode()

	if f.primaryKey && code.IsContainer() {
		return validationErr(f.owner, f.name, "primary key field cannot be of container type %s", code)
	}
	if f.version {
		switch code {
		case TypeShort, TypeInt, TypeLong, TypeNumber, TypeDate, TypeBigInteger, TypeBigDecimal:
		default:
			return validationErr(f.owner, f.name, "version field has unsupported type %s", code)
		}
	}
	if f.lrs && code != TypeCollection && code != TypeMap {
		return validationErr(f.owner, f.name, "large result set requires a collection or map, got %s", code)
	}
	if f.factory != "" && f.externalizer == "" {
		return &ValidationError{
			Type:    f.owner.DescribedType().Name,
			Field:   f.name,
			Message: fmt.Sprintf("factory %q declared without an externalizer", f.factory),
			Hint:    "declare the externalizer that produces the stored form",
		}
	}

	switch f.strategy {
	case StrategyNone:
	case StrategyUUIDString, StrategyUUIDHex:
		if code != TypeString {
			return validationErr(f.owner, f.name, "strategy %s requires a string field", f.strategy)
		}
	default:
		if code != TypeString && !code.IsNumeric() {
			return validationErr(f.owner, f.name, "strategy %s requires a numeric field", f.strategy)
		}
	}
	if f.strategy != StrategyNone && !f.owner.repos.supportsStrategy(f.strategy) {
		return &UnsupportedError{Type: f.owner.DescribedType().Name, Feature: "value strategy " + f.strategy.String() + " on " + f.name}
	}
	return nil
}

func (f *FieldMetaData) parseOrders() ([]Order, error) {
	var orders []Order
	for _, part := range strings.Split(f.orderDecl, ",") {
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			continue
		}
		o := Order{Name: tokens[0], Asc: true}
		if len(tokens) > 1 {
			switch strings.ToLower(tokens[1]) {
			case "asc":
			case "desc":
				o.Asc = false
			default:
				return nil, validationErr(f.owner, f.name, "bad order direction %q", tokens[1])
			}
		}
		if o.Name != OrderElement {
			if meta := f.elem.TypeMetaData(); meta != nil && meta.Field(o.Name) == nil {
				return nil, validationErr(f.owner, f.name, "order field %q not found in %s", o.Name, meta.DescribedType().Name)
			}
		}
		orders = append(orders, o)
	}
	return orders, nil
}
