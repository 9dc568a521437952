// Package schema provides the in-memory metadata model for persistent types
// and the repository that loads, resolves, validates and caches it.
//
// A ClassMetaData describes one persistent type, a FieldMetaData one managed
// field, and a ValueMetaData one typed slot of a field (its value, map key or
// collection element). The Repository hands out descriptors only after they
// passed through the resolution phases its mode bits enable.
package schema

import (
	"fmt"
	"strings"
)

// Mode is a bitmask of resolution and loading phases.
type Mode int

const (
	ModeNone        Mode = 0
	ModeMeta        Mode = 1
	ModeMapping     Mode = 2
	ModeQuery       Mode = 4
	ModeMappingInit Mode = 8
	ModeAnnMapping  Mode = 16

	// ModeAll covers metadata, mapping and query sources.
	ModeAll = ModeMeta | ModeMapping | ModeQuery
)

var modeNames = []struct {
	mode Mode
	name string
}{
	{ModeMeta, "meta"},
	{ModeMapping, "mapping"},
	{ModeQuery, "query"},
	{ModeMappingInit, "mapping_init"},
	{ModeAnnMapping, "ann_mapping"},
}

// Has reports whether every bit of other is set in m.
func (m Mode) Has(other Mode) bool {
	return m&other == other
}

// With returns m with the bits of other set or cleared.
func (m Mode) With(other Mode, on bool) Mode {
	if on {
		return m | other
	}
	return m &^ other
}

// String returns the mode as a "|" separated list of phase names
func (m Mode) String() string {
	if m == ModeNone {
		return "none"
	}
	var parts []string
	for _, n := range modeNames {
		if m&n.mode != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseMode converts a "|" or "," separated list of phase names to a Mode
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "none" {
		return ModeNone, nil
	}
	var m Mode
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.TrimSpace(part)
		found := false
		for _, n := range modeNames {
			if n.name == part {
				m |= n.mode
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown mode: %s", part)
		}
	}
	return m, nil
}

// Validate is a bitmask of validation passes the repository runs.
type Validate int

const (
	ValidateNone    Validate = 0
	ValidateMeta    Validate = 1
	ValidateMapping Validate = 2
	// ValidateRuntime restricts lookups to the configured persistent type names.
	ValidateRuntime Validate = 8
)

// TypeCode classifies the runtime type of a value slot
type TypeCode int

const (
	TypeObject TypeCode = iota
	TypeBool
	TypeByte
	TypeChar
	TypeShort
	TypeInt
	TypeLong
	TypeFloat
	TypeDouble
	TypeString
	TypeNumber
	TypeDate
	TypeBigDecimal
	TypeBigInteger
	TypeArray
	TypeCollection
	TypeMap
	TypePC
	TypePCUntyped
	TypeOID
	TypeEnum
)

var typeCodeNames = map[TypeCode]string{
	TypeObject:     "object",
	TypeBool:       "bool",
	TypeByte:       "byte",
	TypeChar:       "char",
	TypeShort:      "short",
	TypeInt:        "int",
	TypeLong:       "long",
	TypeFloat:      "float",
	TypeDouble:     "double",
	TypeString:     "string",
	TypeNumber:     "number",
	TypeDate:       "date",
	TypeBigDecimal: "bigdecimal",
	TypeBigInteger: "biginteger",
	TypeArray:      "array",
	TypeCollection: "collection",
	TypeMap:        "map",
	TypePC:         "pc",
	TypePCUntyped:  "pc_untyped",
	TypeOID:        "oid",
	TypeEnum:       "enum",
}

// String returns the string representation of the type code
func (t TypeCode) String() string {
	if s, ok := typeCodeNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseTypeCode converts a string to a TypeCode
func ParseTypeCode(s string) (TypeCode, error) {
	for code, name := range typeCodeNames {
		if name == s {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown type code: %s", s)
}

// IsPrimitive returns true for the fixed-size scalar codes
func (t TypeCode) IsPrimitive() bool {
	return t >= TypeBool && t <= TypeDouble
}

// IsNumeric returns true if the code holds a number
func (t TypeCode) IsNumeric() bool {
	switch t {
	case TypeByte, TypeShort, TypeInt, TypeLong, TypeFloat, TypeDouble,
		TypeNumber, TypeBigDecimal, TypeBigInteger:
		return true
	}
	return false
}

// IsContainer returns true for arrays, collections and maps
func (t TypeCode) IsContainer() bool {
	return t == TypeArray || t == TypeCollection || t == TypeMap
}

// IdentityType is how instances of a persistent type are identified
type IdentityType int

const (
	IdentityUnknown IdentityType = iota
	IdentityDatastore
	IdentityApplication
)

// String returns the string representation of the identity type
func (i IdentityType) String() string {
	switch i {
	case IdentityDatastore:
		return "datastore"
	case IdentityApplication:
		return "application"
	default:
		return "unknown"
	}
}

// ParseIdentityType converts a string to an IdentityType
func ParseIdentityType(s string) (IdentityType, error) {
	switch s {
	case "", "unknown":
		return IdentityUnknown, nil
	case "datastore":
		return IdentityDatastore, nil
	case "application":
		return IdentityApplication, nil
	default:
		return 0, fmt.Errorf("unknown identity type: %s", s)
	}
}

// AccessType is how the persistence engine reaches managed state
type AccessType int

const (
	AccessUnknown AccessType = iota
	AccessField
	AccessProperty
)

// String returns the string representation of the access type
func (a AccessType) String() string {
	switch a {
	case AccessField:
		return "field"
	case AccessProperty:
		return "property"
	default:
		return "unknown"
	}
}

// ParseAccessType converts a string to an AccessType
func ParseAccessType(s string) (AccessType, error) {
	switch s {
	case "", "unknown":
		return AccessUnknown, nil
	case "field":
		return AccessField, nil
	case "property":
		return AccessProperty, nil
	default:
		return 0, fmt.Errorf("unknown access type: %s", s)
	}
}

// Management is the level at which a field is managed
type Management int

const (
	ManagePersistent Management = iota
	ManageTransactional
	ManageNone
)

// String returns the string representation of the management level
func (m Management) String() string {
	switch m {
	case ManagePersistent:
		return "persistent"
	case ManageTransactional:
		return "transactional"
	default:
		return "none"
	}
}

// ParseManagement converts a string to a Management level
func ParseManagement(s string) (Management, error) {
	switch s {
	case "", "persistent":
		return ManagePersistent, nil
	case "transactional":
		return ManageTransactional, nil
	case "none":
		return ManageNone, nil
	default:
		return 0, fmt.Errorf("unknown management level: %s", s)
	}
}

// NullValue is the policy applied when a null is stored
type NullValue int

const (
	NullNone NullValue = iota
	NullDefault
	NullException
)

// String returns the string representation of the null-value policy
func (n NullValue) String() string {
	switch n {
	case NullDefault:
		return "default"
	case NullException:
		return "exception"
	default:
		return "none"
	}
}

// ParseNullValue converts a string to a NullValue policy
func ParseNullValue(s string) (NullValue, error) {
	switch s {
	case "", "none":
		return NullNone, nil
	case "default":
		return NullDefault, nil
	case "exception":
		return NullException, nil
	default:
		return 0, fmt.Errorf("unknown null-value policy: %s", s)
	}
}

// ValueStrategy is a value-generation strategy
type ValueStrategy int

const (
	StrategyNone ValueStrategy = iota
	StrategyNative
	StrategySequence
	StrategyAutoassign
	StrategyIncrement
	StrategyUUIDString
	StrategyUUIDHex
)

var strategyNames = map[ValueStrategy]string{
	StrategyNone:       "none",
	StrategyNative:     "native",
	StrategySequence:   "sequence",
	StrategyAutoassign: "autoassign",
	StrategyIncrement:  "increment",
	StrategyUUIDString: "uuid-string",
	StrategyUUIDHex:    "uuid-hex",
}

// String returns the string representation of the value strategy
func (v ValueStrategy) String() string {
	if s, ok := strategyNames[v]; ok {
		return s
	}
	return "unknown"
}

// ParseValueStrategy converts a string to a ValueStrategy
func ParseValueStrategy(s string) (ValueStrategy, error) {
	if s == "" {
		return StrategyNone, nil
	}
	for v, name := range strategyNames {
		if name == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown value strategy: %s", s)
}

// Cascade is the cascade behavior of one operation over a value
type Cascade int

const (
	CascadeNone Cascade = iota
	CascadeImmediate
	CascadeAuto
)

// String returns the string representation of the cascade behavior
func (c Cascade) String() string {
	switch c {
	case CascadeImmediate:
		return "immediate"
	case CascadeAuto:
		return "auto"
	default:
		return "none"
	}
}

// ParseCascade converts a string to a Cascade behavior
func ParseCascade(s string) (Cascade, error) {
	switch s {
	case "", "none":
		return CascadeNone, nil
	case "immediate":
		return CascadeImmediate, nil
	case "auto":
		return CascadeAuto, nil
	default:
		return 0, fmt.Errorf("unknown cascade: %s", s)
	}
}

// CascadeOp names the operations a cascade setting applies to
type CascadeOp int

const (
	CascadeDelete CascadeOp = iota
	CascadePersist
	CascadeAttach
	CascadeDetach
	CascadeRefresh

	numCascadeOps
)

// String returns the string representation of the cascade operation
func (o CascadeOp) String() string {
	switch o {
	case CascadeDelete:
		return "delete"
	case CascadePersist:
		return "persist"
	case CascadeAttach:
		return "attach"
	case CascadeDetach:
		return "detach"
	case CascadeRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Tristate is an explicit-true / explicit-false / unset flag
type Tristate int

const (
	Unset Tristate = iota
	True
	False
)

// Of converts a bool to an explicit Tristate
func Of(b bool) Tristate {
	if b {
		return True
	}
	return False
}

// IsSet reports whether the value was explicitly set
func (t Tristate) IsSet() bool {
	return t != Unset
}

// Bool returns the value, falling back to def when unset
func (t Tristate) Bool(def bool) bool {
	switch t {
	case True:
		return true
	case False:
		return false
	default:
		return def
	}
}
