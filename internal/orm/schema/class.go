package schema

import (
	"strings"
	"sync"
)

// Class is the native description of a type: its name, supertype chain and
// members. Classes are defined in a Loader, which plays the role of the
// environment the type was loaded from.
type Class struct {
	Name       string
	Super      *Class
	Interfaces []*Class
	Interface  bool
	Abstract   bool

	// Equality marks types that define value equality, which application
	// identity classes must.
	Equality bool

	Kind TypeCode
	Elem *Class
	Key  *Class

	Members []Member

	builtin bool
	loader  *Loader
}

// Member is a native field of a Class
type Member struct {
	Name      string
	Type      *Class
	Key       *Class
	Elem      *Class
	Transient bool
}

// SimpleName returns the name without its package qualifier
func (c *Class) SimpleName() string {
	if i := strings.LastIndexAny(c.Name, "./"); i >= 0 {
		return c.Name[i+1:]
	}
	return c.Name
}

// Loader returns the loader that defined the class
func (c *Class) Loader() *Loader {
	return c.loader
}

// IsBuiltin reports whether the class is one of the predefined value types
func (c *Class) IsBuiltin() bool {
	return c.builtin
}

// IsAssignableFrom reports whether other is c or one of c's subtypes
func (c *Class) IsAssignableFrom(other *Class) bool {
	if other == nil {
		return false
	}
	if c == other {
		return true
	}
	if other.Super != nil && c.IsAssignableFrom(other.Super) {
		return true
	}
	for _, iface := range other.Interfaces {
		if c.IsAssignableFrom(iface) {
			return true
		}
	}
	return false
}

// LoadableBy reports whether l resolves c's name to c itself
func (c *Class) LoadableBy(l *Loader) bool {
	if l == nil || c.builtin {
		return true
	}
	found, ok := l.Load(c.Name)
	return ok && found == c
}

// Member returns the named member, or nil
func (c *Class) Member(name string) *Member {
	for i := range c.Members {
		if c.Members[i].Name == name {
			return &c.Members[i]
		}
	}
	return nil
}

func (c *Class) String() string {
	return c.Name
}

// Loader resolves type names to classes, delegating to its parent first.
type Loader struct {
	name   string
	parent *Loader

	mu      sync.RWMutex
	classes map[string]*Class
}

// NewLoader creates a loader; a nil parent delegates to the builtin types
func NewLoader(name string, parent *Loader) *Loader {
	if parent == nil && systemLoader != nil {
		parent = systemLoader
	}
	return &Loader{
		name:    name,
		parent:  parent,
		classes: make(map[string]*Class),
	}
}

// Name returns the loader name
func (l *Loader) Name() string {
	if l == nil {
		return "<nil>"
	}
	return l.name
}

// Parent returns the parent loader
func (l *Loader) Parent() *Loader {
	return l.parent
}

// Define registers classes with the loader. Classes already owned by another
// loader keep their owner.
func (l *Loader) Define(classes ...*Class) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range classes {
		if c.loader == nil {
			c.loader = l
		}
		l.classes[c.Name] = c
	}
}

// Load finds a class by name
func (l *Loader) Load(name string) (*Class, bool) {
	if l == nil {
		return nil, false
	}
	if l.parent != nil {
		if c, ok := l.parent.Load(name); ok {
			return c, true
		}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.classes[name]
	return c, ok
}

// Classes returns the classes defined directly in this loader
func (l *Loader) Classes() []*Class {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*Class, 0, len(l.classes))
	for _, c := range l.classes {
		result = append(result, c)
	}
	return result
}

var systemLoader *Loader

func builtin(name string, kind TypeCode) *Class {
	return &Class{Name: name, Kind: kind, builtin: true, Equality: true}
}

// Predefined value types
var (
	ObjectClass     = builtin("object", TypeObject)
	BoolClass       = builtin("bool", TypeBool)
	ByteClass       = builtin("byte", TypeByte)
	CharClass       = builtin("char", TypeChar)
	ShortClass      = builtin("short", TypeShort)
	IntClass        = builtin("int", TypeInt)
	LongClass       = builtin("long", TypeLong)
	FloatClass      = builtin("float", TypeFloat)
	DoubleClass     = builtin("double", TypeDouble)
	StringClass     = builtin("string", TypeString)
	NumberClass     = builtin("number", TypeNumber)
	DateClass       = builtin("date", TypeDate)
	BigDecimalClass = builtin("bigdecimal", TypeBigDecimal)
	BigIntegerClass = builtin("biginteger", TypeBigInteger)
	CollectionClass = builtin("collection", TypeCollection)
	ListClass       = builtin("list", TypeCollection)
	SetClass        = builtin("set", TypeCollection)
	MapClass        = builtin("map", TypeMap)

	// Built-in single-field identity classes
	IntIDClass    = builtin("id.int", TypeOID)
	LongIDClass   = builtin("id.long", TypeOID)
	StringIDClass = builtin("id.string", TypeOID)
	ObjectIDClass = builtin("id.object", TypeOID)
)

func init() {
	systemLoader = &Loader{name: "system", classes: make(map[string]*Class)}
	systemLoader.Define(ObjectClass, BoolClass, ByteClass, CharClass, ShortClass,
		IntClass, LongClass, FloatClass, DoubleClass, StringClass, NumberClass,
		DateClass, BigDecimalClass, BigIntegerClass, CollectionClass, ListClass,
		SetClass, MapClass, IntIDClass, LongIDClass, StringIDClass, ObjectIDClass)
	ListClass.Super = CollectionClass
	SetClass.Super = CollectionClass
}

// SystemLoader returns the loader holding the predefined value types
func SystemLoader() *Loader {
	return systemLoader
}

// ArrayOf returns an array class over elem
func ArrayOf(elem *Class) *Class {
	return &Class{Name: elem.Name + "[]", Kind: TypeArray, Elem: elem, builtin: true}
}

// builtinIDClass returns the single-field identity class for a key type code
func builtinIDClass(code TypeCode) *Class {
	switch code {
	case TypeByte, TypeShort, TypeInt, TypeChar:
		return IntIDClass
	case TypeLong:
		return LongIDClass
	case TypeString:
		return StringIDClass
	case TypeDate, TypeBigDecimal, TypeBigInteger, TypeObject:
		return ObjectIDClass
	default:
		return nil
	}
}
