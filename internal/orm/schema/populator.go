package schema

import (
	"fmt"
	"sync"
)

// Populator seeds a new descriptor with the fields of its type. It runs once,
// when the repository creates the descriptor.
type Populator interface {
	Populate(meta *ClassMetaData, access AccessType) error
}

// PopulatorFunc adapts a function to Populator
type PopulatorFunc func(meta *ClassMetaData, access AccessType) error

// Populate calls f
func (f PopulatorFunc) Populate(meta *ClassMetaData, access AccessType) error {
	return f(meta, access)
}

// ReflectPopulator adds a field for every non-transient member of the
// described class
type ReflectPopulator struct{}

// Populate implements Populator
func (ReflectPopulator) Populate(meta *ClassMetaData, access AccessType) error {
	if access != AccessUnknown && meta.access == AccessUnknown {
		meta.SetAccessType(access)
	}

	for _, m := range meta.DescribedType().Members {
		if m.Transient || meta.fields[m.Name] != nil {
			continue
		}
		if m.Type == nil {
			return fmt.Errorf("%s.%s: member has no type", meta.DescribedType().Name, m.Name)
		}
		f := meta.AddDeclaredField(m.Name, m.Type)
		if m.Elem != nil {
			f.Element().SetDeclaredType(m.Elem)
		}
		if m.Key != nil {
			f.Key().SetDeclaredType(m.Key)
		}
	}
	return nil
}

// FieldSpec declares one field in a TypeRegistry
type FieldSpec struct {
	Name       string
	Type       *Class
	Elem       *Class
	Key        *Class
	PrimaryKey bool
	Version    bool
	Management Management
	Strategy   ValueStrategy
}

// TypeRegistry holds field declarations registered at runtime, keyed by type
// name
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string][]FieldSpec
}

// NewTypeRegistry creates an empty registry
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string][]FieldSpec)}
}

// Register declares the fields of a type, replacing earlier declarations
func (r *TypeRegistry) Register(typeName string, fields ...FieldSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.types[typeName] = append([]FieldSpec(nil), fields...)
}

// Fields returns the declarations of a type
func (r *TypeRegistry) Fields(typeName string) ([]FieldSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fields, ok := r.types[typeName]
	return fields, ok
}

// Names returns the registered type names
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}

// RegistryPopulator adds the fields registered for the type in a
// TypeRegistry. Types missing from the registry go to Fallback, if set.
type RegistryPopulator struct {
	Registry *TypeRegistry
	Fallback Populator
}

// Populate implements Populator
func (p RegistryPopulator) Populate(meta *ClassMetaData, access AccessType) error {
	specs, ok := p.Registry.Fields(meta.DescribedType().Name)
	if !ok {
		if p.Fallback != nil {
			return p.Fallback.Populate(meta, access)
		}
		return nil
	}
	if access != AccessUnknown && meta.access == AccessUnknown {
		meta.SetAccessType(access)
	}

	for _, spec := range specs {
		if spec.Type == nil {
			return fmt.Errorf("%s.%s: field has no type", meta.DescribedType().Name, spec.Name)
		}
		f := meta.AddDeclaredField(spec.Name, spec.Type)
		f.SetExplicit(true)
		if spec.Elem != nil {
			f.Element().SetDeclaredType(spec.Elem)
		}
		if spec.Key != nil {
			f.Key().SetDeclaredType(spec.Key)
		}
		f.SetManagement(spec.Management)
		f.SetPrimaryKey(spec.PrimaryKey)
		f.SetVersion(spec.Version)
		f.SetValueStrategy(spec.Strategy)
	}
	return nil
}
