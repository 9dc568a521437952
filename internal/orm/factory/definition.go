// Package factory loads persistent type metadata from declarative YAML
// definitions and stores resolved descriptors as snapshots.
package factory

import (
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/conduit-lang/persist/internal/orm/schema"
)

// Definitions is the content of a definitions file
type Definitions struct {
	Types     []TypeDef     `json:"types,omitempty"`
	Sequences []SequenceDef `json:"sequences,omitempty"`
	// Queries are not bound to a defining type
	Queries []QueryDef `json:"queries,omitempty"`
}

// TypeDef declares the metadata of one persistent type
type TypeDef struct {
	Name       string   `json:"name"`
	Extends    string   `json:"extends,omitempty"`
	Interfaces []string `json:"interfaces,omitempty"`
	Abstract   bool     `json:"abstract,omitempty"`
	Alias      string   `json:"alias,omitempty"`

	Identity         string `json:"identity,omitempty"`
	IdentityStrategy string `json:"identityStrategy,omitempty"`
	IdentitySequence string `json:"identitySequence,omitempty"`
	ObjectID         string `json:"objectId,omitempty"`
	// ObjectIDEquality marks an identity class declared only here as
	// defining value equality
	ObjectIDEquality bool `json:"objectIdEquality,omitempty"`

	Access        string `json:"access,omitempty"`
	EmbeddedOnly  bool   `json:"embeddedOnly,omitempty"`
	Detachable    *bool  `json:"detachable,omitempty"`
	DetachedState string `json:"detachedState,omitempty"`
	Cache         *Cache `json:"cache,omitempty"`
	Mapped        *bool  `json:"mapped,omitempty"`

	Fields      []FieldDef      `json:"fields,omitempty"`
	FetchGroups []FetchGroupDef `json:"fetchGroups,omitempty"`
	Queries     []QueryDef      `json:"queries,omitempty"`
}

// Cache configures the data cache of a type
type Cache struct {
	Name    *string `json:"name,omitempty"`
	Timeout *int    `json:"timeout,omitempty"`
}

// FieldDef declares one field
type FieldDef struct {
	Name string `json:"name"`
	// Type, Key and Elem name a builtin or a type of the loader
	Type string `json:"type,omitempty"`
	Key  string `json:"key,omitempty"`
	Elem string `json:"elem,omitempty"`

	Management string `json:"management,omitempty"`
	PrimaryKey bool   `json:"primaryKey,omitempty"`
	Version    bool   `json:"version,omitempty"`
	NullValue  string `json:"nullValue,omitempty"`

	DefaultFetchGroup *bool    `json:"defaultFetchGroup,omitempty"`
	FetchGroups       []string `json:"fetchGroups,omitempty"`
	LoadFetchGroup    string   `json:"loadFetchGroup,omitempty"`
	LRS               bool     `json:"lrs,omitempty"`

	Strategy string `json:"strategy,omitempty"`
	Sequence string `json:"sequence,omitempty"`

	Externalizer string `json:"externalizer,omitempty"`
	Factory      string `json:"factory,omitempty"`

	Order    string `json:"order,omitempty"`
	MappedBy string `json:"mappedBy,omitempty"`
	Inverse  string `json:"inverse,omitempty"`

	Embedded     bool              `json:"embedded,omitempty"`
	ElemEmbedded bool              `json:"elemEmbedded,omitempty"`
	Serialized   bool              `json:"serialized,omitempty"`
	Cascade      map[string]string `json:"cascade,omitempty"`
}

// FetchGroupDef declares a custom fetch group
type FetchGroupDef struct {
	Name     string         `json:"name"`
	Includes []string       `json:"includes,omitempty"`
	PostLoad *bool          `json:"postLoad,omitempty"`
	Depths   map[string]int `json:"recursionDepths,omitempty"`
}

// QueryDef declares a named query
type QueryDef struct {
	Name     string                 `json:"name"`
	Language string                 `json:"language,omitempty"`
	Query    string                 `json:"query,omitempty"`
	Result   string                 `json:"result,omitempty"`
	ReadOnly bool                   `json:"readOnly,omitempty"`
	Hints    map[string]interface{} `json:"hints,omitempty"`
}

// SequenceDef declares a named sequence
type SequenceDef struct {
	Name      string `json:"name"`
	Strategy  string `json:"strategy,omitempty"`
	Plugin    string `json:"plugin,omitempty"`
	Initial   *int64 `json:"initial,omitempty"`
	Increment *int64 `json:"increment,omitempty"`
	Allocate  *int   `json:"allocate,omitempty"`
}

// Parse decodes definitions from YAML or JSON
func Parse(data []byte) (*Definitions, error) {
	var defs Definitions
	if err := yaml.UnmarshalStrict(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}
	if err := defs.Validate(); err != nil {
		return nil, err
	}
	return &defs, nil
}

// LoadFile reads and parses a definitions file
func LoadFile(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions: %w", err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Validate checks names are present and unique
func (d *Definitions) Validate() error {
	types := make(map[string]bool)
	for _, t := range d.Types {
		if t.Name == "" {
			return fmt.Errorf("type definition without a name")
		}
		if types[t.Name] {
			return fmt.Errorf("duplicate type definition: %s", t.Name)
		}
		types[t.Name] = true

		fields := make(map[string]bool)
		for _, f := range t.Fields {
			if f.Name == "" {
				return fmt.Errorf("field without a name in %s", t.Name)
			}
			if fields[f.Name] {
				return fmt.Errorf("duplicate field %s.%s", t.Name, f.Name)
			}
			fields[f.Name] = true
		}
	}

	seqs := make(map[string]bool)
	for _, s := range d.Sequences {
		if s.Name == "" {
			return fmt.Errorf("sequence definition without a name")
		}
		if seqs[s.Name] {
			return fmt.Errorf("duplicate sequence definition: %s", s.Name)
		}
		seqs[s.Name] = true
	}
	return nil
}

// DefineClasses declares the native types of the definitions in loader.
// Types the loader already knows are left alone, so definitions can
// describe types that were built with schema.ClassOf.
func (d *Definitions) DefineClasses(loader *schema.Loader) error {
	created := make(map[string]*schema.Class)
	for _, t := range d.Types {
		if _, ok := loader.Load(t.Name); ok {
			continue
		}
		c := &schema.Class{Name: t.Name, Abstract: t.Abstract}
		created[t.Name] = c
		loader.Define(c)
	}
	lookup := func(name string) (*schema.Class, error) {
		return classFor(name, loader)
	}

	for _, t := range d.Types {
		c, ok := created[t.Name]
		if !ok {
			continue
		}
		if t.Extends != "" {
			sup, err := lookup(t.Extends)
			if err != nil {
				return fmt.Errorf("%s: %w", t.Name, err)
			}
			c.Super = sup
		}
		for _, name := range t.Interfaces {
			iface, ok := loader.Load(name)
			if !ok {
				iface = &schema.Class{Name: name, Interface: true}
				loader.Define(iface)
			}
			c.Interfaces = append(c.Interfaces, iface)
		}
		for _, f := range t.Fields {
			m := schema.Member{Name: f.Name}
			var err error
			if m.Type, err = lookup(orDefault(f.Type, "object")); err != nil {
				return fmt.Errorf("%s.%s: %w", t.Name, f.Name, err)
			}
			if f.Key != "" {
				if m.Key, err = lookup(f.Key); err != nil {
					return fmt.Errorf("%s.%s: %w", t.Name, f.Name, err)
				}
			}
			if f.Elem != "" {
				if m.Elem, err = lookup(f.Elem); err != nil {
					return fmt.Errorf("%s.%s: %w", t.Name, f.Name, err)
				}
			}
			m.Transient = f.Management == schema.ManageNone.String()
			c.Members = append(c.Members, m)
		}
	}
	return nil
}

// classFor resolves a type name. A "[]" suffix denotes an array.
func classFor(name string, loader *schema.Loader) (*schema.Class, error) {
	if elem, ok := strings.CutSuffix(name, "[]"); ok {
		c, err := classFor(elem, loader)
		if err != nil {
			return nil, err
		}
		return schema.ArrayOf(c), nil
	}
	if c, ok := loader.Load(name); ok {
		return c, nil
	}
	return nil, &schema.NotFoundError{Kind: "type", Name: name}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
