package schema

import "fmt"

// Built-in fetch group names
const (
	FetchGroupDefault = "default"
	FetchGroupAll     = "all"
)

// Recursion depth settings
const (
	RecursionDepthDefault = 1
	DepthInfinite         = -1
)

var (
	builtinDefault = &FetchGroup{name: FetchGroupDefault, builtin: true, postLoad: True}
	builtinAll     = &FetchGroup{name: FetchGroupAll, builtin: true, postLoad: False}
)

// FetchGroup is a named set of fields loaded together. A group belongs to
// exactly one ClassMetaData, except the process-wide "default" and "all"
// groups which cannot be modified.
type FetchGroup struct {
	name     string
	meta     *ClassMetaData
	builtin  bool
	includes []string
	depths   map[string]int
	postLoad Tristate
	resolved bool
}

func newFetchGroup(meta *ClassMetaData, name string) *FetchGroup {
	return &FetchGroup{name: name, meta: meta}
}

// IsBuiltinFetchGroup reports whether name is one of the predefined groups
func IsBuiltinFetchGroup(name string) bool {
	return name == FetchGroupDefault || name == FetchGroupAll
}

// Name returns the group name
func (g *FetchGroup) Name() string {
	return g.name
}

// DeclaringMetaData returns the owning descriptor; nil for built-in groups
func (g *FetchGroup) DeclaringMetaData() *ClassMetaData {
	return g.meta
}

// IsBuiltin reports whether the group is a predefined singleton
func (g *FetchGroup) IsBuiltin() bool {
	return g.builtin
}

func (g *FetchGroup) immutable() error {
	if g.builtin {
		return &InternalError{Message: fmt.Sprintf("built-in fetch group %q cannot be modified", g.name)}
	}
	return nil
}

// AddDeclaredInclude adds a group this group includes
func (g *FetchGroup) AddDeclaredInclude(name string) error {
	if err := g.immutable(); err != nil {
		return err
	}
	for _, inc := range g.includes {
		if inc == name {
			return nil
		}
	}
	g.includes = append(g.includes, name)
	return nil
}

// RemoveDeclaredInclude removes an included group
func (g *FetchGroup) RemoveDeclaredInclude(name string) (bool, error) {
	if err := g.immutable(); err != nil {
		return false, err
	}
	for i, inc := range g.includes {
		if inc == name {
			g.includes = append(g.includes[:i], g.includes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// DeclaredIncludes returns the directly included group names
func (g *FetchGroup) DeclaredIncludes() []string {
	return append([]string(nil), g.includes...)
}

func (g *FetchGroup) includesDirectly(name string) bool {
	for _, inc := range g.includes {
		if inc == name {
			return true
		}
	}
	return false
}

// superGroup returns the same-named group of the persistent superclass
func (g *FetchGroup) superGroup() *FetchGroup {
	if g.meta == nil {
		return nil
	}
	sup := g.meta.PCSuperclassMetaData()
	if sup == nil {
		return nil
	}
	return sup.FetchGroup(g.name)
}

// Includes reports whether the group includes the named group. With recurse
// the included groups are searched too. The same-named group of the
// superclass is asked when neither holds it.
func (g *FetchGroup) Includes(name string, recurse bool) bool {
	if g.includesDirectly(name) {
		return true
	}
	if recurse && g.meta != nil {
		for _, inc := range g.includes {
			if fg := g.meta.FetchGroup(inc); fg != nil && fg.Includes(name, true) {
				return true
			}
		}
	}
	if sup := g.superGroup(); sup != nil {
		return sup.Includes(name, recurse)
	}
	return false
}

// includesGuarded is Includes(name, true) with a visited set so that cycles
// among other groups terminate
func (g *FetchGroup) includesGuarded(name string, visited map[*FetchGroup]bool) bool {
	if visited[g] {
		return false
	}
	visited[g] = true

	if g.includesDirectly(name) {
		return true
	}
	if g.meta != nil {
		for _, inc := range g.includes {
			if fg := g.meta.FetchGroup(inc); fg != nil && fg.includesGuarded(name, visited) {
				return true
			}
		}
	}
	if sup := g.superGroup(); sup != nil {
		return sup.includesGuarded(name, visited)
	}
	return false
}

// SetRecursionDepth sets the recursion depth of a field loaded through this
// group
func (g *FetchGroup) SetRecursionDepth(fm *FieldMetaData, depth int) error {
	if err := g.immutable(); err != nil {
		return err
	}
	if depth < DepthInfinite {
		return validationErr(g.meta, fm.Name(), "invalid recursion depth %d in fetch group %q", depth, g.name)
	}
	if g.depths == nil {
		g.depths = make(map[string]int)
	}
	g.depths[fm.FullName()] = depth
	return nil
}

// DeclaredRecursionDepth returns the depth set on this group only
func (g *FetchGroup) DeclaredRecursionDepth(fm *FieldMetaData) (int, bool) {
	d, ok := g.depths[fm.FullName()]
	return d, ok
}

// RecursionDepth returns the deepest setting found on this group, the
// superclass group and the included groups, or RecursionDepthDefault.
// DepthInfinite is deeper than any finite depth.
func (g *FetchGroup) RecursionDepth(fm *FieldMetaData) int {
	if d, ok := g.recursionDepth(fm, make(map[*FetchGroup]bool)); ok {
		return d
	}
	return RecursionDepthDefault
}

func (g *FetchGroup) recursionDepth(fm *FieldMetaData, visited map[*FetchGroup]bool) (int, bool) {
	if visited[g] {
		return 0, false
	}
	visited[g] = true

	depth, found := g.depths[fm.FullName()]
	if !found {
		if sup := g.superGroup(); sup != nil {
			depth, found = sup.recursionDepth(fm, visited)
		}
	}
	if g.meta != nil {
		for _, inc := range g.includes {
			fg := g.meta.FetchGroup(inc)
			if fg == nil {
				continue
			}
			if d, ok := fg.recursionDepth(fm, visited); ok && (!found || deeper(d, depth)) {
				depth, found = d, true
			}
		}
	}
	return depth, found
}

func deeper(a, b int) bool {
	if a == DepthInfinite {
		return b != DepthInfinite
	}
	if b == DepthInfinite {
		return false
	}
	return a > b
}

// IsPostLoad reports whether fields of the group load after the instance.
// Unset groups inherit from the superclass group; "default" post-loads.
func (g *FetchGroup) IsPostLoad() bool {
	if g.postLoad.IsSet() {
		return g.postLoad == True
	}
	if sup := g.superGroup(); sup != nil {
		return sup.IsPostLoad()
	}
	return g.name == FetchGroupDefault
}

// IsPostLoadExplicit reports whether post-load was set on this group
func (g *FetchGroup) IsPostLoadExplicit() bool {
	return g.postLoad.IsSet()
}

// SetPostLoad sets post-load behavior
func (g *FetchGroup) SetPostLoad(postLoad bool) error {
	if err := g.immutable(); err != nil {
		return err
	}
	g.postLoad = Of(postLoad)
	return nil
}

// copyFrom copies includes, depths and post-load from other
func (g *FetchGroup) copyFrom(other *FetchGroup) {
	g.includes = append([]string(nil), other.includes...)
	g.postLoad = other.postLoad
	if len(other.depths) > 0 {
		g.depths = make(map[string]int, len(other.depths))
		for k, v := range other.depths {
			g.depths[k] = v
		}
	}
}

// resolve checks the group's includes for cycles
func (g *FetchGroup) resolve() error {
	if g.resolved || g.builtin {
		return nil
	}
	g.resolved = true

	for _, inc := range g.includes {
		if inc == g.name {
			return validationErr(g.meta, "", "fetch group %q includes itself", g.name)
		}
		fg := g.meta.FetchGroup(inc)
		if fg == nil {
			return &ValidationError{
				Type:    g.meta.DescribedType().Name,
				Message: fmt.Sprintf("fetch group %q includes unknown fetch group %q", g.name, inc),
				Hint:    "declare the included fetch group on this type or a superclass",
			}
		}
		if fg.includesGuarded(g.name, make(map[*FetchGroup]bool)) {
			return validationErr(g.meta, "", "fetch groups %q and %q include each other", g.name, inc)
		}
	}
	return nil
}

func (g *FetchGroup) String() string {
	if g.meta == nil {
		return g.name
	}
	return g.meta.DescribedType().Name + "." + g.name
}
