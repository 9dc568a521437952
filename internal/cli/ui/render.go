package ui

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/conduit-lang/persist/internal/orm/schema"
)

// RenderTypes writes a one-line summary per descriptor
func RenderTypes(w io.Writer, metas []*schema.ClassMetaData, noColor bool) {
	t := NewTable(w, []string{"Type", "Alias", "Identity", "Fields", "Resolved"}, noColor)
	for _, meta := range metas {
		t.AddRow(
			meta.DescribedType().Name,
			meta.TypeAlias(),
			meta.IdentityType().String(),
			strconv.Itoa(len(meta.Fields())),
			meta.ResolveMode().String(),
		)
	}
	t.Render()
}

// RenderType writes the resolved state of one descriptor
func RenderType(w io.Writer, meta *schema.ClassMetaData, noColor bool) {
	Header(w, meta.DescribedType().Name, noColor)

	kv := NewKeyValueTable(w, noColor)
	kv.AddRowIf("Alias", meta.TypeAlias())
	if sup := meta.PCSuperclass(); sup != nil {
		kv.AddRow("Extends", sup.Name)
	}
	if subs := meta.PCSubclasses(); len(subs) > 0 {
		kv.AddRow("Subclasses", classNames(subs))
	}
	kv.AddRow("Identity", meta.IdentityType().String())
	if s := meta.IdentityStrategy(); s != schema.StrategyNone {
		kv.AddRow("Strategy", s.String())
	}
	kv.AddRowIf("Sequence", meta.IdentitySequenceName())
	if oid := meta.ObjectIDType(); oid != nil {
		kv.AddRow("Object ID", oid.Name)
	}
	kv.AddRow("Access", meta.AccessType().String())
	if meta.IsCacheable() {
		kv.AddRow("Cache", fmt.Sprintf("%s (timeout %d)", meta.CacheName(), meta.CacheTimeout()))
	} else {
		kv.AddRow("Cache", "none")
	}
	var flags []string
	if meta.IsAbstract() {
		flags = append(flags, "abstract")
	}
	if meta.IsEmbeddedOnly() {
		flags = append(flags, "embedded-only")
	}
	if meta.IsDetachable() {
		flags = append(flags, "detachable")
	}
	if !meta.IsMapped() {
		flags = append(flags, "unmapped")
	}
	kv.AddRowIf("Flags", strings.Join(flags, ", "))
	kv.AddRowIf("Source", meta.SourceName())
	kv.AddRow("Resolved", meta.ResolveMode().String())
	kv.Render()
	fmt.Fprintln(w)

	fields := NewTable(w, []string{"#", "Field", "Type", "Declared By", "Attributes"}, noColor)
	for _, fm := range meta.Fields() {
		fields.AddRow(
			strconv.Itoa(fm.Index()),
			fm.Name(),
			fieldType(fm),
			fm.DeclaringType().Name,
			strings.Join(fieldAttributes(fm), ", "),
		)
	}
	fields.Render()

	if groups := meta.CustomFetchGroups(); len(groups) > 0 {
		fmt.Fprintln(w)
		fg := NewTable(w, []string{"Fetch Group", "Includes", "Post Load"}, noColor)
		for _, g := range groups {
			fg.AddRow(g.Name(), strings.Join(g.DeclaredIncludes(), ", "), strconv.FormatBool(g.IsPostLoad()))
		}
		fg.Render()
	}
}

func fieldType(fm *schema.FieldMetaData) string {
	name := fm.DeclaredType().Name
	key, elem := fm.Key().DeclaredType(), fm.Element().DeclaredType()
	switch {
	case key != nil && key != schema.ObjectClass:
		value := schema.ObjectClass.Name
		if elem != nil {
			value = elem.Name
		}
		return fmt.Sprintf("%s<%s, %s>", name, key.Name, value)
	case elem != nil && elem != schema.ObjectClass && fm.DeclaredType().Kind != schema.TypeArray:
		return fmt.Sprintf("%s<%s>", name, elem.Name)
	}
	return name
}

func fieldAttributes(fm *schema.FieldMetaData) []string {
	var attrs []string
	if fm.IsPrimaryKey() {
		attrs = append(attrs, "pk")
	}
	if fm.IsVersion() {
		attrs = append(attrs, "version")
	}
	if fm.Management() != schema.ManagePersistent {
		attrs = append(attrs, fm.Management().String())
	}
	if fm.IsInDefaultFetchGroup() {
		attrs = append(attrs, "dfg")
	}
	if s := fm.ValueStrategy(); s != schema.StrategyNone {
		attrs = append(attrs, "strategy="+s.String())
	}
	if fm.MappedBy() != "" {
		attrs = append(attrs, "mappedBy="+fm.MappedBy())
	}
	if fm.OrderDeclaration() != "" {
		attrs = append(attrs, "order="+fm.OrderDeclaration())
	}
	if fm.IsLRS() {
		attrs = append(attrs, "lrs")
	}
	return attrs
}

// RenderReport writes a relation dependency report
func RenderReport(w io.Writer, report *schema.DependencyReport, noColor bool) {
	p := NewPalette(noColor)
	Header(w, fmt.Sprintf("Relations (%d types)", report.TotalTypes), noColor)

	if report.HasCycles {
		p.Warn.Fprintln(w, "Cycles:")
		for _, cycle := range report.CircularDeps {
			fmt.Fprintf(w, "  %s -> %s\n", strings.Join(cycle, " -> "), cycle[0])
		}
		fmt.Fprintln(w)
	}

	order := report.TopologicalOrder
	if len(order) == 0 {
		for name := range report.Dependencies {
			order = append(order, name)
		}
		sort.Strings(order)
	}

	l := NewList(w, !report.HasCycles, noColor)
	for _, name := range order {
		if deps := report.Dependencies[name]; len(deps) > 0 {
			l.AddItem(fmt.Sprintf("%s %s", name, p.Muted.Sprintf("(depends on: %s)", strings.Join(deps, ", "))))
		} else {
			l.AddItem(name)
		}
	}
	l.Render()
}

// RenderStats writes repository cache counts
func RenderStats(w io.Writer, stats schema.Stats, noColor bool) {
	kv := NewKeyValueTable(w, noColor)
	kv.AddRow("Types", strconv.Itoa(stats.Types))
	kv.AddRow("Resolved", strconv.Itoa(stats.Resolved))
	kv.AddRow("Queries", strconv.Itoa(stats.Queries))
	kv.AddRow("Sequences", strconv.Itoa(stats.Sequences))
	kv.AddRow("Aliases", strconv.Itoa(stats.Aliases))
	kv.Render()
}

func classNames(classes []*schema.Class) string {
	names := make([]string, len(classes))
	for i, c := range classes {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}
