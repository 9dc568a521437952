package schema

import "sort"

// inheritanceDepth returns the length of the longest supertype path of c
func inheritanceDepth(c *Class) int {
	depth := 0
	if c.Super != nil {
		depth = inheritanceDepth(c.Super) + 1
	}
	for _, iface := range c.Interfaces {
		if d := inheritanceDepth(iface) + 1; d > depth {
			depth = d
		}
	}
	return depth
}

type bufferEntry struct {
	meta  *ClassMetaData
	depth int
	seq   int
}

// metaBuffer is the working set of descriptors resolving together. Entries
// sort supertypes before subtypes and keep insertion order otherwise.
type metaBuffer struct {
	entries []bufferEntry
	seq     int
}

// add inserts meta unless present and reports whether it was inserted
func (b *metaBuffer) add(meta *ClassMetaData) bool {
	if b.contains(meta) {
		return false
	}
	b.seq++
	e := bufferEntry{meta: meta, depth: inheritanceDepth(meta.DescribedType()), seq: b.seq}
	i := sort.Search(len(b.entries), func(i int) bool {
		o := b.entries[i]
		return o.depth > e.depth || (o.depth == e.depth && o.seq > e.seq)
	})
	b.entries = append(b.entries, bufferEntry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = e
	return true
}

func (b *metaBuffer) contains(meta *ClassMetaData) bool {
	for _, e := range b.entries {
		if e.meta == meta {
			return true
		}
	}
	return false
}

// first returns the least-derived entry
func (b *metaBuffer) first() *ClassMetaData {
	if len(b.entries) == 0 {
		return nil
	}
	return b.entries[0].meta
}

func (b *metaBuffer) remove(meta *ClassMetaData) {
	for i, e := range b.entries {
		if e.meta == meta {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

func (b *metaBuffer) len() int {
	return len(b.entries)
}

// drain empties the buffer and returns what it held
func (b *metaBuffer) drain() []*ClassMetaData {
	metas := make([]*ClassMetaData, len(b.entries))
	for i, e := range b.entries {
		metas[i] = e.meta
	}
	b.entries = nil
	return metas
}

// sortByInheritance orders metas supertypes first, stable otherwise
func sortByInheritance(metas []*ClassMetaData) {
	sort.SliceStable(metas, func(i, j int) bool {
		return inheritanceDepth(metas[i].DescribedType()) < inheritanceDepth(metas[j].DescribedType())
	})
}
