package schema

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// testFactory creates descriptors for the types it has a configure function
// for and nothing else
type testFactory struct {
	NoneFactory

	mu        sync.Mutex
	configure map[string]func(*ClassMetaData)
	names     []string
	loads     map[string]int
	mappings  map[string]int
}

func newTestFactory() *testFactory {
	return &testFactory{
		configure: make(map[string]func(*ClassMetaData)),
		loads:     make(map[string]int),
		mappings:  make(map[string]int),
	}
}

func (f *testFactory) define(c *Class, fn func(*ClassMetaData)) {
	if fn == nil {
		fn = func(*ClassMetaData) {}
	}
	f.configure[c.Name] = fn
}

func (f *testFactory) Load(t Target, cls *Class, mode Mode, loader *Loader) error {
	if cls == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if mode&ModeMapping != 0 {
		f.mappings[cls.Name]++
	}
	if mode&ModeMeta == 0 {
		return nil
	}
	fn, ok := f.configure[cls.Name]
	if !ok {
		return nil
	}
	f.loads[cls.Name]++
	meta, err := t.AddMetaData(cls, AccessField)
	if err != nil {
		return err
	}
	fn(meta)
	return nil
}

func (f *testFactory) PersistentTypeNames(bool, *Loader) []string {
	return f.names
}

func (f *testFactory) loadCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[name]
}

// recordingMapper records the mapping phases it took part in
type recordingMapper struct {
	mu       sync.Mutex
	prepared []string
	resolved []string
	inited   []string
	fail     map[string]error
}

func (m *recordingMapper) PrepareMapping(meta *ClassMetaData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepared = append(m.prepared, meta.DescribedType().Name)
	return nil
}

func (m *recordingMapper) ResolveMapping(meta *ClassMetaData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved = append(m.resolved, meta.DescribedType().Name)
	return m.fail[meta.DescribedType().Name]
}

func (m *recordingMapper) InitializeMapping(meta *ClassMetaData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inited = append(m.inited, meta.DescribedType().Name)
	return nil
}

func newTestRepository(t *testing.T, f Factory, opts ...func(*Options)) *Repository {
	t.Helper()

	o := DefaultOptions()
	o.Factory = f
	for _, fn := range opts {
		fn(&o)
	}
	r, err := NewRepository(o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func newClass(l *Loader, name string, super *Class, members ...Member) *Class {
	c := &Class{Name: name, Super: super, Members: members}
	l.Define(c)
	return c
}

func member(name string, typ *Class) Member {
	return Member{Name: name, Type: typ}
}

func fieldNames(fields []*FieldMetaData) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name()
	}
	return names
}

func primaryKey(names ...string) func(*ClassMetaData) {
	return func(meta *ClassMetaData) {
		meta.SetIdentityType(IdentityApplication)
		for _, name := range names {
			meta.DeclaredField(name).SetPrimaryKey(true)
		}
	}
}
