package schema

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryMetaData(t *testing.T) {
	t.Run("loads and resolves through the factory", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("id", LongClass), member("email", StringClass))

		f := newTestFactory()
		f.define(user, primaryKey("id"))
		r := newTestRepository(t, f)

		meta, err := r.MetaData(user, l, true)
		require.NoError(t, err)
		require.NotNil(t, meta)

		assert.True(t, meta.ResolveMode().Has(ModeMeta|ModeMapping))
		assert.True(t, meta.MappingLoaded())
		assert.Equal(t, IdentityApplication, meta.IdentityType())
		assert.Equal(t, LongIDClass, meta.ObjectIDType())
		assert.Equal(t, []string{"id", "email"}, fieldNames(meta.Fields()))
		assert.Equal(t, 1, f.loadCount("app.User"))
	})

	t.Run("cached descriptors are not loaded again", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("name", StringClass))

		f := newTestFactory()
		f.define(user, nil)
		r := newTestRepository(t, f)

		first, err := r.MetaData(user, l, true)
		require.NoError(t, err)
		second, err := r.MetaData(user, l, true)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, f.loadCount("app.User"))
	})

	t.Run("missing metadata", func(t *testing.T) {
		l := NewLoader("test", nil)
		plain := newClass(l, "app.Plain", nil)
		r := newTestRepository(t, newTestFactory())

		meta, err := r.MetaData(plain, l, false)
		require.NoError(t, err)
		assert.Nil(t, meta)

		_, err = r.MetaData(plain, l, true)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))

		var nf *NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "type", nf.Kind)
		assert.Equal(t, "app.Plain", nf.Name)
	})

	t.Run("built-in types have no metadata", func(t *testing.T) {
		r := newTestRepository(t, newTestFactory())

		meta, err := r.MetaData(StringClass, nil, false)
		require.NoError(t, err)
		assert.Nil(t, meta)
	})

	t.Run("closed repository", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil)
		r := newTestRepository(t, newTestFactory())
		require.NoError(t, r.Close())

		_, err := r.MetaData(user, l, true)
		assert.ErrorIs(t, err, ErrClosed)
		_, err = r.AddMetaData(user, AccessField)
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestRepositoryResolution(t *testing.T) {
	t.Run("resolving a resolved descriptor is a no-op", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("name", StringClass))

		f := newTestFactory()
		f.define(user, nil)
		r := newTestRepository(t, f)

		meta, err := r.MetaData(user, l, true)
		require.NoError(t, err)

		done, err := meta.Resolve(ModeMeta)
		require.NoError(t, err)
		assert.True(t, done)

		done, err = meta.Resolve(ModeMeta | ModeMapping)
		require.NoError(t, err)
		assert.True(t, done)
	})

	t.Run("mutually referencing types both resolve", func(t *testing.T) {
		l := NewLoader("test", nil)
		a := newClass(l, "app.A", nil)
		b := newClass(l, "app.B", nil)
		a.Members = []Member{member("b", b)}
		b.Members = []Member{member("a", a)}

		f := newTestFactory()
		f.define(a, nil)
		f.define(b, nil)
		r := newTestRepository(t, f)

		metaA, err := r.MetaData(a, l, true)
		require.NoError(t, err)

		metaB := r.CachedMetaData("app.B")
		require.NotNil(t, metaB)
		assert.True(t, metaA.ResolveMode().Has(ModeMeta|ModeMapping))
		assert.True(t, metaB.ResolveMode().Has(ModeMeta|ModeMapping))

		assert.Equal(t, TypePC, metaA.Field("b").TypeCode())
		assert.Same(t, metaB, metaA.Field("b").Value().TypeMetaData())
		assert.Same(t, metaA, metaB.Field("a").Value().TypeMetaData())
	})

	t.Run("one failure evicts the whole batch", func(t *testing.T) {
		l := NewLoader("test", nil)
		a := newClass(l, "app.A", nil)
		b := newClass(l, "app.B", nil)
		c := newClass(l, "app.C", nil)
		a.Members = []Member{member("b", b)}
		b.Members = []Member{member("c", c)}
		c.Members = []Member{member("a", a), member("stamp", StringClass)}

		f := newTestFactory()
		f.define(a, nil)
		f.define(b, nil)
		f.define(c, func(meta *ClassMetaData) {
			meta.DeclaredField("stamp").SetVersion(true)
		})
		r := newTestRepository(t, f)

		meta, err := r.MetaData(a, l, true)
		require.Error(t, err)
		assert.Nil(t, meta)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Contains(t, err.Error(), "app.C.stamp")

		assert.Nil(t, r.CachedMetaData("app.A"))
		assert.Nil(t, r.CachedMetaData("app.B"))
		assert.Nil(t, r.CachedMetaData("app.C"))
		assert.Empty(t, r.AllMetaData())
	})

	t.Run("errors do not leak into the next call", func(t *testing.T) {
		l := NewLoader("test", nil)
		bad := newClass(l, "app.Bad", nil, member("stamp", StringClass))
		good := newClass(l, "app.Good", nil, member("name", StringClass))

		f := newTestFactory()
		f.define(bad, func(meta *ClassMetaData) {
			meta.DeclaredField("stamp").SetVersion(true)
		})
		f.define(good, nil)
		r := newTestRepository(t, f)

		_, err := r.MetaData(bad, l, true)
		require.Error(t, err)

		meta, err := r.MetaData(good, l, true)
		require.NoError(t, err)
		assert.NotNil(t, meta)
	})

	t.Run("several failures are combined", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("v1", LongClass), member("v2", LongClass), member("id", LongClass))

		f := newTestFactory()
		f.define(user, func(meta *ClassMetaData) {
			meta.DeclaredField("v1").SetVersion(true)
			meta.DeclaredField("v2").SetVersion(true)
			meta.DeclaredField("id").SetPrimaryKey(true)
			meta.SetIdentityType(IdentityDatastore)
		})
		r := newTestRepository(t, f)

		_, err := r.MetaData(user, l, true)
		require.Error(t, err)
		assert.Len(t, Errors(err), 2)
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("superclass resolves first", func(t *testing.T) {
		l := NewLoader("test", nil)
		base := newClass(l, "app.Base", nil, member("id", LongClass))
		sub := newClass(l, "app.Sub", base, member("extra", StringClass))

		var order []string
		f := newTestFactory()
		f.define(base, primaryKey("id"))
		f.define(sub, nil)
		r := newTestRepository(t, f, func(o *Options) {
			o.Listeners = []Listener{ListenerFunc(func(meta *ClassMetaData) {
				order = append(order, meta.DescribedType().Name)
			})}
		})

		meta, err := r.MetaData(sub, l, true)
		require.NoError(t, err)

		assert.Equal(t, base, meta.PCSuperclass())
		assert.Equal(t, []string{"app.Base", "app.Sub"}, order)
		assert.Equal(t, []string{"id", "extra"}, fieldNames(meta.Fields()))
	})

	t.Run("resolve mode none hands out unresolved descriptors", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("name", StringClass))

		f := newTestFactory()
		f.define(user, nil)
		r := newTestRepository(t, f, func(o *Options) { o.Resolve = ModeNone })

		meta, err := r.MetaData(user, l, true)
		require.NoError(t, err)
		assert.Equal(t, ModeNone, meta.ResolveMode())
	})

	t.Run("unsupported identity type", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("id", LongClass))

		f := newTestFactory()
		f.define(user, primaryKey("id"))
		r := newTestRepository(t, f, func(o *Options) {
			o.IdentityTypes = []IdentityType{IdentityDatastore}
		})

		_, err := r.MetaData(user, l, true)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupported))
		assert.Nil(t, r.CachedMetaData("app.User"))
	})
}

func TestRepositoryMappingPhases(t *testing.T) {
	t.Run("mapper takes part in every phase", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("name", StringClass))

		f := newTestFactory()
		f.define(user, nil)
		m := &recordingMapper{}
		r := newTestRepository(t, f, func(o *Options) {
			o.Mapper = m
			o.Resolve = ModeMeta | ModeMapping | ModeMappingInit
		})

		meta, err := r.MetaData(user, l, true)
		require.NoError(t, err)

		assert.True(t, meta.ResolveMode().Has(ModeMappingInit))
		assert.Equal(t, []string{"app.User"}, m.prepared)
		assert.Equal(t, []string{"app.User"}, m.resolved)
		assert.Equal(t, []string{"app.User"}, m.inited)
		assert.Equal(t, 1, f.mappings["app.User"])
	})

	t.Run("mapping failure evicts the descriptor", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("name", StringClass))

		f := newTestFactory()
		f.define(user, nil)
		m := &recordingMapper{fail: map[string]error{"app.User": errors.New("no table")}}
		r := newTestRepository(t, f, func(o *Options) { o.Mapper = m })

		_, err := r.MetaData(user, l, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no table")
		assert.Nil(t, r.CachedMetaData("app.User"))
	})

	t.Run("embedded-only types load no mapping", func(t *testing.T) {
		l := NewLoader("test", nil)
		addr := newClass(l, "app.Address", nil, member("street", StringClass))

		f := newTestFactory()
		f.define(addr, func(meta *ClassMetaData) { meta.SetEmbeddedOnly(true) })
		r := newTestRepository(t, f)

		meta, err := r.MetaData(addr, l, true)
		require.NoError(t, err)
		assert.True(t, meta.MappingLoaded())
		assert.Zero(t, f.mappings["app.Address"])
	})
}

func TestRepositoryAddMetaData(t *testing.T) {
	t.Run("add populates from members", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil,
			member("name", StringClass),
			Member{Name: "cache", Type: MapClass, Transient: true})
		r := newTestRepository(t, nil)

		meta, err := r.AddMetaData(user, AccessProperty)
		require.NoError(t, err)
		assert.Equal(t, ModeNone, meta.ResolveMode())
		assert.Equal(t, AccessProperty, meta.AccessType())
		assert.Equal(t, []string{"name"}, fieldNames(meta.DeclaredFields()))
		assert.Same(t, meta, r.CachedMetaData("app.User"))
	})

	t.Run("added descriptors resolve on lookup", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("name", StringClass))
		r := newTestRepository(t, nil)

		added, err := r.AddMetaData(user, AccessField)
		require.NoError(t, err)

		meta, err := r.MetaData(user, l, true)
		require.NoError(t, err)
		assert.Same(t, added, meta)
		assert.True(t, meta.ResolveMode().Has(ModeMeta))
	})

	t.Run("built-in types are rejected", func(t *testing.T) {
		r := newTestRepository(t, nil)

		_, err := r.AddMetaData(StringClass, AccessField)
		assert.ErrorIs(t, err, ErrInternal)
	})

	t.Run("remove", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil)
		r := newTestRepository(t, nil)

		_, err := r.AddMetaData(user, AccessField)
		require.NoError(t, err)

		assert.True(t, r.RemoveMetaData(user))
		assert.False(t, r.RemoveMetaData(user))
		assert.Nil(t, r.CachedMetaData("app.User"))
	})

	t.Run("types reloaded under another loader replace the old descriptor", func(t *testing.T) {
		l1 := NewLoader("v1", nil)
		l2 := NewLoader("v2", nil)
		old := newClass(l1, "app.User", nil, member("name", StringClass))
		reloaded := newClass(l2, "app.User", nil, member("name", StringClass), member("email", StringClass))

		f := newTestFactory()
		f.define(old, nil)
		r := newTestRepository(t, f)

		first, err := r.MetaData(old, l1, true)
		require.NoError(t, err)

		second, err := r.MetaData(reloaded, l2, true)
		require.NoError(t, err)
		assert.NotSame(t, first, second)
		assert.Equal(t, reloaded, second.DescribedType())
		assert.Equal(t, []string{"name", "email"}, fieldNames(second.Fields()))
	})
}

func TestRepositoryPersistenceAware(t *testing.T) {
	l := NewLoader("test", nil)
	service := newClass(l, "app.Service", nil)
	user := newClass(l, "app.User", nil)
	r := newTestRepository(t, nil)

	require.NoError(t, r.AddPersistenceAware(service))
	assert.True(t, r.IsPersistenceAware(service))
	assert.Equal(t, []*Class{service}, r.PersistenceAwareClasses())

	_, err := r.AddMetaData(service, AccessField)
	assert.ErrorIs(t, err, ErrPersistenceAware)

	_, err = r.AddMetaData(user, AccessField)
	require.NoError(t, err)
	assert.ErrorIs(t, r.AddPersistenceAware(user), ErrPersistenceAware)

	assert.True(t, r.RemovePersistenceAware(service))
	assert.False(t, r.IsPersistenceAware(service))
	assert.False(t, r.RemovePersistenceAware(service))
}

func TestRepositoryAliases(t *testing.T) {
	t.Run("alias defaults to the simple name", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("name", StringClass))

		f := newTestFactory()
		f.define(user, nil)
		r := newTestRepository(t, f, func(o *Options) { o.Loader = l })

		r.Register(Registration{Type: user})
		meta, err := r.MetaDataByAlias("User", nil, true)
		require.NoError(t, err)
		assert.Equal(t, user, meta.DescribedType())
	})

	t.Run("colliding aliases resolve deterministically", func(t *testing.T) {
		l := NewLoader("test", nil)
		first := newClass(l, "a.Item", nil, member("name", StringClass))
		second := newClass(l, "b.Item", nil, member("name", StringClass))

		f := newTestFactory()
		f.define(first, nil)
		f.define(second, nil)
		r := newTestRepository(t, f)

		r.Register(Registration{Type: first})
		r.Register(Registration{Type: second})

		for i := 0; i < 3; i++ {
			meta, err := r.MetaDataByAlias("Item", l, true)
			require.NoError(t, err)
			assert.Equal(t, first, meta.DescribedType())
		}
	})

	t.Run("persistent type names filter colliding aliases", func(t *testing.T) {
		l := NewLoader("test", nil)
		first := newClass(l, "a.Item", nil, member("name", StringClass))
		second := newClass(l, "b.Item", nil, member("name", StringClass))

		f := newTestFactory()
		f.define(first, nil)
		f.define(second, nil)
		r := newTestRepository(t, f, func(o *Options) { o.Types = []string{"b.Item"} })

		r.Register(Registration{Type: first})
		r.Register(Registration{Type: second})

		meta, err := r.MetaDataByAlias("Item", l, true)
		require.NoError(t, err)
		assert.Equal(t, second, meta.DescribedType())
	})

	t.Run("aliases not loadable by the loader are skipped", func(t *testing.T) {
		l1 := NewLoader("one", nil)
		l2 := NewLoader("two", nil)
		item := newClass(l1, "a.Item", nil)

		f := newTestFactory()
		f.define(item, nil)
		r := newTestRepository(t, f)
		r.Register(Registration{Type: item})

		meta, err := r.MetaDataByAlias("Item", l2, false)
		require.NoError(t, err)
		assert.Nil(t, meta)
	})

	t.Run("unknown alias suggests close names", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil)

		f := newTestFactory()
		f.define(user, nil)
		r := newTestRepository(t, f)
		r.Register(Registration{Type: user, Alias: "Customer"})

		_, err := r.MetaDataByAlias("Custmer", l, true)
		require.Error(t, err)
		var nf *NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, []string{"Customer"}, nf.Candidates)
		assert.Equal(t, "Customer", r.ClosestAliasName("custommer"))
		assert.Equal(t, []string{"Customer"}, r.AliasNames())
	})

	t.Run("resolved descriptors register their alias", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil)

		f := newTestFactory()
		f.define(user, func(meta *ClassMetaData) { meta.SetTypeAlias("Member") })
		r := newTestRepository(t, f)

		_, err := r.MetaData(user, l, true)
		require.NoError(t, err)

		meta, err := r.MetaDataByAlias("Member", l, true)
		require.NoError(t, err)
		assert.Equal(t, user, meta.DescribedType())
	})
}

func TestRepositoryRegistration(t *testing.T) {
	t.Run("subclasses are tracked", func(t *testing.T) {
		l := NewLoader("test", nil)
		base := newClass(l, "app.Base", nil)
		mid := newClass(l, "app.Mid", base)
		leaf := newClass(l, "app.Leaf", mid)
		r := newTestRepository(t, nil)

		r.Register(Registration{Type: base})
		r.Register(Registration{Type: mid, Superclass: base})
		r.Register(Registration{Type: leaf, Superclass: mid})

		assert.Equal(t, []*Class{mid, leaf}, r.PCSubclasses(base))
		assert.Equal(t, []*Class{leaf}, r.PCSubclasses(mid))
		assert.Empty(t, r.PCSubclasses(leaf))
	})

	t.Run("registrations wait for a lookup", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil)
		r := newTestRepository(t, nil)

		r.Register(Registration{Type: user})
		assert.Equal(t, 1, r.Stats().PendingRegistrations)

		r.AliasNames()
		assert.Equal(t, 0, r.Stats().PendingRegistrations)
	})

	t.Run("non-persistent registrations are discarded", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil)
		other := newClass(l, "app.Other", nil)
		r := newTestRepository(t, nil, func(o *Options) { o.Types = []string{"app.User"} })

		r.Register(Registration{Type: user})
		r.Register(Registration{Type: other})

		assert.Equal(t, []string{"User"}, r.AliasNames())
	})

	t.Run("concurrent registration", func(t *testing.T) {
		l := NewLoader("test", nil)
		base := newClass(l, "app.Base", nil)
		var subs []*Class
		for _, name := range []string{"app.S1", "app.S2", "app.S3", "app.S4", "app.S5"} {
			subs = append(subs, newClass(l, name, base))
		}
		r := newTestRepository(t, nil)

		var wg sync.WaitGroup
		for _, sub := range subs {
			wg.Add(1)
			go func(c *Class) {
				defer wg.Done()
				r.Register(Registration{Type: c, Superclass: base})
				r.PCSubclasses(base)
			}(sub)
		}
		wg.Wait()

		assert.ElementsMatch(t, subs, r.PCSubclasses(base))
	})

	t.Run("implementors keep the least-derived type", func(t *testing.T) {
		l := NewLoader("test", nil)
		shape := &Class{Name: "app.Shape", Interface: true}
		l.Define(shape)
		circle := &Class{Name: "app.Circle", Interfaces: []*Class{shape}}
		l.Define(circle)
		fancy := newClass(l, "app.FancyCircle", circle)
		square := &Class{Name: "app.Square", Interfaces: []*Class{shape}}
		l.Define(square)
		r := newTestRepository(t, nil)

		r.Register(Registration{Type: fancy, Superclass: circle})
		r.Register(Registration{Type: circle})
		r.Register(Registration{Type: square})

		assert.Equal(t, []*Class{circle, square}, r.Implementors(shape, l))
		assert.Empty(t, r.Implementors(shape, NewLoader("other", nil)))
	})
}

func TestRepositoryMetaDataByOID(t *testing.T) {
	t.Run("colliding identity classes map to the persistent ancestor", func(t *testing.T) {
		l := NewLoader("test", nil)
		key := &Class{Name: "app.Key", Equality: true}
		l.Define(key)
		base := newClass(l, "app.Base", nil, member("id", LongClass))
		// app.Mid is not persistent
		mid := newClass(l, "app.Mid", base)
		one := newClass(l, "app.One", mid)
		two := newClass(l, "app.Two", mid)

		f := newTestFactory()
		f.define(base, func(meta *ClassMetaData) {
			primaryKey("id")(meta)
			meta.SetObjectIDType(key)
		})
		r := newTestRepository(t, f)

		r.Register(Registration{Type: one, Superclass: base, ObjectIDType: key})
		r.Register(Registration{Type: two, Superclass: base, ObjectIDType: key})

		meta, err := r.MetaDataByOID(key, l, true)
		require.NoError(t, err)
		assert.Equal(t, base, meta.DescribedType())
	})

	t.Run("built-in identity classes scan cached descriptors", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("id", StringClass))

		f := newTestFactory()
		f.define(user, primaryKey("id"))
		r := newTestRepository(t, f)

		_, err := r.MetaData(user, l, true)
		require.NoError(t, err)

		meta, err := r.MetaDataByOID(StringIDClass, l, true)
		require.NoError(t, err)
		assert.Equal(t, user, meta.DescribedType())
	})

	t.Run("identity class named after its type", func(t *testing.T) {
		l := NewLoader("test", nil)
		key := &Class{Name: "app.OrderID", Equality: true}
		l.Define(key)
		order := newClass(l, "app.Order", nil, member("id", LongClass))

		f := newTestFactory()
		f.define(order, func(meta *ClassMetaData) {
			primaryKey("id")(meta)
			meta.SetObjectIDType(key)
		})
		r := newTestRepository(t, f)

		meta, err := r.MetaDataByOID(key, l, true)
		require.NoError(t, err)
		assert.Equal(t, order, meta.DescribedType())
	})

	t.Run("unknown identity class", func(t *testing.T) {
		l := NewLoader("test", nil)
		key := &Class{Name: "app.Nothing", Equality: true}
		l.Define(key)
		r := newTestRepository(t, newTestFactory())

		_, err := r.MetaDataByOID(key, l, true)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRepositorySequences(t *testing.T) {
	r := newTestRepository(t, nil)

	system, err := r.SequenceMetaData(SystemSequence, nil, true)
	require.NoError(t, err)
	assert.Equal(t, SystemSequence, system.Name())
	assert.False(t, r.RemoveSequenceMetaData(SystemSequence))

	orders := r.AddSequenceMetaData("orders")
	assert.Same(t, orders, r.AddSequenceMetaData("orders"))
	orders.SetInitial(100)
	orders.SetIncrement(10)

	seq, err := orders.Instance()
	require.NoError(t, err)
	v, err := seq.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
	v, err = seq.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(110), v)

	assert.Len(t, r.SequenceMetaDatas(), 2)
	assert.True(t, r.RemoveSequenceMetaData("orders"))

	_, err = r.SequenceMetaData("orders", nil, true)
	assert.ErrorIs(t, err, ErrNotFound)
	missing, err := r.SequenceMetaData("orders", nil, false)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepositoryQueries(t *testing.T) {
	l := NewLoader("test", nil)
	user := newClass(l, "app.User", nil)
	r := newTestRepository(t, nil)

	q := r.AddQueryMetaData(user, "byEmail")
	q.SetQueryString("SELECT u FROM User u WHERE u.email = :email")
	assert.Same(t, q, r.AddQueryMetaData(user, "byEmail"))
	r.AddQueryMetaData(nil, "count")

	found, err := r.QueryMetaData(user, "byEmail", l, true)
	require.NoError(t, err)
	assert.Same(t, q, found)

	found, err = r.QueryMetaData(nil, "byEmail", l, true)
	require.NoError(t, err)
	assert.Same(t, q, found)

	found, err = r.QueryMetaData(user, "count", l, true)
	require.NoError(t, err)
	assert.Equal(t, "count", found.Name())

	assert.Len(t, r.QueryMetaDatas(), 2)
	assert.True(t, r.RemoveQueryMetaData(user, "byEmail"))

	_, err = r.QueryMetaData(user, "byEmail", l, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryPersistentTypes(t *testing.T) {
	t.Run("load persistent types", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("name", StringClass))
		post := newClass(l, "app.Post", nil, member("author", user))

		f := newTestFactory()
		f.define(user, nil)
		f.define(post, nil)
		f.names = []string{"app.User", "app.Post", "app.Missing"}
		r := newTestRepository(t, f, func(o *Options) { o.Loader = l })

		assert.Equal(t, f.names, r.PersistentTypeNames(false, l))

		classes, err := r.LoadPersistentTypes(false, l)
		require.NoError(t, err)
		assert.Equal(t, []*Class{user, post}, classes)
		assert.Len(t, r.AllMetaData(), 2)
	})

	t.Run("preload", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("name", StringClass))

		f := newTestFactory()
		f.define(user, nil)
		r := newTestRepository(t, f, func(o *Options) {
			o.Loader = l
			o.Types = []string{"app.User"}
			o.Preload = true
		})

		stats := r.Stats()
		assert.Equal(t, 1, stats.Types)
		assert.Equal(t, 1, stats.Resolved)
	})

	t.Run("runtime validation restricts lookups to listed types", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil)
		other := newClass(l, "app.Other", nil)

		f := newTestFactory()
		f.define(user, nil)
		f.define(other, nil)
		r := newTestRepository(t, f, func(o *Options) {
			o.Types = []string{"app.User"}
			o.Validate |= ValidateRuntime
		})

		meta, err := r.MetaData(user, l, true)
		require.NoError(t, err)
		assert.NotNil(t, meta)

		_, err = r.MetaData(other, l, true)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, f.loadCount("app.Other"))
	})
}

func TestRepositoryClear(t *testing.T) {
	l := NewLoader("test", nil)
	user := newClass(l, "app.User", nil)

	f := newTestFactory()
	f.define(user, nil)
	r := newTestRepository(t, f)

	_, err := r.MetaData(user, l, true)
	require.NoError(t, err)
	r.AddSequenceMetaData("orders")
	r.AddQueryMetaData(nil, "all")

	r.Clear()

	stats := r.Stats()
	assert.Zero(t, stats.Types)
	assert.Zero(t, stats.Queries)
	assert.Equal(t, 1, stats.Sequences)
	assert.Empty(t, r.AliasNames())

	meta, err := r.MetaData(user, l, true)
	require.NoError(t, err)
	assert.NotNil(t, meta)
	assert.Equal(t, 2, f.loadCount("app.User"))
}

func TestRepositoryStore(t *testing.T) {
	l := NewLoader("test", nil)
	base := newClass(l, "app.Zebra", nil)
	sub := newClass(l, "app.Aardvark", base)

	var stored []string
	f := &storeFactory{store: func(metas []*ClassMetaData) {
		for _, meta := range metas {
			stored = append(stored, meta.DescribedType().Name)
		}
	}}
	r := newTestRepository(t, f)

	_, err := r.AddMetaData(sub, AccessField)
	require.NoError(t, err)
	_, err = r.AddMetaData(base, AccessField)
	require.NoError(t, err)

	ok, err := r.Store(ModeMeta, map[string][]byte{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"app.Zebra", "app.Aardvark"}, stored)

	ok, err = r.Drop([]*Class{sub}, ModeMeta, l)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, r.CachedMetaData("app.Aardvark"))
}

type storeFactory struct {
	NoneFactory
	store func([]*ClassMetaData)
}

func (f *storeFactory) Store(metas []*ClassMetaData, _ []*QueryMetaData, _ []*SequenceMetaData, _ Mode, _ map[string][]byte) (bool, error) {
	f.store(metas)
	return true, nil
}

func (f *storeFactory) Drop([]*Class, Mode, *Loader) (bool, error) {
	return true, nil
}

func TestRepositoryLookupMisses(t *testing.T) {
	l := NewLoader("test", nil)
	user := newClass(l, "app.User", nil, member("name", StringClass))
	bad := newClass(l, "app.Bad", nil, member("stamp", StringClass))

	f := newTestFactory()
	f.define(user, nil)
	f.define(bad, func(meta *ClassMetaData) {
		meta.DeclaredField("stamp").SetVersion(true)
	})
	f.names = []string{"app.User", "app.Bad"}
	r := newTestRepository(t, f)

	t.Run("unknown alias", func(t *testing.T) {
		_, err := r.MetaDataByAlias("Nope", l, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotContains(t, err.Error(), "app.Bad")
	})

	t.Run("unknown sequence", func(t *testing.T) {
		_, err := r.SequenceMetaData("nope", l, true)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown query", func(t *testing.T) {
		_, err := r.QueryMetaData(user, "nope", l, true)
		assert.ErrorIs(t, err, ErrNotFound)

		q, err := r.QueryMetaData(user, "nope", l, false)
		require.NoError(t, err)
		assert.Nil(t, q)
	})

	t.Run("known alias beside a broken type", func(t *testing.T) {
		meta, err := r.MetaDataByAlias("User", l, true)
		require.NoError(t, err)
		assert.Equal(t, user, meta.DescribedType())
	})

	t.Run("broken type still reports its own error", func(t *testing.T) {
		_, err := r.MetaData(bad, l, true)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestRepositoryExplicitSuperclass(t *testing.T) {
	l := NewLoader("test", nil)
	person := newClass(l, "app.Person", nil, member("name", StringClass))
	employee := newClass(l, "app.Employee", person, member("salary", LongClass))

	f := newTestFactory()
	f.define(person, nil)
	f.define(employee, func(meta *ClassMetaData) {
		meta.SetPCSuperclass(person)
	})
	r := newTestRepository(t, f)

	meta, err := r.MetaData(employee, l, true)
	require.NoError(t, err)
	assert.Equal(t, person, meta.PCSuperclass())
	require.NotNil(t, meta.PCSuperclassMetaData())
	assert.Equal(t, 1, f.loadCount("app.Person"))
	assert.NotNil(t, meta.Field("name"))

	t.Run("missing explicit superclass", func(t *testing.T) {
		l := NewLoader("test", nil)
		ghost := newClass(l, "app.Ghost", nil)
		child := newClass(l, "app.Child", ghost)

		f := newTestFactory()
		f.define(child, func(meta *ClassMetaData) {
			meta.SetPCSuperclass(ghost)
		})
		r := newTestRepository(t, f)

		_, err := r.MetaData(child, l, true)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, r.CachedMetaData("app.Child"))
	})
}

func TestRepositoryInheritedAccess(t *testing.T) {
	l := NewLoader("test", nil)
	base := newClass(l, "app.Base", nil, member("name", StringClass))
	sub := newClass(l, "app.Sub", base, member("rank", IntClass))
	plain := newClass(l, "app.Plain", nil, member("name", StringClass))
	r := newTestRepository(t, nil)

	_, err := r.AddMetaData(base, AccessProperty)
	require.NoError(t, err)
	_, err = r.AddMetaData(sub, AccessUnknown)
	require.NoError(t, err)
	_, err = r.AddMetaData(plain, AccessUnknown)
	require.NoError(t, err)

	meta, err := r.MetaData(sub, l, true)
	require.NoError(t, err)
	assert.Equal(t, AccessProperty, meta.AccessType())

	meta, err = r.MetaData(plain, l, true)
	require.NoError(t, err)
	assert.Equal(t, AccessField, meta.AccessType())
}

func TestClassMetaDataResolve(t *testing.T) {
	t.Run("unresolved descriptor resolves through the repository", func(t *testing.T) {
		l := NewLoader("test", nil)
		user := newClass(l, "app.User", nil, member("name", StringClass))
		r := newTestRepository(t, nil)

		meta, err := r.AddMetaData(user, AccessField)
		require.NoError(t, err)

		done, err := meta.Resolve(ModeMeta)
		require.NoError(t, err)
		assert.False(t, done)
		assert.Equal(t, 1, r.Stats().Resolved)

		done, err = meta.Resolve(ModeMeta)
		require.NoError(t, err)
		assert.True(t, done)
	})

	t.Run("failure evicts the descriptor", func(t *testing.T) {
		l := NewLoader("test", nil)
		bad := newClass(l, "app.Bad", nil, member("stamp", StringClass))
		r := newTestRepository(t, nil)

		meta, err := r.AddMetaData(bad, AccessField)
		require.NoError(t, err)
		meta.DeclaredField("stamp").SetVersion(true)

		_, err = meta.Resolve(ModeMeta)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Nil(t, r.CachedMetaData("app.Bad"))

		_, err = meta.Resolve(ModeMeta)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEmbeddedMetaDataConcurrent(t *testing.T) {
	l := NewLoader("test", nil)
	address := newClass(l, "app.Address", nil, member("street", StringClass))
	user := newClass(l, "app.User", nil, member("home", address))
	r := newTestRepository(t, nil)

	meta, err := r.AddMetaData(user, AccessField)
	require.NoError(t, err)
	v := meta.DeclaredField("home").Value()
	v.SetEmbedded(true)

	const readers = 8
	got := make([]*ClassMetaData, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = v.EmbeddedMetaData()
		}(i)
	}
	wg.Wait()

	require.NotNil(t, got[0])
	for _, m := range got[1:] {
		assert.Same(t, got[0], m)
	}
}
