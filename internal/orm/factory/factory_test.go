package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/conduit-lang/persist/internal/orm/schema"
	"github.com/conduit-lang/persist/internal/orm/snapshot"
)

type fixture struct {
	loader   *schema.Loader
	factory  *Factory
	repo     *schema.Repository
	person   *schema.Class
	employee *schema.Class
}

func newFixture(t *testing.T, defs *Definitions, opts ...Option) *fixture {
	t.Helper()

	loader := schema.NewLoader("app", nil)
	if defs != nil {
		require.NoError(t, defs.DefineClasses(loader))
	}
	f := New(defs, opts...)

	o := schema.DefaultOptions()
	o.Factory = f
	o.Loader = loader
	repo, err := schema.NewRepository(o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	fx := &fixture{loader: loader, factory: f, repo: repo}
	fx.person, _ = loader.Load("app.Person")
	fx.employee, _ = loader.Load("app.Employee")
	return fx
}

func staff(t *testing.T) *Definitions {
	t.Helper()
	defs, err := Parse([]byte(staffDefinitions))
	require.NoError(t, err)
	return defs
}

func TestFactoryLoad(t *testing.T) {
	fx := newFixture(t, staff(t))

	meta, err := fx.repo.MetaData(fx.employee, fx.loader, true)
	require.NoError(t, err)

	t.Run("type settings", func(t *testing.T) {
		assert.Equal(t, DefaultSource, meta.SourceName())
		assert.Equal(t, "Staff", meta.TypeAlias())
		assert.True(t, meta.IsDetachable())
		assert.Equal(t, "staff", meta.CacheName())
		assert.Equal(t, 60000, meta.CacheTimeout())
		assert.Equal(t, schema.IdentityApplication, meta.IdentityType())
		assert.Equal(t, schema.LongIDClass, meta.ObjectIDType())
		assert.True(t, meta.ResolveMode().Has(schema.ModeMeta))
	})

	t.Run("superclass", func(t *testing.T) {
		sup := meta.PCSuperclassMetaData()
		require.NotNil(t, sup)
		assert.Equal(t, "app.Person", sup.DescribedType().Name)
		assert.True(t, sup.IsAbstract())

		pks := meta.PrimaryKeyFields()
		require.Len(t, pks, 1)
		assert.Equal(t, "id", pks[0].Name())
		assert.Equal(t, schema.StrategySequence, pks[0].ValueStrategy())
		assert.Equal(t, "people", pks[0].ValueSequenceName())
	})

	t.Run("fields", func(t *testing.T) {
		var names []string
		for _, fm := range meta.DeclaredFields() {
			names = append(names, fm.Name())
			assert.True(t, fm.IsExplicit(), fm.Name())
		}
		assert.Equal(t, []string{"salary", "manager", "reports"}, names)
		assert.NotNil(t, meta.DeclaredUnmanagedField("scratch"))

		assert.False(t, meta.DeclaredField("salary").IsInDefaultFetchGroup())

		reports := meta.DeclaredField("reports")
		assert.Same(t, fx.employee, reports.Element().DeclaredType())
		assert.Same(t, meta.DeclaredField("manager"), reports.MappedByMetaData())
		assert.Equal(t, "name", reports.OrderDeclaration())

		manager := meta.DeclaredField("manager")
		assert.Equal(t, schema.CascadeImmediate, manager.Value().Cascade(schema.CascadePersist))
	})

	t.Run("fetch groups", func(t *testing.T) {
		detail := meta.FetchGroup("detail")
		require.NotNil(t, detail)
		assert.Equal(t, 2, detail.RecursionDepth(meta.DeclaredField("reports")))

		full := meta.FetchGroup("full")
		require.NotNil(t, full)
		assert.True(t, full.Includes("detail", true))
		assert.True(t, full.IsPostLoad())
	})

	t.Run("alias lookup", func(t *testing.T) {
		byAlias, err := fx.repo.MetaDataByAlias("Staff", fx.loader, true)
		require.NoError(t, err)
		assert.Same(t, meta, byAlias)
	})

	t.Run("sequences", func(t *testing.T) {
		seq, err := fx.repo.SequenceMetaData("people", fx.loader, true)
		require.NoError(t, err)
		assert.Equal(t, DefaultSource, seq.Source())
		assert.Equal(t, int64(100), seq.Initial())

		gen, err := seq.Instance()
		require.NoError(t, err)
		v, err := gen.Next()
		require.NoError(t, err)
		assert.Equal(t, int64(100), v)
		v, _ = gen.Next()
		assert.Equal(t, int64(110), v)
	})

	t.Run("queries", func(t *testing.T) {
		q, err := fx.repo.QueryMetaData(fx.employee, "byName", fx.loader, true)
		require.NoError(t, err)
		assert.Equal(t, schema.LanguageJPQL, q.Language())
		assert.True(t, q.IsReadOnly())
		assert.Same(t, fx.employee, q.ResultType())
		assert.EqualValues(t, 5, q.Hints()["timeout"])

		headcount, err := fx.repo.QueryMetaData(nil, "headcount", fx.loader, true)
		require.NoError(t, err)
		assert.Equal(t, schema.LanguageSQL, headcount.Language())
		assert.Nil(t, headcount.DefiningType())
	})

	t.Run("persistent types", func(t *testing.T) {
		assert.Equal(t, []string{"app.Person", "app.Employee"}, fx.repo.PersistentTypeNames(false, fx.loader))
		assert.ElementsMatch(t, []*schema.Class{fx.employee}, fx.repo.PCSubclasses(fx.person))
	})
}

func TestFactoryLoadErrors(t *testing.T) {
	t.Run("invalid access type", func(t *testing.T) {
		defs := &Definitions{Types: []TypeDef{{Name: "app.Person", Access: "telepathy"}}}
		fx := newFixture(t, defs)

		_, err := fx.repo.MetaData(fx.person, fx.loader, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown access type: telepathy")
	})

	t.Run("invalid field settings are combined", func(t *testing.T) {
		defs := &Definitions{Types: []TypeDef{{
			Name: "app.Person",
			Fields: []FieldDef{
				{Name: "a", Type: "string", Strategy: "magic"},
				{Name: "b", Type: "string", NullValue: "sometimes"},
			},
		}}}
		fx := newFixture(t, defs)

		_, err := fx.repo.MetaData(fx.person, fx.loader, true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown value strategy: magic")
		assert.Contains(t, err.Error(), "unknown null-value policy: sometimes")
	})

	t.Run("validation failures surface", func(t *testing.T) {
		defs := &Definitions{Types: []TypeDef{{
			Name:   "app.Person",
			Fields: []FieldDef{{Name: "code", Type: "long", Strategy: "uuid-hex"}},
		}}}
		fx := newFixture(t, defs)

		_, err := fx.repo.MetaData(fx.person, fx.loader, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, schema.ErrValidation)
		assert.Nil(t, fx.repo.CachedMetaData("app.Person"))
	})

	t.Run("undefined types have no metadata", func(t *testing.T) {
		fx := newFixture(t, staff(t))
		other := &schema.Class{Name: "app.Other"}
		fx.loader.Define(other)

		meta, err := fx.repo.MetaData(other, fx.loader, false)
		require.NoError(t, err)
		assert.Nil(t, meta)
	})
}

func TestFactoryStore(t *testing.T) {
	ctx := context.Background()
	cache := snapshot.NewMemoryCache()
	t.Cleanup(func() { _ = cache.Close() })

	fx := newFixture(t, staff(t), WithStore(cache))
	_, err := fx.repo.MetaData(fx.employee, fx.loader, true)
	require.NoError(t, err)
	_, err = fx.repo.QueryMetaData(nil, "headcount", fx.loader, true)
	require.NoError(t, err)

	out := make(map[string][]byte)
	ok, err := fx.repo.Store(schema.ModeAll, out)
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := cache.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"query:app.Employee:byName",
		"query:headcount",
		"sequence:people",
		"type:app.Employee",
		"type:app.Person",
	}, keys)
	assert.Len(t, out, len(keys))

	t.Run("snapshot content", func(t *testing.T) {
		var def TypeDef
		require.NoError(t, yaml.Unmarshal(out["type:app.Employee"], &def))
		assert.Equal(t, "app.Person", def.Extends)
		assert.Equal(t, "Staff", def.Alias)
		assert.Equal(t, "application", def.Identity)
		require.Len(t, def.Fields, 4)
		assert.Equal(t, "reports", def.Fields[2].Name)
		assert.Equal(t, "app.Employee", def.Fields[2].Elem)
		assert.Equal(t, "manager", def.Fields[2].MappedBy)
		assert.Equal(t, "none", def.Fields[3].Management)
		require.Len(t, def.FetchGroups, 2)
		assert.Equal(t, []string{"detail"}, def.FetchGroups[1].Includes)
	})

	t.Run("restore in another repository", func(t *testing.T) {
		restored := newFixture(t, nil, WithStore(cache))
		require.NoError(t, staff(t).DefineClasses(restored.loader))
		employee, _ := restored.loader.Load("app.Employee")

		assert.ElementsMatch(t, []string{"app.Employee", "app.Person"},
			restored.repo.PersistentTypeNames(false, restored.loader))

		meta, err := restored.repo.MetaData(employee, restored.loader, true)
		require.NoError(t, err)
		assert.Equal(t, "Staff", meta.TypeAlias())
		assert.Equal(t, "staff", meta.CacheName())
		assert.Equal(t, []string{"salary", "manager", "reports"}, fieldNames(meta.DeclaredFields()))
		assert.NotNil(t, meta.PCSuperclassMetaData())

		def, ok := restored.factory.Definition("app.Employee")
		require.True(t, ok)
		assert.Equal(t, "Staff", def.Alias)

		restored.repo.Clear()
		_, ok = restored.factory.Definition("app.Employee")
		assert.False(t, ok)
	})

	t.Run("meta only", func(t *testing.T) {
		out := make(map[string][]byte)
		_, err := fx.repo.Store(schema.ModeMeta, out)
		require.NoError(t, err)
		for key := range out {
			kind, _, ok := snapshot.ParseKey(key)
			require.True(t, ok)
			assert.NotEqual(t, snapshot.KindQuery, kind)
		}
	})
}

func TestFactoryDrop(t *testing.T) {
	ctx := context.Background()
	cache := snapshot.NewMemoryCache()
	t.Cleanup(func() { _ = cache.Close() })

	fx := newFixture(t, staff(t), WithStore(cache))
	_, err := fx.repo.MetaData(fx.employee, fx.loader, true)
	require.NoError(t, err)
	_, err = fx.repo.Store(schema.ModeAll, nil)
	require.NoError(t, err)

	ok, err := fx.repo.Drop([]*schema.Class{fx.employee}, schema.ModeAll, fx.loader)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Nil(t, fx.repo.CachedMetaData("app.Employee"))
	_, defined := fx.factory.Definition("app.Employee")
	assert.False(t, defined)

	for _, key := range []string{"type:app.Employee", "query:app.Employee:byName"} {
		exists, err := cache.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists, key)
	}
	exists, err := cache.Exists(ctx, "type:app.Person")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDescribeQueryAndSequence(t *testing.T) {
	fx := newFixture(t, staff(t))

	seq, err := fx.repo.SequenceMetaData("people", fx.loader, true)
	require.NoError(t, err)
	def := DescribeSequence(seq)
	assert.Equal(t, "native", def.Strategy)
	assert.Equal(t, int64(10), *def.Increment)

	q, err := fx.repo.QueryMetaData(fx.employee, "byName", fx.loader, true)
	require.NoError(t, err)
	qd := DescribeQuery(q)
	assert.Equal(t, "app.Employee", qd.Result)
	assert.True(t, qd.ReadOnly)
}

func fieldNames(fields []*schema.FieldMetaData) []string {
	names := make([]string, 0, len(fields))
	for _, fm := range fields {
		names = append(names, fm.Name())
	}
	return names
}
