package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/persist/internal/orm/factory"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

const orders = `
types:
  - name: shop.Customer
    identity: application
    fields:
      - name: id
        type: long
        primaryKey: true
        strategy: native
      - name: orders
        type: list
        elem: shop.Order
        mappedBy: customer
  - name: shop.Order
    identity: application
    alias: Purchase
    fields:
      - name: id
        type: long
        primaryKey: true
      - name: customer
        type: shop.Customer
      - name: tags
        type: map
        key: string
        elem: string
    fetchGroups:
      - name: summary
`

func resolved(t *testing.T) (*schema.Repository, []*schema.ClassMetaData) {
	t.Helper()

	defs, err := factory.Parse([]byte(orders))
	require.NoError(t, err)
	loader := schema.NewLoader("shop", nil)
	require.NoError(t, defs.DefineClasses(loader))

	o := schema.DefaultOptions()
	o.Factory = factory.New(defs)
	o.Loader = loader
	repo, err := schema.NewRepository(o)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	var metas []*schema.ClassMetaData
	for _, name := range []string{"shop.Customer", "shop.Order"} {
		cls, ok := loader.Load(name)
		require.True(t, ok)
		meta, err := repo.MetaData(cls, loader, true)
		require.NoError(t, err)
		metas = append(metas, meta)
	}
	return repo, metas
}

func TestRenderTypes(t *testing.T) {
	_, metas := resolved(t)

	var buf bytes.Buffer
	RenderTypes(&buf, metas, true)
	out := buf.String()

	assert.Contains(t, out, "Type")
	assert.Contains(t, out, "shop.Customer")
	assert.Contains(t, out, "Purchase")
	assert.Contains(t, out, "application")
	assert.Contains(t, out, "meta")
}

func TestRenderType(t *testing.T) {
	_, metas := resolved(t)

	var buf bytes.Buffer
	RenderType(&buf, metas[1], true)
	out := buf.String()

	assert.Contains(t, out, "shop.Order\n──────────\n")
	assert.Contains(t, out, "Alias:")
	assert.Contains(t, out, "Purchase")
	assert.Contains(t, out, "Identity:")
	assert.Contains(t, out, "map<string, string>")
	assert.Contains(t, out, "pk")
	assert.Contains(t, out, "summary")

	buf.Reset()
	RenderType(&buf, metas[0], true)
	out = buf.String()
	assert.Contains(t, out, "list<shop.Order>")
	assert.Contains(t, out, "mappedBy=customer")
	assert.Contains(t, out, "strategy=native")
}

func TestRenderReport(t *testing.T) {
	repo, _ := resolved(t)

	var buf bytes.Buffer
	RenderReport(&buf, schema.NewRepositoryGraph(repo).Analyze(), true)
	out := buf.String()

	assert.Contains(t, out, "Relations (2 types)")
	assert.NotContains(t, out, "Cycles:")
	assert.Contains(t, out, "1. shop.Customer\n")
	assert.Contains(t, out, "2. shop.Order (depends on: shop.Customer)\n")
}

func TestRenderStats(t *testing.T) {
	repo, _ := resolved(t)

	var buf bytes.Buffer
	RenderStats(&buf, repo.Stats(), true)
	out := buf.String()

	assert.Contains(t, out, "Types:     2")
	assert.Contains(t, out, "Resolved:  2")
	assert.Contains(t, out, "Sequences:")
}
