// Package api exposes a metadata repository as a read-only JSON API.
package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/persist/internal/orm/factory"
	"github.com/conduit-lang/persist/internal/orm/schema"
	"github.com/conduit-lang/persist/internal/web/middleware"
)

// Handler serves the metadata of a repository
type Handler struct {
	repo   *schema.Repository
	loader *schema.Loader
	log    *zap.Logger
	mux    chi.Router
}

// TypeSummary is one entry of the type listing
type TypeSummary struct {
	Name     string `json:"name"`
	Alias    string `json:"alias,omitempty"`
	Identity string `json:"identity"`
	Fields   int    `json:"fields"`
	Resolved string `json:"resolved"`
}

// FieldSummary describes a resolved field, including inherited ones
type FieldSummary struct {
	Name       string `json:"name"`
	Index      int    `json:"index"`
	Type       string `json:"type"`
	DeclaredBy string `json:"declaredBy"`
	PrimaryKey bool   `json:"primaryKey,omitempty"`
	Version    bool   `json:"version,omitempty"`
}

// TypeDetail is the resolved state of one type
type TypeDetail struct {
	Definition  factory.TypeDef `json:"definition"`
	Subclasses  []string        `json:"subclasses,omitempty"`
	PrimaryKeys []string        `json:"primaryKeys,omitempty"`
	ObjectID    string          `json:"objectId,omitempty"`
	Resolved    string          `json:"resolved"`
	Fields      []FieldSummary  `json:"fields"`
}

// Graph is the relation dependency report
type Graph struct {
	Types        int                 `json:"types"`
	Order        []string            `json:"order,omitempty"`
	Dependencies map[string][]string `json:"dependencies"`
	Cycles       [][]string          `json:"cycles,omitempty"`
}

// New creates a handler. Types are resolved on first request through
// loader.
func New(repo *schema.Repository, loader *schema.Loader, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{repo: repo, loader: loader, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID(), middleware.Logging(log), middleware.Recovery(log))
	r.Get("/healthz", h.health)
	r.Route("/types", func(r chi.Router) {
		r.Get("/", h.listTypes)
		r.Get("/{name}", h.getType)
	})
	r.Get("/aliases", h.listAliases)
	r.Get("/queries", h.listQueries)
	r.Get("/sequences", h.listSequences)
	r.Get("/graph", h.graph)
	r.Get("/stats", h.stats)
	h.mux = r
	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok", "repository": h.repo.ID()})
}

func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
	metas := h.repo.AllMetaData()
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].DescribedType().Name < metas[j].DescribedType().Name
	})

	types := make([]TypeSummary, 0, len(metas))
	for _, meta := range metas {
		if meta.IsEmbedded() {
			continue
		}
		types = append(types, TypeSummary{
			Name:     meta.DescribedType().Name,
			Alias:    meta.TypeAlias(),
			Identity: meta.IdentityType().String(),
			Fields:   len(meta.Fields()),
			Resolved: meta.ResolveMode().String(),
		})
	}
	renderJSON(w, http.StatusOK, types)
}

func (h *Handler) getType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var meta *schema.ClassMetaData
	var err error
	if cls, ok := h.loader.Load(name); ok {
		meta, err = h.repo.MetaData(cls, h.loader, true)
	} else {
		meta, err = h.repo.MetaDataByAlias(name, h.loader, true)
	}
	if err != nil {
		h.log.Debug("type lookup failed", zap.String("type", name), zap.Error(err))
		renderError(w, err)
		return
	}

	detail := TypeDetail{
		Definition: factory.Describe(meta),
		Resolved:   meta.ResolveMode().String(),
		Fields:     []FieldSummary{},
	}
	for _, sub := range meta.PCSubclasses() {
		detail.Subclasses = append(detail.Subclasses, sub.Name)
	}
	for _, pk := range meta.PrimaryKeyFields() {
		detail.PrimaryKeys = append(detail.PrimaryKeys, pk.Name())
	}
	if oid := meta.ObjectIDType(); oid != nil {
		detail.ObjectID = oid.Name
	}
	for _, fm := range meta.Fields() {
		detail.Fields = append(detail.Fields, FieldSummary{
			Name:       fm.Name(),
			Index:      fm.Index(),
			Type:       fm.DeclaredType().Name,
			DeclaredBy: fm.DeclaringType().Name,
			PrimaryKey: fm.IsPrimaryKey(),
			Version:    fm.IsVersion(),
		})
	}
	renderJSON(w, http.StatusOK, detail)
}

func (h *Handler) listAliases(w http.ResponseWriter, r *http.Request) {
	aliases := h.repo.AliasNames()
	if aliases == nil {
		aliases = []string{}
	}
	renderJSON(w, http.StatusOK, aliases)
}

func (h *Handler) listQueries(w http.ResponseWriter, r *http.Request) {
	queries := []factory.QueryDef{}
	for _, q := range h.repo.QueryMetaDatas() {
		queries = append(queries, factory.DescribeQuery(q))
	}
	renderJSON(w, http.StatusOK, queries)
}

func (h *Handler) listSequences(w http.ResponseWriter, r *http.Request) {
	seqs := []factory.SequenceDef{}
	for _, s := range h.repo.SequenceMetaDatas() {
		seqs = append(seqs, factory.DescribeSequence(s))
	}
	renderJSON(w, http.StatusOK, seqs)
}

func (h *Handler) graph(w http.ResponseWriter, r *http.Request) {
	report := schema.NewRepositoryGraph(h.repo).Analyze()
	renderJSON(w, http.StatusOK, Graph{
		Types:        report.TotalTypes,
		Order:        report.TopologicalOrder,
		Dependencies: report.Dependencies,
		Cycles:       report.CircularDeps,
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	s := h.repo.Stats()
	renderJSON(w, http.StatusOK, map[string]int{
		"types":                s.Types,
		"resolved":             s.Resolved,
		"queries":              s.Queries,
		"sequences":            s.Sequences,
		"aliases":              s.Aliases,
		"pendingRegistrations": s.PendingRegistrations,
	})
}
