package factory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/conduit-lang/persist/internal/orm/schema"
	"github.com/conduit-lang/persist/internal/orm/snapshot"
)

// DefaultSource is recorded as the source of descriptors built from
// definitions unless WithSource names another
const DefaultSource = "definitions"

// Factory implements schema.Factory over declarative definitions. Types
// without a definition are looked up in the snapshot store, so descriptors
// stored by one process can be loaded by another.
type Factory struct {
	mu sync.Mutex

	source   string
	log      *zap.Logger
	defaults schema.Populator
	store    snapshot.Cache
	ttl      time.Duration
	timeout  time.Duration

	types     map[string]*TypeDef
	order     []string
	restored  map[string]bool
	sequences []SequenceDef
	queries   []QueryDef

	seqsLoaded    bool
	queriesLoaded bool
}

// Option configures a Factory
type Option func(*Factory)

// WithStore sets the snapshot store used by Store, Drop and for types
// without a definition
func WithStore(store snapshot.Cache) Option {
	return func(f *Factory) { f.store = store }
}

// WithTTL sets the lifetime of stored snapshots; zero uses the store default
func WithTTL(ttl time.Duration) Option {
	return func(f *Factory) { f.ttl = ttl }
}

// WithTimeout bounds each snapshot store call
func WithTimeout(timeout time.Duration) Option {
	return func(f *Factory) { f.timeout = timeout }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(f *Factory) { f.log = log }
}

// WithPopulator sets the populator that adds default fields to new
// descriptors before definitions are applied
func WithPopulator(p schema.Populator) Option {
	return func(f *Factory) { f.defaults = p }
}

// WithSource sets the source name recorded on loaded descriptors
func WithSource(source string) Option {
	return func(f *Factory) { f.source = source }
}

// New creates a factory over defs, which may be nil
func New(defs *Definitions, opts ...Option) *Factory {
	f := &Factory{
		source:   DefaultSource,
		log:      zap.NewNop(),
		defaults: schema.ReflectPopulator{},
		timeout:  5 * time.Second,
		types:    make(map[string]*TypeDef),
		restored: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(f)
	}
	if defs != nil {
		for i := range defs.Types {
			def := defs.Types[i]
			f.types[def.Name] = &def
			f.order = append(f.order, def.Name)
		}
		f.sequences = append(f.sequences, defs.Sequences...)
		f.queries = append(f.queries, defs.Queries...)
	}
	return f
}

var _ schema.Factory = (*Factory)(nil)

func (f *Factory) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), f.timeout)
}

// definition returns the definition of a type, restoring it from the
// snapshot store when there is none. The caller holds f.mu.
func (f *Factory) definition(name string) (*TypeDef, error) {
	if def, ok := f.types[name]; ok {
		return def, nil
	}
	if f.store == nil {
		return nil, nil
	}

	ctx, cancel := f.context()
	defer cancel()
	data, err := f.store.Get(ctx, snapshot.Key(snapshot.KindType, name))
	if snapshot.IsCacheMiss(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot of %s: %w", name, err)
	}

	var def TypeDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot of %s: %w", name, err)
	}
	f.types[name] = &def
	f.restored[name] = true
	f.log.Debug("restored type definition from snapshot", zap.String("type", name))
	return &def, nil
}

// Load implements schema.Factory
func (f *Factory) Load(t schema.Target, cls *schema.Class, mode schema.Mode, loader *schema.Loader) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if mode.Has(schema.ModeMeta) {
		err = multierr.Append(err, f.loadSequences(t))
	}
	if cls != nil {
		return multierr.Append(err, f.loadType(t, cls, mode, loader))
	}

	for _, name := range f.order {
		c, ok := loader.Load(name)
		if !ok {
			continue
		}
		err = multierr.Append(err, f.loadType(t, c, mode, loader))
	}
	if mode.Has(schema.ModeQuery) {
		err = multierr.Append(err, f.loadQueries(t, loader))
	}
	return err
}

func (f *Factory) loadType(t schema.Target, cls *schema.Class, mode schema.Mode, loader *schema.Loader) error {
	def, err := f.definition(cls.Name)
	if err != nil || def == nil {
		return err
	}

	if mode.Has(schema.ModeMeta) {
		meta := t.CachedMetaData(cls)
		if meta == nil || !meta.SourceMode().Has(schema.ModeMeta) {
			access, err := schema.ParseAccessType(def.Access)
			if err != nil {
				return fmt.Errorf("definition of %s: %w", def.Name, err)
			}
			if meta, err = t.AddMetaData(cls, access); err != nil {
				return err
			}
			meta.SetSourceName(f.source)
			if err := applyType(meta, def, loader); err != nil {
				return err
			}
			t.Register(f.registration(cls, def, loader))
			f.log.Debug("applied type definition", zap.String("type", cls.Name), zap.Int("fields", len(def.Fields)))
		}
	}

	if mode.Has(schema.ModeMapping) && def.Mapped != nil {
		if meta := t.CachedMetaData(cls); meta != nil {
			meta.SetMapped(*def.Mapped)
		}
	}

	if mode.Has(schema.ModeQuery) {
		for i := range def.Queries {
			q := t.AddQueryMetaData(cls, def.Queries[i].Name)
			if err := applyQuery(q, &def.Queries[i], loader, f.source); err != nil {
				return fmt.Errorf("definition of %s: %w", def.Name, err)
			}
		}
	}
	return nil
}

func (f *Factory) registration(cls *schema.Class, def *TypeDef, loader *schema.Loader) schema.Registration {
	reg := schema.Registration{Type: cls, Alias: def.Alias}
	if def.Extends != "" {
		reg.Superclass, _ = loader.Load(def.Extends)
	}
	if def.ObjectID != "" {
		reg.ObjectIDType, _ = loader.Load(def.ObjectID)
	}
	return reg
}

func (f *Factory) loadSequences(t schema.Target) error {
	if f.seqsLoaded {
		return nil
	}
	f.seqsLoaded = true

	var err error
	for i := range f.sequences {
		s := t.AddSequenceMetaData(f.sequences[i].Name)
		err = multierr.Append(err, applySequence(s, &f.sequences[i], f.source))
	}
	return err
}

func (f *Factory) loadQueries(t schema.Target, loader *schema.Loader) error {
	if f.queriesLoaded {
		return nil
	}
	f.queriesLoaded = true

	var err error
	for i := range f.queries {
		q := t.AddQueryMetaData(nil, f.queries[i].Name)
		err = multierr.Append(err, applyQuery(q, &f.queries[i], loader, f.source))
	}
	return err
}

// Store implements schema.Factory. Snapshots are YAML definitions keyed by
// snapshot.Key; they are written to out and to the snapshot store.
func (f *Factory) Store(metas []*schema.ClassMetaData, queries []*schema.QueryMetaData, seqs []*schema.SequenceMetaData, mode schema.Mode, out map[string][]byte) (bool, error) {
	entries := make(map[string]interface{})
	if mode.Has(schema.ModeMeta) {
		for _, meta := range metas {
			if meta.IsEmbedded() {
				continue
			}
			entries[snapshot.Key(snapshot.KindType, meta.DescribedType().Name)] = Describe(meta)
		}
		for _, s := range seqs {
			if s.Name() == schema.SystemSequence {
				continue
			}
			entries[snapshot.Key(snapshot.KindSequence, s.Name())] = DescribeSequence(s)
		}
	}
	if mode.Has(schema.ModeQuery) {
		for _, q := range queries {
			entries[snapshot.Key(snapshot.KindQuery, queryName(q.DefiningType(), q.Name()))] = DescribeQuery(q)
		}
	}
	if len(entries) == 0 {
		return false, nil
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx, cancel := f.context()
	defer cancel()

	var err error
	for _, key := range keys {
		data, e := yaml.Marshal(entries[key])
		if e != nil {
			err = multierr.Append(err, fmt.Errorf("failed to encode %s: %w", key, e))
			continue
		}
		if out != nil {
			out[key] = data
		}
		if f.store != nil {
			if e := f.store.Set(ctx, key, data, f.ttl); e != nil {
				err = multierr.Append(err, fmt.Errorf("failed to store %s: %w", key, e))
			}
		}
	}
	f.log.Debug("stored metadata snapshots", zap.Int("count", len(keys)), zap.Bool("persistent", f.store != nil))
	return err == nil, err
}

// Drop implements schema.Factory. The definitions of the classes are
// forgotten and their snapshots deleted.
func (f *Factory) Drop(classes []*schema.Class, mode schema.Mode, loader *schema.Loader) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for _, c := range classes {
		def := f.types[c.Name]
		if mode.Has(schema.ModeQuery) && def != nil {
			for _, q := range def.Queries {
				keys = append(keys, snapshot.Key(snapshot.KindQuery, queryName(c, q.Name)))
			}
			def.Queries = nil
		}
		if mode.Has(schema.ModeMeta) {
			keys = append(keys, snapshot.Key(snapshot.KindType, c.Name))
			f.forget(c.Name)
		}
	}
	if f.store == nil {
		return true, nil
	}

	ctx, cancel := f.context()
	defer cancel()

	var err error
	for _, key := range keys {
		if e := f.store.Delete(ctx, key); e != nil {
			err = multierr.Append(err, fmt.Errorf("failed to delete %s: %w", key, e))
		}
	}
	return err == nil, err
}

// forget removes a type definition. The caller holds f.mu.
func (f *Factory) forget(name string) {
	delete(f.types, name)
	delete(f.restored, name)
	for i, n := range f.order {
		if n == name {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Defaults implements schema.Factory
func (f *Factory) Defaults() schema.Populator {
	return f.defaults
}

// PersistentTypeNames implements schema.Factory. It lists the defined types
// followed by types only the snapshot store knows, or nil when there are
// neither.
func (f *Factory) PersistentTypeNames(devpath bool, loader *schema.Loader) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := append([]string(nil), f.order...)
	if f.store != nil {
		ctx, cancel := f.context()
		defer cancel()

		keys, err := f.store.Keys(ctx)
		if err != nil {
			f.log.Warn("failed to list snapshots", zap.Error(err))
		}
		seen := make(map[string]bool, len(names))
		for _, n := range names {
			seen[n] = true
		}
		for _, key := range keys {
			kind, name, ok := snapshot.ParseKey(key)
			if ok && kind == snapshot.KindType && !seen[name] {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return nil
	}
	return names
}

// Definition returns a copy of the definition of a type
func (f *Factory) Definition(name string) (TypeDef, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.types[name]
	if !ok {
		return TypeDef{}, false
	}
	return *def, true
}

// Clear implements schema.Factory. Definitions restored from snapshots are
// dropped so they are read again.
func (f *Factory) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for name := range f.restored {
		delete(f.types, name)
	}
	f.restored = make(map[string]bool)
	f.seqsLoaded = false
	f.queriesLoaded = false
}

func queryName(definingType *schema.Class, name string) string {
	if definingType == nil {
		return name
	}
	return definingType.Name + ":" + name
}
