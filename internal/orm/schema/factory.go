package schema

// Target is the view of a Repository handed to a Factory while it loads.
// Its methods do not take the repository lock, which the loading call
// already holds.
type Target interface {
	// AddMetaData creates and caches an unresolved descriptor, or returns
	// the cached one.
	AddMetaData(cls *Class, access AccessType) (*ClassMetaData, error)
	CachedMetaData(cls *Class) *ClassMetaData
	AddQueryMetaData(definingType *Class, name string) *QueryMetaData
	AddSequenceMetaData(name string) *SequenceMetaData
	Register(reg Registration)
}

// Factory loads metadata from its sources into a repository and stores or
// drops it again.
type Factory interface {
	// Load populates the repository with the metadata of cls. A nil cls
	// loads everything the factory knows about for mode.
	Load(t Target, cls *Class, mode Mode, loader *Loader) error
	Store(metas []*ClassMetaData, queries []*QueryMetaData, seqs []*SequenceMetaData, mode Mode, out map[string][]byte) (bool, error)
	Drop(classes []*Class, mode Mode, loader *Loader) (bool, error)
	Defaults() Populator
	// PersistentTypeNames lists the persistent types the factory knows, or
	// nil when it cannot tell.
	PersistentTypeNames(devpath bool, loader *Loader) []string
	Clear()
}

// NoneFactory loads nothing; descriptors come only from AddMetaData
type NoneFactory struct {
	Populator Populator
}

// Load implements Factory
func (NoneFactory) Load(Target, *Class, Mode, *Loader) error { return nil }

// Store implements Factory
func (NoneFactory) Store([]*ClassMetaData, []*QueryMetaData, []*SequenceMetaData, Mode, map[string][]byte) (bool, error) {
	return false, nil
}

// Drop implements Factory
func (NoneFactory) Drop([]*Class, Mode, *Loader) (bool, error) { return false, nil }

// Defaults implements Factory
func (f NoneFactory) Defaults() Populator {
	if f.Populator == nil {
		return ReflectPopulator{}
	}
	return f.Populator
}

// PersistentTypeNames implements Factory
func (NoneFactory) PersistentTypeNames(bool, *Loader) []string { return nil }

// Clear implements Factory
func (NoneFactory) Clear() {}

// Mapper takes part in the mapping phases of resolution. It is called with
// the repository lock held: it must not call Repository methods or
// ClassMetaData.Resolve, and should only read and update the descriptor it
// is given.
type Mapper interface {
	// PrepareMapping runs after the mapping source was loaded
	PrepareMapping(meta *ClassMetaData) error
	ResolveMapping(meta *ClassMetaData) error
	InitializeMapping(meta *ClassMetaData) error
}

// Listener is told about descriptors that finished resolving. It is called
// without the repository lock held.
type Listener interface {
	OnLoaded(meta *ClassMetaData)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(meta *ClassMetaData)

// OnLoaded calls f
func (f ListenerFunc) OnLoaded(meta *ClassMetaData) {
	f(meta)
}

type target struct {
	r *Repository
}

func (t target) AddMetaData(cls *Class, access AccessType) (*ClassMetaData, error) {
	if meta := t.r.cachedMetaData(cls); meta != nil {
		return meta, nil
	}
	return t.r.addMetaData(cls, access)
}

func (t target) CachedMetaData(cls *Class) *ClassMetaData {
	return t.r.cachedMetaData(cls)
}

func (t target) AddQueryMetaData(definingType *Class, name string) *QueryMetaData {
	return t.r.addQueryMetaData(definingType, name)
}

func (t target) AddSequenceMetaData(name string) *SequenceMetaData {
	return t.r.addSequenceMetaData(name)
}

func (t target) Register(reg Registration) {
	t.r.Register(reg)
}
