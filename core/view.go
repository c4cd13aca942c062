package core

import "slices"

// UpdateStrategy tells the refresh engine how a view is kept up to date.
type UpdateStrategy string

const (
	UpdateStrategyBatch UpdateStrategy = "batch"
	UpdateStrategyLive  UpdateStrategy = "live"
)

// IndexProperty is one (property, type) pair of an index definition.
type IndexProperty struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// IndexConfig describes an index the view requires. Properties are only ever
// appended, never removed.
type IndexConfig struct {
	props []IndexProperty
}

// AddProperty appends a property to the index definition.
func (idx *IndexConfig) AddProperty(name string, columnType ColumnType) *IndexConfig {
	idx.props = append(idx.props, IndexProperty{Name: name, Type: columnType})
	return idx
}

// Properties returns a copy of the index properties in insertion order.
func (idx IndexConfig) Properties() []IndexProperty {
	return slices.Clone(idx.props)
}

func (idx IndexConfig) copy() IndexConfig {
	return IndexConfig{props: slices.Clone(idx.props)}
}

// ViewConfig holds the defining query and the refresh and distribution
// policy of a materialized view.
type ViewConfig struct {
	name                  string
	query                 string
	updatable             bool
	updateIntervalSeconds int
	updateStrategy        UpdateStrategy
	watchClasses          []string
	originRidField        string
	nodes                 []string
	indexes               []*IndexConfig
}

// NewViewConfig creates a configuration with default refresh policy.
func NewViewConfig(name, query string) *ViewConfig {
	return &ViewConfig{
		name:           name,
		query:          query,
		updateStrategy: UpdateStrategyBatch,
		watchClasses:   []string{},
		nodes:          []string{},
		indexes:        []*IndexConfig{},
	}
}

func (cfg *ViewConfig) Name() string                   { return cfg.name }
func (cfg *ViewConfig) Query() string                  { return cfg.query }
func (cfg *ViewConfig) Updatable() bool                { return cfg.updatable }
func (cfg *ViewConfig) UpdateIntervalSeconds() int     { return cfg.updateIntervalSeconds }
func (cfg *ViewConfig) UpdateStrategy() UpdateStrategy { return cfg.updateStrategy }
func (cfg *ViewConfig) OriginRidField() string         { return cfg.originRidField }

// WatchClasses returns the classes whose changes trigger an incremental refresh.
func (cfg *ViewConfig) WatchClasses() []string {
	return slices.Clone(cfg.watchClasses)
}

// Nodes returns the cluster nodes the view is distributed over.
func (cfg *ViewConfig) Nodes() []string {
	return slices.Clone(cfg.nodes)
}

// Indexes returns a deep copy of the required index definitions.
func (cfg *ViewConfig) Indexes() []IndexConfig {
	out := make([]IndexConfig, len(cfg.indexes))
	for i, idx := range cfg.indexes {
		out[i] = idx.copy()
	}
	return out
}

func (cfg *ViewConfig) SetUpdatable(updatable bool) *ViewConfig {
	cfg.updatable = updatable
	return cfg
}

// SetUpdateIntervalSeconds sets the refresh period. Zero disables periodic
// refresh; negative values are stored as zero.
func (cfg *ViewConfig) SetUpdateIntervalSeconds(seconds int) *ViewConfig {
	cfg.updateIntervalSeconds = max(seconds, 0)
	return cfg
}

func (cfg *ViewConfig) SetUpdateStrategy(strategy UpdateStrategy) *ViewConfig {
	cfg.updateStrategy = strategy
	return cfg
}

func (cfg *ViewConfig) SetWatchClasses(classes []string) *ViewConfig {
	cfg.watchClasses = cloneOrEmpty(classes)
	return cfg
}

func (cfg *ViewConfig) SetOriginRidField(field string) *ViewConfig {
	cfg.originRidField = field
	return cfg
}

func (cfg *ViewConfig) SetNodes(nodes []string) *ViewConfig {
	cfg.nodes = cloneOrEmpty(nodes)
	return cfg
}

// AddIndex appends an empty index definition and returns it for population.
func (cfg *ViewConfig) AddIndex() *IndexConfig {
	idx := &IndexConfig{}
	cfg.indexes = append(cfg.indexes, idx)
	return idx
}

// Copy returns a deep copy that shares no mutable state with cfg.
func (cfg *ViewConfig) Copy() *ViewConfig {
	out := *cfg
	out.watchClasses = cloneOrEmpty(cfg.watchClasses)
	out.nodes = cloneOrEmpty(cfg.nodes)
	out.indexes = make([]*IndexConfig, len(cfg.indexes))
	for i, idx := range cfg.indexes {
		c := idx.copy()
		out.indexes[i] = &c
	}
	return &out
}

func cloneOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
