package schema

import (
	"fmt"
	"maps"
	"slices"

	"github.com/nickyhof/viewdb/core"
)

const (
	fieldQuery                 = "query"
	fieldUpdatable             = "updatable"
	fieldIndexes               = "indexes"
	fieldUpdateIntervalSeconds = "updateIntervalSeconds"
	fieldUpdateStrategy        = "updateStrategy"
	fieldWatchClasses          = "watchClasses"
	fieldOriginRidField        = "originRidField"
	fieldNodes                 = "nodes"
	fieldActiveIndexNames      = "activeIndexNames"
	fieldInactiveIndexNames    = "inactiveIndexNames"
)

// FromStream loads the view from its stored document. Only query is
// required; every other field keeps its default when it is absent or holds
// a value of the wrong kind. An unknown index property type fails the whole
// view with ErrMalformedIndexType.
func (v *View) FromStream(doc Document) error {
	v.class.fromStream(doc)

	query, ok := doc.StringField(fieldQuery)
	if !ok || query == "" {
		return fmt.Errorf("view %s: %w", v.Name(), ErrMissingQuery)
	}
	cfg := core.NewViewConfig(v.Name(), query)

	if updatable, ok := doc.BoolField(fieldUpdatable); ok {
		cfg.SetUpdatable(updatable)
	}

	if idxData, ok := doc.MapListField(fieldIndexes); ok {
		for i, props := range idxData {
			idx := cfg.AddIndex()
			for _, name := range slices.Sorted(maps.Keys(props)) {
				columnType, err := core.ParseColumnType(props[name])
				if err != nil {
					return fmt.Errorf("%w: view %s index %d property %s: %w", ErrMalformedIndexType, v.Name(), i, name, err)
				}
				idx.AddProperty(name, columnType)
			}
		}
	}

	if seconds, ok := doc.IntField(fieldUpdateIntervalSeconds); ok {
		cfg.SetUpdateIntervalSeconds(seconds)
	}
	if strategy, ok := doc.StringField(fieldUpdateStrategy); ok {
		cfg.SetUpdateStrategy(core.UpdateStrategy(strategy))
	}
	if classes, ok := doc.ListField(fieldWatchClasses); ok {
		cfg.SetWatchClasses(classes)
	}
	if field, ok := doc.StringField(fieldOriginRidField); ok {
		cfg.SetOriginRidField(field)
	}
	if nodes, ok := doc.ListField(fieldNodes); ok {
		cfg.SetNodes(nodes)
	}

	active, _ := doc.SetField(fieldActiveIndexNames)
	inactive, _ := doc.ListField(fieldInactiveIndexNames)

	v.cfg = cfg
	v.indexes.restore(active, inactive)
	return nil
}

// ToStream encodes the view for storage. Every field is written, empty
// collections included.
func (v *View) ToStream() Document {
	doc := v.class.toStream()
	v.encodeInto(doc)
	return doc
}

// ToNetworkStream encodes the view for clients. It carries the same view
// fields as ToStream on top of the network form of the class.
func (v *View) ToNetworkStream() Document {
	doc := v.class.toNetworkStream()
	v.encodeInto(doc)
	return doc
}

func (v *View) encodeInto(doc Document) {
	cfg := v.cfg

	indexes := make([]map[string]string, 0, len(cfg.Indexes()))
	for _, idx := range cfg.Indexes() {
		descriptor := make(map[string]string)
		for _, prop := range idx.Properties() {
			descriptor[prop.Name] = prop.Type.String()
		}
		indexes = append(indexes, descriptor)
	}

	var originRidField any
	if cfg.OriginRidField() != "" {
		originRidField = cfg.OriginRidField()
	}

	active, inactive := v.indexes.snapshot()

	doc.Set(fieldQuery, cfg.Query()).
		Set(fieldUpdatable, cfg.Updatable()).
		Set(fieldIndexes, indexes).
		Set(fieldUpdateIntervalSeconds, cfg.UpdateIntervalSeconds()).
		Set(fieldUpdateStrategy, string(cfg.UpdateStrategy())).
		Set(fieldWatchClasses, cfg.WatchClasses()).
		Set(fieldOriginRidField, originRidField).
		Set(fieldNodes, cfg.Nodes()).
		Set(fieldActiveIndexNames, active).
		Set(fieldInactiveIndexNames, inactive)
}
