package schema

import "slices"

const (
	fieldName             = "name"
	fieldClusterIDs       = "clusterIds"
	fieldDefaultClusterID = "defaultClusterId"
	fieldClusterSelection = "clusterSelection"

	defaultClusterSelection = "round-robin"
)

// Owner is the schema-wide capability a class is attached to.
type Owner interface {
	AcquireSchemaReadLock()
	ReleaseSchemaReadLock()
	Database() Database
}

// Class carries the generic schema-class state of a view: its name, the
// clusters it is stored in and the schema it belongs to.
type Class struct {
	owner            Owner
	name             string
	clusterIDs       []int
	defaultClusterID int
	clusterSelection string
}

func newClass(owner Owner, name string, clusterIDs []int) *Class {
	c := &Class{
		owner:            owner,
		name:             name,
		clusterIDs:       slices.Clone(clusterIDs),
		defaultClusterID: -1,
		clusterSelection: defaultClusterSelection,
	}
	if c.clusterIDs == nil {
		c.clusterIDs = []int{}
	}
	if len(c.clusterIDs) > 0 {
		c.defaultClusterID = c.clusterIDs[0]
	}
	return c
}

func (c *Class) Name() string {
	return c.name
}

func (c *Class) ClusterIDs() []int {
	return slices.Clone(c.clusterIDs)
}

func (c *Class) DefaultClusterID() int {
	return c.defaultClusterID
}

// withSchemaReadLock runs fn holding the schema lock in shared mode. The lock
// is released on every exit path, panics included. A detached class (nil
// owner) has no schema lock and runs fn directly.
func (c *Class) withSchemaReadLock(fn func()) {
	if c.owner == nil {
		fn()
		return
	}
	c.owner.AcquireSchemaReadLock()
	defer c.owner.ReleaseSchemaReadLock()
	fn()
}

func (c *Class) database() Database {
	if c.owner == nil {
		return nil
	}
	return c.owner.Database()
}

func (c *Class) toStream() Document {
	return Document{
		fieldName:             c.name,
		fieldClusterIDs:       slices.Clone(c.clusterIDs),
		fieldDefaultClusterID: c.defaultClusterID,
		fieldClusterSelection: c.clusterSelection,
	}
}

// toNetworkStream omits the storage-only cluster selection strategy.
func (c *Class) toNetworkStream() Document {
	return Document{
		fieldName:             c.name,
		fieldClusterIDs:       slices.Clone(c.clusterIDs),
		fieldDefaultClusterID: c.defaultClusterID,
	}
}

func (c *Class) fromStream(doc Document) {
	if ids, ok := doc.IntListField(fieldClusterIDs); ok {
		c.clusterIDs = ids
	}
	if id, ok := doc.IntField(fieldDefaultClusterID); ok {
		c.defaultClusterID = id
	}
	if selection, ok := doc.StringField(fieldClusterSelection); ok {
		c.clusterSelection = selection
	}
}
