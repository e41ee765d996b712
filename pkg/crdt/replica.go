package crdt

// ReplicaID is an opaque, globally unique, totally-ordered identifier for a
// replica, chosen at startup and immutable for the replica's lifetime. It
// is a plain comparable string so it can key Go maps directly; callers
// obtain one via internal/security.NewReplicaID.
type ReplicaID string

// Less gives ReplicaID its total order, used as the tie-breaker in Tag
// comparisons and for canonical (sorted) encoding of replica-keyed maps.
func (r ReplicaID) Less(other ReplicaID) bool {
	return r < other
}

// Replica is a live handle scoped to one process: it owns the monotonic
// tag allocator for its ReplicaID. The counter allocator's lifecycle is
// tied to this handle, not to package globals, so tests can run many
// replicas in one process safely.
type Replica struct {
	id  ReplicaID
	tag TagAllocator
}

// NewReplica creates a replica handle for id with its counter starting at
// zero (no tags issued yet).
func NewReplica(id ReplicaID) *Replica {
	return &Replica{id: id}
}

// ID returns the replica's identifier.
func (r *Replica) ID() ReplicaID { return r.id }

// NextTag allocates the next monotonically increasing Tag for this
// replica; counters issued by a replica never repeat or regress.
func (r *Replica) NextTag() Tag {
	return r.tag.Next(r.id)
}
