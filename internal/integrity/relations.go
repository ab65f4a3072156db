package integrity

import (
	"fmt"

	"github.com/roach88/lattice/internal/model"
)

// Policy is what happens to a child when its parent is deleted.
type Policy int

const (
	// Cascade deletes the child, recursively.
	Cascade Policy = iota
	// Nullify clears the child's reference.
	Nullify
	// Restrict blocks the delete while the child exists.
	Restrict
)

func (p Policy) String() string {
	switch p {
	case Cascade:
		return "cascade"
	case Nullify:
		return "nullify"
	case Restrict:
		return "restrict"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Relation declares one foreign key: Child.Column references Parent.
type Relation struct {
	Child  model.Kind
	Column string
	Parent model.Kind
	Policy Policy
}

// Release declares that a Holder owns the record its Column points at.
// When the holder is deleted, or its reference moves, the held record is
// deleted once nothing else holds it. Exclusive holdings additionally allow
// only one holder at a time.
type Release struct {
	Holder    model.Kind
	Column    string
	Held      model.Kind
	Exclusive bool
}

// DefaultRelations is the relation table of the built-in kinds.
func DefaultRelations() []Relation {
	return []Relation{
		// Execution topology.
		{model.KindScheduler, "network_id", model.KindNetwork, Cascade},
		{model.KindQueue, "network_id", model.KindNetwork, Cascade},
		{model.KindNode, "network_id", model.KindNetwork, Cascade},
		{model.KindNode, "scheduler_id", model.KindScheduler, Nullify},
		{model.KindAgent, "node_id", model.KindNode, Cascade},
		{model.KindWorker, "agent_id", model.KindAgent, Cascade},
		{model.KindWorker, "processor_id", model.KindProcessor, Cascade},
		{model.KindWorker, "deployment_id", model.KindDeployment, Nullify},
		{model.KindDeployment, "processor_id", model.KindProcessor, Cascade},

		// Pipeline topology.
		{model.KindProcessor, "password_id", model.KindPassword, Nullify},
		{model.KindSocket, "processor_id", model.KindProcessor, Cascade},
		{model.KindPlug, "processor_id", model.KindProcessor, Cascade},
		{model.KindPlug, "source_id", model.KindSocket, Cascade},
		{model.KindPlug, "target_id", model.KindSocket, Cascade},
		{model.KindPlug, "argument_id", model.KindArgument, Nullify},
		{model.KindPlug, "queue_id", model.KindQueue, Nullify},
		{model.KindSocket, "queue_id", model.KindQueue, Nullify},
		{model.KindSocket, "task_id", model.KindTask, Restrict},
		{model.KindFlow, "file_id", model.KindFile, Restrict},
		{model.KindVersion, "file_id", model.KindFile, Cascade},
		{model.KindArgument, "task_id", model.KindTask, Cascade},
		{model.KindGate, "task_id", model.KindTask, Cascade},

		// Execution ledger.
		{model.KindCall, "task_id", model.KindTask, Cascade},
		{model.KindCall, "socket_id", model.KindSocket, Cascade},
		{model.KindCall, "parent_id", model.KindCall, Nullify},
		{model.KindCall, "taskparent_id", model.KindTask, Nullify},
		{model.KindEvent, "call_id", model.KindCall, Cascade},
		{model.KindWork, "task_id", model.KindTask, Cascade},

		// Ownership by user.
		{model.KindNetwork, "user_id", model.KindUser, Restrict},
		{model.KindProcessor, "user_id", model.KindUser, Restrict},
		{model.KindFile, "user_id", model.KindUser, Restrict},
		{model.KindArgument, "user_id", model.KindUser, Restrict},
		{model.KindSocket, "user_id", model.KindUser, Restrict},
		{model.KindPlug, "user_id", model.KindUser, Restrict},
	}
}

// OwnerColumn is the base column naming a record's owning user.
const OwnerColumn = "owner"

// ownerRelations restricts deleting a user while any record of a
// registered kind names it as owner.
func ownerRelations(reg *model.Registry) []Relation {
	kinds := reg.Kinds()
	out := make([]Relation, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, Relation{k, OwnerColumn, model.KindUser, Restrict})
	}
	return out
}

// DefaultReleases is the orphan-release table of the built-in kinds.
func DefaultReleases() []Release {
	return []Release{
		{Holder: model.KindFlow, Column: "file_id", Held: model.KindFile, Exclusive: true},
		{Holder: model.KindProcessor, Column: "password_id", Held: model.KindPassword, Exclusive: true},
		{Holder: model.KindSocket, Column: "task_id", Held: model.KindTask},
	}
}

// singleParent lists reference columns that at most one record may hold
// for a given target, beyond exclusive releases.
var singleParent = []struct {
	kind   model.Kind
	column string
}{
	{model.KindAgent, "node_id"},
	{model.KindWorker, "deployment_id"},
	{model.KindWork, "task_id"},
}

// checkRelations verifies every relation names a declared reference column
// whose target matches.
func checkRelations(reg *model.Registry, relations []Relation, releases []Release) error {
	check := func(child model.Kind, column string, parent model.Kind) error {
		info, ok := reg.Lookup(child)
		if !ok {
			return fmt.Errorf("relation on unregistered kind %s", child)
		}
		ref, ok := model.RefTo(info.New(), column)
		if !ok {
			return fmt.Errorf("%s has no reference column %s", child, column)
		}
		if ref.Target != parent {
			return fmt.Errorf("%s.%s references %s, not %s", child, column, ref.Target, parent)
		}
		return nil
	}
	for _, r := range relations {
		if err := check(r.Child, r.Column, r.Parent); err != nil {
			return err
		}
	}
	for _, r := range releases {
		if err := check(r.Holder, r.Column, r.Held); err != nil {
			return err
		}
	}
	return nil
}
