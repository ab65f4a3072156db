package model

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names an entity type. The value doubles as the polymorphic type tag
// stored on log records.
type Kind string

const (
	KindUser       Kind = "user"
	KindRole       Kind = "role"
	KindPrivilege  Kind = "privilege"
	KindPassword   Kind = "password"
	KindNetwork    Kind = "network"
	KindScheduler  Kind = "scheduler"
	KindNode       Kind = "node"
	KindAgent      Kind = "agent"
	KindWorker     Kind = "worker"
	KindDeployment Kind = "deployment"
	KindProcessor  Kind = "processor"
	KindFlow       Kind = "flow"
	KindFile       Kind = "file"
	KindVersion    Kind = "version"
	KindTask       Kind = "task"
	KindArgument   Kind = "argument"
	KindSocket     Kind = "socket"
	KindPlug       Kind = "plug"
	KindQueue      Kind = "queue"
	KindCall       Kind = "call"
	KindEvent      Kind = "event"
	KindWork       Kind = "work"
	KindSettings   Kind = "settings"
	KindGate       Kind = "gate"
	KindAction     Kind = "action"
	KindContainer  Kind = "container"
)

// KindInfo describes how a kind is persisted.
type KindInfo struct {
	Kind  Kind
	Table string
	// UniqueName is false for kinds whose names repeat by nature
	// (calls, events, versions) or are scoped to a parent (arguments).
	UniqueName bool
	New        func() Entity
}

// Registry maps kinds to their persistence metadata.
// Build one with NewRegistry during startup and pass it to the store.
type Registry struct {
	kinds map[Kind]KindInfo
}

// NewRegistry returns a registry with every built-in kind registered.
func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[Kind]KindInfo)}
	r.Register(KindInfo{Kind: KindUser, Table: "users", UniqueName: true, New: func() Entity { return &User{} }})
	r.Register(KindInfo{Kind: KindRole, Table: "role", UniqueName: true, New: func() Entity { return &Role{} }})
	r.Register(KindInfo{Kind: KindPrivilege, Table: "privilege", UniqueName: true, New: func() Entity { return &Privilege{} }})
	r.Register(KindInfo{Kind: KindPassword, Table: "passwords", UniqueName: true, New: func() Entity { return &Password{} }})
	r.Register(KindInfo{Kind: KindNetwork, Table: "network", UniqueName: true, New: func() Entity { return &Network{} }})
	r.Register(KindInfo{Kind: KindScheduler, Table: "scheduler", UniqueName: true, New: func() Entity { return &Scheduler{} }})
	r.Register(KindInfo{Kind: KindNode, Table: "node", UniqueName: true, New: func() Entity { return &Node{} }})
	r.Register(KindInfo{Kind: KindAgent, Table: "agent", UniqueName: true, New: func() Entity { return &Agent{} }})
	r.Register(KindInfo{Kind: KindWorker, Table: "worker", UniqueName: true, New: func() Entity { return &Worker{} }})
	r.Register(KindInfo{Kind: KindDeployment, Table: "deployment", UniqueName: true, New: func() Entity { return &Deployment{} }})
	r.Register(KindInfo{Kind: KindProcessor, Table: "processor", UniqueName: true, New: func() Entity { return &Processor{} }})
	r.Register(KindInfo{Kind: KindFlow, Table: "flow", UniqueName: true, New: func() Entity { return &Flow{} }})
	r.Register(KindInfo{Kind: KindFile, Table: "file", UniqueName: true, New: func() Entity { return &File{} }})
	r.Register(KindInfo{Kind: KindVersion, Table: "versions", UniqueName: false, New: func() Entity { return &Version{} }})
	r.Register(KindInfo{Kind: KindTask, Table: "task", UniqueName: true, New: func() Entity { return &Task{} }})
	r.Register(KindInfo{Kind: KindArgument, Table: "argument", UniqueName: false, New: func() Entity { return &Argument{} }})
	r.Register(KindInfo{Kind: KindSocket, Table: "socket", UniqueName: true, New: func() Entity { return &Socket{} }})
	r.Register(KindInfo{Kind: KindPlug, Table: "plug", UniqueName: true, New: func() Entity { return &Plug{} }})
	r.Register(KindInfo{Kind: KindQueue, Table: "queue", UniqueName: true, New: func() Entity { return &Queue{} }})
	r.Register(KindInfo{Kind: KindCall, Table: "call", UniqueName: false, New: func() Entity { return &Call{} }})
	r.Register(KindInfo{Kind: KindEvent, Table: "event", UniqueName: false, New: func() Entity { return &Event{} }})
	r.Register(KindInfo{Kind: KindWork, Table: "work", UniqueName: true, New: func() Entity { return &Work{} }})
	r.Register(KindInfo{Kind: KindSettings, Table: "settings", UniqueName: true, New: func() Entity { return &Settings{} }})
	r.Register(KindInfo{Kind: KindGate, Table: "gate", UniqueName: true, New: func() Entity { return &Gate{} }})
	r.Register(KindInfo{Kind: KindAction, Table: "action", UniqueName: true, New: func() Entity { return &Action{} }})
	r.Register(KindInfo{Kind: KindContainer, Table: "container", UniqueName: true, New: func() Entity { return &Container{} }})
	return r
}

// Register adds or replaces a kind. Not safe for concurrent use; call it
// during startup only.
func (r *Registry) Register(info KindInfo) {
	r.kinds[info.Kind] = info
}

// Lookup returns the metadata for a kind.
func (r *Registry) Lookup(k Kind) (KindInfo, bool) {
	info, ok := r.kinds[k]
	return info, ok
}

// MustLookup is Lookup for kinds known to be registered.
func (r *Registry) MustLookup(k Kind) KindInfo {
	info, ok := r.kinds[k]
	if !ok {
		panic(fmt.Sprintf("model: kind %q not registered", k))
	}
	return info
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseKind resolves a kind name against the registry (case-insensitive).
func (r *Registry) ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := r.kinds[k]; !ok {
		return "", NewValidationError(ReasonInvalidEnum, "", "", "kind", fmt.Sprintf("unknown kind %q", s))
	}
	return k, nil
}
