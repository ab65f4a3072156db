package model

import (
	"fmt"
	"time"
)

// Subject is the polymorphic key of an audit record: the id of any entity
// together with its kind. Lookups always match both fields.
type Subject struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// SubjectOf returns the subject key of e.
func SubjectOf(e Entity) Subject {
	return Subject{Kind: e.Kind(), ID: e.Meta().ID}
}

func (s Subject) String() string {
	return fmt.Sprintf("%s/%s", s.Kind, s.ID)
}

// Log is an append-only audit entry attached to a subject.
type Log struct {
	ID      string    `json:"id"`
	UserID  string    `json:"user_id"`
	Public  bool      `json:"public"`
	Created time.Time `json:"created"`
	Subject Subject   `json:"subject"`
	Text    string    `json:"text"`
	Source  string    `json:"source"`
}

// Login is an authentication session. Tokens are unique.
type Login struct {
	ID      string    `json:"id"`
	UserID  string    `json:"user_id"`
	Token   string    `json:"token"`
	Login   time.Time `json:"login"`
	Created time.Time `json:"created"`
}

// CheckpointKind selects the checkpoint table.
type CheckpointKind string

const (
	// CheckpointJob rows are keyed by an arbitrary scheduler job id.
	CheckpointJob CheckpointKind = "job"
	// CheckpointWork rows are keyed by a task id.
	CheckpointWork CheckpointKind = "work"
)

// CheckpointRef addresses one checkpoint row.
type CheckpointRef struct {
	Kind CheckpointKind `json:"kind"`
	Key  string         `json:"key"`
}

func (r CheckpointRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Key)
}

// Checkpoint is the durable state of an external scheduler job.
//
// A zero NextRun means the job is paused and never due. Revision increases
// on every claim and commit; commits compare-and-swap on it.
type Checkpoint struct {
	Ref          CheckpointRef `json:"ref"`
	NextRun      time.Time     `json:"next_run"`
	State        []byte        `json:"state,omitempty"`
	LeaseOwner   string        `json:"lease_owner,omitempty"`
	LeaseExpires time.Time     `json:"lease_expires"`
	Revision     int64         `json:"revision"`
}

// Leased reports whether a live lease is held at now.
func (c Checkpoint) Leased(now time.Time) bool {
	return c.LeaseOwner != "" && c.LeaseExpires.After(now)
}
