package model

import "time"

// Call is one runtime invocation of a Task through a Socket.
//
// State moves CREATED -> RUNNING -> SUCCESS|FAILURE. Use the ledger package
// to drive transitions; the store persists whatever it is given.
type Call struct {
	Base
	State        CallState  `json:"state"`
	ParentID     string     `json:"parent_id,omitempty"`
	TaskParentID string     `json:"taskparent_id,omitempty"`
	ResultID     string     `json:"resultid,omitempty"`
	CeleryID     string     `json:"celeryid,omitempty"`
	Tracking     string     `json:"tracking,omitempty"`
	Argument     string     `json:"argument,omitempty"`
	TaskID       string     `json:"task_id"`
	SocketID     string     `json:"socket_id"`
	Started      time.Time  `json:"started"`
	Finished     *time.Time `json:"finished,omitempty"`
}

func (*Call) Kind() Kind { return KindCall }

func (c *Call) Refs() []Ref {
	return []Ref{
		{Column: "task_id", Target: KindTask, ID: &c.TaskID, Required: true},
		{Column: "socket_id", Target: KindSocket, ID: &c.SocketID, Required: true},
		{Column: "parent_id", Target: KindCall, ID: &c.ParentID},
		{Column: "taskparent_id", Target: KindTask, ID: &c.TaskParentID},
	}
}

func (c *Call) Columns() []Field {
	return []Field{{Column: "state", Value: (*string)(&c.State)}}
}

func (c *Call) Validate() error {
	if !c.State.Valid() {
		return invalidEnum(KindCall, "state", c.State)
	}
	if c.Finished != nil && !c.State.Terminal() {
		return NewValidationError(ReasonInvalidValue, KindCall, c.ID, "finished", "finished is only set in a terminal state")
	}
	if c.Finished == nil && c.State.Terminal() {
		return NewValidationError(ReasonRequired, KindCall, c.ID, "finished", "terminal calls need a finished time")
	}
	return nil
}

// Event is an append-only note on a Call (received, prerun, postrun, ...).
type Event struct {
	Base
	Note   string `json:"note"`
	CallID string `json:"call_id"`
}

func (*Event) Kind() Kind { return KindEvent }

func (e *Event) Refs() []Ref {
	return []Ref{{Column: "call_id", Target: KindCall, ID: &e.CallID, Required: true}}
}

func (e *Event) Validate() error {
	if e.Note == "" {
		return NewValidationError(ReasonRequired, KindEvent, e.ID, "note", "note is required")
	}
	return nil
}

// Work is the per-task scheduler checkpoint row. Its checkpoint columns are
// written only through the store's checkpoint operations.
type Work struct {
	Base
	TaskID string `json:"task_id"`
}

func (*Work) Kind() Kind { return KindWork }

func (w *Work) Refs() []Ref {
	return []Ref{{Column: "task_id", Target: KindTask, ID: &w.TaskID, Required: true}}
}
