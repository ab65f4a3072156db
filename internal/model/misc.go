package model

// Settings is a named configuration value.
type Settings struct {
	Base
	Value string `json:"value"`
}

func (*Settings) Kind() Kind { return KindSettings }

func (*Settings) Refs() []Ref { return nil }

func (s *Settings) Validate() error {
	if s.Value == "" {
		return NewValidationError(ReasonRequired, KindSettings, s.ID, "value", "value is required")
	}
	return nil
}

// Gate is an open/closed flag bound to a task.
type Gate struct {
	Base
	Open   bool   `json:"open"`
	TaskID string `json:"task_id,omitempty"`
}

func (*Gate) Kind() Kind { return KindGate }

func (g *Gate) Refs() []Ref {
	return []Ref{{Column: "task_id", Target: KindTask, ID: &g.TaskID}}
}

// ActionTarget names what an Action applies to.
type ActionTarget string

const (
	TargetHost      ActionTarget = "host"
	TargetWorker    ActionTarget = "worker"
	TargetProcessor ActionTarget = "processor"
	TargetQueue     ActionTarget = "queue"
	TargetAll       ActionTarget = "all"
)

// Action is a parameterised operator command.
type Action struct {
	Base
	Params string       `json:"params,omitempty"`
	Target ActionTarget `json:"target"`
}

func (*Action) Kind() Kind { return KindAction }

func (*Action) Refs() []Ref { return nil }

func (a *Action) Validate() error {
	switch a.Target {
	case TargetHost, TargetWorker, TargetProcessor, TargetQueue, TargetAll:
		return nil
	case "":
		return NewValidationError(ReasonRequired, KindAction, a.ID, "target", "target is required")
	}
	return invalidEnum(KindAction, "target", a.Target)
}

// Container records a runtime container by its engine id.
type Container struct {
	Base
	ContainerID string `json:"container_id"`
}

func (*Container) Kind() Kind { return KindContainer }

func (*Container) Refs() []Ref { return nil }

func (c *Container) Columns() []Field {
	return []Field{{Column: "container_id", Value: &c.ContainerID}}
}

func (c *Container) Validate() error {
	if c.ContainerID == "" {
		return NewValidationError(ReasonRequired, KindContainer, c.ID, "container_id", "container_id is required")
	}
	return nil
}
