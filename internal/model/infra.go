package model

// Network is the top-level isolation boundary. It owns schedulers, queues
// and nodes.
type Network struct {
	Base
	UserID string `json:"user_id"`
}

func (*Network) Kind() Kind { return KindNetwork }

func (n *Network) Refs() []Ref {
	return []Ref{{Column: "user_id", Target: KindUser, ID: &n.UserID, Required: true}}
}

// Scheduler distributes nodes under a placement strategy.
type Scheduler struct {
	Base
	Strategy  Strategy `json:"strategy"`
	NetworkID string   `json:"network_id,omitempty"`
}

func (*Scheduler) Kind() Kind { return KindScheduler }

func (s *Scheduler) Refs() []Ref {
	return []Ref{{Column: "network_id", Target: KindNetwork, ID: &s.NetworkID}}
}

func (s *Scheduler) Validate() error {
	if s.Strategy != "" && !s.Strategy.Valid() {
		return invalidEnum(KindScheduler, "strategy", s.Strategy)
	}
	return nil
}

// Node is a compute host. Resource fields are point-in-time gauges.
type Node struct {
	Base
	Hostname    string  `json:"hostname"`
	MemSize     string  `json:"memsize"`
	FreeMem     string  `json:"freemem"`
	MemUsed     float64 `json:"memused"`
	DiskSize    string  `json:"disksize"`
	DiskUsage   string  `json:"diskusage"`
	CPUs        int     `json:"cpus"`
	CPULoad     float64 `json:"cpuload"`
	SchedulerID string  `json:"scheduler_id,omitempty"`
	NetworkID   string  `json:"network_id,omitempty"`
}

func (*Node) Kind() Kind { return KindNode }

func (n *Node) Refs() []Ref {
	return []Ref{
		{Column: "scheduler_id", Target: KindScheduler, ID: &n.SchedulerID},
		{Column: "network_id", Target: KindNetwork, ID: &n.NetworkID},
	}
}

func (n *Node) Validate() error {
	if n.CPUs < 0 {
		return NewValidationError(ReasonInvalidValue, KindNode, n.ID, "cpus", "cpus must not be negative")
	}
	return nil
}

// Agent is the process managing workers on a node. A node has at most one.
type Agent struct {
	Base
	Hostname string `json:"hostname"`
	CPUs     int    `json:"cpus"`
	Port     int    `json:"port"`
	PID      int    `json:"pid"`
	NodeID   string `json:"node_id"`
}

func (*Agent) Kind() Kind { return KindAgent }

func (a *Agent) Refs() []Ref {
	return []Ref{{Column: "node_id", Target: KindNode, ID: &a.NodeID, Required: true}}
}

// Worker is an execution slot for one processor.
type Worker struct {
	Base
	Backend      string `json:"backend"`
	Broker       string `json:"broker"`
	Concurrency  int    `json:"concurrency"`
	Process      int    `json:"process"`
	Port         int    `json:"port"`
	Hostname     string `json:"hostname"`
	WorkerDir    string `json:"workerdir"`
	ProcessorID  string `json:"processor_id"`
	AgentID      string `json:"agent_id"`
	DeploymentID string `json:"deployment_id,omitempty"`
}

func (*Worker) Kind() Kind { return KindWorker }

func (w *Worker) Refs() []Ref {
	return []Ref{
		{Column: "processor_id", Target: KindProcessor, ID: &w.ProcessorID, Required: true},
		{Column: "agent_id", Target: KindAgent, ID: &w.AgentID, Required: true},
		{Column: "deployment_id", Target: KindDeployment, ID: &w.DeploymentID},
	}
}

func (w *Worker) Validate() error {
	if w.Backend == "" {
		return NewValidationError(ReasonRequired, KindWorker, w.ID, "backend", "backend is required")
	}
	if w.Broker == "" {
		return NewValidationError(ReasonRequired, KindWorker, w.ID, "broker", "broker is required")
	}
	return nil
}

// Deployment is a container/runtime placement of a processor, bound 1:1 to
// a worker through Worker.DeploymentID.
type Deployment struct {
	Base
	Hostname    string `json:"hostname"`
	CPUs        int    `json:"cpus"`
	ProcessorID string `json:"processor_id"`
}

func (*Deployment) Kind() Kind { return KindDeployment }

func (d *Deployment) Refs() []Ref {
	return []Ref{{Column: "processor_id", Target: KindProcessor, ID: &d.ProcessorID, Required: true}}
}

func (d *Deployment) Validate() error {
	if d.Hostname == "" {
		return NewValidationError(ReasonRequired, KindDeployment, d.ID, "hostname", "hostname is required")
	}
	if d.CPUs < 1 {
		return NewValidationError(ReasonInvalidValue, KindDeployment, d.ID, "cpus", "cpus must be at least 1")
	}
	return nil
}
