package model

import "time"

// Processor is a deployable unit of code identified by module and git
// coordinates. Flow membership is a junction link (a processor may sit in
// several flows).
type Processor struct {
	Base
	Module           string `json:"module"`
	Beat             bool   `json:"beat"`
	GitRepo          string `json:"gitrepo"`
	Branch           string `json:"branch"`
	Commit           string `json:"commit,omitempty"`
	GitTag           string `json:"gittag,omitempty"`
	Retries          int    `json:"retries"`
	Concurrency      int    `json:"concurrency"`
	Receipt          string `json:"receipt,omitempty"`
	RateLimit        string `json:"ratelimit"`
	PerWorker        bool   `json:"perworker"`
	TimeLimit        int    `json:"timelimit"`
	IgnoreResult     bool   `json:"ignoreresult"`
	Serializer       string `json:"serializer,omitempty"`
	Backend          string `json:"backend,omitempty"`
	AcksLate         bool   `json:"ackslate"`
	TrackStarted     bool   `json:"trackstarted"`
	Disabled         bool   `json:"disabled"`
	RetryDelay       int    `json:"retrydelay"`
	Requirements     string `json:"requirements,omitempty"`
	Endpoint         string `json:"endpoint,omitempty"`
	ModulePath       string `json:"modulepath,omitempty"`
	Icon             string `json:"icon,omitempty"`
	Cron             string `json:"cron,omitempty"`
	HasAPI           bool   `json:"hasapi"`
	UIState          string `json:"uistate,omitempty"`
	Description      string `json:"description,omitempty"`
	ContainerImage   string `json:"container_image,omitempty"`
	ContainerCommand string `json:"container_command,omitempty"`
	ContainerVersion string `json:"container_version,omitempty"`
	UseContainer     bool   `json:"use_container"`
	Detached         bool   `json:"detached"`
	UserID           string `json:"user_id"`
	PasswordID       string `json:"password_id,omitempty"`
}

func (*Processor) Kind() Kind { return KindProcessor }

func (p *Processor) Refs() []Ref {
	return []Ref{
		{Column: "user_id", Target: KindUser, ID: &p.UserID, Required: true},
		{Column: "password_id", Target: KindPassword, ID: &p.PasswordID},
	}
}

func (p *Processor) Validate() error {
	if p.Module == "" {
		return NewValidationError(ReasonRequired, KindProcessor, p.ID, "module", "module is required")
	}
	if p.Retries < 0 || p.Concurrency < 0 || p.TimeLimit < 0 || p.RetryDelay < 0 {
		return NewValidationError(ReasonInvalidValue, KindProcessor, p.ID, "", "counts and limits must not be negative")
	}
	return nil
}

// ApplyDefaults fills unset branch, rate limit and container version.
func (p *Processor) ApplyDefaults() {
	if p.Branch == "" {
		p.Branch = "main"
	}
	if p.RateLimit == "" {
		p.RateLimit = "60"
	}
	if p.ContainerVersion == "" {
		p.ContainerVersion = "latest"
	}
}

// Flow is a named pipeline. Its File is exclusively owned (single parent).
type Flow struct {
	Base
	FileID string `json:"file_id"`
}

func (*Flow) Kind() Kind { return KindFlow }

func (f *Flow) Refs() []Ref {
	return []Ref{{Column: "file_id", Target: KindFile, ID: &f.FileID, Required: true}}
}

// File is a stored flow definition.
type File struct {
	Base
	Path       string `json:"path,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Collection string `json:"collection,omitempty"`
	Code       string `json:"code,omitempty"`
	Type       string `json:"type,omitempty"`
	Icon       string `json:"icon,omitempty"`
	UserID     string `json:"user_id"`
}

func (*File) Kind() Kind { return KindFile }

func (f *File) Refs() []Ref {
	return []Ref{{Column: "user_id", Target: KindUser, ID: &f.UserID, Required: true}}
}

// Version is an immutable snapshot of a file's content.
type Version struct {
	Base
	Flow    string    `json:"flow"`
	Digest  string    `json:"digest"`
	Version time.Time `json:"version"`
	FileID  string    `json:"file_id"`
}

func (*Version) Kind() Kind { return KindVersion }

func (v *Version) Refs() []Ref {
	return []Ref{{Column: "file_id", Target: KindFile, ID: &v.FileID, Required: true}}
}

func (v *Version) Columns() []Field {
	return []Field{{Column: "version", Value: &v.Version}}
}

// Task is a named executable function. (Module, GitRepo) is its natural key.
type Task struct {
	Base
	Module  string `json:"module"`
	GitRepo string `json:"gitrepo"`
	Mixin   bool   `json:"mixin"`
	Source  string `json:"source,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (*Task) Kind() Kind { return KindTask }

func (*Task) Refs() []Ref { return nil }

func (t *Task) Columns() []Field {
	return []Field{
		{Column: "module", Value: &t.Module},
		{Column: "gitrepo", Value: &t.GitRepo},
	}
}

func (t *Task) Validate() error {
	if t.Module == "" {
		return NewValidationError(ReasonRequired, KindTask, t.ID, "module", "module is required")
	}
	if t.GitRepo == "" {
		return NewValidationError(ReasonRequired, KindTask, t.ID, "gitrepo", "gitrepo is required")
	}
	if t.Mixin && t.Code == "" {
		return NewValidationError(ReasonRequired, KindTask, t.ID, "code", "mixin tasks must carry code")
	}
	return nil
}

// Argument is a typed, positioned parameter of a task. Names are unique per task.
type Argument struct {
	Base
	Position int    `json:"position"`
	ArgKind  int    `json:"kind"`
	TaskID   string `json:"task_id"`
	UserID   string `json:"user_id"`
}

func (*Argument) Kind() Kind { return KindArgument }

func (a *Argument) Refs() []Ref {
	return []Ref{
		{Column: "task_id", Target: KindTask, ID: &a.TaskID, Required: true},
		{Column: "user_id", Target: KindUser, ID: &a.UserID, Required: true},
	}
}

func (a *Argument) Validate() error {
	if a.Position < 0 {
		return NewValidationError(ReasonInvalidValue, KindArgument, a.ID, "position", "position must be a non-negative ordinal")
	}
	return nil
}

// Socket is a typed attachment point on a processor for a task invocation.
//
// Wait selects join semantics: with Wait the task fires once every inbound
// plug has delivered for a generation; without it every delivery fires.
type Socket struct {
	Base
	ScheduleType ScheduleType `json:"schedule_type,omitempty"`
	Scheduled    bool         `json:"scheduled"`
	Cron         string       `json:"cron,omitempty"`
	Interval     int          `json:"interval"`
	Description  string       `json:"description,omitempty"`
	Wait         bool         `json:"wait"`
	ProcessorID  string       `json:"processor_id"`
	TaskID       string       `json:"task_id"`
	UserID       string       `json:"user_id"`
	QueueID      string       `json:"queue_id,omitempty"`
}

func (*Socket) Kind() Kind { return KindSocket }

func (s *Socket) Refs() []Ref {
	return []Ref{
		{Column: "processor_id", Target: KindProcessor, ID: &s.ProcessorID, Required: true},
		{Column: "task_id", Target: KindTask, ID: &s.TaskID, Required: true},
		{Column: "user_id", Target: KindUser, ID: &s.UserID, Required: true},
		{Column: "queue_id", Target: KindQueue, ID: &s.QueueID},
	}
}

func (s *Socket) Columns() []Field {
	return []Field{{Column: "wait", Value: &s.Wait}}
}

func (s *Socket) Validate() error {
	if s.ScheduleType != "" && !s.ScheduleType.Valid() {
		return invalidEnum(KindSocket, "schedule_type", s.ScheduleType)
	}
	if s.Scheduled {
		switch s.ScheduleType {
		case ScheduleCron:
			if s.Cron == "" {
				return NewValidationError(ReasonRequired, KindSocket, s.ID, "cron", "CRON schedules need a cron expression")
			}
		case ScheduleInterval:
			if s.Interval <= 0 {
				return NewValidationError(ReasonInvalidValue, KindSocket, s.ID, "interval", "INTERVAL schedules need a positive interval")
			}
		default:
			return NewValidationError(ReasonRequired, KindSocket, s.ID, "schedule_type", "scheduled sockets need a schedule type")
		}
	}
	return nil
}

// Plug is a directed connector from a source socket to a target socket.
type Plug struct {
	Base
	Type        ResultType `json:"type"`
	Description string     `json:"description,omitempty"`
	ProcessorID string     `json:"processor_id"`
	SourceID    string     `json:"source_id"`
	TargetID    string     `json:"target_id"`
	ArgumentID  string     `json:"argument_id,omitempty"`
	UserID      string     `json:"user_id"`
	QueueID     string     `json:"queue_id,omitempty"`
}

func (*Plug) Kind() Kind { return KindPlug }

func (p *Plug) Refs() []Ref {
	return []Ref{
		{Column: "processor_id", Target: KindProcessor, ID: &p.ProcessorID, Required: true},
		{Column: "source_id", Target: KindSocket, ID: &p.SourceID, Required: true},
		{Column: "target_id", Target: KindSocket, ID: &p.TargetID, Required: true},
		{Column: "argument_id", Target: KindArgument, ID: &p.ArgumentID},
		{Column: "user_id", Target: KindUser, ID: &p.UserID, Required: true},
		{Column: "queue_id", Target: KindQueue, ID: &p.QueueID},
	}
}

func (p *Plug) Validate() error {
	if p.Type == "" {
		p.Type = ResultTypeResult
	}
	if !p.Type.Valid() {
		return invalidEnum(KindPlug, "type", p.Type)
	}
	return nil
}

// Queue is passive message-routing configuration read by the broker transport.
type Queue struct {
	Base
	QType          string `json:"qtype"`
	Durable        bool   `json:"durable"`
	Reliable       bool   `json:"reliable"`
	AutoDelete     bool   `json:"auto_delete"`
	MaxLength      int    `json:"max_length"`
	MaxLengthBytes int    `json:"max_length_bytes"`
	MessageTTL     int    `json:"message_ttl"`
	Expires        int    `json:"expires"`
	NetworkID      string `json:"network_id,omitempty"`
}

func (*Queue) Kind() Kind { return KindQueue }

func (q *Queue) Refs() []Ref {
	return []Ref{{Column: "network_id", Target: KindNetwork, ID: &q.NetworkID}}
}

// NewQueue returns a durable direct queue with unbounded length.
func NewQueue(name string) *Queue {
	return &Queue{
		Base:           Base{Name: name},
		QType:          "direct",
		Durable:        true,
		Reliable:       true,
		AutoDelete:     true,
		MaxLength:      -1,
		MaxLengthBytes: -1,
		MessageTTL:     3000,
		Expires:        3000,
	}
}
