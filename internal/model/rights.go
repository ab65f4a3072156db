package model

import (
	"fmt"
	"strings"
)

// Right is one entry of the closed privilege enumeration.
type Right string

const (
	RightAll        Right = "ALL"
	RightCreate     Right = "CREATE"
	RightRead       Right = "READ"
	RightUpdate     Right = "UPDATE"
	RightDelete     Right = "DELETE"
	RightDBDrop     Right = "DB_DROP"
	RightDBInit     Right = "DB_INIT"
	RightRunTask    Right = "RUN_TASK"
	RightCancelTask Right = "CANCEL_TASK"
)

// allRights is the closed enumeration in declaration order.
var allRights = []Right{
	RightAll,
	RightCreate,
	RightRead,
	RightUpdate,
	RightDelete,
	RightDBDrop,
	RightDBInit,
	"START_AGENT",
	"STOP_AGENT",
	"PAUSE_AGENT",
	"RESUME_AGENT",
	"LOCK_AGENT",
	"UNLOCK_AGENT",
	RightRunTask,
	RightCancelTask,
	"START_PROCESSOR",
	"STOP_PROCESSOR",
	"PAUSE_PROCESSOR",
	"RESUME_PROCESSOR",
	"LOCK_PROCESSOR",
	"UNLOCK_PROCESSOR",
	"VIEW_PROCESSOR",
	"VIEW_PROCESSOR_CONFIG",
	"VIEW_PROCESSOR_CODE",
	"EDIT_PROCESSOR_CONFIG",
	"EDIT_PROCESSOR_CODE",
	"LS_PROCESSORS",
	"LS_USERS",
	"LS_USER",
	"LS_PLUGS",
	"LS_SOCKETS",
	"LS_QUEUES",
	"LS_AGENTS",
	"LS_NODES",
	"LS_SCHEDULERS",
	"LS_WORKERS",
	"LS_FLOWS",
	"LS_NETWORKS",
	"LS_TASKS",
	"LS_CALLS",
	"ADD_PROCESSOR",
	"ADD_AGENT",
	"ADD_NODE",
	"ADD_PLUG",
	"ADD_PRIVILEGE",
	"ADD_QUEUE",
	"ADD_ROLE",
	"ADD_SCHEDULER",
	"ADD_SOCKET",
	"ADD_USER",
	"ADD_FLOW",
	"ADD_FILE",
	"ADD_NETWORK",
	"ADD_TASK",
	"ADD_WORKER",
	"ADD_DEPLOYMENT",
	"UPDATE_PROCESSOR",
	"UPDATE_AGENT",
	"UPDATE_NODE",
	"UPDATE_PLUG",
	"UPDATE_PRIVILEGE",
	"UPDATE_QUEUE",
	"UPDATE_ROLE",
	"UPDATE_SCHEDULER",
	"UPDATE_SOCKET",
	"UPDATE_USER",
	"UPDATE_FLOW",
	"UPDATE_FILE",
	"UPDATE_NETWORK",
	"UPDATE_TASK",
	"UPDATE_WORKER",
	"UPDATE_DEPLOYMENT",
	"DELETE_PROCESSOR",
	"DELETE_AGENT",
	"DELETE_NODE",
	"DELETE_PLUG",
	"DELETE_PRIVILEGE",
	"DELETE_QUEUE",
	"DELETE_ROLE",
	"DELETE_SCHEDULER",
	"DELETE_SOCKET",
	"DELETE_USER",
	"DELETE_FLOW",
	"DELETE_FILE",
	"DELETE_NETWORK",
	"DELETE_TASK",
	"DELETE_WORKER",
	"DELETE_DEPLOYMENT",
	"READ_PROCESSOR",
	"READ_AGENT",
	"READ_NODE",
	"READ_LOG",
	"READ_PLUG",
	"READ_PRIVILEGE",
	"READ_QUEUE",
	"READ_ROLE",
	"READ_SCHEDULER",
	"READ_SOCKET",
	"READ_USER",
	"READ_FLOW",
	"READ_FILE",
	"READ_NETWORK",
	"READ_TASK",
	"READ_WORKER",
	"READ_DEPLOYMENT",
}

var rightIndex = func() map[Right]struct{} {
	m := make(map[Right]struct{}, len(allRights))
	for _, r := range allRights {
		m[r] = struct{}{}
	}
	return m
}()

// Rights returns a copy of the closed enumeration in declaration order.
func Rights() []Right {
	out := make([]Right, len(allRights))
	copy(out, allRights)
	return out
}

// Valid reports whether r belongs to the enumeration.
func (r Right) Valid() bool {
	_, ok := rightIndex[r]
	return ok
}

// ParseRight resolves a right name (case-insensitive).
func ParseRight(s string) (Right, error) {
	r := Right(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", NewValidationError(ReasonInvalidEnum, KindPrivilege, "", "right", fmt.Sprintf("unknown right %q", s))
	}
	return r, nil
}

// Op is a generic store operation subject to authorization.
type Op string

const (
	OpCreate Op = "create"
	OpRead   Op = "read"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

var opRights = map[Op]struct {
	prefix  string
	generic Right
}{
	OpCreate: {"ADD_", RightCreate},
	OpRead:   {"READ_", RightRead},
	OpUpdate: {"UPDATE_", RightUpdate},
	OpDelete: {"DELETE_", RightDelete},
}

// ActionsFor returns the rights that each permit op on kind: the
// kind-specific right when the enumeration has one, then the generic verb.
func ActionsFor(op Op, kind Kind) []Right {
	rule, ok := opRights[op]
	if !ok {
		return nil
	}
	specific := Right(rule.prefix + strings.ToUpper(string(kind)))
	if specific.Valid() {
		return []Right{specific, rule.generic}
	}
	return []Right{rule.generic}
}
