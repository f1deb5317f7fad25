package core

import "fmt"

// AgentStateKind tags the variant held by AgentState.
type AgentStateKind string

const (
	StateIdle                  AgentStateKind = "idle"
	StateProcessing            AgentStateKind = "processing"
	StateWaitingForPermission  AgentStateKind = "waiting_for_permission"
	StateWaitingForUserInput   AgentStateKind = "waiting_for_user_input"
	StateExecutingTool         AgentStateKind = "executing_tool"
	StateWaitingForSubAgent    AgentStateKind = "waiting_for_subagent"
	StateDone                  AgentStateKind = "done"
	StateError                 AgentStateKind = "error"
)

// AgentState is a snapshot of what an agent's loop is currently doing.
// The zero value has an empty Kind and is not Idle; use Idle() for the
// idle state.
type AgentState struct {
	Kind AgentStateKind `json:"kind"`

	// WaitingForUserInput
	RequestID string `json:"request_id,omitempty"`

	// ExecutingTool
	ToolName   string `json:"tool_name,omitempty"`
	ToolUseID  string `json:"tool_use_id,omitempty"`

	// WaitingForSubAgent
	SubAgentSessionID string `json:"subagent_session_id,omitempty"`

	// Error
	Message string `json:"message,omitempty"`
}

func Idle() AgentState       { return AgentState{Kind: StateIdle} }
func Processing() AgentState { return AgentState{Kind: StateProcessing} }
func Done() AgentState       { return AgentState{Kind: StateDone} }
func ErrorState(msg string) AgentState {
	return AgentState{Kind: StateError, Message: msg}
}
func WaitingForPermission(toolName string) AgentState {
	return AgentState{Kind: StateWaitingForPermission, ToolName: toolName}
}
func WaitingForUserInput(requestID string) AgentState {
	return AgentState{Kind: StateWaitingForUserInput, RequestID: requestID}
}
func ExecutingTool(name, toolUseID string) AgentState {
	return AgentState{Kind: StateExecutingTool, ToolName: name, ToolUseID: toolUseID}
}
func WaitingForSubAgent(sessionID string) AgentState {
	return AgentState{Kind: StateWaitingForSubAgent, SubAgentSessionID: sessionID}
}

func (s AgentState) IsIdle() bool       { return s.Kind == StateIdle }
func (s AgentState) IsProcessing() bool { return s.Kind == StateProcessing }
func (s AgentState) IsDone() bool       { return s.Kind == StateDone }
func (s AgentState) IsError() bool      { return s.Kind == StateError }
func (s AgentState) IsRunning() bool {
	return s.Kind != StateDone && s.Kind != StateError
}

func (s AgentState) String() string {
	if s.Kind == StateError {
		return fmt.Sprintf("error(%s)", s.Message)
	}
	return string(s.Kind)
}
