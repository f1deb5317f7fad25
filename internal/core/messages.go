package core

// InputKind tags the variant held by InputMessage.
type InputKind string

const (
	InputUserInput             InputKind = "user_input"
	InputToolResult            InputKind = "tool_result"
	InputPermissionResponse    InputKind = "permission_response"
	InputUserQuestionResponse  InputKind = "user_question_response"
	InputSubAgentComplete      InputKind = "subagent_complete"
	InputInterrupt             InputKind = "interrupt"
	InputShutdown              InputKind = "shutdown"
)

// InputMessage is sent on an agent's bounded input channel.
type InputMessage struct {
	Kind InputKind

	Text string // UserInput

	ToolUseID string       // ToolResult, PermissionResponse
	ToolName  string       // PermissionResponse
	Result    ToolResult   // ToolResult
	Allowed   bool         // PermissionResponse
	Remember  bool         // PermissionResponse

	RequestID string   // UserQuestionResponse
	Answers   []string // UserQuestionResponse

	SubAgentSessionID string        // SubAgentComplete
	SubAgentResult    *SubAgentInfo // SubAgentComplete
}

func UserInput(text string) InputMessage {
	return InputMessage{Kind: InputUserInput, Text: text}
}

func ToolResultInput(toolUseID string, result ToolResult) InputMessage {
	return InputMessage{Kind: InputToolResult, ToolUseID: toolUseID, Result: result}
}

func PermissionResponseInput(toolName string, allowed, remember bool) InputMessage {
	return InputMessage{Kind: InputPermissionResponse, ToolName: toolName, Allowed: allowed, Remember: remember}
}

func UserQuestionResponseInput(requestID string, answers []string) InputMessage {
	return InputMessage{Kind: InputUserQuestionResponse, RequestID: requestID, Answers: answers}
}

func SubAgentCompleteInput(sessionID string, result *SubAgentInfo) InputMessage {
	return InputMessage{Kind: InputSubAgentComplete, SubAgentSessionID: sessionID, SubAgentResult: result}
}

func InterruptInput() InputMessage { return InputMessage{Kind: InputInterrupt} }
func ShutdownInput() InputMessage  { return InputMessage{Kind: InputShutdown} }

// ToolResult is the outcome of running a tool.
type ToolResult struct {
	Text    string
	IsError bool
}

func ToolSuccess(text string) ToolResult { return ToolResult{Text: text} }
func ToolFailure(text string) ToolResult { return ToolResult{Text: text, IsError: true} }

// SubAgentInfo records the outcome of a completed subagent.
type SubAgentInfo struct {
	AgentType string
	Result    string
	Success   bool
	Error     string
}

// OutputKind tags the variant held by OutputChunk.
type OutputKind string

const (
	OutputTextDelta        OutputKind = "text_delta"
	OutputTextComplete     OutputKind = "text_complete"
	OutputThinkingDelta    OutputKind = "thinking_delta"
	OutputThinkingComplete OutputKind = "thinking_complete"
	OutputToolStart        OutputKind = "tool_start"
	OutputToolProgress     OutputKind = "tool_progress"
	OutputToolEnd          OutputKind = "tool_end"
	OutputPermissionReq    OutputKind = "permission_request"
	OutputAskUserQuestion  OutputKind = "ask_user_question"
	OutputStateChange      OutputKind = "state_change"
	OutputStatus           OutputKind = "status"
	OutputSubAgentSpawned  OutputKind = "subagent_spawned"
	OutputSubAgentOutput   OutputKind = "subagent_output"
	OutputSubAgentComplete OutputKind = "subagent_complete"
	OutputError            OutputKind = "error"
	OutputDone              OutputKind = "done"
)

// OutputChunk is one event on an agent's broadcast output channel.
type OutputChunk struct {
	Kind OutputKind

	Text string // TextDelta/TextComplete/ThinkingDelta/ThinkingComplete/Status/Error

	ToolUseID string      // ToolStart/ToolProgress/ToolEnd/PermissionRequest
	ToolName  string      // ToolStart/ToolProgress/ToolEnd/PermissionRequest
	ToolInput []byte      // ToolStart/PermissionRequest
	ToolInfo  string      // PermissionRequest (human-readable action description)
	Result    *ToolResult // ToolEnd

	RequestID string       // AskUserQuestion
	Questions []UserQuestion // AskUserQuestion

	State AgentState // StateChange

	SubAgentSessionID string       // SubAgentSpawned/SubAgentOutput/SubAgentComplete
	SubAgentType      string       // SubAgentSpawned
	SubAgentChunk     *OutputChunk // SubAgentOutput
	SubAgentResult    *SubAgentInfo // SubAgentComplete
}

// UserQuestion is one question posed by the AskUserQuestion tool.
type UserQuestion struct {
	Question    string
	Header      string
	Options     []string
	MultiSelect bool
}

func TextDelta(s string) OutputChunk     { return OutputChunk{Kind: OutputTextDelta, Text: s} }
func TextComplete(s string) OutputChunk  { return OutputChunk{Kind: OutputTextComplete, Text: s} }
func ThinkingDelta(s string) OutputChunk { return OutputChunk{Kind: OutputThinkingDelta, Text: s} }
func ThinkingComplete(s string) OutputChunk {
	return OutputChunk{Kind: OutputThinkingComplete, Text: s}
}

func ToolStartChunk(id, name string, input []byte) OutputChunk {
	return OutputChunk{Kind: OutputToolStart, ToolUseID: id, ToolName: name, ToolInput: input}
}

func ToolEndChunk(id, name string, result ToolResult) OutputChunk {
	return OutputChunk{Kind: OutputToolEnd, ToolUseID: id, ToolName: name, Result: &result}
}

func PermissionRequestChunk(id, name string, input []byte, info string) OutputChunk {
	return OutputChunk{Kind: OutputPermissionReq, ToolUseID: id, ToolName: name, ToolInput: input, ToolInfo: info}
}

func StateChangeChunk(s AgentState) OutputChunk { return OutputChunk{Kind: OutputStateChange, State: s} }
func StatusChunk(s string) OutputChunk          { return OutputChunk{Kind: OutputStatus, Text: s} }
func ErrorChunk(s string) OutputChunk           { return OutputChunk{Kind: OutputError, Text: s} }
func DoneChunk() OutputChunk                    { return OutputChunk{Kind: OutputDone} }
