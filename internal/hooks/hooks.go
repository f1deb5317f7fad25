// Package hooks implements the event-matched policy layer that can allow,
// deny, or rewrite tool invocations and user prompts before the rest of
// the agent loop sees them.
package hooks

import (
	"fmt"
	"regexp"

	"github.com/loomwork/loom/internal/core"
)

// Event identifies the point in the turn sub-loop a hook fires at.
type Event string

const (
	PreToolUse        Event = "pre_tool_use"
	PostToolUse       Event = "post_tool_use"
	PostToolUseFailure Event = "post_tool_use_failure"
	UserPromptSubmit  Event = "user_prompt_submit"
)

// Decision is the outcome a hook callback may return.
type Decision string

const (
	DecisionNone  Decision = ""
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
	DecisionAsk   Decision = "ask"
)

// priority orders decisions for combination: Deny beats Allow beats Ask
// beats None.
func (d Decision) priority() int {
	switch d {
	case DecisionDeny:
		return 3
	case DecisionAllow:
		return 2
	case DecisionAsk:
		return 1
	default:
		return 0
	}
}

// Combine folds a sequence of decisions using Deny > Allow > Ask > None.
func Combine(decisions ...Decision) Decision {
	best := DecisionNone
	for _, d := range decisions {
		if d.priority() > best.priority() {
			best = d
		}
	}
	return best
}

// Result is what a hook callback returns.
type Result struct {
	Decision Decision
	Reason   string
}

// Context is the mutable per-invocation state passed to a hook callback.
// ToolInput and UserPrompt may be rewritten in place; everything else is
// read-only context about the agent and the current turn.
type Context struct {
	SessionID   string
	AgentType   string
	CurrentTurn int

	ToolName   string
	ToolUseID  string
	ToolInput  []byte // mutable: a PreToolUse hook may rewrite this
	ToolResult *core.ToolResult

	UserPrompt string // mutable: a UserPromptSubmit hook may rewrite this

	Metadata map[string]any
}

// Func is a hook callback. It receives the mutable context and returns a
// decision plus optional reason; returning DecisionNone participates in
// combination as a no-op.
type Func func(ctx *Context) Result

// entry is one registered hook.
type entry struct {
	event Event
	match *regexp.Regexp // nil matches every tool name (non-tool events, or a wildcard)
	fn    Func
}

// Registry stores hooks grouped by event and runs them in registration
// order, combining their decisions. StopOnDeny, when set, skips remaining
// hooks once one reports Deny; it defaults to false so every hook
// (including ones that merely audit) always observes the event.
type Registry struct {
	entries    map[Event][]entry
	StopOnDeny bool
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Event][]entry)}
}

// On registers a hook for event, optionally restricted to tool names
// matching pattern (a regular expression); pattern is ignored for
// UserPromptSubmit. An empty pattern matches every tool.
func (r *Registry) On(event Event, pattern string, fn Func) error {
	var re *regexp.Regexp
	if pattern != "" && event != UserPromptSubmit {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("hooks: invalid pattern %q: %w", pattern, err)
		}
		re = compiled
	}
	r.entries[event] = append(r.entries[event], entry{event: event, match: re, fn: fn})
	return nil
}

// Run executes every hook registered for ctx's event type (UserPromptSubmit
// hooks run for every prompt; tool-event hooks run only when their pattern
// matches ctx.ToolName, or unconditionally if registered without one) and
// combines their results.
func (r *Registry) Run(event Event, ctx *Context) Result {
	var decisions []Decision
	var reason string

	for _, e := range r.entries[event] {
		if e.match != nil && !e.match.MatchString(ctx.ToolName) {
			continue
		}
		res := e.fn(ctx)
		decisions = append(decisions, res.Decision)
		if res.Decision == DecisionDeny && reason == "" {
			reason = res.Reason
		}
		if r.StopOnDeny && res.Decision == DecisionDeny {
			break
		}
	}

	return Result{Decision: Combine(decisions...), Reason: reason}
}

// Len reports how many hooks are registered for a given event.
func (r *Registry) Len(event Event) int {
	return len(r.entries[event])
}
