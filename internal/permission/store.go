package permission

import (
	"strings"
	"sync"
)

// Scope identifies which tier of the store a Rule lives in.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeLocal   Scope = "local"
	ScopeGlobal  Scope = "global"
)

// RuleKind distinguishes a blanket tool allow from a prefix-matched one.
type RuleKind string

const (
	RuleAllowTool   RuleKind = "allow_tool"
	RuleAllowPrefix RuleKind = "allow_prefix"
)

// Rule is one allow-list entry. A store never holds deny rules: denial is
// the absence of a matching allow rule (see CheckResult).
type Rule struct {
	ToolName string
	Kind     RuleKind
	Prefix   string // only meaningful when Kind == RuleAllowPrefix
}

func AllowTool(toolName string) Rule {
	return Rule{ToolName: toolName, Kind: RuleAllowTool}
}

func AllowPrefix(toolName, prefix string) Rule {
	return Rule{ToolName: toolName, Kind: RuleAllowPrefix, Prefix: prefix}
}

func (r Rule) matches(toolName string, input string) bool {
	if r.ToolName != toolName {
		return false
	}
	switch r.Kind {
	case RuleAllowTool:
		return true
	case RuleAllowPrefix:
		return strings.HasPrefix(strings.TrimLeft(input, " \t\n"), r.Prefix)
	default:
		return false
	}
}

// CheckResult is the outcome of consulting the store for one invocation.
type CheckResult string

const (
	CheckAllowed CheckResult = "allowed"
	CheckAsk     CheckResult = "ask"
	CheckDenied  CheckResult = "denied"
)

// Decision is what a caller (typically the interactive prompt, or a hook)
// chose in response to an AskUser result.
type Decision string

const (
	DecisionAllow       Decision = "allow"
	DecisionDeny        Decision = "deny"
	DecisionAlwaysAllow Decision = "always_allow"
	DecisionAlwaysDeny  Decision = "always_deny"
)

// ruleSet is a flat slice of rules guarded by its own RWMutex; kept
// separate so Global can be shared by pointer across every agent in the
// process.
type ruleSet struct {
	mu    sync.RWMutex
	rules []Rule
}

func newRuleSet() *ruleSet { return &ruleSet{} }

func (rs *ruleSet) add(r Rule) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules = append(rs.rules, r)
}

func (rs *ruleSet) matchAny(toolName, input string) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	for _, r := range rs.rules {
		if r.matches(toolName, input) {
			return true
		}
	}
	return false
}

// GlobalPermissions is the process-wide rule tier, shared by every agent
// through a pointer. Consulted last, after session and local rules.
type GlobalPermissions struct {
	rules *ruleSet
}

// NewGlobalPermissions creates an empty process-wide rule set.
func NewGlobalPermissions() *GlobalPermissions {
	return &GlobalPermissions{rules: newRuleSet()}
}

// Add adds a rule visible to every agent from the moment this call returns.
func (g *GlobalPermissions) Add(r Rule) { g.rules.add(r) }

// Store is the three-tier permission store consulted by the tool executor:
// session rules first, then the agent-type's local rules, then the
// process-wide global rules. Interactive mode (default) falls back to
// CheckAsk on a total miss; non-interactive mode falls back to CheckDenied.
type Store struct {
	session       *ruleSet
	local         *ruleSet
	global        *GlobalPermissions
	interactive   bool
}

// NewStore creates a per-agent permission store backed by the given
// process-wide global tier. localRules seeds the local (agent-type) tier
// at construction time, e.g. from an agent preset's default permissions.
func NewStore(global *GlobalPermissions, localRules []Rule, interactive bool) *Store {
	s := &Store{
		session:     newRuleSet(),
		local:       newRuleSet(),
		global:      global,
		interactive: interactive,
	}
	for _, r := range localRules {
		s.local.add(r)
	}
	return s
}

// Check consults session, then local, then global tiers in order. The
// first tier with a matching rule wins; no further tiers are consulted.
func (s *Store) Check(toolName, input string) CheckResult {
	if s.session.matchAny(toolName, input) {
		return CheckAllowed
	}
	if s.local.matchAny(toolName, input) {
		return CheckAllowed
	}
	if s.global != nil && s.global.rules.matchAny(toolName, input) {
		return CheckAllowed
	}
	if s.interactive {
		return CheckAsk
	}
	return CheckDenied
}

// AddRule adds a rule at the requested scope. Session and local are
// per-agent; global is shared with every other agent in the process.
func (s *Store) AddRule(scope Scope, r Rule) {
	switch scope {
	case ScopeSession:
		s.session.add(r)
	case ScopeLocal:
		s.local.add(r)
	case ScopeGlobal:
		if s.global != nil {
			s.global.Add(r)
		}
	}
}

// Remember applies the outcome of an interactive AskUser round: an
// AlwaysAllow decision adds an AllowTool rule at the given scope (session
// by convention, from the tool-executor's PermissionResponse handling).
// AlwaysDeny intentionally adds nothing — this store is strictly
// allow-listing, so "always deny" just means "don't remember an allow".
func (s *Store) Remember(scope Scope, toolName string, decision Decision) {
	if decision == DecisionAlwaysAllow {
		s.AddRule(scope, AllowTool(toolName))
	}
}
