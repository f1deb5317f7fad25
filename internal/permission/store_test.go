package permission

import "testing"

func TestSessionTierWinsOverGlobal(t *testing.T) {
	g := NewGlobalPermissions()
	s := NewStore(g, nil, true)

	if s.Check("Write", "") != CheckAsk {
		t.Fatalf("expected Ask before any rule exists")
	}
	s.AddRule(ScopeSession, AllowTool("Write"))
	if s.Check("Write", "") != CheckAllowed {
		t.Fatalf("expected Allowed after session rule added")
	}
}

func TestGlobalRuleVisibleAcrossStores(t *testing.T) {
	g := NewGlobalPermissions()
	a := NewStore(g, nil, true)
	b := NewStore(g, nil, true)

	g.Add(AllowTool("Bash"))

	if a.Check("Bash", "") != CheckAllowed {
		t.Fatalf("store a should see the global rule")
	}
	if b.Check("Bash", "") != CheckAllowed {
		t.Fatalf("store b should see the global rule")
	}
}

func TestNonInteractiveDeniesOnMiss(t *testing.T) {
	s := NewStore(nil, nil, false)
	if s.Check("Bash", "") != CheckDenied {
		t.Fatalf("expected Denied in non-interactive mode with no matching rule")
	}
}

func TestAllowPrefixMatchesOnlyMatchingInput(t *testing.T) {
	s := NewStore(nil, []Rule{AllowPrefix("Bash", "git ")}, true)
	if s.Check("Bash", "git status") != CheckAllowed {
		t.Fatalf("expected Allowed for matching prefix")
	}
	if s.Check("Bash", "rm -rf /") != CheckAsk {
		t.Fatalf("expected Ask for a non-matching prefix")
	}
}

func TestRememberAlwaysAllowAddsRule(t *testing.T) {
	s := NewStore(nil, nil, true)
	s.Remember(ScopeSession, "Write", DecisionAlwaysAllow)
	if s.Check("Write", "") != CheckAllowed {
		t.Fatalf("expected Allowed after remembering AlwaysAllow")
	}
}

func TestRememberAlwaysDenyAddsNoRule(t *testing.T) {
	s := NewStore(nil, nil, true)
	s.Remember(ScopeSession, "Write", DecisionAlwaysDeny)
	if s.Check("Write", "") != CheckAsk {
		t.Fatalf("AlwaysDeny must not create a negative rule; still expect Ask")
	}
}
