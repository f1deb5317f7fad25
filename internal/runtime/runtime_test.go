package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/loomwork/loom/internal/core"
	"github.com/loomwork/loom/internal/permission"
)

func drainUntil(t *testing.T, sub *OutputSubscriber, timeout time.Duration, stop func(core.OutputChunk) bool) []core.OutputChunk {
	t.Helper()
	done := make(chan struct{})
	defer close(done)
	ch := sub.Chan(done)

	var chunks []core.OutputChunk
	deadline := time.After(timeout)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return chunks
			}
			chunks = append(chunks, chunk)
			if stop(chunk) {
				return chunks
			}
		case <-deadline:
			t.Fatalf("timed out waiting for output, got so far: %+v", chunks)
			return nil
		}
	}
}

// echoDriver reads one UserInput and streams it back before completing.
func echoDriver(ctx context.Context, a *AgentInternals) {
	a.SetState(core.Processing())
	msg, ok := a.Receive()
	if !ok || msg.Kind != core.InputUserInput {
		a.SetState(core.ErrorState("expected user input"))
		a.Send(core.DoneChunk())
		return
	}
	a.SendText(msg.Text)
	a.Send(core.TextComplete(msg.Text))
	a.SetState(core.Done())
	a.Send(core.DoneChunk())
}

func TestEchoScenario(t *testing.T) {
	rt := New(nil)
	handle := rt.Spawn(context.Background(), "sess-echo", "echo", "Echo", "", nil, echoDriver)
	sub := handle.Subscribe()

	if err := handle.SendInput("hello there"); err != nil {
		t.Fatalf("SendInput: %v", err)
	}

	chunks := drainUntil(t, sub, 2*time.Second, func(c core.OutputChunk) bool {
		return c.Kind == core.OutputDone
	})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks (delta, complete, done), got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Kind != core.OutputTextDelta || chunks[0].Text != "hello there" {
		t.Errorf("unexpected first chunk: %+v", chunks[0])
	}
	if chunks[1].Kind != core.OutputTextComplete || chunks[1].Text != "hello there" {
		t.Errorf("unexpected second chunk: %+v", chunks[1])
	}
	if chunks[2].Kind != core.OutputDone {
		t.Errorf("unexpected third chunk: %+v", chunks[2])
	}

	if err := rt.WaitFor(context.Background(), "sess-echo"); err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
}

// permissionDriver asks permission for a fake tool and reports the outcome
// as a status chunk before completing.
func permissionDriver(ctx context.Context, a *AgentInternals) {
	a.Receive() // wait for the kickoff UserInput
	allowed, err := a.RequestPermission("tu1", "fake_tool", []byte(`{}`), "run the fake tool")
	if err != nil {
		a.Send(core.ErrorChunk(err.Error()))
		a.Send(core.DoneChunk())
		return
	}
	if allowed {
		a.SendStatus("allowed")
	} else {
		a.SendStatus("denied")
	}
	a.Send(core.DoneChunk())
}

func TestPermissionAskThenRemember(t *testing.T) {
	rt := New(nil)
	handle := rt.Spawn(context.Background(), "sess-perm", "perm", "Perm", "", nil, permissionDriver)
	sub := handle.Subscribe()

	_ = handle.SendInput("go")

	chunks := drainUntil(t, sub, 2*time.Second, func(c core.OutputChunk) bool {
		return c.Kind == core.OutputPermissionReq
	})
	last := chunks[len(chunks)-1]
	if last.Kind != core.OutputPermissionReq || last.ToolName != "fake_tool" {
		t.Fatalf("expected a permission request for fake_tool, got %+v", last)
	}

	if err := handle.SendPermissionResponse("fake_tool", true, true); err != nil {
		t.Fatalf("SendPermissionResponse: %v", err)
	}

	chunks = drainUntil(t, sub, 2*time.Second, func(c core.OutputChunk) bool {
		return c.Kind == core.OutputDone
	})
	foundAllowed := false
	for _, c := range chunks {
		if c.Kind == core.OutputStatus && c.Text == "allowed" {
			foundAllowed = true
		}
	}
	if !foundAllowed {
		t.Fatalf("expected an 'allowed' status chunk, got %+v", chunks)
	}

	// A second agent sharing the same global tier should see the remembered
	// rule immediately if it were checked at global scope; here we assert
	// the narrower, documented guarantee instead: the first agent's own
	// session-scoped store now allows the tool without asking again.
	handle2 := rt.Spawn(context.Background(), "sess-perm-2", "perm", "Perm", "", nil, permissionDriver)
	sub2 := handle2.Subscribe()
	_ = handle2.SendInput("go")
	chunks2 := drainUntil(t, sub2, 2*time.Second, func(c core.OutputChunk) bool {
		return c.Kind == core.OutputDone
	})
	foundSecondAsk := false
	for _, c := range chunks2 {
		if c.Kind == core.OutputPermissionReq {
			foundSecondAsk = true
		}
	}
	if !foundSecondAsk {
		t.Fatalf("expected the second, unrelated session to still be asked (session scope does not leak): %+v", chunks2)
	}
}

func TestPermissionStoreRememberIsSessionScoped(t *testing.T) {
	global := permission.NewGlobalPermissions()
	store := permission.NewStore(global, nil, true)

	if got := store.Check("fake_tool", ""); got != permission.CheckAsk {
		t.Fatalf("expected CheckAsk before any rule, got %v", got)
	}
	store.Remember(permission.ScopeSession, "fake_tool", permission.DecisionAlwaysAllow)
	if got := store.Check("fake_tool", ""); got != permission.CheckAllowed {
		t.Fatalf("expected CheckAllowed after remembering, got %v", got)
	}

	other := permission.NewStore(global, nil, true)
	if got := other.Check("fake_tool", ""); got != permission.CheckAsk {
		t.Fatalf("a session rule must not leak to another store sharing only the global tier, got %v", got)
	}
}

// interruptDriver blocks on RequestPermission and should observe
// ErrInterrupted when an Interrupt arrives instead of a response.
func interruptDriver(ctx context.Context, a *AgentInternals, result chan<- error) {
	a.Receive()
	_, err := a.RequestPermission("tu1", "slow_tool", []byte(`{}`), "do something slow")
	result <- err
}

func TestInterruptDuringPermissionWait(t *testing.T) {
	rt := New(nil)
	result := make(chan error, 1)
	handle := rt.Spawn(context.Background(), "sess-interrupt", "interrupt", "I", "", nil,
		func(ctx context.Context, a *AgentInternals) { interruptDriver(ctx, a, result) })

	_ = handle.SendInput("go")
	// Give the driver a moment to reach RequestPermission's Receive.
	time.Sleep(50 * time.Millisecond)
	if err := handle.Interrupt(); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}

	select {
	case err := <-result:
		if err != ErrInterrupted {
			t.Fatalf("expected ErrInterrupted, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for interrupted driver to return")
	}
}

// parentDriver spawns a subagent and forwards its text chunks before
// completing once the child is done.
func parentDriver(ctx context.Context, a *AgentInternals) {
	a.Receive()
	childID, childOut, err := a.SpawnSubAgent(ctx, "child", "Child", "", "do the thing")
	if err != nil {
		a.Send(core.ErrorChunk(err.Error()))
		a.Send(core.DoneChunk())
		return
	}
	a.SendStatus("spawned:" + childID)
	for chunk := range childOut {
		if chunk.Kind == core.OutputDone {
			break
		}
	}
	a.Send(core.DoneChunk())
}

func childDriver(ctx context.Context, a *AgentInternals) {
	msg, ok := a.Receive()
	if !ok {
		a.Send(core.DoneChunk())
		return
	}
	a.SendText("child saw: " + msg.Text)
	a.Send(core.DoneChunk())
}

func TestSubAgentLineage(t *testing.T) {
	rt := New(nil)
	rt.RegisterAgentDriver("child", childDriver)

	handle := rt.Spawn(context.Background(), "sess-parent", "parent", "Parent", "", nil, parentDriver)
	sub := handle.Subscribe()
	_ = handle.SendInput("start")

	chunks := drainUntil(t, sub, 2*time.Second, func(c core.OutputChunk) bool {
		return c.Kind == core.OutputDone
	})

	var childID string
	for _, c := range chunks {
		if c.Kind == core.OutputStatus && len(c.Text) > len("spawned:") && c.Text[:8] == "spawned:" {
			childID = c.Text[8:]
		}
	}
	if childID == "" {
		t.Fatalf("expected a spawned:<id> status chunk, got %+v", chunks)
	}

	parentHandle, ok := rt.Get("sess-parent")
	if !ok {
		t.Fatalf("parent handle should still be resolvable before it finishes")
	}
	_ = parentHandle

	if err := rt.WaitFor(context.Background(), "sess-parent"); err != nil {
		t.Fatalf("WaitFor parent: %v", err)
	}
}

func TestSubAgentManagerTracksLifecycle(t *testing.T) {
	rt := New(nil)
	rt.RegisterAgentDriver("child", childDriver)

	handle := rt.Spawn(context.Background(), "sess-parent-mgr", "parent", "Parent", "", nil, parentDriver)
	sub := handle.Subscribe()
	_ = handle.SendInput("start")

	chunks := drainUntil(t, sub, 2*time.Second, func(c core.OutputChunk) bool {
		return c.Kind == core.OutputDone
	})

	var childID string
	var sawComplete bool
	for _, c := range chunks {
		if c.Kind == core.OutputSubAgentComplete {
			sawComplete = true
			childID = c.SubAgentSessionID
			if c.SubAgentResult == nil || c.SubAgentResult.AgentType != "child" {
				t.Fatalf("unexpected subagent-complete result: %+v", c.SubAgentResult)
			}
		}
	}
	if !sawComplete || childID == "" {
		t.Fatalf("expected a SubAgentComplete chunk on the parent's own output, got %+v", chunks)
	}

	mgr, ok := GetTyped[*SubAgentManager](handle.Context().Resources, ResourceSubAgentManager)
	if !ok {
		t.Fatal("expected a SubAgentManager in the parent's resource map")
	}

	var completed CompletedSubAgent
	deadline := time.After(2 * time.Second)
	for {
		if c, ok := mgr.GetCompleted(childID); ok {
			completed = c
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s to be marked completed", childID)
		case <-time.After(time.Millisecond):
		}
	}
	if completed.AgentType != "child" || !completed.Success {
		t.Fatalf("unexpected completed record: %+v", completed)
	}
	if mgr.IsActive(childID) {
		t.Fatalf("expected %s to no longer be active once completed", childID)
	}
}

func TestRuntimeRegistryBookkeeping(t *testing.T) {
	rt := New(nil)
	if rt.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", rt.Count())
	}

	block := make(chan struct{})
	handle := rt.Spawn(context.Background(), "sess-block", "block", "B", "", nil, func(ctx context.Context, a *AgentInternals) {
		<-block
		a.Send(core.DoneChunk())
	})

	if !rt.IsRunning("sess-block") {
		t.Fatal("expected sess-block to be running")
	}
	if rt.Count() != 1 {
		t.Fatalf("expected 1 running agent, got %d", rt.Count())
	}
	if _, ok := rt.Get("sess-block"); !ok {
		t.Fatal("expected to find sess-block in the registry")
	}

	close(block)
	_ = handle
	if err := rt.WaitFor(context.Background(), "sess-block"); err != nil {
		t.Fatalf("WaitFor: %v", err)
	}

	// The goroutine's deferred cleanup races with WaitForCompletion's
	// return only in how fast the registry map is updated; give it a brief
	// moment before asserting deregistration.
	deadline := time.Now().Add(time.Second)
	for rt.IsRunning("sess-block") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if rt.IsRunning("sess-block") {
		t.Fatal("expected sess-block to be deregistered after completion")
	}
}

func TestUnknownAgentOperations(t *testing.T) {
	rt := New(nil)
	if err := rt.Shutdown("nope"); err != ErrAgentNotRunning {
		t.Fatalf("expected ErrAgentNotRunning, got %v", err)
	}
	if err := rt.Interrupt("nope"); err != ErrAgentNotRunning {
		t.Fatalf("expected ErrAgentNotRunning, got %v", err)
	}
	if err := rt.WaitFor(context.Background(), "nope"); err != ErrAgentNotRunning {
		t.Fatalf("expected ErrAgentNotRunning, got %v", err)
	}
}
