package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/loomwork/loom/internal/core"
	"github.com/loomwork/loom/internal/runtime"
)

var runAgentType string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive session with a primary agent",
	Long: `Spawns a primary agent and drops into a REPL: each line you type is
sent as a turn; the agent's text streams back as it arrives. Tool calls
that require permission are printed and you're asked to allow or deny
them, with an option to remember the decision for the rest of the
session. Press Ctrl+C once to interrupt the current turn, twice to quit.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runAgentType, "agent", "build", "primary agent type to spawn")
}

func runRun(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	agentCfg, err := a.agents.Get(runAgentType)
	if err != nil {
		return fmt.Errorf("look up agent %q: %w", runAgentType, err)
	}

	driver, ok := a.drivers[agentCfg.Name]
	if !ok {
		return fmt.Errorf("agent type %q has no registered driver", agentCfg.Name)
	}

	sessionID := ulid.Make().String()
	handle := a.rt.Spawn(ctx, sessionID, agentCfg.Name, agentCfg.Name, agentCfg.Description, agentCfg.LocalPermissionRules(), driver)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if handle.IsProcessing() {
				fmt.Fprintln(os.Stderr, "\n(interrupting current turn)")
				_ = handle.Interrupt()
				continue
			}
			fmt.Fprintln(os.Stderr, "\n(shutting down)")
			_ = handle.Shutdown()
			cancel()
			return
		}
	}()

	go streamOutput(ctx, handle)

	fmt.Printf("loom [%s] ready. Type a message and press enter; Ctrl+C to interrupt or quit.\n", agentCfg.Name)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := handle.SendInput(line); err != nil {
			fmt.Fprintf(os.Stderr, "send input: %v\n", err)
			break
		}
	}

	_ = handle.Shutdown()
	_ = handle.WaitForCompletion(context.Background())
	return nil
}

// streamOutput prints an agent's output chunks to stdout/stderr until its
// broadcaster closes, answering permission and question prompts
// interactively from stdin.
func streamOutput(ctx context.Context, handle *runtime.AgentHandle) {
	sub := handle.Subscribe()
	done := make(chan struct{})
	defer close(done)
	ch := sub.Chan(done)

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-ch:
			if !ok {
				return
			}
			printChunk(handle, chunk)
		}
	}
}

func printChunk(handle *runtime.AgentHandle, chunk core.OutputChunk) {
	switch chunk.Kind {
	case core.OutputTextDelta:
		fmt.Print(chunk.Text)
	case core.OutputTextComplete:
		fmt.Println()
	case core.OutputToolStart:
		fmt.Printf("\n[tool] %s(%s)\n", chunk.ToolName, string(chunk.ToolInput))
	case core.OutputToolEnd:
		if chunk.Result != nil && chunk.Result.IsError {
			fmt.Printf("[tool] %s failed: %s\n", chunk.ToolName, chunk.Result.Text)
		}
	case core.OutputPermissionReq:
		allowed, remember := askPermission(chunk.ToolName, chunk.ToolInfo)
		_ = handle.SendPermissionResponse(chunk.ToolName, allowed, remember)
	case core.OutputAskUserQuestion:
		answers := askQuestions(chunk.Questions)
		_ = handle.SendUserQuestionResponse(chunk.RequestID, answers)
	case core.OutputSubAgentSpawned:
		fmt.Printf("\n[subagent] spawned %s (%s)\n", chunk.SubAgentSessionID, chunk.SubAgentType)
	case core.OutputSubAgentComplete:
		fmt.Printf("\n[subagent] %s finished\n", chunk.SubAgentSessionID)
	case core.OutputError:
		fmt.Printf("\n[error] %s\n", chunk.Text)
	case core.OutputStatus:
		fmt.Printf("\n[status] %s\n", chunk.Text)
	}
}

// askPermission prompts stdin for a tool-call authorization decision.
func askPermission(toolName, info string) (allowed, remember bool) {
	fmt.Printf("\n[permission] %s wants to run: %s\nAllow? [y]es / [n]o / [a]lways / [d]eny always: ", toolName, info)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	switch line[:min(1, len(line))] {
	case "a":
		return true, true
	case "d":
		return false, true
	case "n":
		return false, false
	default:
		return true, false
	}
}

func askQuestions(questions []core.UserQuestion) []string {
	answers := make([]string, 0, len(questions))
	reader := bufio.NewReader(os.Stdin)
	for _, q := range questions {
		fmt.Printf("\n[question] %s\n", q.Question)
		for i, opt := range q.Options {
			fmt.Printf("  %d) %s\n", i+1, opt)
		}
		fmt.Print("> ")
		line, _ := reader.ReadString('\n')
		answers = append(answers, trimNewline(line))
	}
	return answers
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
