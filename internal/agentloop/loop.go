// Package agentloop implements the standard agent turn loop: given a
// provider, a tool registry, and a hook registry, it drives one agent's
// entire conversational lifecycle — reading user input, streaming a
// completion, executing any tool calls the model requests, and looping
// until the model stops asking for tools — on top of the channel/handle
// contract defined by internal/runtime.
package agentloop

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/loomwork/loom/internal/core"
	"github.com/loomwork/loom/internal/hooks"
	"github.com/loomwork/loom/internal/provider"
	"github.com/loomwork/loom/internal/runtime"
	"github.com/loomwork/loom/internal/tool"
)

// Retry policy for transient provider/stream errors.
const (
	MaxSteps             = 100
	RetryInitialInterval = time.Second
	RetryMaxInterval     = 30 * time.Second
	RetryMaxElapsedTime  = 2 * time.Minute
	RetryMaxRetries      = 3
)

// Config wires one agent-type preset to its provider, tools, and hooks.
type Config struct {
	AgentType    string
	SystemPrompt string
	Providers    *provider.Registry
	ProviderID   string
	ModelID      string
	Tools        *tool.Registry
	Hooks        *hooks.Registry
	MaxSteps     int
	MaxTokens    int
	Temperature  float64
	TopP         float64
	WorkDir      string
}

// loop carries one running agent's config and is the receiver for the
// turn sub-loop's helper methods.
type loop struct {
	cfg Config
}

// New returns an AgentFunc that drives the outer loop: wait for a
// UserInput, run a full turn to completion (or interruption), append the
// exchange to the session, report Idle, and wait for the next input.
// Interrupt between turns is a no-op; Shutdown exits immediately.
func New(cfg Config) runtime.AgentFunc {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = MaxSteps
	}
	l := &loop{cfg: cfg}

	return func(ctx context.Context, internals *runtime.AgentInternals) {
		internals.SetState(core.Idle())

		for {
			msg, ok := internals.Receive()
			if !ok {
				return
			}
			switch msg.Kind {
			case core.InputShutdown:
				internals.SetState(core.Done())
				internals.Send(core.DoneChunk())
				return
			case core.InputInterrupt:
				continue // nothing in flight between turns
			case core.InputUserInput:
				l.runTurnLoop(ctx, internals, msg.Text)
			default:
				continue
			}
		}
	}
}

// runTurnLoop appends the user's message, then repeatedly calls the
// provider and executes any requested tools until the model stops asking
// for tools, the step budget is exhausted, or an Interrupt/Shutdown
// arrives. It leaves the agent Idle (or Done, on Shutdown) before
// returning to the outer loop, except when the provider cannot be resolved
// or provider/stream retries are exhausted, which leave it in the Error
// state.
func (l *loop) runTurnLoop(ctx context.Context, internals *runtime.AgentInternals, userText string) {
	internals.SetState(core.Processing())
	internals.Session().AddMessage(core.NewTextMessage(core.RoleUser, userText))

	prov, err := l.cfg.Providers.Get(l.cfg.ProviderID)
	if err != nil {
		internals.SendError(err.Error())
		internals.SetState(core.ErrorState(err.Error()))
		internals.Send(core.DoneChunk())
		return
	}

	retryPolicy := newRetryBackoff(ctx)

	for step := 0; ; step++ {
		if step >= l.cfg.MaxSteps {
			internals.SendError("maximum steps exceeded")
			internals.SetState(core.ErrorState("maximum steps exceeded"))
			break
		}

		if interrupted, shutdown := l.drainControlSignals(internals); shutdown {
			internals.SetState(core.Done())
			internals.Send(core.DoneChunk())
			return
		} else if interrupted {
			internals.SetState(core.Idle())
			internals.Send(core.DoneChunk())
			return
		}

		history := internals.Session().Messages()
		messages := toEinoMessages(l.cfg.SystemPrompt, history)

		req := &provider.CompletionRequest{
			Model:       l.cfg.ModelID,
			Messages:    messages,
			MaxTokens:   l.cfg.MaxTokens,
			Temperature: l.cfg.Temperature,
			TopP:        l.cfg.TopP,
		}
		if infos, err := l.cfg.Tools.ToolInfos(); err == nil {
			req.Tools = infos
		}

		stream, err := prov.CreateCompletion(ctx, req)
		if err != nil {
			if !l.retryOrGiveUp(internals, retryPolicy, err) {
				return
			}
			continue
		}

		acc := newAccumulator()
		streamErr := l.consumeStream(ctx, internals, stream, acc)
		stream.Close()

		if streamErr != nil {
			if !l.retryOrGiveUp(internals, retryPolicy, streamErr) {
				return
			}
			continue
		}
		retryPolicy.Reset()

		assistantMsg := acc.assistantMessage()
		internals.Session().AddMessage(assistantMsg)
		internals.Send(core.TextComplete(acc.text))

		finish := normalizedFinish(acc.finish, len(acc.calls) > 0)
		switch finish {
		case core.StopToolUse:
			results := make([]core.ContentBlock, 0, len(acc.calls))
			for _, c := range acc.calls {
				results = append(results, l.runTool(ctx, internals, c.id, c.name, []byte(c.args)))
			}
			internals.Session().AddMessage(core.Message{
				Role:    core.RoleUser,
				Content: results,
			})
			continue
		default:
			internals.SetState(core.Done())
			internals.Session().Save()
			internals.Send(core.DoneChunk())
			internals.SetState(core.Idle())
			return
		}
	}

	internals.Session().Save()
	internals.Send(core.DoneChunk())
	internals.SetState(core.Idle())
}

// drainControlSignals checks, without blocking, whether an Interrupt or
// Shutdown is already queued on the input channel.
func (l *loop) drainControlSignals(internals *runtime.AgentInternals) (interrupted, shutdown bool) {
	for {
		msg, ok := internals.TryReceive()
		if !ok {
			return false, false
		}
		switch msg.Kind {
		case core.InputInterrupt:
			return true, false
		case core.InputShutdown:
			return false, true
		default:
			continue
		}
	}
}

// consumeStream reads chunks until EOF, folding each into acc and
// forwarding text/thinking deltas as they arrive. It polls for an
// Interrupt/Shutdown between chunks so a long tool-free response can still
// be cut short.
func (l *loop) consumeStream(ctx context.Context, internals *runtime.AgentInternals, stream *provider.CompletionStream, acc *accumulator) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if interrupted, shutdown := l.drainControlSignals(internals); interrupted || shutdown {
			return fmt.Errorf("stream interrupted")
		}

		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		textDelta, thinkingDelta := acc.apply(msg)
		if textDelta != "" {
			internals.SendText(textDelta)
		}
		if thinkingDelta != "" {
			internals.Send(core.ThinkingDelta(thinkingDelta))
		}
	}
}

// retryOrGiveUp applies the next backoff interval for a transient error,
// reporting failure and returning false once retries are exhausted.
func (l *loop) retryOrGiveUp(internals *runtime.AgentInternals, policy backoff.BackOff, err error) bool {
	next := policy.NextBackOff()
	if next == backoff.Stop {
		internals.SendError(err.Error())
		internals.SetState(core.ErrorState(err.Error()))
		internals.Send(core.DoneChunk())
		return false
	}
	time.Sleep(next)
	return true
}

// newRetryBackoff builds a jittered exponential policy for provider/stream
// retries.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, RetryMaxRetries), ctx)
}
