package runtime

// Default channel capacities. InputChannelSize bounds the single-consumer
// input channel; OutputChannelSize bounds each agent's broadcast output
// ring. Mirrors the sizing the agent-loop design assumes: small enough
// that a runaway producer blocks quickly, large enough that a burst of
// tool results or permission responses never has to wait on the agent
// loop draining one at a time.
const (
	InputChannelSize  = 32
	OutputChannelSize = 256
)
