package runtime

import (
	"github.com/loomwork/loom/internal/broadcast"
	"github.com/loomwork/loom/internal/core"
)

// broadcasterT and OutputSubscriber pin down the generic broadcast types
// to this runtime's OutputChunk payload, so the rest of the package (and
// its callers) can refer to them without repeating the type parameter.
type broadcasterT = broadcast.Broadcaster[core.OutputChunk]

// OutputSubscriber is a per-caller cursor into an agent's output stream.
type OutputSubscriber = broadcast.Subscriber[core.OutputChunk]

func newBroadcaster() *broadcasterT {
	return broadcast.New[core.OutputChunk](OutputChannelSize)
}
