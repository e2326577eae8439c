package broadcast

import (
	"github.com/cccc-dev/cccc/internal/config"
	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/logging"
)

// Broadcaster is satisfied by both backends and matches
// internal/ipc.Broadcaster's shape exactly, so either can be handed
// straight to ipc.EventsStream.
type Broadcaster interface {
	Subscribe(groupID string) (ch <-chan ledger.Event, overflowed <-chan struct{}, cancel func())
	Publish(groupID string, ev ledger.Event)
	Close()
}

// New builds the configured backend (spec §4.J; memory is the
// default, nats is opt-in for a distributed subscriber outside this
// process).
func New(cfg config.BroadcastConfig, log *logging.Logger) (Broadcaster, error) {
	switch cfg.Backend {
	case "nats":
		return NewNATS(cfg.NATSURL, cfg.SubjectPrefix, cfg.BufferSize, log)
	default:
		return NewMemory(cfg.BufferSize, log), nil
	}
}
