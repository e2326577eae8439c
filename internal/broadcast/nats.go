package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/cccc-dev/cccc/internal/ledger"
	"github.com/cccc-dev/cccc/internal/logging"
)

// NATS is the distributed broadcaster backend (spec §4.J, SPEC_FULL's
// domain-stack wiring of nats-io/nats.go): every group's events are
// published to a per-group subject so a dashboard process outside this
// daemon can subscribe to the same event stream. Local subscribers
// still get the same bounded-buffer, never-block semantics as Memory —
// the NATS subscription just feeds a local channel instead of an
// in-process fan-out map.
type NATS struct {
	conn          *nats.Conn
	subjectPrefix string
	bufferSize    int
	log           *logging.Logger
}

// NewNATS connects to url with the same reconnect handling the
// teacher's NATSEventBus installs, and returns a broadcaster that
// publishes/subscribes under subjectPrefix + "." + group_id.
func NewNATS(url, subjectPrefix string, bufferSize int, log *logging.Logger) (*NATS, error) {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	opts := []nats.Option{
		nats.Name("cccc-daemon"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(5 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if log != nil && err != nil {
				log.Warn("broadcast: nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			if log != nil {
				log.Info("broadcast: nats reconnected", zap.String("url", nc.ConnectedUrl()))
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			if log == nil {
				return
			}
			if sub != nil {
				log.Warn("broadcast: nats error", zap.String("subject", sub.Subject), zap.Error(err))
			} else {
				log.Warn("broadcast: nats error", zap.Error(err))
			}
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATS{conn: conn, subjectPrefix: subjectPrefix, bufferSize: bufferSize, log: log}, nil
}

func (n *NATS) subject(groupID string) string {
	return n.subjectPrefix + "." + groupID
}

// Publish marshals ev and publishes it to the group's subject. Per
// spec §4.J.3 this must not block the caller (the ledger append path);
// nats.Conn.Publish is fire-and-forget over the client's own write
// buffer, so no extra goroutine is needed here.
func (n *NATS) Publish(groupID string, ev ledger.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		if n.log != nil {
			n.log.Warn("broadcast: marshal event failed", zap.Error(err))
		}
		return
	}
	if err := n.conn.Publish(n.subject(groupID), data); err != nil {
		if n.log != nil {
			n.log.Warn("broadcast: nats publish failed", zap.String("group_id", groupID), zap.Error(err))
		}
	}
}

// Subscribe opens a NATS subscription for groupID and relays messages
// into a local bounded channel, satisfying the same ipc.Broadcaster
// shape as Memory. A full channel closes overflowed, after which no
// further messages are relayed; cancel unsubscribes idempotently.
func (n *NATS) Subscribe(groupID string) (<-chan ledger.Event, <-chan struct{}, func()) {
	ch := make(chan ledger.Event, n.bufferSize)
	overflowed := make(chan struct{})
	var overflowOnce sync.Once

	sub, err := n.conn.Subscribe(n.subject(groupID), func(msg *nats.Msg) {
		var ev ledger.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			if n.log != nil {
				n.log.Warn("broadcast: unmarshal event failed", zap.Error(err))
			}
			return
		}
		select {
		case <-overflowed:
			return
		default:
		}
		select {
		case ch <- ev:
		default:
			overflowOnce.Do(func() { close(overflowed) })
		}
	})

	var cancelOnce sync.Once
	cancel := func() {
		cancelOnce.Do(func() {
			if sub != nil {
				_ = sub.Unsubscribe()
			}
		})
	}
	if err != nil {
		if n.log != nil {
			n.log.Warn("broadcast: nats subscribe failed", zap.String("group_id", groupID), zap.Error(err))
		}
		overflowOnce.Do(func() { close(overflowed) })
	}

	return ch, overflowed, cancel
}

// Close drains and closes the NATS connection (spec §4.J "never
// deletes events that any actor still needs" does not apply here, but
// draining still avoids dropping in-flight publishes on shutdown).
func (n *NATS) Close() {
	if n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
