// Package logtransport is a development transport that logs each message
// instead of delivering it.
package logtransport

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ignite/bulk-mailer/internal/pkg/logger"
	"github.com/ignite/bulk-mailer/internal/transport"
)

// Name identifies this transport in logs and metrics.
const Name = "log"

var _ transport.Transport = &Transport{}

// Transport accepts every message except those addressed to a configured
// failure set, which are rejected.
type Transport struct {
	mu   sync.Mutex
	fail map[string]struct{}
	sent []transport.Message
	keep bool
	log  *logger.Logger
}

// New creates a log transport. Addresses in fail are rejected.
func New(fail ...string) *Transport {
	t := &Transport{fail: make(map[string]struct{}), log: logger.Named("logtransport")}
	for _, f := range fail {
		t.fail[strings.ToLower(f)] = struct{}{}
	}
	return t
}

// Recording makes the transport keep a copy of every accepted message.
func (t *Transport) Recording() *Transport {
	t.keep = true
	return t
}

func (t *Transport) Name() string { return Name }

// Send logs msg and returns a synthetic message ID.
func (t *Transport) Send(ctx context.Context, msg *transport.Message) (*transport.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, bad := t.fail[strings.ToLower(msg.To)]; bad {
		t.log.Info("rejecting message", "to", msg.To, "subject", msg.Subject)
		return transport.Rejected(Name, "address in failure set"), nil
	}

	id := uuid.NewString()
	t.log.Info("message accepted", "to", msg.To, "from", msg.From, "subject", msg.Subject, "message_id", id)
	if t.keep {
		t.mu.Lock()
		t.sent = append(t.sent, *msg)
		t.mu.Unlock()
	}
	return transport.Accepted(Name, id), nil
}

// Sent returns the recorded messages.
func (t *Transport) Sent() []transport.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.Message, len(t.sent))
	copy(out, t.sent)
	return out
}
