package bulksend

import (
	"context"
	"fmt"
	"sync"

	"github.com/ignite/bulk-mailer/internal/domain"
	"github.com/ignite/bulk-mailer/internal/metrics"
	"github.com/ignite/bulk-mailer/internal/pkg/logger"
	"github.com/ignite/bulk-mailer/internal/transport"
)

// MessageTemplate is the content shared by every recipient of a job.
type MessageTemplate struct {
	Sender  string
	Subject string
	Body    string
	JobID   string
}

func (t MessageTemplate) message(to string) *transport.Message {
	m := &transport.Message{
		From:    t.Sender,
		To:      to,
		ReplyTo: t.Sender,
		Subject: t.Subject,
		Body:    t.Body,
	}
	if t.JobID != "" {
		m.Headers = map[string]string{"job_id": t.JobID}
	}
	return m
}

// Executor sends one chunk through a transport.
type Executor struct {
	transport   transport.Transport
	concurrency int
	log         *logger.Logger
}

// NewExecutor creates an executor. concurrency below 1 means sequential.
func NewExecutor(t transport.Transport, concurrency int) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Executor{transport: t, concurrency: concurrency, log: logger.Named("executor")}
}

// Send attempts every address of the chunk exactly once and returns one
// outcome per address in chunk order. A transport error or a non-success
// result marks the address failed; neither stops the chunk.
func (e *Executor) Send(ctx context.Context, chunk domain.Chunk, tmpl MessageTemplate) []domain.SendOutcome {
	outcomes := make([]domain.SendOutcome, len(chunk.Recipients))

	if e.concurrency == 1 || len(chunk.Recipients) < 2 {
		for i, addr := range chunk.Recipients {
			outcomes[i] = e.attempt(ctx, chunk.Index, addr, tmpl)
		}
		return outcomes
	}

	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	for i, addr := range chunk.Recipients {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, addr string) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = e.attempt(ctx, chunk.Index, addr, tmpl)
		}(i, addr)
	}
	wg.Wait()
	return outcomes
}

func (e *Executor) attempt(ctx context.Context, chunkIndex int, addr string, tmpl MessageTemplate) (out domain.SendOutcome) {
	out = domain.SendOutcome{Email: addr, Status: domain.OutcomeFailed}
	name := e.transport.Name()

	defer func() {
		if r := recover(); r != nil {
			out = domain.SendOutcome{Email: addr, Status: domain.OutcomeFailed, Reason: fmt.Sprintf("panic: %v", r)}
			e.log.Error("transport panicked", "job", tmpl.JobID, "chunk", chunkIndex, "email", addr, "transport", name, "panic", r)
		}
		metrics.IncEmail(name, string(out.Status))
	}()

	res, err := e.transport.Send(ctx, tmpl.message(addr))
	switch {
	case err != nil:
		out.Reason = string(transport.ReasonOf(err))
		e.log.Warn("send failed", "job", tmpl.JobID, "chunk", chunkIndex, "email", addr,
			"transport", name, "reason", out.Reason, "error", err)
	case res == nil || !res.Success:
		out.Reason = "rejected"
		if res != nil && res.Reason != "" {
			out.Reason = res.Reason
		}
		e.log.Warn("send rejected", "job", tmpl.JobID, "chunk", chunkIndex, "email", addr,
			"transport", name, "reason", out.Reason)
	default:
		out.Status = domain.OutcomeSent
		out.MessageID = res.MessageID
		e.log.Debug("sent", "job", tmpl.JobID, "chunk", chunkIndex, "email", addr,
			"transport", name, "message_id", res.MessageID)
	}
	return out
}
