// Package broker wraps the NSQ message broker. Each catalog queue maps to
// one NSQ topic; workers consume a shared channel so messages are handled
// at-least-once by exactly one worker slot.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
)

// WorkerChannel is the NSQ channel all worker processes share per topic.
const WorkerChannel = "workers"

// Producer publishes task envelopes to the queue topics.
type Producer struct {
	prod *nsq.Producer
}

// NewProducer connects to nsqd at addr (host:port).
func NewProducer(addr string) (*Producer, error) {
	prod, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer: %w", err)
	}
	return &Producer{prod: prod}, nil
}

// Enqueue assigns the envelope a task id, stamps it and publishes it to
// the topic named by queue. The returned id is the caller's only handle on
// later task state.
func (p *Producer) Enqueue(ctx context.Context, queue string, env *Envelope) (string, error) {
	if env.TaskID == "" {
		env.TaskID = uuid.NewString()
	}
	env.Queue = queue
	env.PublishedAt = time.Now().UTC().Format(time.RFC3339Nano)

	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	if err := p.prod.Publish(queue, body); err != nil {
		return "", fmt.Errorf("publish to %q: %w", queue, err)
	}
	return env.TaskID, nil
}

// Ping verifies the nsqd connection is usable. The context is accepted
// for interface compatibility; the underlying client has no deadline
// support on its ping.
func (p *Producer) Ping(_ context.Context) error {
	return p.prod.Ping()
}

// Stop releases the underlying connection.
func (p *Producer) Stop() {
	p.prod.Stop()
}
