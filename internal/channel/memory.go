package channel

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Sender for tests and dry runs. It records every
// delivery and can be told to fail.
type Memory struct {
	mu         sync.Mutex
	Deliveries []MemoryDelivery
	FailWith   error
	next       int
}

type MemoryDelivery struct {
	Kind     string
	To       string
	ReviewID string
	Body     string
}

func (m *Memory) Send(ctx context.Context, to, body string) (string, error) {
	return m.record(MemoryDelivery{Kind: "message", To: to, Body: body})
}

func (m *Memory) ReplyReview(ctx context.Context, reviewID, body string) (string, error) {
	return m.record(MemoryDelivery{Kind: "review_reply", ReviewID: reviewID, Body: body})
}

func (m *Memory) Ack(ctx context.Context, kind, message string) (string, error) {
	return m.record(MemoryDelivery{Kind: "ack", Body: message})
}

func (m *Memory) record(d MemoryDelivery) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return "", m.FailWith
	}
	m.Deliveries = append(m.Deliveries, d)
	m.next++
	return fmt.Sprintf("mem-%d", m.next), nil
}
