package events

import (
    "sync"

    "shipbatch/internal/model"
)

// Broker fan-outs per-row progress events to SSE and WebSocket watchers.
// Delivery is best-effort: a slow subscriber drops events rather than
// blocking the engine.
type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan model.ProgressEvent]struct{} // jobId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan model.ProgressEvent]struct{}{}}
}

func (b *Broker) Subscribe(jobID string) chan model.ProgressEvent {
    ch := make(chan model.ProgressEvent, 16)
    b.mu.Lock()
    if b.subs[jobID] == nil { b.subs[jobID] = map[chan model.ProgressEvent]struct{}{} }
    b.subs[jobID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(jobID string, ch chan model.ProgressEvent) {
    b.mu.Lock()
    if m := b.subs[jobID]; m != nil {
        delete(m, ch)
        if len(m) == 0 { delete(b.subs, jobID) }
    }
    b.mu.Unlock()
    close(ch)
}

func (b *Broker) Publish(jobID string, evt model.ProgressEvent) {
    b.mu.Lock()
    m := b.subs[jobID]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
