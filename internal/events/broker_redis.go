package events

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"

    "shipbatch/internal/model"
)

// EventBroker is satisfied by the in-memory Broker and the Redis-backed one.
type EventBroker interface {
    Subscribe(jobID string) chan model.ProgressEvent
    Unsubscribe(jobID string, ch chan model.ProgressEvent)
    Publish(jobID string, evt model.ProgressEvent)
}

// RedisBroker implements EventBroker over Redis Pub/Sub so progress streams
// survive running the API on more than one replica.
type RedisBroker struct {
    rdb  *redis.Client
    mu   sync.Mutex
    subs map[chan model.ProgressEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    return &RedisBroker{
        rdb:  redis.NewClient(opt),
        subs: map[chan model.ProgressEvent]*redis.PubSub{},
    }, nil
}

func (b *RedisBroker) Subscribe(jobID string) chan model.ProgressEvent {
    ch := make(chan model.ProgressEvent, 32)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(jobID))
    // initial consume to ensure subscription
    _, _ = ps.Receive(ctx)
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go func() {
        // sole closer of ch; the range ends once Unsubscribe closes the
        // PubSub, so a publish racing an unsubscribe never hits a closed
        // channel
        defer close(ch)
        for msg := range ps.Channel() {
            var evt model.ProgressEvent
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

func (b *RedisBroker) Unsubscribe(jobID string, ch chan model.ProgressEvent) {
    b.mu.Lock()
    ps, ok := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    if ok { _ = ps.Close() }
}

func (b *RedisBroker) Publish(jobID string, evt model.ProgressEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, b.chanName(jobID), data).Err()
}

func (b *RedisBroker) chanName(jobID string) string { return "job:" + jobID }
