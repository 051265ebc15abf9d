package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Predefinied Queue IDs.
const (
	CreateQueue = "creation"
	UpdateQueue = "updating"
	DeleteQueue = "deletion"
	LedgerQueue = "ledger"
)

var (
	_ Queuer = (*redisQueue)(nil)
	_ Queuer = (*noopQueue)(nil)
)

// QueueItem is the payload moved to the archive. Only one field is set.
type QueueItem struct {
	Book        *Book        `json:"book,omitempty"`
	Reservation *Reservation `json:"reservation,omitempty"`
}

// Queuer describes a queue.
type Queuer interface {
	Push(ctx context.Context, qid string, item QueueItem) error
	Pop(ctx context.Context, qids ...string) (string, QueueItem, error)
}

// redisQueue represents a queue which implements the Queuer interface.
type redisQueue struct {
	client *redis.Client
	prefix string
}

func NewRedisQueue(client *redis.Client) Queuer {
	return &redisQueue{client: client, prefix: "lrap:queue:"}
}

// Push enqueues an item onto the queue identified by qid.
func (q *redisQueue) Push(ctx context.Context, qid string, item QueueItem) error {
	itemBytes, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.prefix+qid, itemBytes).Err()
}

// Pop returns the first dequeued item from the list of queue ids.
func (q *redisQueue) Pop(ctx context.Context, qids ...string) (string, QueueItem, error) {
	var item QueueItem
	keys := make([]string, len(qids))
	for i, qid := range qids {
		keys[i] = q.prefix + qid
	}
	infos, err := q.client.BLPop(ctx, 0*time.Second, keys...).Result()
	if err != nil {
		return "", item, err
	}

	if err = json.Unmarshal([]byte(infos[1]), &item); err != nil {
		return "", item, err
	}
	return infos[0][len(q.prefix):], item, nil
}

// noopQueue drops every item. It is used when the archive is disabled.
type noopQueue struct{}

func NewNoopQueue() Queuer {
	return noopQueue{}
}

func (noopQueue) Push(context.Context, string, QueueItem) error {
	return nil
}

// Pop blocks until the context is done.
func (noopQueue) Pop(ctx context.Context, _ ...string) (string, QueueItem, error) {
	<-ctx.Done()
	return "", QueueItem{}, ctx.Err()
}
