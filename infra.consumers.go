package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// consumerRetryDelay is the pause after a failed queue pop.
const consumerRetryDelay = time.Second

type Consumer interface {
	Consume(ctx context.Context, qids ...string) error
}

// Archiver stores records as they are received, without the catalog guards.
type Archiver interface {
	PutBook(ctx context.Context, book Book) error
	RemoveBook(ctx context.Context, id string) error
	// Save stores a reservation record as is, open or closed.
	Save(ctx context.Context, r Reservation) error
}

// archiveConsumer replays catalog and ledger changes into the archive store.
type archiveConsumer struct {
	logger     *zap.Logger
	queue      Queuer
	archive    Archiver
	retryDelay time.Duration
}

func NewArchiveConsumer(logger *zap.Logger, q Queuer, archive Archiver) Consumer {
	return &archiveConsumer{logger: logger, queue: q, archive: archive, retryDelay: consumerRetryDelay}
}

func (ac *archiveConsumer) Consume(ctx context.Context, qids ...string) error {
	for {
		qid, item, err := ac.queue.Pop(ctx, qids...)
		if err != nil && ctx.Err() != nil {
			ac.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if err != nil {
			ac.logger.Error("consumer: error on queue pop call", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(ac.retryDelay):
			}
			continue
		}

		if err = ac.apply(ctx, qid, item); err != nil {
			ac.logger.Error("consumer: failed to archive item", zap.String("qid", qid), zap.Any("item", item), zap.Error(err))
		}
	}
}

func (ac *archiveConsumer) apply(ctx context.Context, qid string, item QueueItem) error {
	switch {
	case qid == LedgerQueue && item.Reservation != nil:
		return ac.archive.Save(ctx, *item.Reservation)
	case item.Book == nil:
		ac.logger.Warn("consumer: received empty item", zap.String("qid", qid))
		return nil
	}

	book := *item.Book
	switch qid {
	case CreateQueue, UpdateQueue:
		return ac.archive.PutBook(ctx, book)
	case DeleteQueue:
		return ac.archive.RemoveBook(ctx, book.ID)
	default:
		ac.logger.Warn("consumer: received book on unknow queue id", zap.String("qid", qid), zap.Any("book", book))
		return nil
	}
}
