package main

import (
	"context"

	"go.uber.org/zap"
)

type BookServiceProvider interface {
	Add(ctx context.Context, id string, book Book) error
	GetOne(ctx context.Context, id string) (Book, error)
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, id string, book Book) (Book, error)
	GetAll(ctx context.Context) ([]Book, error)
}

type BookService struct {
	logger  *zap.Logger
	config  *Config
	clock   Clocker
	storage BookStorage
	queue   Queuer
}

func NewBookService(logger *zap.Logger, config *Config, clock Clocker, storage BookStorage, queue Queuer) BookServiceProvider {
	if queue == nil {
		queue = NewNoopQueue()
	}
	return &BookService{
		logger:  logger,
		config:  config,
		clock:   clock,
		storage: storage,
		queue:   queue,
	}
}

// Add stores a new book. New books always start available.
func (bs *BookService) Add(ctx context.Context, id string, book Book) error {
	book.Status = StatusAvailable
	if err := bs.storage.Add(ctx, id, book); err != nil {
		return err
	}
	bs.replicate(ctx, CreateQueue, QueueItem{Book: &book})
	return nil
}

func (bs *BookService) GetOne(ctx context.Context, id string) (Book, error) {
	book, err := bs.storage.GetOne(ctx, id)
	return book, err
}

// Delete removes a book unless it is currently reserved.
func (bs *BookService) Delete(ctx context.Context, id string) error {
	if err := bs.storage.Delete(ctx, id); err != nil {
		return err
	}
	bs.replicate(ctx, DeleteQueue, QueueItem{Book: &Book{ID: id}})
	return nil
}

// Update replaces the catalog fields of a book. The storage keeps the stored
// status and creation date. Unknown books are created available.
func (bs *BookService) Update(ctx context.Context, id string, book Book) (Book, error) {
	book.Status = StatusAvailable
	book.UpdatedAt = bs.clock.Now().UTC().String()
	book, err := bs.storage.Update(ctx, id, book)
	if err != nil {
		return book, err
	}
	bs.replicate(ctx, UpdateQueue, QueueItem{Book: &book})
	return book, nil
}

func (bs *BookService) GetAll(ctx context.Context) ([]Book, error) {
	books, err := bs.storage.GetAll(ctx)
	return books, err
}

// replicate pushes the change to the archive queue. A failure there
// must not fail the request so it is only logged.
func (bs *BookService) replicate(ctx context.Context, qid string, item QueueItem) {
	if err := bs.queue.Push(ctx, qid, item); err != nil {
		bs.logger.Error("service: failed to push book to queue", zap.String("qid", qid), zap.Error(err))
	}
}
