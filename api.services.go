package main

import (
	"context"

	"go.uber.org/zap"
)

type BookServiceProvider interface {
	FindAll(ctx context.Context) ([]Book, error)
	FindByID(ctx context.Context, id int64) (Book, error)
	Save(ctx context.Context, book Book) (Book, error)
	Update(ctx context.Context, book Book) (Book, error)
	DeleteByID(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error
}

// BookService forwards calls to the storage and publishes every
// successful change to the queue when one is configured.
type BookService struct {
	logger  *zap.Logger
	config  *Config
	storage BookStorage
	queue   Queuer
}

func NewBookService(logger *zap.Logger, config *Config, storage BookStorage, queue Queuer) BookServiceProvider {
	return &BookService{
		logger:  logger,
		config:  config,
		storage: storage,
		queue:   queue,
	}
}

func (bs *BookService) publish(ctx context.Context, op EventOp, book Book) {
	if bs.queue == nil {
		return
	}
	if err := bs.queue.Push(ctx, BookEvent{Op: op, Book: book}); err != nil {
		bs.logger.Error("service: failed to push book event to queue", zap.String("op", string(op)), zap.Int64("book.id", book.GetID()), zap.Error(err))
	}
}

func (bs *BookService) FindAll(ctx context.Context) ([]Book, error) {
	books, err := bs.storage.FindAll(ctx)
	if books == nil && err == nil {
		books = []Book{}
	}
	return books, err
}

func (bs *BookService) FindByID(ctx context.Context, id int64) (Book, error) {
	return bs.storage.FindByID(ctx, id)
}

func (bs *BookService) Save(ctx context.Context, book Book) (Book, error) {
	saved, err := bs.storage.Save(ctx, book)
	if err != nil {
		return saved, err
	}
	bs.publish(ctx, OpSave, saved)
	return saved, nil
}

func (bs *BookService) Update(ctx context.Context, book Book) (Book, error) {
	updated, err := bs.storage.Update(ctx, book)
	if err != nil {
		return updated, err
	}
	bs.publish(ctx, OpSave, updated)
	return updated, nil
}

func (bs *BookService) DeleteByID(ctx context.Context, id int64) error {
	if err := bs.storage.DeleteByID(ctx, id); err != nil {
		return err
	}
	bs.publish(ctx, OpDelete, Book{}.WithID(id))
	return nil
}

func (bs *BookService) DeleteAll(ctx context.Context) error {
	if err := bs.storage.DeleteAll(ctx); err != nil {
		return err
	}
	bs.publish(ctx, OpPurge, Book{})
	return nil
}
