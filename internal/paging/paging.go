// Package paging walks page-numbered list endpoints.
//
// Termination is driven by page length only: a page shorter than the page
// size (or empty) is the last one. Total-count headers are advisory.
package paging

import (
	"context"
	"iter"
)

// DefaultPageSize is the largest page WooCommerce REST v3 serves.
const DefaultPageSize = 100

// Source fetches one 1-based page of at most size items.
type Source[T any] interface {
	FetchPage(ctx context.Context, page, size int) ([]T, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context, page, size int) ([]T, error)

func (f SourceFunc[T]) FetchPage(ctx context.Context, page, size int) ([]T, error) {
	return f(ctx, page, size)
}

// Pages yields pages in order starting at page 1.
// Each call of the returned sequence starts a fresh walk, so it can be
// ranged over more than once. The walk stops after the first error, which is
// yielded with a nil page.
func Pages[T any](ctx context.Context, src Source[T], size int) iter.Seq2[[]T, error] {
	if size <= 0 {
		size = DefaultPageSize
	}
	return func(yield func([]T, error) bool) {
		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			items, err := src.FetchPage(ctx, page, size)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(items) == 0 {
				return
			}
			if !yield(items, nil) {
				return
			}
			if len(items) < size {
				return
			}
		}
	}
}

// FetchAll concatenates every page in remote order.
func FetchAll[T any](ctx context.Context, src Source[T], size int) ([]T, error) {
	var all []T
	for items, err := range Pages(ctx, src, size) {
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}
