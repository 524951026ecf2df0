//go:build !fastembed

package embed

import (
	"context"
	"errors"
)

var errFastEmbedMissing = errors.New("fastembed support not included; rebuild with -tags fastembed")

type FastEmbedder struct{}

func defaultFastEmbedOptions() *FastEmbedOptions { return nil }

func NewFastEmbedder(ctx context.Context, opt *FastEmbedOptions) (Embedder, error) {
	return nil, errFastEmbedMissing
}

func (FastEmbedder) Close() error { return nil }

func (FastEmbedder) EmbedPassages(ctx context.Context, docs []string) ([][]float32, error) {
	return nil, errFastEmbedMissing
}

func (FastEmbedder) Embed(ctx context.Context, q string) ([]float32, error) {
	return nil, errFastEmbedMissing
}
