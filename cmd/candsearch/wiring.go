package main

import (
	"context"
	"fmt"
	"io"

	"github.com/kalambet/candsearch/internal/config"
	"github.com/kalambet/candsearch/internal/crossencoder"
	"github.com/kalambet/candsearch/internal/engine"
	"github.com/kalambet/candsearch/internal/evaluation"
	"github.com/kalambet/candsearch/internal/pipeline"
	"github.com/kalambet/candsearch/internal/reranking"
	"github.com/kalambet/candsearch/internal/retrieval"
	"github.com/kalambet/candsearch/internal/turbopuffer"
)

// components are the long-lived clients shared by every job of a run.
type components struct {
	retriever *retrieval.Retriever
	reranker  *reranking.Reranker
	closeFn   func() error
}

func (c *components) Close() error {
	if c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

// buildComponents wires the embedding engine, vector index and reranker
// from cfg. When the engine can be probed, it is checked for readiness and
// the result reported to w.
func buildComponents(ctx context.Context, cfg config.Config, w io.Writer) (*components, error) {
	eng, err := engine.Detect(engine.DetectConfig{
		Provider:      cfg.Embedding.Provider,
		VoyageBaseURL: cfg.Voyage.BaseURL,
		VoyageAPIKey:  cfg.Voyage.APIKey,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		Timeout:       cfg.HTTP.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("selecting embedding engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, cfg.Embedding.Model, w); err != nil {
		return nil, err
	}

	index, closeFn, err := buildIndex(cfg)
	if err != nil {
		return nil, err
	}

	embedder := retrieval.NewEmbedder(eng, cfg.Embedding.Model)
	scorer := crossencoder.New(cfg.Reranker.BaseURL, cfg.Reranker.Model, cfg.Reranker.BatchSize, cfg.HTTP.Timeout)

	return &components{
		retriever: retrieval.NewRetriever(embedder, index, cfg.Index.Collection),
		reranker:  reranking.NewReranker(scorer),
		closeFn:   closeFn,
	}, nil
}

func buildIndex(cfg config.Config) (retrieval.VectorIndex, func() error, error) {
	switch cfg.Index.Backend {
	case "qdrant":
		idx, err := retrieval.NewQdrantIndex(retrieval.QdrantConfig{
			Addr:   cfg.Qdrant.Addr,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.TLS,
		})
		if err != nil {
			return nil, nil, err
		}
		return idx, idx.Close, nil
	default:
		client := turbopuffer.New(turbopuffer.Options{
			BaseURL:    cfg.Turbopuffer.BaseURL,
			Region:     cfg.Turbopuffer.Region,
			APIKey:     cfg.Turbopuffer.APIKey,
			APIVersion: cfg.Turbopuffer.APIVersion,
			Timeout:    cfg.HTTP.Timeout,
		})
		return retrieval.NewTurbopufferIndex(client), nil, nil
	}
}

func buildRunner(comps *components, cfg config.Config, topK, topN int) *pipeline.Runner {
	submitter := evaluation.New(cfg.Evaluation.URL, cfg.Evaluation.Identity, cfg.HTTP.Timeout)
	return pipeline.NewRunner(comps.retriever, comps.reranker, submitter, pipeline.Options{
		TopK: topK,
		TopN: topN,
	})
}
