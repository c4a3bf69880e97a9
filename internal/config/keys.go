package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "log.level", typ: kString, env: "CANDSEARCH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "embedding.provider", typ: kString, env: "CANDSEARCH_EMBEDDING_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.Provider },
	},
	{
		key: "embedding.model", typ: kString, env: "CANDSEARCH_EMBEDDING_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.Model },
	},
	{
		key: "voyage.base_url", typ: kString, env: "CANDSEARCH_VOYAGE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Voyage.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Voyage.BaseURL },
	},
	{
		key: "voyage.api_key", typ: kString, env: "CANDSEARCH_VOYAGE_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Voyage.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Voyage.APIKey },
	},
	{
		key: "ollama.base_url", typ: kString, env: "CANDSEARCH_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "index.backend", typ: kString, env: "CANDSEARCH_INDEX_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Index.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.Backend },
	},
	{
		key: "index.collection", typ: kString, env: "CANDSEARCH_INDEX_COLLECTION",
		apply:   func(cfg *Config, v any) { cfg.Index.Collection = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.Collection },
	},
	{
		key: "turbopuffer.region", typ: kString, env: "CANDSEARCH_TURBOPUFFER_REGION",
		apply:   func(cfg *Config, v any) { cfg.Turbopuffer.Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Turbopuffer.Region },
	},
	{
		key: "turbopuffer.base_url", typ: kString, env: "CANDSEARCH_TURBOPUFFER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Turbopuffer.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Turbopuffer.BaseURL },
	},
	{
		key: "turbopuffer.api_version", typ: kString, env: "CANDSEARCH_TURBOPUFFER_API_VERSION",
		apply:   func(cfg *Config, v any) { cfg.Turbopuffer.APIVersion = v.(string) },
		extract: func(cfg Config) any { return cfg.Turbopuffer.APIVersion },
	},
	{
		key: "turbopuffer.api_key", typ: kString, env: "CANDSEARCH_TURBOPUFFER_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Turbopuffer.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Turbopuffer.APIKey },
	},
	{
		key: "qdrant.addr", typ: kString, env: "CANDSEARCH_QDRANT_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Qdrant.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Qdrant.Addr },
	},
	{
		key: "qdrant.api_key", typ: kString, env: "CANDSEARCH_QDRANT_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Qdrant.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Qdrant.APIKey },
	},
	{
		key: "qdrant.tls", typ: kBool, env: "CANDSEARCH_QDRANT_TLS",
		apply:   func(cfg *Config, v any) { cfg.Qdrant.TLS = v.(bool) },
		extract: func(cfg Config) any { return cfg.Qdrant.TLS },
	},
	{
		key: "reranker.base_url", typ: kString, env: "CANDSEARCH_RERANKER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Reranker.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Reranker.BaseURL },
	},
	{
		key: "reranker.model", typ: kString, env: "CANDSEARCH_RERANKER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Reranker.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Reranker.Model },
	},
	{
		key: "reranker.batch_size", typ: kInt, env: "CANDSEARCH_RERANKER_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Reranker.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Reranker.BatchSize },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "CANDSEARCH_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.top_n", typ: kInt, env: "CANDSEARCH_RETRIEVAL_TOP_N",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopN = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopN },
	},
	{
		key: "evaluation.url", typ: kString, env: "CANDSEARCH_EVALUATION_URL",
		apply:   func(cfg *Config, v any) { cfg.Evaluation.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Evaluation.URL },
	},
	{
		key: "evaluation.identity", typ: kString, env: "CANDSEARCH_EVALUATION_IDENTITY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Evaluation.Identity = v.(string) },
		extract: func(cfg Config) any { return cfg.Evaluation.Identity },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CANDSEARCH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "jobs.file", typ: kString, env: "CANDSEARCH_JOBS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Jobs.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Jobs.File },
	},
	{
		key: "http.timeout", typ: kDuration, env: "CANDSEARCH_HTTP_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.HTTP.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.HTTP.Timeout },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw to the Go type of s.
func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool, kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if pv, err := parseValue(s, v); err == nil {
					s.apply(cfg, pv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
