package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Log         LogConfig
	Embedding   EmbeddingConfig
	Voyage      VoyageConfig
	Ollama      OllamaConfig
	Index       IndexConfig
	Turbopuffer TurbopufferConfig
	Qdrant      QdrantConfig
	Reranker    RerankerConfig
	Retrieval   RetrievalConfig
	Evaluation  EvaluationConfig
	Storage     StorageConfig
	Jobs        JobsConfig
	HTTP        HTTPConfig
}

type LogConfig struct {
	Level string
}

type EmbeddingConfig struct {
	Provider string // "voyage" or "ollama"
	Model    string
}

type VoyageConfig struct {
	BaseURL string
	APIKey  string
}

type OllamaConfig struct {
	BaseURL string
}

type IndexConfig struct {
	Backend    string // "turbopuffer" or "qdrant"
	Collection string
}

type TurbopufferConfig struct {
	Region     string
	BaseURL    string
	APIVersion string
	APIKey     string
}

type QdrantConfig struct {
	Addr   string
	APIKey string
	TLS    bool
}

type RerankerConfig struct {
	BaseURL   string
	Model     string
	BatchSize int
}

type RetrievalConfig struct {
	TopK int
	TopN int
}

type EvaluationConfig struct {
	URL      string
	Identity string
}

type StorageConfig struct {
	DataDir string
}

type JobsConfig struct {
	File string
}

type HTTPConfig struct {
	// Timeout bounds every outbound request. Zero means no timeout.
	Timeout time.Duration
}

func defaults() Config {
	return Config{
		Log:       LogConfig{Level: "info"},
		Embedding: EmbeddingConfig{Provider: "voyage", Model: "voyage-3"},
		Voyage:    VoyageConfig{BaseURL: "https://api.voyageai.com/v1"},
		Ollama:    OllamaConfig{BaseURL: "http://localhost:11434"},
		Index: IndexConfig{
			Backend:    "turbopuffer",
			Collection: "search-test-v4",
		},
		Turbopuffer: TurbopufferConfig{
			Region:     "aws-us-west-2",
			APIVersion: "v2",
		},
		Qdrant: QdrantConfig{Addr: "localhost:6334"},
		Reranker: RerankerConfig{
			BaseURL:   "http://localhost:8080",
			Model:     "cross-encoder/ms-marco-MiniLM-L-6-v2",
			BatchSize: 32,
		},
		Retrieval:  RetrievalConfig{TopK: 50, TopN: 10},
		Evaluation: EvaluationConfig{URL: "https://mercor-dev--search-eng-interview.modal.run/evaluate"},
		Storage:    StorageConfig{DataDir: defaultDataDir()},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/candsearch/config.json, then envFile (a dotenv file whose
// variables never override ones already set), then CANDSEARCH_* environment
// variables. Secrets are only read from the environment.
//
// Load does not check that secrets are present; see ValidateSearch and
// ValidateRun.
func Load(envFile string) (Config, error) {
	return loadWith(newPlatformBackend(), envFile)
}

func loadWith(b ConfigBackend, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "[WARN] could not load env file %s: %v\n", envFile, err)
		}
	}

	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := cfg.checkChoices(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) checkChoices() error {
	choices := []struct {
		key, val string
		allowed  []string
	}{
		{"embedding.provider", c.Embedding.Provider, []string{"voyage", "ollama"}},
		{"index.backend", c.Index.Backend, []string{"turbopuffer", "qdrant"}},
		{"turbopuffer.api_version", c.Turbopuffer.APIVersion, []string{"v1", "v2"}},
		{"log.level", strings.ToLower(c.Log.Level), []string{"debug", "info", "warn", "error"}},
	}
	for _, ch := range choices {
		ok := false
		for _, a := range ch.allowed {
			if ch.val == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("invalid value %q for %s (want one of %s)", ch.val, ch.key, strings.Join(ch.allowed, ", "))
		}
	}
	return nil
}

// ValidateSearch checks that the secrets needed to embed and query the
// selected backends are present.
func (c Config) ValidateSearch() error {
	return missingErr(c.missingSearchSecrets())
}

// ValidateRun is ValidateSearch plus the evaluation identity.
func (c Config) ValidateRun() error {
	missing := c.missingSearchSecrets()
	if c.Evaluation.Identity == "" {
		missing = append(missing, "CANDSEARCH_EVALUATION_IDENTITY")
	}
	return missingErr(missing)
}

func (c Config) missingSearchSecrets() []string {
	var missing []string
	if c.Embedding.Provider == "voyage" && c.Voyage.APIKey == "" {
		missing = append(missing, "CANDSEARCH_VOYAGE_API_KEY")
	}
	if c.Index.Backend == "turbopuffer" && c.Turbopuffer.APIKey == "" {
		missing = append(missing, "CANDSEARCH_TURBOPUFFER_API_KEY")
	}
	return missing
}

func missingErr(vars []string) error {
	if len(vars) == 0 {
		return nil
	}
	return fmt.Errorf("missing required config: %s. Set it in the environment or in a .env file", strings.Join(vars, ", "))
}
