package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadIncludesHybridSearchDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HYBRID_RRF_K", "")
	t.Setenv("HYBRID_RETRIEVE_TOP_N", "")
	t.Setenv("HYBRID_FUSION_METHOD", "")
	t.Setenv("SEMANTIC_SCORE_THRESHOLD", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HybridRRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.HybridRRFK)
	}
	if cfg.HybridRetrieveTopN != 50 {
		t.Fatalf("expected default retrieve top n 50, got %d", cfg.HybridRetrieveTopN)
	}
	if cfg.HybridFusionMethod != "rrf" {
		t.Fatalf("expected default fusion method rrf, got %q", cfg.HybridFusionMethod)
	}
	if cfg.SemanticScoreThreshold != 0.7 {
		t.Fatalf("expected default score threshold 0.7, got %v", cfg.SemanticScoreThreshold)
	}
	if cfg.GenerationEnabled() {
		t.Fatalf("generation must be disabled by default")
	}
}

func TestLoadParsesEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HYBRID_RRF_K", "75")
	t.Setenv("HYBRID_FUSION_METHOD", "Weighted")
	t.Setenv("HYBRID_KEYWORD_WEIGHT", "0.3")
	t.Setenv("HYBRID_SEMANTIC_WEIGHT", "0.7")
	t.Setenv("VECTOR_TIMEOUT", "250ms")
	t.Setenv("KEYWORD_BACKEND", "bleve")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HybridRRFK != 75 {
		t.Fatalf("expected rrf k 75, got %d", cfg.HybridRRFK)
	}
	if cfg.HybridFusionMethod != "weighted" {
		t.Fatalf("expected weighted fusion, got %q", cfg.HybridFusionMethod)
	}
	if cfg.HybridKeywordWeight != 0.3 || cfg.HybridSemanticWeight != 0.7 {
		t.Fatalf("unexpected weights %v/%v", cfg.HybridKeywordWeight, cfg.HybridSemanticWeight)
	}
	if cfg.VectorTimeout != 250*time.Millisecond {
		t.Fatalf("expected vector timeout 250ms, got %s", cfg.VectorTimeout)
	}
	if cfg.KeywordBackend != "bleve" {
		t.Fatalf("expected bleve keyword backend, got %q", cfg.KeywordBackend)
	}
}

func TestLoadAppliesFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.yaml")
	body := "hybrid_rrf_k: 30\nmax_limit: 50\nelasticsearch_index: statutes\nkeyword_timeout: 2s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HYBRID_RRF_K", "")
	t.Setenv("MAX_LIMIT", "80")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HybridRRFK != 30 {
		t.Fatalf("expected rrf k from file, got %d", cfg.HybridRRFK)
	}
	if cfg.MaxLimit != 80 {
		t.Fatalf("env must win over file, got %d", cfg.MaxLimit)
	}
	if cfg.ElasticsearchIndex != "statutes" {
		t.Fatalf("expected index from file, got %q", cfg.ElasticsearchIndex)
	}
	if cfg.KeywordTimeout != 2*time.Second {
		t.Fatalf("expected keyword timeout from file, got %s", cfg.KeywordTimeout)
	}
	if cfg.DefaultLimit != 10 {
		t.Fatalf("fields missing from file keep defaults, got %d", cfg.DefaultLimit)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"HYBRID_KEYWORD_WEIGHT": "-0.5",
		"HYBRID_RRF_K":          "0",
		"KEYWORD_BACKEND":       "solr",
		"HYBRID_FUSION_METHOD":  "borda",
		"DEFAULT_LIMIT":         "500",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(key, value)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected validation error for %s=%s", key, value)
			}
			if !strings.Contains(err.Error(), "invalid config") {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestLoadRejectsAllZeroFusionWeights(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HYBRID_KEYWORD_WEIGHT", "0")
	t.Setenv("HYBRID_SEMANTIC_WEIGHT", "0")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "must not both be zero") {
		t.Fatalf("expected all-zero weights to be rejected, got %v", err)
	}
}

func TestLoadAcceptsSingleZeroFusionWeight(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HYBRID_KEYWORD_WEIGHT", "0")
	t.Setenv("HYBRID_SEMANTIC_WEIGHT", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HybridKeywordWeight != 0 || cfg.HybridSemanticWeight != 1 {
		t.Fatalf("unexpected weights %v/%v", cfg.HybridKeywordWeight, cfg.HybridSemanticWeight)
	}
}
