package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetry keeps retry tests quick
var fastRetry = RetryConfig{
	MaxRetries: 3,
	BaseDelay:  time.Millisecond,
	MaxDelay:   5 * time.Millisecond,
	Multiplier: 2,
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// dataServer answers in the OpenAI/Jina shape, returning entries in reverse
// index order so callers must sort them.
func dataServer(t *testing.T, calls *atomic.Int32, texts *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if texts != nil {
			*texts = append(*texts, req.Input...)
		}

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Embedding: []float32{float32(len(req.Input[i])), 1}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
	}))
}

func TestOpenAIProvider(t *testing.T) {
	var calls atomic.Int32
	var sent []string
	srv := dataServer(t, &calls, &sent)
	defer srv.Close()

	p, err := NewOpenAIProvider("test-key", NewCache(10), WithEndpoint(srv.URL), WithDimension(2), WithRetry(fastRetry))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, ProviderOpenAI, p.Provider())
	assert.Equal(t, DefaultOpenAIModel, p.Model())
	assert.Equal(t, 2, p.Dimension())

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "bbb"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, float32(1), resp.Embeddings[0].Vector[0])
	assert.Equal(t, float32(3), resp.Embeddings[1].Vector[0])

	t.Run("cached texts skip the api", func(t *testing.T) {
		sent = nil
		resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"bbb", "cc"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"cc"}, sent)
		assert.Equal(t, float32(3), resp.Embeddings[0].Vector[0])
		assert.Equal(t, float32(2), resp.Embeddings[1].Vector[0])
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("model override changes cache scope", func(t *testing.T) {
		sent = nil
		_, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a"}, Model: "other"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, sent)
	})
}

func TestJinaProvider(t *testing.T) {
	var calls atomic.Int32
	srv := dataServer(t, &calls, nil)
	defer srv.Close()

	p, err := NewJinaProvider("test-key", nil, WithEndpoint(srv.URL), WithModel("jina-custom"))
	require.NoError(t, err)

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, ProviderJina, emb.Provider)
	assert.Equal(t, "jina-custom", emb.Model)
	assert.Equal(t, []float32{5, 1}, emb.Vector)
}

func TestAPIProviderRequiresKey(t *testing.T) {
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	_, err := NewJinaProvider("", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
	_, err = NewOpenAIProvider("", nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	t.Setenv(EnvOpenAIAPIKey, "from-env")
	p, err := NewOpenAIProvider("", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", p.apiKey)
}

func TestOllamaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vectors := make([][]float32, len(req.Input))
		for i := range req.Input {
			vectors[i] = []float32{float32(i), 0.5}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": vectors})
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(nil, WithEndpoint(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, OllamaDimension, p.Dimension())

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0.5}, resp.Embeddings[1].Vector)
	assert.Equal(t, DefaultOllamaModel, resp.Model)
}

func TestAPIProviderRetry(t *testing.T) {
	t.Run("server errors are retried", func(t *testing.T) {
		var calls atomic.Int32
		ok := dataServer(t, &calls, nil)
		defer ok.Close()

		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			ok.Config.Handler.ServeHTTP(w, r)
		}))
		defer srv.Close()

		p, err := NewOpenAIProvider("test-key", nil, WithEndpoint(srv.URL), WithRetry(fastRetry))
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "retry me"})
		require.NoError(t, err)
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("rate limited responses are retried", func(t *testing.T) {
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			http.Error(w, "slow down", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		p, err := NewOpenAIProvider("test-key", nil, WithEndpoint(srv.URL), WithRetry(fastRetry))
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		require.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(fastRetry.MaxRetries), attempts.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			http.Error(w, "bad key", http.StatusUnauthorized)
		}))
		defer srv.Close()

		p, err := NewOpenAIProvider("test-key", nil, WithEndpoint(srv.URL), WithRetry(fastRetry))
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		require.ErrorIs(t, err, ErrProviderFailed)
		assert.Contains(t, err.Error(), "401")
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("mismatched response length fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[]}`))
		}))
		defer srv.Close()

		p, err := NewOpenAIProvider("test-key", nil, WithEndpoint(srv.URL), WithRetry(RetryConfig{MaxRetries: 1}))
		require.NoError(t, err)

		_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x"}})
		assert.ErrorIs(t, err, ErrProviderFailed)
	})
}

func TestAPIProviderBatchLimit(t *testing.T) {
	p, err := NewOllamaProvider(nil, WithEndpoint("http://127.0.0.1:0"))
	require.NoError(t, err)

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = "t"
	}
	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: texts})
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAPIProviderRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := dataServer(t, &calls, nil)
	defer srv.Close()

	p, err := NewOpenAIProvider("test-key", nil, WithEndpoint(srv.URL), WithRateLimit(1))
	require.NoError(t, err)
	require.NotNil(t, p.limiter)

	ctx := context.Background()
	_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "first"})
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = p.GenerateEmbedding(short, EmbeddingRequest{Text: "second"})
	require.Error(t, err, "second call within the same second waits on the limiter")
	assert.Equal(t, int32(1), calls.Load())
}
