package vectorstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/grizabella-go/grizabella/pkg/types"
)

// EmbeddingModel turns text into a fixed-dimension vector.
type EmbeddingModel interface {
	// Embed returns the vector representation of text. The returned slice
	// always has the model's configured dimensionality.
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// ModelRegistry is a read-mostly lookup from model name to EmbeddingModel,
// guarded by a RWMutex per the engine's rule that shared schema-adjacent
// state serializes writers but allows concurrent readers.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[string]EmbeddingModel
}

// NewModelRegistry constructs an empty registry. The built-in deterministic
// stub model is always registered under the name "stub".
func NewModelRegistry() *ModelRegistry {
	r := &ModelRegistry{models: make(map[string]EmbeddingModel)}
	r.Register("stub", NewStubModel(8))
	return r
}

// Register adds or replaces the model under name.
func (r *ModelRegistry) Register(name string, m EmbeddingModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = m
}

// Get returns the model registered under name.
func (r *ModelRegistry) Get(name string) (EmbeddingModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, types.EmbeddingError("model_registry.get", fmt.Errorf("embedding model %q is not registered", name))
	}
	return m, nil
}

// StubModel is a deterministic, hash-based EmbeddingModel requiring no
// external inference service. It is the zero-configuration default: two
// equal input strings always produce the same vector, and distinct strings
// are extremely unlikely to collide, which is sufficient for exercising
// the Vector Adapter's storage and distance-ranking logic without a real
// embedding provider.
type StubModel struct {
	dims int
}

// NewStubModel constructs a StubModel producing vectors of the given
// dimensionality.
func NewStubModel(dims int) *StubModel { return &StubModel{dims: dims} }

func (m *StubModel) Dimensions() int { return m.dims }

func (m *StubModel) Embed(_ context.Context, text string) ([]float32, error) {
	out := make([]float32, m.dims)
	h := sha256.Sum256([]byte(text))
	for i := range out {
		b := h[i%len(h)]
		out[i] = float32(b)/127.5 - 1 // map byte range into roughly [-1, 1]
	}
	return out, nil
}
