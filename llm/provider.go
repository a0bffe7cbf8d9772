package llm

import (
	"net/http"
	"sync"
)

// RequestOptions carries per-request generation settings passed to a provider.
type RequestOptions struct {
	// Temperature is nil to use the provider default, or a pointer to an
	// explicit value.
	Temperature *float64
	// MaxTokens limits response length. 0 uses the provider default.
	MaxTokens int
	// JSONOnly requests a strict-JSON response where the provider supports it.
	JSONOnly bool
}

// Provider defines the interface for LLM provider implementations.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "ollama").
	Name() string

	// BuildURL constructs the full API endpoint URL.
	BuildURL(baseURL string) string

	// SetHeaders adds provider-specific headers to the request.
	SetHeaders(req *http.Request, apiKey string)

	// BuildRequestBody creates the JSON request body for the provider.
	BuildRequestBody(model string, messages []Message, opts RequestOptions) ([]byte, error)

	// ParseResponse extracts the response from provider-specific JSON.
	ParseResponse(body []byte, model string) (*Response, error)
}

// StreamingProvider is implemented by providers that support server-sent
// event streaming of completion fragments.
type StreamingProvider interface {
	Provider

	// BuildStreamRequestBody creates the request body with streaming enabled.
	BuildStreamRequestBody(model string, messages []Message, opts RequestOptions) ([]byte, error)

	// ParseStreamEvent extracts the content delta from one SSE data line.
	// done reports the end-of-stream sentinel.
	ParseStreamEvent(data []byte) (delta string, done bool, err error)
}

// ModelLister is implemented by providers that expose model discovery.
type ModelLister interface {
	// BuildModelsURL constructs the model listing URL.
	BuildModelsURL(baseURL string) string

	// ParseModels extracts the model list from provider-specific JSON.
	ParseModels(body []byte) ([]ModelInfo, error)
}

// providerRegistry holds registered providers.
var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a provider to the registry.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a provider by name.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns all registered provider names.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	return names
}
