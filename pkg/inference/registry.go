package inference

import "golang.org/x/time/rate"

// Descriptor is static metadata for one provider.
type Descriptor struct {
	Kind         Kind     `json:"-"`
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Models       []string `json:"models"`
	DefaultModel string   `json:"default_model"`
	Endpoint     string   `json:"endpoint"`

	// RequiresKey is false only for local and mock providers.
	RequiresKey bool `json:"requires_key"`

	// Free marks providers usable without a paid plan.
	Free      bool   `json:"free"`
	FreeLimit string `json:"free_limit,omitempty"`

	// RequestsPerMinute is the free-tier limit enforced locally.
	// Zero means unlimited.
	RequestsPerMinute int `json:"requests_per_minute,omitempty"`
}

var descriptors = map[Kind]Descriptor{
	KindOpenAI: {
		Name:         "OpenAI",
		Models:       []string{"gpt-4", "gpt-3.5-turbo"},
		DefaultModel: "gpt-3.5-turbo",
		Endpoint:     "https://api.openai.com/v1",
		RequiresKey:  true,
	},
	KindGroq: {
		Name:              "Groq",
		Models:            []string{"llama3-8b-8192", "llama3-70b-8192", "mixtral-8x7b-32768", "gemma-7b-it"},
		DefaultModel:      "mixtral-8x7b-32768",
		Endpoint:          "https://api.groq.com/openai/v1",
		RequiresKey:       true,
		FreeLimit:         "30 requests/minute",
		RequestsPerMinute: 30,
	},
	KindGemini: {
		Name:              "Google Gemini",
		Models:            []string{"gemini-pro", "gemini-pro-vision"},
		DefaultModel:      "gemini-pro",
		Endpoint:          "https://generativelanguage.googleapis.com/",
		RequiresKey:       true,
		FreeLimit:         "60 requests/minute",
		RequestsPerMinute: 60,
	},
	KindAnthropic: {
		Name:         "Anthropic Claude",
		Models:       []string{"claude-3-opus", "claude-3-sonnet", "claude-3-haiku"},
		DefaultModel: "claude-3-haiku-20240307",
		Endpoint:     "https://api.anthropic.com",
		RequiresKey:  true,
	},
	KindHuggingFace: {
		Name:         "HuggingFace",
		Models:       []string{"microsoft/DialoGPT-medium", "meta-llama/Llama-2-7b-chat-hf", "google/flan-t5-xxl", "bigscience/bloom"},
		DefaultModel: "microsoft/DialoGPT-medium",
		Endpoint:     "https://api-inference.huggingface.co",
		RequiresKey:  true,
		Free:         true,
		FreeLimit:    "Limited by model",
	},
	KindCohere: {
		Name:              "Cohere",
		Models:            []string{"command", "command-light"},
		DefaultModel:      "command",
		Endpoint:          "https://api.cohere.ai",
		RequiresKey:       true,
		Free:              true,
		FreeLimit:         "100 requests/minute for trial",
		RequestsPerMinute: 100,
	},
	KindLocal: {
		Name:         "Local/Ollama",
		Models:       []string{"llama2", "mistral", "codellama", "phi"},
		DefaultModel: "llama2",
		Endpoint:     "http://localhost:11434",
		Free:         true,
		FreeLimit:    "Unlimited (runs on your machine)",
	},
	KindMock: {
		Name:         "Mock",
		Models:       []string{"mock"},
		DefaultModel: "mock",
		Free:         true,
		FreeLimit:    "Unlimited (local responder)",
	},
}

// DescriptorFor returns the built-in descriptor for a kind.
func DescriptorFor(kind Kind) Descriptor {
	d := descriptors[kind]
	d.Kind = kind
	d.ID = kind.String()
	d.Models = append([]string(nil), d.Models...)
	return d
}

// Entry binds a descriptor to its completer and credential.
type Entry struct {
	Descriptor Descriptor
	Completer  Completer
	APIKey     string
}

type registered struct {
	Entry
	limiter *rate.Limiter
}

// Registry is the fixed set of providers a Router may select from.
// It is built once and treated as read-only afterwards.
type Registry struct {
	entries map[Kind]*registered
}

// NewRegistry builds a registry from entries. The mock provider is always
// present; an entry for KindMock replaces the default responder.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[Kind]*registered, len(entries)+1)}
	r.add(Entry{Descriptor: DescriptorFor(KindMock), Completer: NewMock()})
	for _, e := range entries {
		r.add(e)
	}
	return r
}

func (r *Registry) add(e Entry) {
	if e.Descriptor.ID == "" {
		e.Descriptor = DescriptorFor(e.Descriptor.Kind)
	}
	reg := &registered{Entry: e}
	if rpm := e.Descriptor.RequestsPerMinute; rpm > 0 {
		reg.limiter = newMinuteLimiter(rpm)
	}
	r.entries[e.Descriptor.Kind] = reg
}

// Lookup returns the entry for kind.
func (r *Registry) Lookup(kind Kind) (Entry, bool) {
	e, ok := r.entries[kind]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind Kind) bool {
	_, ok := r.entries[kind]
	return ok
}

// Kinds returns registered kinds in Kinds() order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.entries))
	for _, k := range Kinds() {
		if r.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (r *Registry) get(kind Kind) *registered {
	return r.entries[kind]
}
