package inference

// NewCompleter constructs the completer for kind.
func NewCompleter(kind Kind, opts ...Option) Completer {
	switch kind {
	case KindOpenAI:
		return NewOpenAI(opts...)
	case KindGroq:
		return NewGroq(opts...)
	case KindGemini:
		return NewGemini(opts...)
	case KindAnthropic:
		return NewAnthropic(opts...)
	case KindHuggingFace:
		return NewHuggingFace(opts...)
	case KindCohere:
		return NewCohere(opts...)
	case KindLocal:
		return NewOllama(opts...)
	default:
		return NewMock()
	}
}

// EntryFor builds a registry entry for kind from options. The credential
// is taken from WithAPIKey.
func EntryFor(kind Kind, opts ...Option) Entry {
	cfg := newConfig(kind, opts)
	return Entry{
		Descriptor: DescriptorFor(kind),
		Completer:  NewCompleter(kind, opts...),
		APIKey:     cfg.APIKey,
	}
}
