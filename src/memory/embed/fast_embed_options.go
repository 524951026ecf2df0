package embed

// FastEmbedOptions configures the local ONNX embedder.
type FastEmbedOptions struct {
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}
