package claims

// FilterResult is the verdict of a content-admissibility filter.
type FilterResult struct {
	Approved   bool
	Reasons    []string
	Confidence float64
}

// ContentFilter is the admissibility gate consulted before a claim is
// accepted. The engine treats it as an opaque collaborator; implementations
// may wrap a moderation service, a word list, or nothing at all.
type ContentFilter interface {
	Evaluate(content string) (*FilterResult, error)
}

// NoopFilter approves everything. It is the default for standalone
// deployments and tests.
type NoopFilter struct{}

// Evaluate implements the ContentFilter interface.
func (f *NoopFilter) Evaluate(content string) (*FilterResult, error) {
	return &FilterResult{
		Approved:   true,
		Reasons:    []string{},
		Confidence: 1,
	}, nil
}
