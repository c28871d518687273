package memory

import "time"

type options struct {
	now              func() time.Time
	similarityWeight float64
	importanceWeight float64
}

func defaultOptions() options {
	return options{
		now:              time.Now,
		similarityWeight: 0.8,
		importanceWeight: 0.2,
	}
}

type Option func(*options)

// WithClock replaces time.Now for stores that stamp or age records.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithWeights overrides the similarity and importance weights of the search score.
func WithWeights(similarity, importance float64) Option {
	return func(o *options) {
		o.similarityWeight = similarity
		o.importanceWeight = importance
	}
}
