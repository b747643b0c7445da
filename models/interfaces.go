package models

import "context"

// Pipeline is the external prediction service. Both calls return the raw
// JSON body so the aggregator can validate it.
type Pipeline interface {
	Analyze(ctx context.Context, part FilePart) ([]byte, error)
	Predict(ctx context.Context, parts []FilePart) ([]byte, error)
}
