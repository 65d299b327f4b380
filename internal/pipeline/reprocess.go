package pipeline

import (
	"context"
	"maps"

	"github.com/joseph-ayodele/w2-extractor/internal/result"
)

// ReprocessReport compares a fresh run with a previously returned result.
type ReprocessReport struct {
	Previous result.ExtractionResult
	Current  result.ExtractionResult
	Changed  bool
}

func (r ReprocessReport) ConfidenceDelta() float64 {
	return r.Current.Confidence - r.Previous.Confidence
}

// Reprocess runs in again and reports how the outcome moved from previous.
func (p *Processor) Reprocess(ctx context.Context, in Input, previous result.ExtractionResult) ReprocessReport {
	cur := p.Process(ctx, in)
	changed := cur.DocumentType != previous.DocumentType ||
		cur.Method != previous.Method ||
		cur.Confidence != previous.Confidence ||
		!maps.Equal(cur.Fields, previous.Fields)

	p.logger.Info("pipeline.reprocess.done",
		"request_id", cur.RequestID,
		"method_before", previous.Method,
		"method_after", cur.Method,
		"confidence_before", previous.Confidence,
		"confidence_after", cur.Confidence,
		"changed", changed,
	)
	return ReprocessReport{Previous: previous, Current: cur, Changed: changed}
}
