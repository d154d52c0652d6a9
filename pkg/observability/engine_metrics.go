package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricBatchesTotal       = "corpuscan.engine.batches.total"
	metricBatchFailuresTotal = "corpuscan.engine.batch_failures.total"
	metricBatchDuration      = "corpuscan.engine.batch.duration.seconds"
	metricRecordsTotal       = "corpuscan.engine.records.total"
	metricRecordsSkipped     = "corpuscan.engine.records.skipped.total"
	metricFilesTotal         = "corpuscan.engine.files.total"
	metricDetectionsTotal    = "corpuscan.engine.detections.total"

	attrDataset = "dataset"
	attrLabel   = "label"
)

// EngineMetrics holds OTel instruments for batch processing.
type EngineMetrics struct {
	batches       metric.Int64Counter
	batchFailures metric.Int64Counter
	batchDuration metric.Float64Histogram
	records       metric.Int64Counter
	skipped       metric.Int64Counter
	files         metric.Int64Counter
	detections    metric.Int64Counter
	dataset       attribute.KeyValue
}

// NewEngineMetrics creates engine instruments from the given meter. All
// measurements carry the dataset name.
func NewEngineMetrics(mt metric.Meter, dataset string) (*EngineMetrics, error) {
	b := newMetricBuilder(mt)

	em := &EngineMetrics{
		batches:       b.counter(metricBatchesTotal, "Batches committed", "{batch}"),
		batchFailures: b.counter(metricBatchFailuresTotal, "Batches committed with an empty result after analyzer failure", "{batch}"),
		batchDuration: b.histogram(metricBatchDuration, "Per-batch analyze and commit duration in seconds", "s", durationBucketBoundaries...),
		records:       b.counter(metricRecordsTotal, "Records read from input files", "{record}"),
		skipped:       b.counter(metricRecordsSkipped, "Lines skipped as malformed or oversized", "{record}"),
		files:         b.counter(metricFilesTotal, "Files finished by status", "{file}"),
		detections:    b.counter(metricDetectionsTotal, "Detections by label", "{detection}"),
		dataset:       attribute.String(attrDataset, dataset),
	}

	if b.err != nil {
		return nil, b.err
	}

	return em, nil
}

// RecordBatch records one committed batch. Safe to call on a nil receiver.
func (em *EngineMetrics) RecordBatch(ctx context.Context, records int, failed bool, counts map[string]int, duration time.Duration) {
	if em == nil {
		return
	}

	attrs := metric.WithAttributes(em.dataset)

	em.batches.Add(ctx, 1, attrs)
	em.records.Add(ctx, int64(records), attrs)
	em.batchDuration.Record(ctx, duration.Seconds(), attrs)

	if failed {
		em.batchFailures.Add(ctx, 1, attrs)
	}

	for label, n := range counts {
		em.detections.Add(ctx, int64(n), metric.WithAttributes(em.dataset, attribute.String(attrLabel, label)))
	}
}

// RecordFile records a finished file with its status and skipped lines.
// Safe to call on a nil receiver.
func (em *EngineMetrics) RecordFile(ctx context.Context, status string, skipped int64) {
	if em == nil {
		return
	}

	em.files.Add(ctx, 1, metric.WithAttributes(em.dataset, attribute.String(attrStatus, status)))
	em.skipped.Add(ctx, skipped, metric.WithAttributes(em.dataset))
}
