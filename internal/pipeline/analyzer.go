package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pbaille/mushroom/internal/codec"
	"github.com/pbaille/mushroom/internal/domain"
	"github.com/pbaille/mushroom/internal/inference"
	"github.com/pbaille/mushroom/internal/metrics"
	"github.com/pbaille/mushroom/internal/stats"
	"github.com/pbaille/mushroom/internal/store"
)

// Classifier turns a feature vector into a verdict
type Classifier interface {
	Classify(ctx context.Context, vec domain.FeatureVector) (domain.Verdict, error)
}

// LogStore is the subset of the store the pipeline needs
type LogStore interface {
	Append(ctx context.Context, rec domain.LogRecord) error
	ReadAll(ctx context.Context) ([]domain.LogRecord, error)
	Clear(ctx context.Context) error
}

// Result is the outcome of one analysis
type Result struct {
	ID      string           `json:"id"`
	Record  domain.LogRecord `json:"record"`
	Verdict domain.Verdict   `json:"verdict"`
	Message string           `json:"message"`
	// PersistErr is set when the verdict was obtained but not logged
	PersistErr error `json:"-"`
}

// Persisted reports whether the record reached the log store
func (r *Result) Persisted() bool {
	return r.PersistErr == nil
}

// Analyzer runs the encode -> classify -> log pipeline
type Analyzer struct {
	classifier Classifier
	logs       LogStore
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// New creates an Analyzer. m and logger may be nil.
func New(c Classifier, logs LogStore, m *metrics.Metrics, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{classifier: c, logs: logs, metrics: m, logger: logger}
}

// Analyze classifies a selection and appends it to the log.
// A failed append is reported on the Result, not as an error.
func (a *Analyzer) Analyze(ctx context.Context, sel domain.Selection) (*Result, error) {
	id := uuid.New().String()
	log := a.logger.With(zap.String("analysis", id))

	vec, err := codec.EncodeSelection(sel)
	if err != nil {
		a.countFailure("unknown_label")
		log.Info("rejected selection", zap.Error(err))
		return nil, err
	}

	start := time.Now()
	verdict, err := a.classifier.Classify(ctx, vec)
	if a.metrics != nil {
		a.metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		a.countFailure(failureKind(err))
		log.Warn("classification failed", zap.Any("vector", vec), zap.Error(err))
		return nil, err
	}

	rec := domain.LogRecord{Selection: sel, Result: verdict}
	res := &Result{ID: id, Record: rec, Verdict: verdict, Message: Affirmation(verdict)}
	if a.metrics != nil {
		a.metrics.Analyses.WithLabelValues(verdict.String()).Inc()
	}

	if err := a.logs.Append(ctx, rec); err != nil {
		res.PersistErr = err
		a.countPersistence("append")
		log.Error("failed to log classification", zap.Error(err))
	}

	log.Info("classified specimen",
		zap.String("verdict", verdict.String()),
		zap.Bool("persisted", res.Persisted()))
	return res, nil
}

// Records returns every logged classification
func (a *Analyzer) Records(ctx context.Context) ([]domain.LogRecord, error) {
	records, err := a.logs.ReadAll(ctx)
	if err != nil {
		a.countPersistence("read")
		return nil, err
	}
	return records, nil
}

// Statistics computes all views; stats.ErrNoData signals an empty log
func (a *Analyzer) Statistics(ctx context.Context) (*stats.Views, error) {
	records, err := a.Records(ctx)
	if err != nil {
		return nil, err
	}
	return stats.Compute(records)
}

// Reset empties the log
func (a *Analyzer) Reset(ctx context.Context) error {
	if err := a.logs.Clear(ctx); err != nil {
		a.countPersistence("clear")
		return err
	}
	a.logger.Warn("classification log cleared")
	return nil
}

func (a *Analyzer) countFailure(kind string) {
	if a.metrics != nil {
		a.metrics.InferenceFailures.WithLabelValues(kind).Inc()
	}
}

func (a *Analyzer) countPersistence(op string) {
	if a.metrics != nil {
		a.metrics.PersistenceFailures.WithLabelValues(op).Inc()
	}
}

func failureKind(err error) string {
	var te *inference.TransportError
	var mre *inference.MalformedResponseError
	switch {
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &mre):
		return "malformed_response"
	}
	return "other"
}

// Affirmation is the sentence shown under a verdict
func Affirmation(v domain.Verdict) string {
	if v == domain.Poisonous {
		return "Specimen is classified as hazardous. The chosen characteristics are strong indicators of toxicity."
	}
	return "Specimen is classified as safe. The combination aligns with known edible mushroom patterns."
}

// UserMessage translates a pipeline error into text fit for display
func UserMessage(err error) string {
	var ule *codec.UnknownLabelError
	var te *inference.TransportError
	var mre *inference.MalformedResponseError
	var pe *store.PersistenceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ule):
		return "Unknown " + ule.Category.Title() + " value: " + ule.Label
	case errors.As(err, &te):
		return "Could not reach the classification service. Please try again."
	case errors.As(err, &mre):
		return "Could not interpret the model response."
	case errors.As(err, &pe):
		return "The analysis log is unavailable."
	case errors.Is(err, stats.ErrNoData):
		return "The database is currently empty. Run an analysis to generate stats."
	}
	return "Unexpected error."
}
