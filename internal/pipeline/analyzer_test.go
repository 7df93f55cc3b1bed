package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/mushroom/internal/codec"
	"github.com/pbaille/mushroom/internal/domain"
	"github.com/pbaille/mushroom/internal/inference"
	"github.com/pbaille/mushroom/internal/metrics"
	"github.com/pbaille/mushroom/internal/scoring"
	"github.com/pbaille/mushroom/internal/stats"
	"github.com/pbaille/mushroom/internal/store"
)

var almond = domain.Selection{
	Odor: "Almond", SporePrintColor: "Brown", GillColor: "White",
	RingType: "Pendant", StalkSurfaceAboveRing: "Smooth",
}

// fixedPredictor answers every row with the same label and remembers what it saw
type fixedPredictor struct {
	label string
	mu    sync.Mutex
	rows  [][]float64
}

func (p *fixedPredictor) seen() [][]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rows
}

func (p *fixedPredictor) Predict(rows [][]float64) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows = append(p.rows, rows...)
	out := make([]string, len(rows))
	for i := range out {
		out[i] = p.label
	}
	return out, nil
}

type env struct {
	analyzer  *Analyzer
	store     *store.Store
	metrics   *metrics.Metrics
	predictor *fixedPredictor
}

func setup(t *testing.T, label string) *env {
	t.Helper()
	p := &fixedPredictor{label: label}
	srv := httptest.NewServer(scoring.NewHandler(p, "key", nil))
	t.Cleanup(srv.Close)

	client, err := inference.New(inference.Config{Endpoint: srv.URL, APIKey: "key", StrictCardinality: true},
		inference.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	s, err := store.New(filepath.Join(t.TempDir(), "logs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m := metrics.New()
	return &env{analyzer: New(client, s, m, nil), store: s, metrics: m, predictor: p}
}

func TestAnalyzeEdibleEndToEnd(t *testing.T) {
	e := setup(t, "e")
	ctx := context.Background()

	res, err := e.analyzer.Analyze(ctx, almond)
	require.NoError(t, err)
	assert.Equal(t, domain.Edible, res.Verdict)
	assert.Equal(t, "EDIBLE", res.Verdict.String())
	assert.True(t, res.Persisted())
	assert.NotEmpty(t, res.ID)
	assert.Contains(t, res.Message, "safe")

	assert.Equal(t, [][]float64{{0, 3, 10, 4, 2}}, e.predictor.seen())

	records, err := e.store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.LogRecord{{Selection: almond, Result: domain.Edible}}, records)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Analyses.WithLabelValues("EDIBLE")))
}

func TestAnalyzePoisonousEndToEnd(t *testing.T) {
	e := setup(t, "p")
	ctx := context.Background()

	res, err := e.analyzer.Analyze(ctx, almond)
	require.NoError(t, err)
	assert.Equal(t, domain.Poisonous, res.Verdict)
	assert.Contains(t, res.Message, "hazardous")

	records, err := e.analyzer.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.Poisonous, records[0].Result)
}

func TestAnalyzeUnknownLabelSkipsRemoteCall(t *testing.T) {
	e := setup(t, "e")
	sel := almond
	sel.Odor = "Garlic"

	_, err := e.analyzer.Analyze(context.Background(), sel)
	assert.ErrorIs(t, err, codec.ErrUnknownLabel)
	assert.Empty(t, e.predictor.seen())
	assert.Equal(t, "Unknown Odor value: Garlic", UserMessage(err))
}

func TestAnalyzeMalformedResponseIsNotLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error": "bad input"}`)
	}))
	defer srv.Close()
	client, err := inference.New(inference.Config{Endpoint: srv.URL, APIKey: "k"}, inference.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	s, err := store.New(filepath.Join(t.TempDir(), "logs.db"))
	require.NoError(t, err)
	defer s.Close()
	m := metrics.New()
	a := New(client, s, m, nil)

	_, err = a.Analyze(context.Background(), almond)
	var mre *inference.MalformedResponseError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, "Could not interpret the model response.", UserMessage(err))

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InferenceFailures.WithLabelValues("malformed_response")))
}

type stubClassifier struct {
	verdict domain.Verdict
	err     error
}

func (c stubClassifier) Classify(context.Context, domain.FeatureVector) (domain.Verdict, error) {
	return c.verdict, c.err
}

type brokenStore struct{}

func (brokenStore) Append(context.Context, domain.LogRecord) error {
	return &store.PersistenceError{Op: "insert log", Err: errors.New("disk I/O error")}
}

func (brokenStore) ReadAll(context.Context) ([]domain.LogRecord, error) {
	return nil, &store.PersistenceError{Op: "read logs", Err: errors.New("disk I/O error")}
}

func (brokenStore) Clear(context.Context) error {
	return &store.PersistenceError{Op: "clear logs", Err: errors.New("disk I/O error")}
}

func TestPersistenceFailureKeepsVerdict(t *testing.T) {
	m := metrics.New()
	a := New(stubClassifier{verdict: domain.Poisonous}, brokenStore{}, m, nil)

	res, err := a.Analyze(context.Background(), almond)
	require.NoError(t, err)
	assert.Equal(t, domain.Poisonous, res.Verdict)
	assert.False(t, res.Persisted())
	assert.Equal(t, "The analysis log is unavailable.", UserMessage(res.PersistErr))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistenceFailures.WithLabelValues("append")))

	_, err = a.Statistics(context.Background())
	var pe *store.PersistenceError
	assert.ErrorAs(t, err, &pe)
	assert.ErrorAs(t, a.Reset(context.Background()), &pe)
}

func TestTransportErrorMessage(t *testing.T) {
	a := New(stubClassifier{err: &inference.TransportError{Err: errors.New("connection refused")}}, brokenStore{}, nil, nil)
	_, err := a.Analyze(context.Background(), almond)
	assert.Equal(t, "Could not reach the classification service. Please try again.", UserMessage(err))
	assert.Equal(t, "Unexpected error.", UserMessage(fmt.Errorf("boom")))
	assert.Empty(t, UserMessage(nil))
}

func TestStatisticsAndReset(t *testing.T) {
	e := setup(t, "p")
	ctx := context.Background()

	_, err := e.analyzer.Statistics(ctx)
	require.ErrorIs(t, err, stats.ErrNoData)

	for i := 0; i < 3; i++ {
		_, err := e.analyzer.Analyze(ctx, almond)
		require.NoError(t, err)
	}

	views, err := e.analyzer.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, views.Total)
	assert.Equal(t, []stats.DensityCell{{Odor: "Almond", Verdict: domain.Poisonous, Count: 3}}, views.Density)

	require.NoError(t, e.analyzer.Reset(ctx))
	_, err = e.analyzer.Statistics(ctx)
	assert.ErrorIs(t, err, stats.ErrNoData)
}
