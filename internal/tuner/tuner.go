// Package tuner runs the sequential Bayesian optimization loop.
//
// Each call to Step is one external iteration: the caller reports the
// quality of the parameters it last applied, the loop records that
// observation and answers with the next parameters to try. All state
// lives in the Store, so consecutive steps may run in different
// processes.
package tuner

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand"
	randv2 "math/rand/v2"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/bayestune/internal/acquisition"
	"github.com/cwbudde/bayestune/internal/events"
	"github.com/cwbudde/bayestune/internal/gp"
	"github.com/cwbudde/bayestune/internal/metrics"
	"github.com/cwbudde/bayestune/internal/objective"
	"github.com/cwbudde/bayestune/internal/opt"
	"github.com/cwbudde/bayestune/internal/scale"
	"github.com/cwbudde/bayestune/internal/space"
	"github.com/cwbudde/bayestune/internal/store"
)

// State is the loop phase a session is in.
type State string

const (
	// StateInsufficientData picks candidates at random
	StateInsufficientData State = "INSUFFICIENT_DATA"
	// StateModeling fits the surrogate and maximizes the acquisition function
	StateModeling State = "MODELING"
	// StateExhausted means the iteration budget is spent
	StateExhausted State = "EXHAUSTED"
)

// Input is what the caller reports on each step.
type Input struct {
	// X are the parameter values that produced the quality signals
	X []float64 `json:"x"`

	// Manual ratings, Auto deviation percentages; at least one is required
	Manual []float64 `json:"manual,omitempty"`
	Auto   []float64 `json:"auto,omitempty"`

	// Evaluation adds deviations derived from raw results to Manual and Auto
	Evaluation *objective.Evaluation `json:"evaluation,omitempty"`
}

// signals merges the evaluation-derived deviations into the reported ones.
func (in Input) signals() (manual, auto []float64, err error) {
	em, ea, err := in.Evaluation.Signals()
	if err != nil {
		return nil, nil, &InputError{Field: "evaluation", Reason: err.Error()}
	}
	manual = append(slices.Clone(in.Manual), em...)
	auto = append(slices.Clone(in.Auto), ea...)
	return manual, auto, nil
}

// Result is the outcome of one step.
type Result struct {
	SessionID string `json:"sessionId"`
	State     State  `json:"state"`

	// Done is set once the budget is exhausted. Params then holds the best
	// observed parameters and no further optimization will happen.
	Done bool `json:"done"`

	// Params are the next parameters to apply, or the best ones when Done
	Params []float64 `json:"params"`
	Names  []string  `json:"names"`

	// Iteration is the number of stored observations after this step
	Iteration     int `json:"iteration"`
	MaxIterations int `json:"maxIterations"`

	// Y is the objective recorded by this step; nil when Done
	Y *float64 `json:"y,omitempty"`

	Best *store.Observation `json:"best,omitempty"`

	UsedModel      bool       `json:"usedModel"`
	Model          *gp.Params `json:"model,omitempty"`
	FallbackReason string     `json:"fallbackReason,omitempty"`

	Candidates int  `json:"candidates"`
	Sampled    bool `json:"sampled"`
}

// Status is a read-only view of a session.
type Status struct {
	SessionID     string             `json:"sessionId"`
	State         State              `json:"state"`
	Observations  int                `json:"observations"`
	MaxIterations int                `json:"maxIterations"`
	Space         string             `json:"space"`
	SpaceMatches  bool               `json:"spaceMatches"`
	Best          *store.Observation `json:"best,omitempty"`
}

// Tuner drives optimization sessions over one parameter space.
type Tuner struct {
	cfg         Config
	store       store.Store
	fingerprint string

	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher events.Publisher
	now       func() time.Time
}

// Option customizes a Tuner.
type Option func(*Tuner)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tuner) { t.logger = l }
}

// WithMetrics records loop activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tuner) { t.metrics = m }
}

// WithPublisher emits session events through p.
func WithPublisher(p events.Publisher) Option {
	return func(t *Tuner) { t.publisher = p }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tuner) { t.now = now }
}

// New validates cfg and returns a Tuner backed by st.
func New(cfg Config, st store.Store, opts ...Option) (*Tuner, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("tuner: store is required")
	}

	t := &Tuner{
		cfg:         cfg,
		store:       st,
		fingerprint: cfg.Space.Fingerprint(),
		logger:      slog.Default(),
		publisher:   events.Nop{},
		now:         time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.publisher == nil {
		t.publisher = events.Nop{}
	}
	return t, nil
}

// Config returns the effective configuration.
func (t *Tuner) Config() Config {
	return t.cfg
}

// Fingerprint identifies the parameter space of this tuner.
func (t *Tuner) Fingerprint() string {
	return t.fingerprint
}

// Step records the quality of in.X and returns the next parameters.
func (t *Tuner) Step(ctx context.Context, sessionID string, in Input) (*Result, error) {
	start := time.Now()
	logger := t.logger.With("session", sessionID)

	if err := store.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if err := t.checkInput(in); err != nil {
		return nil, err
	}
	manual, auto, err := in.signals()
	if err != nil {
		return nil, err
	}

	unlock, err := t.store.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	history, err := t.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if err := t.checkSpace(sessionID, history); err != nil {
		return nil, err
	}

	n := len(history)
	if n >= t.cfg.MaxIterations {
		res := t.exhausted(sessionID, history)
		logger.Info("Iteration budget exhausted", "observations", n, "bestY", res.Best.Y)
		t.metrics.ObserveStep(string(res.State), time.Since(start), n)
		t.publish(ctx, events.KindDone, res, nil)
		return res, nil
	}

	y, err := t.cfg.Weights.Combine(manual, auto)
	if err != nil {
		if errors.Is(err, objective.ErrNoQualitySignal) {
			return nil, err
		}
		return nil, &InputError{Field: "quality", Reason: err.Error()}
	}

	// Deterministic per session and iteration when a seed is configured
	seed := t.seedFor(sessionID, n)
	rng := rand.New(rand.NewSource(seed))

	candidates, err := space.BuildGrid(t.cfg.Space, t.cfg.CandidateCap, randv2.NewPCG(uint64(seed), uint64(n)))
	if err != nil {
		return nil, err
	}

	obs := store.Observation{
		X:          slices.Clone(in.X),
		Y:          y,
		Space:      t.fingerprint,
		Manual:     manual,
		Auto:       auto,
		RecordedAt: t.now().UTC(),
	}
	if err := t.store.Append(ctx, sessionID, obs); err != nil {
		return nil, fmt.Errorf("append observation: %w", err)
	}
	history = append(history, obs)

	stats := scale.Fit(candidates.Matrix)
	zCandidates, err := stats.Transform(candidates.Matrix)
	if err != nil {
		return nil, err
	}
	zHistory, err := stats.Transform(historyMatrix(history))
	if err != nil {
		return nil, err
	}

	res := &Result{
		SessionID:     sessionID,
		Names:         t.cfg.Space.Names(),
		Iteration:     n + 1,
		MaxIterations: t.cfg.MaxIterations,
		Y:             &y,
		Candidates:    candidates.Len(),
		Sampled:       candidates.Sampled,
	}

	var idx int
	if n <= t.cfg.OffsetThreshold {
		res.State = StateInsufficientData
		idx = rng.Intn(candidates.Len())
	} else {
		res.State = StateModeling
		sel, params, err := t.suggest(zHistory, historyTargets(history), zCandidates, rng)
		if err != nil {
			// The loop must always make progress; a failed fit degrades to random search
			logger.Warn("Model fit failed, selecting random candidate", "error", err, "observations", n+1)
			t.metrics.ObserveFallback()
			res.FallbackReason = err.Error()
			idx = rng.Intn(candidates.Len())
		} else {
			res.UsedModel = true
			res.Model = &params
			idx = sel.Index
			logger.Debug("Candidate selected", "index", idx, "score", sel.Score, "ties", sel.Ties)
		}
	}

	next, err := stats.InverseVec(mat.Row(nil, idx, zCandidates))
	if err != nil {
		return nil, err
	}
	res.Params = t.cfg.Space.Round(next, t.cfg.RoundDecimals)

	if b := store.BestIndex(history); b >= 0 {
		best := history[b]
		res.Best = &best
	}

	logger.Info("Step completed",
		"state", res.State,
		"iteration", res.Iteration,
		"y", y,
		"next", res.Params,
		"usedModel", res.UsedModel,
	)
	t.metrics.ObserveStep(string(res.State), time.Since(start), res.Iteration)
	t.publish(ctx, events.KindSuggested, res, &y)
	return res, nil
}

// suggest fits the surrogate on standardized history and maximizes the
// acquisition function over the standardized candidates.
func (t *Tuner) suggest(zHistory *mat.Dense, y []float64, zCandidates *mat.Dense, rng *rand.Rand) (acquisition.Selection, gp.Params, error) {
	params := t.cfg.GP
	if t.cfg.Tune.Enabled {
		optimizer := opt.NewMayfly(t.cfg.Tune.Iterations, t.cfg.Tune.Population, rng.Int63())
		tuned, lml, err := opt.TuneGP(zHistory, y, params, optimizer, opt.DefaultTuneBounds())
		if err != nil {
			t.logger.Warn("Hyperparameter tuning failed, using configured values", "error", err)
		} else {
			t.logger.Debug("Hyperparameters tuned", "lengthScale", tuned.LengthScale, "alpha", tuned.Alpha, "lml", lml)
			params = tuned
		}
	}

	model := gp.New(params)
	if err := model.Fit(zHistory, y); err != nil {
		return acquisition.Selection{}, params, err
	}
	sel, err := acquisition.Select(model, zHistory, zCandidates, t.cfg.Strategy, rng)
	if err != nil {
		return acquisition.Selection{}, params, err
	}
	return sel, params, nil
}

// exhausted builds the terminal result reporting the best observation.
func (t *Tuner) exhausted(sessionID string, history []store.Observation) *Result {
	res := &Result{
		SessionID:     sessionID,
		State:         StateExhausted,
		Done:          true,
		Names:         t.cfg.Space.Names(),
		Iteration:     len(history),
		MaxIterations: t.cfg.MaxIterations,
	}
	if b := store.BestIndex(history); b >= 0 {
		best := history[b]
		res.Best = &best
		res.Params = slices.Clone(best.X)
	}
	return res
}

// Status reports the session state without modifying it.
func (t *Tuner) Status(ctx context.Context, sessionID string) (*Status, error) {
	history, err := t.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	st := &Status{
		SessionID:     sessionID,
		Observations:  len(history),
		MaxIterations: t.cfg.MaxIterations,
		Space:         t.fingerprint,
		SpaceMatches:  t.checkSpace(sessionID, history) == nil,
		State:         t.stateFor(len(history)),
	}
	if b := store.BestIndex(history); b >= 0 {
		best := history[b]
		st.Best = &best
	}
	return st, nil
}

// History returns the stored observations of a session.
func (t *Tuner) History(ctx context.Context, sessionID string) ([]store.Observation, error) {
	return t.store.Load(ctx, sessionID)
}

// Reset deletes the session history. Resetting a session without history
// returns store.ErrNotFound.
func (t *Tuner) Reset(ctx context.Context, sessionID string) error {
	unlock, err := t.store.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	if err := t.store.Clear(ctx, sessionID); err != nil {
		return err
	}

	t.logger.Info("Session reset", "session", sessionID)
	t.metrics.ObserveReset()
	t.publish(ctx, events.KindReset, &Result{SessionID: sessionID}, nil)
	return nil
}

// stateFor is the state the next Step on a history of length n enters.
func (t *Tuner) stateFor(n int) State {
	switch {
	case n >= t.cfg.MaxIterations:
		return StateExhausted
	case n <= t.cfg.OffsetThreshold:
		return StateInsufficientData
	default:
		return StateModeling
	}
}

func (t *Tuner) checkInput(in Input) error {
	if len(in.X) != t.cfg.Space.Dim() {
		return &DimensionMismatchError{Got: len(in.X), Want: t.cfg.Space.Dim()}
	}
	for i, v := range in.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InputError{Field: "x", Reason: fmt.Sprintf("component %d is not finite", i)}
		}
	}
	return nil
}

func (t *Tuner) checkSpace(sessionID string, history []store.Observation) error {
	for _, o := range history {
		if o.Space != t.fingerprint {
			return &SpaceMismatchError{SessionID: sessionID, Stored: o.Space, Current: t.fingerprint}
		}
	}
	return nil
}

// seedFor returns the random seed for one step. A zero configured seed
// draws fresh randomness every call.
func (t *Tuner) seedFor(sessionID string, n int) int64 {
	if t.cfg.Seed == 0 {
		return time.Now().UnixNano()
	}
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	mix := h.Sum64() ^ uint64(n+1)*0x9E3779B97F4A7C15
	return t.cfg.Seed ^ int64(mix)
}

func (t *Tuner) publish(ctx context.Context, kind string, res *Result, y *float64) {
	e := events.Event{
		Kind:      kind,
		SessionID: res.SessionID,
		Iteration: res.Iteration,
		State:     string(res.State),
		Params:    res.Params,
		Y:         y,
		Timestamp: t.now().UTC(),
	}
	if err := t.publisher.Publish(ctx, e); err != nil {
		t.logger.Warn("Failed to publish event", "session", res.SessionID, "kind", kind, "error", err)
	}
}

func historyMatrix(history []store.Observation) *mat.Dense {
	dim := len(history[0].X)
	data := make([]float64, 0, len(history)*dim)
	for _, o := range history {
		data = append(data, o.X...)
	}
	return mat.NewDense(len(history), dim, data)
}

func historyTargets(history []store.Observation) []float64 {
	y := make([]float64, len(history))
	for i, o := range history {
		y[i] = o.Y
	}
	return y
}

// IsConfigError reports errors caused by configuration or caller input,
// as opposed to storage failures.
func IsConfigError(err error) bool {
	return errors.Is(err, space.ErrInvalidParameterRange) ||
		errors.Is(err, objective.ErrNoQualitySignal) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrInvalidInput)
}
