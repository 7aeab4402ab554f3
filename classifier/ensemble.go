// Package classifier provides two sequence classifiers over a shared
// validation and metrics layer: an ensemble of per-class generative
// models scored with a maximum-a-posteriori decision rule, and a
// k-nearest-neighbor classifier under elastic time-alignment distance.
package classifier

import (
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/schollz/progressbar"

	"github.com/eonu/tempora/seq"
)

// Ensemble classifies sequences with one fitted generative model per
// class: the predicted class maximizes the sequence log-likelihood
// plus the class log-prior.
type Ensemble struct {
	models []Model // sorted by label
	enc    *LabelEncoder
	logger *log.Logger
}

// NewEnsemble returns an unfitted ensemble classifier.
func NewEnsemble() *Ensemble { return &Ensemble{} }

// SetLogger directs non-fatal warnings to lg.  The default is standard
// error.
func (e *Ensemble) SetLogger(lg *log.Logger) { e.logger = lg }

func (e *Ensemble) warnf(format string, args ...interface{}) {
	if e.logger == nil {
		e.logger = log.New(os.Stderr, "", log.Ltime)
	}
	e.logger.Printf(format, args...)
}

// Fit attaches a non-empty collection of already-trained models, one
// per class, and builds the label encoding from their sorted labels.
func (e *Ensemble) Fit(models []Model) error {

	if len(models) == 0 {
		return fmt.Errorf("%w: the ensemble must be fitted with at least one model", ErrConfig)
	}

	labels := make([]string, len(models))
	for i, m := range models {
		if m == nil {
			return fmt.Errorf("%w: model %d is nil", ErrModel, i)
		}
		labels[i] = m.Label()
	}

	enc := newLabelEncoder(labels)
	if enc.Len() != len(models) {
		return fmt.Errorf("%w: duplicate model labels", ErrConfig)
	}

	sorted := append([]Model(nil), models...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Label() < sorted[j].Label() })

	e.models = sorted
	e.enc = enc

	return nil
}

// Encoder returns the fitted label encoder.
func (e *Ensemble) Encoder() (*LabelEncoder, error) {

	if e.enc == nil {
		return nil, ErrNotFitted
	}

	return e.enc, nil
}

// PredictOptions configures a batch prediction.
type PredictOptions struct {
	// Prior selects the class priors; the zero value is Frequency().
	Prior Prior

	// Workers is the number of contiguous chunks the batch is split
	// into, each scored in its own goroutine.  Values below 2 mean
	// serial; values above the batch size are clamped to it.
	Workers int

	// Progress renders an advisory progress bar.  It is disabled with
	// a warning when more than one worker is in use, since the bars
	// cannot render coherently across workers.
	Progress bool
}

// scoreOne fills scores with the unnormalized log-posterior of each
// class for a single sequence.
func (e *Ensemble) scoreOne(x seq.Sequence, logp, scores []float64) error {

	for c, m := range e.models {
		ll, err := m.LogLikelihood(x)
		if err != nil {
			return err
		}
		scores[c] = ll + logp[c]
	}

	return nil
}

// argmaxScore resolves ties deterministically: scanning ascending
// class index with a strict comparison keeps the lowest index among
// equal posteriors.
func argmaxScore(scores []float64) int {

	best := 0
	for c := 1; c < len(scores); c++ {
		if scores[c] > scores[best] {
			best = c
		}
	}

	return best
}

// PredictOne classifies a single sequence, returning the predicted
// label and the per-class score vector.  Parallelism never applies to
// a single sequence; a request for it is warned about and ignored.
func (e *Ensemble) PredictOne(x seq.Sequence, opts PredictOptions) (string, []float64, error) {

	if e.enc == nil {
		return "", nil, ErrNotFitted
	}
	if opts.Workers > 1 {
		e.warnf("single predictions are not parallelized; ignoring workers=%d", opts.Workers)
	}

	logp, err := opts.Prior.logPriors(e.models)
	if err != nil {
		return "", nil, err
	}

	scores := make([]float64, len(e.models))
	if err := e.scoreOne(x, logp, scores); err != nil {
		return "", nil, err
	}

	return e.enc.Label(argmaxScore(scores)), scores, nil
}

// PredictIndices classifies a batch, returning encoded class indices
// and the per-sequence score matrix.
func (e *Ensemble) PredictIndices(X []seq.Sequence, opts PredictOptions) ([]int, [][]float64, error) {

	if e.enc == nil {
		return nil, nil, ErrNotFitted
	}
	if _, err := seq.Check(X); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	logp, err := opts.Prior.logPriors(e.models)
	if err != nil {
		return nil, nil, err
	}

	workers := clampWorkers(opts.Workers, len(X))
	progress := opts.Progress
	if progress && workers > 1 {
		e.warnf("progress display is disabled when predicting with multiple workers")
		progress = false
	}

	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.New(len(X))
	}

	labels := make([]int, len(X))
	scores := make([][]float64, len(X))

	err = runChunks(len(X), workers, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			sc := make([]float64, len(e.models))
			if err := e.scoreOne(X[i], logp, sc); err != nil {
				return err
			}
			scores[i] = sc
			labels[i] = argmaxScore(sc)
			if bar != nil {
				_ = bar.Add(1)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return labels, scores, nil
}

// Predict classifies a batch, returning the original labels and the
// per-sequence score matrix.
func (e *Ensemble) Predict(X []seq.Sequence, opts PredictOptions) ([]string, [][]float64, error) {

	idx, scores, err := e.PredictIndices(X, opts)
	if err != nil {
		return nil, nil, err
	}

	return e.enc.Inverse(idx), scores, nil
}

// Evaluate predicts a labeled batch and returns the categorical
// accuracy together with the confusion matrix (rows true, columns
// predicted, in encoder class order).
func (e *Ensemble) Evaluate(X []seq.Sequence, y []string, opts PredictOptions) (float64, [][]int, error) {

	if e.enc == nil {
		return 0, nil, ErrNotFitted
	}
	if _, err := seq.CheckDataset(X, y); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	yTrue, err := e.enc.Transform(y)
	if err != nil {
		return 0, nil, err
	}
	yPred, _, err := e.PredictIndices(X, opts)
	if err != nil {
		return 0, nil, err
	}

	cm := confusionMatrix(yTrue, yPred, e.enc.Len())

	return accuracy(cm), cm, nil
}
