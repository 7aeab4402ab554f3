package classifier

import (
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/schollz/progressbar"
	"golang.org/x/exp/rand"

	"github.com/eonu/tempora/dtw"
	"github.com/eonu/tempora/seq"
)

// KNN is a k-nearest-neighbor sequence classifier under elastic
// time-alignment distance.  Fitting stores the validated reference
// set verbatim; prediction tallies the labels of the k nearest
// references and breaks modal ties uniformly at random.
type KNN struct {
	k      int
	radius int
	metric dtw.Metric
	seed   uint64
	logger *log.Logger

	// Reference set, immutable after Fit.
	refs   []seq.Sequence
	labels []string
	enc    *LabelEncoder
	dim    int

	progress bool
}

// KNNOption configures a KNN classifier at construction or load time.
type KNNOption func(*KNN)

// WithSeed seeds the randomized modal tie-break.
func WithSeed(seed uint64) KNNOption {
	return func(c *KNN) { c.seed = seed }
}

// WithMetric replaces the Euclidean frame metric inside the elastic
// distance.
func WithMetric(m dtw.Metric) KNNOption {
	return func(c *KNN) { c.metric = m }
}

// WithProgress renders an advisory progress bar during serial batch
// prediction.
func WithProgress() KNNOption {
	return func(c *KNN) { c.progress = true }
}

// NewKNN returns an unfitted classifier with k neighbors and the given
// band radius for the elastic distance.  Both are fixed for the life
// of the classifier.
func NewKNN(k, radius int, opts ...KNNOption) (*KNN, error) {

	if k < 1 {
		return nil, fmt.Errorf("%w: number of neighbors must be at least 1, got %d", ErrConfig, k)
	}
	if radius < 1 {
		return nil, fmt.Errorf("%w: radius must be at least 1, got %d", ErrConfig, radius)
	}

	c := &KNN{k: k, radius: radius, metric: dtw.Euclidean}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// K returns the neighbor count.
func (c *KNN) K() int { return c.k }

// Radius returns the elastic-distance band radius.
func (c *KNN) Radius() int { return c.radius }

// SetLogger directs non-fatal warnings to lg.  The default is standard
// error.
func (c *KNN) SetLogger(lg *log.Logger) { c.logger = lg }

func (c *KNN) warnf(format string, args ...interface{}) {
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "", log.Ltime)
	}
	c.logger.Printf(format, args...)
}

// Fit stores a copy of the validated reference sequences and labels.
func (c *KNN) Fit(X []seq.Sequence, y []string) error {

	dim, err := seq.CheckDataset(X, y)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if len(X) < c.k {
		return fmt.Errorf("%w: %d reference sequences cannot supply %d neighbors", ErrConfig, len(X), c.k)
	}

	refs := make([]seq.Sequence, len(X))
	for i, x := range X {
		refs[i] = x.Clone()
	}

	c.refs = refs
	c.labels = append([]string(nil), y...)
	c.enc = newLabelEncoder(y)
	c.dim = dim

	return nil
}

// Encoder returns the fitted label encoder.
func (c *KNN) Encoder() (*LabelEncoder, error) {

	if c.refs == nil {
		return nil, ErrNotFitted
	}

	return c.enc, nil
}

// neighbor pairs a reference index with its distance to the query.
type neighbor struct {
	dist float64
	idx  int
}

// nearest selects the k references nearest to x with a bounded buffer
// scanned in training order: a candidate displaces the current worst
// retained neighbor only on strict improvement, so distance ties at
// the k-th boundary resolve stably in favor of earlier references.
func (c *KNN) nearest(x seq.Sequence) ([]neighbor, error) {

	nbrs := make([]neighbor, 0, c.k+1)
	byDist := func(a, b int) bool { return nbrs[a].dist < nbrs[b].dist }

	for i, ref := range c.refs {
		d, err := dtw.Distance(x, ref, c.radius, c.metric)
		if err != nil {
			return nil, err
		}

		if len(nbrs) < c.k {
			nbrs = append(nbrs, neighbor{dist: d, idx: i})
			sort.SliceStable(nbrs, byDist)
		} else if d < nbrs[c.k-1].dist {
			nbrs[c.k-1] = neighbor{dist: d, idx: i}
			sort.SliceStable(nbrs, byDist)
		}
	}

	return nbrs, nil
}

// classify resolves a query to a class index.  The tie-break source is
// derived from the classifier seed and the query's batch position, so
// a batch prediction is a pure function of its inputs no matter how it
// is chunked across workers.
func (c *KNN) classify(x seq.Sequence, query int) (int, error) {

	nbrs, err := c.nearest(x)
	if err != nil {
		return 0, err
	}

	counts := make([]int, c.enc.Len())
	for _, nb := range nbrs {
		i, err := c.enc.Index(c.labels[nb.idx])
		if err != nil {
			return 0, err
		}
		counts[i]++
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	var modes []int
	for i, n := range counts {
		if n == max {
			modes = append(modes, i)
		}
	}
	if len(modes) == 1 {
		return modes[0], nil
	}

	rng := rand.New(rand.NewSource(c.seed + 0x9e3779b97f4a7c15*uint64(query+1)))

	return modes[rng.Intn(len(modes))], nil
}

// PredictOne classifies a single query sequence.  A single query is
// never parallelized.
func (c *KNN) PredictOne(x seq.Sequence) (string, error) {

	if c.refs == nil {
		return "", ErrNotFitted
	}
	if err := seq.CheckOne(x, c.dim); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfig, err)
	}

	idx, err := c.classify(x, 0)
	if err != nil {
		return "", err
	}

	return c.enc.Label(idx), nil
}

// PredictIndices classifies a batch of queries, returning encoded
// class indices.  The batch is split into workers contiguous chunks
// processed independently; outputs land at their original positions.
func (c *KNN) PredictIndices(X []seq.Sequence, workers int) ([]int, error) {

	if c.refs == nil {
		return nil, ErrNotFitted
	}
	qdim, err := seq.Check(X)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if qdim != c.dim {
		return nil, fmt.Errorf("%w: query dimensionality %d does not match reference dimensionality %d",
			ErrConfig, qdim, c.dim)
	}

	workers = clampWorkers(workers, len(X))
	progress := c.progress
	if progress && workers > 1 {
		c.warnf("progress display is disabled when predicting with multiple workers")
		progress = false
	}

	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.New(len(X))
	}

	out := make([]int, len(X))
	err = runChunks(len(X), workers, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			idx, err := c.classify(X[i], i)
			if err != nil {
				return err
			}
			out[i] = idx
			if bar != nil {
				_ = bar.Add(1)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Predict classifies a batch of queries, returning labels.
func (c *KNN) Predict(X []seq.Sequence, workers int) ([]string, error) {

	idx, err := c.PredictIndices(X, workers)
	if err != nil {
		return nil, err
	}

	return c.enc.Inverse(idx), nil
}

// Evaluate predicts a labeled batch and returns the categorical
// accuracy and confusion matrix, as the ensemble classifier does.
func (c *KNN) Evaluate(X []seq.Sequence, y []string, workers int) (float64, [][]int, error) {

	if c.refs == nil {
		return 0, nil, ErrNotFitted
	}
	if _, err := seq.CheckDataset(X, y); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	yTrue, err := c.enc.Transform(y)
	if err != nil {
		return 0, nil, err
	}
	yPred, err := c.PredictIndices(X, workers)
	if err != nil {
		return 0, nil, err
	}

	cm := confusionMatrix(yTrue, yPred, c.enc.Len())

	return accuracy(cm), cm, nil
}

// knnBlob is the persisted form of a fitted KNN classifier: the
// hyper-parameters plus the full reference set.  Labels are stored in
// the declared text encoding.
type knnBlob struct {
	K        int
	Radius   int
	Encoding string
	Refs     []seq.Sequence
	Labels   []string
}

// Save serializes the fitted classifier to a gzip-compressed gob file.
func (c *KNN) Save(fname string) error {

	if c.refs == nil {
		return ErrNotFitted
	}

	blob := knnBlob{
		K:        c.k,
		Radius:   c.radius,
		Encoding: labelEncoding,
		Refs:     c.refs,
		Labels:   c.labels,
	}

	return writeGob(fname, &blob)
}

// LoadKNN reconstructs a fitted KNN classifier from a file written by
// Save.  The frame metric is not serializable and may be re-supplied
// through options, as may the tie-break seed.
func LoadKNN(fname string, opts ...KNNOption) (*KNN, error) {

	var blob knnBlob
	if err := readGob(fname, &blob); err != nil {
		return nil, err
	}
	if blob.Encoding != labelEncoding {
		return nil, fmt.Errorf("%w: unsupported label encoding %q", ErrConfig, blob.Encoding)
	}

	c, err := NewKNN(blob.K, blob.Radius, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Fit(blob.Refs, blob.Labels); err != nil {
		return nil, err
	}

	return c, nil
}
