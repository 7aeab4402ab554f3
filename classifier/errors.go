package classifier

import "errors"

var (
	// ErrNotFitted indicates use of a classifier before a successful Fit.
	ErrNotFitted = errors.New("classifier: not fitted")

	// ErrConfig indicates an invalid hyper-parameter, prior, label or
	// parallelism setting.
	ErrConfig = errors.New("classifier: invalid configuration")

	// ErrModel indicates an unusable entry in the model collection
	// passed to an ensemble fit.
	ErrModel = errors.New("classifier: invalid model")
)
