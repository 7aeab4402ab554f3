package classifier

import (
	"fmt"
	"sort"
)

// LabelEncoder is an immutable bidirectional mapping between class
// labels and their indices in sorted label order.  It is built once at
// fit time and never mutated.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// newLabelEncoder builds an encoder from the distinct labels in the
// given collection.
func newLabelEncoder(labels []string) *LabelEncoder {

	seen := make(map[string]bool)
	var classes []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			classes = append(classes, l)
		}
	}
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	return &LabelEncoder{classes: classes, index: index}
}

// Len returns the number of classes.
func (e *LabelEncoder) Len() int { return len(e.classes) }

// Classes returns a copy of the sorted class vocabulary.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Index returns the class index for a label.
func (e *LabelEncoder) Index(label string) (int, error) {

	i, ok := e.index[label]
	if !ok {
		return 0, fmt.Errorf("%w: unknown label %q", ErrConfig, label)
	}

	return i, nil
}

// Label returns the label at a class index.
func (e *LabelEncoder) Label(i int) string { return e.classes[i] }

// Transform encodes a label collection to class indices.
func (e *LabelEncoder) Transform(labels []string) ([]int, error) {

	out := make([]int, len(labels))
	for i, l := range labels {
		idx, err := e.Index(l)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}

	return out, nil
}

// Inverse decodes class indices back to labels.
func (e *LabelEncoder) Inverse(indices []int) []string {

	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = e.classes[idx]
	}

	return out
}
