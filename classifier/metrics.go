package classifier

// confusionMatrix counts (true, predicted) pairs over m classes.
// Rows are true classes, columns predicted, in encoder class order.
func confusionMatrix(yTrue, yPred []int, m int) [][]int {

	cm := make([][]int, m)
	for i := range cm {
		cm[i] = make([]int, m)
	}
	for i := range yTrue {
		cm[yTrue[i]][yPred[i]]++
	}

	return cm
}

// accuracy is the trace of the confusion matrix over its total count.
func accuracy(cm [][]int) float64 {

	var diag, total int
	for i, row := range cm {
		for j, c := range row {
			total += c
			if i == j {
				diag += c
			}
		}
	}
	if total == 0 {
		return 0
	}

	return float64(diag) / float64(total)
}
