package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

const decisionThreshold = 0.5

// AUCScore is the area under the ROC curve of scores against binary labels.
func AUCScore(labels, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, fmt.Errorf("%d labels for %d scores", len(labels), len(scores))
	}

	y := append([]float64(nil), scores...)
	classes := make([]bool, len(labels))
	positives := 0
	for i, label := range labels {
		classes[i] = label == 1
		if classes[i] {
			positives++
		}
	}
	if positives == 0 || positives == len(labels) {
		return 0, fmt.Errorf("AUC is undefined when only one class is present")
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// Classify turns scores into 0/1 predictions at the decision threshold.
func Classify(scores []float64) []float64 {
	predicted := make([]float64, len(scores))
	for i, score := range scores {
		if score > decisionThreshold {
			predicted[i] = 1
		}
	}
	return predicted
}

func AccuracyScore(labels, predicted []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	correct := 0
	for i := range labels {
		if labels[i] == predicted[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}

// NewClassificationReport computes per-class precision, recall and F1 for the
// classes 0 and 1, plus their macro and support-weighted averages.
func NewClassificationReport(labels, predicted []float64) *model.ClassificationReport {
	report := &model.ClassificationReport{
		Classes:  make(map[string]model.ClassMetrics),
		Accuracy: AccuracyScore(labels, predicted),
	}

	total := len(labels)
	for _, class := range []float64{0, 1} {
		var tp, fp, fn, support int
		for i := range labels {
			isActual := labels[i] == class
			isPredicted := predicted[i] == class
			switch {
			case isActual && isPredicted:
				tp++
			case isPredicted:
				fp++
			case isActual:
				fn++
			}
			if isActual {
				support++
			}
		}

		metrics := model.ClassMetrics{
			Precision: ratio(tp, tp+fp),
			Recall:    ratio(tp, tp+fn),
			Support:   support,
		}
		if metrics.Precision+metrics.Recall > 0 {
			metrics.F1Score = 2 * metrics.Precision * metrics.Recall / (metrics.Precision + metrics.Recall)
		}
		report.Classes[fmt.Sprintf("%d", int(class))] = metrics

		report.MacroAvg.Precision += metrics.Precision / 2
		report.MacroAvg.Recall += metrics.Recall / 2
		report.MacroAvg.F1Score += metrics.F1Score / 2

		if total > 0 {
			weight := float64(support) / float64(total)
			report.WeightedAvg.Precision += metrics.Precision * weight
			report.WeightedAvg.Recall += metrics.Recall * weight
			report.WeightedAvg.F1Score += metrics.F1Score * weight
		}
	}
	report.MacroAvg.Support = total
	report.WeightedAvg.Support = total

	return report
}

// ratio returns 0 for an empty denominator.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func evaluate(labels, scores []float64) (*model.TrainingResult, error) {
	auc, err := AUCScore(labels, scores)
	if err != nil {
		return nil, err
	}
	predicted := Classify(scores)

	return &model.TrainingResult{
		AUCScore:             auc,
		AccuracyScore:        AccuracyScore(labels, predicted),
		ClassificationReport: NewClassificationReport(labels, predicted),
	}, nil
}
