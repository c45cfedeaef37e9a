package learning

import (
	"encoding/json"
	"strings"
)

// StarsForAccuracy converts a quiz accuracy in [0,1] to stars:
// 100% -> 3, >= 60% -> 2, >= 45% -> 1, else 0.
func StarsForAccuracy(accuracy float64) int {
	switch {
	case accuracy >= 1:
		return 3
	case accuracy >= 0.6:
		return 2
	case accuracy >= 0.45:
		return 1
	default:
		return 0
	}
}

// GradeAttempt grades answers (keyed by step ID) against the quiz steps of a lesson.
// Teach and speak steps are not graded. A lesson without quiz steps scores 100%.
func GradeAttempt(steps []Step, answers map[int64]string) (correct, total int, accuracy float64) {
	for _, step := range steps {
		if !step.Type.IsQuiz() {
			continue
		}
		total++

		var quiz QuizContent
		if err := json.Unmarshal(step.Content, &quiz); err != nil {
			continue
		}
		if answer, ok := answers[step.ID]; ok && quiz.CorrectAnswer != "" && strings.TrimSpace(answer) == quiz.CorrectAnswer {
			correct++
		}
	}
	if total == 0 {
		return 0, 0, 1
	}
	return correct, total, float64(correct) / float64(total)
}
