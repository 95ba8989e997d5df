package domain

import "fmt"

// Stage — этап конвейера анализа.
//
// Конвейер имеет фиксированный порядок этапов. Каждый run запрашивает
// произвольное подмножество этапов (через JobConfigs), но выполняются
// они всегда в этом порядке, строго по одному.
type Stage string

const (
	// StageAnalyzer — разбор зависимостей проекта.
	StageAnalyzer Stage = "analyzer"

	// StageAdvisor — проверка зависимостей по базам уязвимостей.
	StageAdvisor Stage = "advisor"

	// StageScanner — сканирование исходников и лицензий.
	StageScanner Stage = "scanner"

	// StageEvaluator — применение правил (политик) к результатам.
	StageEvaluator Stage = "evaluator"

	// StageReporter — генерация отчётов.
	StageReporter Stage = "reporter"

	// StageNotifier — рассылка уведомлений о результатах.
	StageNotifier Stage = "notifier"
)

// StageOrder — фиксированный порядок этапов конвейера.
var StageOrder = []Stage{
	StageAnalyzer,
	StageAdvisor,
	StageScanner,
	StageEvaluator,
	StageReporter,
	StageNotifier,
}

// Valid возвращает true, если этап известен конвейеру.
func (s Stage) Valid() bool {
	for _, known := range StageOrder {
		if s == known {
			return true
		}
	}
	return false
}

// String возвращает строковое представление Stage.
func (s Stage) String() string {
	return string(s)
}

// ParseStage парсит строку в Stage.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if !stage.Valid() {
		return "", fmt.Errorf("unknown stage: %q", s)
	}
	return stage, nil
}
