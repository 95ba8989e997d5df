package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conveyor/internal/configfile"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/worker"
)

// DefaultRuleSetPath — путь файла правил в репозитории конфигурации,
// когда конфигурация этапа не задаёт свой.
const DefaultRuleSetPath = "evaluator.rules.yml"

// ErrRuleCompile — часть правил не скомпилировалась. Сообщение
// перечисляет все проблемы сразу.
var ErrRuleCompile = errors.New("rule compilation failed")

// RuleSet — набор правил этапа evaluator.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Rule — одно правило: CEL-утверждение о фактах run. Ложный результат
// фиксируется как замечание с уровнем правила.
type Rule struct {
	// Name — имя правила; попадает в Source замечания.
	Name string `yaml:"name"`

	// Expression — CEL-выражение. Должно возвращать bool.
	Expression string `yaml:"expression"`

	// Message — текст замечания при нарушении.
	Message string `yaml:"message"`

	// Severity — уровень замечания. По умолчанию WARNING.
	Severity domain.Severity `yaml:"severity"`
}

// violationMessage возвращает текст замечания о нарушении правила.
func (r Rule) violationMessage() string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("rule %s violated", r.Name)
}

func (r Rule) severityOrDefault() domain.Severity {
	if r.Severity == "" {
		return domain.SeverityWarning
	}
	return r.Severity
}

// ParseRuleSet разбирает YAML-файл правил.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}
	for i, rule := range rs.Rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("rule set: rule %d requires a name", i)
		}
		if rule.Expression == "" {
			return nil, fmt.Errorf("rule set: rule %q requires an expression", rule.Name)
		}
	}
	return &rs, nil
}

// Evaluator — обработчик этапа evaluator: скачивает набор правил и
// проверяет CEL-утверждения на фактах run.
type Evaluator struct {
	env    *cel.Env
	logger *slog.Logger
}

// EvaluatorConfig — зависимости обработчика evaluator.
type EvaluatorConfig struct {
	Logger *slog.Logger
}

// NewEvaluator создаёт обработчик этапа evaluator. Окружение CEL
// собирается один раз и переиспользуется всеми run.
func NewEvaluator(cfg EvaluatorConfig) (*Evaluator, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	env, err := cel.NewEnv(
		ext.Strings(),
		ext.Math(),
		ext.Encoders(),
		ext.Sets(),
		cel.Variable("labels", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("issues", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("repository", cel.StringType),
		cel.Variable("revision", cel.StringType),
		cel.Variable("stages", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("setup cel env: %w", err)
	}

	return &Evaluator{env: env, logger: cfg.Logger}, nil
}

func (e *Evaluator) Stage() domain.Stage { return domain.StageEvaluator }

// Execute вычисляет правила на фактах run. Нарушенное правило и сбой
// вычисления становятся замечаниями; ошибкой этапа заканчивается только
// нечитаемый или некомпилируемый набор правил.
func (e *Evaluator) Execute(ctx context.Context, wc runctx.WorkerContext) (*worker.Result, error) {
	run := wc.Run()
	jobCfg := configsFor(run).Evaluator
	if jobCfg == nil {
		return nil, fmt.Errorf("%w: evaluator", ErrNotRequested)
	}

	path := jobCfg.RuleSet
	if path == "" {
		path = DefaultRuleSetPath
	}

	dir, err := wc.CreateTempDir()
	if err != nil {
		return nil, err
	}
	local, err := wc.DownloadConfigurationFile(ctx, path, dir, "")
	if err != nil {
		if errors.Is(err, configfile.ErrNotFound) {
			return &worker.Result{Issues: []domain.Issue{domain.NewIssue("evaluator",
				fmt.Sprintf("rule set %q not found, nothing to evaluate", path),
				domain.SeverityHint)}}, nil
		}
		return nil, err
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return nil, fmt.Errorf("read rule set: %w", err)
	}
	rules, err := ParseRuleSet(data)
	if err != nil {
		return nil, err
	}

	programs, err := e.compile(rules)
	if err != nil {
		return nil, err
	}

	facts := runFacts(run, wc.Hierarchy())
	var issues []domain.Issue
	for i, rule := range rules.Rules {
		out, _, err := programs[i].Eval(facts)
		if err != nil {
			issues = append(issues, domain.NewIssue(rule.Name,
				fmt.Sprintf("rule evaluation failed: %v", err), domain.SeverityError))
			continue
		}
		held, isBool := out.Value().(bool)
		if !isBool {
			issues = append(issues, domain.NewIssue(rule.Name,
				fmt.Sprintf("rule expression must evaluate to bool, got %T", out.Value()),
				domain.SeverityError))
			continue
		}
		if held {
			continue
		}
		issues = append(issues, domain.NewIssue(rule.Name, rule.violationMessage(), rule.severityOrDefault()))
	}

	e.logger.Info("rules evaluated",
		"run_id", run.ID.String(), "rules", len(rules.Rules), "issues", len(issues))
	return &worker.Result{Issues: issues}, nil
}

// compile компилирует выражения всех правил. Проблемы собираются по
// всему набору и возвращаются одной ошибкой.
func (e *Evaluator) compile(rs *RuleSet) ([]cel.Program, error) {
	programs := make([]cel.Program, len(rs.Rules))
	var failures []string
	for i, rule := range rs.Rules {
		ast, issues := e.env.Compile(rule.Expression)
		if issues != nil && issues.Err() != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", rule.Name, issues.Err()))
			continue
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", rule.Name, err))
			continue
		}
		programs[i] = prg
	}
	if len(failures) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrRuleCompile, strings.Join(failures, "; "))
	}
	return programs, nil
}

// runFacts собирает факты run для вычисления правил.
//
// Переменные, доступные выражениям:
//   - labels — метки run
//   - issues — счётчики замечаний по уровням: hint, warning, error, total
//   - repository — URL анализируемого репозитория
//   - revision — анализируемая ревизия
//   - stages — заявленные этапы run в порядке выполнения
func runFacts(run *domain.Run, hierarchy *domain.Hierarchy) map[string]any {
	counts := map[string]int64{"hint": 0, "warning": 0, "error": 0, "total": 0}
	for _, issue := range run.Issues {
		counts[strings.ToLower(string(issue.Severity))]++
		counts["total"]++
	}

	labels := run.Labels
	if labels == nil {
		labels = map[string]string{}
	}

	var stages []string
	for _, stage := range configsFor(run).Stages() {
		stages = append(stages, string(stage))
	}

	return map[string]any{
		"labels":     labels,
		"issues":     counts,
		"repository": hierarchy.Repository.URL,
		"revision":   run.Revision,
		"stages":     stages,
	}
}
