package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/envconf"
	"github.com/shaiso/Conveyor/internal/messages"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/transport"
)

// envLateResultLog — переменная окружения с уровнем логирования
// отброшенных результатов.
const envLateResultLog = "CONVEYOR_LATE_RESULT_LOG"

// StageRoute — канал отправки запросов одного этапа: транспорт endpoint
// этапа и токен, проставляемый в заголовок запросов.
type StageRoute struct {
	Transport transport.Transport
	Token     string
}

// Orchestrator — центральный координатор конвейера.
type Orchestrator struct {
	runs   repo.RunStore
	jobs   repo.JobStore
	in     transport.Transport
	routes map[domain.Stage]StageRoute

	locks     *runLocks
	lateLevel slog.Level
	logger    *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Runs — хранилище run.
	Runs repo.RunStore

	// Jobs — хранилище заданий этапов.
	Jobs repo.JobStore

	// In — транспорт endpoint оркестратора, из которого читаются команды
	// и результаты.
	In transport.Transport

	// Routes — каналы отправки запросов по этапам.
	Routes map[domain.Stage]StageRoute

	// LateResultLog — уровень логирования отброшенных результатов:
	// debug, info или warn. Пустая строка — значение CONVEYOR_LATE_RESULT_LOG
	// из окружения, по умолчанию warn.
	LateResultLog string

	// Logger — логгер процесса.
	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	value := cfg.LateResultLog
	if value == "" {
		value = envconf.String(envLateResultLog, "warn")
	}
	level, err := parseLateResultLevel(value)
	if err != nil {
		logger.Warn("invalid late result log level, falling back to warn", "value", value)
		level = slog.LevelWarn
	}

	return &Orchestrator{
		runs:      cfg.Runs,
		jobs:      cfg.Jobs,
		in:        cfg.In,
		routes:    cfg.Routes,
		locks:     newRunLocks(),
		lateLevel: level,
		logger:    logger,
	}
}

// Run блокирующе потребляет endpoint оркестратора до отмены контекста.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started",
		"stages", len(o.routes),
		"late_result_log", o.lateLevel.String(),
	)

	err := o.in.Subscribe(ctx, o.handleEnvelope)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	o.logger.Info("orchestrator stopped")
	return nil
}

// handleEnvelope обрабатывает одно входящее сообщение. Возврат nil
// подтверждает сообщение; ошибка возвращает его в очередь.
func (o *Orchestrator) handleEnvelope(ctx context.Context, envelope *transport.Envelope) error {
	if envelope.Type == messages.TypeCreateRun {
		command, err := transport.ParsePayload[messages.CreateRunPayload](envelope)
		if err != nil {
			o.logger.Error("malformed create-run command dropped",
				"envelope_id", envelope.ID,
				"error", err,
			)
			return nil
		}
		return o.startRun(ctx, command.RunID)
	}

	stage, kind, ok := messages.StageForType(envelope.Type)
	if !ok || kind != messages.KindResult {
		// Чужое сообщение в очереди оркестратора. Подтверждаем и
		// отбрасываем: повторная доставка его не исправит.
		o.logger.Warn("dropping unexpected message",
			"type", string(envelope.Type),
			"envelope_id", envelope.ID,
		)
		return nil
	}

	result, err := transport.ParsePayload[messages.JobResultPayload](envelope)
	if err != nil {
		o.logger.Error("malformed job result dropped",
			"envelope_id", envelope.ID,
			"type", string(envelope.Type),
			"error", err,
		)
		return nil
	}

	return o.processResult(ctx, stage, envelope.Header.TraceID, result)
}

// parseLateResultLevel разбирает уровень логирования отброшенных
// результатов.
func parseLateResultLevel(value string) (slog.Level, error) {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	default:
		return 0, fmt.Errorf("unknown late result log level: %q", value)
	}
}
