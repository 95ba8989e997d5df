package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/messages"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/transport"
)

// errOneShotDone возвращается транспорту, когда one-shot цикл уже
// обслужил своё сообщение: лишняя доставка уходит обратно в очередь.
var errOneShotDone = errors.New("one-shot worker already served a message")

// Loop — цикл обработки запросов одного этапа.
type Loop struct {
	stage    domain.Stage
	in       transport.Transport
	out      transport.Transport
	token    string
	contexts *runctx.Factory
	handler  StageHandler
	oneShot  bool
	logger   *slog.Logger
}

// Config — конфигурация цикла воркера.
type Config struct {
	// In — транспорт endpoint этапа, из которого читаются запросы.
	In transport.Transport

	// Out — транспорт endpoint оркестратора для отправки результатов.
	Out transport.Transport

	// OutToken — токен, проставляемый в заголовок результатов.
	OutToken string

	// Contexts — фабрика контекстов воркера.
	Contexts *runctx.Factory

	// Handler — обработчик этапа.
	Handler StageHandler

	// OneShot — обработать ровно одно сообщение и вернуться.
	OneShot bool

	// Logger — логгер процесса.
	Logger *slog.Logger
}

// New создаёт цикл воркера для этапа обработчика.
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stage := cfg.Handler.Stage()

	return &Loop{
		stage:    stage,
		in:       cfg.In,
		out:      cfg.Out,
		token:    cfg.OutToken,
		contexts: cfg.Contexts,
		handler:  cfg.Handler,
		oneShot:  cfg.OneShot,
		logger:   logger.With("stage", string(stage)),
	}
}

// Run блокирующе потребляет очередь этапа до отмены контекста.
// В режиме one-shot возвращается после первого обработанного сообщения.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("worker loop started", "one_shot", l.oneShot)

	if !l.oneShot {
		err := l.in.Subscribe(ctx, l.handleEnvelope)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Обработчики одного Subscribe вызываются последовательно, поэтому
	// флаг не нуждается в синхронизации.
	served := false
	err := l.in.Subscribe(ctx, func(ctx context.Context, envelope *transport.Envelope) error {
		if served {
			return errOneShotDone
		}
		herr := l.handleEnvelope(ctx, envelope)
		if herr == nil {
			served = true
			cancel()
		}
		return herr
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// handleEnvelope обрабатывает один запрос. Возврат nil подтверждает
// сообщение; ошибка возвращает его в очередь.
func (l *Loop) handleEnvelope(ctx context.Context, envelope *transport.Envelope) error {
	stage, kind, ok := messages.StageForType(envelope.Type)
	if !ok || kind != messages.KindRequest || stage != l.stage {
		// Чужое сообщение в очереди этапа. Подтверждаем и отбрасываем:
		// повторная доставка его не исправит.
		l.logger.Warn("dropping unexpected message",
			"type", string(envelope.Type),
			"envelope_id", envelope.ID,
		)
		return nil
	}

	request, err := transport.ParsePayload[messages.JobRequestPayload](envelope)
	if err != nil {
		l.logger.Error("malformed job request dropped",
			"envelope_id", envelope.ID,
			"error", err,
		)
		return nil
	}

	log := l.logger.With(
		"run_id", request.RunID.String(),
		"trace_id", envelope.Header.TraceID,
	)
	log.Info("job request received")

	started := time.Now()
	header := transport.Header{Token: l.token, TraceID: envelope.Header.TraceID}

	payload, execErr := l.execute(ctx, request.RunID, log)
	result := messages.NewJobResult(l.stage, header, payload)
	if execErr != nil {
		result = messages.NewJobFailure(l.stage, header, request.RunID, execErr.Error())
	}

	if err := l.out.Send(ctx, result); err != nil {
		// Результат не дошёл: запрос вернётся в очередь, обработчик
		// идемпотентен и переживёт повтор.
		return fmt.Errorf("send %s result: %w", l.stage, err)
	}

	if execErr == nil {
		log.Info("job finished", "duration", time.Since(started))
	} else {
		log.Warn("job failed",
			"duration", time.Since(started),
			"error", execErr,
		)
	}
	return nil
}

// execute строит контекст run и вызывает обработчик. Ошибка означает
// неуспех этапа; вызывающая сторона сворачивает её в результат-неудачу.
func (l *Loop) execute(ctx context.Context, runID uuid.UUID, log *slog.Logger) (messages.JobResultPayload, error) {
	wc, err := l.contexts.CreateContext(ctx, runID)
	if err != nil {
		log.Error("worker context construction failed", "error", err)
		return messages.JobResultPayload{}, err
	}
	defer func() {
		if cerr := wc.Close(); cerr != nil {
			log.Warn("worker context close failed", "error", cerr)
		}
	}()

	result, err := l.handler.Execute(ctx, wc)
	if err != nil {
		log.Error("stage handler failed", "error", err)
		return messages.JobResultPayload{}, err
	}
	if result == nil {
		result = &Result{}
	}

	return messages.JobResultPayload{
		RunID:              runID,
		Issues:             result.Issues,
		ResolvedJobConfigs: result.ResolvedJobConfigs,
		Reports:            result.Reports,
	}, nil
}
