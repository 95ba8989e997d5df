// Conveyor Worker — выполняет один этап конвейера анализа.
//
// Worker:
//   - Подписан ровно на одну очередь этапа (CONVEYOR_WORKER_STAGE)
//   - Для каждого запроса строит контекст run, вызывает обработчик этапа
//     и отправляет типизированный результат оркестратору
//   - В режиме one-shot обрабатывает одно сообщение и завершается
//
// Workers масштабируются горизонтально: очередь этапа делится между
// конкурирующими потребителями.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/configfile"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/envconf"
	"github.com/shaiso/Conveyor/internal/messages"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/reportstore"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/secrets"
	"github.com/shaiso/Conveyor/internal/stages"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/transport"
	"github.com/shaiso/Conveyor/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()

	stage, err := domain.ParseStage(envconf.String("CONVEYOR_WORKER_STAGE", ""))
	if err != nil {
		logger.Error("CONVEYOR_WORKER_STAGE is not a valid stage", "error", err)
		os.Exit(1)
	}
	oneShot, err := envconf.Bool("CONVEYOR_WORKER_ONE_SHOT", false)
	if err != nil {
		logger.Error("invalid CONVEYOR_WORKER_ONE_SHOT", "error", err)
		os.Exit(1)
	}
	logger.Info("starting conveyor-worker", "stage", string(stage), "one_shot", oneShot)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Хранилища (postgres или memory, по CONVEYOR_DB_BACKEND)
	stores, closeStores, err := repo.NewStoresFromEnv(ctx)
	if err != nil {
		logger.Error("failed to set up stores", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	// Внешние провайдеры: секреты, конфигурационные файлы, отчёты
	secretProvider, err := secrets.NewProviderFromEnv()
	if err != nil {
		logger.Error("failed to set up secret provider", "error", err)
		os.Exit(1)
	}
	configProvider, err := configfile.NewProviderFromEnv()
	if err != nil {
		logger.Error("failed to set up config file provider", "error", err)
		os.Exit(1)
	}
	reportWriter, err := reportstore.NewWriterFromEnv()
	if err != nil {
		logger.Error("failed to set up report store", "error", err)
		os.Exit(1)
	}

	// Фабрика контекстов выполнения
	contexts := runctx.NewFactory(runctx.FactoryConfig{
		Runs:        stores.Runs,
		Hierarchies: stores.Hierarchies,
		Secrets:     secretProvider,
		Configs:     configProvider,
		WorkDir:     envconf.String("CONVEYOR_WORK_DIR", ""),
		Logger:      logger,
	})

	// Обработчик этапа
	handler, err := stages.ForStage(stage, stages.Config{
		Secrets:  stores.Secrets,
		Services: stores.Services,
		Reports:  reportWriter,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to build stage handler", "error", err)
		os.Exit(1)
	}

	// Транспорт: очередь этапа на вход, endpoint оркестратора на выход
	factory := transport.NewFactory(logger)
	defer factory.Close()

	in, err := factory.ForEndpoint(ctx, messages.StageEndpoint(stage))
	if err != nil {
		logger.Error("failed to open stage endpoint", "error", err)
		os.Exit(1)
	}
	out, err := factory.ForEndpoint(ctx, transport.EndpointOrchestrator)
	if err != nil {
		logger.Error("failed to open orchestrator endpoint", "error", err)
		os.Exit(1)
	}

	loop := worker.New(worker.Config{
		In:       in,
		Out:      out,
		OutToken: factory.Token(transport.EndpointOrchestrator),
		Contexts: contexts,
		Handler:  handler,
		OneShot:  oneShot,
		Logger:   logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + envconf.String("WORKER_PORT", "8082")

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// В режиме one-shot Run возвращается после первого сообщения,
	// иначе блокируется до сигнала завершения.
	if err := loop.Run(ctx); err != nil {
		logger.Error("worker loop error", "error", err)
		os.Exit(1)
	}
	logger.Info("conveyor-worker stopped")
}
