// Conveyor Orchestrator — управляет выполнением runs анализа.
//
// Orchestrator:
//   - Получает команды создания run и результаты этапов из очереди
//   - Ведёт машину состояний run и диспетчеризует следующий этап
//   - Закрывает зависшие runs по таймауту (monitor)
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/envconf"
	"github.com/shaiso/Conveyor/internal/messages"
	"github.com/shaiso/Conveyor/internal/monitor"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/transport"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conveyor-orchestrator")

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
	logger.Info("stores ready")

	// Транспорт: endpoint оркестратора плюс по одному на этап
	factory := transport.NewFactory(logger)
	defer factory.Close()

	in, err := factory.ForEndpoint(ctx, transport.EndpointOrchestrator)
	if err != nil {
		logger.Error("failed to open orchestrator endpoint", "error", err)
		os.Exit(1)
	}

	routes := make(map[domain.Stage]orchestrator.StageRoute, len(domain.StageOrder))
	for _, stage := range domain.StageOrder {
		endpoint := messages.StageEndpoint(stage)
		t, err := factory.ForEndpoint(ctx, endpoint)
		if err != nil {
			logger.Error("failed to open stage endpoint",
				"stage", string(stage),
				"error", err,
			)
			os.Exit(1)
		}
		routes[stage] = orchestrator.StageRoute{
			Transport: t,
			Token:     factory.Token(endpoint),
		}
	}
	logger.Info("transport ready", "stages", len(routes))

	// Создаём orchestrator
	orch := orchestrator.New(orchestrator.Config{
		Runs:   stores.Runs,
		Jobs:   stores.Jobs,
		In:     in,
		Routes: routes,
		Logger: logger,
	})

	// Monitor работает в том же процессе
	mon, err := monitor.New(monitor.Config{
		Runs:   stores.Runs,
		Jobs:   stores.Jobs,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to set up monitor", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := orch.Run(ctx); err != nil {
			logger.Error("orchestrator error", "error", err)
			cancel()
		}
	}()
	go func() {
		if err := mon.Run(ctx); err != nil {
			logger.Error("monitor error", "error", err)
			cancel()
		}
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + envconf.String("ORCH_PORT", "8083")

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("conveyor-orchestrator stopped")
}
