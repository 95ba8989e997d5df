// Package telemetry обеспечивает наблюдаемость сервисов Conveyor.
//
// Включает:
//   - logging.go — structured logging через slog (LOG_LEVEL, LOG_FORMAT)
//   - metrics.go — Prometheus метрики runs, jobs и транспорта
//
// Orchestrator и workers используют единый формат логирования и
// экспортируют метрики на /metrics своего HTTP endpoint.
package telemetry
