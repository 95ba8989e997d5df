// Package cli реализует инструмент командной строки Conveyor.
//
// # Обзор
//
// CLI — административная утилита конвейера: запуск и отмена runs,
// создание секретов, ведение иерархии organization → product →
// repository и объявление инфраструктурных сервисов. REST-слоя у
// конвейера нет, поэтому CLI работает напрямую с теми же хранилищами
// и транспортом, что оркестратор и воркеры, и конфигурируется теми же
// переменными окружения (CONVEYOR_DB_BACKEND, CONVEYOR_TRANSPORT_*,
// CONVEYOR_SECRETS_*).
//
// # Ключевые компоненты
//
// ## Client
//
// Прямой клиент конвейера: хранилища состояния, транспорт endpoint-а
// оркестратора для команды create-run и хранилище секретов на запись.
//
//	client, err := cli.NewClient(ctx)
//	run, err := client.StartRun(ctx, params)
//
// Значение секрета проходит через Client однократно при создании:
// оно пишется во внешнее хранилище и нигде больше не появляется —
// ни в базе, ни в выводе, ни в журнале.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.Encoder) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: conveyor run list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - run: list, start, status, cancel, jobs
//   - secret: create
//   - admin: org, product, repo, service
//
// Каждая группа создаётся через фабричную функцию (NewRunCmd и т.д.),
// принимающую ClientFunc и OutputFunc — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
