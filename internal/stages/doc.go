// Package stages содержит обработчики этапов конвейера анализа.
//
// # Обзор
//
// Каждый обработчик реализует worker.StageHandler поверх контекста run:
//
//	analyzer  — разрешает окружение анализа и проверяет конфигурации этапов
//	advisor   — запрашивает данные об уязвимостях
//	scanner   — сканирует исходники на лицензии
//	evaluator — проверяет CEL-правила на фактах run
//	reporter  — генерирует и сохраняет отчёты
//	notifier  — рассылает уведомления о завершении
//
// Предметные движки подключаются через интерфейсы (DependencyResolver,
// AdvisorRunner, ScanRunner, NotifierRunner): обработчик отвечает за
// подготовку входа — окружение, секреты плагинов, файлы конфигурации —
// и за форму результата, а не за логику самих инструментов.
//
// # Конфигурации этапов
//
// Analyzer работает по заявленным конфигурациям run и строит проверенный
// набор (ResolvedJobConfigs); остальные этапы берут проверенный набор,
// если он уже есть. Подстановка значений по умолчанию происходит один
// раз, на этапе analyzer.
//
// # Замечания вместо прерываний
//
// Предметные проблемы не прерывают конвейер: нарушенные правила,
// неизвестные форматы отчётов, недоставленные уведомления фиксируются
// замечаниями на run. Ошибку обработчик возвращает только когда
// продолжать бессмысленно: недоступно хранилище, не разрешились секреты
// в строгом режиме, не скомпилировались правила.
//
// # Сборка
//
// ForStage собирает обработчик по имени этапа. Таблица форматов отчётов
// и движки этапов передаются через Config при старте процесса и далее
// не меняются.
package stages
