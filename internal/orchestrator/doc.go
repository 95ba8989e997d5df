// Package orchestrator продвигает run по конвейеру этапов.
//
// Оркестратор потребляет собственный endpoint: команды создания run и
// результаты этапов. На команду он переводит run из CREATED в ACTIVE и
// отправляет запрос первого запрошенного этапа; на результат — закрывает
// job, переносит замечания и дельты результата на run и отправляет запрос
// следующего этапа либо финализирует run. Запрос этапа N+1 никогда не
// уходит раньше, чем обработан успешный результат этапа N.
//
// Переходы одного run сериализованы именованным мьютексом, разные run
// обрабатываются параллельно. Всё состояние run живёт в хранилище, в
// памяти остаются только мьютексы, поэтому рестарт оркестратора не
// требует восстановления.
//
// Доставка сообщений at-least-once: поздние и повторные результаты
// отбрасываются по состоянию run и открытого job. Уровень логирования
// отброшенных результатов задаёт CONVEYOR_LATE_RESULT_LOG
// (debug|info|warn, по умолчанию warn).
//
// Отмена кооперативная: CANCELLED выставляет внешний актор прямо в
// хранилище. Оркестратор видит её в точках принятия решений, результаты
// отменённого run отбрасывает и новых этапов не отправляет; уже
// работающие воркеры не прерываются.
package orchestrator
