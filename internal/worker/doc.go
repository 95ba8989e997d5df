// Package worker — цикл обработки запросов одного этапа конвейера.
//
// # Обзор
//
// Процесс воркера подписан ровно на один endpoint этапа. На каждый
// запрос цикл строит контекст воркера для run из сообщения, вызывает
// обработчик этапа и отправляет оркестратору ровно один результат,
// повторяя token и trace id заголовка запроса. Контекст закрывается
// безусловно.
//
// Воркеры масштабируются горизонтально: несколько процессов одного
// этапа конкурируют за очередь. Доставка at-least-once, поэтому
// обработчики обязаны быть идемпотентными.
//
// # Ошибки
//
// Ошибка обработчика или построения контекста (включая неизвестный run)
// фатальна только для текущего задания: она уезжает оркестратору
// типизированным результатом-отказом с текстом ошибки, процесс воркера
// продолжает работу. Повторную доставку использует только ошибка
// отправки результата.
//
// # Режимы
//
// Обычный режим — бесконечный цикл. Режим one-shot обрабатывает ровно
// одно сообщение и возвращается: так воркер запускается в средах с
// масштабированием до нуля, где процесс живёт одно задание.
package worker
