// Package runctx предоставляет контекст выполнения одного этапа run.
//
// Структура:
//   - factory.go  — фабрика контекстов (загрузка run и иерархии)
//   - context.go  — контекст: кэш секретов, кэш скачанных файлов,
//     временные каталоги, гарантированное освобождение в Close
//   - resolved.go — обёртка, подставляющая проверенные конфигурации этапов
//
// Контекст принадлежит ровно одному вызову этапа. Этапы одного run
// выполняются строго последовательно, поэтому два контекста одного run
// никогда не существуют одновременно. Кэши живут до Close: повторное
// разрешение секрета или скачивание файла с тем же ключом не обращается
// к внешним хранилищам.
package runctx
