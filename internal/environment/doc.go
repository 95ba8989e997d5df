// Package environment разрешает конфигурацию окружения репозитория.
//
// Структура:
//   - config.go      — разбор файла .ort.env.yml
//   - resolver.go    — разрешение ссылок на секреты и сервисы против
//     иерархии repository → product → organization
//   - definitions.go — таблица известных привязок пакетных менеджеров
//   - generators.go  — генерация файлов учётных данных (.netrc,
//     .git-credentials, .env) в каталоге контекста воркера
//
// Политика ошибок задаётся флагом strict файла конфигурации: strict
// собирает все проблемы и падает одним сообщением, lenient записывает
// предупреждения и отбрасывает только затронутые элементы.
package environment
