package repo

import "errors"

// Ошибки, общие для всех хранилищ (runs, jobs, иерархия, секреты, сервисы).
var (
	// ErrNotFound — запись с таким идентификатором отсутствует.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — нарушена уникальность (id или имя в пределах scope).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — запись ссылается на недопустимый scope или родителя.
	ErrInvalidState = errors.New("invalid state")
)
