package domain

// CredentialsType — способ передачи учётных данных сервиса инструментам
// пакетных менеджеров.
type CredentialsType string

const (
	// CredentialsTypeNetrcFile — сервис попадает в генерируемый .netrc.
	CredentialsTypeNetrcFile CredentialsType = "NETRC_FILE"

	// CredentialsTypeGitCredentialsFile — сервис попадает в генерируемый
	// .git-credentials.
	CredentialsTypeGitCredentialsFile CredentialsType = "GIT_CREDENTIALS_FILE"
)

// InfrastructureService — внешний сервис (репозиторий пакетов, registry,
// git-хостинг), доступ к которому нужен инструментам анализа.
//
// Учётные данные заданы ссылками на секреты; значения материализуются
// только в момент генерации файлов окружения внутри контекста воркера.
type InfrastructureService struct {
	// Name — имя сервиса, уникальное в пределах уровня объявления.
	Name string `json:"name"`

	// URL — адрес сервиса.
	URL string `json:"url"`

	// Description — описание назначения.
	Description string `json:"description,omitempty"`

	// UsernameSecret — секрет с именем пользователя.
	UsernameSecret Secret `json:"username_secret"`

	// PasswordSecret — секрет с паролем или токеном.
	PasswordSecret Secret `json:"password_secret"`

	// CredentialsTypes — в какие файлы окружения попадают учётные данные.
	// Пустой список означает, что файлы для сервиса не генерируются.
	CredentialsTypes []CredentialsType `json:"credentials_types,omitempty"`
}

// HasCredentialsType возвращает true, если сервис отмечен указанным
// способом передачи учётных данных.
func (s InfrastructureService) HasCredentialsType(t CredentialsType) bool {
	for _, ct := range s.CredentialsTypes {
		if ct == t {
			return true
		}
	}
	return false
}
