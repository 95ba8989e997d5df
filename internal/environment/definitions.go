package environment

import (
	"fmt"
	"sort"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ServiceDefinition — разрешённая привязка пакетного менеджера:
// тип менеджера, разрешённый сервис и остальные параметры набора.
type ServiceDefinition struct {
	// Type — имя пакетного менеджера (maven, conan, npm, nuget).
	Type string

	// Service — сервис, на который ссылался параметр service.
	Service domain.InfrastructureService

	// Properties — параметры набора без ссылки service.
	Properties map[string]string
}

// definitionCheck валидирует параметры одного набора привязки.
type definitionCheck func(props map[string]string) error

// definitionRegistry — известные типы привязок и их обязательные
// параметры. Реестр неизменяем после инициализации пакета.
var definitionRegistry = map[string]definitionCheck{
	"maven": requireProperties("id"),
	"conan": requireProperties("remoteName"),
	"npm":   requireProperties(),
	"nuget": requireProperties("sourceName"),
}

func requireProperties(names ...string) definitionCheck {
	return func(props map[string]string) error {
		for _, name := range names {
			if props[name] == "" {
				return fmt.Errorf("missing required property %q", name)
			}
		}
		return nil
	}
}

// definitionTypes — типы привязок конфигурации в детерминированном
// порядке обхода.
func definitionTypes(defs map[string][]map[string]string) []string {
	types := make([]string, 0, len(defs))
	for t := range defs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
