// Package envconf — чтение конфигурации процесса из переменных окружения.
//
// Все компоненты конфигурируются переменными окружения с локальными
// значениями по умолчанию, чтобы процесс поднимался без конфигурации
// в dev-режиме.
package envconf

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// String возвращает значение переменной окружения или def, если она не задана.
func String(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// Duration парсит переменную окружения как time.Duration.
func Duration(key string, def time.Duration) (time.Duration, error) {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return d, nil
	}
	return def, nil
}

// Bool парсит переменную окружения как bool.
func Bool(key string, def bool) (bool, error) {
	if v, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", key, err)
		}
		return b, nil
	}
	return def, nil
}

// Int парсит переменную окружения как int.
func Int(key string, def int) (int, error) {
	if v, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}
