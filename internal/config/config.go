// Пакет config — загрузка и валидация конфигурации Offline Pages
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Offline Pages.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Директория базы метаданных (OfflinePages.db)
	DBDir string
	// Директория файлов архивов
	ArchivesDir string
	// YAML-файл дополнительных политик namespace (опционально)
	PolicyFile string
	// Интервал периодической проверки согласованности
	ConsistencyInterval time.Duration
	// Задержка проверки согласованности после загрузки модели
	ConsistencyDelay time.Duration
	// Интервал запуска очистки хранилища
	ClearStorageInterval time.Duration
	// Максимальный размер архива в байтах
	MaxArchiveSize int64
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// URL JWKS endpoint; пустое значение отключает аутентификацию
	JWKSUrl string
	// Допустимое расхождение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Не проверять TLS-сертификат JWKS endpoint
	TLSSkipVerify bool
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	CACertPath string

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя вершины графа в метриках topologymetrics (пусто — из hostname)
	ServiceName string
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// AuthEnabled сообщает, включена ли JWT-аутентификация.
func (c *Config) AuthEnabled() bool {
	return c.JWKSUrl != ""
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// OP_PORT — порт HTTP-сервера (по умолчанию 8040)
	port, err := getEnvInt("OP_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("OP_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("OP_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// OP_DB_DIR — обязательный
	cfg.DBDir, err = getEnvRequired("OP_DB_DIR")
	if err != nil {
		return nil, err
	}

	// OP_ARCHIVES_DIR — обязательный
	cfg.ArchivesDir, err = getEnvRequired("OP_ARCHIVES_DIR")
	if err != nil {
		return nil, err
	}

	cfg.PolicyFile = getEnvDefault("OP_POLICY_FILE", "")

	cfg.ConsistencyInterval, err = getEnvPositiveDuration("OP_CONSISTENCY_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, err
	}

	// OP_CONSISTENCY_DELAY — задержка после загрузки (по умолчанию 20s), 0 — сразу
	cfg.ConsistencyDelay, err = getEnvDuration("OP_CONSISTENCY_DELAY", 20*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OP_CONSISTENCY_DELAY: %w", err)
	}
	if cfg.ConsistencyDelay < 0 {
		return nil, fmt.Errorf("OP_CONSISTENCY_DELAY: значение не может быть отрицательным")
	}

	cfg.ClearStorageInterval, err = getEnvPositiveDuration("OP_CLEAR_STORAGE_INTERVAL", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	// OP_MAX_ARCHIVE_SIZE — максимальный размер архива (по умолчанию 100 MiB)
	cfg.MaxArchiveSize, err = getEnvInt64("OP_MAX_ARCHIVE_SIZE", 100<<20)
	if err != nil {
		return nil, fmt.Errorf("OP_MAX_ARCHIVE_SIZE: %w", err)
	}
	if cfg.MaxArchiveSize <= 0 {
		return nil, fmt.Errorf("OP_MAX_ARCHIVE_SIZE: значение должно быть положительным")
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("OP_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("OP_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("OP_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("OP_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- JWT ---

	cfg.JWKSUrl = getEnvDefault("OP_JWKS_URL", "")

	cfg.JWTLeeway, err = getEnvDuration("OP_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("OP_JWT_LEEWAY: %w", err)
	}

	cfg.JWKSRefreshInterval, err = getEnvPositiveDuration("OP_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg.JWKSClientTimeout, err = getEnvPositiveDuration("OP_JWKS_CLIENT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.TLSSkipVerify, err = getEnvBool("OP_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("OP_TLS_SKIP_VERIFY: %w", err)
	}

	cfg.CACertPath = getEnvDefault("OP_CA_CERT_PATH", "")
	if cfg.CACertPath != "" {
		if _, err := os.Stat(cfg.CACertPath); err != nil {
			return nil, fmt.Errorf("OP_CA_CERT_PATH: файл недоступен: %w", err)
		}
	}

	// --- topologymetrics ---

	cfg.DephealthCheckInterval, err = getEnvPositiveDuration("OP_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}

	// OP_SERVICE_NAME — пусто: имя выводится из hostname пода
	cfg.ServiceName = getEnvDefault("OP_SERVICE_NAME", "")
	cfg.DephealthGroup = getEnvDefault("OP_DEPHEALTH_GROUP", "offline-pages")

	// --- HTTP-сервер ---

	cfg.HTTPReadTimeout, err = getEnvPositiveDuration("OP_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	// Запись включает загрузку архива, поэтому таймаут больше
	cfg.HTTPWriteTimeout, err = getEnvPositiveDuration("OP_HTTP_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.HTTPIdleTimeout, err = getEnvPositiveDuration("OP_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.ShutdownTimeout, err = getEnvPositiveDuration("OP_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool принимает true/false, 1/0, yes/no.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	switch strings.ToLower(val) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — getEnvDuration с проверкой > 0. Ошибка уже
// содержит имя переменной.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: значение должно быть положительным", key)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
