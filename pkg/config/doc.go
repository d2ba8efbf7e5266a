// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv for .env files and
// github.com/caarlos0/env/v11 for parsing struct tags. Each meterkit package
// owns its own Config struct (pg.Config, redis.Config, archive.S3Config, ...)
// and the binary loads them one by one:
//
//	var pgCfg pg.Config
//	if err := config.Load(&pgCfg); err != nil {
//		return err
//	}
//
// Load caches the parsed value per type, so every caller of the same struct
// sees the same configuration. Reload and ResetCache exist for tests and for
// processes that change their environment at runtime. LoadPrefixed parses
// without caching and prepends a prefix to every variable name.
//
// Errors can be matched with errors.Is against ErrParsingConfig,
// ErrInvalidConfigType, ErrLoadingEnvFile and ErrNilPointer.
package config
