package config

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable name in Config tags.
const EnvPrefix = "ACCOUNTS_"

// dotEnvFiles are loaded before the environment is read. Variables already
// present in the process environment win over the file.
var dotEnvFiles = []string{".env"}

// parseEnv overlays Config with ACCOUNTS_* environment variables.
// Unset variables leave the current value in place. A missing .env file is
// not an error; an unreadable one or a malformed value panics, like a bad
// JSON config does.
func parseEnv(config *Config) {
	for _, f := range dotEnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		panic(err)
	}
}
