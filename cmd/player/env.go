package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/config"
)

// LoadEnvironment reads envFile into the process environment, when present,
// and builds the config from it. Variables already set win over the file.
func LoadEnvironment(envFile string) (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}
	return config.Load()
}
