// Package config fills env-tagged structs such as fsm.Config from the
// process environment and optional .env files.
package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrParsing    = errors.New("failed to parse environment into config")
	ErrNilPointer = errors.New("nil pointer provided to config loader")
)

var dotenv sync.Once

// Load parses the environment into v. Named files are loaded first and must
// exist; without any, a .env in the working directory is loaded once if
// present. Variables already set in the environment are never overridden.
func Load[T any](v *T, maybeFiles ...string) error {
	if v == nil {
		return ErrNilPointer
	}
	if len(maybeFiles) > 0 {
		if err := godotenv.Load(maybeFiles...); err != nil {
			return fmt.Errorf("load %v: %w", maybeFiles, err)
		}
	} else {
		dotenv.Do(func() {
			_ = godotenv.Load()
		})
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsing, err)
	}
	return nil
}

// MustLoad is Load for values a program cannot start without.
func MustLoad[T any](v *T, maybeFiles ...string) *T {
	if err := Load(v, maybeFiles...); err != nil {
		panic(err)
	}
	return v
}
