// Package config loads typed configuration structs from the environment,
// optionally seeded from an env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

var envFlag struct {
	once sync.Once
	path string
}

// MustNew loads T from the environment or panics. Composition-root use only.
func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(fmt.Sprintf("config %s: %v", prefix, err))
	}
	return conf
}

// New loads T from the environment. A file named by the -env flag is
// exported into the process environment first; without the flag a local
// .env is picked up when present.
func New[T any](prefix string) (*T, error) {
	if err := seedEnvironment(); err != nil {
		return nil, err
	}

	conf := new(T)
	if err := envconfig.Process(prefix, conf); err != nil {
		return nil, err
	}
	return conf, nil
}

func seedEnvironment() error {
	envFlag.once.Do(func() {
		if flag.Lookup("env") == nil {
			flag.StringVar(&envFlag.path, "env", "", "path to .env file")
		}
		if !flag.Parsed() {
			flag.Parse()
		}
	})

	if path := strings.TrimSpace(envFlag.path); path != "" {
		if err := exportFile(path); err != nil {
			return fmt.Errorf("env file %s: %w", path, err)
		}
		return nil
	}

	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	if err := exportFile(".env"); err != nil {
		return fmt.Errorf("default env file: %w", err)
	}
	return nil
}

// exportFile copies every key of the file into the process environment,
// uppercased, so envconfig sees file and environment values uniformly.
func exportFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for key, value := range v.AllSettings() {
		if err := os.Setenv(strings.ToUpper(key), fmt.Sprint(value)); err != nil {
			return err
		}
	}
	return nil
}
