//go:build !darwin

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "querybot-data"
		}
	}
	return filepath.Join(dir, "querybot")
}

// envFileBackend keeps settings in a dotenv file under $XDG_CONFIG_HOME.
// Entries are named after the key's environment variable, so the file can be
// copied to .env or sourced by a shell unchanged.
type envFileBackend struct {
	path string
}

func newPlatformBackend() Backend {
	return &envFileBackend{path: configFilePath()}
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "querybot", "config.env")
}

func (b *envFileBackend) read() (map[string]string, error) {
	vals, err := godotenv.Read(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", b.path, err)
	}
	return vals, nil
}

func (b *envFileBackend) write(vals map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := godotenv.Write(vals, b.path); err != nil {
		return fmt.Errorf("writing %s: %w", b.path, err)
	}
	return os.Chmod(b.path, 0o600)
}

func (b *envFileBackend) Get(key string) (string, bool, error) {
	vals, err := b.read()
	if err != nil {
		return "", false, err
	}
	v, ok := vals[envName(key)]
	return v, ok, nil
}

func (b *envFileBackend) Set(key, val string) error {
	vals, err := b.read()
	if err != nil {
		return err
	}
	vals[envName(key)] = val
	return b.write(vals)
}

func (b *envFileBackend) Delete(key string) error {
	vals, err := b.read()
	if err != nil {
		return err
	}
	delete(vals, envName(key))
	return b.write(vals)
}
