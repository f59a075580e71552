//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const defaultsDomain = "com.querybot.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "querybot")
	}
	return "querybot-data"
}

// defaultsBackend keeps settings in UserDefaults through the defaults CLI.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() Backend {
	return &defaultsBackend{domain: defaultsDomain}
}

func (b *defaultsBackend) Get(key string) (string, bool, error) {
	out, err := exec.Command("defaults", "read", b.domain, key).CombinedOutput()
	s := strings.TrimSpace(string(out))
	if err != nil {
		// defaults exits 1 when the key or domain does not exist.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("defaults read %s: %w, output: %s", key, err, s)
	}
	return s, true, nil
}

func (b *defaultsBackend) Set(key, val string) error {
	if out, err := exec.Command("defaults", "write", b.domain, key, "-string", val).CombinedOutput(); err != nil {
		return fmt.Errorf("defaults write %s: %w, output: %s", key, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *defaultsBackend) Delete(key string) error {
	return exec.Command("defaults", "delete", b.domain, key).Run()
}
