package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// envSource answers typed lookups over the merged environment. Precedence is
// explicit map > process environment > .env file.
type envSource struct {
	explicit  map[string]string
	useSystem bool
	dotenv    map[string]string
}

func newEnvSource(opts loaderOptions) (envSource, error) {
	dotenv, err := readDotEnv(opts.envFile)
	if err != nil {
		return envSource{}, err
	}
	return envSource{
		explicit:  opts.envMap,
		useSystem: opts.useSystemEnv,
		dotenv:    dotenv,
	}, nil
}

func (e envSource) raw(key string) (string, bool) {
	if e.explicit != nil {
		if value, ok := e.explicit[key]; ok {
			return value, true
		}
	}
	if e.useSystem {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
	}
	if e.dotenv != nil {
		if value, ok := e.dotenv[key]; ok {
			return value, true
		}
	}
	return "", false
}

func (e envSource) str(key, fallback string) string {
	if value, ok := e.raw(key); ok && value != "" {
		return value
	}
	return fallback
}

func (e envSource) duration(key string, fallback time.Duration) time.Duration {
	if value, ok := e.raw(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (e envSource) int(key string, fallback int) int {
	if value, ok := e.raw(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func (e envSource) bool(key string, fallback bool) bool {
	if value, ok := e.raw(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

// csv splits a comma-separated value, dropping empty entries.
func (e envSource) csv(key string) []string {
	raw, ok := e.raw(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// stringMap parses "name1=value1,name2=value2". Names are lower-cased; the
// HMAC secret map and the per-environment OIDC audience map both use this
// shape.
func (e envSource) stringMap(key string) map[string]string {
	values := make(map[string]string)
	raw, ok := e.raw(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return values
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		if name == "" || value == "" {
			continue
		}
		values[name] = value
	}
	return values
}

// merged flattens the source into a single map with the same precedence Load
// applies, for callers that need the raw environment.
func (e envSource) merged() map[string]string {
	values := make(map[string]string)
	for key, value := range e.dotenv {
		values[key] = value
	}
	if e.useSystem {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range e.explicit {
		values[key] = value
	}
	return values
}

// readDotEnv parses a KEY=VALUE file. A missing file is not an error; local
// overrides are optional.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}
