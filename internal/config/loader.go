package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables,
// parses it into a Config, and fills defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.Defaults()
	return &cfg, nil
}

// expandEnv substitutes every ${VAR} / ${VAR:-default} occurrence in raw.
// A variable with neither an environment value nor a default is unresolved;
// all unresolved names are reported in one error.
func expandEnv(raw []byte) ([]byte, error) {
	var (
		out        bytes.Buffer
		unresolved []string
		last       int
	)

	for _, loc := range envPattern.FindAllSubmatchIndex(raw, -1) {
		out.Write(raw[last:loc[0]])
		last = loc[1]

		name := string(raw[loc[2]:loc[3]])
		value, ok := resolveVar(raw, loc, name)
		if !ok {
			unresolved = append(unresolved, name)
			out.Write(raw[loc[0]:loc[1]])
			continue
		}
		out.WriteString(value)
	}
	out.Write(raw[last:])

	if len(unresolved) > 0 {
		return out.Bytes(), fmt.Errorf("unresolved variables: %s", strings.Join(unresolved, ", "))
	}
	return out.Bytes(), nil
}

// resolveVar returns the environment value for name, or the expression's
// default when the variable is unset. loc is the submatch index set for one
// envPattern occurrence; indices 4 and 5 bound the default, -1 when absent.
func resolveVar(raw []byte, loc []int, name string) (string, bool) {
	if value, ok := os.LookupEnv(name); ok {
		return value, true
	}
	if loc[4] >= 0 {
		return string(raw[loc[4]:loc[5]]), true
	}
	return "", false
}
