package remote

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/hashicorp/go-envparse"
)

// ParseProperties turns key=value pairs into a property map. Later pairs win.
func ParseProperties(pairs []string) (map[string]string, error) {
	props := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid property %q, expected key=value", pair)
		}
		props[key] = value
	}
	return props, nil
}

// LoadPropertiesFile reads properties from a .env file
func LoadPropertiesFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open properties file: %w", err)
	}
	defer f.Close()

	props, err := envparse.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse properties file %s: %w", path, err)
	}
	return props, nil
}

// resolveProperties loads the optional file first; pairs override it
func resolveProperties(file string, pairs []string) (map[string]string, error) {
	props := make(map[string]string)
	if file != "" {
		fromFile, err := LoadPropertiesFile(file)
		if err != nil {
			return nil, err
		}
		maps.Copy(props, fromFile)
	}
	fromPairs, err := ParseProperties(pairs)
	if err != nil {
		return nil, err
	}
	maps.Copy(props, fromPairs)
	return props, nil
}
