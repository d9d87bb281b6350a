package registry

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-remote/engine"
)

const (
	EngineTypeGoTest = "go-test"
	DefaultEngine    = "go"
)

// ErrUnknownEngine is returned for engine names the registry does not know
var ErrUnknownEngine = errors.New("unknown engine")

// EngineConfig describes one engine in the engines file
type EngineConfig struct {
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	WorkDir  string         `yaml:"workdir"`
	GoBinary string         `yaml:"go_binary,omitempty"`
	Timeout  *time.Duration `yaml:"timeout,omitempty"`
}

// EnginesFile is the YAML engines file
type EnginesFile struct {
	DefaultEngine     string            `yaml:"default_engine,omitempty"`
	DefaultProperties map[string]string `yaml:"default_properties,omitempty"`
	DefaultIncludes   []string          `yaml:"default_includes,omitempty"`
	Engines           []EngineConfig    `yaml:"engines"`
}

// Config contains registry configuration
type Config struct {
	Log log.Logger
	// EngineConfigFile is optional; without it a single go test engine
	// named "go" runs in WorkDir
	EngineConfigFile string
	WorkDir          string
	GoBinary         string
	DefaultTimeout   time.Duration
	// DefaultProperties and DefaultIncludes are merged over the file's defaults
	DefaultProperties map[string]string
	DefaultIncludes   []string
}

// Registry holds the engines a server can run and the defaults applied to
// every run
type Registry struct {
	config        Config
	engines       map[string]engine.Engine
	defaultEngine string
	properties    map[string]string
	includes      []string
	mu            sync.RWMutex
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config:     cfg,
		engines:    make(map[string]engine.Engine),
		properties: make(map[string]string),
	}

	file := &EnginesFile{}
	if cfg.EngineConfigFile != "" {
		loaded, err := loadConfig(cfg.EngineConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load engines: %w", err)
		}
		file = loaded
	} else {
		if cfg.WorkDir == "" {
			return nil, fmt.Errorf("either an engines file or a work directory is required")
		}
		file.Engines = []EngineConfig{{Name: DefaultEngine, Type: EngineTypeGoTest, WorkDir: cfg.WorkDir}}
	}

	if err := r.load(file); err != nil {
		return nil, err
	}

	cfg.Log.Debug("Registry loaded", "engines", r.EngineNames(), "default", r.defaultEngine)
	return r, nil
}

func (r *Registry) load(file *EnginesFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(file.Engines) == 0 {
		return fmt.Errorf("no engines configured")
	}

	for _, ec := range file.Engines {
		if ec.Name == "" {
			return fmt.Errorf("engine name cannot be empty")
		}
		if _, exists := r.engines[ec.Name]; exists {
			return fmt.Errorf("duplicate engine %s", ec.Name)
		}
		e, err := r.buildEngine(ec)
		if err != nil {
			return fmt.Errorf("engine %s: %w", ec.Name, err)
		}
		r.engines[ec.Name] = e
	}

	r.defaultEngine = file.DefaultEngine
	if r.defaultEngine == "" {
		r.defaultEngine = file.Engines[0].Name
	}
	if _, ok := r.engines[r.defaultEngine]; !ok {
		return fmt.Errorf("default engine %s is not configured", r.defaultEngine)
	}

	maps.Copy(r.properties, file.DefaultProperties)
	maps.Copy(r.properties, r.config.DefaultProperties)
	r.includes = append(append([]string(nil), file.DefaultIncludes...), r.config.DefaultIncludes...)
	return nil
}

func (r *Registry) buildEngine(ec EngineConfig) (engine.Engine, error) {
	switch ec.Type {
	case EngineTypeGoTest, "":
		timeout := r.config.DefaultTimeout
		if ec.Timeout != nil {
			timeout = *ec.Timeout
		}
		goBinary := ec.GoBinary
		if goBinary == "" {
			goBinary = r.config.GoBinary
		}
		workDir := ec.WorkDir
		if workDir == "" {
			workDir = r.config.WorkDir
		}
		return engine.NewGoTestEngine(engine.GoTestConfig{
			Name:     ec.Name,
			WorkDir:  workDir,
			GoBinary: goBinary,
			Timeout:  timeout,
			Log:      r.config.Log.New("engine", ec.Name),
		})
	default:
		return nil, fmt.Errorf("unsupported engine type %q", ec.Type)
	}
}

// Register adds or replaces an engine
func (r *Registry) Register(e engine.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Name()] = e
}

// Engine returns the named engine, or the default engine for an empty name
func (r *Registry) Engine(name string) (engine.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultEngine
	}
	e, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, name)
	}
	return e, nil
}

// EngineNames returns the configured engine names in sorted order
func (r *Registry) EngineNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultEngine returns the name used when a run names no engine
func (r *Registry) DefaultEngine() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultEngine
}

// DefaultProperties returns a copy of the properties every run starts from
func (r *Registry) DefaultProperties() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.properties)
}

// DefaultIncludes returns the include patterns used when a run sets none
func (r *Registry) DefaultIncludes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.includes...)
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

func loadConfig(path string) (*EnginesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cfg EnginesFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// relative work directories are relative to the engines file
	base := filepath.Dir(path)
	for i := range cfg.Engines {
		if cfg.Engines[i].WorkDir != "" && !filepath.IsAbs(cfg.Engines[i].WorkDir) {
			cfg.Engines[i].WorkDir = filepath.Join(base, cfg.Engines[i].WorkDir)
		}
	}
	return &cfg, nil
}
