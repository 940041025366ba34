package config

import (
	"fmt"
	"os"
	"runtime"

	"YoloDetServer/profile"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

type Config struct {
	RPCPort       int    `yaml:"RPCPort"`
	HTTPPort      int    `yaml:"HTTPPort"`
	MonitorPort   int    `yaml:"MonitorPort"`
	WorkersNum    int    `yaml:"workersNum"`
	InstanceClass string `yaml:"instanceClass"`
	UseRegServer  bool   `yaml:"UseRegServer"`
	RegServerPort int    `yaml:"RegServerPort"`
	RegServerHost string `yaml:"RegServerHost"`

	Backend    string   `yaml:"backend"`
	Target     string   `yaml:"target"`
	ModelDir   string   `yaml:"modelDir"`
	Profiles   []string `yaml:"profiles"`
	Letterbox  bool     `yaml:"letterbox"`
	ClassAware bool     `yaml:"classAware"`

	LogMode  string `yaml:"logMode"`
	LogLevel string `yaml:"logLevel"`

	// warnings collected while normalising, printed by main once the logger is up
	Warnings []string `yaml:"-"`
}

func Default() *Config {
	return &Config{
		RPCPort:       50051,
		HTTPPort:      8080,
		MonitorPort:   50052,
		WorkersNum:    1,
		InstanceClass: "Cpu",
		Backend:       "opencv",
		Target:        "cpu",
		ModelDir:      ".",
		Profiles:      []string{"yolov3"},
		LogMode:       "production",
	}
}

// Load reads a yaml file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	cpuNum := runtime.NumCPU()
	if c.WorkersNum <= 0 {
		c.WorkersNum = 1
		c.Warnings = append(c.Warnings, "Invalid workersNum in config, defaulting to 1")
	} else if c.WorkersNum > cpuNum {
		c.Warnings = append(c.Warnings, "Please noted that workersNum exceeds CPU cores, which may lead to performance degradation.")
	}
	switch c.InstanceClass {
	case "Dml", "Cuda", "Rocm", "Cpu":
	default:
		c.Warnings = append(c.Warnings, fmt.Sprintf("Invalid instanceClass %q in config, defaulting to Cpu", c.InstanceClass))
		c.InstanceClass = "Cpu"
	}
	// names the OpenCV DNN module accepts; unknown ones would silently run on the default
	switch c.Backend {
	case "", "default", "halide", "openvino", "opencv", "vulkan", "cuda":
	default:
		c.Warnings = append(c.Warnings, fmt.Sprintf("Invalid backend %q in config, defaulting to opencv", c.Backend))
		c.Backend = "opencv"
	}
	switch c.Target {
	case "", "cpu", "fp32", "fp16", "vpu", "vulkan", "fpga", "cuda", "cudafp16":
	default:
		c.Warnings = append(c.Warnings, fmt.Sprintf("Invalid target %q in config, defaulting to cpu", c.Target))
		c.Target = "cpu"
	}
	if len(c.Profiles) == 0 {
		return fmt.Errorf("config enables no profiles, choose from %v", profile.Names())
	}
	seen := make(map[string]bool, len(c.Profiles))
	for _, name := range c.Profiles {
		if _, err := profile.Lookup(name); err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("profile %q listed twice", name)
		}
		seen[name] = true
	}
	for name, port := range map[string]int{"RPCPort": c.RPCPort, "HTTPPort": c.HTTPPort, "MonitorPort": c.MonitorPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s %d out of range", name, port)
		}
	}
	if c.UseRegServer && c.RegServerHost == "" {
		return fmt.Errorf("UseRegServer requires RegServerHost")
	}
	return nil
}

// EnabledProfiles resolves the configured names against the built-in table.
func (c *Config) EnabledProfiles() []profile.ModelProfile {
	out := make([]profile.ModelProfile, 0, len(c.Profiles))
	for _, name := range c.Profiles {
		p, err := profile.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}
