package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	BackendOnnx   = "onnx"
	BackendRemote = "remote"

	DefaultFromName = "Consigned By Design"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Detect   DetectConfig   `yaml:"detect"`
	Email    EmailConfig    `yaml:"email"`
	Cors     CorsConfig     `yaml:"cors"`
	Registry RegistryConfig `yaml:"registry"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port      int `yaml:"port"`
	AdminPort int `yaml:"adminPort"` // prometheus /metrics
	RPCPort   int `yaml:"rpcPort"`   // grpc health
}

type ModelConfig struct {
	Backend      string   `yaml:"backend"` // onnx | remote
	Path         string   `yaml:"path"`
	InferenceURL string   `yaml:"inferenceURL"`
	Names        []string `yaml:"names"`
	InputSize    int      `yaml:"inputSize"`
	Iou          float32  `yaml:"iou"`
	Workers      int      `yaml:"workers"`
	Preload      bool     `yaml:"preload"`
}

type DetectConfig struct {
	Confidence  float32 `yaml:"confidence"`
	Padding     int     `yaml:"padding"`
	MaxUploadMB int     `yaml:"maxUploadMB"`
}

type EmailConfig struct {
	BaseURL        string `yaml:"baseURL"`
	FromName       string `yaml:"fromName"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type CorsConfig struct {
	Origins       []string `yaml:"origins"`
	OriginPattern string   `yaml:"originPattern"`
}

type RegistryConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	IntervalSeconds int    `yaml:"intervalSeconds"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
}

// Default returns the configuration used when no file or environment value
// overrides a field.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8000, AdminPort: 8001, RPCPort: 8002},
		Model: ModelConfig{
			Backend:   BackendOnnx,
			Path:      "models/yolov8m.onnx",
			InputSize: 640,
			Iou:       0.7,
			Workers:   1,
			Preload:   true,
		},
		Detect: DetectConfig{Confidence: 0.15, Padding: 10, MaxUploadMB: 32},
		Email: EmailConfig{
			BaseURL:        "https://api.resend.com",
			FromName:       DefaultFromName,
			TimeoutSeconds: 30,
		},
		Cors: CorsConfig{
			Origins: []string{
				"http://localhost:5173",
				"http://localhost:5174",
				"http://localhost:5175",
				"http://localhost:3000",
			},
			OriginPattern: `https://.*\.(up\.railway\.app|netlify\.app|onrender\.com)`,
		},
		Registry: RegistryConfig{IntervalSeconds: 5},
		Log:      LogConfig{Mode: "production"},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvAsInt("PORT", c.Server.Port)
	c.Server.AdminPort = getEnvAsInt("ADMIN_PORT", c.Server.AdminPort)
	c.Server.RPCPort = getEnvAsInt("RPC_PORT", c.Server.RPCPort)
	c.Model.Backend = getEnv("MODEL_BACKEND", c.Model.Backend)
	c.Model.Path = getEnv("MODEL_PATH", c.Model.Path)
	c.Model.InferenceURL = getEnv("INFERENCE_URL", c.Model.InferenceURL)
	c.Email.BaseURL = getEnv("RESEND_BASE_URL", c.Email.BaseURL)
	c.Log.Mode = getEnv("LOG_MODE", c.Log.Mode)
	// CORS_ORIGINS extends the configured list rather than replacing it.
	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			c.Cors.Origins = append(c.Cors.Origins, origin)
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	for name, port := range map[string]int{
		"server.port":      c.Server.Port,
		"server.adminPort": c.Server.AdminPort,
		"server.rpcPort":   c.Server.RPCPort,
	} {
		if port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s out of range: %d", name, port))
		}
	}
	switch c.Model.Backend {
	case BackendOnnx:
		if c.Model.Path == "" {
			errs = append(errs, errors.New("model.path is required for the onnx backend"))
		}
	case BackendRemote:
		if c.Model.InferenceURL == "" {
			errs = append(errs, errors.New("model.inferenceURL is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported model.backend: %q", c.Model.Backend))
	}
	if c.Model.InputSize <= 0 {
		errs = append(errs, fmt.Errorf("model.inputSize must be positive, got %d", c.Model.InputSize))
	}
	if c.Model.Workers <= 0 {
		errs = append(errs, fmt.Errorf("model.workers must be positive, got %d", c.Model.Workers))
	}
	if c.Model.Iou < 0 || c.Model.Iou > 1 {
		errs = append(errs, fmt.Errorf("model.iou must be between 0.0 and 1.0, got %f", c.Model.Iou))
	}
	if c.Detect.Confidence < 0 || c.Detect.Confidence > 1 {
		errs = append(errs, fmt.Errorf("detect.confidence must be between 0.0 and 1.0, got %f", c.Detect.Confidence))
	}
	if c.Detect.Padding < 0 {
		errs = append(errs, fmt.Errorf("detect.padding must not be negative, got %d", c.Detect.Padding))
	}
	if c.Detect.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("detect.maxUploadMB must be positive, got %d", c.Detect.MaxUploadMB))
	}
	if c.Email.BaseURL == "" {
		errs = append(errs, errors.New("email.baseURL is required"))
	}
	if c.Registry.Enabled && (c.Registry.Host == "" || c.Registry.Port <= 0) {
		errs = append(errs, errors.New("registry.host and registry.port are required when registry is enabled"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
