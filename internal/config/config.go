// Package config loads the application configuration from file and
// environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	Controller   ControllerConfig    `mapstructure:"controller" validate:"required"`
	Observer     ObserverConfig      `mapstructure:"observer"`
	API          APIConfig           `mapstructure:"api"`
	Containers   []ContainerConfig   `mapstructure:"containers" validate:"min=1,dive"`
	Agents       []AgentConfig       `mapstructure:"agents" validate:"dive"`
	Negotiations []NegotiationConfig `mapstructure:"negotiations" validate:"dive"`
}

// ControllerConfig holds the negotiation session parameters.
type ControllerConfig struct {
	Host               string        `mapstructure:"host" validate:"required"`
	Port               int           `mapstructure:"port" validate:"min=0,max=65535"`
	NAgents            int           `mapstructure:"n_agents" validate:"min=1"`
	SingleStart        bool          `mapstructure:"single_start"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout" validate:"gt=0"`
	TopologyPhi        float64       `mapstructure:"topology_phi" validate:"gte=0"`
	TopologySeed       *int64        `mapstructure:"topology_seed"`
	Resolution         int           `mapstructure:"resolution" validate:"gt=0"`
	Period             int           `mapstructure:"period" validate:"gt=0"`
	CheckInboxInterval time.Duration `mapstructure:"check_inbox_interval" validate:"gt=0"`
}

// ObserverConfig selects and configures the result store.
type ObserverConfig struct {
	Store string      `mapstructure:"store" validate:"oneof=memory redis"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds the redis store connection parameters.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// APIConfig holds the operator status API configuration.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ContainerConfig describes one unit-agent container process.
type ContainerConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"min=0,max=65535"`
}

// AgentConfig describes one unit agent and its schedule catalogue.
type AgentConfig struct {
	Name          string   `mapstructure:"name"`
	ScheduleDir   string   `mapstructure:"schedule_dir"`
	ScheduleFiles []string `mapstructure:"schedule_files"`
}

// NegotiationConfig names one negotiation: a start date and the target
// file for it.
type NegotiationConfig struct {
	Date   string `mapstructure:"date" validate:"required"`
	Target string `mapstructure:"target" validate:"required"`
}

// Load loads configuration from file and environment variables. path
// may name a config file directly; if empty, config.yaml is searched in
// ./configs and the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("swarmplan")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("controller.host", "localhost")
	v.SetDefault("controller.port", 5555)
	v.SetDefault("controller.n_agents", 1)
	v.SetDefault("controller.single_start", true)
	v.SetDefault("controller.negotiation_timeout", "15m")
	v.SetDefault("controller.topology_phi", 1.0)
	v.SetDefault("controller.resolution", 900)
	v.SetDefault("controller.period", 86400)
	v.SetDefault("controller.check_inbox_interval", "100ms")

	v.SetDefault("observer.store", "memory")
	v.SetDefault("observer.redis.addr", "localhost:6379")
	v.SetDefault("observer.redis.db", 0)

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.addr", "localhost:8080")

	v.SetDefault("containers", []map[string]any{{"host": "localhost", "port": 5556}})
}

// validate validates the configuration.
func validate(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return err
	}
	if config.Controller.Period%config.Controller.Resolution != 0 {
		return fmt.Errorf("period %ds is not a whole number of %ds intervals",
			config.Controller.Period, config.Controller.Resolution)
	}
	for _, n := range config.Negotiations {
		if _, err := time.Parse(time.RFC3339, n.Date); err != nil {
			return fmt.Errorf("negotiation date %q: %w", n.Date, err)
		}
	}
	return nil
}

// ControllerAddr returns the controller container's host:port.
func (c *Config) ControllerAddr() string {
	return fmt.Sprintf("%s:%d", c.Controller.Host, c.Controller.Port)
}
