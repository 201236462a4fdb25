// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/logic"
)

const (
	BackendGPIOCDev = "gpiocdev"
	BackendPeriph   = "periph"
)

const (
	defaultPoll       = 20 * time.Millisecond
	defaultHeartbeat  = 15 * time.Minute
	defaultBroker     = "tcp://192.168.1.200:1883"
	defaultClientID   = "button-sensor"
	defaultHTTPAddr   = ":80"
	defaultBufferSize = 100
)

// Button names a monitored pin.
type Button struct {
	Pin  int    `yaml:"pin"`
	Name string `yaml:"name"`
}

type MQTT struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"clientId"`
	BufferSize int    `yaml:"bufferSize"`
}

// Config is the daemon configuration.
type Config struct {
	Buttons   []Button      `yaml:"buttons"`
	Debounce  time.Duration `yaml:"debounce"`
	LongPress time.Duration `yaml:"longPress"`
	Poll      time.Duration `yaml:"poll"`
	Heartbeat time.Duration `yaml:"heartbeat"`
	Backend   string        `yaml:"backend"`
	Chip      string        `yaml:"chip"`
	HTTPAddr  string        `yaml:"http"`
	MQTT      MQTT          `yaml:"mqtt"`
}

// Pins returns the configured pins in file order.
func (c Config) Pins() []int {
	pins := make([]int, len(c.Buttons))
	for i, b := range c.Buttons {
		pins[i] = b.Pin
	}
	return pins
}

// Names maps each pin to its button name.
func (c Config) Names() map[int]string {
	names := make(map[int]string, len(c.Buttons))
	for _, b := range c.Buttons {
		names[b.Pin] = b.Name
	}
	return names
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes content, fills in defaults and validates the result.
func Parse(content []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(content, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = logic.DefaultDebounce
	}
	if c.LongPress <= 0 {
		c.LongPress = logic.DefaultLongPress
	}
	if c.Poll <= 0 {
		c.Poll = defaultPoll
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = defaultHeartbeat
	}
	if c.Backend == "" {
		c.Backend = BackendGPIOCDev
	}
	if c.Chip == "" {
		c.Chip = gpio.DefaultChip
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = defaultHTTPAddr
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = defaultBroker
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = defaultClientID
	}
	if c.MQTT.BufferSize <= 0 {
		c.MQTT.BufferSize = defaultBufferSize
	}
	for i, b := range c.Buttons {
		if b.Name == "" {
			c.Buttons[i].Name = fmt.Sprintf("GPIO%d", b.Pin)
		}
	}
}

// Validate checks the fields that have no sensible default.
func (c *Config) Validate() error {
	if len(c.Buttons) == 0 {
		return fmt.Errorf("at least one button must be configured")
	}
	if len(c.Buttons) > logic.MaxButtons {
		return fmt.Errorf("%d buttons configured, at most %d supported", len(c.Buttons), logic.MaxButtons)
	}
	seen := make(map[int]int)
	for i, b := range c.Buttons {
		if !gpio.ValidPin(b.Pin) {
			return fmt.Errorf("pin %d of button %d outside 0..%d", b.Pin, i, gpio.MaxPin)
		}
		if j, ok := seen[b.Pin]; ok {
			return fmt.Errorf("pin %d used by buttons %d and %d", b.Pin, j, i)
		}
		seen[b.Pin] = i
	}
	if c.Debounce >= c.LongPress {
		return fmt.Errorf("debounce (%v) must be shorter than longPress (%v)", c.Debounce, c.LongPress)
	}
	switch c.Backend {
	case BackendGPIOCDev, BackendPeriph:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}
