package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings
// coordinator; every connectivity component takes its section, none read the
// environment themselves
type Config struct {
	Server   *ServerConfig   `json:"server"`
	Store    *StoreConfig    `json:"store"`
	Realtime *RealtimeConfig `json:"realtime"`
	Presence *PresenceConfig `json:"presence"`
	Cache    *CacheConfig    `json:"cache"`
	Push     *PushConfig     `json:"push"`
}

// ServerConfig locates the backend shared by REST and realtime traffic.
type ServerConfig struct {
	BaseURL        string        `json:"base_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// StoreConfig holds the local SQLite database paths.
type StoreConfig struct {
	CredentialsPath string `json:"credentials_path"`
	CachePath       string `json:"cache_path"`
}

// RealtimeConfig tunes the websocket channel timings and buffers.
type RealtimeConfig struct {
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout"`
	PingInterval     time.Duration `json:"ping_interval"`
	ReadTimeout      time.Duration `json:"read_timeout"`
	ReconnectInitial time.Duration `json:"reconnect_initial"`
	ReconnectMax     time.Duration `json:"reconnect_max"`
	SendBuffer       int           `json:"send_buffer"`
}

// PresenceConfig tunes the typing-indicator windows.
type PresenceConfig struct {
	QuiescenceWindow time.Duration `json:"quiescence_window"`
	TypingDebounce   time.Duration `json:"typing_debounce"`
}

// CacheConfig names the active cache generation; bumping it sweeps every
// entry stored by prior builds.
type CacheConfig struct {
	Generation string `json:"generation"`
}

// PushConfig holds the notification delivery settings.
type PushConfig struct {
	GatewayURL        string `json:"gateway_url"`
	PermissionGranted bool   `json:"permission_granted"`
}

// FUNCTIONAL DISCOVERY: Defaults target a local development backend; the
// realtime timings mirror the server's 30s heartbeat with a 60s read window
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: 30 * time.Second,
		},
		Store: &StoreConfig{
			CredentialsPath: "./teamwire.db",
			CachePath:       "./teamwire-cache.db",
		},
		Realtime: &RealtimeConfig{
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     10 * time.Second,
			PingInterval:     30 * time.Second,
			ReadTimeout:      60 * time.Second,
			ReconnectInitial: 500 * time.Millisecond,
			ReconnectMax:     30 * time.Second,
			SendBuffer:       100,
		},
		Presence: &PresenceConfig{
			QuiescenceWindow: 3 * time.Second,
			TypingDebounce:   300 * time.Millisecond,
		},
		Cache: &CacheConfig{
			Generation: "v1",
		},
		Push: &PushConfig{
			GatewayURL:        "https://push.teamwire.local/send",
			PermissionGranted: false,
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid client
// configurations before any connection is attempted
func (c *Config) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("server configuration is required")
	}

	if c.Server.BaseURL == "" {
		return fmt.Errorf("server base URL cannot be empty")
	}

	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server request timeout must be positive")
	}

	if c.Store == nil {
		return fmt.Errorf("store configuration is required")
	}

	if c.Store.CredentialsPath == "" {
		return fmt.Errorf("credentials path cannot be empty")
	}

	if c.Store.CachePath == "" {
		return fmt.Errorf("cache path cannot be empty")
	}

	if c.Realtime == nil {
		return fmt.Errorf("realtime configuration is required")
	}

	if c.Realtime.HandshakeTimeout <= 0 {
		return fmt.Errorf("realtime handshake timeout must be positive")
	}

	if c.Realtime.WriteTimeout <= 0 {
		return fmt.Errorf("realtime write timeout must be positive")
	}

	if c.Realtime.PingInterval <= 0 {
		return fmt.Errorf("realtime ping interval must be positive")
	}

	if c.Realtime.ReadTimeout <= 0 {
		return fmt.Errorf("realtime read timeout must be positive")
	}

	if c.Realtime.ReconnectInitial <= 0 {
		return fmt.Errorf("realtime initial reconnect delay must be positive")
	}

	if c.Realtime.ReconnectMax < c.Realtime.ReconnectInitial {
		return fmt.Errorf("realtime maximum reconnect delay must be at least the initial delay")
	}

	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("realtime send buffer size must be positive")
	}

	if c.Presence == nil {
		return fmt.Errorf("presence configuration is required")
	}

	if c.Presence.QuiescenceWindow <= 0 {
		return fmt.Errorf("presence quiescence window must be positive")
	}

	if c.Presence.TypingDebounce <= 0 {
		return fmt.Errorf("presence typing debounce must be positive")
	}

	if c.Cache == nil {
		return fmt.Errorf("cache configuration is required")
	}

	if c.Cache.Generation == "" {
		return fmt.Errorf("cache generation cannot be empty")
	}

	if c.Push == nil {
		return fmt.Errorf("push configuration is required")
	}

	if c.Push.GatewayURL == "" {
		return fmt.Errorf("push gateway URL cannot be empty")
	}

	return nil
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment
// flexibility without a config file
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if baseURL := os.Getenv("TEAMWIRE_SERVER_URL"); baseURL != "" {
		config.Server.BaseURL = baseURL
	}

	if timeout := os.Getenv("TEAMWIRE_REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.RequestTimeout = d
		}
	}

	if path := os.Getenv("TEAMWIRE_CREDENTIALS_PATH"); path != "" {
		config.Store.CredentialsPath = path
	}

	if path := os.Getenv("TEAMWIRE_CACHE_PATH"); path != "" {
		config.Store.CachePath = path
	}

	if pingInterval := os.Getenv("TEAMWIRE_PING_INTERVAL"); pingInterval != "" {
		if d, err := time.ParseDuration(pingInterval); err == nil {
			config.Realtime.PingInterval = d
		}
	}

	if readTimeout := os.Getenv("TEAMWIRE_READ_TIMEOUT"); readTimeout != "" {
		if d, err := time.ParseDuration(readTimeout); err == nil {
			config.Realtime.ReadTimeout = d
		}
	}

	if writeTimeout := os.Getenv("TEAMWIRE_WRITE_TIMEOUT"); writeTimeout != "" {
		if d, err := time.ParseDuration(writeTimeout); err == nil {
			config.Realtime.WriteTimeout = d
		}
	}

	if initial := os.Getenv("TEAMWIRE_RECONNECT_INITIAL"); initial != "" {
		if d, err := time.ParseDuration(initial); err == nil {
			config.Realtime.ReconnectInitial = d
		}
	}

	if max := os.Getenv("TEAMWIRE_RECONNECT_MAX"); max != "" {
		if d, err := time.ParseDuration(max); err == nil {
			config.Realtime.ReconnectMax = d
		}
	}

	if bufferSize := os.Getenv("TEAMWIRE_SEND_BUFFER"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.Realtime.SendBuffer = size
		}
	}

	if window := os.Getenv("TEAMWIRE_QUIESCENCE_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			config.Presence.QuiescenceWindow = d
		}
	}

	if debounce := os.Getenv("TEAMWIRE_TYPING_DEBOUNCE"); debounce != "" {
		if d, err := time.ParseDuration(debounce); err == nil {
			config.Presence.TypingDebounce = d
		}
	}

	if generation := os.Getenv("TEAMWIRE_CACHE_GENERATION"); generation != "" {
		config.Cache.Generation = generation
	}

	if gatewayURL := os.Getenv("TEAMWIRE_PUSH_GATEWAY"); gatewayURL != "" {
		config.Push.GatewayURL = gatewayURL
	}

	if granted := os.Getenv("TEAMWIRE_PUSH_PERMISSION"); granted != "" {
		if b, err := strconv.ParseBool(granted); err == nil {
			config.Push.PermissionGranted = b
		}
	}

	return config
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration
// strings
type ConfigFile struct {
	Server   *ServerConfigFile   `json:"server"`
	Store    *StoreConfigFile    `json:"store"`
	Realtime *RealtimeConfigFile `json:"realtime"`
	Presence *PresenceConfigFile `json:"presence"`
	Cache    *CacheConfigFile    `json:"cache"`
	Push     *PushConfigFile     `json:"push"`
}

type ServerConfigFile struct {
	BaseURL        string `json:"base_url"`
	RequestTimeout string `json:"request_timeout"`
}

type StoreConfigFile struct {
	CredentialsPath string `json:"credentials_path"`
	CachePath       string `json:"cache_path"`
}

type RealtimeConfigFile struct {
	HandshakeTimeout string `json:"handshake_timeout"`
	WriteTimeout     string `json:"write_timeout"`
	PingInterval     string `json:"ping_interval"`
	ReadTimeout      string `json:"read_timeout"`
	ReconnectInitial string `json:"reconnect_initial"`
	ReconnectMax     string `json:"reconnect_max"`
	SendBuffer       int    `json:"send_buffer"`
}

type PresenceConfigFile struct {
	QuiescenceWindow string `json:"quiescence_window"`
	TypingDebounce   string `json:"typing_debounce"`
}

type CacheConfigFile struct {
	Generation string `json:"generation"`
}

type PushConfigFile struct {
	GatewayURL        string `json:"gateway_url"`
	PermissionGranted *bool  `json:"permission_granted"`
}

// FUNCTIONAL DISCOVERY: File-based configuration supports complex deployment
// scenarios; JSON format chosen for readability and tooling support
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	// Convert to runtime config with duration parsing
	config := DefaultConfig()

	if configFile.Server != nil {
		if configFile.Server.BaseURL != "" {
			config.Server.BaseURL = configFile.Server.BaseURL
		}
		if configFile.Server.RequestTimeout != "" {
			if d, err := time.ParseDuration(configFile.Server.RequestTimeout); err == nil {
				config.Server.RequestTimeout = d
			}
		}
	}

	if configFile.Store != nil {
		if configFile.Store.CredentialsPath != "" {
			config.Store.CredentialsPath = configFile.Store.CredentialsPath
		}
		if configFile.Store.CachePath != "" {
			config.Store.CachePath = configFile.Store.CachePath
		}
	}

	if configFile.Realtime != nil {
		if configFile.Realtime.SendBuffer > 0 {
			config.Realtime.SendBuffer = configFile.Realtime.SendBuffer
		}
		if configFile.Realtime.HandshakeTimeout != "" {
			if d, err := time.ParseDuration(configFile.Realtime.HandshakeTimeout); err == nil {
				config.Realtime.HandshakeTimeout = d
			}
		}
		if configFile.Realtime.WriteTimeout != "" {
			if d, err := time.ParseDuration(configFile.Realtime.WriteTimeout); err == nil {
				config.Realtime.WriteTimeout = d
			}
		}
		if configFile.Realtime.PingInterval != "" {
			if d, err := time.ParseDuration(configFile.Realtime.PingInterval); err == nil {
				config.Realtime.PingInterval = d
			}
		}
		if configFile.Realtime.ReadTimeout != "" {
			if d, err := time.ParseDuration(configFile.Realtime.ReadTimeout); err == nil {
				config.Realtime.ReadTimeout = d
			}
		}
		if configFile.Realtime.ReconnectInitial != "" {
			if d, err := time.ParseDuration(configFile.Realtime.ReconnectInitial); err == nil {
				config.Realtime.ReconnectInitial = d
			}
		}
		if configFile.Realtime.ReconnectMax != "" {
			if d, err := time.ParseDuration(configFile.Realtime.ReconnectMax); err == nil {
				config.Realtime.ReconnectMax = d
			}
		}
	}

	if configFile.Presence != nil {
		if configFile.Presence.QuiescenceWindow != "" {
			if d, err := time.ParseDuration(configFile.Presence.QuiescenceWindow); err == nil {
				config.Presence.QuiescenceWindow = d
			}
		}
		if configFile.Presence.TypingDebounce != "" {
			if d, err := time.ParseDuration(configFile.Presence.TypingDebounce); err == nil {
				config.Presence.TypingDebounce = d
			}
		}
	}

	if configFile.Cache != nil && configFile.Cache.Generation != "" {
		config.Cache.Generation = configFile.Cache.Generation
	}

	if configFile.Push != nil {
		if configFile.Push.GatewayURL != "" {
			config.Push.GatewayURL = configFile.Push.GatewayURL
		}
		if configFile.Push.PermissionGranted != nil {
			config.Push.PermissionGranted = *configFile.Push.PermissionGranted
		}
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch
	// errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	// Override with file if provided and readable
	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// Silently ignore file errors - environment/defaults still work
	}

	return config
}
