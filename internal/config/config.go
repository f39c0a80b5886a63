package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConnectorType identifies which transport backend should be used.
type ConnectorType string

// AutostartMode controls how the app is launched by OS autostart.
type AutostartMode string

const (
	ConnectorIP        ConnectorType = "ip"
	ConnectorBluetooth ConnectorType = "bluetooth"
	ConnectorSerial    ConnectorType = "serial"
	DefaultSerialBaud                = 115200

	AutostartModeNormal     AutostartMode = "normal"
	AutostartModeBackground AutostartMode = "background"
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	LogToFile bool   `json:"log_to_file" mapstructure:"log_to_file"`
}

// ConnectionConfig contains connector-specific connection parameters.
type ConnectionConfig struct {
	Connector        ConnectorType `json:"connector" mapstructure:"connector"`
	Host             string        `json:"host" mapstructure:"host"`
	SerialPort       string        `json:"serial_port" mapstructure:"serial_port"`
	SerialBaud       int           `json:"serial_baud" mapstructure:"serial_baud"`
	BluetoothAddress string        `json:"bluetooth_address" mapstructure:"bluetooth_address"`
	BluetoothAdapter string        `json:"bluetooth_adapter" mapstructure:"bluetooth_adapter"`
}

// UIConfig stores persistent UI preferences.
type UIConfig struct {
	LastSelectedChat string             `json:"last_selected_chat"`
	Autostart        AutostartConfig    `json:"autostart"`
	MapViewport      MapViewportConfig  `json:"map_viewport"`
	Notifications    NotificationConfig `json:"notifications"`
}

// AutostartConfig stores autostart preferences saved in user config.
type AutostartConfig struct {
	Enabled bool          `json:"enabled"`
	Mode    AutostartMode `json:"mode"`
}

// MapViewportConfig stores the latest map tab viewport selected by user.
type MapViewportConfig struct {
	Set  bool `json:"set"`
	Zoom int  `json:"zoom"`
	X    int  `json:"x"`
	Y    int  `json:"y"`
}

// NotificationConfig stores desktop notification preferences.
type NotificationConfig struct {
	NotifyWhenFocused bool                     `json:"notify_when_focused"`
	Events            NotificationEventsConfig `json:"events"`
}

// NotificationEventsConfig stores per-event notification toggles.
type NotificationEventsConfig struct {
	IncomingMessage  bool `json:"incoming_message"`
	NodeDiscovered   bool `json:"node_discovered"`
	ConnectionStatus bool `json:"connection_status"`
	UpdateAvailable  bool `json:"update_available"`
}

// VirtualNodeServerConfig controls the optional Virtual Node Server, which
// lets native Meshtastic clients connect to this process as if it were
// the physical radio.
type VirtualNodeServerConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	ListenAddr   string `json:"listen_addr" mapstructure:"listen_addr"`
	AdminAllowed bool   `json:"admin_allowed" mapstructure:"admin_allowed"`
}

// AutomationConfig is the raw JSON-persisted form of the automation
// engine's hook settings. It mirrors automation.Config field-for-field;
// the app layer converts it at startup rather than importing the
// automation package's types into the JSON schema directly.
type AutomationConfig struct {
	AutoAck struct {
		Enabled            bool   `json:"enabled" mapstructure:"enabled"`
		MatchPattern       string `json:"match_pattern" mapstructure:"match_pattern"`
		ReplyText          string `json:"reply_text" mapstructure:"reply_text"`
		DelaySeconds       int    `json:"delay_seconds" mapstructure:"delay_seconds"`
		SkipIncompleteNode bool   `json:"skip_incomplete_node" mapstructure:"skip_incomplete_node"`
	} `json:"auto_ack" mapstructure:"auto_ack"`
	AutoWelcome struct {
		Enabled      bool   `json:"enabled" mapstructure:"enabled"`
		GreetingText string `json:"greeting_text" mapstructure:"greeting_text"`
		WaitForName  bool   `json:"wait_for_name" mapstructure:"wait_for_name"`
		MaxHops      int    `json:"max_hops" mapstructure:"max_hops"`
	} `json:"auto_welcome" mapstructure:"auto_welcome"`
	AutoAnnounce struct {
		Enabled         bool   `json:"enabled" mapstructure:"enabled"`
		ChatKey         string `json:"chat_key" mapstructure:"chat_key"`
		Text            string `json:"text" mapstructure:"text"`
		IntervalSeconds int    `json:"interval_seconds" mapstructure:"interval_seconds"`
		OnStartup       bool   `json:"on_startup" mapstructure:"on_startup"`
	} `json:"auto_announce" mapstructure:"auto_announce"`
	AutoResponder struct {
		Enabled bool `json:"enabled" mapstructure:"enabled"`
		Rules   []struct {
			Pattern string `json:"pattern" mapstructure:"pattern"`
			Reply   string `json:"reply" mapstructure:"reply"`
		} `json:"rules" mapstructure:"rules"`
	} `json:"auto_responder" mapstructure:"auto_responder"`
	ScheduledTraceroute struct {
		Enabled         bool `json:"enabled" mapstructure:"enabled"`
		IntervalSeconds int  `json:"interval_seconds" mapstructure:"interval_seconds"`
		Filter          struct {
			ChannelEnabled   bool     `json:"channel_enabled" mapstructure:"channel_enabled"`
			Channel          uint32   `json:"channel" mapstructure:"channel"`
			RoleEnabled      bool     `json:"role_enabled" mapstructure:"role_enabled"`
			Role             string   `json:"role" mapstructure:"role"`
			HwModelEnabled   bool     `json:"hw_model_enabled" mapstructure:"hw_model_enabled"`
			HwModel          string   `json:"hw_model" mapstructure:"hw_model"`
			NameRegexEnabled bool     `json:"name_regex_enabled" mapstructure:"name_regex_enabled"`
			NameRegex        string   `json:"name_regex" mapstructure:"name_regex"`
			NodeIDsEnabled   bool     `json:"node_ids_enabled" mapstructure:"node_ids_enabled"`
			NodeIDs          []string `json:"node_ids" mapstructure:"node_ids"`
		} `json:"filter" mapstructure:"filter"`
	} `json:"scheduled_traceroute" mapstructure:"scheduled_traceroute"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Connection ConnectionConfig        `json:"connection"`
	Logging    LoggingConfig           `json:"logging"`
	UI         UIConfig                `json:"ui"`
	VNS        VirtualNodeServerConfig `json:"vns"`
	Automation AutomationConfig        `json:"automation"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			Connector:        ConnectorIP,
			Host:             "",
			SerialPort:       "",
			SerialBaud:       DefaultSerialBaud,
			BluetoothAddress: "",
			BluetoothAdapter: "",
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		UI: UIConfig{
			LastSelectedChat: "",
			Autostart: AutostartConfig{
				Enabled: false,
				Mode:    AutostartModeNormal,
			},
			MapViewport: MapViewportConfig{},
			Notifications: NotificationConfig{
				NotifyWhenFocused: false,
				Events: NotificationEventsConfig{
					IncomingMessage:  true,
					NodeDiscovered:   true,
					ConnectionStatus: true,
					UpdateAvailable:  true,
				},
			},
		},
		VNS: VirtualNodeServerConfig{
			Enabled:      false,
			ListenAddr:   ":4403",
			AdminAllowed: false,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("read config: %w", err)
		}
	} else if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.ApplyDefaults()

	if err := applyEnvOverrides(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("apply env overrides: %w", err)
	}

	return cfg, nil
}

func (c *AppConfig) ApplyDefaults() {
	if c.Connection.Connector == "" {
		c.Connection.Connector = ConnectorIP
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.UI.Autostart.Mode = normalizeAutostartMode(c.UI.Autostart.Mode)
	c.UI.MapViewport = normalizeMapViewport(c.UI.MapViewport)
	if c.VNS.ListenAddr == "" {
		c.VNS.ListenAddr = ":4403"
	}
}

func normalizeAutostartMode(mode AutostartMode) AutostartMode {
	switch mode {
	case AutostartModeBackground:
		return AutostartModeBackground
	default:
		return AutostartModeNormal
	}
}

func normalizeMapViewport(viewport MapViewportConfig) MapViewportConfig {
	if !viewport.Set {
		return MapViewportConfig{}
	}
	if viewport.Zoom < 0 {
		viewport.Zoom = 0
	}
	if viewport.Zoom > 19 {
		viewport.Zoom = 19
	}

	return viewport
}

func (c AppConfig) Validate() error {
	switch c.Connection.Connector {
	case ConnectorIP:
		if strings.TrimSpace(c.Connection.Host) == "" {
			return errors.New("ip host is required")
		}
	case ConnectorSerial:
		if strings.TrimSpace(c.Connection.SerialPort) == "" {
			return errors.New("serial port is required")
		}
		if c.Connection.SerialBaud <= 0 {
			return errors.New("serial baud must be positive")
		}
	case ConnectorBluetooth:
		if strings.TrimSpace(c.Connection.BluetoothAddress) == "" {
			return errors.New("bluetooth address is required")
		}
	default:
		return fmt.Errorf("unknown connector: %s", c.Connection.Connector)
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
