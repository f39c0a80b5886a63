package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// envPrefix namespaces every environment variable this process reads, so
// MESHMONITOR_CONNECTION_HOST overrides connection.host, and so on.
const envPrefix = "MESHMONITOR"

// envOverlay mirrors AppConfig's operator-facing sections only: the UI
// section is per-user, mutable state the GUI persists back to disk as the
// user interacts with it, never something an operator sets once via the
// environment.
type envOverlay struct {
	Connection ConnectionConfig        `mapstructure:"connection"`
	Logging    LoggingConfig           `mapstructure:"logging"`
	VNS        VirtualNodeServerConfig `mapstructure:"vns"`
	Automation AutomationConfig        `mapstructure:"automation"`
}

// envBoundKeys lists every leaf key AutomaticEnv needs bound explicitly
// before Unmarshal will see it — viper's automatic env matching only
// reaches keys it already knows about from a prior Set/BindEnv/config file
// read, so nested struct fields used solely via Unmarshal must be bound by
// hand. Slice-valued leaves (automation.auto_responder.rules,
// automation.scheduled_traceroute.filter.node_ids) are left out: there is
// no sane flat env-var encoding for a list of structs or strings here, so
// those remain settable only via the settings file.
var envBoundKeys = []string{
	"connection.connector",
	"connection.host",
	"connection.serial_port",
	"connection.serial_baud",
	"connection.bluetooth_address",
	"connection.bluetooth_adapter",
	"logging.level",
	"logging.log_to_file",
	"vns.enabled",
	"vns.listen_addr",
	"vns.admin_allowed",
	"automation.auto_ack.enabled",
	"automation.auto_ack.match_pattern",
	"automation.auto_ack.reply_text",
	"automation.auto_ack.delay_seconds",
	"automation.auto_ack.skip_incomplete_node",
	"automation.auto_welcome.enabled",
	"automation.auto_welcome.greeting_text",
	"automation.auto_welcome.wait_for_name",
	"automation.auto_welcome.max_hops",
	"automation.auto_announce.enabled",
	"automation.auto_announce.chat_key",
	"automation.auto_announce.text",
	"automation.auto_announce.interval_seconds",
	"automation.auto_announce.on_startup",
	"automation.auto_responder.enabled",
	"automation.scheduled_traceroute.enabled",
	"automation.scheduled_traceroute.interval_seconds",
	"automation.scheduled_traceroute.filter.channel_enabled",
	"automation.scheduled_traceroute.filter.channel",
	"automation.scheduled_traceroute.filter.role_enabled",
	"automation.scheduled_traceroute.filter.role",
	"automation.scheduled_traceroute.filter.hw_model_enabled",
	"automation.scheduled_traceroute.filter.hw_model",
	"automation.scheduled_traceroute.filter.name_regex_enabled",
	"automation.scheduled_traceroute.filter.name_regex",
	"automation.scheduled_traceroute.filter.node_ids_enabled",
}

// applyEnvOverrides layers MESHMONITOR_-prefixed environment variables on
// top of the settings-file-derived config, the way a headless deployment
// overrides per-user defaults with operator-controlled values. Follows
// iamruinous-meshtastic-message-relay/internal/config's
// SetEnvPrefix+AutomaticEnv pattern, but decodes via a single struct
// Unmarshal (go-viper/mapstructure/v2, bundled with viper) instead of
// per-field Get calls, since every bound key here maps directly onto an
// existing struct field.
func applyEnvOverrides(cfg *AppConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	for _, key := range envBoundKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env key %s: %w", key, err)
		}
	}

	overlay := envOverlay{
		Connection: cfg.Connection,
		Logging:    cfg.Logging,
		VNS:        cfg.VNS,
		Automation: cfg.Automation,
	}
	if err := v.Unmarshal(&overlay); err != nil {
		return fmt.Errorf("unmarshal env config: %w", err)
	}

	cfg.Connection = overlay.Connection
	cfg.Logging = overlay.Logging
	cfg.VNS = overlay.VNS
	cfg.Automation = overlay.Automation

	return nil
}
