package config

import "testing"

func TestApplyEnvOverrides_NoEnvVarsLeavesConfigUnchanged(t *testing.T) {
	cfg := Default()
	cfg.Connection.Host = "192.168.1.50"

	if err := applyEnvOverrides(&cfg); err != nil {
		t.Fatalf("apply env overrides: %v", err)
	}

	if cfg.Connection.Host != "192.168.1.50" {
		t.Fatalf("expected host to remain unchanged, got %q", cfg.Connection.Host)
	}
	if cfg.Connection.Connector != ConnectorIP {
		t.Fatalf("expected connector to remain unchanged, got %q", cfg.Connection.Connector)
	}
}

func TestApplyEnvOverrides_OverridesBoundKeys(t *testing.T) {
	t.Setenv("MESHMONITOR_CONNECTION_HOST", "10.0.0.5")
	t.Setenv("MESHMONITOR_CONNECTION_SERIAL_BAUD", "57600")
	t.Setenv("MESHMONITOR_VNS_ENABLED", "true")
	t.Setenv("MESHMONITOR_AUTOMATION_AUTO_ACK_REPLY_TEXT", "received")

	cfg := Default()
	if err := applyEnvOverrides(&cfg); err != nil {
		t.Fatalf("apply env overrides: %v", err)
	}

	if cfg.Connection.Host != "10.0.0.5" {
		t.Fatalf("expected host override, got %q", cfg.Connection.Host)
	}
	if cfg.Connection.SerialBaud != 57600 {
		t.Fatalf("expected serial baud override, got %d", cfg.Connection.SerialBaud)
	}
	if !cfg.VNS.Enabled {
		t.Fatalf("expected vns enabled override")
	}
	if cfg.Automation.AutoAck.ReplyText != "received" {
		t.Fatalf("expected auto-ack reply text override, got %q", cfg.Automation.AutoAck.ReplyText)
	}
}

func TestApplyEnvOverrides_LeavesUIStateUntouched(t *testing.T) {
	t.Setenv("MESHMONITOR_CONNECTION_HOST", "10.0.0.5")

	cfg := Default()
	cfg.UI.LastSelectedChat = "channel:0"

	if err := applyEnvOverrides(&cfg); err != nil {
		t.Fatalf("apply env overrides: %v", err)
	}

	if cfg.UI.LastSelectedChat != "channel:0" {
		t.Fatalf("expected UI state to be untouched by env overrides, got %q", cfg.UI.LastSelectedChat)
	}
}
