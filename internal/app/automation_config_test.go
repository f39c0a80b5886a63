package app

import (
	"testing"
	"time"

	"github.com/skobkin/meshgo/internal/config"
)

func TestAutomationConfigFromJSONMapsAllHooks(t *testing.T) {
	var raw config.AutomationConfig
	raw.AutoAck.Enabled = true
	raw.AutoAck.MatchPattern = "^ping$"
	raw.AutoAck.ReplyText = "pong"
	raw.AutoAck.DelaySeconds = 5
	raw.AutoAck.SkipIncompleteNode = true
	raw.AutoWelcome.Enabled = true
	raw.AutoWelcome.GreetingText = "welcome"
	raw.AutoWelcome.WaitForName = true
	raw.AutoWelcome.MaxHops = 3
	raw.AutoAnnounce.Enabled = true
	raw.AutoAnnounce.ChatKey = "channel:0"
	raw.AutoAnnounce.Text = "announcement"
	raw.AutoAnnounce.IntervalSeconds = 3600
	raw.AutoAnnounce.OnStartup = true
	raw.AutoResponder.Enabled = true
	raw.AutoResponder.Rules = []struct {
		Pattern string `json:"pattern"`
		Reply   string `json:"reply"`
	}{{Pattern: "^ping$", Reply: "pong"}}
	raw.ScheduledTraceroute.Enabled = true
	raw.ScheduledTraceroute.IntervalSeconds = 1800
	raw.ScheduledTraceroute.Filter.RoleEnabled = true
	raw.ScheduledTraceroute.Filter.Role = "router"

	got := automationConfigFromJSON(raw)

	if !got.AutoAck.Enabled || got.AutoAck.MatchPattern != "^ping$" || got.AutoAck.Delay != 5*time.Second {
		t.Fatalf("unexpected auto-ack mapping: %+v", got.AutoAck)
	}
	if !got.AutoWelcome.Enabled || got.AutoWelcome.GreetingText != "welcome" || got.AutoWelcome.MaxHops != 3 {
		t.Fatalf("unexpected auto-welcome mapping: %+v", got.AutoWelcome)
	}
	if !got.AutoAnnounce.Enabled || got.AutoAnnounce.Interval != time.Hour {
		t.Fatalf("unexpected auto-announce mapping: %+v", got.AutoAnnounce)
	}
	if !got.AutoResponder.Enabled || len(got.AutoResponder.Rules) != 1 || got.AutoResponder.Rules[0].Reply != "pong" {
		t.Fatalf("unexpected auto-responder mapping: %+v", got.AutoResponder)
	}
	if !got.ScheduledTraceroute.Enabled || got.ScheduledTraceroute.Interval != 30*time.Minute {
		t.Fatalf("unexpected scheduled traceroute mapping: %+v", got.ScheduledTraceroute)
	}
	if !got.ScheduledTraceroute.Filter.RoleEnabled || got.ScheduledTraceroute.Filter.Role != "router" {
		t.Fatalf("unexpected scheduled traceroute filter mapping: %+v", got.ScheduledTraceroute.Filter)
	}
}

func TestAutomationConfigFromJSONDefaultsToAllDisabled(t *testing.T) {
	got := automationConfigFromJSON(config.AutomationConfig{})

	if got.AutoAck.Enabled || got.AutoWelcome.Enabled || got.AutoAnnounce.Enabled ||
		got.AutoResponder.Enabled || got.ScheduledTraceroute.Enabled {
		t.Fatalf("expected every hook disabled by default, got %+v", got)
	}
}

func TestAutomationConfigFromJSONNilRulesWhenEmpty(t *testing.T) {
	got := automationConfigFromJSON(config.AutomationConfig{})

	if got.AutoResponder.Rules != nil {
		t.Fatalf("expected nil rules slice when none configured, got %+v", got.AutoResponder.Rules)
	}
}
