package automation

import "time"

// AutoAckConfig configures automatic replies to incoming text that
// matches a pattern.
type AutoAckConfig struct {
	Enabled            bool
	MatchPattern       string
	ReplyText          string
	Delay              time.Duration
	SkipIncompleteNode bool
}

// AutoWelcomeConfig configures the first-seen-node greeting.
type AutoWelcomeConfig struct {
	Enabled      bool
	GreetingText string
	WaitForName  bool
	MaxHops      int
}

// AutoAnnounceConfig configures a periodic broadcast announcement.
type AutoAnnounceConfig struct {
	Enabled   bool
	ChatKey   string
	Text      string
	Interval  time.Duration
	OnStartup bool
}

// AutoResponderRule is one triggered-message matching rule: the first
// rule whose Pattern matches an incoming message's body wins.
type AutoResponderRule struct {
	Pattern string
	Reply   string
}

// AutoResponderConfig configures the triggered-message table.
type AutoResponderConfig struct {
	Enabled bool
	Rules   []AutoResponderRule
}

// ScheduledTracerouteFilter narrows the destination pool for scheduled
// traceroutes. Each dimension only applies when its Enabled bit is set.
type ScheduledTracerouteFilter struct {
	ChannelEnabled bool
	Channel        uint32

	RoleEnabled bool
	Role        string

	HwModelEnabled bool
	HwModel        string

	NameRegexEnabled bool
	NameRegex        string

	NodeIDsEnabled bool
	NodeIDs        []string
}

// ScheduledTracerouteConfig configures periodic traceroute probing of
// the mesh.
type ScheduledTracerouteConfig struct {
	Enabled  bool
	Interval time.Duration
	Filter   ScheduledTracerouteFilter
}

// Config aggregates every automation hook's configuration.
type Config struct {
	AutoAck             AutoAckConfig
	AutoWelcome         AutoWelcomeConfig
	AutoAnnounce        AutoAnnounceConfig
	AutoResponder       AutoResponderConfig
	ScheduledTraceroute ScheduledTracerouteConfig
}
