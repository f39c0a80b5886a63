package connectors

const (
	TopicConnStatus       = "conn.status"
	TopicRadioFrom        = "radio.from"
	TopicNodeInfo         = "node.info"
	TopicChannels         = "channels"
	TopicTextMessage      = "text.message"
	TopicMessageStatus    = "message.status"
	TopicConfigSnapshot   = "config.snapshot"
	TopicAdminMessage     = "admin.message"
	TopicTraceroute       = "traceroute"
	TopicTracerouteUpdate = "traceroute.update"
	TopicRawFrameIn       = "raw.frame.in"
	TopicRawFrameOut      = "raw.frame.out"
	TopicNodeDiscovered   = "node.discovered"
	TopicUpdateSnapshot   = "update.snapshot"
)
