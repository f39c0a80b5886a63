package automation

import "github.com/skobkin/meshgo/internal/radio"

// textSender delivers an outgoing chat message asynchronously, satisfied
// by radio.Service.
type textSender interface {
	SendText(chatKey, text string) <-chan radio.SendResult
}

// tracerouteSender issues a traceroute request, satisfied by
// radio.Service.
type tracerouteSender interface {
	SendTraceroute(to uint32, channel uint32) (string, error)
}
