package automation

import (
	"sync"

	"github.com/skobkin/meshgo/internal/domain"
	"github.com/skobkin/meshgo/internal/radio"
)

type fakeTextSender struct {
	mu   sync.Mutex
	sent []sentText
	err  error
}

type sentText struct {
	chatKey string
	text    string
}

func (f *fakeTextSender) SendText(chatKey, text string) <-chan radio.SendResult {
	f.mu.Lock()
	f.sent = append(f.sent, sentText{chatKey: chatKey, text: text})
	f.mu.Unlock()

	ch := make(chan radio.SendResult, 1)
	if f.err != nil {
		ch <- radio.SendResult{Err: f.err}
	} else {
		ch <- radio.SendResult{Message: domain.ChatMessage{ChatKey: chatKey, Body: text}}
	}
	close(ch)

	return ch
}

func (f *fakeTextSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sent)
}

func (f *fakeTextSender) last() sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentText{}
	}

	return f.sent[len(f.sent)-1]
}

type fakeTracerouteSender struct {
	mu    sync.Mutex
	calls []tracerouteCall
}

type tracerouteCall struct {
	to      uint32
	channel uint32
}

func (f *fakeTracerouteSender) SendTraceroute(to uint32, channel uint32) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, tracerouteCall{to: to, channel: channel})
	f.mu.Unlock()

	return "1", nil
}

func (f *fakeTracerouteSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}
