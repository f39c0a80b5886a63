package domain

import "testing"

func TestChatStore_AppendMessage_DedupesByDeviceMessageID(t *testing.T) {
	store := NewChatStore()

	store.AppendMessage(ChatMessage{
		ChatKey:         "dm:!1234abcd",
		DeviceMessageID: "100",
		Direction:       MessageDirectionOut,
		Body:            "hello",
		Status:          MessageStatusPending,
	})
	store.AppendMessage(ChatMessage{
		ChatKey:         "dm:!1234abcd",
		DeviceMessageID: "100",
		Direction:       MessageDirectionOut,
		Body:            "hello",
		Status:          MessageStatusPending,
	})

	msgs := store.Messages("dm:!1234abcd")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message after dedupe, got %d", len(msgs))
	}
	if msgs[0].Status != MessageStatusPending {
		t.Fatalf("expected status pending, got %v", msgs[0].Status)
	}
}

func TestChatStore_DeleteMessage_RemovesOnlyMatchingLocalID(t *testing.T) {
	store := NewChatStore()
	store.Load(nil, map[string][]ChatMessage{
		"channel:0": {
			{LocalID: 1, ChatKey: "channel:0", Body: "one"},
			{LocalID: 2, ChatKey: "channel:0", Body: "two"},
		},
	})

	if !store.DeleteMessage(1) {
		t.Fatalf("expected message 1 to be found and deleted")
	}
	if store.DeleteMessage(1) {
		t.Fatalf("expected second delete of the same id to report not found")
	}

	msgs := store.Messages("channel:0")
	if len(msgs) != 1 || msgs[0].LocalID != 2 {
		t.Fatalf("expected only message 2 to remain, got %+v", msgs)
	}
}

func TestChatStore_DeleteMessagesForChat_ClearsChatButKeepsOthers(t *testing.T) {
	store := NewChatStore()
	store.Load(nil, map[string][]ChatMessage{
		"channel:0": {{LocalID: 1, ChatKey: "channel:0", Body: "a"}},
		"dm:!aaaa":  {{LocalID: 2, ChatKey: "dm:!aaaa", Body: "b"}},
	})

	removed := store.DeleteMessagesForChat("channel:0")
	if removed != 1 {
		t.Fatalf("expected 1 message removed, got %d", removed)
	}
	if len(store.Messages("channel:0")) != 0 {
		t.Fatalf("expected channel:0 to be empty")
	}
	if len(store.Messages("dm:!aaaa")) != 1 {
		t.Fatalf("expected dm:!aaaa to be untouched")
	}
}

func TestChatStore_DeleteMessagesForNode_CascadesAcrossDMAndChannels(t *testing.T) {
	store := NewChatStore()
	store.Load(nil, map[string][]ChatMessage{
		"dm:!aaaabbbb": {
			{LocalID: 1, ChatKey: "dm:!aaaabbbb", Body: "direct"},
		},
		"channel:0": {
			{LocalID: 2, ChatKey: "channel:0", Direction: MessageDirectionIn, Body: "from node", MetaJSON: `{"from":"!aaaabbbb"}`},
			{LocalID: 3, ChatKey: "channel:0", Direction: MessageDirectionIn, Body: "from someone else", MetaJSON: `{"from":"!11112222"}`},
			{LocalID: 4, ChatKey: "channel:0", Direction: MessageDirectionOut, Body: "sent by me"},
		},
	})

	removed := store.DeleteMessagesForNode("!aaaabbbb")
	if removed != 2 {
		t.Fatalf("expected 2 messages removed (dm + channel post), got %d", removed)
	}
	if len(store.Messages("dm:!aaaabbbb")) != 0 {
		t.Fatalf("expected dm thread to be gone")
	}

	remaining := store.Messages("channel:0")
	if len(remaining) != 2 {
		t.Fatalf("expected 2 channel messages to remain, got %d", len(remaining))
	}
	for _, m := range remaining {
		if m.LocalID == 2 {
			t.Fatalf("expected node's channel post to be removed, found %+v", m)
		}
	}
}
