package domain

import (
	"fmt"
	"strings"
)

const dmChatKeyPrefix = "dm:"

func ChatKeyForChannel(index int) string {
	return fmt.Sprintf("channel:%d", index)
}

func ChatKeyForDM(nodeID string) string {
	return dmChatKeyPrefix + nodeID
}

// IsDMKey reports whether chatKey identifies a direct-message chat.
func IsDMKey(chatKey string) bool {
	return strings.HasPrefix(strings.TrimSpace(chatKey), dmChatKeyPrefix)
}

// IsDMChat reports whether chat is a direct-message chat, either by its
// declared Type or, as a fallback, by its Key's prefix.
func IsDMChat(chat Chat) bool {
	return chat.Type == ChatTypeDM || IsDMKey(chat.Key)
}

// ChatTypeForKey infers a chat's type from its key when no explicit
// Chat record is available; unrecognized keys default to channel.
func ChatTypeForKey(chatKey string) ChatType {
	if IsDMKey(chatKey) {
		return ChatTypeDM
	}

	return ChatTypeChannel
}

// NodeIDFromDMChatKey extracts the node id from a direct-message chat
// key, or "" if chatKey is not a DM key.
func NodeIDFromDMChatKey(chatKey string) string {
	trimmed := strings.TrimSpace(chatKey)
	if !strings.HasPrefix(trimmed, dmChatKeyPrefix) {
		return ""
	}

	return strings.TrimPrefix(trimmed, dmChatKeyPrefix)
}

// NodeDisplayNameByID resolves a node id to its best available display
// name (long name, then short name, then the id itself), looking it up
// in store. A nil store or unknown id falls back to the id itself.
func NodeDisplayNameByID(store *NodeStore, nodeID string) string {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return ""
	}
	if store == nil {
		return nodeID
	}
	node, ok := store.Get(nodeID)
	if !ok {
		return nodeID
	}
	if longName := strings.TrimSpace(node.LongName); longName != "" {
		return longName
	}
	if shortName := strings.TrimSpace(node.ShortName); shortName != "" {
		return shortName
	}

	return nodeID
}
