// Package httpapi provides the operations the external HTTP surface
// honors (Poll, ConnectionStatus, SendMessage, SendTraceroute,
// RequestPosition, SetFavorite, SetIgnored, and the message/node delete
// family) as a plain Go facade, independent of any particular transport.
// Core wraps app.Runtime's stores and services; the HTTP/auth/CSRF layer
// itself is out of scope and left to whatever wraps Core.
package httpapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/skobkin/meshgo/internal/app"
	"github.com/skobkin/meshgo/internal/domain"
	"github.com/skobkin/meshgo/internal/meshtastic"
	"github.com/skobkin/meshgo/internal/persistence"
	"github.com/skobkin/meshgo/internal/radio"
	"github.com/skobkin/meshgo/internal/snapshot"
)

// SendMessageRequest mirrors the HTTP contract's POST /api/messages/send
// body. ReplyID/Emoji are accepted for contract completeness but are not
// yet wired to tapback/reaction encoding (see DESIGN.md).
type SendMessageRequest struct {
	Text        string
	Channel     *int
	Destination string
	ReplyID     string
	Emoji       bool
}

// Core implements every operation the HTTP surface contract names. It
// performs in-memory store mutations synchronously (so the next Poll
// reflects them immediately) and enqueues their durable persistence
// asynchronously via persistence.WriterQueue, the same split the radio
// ingestion path uses.
type Core struct {
	nodeStore   *domain.NodeStore
	chatStore   *domain.ChatStore
	radio       *app.TracerouteService
	positioner  positionRequester
	textSender  textSender
	resyncer    resyncer
	admin       adminSender
	nodeRepo    *persistence.NodeRepo
	messageRepo *persistence.MessageRepo
	writerQueue *persistence.WriterQueue
	snapshotSvc *snapshot.Service
}

type positionRequester interface {
	RequestPosition(to uint32, channel uint32) (string, error)
}

type textSender interface {
	SendText(chatKey, text string) <-chan radio.SendResult
}

type resyncer interface {
	RefreshNodes(ctx context.Context) error
}

type adminSender interface {
	SendAdmin(to uint32, channel uint32, wantResponse bool, payload *meshtastic.AdminMessage) (string, error)
}

// NewCore builds a Core from the runtime's live stores and services.
func NewCore(
	nodeStore *domain.NodeStore,
	chatStore *domain.ChatStore,
	traceroute *app.TracerouteService,
	positioner positionRequester,
	sender textSender,
	resync resyncer,
	admin adminSender,
	nodeRepo *persistence.NodeRepo,
	messageRepo *persistence.MessageRepo,
	writerQueue *persistence.WriterQueue,
	snapshotSvc *snapshot.Service,
) *Core {
	return &Core{
		nodeStore:   nodeStore,
		chatStore:   chatStore,
		radio:       traceroute,
		positioner:  positioner,
		textSender:  sender,
		resyncer:    resync,
		admin:       admin,
		nodeRepo:    nodeRepo,
		messageRepo: messageRepo,
		writerQueue: writerQueue,
		snapshotSvc: snapshotSvc,
	}
}

// Poll returns a consistent point-in-time view of the mesh.
func (c *Core) Poll() snapshot.Snapshot {
	return c.snapshotSvc.Poll()
}

// ConnectionStatus returns just the connection details portion of Poll.
func (c *Core) ConnectionStatus() snapshot.Connection {
	return c.snapshotSvc.Poll().Connection
}

// SendMessage mints a pending message on the requested chat and returns
// its device-tracked request id.
func (c *Core) SendMessage(req SendMessageRequest) (string, error) {
	chatKey, err := chatKeyFromRequest(req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", fmt.Errorf("message text is required")
	}

	result := <-c.textSender.SendText(chatKey, text)
	if result.Err != nil {
		return "", fmt.Errorf("send message: %w", result.Err)
	}

	return result.Message.DeviceMessageID, nil
}

func chatKeyFromRequest(req SendMessageRequest) (string, error) {
	if req.Channel != nil {
		return domain.ChatKeyForChannel(*req.Channel), nil
	}
	destination := strings.TrimSpace(req.Destination)
	if destination == "" {
		return "", fmt.Errorf("either channel or destination is required")
	}

	return domain.ChatKeyForDM(destination), nil
}

// SendTraceroute issues a traceroute request against destination.
func (c *Core) SendTraceroute(ctx context.Context, destination string) (string, error) {
	update, err := c.radio.StartTraceroute(ctx, app.TracerouteTarget{NodeID: destination})
	if err != nil {
		return "", err
	}

	return strconv.FormatUint(uint64(update.RequestID), 10), nil
}

// RequestPosition sends a position request to destination with
// wantResponse set, asking it to reply with its own position. The request
// carries an empty Position, not the local node's coordinates.
func (c *Core) RequestPosition(destination string) (string, error) {
	nodeNum, err := parseNodeNum(destination)
	if err != nil {
		return "", err
	}

	return c.positioner.RequestPosition(nodeNum, 0)
}

// SetFavorite updates nodeID's favorite flag, both in-memory and (async)
// in persistent storage.
func (c *Core) SetFavorite(nodeID string, favorite bool) error {
	if !c.nodeStore.SetFavorite(nodeID, favorite) {
		return fmt.Errorf("unknown node: %s", nodeID)
	}
	c.writerQueue.Enqueue("httpapi.set_favorite", func(ctx context.Context) error {
		return c.nodeRepo.SetFavorite(ctx, nodeID, favorite)
	})

	return nil
}

// SetIgnored updates nodeID's ignored flag, both in-memory and (async)
// in persistent storage.
func (c *Core) SetIgnored(nodeID string, ignored bool) error {
	if !c.nodeStore.SetIgnored(nodeID, ignored) {
		return fmt.Errorf("unknown node: %s", nodeID)
	}
	c.writerQueue.Enqueue("httpapi.set_ignored", func(ctx context.Context) error {
		return c.nodeRepo.SetIgnored(ctx, nodeID, ignored)
	})

	return nil
}

// DeleteMessage removes a single message by its local id.
func (c *Core) DeleteMessage(localID int64) error {
	c.chatStore.DeleteMessage(localID)
	c.writerQueue.Enqueue("httpapi.delete_message", func(ctx context.Context) error {
		return c.messageRepo.DeleteByLocalID(ctx, localID)
	})

	return nil
}

// DeleteChannelMessages removes every message in a channel chat.
func (c *Core) DeleteChannelMessages(channel int) error {
	chatKey := domain.ChatKeyForChannel(channel)
	c.chatStore.DeleteMessagesForChat(chatKey)
	c.writerQueue.Enqueue("httpapi.delete_channel_messages", func(ctx context.Context) error {
		return c.messageRepo.DeleteByChatKey(ctx, chatKey)
	})

	return nil
}

// DeleteDirectMessages removes nodeID's direct-message thread.
func (c *Core) DeleteDirectMessages(nodeID string) error {
	chatKey := domain.ChatKeyForDM(nodeID)
	c.chatStore.DeleteMessagesForChat(chatKey)
	c.writerQueue.Enqueue("httpapi.delete_direct_messages", func(ctx context.Context) error {
		return c.messageRepo.DeleteByChatKey(ctx, chatKey)
	})

	return nil
}

// DeleteNodeMessages removes nodeID's DM thread plus every message it
// authored in any channel.
func (c *Core) DeleteNodeMessages(nodeID string) error {
	c.chatStore.DeleteMessagesForNode(nodeID)
	c.writerQueue.Enqueue("httpapi.delete_node_messages", func(ctx context.Context) error {
		if err := c.messageRepo.DeleteByChatKey(ctx, domain.ChatKeyForDM(nodeID)); err != nil {
			return err
		}

		return c.messageRepo.DeleteByFromNodeID(ctx, nodeID)
	})

	return nil
}

// PurgeNodeFromDevice deletes nodeID locally and issues the device-side
// removeByNodenum admin command.
func (c *Core) PurgeNodeFromDevice(nodeID string) error {
	nodeNum, err := parseNodeNum(nodeID)
	if err != nil {
		return err
	}

	c.chatStore.DeleteMessagesForNode(nodeID)
	c.nodeStore.Delete(nodeID)
	c.writerQueue.Enqueue("httpapi.purge_node", func(ctx context.Context) error {
		if err := c.messageRepo.DeleteByChatKey(ctx, domain.ChatKeyForDM(nodeID)); err != nil {
			return err
		}
		if err := c.messageRepo.DeleteByFromNodeID(ctx, nodeID); err != nil {
			return err
		}

		return c.nodeRepo.Delete(ctx, nodeID)
	})

	payload := &meshtastic.AdminMessage{RemoveByNodenum: &nodeNum}
	if _, err := c.admin.SendAdmin(0, 0, false, payload); err != nil {
		return fmt.Errorf("send removeByNodenum admin command: %w", err)
	}

	return nil
}

// RefreshNodes triggers a full NodeDB re-sync request against the
// connected device.
func (c *Core) RefreshNodes(ctx context.Context) error {
	return c.resyncer.RefreshNodes(ctx)
}

func parseNodeNum(nodeID string) (uint32, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(nodeID), "!")
	if trimmed == "" {
		return 0, fmt.Errorf("node id is required")
	}
	v, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", nodeID, err)
	}

	return uint32(v), nil
}
