package radio

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/skobkin/meshgo/internal/bus"
	"github.com/skobkin/meshgo/internal/connectors"
	"github.com/skobkin/meshgo/internal/domain"
	"github.com/skobkin/meshgo/internal/meshtastic"
	"github.com/skobkin/meshgo/internal/reconnect"
	"github.com/skobkin/meshgo/internal/tracker"
	"github.com/skobkin/meshgo/internal/transport"
)

// SendResult is the async outcome of a user message send request.
type SendResult struct {
	Message domain.ChatMessage
	Err     error
}

type sendRequest struct {
	chatKey string
	text    string
	result  chan SendResult
}

type ackTrackState struct {
	targetNodeNum uint32
}

// Service runs transport I/O, codec translation, and bus publication loops.
type Service struct {
	logger    *slog.Logger
	transport transport.Transport
	codec     Codec
	bus       bus.MessageBus
	outbox    chan sendRequest

	ackTrack *tracker.Table[string, ackTrackState]

	cachedInitMu     sync.RWMutex
	cachedInitConfig DecodedFrame
	cachedInitReady  bool
}

type localNodeIDCodec interface {
	LocalNodeID() string
}

// ackTrackWindow is how long a sent message waits for a routing ack
// before the tracker treats it as merely "sent" (best-effort delivery,
// no confirmation) rather than leaving it pending forever.
const ackTrackWindow = 30 * time.Second

func NewService(logger *slog.Logger, b bus.MessageBus, tr transport.Transport, codec Codec) *Service {
	return &Service{
		logger:    logger,
		transport: tr,
		codec:     codec,
		bus:       b,
		outbox:    make(chan sendRequest, 128),
		ackTrack:  tracker.New[string, ackTrackState](),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.runOutbox(ctx)
	go s.runConnector(ctx)
}

func (s *Service) SendText(chatKey, text string) <-chan SendResult {
	resCh := make(chan SendResult, 1)
	chatKey = strings.TrimSpace(chatKey)
	if chatKey == "" {
		resCh <- SendResult{Err: errors.New("chat key is required")}
		close(resCh)

		return resCh
	}
	if utf8.RuneCountInString(text) == 0 {
		resCh <- SendResult{Err: errors.New("message body is empty")}
		close(resCh)

		return resCh
	}
	if len([]byte(text)) > 200 {
		resCh <- SendResult{Err: fmt.Errorf("message body exceeds 200 bytes: %d", len([]byte(text)))}
		close(resCh)

		return resCh
	}

	s.outbox <- sendRequest{chatKey: chatKey, text: text, result: resCh}

	return resCh
}

func (s *Service) LocalNodeID() string {
	codec, ok := s.codec.(localNodeIDCodec)
	if !ok {
		return ""
	}

	return strings.TrimSpace(codec.LocalNodeID())
}

func (s *Service) runConnector(ctx context.Context) {
	delay := reconnect.NewBackoff(time.Second, 15*time.Second, 2, 0.2)
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		s.publishConnStatus(connectors.ConnectionStateConnecting, nil)
		if err := s.transport.Connect(ctx); err != nil {
			s.publishConnStatus(connectors.ConnectionStateReconnecting, err)
			s.logger.Error("transport connect failed", "error", err)
			if !sleepWithContext(ctx, delay.Next()) {
				return
			}

			continue
		}

		delay.Reset()
		s.resetCachedInitConfig()
		s.publishConnStatus(connectors.ConnectionStateConnected, nil)
		if err := s.sendWantConfig(ctx); err != nil {
			s.logger.Warn("want_config send failed", "error", err)
		}

		keepAliveCtx, cancelKeepAlive := context.WithCancel(ctx)
		go s.runKeepAlive(keepAliveCtx)
		err := s.runReader(ctx)
		cancelKeepAlive()
		_ = s.transport.Close()
		s.publishConnStatus(connectors.ConnectionStateReconnecting, err)

		if !sleepWithContext(ctx, delay.Next()) {
			return
		}
	}
}

// GetCachedInitConfig returns the accumulated config-replay state
// (channels and config; node state is not cached here) collected since the
// last successful reconnect,
// for the Virtual Node Server to serve to new clients without re-asking
// the physical radio.
func (s *Service) GetCachedInitConfig() (DecodedFrame, bool) {
	s.cachedInitMu.RLock()
	defer s.cachedInitMu.RUnlock()

	return s.cachedInitConfig, s.cachedInitReady
}

func (s *Service) resetCachedInitConfig() {
	s.cachedInitMu.Lock()
	s.cachedInitConfig = DecodedFrame{}
	s.cachedInitReady = false
	s.cachedInitMu.Unlock()
}

// accumulateCachedInitConfig folds each config-replay frame into the
// cached snapshot. Node state itself lives in domain.NodeStore (the
// authoritative source VNS config replay reads from); only the
// channel/config portion of the replay, which has no other home, is
// cached here.
func (s *Service) accumulateCachedInitConfig(decoded DecodedFrame) {
	s.cachedInitMu.Lock()
	defer s.cachedInitMu.Unlock()

	if decoded.Channels != nil {
		s.cachedInitConfig.Channels = decoded.Channels
	}
	if decoded.ConfigSnapshot != nil {
		s.cachedInitConfig.ConfigSnapshot = decoded.ConfigSnapshot
	}
	if decoded.WantConfigReady {
		s.cachedInitConfig.ConfigCompleteID = decoded.ConfigCompleteID
		s.cachedInitReady = true
	}
}

func (s *Service) runReader(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		payload, err := s.transport.ReadFrame(readCtx)
		cancel()
		if err != nil {
			return err
		}

		s.bus.Publish(connectors.TopicRawFrameIn, connectors.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(payload)), Len: len(payload)})
		decoded, err := s.codec.DecodeFromRadio(payload)
		if err != nil {
			s.logger.Warn("decode fromradio failed", "error", err)

			continue
		}
		s.bus.Publish(connectors.TopicRadioFrom, decoded)
		s.accumulateCachedInitConfig(decoded)

		if decoded.NodeUpdate != nil {
			s.bus.Publish(connectors.TopicNodeInfo, *decoded.NodeUpdate)
		}
		if decoded.Channels != nil {
			s.bus.Publish(connectors.TopicChannels, *decoded.Channels)
		}
		if decoded.ConfigSnapshot != nil {
			s.bus.Publish(connectors.TopicConfigSnapshot, *decoded.ConfigSnapshot)
		}
		if decoded.TextMessage != nil {
			s.bus.Publish(connectors.TopicTextMessage, *decoded.TextMessage)
		}
		if decoded.AdminMessage != nil {
			s.bus.Publish(connectors.TopicAdminMessage, *decoded.AdminMessage)
		}
		if decoded.Traceroute != nil {
			s.bus.Publish(connectors.TopicTraceroute, *decoded.Traceroute)
		}
		if decoded.MessageStatus != nil {
			status := s.normalizeMessageStatus(*decoded.MessageStatus)
			s.bus.Publish(connectors.TopicMessageStatus, status)
		}
	}
}

func (s *Service) runKeepAlive(ctx context.Context) {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := s.codec.EncodeHeartbeat()
			if err != nil {
				s.logger.Debug("encode heartbeat failed", "error", err)

				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = s.transport.WriteFrame(writeCtx, payload)
			cancel()
			if err != nil {
				s.logger.Debug("heartbeat write failed", "error", err)

				continue
			}
			s.bus.Publish(connectors.TopicRawFrameOut, connectors.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(payload)), Len: len(payload)})
		}
	}
}

func (s *Service) runOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.outbox:
			res := s.handleSend(ctx, req)
			req.result <- res
			close(req.result)
		}
	}
}

func (s *Service) handleSend(ctx context.Context, req sendRequest) SendResult {
	encoded, err := s.codec.EncodeText(req.chatKey, req.text)
	if err != nil {
		return SendResult{Err: fmt.Errorf("encode outgoing message: %w", err)}
	}
	writeCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	err = s.transport.WriteFrame(writeCtx, encoded.Payload)
	cancel()
	if err != nil {
		return SendResult{Err: fmt.Errorf("send outgoing frame: %w", err)}
	}

	now := time.Now()
	initialStatus := domain.MessageStatusPending
	if encoded.WantAck {
		s.markAckTracked(encoded.DeviceMessageID, encoded.TargetNodeNum)
	}
	msg := domain.ChatMessage{
		DeviceMessageID: encoded.DeviceMessageID,
		ChatKey:         req.chatKey,
		Direction:       domain.MessageDirectionOut,
		Body:            req.text,
		Status:          initialStatus,
		At:              now,
		MetaJSON:        outgoingMessageMetaJSON(s.LocalNodeID()),
	}

	s.bus.Publish(connectors.TopicRawFrameOut, connectors.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(encoded.Payload)), Len: len(encoded.Payload)})
	s.bus.Publish(connectors.TopicTextMessage, msg)

	return SendResult{Message: msg}
}

func (s *Service) sendWantConfig(ctx context.Context) error {
	payload, err := s.codec.EncodeWantConfig()
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := s.transport.WriteFrame(writeCtx, payload); err != nil {
		return err
	}
	s.bus.Publish(connectors.TopicRawFrameOut, connectors.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(payload)), Len: len(payload)})

	return nil
}

func (s *Service) SendAdmin(to uint32, channel uint32, wantResponse bool, payload *meshtastic.AdminMessage) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("admin payload is required")
	}
	encoded, err := s.codec.EncodeAdmin(to, channel, wantResponse, payload)
	if err != nil {
		return "", fmt.Errorf("encode admin payload: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	err = s.transport.WriteFrame(writeCtx, encoded.Payload)
	cancel()
	if err != nil {
		return "", fmt.Errorf("send admin frame: %w", err)
	}
	s.bus.Publish(connectors.TopicRawFrameOut, connectors.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(encoded.Payload)), Len: len(encoded.Payload)})

	return encoded.DeviceMessageID, nil
}

func (s *Service) SendTraceroute(to uint32, channel uint32) (string, error) {
	encoded, err := s.codec.EncodeTraceroute(to, channel)
	if err != nil {
		return "", fmt.Errorf("encode traceroute packet: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	err = s.transport.WriteFrame(writeCtx, encoded.Payload)
	cancel()
	if err != nil {
		return "", fmt.Errorf("send traceroute frame: %w", err)
	}
	s.bus.Publish(connectors.TopicRawFrameOut, connectors.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(encoded.Payload)), Len: len(encoded.Payload)})

	return encoded.DeviceMessageID, nil
}

// RequestPosition sends a position request with wantResponse=true, asking
// the destination node to reply with its own position. The request carries
// an empty Position; the local node's coordinates are not included.
func (s *Service) RequestPosition(to uint32, channel uint32) (string, error) {
	encoded, err := s.codec.EncodePositionRequest(to, channel)
	if err != nil {
		return "", fmt.Errorf("encode position request packet: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	err = s.transport.WriteFrame(writeCtx, encoded.Payload)
	cancel()
	if err != nil {
		return "", fmt.Errorf("send position request frame: %w", err)
	}
	s.bus.Publish(connectors.TopicRawFrameOut, connectors.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(encoded.Payload)), Len: len(encoded.Payload)})

	return encoded.DeviceMessageID, nil
}

// ForwardClientPacket accepts an already-built MeshPacket from a Virtual
// Node Server client, locally echoes it onto the bus the same way an
// inbound radio frame would be (without republishing TopicRawFrameIn,
// since the packet never actually arrived over the wire and the Virtual
// Node Server's own broadcast loop listens on that topic to fan frames out
// to its other clients), then forwards it to the physical radio. A packet
// left with From unset is attributed to the local node for the echo copy;
// if it is also marked PKI-encrypted, that flag is cleared on the copy
// forwarded to the radio, which would otherwise reject a PKI packet it
// never actually encrypted.
func (s *Service) ForwardClientPacket(pkt *meshtastic.MeshPacket) (string, error) {
	if pkt == nil {
		return "", fmt.Errorf("packet is required")
	}

	localNodeNum, _ := parseNodeNum(s.LocalNodeID())

	echo := *pkt
	if echo.From == 0 {
		echo.From = localNodeNum
	}
	s.echoClientPacket(&echo)

	forward := *pkt
	if forward.From == 0 {
		forward.PkiEncrypted = false
	}

	wire := &meshtastic.ToRadio{Packet: &forward}
	payload := wire.Marshal()

	writeCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	err := s.transport.WriteFrame(writeCtx, payload)
	cancel()
	if err != nil {
		return "", fmt.Errorf("forward client packet: %w", err)
	}
	s.bus.Publish(connectors.TopicRawFrameOut, connectors.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(payload)), Len: len(payload)})

	deviceMessageID := ""
	if forward.Id != 0 {
		deviceMessageID = strconv.FormatUint(uint64(forward.Id), 10)
	}

	return deviceMessageID, nil
}

// echoClientPacket decodes a client-originated packet the same way
// runReader decodes an inbound frame, and publishes whatever events it
// carries so local subscribers (chat store, node store, traceroute
// tracker, HTTP poll) see it immediately instead of waiting on the
// physical radio to mirror it back.
func (s *Service) echoClientPacket(pkt *meshtastic.MeshPacket) {
	synthetic := &meshtastic.FromRadio{Packet: pkt}
	decoded, err := s.codec.DecodeFromRadio(synthetic.Marshal())
	if err != nil {
		s.logger.Warn("decode synthetic echo for client packet failed", "error", err)

		return
	}

	s.bus.Publish(connectors.TopicRadioFrom, decoded)

	if decoded.NodeUpdate != nil {
		s.bus.Publish(connectors.TopicNodeInfo, *decoded.NodeUpdate)
	}
	if decoded.TextMessage != nil {
		s.bus.Publish(connectors.TopicTextMessage, *decoded.TextMessage)
	}
	if decoded.AdminMessage != nil {
		s.bus.Publish(connectors.TopicAdminMessage, *decoded.AdminMessage)
	}
	if decoded.Traceroute != nil {
		s.bus.Publish(connectors.TopicTraceroute, *decoded.Traceroute)
	}
	if decoded.MessageStatus != nil {
		status := s.normalizeMessageStatus(*decoded.MessageStatus)
		s.bus.Publish(connectors.TopicMessageStatus, status)
	}
}

// RefreshNodes re-issues wantConfigId against the connected device,
// triggering a full NodeDB re-sync the same way the initial connect does.
func (s *Service) RefreshNodes(ctx context.Context) error {
	s.resetCachedInitConfig()

	return s.sendWantConfig(ctx)
}

func (s *Service) publishConnStatus(state connectors.ConnectionState, err error) {
	status := connectors.ConnectionStatus{
		State:         state,
		TransportName: s.transport.Name(),
		Timestamp:     time.Now(),
	}
	if provider, ok := s.transport.(transport.StatusTargetResolver); ok {
		status.Target = strings.TrimSpace(provider.StatusTarget())
	}
	if err != nil {
		status.Err = err.Error()
	}
	s.bus.Publish(connectors.TopicConnStatus, status)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func outgoingMessageMetaJSON(localNodeID string) string {
	localNodeID = strings.TrimSpace(localNodeID)
	if localNodeID == "" {
		return ""
	}
	raw, err := json.Marshal(map[string]any{
		"from": localNodeID,
	})
	if err != nil {
		return ""
	}

	return string(raw)
}

func (s *Service) markAckTracked(deviceMessageID string, targetNodeNum uint32) {
	deviceMessageID = strings.TrimSpace(deviceMessageID)
	if deviceMessageID == "" {
		return
	}
	s.ackTrack.Track(deviceMessageID, ackTrackState{targetNodeNum: targetNodeNum}, ackTrackWindow, func(id string, _ ackTrackState) {
		s.bus.Publish(connectors.TopicMessageStatus, domain.MessageStatusUpdate{
			DeviceMessageID: id,
			Status:          domain.MessageStatusSent,
			Reason:          "ack window elapsed",
		})
	})
}

func (s *Service) clearAckTracked(deviceMessageID string) {
	deviceMessageID = strings.TrimSpace(deviceMessageID)
	if deviceMessageID == "" {
		return
	}
	s.ackTrack.Take(deviceMessageID)
}

func (s *Service) ackTrackStateFor(deviceMessageID string) (ackTrackState, bool) {
	deviceMessageID = strings.TrimSpace(deviceMessageID)
	if deviceMessageID == "" {
		return ackTrackState{}, false
	}

	return s.ackTrack.Get(deviceMessageID)
}

func (s *Service) normalizeMessageStatus(update domain.MessageStatusUpdate) domain.MessageStatusUpdate {
	switch update.Status {
	case domain.MessageStatusAcked:
		state, tracked := s.ackTrackStateFor(update.DeviceMessageID)
		if !tracked {
			return update
		}
		if state.targetNodeNum == broadcastNodeNum {
			update.Status = domain.MessageStatusSent
			s.clearAckTracked(update.DeviceMessageID)

			return update
		}
		if update.FromNodeNum != 0 && update.FromNodeNum != state.targetNodeNum {
			update.Status = domain.MessageStatusSent

			return update
		}
		s.clearAckTracked(update.DeviceMessageID)
	case domain.MessageStatusFailed:
		s.clearAckTracked(update.DeviceMessageID)
	}

	return update
}
