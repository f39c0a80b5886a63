// Package vns implements the Virtual Node Server: a TCP listener that
// speaks the same framed-protobuf wire protocol as a physical Meshtastic
// radio, so unmodified Meshtastic client software (apps, CLI tools) can
// connect to this process as if it were the device itself. Connected
// clients receive a config replay on connect and the same raw frames the
// physical radio emits thereafter; admin commands from clients are, by
// default, not forwarded to the real device.
package vns

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skobkin/meshgo/internal/bus"
	"github.com/skobkin/meshgo/internal/connectors"
	"github.com/skobkin/meshgo/internal/domain"
	"github.com/skobkin/meshgo/internal/meshtastic"
	"github.com/skobkin/meshgo/internal/radio"
	"github.com/skobkin/meshgo/internal/transport"
)

// nodeStore is the subset of domain.NodeStore used for config replay and
// favorite-node admin commands.
type nodeStore interface {
	SnapshotSorted() []domain.Node
	SetFavorite(nodeID string, favorite bool) bool
}

// configSource is the subset of radio.Service the Virtual Node Server
// drives: config replay, admin commands, and forwarding of everything else
// a client sends.
type configSource interface {
	GetCachedInitConfig() (radio.DecodedFrame, bool)
	LocalNodeID() string
	SendAdmin(to uint32, channel uint32, wantResponse bool, payload *meshtastic.AdminMessage) (string, error)
	ForwardClientPacket(pkt *meshtastic.MeshPacket) (string, error)
}

// auditLog is the subset of persistence.AuditRepo the Virtual Node Server
// records connect/disconnect and admin-denial events to.
type auditLog interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
}

// Server accepts native Meshtastic client connections and replays the
// physical radio's state to them, broadcasting subsequent traffic.
type Server struct {
	cfg    Config
	logger *slog.Logger
	bus    bus.MessageBus
	nodes  nodeStore
	radio  configSource
	audit  auditLog

	mu      sync.Mutex
	clients map[*client]struct{}
	nextID  uint64
}

type client struct {
	id       uint64
	conn     net.Conn
	outbound chan []byte
}

// NewServer constructs a Virtual Node Server. nodes and src may not be nil;
// b may be nil only in tests that never exercise broadcast. audit may be
// nil, in which case connect/disconnect and admin-denial events are only
// logged, never persisted.
func NewServer(cfg Config, logger *slog.Logger, b bus.MessageBus, nodes nodeStore, src configSource, audit auditLog) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		bus:     b,
		nodes:   nodes,
		radio:   src,
		audit:   audit,
		clients: make(map[*client]struct{}),
	}
}

// Start runs the accept loop and the raw-frame broadcaster until ctx is
// canceled. It blocks; callers typically invoke it from a goroutine.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.logger.Info("virtual node server listening", "addr", listener.Addr().String())

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-ctx.Done()

		return listener.Close()
	})

	group.Go(func() error {
		return s.acceptLoop(ctx, listener)
	})

	if s.bus != nil {
		group.Go(func() error {
			return s.broadcastLoop(ctx)
		})
	}

	err = group.Wait()
	if err != nil && ctx.Err() != nil {
		return nil
	}

	return err
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("accept connection: %w", err)
		}

		s.mu.Lock()
		s.nextID++
		id := s.nextID
		s.mu.Unlock()

		go s.handleConn(ctx, id, conn)
	}
}

// broadcastLoop forwards the physical radio's raw inbound frames verbatim
// to every connected virtual client, so a client sees the same bytes a
// directly-attached client would have seen.
func (s *Server) broadcastLoop(ctx context.Context) error {
	sub := s.bus.Subscribe(connectors.TopicRawFrameIn)
	defer s.bus.Unsubscribe(sub, connectors.TopicRawFrameIn)

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-sub:
			if !ok {
				return nil
			}
			frame, ok := raw.(connectors.RawFrame)
			if !ok {
				continue
			}
			payload, err := hex.DecodeString(frame.Hex)
			if err != nil {
				s.logger.Warn("decode raw frame for broadcast", "error", err)

				continue
			}
			s.broadcast(payload)
		}
	}
}

func (s *Server) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		select {
		case c.outbound <- payload:
		default:
			s.logger.Debug("dropping frame for slow client", "client_id", c.id)
		}
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) handleConn(ctx context.Context, id uint64, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.logger.Info("virtual client connected", "client_id", id, "remote", remote)
	s.appendAudit(ctx, clientActor(id), "client_connected", "", remote)
	defer func() {
		_ = conn.Close()
		s.logger.Info("virtual client disconnected", "client_id", id, "remote", remote)
		s.appendAudit(ctx, clientActor(id), "client_disconnected", "", remote)
	}()

	c := &client{id: id, conn: conn, outbound: make(chan []byte, s.cfg.OutboundQueueSize)}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, connCtx := errgroup.WithContext(connCtx)

	group.Go(func() error {
		return s.readLoop(connCtx, c)
	})

	group.Go(func() error {
		return s.writeLoop(connCtx, c)
	})

	_ = group.Wait()
}

func (s *Server) readLoop(ctx context.Context, c *client) error {
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(s.cfg.ClientInactivityTimeout)); err != nil {
			return err
		}

		payload, err := transport.ReadFrame(c.conn)
		if err != nil {
			return err
		}

		toRadio, err := meshtastic.UnmarshalToRadio(payload)
		if err != nil {
			s.logger.Debug("discarding malformed ToRadio from client", "client_id", c.id, "error", err)

			continue
		}

		s.handleToRadio(ctx, c, toRadio)
	}
}

func (s *Server) writeLoop(ctx context.Context, c *client) error {
	s.addClient(c)
	defer s.removeClient(c)

	s.replayConfig(c)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-c.outbound:
			if !ok {
				return nil
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(s.cfg.ClientInactivityTimeout)); err != nil {
				return err
			}
			frame, err := transport.EncodeFrame(payload)
			if err != nil {
				s.logger.Warn("encode frame for client", "client_id", c.id, "error", err)

				continue
			}
			if _, err := c.conn.Write(frame); err != nil {
				return err
			}
		}
	}
}

func (s *Server) handleToRadio(ctx context.Context, c *client, msg *meshtastic.ToRadio) {
	switch {
	case msg.Disconnect:
		s.logger.Debug("client requested disconnect", "client_id", c.id)
	case msg.WantConfigId != nil:
		s.replayConfig(c)
	case msg.Packet != nil:
		s.handleClientPacket(ctx, c, msg.Packet)
	default:
	}
}

// handleClientPacket runs a client packet through the admin filter, then
// either forwards it (local echo plus enqueue to the radio) or, for
// ADMIN_APP commands, applies the favorite-node exception and the
// allow-admin-commands gate.
//
// Admin filter: ADMIN_APP and NODEINFO_APP are blocked unless the packet is
// a device querying itself (from == to), in which case it is treated the
// same as any other, unblocked packet. Every unblocked packet is locally
// echoed and forwarded to the radio regardless of portnum.
func (s *Server) handleClientPacket(ctx context.Context, c *client, pkt *meshtastic.MeshPacket) {
	if pkt.Decoded == nil {
		return
	}

	portnum := pkt.Decoded.Portnum
	blocked := portnum == meshtastic.PortNum_ADMIN_APP || portnum == meshtastic.PortNum_NODEINFO_APP
	selfQuery := pkt.From != 0 && pkt.From == pkt.To

	if !blocked || selfQuery {
		if _, err := s.radio.ForwardClientPacket(pkt); err != nil {
			s.logger.Warn("forward client packet", "client_id", c.id, "error", err)
		}

		return
	}

	if portnum != meshtastic.PortNum_ADMIN_APP {
		s.logger.Debug("dropping nodeinfo request from virtual client", "client_id", c.id)

		return
	}

	admin, err := meshtastic.UnmarshalAdminMessage(pkt.Decoded.Payload)
	if err != nil {
		s.logger.Debug("discarding malformed admin payload from client", "client_id", c.id, "error", err)

		return
	}

	if admin.SetFavoriteNode != nil || admin.RemoveFavoriteNode != nil {
		s.handleFavoriteAdmin(c, pkt, admin)

		return
	}

	if !s.cfg.AdminAllowed {
		s.logger.Info("rejecting admin command from virtual client, forwarding disabled", "client_id", c.id)
		s.appendAudit(ctx, clientActor(c.id), "admin_denied", adminAuditResource(portnum, admin), "")

		return
	}

	if _, err := s.radio.SendAdmin(pkt.To, pkt.Channel, pkt.Decoded.WantResponse, admin); err != nil {
		s.logger.Warn("forward admin command from virtual client", "client_id", c.id, "error", err)
	}
}

// handleFavoriteAdmin applies setFavoriteNode/removeFavoriteNode
// unconditionally: these update the local node store and are forwarded to
// the radio regardless of AdminAllowed, since they only toggle a client's
// own UI-pinning preference rather than reconfiguring the device.
func (s *Server) handleFavoriteAdmin(c *client, pkt *meshtastic.MeshPacket, admin *meshtastic.AdminMessage) {
	favorite := admin.SetFavoriteNode != nil
	nodeNum := admin.GetSetFavoriteNode()
	if !favorite {
		nodeNum = admin.GetRemoveFavoriteNode()
	}
	s.nodes.SetFavorite(formatNodeID(nodeNum), favorite)

	if _, err := s.radio.SendAdmin(pkt.To, pkt.Channel, pkt.Decoded.WantResponse, admin); err != nil {
		s.logger.Warn("forward favorite admin command from virtual client", "client_id", c.id, "error", err)
	}
}

func (s *Server) appendAudit(ctx context.Context, actor, action, resource, ip string) {
	if s.audit == nil {
		return
	}
	entry := domain.AuditEntry{
		At:       time.Now(),
		Actor:    actor,
		Action:   action,
		Resource: resource,
		IP:       ip,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn("append audit entry", "action", action, "error", err)
	}
}

func clientActor(id uint64) string {
	return "vns-client:" + strconv.FormatUint(id, 10)
}

// adminAuditResource describes a denied admin command as
// "portnum:<n> subcommand:<name>", matching what a connect/disconnect
// audit entry's Resource field would otherwise leave blank.
func adminAuditResource(portnum meshtastic.PortNum, admin *meshtastic.AdminMessage) string {
	return fmt.Sprintf("portnum:%d subcommand:%s", int32(portnum), adminSubcommandName(admin))
}

func adminSubcommandName(admin *meshtastic.AdminMessage) string {
	switch {
	case admin.SetFavoriteNode != nil:
		return "setFavoriteNode"
	case admin.RemoveFavoriteNode != nil:
		return "removeFavoriteNode"
	case admin.SetIgnoredNode != nil:
		return "setIgnoredNode"
	case admin.RemoveIgnoredNode != nil:
		return "removeIgnoredNode"
	case admin.RemoveByNodenum != nil:
		return "removeByNodenum"
	case admin.RebootSeconds != nil:
		return "reboot"
	case admin.GetChannelRequest != nil:
		return "getChannelRequest"
	case admin.SetOwner != nil:
		return "setOwner"
	default:
		return "unknown"
	}
}

// formatNodeID renders a numeric node number as the canonical "!hex8" node
// ID string domain.Node and the rest of the store key off of.
func formatNodeID(num uint32) string {
	return fmt.Sprintf("!%08x", num)
}

// replayConfig sends the config-replay sequence a real radio sends in
// response to WantConfigId: MyInfo, Metadata, each NodeInfo, each Channel,
// Config, then ConfigCompleteId. Node state is read fresh from the
// authoritative node store; the remainder comes from the cached replay
// state accumulated by the radio service, with a synthesized single
// primary channel when no cache is ready yet.
func (s *Server) replayConfig(c *client) {
	localNodeID := s.radio.LocalNodeID()
	myNodeNum := parseNodeNum(localNodeID)

	s.sendFromRadio(c, &meshtastic.FromRadio{MyInfo: &meshtastic.MyNodeInfo{MyNodeNum: myNodeNum}})
	s.sendFromRadio(c, &meshtastic.FromRadio{Metadata: &meshtastic.DeviceMetadata{
		FirmwareVersion: s.cfg.FirmwareVersion,
		HwModel:         meshtastic.HardwareModel(s.cfg.HwModel),
	}})

	for _, node := range s.nodes.SnapshotSorted() {
		info := nodeInfoFromDomain(node)
		if info == nil {
			continue
		}
		s.sendFromRadio(c, &meshtastic.FromRadio{NodeInfo: info})
	}

	cached, ready := s.radio.GetCachedInitConfig()
	for _, ch := range channelsFromCache(cached, ready) {
		s.sendFromRadio(c, &meshtastic.FromRadio{Channel: ch})
	}

	s.sendFromRadio(c, &meshtastic.FromRadio{Config: &meshtastic.Config{Lora: &meshtastic.LoRaConfig{UsePreset: true}}})

	completeID := cached.ConfigCompleteID
	s.sendFromRadio(c, &meshtastic.FromRadio{ConfigCompleteId: &completeID})
}

func (s *Server) sendFromRadio(c *client, msg *meshtastic.FromRadio) {
	select {
	case c.outbound <- msg.Marshal():
	default:
		s.logger.Warn("dropping config replay frame, outbound queue full", "client_id", c.id)
	}
}

// channelsFromCache builds the Channel list to replay, from the radio
// service's cached config-replay state when ready, or a synthesized
// single unencrypted primary channel when no cache is available yet (a
// client connecting before the physical radio has completed its own
// handshake should still see a usable default channel).
func channelsFromCache(cached radio.DecodedFrame, ready bool) []*meshtastic.Channel {
	if ready && cached.ConfigSnapshot != nil && len(cached.ConfigSnapshot.ChannelTitles) > 0 {
		channels := make([]*meshtastic.Channel, 0, len(cached.ConfigSnapshot.ChannelTitles))
		for i, title := range cached.ConfigSnapshot.ChannelTitles {
			role := meshtastic.Channel_SECONDARY
			if i == 0 {
				role = meshtastic.Channel_PRIMARY
			}
			channels = append(channels, &meshtastic.Channel{
				Index: int32(i),
				Role:  role,
				Settings: &meshtastic.ChannelSettings{
					ChannelNum: uint32(i),
					Name:       title,
				},
			})
		}

		return channels
	}

	return []*meshtastic.Channel{{
		Index:    0,
		Role:     meshtastic.Channel_PRIMARY,
		Settings: &meshtastic.ChannelSettings{ChannelNum: 0, Name: "Primary"},
	}}
}

// nodeInfoFromDomain converts a stored node into its wire NodeInfo
// representation, scaling coordinates by 1e7 per the radio's integer
// degree convention.
func nodeInfoFromDomain(n domain.Node) *meshtastic.NodeInfo {
	num := parseNodeNum(n.NodeID)
	if num == 0 {
		return nil
	}

	info := &meshtastic.NodeInfo{
		Num: num,
		User: &meshtastic.User{
			Id:        n.NodeID,
			LongName:  n.LongName,
			ShortName: n.ShortName,
		},
		LastHeard:  uint32(n.LastHeardAt.Unix()),
		IsFavorite: n.Favorite,
	}

	if n.SNR != nil {
		info.Snr = float32(*n.SNR)
	}

	if n.Latitude != nil && n.Longitude != nil {
		latI := int32(*n.Latitude * 1e7)
		lonI := int32(*n.Longitude * 1e7)
		info.Position = &meshtastic.Position{LatitudeI: &latI, LongitudeI: &lonI}
	}

	if n.BatteryLevel != nil || n.Voltage != nil {
		metrics := &meshtastic.DeviceMetrics{}
		if n.BatteryLevel != nil {
			metrics.BatteryLevel = n.BatteryLevel
		}
		if n.Voltage != nil {
			voltage := float32(*n.Voltage)
			metrics.Voltage = &voltage
		}
		info.DeviceMetrics = metrics
	}

	return info
}

// parseNodeNum parses the "!hex8" canonical node ID string into its
// numeric form, returning 0 on malformed input.
func parseNodeNum(nodeID string) uint32 {
	trimmed := strings.TrimPrefix(strings.TrimSpace(nodeID), "!")
	if trimmed == "" {
		return 0
	}

	v, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return 0
	}

	return uint32(v)
}
