package vns

import (
	"context"
	"log/slog"
	"testing"

	"github.com/skobkin/meshgo/internal/connectors"
	"github.com/skobkin/meshgo/internal/domain"
	"github.com/skobkin/meshgo/internal/meshtastic"
	"github.com/skobkin/meshgo/internal/radio"
)

func TestParseNodeNum(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
	}{
		{"!0000beef", 0x0000beef},
		{"0000cafe", 0x0000cafe},
		{"", 0},
		{"not-hex", 0},
	}

	for _, tc := range cases {
		if got := parseNodeNum(tc.in); got != tc.want {
			t.Errorf("parseNodeNum(%q) = %#x, want %#x", tc.in, got, tc.want)
		}
	}
}

func TestNodeInfoFromDomainScalesCoordinates(t *testing.T) {
	lat := 50.4501
	lon := 30.5234
	node := domain.Node{
		NodeID:    "!0000beef",
		LongName:  "Test Node",
		ShortName: "TST",
		Latitude:  &lat,
		Longitude: &lon,
	}

	info := nodeInfoFromDomain(node)
	if info == nil {
		t.Fatal("expected non-nil NodeInfo")
	}
	if info.Num != 0x0000beef {
		t.Fatalf("expected num 0xbeef, got %#x", info.Num)
	}
	if info.Position == nil {
		t.Fatal("expected position to be set")
	}

	wantLat := int32(lat * 1e7)
	if *info.Position.LatitudeI != wantLat {
		t.Fatalf("expected latitude_i %d, got %d", wantLat, *info.Position.LatitudeI)
	}
}

func TestNodeInfoFromDomainSkipsUnparseableID(t *testing.T) {
	if info := nodeInfoFromDomain(domain.Node{NodeID: "garbage"}); info != nil {
		t.Fatalf("expected nil NodeInfo for unparseable node id, got %+v", info)
	}
}

func TestChannelsFromCacheUsesCachedTitlesWhenReady(t *testing.T) {
	cached := radio.DecodedFrame{ConfigSnapshot: &connectors.ConfigSnapshot{ChannelTitles: []string{"Primary", "Secondary"}}}

	channels := channelsFromCache(cached, true)
	if len(channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(channels))
	}
	if channels[0].Role != meshtastic.Channel_PRIMARY {
		t.Fatalf("expected first channel to be primary, got %v", channels[0].Role)
	}
	if channels[1].Role != meshtastic.Channel_SECONDARY {
		t.Fatalf("expected second channel to be secondary, got %v", channels[1].Role)
	}
}

func TestChannelsFromCacheFallsBackWhenNotReady(t *testing.T) {
	channels := channelsFromCache(radio.DecodedFrame{}, false)
	if len(channels) != 1 {
		t.Fatalf("expected a single synthesized channel, got %d", len(channels))
	}
	if channels[0].Role != meshtastic.Channel_PRIMARY {
		t.Fatalf("expected synthesized channel to be primary")
	}
}

type fakeNodeStore struct {
	nodes         []domain.Node
	favoriteCalls []string
	favoriteValue bool
}

func (f *fakeNodeStore) SnapshotSorted() []domain.Node { return f.nodes }

func (f *fakeNodeStore) SetFavorite(nodeID string, favorite bool) bool {
	f.favoriteCalls = append(f.favoriteCalls, nodeID)
	f.favoriteValue = favorite

	return true
}

type fakeConfigSource struct {
	localNodeID string
	cached      radio.DecodedFrame
	ready       bool
	adminCalls  int
	forwarded   []*meshtastic.MeshPacket
}

func (f *fakeConfigSource) GetCachedInitConfig() (radio.DecodedFrame, bool) {
	return f.cached, f.ready
}

func (f *fakeConfigSource) LocalNodeID() string { return f.localNodeID }

func (f *fakeConfigSource) SendAdmin(uint32, uint32, bool, *meshtastic.AdminMessage) (string, error) {
	f.adminCalls++

	return "admin-1", nil
}

func (f *fakeConfigSource) ForwardClientPacket(pkt *meshtastic.MeshPacket) (string, error) {
	f.forwarded = append(f.forwarded, pkt)

	return "fwd-1", nil
}

type fakeAuditLog struct {
	entries []domain.AuditEntry
}

func (f *fakeAuditLog) Append(_ context.Context, entry domain.AuditEntry) error {
	f.entries = append(f.entries, entry)

	return nil
}

func TestReplayConfigSendsFullSequence(t *testing.T) {
	nodes := &fakeNodeStore{nodes: []domain.Node{{NodeID: "!0000beef", LongName: "Node A"}}}
	src := &fakeConfigSource{
		localNodeID: "!00001234",
		ready:       true,
		cached: radio.DecodedFrame{
			ConfigSnapshot:   &connectors.ConfigSnapshot{ChannelTitles: []string{"Primary"}},
			ConfigCompleteID: 42,
		},
	}

	s := NewServer(Config{ListenAddr: ":0"}, slog.Default(), nil, nodes, src, nil)
	c := &client{id: 1, outbound: make(chan []byte, 16)}

	s.replayConfig(c)
	close(c.outbound)

	var frames []*meshtastic.FromRadio
	for payload := range c.outbound {
		fr, err := meshtastic.UnmarshalFromRadio(payload)
		if err != nil {
			t.Fatalf("unmarshal replayed frame: %v", err)
		}
		frames = append(frames, fr)
	}

	if len(frames) != 6 {
		t.Fatalf("expected 6 replay frames (myinfo, metadata, 1 node, 1 channel, config, complete), got %d", len(frames))
	}
	if frames[0].MyInfo == nil || frames[0].MyInfo.MyNodeNum != 0x00001234 {
		t.Fatalf("expected first frame to be MyInfo with parsed node num, got %+v", frames[0])
	}
	if frames[1].Metadata == nil {
		t.Fatalf("expected second frame to be Metadata, got %+v", frames[1])
	}
	if frames[2].NodeInfo == nil || frames[2].NodeInfo.Num != 0x0000beef {
		t.Fatalf("expected third frame to be the stored node, got %+v", frames[2])
	}
	if frames[3].Channel == nil {
		t.Fatalf("expected fourth frame to be Channel, got %+v", frames[3])
	}
	last := frames[len(frames)-1]
	if last.ConfigCompleteId == nil || *last.ConfigCompleteId != 42 {
		t.Fatalf("expected final frame to be ConfigCompleteId 42, got %+v", last)
	}
}

func TestHandleClientPacketRejectsAdminByDefault(t *testing.T) {
	src := &fakeConfigSource{localNodeID: "!00001234"}
	audit := &fakeAuditLog{}
	s := NewServer(Config{ListenAddr: ":0"}, slog.Default(), nil, &fakeNodeStore{}, src, audit)

	admin := &meshtastic.AdminMessage{GetChannelRequest: uint32Ptr(0)}
	pkt := &meshtastic.MeshPacket{
		To: 0x1111,
		Decoded: &meshtastic.Data{
			Portnum: meshtastic.PortNum_ADMIN_APP,
			Payload: admin.Marshal(),
		},
	}

	s.handleClientPacket(context.Background(), &client{id: 1}, pkt)

	if src.adminCalls != 0 {
		t.Fatalf("expected admin forwarding to be rejected by default, got %d calls", src.adminCalls)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != "admin_denied" {
		t.Fatalf("expected one admin_denied audit entry, got %+v", audit.entries)
	}
	if audit.entries[0].Resource != "portnum:6 subcommand:getChannelRequest" {
		t.Fatalf("unexpected audit resource: %q", audit.entries[0].Resource)
	}
}

func TestHandleClientPacketForwardsAdminWhenAllowed(t *testing.T) {
	src := &fakeConfigSource{localNodeID: "!00001234"}
	s := NewServer(Config{ListenAddr: ":0", AdminAllowed: true}, slog.Default(), nil, &fakeNodeStore{}, src, nil)

	admin := &meshtastic.AdminMessage{GetChannelRequest: uint32Ptr(0)}
	pkt := &meshtastic.MeshPacket{
		To: 0x1111,
		Decoded: &meshtastic.Data{
			Portnum: meshtastic.PortNum_ADMIN_APP,
			Payload: admin.Marshal(),
		},
	}

	s.handleClientPacket(context.Background(), &client{id: 1}, pkt)

	if src.adminCalls != 1 {
		t.Fatalf("expected admin command to be forwarded once, got %d", src.adminCalls)
	}
}

func TestHandleClientPacketForwardsFavoriteAdminRegardlessOfAdminAllowed(t *testing.T) {
	src := &fakeConfigSource{localNodeID: "!00001234"}
	nodes := &fakeNodeStore{}
	s := NewServer(Config{ListenAddr: ":0", AdminAllowed: false}, slog.Default(), nil, nodes, src, nil)

	admin := &meshtastic.AdminMessage{SetFavoriteNode: uint32Ptr(0xbeef)}
	pkt := &meshtastic.MeshPacket{
		From: 0x1111,
		To:   0x2222,
		Decoded: &meshtastic.Data{
			Portnum: meshtastic.PortNum_ADMIN_APP,
			Payload: admin.Marshal(),
		},
	}

	s.handleClientPacket(context.Background(), &client{id: 1}, pkt)

	if src.adminCalls != 1 {
		t.Fatalf("expected setFavoriteNode to be forwarded despite AdminAllowed=false, got %d calls", src.adminCalls)
	}
	if len(nodes.favoriteCalls) != 1 || nodes.favoriteCalls[0] != "!0000beef" || !nodes.favoriteValue {
		t.Fatalf("expected node store favorite update for !0000beef, got %+v / %v", nodes.favoriteCalls, nodes.favoriteValue)
	}
}

func TestHandleClientPacketDropsOtherAdminSubcommandsByDefault(t *testing.T) {
	src := &fakeConfigSource{localNodeID: "!00001234"}
	nodes := &fakeNodeStore{}
	s := NewServer(Config{ListenAddr: ":0", AdminAllowed: false}, slog.Default(), nil, nodes, src, nil)

	admin := &meshtastic.AdminMessage{RebootSeconds: int32Ptr(5)}
	pkt := &meshtastic.MeshPacket{
		From: 0x1111,
		To:   0x2222,
		Decoded: &meshtastic.Data{
			Portnum: meshtastic.PortNum_ADMIN_APP,
			Payload: admin.Marshal(),
		},
	}

	s.handleClientPacket(context.Background(), &client{id: 1}, pkt)

	if src.adminCalls != 0 {
		t.Fatalf("expected non-favorite admin command to be dropped by default, got %d calls", src.adminCalls)
	}
	if len(nodes.favoriteCalls) != 0 {
		t.Fatalf("expected no favorite update for a reboot command, got %+v", nodes.favoriteCalls)
	}
}

func TestHandleClientPacketAllowsSelfQueryAdminThroughWithoutAdminAllowed(t *testing.T) {
	src := &fakeConfigSource{localNodeID: "!00001234"}
	s := NewServer(Config{ListenAddr: ":0", AdminAllowed: false}, slog.Default(), nil, &fakeNodeStore{}, src, nil)

	pkt := &meshtastic.MeshPacket{
		From: 0x1111,
		To:   0x1111,
		Decoded: &meshtastic.Data{
			Portnum: meshtastic.PortNum_ADMIN_APP,
			Payload: (&meshtastic.AdminMessage{GetChannelRequest: uint32Ptr(0)}).Marshal(),
		},
	}

	s.handleClientPacket(context.Background(), &client{id: 1}, pkt)

	if src.adminCalls != 0 {
		t.Fatalf("expected self-query admin packet to bypass SendAdmin, got %d calls", src.adminCalls)
	}
	if len(src.forwarded) != 1 {
		t.Fatalf("expected self-query admin packet to be forwarded as a normal client packet, got %d", len(src.forwarded))
	}
}

func TestHandleClientPacketDropsNodeInfoFromOtherDestination(t *testing.T) {
	src := &fakeConfigSource{localNodeID: "!00001234"}
	s := NewServer(Config{ListenAddr: ":0"}, slog.Default(), nil, &fakeNodeStore{}, src, nil)

	pkt := &meshtastic.MeshPacket{
		From: 0x1111,
		To:   0x2222,
		Decoded: &meshtastic.Data{
			Portnum: meshtastic.PortNum_NODEINFO_APP,
		},
	}

	s.handleClientPacket(context.Background(), &client{id: 1}, pkt)

	if len(src.forwarded) != 0 {
		t.Fatalf("expected nodeinfo request to a different destination to be dropped, got %d forwarded", len(src.forwarded))
	}
}

func TestHandleClientPacketForwardsNonAdminPackets(t *testing.T) {
	src := &fakeConfigSource{localNodeID: "!00001234"}
	s := NewServer(Config{ListenAddr: ":0"}, slog.Default(), nil, &fakeNodeStore{}, src, nil)

	pkt := &meshtastic.MeshPacket{
		From: 0x1111,
		To:   0x2222,
		Decoded: &meshtastic.Data{
			Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP,
			Payload: []byte("hello"),
		},
	}

	s.handleClientPacket(context.Background(), &client{id: 1}, pkt)

	if len(src.forwarded) != 1 || src.forwarded[0] != pkt {
		t.Fatalf("expected text message packet to be forwarded via ForwardClientPacket, got %+v", src.forwarded)
	}
}

func uint32Ptr(v uint32) *uint32 { return &v }

func int32Ptr(v int32) *int32 { return &v }
