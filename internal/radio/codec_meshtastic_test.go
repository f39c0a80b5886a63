package radio

import (
	"math"
	"testing"

	"github.com/skobkin/meshgo/internal/domain"
	"github.com/skobkin/meshgo/internal/meshtastic"
)

func mustNewMeshtasticCodec(t *testing.T) *MeshtasticCodec {
	t.Helper()

	codec, err := NewMeshtasticCodec()
	if err != nil {
		t.Fatalf("initialize codec: %v", err)
	}

	return codec
}

func TestMeshtasticCodec_EncodeTextIncludesDeviceMessageID(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)
	encoded, err := codec.EncodeText("dm:!1234abcd", "hello")
	if err != nil {
		t.Fatalf("encode text: %v", err)
	}
	if encoded.DeviceMessageID == "" {
		t.Fatalf("expected non-empty device message id")
	}
	if len(encoded.Payload) == 0 {
		t.Fatalf("expected non-empty payload")
	}
	if !encoded.WantAck {
		t.Fatalf("expected want_ack for direct message")
	}
}

func TestMeshtasticCodec_EncodePositionRequestWantsResponse(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)

	encoded, err := codec.EncodePositionRequest(0x1234abcd, 0)
	if err != nil {
		t.Fatalf("encode position request: %v", err)
	}
	if encoded.DeviceMessageID == "" {
		t.Fatalf("expected non-empty device message id")
	}

	wire, err := meshtastic.UnmarshalToRadio(encoded.Payload)
	if err != nil {
		t.Fatalf("unmarshal wire frame: %v", err)
	}
	packet := wire.GetPacket()
	if packet == nil {
		t.Fatalf("expected a packet in the wire frame")
	}
	if packet.GetTo() != 0x1234abcd {
		t.Fatalf("unexpected destination: %#x", packet.GetTo())
	}
	decoded := packet.GetDecoded()
	if decoded == nil {
		t.Fatalf("expected a decoded payload")
	}
	if decoded.GetPortnum() != meshtastic.PortNum_POSITION_APP {
		t.Fatalf("unexpected portnum: %v", decoded.GetPortnum())
	}
	if !decoded.GetWantResponse() {
		t.Fatalf("expected want_response on a position request")
	}
}

func float32Ptr(v float32) *float32 { return &v }
func int32Ptr(v int32) *int32       { return &v }

func TestMeshtasticCodec_DecodeFromRadioTelemetryEnvironmentPacket(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)

	telemetryPayload := (&meshtastic.Telemetry{
		EnvironmentMetrics: &meshtastic.EnvironmentMetrics{
			Temperature:        float32Ptr(22.7),
			RelativeHumidity:   float32Ptr(47.3),
			BarometricPressure: float32Ptr(1008.6),
			Iaq:                uint32Ptr(92),
			Voltage:            float32Ptr(4.12),
			Current:            float32Ptr(0.137),
		},
	}).Marshal()

	raw := (&meshtastic.FromRadio{
		Packet: &meshtastic.MeshPacket{
			From:   0x1234abcd,
			RxTime: 1_735_123_456,
			Decoded: &meshtastic.Data{
				Portnum: meshtastic.PortNum_TELEMETRY_APP,
				Payload: telemetryPayload,
			},
		},
	}).Marshal()

	frame, err := codec.DecodeFromRadio(raw)
	if err != nil {
		t.Fatalf("decode telemetry packet: %v", err)
	}
	if frame.NodeUpdate == nil {
		t.Fatalf("expected node update")
	}
	node := frame.NodeUpdate.Node
	if node.NodeID != "!1234abcd" {
		t.Fatalf("unexpected node id: %q", node.NodeID)
	}
	assertFloatPtr(t, node.Temperature, 22.7, "temperature")
	assertFloatPtr(t, node.Humidity, 47.3, "humidity")
	assertFloatPtr(t, node.Pressure, 1008.6, "pressure")
	assertFloatPtr(t, node.AirQualityIndex, 92.0, "air quality index")
	assertFloatPtr(t, node.PowerVoltage, 4.12, "power voltage")
	assertFloatPtr(t, node.PowerCurrent, 0.137, "power current")
}

func TestMeshtasticCodec_DecodeFromRadioTelemetryPowerPacket(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)

	telemetryPayload := (&meshtastic.Telemetry{
		PowerMetrics: &meshtastic.PowerMetrics{
			Ch1Voltage: float32Ptr(12.34),
			Ch1Current: float32Ptr(1.25),
		},
	}).Marshal()

	raw := (&meshtastic.FromRadio{
		Packet: &meshtastic.MeshPacket{
			From: 0x7654dcba,
			Decoded: &meshtastic.Data{
				Portnum: meshtastic.PortNum_TELEMETRY_APP,
				Payload: telemetryPayload,
			},
		},
	}).Marshal()

	frame, err := codec.DecodeFromRadio(raw)
	if err != nil {
		t.Fatalf("decode telemetry packet: %v", err)
	}
	if frame.NodeUpdate == nil {
		t.Fatalf("expected node update")
	}
	node := frame.NodeUpdate.Node
	assertFloatPtr(t, node.PowerVoltage, 12.34, "power voltage")
	assertFloatPtr(t, node.PowerCurrent, 1.25, "power current")
	assertFloatPtr(t, node.Voltage, 12.34, "voltage")
}

func TestMeshtasticCodec_DecodeFromRadioPositionPacket(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)

	positionPayload := (&meshtastic.Position{
		LatitudeI:  int32Ptr(37_774_9000),
		LongitudeI: int32Ptr(-122_419_4000),
	}).Marshal()

	raw := (&meshtastic.FromRadio{
		Packet: &meshtastic.MeshPacket{
			From:   0x1234abcd,
			RxTime: 1_735_123_456,
			Decoded: &meshtastic.Data{
				Portnum: meshtastic.PortNum_POSITION_APP,
				Payload: positionPayload,
			},
		},
	}).Marshal()

	frame, err := codec.DecodeFromRadio(raw)
	if err != nil {
		t.Fatalf("decode position packet: %v", err)
	}
	if frame.NodeUpdate == nil {
		t.Fatalf("expected node update")
	}
	assertFloatPtr(t, frame.NodeUpdate.Node.Latitude, 37.7749, "latitude")
	assertFloatPtr(t, frame.NodeUpdate.Node.Longitude, -122.4194, "longitude")
}

func TestMeshtasticCodec_DecodeFromRadioPositionPacketInvalidCoordinatesIgnored(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)

	positionPayload := (&meshtastic.Position{
		LatitudeI:  int32Ptr(910_000_000),
		LongitudeI: int32Ptr(0),
	}).Marshal()

	raw := (&meshtastic.FromRadio{
		Packet: &meshtastic.MeshPacket{
			From: 0x1234abcd,
			Decoded: &meshtastic.Data{
				Portnum: meshtastic.PortNum_POSITION_APP,
				Payload: positionPayload,
			},
		},
	}).Marshal()

	frame, err := codec.DecodeFromRadio(raw)
	if err != nil {
		t.Fatalf("decode position packet: %v", err)
	}
	if frame.NodeUpdate != nil {
		t.Fatalf("expected no node update for invalid coordinates")
	}
}

func TestMeshtasticCodec_DecodeFromRadioNodeInfoIncludesStaticPosition(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)

	raw := (&meshtastic.FromRadio{
		NodeInfo: &meshtastic.NodeInfo{
			Num:       0x1234abcd,
			LastHeard: 1_735_123_456,
			User: &meshtastic.User{
				LongName:  "Alpha",
				ShortName: "ALPH",
			},
			Position: &meshtastic.Position{
				LatitudeI:  int32Ptr(37_774_9000),
				LongitudeI: int32Ptr(-122_419_4000),
			},
		},
	}).Marshal()

	frame, err := codec.DecodeFromRadio(raw)
	if err != nil {
		t.Fatalf("decode node info frame: %v", err)
	}
	if frame.NodeUpdate == nil {
		t.Fatalf("expected node update")
	}
	assertFloatPtr(t, frame.NodeUpdate.Node.Latitude, 37.7749, "latitude")
	assertFloatPtr(t, frame.NodeUpdate.Node.Longitude, -122.4194, "longitude")
}

func assertFloatPtr(t *testing.T, got *float64, want float64, field string) {
	t.Helper()
	if got == nil {
		t.Fatalf("expected %s", field)
	}
	if math.Abs(*got-want) > 0.0001 {
		t.Fatalf("unexpected %s value: got %v want %v", field, *got, want)
	}
}

func TestMeshtasticCodec_DecodeFromRadioQueueStatusSuccess(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)

	raw := (&meshtastic.FromRadio{
		QueueStatus: &meshtastic.QueueStatus{
			MeshPacketId: 42,
			Res:          int32(meshtastic.Routing_NONE),
		},
	}).Marshal()

	frame, err := codec.DecodeFromRadio(raw)
	if err != nil {
		t.Fatalf("decode fromradio: %v", err)
	}
	if frame.MessageStatus == nil {
		t.Fatalf("expected message status update")
	}
	if frame.MessageStatus.DeviceMessageID != "42" {
		t.Fatalf("unexpected device id: %q", frame.MessageStatus.DeviceMessageID)
	}
	if frame.MessageStatus.Status != domain.MessageStatusSent {
		t.Fatalf("unexpected status: %v", frame.MessageStatus.Status)
	}
}

func TestMeshtasticCodec_DecodeFromRadioQueueStatusFailure(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)

	raw := (&meshtastic.FromRadio{
		QueueStatus: &meshtastic.QueueStatus{
			MeshPacketId: 42,
			Res:          int32(meshtastic.Routing_TIMEOUT),
		},
	}).Marshal()

	frame, err := codec.DecodeFromRadio(raw)
	if err != nil {
		t.Fatalf("decode fromradio: %v", err)
	}
	if frame.MessageStatus == nil {
		t.Fatalf("expected message status update")
	}
	if frame.MessageStatus.DeviceMessageID != "42" {
		t.Fatalf("unexpected device id: %q", frame.MessageStatus.DeviceMessageID)
	}
	if frame.MessageStatus.Status != domain.MessageStatusFailed {
		t.Fatalf("unexpected status: %v", frame.MessageStatus.Status)
	}
	if frame.MessageStatus.Reason != "TIMEOUT" {
		t.Fatalf("unexpected reason: %q", frame.MessageStatus.Reason)
	}
}

func TestMeshtasticCodec_DecodeFromRadioAckPacket(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)

	raw := (&meshtastic.FromRadio{
		Packet: &meshtastic.MeshPacket{
			Priority: meshtastic.MeshPacket_ACK,
			Decoded: &meshtastic.Data{
				Portnum:   meshtastic.PortNum_TEXT_MESSAGE_APP,
				RequestId: 777,
			},
		},
	}).Marshal()

	frame, err := codec.DecodeFromRadio(raw)
	if err != nil {
		t.Fatalf("decode fromradio: %v", err)
	}
	if frame.MessageStatus == nil {
		t.Fatalf("expected message status update")
	}
	if frame.MessageStatus.DeviceMessageID != "777" {
		t.Fatalf("unexpected device id: %q", frame.MessageStatus.DeviceMessageID)
	}
	if frame.MessageStatus.Status != domain.MessageStatusAcked {
		t.Fatalf("unexpected status: %v", frame.MessageStatus.Status)
	}
}

func TestMeshtasticCodec_DecodeFromRadioRoutingError(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)

	timeoutReason := meshtastic.Routing_TIMEOUT
	routingPayload := (&meshtastic.Routing{ErrorReason: &timeoutReason}).Marshal()

	raw := (&meshtastic.FromRadio{
		Packet: &meshtastic.MeshPacket{
			Decoded: &meshtastic.Data{
				Portnum:   meshtastic.PortNum_ROUTING_APP,
				RequestId: 9001,
				Payload:   routingPayload,
			},
		},
	}).Marshal()

	frame, err := codec.DecodeFromRadio(raw)
	if err != nil {
		t.Fatalf("decode fromradio: %v", err)
	}
	if frame.MessageStatus == nil {
		t.Fatalf("expected message status update")
	}
	if frame.MessageStatus.DeviceMessageID != "9001" {
		t.Fatalf("unexpected device id: %q", frame.MessageStatus.DeviceMessageID)
	}
	if frame.MessageStatus.Status != domain.MessageStatusFailed {
		t.Fatalf("unexpected status: %v", frame.MessageStatus.Status)
	}
	if frame.MessageStatus.Reason != "TIMEOUT" {
		t.Fatalf("unexpected reason: %q", frame.MessageStatus.Reason)
	}
}

func TestMeshtasticCodec_DecodeFromRadioLocalEchoIsPendingWhenWantAck(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)

	myInfoRaw := (&meshtastic.FromRadio{
		MyInfo: &meshtastic.MyNodeInfo{MyNodeNum: 123},
	}).Marshal()
	if _, err := codec.DecodeFromRadio(myInfoRaw); err != nil {
		t.Fatalf("decode myinfo: %v", err)
	}

	packetRaw := (&meshtastic.FromRadio{
		Packet: &meshtastic.MeshPacket{
			From:    123,
			To:      456,
			WantAck: true,
			Decoded: &meshtastic.Data{
				Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP,
				Payload: []byte("hello"),
			},
		},
	}).Marshal()

	frame, err := codec.DecodeFromRadio(packetRaw)
	if err != nil {
		t.Fatalf("decode packet: %v", err)
	}
	if frame.TextMessage == nil {
		t.Fatalf("expected text message")
	}
	if frame.TextMessage.Direction != domain.MessageDirectionOut {
		t.Fatalf("expected outgoing direction, got %v", frame.TextMessage.Direction)
	}
	if frame.TextMessage.Status != domain.MessageStatusPending {
		t.Fatalf("expected pending status, got %v", frame.TextMessage.Status)
	}
}

func TestDecodeChannelInfo_EmptyPrimaryUsesDefaultTitle(t *testing.T) {
	channel := &meshtastic.Channel{
		Index: 1,
		Role:  meshtastic.Channel_PRIMARY,
		Settings: &meshtastic.ChannelSettings{
			Name: "",
		},
	}

	channels, _, ok := decodeChannelInfo(channel, "LongFast")
	if !ok {
		t.Fatalf("expected channel to be decoded")
	}
	if len(channels.Items) != 1 {
		t.Fatalf("expected one channel item, got %d", len(channels.Items))
	}
	if channels.Items[0].Title != "LongFast" {
		t.Fatalf("expected primary fallback title LongFast, got %q", channels.Items[0].Title)
	}
}

func TestDecodeChannelInfo_EmptySecondaryUsesDefaultTitle(t *testing.T) {
	channel := &meshtastic.Channel{
		Index: 2,
		Role:  meshtastic.Channel_SECONDARY,
		Settings: &meshtastic.ChannelSettings{
			Name: "",
			Psk:  []byte{1},
		},
	}

	channels, _, ok := decodeChannelInfo(channel, "LongFast")
	if !ok {
		t.Fatalf("expected channel to be decoded")
	}
	if len(channels.Items) != 1 {
		t.Fatalf("expected one channel item, got %d", len(channels.Items))
	}
	if channels.Items[0].Title != "LongFast" {
		t.Fatalf("expected secondary fallback title LongFast, got %q", channels.Items[0].Title)
	}
}

func TestMeshtasticCodec_DecodeFromRadioConfigPresetAffectsEmptyPrimaryName(t *testing.T) {
	codec := mustNewMeshtasticCodec(t)

	configRaw := (&meshtastic.FromRadio{
		Config: &meshtastic.Config{
			Lora: &meshtastic.LoRaConfig{
				ModemPreset: meshtastic.ModemPreset_MEDIUM_FAST,
			},
		},
	}).Marshal()
	if _, err := codec.DecodeFromRadio(configRaw); err != nil {
		t.Fatalf("decode config frame: %v", err)
	}

	channelRaw := (&meshtastic.FromRadio{
		Channel: &meshtastic.Channel{
			Index: 3,
			Role:  meshtastic.Channel_PRIMARY,
			Settings: &meshtastic.ChannelSettings{
				Name: "",
			},
		},
	}).Marshal()

	frame, err := codec.DecodeFromRadio(channelRaw)
	if err != nil {
		t.Fatalf("decode channel frame: %v", err)
	}
	if frame.Channels == nil || len(frame.Channels.Items) != 1 {
		t.Fatalf("expected one decoded channel")
	}
	if frame.Channels.Items[0].Title != "MediumFast" {
		t.Fatalf("expected MediumFast title, got %q", frame.Channels.Items[0].Title)
	}
}
