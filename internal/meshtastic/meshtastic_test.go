package meshtastic

import "testing"

func TestNormalizePortNum_NameAndNumberAgree(t *testing.T) {
	cases := []struct {
		name string
		num  int32
	}{
		{"TEXT_MESSAGE_APP", 1},
		{"POSITION_APP", 3},
		{"NODEINFO_APP", 4},
		{"TELEMETRY_APP", 67},
		{"TRACEROUTE_APP", 70},
		{"NEIGHBORINFO_APP", 71},
	}
	for _, c := range cases {
		byName := NormalizePortNum(c.name)
		byNum := NormalizePortNum(c.num)
		if byName != byNum {
			t.Fatalf("%s: normalize(name)=%v != normalize(number)=%v", c.name, byName, byNum)
		}
		if byNum != PortNum(c.num) {
			t.Fatalf("%s: normalize(number) = %v, want %v", c.name, byNum, c.num)
		}
	}
}

func TestNormalizePortNum_UnknownNameYieldsUnknownApp(t *testing.T) {
	if got := NormalizePortNum("NOT_A_REAL_PORT"); got != PortNum_UNKNOWN_APP {
		t.Fatalf("got %v, want UNKNOWN_APP", got)
	}
}

func TestUser_RoundTrip(t *testing.T) {
	unmessagable := true
	u := &User{
		Id:             "!deadbeef",
		LongName:       "Test Node",
		ShortName:      "TST",
		HwModel:        HardwareModel(43),
		IsLicensed:     true,
		IsUnmessagable: &unmessagable,
	}
	decoded, err := UnmarshalUser(u.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.GetLongName() != u.LongName || decoded.GetShortName() != u.ShortName {
		t.Fatalf("names mismatch: got %+v", decoded)
	}
	if decoded.GetHwModel() != u.HwModel {
		t.Fatalf("hw model mismatch: got %v want %v", decoded.GetHwModel(), u.HwModel)
	}
	if !decoded.GetIsUnmessagable() {
		t.Fatal("expected IsUnmessagable to round-trip true")
	}
}

func TestPosition_RoundTrip(t *testing.T) {
	lat := int32(407128000)
	lon := int32(-740060000)
	p := &Position{LatitudeI: &lat, LongitudeI: &lon, Time: 1700000000}
	decoded, err := UnmarshalPosition(p.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.GetLatitudeI() != lat || decoded.GetLongitudeI() != lon {
		t.Fatalf("coords mismatch: got lat=%d lon=%d", decoded.GetLatitudeI(), decoded.GetLongitudeI())
	}
	if decoded.GetTime() != p.Time {
		t.Fatalf("time mismatch: got %d want %d", decoded.GetTime(), p.Time)
	}
}

func TestTelemetry_RoundTrip(t *testing.T) {
	battery := uint32(87)
	voltage := float32(3.98)
	temp := float32(21.5)
	tel := &Telemetry{
		Time: 1700000001,
		DeviceMetrics: &DeviceMetrics{
			BatteryLevel: &battery,
			Voltage:      &voltage,
		},
		EnvironmentMetrics: &EnvironmentMetrics{
			Temperature: &temp,
		},
	}
	decoded, err := UnmarshalTelemetry(tel.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.GetDeviceMetrics().GetBatteryLevel() != battery {
		t.Fatalf("battery mismatch: got %d", decoded.GetDeviceMetrics().GetBatteryLevel())
	}
	if decoded.GetDeviceMetrics().GetVoltage() != voltage {
		t.Fatalf("voltage mismatch: got %v", decoded.GetDeviceMetrics().GetVoltage())
	}
	if decoded.GetEnvironmentMetrics().GetTemperature() != temp {
		t.Fatalf("temperature mismatch: got %v", decoded.GetEnvironmentMetrics().GetTemperature())
	}
}

func TestMeshPacket_RoundTripWithDecodedData(t *testing.T) {
	pkt := &MeshPacket{
		From:    0xdeadbeef,
		To:      0xffffffff,
		Channel: 0,
		Decoded: &Data{
			Portnum: PortNum_TEXT_MESSAGE_APP,
			Payload: []byte("hello mesh"),
		},
		Id:       42,
		RxSnr:    7.25,
		HopLimit: 3,
		Priority: MeshPacket_DEFAULT,
	}
	decoded, err := UnmarshalMeshPacket(pkt.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.GetFrom() != pkt.From || decoded.GetTo() != pkt.To {
		t.Fatalf("addressing mismatch: got from=%x to=%x", decoded.GetFrom(), decoded.GetTo())
	}
	if decoded.GetDecoded() == nil || decoded.GetDecoded().GetPortnum() != PortNum_TEXT_MESSAGE_APP {
		t.Fatal("expected decoded TEXT_MESSAGE_APP payload")
	}
	if string(decoded.GetDecoded().GetPayload()) != "hello mesh" {
		t.Fatalf("payload mismatch: got %q", decoded.GetDecoded().GetPayload())
	}
}

func TestToRadio_WantConfigRoundTrip(t *testing.T) {
	id := uint32(123456)
	tr := &ToRadio{WantConfigId: &id}
	decoded, err := UnmarshalToRadio(tr.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.GetWantConfigId() != id {
		t.Fatalf("want_config_id mismatch: got %d want %d", decoded.GetWantConfigId(), id)
	}
}

func TestFromRadio_ConfigCompleteRoundTrip(t *testing.T) {
	id := uint32(123456)
	fr := &FromRadio{ConfigCompleteId: &id}
	decoded, err := UnmarshalFromRadio(fr.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.GetConfigCompleteId() != id {
		t.Fatalf("config_complete_id mismatch: got %d want %d", decoded.GetConfigCompleteId(), id)
	}
}

func TestChannelSettings_EncryptionClassificationByPskLength(t *testing.T) {
	cases := []struct {
		name string
		psk  []byte
	}{
		{"none", nil},
		{"default preset", []byte{1}},
		{"custom 16 byte", make([]byte, 16)},
		{"custom 32 byte", make([]byte, 32)},
	}
	for _, c := range cases {
		cs := &ChannelSettings{Psk: c.psk}
		decoded, err := UnmarshalChannelSettings(cs.Marshal())
		if err != nil {
			t.Fatalf("%s: unmarshal: %v", c.name, err)
		}
		if len(decoded.GetPsk()) != len(c.psk) {
			t.Fatalf("%s: psk length mismatch: got %d want %d", c.name, len(decoded.GetPsk()), len(c.psk))
		}
	}
}

func TestAdminMessage_OneofFieldsRoundTrip(t *testing.T) {
	node := uint32(99)
	a := &AdminMessage{SetFavoriteNode: &node}
	decoded, err := UnmarshalAdminMessage(a.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.GetSetFavoriteNode() != node {
		t.Fatalf("set_favorite_node mismatch: got %d want %d", decoded.GetSetFavoriteNode(), node)
	}
	if decoded.GetRemoveFavoriteNode() != 0 {
		t.Fatal("expected remove_favorite_node to stay unset")
	}
}

func TestRouteDiscovery_HopListRoundTrip(t *testing.T) {
	rd := &RouteDiscovery{
		Route:      []uint32{0x1, 0x2, 0x3},
		SnrTowards: []int32{10, -4, 2},
	}
	decoded, err := UnmarshalRouteDiscovery(rd.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.GetRoute()) != 3 || decoded.GetRoute()[1] != 0x2 {
		t.Fatalf("route mismatch: got %v", decoded.GetRoute())
	}
	if len(decoded.GetSnrTowards()) != 3 || decoded.GetSnrTowards()[1] != -4 {
		t.Fatalf("snr mismatch: got %v", decoded.GetSnrTowards())
	}
}
