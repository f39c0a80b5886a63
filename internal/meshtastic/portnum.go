package meshtastic

import "fmt"

// PortNum identifies the application-layer payload type carried by a
// Data message. Values are the normalized numeric port identifiers the
// packet router dispatches on.
type PortNum int32

const (
	PortNum_UNKNOWN_APP              PortNum = 0
	PortNum_TEXT_MESSAGE_APP         PortNum = 1
	PortNum_POSITION_APP             PortNum = 3
	PortNum_NODEINFO_APP             PortNum = 4
	PortNum_ROUTING_APP              PortNum = 5
	PortNum_ADMIN_APP                PortNum = 6
	PortNum_DETECTION_SENSOR_APP     PortNum = 10
	PortNum_ALERT_APP                PortNum = 11
	PortNum_TEXT_MESSAGE_COMPRESSED_APP PortNum = 12
	PortNum_PAXCOUNTER_APP           PortNum = 34
	PortNum_TELEMETRY_APP            PortNum = 67
	PortNum_TRACEROUTE_APP           PortNum = 70
	PortNum_NEIGHBORINFO_APP         PortNum = 71
)

var portNumNames = map[PortNum]string{
	PortNum_UNKNOWN_APP:                  "UNKNOWN_APP",
	PortNum_TEXT_MESSAGE_APP:             "TEXT_MESSAGE_APP",
	PortNum_POSITION_APP:                 "POSITION_APP",
	PortNum_NODEINFO_APP:                 "NODEINFO_APP",
	PortNum_ROUTING_APP:                  "ROUTING_APP",
	PortNum_ADMIN_APP:                    "ADMIN_APP",
	PortNum_DETECTION_SENSOR_APP:         "DETECTION_SENSOR_APP",
	PortNum_ALERT_APP:                    "ALERT_APP",
	PortNum_TEXT_MESSAGE_COMPRESSED_APP:  "TEXT_MESSAGE_COMPRESSED_APP",
	PortNum_PAXCOUNTER_APP:               "PAXCOUNTER_APP",
	PortNum_TELEMETRY_APP:                "TELEMETRY_APP",
	PortNum_TRACEROUTE_APP:               "TRACEROUTE_APP",
	PortNum_NEIGHBORINFO_APP:             "NEIGHBORINFO_APP",
}

var portNumByName = func() map[string]PortNum {
	out := make(map[string]PortNum, len(portNumNames))
	for n, name := range portNumNames {
		out[name] = n
	}
	return out
}()

func (p PortNum) String() string {
	if name, ok := portNumNames[p]; ok {
		return name
	}
	return "unknown port"
}

// NormalizePortNum resolves a port number given either its numeric or
// named form, satisfying Testable Property 3: normalize(name) ==
// normalize(number) for every known port.
func NormalizePortNum(v any) PortNum {
	switch t := v.(type) {
	case PortNum:
		return t
	case int32:
		return PortNum(t)
	case int:
		return PortNum(t)
	case string:
		if p, ok := portNumByName[t]; ok {
			return p
		}
		return PortNum_UNKNOWN_APP
	default:
		return PortNum_UNKNOWN_APP
	}
}

// HardwareModel mirrors the radio's hardware-model enum; only UNSET needs
// special handling by the codec (it means "no model reported").
type HardwareModel int32

const HardwareModel_UNSET HardwareModel = 0

func (h HardwareModel) String() string {
	if h == HardwareModel_UNSET {
		return "UNSET"
	}
	return fmt.Sprintf("HW_%d", int32(h))
}

// RoutingError is the end-to-end error reason carried by a Routing-app ack.
type RoutingError int32

const (
	Routing_NONE    RoutingError = 0
	Routing_TIMEOUT RoutingError = 32
)

func (r RoutingError) String() string {
	switch r {
	case Routing_NONE:
		return "NONE"
	case Routing_TIMEOUT:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("ERROR_%d", int32(r))
	}
}

// ChannelRole mirrors the radio's channel role enum.
type ChannelRole int32

const (
	Channel_DISABLED ChannelRole = 0
	Channel_PRIMARY  ChannelRole = 1
	Channel_SECONDARY ChannelRole = 2
)

// ModemPreset mirrors the LoRa config's modem preset enum.
type ModemPreset int32

const (
	ModemPreset_LONG_FAST ModemPreset = 0
	ModemPreset_LONG_SLOW ModemPreset = 1
	ModemPreset_VERY_LONG_SLOW ModemPreset = 2
	ModemPreset_MEDIUM_SLOW ModemPreset = 3
	ModemPreset_MEDIUM_FAST ModemPreset = 4
	ModemPreset_SHORT_SLOW ModemPreset = 5
	ModemPreset_SHORT_FAST ModemPreset = 6
	ModemPreset_LONG_MODERATE ModemPreset = 7
	ModemPreset_SHORT_TURBO ModemPreset = 8
	ModemPreset_LONG_TURBO ModemPreset = 9
)

var modemPresetNames = map[ModemPreset]string{
	ModemPreset_LONG_FAST:      "LONG_FAST",
	ModemPreset_LONG_SLOW:      "LONG_SLOW",
	ModemPreset_VERY_LONG_SLOW: "VERY_LONG_SLOW",
	ModemPreset_MEDIUM_SLOW:    "MEDIUM_SLOW",
	ModemPreset_MEDIUM_FAST:    "MEDIUM_FAST",
	ModemPreset_SHORT_SLOW:     "SHORT_SLOW",
	ModemPreset_SHORT_FAST:     "SHORT_FAST",
	ModemPreset_LONG_MODERATE:  "LONG_MODERATE",
	ModemPreset_SHORT_TURBO:    "SHORT_TURBO",
	ModemPreset_LONG_TURBO:     "LONG_TURBO",
}

func (m ModemPreset) String() string {
	if name, ok := modemPresetNames[m]; ok {
		return name
	}
	return "LONG_FAST"
}

// MeshPacketPriority mirrors the radio's packet priority enum; only ACK
// matters to the codec (it marks a reply packet carrying a routing ack).
type MeshPacketPriority int32

const (
	MeshPacket_DEFAULT  MeshPacketPriority = 64
	MeshPacket_RELIABLE MeshPacketPriority = 70
	MeshPacket_ACK      MeshPacketPriority = 120
)

// TransportMechanism mirrors the radio's transport-mechanism enum used in
// packet metadata (LoRa vs MQTT vs simulator, etc).
type TransportMechanism int32

func (t TransportMechanism) String() string {
	return fmt.Sprintf("TRANSPORT_%d", int32(t))
}
