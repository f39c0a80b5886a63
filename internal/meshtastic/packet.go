package meshtastic

import "google.golang.org/protobuf/encoding/protowire"

// Data is the application payload carried inside a MeshPacket, dispatched
// by the packet router on Portnum.
type Data struct {
	Portnum      PortNum
	Payload      []byte
	WantResponse bool
	Dest         uint32
	Source       uint32
	RequestId    uint32
	ReplyId      uint32
	Bitfield     *uint32
}

func (d *Data) GetPortnum() PortNum   { return d.Portnum }
func (d *Data) GetPayload() []byte    { return d.Payload }
func (d *Data) GetWantResponse() bool { return d.WantResponse }
func (d *Data) GetDest() uint32       { return d.Dest }
func (d *Data) GetSource() uint32     { return d.Source }
func (d *Data) GetRequestId() uint32  { return d.RequestId }
func (d *Data) GetReplyId() uint32    { return d.ReplyId }

func (d *Data) GetBitfield() uint32 {
	if d.Bitfield == nil {
		return 0
	}
	return *d.Bitfield
}

func (d *Data) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(d.Portnum))
	b = appendBytes(b, 2, d.Payload)
	if d.WantResponse {
		b = appendVarint(b, 3, 1)
	}
	b = appendVarint(b, 4, uint64(d.Dest))
	b = appendVarint(b, 5, uint64(d.RequestId))
	b = appendVarint(b, 6, uint64(d.ReplyId))
	b = appendVarint(b, 7, uint64(d.Source))
	if d.Bitfield != nil {
		b = appendVarintAlways(b, 8, uint64(*d.Bitfield))
	}
	return b
}

func UnmarshalData(data []byte) (*Data, error) {
	d := &Data{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			d.Portnum = PortNum(v)
			return rest, nil
		case 2:
			v, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			d.Payload = v
			return rest, nil
		case 3:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			d.WantResponse = v != 0
			return rest, nil
		case 4:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			d.Dest = uint32(v)
			return rest, nil
		case 5:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			d.RequestId = uint32(v)
			return rest, nil
		case 6:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			d.ReplyId = uint32(v)
			return rest, nil
		case 7:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			d.Source = uint32(v)
			return rest, nil
		case 8:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			d.Bitfield = uint32Ptr(uint32(v))
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// MeshPacket is the envelope carried between radio and host over the
// framed transport: it names the sender/receiver node numbers and wraps
// either a decoded Data payload or an opaque encrypted blob.
type MeshPacket struct {
	From     uint32
	To       uint32
	Channel  uint32
	Decoded  *Data
	Encrypted []byte
	Id       uint32
	RxTime   uint32
	RxSnr    float32
	HopLimit uint32
	Priority MeshPacketPriority
	RxRssi   int32
	HopStart uint32
	PkiEncrypted bool
	WantAck  bool
	ViaMqtt  bool
	TransportMechanism TransportMechanism
}

func (m *MeshPacket) GetFrom() uint32           { return m.From }
func (m *MeshPacket) GetTo() uint32             { return m.To }
func (m *MeshPacket) GetChannel() uint32        { return m.Channel }
func (m *MeshPacket) GetDecoded() *Data         { return m.Decoded }
func (m *MeshPacket) GetId() uint32             { return m.Id }
func (m *MeshPacket) GetRxTime() uint32         { return m.RxTime }
func (m *MeshPacket) GetRxSnr() float32         { return m.RxSnr }
func (m *MeshPacket) GetHopLimit() uint32       { return m.HopLimit }
func (m *MeshPacket) GetHopStart() uint32       { return m.HopStart }
func (m *MeshPacket) GetRxRssi() int32          { return m.RxRssi }
func (m *MeshPacket) GetPriority() MeshPacketPriority { return m.Priority }
func (m *MeshPacket) GetWantAck() bool          { return m.WantAck }
func (m *MeshPacket) GetViaMqtt() bool          { return m.ViaMqtt }
func (m *MeshPacket) GetTransportMechanism() TransportMechanism { return m.TransportMechanism }

func (m *MeshPacket) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.From))
	b = appendVarint(b, 2, uint64(m.To))
	b = appendVarint(b, 3, uint64(m.Channel))
	if m.Decoded != nil {
		b = appendMessage(b, 4, m.Decoded.Marshal())
	}
	b = appendBytes(b, 5, m.Encrypted)
	b = appendVarint(b, 6, uint64(m.Id))
	b = appendVarint(b, 7, uint64(m.RxTime))
	b = appendFloat32(b, 8, &m.RxSnr)
	b = appendVarint(b, 9, uint64(m.HopLimit))
	b = appendVarint(b, 10, uint64(m.Priority))
	b = appendVarint(b, 11, uint64(uint32(m.RxRssi)))
	b = appendVarint(b, 12, uint64(m.HopStart))
	if m.PkiEncrypted {
		b = appendVarint(b, 13, 1)
	}
	if m.WantAck {
		b = appendVarint(b, 14, 1)
	}
	if m.ViaMqtt {
		b = appendVarint(b, 15, 1)
	}
	b = appendVarint(b, 16, uint64(m.TransportMechanism))
	return b
}

func UnmarshalMeshPacket(data []byte) (*MeshPacket, error) {
	m := &MeshPacket{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.From = uint32(v)
			return rest, nil
		case 2:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.To = uint32(v)
			return rest, nil
		case 3:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.Channel = uint32(v)
			return rest, nil
		case 4:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			d, err := UnmarshalData(payload)
			if err != nil {
				return nil, err
			}
			m.Decoded = d
			return rest, nil
		case 5:
			v, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			m.Encrypted = v
			return rest, nil
		case 6:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.Id = uint32(v)
			return rest, nil
		case 7:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.RxTime = uint32(v)
			return rest, nil
		case 8:
			v, rest, err := consumeFloat32(b)
			if err != nil {
				return nil, err
			}
			m.RxSnr = v
			return rest, nil
		case 9:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.HopLimit = uint32(v)
			return rest, nil
		case 10:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.Priority = MeshPacketPriority(v)
			return rest, nil
		case 11:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.RxRssi = int32(uint32(v))
			return rest, nil
		case 12:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.HopStart = uint32(v)
			return rest, nil
		case 13:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.PkiEncrypted = v != 0
			return rest, nil
		case 14:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.WantAck = v != 0
			return rest, nil
		case 15:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.ViaMqtt = v != 0
			return rest, nil
		case 16:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.TransportMechanism = TransportMechanism(v)
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ToRadio is the host-to-radio envelope: exactly one of its fields is set
// per message, mirroring the generated-proto oneof convention.
type ToRadio struct {
	Packet        *MeshPacket
	WantConfigId  *uint32
	Disconnect    bool
	Heartbeat     bool
}

func (t *ToRadio) GetPacket() *MeshPacket { return t.Packet }

func (t *ToRadio) GetWantConfigId() uint32 {
	if t.WantConfigId == nil {
		return 0
	}
	return *t.WantConfigId
}

func (t *ToRadio) Marshal() []byte {
	var b []byte
	if t.Packet != nil {
		b = appendMessage(b, 1, t.Packet.Marshal())
	}
	if t.WantConfigId != nil {
		b = appendVarintAlways(b, 3, uint64(*t.WantConfigId))
	}
	if t.Disconnect {
		b = appendVarint(b, 4, 1)
	}
	if t.Heartbeat {
		b = appendVarint(b, 5, 1)
	}
	return b
}

func UnmarshalToRadio(data []byte) (*ToRadio, error) {
	t := &ToRadio{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			p, err := UnmarshalMeshPacket(payload)
			if err != nil {
				return nil, err
			}
			t.Packet = p
			return rest, nil
		case 3:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			t.WantConfigId = uint32Ptr(uint32(v))
			return rest, nil
		case 4:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			t.Disconnect = v != 0
			return rest, nil
		case 5:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			t.Heartbeat = v != 0
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FromRadio is the radio-to-host envelope produced during both the config
// replay sequence and normal operation; exactly one field is populated.
type FromRadio struct {
	Packet           *MeshPacket
	MyInfo           *MyNodeInfo
	NodeInfo         *NodeInfo
	Config           *Config
	ConfigCompleteId *uint32
	Metadata         *DeviceMetadata
	Channel          *Channel
	QueueStatus      *QueueStatus
}

func (f *FromRadio) GetPacket() *MeshPacket         { return f.Packet }
func (f *FromRadio) GetMyInfo() *MyNodeInfo         { return f.MyInfo }
func (f *FromRadio) GetNodeInfo() *NodeInfo         { return f.NodeInfo }
func (f *FromRadio) GetConfig() *Config             { return f.Config }
func (f *FromRadio) GetMetadata() *DeviceMetadata   { return f.Metadata }
func (f *FromRadio) GetChannel() *Channel           { return f.Channel }
func (f *FromRadio) GetQueueStatus() *QueueStatus   { return f.QueueStatus }

func (f *FromRadio) GetConfigCompleteId() uint32 {
	if f.ConfigCompleteId == nil {
		return 0
	}
	return *f.ConfigCompleteId
}

func (f *FromRadio) Marshal() []byte {
	var b []byte
	if f.Packet != nil {
		b = appendMessage(b, 1, f.Packet.Marshal())
	}
	if f.MyInfo != nil {
		b = appendMessage(b, 2, f.MyInfo.Marshal())
	}
	if f.NodeInfo != nil {
		b = appendMessage(b, 3, f.NodeInfo.Marshal())
	}
	if f.Config != nil {
		b = appendMessage(b, 4, f.Config.Marshal())
	}
	if f.ConfigCompleteId != nil {
		b = appendVarintAlways(b, 5, uint64(*f.ConfigCompleteId))
	}
	if f.Metadata != nil {
		b = appendMessage(b, 6, f.Metadata.Marshal())
	}
	if f.Channel != nil {
		b = appendMessage(b, 7, f.Channel.Marshal())
	}
	if f.QueueStatus != nil {
		b = appendMessage(b, 8, f.QueueStatus.Marshal())
	}
	return b
}

func UnmarshalFromRadio(data []byte) (*FromRadio, error) {
	f := &FromRadio{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			p, err := UnmarshalMeshPacket(payload)
			if err != nil {
				return nil, err
			}
			f.Packet = p
			return rest, nil
		case 2:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			mi, err := UnmarshalMyNodeInfo(payload)
			if err != nil {
				return nil, err
			}
			f.MyInfo = mi
			return rest, nil
		case 3:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			ni, err := UnmarshalNodeInfo(payload)
			if err != nil {
				return nil, err
			}
			f.NodeInfo = ni
			return rest, nil
		case 4:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			c, err := UnmarshalConfig(payload)
			if err != nil {
				return nil, err
			}
			f.Config = c
			return rest, nil
		case 5:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			f.ConfigCompleteId = uint32Ptr(uint32(v))
			return rest, nil
		case 6:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			md, err := UnmarshalDeviceMetadata(payload)
			if err != nil {
				return nil, err
			}
			f.Metadata = md
			return rest, nil
		case 7:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			ch, err := UnmarshalChannel(payload)
			if err != nil {
				return nil, err
			}
			f.Channel = ch
			return rest, nil
		case 8:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			qs, err := UnmarshalQueueStatus(payload)
			if err != nil {
				return nil, err
			}
			f.QueueStatus = qs
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}
