package meshtastic

import "google.golang.org/protobuf/encoding/protowire"

// ChannelSettings holds one channel's PSK and display name. PSK length
// determines its encryption classification: 0 bytes is unencrypted, 1 byte
// selects a default preset key, 16 or 32 bytes is a custom AES key.
type ChannelSettings struct {
	ChannelNum uint32
	Psk        []byte
	Name       string
	Id         uint32
}

func (c *ChannelSettings) GetPsk() []byte  { return c.Psk }
func (c *ChannelSettings) GetName() string { return c.Name }

func (c *ChannelSettings) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(c.ChannelNum))
	b = appendBytes(b, 2, c.Psk)
	b = appendString(b, 3, c.Name)
	b = appendVarint(b, 4, uint64(c.Id))
	return b
}

func UnmarshalChannelSettings(data []byte) (*ChannelSettings, error) {
	c := &ChannelSettings{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			c.ChannelNum = uint32(v)
			return rest, nil
		case 2:
			v, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			c.Psk = v
			return rest, nil
		case 3:
			v, rest, err := consumeString(b)
			if err != nil {
				return nil, err
			}
			c.Name = v
			return rest, nil
		case 4:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			c.Id = uint32(v)
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Channel binds a channel index, role, and its settings, as reported by
// the radio's channel table during config replay.
type Channel struct {
	Index    int32
	Role     ChannelRole
	Settings *ChannelSettings
}

func (c *Channel) GetIndex() int32              { return c.Index }
func (c *Channel) GetRole() ChannelRole         { return c.Role }
func (c *Channel) GetSettings() *ChannelSettings { return c.Settings }

func (c *Channel) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(uint32(c.Index)))
	b = appendVarint(b, 2, uint64(c.Role))
	if c.Settings != nil {
		b = appendMessage(b, 3, c.Settings.Marshal())
	}
	return b
}

func UnmarshalChannel(data []byte) (*Channel, error) {
	c := &Channel{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			c.Index = int32(uint32(v))
			return rest, nil
		case 2:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			c.Role = ChannelRole(v)
			return rest, nil
		case 3:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			s, err := UnmarshalChannelSettings(payload)
			if err != nil {
				return nil, err
			}
			c.Settings = s
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// LoRaConfig is the radio's LoRa physical-layer configuration, including
// the modem preset the Packet Router reports in poll snapshots.
type LoRaConfig struct {
	UsePreset   bool
	ModemPreset ModemPreset
	Region      int32
	TxPower     int32
	ChannelNum  uint32
}

func (l *LoRaConfig) GetModemPreset() ModemPreset { return l.ModemPreset }
func (l *LoRaConfig) GetUsePreset() bool          { return l.UsePreset }

func (l *LoRaConfig) Marshal() []byte {
	var b []byte
	if l.UsePreset {
		b = appendVarint(b, 1, 1)
	}
	b = appendVarint(b, 2, uint64(l.ModemPreset))
	b = appendVarint(b, 3, uint64(uint32(l.Region)))
	b = appendVarint(b, 4, uint64(uint32(l.TxPower)))
	b = appendVarint(b, 5, uint64(l.ChannelNum))
	return b
}

func UnmarshalLoRaConfig(data []byte) (*LoRaConfig, error) {
	l := &LoRaConfig{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			l.UsePreset = v != 0
			return rest, nil
		case 2:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			l.ModemPreset = ModemPreset(v)
			return rest, nil
		case 3:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			l.Region = int32(uint32(v))
			return rest, nil
		case 4:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			l.TxPower = int32(uint32(v))
			return rest, nil
		case 5:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			l.ChannelNum = uint32(v)
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Config is the radio's top-level Config:Device message; only the LoRa
// sub-message is consumed by this module; other fields are skipped on
// decode and are not re-encoded.
type Config struct {
	Lora *LoRaConfig
}

func (c *Config) GetLora() *LoRaConfig { return c.Lora }

func (c *Config) Marshal() []byte {
	var b []byte
	if c.Lora != nil {
		b = appendMessage(b, 4, c.Lora.Marshal())
	}
	return b
}

func UnmarshalConfig(data []byte) (*Config, error) {
	c := &Config{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		if num == 4 {
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			l, err := UnmarshalLoRaConfig(payload)
			if err != nil {
				return nil, err
			}
			c.Lora = l
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// QueueStatus reports the radio's outbound TX queue depth and the result
// of the most recently enqueued packet.
type QueueStatus struct {
	Res       int32
	Free      uint32
	MaxLen    uint32
	MeshPacketId uint32
}

func (q *QueueStatus) GetRes() int32          { return q.Res }
func (q *QueueStatus) GetFree() uint32        { return q.Free }
func (q *QueueStatus) GetMeshPacketId() uint32 { return q.MeshPacketId }

func (q *QueueStatus) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(uint32(q.Res)))
	b = appendVarint(b, 2, uint64(q.Free))
	b = appendVarint(b, 3, uint64(q.MaxLen))
	b = appendVarint(b, 4, uint64(q.MeshPacketId))
	return b
}

func UnmarshalQueueStatus(data []byte) (*QueueStatus, error) {
	q := &QueueStatus{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			q.Res = int32(uint32(v))
			return rest, nil
		case 2:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			q.Free = uint32(v)
			return rest, nil
		case 3:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			q.MaxLen = uint32(v)
			return rest, nil
		case 4:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			q.MeshPacketId = uint32(v)
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return q, nil
}

// MyNodeInfo is the radio's self-description, sent first during config
// replay.
type MyNodeInfo struct {
	MyNodeNum uint32
}

func (m *MyNodeInfo) GetMyNodeNum() uint32 { return m.MyNodeNum }

func (m *MyNodeInfo) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(m.MyNodeNum))
	return b
}

func UnmarshalMyNodeInfo(data []byte) (*MyNodeInfo, error) {
	m := &MyNodeInfo{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		if num == 1 {
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			m.MyNodeNum = uint32(v)
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DeviceMetadata is the radio firmware/hardware descriptor sent during
// config replay, right after MyNodeInfo.
type DeviceMetadata struct {
	FirmwareVersion string
	HwModel         HardwareModel
	HasWifi         bool
}

func (d *DeviceMetadata) GetFirmwareVersion() string { return d.FirmwareVersion }
func (d *DeviceMetadata) GetHwModel() HardwareModel  { return d.HwModel }

func (d *DeviceMetadata) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, d.FirmwareVersion)
	b = appendVarint(b, 2, uint64(d.HwModel))
	if d.HasWifi {
		b = appendVarint(b, 3, 1)
	}
	return b
}

func UnmarshalDeviceMetadata(data []byte) (*DeviceMetadata, error) {
	d := &DeviceMetadata{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeString(b)
			if err != nil {
				return nil, err
			}
			d.FirmwareVersion = v
			return rest, nil
		case 2:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			d.HwModel = HardwareModel(v)
			return rest, nil
		case 3:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			d.HasWifi = v != 0
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// NodeInfo is one entry of the radio's node database, replayed in full
// during config and updated incrementally afterward.
type NodeInfo struct {
	Num       uint32
	User      *User
	Position  *Position
	Snr       float32
	LastHeard uint32
	DeviceMetrics *DeviceMetrics
	HopsAway  *uint32
	IsFavorite bool
}

func (n *NodeInfo) GetNum() uint32              { return n.Num }
func (n *NodeInfo) GetUser() *User               { return n.User }
func (n *NodeInfo) GetPosition() *Position       { return n.Position }
func (n *NodeInfo) GetSnr() float32              { return n.Snr }
func (n *NodeInfo) GetLastHeard() uint32         { return n.LastHeard }
func (n *NodeInfo) GetDeviceMetrics() *DeviceMetrics { return n.DeviceMetrics }
func (n *NodeInfo) GetIsFavorite() bool          { return n.IsFavorite }

func (n *NodeInfo) GetHopsAway() uint32 {
	if n.HopsAway == nil {
		return 0
	}
	return *n.HopsAway
}

func (n *NodeInfo) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(n.Num))
	if n.User != nil {
		b = appendMessage(b, 2, n.User.Marshal())
	}
	if n.Position != nil {
		b = appendMessage(b, 3, n.Position.Marshal())
	}
	b = appendFloat32(b, 4, &n.Snr)
	b = appendVarint(b, 5, uint64(n.LastHeard))
	if n.DeviceMetrics != nil {
		b = appendMessage(b, 6, n.DeviceMetrics.Marshal())
	}
	if n.HopsAway != nil {
		b = appendVarintAlways(b, 7, uint64(*n.HopsAway))
	}
	if n.IsFavorite {
		b = appendVarint(b, 8, 1)
	}
	return b
}

func UnmarshalNodeInfo(data []byte) (*NodeInfo, error) {
	n := &NodeInfo{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			n.Num = uint32(v)
			return rest, nil
		case 2:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			u, err := UnmarshalUser(payload)
			if err != nil {
				return nil, err
			}
			n.User = u
			return rest, nil
		case 3:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			p, err := UnmarshalPosition(payload)
			if err != nil {
				return nil, err
			}
			n.Position = p
			return rest, nil
		case 4:
			v, rest, err := consumeFloat32(b)
			if err != nil {
				return nil, err
			}
			n.Snr = v
			return rest, nil
		case 5:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			n.LastHeard = uint32(v)
			return rest, nil
		case 6:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			dm, err := UnmarshalDeviceMetrics(payload)
			if err != nil {
				return nil, err
			}
			n.DeviceMetrics = dm
			return rest, nil
		case 7:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			n.HopsAway = uint32Ptr(uint32(v))
			return rest, nil
		case 8:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			n.IsFavorite = v != 0
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}
