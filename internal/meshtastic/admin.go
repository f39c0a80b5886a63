package meshtastic

import "google.golang.org/protobuf/encoding/protowire"

// AdminMessage is the ADMIN_APP payload. Only one of its oneof-style
// optional fields is ever set on a given instance, mirroring the
// generated-proto oneof convention without an actual oneof wrapper type.
type AdminMessage struct {
	SetFavoriteNode    *uint32
	RemoveFavoriteNode *uint32
	SetIgnoredNode     *uint32
	RemoveIgnoredNode  *uint32
	RemoveByNodenum    *uint32
	RebootSeconds      *int32
	GetChannelRequest  *uint32
	GetChannelResponse *Channel
	GetConfigRequest   *uint32
	SessionPasskey     []byte
	SetOwner           *User
}

func (a *AdminMessage) GetSetFavoriteNode() uint32 {
	if a.SetFavoriteNode == nil {
		return 0
	}
	return *a.SetFavoriteNode
}

func (a *AdminMessage) GetRemoveFavoriteNode() uint32 {
	if a.RemoveFavoriteNode == nil {
		return 0
	}
	return *a.RemoveFavoriteNode
}

func (a *AdminMessage) GetSetIgnoredNode() uint32 {
	if a.SetIgnoredNode == nil {
		return 0
	}
	return *a.SetIgnoredNode
}

func (a *AdminMessage) GetRemoveIgnoredNode() uint32 {
	if a.RemoveIgnoredNode == nil {
		return 0
	}
	return *a.RemoveIgnoredNode
}

func (a *AdminMessage) GetRemoveByNodenum() uint32 {
	if a.RemoveByNodenum == nil {
		return 0
	}
	return *a.RemoveByNodenum
}

func (a *AdminMessage) GetRebootSeconds() int32 {
	if a.RebootSeconds == nil {
		return 0
	}
	return *a.RebootSeconds
}

func (a *AdminMessage) GetGetChannelRequest() uint32 {
	if a.GetChannelRequest == nil {
		return 0
	}
	return *a.GetChannelRequest
}

func (a *AdminMessage) GetGetChannelResponse() *Channel { return a.GetChannelResponse }

func (a *AdminMessage) GetSessionPasskey() []byte { return a.SessionPasskey }
func (a *AdminMessage) GetSetOwner() *User        { return a.SetOwner }

func (a *AdminMessage) Marshal() []byte {
	var b []byte
	if a.SetFavoriteNode != nil {
		b = appendVarintAlways(b, 2, uint64(*a.SetFavoriteNode))
	}
	if a.RemoveFavoriteNode != nil {
		b = appendVarintAlways(b, 3, uint64(*a.RemoveFavoriteNode))
	}
	if a.SetIgnoredNode != nil {
		b = appendVarintAlways(b, 4, uint64(*a.SetIgnoredNode))
	}
	if a.RemoveIgnoredNode != nil {
		b = appendVarintAlways(b, 5, uint64(*a.RemoveIgnoredNode))
	}
	if a.RemoveByNodenum != nil {
		b = appendVarintAlways(b, 6, uint64(*a.RemoveByNodenum))
	}
	if a.RebootSeconds != nil {
		b = appendVarintAlways(b, 7, uint64(uint32(*a.RebootSeconds)))
	}
	if a.GetChannelRequest != nil {
		b = appendVarintAlways(b, 8, uint64(*a.GetChannelRequest))
	}
	if a.GetChannelResponse != nil {
		b = appendMessage(b, 9, a.GetChannelResponse.Marshal())
	}
	if a.GetConfigRequest != nil {
		b = appendVarintAlways(b, 10, uint64(*a.GetConfigRequest))
	}
	b = appendBytes(b, 11, a.SessionPasskey)
	if a.SetOwner != nil {
		b = appendMessage(b, 12, a.SetOwner.Marshal())
	}
	return b
}

func UnmarshalAdminMessage(data []byte) (*AdminMessage, error) {
	a := &AdminMessage{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 2:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			a.SetFavoriteNode = uint32Ptr(uint32(v))
			return rest, nil
		case 3:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			a.RemoveFavoriteNode = uint32Ptr(uint32(v))
			return rest, nil
		case 4:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			a.SetIgnoredNode = uint32Ptr(uint32(v))
			return rest, nil
		case 5:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			a.RemoveIgnoredNode = uint32Ptr(uint32(v))
			return rest, nil
		case 6:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			a.RemoveByNodenum = uint32Ptr(uint32(v))
			return rest, nil
		case 7:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			a.RebootSeconds = int32Ptr(int32(uint32(v)))
			return rest, nil
		case 8:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			a.GetChannelRequest = uint32Ptr(uint32(v))
			return rest, nil
		case 9:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			ch, err := UnmarshalChannel(payload)
			if err != nil {
				return nil, err
			}
			a.GetChannelResponse = ch
			return rest, nil
		case 10:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			a.GetConfigRequest = uint32Ptr(uint32(v))
			return rest, nil
		case 11:
			v, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			a.SessionPasskey = v
			return rest, nil
		case 12:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			u, err := UnmarshalUser(payload)
			if err != nil {
				return nil, err
			}
			a.SetOwner = u
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
