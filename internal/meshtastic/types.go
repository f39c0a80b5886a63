package meshtastic

import "google.golang.org/protobuf/encoding/protowire"

// Field numbers below are this module's own internal wire scheme: since no
// .proto file or protoc-generated package is vendored here, these types
// exchange messages only with themselves — the assignment need only be
// internally consistent, which protowire's tag/wire-type framing guarantees.

// User identifies a mesh peer's operator-facing identity.
type User struct {
	Id             string
	LongName       string
	ShortName      string
	MacAddr        []byte
	HwModel        HardwareModel
	IsLicensed     bool
	Role           int32
	IsUnmessagable *bool
	PublicKey      []byte
}

func (u *User) GetLongName() string {
	if u == nil {
		return ""
	}
	return u.LongName
}

func (u *User) GetShortName() string {
	if u == nil {
		return ""
	}
	return u.ShortName
}

func (u *User) GetHwModel() HardwareModel {
	if u == nil {
		return HardwareModel_UNSET
	}
	return u.HwModel
}

func (u *User) GetRole() roleEnum {
	if u == nil {
		return roleEnum(0)
	}
	return roleEnum(u.Role)
}

func (u *User) GetIsUnmessagable() bool {
	if u == nil || u.IsUnmessagable == nil {
		return false
	}
	return *u.IsUnmessagable
}

func (u *User) GetLongNameOk() bool { return u != nil && u.LongName != "" }

type roleEnum int32

func (r roleEnum) String() string {
	switch r {
	case 0:
		return "CLIENT"
	default:
		return "CLIENT"
	}
}

func (u *User) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, u.Id)
	b = appendString(b, 2, u.LongName)
	b = appendString(b, 3, u.ShortName)
	b = appendBytes(b, 4, u.MacAddr)
	b = appendVarint(b, 5, uint64(u.HwModel))
	if u.IsLicensed {
		b = appendVarint(b, 6, 1)
	}
	b = appendVarint(b, 7, uint64(u.Role))
	if u.IsUnmessagable != nil {
		b = appendVarintAlways(b, 8, boolVarint(*u.IsUnmessagable))
	}
	b = appendBytes(b, 9, u.PublicKey)
	return b
}

func UnmarshalUser(data []byte) (*User, error) {
	u := &User{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeString(b)
			if err != nil {
				return nil, err
			}
			u.Id = v
			return rest, nil
		case 2:
			v, rest, err := consumeString(b)
			if err != nil {
				return nil, err
			}
			u.LongName = v
			return rest, nil
		case 3:
			v, rest, err := consumeString(b)
			if err != nil {
				return nil, err
			}
			u.ShortName = v
			return rest, nil
		case 4:
			v, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			u.MacAddr = v
			return rest, nil
		case 5:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			u.HwModel = HardwareModel(v)
			return rest, nil
		case 6:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			u.IsLicensed = v != 0
			return rest, nil
		case 7:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			u.Role = int32(v)
			return rest, nil
		case 8:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			u.IsUnmessagable = boolPtr(v != 0)
			return rest, nil
		case 9:
			v, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			u.PublicKey = v
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func boolVarint(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// Position is a GPS fix, on-wire as integer degrees scaled by 1e7.
type Position struct {
	LatitudeI  *int32
	LongitudeI *int32
	Altitude   *int32
	Time       uint32
}

func (p *Position) GetLatitudeI() int32 {
	if p == nil || p.LatitudeI == nil {
		return 0
	}
	return *p.LatitudeI
}

func (p *Position) GetLongitudeI() int32 {
	if p == nil || p.LongitudeI == nil {
		return 0
	}
	return *p.LongitudeI
}

func (p *Position) GetAltitude() int32 {
	if p == nil || p.Altitude == nil {
		return 0
	}
	return *p.Altitude
}

func (p *Position) GetTime() uint32 {
	if p == nil {
		return 0
	}
	return p.Time
}

func (p *Position) Marshal() []byte {
	var b []byte
	if p.LatitudeI != nil {
		b = appendVarintAlways(b, 1, uint64(uint32(*p.LatitudeI)))
	}
	if p.LongitudeI != nil {
		b = appendVarintAlways(b, 2, uint64(uint32(*p.LongitudeI)))
	}
	if p.Altitude != nil {
		b = appendVarintAlways(b, 3, uint64(uint32(*p.Altitude)))
	}
	b = appendVarint(b, 4, uint64(p.Time))
	return b
}

func UnmarshalPosition(data []byte) (*Position, error) {
	p := &Position{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			p.LatitudeI = int32Ptr(int32(uint32(v)))
			return rest, nil
		case 2:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			p.LongitudeI = int32Ptr(int32(uint32(v)))
			return rest, nil
		case 3:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			p.Altitude = int32Ptr(int32(uint32(v)))
			return rest, nil
		case 4:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			p.Time = uint32(v)
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
