package meshtastic

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

func appendFloat32(b []byte, num protowire.Number, v *float32) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(*v))
}

func consumeFloat32(b []byte) (float32, []byte, error) {
	bits, rest, err := consumeFixed32(b)
	if err != nil {
		return 0, nil, err
	}
	return math.Float32frombits(bits), rest, nil
}

// DeviceMetrics carries the radio's own health telemetry.
type DeviceMetrics struct {
	BatteryLevel       *uint32
	Voltage            *float32
	ChannelUtilization *float32
	AirUtilTx          *float32
	UptimeSeconds      *uint32
}

func (d *DeviceMetrics) GetBatteryLevel() uint32 {
	if d == nil || d.BatteryLevel == nil {
		return 0
	}
	return *d.BatteryLevel
}

func (d *DeviceMetrics) GetVoltage() float32 {
	if d == nil || d.Voltage == nil {
		return 0
	}
	return *d.Voltage
}

func (d *DeviceMetrics) Marshal() []byte {
	var b []byte
	if d.BatteryLevel != nil {
		b = appendVarintAlways(b, 1, uint64(*d.BatteryLevel))
	}
	b = appendFloat32(b, 2, d.Voltage)
	b = appendFloat32(b, 3, d.ChannelUtilization)
	b = appendFloat32(b, 4, d.AirUtilTx)
	if d.UptimeSeconds != nil {
		b = appendVarintAlways(b, 5, uint64(*d.UptimeSeconds))
	}
	return b
}

func UnmarshalDeviceMetrics(data []byte) (*DeviceMetrics, error) {
	d := &DeviceMetrics{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			d.BatteryLevel = uint32Ptr(uint32(v))
			return rest, nil
		case 2:
			v, rest, err := consumeFloat32(b)
			if err != nil {
				return nil, err
			}
			d.Voltage = &v
			return rest, nil
		case 3:
			v, rest, err := consumeFloat32(b)
			if err != nil {
				return nil, err
			}
			d.ChannelUtilization = &v
			return rest, nil
		case 4:
			v, rest, err := consumeFloat32(b)
			if err != nil {
				return nil, err
			}
			d.AirUtilTx = &v
			return rest, nil
		case 5:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			d.UptimeSeconds = uint32Ptr(uint32(v))
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// EnvironmentMetrics carries ambient sensor telemetry.
type EnvironmentMetrics struct {
	Temperature        *float32
	RelativeHumidity    *float32
	BarometricPressure *float32
	Iaq                *uint32
	Voltage            *float32
	Current            *float32
}

func (e *EnvironmentMetrics) GetTemperature() float32 {
	if e == nil || e.Temperature == nil {
		return 0
	}
	return *e.Temperature
}

func (e *EnvironmentMetrics) GetRelativeHumidity() float32 {
	if e == nil || e.RelativeHumidity == nil {
		return 0
	}
	return *e.RelativeHumidity
}

func (e *EnvironmentMetrics) GetBarometricPressure() float32 {
	if e == nil || e.BarometricPressure == nil {
		return 0
	}
	return *e.BarometricPressure
}

func (e *EnvironmentMetrics) GetIaq() uint32 {
	if e == nil || e.Iaq == nil {
		return 0
	}
	return *e.Iaq
}

func (e *EnvironmentMetrics) GetVoltage() float32 {
	if e == nil || e.Voltage == nil {
		return 0
	}
	return *e.Voltage
}

func (e *EnvironmentMetrics) GetCurrent() float32 {
	if e == nil || e.Current == nil {
		return 0
	}
	return *e.Current
}

func (e *EnvironmentMetrics) Marshal() []byte {
	var b []byte
	b = appendFloat32(b, 1, e.Temperature)
	b = appendFloat32(b, 2, e.RelativeHumidity)
	b = appendFloat32(b, 3, e.BarometricPressure)
	if e.Iaq != nil {
		b = appendVarintAlways(b, 4, uint64(*e.Iaq))
	}
	b = appendFloat32(b, 5, e.Voltage)
	b = appendFloat32(b, 6, e.Current)
	return b
}

func UnmarshalEnvironmentMetrics(data []byte) (*EnvironmentMetrics, error) {
	e := &EnvironmentMetrics{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeFloat32(b)
			if err != nil {
				return nil, err
			}
			e.Temperature = &v
			return rest, nil
		case 2:
			v, rest, err := consumeFloat32(b)
			if err != nil {
				return nil, err
			}
			e.RelativeHumidity = &v
			return rest, nil
		case 3:
			v, rest, err := consumeFloat32(b)
			if err != nil {
				return nil, err
			}
			e.BarometricPressure = &v
			return rest, nil
		case 4:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			e.Iaq = uint32Ptr(uint32(v))
			return rest, nil
		case 5:
			v, rest, err := consumeFloat32(b)
			if err != nil {
				return nil, err
			}
			e.Voltage = &v
			return rest, nil
		case 6:
			v, rest, err := consumeFloat32(b)
			if err != nil {
				return nil, err
			}
			e.Current = &v
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// PowerMetrics carries external power-channel telemetry (INA sensors).
type PowerMetrics struct {
	Ch1Voltage *float32
	Ch1Current *float32
}

func (p *PowerMetrics) GetCh1Voltage() float32 {
	if p == nil || p.Ch1Voltage == nil {
		return 0
	}
	return *p.Ch1Voltage
}

func (p *PowerMetrics) GetCh1Current() float32 {
	if p == nil || p.Ch1Current == nil {
		return 0
	}
	return *p.Ch1Current
}

func (p *PowerMetrics) Marshal() []byte {
	var b []byte
	b = appendFloat32(b, 1, p.Ch1Voltage)
	b = appendFloat32(b, 2, p.Ch1Current)
	return b
}

func UnmarshalPowerMetrics(data []byte) (*PowerMetrics, error) {
	p := &PowerMetrics{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeFloat32(b)
			if err != nil {
				return nil, err
			}
			p.Ch1Voltage = &v
			return rest, nil
		case 2:
			v, rest, err := consumeFloat32(b)
			if err != nil {
				return nil, err
			}
			p.Ch1Current = &v
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AirQualityMetrics carries particulate/VOC sensor telemetry.
type AirQualityMetrics struct {
	PmVocIdx *uint32
}

func (a *AirQualityMetrics) GetPmVocIdx() uint32 {
	if a == nil || a.PmVocIdx == nil {
		return 0
	}
	return *a.PmVocIdx
}

func (a *AirQualityMetrics) Marshal() []byte {
	var b []byte
	if a.PmVocIdx != nil {
		b = appendVarintAlways(b, 1, uint64(*a.PmVocIdx))
	}
	return b
}

func UnmarshalAirQualityMetrics(data []byte) (*AirQualityMetrics, error) {
	a := &AirQualityMetrics{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		if num == 1 {
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			a.PmVocIdx = uint32Ptr(uint32(v))
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Telemetry is the envelope carried by a TELEMETRY_APP packet payload.
type Telemetry struct {
	Time               uint32
	DeviceMetrics      *DeviceMetrics
	EnvironmentMetrics *EnvironmentMetrics
	PowerMetrics       *PowerMetrics
	AirQualityMetrics  *AirQualityMetrics
}

func (t *Telemetry) GetDeviceMetrics() *DeviceMetrics           { return t.DeviceMetrics }
func (t *Telemetry) GetEnvironmentMetrics() *EnvironmentMetrics { return t.EnvironmentMetrics }
func (t *Telemetry) GetPowerMetrics() *PowerMetrics             { return t.PowerMetrics }
func (t *Telemetry) GetAirQualityMetrics() *AirQualityMetrics   { return t.AirQualityMetrics }

func (t *Telemetry) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(t.Time))
	if t.DeviceMetrics != nil {
		b = appendMessage(b, 2, t.DeviceMetrics.Marshal())
	}
	if t.EnvironmentMetrics != nil {
		b = appendMessage(b, 3, t.EnvironmentMetrics.Marshal())
	}
	if t.PowerMetrics != nil {
		b = appendMessage(b, 4, t.PowerMetrics.Marshal())
	}
	if t.AirQualityMetrics != nil {
		b = appendMessage(b, 5, t.AirQualityMetrics.Marshal())
	}
	return b
}

func UnmarshalTelemetry(data []byte) (*Telemetry, error) {
	t := &Telemetry{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			t.Time = uint32(v)
			return rest, nil
		case 2:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			dm, err := UnmarshalDeviceMetrics(payload)
			if err != nil {
				return nil, err
			}
			t.DeviceMetrics = dm
			return rest, nil
		case 3:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			em, err := UnmarshalEnvironmentMetrics(payload)
			if err != nil {
				return nil, err
			}
			t.EnvironmentMetrics = em
			return rest, nil
		case 4:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			pm, err := UnmarshalPowerMetrics(payload)
			if err != nil {
				return nil, err
			}
			t.PowerMetrics = pm
			return rest, nil
		case 5:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			aq, err := UnmarshalAirQualityMetrics(payload)
			if err != nil {
				return nil, err
			}
			t.AirQualityMetrics = aq
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
