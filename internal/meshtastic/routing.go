package meshtastic

import "google.golang.org/protobuf/encoding/protowire"

// RouteDiscovery carries the accumulated hop list of a traceroute request
// or reply, plus the per-hop SNR readings recorded along the way.
type RouteDiscovery struct {
	Route     []uint32
	SnrTowards []int32
	RouteBack []uint32
	SnrBack   []int32
}

func (r *RouteDiscovery) GetRoute() []uint32      { return r.Route }
func (r *RouteDiscovery) GetSnrTowards() []int32  { return r.SnrTowards }
func (r *RouteDiscovery) GetRouteBack() []uint32  { return r.RouteBack }
func (r *RouteDiscovery) GetSnrBack() []int32     { return r.SnrBack }

func (r *RouteDiscovery) Marshal() []byte {
	var b []byte
	for _, hop := range r.Route {
		b = appendVarintAlways(b, 1, uint64(hop))
	}
	for _, snr := range r.SnrTowards {
		b = appendVarintAlways(b, 2, uint64(uint32(snr)))
	}
	for _, hop := range r.RouteBack {
		b = appendVarintAlways(b, 3, uint64(hop))
	}
	for _, snr := range r.SnrBack {
		b = appendVarintAlways(b, 4, uint64(uint32(snr)))
	}
	return b
}

func UnmarshalRouteDiscovery(data []byte) (*RouteDiscovery, error) {
	r := &RouteDiscovery{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			r.Route = append(r.Route, uint32(v))
			return rest, nil
		case 2:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			r.SnrTowards = append(r.SnrTowards, int32(uint32(v)))
			return rest, nil
		case 3:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			r.RouteBack = append(r.RouteBack, uint32(v))
			return rest, nil
		case 4:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			r.SnrBack = append(r.SnrBack, int32(uint32(v)))
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Routing is the payload of a ROUTING_APP packet: either an error code
// (an ack/nak for a prior packet) or a nested RouteDiscovery reply.
type Routing struct {
	ErrorReason *RoutingError
	Route       *RouteDiscovery
}

func (r *Routing) GetErrorReason() RoutingError {
	if r == nil || r.ErrorReason == nil {
		return Routing_NONE
	}
	return *r.ErrorReason
}

func (r *Routing) GetRoute() *RouteDiscovery { return r.Route }

func (r *Routing) Marshal() []byte {
	var b []byte
	if r.ErrorReason != nil {
		b = appendVarintAlways(b, 1, uint64(*r.ErrorReason))
	}
	if r.Route != nil {
		b = appendMessage(b, 2, r.Route.Marshal())
	}
	return b
}

func UnmarshalRouting(data []byte) (*Routing, error) {
	r := &Routing{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		switch num {
		case 1:
			v, rest, err := consumeVarint(b)
			if err != nil {
				return nil, err
			}
			e := RoutingError(int32(uint32(v)))
			r.ErrorReason = &e
			return rest, nil
		case 2:
			payload, rest, err := consumeBytes(b)
			if err != nil {
				return nil, err
			}
			rd, err := UnmarshalRouteDiscovery(payload)
			if err != nil {
				return nil, err
			}
			r.Route = rd
			return rest, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
