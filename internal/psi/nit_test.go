package psi

import "testing"

func buildNitSection(networkID uint16, version uint8, currentNext bool, netDescs []Descriptor, streams []NitTransportStream) []byte {
	var netDescBytes []byte
	for _, d := range netDescs {
		netDescBytes = append(netDescBytes, d.Tag, byte(len(d.Data)))
		netDescBytes = append(netDescBytes, d.Data...)
	}

	var tsLoop []byte
	for _, ts := range streams {
		var descBytes []byte
		for _, d := range ts.Descriptors {
			descBytes = append(descBytes, d.Tag, byte(len(d.Data)))
			descBytes = append(descBytes, d.Data...)
		}
		tsLoop = append(tsLoop, byte(ts.TSID>>8), byte(ts.TSID), byte(ts.NetworkID>>8), byte(ts.NetworkID),
			byte(len(descBytes)>>8)&0x0F|0xF0, byte(len(descBytes)))
		tsLoop = append(tsLoop, descBytes...)
	}

	rest := []byte{byte(networkID >> 8), byte(networkID), 0, 0, 0,
		byte(len(netDescBytes)>>8)&0x0F | 0xF0, byte(len(netDescBytes))}
	rest[2] = ((version << 1) & 0x3E) | 0xC0
	if currentNext {
		rest[2] |= 0x01
	}
	rest = append(rest, netDescBytes...)
	rest = append(rest, byte(len(tsLoop)>>8)&0x0F|0xF0, byte(len(tsLoop)))
	rest = append(rest, tsLoop...)

	length := len(rest) + 4
	body := []byte{TableIDNitActual, 0xF0 | byte(length>>8&0x0F), byte(length)}
	body = append(body, rest...)
	return appendCRC(body)
}

func TestNitDecoder_basic(t *testing.T) {
	netDescs := []Descriptor{{Tag: DescNetworkName, Data: []byte("Astra 19.2E")}}
	streams := []NitTransportStream{
		{TSID: 1, NetworkID: 9, Descriptors: []Descriptor{{Tag: DescServiceList, Data: []byte{0, 100, 0x01}}}},
	}
	section := buildNitSection(9, 0, true, netDescs, streams)

	var got *Nit
	dec := NewNitDecoder(func(n *Nit) error { got = n; return nil })
	for _, pkt := range packetizeSection(PidNIT, section) {
		if err := dec.Push(pkt); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	if got == nil {
		t.Fatal("decoder never emitted a NIT")
	}
	if got.NetworkID != 9 {
		t.Fatalf("got %+v", got)
	}
	if len(got.Descriptors) != 1 || got.Descriptors[0].Tag != DescNetworkName {
		t.Fatalf("network descriptors = %+v", got.Descriptors)
	}
	if len(got.TransportStreams) != 1 || got.TransportStreams[0].TSID != 1 {
		t.Fatalf("transport streams = %+v", got.TransportStreams)
	}
}
