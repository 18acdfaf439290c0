package psi

import (
	"bytes"
	"testing"
)

func buildSdtSection(tsid, networkID uint16, version uint8, currentNext bool, services []SdtService) []byte {
	rest := []byte{byte(tsid >> 8), byte(tsid), 0, 0, 0, byte(networkID >> 8), byte(networkID), 0}
	rest[2] = ((version << 1) & 0x3E) | 0xC0
	if currentNext {
		rest[2] |= 0x01
	}

	for _, svc := range services {
		var descs []byte
		if svc.ServiceNameRaw != nil || svc.ProviderNameRaw != nil {
			sd := append([]byte{svc.ServiceType, byte(len(svc.ProviderNameRaw))}, svc.ProviderNameRaw...)
			sd = append(sd, byte(len(svc.ServiceNameRaw)))
			sd = append(sd, svc.ServiceNameRaw...)
			descs = append(descs, DescService, byte(len(sd)))
			descs = append(descs, sd...)
		}
		eitByte := byte(0)
		if svc.EITSchedule {
			eitByte |= 0x02
		}
		if svc.EITPresentFollowing {
			eitByte |= 0x01
		}
		rest = append(rest, byte(svc.ServiceID>>8), byte(svc.ServiceID), eitByte|0xFC,
			byte(len(descs)>>8)&0x0F|0xF0, byte(len(descs)))
		rest = append(rest, descs...)
	}

	length := len(rest) + 4
	body := []byte{TableIDSdtActual, 0xF0 | byte(length>>8&0x0F), byte(length)}
	body = append(body, rest...)
	return appendCRC(body)
}

func TestSdtDecoder_basic(t *testing.T) {
	services := []SdtService{
		{ServiceID: 100, ServiceType: 0x01, EITPresentFollowing: true, ProviderNameRaw: []byte("BBC"), ServiceNameRaw: []byte("One")},
	}
	section := buildSdtSection(1, 9, 0, true, services)

	var got *Sdt
	dec := NewSdtDecoder(1, func(s *Sdt) error { got = s; return nil })
	for _, pkt := range packetizeSection(PidSDT, section) {
		if err := dec.Push(pkt); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	if got == nil {
		t.Fatal("decoder never emitted an SDT")
	}
	if got.TSID != 1 || got.NetworkID != 9 {
		t.Fatalf("got %+v", got)
	}
	if len(got.Services) != 1 {
		t.Fatalf("got %d services, want 1", len(got.Services))
	}
	svc := got.Services[0]
	if svc.ServiceID != 100 || !svc.EITPresentFollowing || svc.EITSchedule {
		t.Fatalf("svc = %+v", svc)
	}
	if !bytes.Equal(svc.ProviderNameRaw, []byte("BBC")) || !bytes.Equal(svc.ServiceNameRaw, []byte("One")) {
		t.Fatalf("raw text fields not preserved: %+v", svc)
	}
}

func TestSdtDecoder_ignoresWrongTSID(t *testing.T) {
	section := buildSdtSection(1, 9, 0, true, nil)

	var called bool
	dec := NewSdtDecoder(2, func(s *Sdt) error { called = true; return nil })
	for _, pkt := range packetizeSection(PidSDT, section) {
		dec.Push(pkt)
	}
	if called {
		t.Fatal("SDT demultiplexer must only decode sections whose ts_id matches the current PAT")
	}
}
