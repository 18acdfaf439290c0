package psi

// packetizeSection wraps a single PSI section (CRC already appended) into
// TS packets on pid, splitting across multiple packets if it doesn't fit in
// one, and padding the final packet with 0xFF stuffing.
func packetizeSection(pid uint16, section []byte) [][]byte {
	const pktSize = 188
	var pkts [][]byte

	first := make([]byte, pktSize)
	first[0] = 0x47
	first[1] = byte(pid>>8&0x1F) | 0x40 // PUSI
	first[2] = byte(pid)
	first[3] = 0x10 | 0x1 // no scrambling, payload only, cc=1
	first[4] = 0x00       // pointer_field = 0
	n := copy(first[5:], section)
	remaining := section[n:]
	for i := 5 + n; i < pktSize; i++ {
		first[i] = 0xFF
	}
	pkts = append(pkts, first)

	cc := byte(2)
	for len(remaining) > 0 {
		pkt := make([]byte, pktSize)
		pkt[0] = 0x47
		pkt[1] = byte(pid >> 8 & 0x1F)
		pkt[2] = byte(pid)
		pkt[3] = 0x10 | (cc & 0x0F)
		cc++
		m := copy(pkt[4:], remaining)
		remaining = remaining[m:]
		for i := 4 + m; i < pktSize; i++ {
			pkt[i] = 0xFF
		}
		pkts = append(pkts, pkt)
	}
	return pkts
}

func appendCRC(body []byte) []byte {
	crc := crc32MPEG2(body)
	return append(append([]byte(nil), body...), byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}
