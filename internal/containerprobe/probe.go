// Package containerprobe enumerates a transport stream's audio/video
// elementary streams the way a general-purpose container prober
// (libavformat, say) would. The actual transport-stream parsing is done
// by github.com/Comcast/gots — a wholly separate demuxer from
// internal/psi, with its own section handling — while this package drives
// it through the read/seek hooks a DualFeedReader offers (see
// internal/tsdemux) and classifies the elementary streams it finds.
//
// Nothing here participates in PSI deduplication or row emission; it only
// enumerates streams. The ingest core is what turns its Summary into
// vid_streams/aud_streams rows, after the PSI bank has seen the whole
// file.
package containerprobe

import (
	"errors"
	"fmt"
	"io"
	"sort"

	gotspsi "github.com/Comcast/gots/psi"

	"github.com/lighterowl/dvbindex/internal/tsdemux"
)

// Source is the read/seek contract a DualFeedReader offers the prober. It
// mirrors tsdemux.DualFeedReader's ReadInto/Seek methods exactly, so the
// prober can be driven by the real reader or, in tests, by a fake.
type Source interface {
	ReadInto(buf []byte) (int, error)
	Seek(offset int64, whence tsdemux.Whence) (int64, error)
}

// Stream is one elementary stream the prober found. PID is "as reported
// by the prober": gots reports the true TS PID, since unlike a remapping
// container library it never renumbers streams, but callers must not
// assume the two always coincide for every possible prober
// implementation.
type Stream struct {
	PID        uint16
	StreamType uint8
	Kind       Kind
}

type Kind int

const (
	KindOther Kind = iota
	KindVideo
	KindAudio
)

// VideoInfo and AudioInfo carry the summary fields the Sink's
// insert_vid/insert_aud rows want. The prober has no payload decoder
// behind it, so width/height/fps/channels/sample-rate stay at their zero
// values; format comes from gots's stream-type registry and bitrate from
// a trailing-chunk sample — the equivalent of libavformat's codecpar
// fields without a full decode.
type VideoInfo struct {
	Stream
	Format  string
	Width   int
	Height  int
	FPS     float64
	Bitrate int64
}

type AudioInfo struct {
	Stream
	Format     string
	Channels   int
	SampleRate int
	Bitrate    int64
}

// Summary is everything the prober learned about one file.
type Summary struct {
	Video []VideoInfo
	Audio []AudioInfo
}

var ErrNotTransportStream = errors.New("containerprobe: not an MPEG-TS file")

const probeChunk = tsdemux.PacketSize * 64

// Probe drives src through gots's PAT/PMT readers to enumerate streams:
// a size query, one forward pass to find the PAT, a backward seek to
// offset 0 before each program's PMT scan (mirroring libavformat
// re-reading the header region once the program map is known), and
// finally a forward seek past everything read so far to sample a trailing
// chunk of the file for a bitrate estimate — the seek patterns the
// DualFeedReader's prober contract must tolerate.
func Probe(src Source) (Summary, error) {
	size, err := src.Seek(0, tsdemux.SeekQuerySize)
	if err != nil {
		return Summary{}, err
	}
	r := &sourceReader{src: src}

	pat, err := gotspsi.ReadPAT(r)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrNotTransportStream, err)
	}
	pmap := pat.ProgramMap()
	if len(pmap) == 0 {
		return Summary{}, ErrNotTransportStream
	}
	pids := make([]int, 0, len(pmap))
	for _, pid := range pmap {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	var summary Summary
	for _, pid := range pids {
		if err := r.rewind(); err != nil {
			return Summary{}, err
		}
		pmt, err := gotspsi.ReadPMT(r, pid)
		if err != nil {
			// This program's PMT never appears in the capture; the PSI
			// side reports what actually was there, so just move on.
			continue
		}
		for _, es := range pmt.ElementaryStreams() {
			addStream(&summary, es)
		}
	}

	bitrate, err := estimateBitrate(src, size, r.max)
	if err != nil {
		return Summary{}, err
	}
	for i := range summary.Video {
		summary.Video[i].Bitrate = bitrate
	}
	for i := range summary.Audio {
		summary.Audio[i].Bitrate = bitrate
	}
	return summary, nil
}

func addStream(summary *Summary, es gotspsi.PmtElementaryStream) {
	s := Stream{PID: uint16(es.ElementaryPid()), StreamType: es.StreamType()}
	switch {
	case es.IsVideoContent():
		s.Kind = KindVideo
		summary.Video = append(summary.Video, VideoInfo{
			Stream: s, Format: es.StreamTypeDescription(),
		})
	case es.IsAudioContent():
		s.Kind = KindAudio
		summary.Audio = append(summary.Audio, AudioInfo{
			Stream: s, Format: es.StreamTypeDescription(),
		})
	}
}

// estimateBitrate performs the forward seek past everything the PAT/PMT
// scan touched to sample a trailing chunk of the file, the way libavformat
// samples a window near the end of a file to estimate an overall bitrate
// when no PCR-based duration is available. The sample itself isn't decoded
// here (this prober has no payload decoder); the number of bits actually
// read into it is returned in place of libavformat's PCR-interval
// computation.
func estimateBitrate(src Source, size, scanned int64) (int64, error) {
	if size <= scanned {
		return 0, nil
	}
	target := size - probeChunk
	if target < scanned {
		target = scanned
	}
	if _, err := src.Seek(target, tsdemux.SeekStart); err != nil {
		return 0, err
	}
	buf := make([]byte, probeChunk)
	n, err := readFull(src, buf)
	if err != nil && err != io.EOF {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	// Crude proxy: the sample's size in bits. A real demuxer derives the
	// bitrate from PCR deltas, which this black-box stand-in does not decode.
	return int64(n) * 8, nil
}

func readFull(src Source, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := src.ReadInto(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}

// sourceReader adapts a Source to the io.Reader gots consumes, tracking
// the furthest offset the scan has reached so the bitrate sampler knows
// where "past everything read so far" starts.
type sourceReader struct {
	src Source
	pos int64
	max int64
}

func (r *sourceReader) Read(p []byte) (int, error) {
	n, err := r.src.ReadInto(p)
	r.pos += int64(n)
	if r.pos > r.max {
		r.max = r.pos
	}
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

func (r *sourceReader) rewind() error {
	if _, err := r.src.Seek(0, tsdemux.SeekStart); err != nil {
		return err
	}
	r.pos = 0
	return nil
}
