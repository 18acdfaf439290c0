package tsdemux

import (
	"io"
	"os"
)

// Whence mirrors the four seek origins an external container prober may
// use against a DualFeedReader, including the size-query pseudo-seek that
// probers (ffprobe-style avio contexts included) use to learn a file's size
// without moving the read position.
type Whence int

const (
	SeekStart Whence = iota
	SeekCurrent
	SeekEnd
	SeekQuerySize
)

const feedChunk = 4096

// DualFeedReader drives one open file through both an external container
// prober and the PSI decoder bank, guaranteeing the bank sees every byte of
// the file exactly once, strictly in file order, even when the prober seeks
// backward (re-reading already-delivered data) or forward (skipping ahead).
type DualFeedReader struct {
	file   *os.File
	size   int64
	framer *PacketFramer
	bank   *Bank

	cur       int64 // the file's current absolute read position
	watermark int64 // offset up to which bytes have reached the PSI bank
}

// NewDualFeedReader wraps an already-open file (positioned at offset 0) of
// the given size, feeding framed packets to bank via framer.
func NewDualFeedReader(file *os.File, size int64, framer *PacketFramer, bank *Bank) *DualFeedReader {
	return &DualFeedReader{file: file, size: size, framer: framer, bank: bank}
}

// Watermark returns the offset up to which the PSI bank has received bytes.
func (r *DualFeedReader) Watermark() int64 { return r.watermark }

func (r *DualFeedReader) feedToBank(data []byte) error {
	return r.framer.Feed(data, r.bank.Push)
}

// ReadInto satisfies the prober's synchronous read hook: it reads into buf
// from the file's current position and, if that advances the file beyond
// the watermark, feeds the newly-read bytes to the PSI bank. If the prober
// is re-reading bytes it already read once (it seeked backward), the bank
// is not re-fed.
func (r *DualFeedReader) ReadInto(buf []byte) (int, error) {
	n, err := r.file.Read(buf)
	if n > 0 {
		newpos := r.cur + int64(n)
		if newpos > r.watermark {
			fresh := buf[:n]
			if r.cur < r.watermark {
				// Only the part past the watermark is new to the bank.
				fresh = buf[r.watermark-r.cur : n]
			}
			if ferr := r.feedToBank(fresh); ferr != nil {
				return n, ferr
			}
			r.watermark = newpos
		}
		r.cur = newpos
	}
	return n, err
}

// Seek satisfies the prober's seek hook. SeekQuerySize returns the file
// size without moving anything. For the other whence values, if the
// destination jumps forward over bytes never delivered to the PSI bank,
// those bytes are read and fed to the bank (in feedChunk-sized pieces)
// before the real file seek is performed.
func (r *DualFeedReader) Seek(offset int64, whence Whence) (int64, error) {
	if whence == SeekQuerySize {
		return r.size, nil
	}

	dst, err := r.resolve(offset, whence)
	if err != nil {
		return 0, err
	}

	if dst > r.watermark && dst > r.cur {
		start := r.cur
		if start < r.watermark {
			// Bytes below the watermark already reached the bank.
			if _, err := r.file.Seek(r.watermark, io.SeekStart); err != nil {
				return 0, err
			}
			start = r.watermark
		}
		if err := r.feedGap(start, dst); err != nil {
			return 0, err
		}
		r.watermark = dst
	}

	// Always seek the resolved absolute destination: feedGap has already
	// moved the real file position, so replaying a relative offset/whence
	// here would land past dst and skip bytes the PSI bank never saw.
	newpos, err := r.file.Seek(dst, io.SeekStart)
	if err != nil {
		return 0, err
	}
	r.cur = newpos
	return newpos, nil
}

func (r *DualFeedReader) resolve(offset int64, whence Whence) (int64, error) {
	switch whence {
	case SeekCurrent:
		return r.cur + offset, nil
	case SeekStart:
		return offset, nil
	case SeekEnd:
		return r.size + offset, nil
	default:
		return 0, errInvalidWhence
	}
}

// feedGap reads [cur, dst) from the file sequentially and feeds it to the
// PSI bank. The file's read position must currently be at cur.
func (r *DualFeedReader) feedGap(cur, dst int64) error {
	toRead := dst - cur
	buf := make([]byte, feedChunk)
	for toRead > 0 {
		n := int64(len(buf))
		if toRead < n {
			n = toRead
		}
		read, err := r.file.Read(buf[:n])
		if read > 0 {
			if ferr := r.feedToBank(buf[:read]); ferr != nil {
				return ferr
			}
		}
		toRead -= int64(read)
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	return nil
}

// Drain feeds every byte from the current watermark to EOF into the PSI
// bank. It must be called once the external prober has finished with the
// file, since probers may stop reading before EOF once they've gathered
// enough to build their summary, and the PSI bank has to see the whole
// file.
func (r *DualFeedReader) Drain() error {
	if _, err := r.file.Seek(r.watermark, io.SeekStart); err != nil {
		return err
	}
	r.cur = r.watermark
	buf := make([]byte, feedChunk)
	for {
		n, err := r.file.Read(buf)
		if n > 0 {
			if ferr := r.feedToBank(buf[:n]); ferr != nil {
				return ferr
			}
			r.watermark += int64(n)
			r.cur = r.watermark
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

var errInvalidWhence = seekError("tsdemux: invalid seek whence")

type seekError string

func (e seekError) Error() string { return string(e) }
