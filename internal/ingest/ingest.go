// Package ingest is the per-file orchestrator: it owns the scoped
// acquisition of a file handle, PSI decoder bank, TableStateMachine and
// container prober, drives them through one open file via a
// tsdemux.DualFeedReader, and classifies what went wrong when it didn't
// work.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lighterowl/dvbindex/internal/containerprobe"
	"github.com/lighterowl/dvbindex/internal/dvblog"
	"github.com/lighterowl/dvbindex/internal/store"
	"github.com/lighterowl/dvbindex/internal/tsdemux"
	"github.com/lighterowl/dvbindex/internal/tstables"
)

// Sentinel error kinds. They are wrapped with %w so
// errors.Is sees through to these values regardless of the file or
// underlying cause attached by ProcessFile.
var (
	// ErrFileOpenFailed means the file could not even be opened; the
	// walk continues with the next file.
	ErrFileOpenFailed = errors.New("ingest: file open failed")
	// ErrNotTransportStream means the prober reported the file isn't a
	// recognisable MPEG-TS; logged at INFO, the walk continues.
	ErrNotTransportStream = errors.New("ingest: not a transport stream")
	// ErrStore means the Sink failed an insert; fatal for the current
	// file but not for the run.
	ErrStore = errors.New("ingest: store error")
	// ErrOutOfMemory means an allocation failed badly enough that the
	// whole run should stop, not just the current file.
	ErrOutOfMemory = errors.New("ingest: out of memory")
)

// Outcome classifies how ProcessFile finished, for the caller (the CLI's
// walk loop) to decide whether to continue to the next file or abort the
// whole run.
type Outcome int

const (
	// OutcomeOK means the file was read (or already indexed) without a
	// fatal error.
	OutcomeOK Outcome = iota
	// OutcomeSkipped means a recoverable error was logged and the walk
	// should move on to the next file.
	OutcomeSkipped
	// OutcomeFatal means a fatal error, returned alongside it, ended the
	// processing of this file. The CLI's walk loop then exits non-zero and
	// stops the walk only when the error is ErrOutOfMemory.
	OutcomeFatal
)

// ProcessFile indexes one file against sink, logging through log. It
// returns the outcome and, for OutcomeFatal, the error that ended the
// processing of the file.
func ProcessFile(ctx context.Context, sink store.Sink, log *dvblog.Logger, path string) (Outcome, error) {
	basename := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		log.Warning(dvblog.ComponentIngest, "open %s: %v", basename, fmt.Errorf("%w: %v", ErrFileOpenFailed, err))
		return OutcomeSkipped, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Warning(dvblog.ComponentIngest, "stat %s: %v", basename, fmt.Errorf("%w: %v", ErrFileOpenFailed, err))
		return OutcomeSkipped, nil
	}
	size := info.Size()

	already, err := sink.HasFile(ctx, basename, size)
	if err != nil {
		return OutcomeFatal, fmt.Errorf("%w: has_file %s: %v", ErrStore, basename, err)
	}
	if already {
		log.Info(dvblog.ComponentIngest, "%s [%d] already indexed, skipping", basename, size)
		return OutcomeOK, nil
	}

	bank := tsdemux.NewBank()
	machine := tstables.New(ctx, bank, sink, log, basename, size)
	machine.AttachPAT()
	machine.AttachNIT()

	framer := tsdemux.NewPacketFramer()
	reader := tsdemux.NewDualFeedReader(f, size, framer, bank)

	summary, probeErr := containerprobe.Probe(adaptReader{reader})
	if serr := machine.Err(); serr != nil {
		return OutcomeFatal, fmt.Errorf("%w: %s: %v", ErrStore, basename, serr)
	}
	if probeErr != nil {
		if errors.Is(probeErr, containerprobe.ErrNotTransportStream) {
			log.Info(dvblog.ComponentProber, "%v", fmt.Errorf("%w: %s", ErrNotTransportStream, basename))
			// Fall through: the PSI bank may still have seen a valid PAT
			// even if the prober gave up immediately, and the bank must
			// see the whole file regardless of what the prober did with
			// it.
		} else {
			log.Warning(dvblog.ComponentProber, "probing %s: %v", basename, probeErr)
		}
	}

	// The prober may stop reading anywhere in the file; the PSI bank must
	// still see every remaining byte before any row referencing it, in
	// particular the prober-summary rows below, is emitted.
	if err := reader.Drain(); err != nil {
		if serr := machine.Err(); serr != nil {
			return OutcomeFatal, fmt.Errorf("%w: %s: %v", ErrStore, basename, serr)
		}
		log.Warning(dvblog.ComponentIngest, "drain %s: %v", basename, err)
		return OutcomeSkipped, nil
	}

	if probeErr == nil {
		if err := emitStreamSummary(ctx, sink, machine, basename, size, summary); err != nil {
			return OutcomeFatal, fmt.Errorf("%w: %v", ErrStore, err)
		}
	}

	log.Info(dvblog.ComponentIngest, "saved %s", basename)
	return OutcomeOK, nil
}

// emitStreamSummary inserts the prober's audio/video classification as
// vid_streams/aud_streams rows, lazily registering the file row first if
// no PSI table ever did. These rows carry the PID as reported by the
// prober, which for gots is always the true TS PID.
func emitStreamSummary(ctx context.Context, sink store.Sink, machine *tstables.Machine, basename string, size int64, summary containerprobe.Summary) error {
	if len(summary.Video) == 0 && len(summary.Audio) == 0 {
		return nil
	}

	fileRowID, ok := machine.FileRowID()
	if !ok {
		id, err := sink.InsertFile(ctx, basename, size)
		if err != nil {
			return fmt.Errorf("insert file row for prober summary: %w", err)
		}
		fileRowID = id
	}

	if err := sink.Begin(ctx); err != nil {
		return fmt.Errorf("begin prober summary tx: %w", err)
	}
	if err := insertSummaryRows(ctx, sink, fileRowID, summary); err != nil {
		sink.Rollback(ctx)
		return err
	}
	if err := sink.End(ctx); err != nil {
		return fmt.Errorf("commit prober summary tx: %w", err)
	}
	return nil
}

func insertSummaryRows(ctx context.Context, sink store.Sink, fileRowID int64, summary containerprobe.Summary) error {
	for _, v := range summary.Video {
		if _, err := sink.InsertVid(ctx, fileRowID, v.PID, v.Format, v.Width, v.Height, v.FPS, v.Bitrate); err != nil {
			return fmt.Errorf("insert vid_stream: %w", err)
		}
	}
	for _, a := range summary.Audio {
		if _, err := sink.InsertAud(ctx, fileRowID, a.PID, a.Format, a.Channels, a.SampleRate, a.Bitrate); err != nil {
			return fmt.Errorf("insert aud_stream: %w", err)
		}
	}
	return nil
}

// adaptReader narrows tsdemux.DualFeedReader to containerprobe.Source.
// containerprobe imports tsdemux, never the reverse, so the core (tsdemux)
// stays ignorant of the external prober it is designed to drive.
type adaptReader struct {
	r *tsdemux.DualFeedReader
}

func (a adaptReader) ReadInto(buf []byte) (int, error) { return a.r.ReadInto(buf) }
func (a adaptReader) Seek(offset int64, whence tsdemux.Whence) (int64, error) {
	return a.r.Seek(offset, whence)
}

var _ containerprobe.Source = adaptReader{}
