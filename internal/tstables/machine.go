// Package tstables implements the TableStateMachine: it turns the raw
// per-PID PSI table callbacks from internal/psi into deduplicated, ordered
// row emissions against a store.Sink, and drives the dynamic PMT/SDT
// filter attachment on the PsiDecoderBank as new PATs are discovered.
package tstables

import (
	"context"
	"fmt"

	"github.com/lighterowl/dvbindex/internal/dvblog"
	"github.com/lighterowl/dvbindex/internal/dvbtext"
	"github.com/lighterowl/dvbindex/internal/psi"
	"github.com/lighterowl/dvbindex/internal/store"
	"github.com/lighterowl/dvbindex/internal/tsdemux"
)

type storedPmt struct {
	table *psi.Pmt
	rowID int64
}

type storedSdt struct {
	table *psi.Sdt
	rowID int64
}

// Machine is the per-file TableStateMachine. It owns no filters directly
// but mutates the Bank it is constructed with as PATs arrive. A sink
// failure from any callback is remembered (see Err) and returned up
// through the decoder bank, which abandons the rest of the file.
type Machine struct {
	ctx      context.Context
	bank     *tsdemux.Bank
	sink     store.Sink
	log      *dvblog.Logger
	basename string
	size     int64

	fileRowID   int64
	haveFileRow bool

	pat      *psi.Pat
	patRowID int64
	pmtPIDs  []uint16 // currently attached PMT filter PIDs, for detach on PAT replace

	pmts map[uint16]*storedPmt
	sdts map[uint16]*storedSdt

	err error // first sink failure; everything after it is a no-op
}

// New constructs a Machine for one open file. basename/size are used for
// the Sink's lazy file-row registration.
func New(ctx context.Context, bank *tsdemux.Bank, sink store.Sink, log *dvblog.Logger, basename string, size int64) *Machine {
	return &Machine{
		ctx: ctx, bank: bank, sink: sink, log: log,
		basename: basename, size: size,
		pmts: make(map[uint16]*storedPmt),
		sdts: make(map[uint16]*storedSdt),
	}
}

// AttachPAT installs the PAT filter on PID 0 that drives the rest of the
// state machine; call this once before pushing any packets.
func (m *Machine) AttachPAT() {
	m.bank.Attach(&tsdemux.Filter{
		Key:     tsdemux.Key{PID: 0},
		Decoder: psi.NewPatDecoder(m.onPat),
	})
}

// AttachNIT installs the NIT decoder on its fixed PID (0x10). Unlike the
// PMT/SDT filters, it does not depend on the PAT having arrived first, so
// it may be attached alongside AttachPAT at file-open time.
func (m *Machine) AttachNIT() {
	m.bank.Attach(&tsdemux.Filter{
		Key:     tsdemux.Key{PID: psi.PidNIT},
		Decoder: psi.NewNitDecoder(m.OnNit),
	})
}

// FileRowID reports the lazily-assigned file row id, if any rows have been
// emitted yet.
func (m *Machine) FileRowID() (int64, bool) { return m.fileRowID, m.haveFileRow }

// Err reports the first sink failure hit by any table callback, if any.
// Once set, every later callback is a no-op; the caller treats the file
// as failed.
func (m *Machine) Err() error { return m.err }

// fail records and logs a sink failure, then returns it so the decoder
// bank stops feeding this file.
func (m *Machine) fail(op string, err error) error {
	werr := fmt.Errorf("tstables: %s: %w", op, err)
	m.log.Critical(dvblog.ComponentStore, "%v", werr)
	if m.err == nil {
		m.err = werr
	}
	return werr
}

func (m *Machine) ensureFileRow() (int64, error) {
	if m.haveFileRow {
		return m.fileRowID, nil
	}
	id, err := m.sink.InsertFile(m.ctx, m.basename, m.size)
	if err != nil {
		return 0, err
	}
	m.fileRowID = id
	m.haveFileRow = true
	return id, nil
}

// inTx runs fn inside a Begin/End transaction bracket. If fn fails, the
// bracket is rolled back so no partial batch reaches the index.
func (m *Machine) inTx(fn func() error) error {
	if err := m.sink.Begin(m.ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if rerr := m.sink.Rollback(m.ctx); rerr != nil {
			m.log.Warning(dvblog.ComponentStore, "rollback: %v", rerr)
		}
		return err
	}
	return m.sink.End(m.ctx)
}

func (m *Machine) onPat(pat *psi.Pat) error {
	if m.err != nil {
		return m.err
	}
	if m.pat != nil && m.pat.Equal(pat) {
		return nil
	}

	for _, pid := range m.pmtPIDs {
		m.bank.Detach(tsdemux.Key{PID: pid})
	}
	if m.pat != nil {
		m.bank.Detach(sdtKey(m.pat.TSID))
	}
	m.pmtPIDs = nil
	m.pmts = make(map[uint16]*storedPmt)
	m.sdts = make(map[uint16]*storedSdt)

	fileRowID, err := m.ensureFileRow()
	if err != nil {
		return m.fail("insert file row", err)
	}
	patRowID, err := m.sink.InsertPat(m.ctx, fileRowID, store.Pat{TSID: pat.TSID, Version: pat.Version})
	if err != nil {
		return m.fail("insert pat", err)
	}

	m.pat = pat
	m.patRowID = patRowID

	for _, prog := range pat.Programs {
		programNo := prog.ProgramNo
		m.bank.Attach(&tsdemux.Filter{
			Key:     tsdemux.Key{PID: prog.PmtPID},
			Decoder: psi.NewPmtDecoder(programNo, m.onPmt),
		})
		m.pmtPIDs = append(m.pmtPIDs, prog.PmtPID)
	}

	m.bank.Attach(&tsdemux.Filter{
		Key:     sdtKey(pat.TSID),
		Decoder: psi.NewSdtDecoder(pat.TSID, m.onSdt),
	})
	return nil
}

func sdtKey(tsid uint16) tsdemux.Key {
	return tsdemux.Key{PID: psi.PidSDT, TableID: psi.TableIDSdtActual, Extension: tsid}
}

func (m *Machine) onPmt(pmt *psi.Pmt) error {
	if m.err != nil {
		return m.err
	}
	existing := m.pmts[pmt.ProgramNo]
	if existing != nil && !pmt.ReplacesStored(existing.table) {
		return nil
	}

	var pmtRowID int64
	err := m.inTx(func() error {
		var err error
		pmtRowID, err = m.sink.InsertPmt(m.ctx, m.patRowID, store.Pmt{
			ProgramNumber: pmt.ProgramNo, Version: pmt.Version, PcrPID: pmt.PcrPID,
		})
		if err != nil {
			return fmt.Errorf("insert pmt: %w", err)
		}
		for _, es := range pmt.Streams {
			if err := m.emitElemStream(pmtRowID, es); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return m.fail("pmt emission", err)
	}

	m.pmts[pmt.ProgramNo] = &storedPmt{table: pmt, rowID: pmtRowID}
	return nil
}

func (m *Machine) emitElemStream(pmtRowID int64, es psi.ElementaryStream) error {
	esRowID, err := m.sink.InsertElemStream(m.ctx, pmtRowID, store.ElemStream{
		StreamType: es.StreamType, PID: es.PID,
	})
	if err != nil {
		return fmt.Errorf("insert elem_stream: %w", err)
	}
	for _, lang := range es.Languages {
		if _, err := m.sink.InsertLangSpec(m.ctx, esRowID, store.LangSpec{
			Language: lang.Code, AudioType: lang.AudioType,
		}); err != nil {
			return fmt.Errorf("insert lang_spec: %w", err)
		}
	}
	for _, desc := range es.Descriptors {
		switch desc.Tag {
		case psi.DescTeletext, psi.DescVBITeletext:
			for _, ttx := range psi.ParseTeletextDescriptor(desc) {
				if _, err := m.sink.InsertTeletext(m.ctx, esRowID, store.Teletext{
					Language: ttx.Language, TeletextType: ttx.TeletextType,
					MagazineNumber: ttx.MagazineNumber, PageNumber: ttx.PageNumber,
				}); err != nil {
					return fmt.Errorf("insert teletext: %w", err)
				}
			}
		case psi.DescSubtitling:
			for _, sub := range psi.ParseSubtitlingDescriptor(desc) {
				if _, err := m.sink.InsertSubtitle(m.ctx, esRowID, store.Subtitle{
					Language: sub.Language, SubtitlingType: sub.SubtitlingType,
					CompositionPageID: sub.CompositionPageID, AncillaryPageID: sub.AncillaryPageID,
				}); err != nil {
					return fmt.Errorf("insert subtitle: %w", err)
				}
			}
		}
	}
	return nil
}

func (m *Machine) onSdt(sdt *psi.Sdt) error {
	if m.err != nil {
		return m.err
	}
	existing := m.sdts[sdt.NetworkID]
	if existing != nil && !sdt.ReplacesStored(existing.table) {
		return nil
	}

	var sdtRowID int64
	err := m.inTx(func() error {
		var err error
		sdtRowID, err = m.sink.InsertSdt(m.ctx, m.patRowID, store.Sdt{
			Version: sdt.Version, OriginalNetworkID: sdt.NetworkID,
		})
		if err != nil {
			return fmt.Errorf("insert sdt: %w", err)
		}
		for _, svc := range sdt.Services {
			if _, err := m.sink.InsertService(m.ctx, sdtRowID, store.Service{
				ProgramNumber: svc.ServiceID,
				RunningStatus: svc.RunningStatus,
				Scrambled:     svc.FreeCAMode,
				Name:          m.decodeTextField(svc.ServiceNameRaw),
				ProviderName:  m.decodeTextField(svc.ProviderNameRaw),
			}); err != nil {
				return fmt.Errorf("insert service: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return m.fail("sdt emission", err)
	}

	m.sdts[sdt.NetworkID] = &storedSdt{table: sdt, rowID: sdtRowID}
	return nil
}

// OnNit handles a decoded NIT table. Like PAT, NIT arrives on a fixed-PID
// decoder the caller attaches directly (see AttachNIT). Unlike PAT/PMT/SDT
// it is not version-dedup'd: every NIT that reaches it emits a network row.
func (m *Machine) OnNit(nit *psi.Nit) error {
	if m.err != nil {
		return m.err
	}
	fileRowID, err := m.ensureFileRow()
	if err != nil {
		return m.fail("insert file row", err)
	}

	var name string
	for _, d := range nit.Descriptors {
		if d.Tag == psi.DescNetworkName {
			name = m.decodeTextField(psi.NetworkNameDescriptor(d))
		}
	}

	err = m.inTx(func() error {
		netRowID, err := m.sink.InsertNetwork(m.ctx, fileRowID, store.Network{NetworkID: nit.NetworkID, Name: name})
		if err != nil {
			return fmt.Errorf("insert network: %w", err)
		}
		for _, ts := range nit.TransportStreams {
			tsRowID, err := m.sink.InsertTS(m.ctx, netRowID, store.TransportStream{TSID: ts.TSID, NetworkID: ts.NetworkID})
			if err != nil {
				return fmt.Errorf("insert ts: %w", err)
			}
			for _, d := range ts.Descriptors {
				if d.Tag != psi.DescServiceList {
					continue
				}
				for _, svc := range psi.ParseServiceListDescriptor(d) {
					if _, err := m.sink.InsertTSService(m.ctx, tsRowID, svc.ServiceID); err != nil {
						return fmt.Errorf("insert ts_service: %w", err)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return m.fail("nit emission", err)
	}
	return nil
}

// decodeTextField converts a raw DVB string to UTF-8, returning "" (which
// the sink binds as NULL) when the field is absent or undecodable.
func (m *Machine) decodeTextField(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	out, err := dvbtext.Decode(raw)
	if err != nil {
		m.log.Debug(dvblog.ComponentPSI, "text decode: %v", err)
		return ""
	}
	return string(out)
}
