// Package store implements the relational Sink the demultiplexing core
// writes rows to, backed by SQLite via database/sql and the CGo-free
// modernc.org/sqlite driver.
package store

import "context"

// SchemaResult reports what EnsureSchema found when opening a store.
type SchemaResult int

const (
	SchemaFresh SchemaResult = iota
	SchemaReused
	SchemaMismatch
)

// Pat, Pmt, ElemStream, LangSpec, Teletext, Subtitle, Sdt, Service, Network,
// TransportStream are the row payloads the core hands to a Sink; the Sink
// fills in the row identifier on insert.
type Pat struct {
	TSID    uint16
	Version uint8
}

type Pmt struct {
	ProgramNumber uint16
	Version       uint8
	PcrPID        uint16
}

type ElemStream struct {
	StreamType uint8
	PID        uint16
}

type LangSpec struct {
	Language  string
	AudioType uint8
}

type Teletext struct {
	Language        string
	TeletextType    uint8
	MagazineNumber  uint8
	PageNumber      uint8
}

type Subtitle struct {
	Language          string
	SubtitlingType    uint8
	CompositionPageID uint16
	AncillaryPageID   uint16
}

type Sdt struct {
	Version           uint8
	OriginalNetworkID uint16
}

type Service struct {
	ProgramNumber  uint16
	RunningStatus  uint8
	Scrambled      bool
	Name           string
	ProviderName   string
}

type Network struct {
	NetworkID uint16
	Name      string
}

type TransportStream struct {
	TSID      uint16
	NetworkID uint16
}

// Sink is the minimal interface the core requires of a relational store.
// Every insert method returns the new row's identifier; it must be a
// positive, stable, process-lifetime-unique value so children can
// reference it as a parent_rowid.
type Sink interface {
	EnsureSchema(ctx context.Context) (SchemaResult, error)

	HasFile(ctx context.Context, basename string, size int64) (bool, error)
	InsertFile(ctx context.Context, basename string, size int64) (int64, error)

	InsertPat(ctx context.Context, fileRowID int64, p Pat) (int64, error)
	InsertPmt(ctx context.Context, patRowID int64, p Pmt) (int64, error)
	InsertElemStream(ctx context.Context, pmtRowID int64, e ElemStream) (int64, error)
	InsertLangSpec(ctx context.Context, elemStreamRowID int64, l LangSpec) (int64, error)
	InsertTeletext(ctx context.Context, elemStreamRowID int64, t Teletext) (int64, error)
	InsertSubtitle(ctx context.Context, elemStreamRowID int64, s Subtitle) (int64, error)
	InsertSdt(ctx context.Context, patRowID int64, s Sdt) (int64, error)
	InsertService(ctx context.Context, sdtRowID int64, s Service) (int64, error)
	InsertNetwork(ctx context.Context, fileRowID int64, n Network) (int64, error)
	InsertTS(ctx context.Context, networkRowID int64, t TransportStream) (int64, error)
	InsertTSService(ctx context.Context, tsRowID int64, serviceID uint16) (int64, error)
	InsertVid(ctx context.Context, fileRowID int64, pid uint16, fmt string, width, height int, fps float64, bitrate int64) (int64, error)
	InsertAud(ctx context.Context, fileRowID int64, pid uint16, fmt string, channels, sampleRate int, bitrate int64) (int64, error)

	// Begin/End bracket a multi-row emission; End commits it. Rollback
	// discards the open bracket instead, so a failure partway through a
	// batch never leaves a half-populated parent in the index.
	Begin(ctx context.Context) error
	End(ctx context.Context) error
	Rollback(ctx context.Context) error

	Close() error
}
