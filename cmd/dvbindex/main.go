// Command dvbindex indexes MPEG-TS capture files into a SQLite database,
// extracting their PAT/PMT/SDT/NIT program-specific information and the
// audio/video elementary streams a container prober discovers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/lighterowl/dvbindex/internal/config"
	"github.com/lighterowl/dvbindex/internal/dvblog"
	"github.com/lighterowl/dvbindex/internal/ingest"
	"github.com/lighterowl/dvbindex/internal/store"
	"github.com/lighterowl/dvbindex/internal/walker"
)

func usage(progname string) {
	fmt.Fprintf(os.Stderr, "Usage: %s [-v VERBOSITY] DBFILE STREAM...\n", progname)
	flag.PrintDefaults()
}

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	verbosity := fs.String("v", "", "verbosity: a single 0-3 severity, or comma-separated component:severity tokens")
	fs.Usage = func() { usage(args[0]) }
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) < 2 {
		usage(args[0])
		return 2
	}
	dbFile, streams := rest[0], rest[1:]

	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "[config] [WARNING] loading .env: %v\n", err)
	}
	if *verbosity == "" {
		*verbosity = config.Verbosity()
	}

	verb, err := dvblog.ParseVerbosity(*verbosity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[config] [CRITICAL] %v\n", err)
		return 1
	}
	log := dvblog.New(os.Stderr, verb)

	sink, err := store.Open(dbFile)
	if err != nil {
		log.Critical(dvblog.ComponentStore, "open %s: %v", dbFile, err)
		return 1
	}
	defer sink.Close()

	ctx := context.Background()
	result, err := sink.EnsureSchema(ctx)
	if err != nil {
		log.Critical(dvblog.ComponentStore, "ensure schema: %v", err)
		return 1
	}
	if result == store.SchemaMismatch {
		log.Critical(dvblog.ComponentStore, "%s is tagged with a foreign application id", dbFile)
		return 1
	}

	rv := 0
	err = walker.Walk(streams, func(path string) error {
		outcome, err := ingest.ProcessFile(ctx, sink, log, path)
		switch outcome {
		case ingest.OutcomeOK:
			return nil
		case ingest.OutcomeSkipped:
			return nil
		default:
			log.Critical(dvblog.ComponentIngest, "%v", err)
			rv = 1
			if errors.Is(err, ingest.ErrOutOfMemory) {
				return err
			}
			return nil
		}
	})
	if err != nil {
		log.Critical(dvblog.ComponentIngest, "walk aborted: %v", err)
		return 1
	}
	return rv
}
