// The verify tool re-derives hashes and signatures of ledger entries so any
// third party can audit that stored scan results were never altered.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chain-sentry/internal/config"
	"chain-sentry/internal/domain"
	"chain-sentry/internal/events"
	"chain-sentry/internal/ledger"
	"chain-sentry/internal/ledger/blobstore"
	"chain-sentry/internal/storage/migrations"
	pgstore "chain-sentry/internal/storage/postgres"
)

func main() {
	entryID := flag.String("entry", "", "Ledger entry id to verify")
	scanID := flag.String("scan", "", "Verify the entry belonging to this scan id")
	all := flag.Bool("all", false, "Verify every entry referenced by a completed scan")
	verifier := flag.String("verifier", "", "Record the verification under this identity (optional)")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if *entryID == "" && *scanID == "" && !*all {
		fmt.Fprintln(os.Stderr, "usage: verify --entry <id> | --scan <id> | --all [--verifier <identity>]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}
	if cfg.PostgresDSN == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required: verification reads the durable ledger")
	}

	ctx := context.Background()
	if err := run(ctx, cfg, logger, *entryID, *scanID, *all, *verifier); err != nil {
		logger.Fatal().Err(err).Msg("verification failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, entryID, scanID string, all bool, verifier string) error {
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	entryStore := pgstore.NewLedgerStore(pool)
	scanStore := pgstore.NewScanStore(pool)

	blobs, err := buildBlobstore(cfg, logger)
	if err != nil {
		return err
	}

	// Verification needs no signing key; entries carry their public key.
	svc := ledger.New(ledger.Options{
		Entries: entryStore,
		Scans:   scanStore,
		Blobs:   blobs,
		Bus:     events.NewBus(1),
		Logger:  logger,
	})

	var ids []string
	switch {
	case entryID != "":
		ids = []string{entryID}
	case scanID != "":
		entry, err := entryStore.GetByScanID(ctx, scanID)
		if err != nil {
			return fmt.Errorf("lookup entry for scan %s: %w", scanID, err)
		}
		ids = []string{entry.EntryID}
	case all:
		completed, err := scanStore.GetByStatus(ctx, domain.StatusCompleted)
		if err != nil {
			return fmt.Errorf("load completed scans: %w", err)
		}
		for _, scan := range completed {
			entry, err := entryStore.GetByScanID(ctx, scan.ScanID)
			if err != nil {
				logger.Warn().Str("scan_id", scan.ScanID).Msg("completed scan has no ledger entry")
				continue
			}
			ids = append(ids, entry.EntryID)
		}
	}

	valid, invalid := 0, 0
	for _, id := range ids {
		result, err := svc.VerifyEntry(ctx, id, verifier)
		if err != nil {
			return fmt.Errorf("verify %s: %w", id, err)
		}
		if result.Valid {
			valid++
			fmt.Printf("VALID    %s scan=%s verifications=%d\n",
				shorten(id), shorten(result.Entry.ScanID), result.Entry.VerificationCount)
		} else {
			invalid++
			fmt.Printf("INVALID  %s scan=%s reason=%s\n",
				shorten(id), shorten(result.Entry.ScanID), result.Reason)
		}
	}

	fmt.Printf("\n%d entries checked: %d valid, %d invalid\n", len(ids), valid, invalid)
	if invalid > 0 {
		os.Exit(1)
	}
	return nil
}

// buildBlobstore mirrors the daemon's backend assembly so verification reads
// the same replicas that were written.
func buildBlobstore(cfg *config.Config, logger zerolog.Logger) (*blobstore.Redundant, error) {
	var backends []blobstore.Backend
	for i, dir := range cfg.BlobDirs {
		fs, err := blobstore.NewFilesystemBackend(fmt.Sprintf("fs-%d", i), dir)
		if err != nil {
			return nil, fmt.Errorf("blob dir %s: %w", dir, err)
		}
		backends = append(backends, fs)
	}
	for i, gw := range cfg.BlobGateways {
		backends = append(backends, blobstore.NewGatewayBackend(fmt.Sprintf("gateway-%d", i), gw))
	}
	return blobstore.NewRedundant(backends, logger)
}

func shorten(id string) string {
	if len(id) > 16 {
		return id[:16] + "..."
	}
	return strings.TrimSpace(id)
}
