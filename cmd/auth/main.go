package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Ingestion-Pipeline/pkg/postgres"
)

// auth manages the ingestion API's keys from the command line.
//
//	auth create  --name "my-app" [--rate-limit 120] [--expires-in 720h]
//	auth revoke  --key <raw-key>
//	auth list
func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "auth:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	configPath := fs.String("config", "configs/development.yaml", "path to config file")
	fs.Usage = usage(fs)
	fs.Parse(argv)

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	// The CLI talks straight to the table, so no cache.
	keys := apikey.NewValidator(db, 0)
	ctx := context.Background()

	if err := keys.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring api_keys schema: %w", err)
	}

	switch cmd := args[0]; cmd {
	case "create":
		return createKey(ctx, keys, args[1:])
	case "revoke":
		return revokeKey(ctx, keys, args[1:])
	case "list":
		return listKeys(ctx, keys)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func createKey(ctx context.Context, v *apikey.Validator, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "name for the api key")
	rateLimit := fs.Int("rate-limit", 120, "requests per minute")
	expiresIn := fs.String("expires-in", "", "expiry duration, e.g. 720h (optional)")
	fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("create: --name is required")
	}

	var expiresAt *time.Time
	if *expiresIn != "" {
		d, err := time.ParseDuration(*expiresIn)
		if err != nil {
			return fmt.Errorf("create: invalid --expires-in: %w", err)
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	key, err := v.CreateKey(ctx, *name, *rateLimit, expiresAt)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	expires := "never"
	if expiresAt != nil {
		expires = expiresAt.Format(time.RFC3339)
	}
	fmt.Println("API key created. Store it securely; it cannot be shown again.")
	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  Key:\t%s\n", key)
	fmt.Fprintf(tw, "  Name:\t%s\n", *name)
	fmt.Fprintf(tw, "  Rate limit:\t%d req/min\n", *rateLimit)
	fmt.Fprintf(tw, "  Expires:\t%s\n", expires)
	return tw.Flush()
}

func revokeKey(ctx context.Context, v *apikey.Validator, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	key := fs.String("key", "", "raw api key to revoke")
	fs.Parse(args)

	if *key == "" {
		return fmt.Errorf("revoke: --key is required")
	}
	if err := v.RevokeKey(ctx, *key); err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	fmt.Println("API key revoked.")
	return nil
}

func listKeys(ctx context.Context, v *apikey.Validator) error {
	keys, err := v.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	if len(keys) == 0 {
		fmt.Println("No active API keys.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRATE LIMIT\tEXPIRES")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/min\t%s\n", k.ID, k.Name, k.RateLimit, expires)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d active key(s)\n", len(keys))
	return nil
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintln(os.Stderr, "Usage: auth [flags] <command>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  create   Mint a new API key")
		fmt.Fprintln(os.Stderr, "  revoke   Deactivate an existing key")
		fmt.Fprintln(os.Stderr, "  list     Show all active keys")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
}
