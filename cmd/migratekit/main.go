package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"migratekit/internal/config"
	"migratekit/internal/dbexec"
	"migratekit/internal/dialect"
	"migratekit/internal/diff"
	"migratekit/internal/flow"
	"migratekit/internal/fsio"
	"migratekit/internal/httpapi"
	"migratekit/internal/journal"
	"migratekit/internal/logging"
	"migratekit/internal/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "init-config":
		err = initConfigCmd(args)
	case "generate":
		err = generateCmd(args)
	case "deploy":
		err = deployCmd(args)
	case "push":
		err = pushCmd(args)
	case "status":
		err = statusCmd(args)
	case "drift":
		err = driftCmd(args)
	case "baseline":
		err = baselineCmd(args)
	case "reset":
		err = resetCmd(args)
	case "serve":
		err = serveCmd(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`migratekit commands:
  init-config - create a starter migratekit.yaml
  generate    - diff the schema snapshot, write and apply a migration file
  deploy      - apply all pending migration files (CI/production)
  push        - diff and execute directly, no migration file
  status      - show applied/pending migrations and schema drift
  drift       - audit the live database against an expected snapshot
  baseline    - record existing migration files as applied without executing
  reset       - drop all user tables and re-run every migration
  serve       - launch the read-only status API

Flags are command specific; run "<cmd> -h" for details.`)
}

func initConfigCmd(args []string) error {
	fs := flagSet("init-config")
	path := fs.String("path", "migratekit.yaml", "where to write the sample config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*path); err == nil {
		return fmt.Errorf("%s already exists", *path)
	}
	if err := os.WriteFile(*path, []byte(config.Sample()), 0o644); err != nil {
		return err
	}
	fmt.Println("sample config written to", *path)
	return nil
}

func generateCmd(args []string) error {
	fs := flagSet("generate")
	configPath := fs.String("config", "migratekit.yaml", "path to config file")
	schemaPath := fs.String("schema", "", "path to the current schema snapshot JSON")
	name := fs.String("name", "", "migration name; derived from the diff when omitted")
	dryRun := fs.Bool("dry-run", false, "compute and preview without side effects")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *schemaPath == "" {
		return fmt.Errorf("--schema is required")
	}

	engine, _, closeFn, err := buildEngine(*configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	current, err := loadSchemaFile(*schemaPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := engine.Dev(ctx, current, flow.DevOptions{Name: *name, DryRun: *dryRun})
	if err != nil {
		return err
	}
	if res.MigrationFile == "" {
		fmt.Println("schema unchanged, nothing to generate")
		return nil
	}
	printCollisions(res.Collisions)
	if *dryRun {
		fmt.Printf("would generate %s:\n%s", res.MigrationFile, res.SQL)
		return nil
	}
	fmt.Printf("generated and applied %s (%d changes)\n", res.MigrationFile, len(res.Changes))
	return nil
}

func deployCmd(args []string) error {
	fs := flagSet("deploy")
	configPath := fs.String("config", "migratekit.yaml", "path to config file")
	dryRun := fs.Bool("dry-run", false, "classify pending files without executing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	engine, _, closeFn, err := buildEngine(*configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	res, err := engine.Deploy(ctx, flow.DeployOptions{DryRun: *dryRun})
	if res != nil {
		for _, f := range res.AlreadyApplied {
			fmt.Printf("  %s already applied\n", f)
		}
		for _, f := range res.Applied {
			if *dryRun {
				fmt.Printf("  %s would apply (%d statements)\n", f, len(res.Previews[f]))
			} else {
				fmt.Printf("  %s applied\n", f)
			}
		}
	}
	return err
}

func pushCmd(args []string) error {
	fs := flagSet("push")
	configPath := fs.String("config", "migratekit.yaml", "path to config file")
	schemaPath := fs.String("schema", "", "path to the current schema snapshot JSON")
	dryRun := fs.Bool("dry-run", false, "print the SQL without executing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *schemaPath == "" {
		return fmt.Errorf("--schema is required")
	}

	engine, cfg, closeFn, err := buildEngine(*configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	current, err := loadSchemaFile(*schemaPath)
	if err != nil {
		return err
	}
	previous, err := loadSavedSnapshot(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := engine.Push(ctx, previous, current, flow.PushOptions{DryRun: *dryRun})
	if err != nil {
		return err
	}
	if res.SQL == "" {
		fmt.Println("schemas match, no tables affected")
		return nil
	}
	if *dryRun {
		fmt.Print(res.SQL)
		return nil
	}
	fmt.Printf("pushed changes to: %s\n", strings.Join(res.TablesAffected, ", "))
	return nil
}

func statusCmd(args []string) error {
	fs := flagSet("status")
	configPath := fs.String("config", "migratekit.yaml", "path to config file")
	schemaPath := fs.String("schema", "", "optional path to the current schema snapshot JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	engine, cfg, closeFn, err := buildEngine(*configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	opts := flow.StatusOptions{}
	if *schemaPath != "" {
		current, err := loadSchemaFile(*schemaPath)
		if err != nil {
			return err
		}
		saved, err := loadSavedSnapshot(cfg)
		if err != nil {
			return err
		}
		opts.Current = &current
		opts.Saved = &saved
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := engine.Status(ctx, opts)
	if err != nil {
		return err
	}
	for _, a := range res.Applied {
		fmt.Printf("  applied  %s (%s)\n", a.Name, a.AppliedAt.Format(time.RFC3339))
	}
	for _, f := range res.Pending {
		fmt.Printf("  pending  %s\n", f)
	}
	for _, d := range res.ChecksumDrift {
		fmt.Printf("  drift    %s: file checksum %s does not match applied %s\n", d.Name, short(d.FileChecksum), short(d.AppliedChecksum))
	}
	if len(res.CodeChanges) > 0 {
		fmt.Println("  schema changes not captured in any migration:")
		fmt.Println(indent(diff.Describe(diff.Diff{Changes: res.CodeChanges})))
	}
	return nil
}

func driftCmd(args []string) error {
	fs := flagSet("drift")
	configPath := fs.String("config", "migratekit.yaml", "path to config file")
	schemaPath := fs.String("schema", "", "path to the expected schema snapshot JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *schemaPath == "" {
		return fmt.Errorf("--schema is required")
	}

	engine, _, closeFn, err := buildEngine(*configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	expected, err := loadSchemaFile(*schemaPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := engine.DetectSchemaDrift(ctx, expected)
	if err != nil {
		return err
	}
	if res.Clean() {
		fmt.Println("live database matches the expected schema")
		return nil
	}
	for _, t := range res.MissingTables {
		fmt.Printf("  missing table %s\n", t)
	}
	for _, t := range res.ExtraTables {
		fmt.Printf("  extra table %s\n", t)
	}
	for _, c := range res.MissingColumns {
		fmt.Printf("  missing column %s.%s\n", c.Table, c.Column)
	}
	for _, c := range res.ExtraColumns {
		fmt.Printf("  extra column %s.%s\n", c.Table, c.Column)
	}
	for _, m := range res.TypeMismatches {
		fmt.Printf("  type mismatch %s.%s: expected %s, live %s\n", m.Table, m.Column, m.Expected, m.Actual)
	}
	return nil
}

func baselineCmd(args []string) error {
	fs := flagSet("baseline")
	configPath := fs.String("config", "migratekit.yaml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	engine, _, closeFn, err := buildEngine(*configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := engine.Baseline(ctx)
	if err != nil {
		return err
	}
	for _, f := range res.AlreadyApplied {
		fmt.Printf("  %s already recorded\n", f)
	}
	for _, f := range res.Recorded {
		fmt.Printf("  %s recorded without execution\n", f)
	}
	return nil
}

func resetCmd(args []string) error {
	fs := flagSet("reset")
	configPath := fs.String("config", "migratekit.yaml", "path to config file")
	approve := fs.Bool("approve", false, "skip approval prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	engine, cfg, closeFn, err := buildEngine(*configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	if !*approve {
		fmt.Printf("About to drop all user tables in the %s database and re-run every migration.\n", cfg.Dialect)
		if !promptYes("Type YES to proceed: ") {
			return fmt.Errorf("aborted by user")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	res, err := engine.Reset(ctx)
	if res != nil {
		for _, t := range res.Dropped {
			fmt.Printf("  dropped %s\n", t)
		}
		for _, f := range res.Applied {
			fmt.Printf("  applied %s\n", f)
		}
	}
	return err
}

func serveCmd(args []string) error {
	fs := flagSet("serve")
	configPath := fs.String("config", "migratekit.yaml", "path to config file")
	addr := fs.String("addr", "", "listen address; overrides http_addr from config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	engine, cfg, closeFn, err := buildEngine(*configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	listen := cfg.HTTPAddress
	if *addr != "" {
		listen = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := httpapi.New(listen, engine, engine.Logger)
	return server.Start(ctx)
}

func buildEngine(configPath string) (*flow.Engine, *config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.NewLogger(cfg.LogLevel)

	d, err := dialect.New(cfg.Dialect)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := dbexec.Open(cfg.Dialect, cfg.DSN)
	if err != nil {
		return nil, nil, nil, err
	}

	engine := flow.New(d, db, fsio.OS{}, cfg.MigrationsDir, cfg.SnapshotFile, cfg.JournalFile, logger)
	return engine, &cfg, func() { _ = db.Close() }, nil
}

func loadSchemaFile(path string) (schema.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("read schema %s: %w", path, err)
	}
	return schema.Decode(data)
}

func loadSavedSnapshot(cfg *config.Config) (schema.Snapshot, error) {
	data, err := os.ReadFile(cfg.SnapshotFile)
	if err != nil {
		if os.IsNotExist(err) {
			return schema.New(1), nil
		}
		return schema.Snapshot{}, err
	}
	return schema.Decode(data)
}

func printCollisions(collisions []journal.Collision) {
	for _, c := range collisions {
		fmt.Printf("  collision at sequence %d: %s\n", c.Sequence, strings.Join(c.Names, " vs "))
	}
}

func promptYes(prompt string) bool {
	fmt.Print(prompt)
	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "YES")
}

func short(checksum string) string {
	if len(checksum) > 12 {
		return checksum[:12]
	}
	return checksum
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = "    " + lines[i]
	}
	return strings.Join(lines, "\n")
}

func flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	return fs
}
