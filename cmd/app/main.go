package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/Spiffical/hydrolabel/internal"
	"github.com/Spiffical/hydrolabel/internal/index"
	"github.com/Spiffical/hydrolabel/internal/mcpserver"
	"github.com/Spiffical/hydrolabel/internal/review"
	"github.com/Spiffical/hydrolabel/internal/schema"
	"github.com/Spiffical/hydrolabel/internal/storage"
	"github.com/Spiffical/hydrolabel/internal/taxonomy"
	pkgconfig "github.com/Spiffical/hydrolabel/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func loadTree(cmd *cli.Command) (taxonomy.Tree, error) {
	if path := cmd.String("taxonomy"); path != "" {
		return taxonomy.Load(path)
	}
	return taxonomy.Default(), nil
}

// validateFiles checks each document and prints one line per violation.
func validateFiles(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("usage: validate [--lenient] <file.json> ...")
	}
	mode := schema.Strict
	if cmd.Bool("lenient") {
		mode = schema.Lenient
	}
	tree, err := loadTree(cmd)
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		canonical, err := schema.Convert(raw)
		if err == nil {
			var doc *schema.Document
			if doc, err = schema.Parse(canonical, mode); err == nil {
				schema.NormalizeLabels(doc, tree)
				err = schema.Validate(doc, schema.WithTaxonomy(tree))
			}
		}
		if err == nil {
			fmt.Printf("%s: ok\n", path)
			continue
		}
		failed++
		errs := schema.AsErrors(err)
		if len(errs) == 0 {
			fmt.Printf("%s: %v\n", path, err)
			continue
		}
		for _, e := range errs {
			fmt.Printf("%s: [%s/%s] %s: %s\n", path, e.Class, e.Kind, e.Field, e.Detail)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d document(s) failed validation", failed, len(paths))
	}
	return nil
}

// convertFile rewrites a document in canonical form to stdout or a file.
func convertFile(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) != 1 {
		return fmt.Errorf("usage: convert <file.json>")
	}
	raw, err := os.ReadFile(paths[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", paths[0], err)
	}
	canonical, err := schema.Convert(raw)
	if err != nil {
		return err
	}
	doc, err := schema.Parse(canonical, schema.Lenient)
	if err != nil {
		return err
	}
	out, err := schema.Serialize(doc)
	if err != nil {
		return err
	}
	if dest := cmd.String("output"); dest != "" {
		return os.WriteFile(dest, out, 0o644)
	}
	_, err = os.Stdout.Write(out)
	return err
}

// summarize prints review statistics for a document.
func summarize(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) != 1 {
		return fmt.Errorf("usage: summary <file.json>")
	}
	raw, err := os.ReadFile(paths[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", paths[0], err)
	}
	canonical, err := schema.Convert(raw)
	if err != nil {
		return err
	}
	doc, err := schema.Parse(canonical, schema.Lenient)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(doc.Summarize(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// exportLabels writes the labels-only profile of a document.
func exportLabels(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) != 1 {
		return fmt.Errorf("usage: export <file.json>")
	}
	raw, err := os.ReadFile(paths[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", paths[0], err)
	}
	canonical, err := schema.Convert(raw)
	if err != nil {
		return err
	}
	doc, err := schema.Parse(canonical, schema.Lenient)
	if err != nil {
		return err
	}
	out, err := schema.Serialize(schema.LabelsOnly(doc))
	if err != nil {
		return err
	}
	if dest := cmd.String("output"); dest != "" {
		return os.WriteFile(dest, out, 0o644)
	}
	_, err = os.Stdout.Write(out)
	return err
}

// serveMCP runs the MCP server on stdio against the configured library.
func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tree := taxonomy.Default()
	if cfg.Taxonomy.Path != "" {
		if tree, err = taxonomy.Load(cfg.Taxonomy.Path); err != nil {
			return err
		}
	}
	store, err := storage.NewFS(cfg.Library.Path)
	if err != nil {
		return err
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	// Logs go to stderr so stdout stays clean for the MCP transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	slog.SetDefault(logger)

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	svc := review.NewService(store, db, tree)
	return mcpserver.New(svc).ServeStdio()
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
	taxonomyFlag := &cli.StringFlag{
		Name:  "taxonomy",
		Usage: "Path to a YAML taxonomy replacing the built-in hierarchy",
	}
	outputFlag := &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Write the result to a file instead of stdout",
	}

	cmd := &cli.Command{
		Name:   "hydrolabel",
		Usage:  "Hydrophone annotation service with versioned review trails, full-text search, and a unified JSON schema",
		Action: serve,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API server (default)",
				Action: serve,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "validate",
				Usage:  "Validate annotation documents against the unified schema",
				Action: validateFiles,
				Flags: []cli.Flag{
					taxonomyFlag,
					&cli.BoolFlag{Name: "lenient", Usage: "Tolerate unknown fields instead of rejecting them"},
				},
			},
			{
				Name:   "convert",
				Usage:  "Convert a legacy annotation file to the canonical schema",
				Action: convertFile,
				Flags:  []cli.Flag{outputFlag},
			},
			{
				Name:   "summary",
				Usage:  "Print review statistics for a document",
				Action: summarize,
			},
			{
				Name:   "export",
				Usage:  "Export the labels-only profile of a document",
				Action: exportLabels,
				Flags:  []cli.Flag{outputFlag},
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdio for LLM integration",
				Action: serveMCP,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
