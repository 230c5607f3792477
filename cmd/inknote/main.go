package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"inknote/internal/app"
	"inknote/internal/config"
	"inknote/internal/decor"
	"inknote/internal/export"
	"inknote/internal/preview"
	"inknote/internal/render"
	"inknote/internal/store"
	"inknote/pkg/markbuf"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
)

func loadConfig(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg := config.NewDefaultConfig()
	if err := config.Load(cmd.String("config"), cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	slog.SetDefault(log)
	return cfg, log, nil
}

func openStore(cfg *config.Config, log *slog.Logger) (*store.Store, error) {
	st, err := store.Open(cfg.Notes.Path, log)
	if err != nil {
		return nil, err
	}
	st.ConfigureSketch(cfg.Sketch.Compress, cfg.Sketch.Encrypt, cfg.Sketch.Password)
	return st, nil
}

func runUI(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	application, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runRenderHTML(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	title := cmd.Args().First()
	if title == "" {
		return fmt.Errorf("usage: inknote render <note>")
	}
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	text, err := st.Load(title)
	if err != nil {
		return err
	}
	fmt.Println(preview.NewRenderer().Render(text))
	return nil
}

func runRenderInk(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	title := cmd.Args().First()
	out := cmd.String("out")
	if title == "" {
		return fmt.Errorf("usage: inknote render-ink <note> [--out file.png]")
	}
	if out == "" {
		out = title + ".png"
	}
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	model, err := st.LoadSketch(title)
	if err != nil {
		return err
	}
	fb := render.RenderSketch(model)
	if err := fb.WritePNG(out); err != nil {
		return err
	}
	log.Info("rendered ink", slog.String("note", title), slog.String("out", out))
	return nil
}

func runExportPDF(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	title := cmd.Args().First()
	out := cmd.String("out")
	if title == "" {
		return fmt.Errorf("usage: inknote export-pdf <note> [--out file.pdf]")
	}
	if out == "" {
		out = title + ".pdf"
	}
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	text, err := st.Load(title)
	if err != nil {
		return err
	}
	base := markbuf.DefaultBase()
	base.FontSizePt = cfg.Editor.BaseFontPt
	buf, err := markbuf.New(text, base)
	if err != nil {
		return err
	}
	decor.NewEngine(st).DecorateAll(buf)
	pdf := export.PDF{Title: title}
	if err := pdf.Write(buf, out); err != nil {
		return err
	}
	log.Info("exported pdf", slog.String("note", title), slog.String("out", out))
	return nil
}

func runHousekeep(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	retention := time.Duration(cfg.Notes.TrashRetentionDays) * 24 * time.Hour
	purged, err := st.Housekeep(retention)
	if err != nil {
		return err
	}
	log.Info("housekeeping done", slog.Int("purged", purged))
	return nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "inknote.yaml",
		Value:       "inknote.yaml",
		Sources:     cli.EnvVars("INKNOTE_CONFIG_FILE"),
	}
	outFlag := &cli.StringFlag{
		Name:  "out",
		Usage: "Output file path",
	}

	cmd := &cli.Command{
		Name:   "inknote",
		Usage:  "Markdown note editor with live decoration, embedded images, and an ink overlay",
		Action: runUI,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:      "render",
				Usage:     "Render a note to sanitized HTML on stdout",
				ArgsUsage: "<note>",
				Action:    runRenderHTML,
				Flags:     []cli.Flag{configFlag},
			},
			{
				Name:      "render-ink",
				Usage:     "Rasterize a note's ink sidecar to PNG",
				ArgsUsage: "<note>",
				Action:    runRenderInk,
				Flags:     []cli.Flag{configFlag, outFlag},
			},
			{
				Name:      "export-pdf",
				Usage:     "Export a note to PDF",
				ArgsUsage: "<note>",
				Action:    runExportPDF,
				Flags:     []cli.Flag{configFlag, outFlag},
			},
			{
				Name:   "housekeep",
				Usage:  "Purge expired notes from the trash",
				Action: runHousekeep,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
