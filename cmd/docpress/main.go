package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/docpress/internal/assets"
	"git.home.luguber.info/inful/docpress/internal/build"
	"git.home.luguber.info/inful/docpress/internal/config"
	"git.home.luguber.info/inful/docpress/internal/daemon"
	"git.home.luguber.info/inful/docpress/internal/layouts"
	"git.home.luguber.info/inful/docpress/internal/model"
	"git.home.luguber.info/inful/docpress/internal/store"
	"git.home.luguber.info/inful/docpress/internal/typeset"
)

const shutdownTimeout = 15 * time.Second

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	RegisterType struct {
		Name   string   `arg:"" help:"Content type name"`
		Prefix string   `required:"" help:"Sequence code prefix, e.g. OFF"`
		Field  []string `help:"Field declaration name:type (repeatable, order is kept)"`
	} `cmd:"" name:"register-type" help:"Register a content type with its field declarations"`

	RegisterLayout struct {
		Name  string   `arg:"" help:"Layout name"`
		Slug  string   `help:"Bundle slug (derived from the name when empty)"`
		Asset []string `help:"Asset association name=file_path (repeatable, order is kept)"`
	} `cmd:"" name:"register-layout" help:"Register a layout and its assets"`

	Create struct {
		ContentType string   `arg:"" help:"Content type id"`
		Set         []string `help:"Field value key=value (repeatable)"`
		BodyFile    string   `help:"File with the document body (stdin when empty)"`
		Creator     string   `help:"Acting user id"`
	} `cmd:"" help:"Create a document instance with the next sequence code"`

	Build struct {
		Instance string `arg:"" help:"Instance id to build"`
		Layout   string `required:"" help:"Layout slug to typeset with"`
		Creator  string `help:"Acting user id recorded in build history"`
	} `cmd:"" help:"Typeset one instance and record its build history"`

	History struct {
		Instance string `arg:"" help:"Instance id"`
	} `cmd:"" help:"Show the build history of an instance"`

	SyncLayouts struct{} `cmd:"" name:"sync-layouts" help:"Clone or pull the layout bundle repository"`

	Serve struct{} `cmd:"" help:"Run the build daemon (queue, layout sync, metrics)"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if err := run(ctx.Command()); err != nil {
		slog.Error("Command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}

func run(command string) error {
	if command == "init" {
		return config.Init(CLI.Config, CLI.Init.Force)
	}

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	switch {
	case command == "sync-layouts":
		return runSyncLayouts(cfg)
	case command == "serve":
		return runServe(cfg)
	}

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	switch command {
	case "register-type <name>":
		return runRegisterType(st)
	case "register-layout <name>":
		return runRegisterLayout(st)
	case "create <content-type>":
		return runCreate(st)
	case "build <instance>":
		return runBuild(cfg, st)
	case "history <instance>":
		return runHistory(st)
	}
	return fmt.Errorf("unknown command %q", command)
}

func runRegisterType(st store.Store) error {
	fields := make([]model.ContentTypeField, 0, len(CLI.RegisterType.Field))
	for _, f := range CLI.RegisterType.Field {
		name, typ, ok := strings.Cut(f, ":")
		if !ok {
			typ = string(model.FieldTypeString)
		}
		fields = append(fields, model.ContentTypeField{Name: name, Type: model.FieldType(typ)})
	}
	ct := &model.ContentType{
		ID:     uuid.New(),
		Name:   CLI.RegisterType.Name,
		Prefix: CLI.RegisterType.Prefix,
		Fields: fields,
	}
	if err := st.CreateContentType(context.Background(), ct); err != nil {
		return err
	}
	fmt.Println(ct.ID)
	return nil
}

func runRegisterLayout(st store.Store) error {
	slug := CLI.RegisterLayout.Slug
	if slug == "" {
		slug = layouts.Slugify(CLI.RegisterLayout.Name)
	}
	assetList := make([]model.Asset, 0, len(CLI.RegisterLayout.Asset))
	for _, a := range CLI.RegisterLayout.Asset {
		name, path, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("asset %q must be name=file_path", a)
		}
		assetList = append(assetList, model.Asset{ID: uuid.New(), Name: name, FilePath: path})
	}
	l := &model.Layout{
		ID:     uuid.New(),
		Name:   CLI.RegisterLayout.Name,
		Slug:   slug,
		Assets: assetList,
	}
	if err := st.CreateLayout(context.Background(), l); err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", l.ID, l.Slug)
	return nil
}

func runCreate(st store.Store) error {
	ctID, err := uuid.Parse(CLI.Create.ContentType)
	if err != nil {
		return fmt.Errorf("invalid content type id: %w", err)
	}
	creator, _ := uuid.Parse(CLI.Create.Creator)

	serialized := make(map[string]string, len(CLI.Create.Set))
	for _, s := range CLI.Create.Set {
		k, v, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("field value %q must be key=value", s)
		}
		serialized[k] = v
	}

	body, err := readBody(CLI.Create.BodyFile)
	if err != nil {
		return err
	}

	inst, err := build.CreateInstance(context.Background(), st, ctID, creator, serialized, body)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", inst.ID, inst.InstanceCode)
	return nil
}

func readBody(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read body from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read body file: %w", err)
	}
	return string(data), nil
}

func runBuild(cfg *config.Config, st store.Store) error {
	instID, err := uuid.Parse(CLI.Build.Instance)
	if err != nil {
		return fmt.Errorf("invalid instance id: %w", err)
	}
	creator, _ := uuid.Parse(CLI.Build.Creator)

	resolver := assets.NewHMACSigner(cfg.Assets.BaseURL, cfg.Assets.SigningSecret, cfg.Assets.URLTTLDuration())
	renderer := &typeset.PandocRenderer{
		Binary:  cfg.Renderer.Binary,
		Engine:  cfg.Renderer.Engine,
		Timeout: cfg.Renderer.TimeoutDuration(),
	}
	pipeline := typeset.NewPipeline(cfg.UploadsDir, layouts.NewBundles(cfg.LayoutsDir), resolver, renderer, nil)
	svc := build.NewService(st, pipeline, nil, nil)

	res, err := svc.Build(context.Background(), build.Request{
		InstanceID: instID,
		LayoutSlug: CLI.Build.Layout,
		CreatorID:  creator,
	})
	if res != nil {
		fmt.Printf("exit_code=%d status=%s delay=%dms\n", res.History.ExitCode, res.History.Status, res.History.DelayMS)
		if res.Report.DocPath != "" {
			fmt.Println(res.Report.DocPath)
		}
		if res.Report.Output != "" && err != nil {
			fmt.Fprintln(os.Stderr, res.Report.Output)
		}
	}
	return err
}

func runHistory(st store.Store) error {
	instID, err := uuid.Parse(CLI.History.Instance)
	if err != nil {
		return fmt.Errorf("invalid instance id: %w", err)
	}
	entries, err := st.ListBuildHistory(context.Background(), instID)
	if err != nil {
		return err
	}
	for _, h := range entries {
		fmt.Printf("%s\t%s\texit=%d\tdelay=%dms\n",
			h.EndTime.Format("2006-01-02 15:04:05"), h.Status, h.ExitCode, h.DelayMS)
	}
	return nil
}

func runSyncLayouts(cfg *config.Config) error {
	bundles := layouts.NewBundles(cfg.LayoutsDir)
	changed, err := bundles.Sync(cfg.Layouts.RepoURL, cfg.Layouts.Branch)
	if err != nil {
		return err
	}
	if changed {
		slog.Info("Layout bundles updated")
	} else {
		slog.Info("Layout bundles already up to date")
	}
	slugs, err := bundles.Slugs()
	if err != nil {
		return err
	}
	for _, s := range slugs {
		fmt.Println(s)
	}
	return nil
}

func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	d, err := daemon.New(cfg, st)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	d.Stop(shutdownCtx)
	return nil
}
