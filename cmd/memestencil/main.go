// MemeStencil - Meme canvas renderer and editor server.
//
// Usage:
//
//	memestencil render -o <file> --scene <path> [--data <path>] [options]
//	memestencil inspect --scene <path> [--data <path>]
//	memestencil serve [--port 8080]
//	memestencil init
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xob0t/MemeStencil/clients/server"
	"github.com/xob0t/MemeStencil/pkg/assets"
	"github.com/xob0t/MemeStencil/pkg/config"
	"github.com/xob0t/MemeStencil/pkg/editor"
	"github.com/xob0t/MemeStencil/pkg/export"
	"github.com/xob0t/MemeStencil/pkg/render"
	"github.com/xob0t/MemeStencil/pkg/scene"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	cfg.ApplyLogging()

	switch os.Args[1] {
	case "render":
		err = runRender(cfg, os.Args[2:])
	case "inspect", "schema":
		err = runInspect(os.Args[2:])
	case "serve":
		err = runServe(cfg, os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "filters":
		for _, p := range render.Presets {
			fmt.Printf("%-10s %s\n", p.Name, p.Value)
		}
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fatal(err)
	}
}

func runRender(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)

	var (
		output    string
		scenePath string
		dataPath  string
		filter    string
		width     int
		quality   float64
		timeout   time.Duration
	)

	fs.StringVar(&output, "o", "", "Output file path (.png, .jpg, .bmp or .tiff)")
	fs.StringVar(&output, "output", "", "Output file path (.png, .jpg, .bmp or .tiff)")
	fs.StringVar(&scenePath, "scene", "", "Path to .memepack bundle or scene JSON")
	fs.StringVar(&dataPath, "data", "", "Path to data.json (optional)")
	fs.StringVar(&filter, "filter", "", "Filter override, a preset name or CSS-style chain")
	fs.IntVar(&width, "w", 0, "Display width in pixels (default: from scene)")
	fs.IntVar(&width, "width", 0, "Display width in pixels (default: from scene)")
	fs.Float64Var(&quality, "quality", 0.92, "JPEG quality in (0, 1]")
	fs.DurationVar(&timeout, "timeout", time.Minute, "Time allowed for loading images")

	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return err
	}
	if output == "" || scenePath == "" {
		printUsage()
		return fmt.Errorf("output file (-o) and --scene are required")
	}
	if _, err := export.ParseFormat(filepath.Ext(output)); err != nil {
		return err
	}

	sc, cleanup, err := scene.Load(scenePath)
	if err != nil {
		return fmt.Errorf("load scene: %w", err)
	}
	defer cleanup()

	data := &scene.DataSpec{}
	if dataPath != "" {
		var warnings []string
		data, warnings, err = scene.LoadData(dataPath)
		if err != nil {
			return fmt.Errorf("load data: %w", err)
		}
		printWarnings(warnings)
	}
	if filter != "" {
		data.Filter = filter
	}
	if width > 0 {
		sc.Canvas.DisplayWidth = width
	}

	sess, err := editor.New(editor.Options{
		DisplayWidth: sc.Canvas.DisplayWidth,
		HistoryCap:   cfg.HistoryCap,
		Loader:       assets.NewSourceLoader(filepath.Dir(scenePath)),
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fmt.Printf("Rendering scene: %s\n", sc.Meta.Name)
	warnings, err := sess.ApplyScene(ctx, sc, data)
	printWarnings(warnings)
	if err != nil {
		return fmt.Errorf("open scene: %w", err)
	}
	if err := sess.Wait(ctx); err != nil {
		return fmt.Errorf("load images: %w", err)
	}
	img, err := sess.Render()
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	if err := export.WriteFile(output, img, quality); err != nil {
		return err
	}
	b := img.Bounds()
	fmt.Printf("Done: %s (%dx%d)\n", output, b.Dx(), b.Dy())
	return nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	var scenePath, dataPath string
	fs.StringVar(&scenePath, "scene", "", "Path to .memepack or scene JSON")
	fs.StringVar(&dataPath, "data", "", "Path to data.json to validate (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if scenePath == "" {
		return fmt.Errorf("--scene is required for inspect command")
	}

	sc, cleanup, err := scene.Load(scenePath)
	if err != nil {
		return err
	}
	defer cleanup()

	var data *scene.DataSpec
	if dataPath != "" {
		var warnings []string
		data, warnings, err = scene.LoadData(dataPath)
		if err != nil {
			return err
		}
		printWarnings(warnings)
	}

	fmt.Print(scene.FormatSchema(sc))
	printWarnings(scene.Validate(sc, data))
	return nil
}

func runServe(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var open bool
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Host to listen on (0.0.0.0 for all interfaces)")
	fs.StringVar(&cfg.Port, "port", cfg.Port, "Port to listen on")
	fs.StringVar(&cfg.Port, "p", cfg.Port, "Port to listen on")
	fs.BoolVar(&open, "open", false, "Open the API in a browser")
	loglevel := fs.String("loglevel", cfg.LogLevel.String(), "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(*loglevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	cfg.LogLevel = level
	cfg.ApplyLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.RunServe(ctx, cfg, open)
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var sceneOut, dataOut string
	fs.StringVar(&sceneOut, "scene", scene.SceneFile, "Output path for sample scene")
	fs.StringVar(&dataOut, "data", "data.json", "Output path for sample data")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, d := scene.ExampleJSON()

	if err := os.WriteFile(sceneOut, []byte(s), 0644); err != nil {
		return fmt.Errorf("write scene: %w", err)
	}
	if err := os.WriteFile(dataOut, []byte(d), 0644); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	fmt.Printf("Created: %s, %s\n", sceneOut, dataOut)
	fmt.Printf("Run: memestencil render -o meme.png --scene %s --data %s\n", sceneOut, dataOut)
	return nil
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Print(`MemeStencil - Meme Canvas Renderer (Pure Go)

USAGE:
    memestencil render -o <file> --scene <path> [--data <path>] [options]
    memestencil inspect --scene <path> [--data <path>]
    memestencil serve [--host localhost] [--port 8080] [--open]
    memestencil filters
    memestencil init [options]

RENDER:
    --scene <path>         .memepack bundle or standalone scene JSON
    --data <path>          Data JSON with layer overrides (optional)
    -o, --output <path>    Output file (.png, .jpg, .bmp, .tiff)
    -w, --width <px>       Display width (default: scene canvas width)
    --filter <value>       Filter preset name or chain, e.g. "contrast(150%)"
    --quality <0-1>        JPEG quality (default: 0.92)
    --timeout <dur>        Image loading timeout (default: 1m)

EDITOR SERVER:
    memestencil serve [--port 8080]     Start the HTTP editing API on localhost
    --host <addr>                       Listen address (default: localhost)

ENVIRONMENT (.env is read when present):
    MEMESTENCIL_HOST, MEMESTENCIL_PORT, MEMESTENCIL_DISPLAY_WIDTH, MEMESTENCIL_HISTORY_CAP,
    GIPHY_API_KEY, OPENAI_API_KEY, OPENAI_BASE_URL, OPENAI_MODEL, LOG_LEVEL

EXAMPLES:
    memestencil init
    memestencil render -o meme.png --scene scene.json --data data.json
    memestencil render -o meme.jpg --scene classic.memepack --filter Noir
    memestencil inspect --scene classic.memepack
    memestencil serve --port 9000
`)
}
