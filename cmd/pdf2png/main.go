package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	config "github.com/drummonds/pdf2img/config"
	engine "github.com/drummonds/pdf2img/engine"
	"github.com/drummonds/pdf2img/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	engine.Logger = Logger
	pdfrenderer.Logger = Logger
}

type options struct {
	outDir  string
	backend string
	info    bool
}

func parseFlags(args []string) (options, []string, error) {
	var opts options
	flags := pflag.NewFlagSet("pdf2png", pflag.ContinueOnError)
	flags.StringVarP(&opts.outDir, "out", "o", ".", "directory the PNG files are written to")
	flags.StringVarP(&opts.backend, "backend", "b", "", "rendering backend: pdfium or fitz (default from PDF_BACKEND)")
	flags.BoolVar(&opts.info, "info", false, "print page count and first page size instead of converting")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pdf2png [flags] file.pdf [file.pdf ...]\n\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return opts, nil, err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return opts, nil, fmt.Errorf("no input files")
	}
	return opts, flags.Args(), nil
}

func main() {
	serverConfig, logger := config.SetupCLI()
	injectGlobals(logger)

	opts, files, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if opts.info {
		os.Exit(printInfo(files))
	}

	if opts.backend == "" {
		opts.backend = serverConfig.Backend
	}
	pool := pdfrenderer.DefaultPoolConfig()
	if serverConfig.InstanceTimeout > 0 {
		pool.InstanceTimeout = serverConfig.InstanceTimeout
	}
	runtime, err := pdfrenderer.NewRuntime(opts.backend, pool)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	loader := engine.NewLoader(runtime)
	defer loader.Close()
	converter := engine.NewConverter(loader, engine.NewImageStore("", 0))

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Unable to create output directory: %v\n", err)
		os.Exit(1)
	}

	failed := convertAll(context.Background(), converter, files, opts.outDir)
	if failed > 0 {
		os.Exit(1)
	}
}

// convertAll converts each file in turn and returns how many failed
func convertAll(ctx context.Context, converter *engine.Converter, files []string, outDir string) int {
	failed := 0
	for _, path := range files {
		outPath, err := convertFile(ctx, converter, path, outDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("%s -> %s\n", path, outPath)
	}
	return failed
}

func convertFile(ctx context.Context, converter *engine.Converter, path, outDir string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	result := converter.RasterizeFirstPage(ctx, data, filepath.Base(path))
	if !result.Succeeded() {
		return "", fmt.Errorf("%s", result.Error)
	}
	// the display handle is not needed once the bytes are on disk
	converter.Images.Revoke(result.ImageURL)

	outPath := filepath.Join(outDir, result.File.Name)
	if err := os.WriteFile(outPath, result.File.Data, 0o644); err != nil {
		return "", err
	}
	Logger.Info("Wrote image", "source", path, "output", outPath, "bytes", result.File.Size())
	return outPath, nil
}

func printInfo(files []string) int {
	failed := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		info, err := pdfrenderer.Inspect(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
			continue
		}
		viewport := pdfrenderer.NewViewport(info.Width, info.Height, engine.ComputeScale(info.Width, info.Height))
		fmt.Printf("%s: %d pages, first page %gx%g pt, renders at %dx%d px\n", path, info.Pages,
			info.Width, info.Height, viewport.PixelWidth(), viewport.PixelHeight())
	}
	if failed > 0 {
		return 1
	}
	return 0
}
