package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/boldbrush/internal/effect"
	"github.com/cwbudde/boldbrush/internal/filter"
	"github.com/cwbudde/boldbrush/internal/imageio"
	"github.com/cwbudde/boldbrush/internal/renderer"
	"github.com/cwbudde/boldbrush/internal/store"
)

var (
	inPath        string
	outPath       string
	diffPath      string
	configPath    string
	selectionSpec string
	backend       string
	workers       int
	timeout       time.Duration
	saveRender    bool
	paintDataDir  string
	printConfig   bool
	paintProps    propertyFlags
)

var paintCmd = &cobra.Command{
	Use:   "paint",
	Short: "Paint an image locally",
	Long: `Repaints the input image with brush strokes and writes a PNG.

Properties come from the defaults, then --config (a JSON properties file),
then any property flag given on the command line. Interrupting the command
or hitting --timeout writes the unmodified input instead.`,
	RunE: runPaint,
}

func init() {
	paintCmd.Flags().StringVarP(&inPath, "input", "i", "", "Source image path: png, jpeg, gif, webp, bmp, tiff (required)")
	paintCmd.Flags().StringVarP(&outPath, "output", "o", "out.png", "Output PNG path")
	paintCmd.Flags().StringVar(&diffPath, "diff", "", "Also write a difference image to this path")
	paintCmd.Flags().StringVar(&configPath, "config", "", "JSON properties file")
	paintCmd.Flags().StringVar(&selectionSpec, "selection", "", "Only paint strokes inside x,y,width,height")
	paintCmd.Flags().StringVar(&backend, "backend", string(renderer.BackendCPU), "Renderer backend: cpu, record")
	paintCmd.Flags().IntVar(&workers, "workers", 0, "Stroke generation workers (0 = GOMAXPROCS)")
	paintCmd.Flags().DurationVar(&timeout, "timeout", 0, "Cancel the render after this long (0 = no limit)")
	paintCmd.Flags().BoolVar(&saveRender, "save", false, "Save the render record, result and pass trace to --data-dir")
	paintCmd.Flags().StringVar(&paintDataDir, "data-dir", "./data", "Base directory for saved renders")
	paintCmd.Flags().BoolVar(&printConfig, "print-config", false, "Print the effective properties as JSON and exit")
	paintProps.register(paintCmd.Flags())

	rootCmd.AddCommand(paintCmd)
}

func runPaint(cmd *cobra.Command, args []string) error {
	props, err := loadProperties(configPath)
	if err != nil {
		return err
	}
	if err := paintProps.apply(cmd.Flags(), &props); err != nil {
		return err
	}

	if printConfig {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(props)
	}

	if inPath == "" {
		return fmt.Errorf("--input is required")
	}
	selection, err := parseSelection(selectionSpec)
	if err != nil {
		return err
	}

	src, err := imageio.Load(inPath)
	if err != nil {
		return err
	}
	slog.Info("Loaded source", "width", src.Bounds().Dx(), "height", src.Bounds().Dy())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	eff := effect.New(effect.Options{
		Backend: backend,
		Workers: workers,
		Progress: func(p effect.Progress) {
			slog.Debug("Progress", "stage", p.Stage, "pass", p.Pass, "passes", p.Passes, "strokes", p.Strokes)
		},
	})
	if err := eff.SetSource(src); err != nil {
		return err
	}

	start := time.Now()
	if _, err := eff.SetProperties(ctx, props); err != nil {
		if ctx.Err() == nil {
			return err
		}
		slog.Warn("Cancelled during calibration")
	}
	res, err := eff.Render(ctx, selection)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := imageio.SavePNG(outPath, res.Image); err != nil {
		return err
	}
	mse, err := filter.MSE(res.Image, src)
	if err != nil {
		return err
	}
	if diffPath != "" {
		if err := imageio.SavePNG(diffPath, filter.DiffImage(src, res.Image)); err != nil {
			return err
		}
	}

	strokes := 0
	for _, p := range res.Passes {
		strokes += p.Strokes
	}

	if res.Outcome == effect.OutcomeCancelled {
		slog.Warn("Render cancelled, wrote unmodified source", "elapsed", elapsed)
		fmt.Printf("Cancelled after %s, wrote source to %s\n", elapsed.Round(time.Millisecond), outPath)
		return nil
	}

	if saveRender {
		id, err := saveLocalRender(props, selection, res, mse, elapsed)
		if err != nil {
			return err
		}
		fmt.Printf("Saved render %s\n", id)
	}

	slog.Info("Paint complete",
		"elapsed", elapsed,
		"variant", props.Variant,
		"passes", len(res.Passes),
		"strokes", strokes,
		"commands", res.Commands,
		"mse", mse,
	)
	fmt.Printf("Wrote %s (%d passes, %d strokes, mse %.4f, %s)\n", outPath, len(res.Passes), strokes, mse, elapsed.Round(time.Millisecond))
	return nil
}

// saveLocalRender stores a finished local render like the server does.
func saveLocalRender(props effect.Properties, selection image.Rectangle, res *effect.Result, mse float64, took time.Duration) (string, error) {
	st, err := store.NewFSStore(paintDataDir)
	if err != nil {
		return "", fmt.Errorf("failed to create store: %w", err)
	}

	id := uuid.New().String()
	rec := store.NewRecord(id, inPath, props, selection, string(renderer.NormalizeBackend(backend)), res, mse, took)
	if err := st.SaveRender(id, rec, res.Image); err != nil {
		return "", err
	}

	tw, err := store.NewTraceWriter(st.BaseDir(), id, false)
	if err != nil {
		return "", err
	}
	for _, p := range res.Passes {
		if err := tw.Write(store.TraceEntry{PassStats: p, Timestamp: rec.Timestamp}); err != nil {
			tw.Close()
			return "", err
		}
	}
	return id, tw.Close()
}

// parseSelection parses "x,y,width,height". The empty string selects the
// whole image.
func parseSelection(s string) (image.Rectangle, error) {
	if strings.TrimSpace(s) == "" {
		return image.Rectangle{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("selection must be x,y,width,height: %q", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("selection %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("selection %q: width and height must be positive", s)
	}
	return image.Rect(v[0], v[1], v[0]+v[2], v[1]+v[3]), nil
}
