package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/boldbrush/internal/brush"
)

var shapesCmd = &cobra.Command{
	Use:   "shapes",
	Short: "List the built-in brush shapes",
	Long: `Lists every brush shape usable with --style, the number of outline
segments per level of detail, and whether the Random style may pick it.`,
	Args: cobra.NoArgs,
	RunE: runShapes,
}

func init() {
	rootCmd.AddCommand(shapesCmd)
}

func runShapes(cmd *cobra.Command, args []string) error {
	lib := brush.Default()
	names, err := lib.Names()
	if err != nil {
		return fmt.Errorf("failed to load brush shapes: %w", err)
	}
	random, err := lib.Random(0)
	if err != nil {
		return fmt.Errorf("failed to load brush shapes: %w", err)
	}
	inRandom := make(map[*brush.Geometry]bool, len(random))
	for _, g := range random {
		inRandom[g] = true
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSEGMENTS\tRANDOM")
	for _, name := range names {
		shape, err := lib.Shape(name)
		if err != nil {
			return err
		}
		segments := ""
		for lod, g := range shape.LODs {
			if lod > 0 {
				segments += "/"
			}
			segments += fmt.Sprint(g.Segments())
		}
		eligible := "no"
		if inRandom[shape.LODs[0]] {
			eligible = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, segments, eligible)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\nUse --style with a name above or %q.\n", brush.StyleRandom)
	return nil
}
