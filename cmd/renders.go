package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/boldbrush/internal/store"
)

var (
	rendersDataDir string
	keepLast       int
	olderThanDays  int
	forceClean     bool
)

var rendersCmd = &cobra.Command{
	Use:   "renders",
	Short: "Manage saved renders",
	Long: `Manage renders saved by 'paint --save' or the server, including listing
and cleaning old ones.`,
}

var listRendersCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved renders",
	Long:  `Display all saved renders with render ID, timestamp, variant, strokes, MSE and size on disk.`,
	RunE:  runListRenders,
}

var cleanRendersCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old renders",
	Long: `Delete saved renders based on a retention policy.
You can keep only the newest N renders or delete renders older than N days.`,
	RunE: runCleanRenders,
}

func init() {
	rootCmd.AddCommand(rendersCmd)
	rendersCmd.AddCommand(listRendersCmd)
	rendersCmd.AddCommand(cleanRendersCmd)

	rendersCmd.PersistentFlags().StringVar(&rendersDataDir, "data-dir", "./data", "Base directory for saved renders")

	cleanRendersCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N renders (0 = keep all)")
	cleanRendersCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete renders older than N days (0 = no age limit)")
	cleanRendersCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func runListRenders(cmd *cobra.Command, args []string) error {
	renderStore, err := store.NewFSStore(rendersDataDir)
	if err != nil {
		return fmt.Errorf("failed to create render store: %w", err)
	}

	infos, err := renderStore.ListRenders()
	if err != nil {
		return fmt.Errorf("failed to list renders: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No renders found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RENDER ID\tTIMESTAMP\tVARIANT\tOUTCOME\tSTROKES\tMSE\tSIZE")
	fmt.Fprintln(w, "---------\t---------\t-------\t-------\t-------\t---\t----")

	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(filepath.Join(rendersDataDir, "renders", info.RenderID)); err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.6f\t%s\n",
			shortID(info.RenderID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Variant,
			info.Outcome,
			info.Strokes,
			info.MSE,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal renders: %d\n", len(infos))
	return nil
}

func runCleanRenders(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	renderStore, err := store.NewFSStore(rendersDataDir)
	if err != nil {
		return fmt.Errorf("failed to create render store: %w", err)
	}

	infos, err := renderStore.ListRenders()
	if err != nil {
		return fmt.Errorf("failed to list renders: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No renders to clean.")
		return nil
	}

	toDelete := selectRendersForDeletion(infos, keepLast, olderThanDays)
	if len(toDelete) == 0 {
		fmt.Println("No renders match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d render(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%s, %d strokes, %s)\n",
			shortID(info.RenderID),
			info.Variant,
			info.Strokes,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := renderStore.DeleteRender(info.RenderID); err != nil {
			slog.Error("Failed to delete render", "renderID", info.RenderID, "error", err)
			failed++
			continue
		}
		slog.Info("Deleted render", "renderID", info.RenderID)
		deleted++
	}

	fmt.Printf("\nDeleted %d render(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRendersForDeletion returns the renders older than olderThanDays plus
// the oldest ones beyond the newest keepLast. Zero disables either rule.
func selectRendersForDeletion(infos []store.RecordInfo, keepLast int, olderThanDays int) []store.RecordInfo {
	var toDelete []store.RecordInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.RenderID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.RecordInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.RenderID] {
				toDelete = append(toDelete, info)
				selected[info.RenderID] = true
			}
		}
	}

	return toDelete
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
