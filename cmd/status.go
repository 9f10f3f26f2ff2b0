package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [render-id]",
	Short: "Query server status or a specific render",
	Long: `Queries the server for render status information.
If no render-id is provided, lists all renders.
If render-id is provided, shows detailed status for that render.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listRenders(fmt.Sprintf("%s/api/v1/renders", serverURL))
	}
	renderID := args[0]
	return getRenderStatus(fmt.Sprintf("%s/api/v1/renders/%s/status", serverURL, renderID), renderID)
}

// renderSummary is the subset of a server render the CLI prints.
type renderSummary struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Stage   string `json:"stage"`
	Request struct {
		SourcePath string `json:"sourcePath"`
		Properties struct {
			Variant     string `json:"variant"`
			Radius      int    `json:"radius"`
			StrokeStyle string `json:"strokeStyle"`
		} `json:"properties"`
	} `json:"request"`
	Pass    int `json:"pass"`
	Passes  []struct {
		Pass        int     `json:"pass"`
		StrokeWidth int     `json:"strokeWidth"`
		Radius      int     `json:"radius"`
		Strokes     int     `json:"strokes"`
		Buckets     int     `json:"buckets"`
		Duration    float64 `json:"duration"`
	} `json:"passes"`
	Strokes  int     `json:"strokes"`
	Commands int     `json:"commands"`
	MSE      float64 `json:"mse"`
	Updates  int     `json:"updates"`
	Elapsed  float64 `json:"elapsed"`
	SPS      float64 `json:"sps"`
	Error    string  `json:"error"`
}

func fetchJSON(url string, v interface{}) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listRenders(url string) error {
	var renders []renderSummary
	if _, err := fetchJSON(url, &renders); err != nil {
		return err
	}

	if len(renders) == 0 {
		fmt.Println("No renders found")
		return nil
	}

	fmt.Printf("Found %d render(s):\n\n", len(renders))
	for _, r := range renders {
		fmt.Printf("Render ID: %s\n", r.ID)
		fmt.Printf("  State: %s\n", r.State)
		fmt.Printf("  Source: %s\n", r.Request.SourcePath)
		fmt.Printf("  Variant: %s (radius %d, %s)\n", r.Request.Properties.Variant, r.Request.Properties.Radius, r.Request.Properties.StrokeStyle)
		if r.Strokes > 0 {
			fmt.Printf("  Strokes: %d\n", r.Strokes)
		}
		fmt.Println()
	}

	return nil
}

func getRenderStatus(url, renderID string) error {
	var r renderSummary
	status, err := fetchJSON(url, &r)
	if status == http.StatusNotFound {
		return fmt.Errorf("render not found: %s", renderID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Render: %s\n", r.ID)
	fmt.Printf("State: %s", r.State)
	if r.Stage != "" {
		fmt.Printf(" (%s)", r.Stage)
	}
	fmt.Println()
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Source: %s\n", r.Request.SourcePath)
	fmt.Printf("  Variant: %s\n", r.Request.Properties.Variant)
	fmt.Printf("  Radius: %d\n", r.Request.Properties.Radius)
	fmt.Printf("  Style: %s\n", r.Request.Properties.StrokeStyle)
	fmt.Println()

	fmt.Println("Progress:")
	for _, p := range r.Passes {
		fmt.Printf("  Pass %d: width %d, radius %d, %d strokes in %d buckets (%s)\n",
			p.Pass, p.StrokeWidth, p.Radius, p.Strokes, p.Buckets,
			time.Duration(p.Duration).Round(time.Millisecond))
	}
	if r.Commands > 0 {
		fmt.Printf("  Draw commands: %d\n", r.Commands)
	}
	if r.MSE > 0 {
		fmt.Printf("  MSE: %.4f\n", r.MSE)
	}
	if r.Updates > 0 {
		fmt.Printf("  Recompositions: %d\n", r.Updates)
	}
	elapsed := time.Duration(r.Elapsed * float64(time.Second))
	fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if r.SPS > 0 {
		fmt.Printf("  Throughput: %.0f strokes/sec\n", r.SPS)
	}

	if r.Error != "" {
		fmt.Printf("\nError: %s\n", r.Error)
	}

	return nil
}
