package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var updateProps propertyFlags

var updateCmd = &cobra.Command{
	Use:   "update <render-id>",
	Short: "Change properties of a server render",
	Long: `Sends the given property flags to a render on the server.
Changes that only affect blending (fine details, background, secondary colour,
impasto strength and direction) recompose the cached strokes immediately;
any other change paints the render again.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	updateProps.register(updateCmd.Flags())
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	renderID := args[0]

	patch, err := updateProps.patch(cmd.Flags())
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		return fmt.Errorf("no property flags given")
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPatch, fmt.Sprintf("%s/api/v1/renders/%s", serverURL, renderID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
	case http.StatusNotFound:
		return fmt.Errorf("render not found: %s", renderID)
	default:
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", bytes.TrimSpace(msg))
	}

	var result struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	switch result.Action {
	case "none":
		fmt.Println("Nothing changed")
	case "update_output":
		fmt.Printf("Render %s recomposed\n", renderID)
	default:
		fmt.Printf("Render %s is being painted again\n", renderID)
	}
	return nil
}
