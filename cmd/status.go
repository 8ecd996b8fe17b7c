package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/gateway"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/spf13/cobra"
)

var statusGateway string

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show background task status from a running gateway",
	Long: `Tasks live inside the process that started them. This command asks a
running 'repomaint gateway' for one task, or lists all of them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusGateway, "gateway", "", "gateway base URL (default http://127.0.0.1:<gateway.port>)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	base := gatewayBaseURL(statusGateway)
	client := &http.Client{Timeout: 10 * time.Second}

	if len(args) == 1 {
		var task models.Task
		if err := getJSON(cmd.Context(), client, base+"/api/tasks/"+args[0], &task); err != nil {
			return err
		}
		return render(task, func(w io.Writer) { printTask(w, task) })
	}

	var list struct {
		Tasks []models.Task `json:"tasks"`
	}
	if err := getJSON(cmd.Context(), client, base+"/api/tasks", &list); err != nil {
		return err
	}
	return render(list.Tasks, func(w io.Writer) {
		if len(list.Tasks) == 0 {
			fmt.Fprintln(w, "No tasks.")
		}
		for _, t := range list.Tasks {
			printTask(w, t)
		}
	})
}

// gatewayBaseURL returns flag, or the local gateway on the configured port.
func gatewayBaseURL(flag string) string {
	base := flag
	if base == "" {
		port := gateway.DefaultPort
		if cfg, err := config.Load(cfgFile); err == nil && cfg.Gateway.Port != 0 {
			port = cfg.Gateway.Port
		}
		base = fmt.Sprintf("http://127.0.0.1:%d", port)
	}
	return strings.TrimRight(base, "/")
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("contacting gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("gateway returned %d: %s (%s)", resp.StatusCode, body.Error, body.Code)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func printTask(w io.Writer, t models.Task) {
	fmt.Fprintf(w, "%s  %-9s %-11s %s", t.ID, t.Kind, t.Status, t.Message)
	if t.ResultID != "" {
		fmt.Fprintf(w, "  -> %s", t.ResultID)
	}
	if t.Error != "" {
		fmt.Fprintf(w, "  error: %s", t.Error)
	}
	fmt.Fprintln(w)
}
