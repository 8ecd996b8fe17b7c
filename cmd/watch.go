package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/gateway"
	"github.com/CosmoTheDev/repomaint-agent/internal/tui"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/spf13/cobra"
)

var (
	watchGateway  string
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live terminal view of a running gateway's tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		base := gatewayBaseURL(watchGateway)
		src := &gatewaySource{base: base, client: &http.Client{Timeout: 10 * time.Second}}
		return tui.NewApp(src, base, watchInterval).Run()
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchGateway, "gateway", "", "gateway base URL (default http://127.0.0.1:<gateway.port>)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", tui.DefaultRefresh, "refresh interval")
}

// gatewaySource polls the gateway REST API.
type gatewaySource struct {
	base   string
	client *http.Client
}

func (g *gatewaySource) Snapshot(ctx context.Context) (tui.Snapshot, error) {
	var status gateway.Status
	if err := getJSON(ctx, g.client, g.base+"/api/status", &status); err != nil {
		return tui.Snapshot{}, err
	}
	var list struct {
		Tasks []models.Task `json:"tasks"`
	}
	if err := getJSON(ctx, g.client, g.base+"/api/tasks", &list); err != nil {
		return tui.Snapshot{}, err
	}
	return tui.Snapshot{
		Counts:    status.Tasks,
		Schedules: status.Schedules,
		Uptime:    time.Duration(status.UptimeSeconds) * time.Second,
		Tasks:     list.Tasks,
	}, nil
}
