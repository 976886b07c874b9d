// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List sessions on a running broker",
	Long: `List the sessions of a running agentmux daemon, including their lifecycle,
backend status, and attached consumer count.`,
	RunE: lsCmdFunc,
}

var (
	lsServer string
	lsFormat string
)

func init() {
	lsCmd.Flags().StringVar(&lsServer, "server", "", "Base URL of the daemon (default derived from config)")
	lsCmd.Flags().StringVar(&lsFormat, "format", FormatText, "Output format (json or text)")
}

// sessionRow mirrors one entry of the daemon's session list response.
type sessionRow struct {
	ID               string    `json:"id"`
	Name             string    `json:"name,omitempty"`
	Adapter          string    `json:"adapter"`
	Lifecycle        string    `json:"lifecycle"`
	Status           string    `json:"status,omitempty"`
	CWD              string    `json:"cwd,omitempty"`
	PID              int       `json:"pid,omitempty"`
	BackendConnected bool      `json:"backend_connected"`
	Consumers        int       `json:"consumers"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivity     time.Time `json:"last_activity"`
}

type sessionList struct {
	Sessions []sessionRow `json:"sessions"`
}

func lsCmdFunc(cmd *cobra.Command, _ []string) error {
	base := lsServer
	if base == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		base = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	list, err := fetchSessions(cmd.Context(), base)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(list.Sessions) == 0 {
		fmt.Fprintln(out, "No sessions found")
		return nil
	}

	switch lsFormat {
	case FormatJSON:
		data, err := json.MarshalIndent(list.Sessions, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	default:
		return renderSessionTable(out, list.Sessions)
	}
}

// fetchSessions retrieves the session list from a running daemon.
func fetchSessions(ctx context.Context, base string) (*sessionList, error) {
	url := strings.TrimSuffix(base, "/") + "/api/v1/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach daemon at %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("daemon returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var list sessionList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode session list: %w", err)
	}
	return &list, nil
}

// renderSessionTable renders the session table to w.
func renderSessionTable(w io.Writer, rows []sessionRow) error {
	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader([]string{"ID", "Name", "Adapter", "Lifecycle", "Backend", "Consumers", "Created"}),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(7, tw.AlignLeft)),
	)

	for _, r := range rows {
		backend := "no"
		if r.BackendConnected {
			backend = "yes"
		}
		if err := table.Append([]string{
			r.ID,
			r.Name,
			r.Adapter,
			r.Lifecycle,
			backend,
			strconv.Itoa(r.Consumers),
			r.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
