package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"sybot/pkg/murmur"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List the host's virtual servers",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, log, closeLog, err := setup("cmd.servers")
		if err != nil {
			fmt.Printf("%v\n", err)
			return
		}
		defer closeLog()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		client, err := connect(ctx, cfg, log)
		if err != nil {
			fmt.Printf("%v\n", err)
			return
		}
		defer client.Close()

		servers, err := client.AllServers(ctx)
		if err != nil {
			fmt.Printf("failed to list servers: %v\n", err)
			return
		}

		rows := make([]serverRow, 0, len(servers))
		for _, server := range servers {
			rows = append(rows, describeServer(ctx, server))
		}
		printServers(os.Stdout, rows)
	},
}

func init() {
	rootCmd.AddCommand(serversCmd)
}

type serverRow struct {
	ID      int
	Name    string
	Address string
	Running bool
	Users   int
}

var (
	serverHeader  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("88")).Padding(0, 1)
	serverRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("114")).Bold(true)
	serverStopped = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	serverMeta    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func describeServer(ctx context.Context, server murmur.Server) serverRow {
	row := serverRow{ID: server.ID()}
	row.Name, _ = server.Conf(ctx, "registername")

	host, _ := server.Conf(ctx, "host")
	port, _ := server.Conf(ctx, "port")
	if host != "" || port != "" {
		row.Address = host + ":" + port
	}

	row.Running, _ = server.IsRunning(ctx)
	if row.Running {
		if users, err := server.Users(ctx); err == nil {
			row.Users = len(users)
		}
	}
	return row
}

func printServers(w io.Writer, rows []serverRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, serverMeta.Render("no servers configured"))
		return
	}

	fmt.Fprintln(w, serverHeader.Render(fmt.Sprintf("%d servers", len(rows))))
	for _, row := range rows {
		fmt.Fprintln(w, serverLine(row))
	}
}

func serverLine(row serverRow) string {
	state := serverStopped.Render("stopped")
	if row.Running {
		state = serverRunning.Render("running")
	}

	name := strings.TrimSpace(row.Name)
	if name == "" {
		name = "(unnamed)"
	}

	parts := []string{"#" + strconv.Itoa(row.ID), name, state}
	if row.Address != "" {
		parts = append(parts, serverMeta.Render(row.Address))
	}
	if row.Running {
		parts = append(parts, serverMeta.Render(fmt.Sprintf("%d users", row.Users)))
	}
	return strings.Join(parts, "  ")
}
