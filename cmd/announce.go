package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sybot/pkg/bridge"
	"sybot/pkg/response"
)

var announceFile string

var announceCmd = &cobra.Command{
	Use:   "announce [html]",
	Short: "Broadcast a message to every running server",
	Long:  "Sends an HTML message to the root channel and all sub-channels of every running server. Without arguments the configured live notice is sent.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log, closeLog, err := setup("cmd.announce")
		if err != nil {
			fmt.Printf("%v\n", err)
			return
		}
		defer closeLog()

		text, err := resolveAnnouncement(args, announceFile, cfg.API.Notice)
		if err != nil {
			fmt.Printf("%v\n", err)
			return
		}

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

		dispatcher := response.NewDispatcher(bridge.NewSession(client, log), nil, log)
		delivered, err := dispatcher.Broadcast(ctx, text)
		if err != nil {
			fmt.Printf("broadcast failed: %v\n", err)
			return
		}

		fmt.Printf("sent to %d servers\n", delivered)
	},
}

func init() {
	rootCmd.AddCommand(announceCmd)
	announceCmd.Flags().StringVarP(&announceFile, "file", "f", "", "read the message from a file")
}

// resolveAnnouncement picks the message from the file flag, the arguments, or the
// configured notice, in that order.
func resolveAnnouncement(args []string, file string, notice func() (string, error)) (string, error) {
	if path := strings.TrimSpace(file); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read announcement: %w", err)
		}
		if value := strings.TrimSpace(string(content)); value != "" {
			return value, nil
		}
		return "", fmt.Errorf("announcement file %s is empty", path)
	}

	if value := strings.TrimSpace(strings.Join(args, " ")); value != "" {
		return value, nil
	}

	value, err := notice()
	if err != nil {
		return "", err
	}
	if value = strings.TrimSpace(value); value == "" {
		return "", fmt.Errorf("nothing to announce: pass a message or configure api.live_notice")
	}
	return value, nil
}
