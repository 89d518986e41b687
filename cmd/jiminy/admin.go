package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/jiminy/pkg/channel"
	"github.com/go-go-golems/jiminy/pkg/client"
	"github.com/go-go-golems/jiminy/pkg/sessionlist"
)

func newAdminCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Run the admin console in the terminal",
		Long: `Interactive admin console. Commands:
  /sessions          list sessions under the current filter
  /select <n>        open session n from the last listing
  /filter <f>        set the list filter: all, active, past
  /ai                toggle AI mode for the open session
anything else is sent as an admin message to the open session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			ch, err := channel.New(channel.Config{URL: wsEndpoint(serverURL)})
			if err != nil {
				return err
			}
			go func() { _ = ch.Run(ctx) }()

			console, err := client.NewConsole(client.ConsoleConfig{Channel: ch})
			if err != nil {
				return err
			}
			console.Start()
			defer console.Close()

			go printTimeline(ctx.Done(), console.Messages)

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				runAdminLine(console, scanner.Text())
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "chat server base URL")
	return cmd
}

func runAdminLine(console *client.Console, line string) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
	case line == "/sessions":
		for i, s := range console.Sessions() {
			state := "past"
			if s.IsActive {
				state = "active"
			}
			fmt.Printf("%d. %s (%s) %s | %s\n", i+1, s.User, state, s.SessionID, s.LastMessage)
		}
	case strings.HasPrefix(line, "/select "):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/select ")))
		sessions := console.Sessions()
		if err != nil || n < 1 || n > len(sessions) {
			fmt.Println("usage: /select <n> from the last /sessions listing")
			return
		}
		console.Select(sessions[n-1])
		fmt.Printf("opened %s\n", sessions[n-1].SessionID)
	case strings.HasPrefix(line, "/filter "):
		console.SetFilter(sessionlist.Filter(strings.TrimSpace(strings.TrimPrefix(line, "/filter "))))
	case line == "/ai":
		enabled, ok := console.ToggleAIMode()
		if !ok {
			fmt.Println("open a session first")
			return
		}
		fmt.Printf("ai mode: %v\n", enabled)
	default:
		if !console.SendMessage(line) {
			fmt.Println("open a session first")
		}
	}
}
