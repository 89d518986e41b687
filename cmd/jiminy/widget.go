package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/jiminy/pkg/channel"
	"github.com/go-go-golems/jiminy/pkg/chatwire"
	"github.com/go-go-golems/jiminy/pkg/client"
	"github.com/go-go-golems/jiminy/pkg/identity"
)

func newWidgetCommand() *cobra.Command {
	var (
		serverURL    string
		identityPath string
	)

	cmd := &cobra.Command{
		Use:   "widget",
		Short: "Run the user chat widget in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if identityPath == "" {
				dir, err := os.UserConfigDir()
				if err != nil {
					return errors.Wrap(err, "resolve config dir")
				}
				identityPath = filepath.Join(dir, "jiminy", "session-id")
			}
			store, err := identity.NewFileStore(identityPath)
			if err != nil {
				return err
			}

			ch, err := channel.New(channel.Config{URL: wsEndpoint(serverURL)})
			if err != nil {
				return err
			}
			go func() { _ = ch.Run(ctx) }()

			widget, err := client.NewWidget(client.WidgetConfig{Channel: ch, Store: store})
			if err != nil {
				return err
			}
			widget.Start()
			defer widget.Close()

			go printTimeline(ctx.Done(), widget.Messages)

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				widget.Send(scanner.Text())
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "chat server base URL")
	cmd.Flags().StringVar(&identityPath, "identity-file", "", "file persisting the session id")
	return cmd
}

// wsEndpoint turns a base server URL into the websocket endpoint.
func wsEndpoint(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

// printTimeline polls the timeline and prints anything new.
func printTimeline(done <-chan struct{}, messages func() []chatwire.Message) {
	printed := 0
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			msgs := messages()
			for ; printed < len(msgs); printed++ {
				m := msgs[printed]
				tag := string(m.Sender)
				if m.IsAI {
					tag += " (ai)"
				}
				fmt.Printf("[%s] %s\n", tag, m.Content)
			}
		}
	}
}
