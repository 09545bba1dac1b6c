package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"ryver/internal/config"
	"ryver/internal/version"
	"ryver/pkg/api"
	"ryver/pkg/cache"
	"ryver/pkg/protocol"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ryver",
	Short: "Ryver chat client",
	Long:  "Command line client for the Ryver chat platform: realtime listener, message sending and entity listing.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect a realtime session and log incoming traffic",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		client, storage, err := newClient(cfg)
		if err != nil {
			return err
		}
		if closer, ok := storage.(interface{ Close() error }); ok {
			defer closer.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		session, err := client.LiveSession(ctx, cfg.RealtimeOptions())
		if err != nil {
			return err
		}

		session.OnChat(func(msg *protocol.ChatMessage) {
			log.Printf("[Chat] %s -> %s: %s", msg.From, msg.To, msg.Text)
		})
		session.OnPresenceChanged(func(msg *protocol.PresenceChanged) {
			log.Printf("[Presence] %s is now %s", msg.From, msg.Presence)
		})
		session.OnEvent(protocol.TopicAll, func(ev *protocol.Event) {
			log.Printf("[Event] %s", ev.Topic)
		})
		session.OnConnectionLoss(func(err error) {
			log.Printf("[Session] connection lost: %v", err)
		})

		if err := session.Start(ctx); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		if cfg.Presence != "" {
			if err := session.SetPresence(cfg.Presence); err != nil {
				log.Printf("[Session] set presence failed: %v", err)
			}
		}

		log.Printf("[Session] connected to %s, press Ctrl-C to quit", cfg.Organization)
		return session.RunForever(ctx)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <forum|team|user> <id> <text>",
	Short: "Post a chat message over the data API",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		client, _, err := newClient(cfg)
		if err != nil {
			return err
		}

		chatType, err := entityType(args[0])
		if err != nil {
			return err
		}
		chatID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chat id %q", args[1])
		}

		if err := client.SendChatMessage(cmd.Context(), chatType, chatID, args[2]); err != nil {
			return err
		}
		fmt.Println("Message sent")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list <users|forums|teams>",
	Short: "List organization entities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		client, storage, err := newClient(cfg)
		if err != nil {
			return err
		}
		if closer, ok := storage.(interface{ Close() error }); ok {
			defer closer.Close()
		}

		ctx := cmd.Context()
		switch args[0] {
		case "users":
			users, err := client.Users(ctx)
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Printf("%d\t%s\t%s\n", u.ID, u.Username, u.DisplayName)
			}
		case "forums":
			forums, err := client.Forums(ctx)
			if err != nil {
				return err
			}
			for _, f := range forums {
				fmt.Printf("%d\t%s\t%s\n", f.ID, f.Nickname, f.Name)
			}
		case "teams":
			teams, err := client.Teams(ctx)
			if err != nil {
				return err
			}
			for _, tm := range teams {
				fmt.Printf("%d\t%s\t%s\n", tm.ID, tm.Nickname, tm.Name)
			}
		default:
			return fmt.Errorf("unknown entity kind %q", args[0])
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ryver %s\n", version.Full())
		fmt.Printf("  go: %s\n", version.GoVersion)
		fmt.Printf("  built: %s\n", version.BuildDate)
	},
}

// newClient builds the data API client from config, attaching the configured
// cache backend. The returned storage is non-nil only for backends that need
// closing.
func newClient(cfg *config.Config) (*api.Client, cache.Storage, error) {
	client := api.NewClient(cfg.Organization, api.Credentials{
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
		Token:    cfg.Auth.Token,
	})

	var storage cache.Storage
	switch cfg.Cache.Backend {
	case "", "file":
		dir := cfg.Cache.Dir
		if dir == "" {
			dir = "./cache"
		}
		storage = cache.NewFileStorage(dir, "ryver_")
	case "sqlite":
		path := cfg.Cache.Path
		if path == "" {
			path = "ryver.db"
		}
		s, err := cache.NewSQLiteStorage(path)
		if err != nil {
			return nil, nil, err
		}
		storage = s
	case "none":
	}
	if storage != nil {
		client.SetCache(storage)
	}
	return client, storage, nil
}

func entityType(kind string) (string, error) {
	switch kind {
	case "forum":
		return api.TypeForums, nil
	case "team":
		return api.TypeTeams, nil
	case "user":
		return api.TypeUsers, nil
	default:
		return "", fmt.Errorf("unknown chat type %q (want forum, team or user)", kind)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ryver.yaml", "path to configuration file")
	rootCmd.AddCommand(runCmd, sendCmd, listCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// RunForever reports why the session ended; a clean Ctrl-C shows
		// up as context.Canceled and is not an error worth a stack line.
		if err == context.Canceled {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
