package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ansuz/internal"
	"github.com/starford/ansuz/internal/catalog"
	"github.com/starford/ansuz/internal/filing"
	pkgconfig "github.com/starford/ansuz/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// withStack runs a one-shot command over a fully wired curator stack.
// Logs go to stderr so stdout carries only the command output.
func withStack(cmd *cli.Command, fn func(*internal.Stack) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(cfg, os.Stderr)

	stack, err := internal.NewStack(cfg, logger, false)
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := catalog.Sync(stack.DB, stack.Store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return fn(stack)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func captureAction(ctx context.Context, cmd *cli.Command) error {
	text := strings.Join(cmd.Args().Slice(), " ")
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("nothing to capture: pass text as arguments or on stdin")
	}
	return withStack(cmd, func(stack *internal.Stack) error {
		path, err := stack.Service.Capture(ctx, text, "cli")
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	})
}

func analyzeAction(ctx context.Context, cmd *cli.Command) error {
	return withStack(cmd, func(stack *internal.Stack) error {
		results, err := stack.Service.AnalyzeInbox(ctx, int(cmd.Int("limit")))
		if err != nil {
			return err
		}
		return printJSON(results)
	})
}

func fileAction(ctx context.Context, cmd *cli.Command) error {
	return withStack(cmd, func(stack *internal.Stack) error {
		res, err := stack.Service.FileInbox(ctx, filing.Options{
			Limit:         int(cmd.Int("limit")),
			MinConfidence: cmd.Float("confidence"),
			DryRun:        cmd.Bool("dry-run"),
		})
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func undoAction(ctx context.Context, cmd *cli.Command) error {
	return withStack(cmd, func(stack *internal.Stack) error {
		res, err := stack.Service.Undo(ctx, cmd.Args().First())
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func sessionsAction(_ context.Context, cmd *cli.Command) error {
	return withStack(cmd, func(stack *internal.Stack) error {
		return printJSON(stack.Service.Sessions(int(cmd.Int("limit"))))
	})
}

func statsAction(ctx context.Context, cmd *cli.Command) error {
	return withStack(cmd, func(stack *internal.Stack) error {
		stats, err := stack.Service.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)
	})
}

func mcpAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(cfg)
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
	limitFlag := &cli.IntFlag{
		Name:  "limit",
		Usage: "Max notes to process (0 for default)",
	}

	cmd := &cli.Command{
		Name:   "ansuz",
		Usage:  "Personal knowledge-base curator: capture chat notes, classify them with AI, file them into a Markdown vault",
		Action: serveAction,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the API server, watcher, bot, and scheduler",
				Flags:  []cli.Flag{configFlag},
				Action: serveAction,
			},
			{
				Name:      "capture",
				Usage:     "Capture text into the inbox (arguments or stdin)",
				ArgsUsage: "[text...]",
				Flags:     []cli.Flag{configFlag},
				Action:    captureAction,
			},
			{
				Name:   "analyze",
				Usage:  "Run AI analysis on unanalyzed inbox notes",
				Flags:  []cli.Flag{configFlag, limitFlag},
				Action: analyzeAction,
			},
			{
				Name:  "file",
				Usage: "File analyzed inbox notes into their suggested folders",
				Flags: []cli.Flag{configFlag, limitFlag,
					&cli.FloatFlag{
						Name:  "confidence",
						Usage: "Confidence threshold 0..1 (0 for default)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Report the plan without moving anything",
					},
				},
				Action: fileAction,
			},
			{
				Name:      "undo",
				Usage:     "Undo a filing session (latest when omitted)",
				ArgsUsage: "[session-id]",
				Flags:     []cli.Flag{configFlag},
				Action:    undoAction,
			},
			{
				Name:   "sessions",
				Usage:  "List recent filing sessions",
				Flags:  []cli.Flag{configFlag, limitFlag},
				Action: sessionsAction,
			},
			{
				Name:   "stats",
				Usage:  "Show curator statistics",
				Flags:  []cli.Flag{configFlag},
				Action: statsAction,
			},
			{
				Name:   "mcp",
				Usage:  "Serve curator tools over MCP stdio",
				Flags:  []cli.Flag{configFlag},
				Action: mcpAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
