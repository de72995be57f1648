package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v2"

	"github.com/Black-And-White-Club/judgeboard/client/api"
	"github.com/Black-And-White-Club/judgeboard/client/console"
	"github.com/Black-And-White-Club/judgeboard/client/offlinequeue"
	"github.com/Black-And-White-Club/judgeboard/client/savecoord"
)

func main() {
	app := &cli.App{
		Name:  "judge",
		Usage: "score entries from the terminal, offline-safe",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8080", EnvVars: []string{"JUDGEBOARD_SERVER"}, Usage: "API base URL"},
			&cli.StringFlag{Name: "token", EnvVars: []string{"JUDGEBOARD_TOKEN"}, Usage: "bearer token issued for this judge"},
			&cli.StringFlag{Name: "event", Required: true, EnvVars: []string{"JUDGEBOARD_EVENT"}, Usage: "event ID"},
			&cli.StringFlag{Name: "judge", Required: true, EnvVars: []string{"JUDGEBOARD_JUDGE"}, Usage: "judge ID"},
			&cli.StringFlag{Name: "queue-db", Value: defaultQueuePath(), Usage: "offline queue file (.db for sqlite shared per session, .json for a single-session file, empty for memory)"},
			&cli.StringFlag{Name: "log-file", Value: "judge.log", Usage: "log file; the terminal belongs to the console"},
			&cli.IntFlag{Name: "max-score", Value: 10, Usage: "highest value a category accepts"},
			&cli.DurationFlag{Name: "flush-timeout", Value: 5 * time.Second, Usage: "how long quitting waits for saves"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func defaultQueuePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "judgeboard-queue.db"
	}
	return filepath.Join(dir, "judgeboard", "queue.db")
}

func run(c *cli.Context) error {
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	logFile, err := os.OpenFile(c.String("log-file"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("event_id", c.String("event")),
		slog.String("judge_id", c.String("judge")),
	)

	opts := []api.Option{}
	if token := c.String("token"); token != "" {
		opts = append(opts, api.WithToken(token))
	} else {
		opts = append(opts, api.WithIdentityHeaders(c.String("judge"), "judge"))
	}
	client := api.New(c.String("server"), opts...)

	store, err := openStore(ctx, c.String("queue-db"), offlinequeue.SessionKey(c.String("event"), c.String("judge")))
	if err != nil {
		return err
	}
	defer store.Close()

	apply := func(ctx context.Context, m offlinequeue.Mutation) error {
		_, err := client.SaveScores(ctx, m.EventID, m.EntryID, m.Values)
		return err
	}
	queue := offlinequeue.New(store, apply,
		offlinequeue.Config{MaxScore: c.Int("max-score")},
		offlinequeue.WithProbe(client.Ping),
		offlinequeue.WithRetryable(api.IsRetryable),
		offlinequeue.WithLogger(logger.With(slog.String("component", "offline_queue"))),
	)
	if err := queue.Load(ctx); err != nil {
		return err
	}

	coord := savecoord.NewCoordinator(logger.With(slog.String("component", "save_coordinator")))
	saver := savecoord.NewSaver(savecoord.SaverConfig{
		EventID:  c.String("event"),
		JudgeID:  c.String("judge"),
		MaxScore: c.Int("max-score"),
	}, client, queue, coord, logger.With(slog.String("component", "saver")))

	unbridge := queue.Subscribe(func(ev offlinequeue.Event) {
		if ev.Kind == offlinequeue.EventSynced {
			coord.Notify(savecoord.Event{Kind: savecoord.EventSynced, EntityID: ev.EntryID})
		}
	})
	defer unbridge()

	queue.Start(ctx)

	ui := console.New(console.Deps{
		Server:       client,
		Saver:        saver,
		Coordinator:  coord,
		Queue:        queue,
		Logger:       logger.With(slog.String("component", "console")),
		EventID:      c.String("event"),
		JudgeID:      c.String("judge"),
		MaxScore:     c.Int("max-score"),
		FlushTimeout: c.Duration("flush-timeout"),
	})
	defer ui.Close()

	logger.Info("Judge console starting", slog.Int("queued", queue.Len()))
	_, runErr := tea.NewProgram(ui, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx)).Run()

	// The console flushes on quit; a crash or signal still gets one chance.
	saver.Flush()
	if err := coord.WaitForAllSaves(c.Duration("flush-timeout")); err != nil {
		logger.Warn("Exiting with saves in flight", slog.Any("error", err))
	}
	saver.Close()
	queue.Close()

	if pending := queue.Len(); pending > 0 {
		fmt.Fprintf(os.Stderr, "%d score write(s) saved locally; they will sync on next start\n", pending)
	}
	logger.Info("Judge console stopped", slog.Int("queued", queue.Len()))

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}

func openStore(ctx context.Context, path, key string) (offlinequeue.Store, error) {
	switch {
	case path == "":
		return offlinequeue.NewMemoryStore(), nil
	case strings.HasSuffix(path, ".json"):
		return offlinequeue.NewFileStore(path), nil
	default:
		store, err := offlinequeue.OpenSQLiteStore(ctx, path, key)
		if err != nil {
			return nil, fmt.Errorf("failed to open offline queue: %w", err)
		}
		return store, nil
	}
}
