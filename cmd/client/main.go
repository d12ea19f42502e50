// Package main runs the FitVault client: an interactive shell over the
// local store, backup engine and sync queue.
package main

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/FitVault/internal/backup"
	"github.com/atinyakov/FitVault/internal/config"
	"github.com/atinyakov/FitVault/internal/events"
	"github.com/atinyakov/FitVault/internal/keys"
	"github.com/atinyakov/FitVault/internal/logger"
	"github.com/atinyakov/FitVault/internal/models"
	"github.com/atinyakov/FitVault/internal/remote"
	"github.com/atinyakov/FitVault/internal/store"
	"github.com/atinyakov/FitVault/internal/syncqueue"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

// promptPassphrase reads a passphrase from stdin, with the reason shown.
func promptPassphrase(reason string) (string, error) {
	fmt.Printf("Passphrase required (%s): ", reason)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// repl runs the interactive shell loop, accepting commands to manage
// records, backups and the sync queue.
func repl(st *store.LocalStore, engine *backup.Engine, queue *syncqueue.Queue, km *keys.Manager) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("fitvault> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Println("Available commands: help, log <workout-id> <date>, list <collection>,")
			fmt.Println("  backup [compress] [encrypt], backups, restore <id> [merge],")
			fmt.Println("  export <id> <bundle|raw|csv|markdown> <file>, import <format> <file>,")
			fmt.Println("  sync, retry, online, offline, remember <on|off>, reset <collection>, exit")
		case "log":
			if len(args) < 3 {
				fmt.Println("Usage: log <workout-id> <date>")
				continue
			}
			entry := &models.LogEntry{WorkoutID: args[1], Date: args[2]}
			if err := st.UpsertRecord(models.Logs, entry); err != nil {
				fmt.Println("log failed:", err)
				continue
			}
			payload, _ := json.Marshal(entry)
			if _, err := queue.Enqueue("upsert", models.Logs, payload); err != nil {
				fmt.Println("enqueue failed:", err)
			}
			fmt.Println("Logged", entry.ID)
		case "list":
			if len(args) < 2 {
				fmt.Println("Usage: list <collection>")
				continue
			}
			for _, rec := range st.Get(models.Collection(args[1])) {
				b, _ := json.Marshal(rec)
				fmt.Println(string(b))
			}
		case "backup":
			opts := backup.CreateOptions{}
			for _, a := range args[1:] {
				switch a {
				case "compress":
					opts.Compress = true
				case "encrypt":
					opts.Encrypt = true
				}
			}
			bundle, err := engine.Create(opts)
			if err != nil {
				fmt.Println("backup failed:", err)
				continue
			}
			fmt.Println("Created bundle", bundle.Metadata.ID)
		case "backups":
			metas, err := engine.List()
			if err != nil {
				fmt.Println("list failed:", err)
				continue
			}
			for _, m := range metas {
				fmt.Printf("%s  %s  compressed=%v encrypted=%v\n",
					m.ID, m.Timestamp.Format(time.RFC3339), m.Compressed, m.Encrypted)
			}
		case "restore":
			if len(args) < 2 {
				fmt.Println("Usage: restore <id> [merge]")
				continue
			}
			mode := backup.Overwrite
			if len(args) > 2 && args[2] == "merge" {
				mode = backup.Merge
			}
			if err := engine.Restore(args[1], backup.RestoreOptions{Mode: mode}); err != nil {
				fmt.Println("restore failed:", err)
				continue
			}
			fmt.Println("Restored", args[1])
		case "export":
			if len(args) < 4 {
				fmt.Println("Usage: export <id> <bundle|raw|csv|markdown> <file>")
				continue
			}
			data, err := engine.Export(args[1], backup.Format(args[2]))
			if err != nil {
				fmt.Println("export failed:", err)
				continue
			}
			if err := os.WriteFile(args[3], data, 0o600); err != nil {
				fmt.Println("write failed:", err)
				continue
			}
			fmt.Println("Exported to", args[3])
		case "import":
			if len(args) < 3 {
				fmt.Println("Usage: import <format> <file>")
				continue
			}
			data, err := os.ReadFile(args[2])
			if err != nil {
				fmt.Println("read failed:", err)
				continue
			}
			id, err := engine.Import(data, backup.Format(args[1]))
			if err != nil {
				fmt.Println("import failed:", err)
				continue
			}
			fmt.Println("Imported bundle", id)
		case "sync":
			if _, err := queue.Drain(ctx); err != nil {
				fmt.Println("sync failed:", err)
				continue
			}
			entries, _ := queue.Entries()
			fmt.Printf("%d entries remaining\n", len(entries))
		case "retry":
			if err := queue.RetryFailed(ctx); err != nil {
				fmt.Println("retry failed:", err)
			}
		case "online":
			queue.SetOnline(true)
		case "offline":
			queue.SetOnline(false)
		case "remember":
			if len(args) < 2 || (args[1] != "on" && args[1] != "off") {
				fmt.Println("Usage: remember <on|off>")
				continue
			}
			if err := km.SetRemember(args[1] == "on"); err != nil {
				fmt.Println("remember failed:", err)
			}
		case "reset":
			if len(args) < 2 {
				fmt.Println("Usage: reset <collection>")
				continue
			}
			if err := st.Reset(models.Collection(args[1])); err != nil {
				fmt.Println("reset failed:", err)
			}
		case "exit":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func main() {
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("info"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	kv, err := store.OpenKV(store.KVConfig{
		Path:       options.StoragePath,
		SyncWrites: true,
	})
	if err != nil {
		zapLogger.Fatal("cannot open key-value area", zap.Error(err))
	}

	st, err := store.New(kv, store.Options{
		QuotaBytes:   options.QuotaBytes,
		LogRetention: time.Duration(options.LogRetentionDays) * 24 * time.Hour,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot init local store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	bus := events.NewBus()
	bus.Subscribe(func(ev events.Event) {
		zapLogger.Debug("state change", zap.String("path", ev.Path), zap.Any("value", ev.Value))
	})

	km := keys.NewManager(promptPassphrase, st, zapLogger)
	engine := backup.NewEngine(st, km, bus, options.MaxBackups, zapLogger)

	uploader := &remote.HTTPUploader{
		Client:  &http.Client{Timeout: 15 * time.Second},
		BaseURL: options.RemoteURL,
	}
	queue := syncqueue.New(st, uploader, bus, options.MaxRetries, options.DrainInterval, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx)
	queue.SetOnline(true)

	repl(st, engine, queue, km)
}
