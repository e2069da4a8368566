package main

import (
	"channel-chat/internal"
	"channel-chat/repositories"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	_ = godotenv.Load()
	defaultPath := os.Getenv("BADGER_FILEPATH")
	if defaultPath == "" {
		defaultPath = "./data/badger"
	}
	dbPath := flag.String("db", defaultPath, "Path to badger DB")
	prefix := flag.String("prefix", repositories.PrefixChannel, "Prefix to scan (channel:, channel_name:, msg:, user:, user_email:)")
	limit := flag.Int("limit", 200, "Maximum number of rows")
	serve := flag.Bool("serve", false, "Serve the HTML inspector instead of printing a table")
	port := flag.Int("port", 8081, "Inspector port with -serve")
	flag.Parse()

	// BypassLockGuard lets the inspector open a store held by a running server.
	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	if *serve {
		serveInspector(db, *port)
		return
	}

	count, err := printTable(os.Stdout, db, *prefix, *limit)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(color.New(color.FgGreen, color.OpBold).Render(fmt.Sprintf("%d entries under %q", count, *prefix)))
}

func printTable(out io.Writer, db *badger.DB, prefix string, limit int) (int, error) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	var count int
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes) && count < limit; it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				entry := repositories.Describe(string(item.Key()), val)
				timestamp := "--"
				if !entry.Timestamp.IsZero() {
					timestamp = entry.Timestamp.Format(time.DateTime)
				}
				table.Append([]string{entry.Key, entry.Kind, timestamp, entry.ID, entry.Detail})
				return nil
			})
			if err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	table.Render()
	return count, nil
}

func serveInspector(db *badger.DB, port int) {
	stats := func() map[string]any {
		return map[string]any{
			"status": "read-only viewer",
			"time":   time.Now().Format(time.RFC822),
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := internal.StartDebugServer(logs.GetLoggerFromString("INFO"), db, port, "/inspect", internal.DefaultMapper, stats)
	defer server.Close()
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(fmt.Sprintf("Viewer started at http://localhost:%d/inspect", port)))
	<-ctx.Done()
}
