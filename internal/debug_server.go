package internal

import (
	"channel-chat/repositories"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

const maxInspectRows = 500

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix    string
	Prefixes  []string
	Items     []InspectRow
	Truncated bool
	Stats     []Stat
}

type Stat struct {
	Name  string
	Value any
}

// StartDebugServer serves a read-only view of the store on endpoint.
// The caller owns the returned server and shuts it down.
func StartDebugServer(log *slog.Logger, db *badger.DB, port int, endpoint string,
	mapper RowMapper, statsProvider StatsProvider) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           NewInspectHandler(log, db, endpoint, mapper, statsProvider),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Debug inspector listening", "url", fmt.Sprintf("http://localhost:%d%s", port, endpoint))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Debug inspector stopped", "error", err)
		}
	}()
	return server
}

func NewInspectHandler(log *slog.Logger, db *badger.DB, endpoint string,
	mapper RowMapper, statsProvider StatsProvider) http.Handler {
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))
	if mapper == nil {
		mapper = DefaultMapper
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+endpoint, func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = repositories.PrefixChannel
		}
		data := PageData{
			Prefix: prefix,
			Prefixes: []string{
				repositories.PrefixChannel,
				repositories.PrefixChannelName,
				repositories.PrefixMessage,
				repositories.PrefixUser,
				repositories.PrefixUserEmail,
			},
		}
		if statsProvider != nil {
			data.Stats = sortedStats(statsProvider())
		}

		err := db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				if len(data.Items) == maxInspectRows {
					data.Truncated = true
					return nil
				}
				item := it.Item()
				if err := item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Error("Inspector scan failed", "prefix", prefix, "error", err)
			http.Error(w, "Server error", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	return mux
}

// DefaultMapper decodes the chat records stored in Badger.
func DefaultMapper(key string, val []byte) InspectRow {
	entry := repositories.Describe(key, val)
	row := InspectRow{
		Key:       key,
		Type:      entry.Kind,
		Timestamp: "--:--:--",
		EntityID:  entry.ID,
		Detail:    entry.Detail,
	}
	if !entry.Timestamp.IsZero() {
		row.Timestamp = entry.Timestamp.Format(time.DateTime)
	}
	return row
}

func sortedStats(stats map[string]any) []Stat {
	out := make([]Stat, 0, len(stats))
	for name, value := range stats {
		out = append(out, Stat{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
