package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/events"
)

// seenWindow bounds the ids remembered to suppress replays after a cursor
// falls out of the server's buffer
const seenWindow = 4 * events.DefaultCapacity

// NewTailCommand creates the tail command
func NewTailCommand(root *RootOptions) *cobra.Command {
	var (
		baseURL  string
		interval time.Duration
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the reconciliation event feed of a running server",
		Long: `Poll /api/events and print every new event.

Examples:
  reconciler tail --url http://localhost:8080
  reconciler tail --once`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := newTailer(baseURL, cmd.OutOrStdout())
			if once {
				_, err := t.poll(cmd.Context())
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return t.follow(ctx, interval)
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "base URL of the reconciler")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	cmd.Flags().BoolVar(&once, "once", false, "poll a single time and exit")
	return cmd
}

type tailer struct {
	client  *http.Client
	baseURL string
	out     io.Writer

	cursor string
	seen   map[string]struct{}
	order  []string
}

func newTailer(baseURL string, out io.Writer) *tailer {
	return &tailer{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		out:     out,
		seen:    make(map[string]struct{}),
	}
}

func (t *tailer) follow(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := t.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(t.out, "poll failed: %v\n", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// poll fetches events after the cursor, prints the unseen ones and advances
// the cursor to the newest event returned.
func (t *tailer) poll(ctx context.Context) (int, error) {
	u := t.baseURL + "/api/events"
	if t.cursor != "" {
		u += "?after=" + url.QueryEscape(t.cursor)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, u)
	}

	var body struct {
		Events []events.Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode events: %w", err)
	}

	printed := 0
	for _, ev := range body.Events {
		if t.markSeen(ev.ID) {
			continue
		}
		printEvent(t.out, ev)
		printed++
	}
	if n := len(body.Events); n > 0 {
		t.cursor = body.Events[n-1].ID
	}
	return printed, nil
}

// markSeen records id and reports whether it had been seen before
func (t *tailer) markSeen(id string) bool {
	if _, ok := t.seen[id]; ok {
		return true
	}
	t.seen[id] = struct{}{}
	t.order = append(t.order, id)
	if len(t.order) > seenWindow {
		delete(t.seen, t.order[0])
		t.order = t.order[1:]
	}
	return false
}

func printEvent(w io.Writer, ev events.Event) {
	line := fmt.Sprintf("%s  %-7s  %s: %s",
		ev.Timestamp.Local().Format("15:04:05"), strings.ToUpper(string(ev.Kind)), ev.Title, ev.Message)
	if ev.UnitName != "" {
		line += "  [" + ev.UnitName + "]"
	}
	fmt.Fprintln(w, line)
	if ev.Details != "" {
		fmt.Fprintf(w, "          %s\n", ev.Details)
	}
}
