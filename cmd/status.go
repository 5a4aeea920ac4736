package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/bayestune/internal/store"
	"github.com/cwbudde/bayestune/internal/tuner"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show the state of a session",
	Long: `Shows loop state, observation count and best observation of a session.
Reads the local store unless --server points at a running bayestune serve.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "List the observations of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "", "Server URL, e.g. http://localhost:8080")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	var status *tuner.Status
	var err error
	if serverURL != "" {
		status, err = fetchStatus(serverURL, sessionID)
	} else {
		status, err = localStatus(cmd, sessionID)
	}
	if err != nil {
		return err
	}

	printStatus(os.Stdout, status)
	return nil
}

func localStatus(cmd *cobra.Command, sessionID string) (*tuner.Status, error) {
	ctx := commandContext(cmd)
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	t, err := newTuner(st, nil, nil)
	if err != nil {
		return nil, err
	}
	return t.Status(ctx, sessionID)
}

func fetchStatus(baseURL, sessionID string) (*tuner.Status, error) {
	url := fmt.Sprintf("%s/api/v1/sessions/%s", strings.TrimRight(baseURL, "/"), sessionID)
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status tuner.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &status, nil
}

func printStatus(w io.Writer, status *tuner.Status) {
	fmt.Fprintf(w, "Session: %s\n", status.SessionID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintf(w, "Observations: %d / %d\n", status.Observations, status.MaxIterations)
	if !status.SpaceMatches {
		fmt.Fprintln(w, "Warning: history was recorded for a different parameter space; reset the session")
	}
	if status.Best != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Best:")
		fmt.Fprintf(w, "  Params: %v\n", status.Best.X)
		fmt.Fprintf(w, "  Objective: %.6f\n", status.Best.Y)
		fmt.Fprintf(w, "  Recorded: %s\n", status.Best.RecordedAt.Format("2006-01-02 15:04:05"))
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	history, err := st.Load(ctx, args[0])
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("No observations recorded.")
		return nil
	}

	printHistory(os.Stdout, history)
	return nil
}

func printHistory(out io.Writer, history []store.Observation) {
	best := store.BestIndex(history)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tRECORDED\tPARAMS\tOBJECTIVE\tMANUAL\tAUTO\t")
	for i, o := range history {
		marker := ""
		if i == best {
			marker = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%v\t%.6f%s\t%v\t%v\t\n",
			i+1,
			o.RecordedAt.Format("2006-01-02 15:04:05"),
			o.X,
			o.Y, marker,
			o.Manual,
			o.Auto,
		)
	}
	w.Flush()
}
