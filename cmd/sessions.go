package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/bayestune/internal/server"
	"github.com/cwbudde/bayestune/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage optimization sessions",
	Long: `Manage optimization sessions including creating identifiers, listing
stored sessions and cleaning old ones.`,
}

var newSessionCmd = &cobra.Command{
	Use:   "new",
	Short: "Print a fresh session ID",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(server.NewSessionID())
	},
}

var listSessionsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored sessions",
	Long:  `Display all sessions with observation count, best objective, last update and, for the filesystem store, size on disk.`,
	RunE:  runListSessions,
}

var cleanSessionsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old sessions",
	Long: `Delete sessions based on retention policy.
You can keep only the N most recently updated sessions or delete sessions not updated for N days.`,
	RunE: runCleanSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)

	sessionsCmd.AddCommand(newSessionCmd)
	sessionsCmd.AddCommand(listSessionsCmd)
	sessionsCmd.AddCommand(cleanSessionsCmd)

	cleanSessionsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the N most recently updated sessions (0 = keep all)")
	cleanSessionsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete sessions not updated for N days (0 = no age limit)")
	cleanSessionsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListSessions(cmd *cobra.Command, args []string) error {
	st, err := openStore(commandContext(cmd))
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.List(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	sessionsDir := ""
	if fs, ok := st.(*store.FSStore); ok {
		sessionsDir = filepath.Join(fs.BaseDir(), "sessions")
	}
	printSessions(os.Stdout, infos, sessionsDir)

	fmt.Printf("\nTotal sessions: %d\n", len(infos))
	return nil
}

func runCleanSessions(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	ctx := commandContext(cmd)
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No sessions to clean.")
		return nil
	}

	toDelete := selectSessionsForDeletion(infos, keepLast, olderThanDays, time.Now())

	if len(toDelete) == 0 {
		fmt.Println("No sessions match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d session(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Printf("  - %s (%d observations, %s)\n",
			info.SessionID,
			info.Observations,
			info.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := clearSession(cmd, st, info.SessionID); err != nil {
			slog.Error("Failed to delete session", "session", info.SessionID, "error", err)
			failed++
		} else {
			slog.Info("Deleted session", "session", info.SessionID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d session(s), %d failed.\n", deleted, failed)
	return nil
}

// printSessions writes the session table. Sizes are shown when
// sessionsDir points at the filesystem store's session directories.
func printSessions(out io.Writer, infos []store.SessionInfo, sessionsDir string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tUPDATED\tOBSERVATIONS\tBEST\tSIZE")
	fmt.Fprintln(w, "----------\t-------\t------------\t----\t----")

	for _, info := range infos {
		sizeStr := "-"
		if sessionsDir != "" {
			if size, err := getDirSize(filepath.Join(sessionsDir, info.SessionID)); err == nil {
				sizeStr = formatBytes(size)
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%.6f\t%s\n",
			info.SessionID,
			info.UpdatedAt.Format("2006-01-02 15:04:05"),
			info.Observations,
			info.BestY,
			sizeStr,
		)
	}

	w.Flush()
}

// clearSession deletes a session under its lock so that a concurrent step
// does not interleave.
func clearSession(cmd *cobra.Command, st store.Store, sessionID string) error {
	ctx := commandContext(cmd)
	unlock, err := st.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	return st.Clear(ctx, sessionID)
}

// selectSessionsForDeletion applies the retention policy. Sessions not
// updated within olderThanDays are selected, then the oldest beyond the
// keepLast most recently updated ones.
func selectSessionsForDeletion(infos []store.SessionInfo, keepLast int, olderThanDays int, now time.Time) []store.SessionInfo {
	var toDelete []store.SessionInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.UpdatedAt.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.SessionID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.SessionInfo, len(infos))
		copy(sorted, infos)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].UpdatedAt.Before(sorted[j].UpdatedAt)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.SessionID] {
				toDelete = append(toDelete, info)
				selected[info.SessionID] = true
			}
		}
	}

	return toDelete
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
