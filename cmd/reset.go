package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var forceReset bool

var resetCmd = &cobra.Command{
	Use:   "reset <session-id>",
	Short: "Delete the history of a session",
	Long: `Deletes every observation of a session so the next step starts from
scratch. Required after changing the parameter space of a session.`,
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&forceReset, "force", "f", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	ctx := commandContext(cmd)

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	pub := openPublisher()
	defer pub.Close()

	t, err := newTuner(st, nil, pub)
	if err != nil {
		return err
	}

	if !forceReset {
		fmt.Printf("Delete all observations of session %s? [y/N]: ", sessionID)
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := t.Reset(ctx, sessionID); err != nil {
		return err
	}
	fmt.Printf("Session %s reset.\n", sessionID)
	return nil
}
