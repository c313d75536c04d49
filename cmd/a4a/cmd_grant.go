package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// grantCmd claims the one-time starter token bonus
var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Claim the one-time starter token bonus",
	Long: `Requests the gateway's starter token grant for this client. Once the
gateway has answered, the verdict is recorded in the local state file
and repeated invocations make no further network calls.`,
	RunE: runGrant,
}

func runGrant(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	grant, err := a.session.ClaimStarterOnce(cmd.Context())
	if err != nil {
		// The claim stays open; the next invocation retries.
		return fmt.Errorf("starter grant request failed: %w", err)
	}

	switch {
	case grant == nil:
		fmt.Println("Starter tokens were already claimed from this machine.")
	case grant.Granted:
		if grant.Message != "" {
			fmt.Println(grant.Message)
		} else {
			fmt.Printf("Granted %d starter tokens. Welcome to ai4all!\n", grant.Amount)
		}
	default:
		reason := grant.Reason
		if reason == "" {
			reason = "no reason given"
		}
		fmt.Printf("Starter grant not issued: %s\n", reason)
	}
	return nil
}
