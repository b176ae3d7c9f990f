package cli

import (
	"fmt"

	"casino_ledger/internal/fairness"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().String("secret", "", "Revealed server secret")
	verifyCmd.Flags().String("seed", "", "Client seed")
	verifyCmd.Flags().Int64("sequence", 0, "Bet sequence number")
	verifyCmd.Flags().Float64("edge", 0.03, "House edge the bet was settled with")
	_ = verifyCmd.MarkFlagRequired("secret")
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute a settled outcome from its revealed inputs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		seed, _ := cmd.Flags().GetString("seed")
		sequence, _ := cmd.Flags().GetInt64("sequence")
		edge, _ := cmd.Flags().GetFloat64("edge")

		res, err := fairness.Verify(fairness.VerifyRequest{
			ServerSecret: secret,
			ClientSeed:   seed,
			Sequence:     sequence,
			HouseEdge:    edge,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "commitment_hash: %s\n", res.Commitment)
		fmt.Fprintf(out, "outcome_value:   %s\n", res.OutcomeValue.StringFixed(2))
		return nil
	},
}
