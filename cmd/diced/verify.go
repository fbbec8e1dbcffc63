package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"fairdice-backend/internal/fairness"
)

// verifyCmd recomputes a roll offline, without a store or a server.
func verifyCmd() *cobra.Command {
	var (
		serverSeed string
		hash       string
		clientSeed string
		algorithm  string
		nonce      uint64
		target     int
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute a roll from a revealed server seed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if serverSeed == "" || clientSeed == "" {
				return errors.New("--server-seed and --client-seed are required")
			}

			hasher, err := fairness.Lookup(algorithm)
			if err != nil {
				return err
			}

			v, err := fairness.Verify(hasher, serverSeed, hash, clientSeed, nonce)
			if err != nil {
				return err
			}

			out := map[string]any{"verification": v}
			if target > 0 {
				out["won"] = v.Result < target
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if !v.HashMatches {
				return errors.New("server seed does not match the committed hash")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverSeed, "server-seed", "", "revealed server seed")
	cmd.Flags().StringVar(&hash, "hash", "", "committed server seed hash to check against")
	cmd.Flags().StringVar(&clientSeed, "client-seed", "", "client seed")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "bet nonce")
	cmd.Flags().StringVar(&algorithm, "algorithm", "sha256", "hash algorithm (sha256 or sha512)")
	cmd.Flags().IntVar(&target, "target", 0, "bet target, reports whether the roll won")

	return cmd
}
