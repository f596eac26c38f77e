// outcome-oracled publishes game outcomes to the on-chain oracle contract
// using a commit-reveal scheme. Configuration comes from the environment (a
// local .env file is honored); see the config package for the variable names.
package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lalalune/babylon-oracle/chain"
	"github.com/lalalune/babylon-oracle/commitstore"
	"github.com/lalalune/babylon-oracle/config"
	"github.com/lalalune/babylon-oracle/db"
	"github.com/lalalune/babylon-oracle/logger"
	"github.com/lalalune/babylon-oracle/oracle"
	"github.com/lalalune/babylon-oracle/secrets"
)

func main() {
	root := &cobra.Command{
		Use:           "outcome-oracled",
		Short:         "Commit-reveal oracle publisher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		healthCmd(),
		statsCmd(),
		pendingCmd(),
		gameInfoCmd(),
		txStatusCmd(),
		commitCmd(),
		revealCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runtime bundles everything a command needs; close it when done.
type runtime struct {
	svc      *oracle.Service
	client   *chain.Client
	database *db.DB
}

func (r *runtime) close() {
	r.client.Close()
	_ = r.database.Close()
}

func setup() (*runtime, error) {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	database, err := db.OpenFileDB(cfg.DBDir, cfg.DBFile, true)
	if err != nil {
		return nil, err
	}

	cipher, err := secrets.NewCipherFromHex(cfg.EncryptionKeyHex)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	client, err := chain.NewClient(cfg, log)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	cs := commitstore.NewStore(database.Client(), cipher, log)
	svc := oracle.NewService(cs, client, database.Client(), log)

	return &runtime{svc: svc, client: client, database: database}, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check contract code, signer balance, and read path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			status := rt.svc.HealthCheck(cmd.Context())
			if err := printJSON(status); err != nil {
				return err
			}
			if !status.Healthy {
				return fmt.Errorf("unhealthy: %s", status.Error)
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Read the contract's commit/reveal counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			stats, err := rt.svc.GetStatistics(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List locally stored commitments awaiting reveal",
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			pending, err := rt.svc.ListPendingCommitments()
			if err != nil {
				return err
			}

			// salts stay out of the terminal
			type row struct {
				QuestionID string `json:"questionId"`
				SessionID  string `json:"sessionId"`
				Commitment string `json:"commitment"`
				CreatedAt  string `json:"createdAt"`
			}
			rows := make([]row, 0, len(pending))
			for _, p := range pending {
				rows = append(rows, row{
					QuestionID: p.QuestionID,
					SessionID:  p.SessionID,
					Commitment: p.Commitment,
					CreatedAt:  p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				})
			}
			return printJSON(rows)
		},
	}
}

func gameInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "game-info <session-id>",
		Short: "Read a committed game's state from the contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			info, err := rt.svc.GetGameInfo(cmd.Context(), ethcommon.HexToHash(args[0]))
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
}

func txStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tx-status <tx-hash>",
		Short: "Re-check a submitted transaction by hash",
		Long: "Re-check a submitted transaction by hash. Use after a confirmation " +
			"timeout: the transaction may have confirmed after the wait gave up, " +
			"in which case it must not be re-submitted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			found, confirmations, status, err := rt.client.TransactionStatus(cmd.Context(), ethcommon.HexToHash(args[0]))
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"found":         found,
				"confirmations": confirmations,
				"reverted":      found && status == 0,
			})
		},
	}
}

func commitCmd() *cobra.Command {
	var (
		questionID     string
		questionNumber uint64
		question       string
		category       string
		outcome        bool
	)

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit a game outcome on chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := rt.svc.CommitGame(cmd.Context(), oracle.GameInput{
				QuestionID:     questionID,
				QuestionNumber: questionNumber,
				Question:       question,
				Category:       category,
				Outcome:        outcome,
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&questionID, "question-id", "", "unique question identifier")
	cmd.Flags().Uint64Var(&questionNumber, "question-number", 0, "sequential question number")
	cmd.Flags().StringVar(&question, "question", "", "question text")
	cmd.Flags().StringVar(&category, "category", "", "question category")
	cmd.Flags().BoolVar(&outcome, "outcome", false, "decided outcome")
	_ = cmd.MarkFlagRequired("question-id")
	return cmd
}

func revealCmd() *cobra.Command {
	var (
		questionID  string
		outcome     bool
		winners     []string
		totalPayout string
	)

	cmd := &cobra.Command{
		Use:   "reveal",
		Short: "Reveal a previously committed outcome",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.close()

			in := oracle.RevealInput{
				QuestionID: questionID,
				Outcome:    outcome,
			}
			for _, w := range winners {
				in.Winners = append(in.Winners, ethcommon.HexToAddress(strings.TrimSpace(w)))
			}
			if totalPayout != "" {
				payout, ok := new(big.Int).SetString(totalPayout, 10)
				if !ok {
					return fmt.Errorf("invalid --total-payout %q", totalPayout)
				}
				in.TotalPayout = payout
			}

			result, err := rt.svc.RevealGame(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&questionID, "question-id", "", "question to reveal")
	cmd.Flags().BoolVar(&outcome, "outcome", false, "outcome to reveal")
	cmd.Flags().StringSliceVar(&winners, "winners", nil, "winner addresses")
	cmd.Flags().StringVar(&totalPayout, "total-payout", "", "total payout in wei")
	_ = cmd.MarkFlagRequired("question-id")
	return cmd
}
