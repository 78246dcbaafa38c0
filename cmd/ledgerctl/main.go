// ledgerctl is the operator CLI for the HarvestLink escrow ledger.
// It talks to a running ledger service over its HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/harvestlink/escrow-ledger/pkg/client"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	ledgerURL string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "HarvestLink escrow ledger CLI",
	Long: `ledgerctl is the command-line interface for the HarvestLink escrow ledger.

It creates and releases escrow entries, inspects individual records, and
verifies the integrity of the hash chain.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.ledgerctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if ledgerURL == "" {
			ledgerURL = viper.GetString("ledger_url")
		}
		if ledgerURL == "" {
			ledgerURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.ledgerctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&ledgerURL, "ledger", "", "ledger service URL (default http://localhost:8080)")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(versionCmd)
}

func apiClient() *client.Client {
	return client.New(ledgerURL, client.WithTimeout(15*time.Second))
}

func ctx() context.Context {
	return context.Background()
}

// ── create ───────────────────────────────────────────────────────────────────

var (
	createFrom   int64
	createTo     int64
	createAmount string
	createDesc   string
	createMeta   []string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new escrow entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(createAmount)
		if err != nil {
			return fmt.Errorf("invalid --amount %q: %w", createAmount, err)
		}

		metadata := map[string]any{}
		for _, kv := range createMeta {
			k, v, found := strings.Cut(kv, "=")
			if !found {
				return fmt.Errorf("invalid --meta %q, expected key=value", kv)
			}
			metadata[k] = v
		}

		entry, err := apiClient().CreateEscrow(ctx(), client.CreateEscrowRequest{
			FromUserID:  createFrom,
			ToUserID:    createTo,
			Amount:      amount,
			Description: createDesc,
			Metadata:    metadata,
		})
		if err != nil {
			return err
		}
		return printJSON(entry)
	},
}

func init() {
	createCmd.Flags().Int64Var(&createFrom, "from", 0, "paying user id (required)")
	createCmd.Flags().Int64Var(&createTo, "to", 0, "receiving user id (required)")
	createCmd.Flags().StringVar(&createAmount, "amount", "", "escrow amount (required)")
	createCmd.Flags().StringVar(&createDesc, "description", "", "free-text description")
	createCmd.Flags().StringArrayVar(&createMeta, "meta", nil, "metadata key=value (repeatable)")
	_ = createCmd.MarkFlagRequired("from")
	_ = createCmd.MarkFlagRequired("to")
	_ = createCmd.MarkFlagRequired("amount")
}

// ── release ──────────────────────────────────────────────────────────────────

var (
	releaseTxHash string
	releaseNotes  string
)

var releaseCmd = &cobra.Command{
	Use:   "release <entry-id>",
	Short: "Release a pending escrow entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid entry id %q", args[0])
		}

		entry, err := apiClient().ReleaseEscrow(ctx(), id, client.ReleaseRequest{
			OnChainTxHash: releaseTxHash,
			ReleaseNotes:  releaseNotes,
		})
		if err != nil {
			return err
		}
		return printJSON(entry)
	},
}

func init() {
	releaseCmd.Flags().StringVar(&releaseTxHash, "tx-hash", "", "external on-chain transaction reference")
	releaseCmd.Flags().StringVar(&releaseNotes, "notes", "", "release notes")
}

// ── show ─────────────────────────────────────────────────────────────────────

var showCmd = &cobra.Command{
	Use:   "show <entry-id>",
	Short: "Show a single ledger entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid entry id %q", args[0])
		}
		entry, err := apiClient().Entry(ctx(), id)
		if err != nil {
			return err
		}
		return printJSON(entry)
	},
}

// ── chain ────────────────────────────────────────────────────────────────────

var (
	chainLimit  int
	chainOffset int
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Walk the ledger and verify every entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := apiClient().Chain(ctx(), chainLimit, chainOffset)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFROM\tTO\tAMOUNT\tSTATUS\tCONTENT\tLINK\tHASH")
		for _, b := range report.Blocks {
			fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%v\t%v\t%s…\n",
				b.Entry.ID, b.Entry.FromUserID, b.Entry.ToUserID,
				b.Entry.Amount, b.Entry.Status,
				b.ContentValid, b.LinkValid, b.Entry.Hash[:12],
			)
		}
		w.Flush()

		fmt.Printf("\ntotal blocks: %d  genesis: %v  chain integrity: %v\n",
			report.TotalBlocks, report.GenesisBlock, report.ChainIntegrity)
		if !report.ChainIntegrity {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	chainCmd.Flags().IntVar(&chainLimit, "limit", 0, "maximum entries to walk (0 = all)")
	chainCmd.Flags().IntVar(&chainOffset, "offset", 0, "entries to skip")
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <hash>",
	Short: "Verify a single entry by its content hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := apiClient().VerifyHash(ctx(), args[0])
		if err != nil {
			return err
		}
		if err := printJSON(result); err != nil {
			return err
		}
		if !result.IntegrityCheck {
			os.Exit(1)
		}
		return nil
	},
}

// ── user ─────────────────────────────────────────────────────────────────────

var (
	userDirection string
	userLimit     int
	userOffset    int
)

var userCmd = &cobra.Command{
	Use:   "user <user-id>",
	Short: "List a user's escrow entries with status stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		ledger, err := apiClient().UserLedger(ctx(), id, userDirection, userLimit, userOffset)
		if err != nil {
			return err
		}
		return printJSON(ledger)
	},
}

func init() {
	userCmd.Flags().StringVar(&userDirection, "direction", "all", "sent, received or all")
	userCmd.Flags().IntVar(&userLimit, "limit", 50, "maximum entries to return")
	userCmd.Flags().IntVar(&userOffset, "offset", 0, "entries to skip")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ledgerctl", version)
	},
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
