package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/forkledger/internal/webhooks"
	"github.com/jmerrifield20/forkledger/pkg/client"
)

func init() {
	rootCmd.AddCommand(loginCmd, whoamiCmd, blockCmd, journalCmd, secretCmd)
	journalCmd.AddCommand(journalVerifyCmd, journalEntriesCmd)
}

// ── Auth ─────────────────────────────────────────────────────────────────────

var adminSecret string

var loginCmd = &cobra.Command{
	Use:   "login <address>",
	Short: "Obtain a caller token for an address and save it",
	Long: `login asks the server to issue a caller token bound to <address> and
writes it to --token-file. Issuing tokens requires the server's admin secret,
read from --admin-secret or FORKLEDGER_ADMIN_SECRET.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress("address", args[0])
		if err != nil {
			return err
		}
		secret := adminSecret
		if secret == "" {
			secret = viper.GetString("admin_secret")
		}
		if secret == "" {
			return fmt.Errorf("an admin secret is required (--admin-secret or FORKLEDGER_ADMIN_SECRET)")
		}

		c, err := newClient(client.WithAdminSecret(secret))
		if err != nil {
			return err
		}
		tok, err := c.IssueToken(context.Background(), addr)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		if err := client.SaveToken(tokenFile, tok); err != nil {
			return err
		}
		fmt.Printf("✓ Logged in as %s\n", tok.Address)
		fmt.Printf("  Token saved to %s (expires %s)\n", tokenFile, tok.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&adminSecret, "admin-secret", "", "Server admin secret")
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the address bound to the saved token",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := authedClient()
		if err != nil {
			return err
		}
		addr, err := c.WhoAmI(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}

// ── System ───────────────────────────────────────────────────────────────────

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Print the server's current block",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		b, err := c.CurrentBlock(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(b)
		return nil
	},
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a random webhook signing secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := webhooks.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Println(s)
		return nil
	},
}

// ── Journal ──────────────────────────────────────────────────────────────────

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show the journal length and root hash",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		o, err := c.Journal(context.Background())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(o)
		}
		fmt.Printf("Entries: %d\n", o.Entries)
		fmt.Printf("Root:    %s\n", o.Root)
		return nil
	},
}

var journalVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask the server to verify the journal hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.VerifyJournal(context.Background()); err != nil {
			return err
		}
		fmt.Println("✓ journal chain is intact")
		return nil
	},
}

var (
	entriesFrom  int
	entriesLimit int
)

var journalEntriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List journal entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		entries, err := c.JournalEntries(context.Background(), entriesFrom, entriesLimit)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(entries)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tBLOCK\tKIND\tLEDGER\tHASH")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", e.Index, e.Block, e.Kind, e.LedgerID, e.Hash[:12])
		}
		return w.Flush()
	},
}

func init() {
	journalEntriesCmd.Flags().IntVar(&entriesFrom, "from", 1, "First entry index")
	journalEntriesCmd.Flags().IntVar(&entriesLimit, "limit", 50, "Maximum entries to list")
}
