package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/jmerrifield20/forkledger/internal/rpc"
	"github.com/jmerrifield20/forkledger/pkg/address"
	"github.com/jmerrifield20/forkledger/pkg/client"
)

func init() {
	rootCmd.AddCommand(createCmd, listCmd, showCmd, clonesCmd, cloneCmd)
	rootCmd.AddCommand(balanceCmd, supplyCmd, allowanceCmd)
	rootCmd.AddCommand(transferCmd, transferFromCmd, approveCmd, mintCmd, burnCmd)
	rootCmd.AddCommand(setControllerCmd, transfersCmd, cloningCmd)
}

func printLedgers(ledgers []*client.Ledger) error {
	if outputFormat == "json" {
		return printJSON(ledgers)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSYMBOL\tPARENT\tFORK\tSUPPLY\tTRANSFERS\tCONTROLLER")
	for _, l := range ledgers {
		parent, fork := "-", "-"
		if l.IsClone() {
			parent, fork = l.ParentID, strconv.FormatUint(l.ForkBlock, 10)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			l.ID, l.Symbol, parent, fork, l.TotalSupply, l.TransfersEnabled, l.Controller)
	}
	return w.Flush()
}

func printLedger(l *client.Ledger) error {
	if outputFormat == "json" {
		return printJSON(l)
	}
	fmt.Printf("ID:          %s\n", l.ID)
	fmt.Printf("Name:        %s (%s, %d decimals)\n", l.Name, l.Symbol, l.Decimals)
	if l.IsClone() {
		fmt.Printf("Parent:      %s at block %d\n", l.ParentID, l.ForkBlock)
	}
	fmt.Printf("Created:     block %d\n", l.CreatedBlock)
	fmt.Printf("Controller:  %s\n", l.Controller)
	fmt.Printf("Transfers:   %t\n", l.TransfersEnabled)
	fmt.Printf("Cloning:     %t\n", l.CloningEnabled)
	fmt.Printf("Supply:      %s\n", l.TotalSupply)
	return nil
}

func printEvent(ev *client.Event) error {
	if outputFormat == "json" {
		return printJSON(ev)
	}
	fmt.Printf("✓ %s committed on %s at block %d\n", ev.Kind, ev.LedgerID, ev.Block)
	return nil
}

// ── Ledgers ──────────────────────────────────────────────────────────────────

var (
	ledgerName       string
	ledgerSymbol     string
	ledgerDecimals   uint8
	ledgerController string
	ledgerTransfers  bool
	cloneForkBlock   uint64
)

func optionalController() (address.Address, error) {
	if ledgerController == "" {
		return address.Zero, nil
	}
	return parseAddress("controller", ledgerController)
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a root ledger controlled by you or --controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := optionalController()
		if err != nil {
			return err
		}
		c, err := authedClient()
		if err != nil {
			return err
		}
		l, err := c.CreateLedger(context.Background(), client.CreateLedgerRequest{
			Name:             ledgerName,
			Symbol:           ledgerSymbol,
			Decimals:         ledgerDecimals,
			Controller:       ctrl,
			TransfersEnabled: ledgerTransfers,
		})
		if err != nil {
			return fmt.Errorf("create ledger: %w", err)
		}
		return printLedger(l)
	},
}

var cloneCmd = &cobra.Command{
	Use:   "clone <parent-id>",
	Short: "Fork a ledger at --fork-block (default: now)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := optionalController()
		if err != nil {
			return err
		}
		c, err := authedClient()
		if err != nil {
			return err
		}
		l, err := c.Clone(context.Background(), args[0], client.CloneRequest{
			Name:             ledgerName,
			Symbol:           ledgerSymbol,
			Decimals:         ledgerDecimals,
			ForkBlock:        cloneForkBlock,
			Controller:       ctrl,
			TransfersEnabled: ledgerTransfers,
		})
		if err != nil {
			return fmt.Errorf("clone ledger: %w", err)
		}
		return printLedger(l)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{createCmd, cloneCmd} {
		cmd.Flags().StringVar(&ledgerName, "name", "", "Token name")
		cmd.Flags().StringVar(&ledgerSymbol, "symbol", "", "Token symbol")
		cmd.Flags().Uint8Var(&ledgerDecimals, "decimals", 18, "Display decimals")
		cmd.Flags().StringVar(&ledgerController, "controller", "", "Controller address (default: you)")
		cmd.Flags().BoolVar(&ledgerTransfers, "transfers", true, "Allow holder transfers")
		_ = cmd.MarkFlagRequired("name")
		_ = cmd.MarkFlagRequired("symbol")
	}
	cloneCmd.Flags().Uint64Var(&cloneForkBlock, "fork-block", 0, "Block to fork at; 0 forks at the current block")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ledgers, err := c.ListLedgers(context.Background())
		if err != nil {
			return err
		}
		return printLedgers(ledgers)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		l, err := c.GetLedger(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printLedger(l)
	},
}

var clonesCmd = &cobra.Command{
	Use:   "clones <id>",
	Short: "List the direct clones of a ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		clones, err := c.ListClones(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printLedgers(clones)
	},
}

// ── Reads ────────────────────────────────────────────────────────────────────

var (
	readBlock  uint64
	grpcAddr   string
)

// blockArg is nil when no --block was given.
func blockArg(cmd *cobra.Command) *uint64 {
	if !cmd.Flags().Changed("block") {
		return nil
	}
	return &readBlock
}

func dialQuery() (*rpc.Client, func(), error) {
	cc, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", grpcAddr, err)
	}
	return rpc.NewClient(cc), func() { _ = cc.Close() }, nil
}

func printAmount(label string, v *big.Int, block uint64) error {
	if outputFormat == "json" {
		return printJSON(map[string]any{label: v.String(), "block": block})
	}
	fmt.Printf("%s at block %d\n", v, block)
	return nil
}

var balanceCmd = &cobra.Command{
	Use:   "balance <ledger-id> <address>",
	Short: "Read a balance, optionally at a past --block",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		holder, err := parseAddress("address", args[1])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if grpcAddr != "" {
			q, closeFn, err := dialQuery()
			if err != nil {
				return err
			}
			defer closeFn()
			v, block, err := q.BalanceOfAt(ctx, args[0], holder, blockArg(cmd))
			if err != nil {
				return err
			}
			return printAmount("balance", v, block)
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		if b := blockArg(cmd); b != nil {
			v, err := c.BalanceOfAt(ctx, args[0], holder, *b)
			if err != nil {
				return err
			}
			return printAmount("balance", v, *b)
		}
		v, block, err := c.BalanceOf(ctx, args[0], holder)
		if err != nil {
			return err
		}
		return printAmount("balance", v, block)
	},
}

var supplyCmd = &cobra.Command{
	Use:   "supply <ledger-id>",
	Short: "Read the total supply, optionally at a past --block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if grpcAddr != "" {
			q, closeFn, err := dialQuery()
			if err != nil {
				return err
			}
			defer closeFn()
			v, block, err := q.TotalSupplyAt(ctx, args[0], blockArg(cmd))
			if err != nil {
				return err
			}
			return printAmount("total_supply", v, block)
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		if b := blockArg(cmd); b != nil {
			v, err := c.TotalSupplyAt(ctx, args[0], *b)
			if err != nil {
				return err
			}
			return printAmount("total_supply", v, *b)
		}
		v, block, err := c.TotalSupply(ctx, args[0])
		if err != nil {
			return err
		}
		return printAmount("total_supply", v, block)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{balanceCmd, supplyCmd} {
		cmd.Flags().Uint64Var(&readBlock, "block", 0, "Read at this block instead of the current one")
		cmd.Flags().StringVar(&grpcAddr, "grpc", "", "Query the gRPC service at host:port instead of HTTP")
	}
}

var allowanceCmd = &cobra.Command{
	Use:   "allowance <ledger-id> <owner> <spender>",
	Short: "Read what owner lets spender move",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseAddress("owner", args[1])
		if err != nil {
			return err
		}
		spender, err := parseAddress("spender", args[2])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		v, err := c.Allowance(context.Background(), args[0], owner, spender)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(map[string]string{"allowance": v.String()})
		}
		fmt.Println(v)
		return nil
	},
}

// ── Mutations ────────────────────────────────────────────────────────────────

// mutation runs fn with an authenticated client and prints the event.
func mutation(fn func(ctx context.Context, c *client.Client) (*client.Event, error)) error {
	c, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ev, err := fn(ctx, c)
	if err != nil {
		return err
	}
	return printEvent(ev)
}

var transferCmd = &cobra.Command{
	Use:   "transfer <ledger-id> <to> <amount>",
	Short: "Send tokens from your address",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := parseAddress("to", args[1])
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			return err
		}
		return mutation(func(ctx context.Context, c *client.Client) (*client.Event, error) {
			return c.Transfer(ctx, args[0], to, amount)
		})
	},
}

var transferFromCmd = &cobra.Command{
	Use:   "transfer-from <ledger-id> <from> <to> <amount>",
	Short: "Move tokens using an allowance granted to you",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseAddress("from", args[1])
		if err != nil {
			return err
		}
		to, err := parseAddress("to", args[2])
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[3])
		if err != nil {
			return err
		}
		return mutation(func(ctx context.Context, c *client.Client) (*client.Event, error) {
			return c.TransferFrom(ctx, args[0], from, to, amount)
		})
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <ledger-id> <spender> <amount>",
	Short: "Set the allowance of spender over your tokens",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		spender, err := parseAddress("spender", args[1])
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			return err
		}
		return mutation(func(ctx context.Context, c *client.Client) (*client.Event, error) {
			return c.Approve(ctx, args[0], spender, amount)
		})
	},
}

var mintCmd = &cobra.Command{
	Use:   "mint <ledger-id> <to> <amount>",
	Short: "Create tokens (controller only)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := parseAddress("to", args[1])
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			return err
		}
		return mutation(func(ctx context.Context, c *client.Client) (*client.Event, error) {
			return c.Mint(ctx, args[0], to, amount)
		})
	},
}

var burnCmd = &cobra.Command{
	Use:   "burn <ledger-id> <from> <amount>",
	Short: "Destroy tokens (controller only)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseAddress("from", args[1])
		if err != nil {
			return err
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			return err
		}
		return mutation(func(ctx context.Context, c *client.Client) (*client.Event, error) {
			return c.Burn(ctx, args[0], from, amount)
		})
	},
}

var setControllerCmd = &cobra.Command{
	Use:   "set-controller <ledger-id> <address>",
	Short: "Hand the ledger to a new controller (zero address: none)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := parseAddress("controller", args[1])
		if err != nil {
			return err
		}
		return mutation(func(ctx context.Context, c *client.Client) (*client.Event, error) {
			return c.SetController(ctx, args[0], next)
		})
	},
}

var transfersCmd = &cobra.Command{
	Use:   "transfers <ledger-id> on|off",
	Short: "Pause or resume holder transfers",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseToggle(args[1])
		if err != nil {
			return err
		}
		return mutation(func(ctx context.Context, c *client.Client) (*client.Event, error) {
			return c.EnableTransfers(ctx, args[0], on)
		})
	},
}

var cloningCmd = &cobra.Command{
	Use:   "cloning <ledger-id> on|off",
	Short: "Allow or forbid new clones",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseToggle(args[1])
		if err != nil {
			return err
		}
		return mutation(func(ctx context.Context, c *client.Client) (*client.Event, error) {
			return c.EnableCloning(ctx, args[0], on)
		})
	},
}
