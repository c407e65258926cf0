package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"transfer-backend/internal/services"
	"transfer-backend/internal/utils"

	"github.com/spf13/cobra"
)

var (
	historyScope string
	historyLimit int
	jsonOutput   bool

	recipientsLimit int
	nicknameFlag    string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded transfers, most recent first",
	RunE:  runHistory,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate sent/received totals, gas and activity for an address",
	RunE:  runStats,
}

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "Manage the recipient directory",
}

var recipientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipients, most recently used first",
	Args:  cobra.NoArgs,
	RunE:  runRecipientsList,
}

var recipientsAddCmd = &cobra.Command{
	Use:   "add ADDRESS",
	Short: "Save an address in the directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecipientsAdd,
}

var recipientsRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a directory entry by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecipientsRemove,
}

func init() {
	historyCmd.Flags().StringVar(&historyScope, "scope", string(services.ScopeInvolving), "own (recorded by the address) or involving (sent or received)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", services.DefaultTransactionLimit, "maximum rows")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	statsCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")

	recipientsListCmd.Flags().IntVarP(&recipientsLimit, "limit", "n", services.DefaultRecipientLimit, "maximum rows")
	recipientsAddCmd.Flags().StringVar(&nicknameFlag, "nickname", "", "optional label")
	recipientsCmd.AddCommand(recipientsListCmd, recipientsAddCmd, recipientsRemoveCmd)
}

func withLedger(fn func(ctx context.Context, r *runtime) error) error {
	ctx, stop := signalContext()
	defer stop()
	r, err := openRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer r.close()
	return fn(ctx, r)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runHistory(cmd *cobra.Command, args []string) error {
	scope := services.TransactionScope(historyScope)
	if scope != services.ScopeOwn && scope != services.ScopeInvolving {
		return fmt.Errorf("scope must be %q or %q", services.ScopeOwn, services.ScopeInvolving)
	}
	return withLedger(func(ctx context.Context, r *runtime) error {
		sess, err := r.session()
		if err != nil {
			return err
		}
		txs, err := services.NewQueryService(r.transactions, r.recipients).
			ListTransactions(ctx, sess, services.TransactionFilter{Scope: scope, Limit: historyLimit})
		if err != nil {
			return err
		}
		views := services.NewTransactionViews(txs, r.chains)
		if jsonOutput {
			return printJSON(views)
		}
		if len(views) == 0 {
			fmt.Println("no transactions recorded for", utils.ShortAddress(sess.UserAddress))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tCHAIN\tDIR\tAMOUNT\tCOUNTERPARTY\tSTATUS\tHASH")
		for _, v := range views {
			dir, other := "out", v.ToAddress
			if utils.SameAddress(v.ToAddress, sess.UserAddress) {
				dir, other = "in", v.FromAddress
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\t%s\t%s\t%s\n",
				v.CreatedAt.Local().Format("2006-01-02 15:04"), v.ChainName, dir, v.Amount, v.TokenSymbol,
				utils.ShortAddress(other), v.Status, utils.ShortAddress(v.Hash))
		}
		return w.Flush()
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	return withLedger(func(ctx context.Context, r *runtime) error {
		sess, err := r.session()
		if err != nil {
			return err
		}
		stats, err := services.NewQueryService(r.transactions, r.recipients).Stats(ctx, sess)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(stats)
		}

		fmt.Printf("📊 %s\n", sess.UserAddress)
		fmt.Printf("   transactions: %d (sent %d, received %d)\n", stats.TotalTransactions, stats.SentCount, stats.ReceivedCount)
		fmt.Printf("   success/failed: %d/%d\n", stats.SuccessCount, stats.FailedCount)
		fmt.Printf("   avg gas fee: %s\n", stats.AvgGasFee)
		fmt.Printf("   counterparties: %d\n", stats.UniqueCounterparties)
		printTotals("sent", stats.TotalSent)
		printTotals("received", stats.TotalReceived)
		return nil
	})
}

func printTotals(label string, totals services.TokenTotals) {
	symbols := make([]string, 0, len(totals))
	for s := range totals {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		fmt.Printf("   %s: %s %s\n", label, totals[s], s)
	}
}

func runRecipientsList(cmd *cobra.Command, args []string) error {
	return withLedger(func(ctx context.Context, r *runtime) error {
		sess, err := r.session()
		if err != nil {
			return err
		}
		recs, err := services.NewQueryService(r.transactions, r.recipients).ListRecipients(ctx, sess, recipientsLimit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("no recipients yet")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tADDRESS\tNICKNAME\tTXS\tLAST USED")
		for _, rec := range recs {
			nickname := "-"
			if rec.Nickname != nil {
				nickname = *rec.Nickname
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", rec.ID, rec.RecipientAddress, nickname,
				rec.TransactionCount, rec.LastTransactionAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	})
}

func runRecipientsAdd(cmd *cobra.Command, args []string) error {
	return withLedger(func(ctx context.Context, r *runtime) error {
		sess, err := r.session()
		if err != nil {
			return err
		}
		var nickname *string
		if cmd.Flags().Changed("nickname") {
			nickname = &nicknameFlag
		}
		rec, err := services.NewRecipientService(r.recipients, r.transport.Publisher).AddRecipient(ctx, sess, args[0], nickname)
		if err != nil {
			return err
		}
		fmt.Printf("📇 saved %s (id %s)\n", rec.RecipientAddress, rec.ID)
		return nil
	})
}

func runRecipientsRemove(cmd *cobra.Command, args []string) error {
	return withLedger(func(ctx context.Context, r *runtime) error {
		sess, err := r.session()
		if err != nil {
			return err
		}
		if err := services.NewRecipientService(r.recipients, r.transport.Publisher).RemoveRecipient(ctx, sess, args[0]); err != nil {
			return err
		}
		fmt.Println("🗑️ removed", args[0])
		return nil
	})
}
