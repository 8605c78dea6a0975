package cmd

import (
	"fmt"
	"strconv"

	"github.com/habedi/rebaton/pkg/clierr"
	"github.com/habedi/rebaton/pkg/validation"
	"github.com/spf13/cobra"
)

func walletCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Show your cashback wallet",
	}
	cmd.AddCommand(walletBalanceCmd(c), walletTransactionsCmd(c))
	return cmd
}

func walletBalanceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the wallet balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := c.requireSession(ctx); err != nil {
				return err
			}
			w, err := c.client.Wallet(ctx)
			if err != nil {
				return userError("Failed to fetch wallet", err)
			}
			cmd.Printf("Balance: %s %s\n", formatMoney(w.Balance), w.Currency)
			if w.Pending > 0 {
				cmd.Printf("Pending: %s %s\n", formatMoney(w.Pending), w.Currency)
			}
			cmd.Printf("Tokens: %d\n", w.Tokens)
			return nil
		},
	}
}

func walletTransactionsCmd(c *cli) *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List wallet transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidatePageSize(limit); err != nil {
				return validationError(err)
			}
			if page < 1 {
				return clierr.New(clierr.Validation, fmt.Sprintf("page must be at least 1, got %d", page), nil)
			}
			ctx := cmd.Context()
			if err := c.requireSession(ctx); err != nil {
				return err
			}
			txs, err := c.client.Transactions(ctx, page, limit)
			if err != nil {
				return userError("Failed to fetch transactions", err)
			}
			if len(txs) == 0 {
				cmd.Println("No transactions found.")
				return nil
			}

			table := newTable(cmd.OutOrStdout(), "Date", "Type", "Amount", "Tokens", "Description")
			for _, tx := range txs {
				table.Append([]string{
					formatDate(&tx.CreatedAt),
					tx.Type,
					formatMoney(tx.Amount),
					strconv.FormatInt(tx.Tokens, 10),
					singleLine(tx.Description),
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Page to fetch")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Number of transactions per page")
	return cmd
}
