package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"stockroom/internal/clients"
)

type clientFlags struct {
	url   string
	token string
}

func (f *clientFlags) client() *clients.StockClient {
	return clients.NewStockClient(f.url, f.token, nil)
}

func newStockCmd() *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Manage stock items of a running server",
	}
	cmd.PersistentFlags().StringVar(&flags.url, "url", envOr("STOCKROOM_URL", "http://localhost:8080"), "base URL of the stock API")
	cmd.PersistentFlags().StringVar(&flags.token, "token", os.Getenv("STOCKROOM_TOKEN"), "bearer token sent with every request")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stock items",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				items, err := flags.client().List(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, items)
			},
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show one stock item",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				item, err := flags.client().Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd, item)
			},
		},
		newCreateCmd(flags),
		newUpdateCmd(flags),
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a stock item",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := flags.client().Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted item %d\n", id)
				return nil
			},
		},
	)
	return cmd
}

// itemFlags registers the item members as flags. Only flags given on the
// command line end up in the request.
func itemFlags(cmd *cobra.Command) func() clients.ItemInput {
	var title, description, price, imageURI string
	var done bool
	fs := cmd.Flags()
	fs.StringVar(&title, "title", "", "item title")
	fs.StringVar(&description, "description", "", "item description")
	fs.StringVar(&price, "price", "", "decimal price, e.g. 4.99")
	fs.StringVar(&imageURI, "image-uri", "", "absolute URL of the item image")
	if cmd.Name() == "update" {
		fs.BoolVar(&done, "done", false, "mark the item done")
	}

	return func() clients.ItemInput {
		var in clients.ItemInput
		if fs.Changed("title") {
			in.Title = &title
		}
		if fs.Changed("description") {
			in.Description = &description
		}
		if fs.Changed("price") {
			in.Price = &price
		}
		if fs.Changed("image-uri") {
			in.ImageURI = &imageURI
		}
		if fs.Changed("done") {
			in.Done = &done
		}
		return in
	}
}

func newCreateCmd(flags *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a stock item",
		Args:  cobra.NoArgs,
	}
	input := itemFlags(cmd)
	cmd.MarkFlagRequired("title")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		item, err := flags.client().Create(cmd.Context(), input())
		if err != nil {
			return err
		}
		return printJSON(cmd, item)
	}
	return cmd
}

func newUpdateCmd(flags *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change members of a stock item",
		Args:  cobra.ExactArgs(1),
	}
	input := itemFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		item, err := flags.client().Update(cmd.Context(), id, input())
		if err != nil {
			return err
		}
		return printJSON(cmd, item)
	}
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
