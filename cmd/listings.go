package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listings/internal/model"
	"github.com/sells-group/listings/internal/store"
)

var getCmd = &cobra.Command{
	Use:   "get <listing-id>",
	Short: "Print a stored listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "get")
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.Store.Migrate(ctx); err != nil {
			return err
		}

		l, err := env.Store.GetListing(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			return eris.Errorf("listing %s not found", args[0])
		}
		if err != nil {
			return eris.Wrap(err, "get listing")
		}

		format, _ := cmd.Flags().GetString("format")
		return writeListing(os.Stdout, l, format)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored listings, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "list")
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.Store.Migrate(ctx); err != nil {
			return err
		}

		kind, _ := cmd.Flags().GetString("type")
		owner, _ := cmd.Flags().GetString("owner")
		offer, _ := cmd.Flags().GetBool("offer")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ListingFilter{OwnerID: owner, OfferOnly: offer, Limit: limit}
		if kind != "" {
			k, err := model.ParseKind(kind)
			if err != nil {
				return err
			}
			filter.Kind = k
		}

		listings, err := env.Store.ListListings(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list listings")
		}
		if len(listings) == 0 {
			fmt.Fprintln(os.Stderr, "No listings found.")
			return nil
		}

		formatListings(os.Stdout, listings)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the listing tables or indexes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "migrate")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	getCmd.Flags().String("format", "json", "output format: json or yaml")

	listCmd.Flags().String("type", "", "filter by type: sale or rent")
	listCmd.Flags().String("owner", "", "filter by owner user id")
	listCmd.Flags().Bool("offer", false, "only listings with an offer")
	listCmd.Flags().Int("limit", store.DefaultListLimit, "maximum listings to show")

	rootCmd.AddCommand(getCmd, listCmd, migrateCmd)
}
