package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"padlink/api/internal/rbac"
	"padlink/api/internal/store"
)

var (
	grantMember     string
	grantItem       string
	grantPermission string
	grantCreator    string
)

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Give a member a permission on an item and its descendants",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if grantMember == "" || grantItem == "" {
			return errors.New("--member and --item are required")
		}
		permission := rbac.Normalize(grantPermission)
		if permission == "" {
			return fmt.Errorf("unknown permission %q, want read, write or admin", grantPermission)
		}

		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		db, err := store.Open(cmd.Context(), cfg.DatabaseURL, store.DefaultPoolOptions())
		if err != nil {
			return err
		}
		defer db.Close()

		items := store.NewPostgresStore(db)
		item, err := items.GetItem(cmd.Context(), grantItem)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("item %s not found", grantItem)
			}
			return err
		}
		creator := grantCreator
		if creator == "" {
			creator = item.Creator
		}
		if err := items.GrantPermission(cmd.Context(), store.Membership{
			MemberID:   grantMember,
			ItemPath:   item.Path,
			Permission: string(permission),
			Creator:    creator,
		}); err != nil {
			return err
		}
		logger.Info("permission granted",
			zap.String("member", grantMember),
			zap.String("item", item.ID),
			zap.String("permission", string(permission)),
		)
		return nil
	},
}

func init() {
	grantCmd.Flags().StringVar(&grantMember, "member", "", "member receiving the permission")
	grantCmd.Flags().StringVar(&grantItem, "item", "", "item id")
	grantCmd.Flags().StringVar(&grantPermission, "permission", "read", "read, write or admin")
	grantCmd.Flags().StringVar(&grantCreator, "creator", "", "member recorded as granting it, defaults to the item creator")
	rootCmd.AddCommand(grantCmd)
}
