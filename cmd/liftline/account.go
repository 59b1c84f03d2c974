package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alecgard/liftline/internal/account"
	"github.com/alecgard/liftline/internal/config"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage team member accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a team member",
	RunE:  runAccountCreate,
}

var accountSetPasswordCmd = &cobra.Command{
	Use:   "set-password",
	Short: "Replace a team member's password",
	Long:  "Replace a team member's password. Accounts still carrying a plaintext password cannot log in until this is run.",
	RunE:  runAccountSetPassword,
}

var accountFlags struct {
	email    string
	name     string
	role     string
	phone    string
	password string
}

func init() {
	for _, c := range []*cobra.Command{accountCreateCmd, accountSetPasswordCmd} {
		c.Flags().StringVar(&accountFlags.email, "email", "", "member email")
		c.Flags().StringVar(&accountFlags.password, "password", "", "new password (at least 8 characters)")
		_ = c.MarkFlagRequired("email")
		_ = c.MarkFlagRequired("password")
	}
	accountCreateCmd.Flags().StringVar(&accountFlags.name, "name", "", "display name")
	accountCreateCmd.Flags().StringVar(&accountFlags.role, "role", "", "installer, supervisor, quality_inspector or admin")
	accountCreateCmd.Flags().StringVar(&accountFlags.phone, "phone", "", "contact phone")
	_ = accountCreateCmd.MarkFlagRequired("name")

	accountCmd.AddCommand(accountCreateCmd, accountSetPasswordCmd)
	rootCmd.AddCommand(accountCmd)
}

// withAccounts opens the configured store and hands an account store to fn.
func withAccounts(fn func(ctx context.Context, accounts *account.Store) error) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Store.Driver == config.DriverMemory {
		return fmt.Errorf("store driver %q does not persist accounts", cfg.Store.Driver)
	}

	ctx := context.Background()
	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.Close()
	return fn(ctx, account.NewStore(be.docs))
}

func runAccountCreate(cmd *cobra.Command, args []string) error {
	return withAccounts(func(ctx context.Context, accounts *account.Store) error {
		m, err := accounts.Create(ctx, account.CreateInput{
			Email:    accountFlags.email,
			Password: accountFlags.password,
			Name:     accountFlags.name,
			Role:     accountFlags.role,
			Phone:    accountFlags.phone,
		})
		if err != nil {
			return err
		}
		slog.Info("created account", "email", m.Email, "role", m.Role)
		return nil
	})
}

func runAccountSetPassword(cmd *cobra.Command, args []string) error {
	return withAccounts(func(ctx context.Context, accounts *account.Store) error {
		if err := accounts.SetPassword(ctx, accountFlags.email, accountFlags.password); err != nil {
			return err
		}
		slog.Info("password updated", "email", accountFlags.email)
		return nil
	})
}
