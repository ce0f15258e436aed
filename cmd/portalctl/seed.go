package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"payments-portal/internal/apiserver/auth"
	"payments-portal/internal/config"
	"payments-portal/internal/shared/model"
	"payments-portal/internal/shared/storage"
	"payments-portal/internal/shared/storage/mongostore"
)

// seedAccount 演示账号
type seedAccount struct {
	account  model.Account
	password string
}

// demoAccounts 演示员工与客户，员工无法通过 API 注册
var demoAccounts = []seedAccount{
	{model.Account{Username: "admin", FullName: "System Administrator", Role: model.RoleEmployee}, "admin123"},
	{model.Account{Username: "manager", FullName: "Payment Manager", Role: model.RoleEmployee}, "admin123"},
	{model.Account{Username: "alice", FullName: "Alice Banda", Role: model.RoleEmployee}, "StrongPass@123"},
	{model.Account{Username: "mike", FullName: "Michael S.", Role: model.RoleEmployee}, "AnotherP@ss1"},
	{model.Account{
		Username: "john_doe", FullName: "John Doe", Email: "john.doe@example.com",
		Role: model.RoleCustomer, AccountNumber: "ACC123456789",
	}, "password123"},
	{model.Account{
		Username: "sarah_smith", FullName: "Sarah Smith", Email: "sarah.smith@example.com",
		Role: model.RoleCustomer, AccountNumber: "ACC987654321",
	}, "password123"},
	{model.Account{
		Username: "mike_johnson", FullName: "Mike Johnson", Email: "mike.johnson@example.com",
		Role: model.RoleCustomer, AccountNumber: "ACC555666777",
	}, "password123"},
}

func seedCmd(out io.Writer) *cobra.Command {
	var uri, dbName string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo employee and customer accounts into MongoDB",
		Long: `Writes directly to the database configured for the API server
(.env / APP_ENV yaml / MONGO_URI). Existing usernames are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if uri != "" {
				cfg.Database.Driver = config.DriverMongoDB
				cfg.Database.URI = uri
			}
			if dbName != "" {
				cfg.Database.Name = dbName
			}
			if cfg.Database.Driver != config.DriverMongoDB || cfg.Database.URI == "" {
				return errors.New("seed requires a MongoDB database: set MONGO_URI or pass --uri")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			store, err := mongostore.NewStore(ctx, cfg.Database.URI, cfg.Database.Name)
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Fprintf(out, "Seeding database %s\n", store.DatabaseName())
			created, err := seed(ctx, store, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Done: %d created, %d skipped\n", created, len(demoAccounts)-created)
			return nil
		},
	}
	cmd.Flags().StringVar(&uri, "uri", "", "MongoDB URI (defaults to the server configuration)")
	cmd.Flags().StringVar(&dbName, "db", "", "database name (defaults to the server configuration)")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall timeout")
	return cmd
}

// seed 创建演示账号，已存在的用户名跳过，返回新建数量
func seed(ctx context.Context, store storage.AccountStore, out io.Writer) (int, error) {
	created := 0
	for _, s := range demoAccounts {
		existing, err := store.GetAccountByUsername(ctx, s.account.Role, s.account.Username)
		if err != nil {
			return created, fmt.Errorf("lookup %s: %w", s.account.Username, err)
		}
		if existing != nil {
			fmt.Fprintf(out, "  skip   %-14s %s already exists\n", s.account.Username, s.account.Role)
			continue
		}

		hash, err := auth.HashPassword(s.password)
		if err != nil {
			return created, fmt.Errorf("hash password for %s: %w", s.account.Username, err)
		}
		account := s.account
		account.PasswordHash = hash
		account.IsActive = model.Bool(true)
		account.CreatedAt = time.Now().UTC()

		if err := store.CreateAccount(ctx, &account); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				fmt.Fprintf(out, "  skip   %-14s %s already exists\n", s.account.Username, s.account.Role)
				continue
			}
			return created, fmt.Errorf("create %s: %w", s.account.Username, err)
		}
		created++
		fmt.Fprintf(out, "  create %-14s %s\n", s.account.Username, s.account.Role)
	}
	return created, nil
}
