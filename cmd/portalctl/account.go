package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"payments-portal/internal/shared/model"
	"payments-portal/pkg/client"
)

func (a *app) loginCmd() *cobra.Command {
	var password, role string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and save the token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := model.ParseRole(role)
			if !ok {
				return fmt.Errorf("invalid role %q (customer, employee, admin)", role)
			}
			if password == "" {
				return errors.New("--password is required")
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.Login(cmd.Context(), args[0], password, r)
			if err != nil {
				return err
			}
			if err := a.saveToken(res.Token); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s (%s)\n", res.User.Username, res.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().StringVarP(&role, "role", "r", string(model.RoleCustomer), "customer, employee or admin")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.saveToken(""); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func (a *app) meCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			me, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Username: %s\nName:     %s\nRole:     %s\nID:       %s\n",
				me.Username, me.Name, me.Role, me.UserID)
			return nil
		},
	}
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			h, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Status:   %s\nProtocol: %s\nDatabase: %s\n", h.Status, h.Protocol, h.Database)
			return nil
		},
	}
}

// printFieldErrors 逐条输出本地校验或服务端返回的字段错误
func printFieldErrors(cmd *cobra.Command, err error) error {
	var errs []string
	var vErr *client.ValidationError
	var apiErr *client.APIError
	switch {
	case errors.As(err, &vErr):
		errs = vErr.Errors
	case errors.As(err, &apiErr):
		errs = apiErr.Errors
	}
	for _, e := range errs {
		fmt.Fprintln(cmd.OutOrStdout(), "  -", e)
	}
	return err
}

func (a *app) registerCmd() *cobra.Command {
	var req client.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Register a customer account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Username = args[0]
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.Register(cmd.Context(), req)
			if err != nil {
				return printFieldErrors(cmd, err)
			}
			fmt.Fprintf(a.out, "%s (id %s)\n", res.Message, res.UserID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&req.FullName, "full-name", "", "full name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	return cmd
}
