package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"payments-portal/internal/shared/model"
	"payments-portal/pkg/client"
)

// ============================================================================
// 客户
// ============================================================================

func (a *app) payCmd() *cobra.Command {
	var req client.PaymentRequest
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Submit a payment request (customers)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			res, err := c.CreatePayment(cmd.Context(), req)
			if err != nil {
				return printFieldErrors(cmd, err)
			}
			fmt.Fprintf(a.out, "%s\nReference: %s\nAmount:    %s %s\nStatus:    %s\n",
				res.Message, res.Reference, res.Amount, res.Currency, res.Status)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.SourceAccount, "from", "", "source account number")
	f.StringVar(&req.TargetAccount, "to", "", "beneficiary account number")
	f.StringVar(&req.BeneficiaryName, "beneficiary", "", "beneficiary name")
	f.StringVar(&req.BeneficiaryBank, "swift", "", "beneficiary bank SWIFT code")
	f.StringVar(&req.Amount, "amount", "", "amount, at most two decimals")
	f.StringVar(&req.Currency, "currency", "", "ISO currency code, e.g. USD")
	f.StringVar(&req.Purpose, "purpose", "", "payment purpose")
	for _, name := range []string{"from", "to", "beneficiary", "swift", "amount", "currency", "purpose"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *app) paymentsCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "List your own payments (customers)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			if page == 0 && limit == 0 {
				payments, err := c.MyPayments(cmd.Context())
				if err != nil {
					return err
				}
				return printPayments(a.out, payments)
			}
			list, err := c.History(cmd.Context(), page, limit)
			if err != nil {
				return err
			}
			if err := printPayments(a.out, list.Payments); err != nil {
				return err
			}
			if p := list.Pagination; p != nil {
				fmt.Fprintf(a.out, "Page %d/%d (%d total)\n", p.Page, p.TotalPages, p.Total)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 0, "page number (enables pagination)")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size, at most 100")
	return cmd
}

// ============================================================================
// 员工
// ============================================================================

func (a *app) pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List payments awaiting review (employees)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			payments, err := c.PendingPayments(cmd.Context())
			if err != nil {
				return err
			}
			return printPayments(a.out, payments)
		},
	}
}

func (a *app) allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "List every payment (employees)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			payments, err := c.AllPayments(cmd.Context())
			if err != nil {
				return err
			}
			return printPayments(a.out, payments)
		},
	}
}

// reviewCmd approve / reject
func (a *app) reviewCmd(use, short string) *cobra.Command {
	status := model.PaymentStatusApproved
	if use == "reject" {
		status = model.PaymentStatusRejected
	}
	return &cobra.Command{
		Use:   use + " <payment-id>",
		Short: short + " (employees)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			msg, err := c.UpdateStatus(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, msg)
			return nil
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics (employees)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			s, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Total:     %d\nPending:   %d\nApproved:  %d\nRejected:  %d\nCompleted: %d\n",
				s.TotalPayments, s.Pending, s.Approved, s.Rejected, s.Completed)
			if len(s.LatestPayments) > 0 {
				fmt.Fprintln(a.out, "\nLatest:")
				return printPayments(a.out, s.LatestPayments)
			}
			return nil
		},
	}
}

// ============================================================================
// 轮询
// ============================================================================

func (a *app) watchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll payments and print changes until interrupted",
		Long: `Customers watch their own payments, employees watch the pending queue.
The default interval matches the dashboards: 15s for customers, 2m for employees.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.authedClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			me, err := c.Me(ctx)
			if err != nil {
				return err
			}

			fetch := c.MyPayments
			every := client.CustomerPollInterval
			if me.Role.IsStaff() {
				fetch = c.PendingPayments
				every = client.EmployeePollInterval
			}
			if interval > 0 {
				every = interval
			}

			w := newWatcher(a.out)
			fmt.Fprintf(a.out, "Watching as %s (%s), every %s\n", me.Username, me.Role, every)
			return client.Poll(ctx, every, func(ctx context.Context) error {
				payments, err := fetch(ctx)
				if err != nil {
					return err
				}
				w.observe(payments)
				return nil
			})
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "poll interval (default depends on role)")
	return cmd
}

// watcher 记录已见过的付款状态，只输出新增和状态变化
type watcher struct {
	out  io.Writer
	seen map[string]model.PaymentStatus
}

func newWatcher(out io.Writer) *watcher {
	return &watcher{out: out, seen: make(map[string]model.PaymentStatus)}
}

func (w *watcher) observe(payments []*model.Payment) {
	current := make(map[string]model.PaymentStatus, len(payments))
	for _, p := range payments {
		current[p.ID] = p.Status
		prev, ok := w.seen[p.ID]
		switch {
		case !ok:
			fmt.Fprintf(w.out, "[new] %s %s %s %s\n", p.Reference, p.Amount, p.Currency, p.Status)
		case prev != p.Status:
			fmt.Fprintf(w.out, "[%s] %s %s -> %s\n", p.Status, p.Reference, prev, p.Status)
		}
	}
	// 待审列表中消失的付款视为已被处理
	for id := range w.seen {
		if _, ok := current[id]; !ok {
			fmt.Fprintf(w.out, "[gone] %s\n", id)
		}
	}
	w.seen = current
}

// ============================================================================
// 输出
// ============================================================================

func printPayments(out io.Writer, payments []*model.Payment) error {
	if len(payments) == 0 {
		fmt.Fprintln(out, "No payments")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREFERENCE\tCUSTOMER\tAMOUNT\tBENEFICIARY\tSTATUS\tCREATED")
	for _, p := range payments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%s\t%s\n",
			p.ID, p.Reference, p.CustomerName, p.Amount, p.Currency,
			p.BeneficiaryName, p.Status, p.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
