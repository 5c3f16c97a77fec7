package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"payops/internal/app"
	"payops/internal/domain"
	"payops/internal/engine"
	"payops/internal/repo"
)

func contractorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "contractor", Short: "Contractor directory"}
	cmd.AddCommand(contractorCreateCmd())
	cmd.AddCommand(contractorUpdateCmd())
	cmd.AddCommand(contractorSummaryCmd())
	return cmd
}

func contractorCreateCmd() *cobra.Command {
	var in engine.NewContractor
	var rate string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create contractor",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := decimal.NewFromString(rate)
			if err != nil {
				return fmt.Errorf("--rate: %w", err)
			}
			in.HourlyRate = r
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.CreateContractor(ctx, in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&in.FirstName, "first", "", "first name")
	cmd.Flags().StringVar(&in.LastName, "last", "", "last name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email")
	cmd.Flags().StringVar(&in.Country, "country", "", "ISO country code")
	cmd.Flags().StringVar(&rate, "rate", "0", "hourly rate")
	return cmd
}

func contractorUpdateCmd() *cobra.Command {
	var first, last, country, rate, status, checkr string
	var eligible bool
	cmd := &cobra.Command{
		Use:   "update <contractor-id>",
		Short: "Update contractor fields; only flags given are changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u engine.ContractorUpdate
			flags := cmd.Flags()
			if flags.Changed("first") {
				u.FirstName = &first
			}
			if flags.Changed("last") {
				u.LastName = &last
			}
			if flags.Changed("country") {
				c := strings.ToUpper(country)
				u.Country = &c
			}
			if flags.Changed("rate") {
				r, err := decimal.NewFromString(rate)
				if err != nil {
					return fmt.Errorf("--rate: %w", err)
				}
				u.HourlyRate = &r
			}
			if flags.Changed("status") {
				s := domain.ContractorStatus(strings.ToUpper(status))
				u.Status = &s
			}
			if flags.Changed("checkr") {
				s := domain.CheckrStatus(strings.ToUpper(checkr))
				u.CheckrStatus = &s
			}
			if flags.Changed("eligible") {
				u.PaymentEligible = &eligible
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.UpdateContractor(ctx, args[0], u, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&first, "first", "", "first name")
	cmd.Flags().StringVar(&last, "last", "", "last name")
	cmd.Flags().StringVar(&country, "country", "", "ISO country code")
	cmd.Flags().StringVar(&rate, "rate", "", "hourly rate")
	cmd.Flags().StringVar(&status, "status", "", "ONBOARDING|PENDING_CHECKR|ACTIVE|PAUSED|OFFBOARDED")
	cmd.Flags().StringVar(&checkr, "checkr", "", "NOT_STARTED|PENDING|CLEAR|CONSIDER|SUSPENDED|DISPUTE")
	cmd.Flags().BoolVar(&eligible, "eligible", false, "payment eligible")
	return cmd
}

func contractorSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <contractor-id>",
		Short: "Earnings summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.ContractorSummary(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("%s <%s>  earned %s  pending %s  hours %s\n", s.Contractor.Name(), s.Contractor.Email,
					s.TotalEarned.StringFixed(2), s.PendingAmount.StringFixed(2), s.TotalHours.String())
				tw := newTable(table.Row{"Month", "Paid", "Pending"})
				for _, m := range s.Monthly {
					tw.AppendRow(table.Row{m.Month, m.Paid.StringFixed(2), m.Pending.StringFixed(2)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func hoursCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "hours", Short: "Time entries"}
	cmd.AddCommand(hoursAddCmd())
	cmd.AddCommand(hoursPendingCmd())
	cmd.AddCommand(hoursApproveCmd())
	return cmd
}

func hoursAddCmd() *cobra.Command {
	var in engine.TimeEntryInput
	var hours, productive, source string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a time entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := decimal.NewFromString(hours)
			if err != nil {
				return fmt.Errorf("--hours: %w", err)
			}
			in.TotalHours = h
			if productive != "" {
				p, err := decimal.NewFromString(productive)
				if err != nil {
					return fmt.Errorf("--productive: %w", err)
				}
				in.ProductiveHours = &p
			}
			in.Source = domain.TimeEntrySource(strings.ToUpper(source))
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				entry, err := a.Engine.RecordTimeEntry(ctx, in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&in.ContractorID, "contractor", "", "contractor id")
	cmd.Flags().StringVar(&in.ProjectCode, "project", "", "project code")
	cmd.Flags().StringVar(&in.Date, "date", "", "work date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&hours, "hours", "", "total hours")
	cmd.Flags().StringVar(&productive, "productive", "", "productive hours")
	cmd.Flags().StringVar(&source, "source", "MANUAL", "INSIGHTFUL|MANUAL|INHOUSE")
	return cmd
}

func hoursPendingCmd() *cobra.Command {
	var contractorID string
	var limit int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List entries awaiting approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				entries, err := a.Engine.PendingTimeEntries(ctx, contractorID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable(table.Row{"ID", "Contractor", "Date", "Hours", "Source"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.ID, e.ContractorID, e.Date, e.TotalHours.String(), e.Source})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contractorID, "contractor", "", "contractor id filter")
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum entries")
	return cmd
}

func hoursApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <entry-id>...",
		Short: "Approve time entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Engine.ApproveTimeEntries(ctx, engine.ApproveInput{EntryIDs: args}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"approved": n, "requested": len(args)})
			})
		},
	}
}

func paymentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "payments", Short: "Payment proposals, batches and disbursement"}
	cmd.AddCommand(paymentsProposalsCmd())
	cmd.AddCommand(paymentsCreateCmd())
	cmd.AddCommand(paymentsListCmd())
	cmd.AddCommand(paymentsTransitionCmd())
	return cmd
}

func renderProposals(proposals []domain.Proposal) {
	tw := newTable(table.Row{"Contractor", "Email", "Period", "Hours", "Rate", "Gross", "Checkr", "Can Pay"})
	total := decimal.Zero
	for _, p := range proposals {
		tw.AppendRow(table.Row{
			p.ContractorName, p.Email, p.PeriodStart + " .. " + p.PeriodEnd,
			p.TotalHours.String(), p.HourlyRate.StringFixed(2), p.GrossAmount.StringFixed(2),
			p.CheckrStatus, p.CanPay,
		})
		if p.CanPay {
			total = total.Add(p.GrossAmount)
		}
	}
	tw.AppendFooter(table.Row{"", "", "", "", "payable", total.StringFixed(2), "", ""})
	tw.Render()
}

func paymentsProposalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proposals",
		Short: "Show proposed payments from approved, unpaid hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				proposals, err := a.Engine.ComputeProposals(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(proposals)
				}
				renderProposals(proposals)
				return nil
			})
		},
	}
}

func paymentsCreateCmd() *cobra.Command {
	var contractors []string
	var all bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a payment batch from current proposals",
		Long: `Creates payments for the selected contractors' proposals in one batch.
With --all every proposal is selected, including ineligible contractors, so the
batch fails if any of them cannot be paid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(contractors) == 0 {
				return fmt.Errorf("--contractor or --all required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				proposals, err := a.Engine.ComputeProposals(ctx)
				if err != nil {
					return err
				}
				wanted := map[string]bool{}
				for _, id := range contractors {
					wanted[id] = true
				}
				var inputs []engine.PaymentInput
				for _, p := range proposals {
					if all || wanted[p.ContractorID] {
						inputs = append(inputs, engine.FromProposal(p))
						delete(wanted, p.ContractorID)
					}
				}
				if len(wanted) > 0 {
					missing := make([]string, 0, len(wanted))
					for id := range wanted {
						missing = append(missing, id)
					}
					sort.Strings(missing)
					return fmt.Errorf("no proposal for contractor %s", strings.Join(missing, ", "))
				}
				created, err := a.Engine.CreatePayments(ctx, inputs, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printPayments(created)
			})
		},
	}
	cmd.Flags().StringSliceVar(&contractors, "contractor", nil, "contractor id (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "select every proposal")
	return cmd
}

func paymentsListCmd() *cobra.Command {
	var f repo.PaymentFilter
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range statuses {
				f.Statuses = append(f.Statuses, domain.PaymentStatus(strings.ToUpper(s)))
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				payments, err := a.Engine.ListPayments(ctx, f)
				if err != nil {
					return err
				}
				return printPayments(payments)
			})
		},
	}
	cmd.Flags().StringVar(&f.ContractorID, "contractor", "", "contractor id filter")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "status filter (repeatable)")
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "maximum payments")
	return cmd
}

func paymentsTransitionCmd() *cobra.Command {
	var in engine.TransitionInput
	var to string
	cmd := &cobra.Command{
		Use:   "transition <payment-id>",
		Short: "Move a payment to its next disbursement status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.PaymentID = args[0]
			in.To = domain.PaymentStatus(strings.ToUpper(to))
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.TransitionPayment(ctx, in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target status")
	cmd.Flags().IntVar(&in.ExpectedVersion, "expected-version", 0, "reject unless the payment is at this version")
	return cmd
}

func printPayments(payments []domain.Payment) error {
	if viper.GetBool("json") {
		return printJSON(payments)
	}
	tw := newTable(table.Row{"ID", "Contractor", "Period", "Hours", "Gross", "Status", "Paid At"})
	for _, p := range payments {
		paidAt := ""
		if p.PaidAt != nil {
			paidAt = *p.PaidAt
		}
		tw.AppendRow(table.Row{p.ID, p.ContractorID, p.PeriodStart + " .. " + p.PeriodEnd,
			p.TotalHours.String(), p.GrossAmount.StringFixed(2), p.Status, paidAt})
	}
	tw.Render()
	return nil
}
