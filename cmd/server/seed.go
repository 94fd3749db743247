package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/welldanyogia/webrana-crm-mail/internal/models"
	"github.com/welldanyogia/webrana-crm-mail/internal/repository"
	"github.com/welldanyogia/webrana-crm-mail/internal/templates"
)

func newSeedTemplatesCmd() *cobra.Command {
	var companies []uint

	cmd := &cobra.Command{
		Use:   "seed-templates",
		Short: "Create the starter templates for companies",
		Long: `Create the starter templates (Welcome Email, Follow Up, Thank You) for
each company. A template whose name already exists for the company is skipped.

Without --company, every company owning a connected account is seeded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if len(companies) == 0 {
				if err := a.db.WithContext(ctx).Model(&models.MailboxAccount{}).
					Distinct().Order("company_id").Pluck("company_id", &companies).Error; err != nil {
					return fmt.Errorf("failed to list companies: %w", err)
				}
			}

			total := 0
			for _, companyID := range companies {
				n, err := seedTemplates(ctx, a.templates, companyID)
				if err != nil {
					return fmt.Errorf("company %d: %w", companyID, err)
				}
				a.logger.Info("Templates seeded",
					slog.Uint64("company_id", uint64(companyID)),
					slog.Int("created", n))
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "companies: %d, templates created: %d\n", len(companies), total)
			return nil
		},
	}

	cmd.Flags().UintSliceVar(&companies, "company", nil, "Company ID to seed (repeatable)")
	return cmd
}

// seedTemplates creates the starter templates missing for companyID and
// returns how many were created
func seedTemplates(ctx context.Context, repo repository.TemplateRepository, companyID uint) (int, error) {
	created := 0
	for _, tpl := range templates.Starters(companyID) {
		exists, err := repo.ExistsByName(ctx, companyID, tpl.Name)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		tpl := tpl
		if err := repo.Create(ctx, &tpl); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
