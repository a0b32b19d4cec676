package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/amirasaad/microgive/infra/initializer"
	"github.com/amirasaad/microgive/pkg/app"
	"github.com/amirasaad/microgive/pkg/config"
	"github.com/amirasaad/microgive/pkg/domain/need"
	"github.com/amirasaad/microgive/pkg/money"
	"github.com/amirasaad/microgive/pkg/repository"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errActionFailed = errors.New("action failed")

func boot(envFile string) (*app.App, func(), error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	deps, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(deps, cfg)
	if err != nil {
		initializer.Close(deps)
		return nil, nil, err
	}
	return a, func() { initializer.Close(deps) }, nil
}

func actionCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "action [json|-]",
		Short: "Dispatch an action and print its envelope",
		Long: `Dispatch a JSON action exactly as the HTTP endpoint would.

Examples:
  microgive action '{"action":"verify_payment","paymentId":"..."}'
  echo '{"action":"preview_spread","amount":30}' | microgive action -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readBody(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			a, closeFn, err := boot(*envFile)
			if err != nil {
				return err
			}
			defer closeFn()
			return runAction(cmd.Context(), a, raw, cmd.OutOrStdout())
		},
	}
}

func readBody(stdin io.Reader, arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	return io.ReadAll(stdin)
}

func runAction(ctx context.Context, a *app.App, raw []byte, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	status, env := a.Actions.Dispatch(ctx, raw)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return err
	}
	if ok, _ := env["success"].(bool); !ok {
		return fmt.Errorf("%w with status %d", errActionFailed, status)
	}
	return nil
}

func seedNeedCmd(envFile *string) *cobra.Command {
	var (
		owner string
		title string
		goal  string
	)
	cmd := &cobra.Command{
		Use:   "seed-need",
		Short: "Create an open need to collect against",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := boot(*envFile)
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := seedNeed(cmd.Context(), a, owner, title, goal)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "✅ need %s %q goal %s\n", n.ID, n.Title, money.Format(n.GoalAmount))
			return err
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (random when empty)")
	cmd.Flags().StringVar(&title, "title", "", "need title")
	cmd.Flags().StringVar(&goal, "goal", "", "goal in major units, e.g. 250.00")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func seedNeed(ctx context.Context, a *app.App, owner, title, goal string) (*need.Need, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ownerID := uuid.New()
	if owner != "" {
		id, err := uuid.Parse(owner)
		if err != nil {
			return nil, fmt.Errorf("invalid owner: %w", err)
		}
		ownerID = id
	}
	cents, err := money.ParseMajor(goal)
	if err != nil {
		return nil, fmt.Errorf("invalid goal: %w", err)
	}
	n, err := need.New(ownerID, title, cents, a.Config.Ledger.GoalCapCents())
	if err != nil {
		return nil, err
	}
	err = a.Deps.Uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.NeedRepository()
		if err != nil {
			return err
		}
		return repo.Create(ctx, n)
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func migrateCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			deps, err := initializer.InitializeDependencies(cfg)
			if err != nil {
				return err
			}
			initializer.Close(deps)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "✅ schema up to date")
			return err
		},
	}
}
