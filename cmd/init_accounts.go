package main

import (
	"context"

	"account_orchestrator/config"
	"account_orchestrator/internal/logger"
	"account_orchestrator/internal/usecase"
)

// bootstrapAccounts creates the accounts listed in config.yaml. Existing
// accounts are matched by username; their proxy and active flag follow the
// config when set there.
func bootstrapAccounts(ctx context.Context, cfg *config.Config, accountManager *usecase.AccountManager) {
	for _, acc := range cfg.BootstrapAccounts {
		if acc.Username == "" {
			logger.Error().Printf("Skipping bootstrap account without username: %+v", acc)
			continue
		}

		active := true
		if acc.IsActive != nil {
			active = *acc.IsActive
		}

		account, created, err := accountManager.EnsureAccount(ctx, acc.Username, acc.Proxy, active)
		if err != nil {
			logger.Error().Printf("Failed to bootstrap account @%s: %v", acc.Username, err)
			continue
		}
		if created {
			logger.Info().Printf("Bootstrapped account @%s (%s)", account.Username, account.ID)
			continue
		}

		update := usecase.AccountUpdate{}
		needsUpdate := false
		if acc.Proxy != "" && acc.Proxy != account.Proxy {
			update.Proxy = &acc.Proxy
			needsUpdate = true
		}
		if acc.IsActive != nil && *acc.IsActive != account.IsActive {
			update.IsActive = acc.IsActive
			needsUpdate = true
		}
		if !needsUpdate {
			continue
		}

		if _, err := accountManager.UpdateAccount(ctx, account.ID, update); err != nil {
			logger.Error().Printf("Failed to update bootstrap account @%s: %v", account.Username, err)
		} else {
			logger.Info().Printf("Updated bootstrap account @%s", account.Username)
		}
	}
}
