package usecase

import (
	"context"
	"time"

	"account_orchestrator/internal/domain"
	"account_orchestrator/internal/logger"
)

// AccountMonitor runs periodic health sweeps over all active accounts
type AccountMonitor struct {
	automation *Automation
	probe      bool
	sweepSlot  chan struct{} // one sweep at a time; overlapping triggers are skipped
	timeout    time.Duration
}

// NewAccountMonitor creates a monitor. With probeShadowBan set, each sweep
// also probes every account once the status checks are done.
func NewAccountMonitor(automation *Automation, probeShadowBan bool, timeout time.Duration) *AccountMonitor {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &AccountMonitor{
		automation: automation,
		probe:      probeShadowBan,
		sweepSlot:  make(chan struct{}, 1),
		timeout:    timeout,
	}
}

// SweepSummary counts the outcomes of one sweep
type SweepSummary struct {
	Checked   int
	Failed    int
	Suspended int
	Locked    int
	ShadowBan int
	Skipped   bool
}

// MonitorAllAccounts checks every active account and, optionally, probes it.
func (m *AccountMonitor) MonitorAllAccounts(ctx context.Context) (SweepSummary, error) {
	select {
	case m.sweepSlot <- struct{}{}:
		defer func() { <-m.sweepSlot }()
	default:
		logger.Info().Printf("health sweep already running, skipping")
		return SweepSummary{Skipped: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var summary SweepSummary
	outcomes, err := m.runAndWait(ctx, m.automation.CheckAccounts)
	if err != nil {
		return summary, err
	}
	for _, o := range outcomes {
		summary.Checked++
		if !o.Succeeded() {
			summary.Failed++
			continue
		}
		if result, ok := o.Payload.(domain.CheckResult); ok {
			switch result.Status {
			case domain.AccountStatusSuspended:
				summary.Suspended++
			case domain.AccountStatusLocked:
				summary.Locked++
			case domain.AccountStatusNormal, domain.AccountStatusUnknown:
			}
		}
	}

	if m.probe {
		outcomes, err = m.runAndWait(ctx, m.automation.CheckShadowBan)
		if err != nil {
			return summary, err
		}
		for _, o := range outcomes {
			if result, ok := o.Payload.(domain.ShadowBanResult); ok && o.Succeeded() && result.Banned() {
				summary.ShadowBan++
			}
		}
	}

	logger.Info().Printf("health sweep: %d checked, %d failed, %d suspended, %d locked, %d shadow-banned",
		summary.Checked, summary.Failed, summary.Suspended, summary.Locked, summary.ShadowBan)
	return summary, nil
}

func (m *AccountMonitor) runAndWait(ctx context.Context, start func(context.Context, []string) (*Run, error)) ([]domain.Outcome, error) {
	run, err := start(ctx, nil)
	if err != nil {
		if domain.CodeOf(err) == domain.CodeValidation {
			// no active accounts
			return nil, nil
		}
		return nil, err
	}
	// Nobody streams sweep progress.
	run.Close()
	return run.Wait(ctx)
}
