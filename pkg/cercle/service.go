package cercle

import (
	"context"
	"fmt"
)

// Service contains the ledger and session-state logic over a Store.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Append records one ledger entry and applies its full effect as a single
// atomic unit: the immutable row, the beneficiary's cached balance, and
// the session sale/volume aggregates when the entry is an in-session
// drink or snack. A failure at any step leaves no visible partial state.
func (service *Service) Append(ctx context.Context, draft EntryDraft) (Entry, error) {
	var persisted Entry
	operationError := draft.Validate()
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			entry, err := service.applyEntry(ctx, transactionStore, draft)
			if err != nil {
				return err
			}
			persisted = entry
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation:   operationAppend,
		UserID:      draft.BeneficiaryID,
		ActorID:     draft.PayerID,
		SessionID:   draft.SessionID,
		Kind:        draft.Kind,
		AmountCents: draft.AmountCents,
		Error:       operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return persisted, nil
}

// applyEntry is the one place the three-part ledger effect happens. It must
// run inside a transaction-scoped Store.
func (service *Service) applyEntry(ctx context.Context, transactionStore Store, draft EntryDraft) (Entry, error) {
	if _, err := transactionStore.GetUser(ctx, draft.BeneficiaryID); err != nil {
		return Entry{}, err
	}
	if draft.PayerID != draft.BeneficiaryID {
		if _, err := transactionStore.GetUser(ctx, draft.PayerID); err != nil {
			return Entry{}, err
		}
	}
	if draft.SessionID != nil {
		if _, err := transactionStore.GetSession(ctx, *draft.SessionID); err != nil {
			return Entry{}, err
		}
	}
	var item CatalogItem
	if draft.ItemID != nil {
		found, err := transactionStore.GetItem(ctx, draft.Kind, *draft.ItemID)
		if err != nil {
			return Entry{}, err
		}
		item = found
	}

	persisted, err := transactionStore.InsertEntry(ctx, Entry{
		BeneficiaryID: draft.BeneficiaryID,
		PayerID:       draft.PayerID,
		SessionID:     draft.SessionID,
		Kind:          draft.Kind,
		ItemID:        draft.ItemID,
		DateUnixUTC:   service.nowFn(),
		Quantity:      draft.Quantity,
		AmountCents:   draft.AmountCents,
		Metadata:      draft.Metadata.String(),
	})
	if err != nil {
		return Entry{}, err
	}
	if err := transactionStore.AddToBalance(ctx, draft.BeneficiaryID, draft.AmountCents); err != nil {
		return Entry{}, err
	}
	if draft.SessionID != nil && draft.Kind.Billable() {
		var volume Milliliters
		if draft.Kind == KindDrink {
			volume = Milliliters(draft.Quantity) * item.VolumeML
		}
		if err := transactionStore.AddSessionTotals(ctx, *draft.SessionID, absAmount(draft.AmountCents), volume); err != nil {
			return Entry{}, err
		}
	}
	return persisted, nil
}

// DeleteEntry removes one entry without reversing its balance or aggregate
// effects. It is an administrative correction tool; callers that need the
// books to stay consistent issue a compensating Append or recompute.
func (service *Service) DeleteEntry(ctx context.Context, id EntryID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetEntry(ctx, id); err != nil {
			return err
		}
		return transactionStore.DeleteEntryRow(ctx, id)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDeleteEntry,
		Error:     operationError,
	})
	return operationError
}

// Balance returns the cached balance for a user.
func (service *Service) Balance(ctx context.Context, userID UserID) (AmountCents, error) {
	user, err := service.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.BalanceCents, nil
}

// RecomputeBalance overwrites the cached balance with the sum of the
// user's ledger entries. Repair path only, never part of a normal write.
func (service *Service) RecomputeBalance(ctx context.Context, userID UserID) (AmountCents, error) {
	var recomputed AmountCents
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetUser(ctx, userID); err != nil {
			return err
		}
		total, err := transactionStore.SumEntryAmounts(ctx, userID)
		if err != nil {
			return err
		}
		if err := transactionStore.SetBalance(ctx, userID, total); err != nil {
			return err
		}
		recomputed = total
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:   operationRecomputeBalance,
		UserID:      userID,
		AmountCents: recomputed,
		Error:       operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	return recomputed, nil
}

// UserEntries lists a user's entries most-recent-first, paginated.
func (service *Service) UserEntries(ctx context.Context, userID UserID, limit int, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultEntryPageSize
	}
	if _, err := service.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return service.store.ListUserEntries(ctx, userID, limit, offset)
}

// SessionEntries lists a session's entries most-recent-first.
func (service *Service) SessionEntries(ctx context.Context, sessionID SessionID) ([]Entry, error) {
	if _, err := service.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return service.store.ListSessionEntries(ctx, sessionID)
}

// EntriesBetween lists entries in a date range, most-recent-first.
func (service *Service) EntriesBetween(ctx context.Context, fromUnixUTC int64, toUnixUTC int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultEntryPageSize
	}
	return service.store.ListEntriesBetween(ctx, fromUnixUTC, toUnixUTC, limit)
}

// GlobalStats exposes the raw balance aggregates.
func (service *Service) GlobalStats(ctx context.Context) (GlobalStats, error) {
	return service.store.GlobalStats(ctx)
}

// SessionStats exposes the raw per-item tallies for one session.
func (service *Service) SessionStats(ctx context.Context, sessionID SessionID) ([]ItemTally, error) {
	if _, err := service.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return service.store.SessionItemTallies(ctx, sessionID)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func absAmount(amount AmountCents) AmountCents {
	if amount < 0 {
		return -amount
	}
	return amount
}
