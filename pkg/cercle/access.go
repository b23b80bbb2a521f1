package cercle

import "context"

// AuthorizeAdmin reports whether the principal may use administrative
// operations. Only operators may.
func (service *Service) AuthorizeAdmin(actor Principal) error {
	if actor.Role == RoleOperator {
		return nil
	}
	return ErrNotAuthorized
}

// AuthorizeSale reports whether the principal may record sales into the
// given session. Operators always may. Anyone else must be staffed on the
// session AND the owning group must be open; both facts come from one
// store snapshot so the session cannot close between the two checks. The
// returned error distinguishes the deny reasons.
func (service *Service) AuthorizeSale(ctx context.Context, actor Principal, sessionID SessionID) error {
	if actor.Role == RoleOperator {
		if _, err := service.store.GetSession(ctx, sessionID); err != nil {
			return err
		}
		return nil
	}
	access, err := service.store.SessionAccess(ctx, sessionID, actor.UserID)
	if err != nil {
		return err
	}
	return checkAccess(access)
}

// AuthorizeSessionRead reports whether the principal may read a session's
// entries. Operators always may; anyone else must be staffed on the
// session. Openness does not matter for reads, so staff can review a
// closed session.
func (service *Service) AuthorizeSessionRead(ctx context.Context, actor Principal, sessionID SessionID) error {
	if actor.Role == RoleOperator {
		if _, err := service.store.GetSession(ctx, sessionID); err != nil {
			return err
		}
		return nil
	}
	access, err := service.store.SessionAccess(ctx, sessionID, actor.UserID)
	if err != nil {
		return err
	}
	if !access.Staffed {
		return ErrNotStaffed
	}
	return nil
}

// RecordSale is the hot path: it authorizes the actor and appends the sale
// entry inside the same transaction, so the openness read commits with the
// write it guards. The signed amount is derived from the catalog price
// (negative, a consumption).
func (service *Service) RecordSale(ctx context.Context, actor Principal, draft SaleDraft) (Entry, error) {
	var persisted Entry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if actor.Role != RoleOperator {
			access, err := transactionStore.SessionAccess(ctx, draft.SessionID, actor.UserID)
			if err != nil {
				return err
			}
			if err := checkAccess(access); err != nil {
				return err
			}
		}
		if !draft.Kind.Billable() {
			return ErrInvalidKind
		}
		if draft.Quantity <= 0 {
			return ErrInvalidQuantity
		}
		item, err := transactionStore.GetItem(ctx, draft.Kind, draft.ItemID)
		if err != nil {
			return err
		}
		amount := -absAmount(AmountCents(draft.Quantity) * item.PriceCents)
		if amount == 0 {
			return ErrInvalidAmount
		}
		sessionID := draft.SessionID
		itemID := draft.ItemID
		entry, err := service.applyEntry(ctx, transactionStore, EntryDraft{
			BeneficiaryID: draft.BeneficiaryID,
			PayerID:       actor.UserID,
			SessionID:     &sessionID,
			Kind:          draft.Kind,
			ItemID:        &itemID,
			Quantity:      draft.Quantity,
			AmountCents:   amount,
			Metadata:      draft.Metadata,
		})
		if err != nil {
			return err
		}
		persisted = entry
		return nil
	})
	sessionID := draft.SessionID
	service.logOperation(ctx, OperationLog{
		Operation:   operationSale,
		UserID:      draft.BeneficiaryID,
		ActorID:     actor.UserID,
		SessionID:   &sessionID,
		Kind:        draft.Kind,
		AmountCents: persisted.AmountCents,
		Error:       operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return persisted, nil
}

// Recharge credits a member's balance with an out-of-session entry.
// Operator-gated.
func (service *Service) Recharge(ctx context.Context, actor Principal, userID UserID, amount AmountCents) (Entry, error) {
	if err := service.AuthorizeAdmin(actor); err != nil {
		return Entry{}, err
	}
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	var persisted Entry
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		entry, err := service.applyEntry(ctx, transactionStore, EntryDraft{
			BeneficiaryID: userID,
			PayerID:       actor.UserID,
			Kind:          KindRecharge,
			Quantity:      1,
			AmountCents:   amount,
		})
		if err != nil {
			return err
		}
		persisted = entry
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:   operationRecharge,
		UserID:      userID,
		ActorID:     actor.UserID,
		Kind:        KindRecharge,
		AmountCents: amount,
		Error:       operationError,
	})
	if operationError != nil {
		return Entry{}, operationError
	}
	return persisted, nil
}

func checkAccess(access SessionAccess) error {
	if !access.Staffed {
		return ErrNotStaffed
	}
	if !access.Open {
		return ErrSessionClosed
	}
	return nil
}
