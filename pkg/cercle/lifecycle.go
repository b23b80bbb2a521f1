package cercle

import (
	"context"
	"fmt"
	"strings"
)

// RegisterUser creates a member with a zero balance.
func (service *Service) RegisterUser(ctx context.Context, draft UserDraft) (User, error) {
	var created User
	operationError := draft.Validate()
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			user, err := transactionStore.CreateUser(ctx, User{
				Login:          draft.Login,
				FirstName:      draft.FirstName,
				LastName:       draft.LastName,
				Email:          draft.Email,
				Promo:          draft.Promo,
				Role:           draft.Role,
				Cotisation:     draft.Cotisation,
				CreatedUnixUTC: service.nowFn(),
			})
			if err != nil {
				return err
			}
			created = user
			return nil
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationRegisterUser,
		UserID:    created.ID,
		Error:     operationError,
	})
	if operationError != nil {
		return User{}, operationError
	}
	return created, nil
}

// UpdateUserRole changes a user's role.
func (service *Service) UpdateUserRole(ctx context.Context, userID UserID, role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetUser(ctx, userID); err != nil {
			return err
		}
		return transactionStore.UpdateUserRole(ctx, userID, role)
	})
}

// UpdateUserCotisation changes a user's cotisation status.
func (service *Service) UpdateUserCotisation(ctx context.Context, userID UserID, cotisation Cotisation) error {
	if _, err := ParseCotisation(string(cotisation)); err != nil {
		return err
	}
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetUser(ctx, userID); err != nil {
			return err
		}
		return transactionStore.UpdateUserCotisation(ctx, userID, cotisation)
	})
}

// DeleteUser hard-deletes a user and every row referencing them, as one
// atomic cascade: staffing, then ledger entries where the user is
// beneficiary or payer, then the user row. The session aggregates those
// entries fed are recomputed from the remaining ledger inside the same
// transaction, so session totals stay consistent with the ledger instead
// of silently drifting.
func (service *Service) DeleteUser(ctx context.Context, userID UserID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetUser(ctx, userID); err != nil {
			return err
		}
		touched, err := transactionStore.SessionsTouchedByUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := transactionStore.DeleteStaffingForUser(ctx, userID); err != nil {
			return err
		}
		if err := transactionStore.DeleteEntriesForUser(ctx, userID); err != nil {
			return err
		}
		if err := transactionStore.DeleteUserRow(ctx, userID); err != nil {
			return err
		}
		for _, sessionID := range touched {
			if err := transactionStore.RecomputeSessionTotals(ctx, sessionID); err != nil {
				return err
			}
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDeleteUser,
		UserID:    userID,
		Error:     operationError,
	})
	return operationError
}

// CreateCatalogItem registers a sellable drink or snack. Operator-gated.
func (service *Service) CreateCatalogItem(ctx context.Context, actor Principal, item CatalogItem) (CatalogItem, error) {
	if err := service.AuthorizeAdmin(actor); err != nil {
		return CatalogItem{}, err
	}
	if !item.Kind.Billable() {
		return CatalogItem{}, fmt.Errorf("%w: %q", ErrInvalidKind, item.Kind)
	}
	if strings.TrimSpace(item.Name) == "" {
		return CatalogItem{}, fmt.Errorf("%w: empty value", ErrInvalidItemName)
	}
	if item.PriceCents <= 0 {
		return CatalogItem{}, ErrInvalidAmount
	}
	return service.store.CreateItem(ctx, item)
}

// DeleteCatalogItem removes an unused catalog item and its menu rows.
// Fails with ErrItemInUse while any ledger entry still references it.
func (service *Service) DeleteCatalogItem(ctx context.Context, kind EntryKind, itemID ItemID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetItem(ctx, kind, itemID); err != nil {
			return err
		}
		referenced, err := transactionStore.CountEntriesForItem(ctx, kind, itemID)
		if err != nil {
			return err
		}
		if referenced > 0 {
			return ErrItemInUse
		}
		if err := transactionStore.DeleteMenuForItem(ctx, kind, itemID); err != nil {
			return err
		}
		return transactionStore.DeleteItemRow(ctx, kind, itemID)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDeleteItem,
		Kind:      kind,
		Error:     operationError,
	})
	return operationError
}
