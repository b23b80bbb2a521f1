package cercle

import (
	"context"
	"errors"
	"strings"
)

// CreateSession creates a session under the named group, creating the
// group first when it does not exist yet. Aggregates start at zero and the
// group's open flag is untouched.
func (service *Service) CreateSession(ctx context.Context, groupName string, year int, dateUnixUTC int64) (Session, error) {
	name := strings.TrimSpace(groupName)
	if name == "" {
		return Session{}, ErrGroupNotFound
	}
	var created Session
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		group, err := transactionStore.FindGroupByName(ctx, name, year)
		if errors.Is(err, ErrGroupNotFound) {
			group, err = transactionStore.CreateGroup(ctx, SessionGroup{Name: name, Year: year})
		}
		if err != nil {
			return err
		}
		created, err = transactionStore.CreateSession(ctx, Session{
			GroupID:     group.ID,
			DateUnixUTC: dateUnixUTC,
		})
		return err
	})
	if err != nil {
		return Session{}, err
	}
	return created, nil
}

// OpenSession sets the owning group's open flag. At most one group may be
// open system-wide: opening while a different group is open fails with
// ErrSessionAlreadyOpen. Re-opening the same group is a no-op success.
// The check and the set run under one transaction.
func (service *Service) OpenSession(ctx context.Context, sessionID SessionID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		session, err := transactionStore.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		open, err := transactionStore.FindOpenGroup(ctx)
		switch {
		case err == nil && open.ID == session.GroupID:
			return nil
		case err == nil:
			return ErrSessionAlreadyOpen
		case !errors.Is(err, ErrGroupNotFound):
			return err
		}
		return transactionStore.SetGroupOpen(ctx, session.GroupID, true)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationOpenSession,
		SessionID: &sessionID,
		Error:     operationError,
	})
	return operationError
}

// CloseSession clears the owning group's open flag. No-op when closed.
func (service *Service) CloseSession(ctx context.Context, sessionID SessionID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		session, err := transactionStore.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		return transactionStore.SetGroupOpen(ctx, session.GroupID, false)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCloseSession,
		SessionID: &sessionID,
		Error:     operationError,
	})
	return operationError
}

// ActiveSession returns the latest session of the currently open group.
// ErrSessionNotFound when no group is open.
func (service *Service) ActiveSession(ctx context.Context) (Session, error) {
	return service.store.ActiveSession(ctx)
}

// AssignStaff authorizes a user to record sales for a session. Assigning
// an already-assigned user is a no-op.
func (service *Service) AssignStaff(ctx context.Context, sessionID SessionID, userID UserID) error {
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetSession(ctx, sessionID); err != nil {
			return err
		}
		if _, err := transactionStore.GetUser(ctx, userID); err != nil {
			return err
		}
		return transactionStore.AddStaff(ctx, sessionID, userID)
	})
}

// RemoveStaff revokes a user's staffing for a session. Idempotent.
func (service *Service) RemoveStaff(ctx context.Context, sessionID SessionID, userID UserID) error {
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetSession(ctx, sessionID); err != nil {
			return err
		}
		return transactionStore.RemoveStaff(ctx, sessionID, userID)
	})
}

// DeleteSession removes a session and everything referencing it as one
// atomic cascade: entries first, then staffing, then the session row, and
// finally the owning group when no sibling session remains. Children go
// before parents so referential constraints hold at every step.
func (service *Service) DeleteSession(ctx context.Context, sessionID SessionID) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		session, err := transactionStore.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := transactionStore.DeleteEntriesForSession(ctx, sessionID); err != nil {
			return err
		}
		if err := transactionStore.DeleteStaffingForSession(ctx, sessionID); err != nil {
			return err
		}
		if err := transactionStore.DeleteSessionRow(ctx, sessionID); err != nil {
			return err
		}
		remaining, err := transactionStore.CountSessionsInGroup(ctx, session.GroupID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return transactionStore.DeleteGroupRow(ctx, session.GroupID)
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationDeleteSession,
		SessionID: &sessionID,
		Error:     operationError,
	})
	return operationError
}

// AddMenuItem puts a catalog item on a group's menu. Idempotent.
func (service *Service) AddMenuItem(ctx context.Context, item MenuItem) error {
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetGroup(ctx, item.GroupID); err != nil {
			return err
		}
		if _, err := transactionStore.GetItem(ctx, item.Kind, item.ItemID); err != nil {
			return err
		}
		return transactionStore.AddMenuItem(ctx, item)
	})
}

// RemoveMenuItem takes a catalog item off a group's menu. Idempotent.
func (service *Service) RemoveMenuItem(ctx context.Context, item MenuItem) error {
	return service.store.RemoveMenuItem(ctx, item)
}

// MenuFor lists the menu of a session group.
func (service *Service) MenuFor(ctx context.Context, groupID SessionGroupID) ([]MenuItem, error) {
	if _, err := service.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return service.store.ListMenu(ctx, groupID)
}
