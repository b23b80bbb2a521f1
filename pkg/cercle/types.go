package cercle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// AmountCents is a signed integer currency in cents. Negative values are
// consumptions, positive values are credits.
type AmountCents int64

// Milliliters measures served drink volume.
type Milliliters int64

// Identifiers are server-assigned and strictly increasing per table.
type (
	UserID         int64
	SessionGroupID int64
	SessionID      int64
	ItemID         int64
	EntryID        int64
)

// Role separates ordinary members from operators ("cercleux").
type Role string

const (
	RoleMember   Role = "member"
	RoleOperator Role = "operator"
)

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(raw)) {
	case RoleMember:
		return RoleMember, nil
	case RoleOperator:
		return RoleOperator, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// Cotisation is the membership-fee status of a user.
type Cotisation string

const (
	CotisationNone        Cotisation = "none"
	CotisationNoAlcohol   Cotisation = "no_alcohol"
	CotisationWithAlcohol Cotisation = "with_alcohol"
)

// ParseCotisation validates a raw cotisation status string.
func ParseCotisation(raw string) (Cotisation, error) {
	switch Cotisation(strings.TrimSpace(raw)) {
	case CotisationNone:
		return CotisationNone, nil
	case CotisationNoAlcohol:
		return CotisationNoAlcohol, nil
	case CotisationWithAlcohol:
		return CotisationWithAlcohol, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// EntryKind enumerates ledger entry kinds.
type EntryKind string

const (
	KindDrink    EntryKind = "drink"
	KindSnack    EntryKind = "snack"
	KindRecharge EntryKind = "recharge"
	KindOther    EntryKind = "other"
)

// ParseEntryKind validates a raw entry kind string.
func ParseEntryKind(raw string) (EntryKind, error) {
	switch EntryKind(strings.TrimSpace(raw)) {
	case KindDrink:
		return KindDrink, nil
	case KindSnack:
		return KindSnack, nil
	case KindRecharge:
		return KindRecharge, nil
	case KindOther:
		return KindOther, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
}

// Billable reports whether the kind feeds session sale aggregates.
func (kind EntryKind) Billable() bool {
	return kind == KindDrink || kind == KindSnack
}

// RequiresItem reports whether an entry of this kind must reference a
// catalog item.
func (kind EntryKind) RequiresItem() bool {
	return kind.Billable()
}

// MetadataJSON stores arbitrary caller metadata attached to an entry.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadata)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// User is a member with a cached running balance.
type User struct {
	ID             UserID
	Login          string
	FirstName      string
	LastName       string
	Email          string
	Promo          string
	Role           Role
	Cotisation     Cotisation
	BalanceCents   AmountCents
	CreatedUnixUTC int64
}

// UserDraft carries the caller-supplied fields of a registration.
type UserDraft struct {
	Login      string
	FirstName  string
	LastName   string
	Email      string
	Promo      string
	Role       Role
	Cotisation Cotisation
}

// Validate checks the registration fields.
func (draft UserDraft) Validate() error {
	if strings.TrimSpace(draft.Login) == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidLogin)
	}
	if _, err := ParseRole(string(draft.Role)); err != nil {
		return err
	}
	if _, err := ParseCotisation(string(draft.Cotisation)); err != nil {
		return err
	}
	return nil
}

// SessionGroup is a recurring named session series. Its Open flag is the
// single system-wide "a session is live" switch.
type SessionGroup struct {
	ID   SessionGroupID
	Name string
	Year int
	Open bool
}

// Session is one scheduled serving occurrence. Openness is inherited from
// the owning group; the session row carries no open state of its own.
type Session struct {
	ID              SessionID
	GroupID         SessionGroupID
	DateUnixUTC     int64
	TotalSalesCents AmountCents
	TotalVolumeML   Milliliters
}

// CatalogItem is a sellable drink or snack.
type CatalogItem struct {
	ID         ItemID
	Kind       EntryKind
	Name       string
	PriceCents AmountCents
	VolumeML   Milliliters
	ABVTenths  int
	Stock      int
}

// MenuItem associates a catalog item with a session group's menu.
type MenuItem struct {
	GroupID SessionGroupID
	Kind    EntryKind
	ItemID  ItemID
}

// Entry is a single immutable line in the ledger.
type Entry struct {
	ID            EntryID
	BeneficiaryID UserID
	PayerID       UserID
	SessionID     *SessionID
	Kind          EntryKind
	ItemID        *ItemID
	DateUnixUTC   int64
	Quantity      int64
	AmountCents   AmountCents
	Metadata      string
}

// EntryDraft carries the caller-supplied fields of an Append.
type EntryDraft struct {
	BeneficiaryID UserID
	PayerID       UserID
	SessionID     *SessionID
	Kind          EntryKind
	ItemID        *ItemID
	Quantity      int64
	AmountCents   AmountCents
	Metadata      MetadataJSON
}

// Validate checks the draft fields that need no store lookup.
func (draft EntryDraft) Validate() error {
	if _, err := ParseEntryKind(string(draft.Kind)); err != nil {
		return err
	}
	if draft.Quantity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, draft.Quantity)
	}
	if draft.Kind.Billable() && draft.AmountCents == 0 {
		return ErrInvalidAmount
	}
	if draft.Kind.RequiresItem() && draft.ItemID == nil {
		return ErrMissingItem
	}
	return nil
}

// SaleDraft carries a barman-recorded sale. The signed amount is derived
// from the catalog price inside the transaction.
type SaleDraft struct {
	BeneficiaryID UserID
	SessionID     SessionID
	Kind          EntryKind
	ItemID        ItemID
	Quantity      int64
	Metadata      MetadataJSON
}

// Principal is the authenticated identity supplied by the auth middleware.
// The core trusts it and performs no credential verification.
type Principal struct {
	UserID UserID
	Role   Role
}

// SessionAccess is the combined authorization snapshot for one user and
// one session, read in a single query so staffing and openness cannot be
// observed at different instants.
type SessionAccess struct {
	Staffed bool
	Open    bool
}

// GlobalStats are the raw balance aggregates the ledger exposes.
type GlobalStats struct {
	PositiveBalanceCents AmountCents
	NegativeBalanceCents AmountCents
	UserCount            int64
	ContributorCount     int64
}

// ItemTally is the raw per-item sales aggregate for one session.
type ItemTally struct {
	Kind         EntryKind
	ItemID       ItemID
	Name         string
	Count        int64
	RevenueCents AmountCents
	VolumeML     Milliliters
}

// Store is the persistence contract used by Service. Every method that is
// called inside WithTx operates on the transaction-scoped Store the
// closure receives.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	// Users and balances.
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id UserID) (User, error)
	UpdateUserRole(ctx context.Context, id UserID, role Role) error
	UpdateUserCotisation(ctx context.Context, id UserID, cotisation Cotisation) error
	AddToBalance(ctx context.Context, id UserID, delta AmountCents) error
	SetBalance(ctx context.Context, id UserID, balance AmountCents) error
	SumEntryAmounts(ctx context.Context, id UserID) (AmountCents, error)
	DeleteStaffingForUser(ctx context.Context, id UserID) error
	DeleteEntriesForUser(ctx context.Context, id UserID) error
	SessionsTouchedByUser(ctx context.Context, id UserID) ([]SessionID, error)
	DeleteUserRow(ctx context.Context, id UserID) error

	// Sessions and groups.
	CreateGroup(ctx context.Context, group SessionGroup) (SessionGroup, error)
	GetGroup(ctx context.Context, id SessionGroupID) (SessionGroup, error)
	FindGroupByName(ctx context.Context, name string, year int) (SessionGroup, error)
	FindOpenGroup(ctx context.Context) (SessionGroup, error)
	SetGroupOpen(ctx context.Context, id SessionGroupID, open bool) error
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, id SessionID) (Session, error)
	ActiveSession(ctx context.Context) (Session, error)
	AddSessionTotals(ctx context.Context, id SessionID, sales AmountCents, volume Milliliters) error
	RecomputeSessionTotals(ctx context.Context, id SessionID) error
	CountSessionsInGroup(ctx context.Context, id SessionGroupID) (int64, error)
	DeleteSessionRow(ctx context.Context, id SessionID) error
	DeleteGroupRow(ctx context.Context, id SessionGroupID) error

	// Staffing.
	AddStaff(ctx context.Context, sessionID SessionID, userID UserID) error
	RemoveStaff(ctx context.Context, sessionID SessionID, userID UserID) error
	SessionAccess(ctx context.Context, sessionID SessionID, userID UserID) (SessionAccess, error)
	DeleteStaffingForSession(ctx context.Context, sessionID SessionID) error

	// Ledger entries.
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	GetEntry(ctx context.Context, id EntryID) (Entry, error)
	DeleteEntryRow(ctx context.Context, id EntryID) error
	DeleteEntriesForSession(ctx context.Context, sessionID SessionID) error
	ListUserEntries(ctx context.Context, userID UserID, limit int, offset int) ([]Entry, error)
	ListSessionEntries(ctx context.Context, sessionID SessionID) ([]Entry, error)
	ListEntriesBetween(ctx context.Context, fromUnixUTC int64, toUnixUTC int64, limit int) ([]Entry, error)
	CountEntriesForItem(ctx context.Context, kind EntryKind, itemID ItemID) (int64, error)

	// Catalog and menus.
	CreateItem(ctx context.Context, item CatalogItem) (CatalogItem, error)
	GetItem(ctx context.Context, kind EntryKind, id ItemID) (CatalogItem, error)
	DeleteItemRow(ctx context.Context, kind EntryKind, id ItemID) error
	AddMenuItem(ctx context.Context, item MenuItem) error
	RemoveMenuItem(ctx context.Context, item MenuItem) error
	ListMenu(ctx context.Context, groupID SessionGroupID) ([]MenuItem, error)
	DeleteMenuForItem(ctx context.Context, kind EntryKind, id ItemID) error

	// Raw aggregates.
	GlobalStats(ctx context.Context) (GlobalStats, error)
	SessionItemTallies(ctx context.Context, sessionID SessionID) ([]ItemTally, error)
}
