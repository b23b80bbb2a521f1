package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// UserModel mirrors the users table. The balance is a denormalized running
// sum over the user's ledger entries.
type UserModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Login        string `gorm:"not null;uniqueIndex:uniq_users_login"`
	FirstName    string
	LastName     string
	Email        string
	Promo        string
	Role         string    `gorm:"not null"`
	Cotisation   string    `gorm:"not null"`
	BalanceCents int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

// SessionGroupModel mirrors the session_groups table. Open is the single
// system-wide "a session is live" switch.
type SessionGroupModel struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"not null;index:uniq_groups_name_year,unique,priority:1"`
	Year int    `gorm:"not null;index:uniq_groups_name_year,unique,priority:2"`
	Open bool   `gorm:"not null;default:false;index:idx_groups_open"`
}

func (SessionGroupModel) TableName() string { return "session_groups" }

// SessionModel mirrors the sessions table. The totals are denormalized
// sale aggregates over the session's billable entries.
type SessionModel struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	GroupID         int64     `gorm:"not null;index:idx_sessions_group"`
	Date            time.Time `gorm:"not null;index:idx_sessions_date"`
	TotalSalesCents int64     `gorm:"not null;default:0"`
	TotalVolumeML   int64     `gorm:"not null;default:0"`
}

func (SessionModel) TableName() string { return "sessions" }

// SessionStaff mirrors the session_staff join table.
type SessionStaff struct {
	SessionID int64 `gorm:"primaryKey;autoIncrement:false"`
	UserID    int64 `gorm:"primaryKey;autoIncrement:false;index:idx_staff_user"`
}

func (SessionStaff) TableName() string { return "session_staff" }

// CatalogItemModel mirrors the catalog_items table. Drinks and snacks share
// the table, discriminated by kind.
type CatalogItemModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Kind       string `gorm:"not null;index:idx_items_kind"`
	Name       string `gorm:"not null"`
	PriceCents int64  `gorm:"not null"`
	VolumeML   int64  `gorm:"not null;default:0"`
	ABVTenths  int    `gorm:"not null;default:0"`
	Stock      int    `gorm:"not null;default:0"`
}

func (CatalogItemModel) TableName() string { return "catalog_items" }

// MenuEntryModel mirrors the menu_items table, associating catalog items
// with a session group's menu.
type MenuEntryModel struct {
	GroupID int64  `gorm:"primaryKey;autoIncrement:false"`
	Kind    string `gorm:"primaryKey"`
	ItemID  int64  `gorm:"primaryKey;autoIncrement:false;index:idx_menu_item"`
}

func (MenuEntryModel) TableName() string { return "menu_items" }

// LedgerEntryModel mirrors the ledger_entries table. Rows are immutable
// once written; the only mutation is the hard-delete cascades.
type LedgerEntryModel struct {
	ID            int64          `gorm:"primaryKey;autoIncrement"`
	BeneficiaryID int64          `gorm:"not null;index:idx_entries_beneficiary_date,priority:1"`
	PayerID       int64          `gorm:"not null;index:idx_entries_payer"`
	SessionID     *int64         `gorm:"index:idx_entries_session"`
	Kind          string         `gorm:"not null;index:idx_entries_kind_item,priority:1"`
	ItemID        *int64         `gorm:"index:idx_entries_kind_item,priority:2"`
	Date          time.Time      `gorm:"not null;index:idx_entries_beneficiary_date,priority:2"`
	Quantity      int64          `gorm:"not null"`
	AmountCents   int64          `gorm:"not null"`
	Metadata      datatypes.JSON `gorm:"not null"`
}

func (LedgerEntryModel) TableName() string { return "ledger_entries" }

// Models lists every table in migration order.
func Models() []interface{} {
	return []interface{}{
		&UserModel{},
		&SessionGroupModel{},
		&SessionModel{},
		&SessionStaff{},
		&CatalogItemModel{},
		&MenuEntryModel{},
		&LedgerEntryModel{},
	}
}
