package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emse-students/Le-Cercle/pkg/cercle"
)

const (
	defaultMetadataJSON  = "{}"
	sqliteConstraintCode = 19
	sqliteBusyCode       = 5
	sqliteLockedCode     = 6
	errorOperationStore  = "store"
	errorSubjectUser     = "user"
	errorSubjectGroup    = "group"
	errorSubjectSession  = "session"
	errorSubjectStaffing = "staffing"
	errorSubjectEntry    = "entry"
	errorSubjectItem     = "item"
	errorSubjectMenu     = "menu"
	errorSubjectStats    = "stats"
	errorCodeCreate      = "create"
	errorCodeDelete      = "delete"
	errorCodeDuplicate   = "duplicate"
	errorCodeGet         = "get"
	errorCodeInsert      = "insert"
	errorCodeInvalid     = "invalid"
	errorCodeList        = "list"
	errorCodeCount       = "count"
	errorCodeSum         = "sum"
	errorCodeUpdate      = "update"
	errorCodeContention  = "contention"
)

// Store implements cercle.Store using GORM.
type Store struct {
	db        *gorm.DB
	txOptions *sql.TxOptions
}

// New returns a Store backed by gorm.DB. On postgres every transaction
// runs SERIALIZABLE so the single-open-group check-and-set and the sale
// authorization snapshot cannot interleave; serialization failures surface
// as ErrContention for the caller to retry. sqlite serializes writers on
// its own, so it keeps the driver default.
func New(db *gorm.DB) *Store {
	return &Store{db: db, txOptions: txOptionsFor(db.Dialector.Name())}
}

func txOptionsFor(driver string) *sql.TxOptions {
	if driver == "postgres" {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// AutoMigrate creates or updates the schema. Intended for sqlite; managed
// postgres deployments migrate out of band.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// WithTx executes fn within a transaction at the store's isolation level.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore cercle.Store) error) error {
	run := func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, txOptions: store.txOptions})
	}
	var err error
	if store.txOptions != nil {
		err = store.db.WithContext(ctx).Transaction(run, store.txOptions)
	} else {
		err = store.db.WithContext(ctx).Transaction(run)
	}
	if isContention(err) {
		return wrapStoreError(errorSubjectEntry, errorCodeContention, cercle.ErrContention)
	}
	return err
}

func (store *Store) CreateUser(ctx context.Context, user cercle.User) (cercle.User, error) {
	model := UserModel{
		Login:        user.Login,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Email:        user.Email,
		Promo:        user.Promo,
		Role:         string(user.Role),
		Cotisation:   string(user.Cotisation),
		BalanceCents: int64(user.BalanceCents),
		CreatedAt:    unixToTime(user.CreatedUnixUTC),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return cercle.User{}, wrapStoreError(errorSubjectUser, errorCodeDuplicate, cercle.ErrDuplicateLogin)
	}
	if err != nil {
		return cercle.User{}, wrapStoreError(errorSubjectUser, errorCodeCreate, err)
	}
	return mapUser(model)
}

func (store *Store) GetUser(ctx context.Context, id cercle.UserID) (cercle.User, error) {
	var model UserModel
	err := store.db.WithContext(ctx).Where("id = ?", int64(id)).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cercle.User{}, wrapStoreError(errorSubjectUser, errorCodeGet, cercle.ErrUserNotFound)
	}
	if err != nil {
		return cercle.User{}, wrapStoreError(errorSubjectUser, errorCodeGet, err)
	}
	return mapUser(model)
}

func (store *Store) UpdateUserRole(ctx context.Context, id cercle.UserID, role cercle.Role) error {
	return store.updateUserColumn(ctx, id, "role", string(role))
}

func (store *Store) UpdateUserCotisation(ctx context.Context, id cercle.UserID, cotisation cercle.Cotisation) error {
	return store.updateUserColumn(ctx, id, "cotisation", string(cotisation))
}

func (store *Store) updateUserColumn(ctx context.Context, id cercle.UserID, column string, value string) error {
	result := store.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", int64(id)).
		UpdateColumn(column, value)
	if result.Error != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, cercle.ErrUserNotFound)
	}
	return nil
}

func (store *Store) AddToBalance(ctx context.Context, id cercle.UserID, delta cercle.AmountCents) error {
	result := store.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", int64(id)).
		UpdateColumn("balance_cents", gorm.Expr("balance_cents + ?", int64(delta)))
	if result.Error != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, cercle.ErrUserNotFound)
	}
	return nil
}

func (store *Store) SetBalance(ctx context.Context, id cercle.UserID, balance cercle.AmountCents) error {
	result := store.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", int64(id)).
		UpdateColumn("balance_cents", int64(balance))
	if result.Error != nil {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectUser, errorCodeUpdate, cercle.ErrUserNotFound)
	}
	return nil
}

func (store *Store) SumEntryAmounts(ctx context.Context, id cercle.UserID) (cercle.AmountCents, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntryModel{}).
		Select("coalesce(sum(amount_cents),0) as total").
		Where("beneficiary_id = ?", int64(id)).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectEntry, errorCodeSum, err)
	}
	return cercle.AmountCents(sum.Total), nil
}

func (store *Store) DeleteStaffingForUser(ctx context.Context, id cercle.UserID) error {
	err := store.db.WithContext(ctx).
		Where("user_id = ?", int64(id)).
		Delete(&SessionStaff{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectStaffing, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) DeleteEntriesForUser(ctx context.Context, id cercle.UserID) error {
	err := store.db.WithContext(ctx).
		Where("beneficiary_id = ? OR payer_id = ?", int64(id), int64(id)).
		Delete(&LedgerEntryModel{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) SessionsTouchedByUser(ctx context.Context, id cercle.UserID) ([]cercle.SessionID, error) {
	var rawIDs []int64
	err := store.db.WithContext(ctx).
		Model(&LedgerEntryModel{}).
		Distinct("session_id").
		Where("session_id IS NOT NULL").
		Where("beneficiary_id = ? OR payer_id = ?", int64(id), int64(id)).
		Order("session_id").
		Pluck("session_id", &rawIDs).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	touched := make([]cercle.SessionID, 0, len(rawIDs))
	for _, rawID := range rawIDs {
		touched = append(touched, cercle.SessionID(rawID))
	}
	return touched, nil
}

func (store *Store) DeleteUserRow(ctx context.Context, id cercle.UserID) error {
	result := store.db.WithContext(ctx).Where("id = ?", int64(id)).Delete(&UserModel{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectUser, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectUser, errorCodeDelete, cercle.ErrUserNotFound)
	}
	return nil
}

func (store *Store) CreateGroup(ctx context.Context, group cercle.SessionGroup) (cercle.SessionGroup, error) {
	model := SessionGroupModel{
		Name: group.Name,
		Year: group.Year,
		Open: group.Open,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if err != nil {
		return cercle.SessionGroup{}, wrapStoreError(errorSubjectGroup, errorCodeCreate, err)
	}
	return mapGroup(model), nil
}

func (store *Store) GetGroup(ctx context.Context, id cercle.SessionGroupID) (cercle.SessionGroup, error) {
	var model SessionGroupModel
	err := store.db.WithContext(ctx).Where("id = ?", int64(id)).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cercle.SessionGroup{}, wrapStoreError(errorSubjectGroup, errorCodeGet, cercle.ErrGroupNotFound)
	}
	if err != nil {
		return cercle.SessionGroup{}, wrapStoreError(errorSubjectGroup, errorCodeGet, err)
	}
	return mapGroup(model), nil
}

func (store *Store) FindGroupByName(ctx context.Context, name string, year int) (cercle.SessionGroup, error) {
	var model SessionGroupModel
	err := store.db.WithContext(ctx).Where("name = ? AND year = ?", name, year).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cercle.SessionGroup{}, wrapStoreError(errorSubjectGroup, errorCodeGet, cercle.ErrGroupNotFound)
	}
	if err != nil {
		return cercle.SessionGroup{}, wrapStoreError(errorSubjectGroup, errorCodeGet, err)
	}
	return mapGroup(model), nil
}

func (store *Store) FindOpenGroup(ctx context.Context) (cercle.SessionGroup, error) {
	var model SessionGroupModel
	err := store.db.WithContext(ctx).Where("open = ?", true).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cercle.SessionGroup{}, wrapStoreError(errorSubjectGroup, errorCodeGet, cercle.ErrGroupNotFound)
	}
	if err != nil {
		return cercle.SessionGroup{}, wrapStoreError(errorSubjectGroup, errorCodeGet, err)
	}
	return mapGroup(model), nil
}

func (store *Store) SetGroupOpen(ctx context.Context, id cercle.SessionGroupID, open bool) error {
	result := store.db.WithContext(ctx).
		Model(&SessionGroupModel{}).
		Where("id = ?", int64(id)).
		UpdateColumn("open", open)
	if result.Error != nil {
		return wrapStoreError(errorSubjectGroup, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectGroup, errorCodeUpdate, cercle.ErrGroupNotFound)
	}
	return nil
}

func (store *Store) CreateSession(ctx context.Context, session cercle.Session) (cercle.Session, error) {
	model := SessionModel{
		GroupID:         int64(session.GroupID),
		Date:            unixToTime(session.DateUnixUTC),
		TotalSalesCents: int64(session.TotalSalesCents),
		TotalVolumeML:   int64(session.TotalVolumeML),
	}
	if model.Date.IsZero() {
		model.Date = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if err != nil {
		return cercle.Session{}, wrapStoreError(errorSubjectSession, errorCodeCreate, err)
	}
	return mapSession(model), nil
}

func (store *Store) GetSession(ctx context.Context, id cercle.SessionID) (cercle.Session, error) {
	var model SessionModel
	err := store.db.WithContext(ctx).Where("id = ?", int64(id)).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cercle.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, cercle.ErrSessionNotFound)
	}
	if err != nil {
		return cercle.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	return mapSession(model), nil
}

func (store *Store) ActiveSession(ctx context.Context) (cercle.Session, error) {
	var model SessionModel
	err := store.db.WithContext(ctx).
		Joins("JOIN session_groups ON session_groups.id = sessions.group_id").
		Where("session_groups.open = ?", true).
		Order("sessions.date DESC").
		Order("sessions.id DESC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cercle.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, cercle.ErrSessionNotFound)
	}
	if err != nil {
		return cercle.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	return mapSession(model), nil
}

func (store *Store) AddSessionTotals(ctx context.Context, id cercle.SessionID, sales cercle.AmountCents, volume cercle.Milliliters) error {
	result := store.db.WithContext(ctx).
		Model(&SessionModel{}).
		Where("id = ?", int64(id)).
		UpdateColumns(map[string]interface{}{
			"total_sales_cents": gorm.Expr("total_sales_cents + ?", int64(sales)),
			"total_volume_ml":   gorm.Expr("total_volume_ml + ?", int64(volume)),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSession, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSession, errorCodeUpdate, cercle.ErrSessionNotFound)
	}
	return nil
}

func (store *Store) RecomputeSessionTotals(ctx context.Context, id cercle.SessionID) error {
	var sales sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntryModel{}).
		Select("coalesce(sum(abs(amount_cents)),0) as total").
		Where("session_id = ?", int64(id)).
		Where("kind IN ?", []string{string(cercle.KindDrink), string(cercle.KindSnack)}).
		Scan(&sales).Error
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeSum, err)
	}
	var volume sqlSum
	err = store.db.WithContext(ctx).
		Model(&LedgerEntryModel{}).
		Select("coalesce(sum(ledger_entries.quantity * catalog_items.volume_ml),0) as total").
		Joins("JOIN catalog_items ON catalog_items.id = ledger_entries.item_id AND catalog_items.kind = ledger_entries.kind").
		Where("ledger_entries.session_id = ?", int64(id)).
		Where("ledger_entries.kind = ?", string(cercle.KindDrink)).
		Scan(&volume).Error
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeSum, err)
	}
	result := store.db.WithContext(ctx).
		Model(&SessionModel{}).
		Where("id = ?", int64(id)).
		UpdateColumns(map[string]interface{}{
			"total_sales_cents": sales.Total,
			"total_volume_ml":   volume.Total,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSession, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSession, errorCodeUpdate, cercle.ErrSessionNotFound)
	}
	return nil
}

func (store *Store) CountSessionsInGroup(ctx context.Context, id cercle.SessionGroupID) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&SessionModel{}).
		Where("group_id = ?", int64(id)).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectSession, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) DeleteSessionRow(ctx context.Context, id cercle.SessionID) error {
	err := store.db.WithContext(ctx).Where("id = ?", int64(id)).Delete(&SessionModel{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) DeleteGroupRow(ctx context.Context, id cercle.SessionGroupID) error {
	err := store.db.WithContext(ctx).Where("id = ?", int64(id)).Delete(&SessionGroupModel{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectGroup, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) AddStaff(ctx context.Context, sessionID cercle.SessionID, userID cercle.UserID) error {
	model := SessionStaff{SessionID: int64(sessionID), UserID: int64(userID)}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectStaffing, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) RemoveStaff(ctx context.Context, sessionID cercle.SessionID, userID cercle.UserID) error {
	err := store.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", int64(sessionID), int64(userID)).
		Delete(&SessionStaff{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectStaffing, errorCodeDelete, err)
	}
	return nil
}

// SessionAccess reads staffing and openness in one query so both facts come
// from the same snapshot.
func (store *Store) SessionAccess(ctx context.Context, sessionID cercle.SessionID, userID cercle.UserID) (cercle.SessionAccess, error) {
	var row struct {
		Staffed bool
		Open    bool
	}
	err := store.db.WithContext(ctx).
		Model(&SessionModel{}).
		Select(
			"session_groups.open as open, "+
				"exists(select 1 from session_staff where session_staff.session_id = sessions.id and session_staff.user_id = ?) as staffed",
			int64(userID),
		).
		Joins("JOIN session_groups ON session_groups.id = sessions.group_id").
		Where("sessions.id = ?", int64(sessionID)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cercle.SessionAccess{}, wrapStoreError(errorSubjectSession, errorCodeGet, cercle.ErrSessionNotFound)
	}
	if err != nil {
		return cercle.SessionAccess{}, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	return cercle.SessionAccess{Staffed: row.Staffed, Open: row.Open}, nil
}

func (store *Store) DeleteStaffingForSession(ctx context.Context, sessionID cercle.SessionID) error {
	err := store.db.WithContext(ctx).
		Where("session_id = ?", int64(sessionID)).
		Delete(&SessionStaff{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectStaffing, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) InsertEntry(ctx context.Context, entry cercle.Entry) (cercle.Entry, error) {
	model := LedgerEntryModel{
		BeneficiaryID: int64(entry.BeneficiaryID),
		PayerID:       int64(entry.PayerID),
		SessionID:     sessionIDColumn(entry.SessionID),
		Kind:          string(entry.Kind),
		ItemID:        itemIDColumn(entry.ItemID),
		Date:          unixToTime(entry.DateUnixUTC),
		Quantity:      entry.Quantity,
		AmountCents:   int64(entry.AmountCents),
		Metadata:      datatypesJSON(entry.Metadata),
	}
	if model.Date.IsZero() {
		model.Date = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if err != nil {
		return cercle.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return mapEntry(model), nil
}

func (store *Store) GetEntry(ctx context.Context, id cercle.EntryID) (cercle.Entry, error) {
	var model LedgerEntryModel
	err := store.db.WithContext(ctx).Where("id = ?", int64(id)).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cercle.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, cercle.ErrEntryNotFound)
	}
	if err != nil {
		return cercle.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeGet, err)
	}
	return mapEntry(model), nil
}

func (store *Store) DeleteEntryRow(ctx context.Context, id cercle.EntryID) error {
	result := store.db.WithContext(ctx).Where("id = ?", int64(id)).Delete(&LedgerEntryModel{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectEntry, errorCodeDelete, cercle.ErrEntryNotFound)
	}
	return nil
}

func (store *Store) DeleteEntriesForSession(ctx context.Context, sessionID cercle.SessionID) error {
	err := store.db.WithContext(ctx).
		Where("session_id = ?", int64(sessionID)).
		Delete(&LedgerEntryModel{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) ListUserEntries(ctx context.Context, userID cercle.UserID, limit int, offset int) ([]cercle.Entry, error) {
	var rows []LedgerEntryModel
	err := store.db.WithContext(ctx).
		Where("beneficiary_id = ?", int64(userID)).
		Order("date DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapEntries(rows), nil
}

func (store *Store) ListSessionEntries(ctx context.Context, sessionID cercle.SessionID) ([]cercle.Entry, error) {
	var rows []LedgerEntryModel
	err := store.db.WithContext(ctx).
		Where("session_id = ?", int64(sessionID)).
		Order("date DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapEntries(rows), nil
}

func (store *Store) ListEntriesBetween(ctx context.Context, fromUnixUTC int64, toUnixUTC int64, limit int) ([]cercle.Entry, error) {
	var rows []LedgerEntryModel
	err := store.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", unixToTime(fromUnixUTC), unixToTime(toUnixUTC)).
		Order("date DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapEntries(rows), nil
}

func (store *Store) CountEntriesForItem(ctx context.Context, kind cercle.EntryKind, itemID cercle.ItemID) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&LedgerEntryModel{}).
		Where("kind = ? AND item_id = ?", string(kind), int64(itemID)).
		Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectEntry, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) CreateItem(ctx context.Context, item cercle.CatalogItem) (cercle.CatalogItem, error) {
	model := CatalogItemModel{
		Kind:       string(item.Kind),
		Name:       item.Name,
		PriceCents: int64(item.PriceCents),
		VolumeML:   int64(item.VolumeML),
		ABVTenths:  item.ABVTenths,
		Stock:      item.Stock,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if err != nil {
		return cercle.CatalogItem{}, wrapStoreError(errorSubjectItem, errorCodeCreate, err)
	}
	return mapItem(model), nil
}

func (store *Store) GetItem(ctx context.Context, kind cercle.EntryKind, id cercle.ItemID) (cercle.CatalogItem, error) {
	var model CatalogItemModel
	err := store.db.WithContext(ctx).
		Where("id = ? AND kind = ?", int64(id), string(kind)).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cercle.CatalogItem{}, wrapStoreError(errorSubjectItem, errorCodeGet, cercle.ErrItemNotFound)
	}
	if err != nil {
		return cercle.CatalogItem{}, wrapStoreError(errorSubjectItem, errorCodeGet, err)
	}
	return mapItem(model), nil
}

func (store *Store) DeleteItemRow(ctx context.Context, kind cercle.EntryKind, id cercle.ItemID) error {
	result := store.db.WithContext(ctx).
		Where("id = ? AND kind = ?", int64(id), string(kind)).
		Delete(&CatalogItemModel{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectItem, errorCodeDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectItem, errorCodeDelete, cercle.ErrItemNotFound)
	}
	return nil
}

func (store *Store) AddMenuItem(ctx context.Context, item cercle.MenuItem) error {
	model := MenuEntryModel{
		GroupID: int64(item.GroupID),
		Kind:    string(item.Kind),
		ItemID:  int64(item.ItemID),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectMenu, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) RemoveMenuItem(ctx context.Context, item cercle.MenuItem) error {
	err := store.db.WithContext(ctx).
		Where("group_id = ? AND kind = ? AND item_id = ?", int64(item.GroupID), string(item.Kind), int64(item.ItemID)).
		Delete(&MenuEntryModel{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectMenu, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) ListMenu(ctx context.Context, groupID cercle.SessionGroupID) ([]cercle.MenuItem, error) {
	var rows []MenuEntryModel
	err := store.db.WithContext(ctx).
		Where("group_id = ?", int64(groupID)).
		Order("item_id").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectMenu, errorCodeList, err)
	}
	items := make([]cercle.MenuItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, cercle.MenuItem{
			GroupID: cercle.SessionGroupID(row.GroupID),
			Kind:    cercle.EntryKind(row.Kind),
			ItemID:  cercle.ItemID(row.ItemID),
		})
	}
	return items, nil
}

func (store *Store) DeleteMenuForItem(ctx context.Context, kind cercle.EntryKind, id cercle.ItemID) error {
	err := store.db.WithContext(ctx).
		Where("kind = ? AND item_id = ?", string(kind), int64(id)).
		Delete(&MenuEntryModel{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectMenu, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) GlobalStats(ctx context.Context) (cercle.GlobalStats, error) {
	var row struct {
		Positive         int64
		Negative         int64
		UserCount        int64
		ContributorCount int64
	}
	err := store.db.WithContext(ctx).
		Model(&UserModel{}).
		Select(
			"coalesce(sum(case when balance_cents > 0 then balance_cents else 0 end),0) as positive, " +
				"coalesce(sum(case when balance_cents < 0 then balance_cents else 0 end),0) as negative, " +
				"count(*) as user_count, " +
				"coalesce(sum(case when cotisation <> 'none' then 1 else 0 end),0) as contributor_count",
		).
		Scan(&row).Error
	if err != nil {
		return cercle.GlobalStats{}, wrapStoreError(errorSubjectStats, errorCodeSum, err)
	}
	return cercle.GlobalStats{
		PositiveBalanceCents: cercle.AmountCents(row.Positive),
		NegativeBalanceCents: cercle.AmountCents(row.Negative),
		UserCount:            row.UserCount,
		ContributorCount:     row.ContributorCount,
	}, nil
}

func (store *Store) SessionItemTallies(ctx context.Context, sessionID cercle.SessionID) ([]cercle.ItemTally, error) {
	var rows []struct {
		Kind         string
		ItemID       int64
		Name         string
		Count        int64
		RevenueCents int64
		VolumeML     int64
	}
	err := store.db.WithContext(ctx).
		Model(&LedgerEntryModel{}).
		Select(
			"ledger_entries.kind as kind, "+
				"ledger_entries.item_id as item_id, "+
				"catalog_items.name as name, "+
				"coalesce(sum(ledger_entries.quantity),0) as count, "+
				"coalesce(sum(abs(ledger_entries.amount_cents)),0) as revenue_cents, "+
				"coalesce(sum(case when ledger_entries.kind = 'drink' then ledger_entries.quantity * catalog_items.volume_ml else 0 end),0) as volume_ml",
		).
		Joins("JOIN catalog_items ON catalog_items.id = ledger_entries.item_id AND catalog_items.kind = ledger_entries.kind").
		Where("ledger_entries.session_id = ?", int64(sessionID)).
		Where("ledger_entries.kind IN ?", []string{string(cercle.KindDrink), string(cercle.KindSnack)}).
		Group("ledger_entries.kind, ledger_entries.item_id, catalog_items.name").
		Order("ledger_entries.item_id").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectStats, errorCodeSum, err)
	}
	tallies := make([]cercle.ItemTally, 0, len(rows))
	for _, row := range rows {
		tallies = append(tallies, cercle.ItemTally{
			Kind:         cercle.EntryKind(row.Kind),
			ItemID:       cercle.ItemID(row.ItemID),
			Name:         row.Name,
			Count:        row.Count,
			RevenueCents: cercle.AmountCents(row.RevenueCents),
			VolumeML:     cercle.Milliliters(row.VolumeML),
		})
	}
	return tallies, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return cercle.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

func mapUser(model UserModel) (cercle.User, error) {
	role, err := cercle.ParseRole(model.Role)
	if err != nil {
		return cercle.User{}, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
	}
	cotisation, err := cercle.ParseCotisation(model.Cotisation)
	if err != nil {
		return cercle.User{}, wrapStoreError(errorSubjectUser, errorCodeInvalid, err)
	}
	return cercle.User{
		ID:             cercle.UserID(model.ID),
		Login:          model.Login,
		FirstName:      model.FirstName,
		LastName:       model.LastName,
		Email:          model.Email,
		Promo:          model.Promo,
		Role:           role,
		Cotisation:     cotisation,
		BalanceCents:   cercle.AmountCents(model.BalanceCents),
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func mapGroup(model SessionGroupModel) cercle.SessionGroup {
	return cercle.SessionGroup{
		ID:   cercle.SessionGroupID(model.ID),
		Name: model.Name,
		Year: model.Year,
		Open: model.Open,
	}
}

func mapSession(model SessionModel) cercle.Session {
	return cercle.Session{
		ID:              cercle.SessionID(model.ID),
		GroupID:         cercle.SessionGroupID(model.GroupID),
		DateUnixUTC:     model.Date.Unix(),
		TotalSalesCents: cercle.AmountCents(model.TotalSalesCents),
		TotalVolumeML:   cercle.Milliliters(model.TotalVolumeML),
	}
}

func mapItem(model CatalogItemModel) cercle.CatalogItem {
	return cercle.CatalogItem{
		ID:         cercle.ItemID(model.ID),
		Kind:       cercle.EntryKind(model.Kind),
		Name:       model.Name,
		PriceCents: cercle.AmountCents(model.PriceCents),
		VolumeML:   cercle.Milliliters(model.VolumeML),
		ABVTenths:  model.ABVTenths,
		Stock:      model.Stock,
	}
}

func mapEntry(model LedgerEntryModel) cercle.Entry {
	var sessionID *cercle.SessionID
	if model.SessionID != nil {
		value := cercle.SessionID(*model.SessionID)
		sessionID = &value
	}
	var itemID *cercle.ItemID
	if model.ItemID != nil {
		value := cercle.ItemID(*model.ItemID)
		itemID = &value
	}
	return cercle.Entry{
		ID:            cercle.EntryID(model.ID),
		BeneficiaryID: cercle.UserID(model.BeneficiaryID),
		PayerID:       cercle.UserID(model.PayerID),
		SessionID:     sessionID,
		Kind:          cercle.EntryKind(model.Kind),
		ItemID:        itemID,
		DateUnixUTC:   model.Date.Unix(),
		Quantity:      model.Quantity,
		AmountCents:   cercle.AmountCents(model.AmountCents),
		Metadata:      string(model.Metadata),
	}
}

func mapEntries(rows []LedgerEntryModel) []cercle.Entry {
	entries := make([]cercle.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, mapEntry(row))
	}
	return entries
}

func sessionIDColumn(id *cercle.SessionID) *int64 {
	if id == nil {
		return nil
	}
	value := int64(*id)
	return &value
}

func itemIDColumn(id *cercle.ItemID) *int64 {
	if id == nil {
		return nil
	}
	value := int64(*id)
	return &value
}

func unixToTime(unixUTC int64) time.Time {
	if unixUTC == 0 {
		return time.Time{}
	}
	return time.Unix(unixUTC, 0).UTC()
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

func isContention(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		primary := sqliteErr.Code() & 0xFF
		return primary == sqliteBusyCode || primary == sqliteLockedCode
	}
	return false
}
