package cercle

import (
	"context"
	"sort"
	"testing"
)

type itemKey struct {
	kind EntryKind
	id   ItemID
}

type staffKey struct {
	sessionID SessionID
	userID    UserID
}

type menuKey struct {
	groupID SessionGroupID
	kind    EntryKind
	itemID  ItemID
}

// stubStore is an in-memory Store for service-level tests. It applies
// effects immediately; transactional atomicity is covered by the gormstore
// tests against sqlite.
type stubStore struct {
	users    map[UserID]User
	groups   map[SessionGroupID]SessionGroup
	sessions map[SessionID]Session
	staffing map[staffKey]bool
	items    map[itemKey]CatalogItem
	menu     map[menuKey]bool
	entries  []Entry

	nextUserID    UserID
	nextGroupID   SessionGroupID
	nextSessionID SessionID
	nextItemID    ItemID
	nextEntryID   EntryID

	insertEntryError       error
	insertEntryErrorAtCall int
	insertEntryCalls       int
	addBalanceError        error
	addTotalsError         error
	sessionAccessError     error
	getUserError           error
	deleteEntriesError     error
	recomputeTotalsError   error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		users:    make(map[UserID]User),
		groups:   make(map[SessionGroupID]SessionGroup),
		sessions: make(map[SessionID]Session),
		staffing: make(map[staffKey]bool),
		items:    make(map[itemKey]CatalogItem),
		menu:     make(map[menuKey]bool),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) CreateUser(_ context.Context, user User) (User, error) {
	for _, existing := range store.users {
		if existing.Login == user.Login {
			return User{}, ErrDuplicateLogin
		}
	}
	store.nextUserID++
	user.ID = store.nextUserID
	store.users[user.ID] = user
	return user, nil
}

func (store *stubStore) GetUser(_ context.Context, id UserID) (User, error) {
	if store.getUserError != nil {
		return User{}, store.getUserError
	}
	user, ok := store.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (store *stubStore) UpdateUserRole(_ context.Context, id UserID, role Role) error {
	user, ok := store.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.Role = role
	store.users[id] = user
	return nil
}

func (store *stubStore) UpdateUserCotisation(_ context.Context, id UserID, cotisation Cotisation) error {
	user, ok := store.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.Cotisation = cotisation
	store.users[id] = user
	return nil
}

func (store *stubStore) AddToBalance(_ context.Context, id UserID, delta AmountCents) error {
	if store.addBalanceError != nil {
		return store.addBalanceError
	}
	user, ok := store.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.BalanceCents += delta
	store.users[id] = user
	return nil
}

func (store *stubStore) SetBalance(_ context.Context, id UserID, balance AmountCents) error {
	user, ok := store.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.BalanceCents = balance
	store.users[id] = user
	return nil
}

func (store *stubStore) SumEntryAmounts(_ context.Context, id UserID) (AmountCents, error) {
	var total AmountCents
	for _, entry := range store.entries {
		if entry.BeneficiaryID == id {
			total += entry.AmountCents
		}
	}
	return total, nil
}

func (store *stubStore) DeleteStaffingForUser(_ context.Context, id UserID) error {
	for key := range store.staffing {
		if key.userID == id {
			delete(store.staffing, key)
		}
	}
	return nil
}

func (store *stubStore) DeleteEntriesForUser(_ context.Context, id UserID) error {
	if store.deleteEntriesError != nil {
		return store.deleteEntriesError
	}
	kept := store.entries[:0]
	for _, entry := range store.entries {
		if entry.BeneficiaryID != id && entry.PayerID != id {
			kept = append(kept, entry)
		}
	}
	store.entries = kept
	return nil
}

func (store *stubStore) SessionsTouchedByUser(_ context.Context, id UserID) ([]SessionID, error) {
	seen := make(map[SessionID]bool)
	for _, entry := range store.entries {
		if entry.SessionID != nil && (entry.BeneficiaryID == id || entry.PayerID == id) {
			seen[*entry.SessionID] = true
		}
	}
	touched := make([]SessionID, 0, len(seen))
	for sessionID := range seen {
		touched = append(touched, sessionID)
	}
	sort.Slice(touched, func(left, right int) bool { return touched[left] < touched[right] })
	return touched, nil
}

func (store *stubStore) DeleteUserRow(_ context.Context, id UserID) error {
	if _, ok := store.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(store.users, id)
	return nil
}

func (store *stubStore) CreateGroup(_ context.Context, group SessionGroup) (SessionGroup, error) {
	store.nextGroupID++
	group.ID = store.nextGroupID
	store.groups[group.ID] = group
	return group, nil
}

func (store *stubStore) GetGroup(_ context.Context, id SessionGroupID) (SessionGroup, error) {
	group, ok := store.groups[id]
	if !ok {
		return SessionGroup{}, ErrGroupNotFound
	}
	return group, nil
}

func (store *stubStore) FindGroupByName(_ context.Context, name string, year int) (SessionGroup, error) {
	for _, group := range store.groups {
		if group.Name == name && group.Year == year {
			return group, nil
		}
	}
	return SessionGroup{}, ErrGroupNotFound
}

func (store *stubStore) FindOpenGroup(_ context.Context) (SessionGroup, error) {
	for _, group := range store.groups {
		if group.Open {
			return group, nil
		}
	}
	return SessionGroup{}, ErrGroupNotFound
}

func (store *stubStore) SetGroupOpen(_ context.Context, id SessionGroupID, open bool) error {
	group, ok := store.groups[id]
	if !ok {
		return ErrGroupNotFound
	}
	group.Open = open
	store.groups[id] = group
	return nil
}

func (store *stubStore) CreateSession(_ context.Context, session Session) (Session, error) {
	store.nextSessionID++
	session.ID = store.nextSessionID
	store.sessions[session.ID] = session
	return session, nil
}

func (store *stubStore) GetSession(_ context.Context, id SessionID) (Session, error) {
	session, ok := store.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (store *stubStore) ActiveSession(_ context.Context) (Session, error) {
	var latest Session
	found := false
	for _, session := range store.sessions {
		group, ok := store.groups[session.GroupID]
		if !ok || !group.Open {
			continue
		}
		if !found || session.DateUnixUTC > latest.DateUnixUTC {
			latest = session
			found = true
		}
	}
	if !found {
		return Session{}, ErrSessionNotFound
	}
	return latest, nil
}

func (store *stubStore) AddSessionTotals(_ context.Context, id SessionID, sales AmountCents, volume Milliliters) error {
	if store.addTotalsError != nil {
		return store.addTotalsError
	}
	session, ok := store.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	session.TotalSalesCents += sales
	session.TotalVolumeML += volume
	store.sessions[id] = session
	return nil
}

func (store *stubStore) RecomputeSessionTotals(_ context.Context, id SessionID) error {
	if store.recomputeTotalsError != nil {
		return store.recomputeTotalsError
	}
	session, ok := store.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	session.TotalSalesCents = 0
	session.TotalVolumeML = 0
	for _, entry := range store.entries {
		if entry.SessionID == nil || *entry.SessionID != id || !entry.Kind.Billable() {
			continue
		}
		session.TotalSalesCents += absAmount(entry.AmountCents)
		if entry.Kind == KindDrink && entry.ItemID != nil {
			if item, ok := store.items[itemKey{kind: KindDrink, id: *entry.ItemID}]; ok {
				session.TotalVolumeML += Milliliters(entry.Quantity) * item.VolumeML
			}
		}
	}
	store.sessions[id] = session
	return nil
}

func (store *stubStore) CountSessionsInGroup(_ context.Context, id SessionGroupID) (int64, error) {
	var count int64
	for _, session := range store.sessions {
		if session.GroupID == id {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) DeleteSessionRow(_ context.Context, id SessionID) error {
	delete(store.sessions, id)
	return nil
}

func (store *stubStore) DeleteGroupRow(_ context.Context, id SessionGroupID) error {
	delete(store.groups, id)
	return nil
}

func (store *stubStore) AddStaff(_ context.Context, sessionID SessionID, userID UserID) error {
	store.staffing[staffKey{sessionID: sessionID, userID: userID}] = true
	return nil
}

func (store *stubStore) RemoveStaff(_ context.Context, sessionID SessionID, userID UserID) error {
	delete(store.staffing, staffKey{sessionID: sessionID, userID: userID})
	return nil
}

func (store *stubStore) SessionAccess(_ context.Context, sessionID SessionID, userID UserID) (SessionAccess, error) {
	if store.sessionAccessError != nil {
		return SessionAccess{}, store.sessionAccessError
	}
	session, ok := store.sessions[sessionID]
	if !ok {
		return SessionAccess{}, ErrSessionNotFound
	}
	group := store.groups[session.GroupID]
	return SessionAccess{
		Staffed: store.staffing[staffKey{sessionID: sessionID, userID: userID}],
		Open:    group.Open,
	}, nil
}

func (store *stubStore) DeleteStaffingForSession(_ context.Context, sessionID SessionID) error {
	for key := range store.staffing {
		if key.sessionID == sessionID {
			delete(store.staffing, key)
		}
	}
	return nil
}

func (store *stubStore) InsertEntry(_ context.Context, entry Entry) (Entry, error) {
	store.insertEntryCalls++
	if store.insertEntryError != nil {
		if store.insertEntryErrorAtCall == 0 || store.insertEntryErrorAtCall == store.insertEntryCalls {
			return Entry{}, store.insertEntryError
		}
	}
	store.nextEntryID++
	entry.ID = store.nextEntryID
	store.entries = append(store.entries, entry)
	return entry, nil
}

func (store *stubStore) GetEntry(_ context.Context, id EntryID) (Entry, error) {
	for _, entry := range store.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (store *stubStore) DeleteEntryRow(_ context.Context, id EntryID) error {
	for index, entry := range store.entries {
		if entry.ID == id {
			store.entries = append(store.entries[:index], store.entries[index+1:]...)
			return nil
		}
	}
	return ErrEntryNotFound
}

func (store *stubStore) DeleteEntriesForSession(_ context.Context, sessionID SessionID) error {
	if store.deleteEntriesError != nil {
		return store.deleteEntriesError
	}
	kept := store.entries[:0]
	for _, entry := range store.entries {
		if entry.SessionID == nil || *entry.SessionID != sessionID {
			kept = append(kept, entry)
		}
	}
	store.entries = kept
	return nil
}

func (store *stubStore) ListUserEntries(_ context.Context, userID UserID, limit int, offset int) ([]Entry, error) {
	matched := store.sortedEntries(func(entry Entry) bool { return entry.BeneficiaryID == userID })
	return pageEntries(matched, limit, offset), nil
}

func (store *stubStore) ListSessionEntries(_ context.Context, sessionID SessionID) ([]Entry, error) {
	return store.sortedEntries(func(entry Entry) bool {
		return entry.SessionID != nil && *entry.SessionID == sessionID
	}), nil
}

func (store *stubStore) ListEntriesBetween(_ context.Context, fromUnixUTC int64, toUnixUTC int64, limit int) ([]Entry, error) {
	matched := store.sortedEntries(func(entry Entry) bool {
		return entry.DateUnixUTC >= fromUnixUTC && entry.DateUnixUTC <= toUnixUTC
	})
	return pageEntries(matched, limit, 0), nil
}

func (store *stubStore) CountEntriesForItem(_ context.Context, kind EntryKind, itemID ItemID) (int64, error) {
	var count int64
	for _, entry := range store.entries {
		if entry.Kind == kind && entry.ItemID != nil && *entry.ItemID == itemID {
			count++
		}
	}
	return count, nil
}

func (store *stubStore) CreateItem(_ context.Context, item CatalogItem) (CatalogItem, error) {
	store.nextItemID++
	item.ID = store.nextItemID
	store.items[itemKey{kind: item.Kind, id: item.ID}] = item
	return item, nil
}

func (store *stubStore) GetItem(_ context.Context, kind EntryKind, id ItemID) (CatalogItem, error) {
	item, ok := store.items[itemKey{kind: kind, id: id}]
	if !ok {
		return CatalogItem{}, ErrItemNotFound
	}
	return item, nil
}

func (store *stubStore) DeleteItemRow(_ context.Context, kind EntryKind, id ItemID) error {
	delete(store.items, itemKey{kind: kind, id: id})
	return nil
}

func (store *stubStore) AddMenuItem(_ context.Context, item MenuItem) error {
	store.menu[menuKey{groupID: item.GroupID, kind: item.Kind, itemID: item.ItemID}] = true
	return nil
}

func (store *stubStore) RemoveMenuItem(_ context.Context, item MenuItem) error {
	delete(store.menu, menuKey{groupID: item.GroupID, kind: item.Kind, itemID: item.ItemID})
	return nil
}

func (store *stubStore) ListMenu(_ context.Context, groupID SessionGroupID) ([]MenuItem, error) {
	items := make([]MenuItem, 0)
	for key := range store.menu {
		if key.groupID == groupID {
			items = append(items, MenuItem{GroupID: key.groupID, Kind: key.kind, ItemID: key.itemID})
		}
	}
	sort.Slice(items, func(left, right int) bool { return items[left].ItemID < items[right].ItemID })
	return items, nil
}

func (store *stubStore) DeleteMenuForItem(_ context.Context, kind EntryKind, id ItemID) error {
	for key := range store.menu {
		if key.kind == kind && key.itemID == id {
			delete(store.menu, key)
		}
	}
	return nil
}

func (store *stubStore) GlobalStats(_ context.Context) (GlobalStats, error) {
	var stats GlobalStats
	for _, user := range store.users {
		stats.UserCount++
		if user.Cotisation != CotisationNone {
			stats.ContributorCount++
		}
		if user.BalanceCents > 0 {
			stats.PositiveBalanceCents += user.BalanceCents
		} else {
			stats.NegativeBalanceCents += user.BalanceCents
		}
	}
	return stats, nil
}

func (store *stubStore) SessionItemTallies(_ context.Context, sessionID SessionID) ([]ItemTally, error) {
	tallies := make(map[itemKey]*ItemTally)
	for _, entry := range store.entries {
		if entry.SessionID == nil || *entry.SessionID != sessionID || !entry.Kind.Billable() || entry.ItemID == nil {
			continue
		}
		key := itemKey{kind: entry.Kind, id: *entry.ItemID}
		tally, ok := tallies[key]
		if !ok {
			tally = &ItemTally{Kind: entry.Kind, ItemID: *entry.ItemID}
			if item, found := store.items[key]; found {
				tally.Name = item.Name
			}
			tallies[key] = tally
		}
		tally.Count += entry.Quantity
		tally.RevenueCents += absAmount(entry.AmountCents)
		if entry.Kind == KindDrink {
			if item, found := store.items[key]; found {
				tally.VolumeML += Milliliters(entry.Quantity) * item.VolumeML
			}
		}
	}
	result := make([]ItemTally, 0, len(tallies))
	for _, tally := range tallies {
		result = append(result, *tally)
	}
	sort.Slice(result, func(left, right int) bool { return result[left].ItemID < result[right].ItemID })
	return result, nil
}

func (store *stubStore) sortedEntries(match func(Entry) bool) []Entry {
	matched := make([]Entry, 0)
	for _, entry := range store.entries {
		if match(entry) {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(left, right int) bool {
		if matched[left].DateUnixUTC != matched[right].DateUnixUTC {
			return matched[left].DateUnixUTC > matched[right].DateUnixUTC
		}
		return matched[left].ID > matched[right].ID
	})
	return matched
}

func pageEntries(entries []Entry, limit int, offset int) []Entry {
	if offset >= len(entries) {
		return []Entry{}
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	clock := int64(1000)
	service, err := NewService(store, func() int64 { clock++; return clock }, options...)
	if err != nil {
		test.Fatalf("service init: %v", err)
	}
	return service
}

func mustUser(test *testing.T, store *stubStore, login string, role Role) User {
	test.Helper()
	user, err := store.CreateUser(context.Background(), User{
		Login:      login,
		Role:       role,
		Cotisation: CotisationNone,
	})
	if err != nil {
		test.Fatalf("create user %q: %v", login, err)
	}
	return user
}

func mustGroup(test *testing.T, store *stubStore, name string, year int, open bool) SessionGroup {
	test.Helper()
	group, err := store.CreateGroup(context.Background(), SessionGroup{Name: name, Year: year, Open: open})
	if err != nil {
		test.Fatalf("create group %q: %v", name, err)
	}
	return group
}

func mustSession(test *testing.T, store *stubStore, groupID SessionGroupID, dateUnixUTC int64) Session {
	test.Helper()
	session, err := store.CreateSession(context.Background(), Session{GroupID: groupID, DateUnixUTC: dateUnixUTC})
	if err != nil {
		test.Fatalf("create session: %v", err)
	}
	return session
}

func mustItem(test *testing.T, store *stubStore, kind EntryKind, name string, priceCents AmountCents, volumeML Milliliters) CatalogItem {
	test.Helper()
	item, err := store.CreateItem(context.Background(), CatalogItem{
		Kind:       kind,
		Name:       name,
		PriceCents: priceCents,
		VolumeML:   volumeML,
	})
	if err != nil {
		test.Fatalf("create item %q: %v", name, err)
	}
	return item
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	metadata, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata %q: %v", raw, err)
	}
	return metadata
}
