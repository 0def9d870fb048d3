package circulation

// Manager is a thin façade over the engines and collaborator stores,
// keeping CLI code simple. It owns the wiring: one shared per-title lock
// set, the return-to-reservation hand-off hook, and the event fan-out.
type Manager struct {
	cfg      Config
	store    *Store // nil when running in memory
	catalog  Catalog
	members  MembershipRegistry
	events   *FanOut
	lending  *LendingEngine
	reserves *ReservationEngine
}

// NewManager opens (or creates) the SQLite store at cfg.DBPath and wires
// the engines on top of it.
func NewManager(cfg Config) (*Manager, error) {
	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	m := wire(cfg, store, store.Registry())
	m.store = store
	return m, nil
}

// NewMemoryManager wires the engines over in-memory collaborators. Nothing
// survives the process; used by tests and demos.
func NewMemoryManager(cfg Config) *Manager {
	return wire(cfg, NewMemoryCatalog(), NewMemoryRegistry())
}

func wire(cfg Config, catalog Catalog, members MembershipRegistry) *Manager {
	events := NewFanOut()
	locks := NewKeyLocks()
	lending := NewLendingEngine(catalog, members, events, locks, cfg)
	reserves := NewReservationEngine(catalog, members, events, locks, cfg)
	lending.SetReturnListener(reserves)

	return &Manager{
		cfg:      cfg,
		catalog:  catalog,
		members:  members,
		events:   events,
		lending:  lending,
		reserves: reserves,
	}
}

// Close closes the underlying store, if any.
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

// Subscribe registers an event sink for all circulation events.
func (m *Manager) Subscribe(n Notifier) { m.events.Add(n) }

// ------------------ Catalog helpers ------------------

func (m *Manager) AddTitle(key, name, author string, year int) (*Title, error) {
	return m.catalog.AddTitle(key, name, author, year)
}

func (m *Manager) RemoveTitle(key string) (bool, error) { return m.catalog.RemoveTitle(key) }
func (m *Manager) GetTitle(key string) (*Title, error)  { return m.catalog.FindByKey(key) }
func (m *Manager) AllTitles() ([]*Title, error)         { return m.catalog.AllTitles() }

func (m *Manager) SearchTitles(query string, field SearchField) ([]*Title, error) {
	return m.catalog.Search(query, field)
}

// ------------------ Member helpers ------------------

func (m *Manager) AddMember(name, email string, class MemberClass, password string) (*Member, error) {
	return m.members.AddMember(name, email, class, password)
}

func (m *Manager) RemoveMember(key string) (bool, error) { return m.members.RemoveMember(key) }
func (m *Manager) GetMember(key string) (*Member, error) { return m.members.FindByKey(key) }
func (m *Manager) AllMembers() ([]*Member, error)        { return m.members.AllMembers() }

func (m *Manager) SetMemberStatus(key string, status MemberStatus) error {
	return m.members.SetStatus(key, status)
}

func (m *Manager) AuthenticateMember(key, password string) error {
	return m.members.Authenticate(key, password)
}

func (m *Manager) ResetMemberPassword(key, password string) error {
	return m.members.ResetPassword(key, password)
}

// ------------------ Circulation ------------------

func (m *Manager) Borrow(memberKey, titleKey string) (*Loan, error) {
	return m.lending.Borrow(memberKey, titleKey)
}

func (m *Manager) Return(memberKey, titleKey string) (bool, error) {
	return m.lending.Return(memberKey, titleKey)
}

func (m *Manager) HistoryForMember(memberKey string) []*Loan {
	return m.lending.HistoryForMember(memberKey)
}

func (m *Manager) OpenLoansForMember(memberKey string) []*Loan {
	return m.lending.OpenLoansForMember(memberKey)
}

func (m *Manager) OverdueLoans() []*Loan { return m.lending.OverdueLoans() }

// ------------------ Reservations ------------------

func (m *Manager) Reserve(memberKey, titleKey string) (*Reservation, error) {
	return m.reserves.Reserve(memberKey, titleKey)
}

func (m *Manager) CancelReservation(reservationKey string) bool {
	return m.reserves.Cancel(reservationKey)
}

func (m *Manager) QueueForTitle(titleKey string) []*Reservation {
	return m.reserves.QueueForTitle(titleKey)
}

func (m *Manager) ReservationsForMember(memberKey string) []*Reservation {
	return m.reserves.ReservationsForMember(memberKey)
}

func (m *Manager) ProcessExpiredReservations() { m.reserves.ProcessExpired() }
