package circulation

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Store is the SQLite-backed catalog and membership registry. The engines
// treat it as two collaborators behind the Catalog and MembershipRegistry
// interfaces; loan and reservation state stays in the engines.
type Store struct {
	db *sql.DB

	addTitleStmt  *sql.Stmt
	addMemberStmt *sql.Stmt

	now func() time.Time
}

var _ Catalog = (*Store)(nil)
var _ MembershipRegistry = storeRegistry{}

// storeRegistry adapts the store to the MembershipRegistry interface; the
// member lookup cannot be called FindByKey on *Store because the catalog
// side already uses that name for titles.
type storeRegistry struct{ *Store }

// Registry returns the membership-registry view of the store.
func (s *Store) Registry() MembershipRegistry { return storeRegistry{s} }

func (r storeRegistry) FindByKey(key string) (*Member, error) {
	return r.FindMemberByKey(key)
}

// OpenStore opens (or creates) the SQLite database at dbPath, applies
// schema migrations, and prepares common statements.
func OpenStore(dbPath string) (*Store, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create db dir")
		}
	}

	// Enable busy_timeout and foreign keys.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{db: db, now: time.Now}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases prepared statements and closes the DB.
func (s *Store) Close() error {
	if s.addTitleStmt != nil {
		s.addTitleStmt.Close()
	}
	if s.addMemberStmt != nil {
		s.addMemberStmt.Close()
	}
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return errors.Wrap(err, "enable WAL")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS members (
            key TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL DEFAULT '',
            class TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'ACTIVE',
            joined_at TEXT NOT NULL,
            password_hash TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS titles (
            key TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            author TEXT NOT NULL,
            year INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'AVAILABLE',
            borrower_key TEXT REFERENCES members(key),
            borrow_date TEXT,
            due_date TEXT
        );`,
		`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, schemaVersion); err != nil {
			return errors.Wrap(err, "apply migration")
		}
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (s *Store) prepareStatements() error {
	var err error
	if s.addTitleStmt, err = s.db.Prepare(`INSERT INTO titles(key,name,author,year) VALUES(?,?,?,?)`); err != nil {
		return err
	}
	if s.addMemberStmt, err = s.db.Prepare(`INSERT INTO members(key,name,email,class,joined_at,password_hash) VALUES(?,?,?,?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

const titleColumns = `key,name,author,year,status,COALESCE(borrower_key,''),COALESCE(borrow_date,''),COALESCE(due_date,'')`

func scanTitle(row interface{ Scan(...any) error }) (*Title, error) {
	var t Title
	var status, borrowDate, dueDate string
	if err := row.Scan(&t.Key, &t.Name, &t.Author, &t.Year, &status, &t.BorrowerKey, &borrowDate, &dueDate); err != nil {
		return nil, err
	}
	t.Status = TitleStatus(status)
	t.BorrowDate = parseStoredTime(borrowDate)
	t.DueDate = parseStoredTime(dueDate)
	return &t, nil
}

func parseStoredTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func (s *Store) FindByKey(key string) (*Title, error) {
	t, err := scanTitle(s.db.QueryRow(`SELECT `+titleColumns+` FROM titles WHERE key=?`, key))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("title %s: %w", key, ErrTitleNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query title")
	}
	return t, nil
}

func (s *Store) AddTitle(key, name, author string, year int) (*Title, error) {
	if _, err := s.addTitleStmt.Exec(key, name, author, year); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("title %s: %w", key, ErrDuplicateKey)
		}
		return nil, errors.Wrap(err, "insert title")
	}
	return &Title{Key: key, Name: name, Author: author, Year: year, Status: TitleAvailable}, nil
}

func (s *Store) RemoveTitle(key string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow(`SELECT status FROM titles WHERE key=?`, key).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "query title status")
	}
	if TitleStatus(status) == TitleBorrowed {
		return false, fmt.Errorf("title %s is on loan: %w", key, ErrTitleUnavailable)
	}

	if _, err := tx.Exec(`DELETE FROM titles WHERE key=?`, key); err != nil {
		return false, errors.Wrap(err, "delete title")
	}
	return true, tx.Commit()
}

func (s *Store) AllTitles() ([]*Title, error) {
	return s.queryTitles(`SELECT ` + titleColumns + ` FROM titles ORDER BY key`)
}

// Search does a case-insensitive substring match on the selected column.
// SQLite's LIKE is case-insensitive for ASCII by default.
func (s *Store) Search(query string, field SearchField) ([]*Title, error) {
	column := "name"
	switch field {
	case SearchByAuthor:
		column = "author"
	case SearchByKey:
		column = "key"
	}
	return s.queryTitles(
		`SELECT `+titleColumns+` FROM titles WHERE `+column+` LIKE ? ORDER BY key`,
		"%"+query+"%",
	)
}

func (s *Store) queryTitles(query string, args ...any) ([]*Title, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query titles")
	}
	defer rows.Close()

	var titles []*Title
	for rows.Next() {
		t, err := scanTitle(rows)
		if err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// MarkBorrowed flips the title to Borrowed and records the borrower in one
// transaction, failing without side effects when the title is absent or
// already out.
func (s *Store) MarkBorrowed(key, memberKey string, borrowDate, dueDate time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow(`SELECT status FROM titles WHERE key=?`, key).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("title %s: %w", key, ErrTitleNotFound)
	}
	if err != nil {
		return errors.Wrap(err, "query title status")
	}
	if TitleStatus(status) != TitleAvailable {
		return fmt.Errorf("title %s: %w", key, ErrTitleUnavailable)
	}

	_, err = tx.Exec(`UPDATE titles SET status=?, borrower_key=?, borrow_date=?, due_date=? WHERE key=?`,
		string(TitleBorrowed), memberKey, borrowDate.Format(time.RFC3339Nano), dueDate.Format(time.RFC3339Nano), key)
	if err != nil {
		return errors.Wrap(err, "mark borrowed")
	}
	return tx.Commit()
}

func (s *Store) MarkAvailable(key string) error {
	res, err := s.db.Exec(`UPDATE titles SET status=?, borrower_key=NULL, borrow_date=NULL, due_date=NULL WHERE key=?`,
		string(TitleAvailable), key)
	if err != nil {
		return errors.Wrap(err, "mark available")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("title %s: %w", key, ErrTitleNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Membership registry
// ---------------------------------------------------------------------------

const memberColumns = `key,name,email,class,status,joined_at,password_hash`

func scanMember(row interface{ Scan(...any) error }) (*Member, error) {
	var m Member
	var class, status, joined string
	if err := row.Scan(&m.Key, &m.Name, &m.Email, &class, &status, &joined, &m.PasswordHash); err != nil {
		return nil, err
	}
	m.Class = MemberClass(class)
	m.Status = MemberStatus(status)
	m.JoinedAt = parseStoredTime(joined)
	return &m, nil
}

// FindMemberByKey fetches a single member. Named to avoid clashing with the
// catalog's FindByKey on the shared receiver; the Registry view below maps
// the interface method onto it.
func (s *Store) FindMemberByKey(key string) (*Member, error) {
	m, err := scanMember(s.db.QueryRow(`SELECT `+memberColumns+` FROM members WHERE key=?`, key))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member %s: %w", key, ErrMemberNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query member")
	}
	return m, nil
}

func (s *Store) AddMember(name, email string, class MemberClass, password string) (*Member, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	m := &Member{
		Key:      newMemberKey(),
		Name:     name,
		Email:    email,
		Class:    class,
		Status:   MemberActive,
		JoinedAt: s.now(),
	}
	_, err = s.addMemberStmt.Exec(m.Key, m.Name, m.Email, string(m.Class), m.JoinedAt.Format(time.RFC3339Nano), hash)
	if err != nil {
		return nil, errors.Wrap(err, "insert member")
	}
	return m, nil
}

func (s *Store) RemoveMember(key string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM members WHERE key=?`, key)
	if err != nil {
		return false, errors.Wrap(err, "delete member")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) SetStatus(key string, status MemberStatus) error {
	res, err := s.db.Exec(`UPDATE members SET status=? WHERE key=?`, string(status), key)
	if err != nil {
		return errors.Wrap(err, "update member status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("member %s: %w", key, ErrMemberNotFound)
	}
	return nil
}

func (s *Store) AllMembers() ([]*Member, error) {
	return s.queryMembers(`SELECT ` + memberColumns + ` FROM members ORDER BY key`)
}

func (s *Store) SearchByName(query string) ([]*Member, error) {
	return s.queryMembers(`SELECT `+memberColumns+` FROM members WHERE name LIKE ? ORDER BY key`, "%"+query+"%")
}

func (s *Store) queryMembers(query string, args ...any) ([]*Member, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query members")
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) Authenticate(key, password string) error {
	m, err := s.FindMemberByKey(key)
	if err != nil {
		return err
	}
	return checkPassword(m.PasswordHash, password)
}

func (s *Store) ResetPassword(key, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE members SET password_hash=? WHERE key=?`, hash, key)
	if err != nil {
		return errors.Wrap(err, "update password")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("member %s: %w", key, ErrMemberNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
