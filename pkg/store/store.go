// Package store is the embedded persistent state: saved accounts,
// reusable locations with aliases and the course exclusion set, all in
// one sqlite file under the config directory.
package store

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/cxsign/cxsign/pkg/location"
)

const dbFileName = "cx.db"

const schema = `
CREATE TABLE IF NOT EXISTS account (
	uid        TEXT PRIMARY KEY,
	uname      TEXT NOT NULL,
	enc_pwd    TEXT NOT NULL,
	login_type TEXT NOT NULL DEFAULT 'default'
);
CREATE TABLE IF NOT EXISTS location (
	lid       INTEGER PRIMARY KEY AUTOINCREMENT,
	course_id INTEGER NOT NULL DEFAULT -1,
	addr      TEXT NOT NULL DEFAULT '',
	lat       TEXT NOT NULL DEFAULT '',
	lon       TEXT NOT NULL DEFAULT '',
	alt       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS alias (
	name TEXT PRIMARY KEY,
	lid  INTEGER NOT NULL REFERENCES location(lid) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS exclude (
	course_id INTEGER PRIMARY KEY
);`

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database under dir.
func Open(dir string) (*Store, error) {
	db, err := sql.Open("sqlite", filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create store schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Account is one saved credential set, enough to restore or re-login a
// session without prompting.
type Account struct {
	UID       string
	Uname     string
	EncPwd    string
	LoginType string
}

func (s *Store) UpsertAccount(a Account) error {
	if len(a.LoginType) == 0 {
		a.LoginType = "default"
	}

	_, err := s.db.Exec(`INSERT INTO account (uid, uname, enc_pwd, login_type) VALUES (?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET uname=excluded.uname, enc_pwd=excluded.enc_pwd, login_type=excluded.login_type`,
		a.UID, a.Uname, a.EncPwd, a.LoginType)
	return err
}

func (s *Store) Accounts() ([]Account, error) {
	rows, err := s.db.Query(`SELECT uid, uname, enc_pwd, login_type FROM account ORDER BY uid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.UID, &a.Uname, &a.EncPwd, &a.LoginType); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

func (s *Store) DeleteAccount(uid string) error {
	_, err := s.db.Exec(`DELETE FROM account WHERE uid = ?`, uid)
	return err
}

// StoredLocation is a reusable sign-in location, optionally pinned to a
// course and addressable through aliases.
type StoredLocation struct {
	LID      int64
	CourseID int64
	Loc      location.Location
}

func (s *Store) AddLocation(courseID int64, loc location.Location) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO location (course_id, addr, lat, lon, alt) VALUES (?, ?, ?, ?, ?)`,
		courseID, loc.Address, loc.Latitude, loc.Longitude, loc.Altitude)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

func (s *Store) Locations() ([]StoredLocation, error) {
	rows, err := s.db.Query(`SELECT lid, course_id, addr, lat, lon, alt FROM location ORDER BY lid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []StoredLocation
	for rows.Next() {
		var l StoredLocation
		if err := rows.Scan(&l.LID, &l.CourseID, &l.Loc.Address, &l.Loc.Latitude, &l.Loc.Longitude, &l.Loc.Altitude); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}

	return locations, rows.Err()
}

func (s *Store) DeleteLocation(lid int64) error {
	_, err := s.db.Exec(`DELETE FROM location WHERE lid = ?`, lid)
	return err
}

// SetAlias points name at a stored location, replacing any previous
// binding.
func (s *Store) SetAlias(name string, lid int64) error {
	_, err := s.db.Exec(`INSERT INTO alias (name, lid) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET lid=excluded.lid`, name, lid)
	return err
}

func (s *Store) DeleteAlias(name string) error {
	_, err := s.db.Exec(`DELETE FROM alias WHERE name = ?`, name)
	return err
}

// LocationByAlias resolves an alias to its stored location.
func (s *Store) LocationByAlias(name string) (StoredLocation, error) {
	var l StoredLocation
	err := s.db.QueryRow(`SELECT l.lid, l.course_id, l.addr, l.lat, l.lon, l.alt
		FROM alias a JOIN location l ON l.lid = a.lid WHERE a.name = ?`, name).
		Scan(&l.LID, &l.CourseID, &l.Loc.Address, &l.Loc.Latitude, &l.Loc.Longitude, &l.Loc.Altitude)
	return l, err
}
