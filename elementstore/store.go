// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package elementstore stores JSON elements in an SQLite database. Every
// element has a type and an id, is full text indexed and can be queried
// through one view per type. The same database carries an sqlar archive
// for files that belong to the elements.
package elementstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/fatih/structs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/fscatalog/sqlitefs"
)

const storeVersion = 1
const applicationID = 1718838115
const discriminator = "type"

// JSONElement is a single entry in the database.
type JSONElement []byte

// Element is a decoded entry.
type Element map[string]interface{}

// Store is an element database.
type Store struct {
	conn  *sqlite.Conn
	fs    *sqlitefs.FS
	types *typeMap
}

var ErrStoreExists = fmt.Errorf("store already exists")
var ErrStoreNotExists = fmt.Errorf("store does not exist")

// New creates a new store at url.
func New(url string) (*Store, error) {
	return open(url, true)
}

// Open opens an existing store.
func Open(url string) (*Store, error) {
	return open(url, false)
}

func open(url string, create bool) (*Store, error) {
	if url != ":memory:" {
		_, err := os.Stat(url)
		exists := err == nil
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if create && exists {
			return nil, errors.Wrap(ErrStoreExists, url)
		}
		if !create && !exists {
			return nil, errors.Wrap(ErrStoreNotExists, url)
		}
		if create {
			if err := os.MkdirAll(filepath.Dir(url), 0750); err != nil {
				return nil, err
			}
		}
	}

	conn, err := sqlite.OpenConn(url, sqlite.SQLITE_OPEN_READWRITE|sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_URI|sqlite.SQLITE_OPEN_NOMUTEX)
	if err != nil {
		return nil, err
	}
	store := &Store{conn: conn, types: newTypeMap()}

	if create {
		err = store.init()
	} else {
		err = store.check()
	}
	if err == nil {
		err = store.setupTypes()
	}
	if err == nil {
		store.fs, err = sqlitefs.NewConn(conn)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

func (store *Store) init() error {
	if err := setPragma(store.conn, "application_id", applicationID); err != nil {
		return err
	}
	if err := setPragma(store.conn, "user_version", storeVersion); err != nil {
		return err
	}
	return sqlitex.ExecTransient(store.conn, "CREATE VIRTUAL TABLE `elements` "+
		"USING fts5(id UNINDEXED, json, insert_time UNINDEXED, tokenize=\"unicode61 tokenchars '/.'\")", nil)
}

func (store *Store) check() error {
	id, err := pragma(store.conn, "application_id")
	if err != nil {
		return err
	}
	if id != applicationID {
		return fmt.Errorf("wrong file format (application_id is %d, requires %d)", id, applicationID)
	}
	version, err := pragma(store.conn, "user_version")
	if err != nil {
		return err
	}
	if version != storeVersion {
		return fmt.Errorf("wrong file format (user_version is %d, requires %d)", version, storeVersion)
	}
	return nil
}

// setupTypes reloads the fields of the existing elements, so views created
// on Close cover old and new elements.
func (store *Store) setupTypes() error {
	elements, err := store.All()
	if err != nil {
		return err
	}
	for _, element := range elements {
		if err := store.addTypes(element); err != nil {
			return err
		}
	}
	store.types.changed = false
	return nil
}

func (store *Store) addTypes(element JSONElement) error {
	nested := map[string]interface{}{}
	if err := json.Unmarshal(element, &nested); err != nil {
		return err
	}
	flat := flatten(nested)
	elementType, ok := flat[discriminator].(string)
	if !ok {
		return errors.New("element requires type")
	}
	store.types.addAll(elementType, flat)
	return nil
}

// Fs returns the archive that is stored next to the elements.
func (store *Store) Fs() afero.Fs {
	return store.fs
}

// Insert adds a single element. Elements without id get one.
func (store *Store) Insert(element JSONElement) (string, error) {
	nested := map[string]interface{}{}
	if err := json.Unmarshal(element, &nested); err != nil {
		return "", err
	}

	flat := flatten(nested)
	elementType, ok := flat[discriminator].(string)
	if !ok || elementType == "" {
		return "", errors.New("element requires type")
	}
	if _, ok := flat[elementType]; ok {
		return "", fmt.Errorf("element must not contain a field '%s'", elementType)
	}

	id, ok := flat["id"].(string)
	if !ok {
		id = elementType + "--" + uuid.New().String()
		nested["id"] = id
		flat["id"] = id
		var err error
		element, err = json.Marshal(nested)
		if err != nil {
			return "", err
		}
	}

	store.types.addAll(elementType, flat)

	err := sqlitex.Exec(store.conn, "INSERT INTO `elements` (id, json, insert_time) VALUES (?, ?, ?)", nil,
		id, string(element), time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	if err != nil {
		return "", errors.Wrap(err, "could not insert element")
	}
	return id, nil
}

// InsertStruct converts a Go struct to an element and inserts it. Field
// names become snake case and empty fields are dropped.
func (store *Store) InsertStruct(element interface{}) (string, error) {
	m := lower(structs.Map(element))
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return store.Insert(b)
}

// Get retrieves a single element.
func (store *Store) Get(id string) (JSONElement, error) {
	elements, err := store.query("SELECT json FROM `elements` WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, errors.Errorf("element %s does not exist", id)
	}
	return elements[0], nil
}

// Select retrieves the elements matching any of the conditions. All
// key value pairs of a condition must match, values may use LIKE
// wildcards.
func (store *Store) Select(conditions []map[string]string) ([]JSONElement, error) {
	var ors []string
	var args []interface{}
	for _, condition := range conditions {
		keys := make([]string, 0, len(condition))
		for key := range condition {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var ands []string
		for _, key := range keys {
			ands = append(ands, "json_extract(json, ?) LIKE ?")
			args = append(args, "$."+key, condition[key])
		}
		if len(ands) > 0 {
			ors = append(ors, "("+strings.Join(ands, " AND ")+")")
		}
	}

	query := "SELECT json FROM `elements`"
	if len(ors) > 0 {
		query += " WHERE " + strings.Join(ors, " OR ")
	}
	return store.query(query+" ORDER BY rowid", args...)
}

// Search runs a full text query.
func (store *Store) Search(q string) ([]JSONElement, error) {
	return store.query("SELECT json FROM `elements` WHERE elements = ? ORDER BY rank", q)
}

// All returns every element.
func (store *Store) All() ([]JSONElement, error) {
	return store.Select(nil)
}

// Field returns one field of every element of a type.
func (store *Store) Field(elementType, field string) ([]gjson.Result, error) {
	elements, err := store.Select([]map[string]string{{discriminator: elementType}})
	if err != nil {
		return nil, err
	}
	var results []gjson.Result
	for _, element := range elements {
		results = append(results, gjson.GetBytes(element, field))
	}
	return results, nil
}

func (store *Store) query(query string, args ...interface{}) ([]JSONElement, error) {
	elements := []JSONElement{}
	err := sqlitex.Exec(store.conn, query, func(stmt *sqlite.Stmt) error {
		elements = append(elements, JSONElement(stmt.ColumnText(0)))
		return nil
	}, args...)
	return elements, err
}

// Close creates the type views and closes the database.
func (store *Store) Close() error {
	if store.types.changed {
		if err := store.createViews(); err != nil {
			store.conn.Close()
			return err
		}
	}
	return store.conn.Close()
}

func (store *Store) createViews() error {
	for typeName, fields := range store.types.all() {
		err := sqlitex.ExecTransient(store.conn, fmt.Sprintf("DROP VIEW IF EXISTS \"%s\"", typeName), nil)
		if err != nil {
			return err
		}
		var columns []string
		for field := range fields {
			columns = append(columns, fmt.Sprintf("json_extract(json, '$.%s') as \"%s\"", field, field))
		}
		sort.Strings(columns)
		err = sqlitex.ExecTransient(store.conn,
			fmt.Sprintf("CREATE VIEW \"%s\" AS SELECT %s FROM elements WHERE json_extract(json, '$.%s') = '%s'",
				typeName, strings.Join(columns, ", "), discriminator, typeName), nil)
		if err != nil {
			return errors.Wrapf(err, "could not create view %s", typeName)
		}
	}
	return nil
}

func pragma(conn *sqlite.Conn, name string) (int64, error) {
	var i int64
	err := sqlitex.ExecTransient(conn, "PRAGMA "+name, func(stmt *sqlite.Stmt) error {
		i = stmt.ColumnInt64(0)
		return nil
	})
	return i, err
}

func setPragma(conn *sqlite.Conn, name string, i int64) error {
	return sqlitex.ExecTransient(conn, fmt.Sprintf("PRAGMA %s = %d", name, i), nil)
}
