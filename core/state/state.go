/*Package state provides a persistent key/value store in a SQL database

The package uses JSON to serialize the data. The backend uses it to
persist deployment state, such as the currently served configuration.
*/
package state

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/classbase/classbase/core/csql"
)

// New creates a new store for the specified database
func New(db *csql.DB) Store {
	_, err := db.Exec(`CREATE table IF NOT EXISTS ` + db.Schema + `."_state_"
(key varchar NOT NULL,
value json NOT NULL,
timestamp timestamp NOT NULL,
PRIMARY KEY(key)
);`)

	if err != nil {
		panic(err)
	}
	return Store{db: db}
}

// Store provides a persistent key/value store in a sql database.
type Store struct {
	db *csql.DB
}

// Accessor is an accessor with optional prefix
type Accessor struct {
	Prefix string
	Store  Store
}

// Accessor returns a store accessor with prefix
func (s Store) Accessor(prefix string) Accessor {
	return Accessor{
		Prefix: prefix,
		Store:  s,
	}
}

// Read reads a value from the store. It returns the time when the
// value was written, or a zero timestamp if there is no value.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (a Accessor) Read(key string, value interface{}) (time.Time, error) {
	var (
		rawValue  json.RawMessage
		timestamp time.Time
	)
	if len(a.Prefix) > 0 {
		key = a.Prefix + ":" + key
	}

	err := a.Store.db.QueryRow(
		`SELECT value, timestamp FROM `+a.Store.db.Schema+`."_state_" WHERE key=$1;`,
		key).Scan(&rawValue, &timestamp)
	if err == csql.ErrNoRows {
		return timestamp, nil
	}
	if err != nil {
		return timestamp, fmt.Errorf("cannot read key '%s': %s", key, err.Error())
	}
	err = json.Unmarshal(rawValue, &value)

	return timestamp, err
}

// Write writes a value into the store.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (a Accessor) Write(key string, value interface{}) error {

	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if len(a.Prefix) > 0 {
		key = a.Prefix + ":" + key
	}
	now := time.Now().UTC()
	res, err := a.Store.db.Exec(
		`INSERT INTO `+a.Store.db.Schema+`."_state_"(key,value,timestamp)
VALUES($1,$2,$3)
ON CONFLICT (key) DO UPDATE SET value=$2,timestamp=$3;`,
		key, string(body), now)

	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("could not write key %s", key)
	}
	return nil
}

// Delete deletes a value from the store.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (a Accessor) Delete(key string) error {

	if len(a.Prefix) > 0 {
		key = a.Prefix + ":" + key
	}
	_, err := a.Store.db.Exec(
		`DELETE FROM `+a.Store.db.Schema+`."_state_" WHERE key=$1;`,
		key)

	return err
}
