// Package persistence implements the persisted-state contract of spec
// §6: ensemble JSON (hyperparameters, schemas, placeholder, features,
// subfeatures, targets) plus a boltdb-backed registry mapping ensemble
// ID to that JSON blob - the stand-in for the out-of-scope
// project/session layer named in spec §1's reader list.
package persistence

import (
	"encoding/json"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/relboost/relboost/ensemble"
	"github.com/relboost/relboost/errs"
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/hyperparams"
	"github.com/relboost/relboost/placeholder"
)

// currentVersion is bumped only if a future field is removed or
// changes meaning; new optional fields do not need a bump because
// encoding/json ignores unknown fields and zero-values absent ones,
// matching spec §6's "unknown fields are ignored" versioning note.
const currentVersion = 1

// Document is the full persisted shape of one fitted ensemble, spec
// §6's "ensemble JSON". PopulationSchema is a pointer so its absence
// (nil) can mark a pre-schema snapshot per spec §6's explicit note,
// distinguishing it from a present-but-empty schema.
type Document struct {
	Version int `json:"version"`

	Hyperparameters hyperparams.Hyperparams `json:"hyperparameters"`

	PeripheralSchema []frame.Schema `json:"peripheral_schema"`
	PopulationSchema *frame.Schema  `json:"population_schema"`

	Placeholder *placeholder.Placeholder `json:"placeholder"`

	Features    []ensemble.Feature               `json:"features"`
	Subfeatures map[string][]ensemble.Subfeature `json:"subfeatures"`

	TargetNames []string `json:"targets"`

	AllowHTTP bool `json:"allow_http"`
}

// FromEnsemble builds the persisted Document for a fitted ensemble.
// PopulationSchema is always populated (this implementation never
// produces pre-schema snapshots); Load still honors a nil
// population_schema found in externally-supplied bytes.
func FromEnsemble(e *ensemble.Ensemble, popSchema frame.Schema, peripSchema []frame.Schema, hp hyperparams.Hyperparams, allowHTTP bool) Document {
	return Document{
		Version:          currentVersion,
		Hyperparameters:  hp,
		PeripheralSchema: peripSchema,
		PopulationSchema: &popSchema,
		Placeholder:      e.Placeholder,
		Features:         e.Features,
		Subfeatures:      e.Subfeatures,
		TargetNames:      e.TargetNames,
		AllowHTTP:        allowHTTP,
	}
}

// Marshal renders d to JSON bytes.
func (d Document) Marshal() ([]byte, error) {
	out, err := json.Marshal(d)
	if err != nil {
		return nil, errs.InvalidInput.Wrap(err, "persistence: marshal")
	}
	return out, nil
}

// Unmarshal parses JSON bytes into a Document. A byte-order or length
// sanity failure (malformed JSON) is reported as Corrupted, per spec
// §7's error-kind catalog for load failures.
func Unmarshal(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, errs.Corrupted.Wrap(err, "persistence: unmarshal")
	}
	return d, nil
}

// Store is a boltdb-backed registry mapping ensemble ID to its
// Document, grounded on the teacher's use of a single top-level bucket
// per logical collection.
type Store struct {
	db *bolt.DB
}

var bucketName = []byte("ensembles")

// Open opens (creating if necessary) the boltdb file at path and
// ensures the ensembles bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "persistence: opening store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "persistence: creating bucket")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying boltdb file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes doc under id, overwriting any previous document.
func (s *Store) Save(id string, doc Document) error {
	data, err := doc.Marshal()
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(id), data)
	})
	if err != nil {
		return errors.Wrap(err, "persistence: saving "+id)
	}
	return nil
}

// Load reads and parses the document stored under id.
func (s *Store) Load(id string) (Document, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(id))
		if v == nil {
			return errs.NotFound.New("ensemble: " + id)
		}
		data = append(data, v...)
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	return Unmarshal(data)
}

// Delete removes the document stored under id. Deleting a missing ID
// is not an error, matching a registry's idempotent-delete convention.
func (s *Store) Delete(id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(id))
	})
	if err != nil {
		return errors.Wrap(err, "persistence: deleting "+id)
	}
	return nil
}

// List returns every ensemble ID currently stored.
func (s *Store) List() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "persistence: listing")
	}
	return ids, nil
}
