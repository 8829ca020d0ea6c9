// Package rpc implements the control surface described in spec §6: a
// typed command-record in, typed response-record out contract for
// every operation the external RPC layer would otherwise expose over
// a transport - transport itself is explicitly out of scope (spec.md
// §1), so every function here is a plain, synchronously-callable Go
// function over a shared, lock-protected State.
package rpc

import (
	"github.com/sirupsen/logrus"

	"github.com/relboost/relboost/concurrency"
	"github.com/relboost/relboost/ensemble"
	"github.com/relboost/relboost/errs"
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/persistence"
)

// State is the in-process registry every command operates against: the
// fitted ensembles and data frames a session has loaded, an optional
// persistence.Store for Load*/Save*/Delete*, and one
// concurrency.ReadWriteLock guarding concurrent access, grounded on
// spec §5's requirement that reads and writes against shared state
// follow the three-mode lock rather than a single coarse mutex.
type State struct {
	lock *concurrency.ReadWriteLock

	ensembles map[string]*ensemble.Ensemble
	frames    map[string]*frame.DataFrame
	aliases   map[string]string // Deploy: alias -> ensemble ID

	store *persistence.Store
	log   *logrus.Entry
}

// NewState returns an empty State. store may be nil; SaveEnsemble and
// LoadEnsemble then fail with errs.NotFound, since there is nowhere to
// look, while DeleteEnsemble and ListEnsembles act on the in-memory
// registry only.
func NewState(store *persistence.Store) *State {
	return &State{
		lock:      concurrency.NewReadWriteLock(),
		ensembles: make(map[string]*ensemble.Ensemble),
		frames:    make(map[string]*frame.DataFrame),
		aliases:   make(map[string]string),
		store:     store,
		log:       logrus.WithField("component", "rpc"),
	}
}

func (s *State) putEnsemble(e *ensemble.Ensemble) {
	s.lock.WriteLock()
	defer s.lock.WriteUnlock()
	s.ensembles[e.ID] = e
}

func (s *State) getEnsemble(id string) (*ensemble.Ensemble, error) {
	s.lock.ReadLock()
	defer s.lock.ReadUnlock()
	e, ok := s.ensembles[id]
	if !ok {
		return nil, errs.NotFound.New("ensemble: " + id)
	}
	return e, nil
}

func (s *State) deleteEnsemble(id string) {
	s.lock.WriteLock()
	defer s.lock.WriteUnlock()
	delete(s.ensembles, id)
}

func (s *State) listEnsembles() []string {
	s.lock.ReadLock()
	defer s.lock.ReadUnlock()
	out := make([]string, 0, len(s.ensembles))
	for id := range s.ensembles {
		out = append(out, id)
	}
	return out
}
