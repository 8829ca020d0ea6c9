package rpc

import (
	"context"
	"math"

	uuid "github.com/satori/go.uuid"

	"github.com/relboost/relboost/ensemble"
	"github.com/relboost/relboost/errs"
	"github.com/relboost/relboost/frame"
	"github.com/relboost/relboost/hyperparams"
	"github.com/relboost/relboost/optim"
	"github.com/relboost/relboost/persistence"
	"github.com/relboost/relboost/placeholder"
	"github.com/relboost/relboost/sqlgen"
	"github.com/relboost/relboost/tree"
)

func newID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", errs.InvalidInput.Wrap(err, "rpc: generating id")
	}
	return id.String(), nil
}

// toEnsembleHyperparams adapts the public hyperparams.Hyperparams
// (spec §6's enumerated configuration surface) to the internal
// ensemble.Hyperparams/tree.Hyperparams shapes package ensemble and
// package tree were built around - fields spec §6 does not name
// (MinLossReduction, MaxStep) get the teacher-style conservative
// defaults documented inline; LeafKind and LinearColumns keep their
// zero values (scalar leaves).
//
// NumThreads sizes the candidate-pool goroutine pool
// ensemble.fitCandidatePool partitions across (spec §4.6/§4.7); since
// spec §6's hyperparameter surface has no separate num_candidates
// knob, NumCandidates is derived from NumThreads so a caller asking
// for N threads actually gets a pool with N independent candidates to
// divide among them, rather than N threads racing to fit one tree.
func toEnsembleHyperparams(h hyperparams.Hyperparams) ensemble.Hyperparams {
	numThreads := int(h.NumThreads)
	if numThreads < 1 {
		numThreads = 1
	}
	return ensemble.Hyperparams{
		NumFeatures:    int(h.NumFeatures),
		NumCandidates:  numThreads,
		Shrinkage:      h.Shrinkage,
		SamplingFactor: h.SamplingFactor,
		Loss:           optim.SquaredError,
		Seed:           int64(h.Seed),
		NumThreads:     numThreads,
		Tree: tree.Hyperparams{
			MaxDepth:         int(h.MaxDepth),
			MinSamplesLeaf:   int(h.MinNumSamples),
			GridFactor:       h.GridFactor,
			MinLossReduction: 0, // not named in spec §6; accept any positive gain
			RegLambda:        h.RegLambda,
			MaxStep:          1e9, // effectively unclipped unless the caller tunes it elsewhere
			ShareConditions:  h.ShareConditions,
		},
	}
}

// CheckRequest asks whether a Fit with these inputs would be accepted,
// without actually fitting - spec §6's Check command.
type CheckRequest struct {
	Placeholder *placeholder.Placeholder
	Peripherals map[string]*frame.DataFrame
	Hyper       hyperparams.Hyperparams
}

// CheckResponse reports every problem CheckRequest's inputs have, if
// any; OK is true only when Problems is empty.
type CheckResponse struct {
	OK       bool
	Problems []string
}

// Check validates req without mutating State, per spec §6.
func Check(req CheckRequest) CheckResponse {
	var problems []string

	if err := req.Hyper.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if req.Placeholder == nil {
		problems = append(problems, "placeholder is required")
	} else if err := placeholder.Validate(req.Placeholder); err != nil {
		problems = append(problems, err.Error())
	} else {
		for _, child := range req.Placeholder.Children {
			if _, ok := req.Peripherals[child.Name]; !ok {
				problems = append(problems, "missing peripheral frame: "+child.Name)
			}
		}
	}

	return CheckResponse{OK: len(problems) == 0, Problems: problems}
}

// FitRequest is spec §6's Fit command.
type FitRequest struct {
	Population  *frame.DataFrame
	Peripherals map[string]*frame.DataFrame
	Placeholder *placeholder.Placeholder
	Target      []float64
	TargetNames []string
	Hyper       hyperparams.Hyperparams
}

// FitResponse returns the new ensemble's ID and feature count.
type FitResponse struct {
	EnsembleID  string
	NumFeatures int
}

// Fit validates req, fits an ensemble, and registers it in s under a
// fresh ID - spec §6's Fit command. Fitting a second time never
// mutates an already-registered ensemble in place (spec §7:
// "fit and transform calls either return a complete result or throw
// an error; there are no partially-fitted ensembles"); each call
// produces a brand-new ID. ctx is checked once per feature (spec §8
// S6); a cancellation observed mid-fit returns errs.Interrupted and
// leaves s's registry untouched, since putEnsemble never runs.
func (s *State) Fit(ctx context.Context, req FitRequest) (FitResponse, error) {
	if check := Check(CheckRequest{Placeholder: req.Placeholder, Peripherals: req.Peripherals, Hyper: req.Hyper}); !check.OK {
		return FitResponse{}, errs.InvalidInput.New("rpc: fit rejected: " + check.Problems[0])
	}

	e, err := ensemble.Fit(ensemble.FitInput{
		Population:  req.Population,
		Peripherals: req.Peripherals,
		Placeholder: req.Placeholder,
		Target:      req.Target,
		TargetNames: req.TargetNames,
		Hyper:       toEnsembleHyperparams(req.Hyper),
		Ctx:         ctx,
	})
	if err != nil {
		return FitResponse{}, err
	}

	s.putEnsemble(e)
	return FitResponse{EnsembleID: e.ID, NumFeatures: len(e.Features)}, nil
}

// TransformRequest is spec §6's Transform command.
type TransformRequest struct {
	EnsembleID  string
	Population  *frame.DataFrame
	Peripherals map[string]*frame.DataFrame
}

// TransformResponse carries the feature matrix produced for the
// request's population rows.
type TransformResponse struct {
	Features *frame.DataFrame
}

// Transform looks up the fitted ensemble named by req.EnsembleID and
// evaluates it over req's frames - spec §6's Transform command.
func (s *State) Transform(req TransformRequest) (TransformResponse, error) {
	e, err := s.getEnsemble(req.EnsembleID)
	if err != nil {
		return TransformResponse{}, err
	}
	out, err := e.Transform(req.Population, req.Peripherals)
	if err != nil {
		return TransformResponse{}, err
	}
	return TransformResponse{Features: out}, nil
}

// ColumnImportancesRequest names the ensemble to inspect.
type ColumnImportancesRequest struct {
	EnsembleID string
}

// ColumnImportancesResponse reports, for every column name that was
// ever used in a committed split across the ensemble's trees, the
// share of splits that used it - a frequency-based importance, since
// committed splits do not retain their individual gain (tree.Node
// stores only the chosen split, not its score).
type ColumnImportancesResponse struct {
	Importances map[string]float64
}

// ColumnImportances computes ColumnImportancesResponse for a fitted
// ensemble, spec §6's ColumnImportances command.
func ColumnImportances(s *State, req ColumnImportancesRequest) (ColumnImportancesResponse, error) {
	e, err := s.getEnsemble(req.EnsembleID)
	if err != nil {
		return ColumnImportancesResponse{}, err
	}

	counts := map[string]int{}
	total := 0
	for _, f := range e.Features {
		for _, n := range f.Tree.Nodes {
			if n.IsLeaf {
				continue
			}
			counts[n.Split.ColumnName]++
			total++
		}
	}

	out := make(map[string]float64, len(counts))
	for name, c := range counts {
		if total == 0 {
			out[name] = 0
			continue
		}
		out[name] = float64(c) / float64(total)
	}
	return ColumnImportancesResponse{Importances: out}, nil
}

// FeatureImportancesRequest names the ensemble to inspect.
type FeatureImportancesRequest struct {
	EnsembleID string
}

// FeatureImportancesResponse reports, per learned feature (by index),
// the mean absolute leaf weight across the feature's tree - a proxy
// for the feature's typical contribution magnitude, since trees don't
// retain per-split gain once committed.
type FeatureImportancesResponse struct {
	Importances []float64
}

// FeatureImportances computes FeatureImportancesResponse, spec §6's
// FeatureImportances command.
func FeatureImportances(s *State, req FeatureImportancesRequest) (FeatureImportancesResponse, error) {
	e, err := s.getEnsemble(req.EnsembleID)
	if err != nil {
		return FeatureImportancesResponse{}, err
	}

	out := make([]float64, len(e.Features))
	for i, f := range e.Features {
		var sum float64
		var n int
		for _, node := range f.Tree.Nodes {
			if !node.IsLeaf {
				continue
			}
			w := node.Weight
			if w < 0 {
				w = -w
			}
			sum += w
			n++
		}
		if n > 0 {
			out[i] = sum / float64(n)
		}
	}
	return FeatureImportancesResponse{Importances: out}, nil
}

// FeatureCorrelationsRequest asks for the Pearson correlation matrix
// between every column of a Transform result.
type FeatureCorrelationsRequest struct {
	EnsembleID  string
	Population  *frame.DataFrame
	Peripherals map[string]*frame.DataFrame
}

// FeatureCorrelationsResponse carries the symmetric correlation
// matrix, aligned with Names.
type FeatureCorrelationsResponse struct {
	Names  []string
	Matrix [][]float64
}

// FeatureCorrelations transforms req's frames through the named
// ensemble and returns the Pearson correlation matrix of its output
// columns - spec §6's FeatureCorrelations command.
func FeatureCorrelations(s *State, req FeatureCorrelationsRequest) (FeatureCorrelationsResponse, error) {
	out, err := s.Transform(TransformRequest{EnsembleID: req.EnsembleID, Population: req.Population, Peripherals: req.Peripherals})
	if err != nil {
		return FeatureCorrelationsResponse{}, err
	}

	cols := out.Features.Columns()
	names := make([]string, len(cols))
	series := make([][]float64, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		series[i] = c.Floats
	}

	n := len(cols)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		for j := range matrix[i] {
			matrix[i][j] = pearson(series[i], series[j])
		}
	}
	return FeatureCorrelationsResponse{Names: names, Matrix: matrix}, nil
}

// ToSQLRequest names the ensemble and the dialect/schemas needed to
// emit a self-contained SQL script for it.
type ToSQLRequest struct {
	EnsembleID        string
	Dialect           sqlgen.Dialect
	PopulationSchema  sqlgen.Schema
	PeripheralSchemas map[string]sqlgen.Schema
}

// ToSQLResponse carries the rendered statement plan.
type ToSQLResponse struct {
	Plan sqlgen.Plan
}

// ToSQL renders the named ensemble to SQL via package sqlgen - spec
// §6's ToSQL command, §4.9's contract.
func ToSQL(s *State, req ToSQLRequest) (ToSQLResponse, error) {
	e, err := s.getEnsemble(req.EnsembleID)
	if err != nil {
		return ToSQLResponse{}, err
	}
	plan, err := sqlgen.ToSQL(req.Dialect, req.PopulationSchema, req.PeripheralSchemas, e)
	if err != nil {
		return ToSQLResponse{}, err
	}
	return ToSQLResponse{Plan: plan}, nil
}

// RefreshRequest names the ensemble whose cached frames should be
// dropped so the next Fit/Transform call re-reads them from their
// RowSource - spec §6's Refresh command. Since this implementation
// never caches a frame.DataFrame keyed by ensemble (every Fit/Transform
// call takes its frames as explicit arguments), Refresh has nothing of
// its own to invalidate; it exists as a documented no-op so callers
// written against the full command set compile against this core
// without a special case, and to validate the ensemble ID is live.
type RefreshRequest struct {
	EnsembleID string
}

// RefreshResponse is empty; Refresh either succeeds or returns
// errs.NotFound.
type RefreshResponse struct{}

// Refresh validates that req.EnsembleID still names a live ensemble.
func Refresh(s *State, req RefreshRequest) (RefreshResponse, error) {
	if _, err := s.getEnsemble(req.EnsembleID); err != nil {
		return RefreshResponse{}, err
	}
	return RefreshResponse{}, nil
}

// DeployRequest binds a human-facing alias to a fitted ensemble ID, so
// a caller can Transform against "production" without tracking the
// underlying fit's UUID - spec §6's Deploy command.
type DeployRequest struct {
	Alias      string
	EnsembleID string
}

// DeployResponse is empty; Deploy either succeeds or returns
// errs.NotFound.
type DeployResponse struct{}

// Deploy records req.Alias -> req.EnsembleID.
func (s *State) Deploy(req DeployRequest) (DeployResponse, error) {
	if _, err := s.getEnsemble(req.EnsembleID); err != nil {
		return DeployResponse{}, err
	}
	s.lock.WriteLock()
	s.aliases[req.Alias] = req.EnsembleID
	s.lock.WriteUnlock()
	return DeployResponse{}, nil
}

// ResolveAlias returns the ensemble ID currently deployed under alias.
func (s *State) ResolveAlias(alias string) (string, error) {
	s.lock.ReadLock()
	defer s.lock.ReadUnlock()
	id, ok := s.aliases[alias]
	if !ok {
		return "", errs.NotFound.New("alias: " + alias)
	}
	return id, nil
}

// CopyPipelineRequest duplicates a fitted ensemble under a new ID,
// spec §6's CopyPipeline command - used to branch a production
// pipeline before trying a risky Refresh/Deploy.
type CopyPipelineRequest struct {
	SourceID string
}

// CopyPipelineResponse carries the new ensemble's ID.
type CopyPipelineResponse struct {
	NewEnsembleID string
}

// CopyPipeline clones the ensemble named by req.SourceID under a fresh
// ID, sharing its fitted trees (they are never mutated after Fit
// returns, so sharing is safe).
func (s *State) CopyPipeline(req CopyPipelineRequest) (CopyPipelineResponse, error) {
	src, err := s.getEnsemble(req.SourceID)
	if err != nil {
		return CopyPipelineResponse{}, err
	}
	clone := *src
	id, err := newID()
	if err != nil {
		return CopyPipelineResponse{}, err
	}
	clone.ID = id
	s.putEnsemble(&clone)
	return CopyPipelineResponse{NewEnsembleID: id}, nil
}

// DeleteEnsembleRequest names the ensemble to remove from both the
// in-memory registry and the backing Store, if any - spec §6's
// Delete* family for ensembles.
type DeleteEnsembleRequest struct {
	EnsembleID string
}

// DeleteEnsembleResponse is empty.
type DeleteEnsembleResponse struct{}

// DeleteEnsemble removes req.EnsembleID everywhere.
func (s *State) DeleteEnsemble(req DeleteEnsembleRequest) (DeleteEnsembleResponse, error) {
	s.deleteEnsemble(req.EnsembleID)
	if s.store != nil {
		if err := s.store.Delete(req.EnsembleID); err != nil {
			return DeleteEnsembleResponse{}, err
		}
	}
	return DeleteEnsembleResponse{}, nil
}

// SaveEnsembleRequest persists a fitted ensemble to the backing Store
// - spec §6's Save* family.
type SaveEnsembleRequest struct {
	EnsembleID       string
	Hyper            hyperparams.Hyperparams
	PopulationSchema frame.Schema
	PeripheralSchema []frame.Schema
	AllowHTTP        bool
}

// SaveEnsembleResponse is empty.
type SaveEnsembleResponse struct{}

// SaveEnsemble writes the named ensemble's persistence.Document to the
// Store.
func (s *State) SaveEnsemble(req SaveEnsembleRequest) (SaveEnsembleResponse, error) {
	if s.store == nil {
		return SaveEnsembleResponse{}, errs.NotFound.New("rpc: no persistence store configured")
	}
	e, err := s.getEnsemble(req.EnsembleID)
	if err != nil {
		return SaveEnsembleResponse{}, err
	}
	doc := persistence.FromEnsemble(e, req.PopulationSchema, req.PeripheralSchema, req.Hyper, req.AllowHTTP)
	if err := s.store.Save(e.ID, doc); err != nil {
		return SaveEnsembleResponse{}, err
	}
	return SaveEnsembleResponse{}, nil
}

// LoadEnsembleRequest names the persisted ensemble to rehydrate into
// the in-memory registry - spec §6's Load* family.
type LoadEnsembleRequest struct {
	EnsembleID string
}

// LoadEnsembleResponse carries the rehydrated document's feature
// count, as a quick sanity signal for the caller.
type LoadEnsembleResponse struct {
	NumFeatures int
}

// LoadEnsemble reads req.EnsembleID's Document back from the Store and
// registers an Ensemble built from it.
func (s *State) LoadEnsemble(req LoadEnsembleRequest) (LoadEnsembleResponse, error) {
	if s.store == nil {
		return LoadEnsembleResponse{}, errs.NotFound.New("rpc: no persistence store configured")
	}
	doc, err := s.store.Load(req.EnsembleID)
	if err != nil {
		return LoadEnsembleResponse{}, err
	}
	e := &ensemble.Ensemble{
		ID:          req.EnsembleID,
		Placeholder: doc.Placeholder,
		TargetNames: doc.TargetNames,
		Features:    doc.Features,
		Subfeatures: doc.Subfeatures,
	}
	s.putEnsemble(e)
	return LoadEnsembleResponse{NumFeatures: len(e.Features)}, nil
}

// ListEnsemblesRequest has no fields; List* commands in this core take
// no filter.
type ListEnsemblesRequest struct{}

// ListEnsemblesResponse reports every ensemble ID currently registered
// in memory.
type ListEnsemblesResponse struct {
	EnsembleIDs []string
}

// ListEnsembles reports every in-memory ensemble ID - spec §6's List*
// family.
func (s *State) ListEnsembles(_ ListEnsemblesRequest) ListEnsemblesResponse {
	return ListEnsemblesResponse{EnsembleIDs: s.listEnsembles()}
}

// pearson computes the Pearson correlation coefficient between two
// equal-length series, returning 0 for a degenerate (zero-variance)
// input rather than NaN, matching frame.Column's own empty-set
// convention elsewhere in this codebase.
func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	var sa, sb float64
	for i := 0; i < n; i++ {
		sa += a[i]
		sb += b[i]
	}
	ma, mb := sa/float64(n), sb/float64(n)

	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}
