// Package hyperparams implements the configuration struct described
// in spec §6: every hyperparameter field, enumerated, validated by a
// single Validate call collecting every violation rather than failing
// fast on the first one, and (de)serialized to YAML for the
// persistence layer.
package hyperparams

import (
	"io/ioutil"

	multierror "github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v2"

	"github.com/relboost/relboost/aggregation"
	"github.com/relboost/relboost/errs"
)

// Hyperparams bundles every field spec §6's "Configuration" section
// enumerates. YAML tags follow the spec's own snake_case field names.
type Hyperparams struct {
	NumFeatures   uint32 `yaml:"num_features"`
	MaxDepth      uint8  `yaml:"max_depth"`
	MinNumSamples uint32 `yaml:"min_num_samples"`
	MinDF         uint32 `yaml:"min_df"`

	GridFactor      float64 `yaml:"grid_factor"`
	Shrinkage       float64 `yaml:"shrinkage"`
	SamplingFactor  float64 `yaml:"sampling_factor"`
	ShareConditions float64 `yaml:"share_conditions"`
	RegLambda       float64 `yaml:"reg_lambda"`

	NumThreads uint32 `yaml:"num_threads"`
	Seed       int32  `yaml:"seed"`

	UseTimestamps      bool `yaml:"use_timestamps"`
	AllowLaggedTargets bool `yaml:"allow_lagged_targets"`
	Silent             bool `yaml:"silent"`

	Horizon      float64  `yaml:"horizon"`
	Memory       float64  `yaml:"memory"`
	TSName       string   `yaml:"ts_name"`
	SelfJoinKeys []string `yaml:"self_join_keys"`

	// AggregationCatalog is the subset of aggregation.Kind this fit is
	// allowed to pick from; empty means "every kind in §4.4".
	AggregationCatalog []aggregation.Kind `yaml:"aggregation_catalog"`
}

// Default returns the hyperparameter set the teacher's example configs
// ship as a starting point: one tree per boosting round, shallow
// trees, every column considered, no bootstrap subsampling.
func Default() Hyperparams {
	return Hyperparams{
		NumFeatures:     10,
		MaxDepth:        3,
		MinNumSamples:   1,
		MinDF:           30,
		GridFactor:      1.0,
		Shrinkage:       0.3,
		SamplingFactor:  0,
		ShareConditions: 1,
		RegLambda:       0,
		NumThreads:      1,
		Seed:            5543,
	}
}

// Validate checks every field independently and returns every
// violation together (spec §6: "Validate() returns a *multierror.Error
// ... on the first call that fails" - collected, not fail-fast),
// wrapped in errs.InvalidInput. Returns nil if every field is sound.
func (h Hyperparams) Validate() error {
	var merr *multierror.Error

	if h.NumFeatures == 0 {
		merr = multierror.Append(merr, errs.InvalidInput.New("num_features must be positive"))
	}
	if h.MaxDepth == 0 {
		merr = multierror.Append(merr, errs.InvalidInput.New("max_depth must be positive"))
	}
	if h.MinNumSamples == 0 {
		merr = multierror.Append(merr, errs.InvalidInput.New("min_num_samples must be positive"))
	}
	if h.GridFactor <= 0 {
		merr = multierror.Append(merr, errs.InvalidInput.New("grid_factor must be positive"))
	}
	if h.Shrinkage < 0 || h.Shrinkage > 1 {
		merr = multierror.Append(merr, errs.InvalidInput.New("shrinkage must be in [0,1]"))
	}
	if h.SamplingFactor < 0 {
		merr = multierror.Append(merr, errs.InvalidInput.New("sampling_factor must be >= 0"))
	}
	if h.ShareConditions <= 0 || h.ShareConditions > 1 {
		merr = multierror.Append(merr, errs.InvalidInput.New("share_conditions must be in (0,1]"))
	}
	if h.RegLambda < 0 {
		merr = multierror.Append(merr, errs.InvalidInput.New("reg_lambda must be >= 0"))
	}
	if h.NumThreads == 0 {
		merr = multierror.Append(merr, errs.InvalidInput.New("num_threads must be positive"))
	}
	if h.Seed < 0 {
		merr = multierror.Append(merr, errs.InvalidInput.New("seed must not be negative"))
	}
	if h.Horizon < 0 {
		merr = multierror.Append(merr, errs.InvalidInput.New("horizon must be >= 0"))
	}
	if h.Memory < 0 {
		merr = multierror.Append(merr, errs.InvalidInput.New("memory must be >= 0"))
	}
	if len(h.SelfJoinKeys) > 0 && h.TSName == "" {
		merr = multierror.Append(merr, errs.InvalidInput.New("ts_name is required when self_join_keys is set"))
	}

	if merr != nil {
		return errs.InvalidInput.Wrap(merr.ErrorOrNil(), "hyperparams")
	}
	return nil
}

// Dump serializes h to YAML.
func (h Hyperparams) Dump() ([]byte, error) {
	out, err := yaml.Marshal(h)
	if err != nil {
		return nil, errs.InvalidInput.Wrap(err, "hyperparams: marshal")
	}
	return out, nil
}

// Load deserializes YAML bytes into a Hyperparams, starting from
// Default() so a partial document still yields sane values for every
// field it omits.
func Load(data []byte) (Hyperparams, error) {
	h := Default()
	if err := yaml.Unmarshal(data, &h); err != nil {
		return Hyperparams{}, errs.InvalidInput.Wrap(err, "hyperparams: unmarshal")
	}
	return h, nil
}

// LoadFile reads and parses a YAML hyperparameter file from path.
func LoadFile(path string) (Hyperparams, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Hyperparams{}, errs.NotFound.Wrap(err, "hyperparams: "+path)
	}
	return Load(data)
}

// DumpFile serializes h to YAML and writes it to path.
func DumpFile(h Hyperparams, path string) error {
	data, err := h.Dump()
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, data, 0o644); err != nil {
		return errs.InvalidInput.Wrap(err, "hyperparams: write "+path)
	}
	return nil
}
