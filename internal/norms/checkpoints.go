package norms

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/swscloud/reviewd/internal/docmodel"
	"github.com/swscloud/reviewd/internal/errors"
)

type checkpointSeed struct {
	Code                string  `yaml:"code"`
	Name                string  `yaml:"name"`
	EngineType          string  `yaml:"engine_type"`
	ReviewCategory      string  `yaml:"review_category"`
	Enabled             *bool   `yaml:"enabled"`
	OrderIndex          *int    `yaml:"order_index"`
	TargetOutlinePrefix *string `yaml:"target_outline_prefix"`
	PromptTemplate      string  `yaml:"prompt_template"`
	RuleConfig          string  `yaml:"rule_config"`
}

// LoadCheckpointSeeds parses a YAML checkpoint definition file into
// checkpoint rows ready for upsert. Enabled defaults to true.
func LoadCheckpointSeeds(path string) ([]docmodel.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityError, "read checkpoint seed file")
	}
	var seeds []checkpointSeed
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityError, "parse checkpoint seed file")
	}

	out := make([]docmodel.Checkpoint, 0, len(seeds))
	for _, s := range seeds {
		if s.Code == "" || s.Name == "" {
			return nil, errors.New(errors.CategoryValidation, errors.SeverityError, "checkpoint seed requires code and name")
		}
		engine := docmodel.EngineType(s.EngineType)
		if engine != docmodel.EngineRule && engine != docmodel.EngineAI {
			return nil, errors.Newf(errors.CategoryValidation, errors.SeverityError, "checkpoint %s: unknown engine_type %q", s.Code, s.EngineType)
		}
		cp := docmodel.Checkpoint{
			Code:                s.Code,
			Name:                s.Name,
			EngineType:          engine,
			ReviewCategory:      s.ReviewCategory,
			Enabled:             true,
			OrderIndex:          s.OrderIndex,
			TargetOutlinePrefix: s.TargetOutlinePrefix,
			PromptTemplate:      s.PromptTemplate,
			RuleConfig:          s.RuleConfig,
		}
		if s.Enabled != nil {
			cp.Enabled = *s.Enabled
		}
		out = append(out, cp)
	}
	return out, nil
}
