package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block a configuration file may carry.
// Attributes are kept as expressions so they can be evaluated against the
// size-unit context and so omitted ones can be told apart from zero values.
type fileRoot struct {
	Analysis []*AnalysisBlock `hcl:"analysis,block"`
	Output   []*OutputBlock   `hcl:"output,block"`
	Publish  []*PublishBlock  `hcl:"publish,block"`
	Remain   hcl.Body         `hcl:",remain"`
}

// AnalysisBlock is the HCL schema of the `analysis` block.
type AnalysisBlock struct {
	MinBasePointerSize hcl.Expression `hcl:"min_base_pointer_size,optional"`
	Allocators         hcl.Expression `hcl:"allocators,optional"`
	MaxCallDepth       hcl.Expression `hcl:"max_call_depth,optional"`
	Workers            hcl.Expression `hcl:"workers,optional"`
}

// OutputBlock is the HCL schema of the `output` block.
type OutputBlock struct {
	Statistics  *string `hcl:"statistics,optional"`
	Expressions *string `hcl:"expressions,optional"`
	Report      *string `hcl:"report,optional"`
	Pragmas     *string `hcl:"pragmas,optional"`
}

// PublishBlock is the HCL schema of the `publish` block.
type PublishBlock struct {
	URL                string `hcl:"url"`
	Namespace          string `hcl:"namespace,optional"`
	Event              string `hcl:"event,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
}
