package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/benroywillis/Cyclebite-sub001/internal/config"
	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/fsutil"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file under paths and merges their blocks, in file
// order, on top of config.Default(). Later files win.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := config.Default()

	hclFiles, err := fsutil.FindFilesByExtension(".hcl", paths...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		attrs, diags := root.Remain.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		if len(attrs) > 0 {
			return nil, fmt.Errorf("failed to decode HCL file %s: %d unexpected top-level attributes", file, len(attrs))
		}

		for _, a := range root.Analysis {
			if err := l.translateAnalysis(ctx, a, model); err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
		}
		for _, o := range root.Output {
			l.translateOutput(o, model)
		}
		for _, p := range root.Publish {
			pub, err := l.translatePublish(p)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			model.Publish = pub
		}
	}

	logger.Debug("HCL loading complete.", "files", len(hclFiles), "workers", model.Analysis.Workers, "publish", model.Publish != nil)
	return model, nil
}
