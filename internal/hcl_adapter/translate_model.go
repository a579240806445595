// This file translates the decoded HCL blocks into the format-agnostic
// configuration model defined in the config package.

package hcl_adapter

import (
	"context"
	"fmt"
	"net/url"

	"github.com/benroywillis/Cyclebite-sub001/internal/config"
	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// translateAnalysis merges an `analysis` block into the model.
func (l *Loader) translateAnalysis(ctx context.Context, b *AnalysisBlock, m *config.Model) error {
	ctxlog.FromContext(ctx).Debug("Translating analysis block.")
	a := &m.Analysis
	if err := decodeExpr(ctx, b.MinBasePointerSize, "min_base_pointer_size", cty.Number, &a.MinBasePointerSize); err != nil {
		return err
	}
	if err := decodeExpr(ctx, b.Allocators, "allocators", cty.List(cty.String), &a.Allocators); err != nil {
		return err
	}
	if err := decodeExpr(ctx, b.MaxCallDepth, "max_call_depth", cty.Number, &a.MaxCallDepth); err != nil {
		return err
	}
	if err := decodeExpr(ctx, b.Workers, "workers", cty.Number, &a.Workers); err != nil {
		return err
	}

	switch {
	case a.MinBasePointerSize <= 0:
		return fmt.Errorf("min_base_pointer_size must be positive, got %d", a.MinBasePointerSize)
	case a.MaxCallDepth <= 0:
		return fmt.Errorf("max_call_depth must be positive, got %d", a.MaxCallDepth)
	case a.Workers < 0:
		return fmt.Errorf("workers must not be negative, got %d", a.Workers)
	case len(a.Allocators) == 0:
		return fmt.Errorf("allocators must name at least one function")
	}
	return nil
}

// translateOutput merges an `output` block into the model.
func (l *Loader) translateOutput(b *OutputBlock, m *config.Model) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&m.Output.Statistics, b.Statistics)
	set(&m.Output.Expressions, b.Expressions)
	set(&m.Output.Report, b.Report)
	set(&m.Output.Pragmas, b.Pragmas)
}

// translatePublish converts a `publish` block into the model.
func (l *Loader) translatePublish(b *PublishBlock) (*config.Publish, error) {
	u, err := url.Parse(b.URL)
	if err != nil {
		return nil, fmt.Errorf("publish url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("publish url %q must be absolute", b.URL)
	}
	p := &config.Publish{
		URL:                b.URL,
		Namespace:          b.Namespace,
		Event:              b.Event,
		InsecureSkipVerify: b.InsecureSkipVerify,
	}
	if p.Namespace == "" {
		p.Namespace = "/"
	}
	if p.Event == "" {
		p.Event = "report"
	}
	return p, nil
}
