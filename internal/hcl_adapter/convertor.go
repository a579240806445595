package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// decodeExpr evaluates expr and stores it in target, which must be a pointer
// to a Go value gocty can fill from ty. An omitted attribute leaves target
// untouched.
func decodeExpr(ctx context.Context, expr hcl.Expression, attrName string, ty cty.Type, target any) error {
	if !isExprDefined(ctx, expr, attrName) {
		return nil
	}
	logger := ctxlog.FromContext(ctx).With("attribute", attrName)

	val, diags := expr.Value(evalContext())
	if diags.HasErrors() {
		return fmt.Errorf("attribute '%s': %w", attrName, diags)
	}
	if val.IsNull() {
		logger.Debug("Attribute is null, keeping default.")
		return nil
	}
	converted, err := convert.Convert(val, ty)
	if err != nil {
		return fmt.Errorf("attribute '%s': cannot convert %s to %s: %w", attrName, val.Type().FriendlyName(), ty.FriendlyName(), err)
	}
	if err := gocty.FromCtyValue(converted, target); err != nil {
		return fmt.Errorf("attribute '%s': %w", attrName, err)
	}
	logger.Debug("Attribute decoded.", "type", ty.FriendlyName())
	return nil
}
