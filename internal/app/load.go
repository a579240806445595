package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/benroywillis/Cyclebite-sub001/internal/ctxlog"
	"github.com/benroywillis/Cyclebite-sub001/internal/descriptor"
	"github.com/benroywillis/Cyclebite-sub001/internal/fault"
	"github.com/benroywillis/Cyclebite-sub001/internal/program"
)

// load reads the program graph, its optional profile and block information,
// and the kernel or instance descriptor. Every error is run-fatal.
func (a *App) load(ctx context.Context) (*program.Index, *descriptor.Descriptor, error) {
	logger := ctxlog.FromContext(ctx)
	b := program.NewBuilder()

	if err := readFile(a.cfg.ProgramPath, func(r io.Reader) error { return program.LoadProgram(r, b) }); err != nil {
		return nil, nil, err
	}
	if a.cfg.ProfilePath != "" {
		if err := readFile(a.cfg.ProfilePath, func(r io.Reader) error { return program.LoadProfile(r, b) }); err != nil {
			return nil, nil, err
		}
	}
	if a.cfg.BlockInfoPath != "" {
		if err := readFile(a.cfg.BlockInfoPath, func(r io.Reader) error { return program.LoadBlockInfo(r, b) }); err != nil {
			return nil, nil, err
		}
	}

	var d *descriptor.Descriptor
	err := readFile(a.cfg.descriptorPath(), func(r io.Reader) error {
		var err error
		d, err = descriptor.Load(r)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	b.MarkSignificant(d.Significant...)

	idx, err := b.Build()
	if err != nil {
		return nil, nil, fault.Run("app.load", fmt.Errorf("%w: %v", fault.ErrDescriptor, err))
	}
	logger.Info("Program loaded.", "values", len(idx.Values()), "blocks", len(idx.Blocks()), "kernels", len(d.Kernels))
	return idx, d, nil
}

func readFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fault.Run("app.load", err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fault.Run("app.load", fmt.Errorf("%s: %w", path, err))
	}
	return nil
}
