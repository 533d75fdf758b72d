package build

import (
	"context"

	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/renderer"
)

// Build runs a single production pass: outputs are written into a clean
// output directory, the assembled page goes to consumer and the public
// directory is copied last. A nil consumer writes index.html into the
// output directory.
func Build(ctx context.Context, opts *NormalizedOptions, consumer renderer.Consumer) (*Result, error) {
	session := NewSession(opts)
	defer session.Dispose()

	result, err := session.Start(ctx)
	if err != nil {
		return nil, err
	}

	if err := WriteOutputs(ctx, opts.OutDir, result.OutputFiles, true); err != nil {
		return nil, err
	}

	page, err := renderer.Assemble(result.Page(), renderer.Options{Dev: opts.Dev})
	if err != nil {
		return nil, errors.WrapBuild(err, errors.ErrCodeOutputMapping, "failed to assemble the entry document", "")
	}

	if consumer == nil {
		consumer = renderer.NewFileConsumer(opts.OutDir)
	}
	if err := consumer.Deliver(ctx, page); err != nil {
		return nil, err
	}

	if err := CopyPublic(ctx, opts.PublicDir, opts.OutDir); err != nil {
		return nil, err
	}

	opts.Logger.Info(ctx, "Build complete",
		"out_dir", opts.OutDir,
		"entries", len(result.Entries),
		"files", len(result.OutputFiles),
		"duration", result.Duration)

	return result, nil
}
