package affix

import (
	"context"
	"fmt"
	"log/slog"
)

// Transform turns one file into another for a style. Transforms are chained:
// the output of one is the input of the next.
type Transform interface {
	Make(ctx context.Context, in *File, style StyleOptions, a *Attachment) (*File, error)
}

// TransformFunc adapts a function to Transform.
type TransformFunc func(ctx context.Context, in *File, style StyleOptions, a *Attachment) (*File, error)

func (f TransformFunc) Make(ctx context.Context, in *File, style StyleOptions, a *Attachment) (*File, error) {
	return f(ctx, in, style, a)
}

// Pipeline derives every configured style from an original upload.
type Pipeline struct {
	registry *Registry
}

// NewPipeline returns a pipeline resolving transforms from reg.
func NewPipeline(reg *Registry) *Pipeline {
	return &Pipeline{registry: reg}
}

// Process runs every style of a and returns the outputs keyed by style.
//
// The record hooks before_<slot>_process and after_<slot>_process surround
// the run, before_<slot>_<style>_process and after_<slot>_<style>_process
// surround each style. A vetoing before hook skips the work; a vetoing after
// hook discards its output. A nil map with a nil error means the whole run
// was vetoed.
//
// Any transform failure aborts the run with ErrProcessing and no output.
func (p *Pipeline) Process(ctx context.Context, a *Attachment, original *File) (map[string]*File, error) {
	if !a.callback("before_" + a.name + "_process") {
		slog.Debug("processing vetoed", "attachment", a.name)
		return nil, nil
	}

	files := make(map[string]*File, len(a.options.Styles))
	for _, style := range a.options.StyleNames() {
		out, err := p.processStyle(ctx, a, original, style)
		if err != nil {
			return nil, err
		}
		if out != nil {
			files[style] = out
		}
	}

	if !a.callback("after_" + a.name + "_process") {
		slog.Debug("processed output discarded", "attachment", a.name)
		return nil, nil
	}

	return files, nil
}

func (p *Pipeline) processStyle(ctx context.Context, a *Attachment, original *File, style string) (*File, error) {
	if !a.callback("before_" + a.name + "_" + style + "_process") {
		return nil, nil
	}

	styleOpts := a.options.Styles[style]
	file := original

	for _, name := range styleOpts.Transforms {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("process %s/%s: %w: %w", a.name, style, ErrProcessing, err)
		}

		t, err := p.registry.Transform(name)
		if err != nil {
			return nil, fmt.Errorf("process %s/%s: %w: %w", a.name, style, ErrProcessing, err)
		}

		next, err := t.Make(ctx, file, styleOpts, a)
		if err != nil {
			return nil, fmt.Errorf("process %s/%s: transform %s: %w: %w", a.name, style, name, ErrProcessing, err)
		}
		if next == nil {
			return nil, fmt.Errorf("process %s/%s: transform %s: %w: no output", a.name, style, name, ErrProcessing)
		}
		file = next
	}

	if !a.callback("after_" + a.name + "_" + style + "_process") {
		return nil, nil
	}

	return file, nil
}
