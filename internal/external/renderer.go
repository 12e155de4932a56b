package external

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"radarflow/internal/product"
	"radarflow/internal/services"
)

// CommandRenderer runs products.render_command once per product. Each
// resolved field style is passed as "--field NAME=vmin,vmax,cmap", followed
// by "--colmax" when requested.
type CommandRenderer struct {
	binary string
	args   []string
	exec   Executor
}

// NewCommandRenderer validates argv and returns a renderer.
func NewCommandRenderer(argv []string, opts ...Option) (*CommandRenderer, error) {
	binary, args, err := splitCommand(argv)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "renderer", "init", "products.render_command", err)
	}
	r := &CommandRenderer{binary: binary, args: args, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(&r.exec)
	}
	return r, nil
}

// Binary reports the configured executable.
func (r *CommandRenderer) Binary() string { return r.binary }

// Render implements product.Renderer.
func (r *CommandRenderer) Render(ctx context.Context, req product.Request) error {
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create product dir: %w", err)
	}
	args := expand(r.args, map[string]string{
		"artifact":     req.ArtifactPath,
		"output_dir":   req.OutputDir,
		"volume_id":    req.Volume.VolumeID,
		"product_type": req.ProductType,
	})
	for _, f := range req.Fields {
		args = append(args, "--field", f.Name+"="+
			strconv.FormatFloat(f.Style.VMin, 'f', -1, 64)+","+
			strconv.FormatFloat(f.Style.VMax, 'f', -1, 64)+","+
			f.Style.Colormap)
	}
	if req.IncludeColmax {
		args = append(args, "--colmax")
	}
	if err := r.exec.Run(ctx, r.binary, args, nil); err != nil {
		return services.Wrap(services.ErrRender, "renderer", "render", req.Volume.VolumeID, err)
	}
	return nil
}
