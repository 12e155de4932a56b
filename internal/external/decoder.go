package external

import (
	"context"
	"fmt"
	"os"
	"strings"

	"radarflow/internal/services"
	"radarflow/internal/state"
)

// CommandDecoder runs processing.decode_command for each volume. The local
// files are appended to the configured arguments and the last non-empty
// stdout line is taken as the artifact path.
type CommandDecoder struct {
	binary    string
	args      []string
	outputDir string
	exec      Executor
}

// Option configures command-backed collaborators.
type Option func(*Executor)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(e Executor) Option {
	return func(dst *Executor) {
		if e != nil {
			*dst = e
		}
	}
}

// NewCommandDecoder validates argv and returns a decoder writing artifacts
// under outputDir.
func NewCommandDecoder(argv []string, outputDir string, opts ...Option) (*CommandDecoder, error) {
	binary, args, err := splitCommand(argv)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "decoder", "init", "processing.decode_command", err)
	}
	d := &CommandDecoder{binary: binary, args: args, outputDir: outputDir, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(&d.exec)
	}
	return d, nil
}

// Binary reports the configured executable.
func (d *CommandDecoder) Binary() string { return d.binary }

// DecodeAndMerge implements processing.Decoder.
func (d *CommandDecoder) DecodeAndMerge(ctx context.Context, v state.Volume, localPaths []string) (string, error) {
	if err := os.MkdirAll(d.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	args := expand(d.args, map[string]string{
		"output_dir": d.outputDir,
		"volume_id":  v.VolumeID,
		"source":     v.Source,
	})
	args = append(args, localPaths...)

	var last string
	err := d.exec.Run(ctx, d.binary, args, func(line string) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			last = trimmed
		}
	})
	if err != nil {
		return "", services.Wrap(services.ErrDecode, "decoder", "decode_and_merge", v.VolumeID, err)
	}
	if last == "" {
		return "", services.Wrap(services.ErrDecode, "decoder", "decode_and_merge", "command printed no artifact path", nil)
	}
	if _, err := os.Stat(last); err != nil {
		return "", services.Wrap(services.ErrDecode, "decoder", "decode_and_merge", "artifact not written", err)
	}
	return last, nil
}
