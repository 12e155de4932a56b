package deps

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"radarflow/internal/config"
)

// Requirement is an external collaborator binary named by configuration.
type Requirement struct {
	Name    string
	Command string
	// Key is the configuration key that names the command.
	Key      string
	Optional bool
}

// Status is the outcome of resolving one Requirement on PATH.
type Status struct {
	Name      string
	Command   string
	Key       string
	Optional  bool
	Available bool
	// Path is the resolved executable when Available.
	Path   string
	Detail string
}

// Requirements lists the collaborator commands of the enabled daemons. The
// download daemon speaks FTP in-process and needs none.
func Requirements(cfg *config.Config) []Requirement {
	var reqs []Requirement
	if cfg.Processing.Enabled {
		reqs = append(reqs, Requirement{Name: "Decoder", Command: binary(cfg.Processing.DecodeCommand), Key: "processing.decode_command"})
	}
	if cfg.Products.Enabled {
		reqs = append(reqs, Requirement{Name: "Renderer", Command: binary(cfg.Products.RenderCommand), Key: "products.render_command"})
	}
	return reqs
}

// CheckBinaries resolves every requirement.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		results[i] = resolve(req)
	}
	return results
}

// Check resolves the requirements of cfg.
func Check(cfg *config.Config) []Status {
	return CheckBinaries(Requirements(cfg))
}

func resolve(req Requirement) Status {
	st := Status{Name: req.Name, Command: strings.TrimSpace(req.Command), Key: req.Key, Optional: req.Optional}
	if st.Command == "" {
		st.Detail = "command not configured"
		if req.Key != "" {
			st.Detail += " (set " + req.Key + ")"
		}
		return st
	}
	path, err := exec.LookPath(st.Command)
	switch {
	case err == nil:
		st.Available, st.Path = true, path
	case errors.Is(err, exec.ErrNotFound):
		st.Detail = fmt.Sprintf("binary %q not found", st.Command)
	default:
		st.Detail = err.Error()
	}
	return st
}

func binary(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	return argv[0]
}
