package discovery

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"pbench/internal/logging"
	"pbench/internal/workflow"
	"pbench/internal/workitem"
)

// Gate decides whether a queued link is admissible.
type Gate struct {
	archiveRoot   string
	quarantineDir string
	logger        *slog.Logger
}

// NewGate builds a gate for links under archiveRoot, which must already be a
// canonical (symlink-free) path.
func NewGate(archiveRoot, quarantineDir string, logger *slog.Logger) *Gate {
	return &Gate{
		archiveRoot:   archiveRoot,
		quarantineDir: quarantineDir,
		logger:        logging.NewComponentLogger(logger, "quarantine"),
	}
}

// Admit checks link and returns its Candidate. When a check fails the link is
// quarantined and ok is false. state is the workflow state the link was found in.
func (g *Gate) Admit(link string, state workflow.State) (candidate workitem.Candidate, ok bool) {
	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		g.quarantine(link, "link does not resolve to a real path", err)
		return workitem.Candidate{}, false
	}
	if !filepath.IsAbs(target) {
		if target, err = filepath.Abs(target); err != nil {
			g.quarantine(link, "link does not resolve to a real path", err)
			return workitem.Candidate{}, false
		}
	}

	controllerPath := filepath.Dir(target)
	if filepath.Dir(controllerPath) != g.archiveRoot {
		g.quarantine(link, "tarball's original home is not the archive root", nil)
		return workitem.Candidate{}, false
	}

	if info, err := os.Stat(target + ".md5"); err != nil || !info.Mode().IsRegular() {
		g.quarantine(link, "missing .md5 file", err)
		return workitem.Candidate{}, false
	}

	info, err := os.Stat(target)
	if err != nil {
		g.quarantine(link, "could not fetch tarball size", err)
		return workitem.Candidate{}, false
	}

	return workitem.Candidate{
		Size:       info.Size(),
		Controller: filepath.Base(controllerPath),
		Link:       link,
		Target:     target,
		State:      state.String(),
	}, true
}

func (g *Gate) quarantine(link, reason string, cause error) {
	attrs := []logging.Attr{
		logging.String(logging.FieldTarball, link),
		logging.String("reason", reason),
		logging.String(logging.FieldImpact, "tarball excluded from this run"),
		logging.String(logging.FieldErrorHint, "inspect the quarantined link and its archive copy"),
	}
	if cause != nil {
		attrs = append(attrs, logging.Error(cause))
	}
	logging.WarnWithContext(g.logger, "quarantining tarball", "quarantine", attrs...)

	dest, err := workflow.Move(link, g.quarantineDir)
	if err != nil {
		eventHint := "check quarantine directory permissions"
		if errors.Is(err, workflow.ErrDestinationExists) {
			eventHint = "a link with the same name is already quarantined; resolve by hand"
		}
		logging.ErrorWithContext(g.logger, "quarantine move failed", "quarantine_failed",
			logging.String(logging.FieldTarball, link),
			logging.String(logging.FieldErrorHint, eventHint),
			logging.Error(err),
		)
		return
	}
	g.logger.Info("tarball quarantined", logging.String(logging.FieldTarball, link), logging.String("destination", dest))
}
