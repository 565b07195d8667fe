package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nerrad567/fleet-runner/internal/workspace"
)

// ErrRelocate is returned when a final artifact cannot be moved.
var ErrRelocate = errors.New("report: relocate failed")

// imageExt is the extension of screenshot files.
const imageExt = ".png"

// Finalization lists what Finalize moved and what it failed to move.
type Finalization struct {
	Moved  []string
	Errors []error
}

// Finalize relocates the presentation artifacts of a standalone run.
//
// In CI mode nothing moves: the CI server picks artifacts up where they
// were produced. Otherwise the final directory is created, the log and the
// report are moved from staging into it, then every screenshot of the image
// directory follows. Each failure is logged and the loop carries on; there
// is no rollback.
func Finalize(rc workspace.RunContext, logger Logger) Finalization {
	if logger == nil {
		logger = noopLogger{}
	}

	var fin Finalization
	if rc.CI {
		logger.Info("ci mode, leaving artifacts in place",
			"log", filepath.Join(rc.StagingDir, workspace.LogName),
			"report", filepath.Join(rc.StagingDir, workspace.ReportName),
		)
		return fin
	}

	if err := os.MkdirAll(rc.FinalDir, 0o755); err != nil {
		err = fmt.Errorf("%w: creating %s: %w", ErrRelocate, rc.FinalDir, err)
		logger.Error("creating final directory", "kind", "io", "error", err)
		fin.Errors = append(fin.Errors, err)
		return fin
	}

	move := func(src string) {
		dst := filepath.Join(rc.FinalDir, filepath.Base(src))
		if err := os.Rename(src, dst); err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrRelocate, src, err)
			logger.Error("moving final artifact", "kind", "io", "error", err)
			fin.Errors = append(fin.Errors, err)
			return
		}
		fin.Moved = append(fin.Moved, dst)
	}

	move(filepath.Join(rc.StagingDir, workspace.LogName))
	move(filepath.Join(rc.StagingDir, workspace.ReportName))

	images, err := listImages(rc.ImageDir)
	if err != nil {
		err = fmt.Errorf("%w: listing %s: %w", ErrRelocate, rc.ImageDir, err)
		logger.Error("listing screenshots", "kind", "io", "error", err)
		fin.Errors = append(fin.Errors, err)
	}
	for _, img := range images {
		move(img)
	}

	logger.Info("final report ready",
		"log", filepath.Join(rc.FinalDir, workspace.LogName),
		"report", filepath.Join(rc.FinalDir, workspace.ReportName),
		"moved", len(fin.Moved),
		"failed", len(fin.Errors),
	)
	return fin
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), imageExt) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
