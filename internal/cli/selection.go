package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nerrad567/fleet-runner/internal/suite"
)

// selection is the -d / -f choice shared by run and devices.
type selection struct {
	dir  string
	file string
}

func (s *selection) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.dir, "dir", "d", "", "run every suite of this tests directory")
	cmd.Flags().StringVarP(&s.file, "file", "f", "", "run this single suite file")
}

// resolve returns the tests directory and the suites to run. With -f the
// tests directory is the directory of the file.
func (s selection) resolve() (string, []suite.Suite, error) {
	switch {
	case s.dir != "" && s.file != "":
		return "", nil, usageErrorf("-d and -f are mutually exclusive")
	case s.dir == "" && s.file == "":
		return "", nil, usageErrorf("one of -d or -f is required")
	case s.dir != "":
		suites, err := suite.Discover(s.dir)
		if err != nil {
			return "", nil, usageErrorf("%v", err)
		}
		return s.dir, suites, nil
	default:
		su, err := suite.Single(s.file)
		if err != nil {
			return "", nil, usageErrorf("%v", err)
		}
		return filepath.Dir(s.file), []suite.Suite{su}, nil
	}
}
