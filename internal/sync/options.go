package sync

import (
	"regexp"

	"github.com/pkg/errors"

	"github.com/MarkoPoloResearchLab/tree_sync/internal/fsys"
)

// Options configures a synchronization run.
type Options struct {
	Sources []string
	Targets []string
	Ignore  IgnoreConfig
	Policy  MergePolicy
	Watch   bool
	// FS defaults to the real filesystem. Watch requires it.
	FS fsys.FS
}

var networkLocation = regexp.MustCompile(`(?i)^(ftp|https?)://`)

func isNetworkLocation(path string) bool {
	return networkLocation.MatchString(path)
}

// Validate checks the options before any filesystem activity.
func (o Options) Validate() error {
	if len(o.Sources) == 0 {
		return errors.Wrap(ErrMissingOption, "from")
	}
	if len(o.Targets) == 0 {
		return errors.Wrap(ErrMissingOption, "to")
	}
	for _, source := range o.Sources {
		if isNetworkLocation(source) {
			return errors.Wrapf(ErrUnsupportedLocation, "source %q", source)
		}
	}
	for _, target := range o.Targets {
		if isNetworkLocation(target) {
			return errors.Wrapf(ErrUnsupportedLocation, "target %q", target)
		}
	}
	if o.Watch && o.FS != nil && !fsys.OnDisk(o.FS) {
		return errors.Wrap(ErrConflictingOptions, "watch needs the operating system filesystem")
	}
	if !o.Policy.valid() {
		return errors.Wrapf(ErrConflictingOptions, "merge policy %d", int(o.Policy))
	}
	return nil
}
