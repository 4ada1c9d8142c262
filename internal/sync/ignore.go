package sync

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tree_sync/internal/fsys"
)

// DefaultDeclarationFileName is the marker file discovered under source roots.
const DefaultDeclarationFileName = ".gitignore"

// Provenance records where a raw pattern came from.
type Provenance int

const (
	FromDeclarationFile Provenance = iota
	FromNameList
	FromRegexpList
	FromPatternList
	FromBuiltin
)

func (p Provenance) String() string {
	switch p {
	case FromDeclarationFile:
		return "declaration-file"
	case FromNameList:
		return "name-list"
	case FromRegexpList:
		return "regexp-list"
	case FromPatternList:
		return "pattern-list"
	case FromBuiltin:
		return "builtin"
	default:
		return fmt.Sprintf("provenance(%d)", int(p))
	}
}

// RawPattern is one rule line before compilation. Origin names the file it
// was read from, when there is one.
type RawPattern struct {
	Text       string
	Provenance Provenance
	Origin     string
}

// CompiledPattern matches whole basenames.
type CompiledPattern struct {
	Raw RawPattern
	re  *regexp.Regexp
}

// Match reports whether name, a basename, is matched in full.
func (p CompiledPattern) Match(name string) bool {
	return p.re != nil && p.re.MatchString(name)
}

// Expr returns the anchored regular expression.
func (p CompiledPattern) Expr() string {
	if p.re == nil {
		return ""
	}
	return p.re.String()
}

// TranslatePattern turns one glob-style line into an anchored matcher.
// Blank lines and lines starting with "#" report false. "*" matches one or
// more characters and "?" matches zero or one; everything else is literal.
func TranslatePattern(raw RawPattern) (CompiledPattern, bool) {
	line := strings.TrimSpace(raw.Text)
	if line == "" || strings.HasPrefix(line, "#") {
		return CompiledPattern{}, false
	}

	var expr strings.Builder
	expr.WriteString("^")
	for _, r := range line {
		switch r {
		case '*':
			expr.WriteString(".+")
		case '?':
			expr.WriteString(".?")
		default:
			expr.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	expr.WriteString("$")

	raw.Text = line
	return CompiledPattern{Raw: raw, re: regexp.MustCompile(expr.String())}, true
}

// compileRegexp anchors a user supplied regular expression verbatim.
func compileRegexp(raw RawPattern) (CompiledPattern, bool, error) {
	if strings.TrimSpace(raw.Text) == "" {
		return CompiledPattern{}, false, nil
	}
	re, err := regexp.Compile("^(?:" + raw.Text + ")$")
	if err != nil {
		return CompiledPattern{}, false, errors.Wrapf(ErrInvalidPattern, "%q: %v", raw.Text, err)
	}
	return CompiledPattern{Raw: raw, re: re}, true, nil
}

// IgnoreSet is the ordered, immutable list of matchers for one run.
// Matching is by basename only: a rule excludes that name at any depth.
type IgnoreSet struct {
	patterns []CompiledPattern
}

// NewIgnoreSet builds a set from already compiled patterns.
func NewIgnoreSet(patterns ...CompiledPattern) IgnoreSet {
	return IgnoreSet{patterns: append([]CompiledPattern(nil), patterns...)}
}

// Matches reports whether any pattern accepts name.
func (s IgnoreSet) Matches(name string) bool {
	_, ok := s.Match(name)
	return ok
}

// Match returns the first pattern accepting name.
func (s IgnoreSet) Match(name string) (CompiledPattern, bool) {
	for _, p := range s.patterns {
		if p.Match(name) {
			return p, true
		}
	}
	return CompiledPattern{}, false
}

// Len returns the number of compiled patterns.
func (s IgnoreSet) Len() int {
	return len(s.patterns)
}

// Patterns returns a copy of the compiled patterns in order.
func (s IgnoreSet) Patterns() []CompiledPattern {
	return append([]CompiledPattern(nil), s.patterns...)
}

// IgnoreMode is the single rule source active for a run.
type IgnoreMode int

const (
	ModeRegexp IgnoreMode = iota
	ModeNames
	ModeListFiles
	ModeNone
	ModeDiscover
)

func (m IgnoreMode) String() string {
	switch m {
	case ModeRegexp:
		return "regexp"
	case ModeNames:
		return "names"
	case ModeListFiles:
		return "list-files"
	case ModeNone:
		return "none"
	default:
		return "discover"
	}
}

// IgnoreConfig collects every rule source; Mode picks the one in effect.
type IgnoreConfig struct {
	Regexps    []string
	Names      []string
	ListFiles  []string
	IgnoreNone bool
	// IgnoreGit treats sources as git work trees during discovery.
	IgnoreGit bool
	// DeclarationFileName defaults to DefaultDeclarationFileName.
	DeclarationFileName string
}

// Mode applies the fixed precedence: regexps, names, list files, none, discovery.
func (c IgnoreConfig) Mode() IgnoreMode {
	switch {
	case len(c.Regexps) > 0:
		return ModeRegexp
	case len(c.Names) > 0:
		return ModeNames
	case len(c.ListFiles) > 0:
		return ModeListFiles
	case c.IgnoreNone:
		return ModeNone
	default:
		return ModeDiscover
	}
}

func (c IgnoreConfig) declarationFileName() string {
	if c.DeclarationFileName == "" {
		return DefaultDeclarationFileName
	}
	return c.DeclarationFileName
}

// CompileIgnoreSet builds the run's IgnoreSet from cfg. Sources are only
// read in discovery mode.
func CompileIgnoreSet(fs fsys.FS, sources []string, cfg IgnoreConfig, logger *zap.Logger) (IgnoreSet, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, source := range sources {
		if isNetworkLocation(source) {
			return IgnoreSet{}, errors.Wrapf(ErrUnsupportedLocation, "source %q", source)
		}
	}

	mode := cfg.Mode()
	var compiled []CompiledPattern
	switch mode {
	case ModeRegexp:
		for _, expr := range cfg.Regexps {
			p, ok, err := compileRegexp(RawPattern{Text: expr, Provenance: FromRegexpList})
			if err != nil {
				return IgnoreSet{}, err
			}
			if ok {
				compiled = append(compiled, p)
			}
		}
	case ModeNames:
		compiled = translateAll(rawLines(cfg.Names, FromNameList, ""))
	case ModeListFiles:
		for _, path := range cfg.ListFiles {
			data, err := fs.ReadFile(path)
			if err != nil {
				return IgnoreSet{}, errors.Wrapf(ErrMissingOption, "ignore list %q: %v", path, err)
			}
			compiled = append(compiled, translateAll(rawLines(splitLines(data), FromPatternList, path))...)
		}
	case ModeNone:
	case ModeDiscover:
		raw, err := discoverDeclarations(fs, sources, cfg, logger)
		if err != nil {
			return IgnoreSet{}, err
		}
		compiled = translateAll(raw)
	}

	set := NewIgnoreSet(compiled...)
	logger.Info("ignore rules compiled",
		zap.Stringer("mode", mode),
		zap.Int("patterns", set.Len()),
	)
	for _, p := range set.patterns {
		logger.Debug("ignore rule",
			zap.String("pattern", p.Raw.Text),
			zap.String("expr", p.Expr()),
			zap.Stringer("provenance", p.Raw.Provenance),
			zap.String("origin", p.Raw.Origin),
		)
	}
	return set, nil
}

func rawLines(lines []string, provenance Provenance, origin string) []RawPattern {
	raw := make([]RawPattern, 0, len(lines))
	for _, line := range lines {
		raw = append(raw, RawPattern{Text: line, Provenance: provenance, Origin: origin})
	}
	return raw
}

func translateAll(raw []RawPattern) []CompiledPattern {
	var compiled []CompiledPattern
	for _, r := range raw {
		if p, ok := TranslatePattern(r); ok {
			compiled = append(compiled, p)
		}
	}
	return compiled
}

func splitLines(data []byte) []string {
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
