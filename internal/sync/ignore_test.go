package sync

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tree_sync/internal/fsys"
)

func TestTranslatePattern(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		accept  []string
		reject  []string
		skipped bool
	}{
		{"QuestionMark", "f?.js", []string{"f1.js", "f2.js"}, []string{"foo.js", "f12.js", "xf1.js", "f1.jsx"}, false},
		{"QuestionMarkMayBeEmpty", "f?.js", []string{"f.js"}, []string{"fx1.js"}, false},
		{"Star", "*.xml", []string{"a.xml", "f4.xml", "dir.name.xml"}, []string{"a.xmlx", ".xml", "a.xm"}, false},
		{"StarNeedsOneChar", "a*", []string{"ab", "abc"}, []string{"a"}, false},
		{"Literal", "node_modules", []string{"node_modules"}, []string{"node_modules2", "xnode_modules"}, false},
		{"EscapesRegexpMeta", "a+b(1).txt", []string{"a+b(1).txt"}, []string{"aab1.txt", "a+b(1)xtxt"}, false},
		{"DotIsLiteral", "a.b", []string{"a.b"}, []string{"axb"}, false},
		{"TrimsWhitespace", "  build  ", []string{"build"}, []string{" build"}, false},
		{"Comment", "# f?.js", nil, nil, true},
		{"IndentedComment", "   #*.xml", nil, nil, true},
		{"Blank", "   ", nil, nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := TranslatePattern(RawPattern{Text: tc.line, Provenance: FromNameList})
			if tc.skipped {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			for _, name := range tc.accept {
				assert.True(t, p.Match(name), "%q should match %q", tc.line, name)
			}
			for _, name := range tc.reject {
				assert.False(t, p.Match(name), "%q should not match %q", tc.line, name)
			}
		})
	}
}

func TestTranslatePatternAnchorsExpression(t *testing.T) {
	p, ok := TranslatePattern(RawPattern{Text: "*.xml"})
	require.True(t, ok)
	assert.Equal(t, `^.+\.xml$`, p.Expr())
	assert.Equal(t, "*.xml", p.Raw.Text)
}

func TestIgnoreConfigModePrecedence(t *testing.T) {
	cases := []struct {
		name string
		cfg  IgnoreConfig
		want IgnoreMode
	}{
		{"Everything", IgnoreConfig{Regexps: []string{"a"}, Names: []string{"b"}, ListFiles: []string{"c"}, IgnoreNone: true}, ModeRegexp},
		{"NamesOverList", IgnoreConfig{Names: []string{"b"}, ListFiles: []string{"c"}, IgnoreNone: true}, ModeNames},
		{"ListOverNone", IgnoreConfig{ListFiles: []string{"c"}, IgnoreNone: true}, ModeListFiles},
		{"None", IgnoreConfig{IgnoreNone: true, IgnoreGit: true}, ModeNone},
		{"Discover", IgnoreConfig{IgnoreGit: true}, ModeDiscover},
		{"Empty", IgnoreConfig{}, ModeDiscover},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cfg.Mode())
		})
	}
}

func fixtureFS(t *testing.T) *fsys.Afero {
	t.Helper()
	fs, err := fsys.NewMem(fsys.Tree{
		"s1": fsys.Tree{
			"t1": fsys.Tree{
				"f1.txt":     "This is f1.",
				"f2.js":      "This is f2.",
				"f3.js":      "This is f3.",
				".gitignore": "f?.js",
			},
			"f4.xml":     "This is f4.",
			"f5.json":    "This is f5.",
			".gitignore": "*.xml",
		},
		"s2": fsys.Tree{
			"f7.xml":     "This is f7.",
			"f8.json":    "This is f8.",
			".gitignore": "# There is nothing",
			".git": fsys.Tree{
				"HEAD":       "ref: refs/heads/main",
				".gitignore": "*.json",
			},
		},
		"lists": fsys.Tree{
			"one.txt": "# comment\n*.json\r\n\nf?.js\n",
			"two.txt": "build\n",
		},
	})
	require.NoError(t, err)
	return fs
}

func patternTexts(set IgnoreSet) []string {
	var out []string
	for _, p := range set.Patterns() {
		out = append(out, p.Raw.Text)
	}
	return out
}

func TestCompileIgnoreSet(t *testing.T) {
	cases := []struct {
		name    string
		sources []string
		cfg     IgnoreConfig
		want    []string
		ignored []string
		kept    []string
	}{
		{
			name:    "DiscoverDeclarationFiles",
			sources: []string{"/s1"},
			want:    []string{"*.xml", "f?.js"},
			ignored: []string{"f4.xml", "f2.js", "f3.js"},
			kept:    []string{"f1.txt", "f5.json", ".gitignore"},
		},
		{
			name:    "DiscoverDescendsIntoGitByDefault",
			sources: []string{"/s1", "/s2"},
			want:    []string{"*.xml", "f?.js", "*.json"},
			ignored: []string{"f8.json"},
		},
		{
			name:    "IgnoreGitSkipsRepositoryMetadata",
			sources: []string{"/s2"},
			cfg:     IgnoreConfig{IgnoreGit: true},
			want:    []string{".git"},
			ignored: []string{".git"},
			kept:    []string{"f8.json", "f7.xml"},
		},
		{
			name:    "CustomDeclarationName",
			sources: []string{"/lists"},
			cfg:     IgnoreConfig{DeclarationFileName: "two.txt"},
			want:    []string{"build"},
		},
		{
			name:    "Names",
			sources: []string{"/s1"},
			cfg:     IgnoreConfig{Names: []string{"f5.json", "t?"}, ListFiles: []string{"/lists/two.txt"}},
			want:    []string{"f5.json", "t?"},
			ignored: []string{"f5.json", "t1"},
			kept:    []string{"f4.xml"},
		},
		{
			name:    "Regexps",
			sources: []string{"/s1"},
			cfg:     IgnoreConfig{Regexps: []string{`f[0-9]\.js`, `.*\.xml`}, Names: []string{"f5.json"}},
			want:    []string{`f[0-9]\.js`, `.*\.xml`},
			ignored: []string{"f2.js", "f4.xml"},
			kept:    []string{"f5.json", "xf2.js", "f2.jsx"},
		},
		{
			name:    "ListFiles",
			sources: []string{"/s1"},
			cfg:     IgnoreConfig{ListFiles: []string{"/lists/one.txt", "/lists/two.txt"}, IgnoreNone: true},
			want:    []string{"*.json", "f?.js", "build"},
			ignored: []string{"f5.json", "f2.js", "build"},
		},
		{
			name:    "IgnoreNone",
			sources: []string{"/s1"},
			cfg:     IgnoreConfig{IgnoreNone: true},
			kept:    []string{"f4.xml", "f2.js", ".gitignore"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set, err := CompileIgnoreSet(fixtureFS(t), tc.sources, tc.cfg, zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, tc.want, patternTexts(set))
			for _, name := range tc.ignored {
				assert.True(t, set.Matches(name), name)
			}
			for _, name := range tc.kept {
				assert.False(t, set.Matches(name), name)
			}
		})
	}
}

func TestCompileIgnoreSetProvenance(t *testing.T) {
	set, err := CompileIgnoreSet(fixtureFS(t), []string{"/s1"}, IgnoreConfig{IgnoreGit: true}, nil)
	require.NoError(t, err)

	patterns := set.Patterns()
	require.Len(t, patterns, 3)
	assert.Equal(t, FromBuiltin, patterns[0].Raw.Provenance)
	assert.Equal(t, FromDeclarationFile, patterns[1].Raw.Provenance)
	assert.Equal(t, "/s1/.gitignore", patterns[1].Raw.Origin)
	assert.Equal(t, "/s1/t1/.gitignore", patterns[2].Raw.Origin)
}

func TestCompileIgnoreSetErrors(t *testing.T) {
	cases := []struct {
		name    string
		sources []string
		cfg     IgnoreConfig
		want    error
	}{
		{"HTTPSource", []string{"http://example.com/x"}, IgnoreConfig{}, ErrUnsupportedLocation},
		{"HTTPSSourceInOtherMode", []string{"/s1", "HTTPS://example.com"}, IgnoreConfig{IgnoreNone: true}, ErrUnsupportedLocation},
		{"FTPSource", []string{"ftp://example.com/pub"}, IgnoreConfig{Names: []string{"a"}}, ErrUnsupportedLocation},
		{"MissingSource", []string{"/nope"}, IgnoreConfig{}, ErrSourceNotFound},
		{"MissingListFile", []string{"/s1"}, IgnoreConfig{ListFiles: []string{"/lists/nope.txt"}}, ErrMissingOption},
		{"BadRegexp", []string{"/s1"}, IgnoreConfig{Regexps: []string{"("}}, ErrInvalidPattern},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CompileIgnoreSet(fixtureFS(t), tc.sources, tc.cfg, zap.NewNop())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestIgnoreSetIsACopy(t *testing.T) {
	p, _ := TranslatePattern(RawPattern{Text: "a"})
	patterns := []CompiledPattern{p}
	set := NewIgnoreSet(patterns...)

	q, _ := TranslatePattern(RawPattern{Text: "b"})
	patterns[0] = q
	assert.True(t, set.Matches("a"))
	assert.False(t, set.Matches("b"))

	got := set.Patterns()
	got[0] = q
	assert.True(t, set.Matches("a"))
}

// unreadableFS fails ReadFile for the listed paths.
type unreadableFS struct {
	fsys.FS
	failing map[string]bool
}

func (f unreadableFS) ReadFile(path string) ([]byte, error) {
	if f.failing[path] {
		return nil, errors.New("input/output error")
	}
	return f.FS.ReadFile(path)
}

func TestCompileIgnoreSetSkipsUnreadableDeclarations(t *testing.T) {
	fs := unreadableFS{FS: fixtureFS(t), failing: map[string]bool{"/s1/t1/.gitignore": true}}
	logger, logs := observedLogger()

	set, err := CompileIgnoreSet(fs, []string{"/s1"}, IgnoreConfig{}, logger)

	require.NoError(t, err)
	assert.Equal(t, []string{"*.xml"}, patternTexts(set))
	warnings := logs.FilterMessage("unreadable declaration file, skipping").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "/s1/t1/.gitignore", warnings[0].ContextMap()["path"])
}
