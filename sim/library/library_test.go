package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solsjo/hdlsim/sim/internal/testutil"
	"github.com/solsjo/hdlsim/sim/process"
	"github.com/solsjo/hdlsim/sim/process/processtest"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want Directive
		ok   bool
	}{
		{`work = "work/work.lib"`, Directive{Kind: DirectiveMapping, Name: "work", Path: "work/work.lib"}, true},
		{`$INCLUDE = "/opt/aldec/vlib/library.cfg"`, Directive{Kind: DirectiveInclude, Path: "/opt/aldec/vlib/library.cfg"}, true},
		{`my_lib = "C:/a b/my_lib.lib"`, Directive{Kind: DirectiveMapping, Name: "my_lib", Path: "C:/a b/my_lib.lib"}, true},
		{`lib2 = "x"`, Directive{}, false},
		{`-- comment`, Directive{}, false},
		{`work="no spaces"`, Directive{}, false},
		{`work = unquoted`, Directive{}, false},
		{``, Directive{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseLine(tt.line)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrNoDirective)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRegistry_SeedsIncludeOnce(t *testing.T) {
	// GIVEN an empty output directory
	out := t.TempDir()

	// WHEN a registry is created
	r, err := NewRegistry("/opt/aldec/bin", out, processtest.NewRecorder(), nil)
	require.NoError(t, err)

	// THEN library.cfg includes the installation map
	assert.Equal(t, "$INCLUDE = \"/opt/aldec/vlib/library.cfg\"\n", testutil.ReadFile(t, r.CfgPath()))

	// AND an existing file is left untouched
	require.NoError(t, os.WriteFile(r.CfgPath(), []byte("lib = \"lib/lib.lib\"\n"), 0644))
	_, err = NewRegistry("/opt/aldec/bin", out, processtest.NewRecorder(), nil)
	require.NoError(t, err)
	assert.Equal(t, "lib = \"lib/lib.lib\"\n", testutil.ReadFile(t, r.CfgPath()))
}

func TestNewRegistry_IncludeResolvesInstallationMap(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{"plain", "/opt/aldec/bin", "/opt/aldec/vlib/library.cfg"},
		{"trailing slash", "/opt/aldec/bin/", "/opt/aldec/vlib/library.cfg"},
		{"backslash kept raw", `/opt/al\dec/bin`, `/opt/al\dec/vlib/library.cfg`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a fresh output directory
			out := t.TempDir()

			// WHEN a registry is created for the prefix
			r, err := NewRegistry(tt.prefix, out, processtest.NewRecorder(), nil)
			require.NoError(t, err)

			// THEN the include names the installation map verbatim
			assert.Equal(t, "$INCLUDE = \""+tt.want+"\"\n", testutil.ReadFile(t, r.CfgPath()))

			// AND reading it back yields the same path
			mf, err := ReadMapFile(r.CfgPath())
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, mf.Includes)
		})
	}
}

func TestReadMapped_RoundTrip(t *testing.T) {
	// GIVEN a library.cfg with one relative entry and noise lines
	out := t.TempDir()
	r, err := NewRegistry("/opt/aldec/bin", out, processtest.NewRecorder(), nil)
	require.NoError(t, err)
	content := "$INCLUDE = \"/opt/aldec/vlib/library.cfg\"\n" +
		"-- unknown directive\n" +
		"lib = \"libs/lib/lib.lib\"\n"
	require.NoError(t, os.WriteFile(r.CfgPath(), []byte(content), 0644))

	// WHEN mappings are read
	mapped, err := r.ReadMapped()
	require.NoError(t, err)

	// THEN the entry resolves to the absolute library directory
	wantDir, err := filepath.Abs(filepath.Join(out, "libs", "lib"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"lib": wantDir}, mapped)

	// AND re-resolving the absolute result is a no-op
	again, err := ResolvePath(r.Dir(), mapped["lib"])
	require.NoError(t, err)
	assert.Equal(t, mapped["lib"], again)
}

func TestReadMapFile_CollectsIncludes(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string]string{CfgFileName: "$INCLUDE = \"base.cfg\"\nwork = \"/abs/work/work.lib\"\r\n"})
	path := filepath.Join(dir, CfgFileName)

	mf, err := ReadMapFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"base.cfg"}, mf.Includes)
	require.Len(t, mf.Entries, 1)
	assert.Equal(t, "/abs/work/work.lib", mf.Entries[0].Path)
}

func TestEnsure_AlreadyMapped_SkipsVmap(t *testing.T) {
	// GIVEN a library directory that exists and is mapped
	out := t.TempDir()
	rec := processtest.NewRecorder()
	r, err := NewRegistry("/opt/aldec/bin", out, rec, nil)
	require.NoError(t, err)
	libDir := filepath.Join(r.Dir(), "libs", "lib")
	require.NoError(t, os.MkdirAll(libDir, 0755))

	// WHEN Ensure is called with the matching mapping
	changed, err := r.Ensure(context.Background(), "lib", libDir, map[string]string{"lib": libDir})

	// THEN neither vlib nor vmap runs
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, rec.Commands)
}

func TestEnsure_NotMapped_CreatesAndMapsOnce(t *testing.T) {
	out := t.TempDir()
	rec := processtest.NewRecorder()
	r, err := NewRegistry("/opt/aldec/bin", out, rec, nil)
	require.NoError(t, err)
	libDir := filepath.Join(r.Dir(), "libs", "lib")

	changed, err := r.Ensure(context.Background(), "lib", libDir, map[string]string{})

	require.NoError(t, err)
	assert.True(t, changed)
	vlib := rec.Calls("vlib")
	vmap := rec.Calls("vmap")
	require.Len(t, vlib, 1)
	require.Len(t, vmap, 1)
	assert.Equal(t, []string{"/opt/aldec/bin/vlib", "lib", libDir}, vlib[0].Args)
	assert.Equal(t, []string{"/opt/aldec/bin/vmap", "lib", libDir}, vmap[0].Args)
	assert.Equal(t, r.Dir(), vmap[0].Dir)
	assert.DirExists(t, filepath.Dir(libDir), "parent directory is created before vlib")
}

func TestEnsure_MappedElsewhere_Remaps(t *testing.T) {
	out := t.TempDir()
	rec := processtest.NewRecorder()
	r, err := NewRegistry("/opt/aldec/bin", out, rec, nil)
	require.NoError(t, err)
	libDir := filepath.Join(r.Dir(), "lib")
	require.NoError(t, os.MkdirAll(libDir, 0755))

	changed, err := r.Ensure(context.Background(), "lib", libDir, map[string]string{"lib": "/somewhere/else"})

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, rec.Calls("vlib"), "existing storage is not recreated")
	assert.Len(t, rec.Calls("vmap"), 1)
}

func TestEnsure_ToolFailure_IsReturned(t *testing.T) {
	out := t.TempDir()
	rec := processtest.NewRecorder().On("vlib", processtest.Response{
		Err: &process.ExitError{Command: process.Command{Args: []string{"vlib"}}, Code: 1},
	})
	r, err := NewRegistry("/opt/aldec/bin", out, rec, nil)
	require.NoError(t, err)

	_, err = r.Ensure(context.Background(), "lib", filepath.Join(out, "lib"), nil)

	assert.True(t, process.IsExitFailure(err))
	assert.Empty(t, rec.Calls("vmap"))
}
