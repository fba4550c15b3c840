package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-drift/pulse/pkg/errors"
	"github.com/go-drift/pulse/pkg/state"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "pulse.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), got)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	contents := "app_name: studio\nlog_level: debug\nquit_timeout: 250ms\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "studio", got.AppName)
	require.Equal(t, "debug", got.LogLevel)
	require.Equal(t, 250*time.Millisecond, time.Duration(got.QuitTimeout))
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quit_timeout: soon\n"), 0o644))

	_, err := Load(path)
	var cerr *errors.Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, errors.KindConfig, cerr.Kind)
	require.Equal(t, "settings.Load", cerr.Op)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_name: studio\n"), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "studio", got.AppName)
	require.Equal(t, Default().LogLevel, got.LogLevel)
	require.Equal(t, Default().QuitTimeout, got.QuitTimeout)
}

func TestInstallAndCurrent(t *testing.T) {
	app := state.NewApp()
	require.Equal(t, Default(), Current(app))

	custom := Default()
	custom.AppName = "studio"
	Install(app, custom)
	require.Equal(t, "studio", Current(app).AppName)
}

func TestEntitiesObserveSettingsChanges(t *testing.T) {
	app := state.NewApp()
	Install(app, Default())

	type watcher struct {
		name string
	}
	handle := state.NewEntity(app, func(cx *state.Context[watcher]) watcher {
		state.ObserveGlobal[Settings](cx, func(w *watcher, cx *state.Context[watcher]) {
			w.name = Current(cx.App()).AppName
		})
		return watcher{}
	})
	defer handle.Release()

	state.UpdateAppGlobal(app, func(s *Settings, app *state.App) struct{} {
		s.AppName = "studio"
		return struct{}{}
	})

	require.Equal(t, "studio", state.ReadEntity(app, handle).name)
}
