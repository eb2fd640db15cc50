package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/BTreeMap/ClinicIntake/internal/api"
	"github.com/BTreeMap/ClinicIntake/internal/flow"
	"github.com/BTreeMap/ClinicIntake/internal/lockfile"
	"github.com/BTreeMap/ClinicIntake/internal/store"
)

// api.Client is the wizard's only network collaborator.
var (
	_ flow.CodeIssuer   = (*api.Client)(nil)
	_ flow.CodeVerifier = (*api.Client)(nil)
	_ flow.Submitter    = (*api.Client)(nil)
)

// localState is the locked state directory and the storage inside it.
type localState struct {
	lock    *lockfile.Lock
	storage store.LocalStorage
	closer  func() error
}

// openLocalState locks stateDir and opens its SQLite database. A database
// that cannot be opened degrades to memory so the questionnaire still works.
func openLocalState(stateDir string) (*localState, error) {
	lock, err := lockfile.Acquire(stateDir)
	if err != nil {
		return nil, wrapExitError(ExitCommandError, "state directory unavailable", err)
	}
	dsn := filepath.Join(stateDir, LocalDBFileName)
	db, err := store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	if err != nil {
		slog.Warn("openLocalState: progress will not be saved", "dsn", dsn, "error", err)
		return &localState{lock: lock, storage: store.NewInMemoryStore(), closer: func() error { return nil }}, nil
	}
	return &localState{lock: lock, storage: db, closer: db.Close}, nil
}

func (s *localState) Close() error {
	err := s.closer()
	if rerr := s.lock.Release(); err == nil {
		err = rerr
	}
	return err
}

// newWizard builds a wizard over local storage that talks to serverURL.
func newWizard(storage store.LocalStorage, serverURL string) (*flow.Wizard, error) {
	if u, err := url.Parse(serverURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, wrapExitError(ExitCommandError, "invalid server URL", fmt.Errorf("%q is not an http(s) URL", serverURL))
	}
	client, err := api.NewClient(serverURL)
	if err != nil {
		return nil, wrapExitError(ExitCommandError, "invalid server URL", err)
	}
	return flow.New(
		flow.WithStorage(storage),
		flow.WithCodeIssuer(client),
		flow.WithCodeVerifier(client),
		flow.WithSubmitter(client),
	), nil
}
