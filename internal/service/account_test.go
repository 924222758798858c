package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbhasan/tableforge/internal/apperror"
	"github.com/tbhasan/tableforge/internal/auth"
	"github.com/tbhasan/tableforge/internal/model"
	"github.com/tbhasan/tableforge/internal/repository"
)

// mockAccountRepo is an in-memory repository.AccountRepository. It keeps the
// service tests independent of SQLite and lets us force store failures.
type mockAccountRepo struct {
	accounts map[string]*model.Account
	options  map[string]*model.AccountOptions
	nextID   int

	failCreateAccount bool // simulate a store failure on account insert
}

var _ repository.AccountRepository = (*mockAccountRepo)(nil)

func newMockRepo() *mockAccountRepo {
	return &mockAccountRepo{
		accounts: make(map[string]*model.Account),
		options:  make(map[string]*model.AccountOptions),
	}
}

func (m *mockAccountRepo) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *mockAccountRepo) CreateEmptyOptions(_ context.Context) (*model.AccountOptions, error) {
	opts := model.NewEmptyOptions()
	opts.ID = m.id("opt")
	stored := *opts
	m.options[opts.ID] = &stored
	return opts, nil
}

func (m *mockAccountRepo) CreateAccount(_ context.Context, account *model.Account) error {
	if m.failCreateAccount {
		return fmt.Errorf("mock: store unavailable")
	}
	for _, existing := range m.accounts {
		if equalFold(existing.Name, account.Name) {
			return apperror.Conflict("account", account.Name)
		}
	}
	account.ID = m.id("acc")
	stored := *account
	m.accounts[account.ID] = &stored
	return nil
}

func (m *mockAccountRepo) GetByID(_ context.Context, id string) (*model.Account, error) {
	account, ok := m.accounts[id]
	if !ok {
		return nil, apperror.NotFound("account", id)
	}
	result := *account
	return &result, nil
}

func (m *mockAccountRepo) ByName(_ context.Context, name string) (*model.Account, error) {
	for _, account := range m.accounts {
		if equalFold(account.Name, name) {
			result := *account
			return &result, nil
		}
	}
	return nil, apperror.NotFound("account", name)
}

func (m *mockAccountRepo) Update(_ context.Context, account *model.Account) error {
	if _, ok := m.accounts[account.ID]; !ok {
		return apperror.NotFound("account", account.ID)
	}
	stored := *account
	m.accounts[account.ID] = &stored
	return nil
}

func (m *mockAccountRepo) GetOptions(_ context.Context, id string) (*model.AccountOptions, error) {
	opts, ok := m.options[id]
	if !ok {
		return nil, apperror.NotFound("account options", id)
	}
	result := *opts
	return &result, nil
}

func (m *mockAccountRepo) UpdateOptions(_ context.Context, opts *model.AccountOptions) error {
	if _, ok := m.options[opts.ID]; !ok {
		return apperror.NotFound("account options", opts.ID)
	}
	stored := *opts
	m.options[opts.ID] = &stored
	return nil
}

func (m *mockAccountRepo) DeleteOptions(_ context.Context, id string) error {
	delete(m.options, id)
	return nil
}

func (m *mockAccountRepo) Delete(_ context.Context, id string) error {
	account, ok := m.accounts[id]
	if !ok {
		return apperror.NotFound("account", id)
	}
	delete(m.options, account.OptionsID)
	delete(m.accounts, id)
	return nil
}

// equalFold avoids pulling strings just for the mock.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func newTestService(t *testing.T) (*AccountService, *mockAccountRepo) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)
	repo := newMockRepo()
	return NewAccountService(repo, tokens, logger), repo
}

// =========================================================================
// REGISTER TESTS
// =========================================================================

func TestRegister(t *testing.T) {
	svc, repo := newTestService(t)

	account, err := svc.Register(context.Background(), RegisterParams{
		Name:     "alice",
		Email:    "alice@example.com",
		Password: "s3cret",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, account.ID)
	assert.NotEmpty(t, account.OptionsID)
	assert.True(t, account.CheckPassword("s3cret"))
	assert.NotEqual(t, "s3cret", account.PasswordHash)

	// The preference record was provisioned empty.
	opts, err := svc.GetOptions(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Empty(t, opts.AsMap())
	assert.Len(t, repo.options, 1)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), RegisterParams{Password: "x"})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Register(context.Background(), RegisterParams{Name: "alice"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestRegister_DuplicateName(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.Register(context.Background(), RegisterParams{Name: "alice", Password: "x"})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterParams{Name: "Alice", Password: "y"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	// The losing registration must not leave its options row behind.
	assert.Len(t, repo.options, 1)
}

func TestRegister_CleansUpOptionsOnStoreFailure(t *testing.T) {
	svc, repo := newTestService(t)
	repo.failCreateAccount = true

	_, err := svc.Register(context.Background(), RegisterParams{Name: "alice", Password: "x"})
	require.Error(t, err)
	assert.Empty(t, repo.options, "orphaned options row after failed account insert")
}

// =========================================================================
// AUTHENTICATE TESTS
// =========================================================================

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), RegisterParams{Name: "alice", Password: "s3cret"})
	require.NoError(t, err)

	result, err := svc.Authenticate(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Account.Name)
	assert.NotEmpty(t, result.Token)
}

func TestAuthenticate_CaseInsensitiveName(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), RegisterParams{Name: "alice", Password: "s3cret"})
	require.NoError(t, err)

	result, err := svc.Authenticate(context.Background(), "ALICE", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Account.Name)
}

func TestAuthenticate_FailuresAreIndistinguishable(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.Register(context.Background(), RegisterParams{Name: "alice", Password: "s3cret"})
	require.NoError(t, err)

	// Provision an account with no credential, as the OAuth path does.
	opts, err := repo.CreateEmptyOptions(context.Background())
	require.NoError(t, err)
	ghost := &model.Account{Name: "ghost", OptionsID: opts.ID}
	require.NoError(t, repo.CreateAccount(context.Background(), ghost))

	cases := []struct {
		name     string
		account  string
		password string
	}{
		{"wrong password", "alice", "not-the-password"},
		{"unknown name", "nobody", "s3cret"},
		{"no credential set", "ghost", "anything"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), tc.account, tc.password)
			assert.ErrorIs(t, err, apperror.ErrUnauthorized)
			// Same sentinel and same message for every failure mode.
			assert.EqualError(t, err, "invalid credentials")
		})
	}
}

// =========================================================================
// GITHUB PROVISIONING TESTS
// =========================================================================

func TestLoginOrRegisterGitHub_ProvisionsOnFirstLogin(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID:    4242,
		Login: "octocat",
		Email: "octo@example.com",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "octocat", result.Account.Name)

	// No password yet — password login must fail closed.
	assert.False(t, result.Account.HasCredential())
	_, err = svc.Authenticate(context.Background(), "octocat", "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestLoginOrRegisterGitHub_ReusesExistingAccount(t *testing.T) {
	svc, repo := newTestService(t)

	first, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "octocat"})
	require.NoError(t, err)

	second, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "octocat"})
	require.NoError(t, err)

	assert.Equal(t, first.Account.ID, second.Account.ID)
	assert.Len(t, repo.accounts, 1)
}

// =========================================================================
// PASSWORD CHANGE TESTS
// =========================================================================

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)

	account, err := svc.Register(context.Background(), RegisterParams{Name: "alice", Password: "old-password"})
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(context.Background(), account.ID, "new-password"))

	_, err = svc.Authenticate(context.Background(), "alice", "old-password")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.Authenticate(context.Background(), "alice", "new-password")
	assert.NoError(t, err)
}

// =========================================================================
// OPTIONS TESTS
// =========================================================================

func TestUpdateOptions_PatchSemantics(t *testing.T) {
	svc, _ := newTestService(t)

	account, err := svc.Register(context.Background(), RegisterParams{Name: "alice", Password: "x"})
	require.NoError(t, err)

	opts, err := svc.UpdateOptions(context.Background(), account.ID, map[string]json.RawMessage{
		"grid_size":  json.RawMessage(`70`),
		"fow_colour": json.RawMessage(`"#333"`),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"grid_size": 70, "fow_colour": "#333"}, opts.AsMap())

	// Null clears; the other override survives.
	opts, err = svc.UpdateOptions(context.Background(), account.ID, map[string]json.RawMessage{
		"grid_size": json.RawMessage(`null`),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"fow_colour": "#333"}, opts.AsMap())

	// And the result was committed, not just mutated in memory.
	stored, err := svc.GetOptions(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"fow_colour": "#333"}, stored.AsMap())
}

func TestUpdateOptions_RejectsUnknownKey(t *testing.T) {
	svc, _ := newTestService(t)

	account, err := svc.Register(context.Background(), RegisterParams{Name: "alice", Password: "x"})
	require.NoError(t, err)

	_, err = svc.UpdateOptions(context.Background(), account.ID, map[string]json.RawMessage{
		"grid_sizes": json.RawMessage(`70`),
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDeleteAccount_Cascades(t *testing.T) {
	svc, repo := newTestService(t)

	account, err := svc.Register(context.Background(), RegisterParams{Name: "alice", Password: "x"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(context.Background(), account.ID))

	assert.Empty(t, repo.accounts)
	assert.Empty(t, repo.options, "options record survived the cascade")

	err = svc.DeleteAccount(context.Background(), account.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
