// Package service holds the business logic between the HTTP handlers and the
// repository: provisioning, authentication, preference updates, and account
// deletion.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tbhasan/tableforge/internal/apperror"
	"github.com/tbhasan/tableforge/internal/auth"
	"github.com/tbhasan/tableforge/internal/model"
	"github.com/tbhasan/tableforge/internal/repository"
)

// AccountService orchestrates account provisioning and authentication.
//
// Dependencies (injected via NewAccountService):
//   - accounts  repository.AccountRepository → read/write account records
//   - tokens    *auth.TokenService           → issue/validate session JWTs
//   - logger    *slog.Logger                 → structured logging
type AccountService struct {
	accounts repository.AccountRepository
	tokens   *auth.TokenService
	logger   *slog.Logger
}

// NewAccountService creates an AccountService with all required dependencies.
func NewAccountService(
	accounts repository.AccountRepository,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts: accounts,
		tokens:   tokens,
		logger:   logger,
	}
}

// RegisterParams carries the inputs for provisioning a new account.
type RegisterParams struct {
	Name     string
	Email    string
	Password string
}

// Register provisions a new account: a fresh all-unset preference record
// first, then the account referencing it, with the password hashed before
// the insert.
//
// The two inserts are separate statements (the options row must exist before
// the account can reference it), so a failed account insert leaves a
// just-created options row behind — Register deletes it again on that path
// rather than leaving an orphan.
func (s *AccountService) Register(ctx context.Context, p RegisterParams) (*model.Account, error) {
	if p.Name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if p.Password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	opts, err := s.accounts.CreateEmptyOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/account: creating options for %q: %w", p.Name, err)
	}

	account := &model.Account{
		Name:      p.Name,
		Email:     p.Email,
		OptionsID: opts.ID,
	}
	if err := account.SetPassword(p.Password); err != nil {
		s.cleanupOptions(ctx, opts.ID)
		return nil, fmt.Errorf("service/account: registering %q: %w", p.Name, err)
	}

	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		s.cleanupOptions(ctx, opts.ID)
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/account: registering %q: %w", p.Name, err)
	}

	s.logger.Info("account registered",
		slog.String("accountID", account.ID),
		slog.String("name", account.Name),
	)

	return account, nil
}

// cleanupOptions removes an options row whose account never materialized.
// Best effort: a failure here only leaves an unreferenced row, which is
// logged so it can be reaped manually.
func (s *AccountService) cleanupOptions(ctx context.Context, optionsID string) {
	if err := s.accounts.DeleteOptions(ctx, optionsID); err != nil {
		s.logger.Warn("failed to clean up orphaned account options",
			slog.String("optionsID", optionsID),
			slog.String("error", err.Error()),
		)
	}
}

// AuthResult bundles the account and its freshly issued session token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	Account *model.Account
	Token   string
}

// Authenticate verifies name+password and issues a session token.
//
// Every failure mode — unknown name, wrong password, account with no
// credential — surfaces as the same ErrUnauthorized, so a caller cannot
// probe which names exist or which accounts have passwords.
func (s *AccountService) Authenticate(ctx context.Context, name, password string) (*AuthResult, error) {
	account, err := s.accounts.ByName(ctx, name)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid credentials")
		}
		return nil, fmt.Errorf("service/account: authenticating %q: %w", name, err)
	}

	if account.HasCredential() && !auth.LooksHashed(account.PasswordHash) {
		// The check below fails closed regardless; this is only so the
		// corruption gets noticed.
		s.logger.Warn("stored password hash is not bcrypt-formatted",
			slog.String("accountID", account.ID),
		)
	}

	if !account.CheckPassword(password) {
		return nil, apperror.Unauthorized("invalid credentials")
	}

	token, err := s.tokens.Generate(account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/account: generating token for %s: %w", account.ID, err)
	}

	s.logger.Info("account authenticated",
		slog.String("accountID", account.ID),
		slog.String("name", account.Name),
	)

	return &AuthResult{Account: account, Token: token}, nil
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback: find the account
// matching the GitHub login, provisioning one on first sight.
//
// Accounts provisioned here start with no credential — CheckPassword returns
// false for them until the owner sets a password.
func (s *AccountService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/account: GitHub user must not be nil")
	}

	account, err := s.accounts.ByName(ctx, ghUser.Login)
	switch {
	case err == nil:
		// existing account, fall through to token issuance
	case errors.Is(err, apperror.ErrNotFound):
		opts, optErr := s.accounts.CreateEmptyOptions(ctx)
		if optErr != nil {
			return nil, fmt.Errorf("service/account: creating options for %q: %w", ghUser.Login, optErr)
		}
		account = &model.Account{
			Name:      ghUser.Login,
			Email:     ghUser.Email,
			OptionsID: opts.ID,
		}
		if createErr := s.accounts.CreateAccount(ctx, account); createErr != nil {
			s.cleanupOptions(ctx, opts.ID)
			return nil, fmt.Errorf("service/account: provisioning %q via GitHub: %w", ghUser.Login, createErr)
		}
		s.logger.Info("account provisioned via GitHub",
			slog.String("accountID", account.ID),
			slog.String("name", account.Name),
		)
	default:
		return nil, fmt.Errorf("service/account: looking up %q: %w", ghUser.Login, err)
	}

	token, err := s.tokens.Generate(account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/account: generating token for %s: %w", account.ID, err)
	}

	return &AuthResult{Account: account, Token: token}, nil
}

// GetAccount returns the account for the given internal ID.
func (s *AccountService) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	if id == "" {
		return nil, fmt.Errorf("service/account: account ID must not be empty")
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching %s: %w", id, err)
	}
	return account, nil
}

// ChangePassword sets a new password on the account and commits it. This is
// where the in-memory mutation (SetPassword) meets its persistence boundary.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, plaintext string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("service/account: fetching %s: %w", accountID, err)
	}

	if err := account.SetPassword(plaintext); err != nil {
		return fmt.Errorf("service/account: changing password for %s: %w", accountID, err)
	}
	if err := s.accounts.Update(ctx, account); err != nil {
		return fmt.Errorf("service/account: committing password for %s: %w", accountID, err)
	}

	s.logger.Info("password changed", slog.String("accountID", accountID))
	return nil
}

// GetOptions returns the preference record owned by the account.
func (s *AccountService) GetOptions(ctx context.Context, accountID string) (*model.AccountOptions, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching %s: %w", accountID, err)
	}

	opts, err := s.accounts.GetOptions(ctx, account.OptionsID)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching options for %s: %w", accountID, err)
	}
	return opts, nil
}

// UpdateOptions applies a sparse patch to the account's preferences and
// commits the result. A JSON null clears the override, a value sets it, and
// untouched fields keep their stored state.
func (s *AccountService) UpdateOptions(ctx context.Context, accountID string, patch map[string]json.RawMessage) (*model.AccountOptions, error) {
	opts, err := s.GetOptions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if err := opts.ApplyPatch(patch); err != nil {
		return nil, apperror.ValidationFailed("options", err.Error())
	}

	if err := s.accounts.UpdateOptions(ctx, opts); err != nil {
		return nil, fmt.Errorf("service/account: committing options for %s: %w", accountID, err)
	}

	s.logger.Info("options updated",
		slog.String("accountID", accountID),
		slog.Int("overrides", len(opts.AsMap())),
	)
	return opts, nil
}

// DeleteAccount removes the account and, atomically with it, its preference
// record.
func (s *AccountService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/account: deleting %s: %w", id, err)
	}

	s.logger.Info("account deleted", slog.String("accountID", id))
	return nil
}
