// Package model defines the data structures used throughout the application.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tbhasan/tableforge/internal/auth"
)

// Account represents a registered user account.
//
// The password is never stored — only a bcrypt hash of it. PasswordHash and
// OptionsID carry `json:"-"` so neither can leak through an accidental
// json.Marshal of the struct; AsMap is the intended serialization path and
// excludes them as well.
//
// WHY Email string (not *string)?
// Email is optional, but an empty string is an unambiguous "not provided"
// value here — simpler to work with than a nullable pointer and safe to
// display. The preference fields on AccountOptions are a different story:
// there nil carries meaning ("inherit the default"), so they are pointers.
type Account struct {
	ID           string    `json:"id"        db:"id"`
	Name         string    `json:"name"      db:"name"` // unique, compared case-insensitively
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	OptionsID    string    `json:"-"         db:"options_id"` // owning reference to AccountOptions
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// SetPassword replaces the account's credential with a salted bcrypt hash of
// plaintext. Only the in-memory record is mutated — persisting the new hash
// is the caller's commit boundary (see AccountService.ChangePassword).
func (a *Account) SetPassword(plaintext string) error {
	hash, err := auth.HashPassword(plaintext)
	if err != nil {
		return fmt.Errorf("model: setting password: %w", err)
	}
	a.PasswordHash = hash
	return nil
}

// CheckPassword reports whether plaintext matches the stored hash.
//
// An account with no credential can never authenticate, and a corrupted hash
// fails the check rather than raising — both cases are indistinguishable from
// a wrong password, so a caller cannot probe for account state.
func (a *Account) CheckPassword(plaintext string) bool {
	if a.PasswordHash == "" {
		return false
	}
	return auth.VerifyPassword(a.PasswordHash, plaintext)
}

// HasCredential reports whether a password has ever been set. Accounts
// provisioned through OAuth start without one.
func (a *Account) HasCredential() bool {
	return a.PasswordHash != ""
}

// AsMap returns the externally-serializable snapshot of the account: every
// field except the id, the password hash, and the options reference.
//
// The password hash must never appear in this output under any key. The field
// list is enumerated by hand, not reflected, precisely so that adding a
// sensitive column can never leak it by default.
func (a *Account) AsMap() map[string]any {
	return map[string]any{
		"name":       a.Name,
		"email":      a.Email,
		"created_at": a.CreatedAt,
		"updated_at": a.UpdatedAt,
	}
}

// AccountOptions is the per-account preference record. Every field is
// independently optional: nil means "no override — inherit the system
// default", which is distinct from an explicit zero value (false, 0, "").
//
// Exactly one AccountOptions row exists per Account, created at provisioning
// time with every field nil and deleted together with its account.
type AccountOptions struct {
	ID string `json:"-" db:"id"`

	FowColour   *string `json:"fow_colour,omitempty"   db:"fow_colour"`
	GridColour  *string `json:"grid_colour,omitempty"  db:"grid_colour"`
	RulerColour *string `json:"ruler_colour,omitempty" db:"ruler_colour"`

	InvertAlt           *bool `json:"invert_alt,omitempty"             db:"invert_alt"`
	DisableScrollToZoom *bool `json:"disable_scroll_to_zoom,omitempty" db:"disable_scroll_to_zoom"`

	UseHighDPI         *bool    `json:"use_high_dpi,omitempty"          db:"use_high_dpi"`
	GridSize           *int     `json:"grid_size,omitempty"             db:"grid_size"`
	UseAsPhysicalBoard *bool    `json:"use_as_physical_board,omitempty" db:"use_as_physical_board"`
	MiniSize           *float64 `json:"mini_size,omitempty"             db:"mini_size"`
	PPI                *int     `json:"ppi,omitempty"                   db:"ppi"`

	InitiativeCameraLock       *bool   `json:"initiative_camera_lock,omitempty"       db:"initiative_camera_lock"`
	InitiativeVisionLock       *bool   `json:"initiative_vision_lock,omitempty"       db:"initiative_vision_lock"`
	InitiativeEffectVisibility *string `json:"initiative_effect_visibility,omitempty" db:"initiative_effect_visibility"`
}

// NewEmptyOptions returns an options record with every field unset. This is
// the only constructor used for per-account override records: a fresh account
// has no overrides, not "all defaults".
func NewEmptyOptions() *AccountOptions {
	return &AccountOptions{}
}

// AsMap returns only the fields that hold an override, keyed by their wire
// name. The id is always excluded. A record with no overrides yields an empty
// map, which lets a client merge the result onto its own defaults field by
// field with no sentinel handling.
func (o *AccountOptions) AsMap() map[string]any {
	m := make(map[string]any)
	if o.FowColour != nil {
		m["fow_colour"] = *o.FowColour
	}
	if o.GridColour != nil {
		m["grid_colour"] = *o.GridColour
	}
	if o.RulerColour != nil {
		m["ruler_colour"] = *o.RulerColour
	}
	if o.InvertAlt != nil {
		m["invert_alt"] = *o.InvertAlt
	}
	if o.DisableScrollToZoom != nil {
		m["disable_scroll_to_zoom"] = *o.DisableScrollToZoom
	}
	if o.UseHighDPI != nil {
		m["use_high_dpi"] = *o.UseHighDPI
	}
	if o.GridSize != nil {
		m["grid_size"] = *o.GridSize
	}
	if o.UseAsPhysicalBoard != nil {
		m["use_as_physical_board"] = *o.UseAsPhysicalBoard
	}
	if o.MiniSize != nil {
		m["mini_size"] = *o.MiniSize
	}
	if o.PPI != nil {
		m["ppi"] = *o.PPI
	}
	if o.InitiativeCameraLock != nil {
		m["initiative_camera_lock"] = *o.InitiativeCameraLock
	}
	if o.InitiativeVisionLock != nil {
		m["initiative_vision_lock"] = *o.InitiativeVisionLock
	}
	if o.InitiativeEffectVisibility != nil {
		m["initiative_effect_visibility"] = *o.InitiativeEffectVisibility
	}
	return m
}

// ResolvedOptions is every preference with a concrete value — the result of
// merging an account's overrides onto the system defaults.
type ResolvedOptions struct {
	FowColour                  string  `json:"fow_colour"`
	GridColour                 string  `json:"grid_colour"`
	RulerColour                string  `json:"ruler_colour"`
	InvertAlt                  bool    `json:"invert_alt"`
	DisableScrollToZoom        bool    `json:"disable_scroll_to_zoom"`
	UseHighDPI                 bool    `json:"use_high_dpi"`
	GridSize                   int     `json:"grid_size"`
	UseAsPhysicalBoard         bool    `json:"use_as_physical_board"`
	MiniSize                   float64 `json:"mini_size"`
	PPI                        int     `json:"ppi"`
	InitiativeCameraLock       bool    `json:"initiative_camera_lock"`
	InitiativeVisionLock       bool    `json:"initiative_vision_lock"`
	InitiativeEffectVisibility string  `json:"initiative_effect_visibility"`
}

// DefaultOptions returns the system defaults that apply wherever an account
// holds no override.
func DefaultOptions() ResolvedOptions {
	return ResolvedOptions{
		FowColour:                  "#000",
		GridColour:                 "#000",
		RulerColour:                "#F00",
		InvertAlt:                  false,
		DisableScrollToZoom:        false,
		UseHighDPI:                 false,
		GridSize:                   50,
		UseAsPhysicalBoard:         false,
		MiniSize:                   1,
		PPI:                        96,
		InitiativeCameraLock:       false,
		InitiativeVisionLock:       false,
		InitiativeEffectVisibility: "active",
	}
}

// Resolve merges the record's overrides onto the system defaults: for each
// field, the override wins if present, the default otherwise. Pure — the
// record itself is not modified.
func (o *AccountOptions) Resolve() ResolvedOptions {
	r := DefaultOptions()
	if o.FowColour != nil {
		r.FowColour = *o.FowColour
	}
	if o.GridColour != nil {
		r.GridColour = *o.GridColour
	}
	if o.RulerColour != nil {
		r.RulerColour = *o.RulerColour
	}
	if o.InvertAlt != nil {
		r.InvertAlt = *o.InvertAlt
	}
	if o.DisableScrollToZoom != nil {
		r.DisableScrollToZoom = *o.DisableScrollToZoom
	}
	if o.UseHighDPI != nil {
		r.UseHighDPI = *o.UseHighDPI
	}
	if o.GridSize != nil {
		r.GridSize = *o.GridSize
	}
	if o.UseAsPhysicalBoard != nil {
		r.UseAsPhysicalBoard = *o.UseAsPhysicalBoard
	}
	if o.MiniSize != nil {
		r.MiniSize = *o.MiniSize
	}
	if o.PPI != nil {
		r.PPI = *o.PPI
	}
	if o.InitiativeCameraLock != nil {
		r.InitiativeCameraLock = *o.InitiativeCameraLock
	}
	if o.InitiativeVisionLock != nil {
		r.InitiativeVisionLock = *o.InitiativeVisionLock
	}
	if o.InitiativeEffectVisibility != nil {
		r.InitiativeEffectVisibility = *o.InitiativeEffectVisibility
	}
	return r
}

// ApplyPatch updates the record from a sparse JSON object: a value sets the
// override, an explicit null clears it back to "inherit default", and keys
// absent from the patch are left untouched. Unknown keys are rejected so a
// typo cannot be silently dropped.
func (o *AccountOptions) ApplyPatch(patch map[string]json.RawMessage) error {
	for key, raw := range patch {
		var err error
		switch key {
		case "fow_colour":
			err = patchField(&o.FowColour, raw)
		case "grid_colour":
			err = patchField(&o.GridColour, raw)
		case "ruler_colour":
			err = patchField(&o.RulerColour, raw)
		case "invert_alt":
			err = patchField(&o.InvertAlt, raw)
		case "disable_scroll_to_zoom":
			err = patchField(&o.DisableScrollToZoom, raw)
		case "use_high_dpi":
			err = patchField(&o.UseHighDPI, raw)
		case "grid_size":
			err = patchField(&o.GridSize, raw)
		case "use_as_physical_board":
			err = patchField(&o.UseAsPhysicalBoard, raw)
		case "mini_size":
			err = patchField(&o.MiniSize, raw)
		case "ppi":
			err = patchField(&o.PPI, raw)
		case "initiative_camera_lock":
			err = patchField(&o.InitiativeCameraLock, raw)
		case "initiative_vision_lock":
			err = patchField(&o.InitiativeVisionLock, raw)
		case "initiative_effect_visibility":
			err = patchField(&o.InitiativeEffectVisibility, raw)
		default:
			return fmt.Errorf("model: unknown option %q", key)
		}
		if err != nil {
			return fmt.Errorf("model: option %q: %w", key, err)
		}
	}
	return nil
}

// patchField sets *dst from raw JSON, treating a literal null as "clear".
func patchField[T any](dst **T, raw json.RawMessage) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		*dst = nil
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return err
	}
	*dst = v
	return nil
}
