package db

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/mabumusa1/ses-plugin/email"
	"github.com/mabumusa1/ses-plugin/types"
)

const ErrSettingsNotFound = types.SentinelError("account settings not found")

// DefaultMaxSendRate applies to an account whose rate SES hasn't reported yet.
const DefaultMaxSendRate = 14

// AccountSettings is the persisted state for one SES access key.
type AccountSettings struct {
	AccessKey   string    `dynamodbav:"accessKey"`
	MaxSendRate int       `dynamodbav:"maxSendRate"`
	Templates   []string  `dynamodbav:"templates,stringset,omitempty"`
	Updated     time.Time `dynamodbav:"updated,unixtime"`
}

func (s *AccountSettings) SendRate() int {
	if s == nil || s.MaxSendRate <= 0 {
		return DefaultMaxSendRate
	}
	return s.MaxSendRate
}

// SettingsStore persists AccountSettings.
//
// GetSettings returns ErrSettingsNotFound for an unknown access key. AddTemplate
// creates the record if necessary and must be an atomic set-if-absent.
type SettingsStore interface {
	GetSettings(ctx context.Context, accessKey string) (*AccountSettings, error)
	PutSettings(ctx context.Context, settings *AccountSettings) error
	SetMaxSendRate(ctx context.Context, accessKey string, rate int) error
	AddTemplate(ctx context.Context, accessKey, name string) (bool, error)
	RemoveTemplate(ctx context.Context, accessKey, name string) error
}

// Account binds a SettingsStore to one access key, serving as the
// email.TemplateRegistry for persistent templates and recording each quota
// refresh.
type Account struct {
	Store     SettingsStore
	AccessKey string
}

var _ email.TemplateRegistry = &Account{}

// Settings returns nil, nil if the account has no settings yet.
func (a *Account) Settings(ctx context.Context) (*AccountSettings, error) {
	settings, err := a.Store.GetSettings(ctx, a.AccessKey)

	if errors.Is(err, ErrSettingsNotFound) {
		return nil, nil
	}
	return settings, err
}

func (a *Account) IsRegistered(ctx context.Context, name string) (bool, error) {
	if settings, err := a.Settings(ctx); err != nil || settings == nil {
		return false, err
	} else {
		return slices.Contains(settings.Templates, name), nil
	}
}

func (a *Account) Register(ctx context.Context, name string) (bool, error) {
	return a.Store.AddTemplate(ctx, a.AccessKey, name)
}

func (a *Account) Unregister(ctx context.Context, name string) error {
	return a.Store.RemoveTemplate(ctx, a.AccessKey, name)
}

func (a *Account) Registered(ctx context.Context) ([]string, error) {
	if settings, err := a.Settings(ctx); err != nil || settings == nil {
		return []string{}, err
	} else {
		names := slices.Clone(settings.Templates)
		slices.Sort(names)
		return names, nil
	}
}

// RecordQuota matches email.SesQuotaGate.OnRefresh.
func (a *Account) RecordQuota(
	ctx context.Context, state *email.QuotaState,
) error {
	return a.Store.SetMaxSendRate(ctx, a.AccessKey, state.SendRate())
}
