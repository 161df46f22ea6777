package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"dario.cat/mergo"
	"github.com/mabumusa1/ses-plugin/email"
	"github.com/mabumusa1/ses-plugin/handler"
	"github.com/mabumusa1/ses-plugin/types"
)

const ErrMissingRegion = types.SentinelError("region is not set")

const ErrInvalidOption = types.SentinelError("invalid option")

const DefaultWebhookAddr = ":8080"

// Options configures a transport instance. Zero values mean "use the
// default"; see Defaults.
type Options struct {
	// Dsn, when set in a config file, supplies any of Region, AccessKey,
	// SecretKey, and EnableTemplate left empty by the file itself.
	Dsn string `yaml:"dsn"`

	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	EnableTemplate   bool   `yaml:"enable_template"`
	SendRateOverride int    `yaml:"send_rate_override"`
	ConfigurationSet string `yaml:"configuration_set"`
	BulkThreshold    int    `yaml:"bulk_threshold"`
	BulkBatchSize    int    `yaml:"bulk_batch_size"`
	TemplateMode     string `yaml:"template_mode"`

	SendTimeout   time.Duration `yaml:"send_timeout"`
	QuotaCacheTtl time.Duration `yaml:"quota_cache_ttl"`

	// QuotaCapacity is the fraction of the 24 hour quota this transport may
	// use, within [0,1].
	QuotaCapacity float64 `yaml:"quota_capacity"`

	RedisUrl      string `yaml:"redis_url"`
	SettingsTable string `yaml:"settings_table"`
	PostgresDsn   string `yaml:"postgres_dsn"`

	WebhookAddr          string `yaml:"webhook_addr"`
	SubscribeHostPattern string `yaml:"subscribe_host_pattern"`
}

func Defaults() Options {
	return Options{
		BulkThreshold:        email.DefaultBulkThreshold,
		BulkBatchSize:        email.MaxBulkBatchSize,
		TemplateMode:         string(email.SessionTemplates),
		SendTimeout:          email.DefaultSendTimeout,
		QuotaCacheTtl:        email.DefaultQuotaCacheTtl,
		QuotaCapacity:        types.FullCapacity.Value(),
		WebhookAddr:          DefaultWebhookAddr,
		SubscribeHostPattern: handler.DefaultSubscribeHostPattern,
	}
}

// WithDefaults returns a copy of o with every unset field taken from
// Defaults.
func (o *Options) WithDefaults() (*Options, error) {
	result := *o
	defaults := Defaults()

	if err := mergo.Merge(&result, defaults); err != nil {
		return nil, fmt.Errorf("failed to apply default options: %w", err)
	}
	return &result, nil
}

// Validate reports every problem with o at once.
func (o *Options) Validate() error {
	errs := make([]error, 0, 4)

	if o.Region == "" {
		const errFmt = "%w: %w"
		errs = append(
			errs, fmt.Errorf(errFmt, email.ErrFatalPrecondition, ErrMissingRegion),
		)
	}
	if (o.AccessKey == "") != (o.SecretKey == "") {
		errs = append(errs, fmt.Errorf(
			"%w: %w: access key and secret key must be set together",
			email.ErrFatalPrecondition,
			ErrInvalidOption,
		))
	}
	if _, err := email.ParseTemplateMode(o.TemplateMode); err != nil {
		errs = append(errs, err)
	}
	if o.BulkBatchSize < 0 || o.BulkBatchSize > email.MaxBulkBatchSize {
		errs = append(errs, fmt.Errorf(
			"%w: bulk batch size must be within [1,%d]: %d",
			ErrInvalidOption,
			email.MaxBulkBatchSize,
			o.BulkBatchSize,
		))
	}
	if o.SendRateOverride < 0 {
		errs = append(errs, fmt.Errorf(
			"%w: send rate override is negative: %d",
			ErrInvalidOption,
			o.SendRateOverride,
		))
	}
	if _, err := o.Capacity(); err != nil {
		errs = append(errs, err)
	}
	if _, err := regexp.Compile(o.SubscribeHostPattern); err != nil {
		errs = append(errs, fmt.Errorf(
			"%w: subscribe host pattern: %w", ErrInvalidOption, err,
		))
	}
	return errors.Join(errs...)
}

func (o *Options) Capacity() (types.Capacity, error) {
	return types.NewCapacity(o.QuotaCapacity)
}

// Templates returns the TemplateMode, which Validate has already checked.
func (o *Options) Templates() email.TemplateMode {
	mode, _ := email.ParseTemplateMode(o.TemplateMode)
	return mode
}
