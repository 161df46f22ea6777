package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/mabumusa1/ses-plugin/config"
	"github.com/mabumusa1/ses-plugin/db"
	"github.com/mabumusa1/ses-plugin/email"
	"github.com/mabumusa1/ses-plugin/handler"
	"github.com/mabumusa1/ses-plugin/ops"
)

// DefaultAccountKey names the account in shared stores when the transport
// uses the default AWS credential chain instead of an access key.
const DefaultAccountKey = "default"

const subscribeTimeout = 10 * time.Second

// Backends holds the stores a Transport may share with other processes.
//
// Account is nil unless SettingsTable or PostgresDsn is configured.
type Backends struct {
	Quota    email.QuotaCache
	Registry email.TemplateRegistry
	Account  *db.Account
	closers  []io.Closer
}

// OpenBackends chooses each store based on opts:
//
//   - quota cache: Redis if RedisUrl is set, else process memory
//   - account settings: DynamoDB if SettingsTable is set, else PostgreSQL if
//     PostgresDsn is set, else none
//   - template registry: process memory for session templates; for
//     persistent templates, Redis if available, else the account settings
func OpenBackends(opts *config.Options, cfg *aws.Config) (*Backends, error) {
	b := &Backends{}
	accountKey := AccountKey(opts)
	var redisStore *db.Redis

	if opts.RedisUrl != "" {
		var err error
		if redisStore, err = db.NewRedis(opts.RedisUrl, accountKey); err != nil {
			return nil, err
		}
		b.Quota = redisStore
		b.closers = append(b.closers, redisStore)
	} else {
		b.Quota = email.NewMemoryQuotaCache()
	}

	if store, err := openSettingsStore(opts, cfg, b); err != nil {
		return nil, errors.Join(err, b.Close())
	} else if store != nil {
		b.Account = &db.Account{Store: store, AccessKey: accountKey}
	}

	switch {
	case opts.Templates() == email.SessionTemplates:
		b.Registry = email.NewMemoryTemplateRegistry()
	case redisStore != nil:
		b.Registry = redisStore
	case b.Account != nil:
		b.Registry = b.Account
	default:
		return nil, errors.Join(
			fmt.Errorf(
				"%w: persistent templates need a Redis URL, settings table, "+
					"or PostgreSQL DSN",
				config.ErrInvalidOption,
			),
			b.Close(),
		)
	}
	return b, nil
}

func openSettingsStore(
	opts *config.Options, cfg *aws.Config, b *Backends,
) (db.SettingsStore, error) {
	if opts.SettingsTable != "" {
		return db.NewDynamoDb(cfg, opts.SettingsTable), nil
	} else if opts.PostgresDsn == "" {
		return nil, nil
	}

	pg, err := db.NewPostgres(opts.PostgresDsn)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, pg)
	return pg, nil
}

// Close releases every connection opened by OpenBackends.
func (b *Backends) Close() error {
	errs := make([]error, 0, len(b.closers))
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// AccountKey returns the key identifying this account in shared stores.
func AccountKey(opts *config.Options) string {
	if opts.AccessKey != "" {
		return opts.AccessKey
	}
	return DefaultAccountKey
}

// Transport is the composition of every component needed to send mail and
// process webhooks for one SES account.
type Transport struct {
	Options    *config.Options
	Engine     *email.DispatchEngine
	Quota      *email.SesQuotaGate
	Templates  *email.TemplateCache
	Suppressor email.Suppressor
	Webhook    *handler.Webhook
	Log        *log.Logger

	backends *Backends
}

// New applies defaults to opts, validates them, and builds a Transport backed
// by the SES v2 API.
func New(
	ctx context.Context, opts *config.Options, logger *log.Logger,
) (t *Transport, err error) {
	if opts, err = Prepare(opts); err != nil {
		return
	}

	var cfg aws.Config
	cfg, err = ops.LoadAwsConfig(
		ctx, opts.Region, opts.AccessKey, opts.SecretKey,
	)
	if err != nil {
		return
	}

	var backends *Backends
	if backends, err = OpenBackends(opts, &cfg); err != nil {
		return
	}
	client := sesv2.NewFromConfig(cfg)
	if t, err = Build(ctx, opts, client, backends, logger); err != nil {
		err = errors.Join(err, backends.Close())
	}
	return
}

// Prepare returns a copy of opts with defaults applied, or every validation
// error.
func Prepare(opts *config.Options) (*config.Options, error) {
	prepared, err := opts.WithDefaults()
	if err != nil {
		return nil, err
	} else if err = prepared.Validate(); err != nil {
		return nil, err
	}
	return prepared, nil
}

// Build assembles a Transport from prepared options.
//
// The send rate starts at the rate stored in the account settings, if any,
// until the first quota check reports the current one.
func Build(
	ctx context.Context,
	opts *config.Options,
	client email.SesV2Api,
	backends *Backends,
	logger *log.Logger,
) (*Transport, error) {
	capacity, err := opts.Capacity()
	if err != nil {
		return nil, err
	}
	hostPattern, err := regexp.Compile(opts.SubscribeHostPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid subscribe host pattern: %w", err)
	}

	sendRate := initialSendRate(ctx, opts, backends, logger)
	limiter, err := email.NewRateLimiter(sendRate)
	if err != nil {
		return nil, err
	}

	gate := email.NewSesQuotaGate(
		client, backends.Quota, opts.QuotaCacheTtl, capacity, logger,
	)
	gate.RateOverride = opts.SendRateOverride
	if backends.Account != nil {
		gate.OnRefresh = backends.Account.RecordQuota
	}

	templates := &email.TemplateCache{
		Client:   client,
		Registry: backends.Registry,
		Limiter:  limiter,
		Mode:     opts.Templates(),
		Log:      logger,
	}
	suppressor := &email.SesSuppressor{Client: client}

	return &Transport{
		Options: opts,
		Engine: &email.DispatchEngine{
			Client:    client,
			Quota:     gate,
			Limiter:   limiter,
			Templates: templates,
			Builder: &email.PayloadBuilder{
				ConfigurationSet: opts.ConfigurationSet,
				BatchSize:        opts.BulkBatchSize,
			},
			EnableTemplate: opts.EnableTemplate,
			BulkThreshold:  opts.BulkThreshold,
			SendTimeout:    opts.SendTimeout,
			Log:            logger,
		},
		Quota:      gate,
		Templates:  templates,
		Suppressor: suppressor,
		Webhook: &handler.Webhook{
			Interpreter: &handler.Interpreter{
				Client:      &http.Client{Timeout: subscribeTimeout},
				HostPattern: hostPattern,
				Log:         logger,
			},
			Sink: handler.MultiSink{&handler.LogSink{Log: logger}, suppressor},
		},
		Log:      logger,
		backends: backends,
	}, nil
}

func initialSendRate(
	ctx context.Context,
	opts *config.Options,
	backends *Backends,
	logger *log.Logger,
) int {
	if opts.SendRateOverride > 0 {
		return opts.SendRateOverride
	} else if backends.Account == nil {
		return db.DefaultMaxSendRate
	}

	settings, err := backends.Account.Settings(ctx)
	if err != nil {
		logger.Printf(
			"using default send rate %d: %s", db.DefaultMaxSendRate, err,
		)
	}
	return settings.SendRate()
}

func (t *Transport) Send(
	ctx context.Context, msg *email.OutboundMessage,
) (*email.SendReceipt, error) {
	return t.Engine.Send(ctx, msg)
}

// TestConnection checks that the account can send right now.
func (t *Transport) TestConnection(ctx context.Context) error {
	return t.Quota.TestConnection(ctx)
}

// PurgeTemplates deletes every registered template from SES. With all set,
// it also deletes every bulk template SES lists, registered or not.
func (t *Transport) PurgeTemplates(
	ctx context.Context, all bool,
) ([]string, error) {
	if all {
		return t.Templates.PurgeAll(ctx)
	}
	return t.Templates.Purge(ctx)
}

func (t *Transport) LambdaHandler() *handler.LambdaHandler {
	return handler.NewLambdaHandler(t.Webhook, t.Engine, t.Log)
}

func (t *Transport) Router() http.Handler {
	return handler.NewRouter(t.Webhook, t.Log)
}

// Close deletes session templates, then closes the shared stores.
func (t *Transport) Close(ctx context.Context) error {
	t.Engine.Close(ctx)
	if t.backends == nil {
		return nil
	}
	return t.backends.Close()
}
