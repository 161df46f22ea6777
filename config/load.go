package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// LoadFile reads YAML options from path, expanding environment variable
// references first so secrets needn't live in the file.
func LoadFile(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return parseYaml([]byte(os.ExpandEnv(string(data))))
}

func parseYaml(data []byte) (*Options, error) {
	opts := &Options{}

	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	} else if opts.Dsn == "" {
		return opts, nil
	} else if fromDsn, err := ParseDsn(opts.Dsn); err != nil {
		return nil, err
	} else if err := mergo.Merge(opts, fromDsn); err != nil {
		return nil, fmt.Errorf("failed to merge DSN options: %w", err)
	}
	return opts, nil
}

// GetOptions reads Options from environment variables.
//
// SES_DSN supplies the credentials and region in one value. Without it,
// SES_REGION is required and SES_ACCESS_KEY and SES_SECRET_KEY are optional,
// falling back to the default AWS credential chain.
func GetOptions(getenv func(string) string) (*Options, error) {
	env := environment{getenv: getenv}
	return env.options()
}

type environment struct {
	getenv      func(string) string
	missingVars []string
	invalidVars []string
}

func (env *environment) options() (*Options, error) {
	opts := &Options{}

	if dsn := env.getenv("SES_DSN"); dsn != "" {
		var err error
		if opts, err = ParseDsn(dsn); err != nil {
			return nil, fmt.Errorf("SES_DSN: %w", err)
		}
	} else {
		env.require(&opts.Region, "SES_REGION")
		env.assign(&opts.AccessKey, "SES_ACCESS_KEY")
		env.assign(&opts.SecretKey, "SES_SECRET_KEY")
		env.assignBool(&opts.EnableTemplate, "SES_ENABLE_TEMPLATE")
	}

	env.assign(&opts.ConfigurationSet, "SES_CONFIGURATION_SET")
	env.assign(&opts.TemplateMode, "SES_TEMPLATE_MODE")
	env.assignInt(&opts.SendRateOverride, "SES_SEND_RATE_OVERRIDE")
	env.assignInt(&opts.BulkThreshold, "SES_BULK_THRESHOLD")
	env.assignInt(&opts.BulkBatchSize, "SES_BULK_BATCH_SIZE")
	env.assignDuration(&opts.SendTimeout, "SES_SEND_TIMEOUT")
	env.assignDuration(&opts.QuotaCacheTtl, "SES_QUOTA_CACHE_TTL")
	env.assignFloat(&opts.QuotaCapacity, "SES_QUOTA_CAPACITY")
	env.assign(&opts.RedisUrl, "REDIS_URL")
	env.assign(&opts.SettingsTable, "SETTINGS_TABLE_NAME")
	env.assign(&opts.PostgresDsn, "POSTGRES_DSN")
	env.assign(&opts.WebhookAddr, "WEBHOOK_ADDR")
	env.assign(&opts.SubscribeHostPattern, "SUBSCRIBE_HOST_PATTERN")

	if len(env.missingVars) != 0 {
		return nil, fmt.Errorf(
			"undefined environment variables:\n  %s",
			strings.Join(env.missingVars, "\n  "),
		)
	} else if len(env.invalidVars) != 0 {
		return nil, fmt.Errorf(
			"%w: invalid environment variables:\n  %s",
			ErrInvalidOption,
			strings.Join(env.invalidVars, "\n  "),
		)
	}
	return opts, nil
}

func (env *environment) require(opt *string, varname string) {
	if value := env.getenv(varname); value == "" {
		env.missingVars = append(env.missingVars, varname)
	} else {
		*opt = value
	}
}

func (env *environment) assign(opt *string, varname string) {
	if value := env.getenv(varname); value != "" {
		*opt = value
	}
}

func (env *environment) assignBool(opt *bool, varname string) {
	assignParsed(env, opt, varname, strconv.ParseBool)
}

func (env *environment) assignInt(opt *int, varname string) {
	assignParsed(env, opt, varname, strconv.Atoi)
}

func (env *environment) assignFloat(opt *float64, varname string) {
	assignParsed(env, opt, varname, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

func (env *environment) assignDuration(opt *time.Duration, varname string) {
	assignParsed(env, opt, varname, time.ParseDuration)
}

func assignParsed[T any](
	env *environment, opt *T, varname string, parse func(string) (T, error),
) {
	value := env.getenv(varname)
	if value == "" {
		return
	} else if parsed, err := parse(value); err != nil {
		env.invalidVars = append(env.invalidVars, varname+"="+value)
	} else {
		*opt = parsed
	}
}
