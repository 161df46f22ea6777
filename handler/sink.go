package handler

import (
	"context"
	"log"

	"github.com/mabumusa1/ses-plugin/types"
)

// SuppressionSink records addresses that should no longer receive mail.
//
// email.SesSuppressor implements SuppressionSink using the SES account
// suppression list.
type SuppressionSink interface {
	RecordFailure(ctx context.Context, si types.SuppressionInstruction) error
}

type SinkFunc func(ctx context.Context, si types.SuppressionInstruction) error

func (f SinkFunc) RecordFailure(
	ctx context.Context, si types.SuppressionInstruction,
) error {
	return f(ctx, si)
}

// LogSink only logs each instruction, prefixed by the account that received
// the webhook, if any.
type LogSink struct {
	Log *log.Logger
}

func (s *LogSink) RecordFailure(
	ctx context.Context, si types.SuppressionInstruction,
) error {
	if account := AccountFromContext(ctx); account != "" {
		s.Log.Printf("%s: suppress: %s", account, &si)
	} else {
		s.Log.Printf("suppress: %s", &si)
	}
	return nil
}

// MultiSink records each instruction in every sink, in order, stopping at the
// first failure.
type MultiSink []SuppressionSink

func (ms MultiSink) RecordFailure(
	ctx context.Context, si types.SuppressionInstruction,
) error {
	for _, sink := range ms {
		if err := sink.RecordFailure(ctx, si); err != nil {
			return err
		}
	}
	return nil
}

type accountKey struct{}

// WithAccount labels ctx with the account named by a webhook request path.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, accountKey{}, account)
}

func AccountFromContext(ctx context.Context) string {
	account, _ := ctx.Value(accountKey{}).(string)
	return account
}
