package email

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sesv2types "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/mabumusa1/ses-plugin/ops"
	"golang.org/x/sync/singleflight"
)

type TemplateMode string

const (
	// SessionTemplates are deleted from SES when the TemplateCache closes.
	SessionTemplates TemplateMode = "session"

	// PersistentTemplates stay in SES and in a shared TemplateRegistry.
	PersistentTemplates TemplateMode = "persistent"
)

func ParseTemplateMode(s string) (TemplateMode, error) {
	switch mode := TemplateMode(s); mode {
	case SessionTemplates, PersistentTemplates:
		return mode, nil
	case "":
		return SessionTemplates, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTemplateMode, s)
}

type TemplateOutcome int

const (
	TemplateReused TemplateOutcome = iota
	TemplateCreated
)

func (o TemplateOutcome) String() string {
	if o == TemplateCreated {
		return "created"
	}
	return "reused"
}

// TemplateRegistry records which templates exist in SES. Register must be an
// atomic set-if-absent that reports whether name was newly added.
type TemplateRegistry interface {
	IsRegistered(ctx context.Context, name string) (bool, error)
	Register(ctx context.Context, name string) (added bool, err error)
	Unregister(ctx context.Context, name string) error
	Registered(ctx context.Context) ([]string, error)
}

type TemplateCache struct {
	Client   SesV2Api
	Registry TemplateRegistry
	Limiter  *RateLimiter
	Mode     TemplateMode
	Log      *log.Logger

	group   singleflight.Group
	mu      sync.Mutex
	created []string
}

// EnsureTemplate creates td in SES unless the registry already has it.
//
// Concurrent calls for the same name within a process share one creation.
// An AlreadyExistsException from SES counts as success.
func (tc *TemplateCache) EnsureTemplate(
	ctx context.Context, td *TemplateDescriptor,
) (TemplateOutcome, error) {
	if ok, err := tc.Registry.IsRegistered(ctx, td.Name); err != nil {
		return TemplateReused, fmt.Errorf(
			"failed to check template registry for %s: %w", td.Name, err,
		)
	} else if ok {
		return TemplateReused, nil
	}

	result, err, _ := tc.group.Do(td.Name, func() (any, error) {
		return tc.create(ctx, td)
	})
	if err != nil {
		return TemplateReused, err
	}
	return result.(TemplateOutcome), nil
}

func (tc *TemplateCache) create(
	ctx context.Context, td *TemplateDescriptor,
) (TemplateOutcome, error) {
	// Another flight may have registered td since EnsureTemplate checked.
	if ok, err := tc.Registry.IsRegistered(ctx, td.Name); err == nil && ok {
		return TemplateReused, nil
	}
	if err := tc.Limiter.Acquire(ctx, CreateTemplateGate, 1); err != nil {
		return TemplateReused, err
	}

	_, err := tc.Client.CreateEmailTemplate(ctx, td.CreateInput())
	var existsErr *sesv2types.AlreadyExistsException

	if err != nil && !errors.As(err, &existsErr) {
		return TemplateReused, ops.AwsError(
			"failed to create template "+td.Name, err,
		)
	}

	if added, err := tc.Registry.Register(ctx, td.Name); err != nil {
		return TemplateReused, fmt.Errorf(
			"failed to register template %s: %w", td.Name, err,
		)
	} else if added {
		tc.mu.Lock()
		tc.created = append(tc.created, td.Name)
		tc.mu.Unlock()
	}
	return TemplateCreated, nil
}

// Evict unregisters name and, in session mode, deletes it from SES. Failures
// are logged and never returned.
func (tc *TemplateCache) Evict(ctx context.Context, name string) {
	if err := tc.Registry.Unregister(ctx, name); err != nil {
		tc.Log.Printf("failed to unregister template %s: %s", name, err)
	}

	tc.mu.Lock()
	if i := slices.Index(tc.created, name); i != -1 {
		tc.created = slices.Delete(tc.created, i, i+1)
	}
	tc.mu.Unlock()

	if tc.Mode == SessionTemplates {
		if err := tc.deleteRemote(ctx, name); err != nil {
			tc.Log.Printf("%s", err)
		}
	}
}

// Close evicts every template this cache created when in session mode.
func (tc *TemplateCache) Close(ctx context.Context) {
	if tc.Mode != SessionTemplates {
		return
	}
	tc.mu.Lock()
	names := slices.Clone(tc.created)
	tc.mu.Unlock()

	for _, name := range names {
		tc.Evict(ctx, name)
	}
}

// Purge deletes every registered template from SES regardless of mode. It
// returns the names it failed to delete, which remain registered.
func (tc *TemplateCache) Purge(ctx context.Context) (failed []string, err error) {
	var names []string
	if names, err = tc.Registry.Registered(ctx); err != nil {
		return nil, fmt.Errorf("failed to list registered templates: %w", err)
	}
	return tc.purge(ctx, names), nil
}

// PurgeAll deletes every template in the SES account whose name starts with
// TemplateNamePrefix, plus every registered template. This reclaims templates
// left behind by processes that never ran Close. It also deletes templates
// that other running processes are still using.
func (tc *TemplateCache) PurgeAll(
	ctx context.Context,
) (failed []string, err error) {
	var names []string
	if names, err = tc.Registry.Registered(ctx); err != nil {
		return nil, fmt.Errorf("failed to list registered templates: %w", err)
	}

	input := &sesv2.ListEmailTemplatesInput{}
	pages := sesv2.NewListEmailTemplatesPaginator(tc.Client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, ops.AwsError("failed to list SES templates", err)
		}
		for _, md := range page.TemplatesMetadata {
			name := aws.ToString(md.TemplateName)
			if strings.HasPrefix(name, TemplateNamePrefix) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return tc.purge(ctx, slices.Compact(names)), nil
}

func (tc *TemplateCache) purge(
	ctx context.Context, names []string,
) (failed []string) {
	for _, name := range names {
		if err := tc.deleteRemote(ctx, name); err != nil {
			tc.Log.Printf("%s", err)
			failed = append(failed, name)
		} else if err := tc.Registry.Unregister(ctx, name); err != nil {
			tc.Log.Printf("failed to unregister template %s: %s", name, err)
			failed = append(failed, name)
		}
	}
	return
}

func (tc *TemplateCache) deleteRemote(ctx context.Context, name string) error {
	input := &sesv2.DeleteEmailTemplateInput{TemplateName: aws.String(name)}
	_, err := tc.Client.DeleteEmailTemplate(ctx, input)
	var notFoundErr *sesv2types.NotFoundException

	if err != nil && !errors.As(err, &notFoundErr) {
		return ops.AwsError("failed to delete template "+name, err)
	}
	return nil
}
