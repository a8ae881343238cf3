// Package launcher validates and submits new campaigns. The compliance
// footer is enforced here on every submission, whatever the caller.
package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/foxzi/bulkdash/internal/audit"
	"github.com/foxzi/bulkdash/internal/backend"
	"github.com/foxzi/bulkdash/internal/compliance"
	"github.com/foxzi/bulkdash/internal/contacts"
	"github.com/foxzi/bulkdash/internal/metrics"
)

// Rate limit bounds, in seconds between messages
const (
	DefaultRateLimit = 2
	MinRateLimit     = 1
	MaxRateLimit     = 10
)

// StartRequest is what the operator submits
type StartRequest struct {
	FileName  string `label:"contact file" validate:"notblank"`
	File      []byte `label:"contact file" validate:"required,min=1"`
	Template  string `label:"message template" validate:"notblank"`
	Name      string `label:"campaign name" validate:"notblank,max=200"`
	RateLimit int    `label:"rate limit" validate:"min=1,max=10"`
	APIKey    string `label:"API key" validate:"notblank"`
}

// ValidationError reports problems found before any request was sent
type ValidationError struct {
	Problems []string
	Err      error
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Starter submits a campaign to the backend
type Starter interface {
	StartCampaign(ctx context.Context, req *backend.StartCampaignRequest) (*backend.StartCampaignResponse, error)
}

// Result describes an accepted campaign
type Result struct {
	CampaignID  string
	Message     string
	Template    string
	FooterAdded bool
	Report      *contacts.Report
}

// Launcher turns a StartRequest into a backend campaign start
type Launcher struct {
	client   Starter
	policy   *compliance.Policy
	audit    audit.Recorder
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates a launcher. rec may be nil; a nil policy uses the default
// brand.
func New(client Starter, policy *compliance.Policy, rec audit.Recorder, logger *slog.Logger) *Launcher {
	if rec == nil {
		rec = audit.Discard
	}
	if policy == nil {
		policy = compliance.NewPolicy(compliance.DefaultBrand)
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &Launcher{
		client:   client,
		policy:   policy,
		audit:    rec,
		validate: v,
		logger:   logger.With("component", "launcher"),
	}
}

// Validate checks the request without contacting the backend
func (l *Launcher) Validate(req *StartRequest) (*contacts.Report, error) {
	if req.RateLimit == 0 {
		req.RateLimit = DefaultRateLimit
	}

	if err := l.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		seen := make(map[string]bool)
		var problems []string
		for _, fe := range verrs {
			msg := validationMessage(fe)
			if !seen[msg] {
				seen[msg] = true
				problems = append(problems, msg)
			}
		}
		return nil, &ValidationError{Problems: problems, Err: err}
	}

	if !strings.EqualFold(filepath.Ext(req.FileName), ".xlsx") {
		return nil, &ValidationError{
			Problems: []string{contacts.ErrUnsupportedFile.Error()},
			Err:      contacts.ErrUnsupportedFile,
		}
	}

	report, err := contacts.Inspect(bytes.NewReader(req.File), l.policy.Enforce(req.Template))
	if err != nil {
		return nil, &ValidationError{Problems: []string{"contact file: " + err.Error()}, Err: err}
	}
	return report, nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return fe.Field() + " is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fe.Field() + " is empty"
		}
		return fmt.Sprintf("%s must be between %d and %d", fe.Field(), MinRateLimit, MaxRateLimit)
	case "max":
		if fe.Kind() == reflect.String {
			return fe.Field() + " must be at most " + fe.Param() + " characters"
		}
		return fmt.Sprintf("%s must be between %d and %d", fe.Field(), MinRateLimit, MaxRateLimit)
	default:
		return fe.Field() + " is invalid"
	}
}

// Launch validates the request, enforces the compliance footer and starts
// the campaign. Backend errors are returned verbatim and never retried.
func (l *Launcher) Launch(ctx context.Context, req StartRequest, source string) (*Result, error) {
	report, err := l.Validate(&req)
	if err != nil {
		metrics.IncCampaignSubmissions("invalid")
		return nil, err
	}

	template := l.policy.Enforce(req.Template)
	footerAdded := template != req.Template
	for _, w := range report.Warnings {
		l.logger.Warn("template placeholder without column", "campaign", req.Name, "warning", w)
	}

	resp, err := l.client.StartCampaign(ctx, &backend.StartCampaignRequest{
		FileName:        filepath.Base(req.FileName),
		File:            req.File,
		MessageTemplate: template,
		CampaignName:    strings.TrimSpace(req.Name),
		RateLimit:       req.RateLimit,
		APIKey:          req.APIKey,
	})

	entry := &audit.Entry{
		Action:   audit.ActionCampaignStart,
		Campaign: strings.TrimSpace(req.Name),
		Source:   source,
	}
	if err != nil {
		metrics.IncCampaignSubmissions("error")
		entry.Outcome = audit.OutcomeError
		entry.Detail = err.Error()
		l.record(ctx, entry)
		l.logger.Error("campaign start failed", "campaign", req.Name, "error", err)
		return nil, err
	}

	metrics.IncCampaignSubmissions("ok")
	entry.CampaignID = resp.CampaignID
	entry.Outcome = audit.OutcomeOK
	entry.Detail = fmt.Sprintf("%d contacts, rate limit %ds", report.Contacts, req.RateLimit)
	l.record(ctx, entry)
	l.logger.Info("campaign started",
		"campaign_id", resp.CampaignID,
		"campaign", req.Name,
		"contacts", report.Contacts,
		"footer_added", footerAdded,
	)

	return &Result{
		CampaignID:  resp.CampaignID,
		Message:     resp.Message,
		Template:    template,
		FooterAdded: footerAdded,
		Report:      report,
	}, nil
}

func (l *Launcher) record(ctx context.Context, e *audit.Entry) {
	if err := l.audit.Record(ctx, e); err != nil {
		l.logger.Warn("failed to record audit entry", "action", e.Action, "error", err)
	}
}

// ReadFile loads a contact sheet from disk into a request
func ReadFile(path string, req *StartRequest) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read contact file: %w", err)
	}
	req.FileName = filepath.Base(path)
	req.File = data
	return nil
}
