package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"paintstore/backend/internal/cache"
	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/lock"
	"paintstore/backend/internal/logging"
	"paintstore/backend/internal/observability"
	"paintstore/backend/internal/phone"
	"paintstore/backend/internal/store"
	"paintstore/backend/internal/suggestion"
	"paintstore/backend/internal/xid"
)

const moduleName = "service"

type Options struct {
	Cache             cache.Cache
	Locker            lock.Locker
	Metrics           *observability.Metrics
	Logger            logrus.FieldLogger
	PhoneRegion       string
	LowStockThreshold int
	// Clock defaults to time.Now. Day and month boundaries for reports are
	// taken in the clock's location.
	Clock func() time.Time
}

type Service struct {
	repo              store.Repository
	validate          *validator.Validate
	phones            *phone.Normalizer
	cache             cache.Cache
	locker            lock.Locker
	metrics           *observability.Metrics
	logger            logrus.FieldLogger
	suggester         *suggestion.Engine
	lowStockThreshold int
	now               func() time.Time
	flight            singleflight.Group
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = 10
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Service{
		repo:              repo,
		validate:          newValidator(),
		phones:            phone.NewNormalizer(opts.PhoneRegion),
		cache:             opts.Cache,
		locker:            opts.Locker,
		metrics:           opts.Metrics,
		logger:            opts.Logger,
		suggester:         suggestion.NewEngine(),
		lowStockThreshold: opts.LowStockThreshold,
		now:               opts.Clock,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// check runs struct validation and turns the first failure into an
// ErrValidation with a readable message.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", store.ErrValidation, field)
	case "gt":
		return fmt.Errorf("%w: %s must be greater than %s", store.ErrValidation, field, fe.Param())
	case "gte":
		return fmt.Errorf("%w: %s must not be negative", store.ErrValidation, field)
	case "min":
		return fmt.Errorf("%w: %s needs at least %s entries", store.ErrValidation, field, fe.Param())
	case "max":
		return fmt.Errorf("%w: %s is longer than %s", store.ErrValidation, field, fe.Param())
	}
	return fmt.Errorf("%w: %s failed %s", store.ErrValidation, field, fe.Tag())
}

// money rejects amounts finer than the currency's two decimal places.
func money(field string, d decimal.Decimal) error {
	if !d.Round(2).Equal(d) {
		return fmt.Errorf("%w: %s must have at most 2 decimal places", store.ErrValidation, field)
	}
	return nil
}

func (s *Service) normalizePhone(raw string) (string, error) {
	normalized, err := s.phones.Normalize(raw)
	if err != nil {
		return "", fmt.Errorf("%w: customerPhone %q is not a valid phone number", store.ErrValidation, raw)
	}
	return normalized, nil
}

// lockCustomer serialises open-bill work for one phone key. Only a lock that
// stays held is reported as a conflict.
func (s *Service) lockCustomer(ctx context.Context, phoneKey string) (func(), error) {
	release, err := s.locker.Acquire(ctx, "customer:"+phoneKey)
	if errors.Is(err, lock.ErrBusy) {
		return nil, fmt.Errorf("%w: customer %s is busy", store.ErrConflict, phoneKey)
	}
	if err != nil {
		return nil, fmt.Errorf("lock customer %s: %w", phoneKey, err)
	}
	return release, nil
}

// invalidate drops cached read models after a committed write.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		logging.LogError(s.logger, moduleName, "invalidate", "bump stats cache", nil, err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		s.logger.WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).Warnf("failed to write audit log: %v", err)
	}
}

// committed runs the bookkeeping every successful write shares.
func (s *Service) committed(ctx context.Context, action string, entityType string, entityID string, detail string) {
	s.invalidate(ctx)
	s.logAudit(ctx, action, entityType, entityID, detail)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	var from, to time.Time
	if date = strings.TrimSpace(date); date != "" {
		day, err := time.ParseInLocation("2006-01-02", date, s.now().Location())
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		from, to = day, day.AddDate(0, 0, 1)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}
