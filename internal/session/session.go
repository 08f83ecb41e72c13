package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"salon-pos/internal/pricing"
	"salon-pos/internal/storage/redis"
)

var (
	ErrNotFound               = errors.New("session not found")
	ErrUnknownService         = errors.New("unknown service")
	ErrInvalidSessionCount    = fmt.Errorf("session count must be between %d and %d", pricing.MinSessionsPerService, pricing.MaxSessionsPerService)
	ErrInvalidQuantity        = errors.New("quantity must be at least 1")
	ErrInvalidPrice           = errors.New("price must not be negative")
	ErrInvalidGiftSessions    = errors.New("gift sessions must not be negative")
	ErrPackageUnavailable     = errors.New("package is not available for this course")
	ErrInstallmentMonths      = errors.New("installment months is not an allowed option")
	ErrCertificateNotEligible = errors.New("course is too small for a certificate")
)

// errUnchanged aborts a mutation without bumping the version.
var errUnchanged = errors.New("unchanged")

// Options tune recomputation timing.
type Options struct {
	DragDelay      time.Duration
	IdleDelay      time.Duration
	ComputeTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		DragDelay:      100 * time.Millisecond,
		IdleDelay:      0,
		ComputeTimeout: 2 * time.Second,
	}
}

type deps struct {
	config  ConfigProvider
	catalog Catalog
	store   RedisStorage
	logger  *zap.Logger
	opts    Options
	now     func() time.Time
}

// Session is one master's calculator. Every mutation bumps the version and
// schedules a debounced recomputation against the latest configuration.
type Session struct {
	id       string
	masterID string
	deps     deps

	// computeMu serializes recomputations.
	computeMu sync.Mutex

	mu        sync.Mutex
	services  []pricing.SelectedService
	freeZones []pricing.FreeZone
	adj       pricing.Adjustments
	selected  *pricing.PackageType
	dragging  bool
	version   uint64
	computed  uint64
	result    *pricing.Result
	config    pricing.Config
	hasConfig bool
	updatedAt time.Time
	closed    bool

	debouncer *Debouncer
}

func newSession(id, masterID string, d deps) *Session {
	s := &Session{
		id:        id,
		masterID:  masterID,
		deps:      d,
		adj:       pricing.Adjustments{ManualGiftSessions: map[pricing.PackageType]int{}},
		updatedAt: d.now(),
	}
	s.debouncer = NewDebouncer(s.runScheduled)
	return s
}

func restoreSession(state *redis.SessionState, d deps) *Session {
	s := newSession(state.ID, state.MasterID, d)
	s.services = append([]pricing.SelectedService(nil), state.Services...)
	s.freeZones = append([]pricing.FreeZone(nil), state.FreeZones...)
	s.adj = state.Adjustments
	if s.adj.ManualGiftSessions == nil {
		s.adj.ManualGiftSessions = map[pricing.PackageType]int{}
	}
	if state.SelectedPackage != nil {
		t := *state.SelectedPackage
		s.selected = &t
	}
	s.version = state.Version
	if !state.UpdatedAt.IsZero() {
		s.updatedAt = state.UpdatedAt
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) MasterID() string {
	return s.masterID
}

// Snapshot is a consistent copy of the session state and its last result.
type Snapshot struct {
	ID                       string                    `json:"id"`
	MasterID                 string                    `json:"master_id"`
	Services                 []pricing.SelectedService `json:"services"`
	FreeZones                []pricing.FreeZone        `json:"free_zones"`
	Adjustments              pricing.Adjustments       `json:"adjustments"`
	ProcedureCount           int                       `json:"procedure_count"`
	SelectedPackage          *pricing.PackageType      `json:"selected_package,omitempty"`
	Dragging                 bool                      `json:"dragging"`
	Version                  uint64                    `json:"version"`
	Pending                  bool                      `json:"pending"`
	Result                   *pricing.Result           `json:"result"`
	InstallmentMonthsOptions []int                     `json:"installment_months_options"`
	UpdatedAt                time.Time                 `json:"updated_at"`
}

// Selection returns the priced part of the cart.
func (s Snapshot) Selection() pricing.Selection {
	return pricing.Selection{Services: s.Services, FreeZones: s.FreeZones}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:             s.id,
		MasterID:       s.masterID,
		Services:       append([]pricing.SelectedService{}, s.services...),
		FreeZones:      append([]pricing.FreeZone{}, s.freeZones...),
		Adjustments:    copyAdjustments(s.adj),
		ProcedureCount: pricing.MaxSessionCount(s.services, pricing.DefaultSessionFallback),
		Dragging:       s.dragging,
		Version:        s.version,
		Pending:        s.computed != s.version,
		Result:         s.result,
		UpdatedAt:      s.updatedAt,
	}
	if s.selected != nil {
		t := *s.selected
		snap.SelectedPackage = &t
	}
	if s.hasConfig {
		snap.InstallmentMonthsOptions = append([]int{}, s.config.Settings.InstallmentMonthsOptions...)
	}
	return snap
}

func copyAdjustments(adj pricing.Adjustments) pricing.Adjustments {
	gifts := make(map[pricing.PackageType]int, len(adj.ManualGiftSessions))
	for k, v := range adj.ManualGiftSessions {
		gifts[k] = v
	}
	adj.ManualGiftSessions = gifts
	return adj
}

func (s *Session) indexOf(serviceID int64) int {
	for i, svc := range s.services {
		if svc.ID == serviceID {
			return i
		}
	}
	return -1
}

func (s *Session) freeZoneIndex(serviceID int64) int {
	for i, z := range s.freeZones {
		if z.ServiceID == serviceID {
			return i
		}
	}
	return -1
}

func (s *Session) delayLocked() time.Duration {
	if s.dragging {
		return s.deps.opts.DragDelay
	}
	return s.deps.opts.IdleDelay
}

// mutate applies fn under the lock and schedules a recomputation.
func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	s.version++
	s.updatedAt = s.deps.now()
	delay := s.delayLocked()
	s.mu.Unlock()

	s.debouncer.Schedule(delay)
	return nil
}

// AddService puts a catalog service into the cart. A new service starts
// with quantity 1 and the current course length.
func (s *Session) AddService(ctx context.Context, serviceID int64) error {
	const operation = "session.AddService"

	services, err := s.deps.catalog.ListActiveServices(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	var found *pricing.Service
	for i := range services {
		if services[i].ID == serviceID {
			found = &services[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("%s: service %d: %w", operation, serviceID, ErrUnknownService)
	}

	return s.mutate(func() error {
		if s.indexOf(serviceID) >= 0 {
			return errUnchanged
		}
		sessions := pricing.MaxSessionCount(s.services, pricing.DefaultSessionFallback)
		s.services = append(s.services, pricing.SelectedService{
			Service:      *found,
			Quantity:     1,
			SessionCount: clampSessions(sessions),
		})
		return nil
	})
}

func clampSessions(n int) int {
	if n < pricing.MinSessionsPerService {
		return pricing.MinSessionsPerService
	}
	if n > pricing.MaxSessionsPerService {
		return pricing.MaxSessionsPerService
	}
	return n
}

// RemoveService drops a service and its free zone.
func (s *Session) RemoveService(serviceID int64) error {
	return s.mutate(func() error {
		i := s.indexOf(serviceID)
		if i < 0 {
			return fmt.Errorf("session.RemoveService: service %d: %w", serviceID, ErrUnknownService)
		}
		s.services = append(s.services[:i], s.services[i+1:]...)
		if z := s.freeZoneIndex(serviceID); z >= 0 {
			s.freeZones = append(s.freeZones[:z], s.freeZones[z+1:]...)
		}
		return nil
	})
}

// ServiceUpdate carries the edited fields of a cart line. Nil fields are
// left as they are; ResetPrice drops the custom price.
type ServiceUpdate struct {
	Quantity     *int
	SessionCount *int
	CustomPrice  *int64
	ResetPrice   bool
}

func (s *Session) UpdateService(serviceID int64, upd ServiceUpdate) error {
	const operation = "session.UpdateService"

	if upd.SessionCount != nil && (*upd.SessionCount < pricing.MinSessionsPerService || *upd.SessionCount > pricing.MaxSessionsPerService) {
		return fmt.Errorf("%s: %w", operation, ErrInvalidSessionCount)
	}
	if upd.Quantity != nil && *upd.Quantity < 1 {
		return fmt.Errorf("%s: %w", operation, ErrInvalidQuantity)
	}
	if upd.CustomPrice != nil && *upd.CustomPrice < 0 {
		return fmt.Errorf("%s: %w", operation, ErrInvalidPrice)
	}

	return s.mutate(func() error {
		i := s.indexOf(serviceID)
		if i < 0 {
			return fmt.Errorf("%s: service %d: %w", operation, serviceID, ErrUnknownService)
		}
		svc := &s.services[i]
		if upd.Quantity != nil {
			svc.Quantity = *upd.Quantity
		}
		if upd.SessionCount != nil {
			svc.SessionCount = *upd.SessionCount
		}
		if upd.ResetPrice {
			svc.CustomPrice = nil
		} else if upd.CustomPrice != nil {
			price := *upd.CustomPrice
			svc.CustomPrice = &price
		}
		if z := s.freeZoneIndex(serviceID); z >= 0 {
			s.freeZones[z] = pricing.NewFreeZone(*svc)
		}
		return nil
	})
}

// ToggleFreeZone turns a cart line into a gift or back.
func (s *Session) ToggleFreeZone(serviceID int64) error {
	return s.mutate(func() error {
		i := s.indexOf(serviceID)
		if i < 0 {
			return fmt.Errorf("session.ToggleFreeZone: service %d: %w", serviceID, ErrUnknownService)
		}
		if z := s.freeZoneIndex(serviceID); z >= 0 {
			s.freeZones = append(s.freeZones[:z], s.freeZones[z+1:]...)
			return nil
		}
		s.freeZones = append(s.freeZones, pricing.NewFreeZone(s.services[i]))
		return nil
	})
}

// SetDownPayment stores the requested first payment. It is fitted into
// the selected package bounds on the next recomputation.
func (s *Session) SetDownPayment(amount int64) error {
	if amount < 0 {
		amount = 0
	}
	return s.mutate(func() error {
		if s.adj.DownPayment == amount {
			return errUnchanged
		}
		s.adj.DownPayment = amount
		return nil
	})
}

func (s *Session) SetInstallmentMonths(ctx context.Context, months int) error {
	const operation = "session.SetInstallmentMonths"

	cfg, err := s.currentConfig(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if !cfg.Settings.ValidInstallmentMonths(months) {
		return fmt.Errorf("%s: %d: %w", operation, months, ErrInstallmentMonths)
	}

	return s.mutate(func() error {
		if s.adj.InstallmentMonths == months {
			return errUnchanged
		}
		s.adj.InstallmentMonths = months
		return nil
	})
}

// SetUsedCertificate toggles the certificate. Turning it on requires the
// current course to reach the certificate minimum.
func (s *Session) SetUsedCertificate(ctx context.Context, used bool) error {
	const operation = "session.SetUsedCertificate"

	cfg, err := s.currentConfig(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	return s.mutate(func() error {
		if used && !pricing.CertificateEligible(pricing.BaseCost(s.services, s.freeZones), cfg.Settings) {
			return fmt.Errorf("%s: %w", operation, ErrCertificateNotEligible)
		}
		if s.adj.UsedCertificate == used {
			return errUnchanged
		}
		s.adj.UsedCertificate = used
		return nil
	})
}

// SetCorrectionPercent stores the manual correction clamped to [0, 10].
func (s *Session) SetCorrectionPercent(percent float64) error {
	percent = pricing.ClampCorrection(percent)
	return s.mutate(func() error {
		if s.adj.CorrectionPercent == percent {
			return errUnchanged
		}
		s.adj.CorrectionPercent = percent
		return nil
	})
}

// SetManualGiftSessions overrides the gift sessions of one package.
func (s *Session) SetManualGiftSessions(t pricing.PackageType, count int) error {
	const operation = "session.SetManualGiftSessions"

	if !t.Valid() {
		return fmt.Errorf("%s: unknown package type %q", operation, t)
	}
	if count < 0 {
		return fmt.Errorf("%s: %w", operation, ErrInvalidGiftSessions)
	}
	return s.mutate(func() error {
		if current, ok := s.adj.ManualGiftSessions[t]; ok && current == count {
			return errUnchanged
		}
		s.adj.ManualGiftSessions[t] = count
		return nil
	})
}

// ClearManualGiftSessions restores the package default.
func (s *Session) ClearManualGiftSessions(t pricing.PackageType) error {
	return s.mutate(func() error {
		if _, ok := s.adj.ManualGiftSessions[t]; !ok {
			return errUnchanged
		}
		delete(s.adj.ManualGiftSessions, t)
		return nil
	})
}

// SelectPackage settles pending work and selects t. The down payment is
// reset to the package minimum.
func (s *Session) SelectPackage(ctx context.Context, t pricing.PackageType) error {
	const operation = "session.SelectPackage"

	if !t.Valid() {
		return fmt.Errorf("%s: unknown package type %q", operation, t)
	}
	if err := s.Settle(ctx); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	s.mu.Lock()
	pp, ok := s.result.Package(t)
	if !ok || !pp.IsAvailable {
		s.mu.Unlock()
		return fmt.Errorf("%s: %s: %w", operation, t, ErrPackageUnavailable)
	}
	s.selected = &t
	s.adj.DownPayment = pp.MinDownPayment()
	s.version++
	s.updatedAt = s.deps.now()
	s.applyLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.persist(ctx, state)
	return nil
}

func (s *Session) ClearPackage() error {
	return s.mutate(func() error {
		if s.selected == nil {
			return errUnchanged
		}
		s.selected = nil
		return nil
	})
}

// BeginDrag switches recomputation to the drag delay.
func (s *Session) BeginDrag() {
	s.mu.Lock()
	s.dragging = true
	s.mu.Unlock()
}

// EndDrag leaves drag mode and flushes a pending recomputation immediately.
func (s *Session) EndDrag() {
	s.mu.Lock()
	s.dragging = false
	pending := s.computed != s.version
	delay := s.deps.opts.IdleDelay
	s.mu.Unlock()

	if pending {
		s.debouncer.Schedule(delay)
	}
}

// Reset empties the cart and restores default controls.
func (s *Session) Reset() error {
	return s.mutate(func() error {
		s.services = nil
		s.freeZones = nil
		months := 0
		if s.hasConfig {
			months = s.config.Settings.DefaultInstallment()
		}
		s.adj = pricing.Adjustments{
			InstallmentMonths:  months,
			ManualGiftSessions: map[pricing.PackageType]int{},
		}
		s.selected = nil
		s.dragging = false
		return nil
	})
}

// Settle cancels the pending timer and recomputes synchronously.
func (s *Session) Settle(ctx context.Context) error {
	s.debouncer.Cancel()
	return s.recompute(ctx)
}

func (s *Session) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.opts.ComputeTimeout)
	defer cancel()

	if err := s.recompute(ctx); err != nil {
		s.deps.logger.Error("Session recomputation failed",
			zap.String("session_id", s.id),
			zap.Error(err))
	}
}

func (s *Session) recompute(ctx context.Context) error {
	const operation = "session.recompute"

	s.computeMu.Lock()
	defer s.computeMu.Unlock()

	cfg, err := s.deps.config.PricingConfig(ctx)
	if err != nil {
		return fmt.Errorf("%s: load config: %w", operation, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.config = cfg
	s.hasConfig = true
	s.applyLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.persist(ctx, state)
	return nil
}

// applyLocked prices the current state and enforces the selection rules:
// an unavailable selection is dropped and the down payment is refitted.
func (s *Session) applyLocked() {
	settings := s.config.Settings
	if s.adj.InstallmentMonths != 0 && !settings.ValidInstallmentMonths(s.adj.InstallmentMonths) {
		s.adj.InstallmentMonths = settings.DefaultInstallment()
	}
	if s.adj.InstallmentMonths == 0 {
		s.adj.InstallmentMonths = settings.DefaultInstallment()
	}

	sel := pricing.Selection{Services: s.services, FreeZones: s.freeZones}
	result := pricing.Quote(sel, s.adj, s.config)

	if s.selected != nil {
		pp, ok := result.Package(*s.selected)
		if !ok || !pp.IsAvailable {
			s.deps.logger.Info("Selected package became unavailable",
				zap.String("session_id", s.id),
				zap.String("package", string(*s.selected)))
			s.selected = nil
		} else if clamped := pp.ClampDownPayment(s.adj.DownPayment); clamped != s.adj.DownPayment {
			s.adj.DownPayment = clamped
			result = pricing.Quote(sel, s.adj, s.config)
		}
	}

	s.result = result
	s.computed = s.version
}

func (s *Session) stateLocked() *redis.SessionState {
	state := &redis.SessionState{
		ID:          s.id,
		MasterID:    s.masterID,
		Services:    append([]pricing.SelectedService(nil), s.services...),
		FreeZones:   append([]pricing.FreeZone(nil), s.freeZones...),
		Adjustments: copyAdjustments(s.adj),
		Version:     s.version,
		UpdatedAt:   s.updatedAt,
	}
	if s.selected != nil {
		t := *s.selected
		state.SelectedPackage = &t
	}
	return state
}

func (s *Session) persist(ctx context.Context, state *redis.SessionState) {
	if s.deps.store == nil {
		return
	}
	if err := s.deps.store.SetSessionState(ctx, state); err != nil {
		s.deps.logger.Warn("Failed to persist session state",
			zap.String("session_id", s.id),
			zap.Error(err))
	}
}

// currentConfig returns the last snapshot, loading one if the session has
// not been priced yet.
func (s *Session) currentConfig(ctx context.Context) (pricing.Config, error) {
	s.mu.Lock()
	if s.hasConfig {
		cfg := s.config
		s.mu.Unlock()
		return cfg, nil
	}
	s.mu.Unlock()

	cfg, err := s.deps.config.PricingConfig(ctx)
	if err != nil {
		return pricing.Config{}, fmt.Errorf("load config: %w", err)
	}
	s.mu.Lock()
	if !s.hasConfig {
		s.config = cfg
		s.hasConfig = true
	}
	s.mu.Unlock()
	return cfg, nil
}

// close stops the session timer; later recomputations become no-ops.
func (s *Session) close() {
	s.debouncer.Cancel()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
