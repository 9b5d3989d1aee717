package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// ManagerOptions holds the collaborators shared by every supervisor.
type ManagerOptions struct {
	// Repository supplies gateway configuration. Required.
	Repository Repository

	// Queue receives inbound messages from every gateway. Required.
	Queue Enqueuer

	Sink    StatusSink
	Logger  Logger
	Metrics *Metrics
	Config  SupervisorConfig

	// Factories build transports by network type.
	Factories map[message.NetworkType]Factory
}

// Manager owns one Supervisor per running gateway.
type Manager struct {
	repo    Repository
	queue   Enqueuer
	sink    StatusSink
	logger  Logger
	metrics *Metrics
	cfg     SupervisorConfig

	mu          sync.RWMutex
	factories   map[message.NetworkType]Factory
	supervisors map[int64]*Supervisor
	closed      bool
}

// NewManager creates a gateway manager.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Repository == nil {
		return nil, errors.New("gateway: repository is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("gateway: queue is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	m := &Manager{
		repo:        opts.Repository,
		queue:       opts.Queue,
		sink:        opts.Sink,
		logger:      logger,
		metrics:     opts.Metrics,
		cfg:         opts.Config,
		factories:   make(map[message.NetworkType]Factory),
		supervisors: make(map[int64]*Supervisor),
	}
	for nt, f := range opts.Factories {
		m.factories[nt] = f
	}
	return m, nil
}

// RegisterFactory sets the transport factory for a network type.
func (m *Manager) RegisterFactory(nt message.NetworkType, f Factory) {
	m.mu.Lock()
	m.factories[nt] = f
	m.mu.Unlock()
}

// StartAll starts every enabled gateway. A gateway that fails its first
// connect is left in ERROR and does not prevent the others from starting;
// all failures are returned joined.
func (m *Manager) StartAll(ctx context.Context) error {
	gateways, err := m.repo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("loading enabled gateways: %w", err)
	}

	var errs []error
	for _, gw := range gateways {
		if err := m.start(ctx, gw); err != nil {
			m.logger.Error("gateway failed to start",
				"gateway_id", gw.ID,
				"gateway", gw.Name,
				"error", err,
			)
			errs = append(errs, err)
		}
	}

	m.logger.Info("gateways started", "total", len(gateways), "failed", len(errs))
	return errors.Join(errs...)
}

// StartGateway starts one gateway, or retries the first connect of a
// gateway left in ERROR. A gateway that was stopped gets a new supervisor.
func (m *Manager) StartGateway(ctx context.Context, id int64) error {
	m.mu.RLock()
	sup := m.supervisors[id]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return ErrManagerClosed
	}
	if sup != nil && !sup.Stopped() {
		return sup.Start(ctx)
	}

	gw, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return m.start(ctx, gw)
}

func (m *Manager) start(ctx context.Context, gw *Gateway) error {
	if !gw.Enabled {
		return fmt.Errorf("%w: id %d", ErrGatewayDisabled, gw.ID)
	}
	if err := gw.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if existing := m.supervisors[gw.ID]; existing != nil && !existing.Stopped() {
		m.mu.Unlock()
		return existing.Start(ctx)
	}

	factory, ok := m.factories[gw.NetworkType]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnsupportedNetwork, gw.NetworkType)
	}

	transport, err := factory(gw, m.logger)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("creating %s transport for gateway %d: %w", gw.NetworkType, gw.ID, err)
	}

	sup, err := NewSupervisor(SupervisorOptions{
		Gateway:   gw,
		Transport: transport,
		Queue:     m.queue,
		Sink:      m.sink,
		Logger:    m.logger,
		Metrics:   m.metrics,
		Config:    m.cfg,
	})
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.supervisors[gw.ID] = sup
	m.mu.Unlock()

	return sup.Start(ctx)
}

// StopGateway stops a running gateway. Stopping an unknown or already
// stopped gateway returns ErrGatewayNotFound or nil respectively.
func (m *Manager) StopGateway(ctx context.Context, id int64) error {
	sup, ok := m.Supervisor(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrGatewayNotFound, id)
	}
	return sup.Stop(ctx)
}

// Publish sends payload through a gateway's transport.
func (m *Manager) Publish(ctx context.Context, id int64, subData string, payload []byte) error {
	sup, ok := m.Supervisor(id)
	if !ok || sup.Stopped() {
		return fmt.Errorf("%w: gateway %d", ErrNotConnected, id)
	}
	return sup.Publish(ctx, subData, payload)
}

// Supervisor returns the supervisor for a gateway, if one was created.
func (m *Manager) Supervisor(id int64) (*Supervisor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sup, ok := m.supervisors[id]
	return sup, ok
}

// List returns every configured gateway. Gateways with a supervisor report
// their live status, the rest their last persisted status.
func (m *Manager) List(ctx context.Context) ([]Snapshot, error) {
	gateways, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Snapshot, 0, len(gateways))
	for _, gw := range gateways {
		out = append(out, m.snapshot(gw))
	}
	return out, nil
}

// Get returns one gateway's snapshot.
func (m *Manager) Get(ctx context.Context, id int64) (Snapshot, error) {
	if sup, ok := m.Supervisor(id); ok {
		return sup.Gateway().Snapshot(), nil
	}
	gw, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return gw.Snapshot(), nil
}

func (m *Manager) snapshot(gw *Gateway) Snapshot {
	if sup, ok := m.Supervisor(gw.ID); ok {
		return sup.Gateway().Snapshot()
	}
	return gw.Snapshot()
}

// Close stops every supervisor concurrently and rejects further starts.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sups := make([]*Supervisor, 0, len(m.supervisors))
	for _, sup := range m.supervisors {
		sups = append(sups, sup)
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, sup := range sups {
		g.Go(func() error {
			return sup.Stop(ctx)
		})
	}
	return g.Wait()
}
