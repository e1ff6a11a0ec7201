package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	coreerrors "treasury/core/errors"
	"treasury/core/events"
	"treasury/core/state"
	"treasury/core/types"
	"treasury/crypto"
	"treasury/native/common"
	"treasury/native/oracle"
	"treasury/observability"
	"treasury/storage"
)

// DefaultMaxOperations bounds the operations delivered in one unit, callbacks
// included.
const DefaultMaxOperations = 128

var (
	errUnknownController = errors.New("runtime: no controller at target")
	errOperationLimit    = errors.New("runtime: operation limit exceeded")
	errAlreadyDeployed   = errors.New("runtime: address already in use")

	// ErrDuplicateInvocation is returned by Invoke for an id that already ran.
	ErrDuplicateInvocation = errors.New("runtime: invocation id already used")
)

// Env is what contracts and collaborators see while a unit runs. State writes
// go to the unit's overlay and Emitter buffers events until commit.
type Env struct {
	State    *state.Manager
	Emitter  events.Emitter
	Views    oracle.View
	Resolver types.EntrypointResolver
	Pauses   common.PauseView
	Now      time.Time
}

// Collaborator is an external contract (token, pool) the controllers call.
// Apply returns the operations the collaborator emits in response, such as
// balance callbacks.
type Collaborator interface {
	Address() crypto.Address
	HasEntrypoint(entrypoint string) bool
	Apply(ctx context.Context, env Env, op types.Operation) ([]types.Operation, error)
}

// Config wires the host to its dependencies.
type Config struct {
	DB            storage.Database
	Views         oracle.View
	Pauses        common.PauseView
	Sink          events.Emitter
	Clock         func() time.Time
	Logger        *slog.Logger
	MaxOperations int
}

type deployment struct {
	name     string
	contract Contract
}

// Host deploys controllers and runs invocations one at a time. Each
// invocation, together with every operation it causes, either commits as a
// whole or leaves state untouched.
type Host struct {
	mu sync.Mutex

	regMu         sync.RWMutex
	contracts     map[crypto.Address]deployment
	names         map[string]crypto.Address
	collaborators map[crypto.Address]Collaborator
	observers     []Observer

	db      storage.Database
	views   oracle.View
	pauses  common.PauseView
	sink    events.Emitter
	clock   func() time.Time
	logger  *slog.Logger
	tracer  trace.Tracer
	maxOps  int
	metrics *observability.TreasuryMetrics
}

// NewHost constructs a host over cfg.DB.
func NewHost(cfg Config) (*Host, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("runtime: database required")
	}
	h := &Host{
		contracts:     make(map[crypto.Address]deployment),
		names:         make(map[string]crypto.Address),
		collaborators: make(map[crypto.Address]Collaborator),
		db:            cfg.DB,
		views:         cfg.Views,
		pauses:        cfg.Pauses,
		sink:          cfg.Sink,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		tracer:        otel.Tracer("treasury/runtime"),
		maxOps:        cfg.MaxOperations,
		metrics:       observability.Treasury(),
	}
	if h.sink == nil {
		h.sink = events.NoopEmitter{}
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.maxOps <= 0 {
		h.maxOps = DefaultMaxOperations
	}
	return h, nil
}

// SetViews replaces the oracle view resolver.
func (h *Host) SetViews(v oracle.View) {
	h.mu.Lock()
	h.views = v
	h.mu.Unlock()
}

// Now returns the host clock.
func (h *Host) Now() time.Time { return h.clock() }

// AddObserver registers an observer for every subsequent receipt.
func (h *Host) AddObserver(o Observer) {
	if o == nil {
		return
	}
	h.regMu.Lock()
	h.observers = append(h.observers, o)
	h.regMu.Unlock()
}

// RegisterCollaborator makes an external contract reachable by operations.
func (h *Host) RegisterCollaborator(c Collaborator) error {
	if c == nil || c.Address().IsZero() {
		return fmt.Errorf("runtime: collaborator address required")
	}
	h.regMu.Lock()
	defer h.regMu.Unlock()
	if _, ok := h.contracts[c.Address()]; ok {
		return errAlreadyDeployed
	}
	h.collaborators[c.Address()] = c
	return nil
}

// Deploy installs contract at addr under name, writes its initial storage
// and registers it in state. Redeploying an existing registration with the
// same name reattaches the engine without touching storage.
func (h *Host) Deploy(ctx context.Context, name string, addr crypto.Address, contract Contract) error {
	if contract == nil || addr.IsZero() || name == "" {
		return fmt.Errorf("runtime: deployment requires name, address and contract")
	}
	if !addr.IsContract() {
		return fmt.Errorf("runtime: controller address %s is not an originated contract", addr)
	}
	h.regMu.Lock()
	if _, ok := h.collaborators[addr]; ok {
		h.regMu.Unlock()
		return errAlreadyDeployed
	}
	if existing, ok := h.names[name]; ok && existing != addr {
		h.regMu.Unlock()
		return fmt.Errorf("runtime: controller %q already bound to %s", name, existing)
	}
	h.contracts[addr] = deployment{name: name, contract: contract}
	h.names[name] = addr
	h.regMu.Unlock()

	_, err := h.Apply(ctx, "deploy:"+name, func(env Env) ([]types.Operation, error) {
		existing, err := env.State.Controller(name)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Address == addr.String() {
			return nil, nil
		}
		if err := contract.Initialise(env, addr); err != nil {
			return nil, err
		}
		return nil, env.State.RegisterController(name, contract.Kind(), addr)
	})
	return err
}

// Lookup resolves a deployed controller by name.
func (h *Host) Lookup(name string) (crypto.Address, Contract, bool) {
	h.regMu.RLock()
	defer h.regMu.RUnlock()
	addr, ok := h.names[name]
	if !ok {
		return crypto.Address{}, nil, false
	}
	return addr, h.contracts[addr].contract, true
}

// Names lists the deployed controller names.
func (h *Host) Names() map[string]crypto.Address {
	h.regMu.RLock()
	defer h.regMu.RUnlock()
	out := make(map[string]crypto.Address, len(h.names))
	for name, addr := range h.names {
		out[name] = addr
	}
	return out
}

// HasEntrypoint implements types.EntrypointResolver over deployed controllers,
// registered collaborators and implicit accounts.
func (h *Host) HasEntrypoint(addr crypto.Address, entrypoint string) bool {
	if addr.IsZero() {
		return false
	}
	h.regMu.RLock()
	defer h.regMu.RUnlock()
	if d, ok := h.contracts[addr]; ok {
		return d.contract.HasEntrypoint(entrypoint)
	}
	if c, ok := h.collaborators[addr]; ok {
		return c.HasEntrypoint(entrypoint)
	}
	return !addr.IsContract() && entrypoint == types.EntrypointDefault
}

// Read runs fn against committed state. Writes made by fn are discarded.
func (h *Host) Read(fn func(env Env) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	overlay := storage.NewOverlay(h.db)
	defer overlay.Discard()
	return fn(h.env(overlay, &events.Buffer{}))
}

// ControllerStorage returns the storage record of the named controller.
func (h *Host) ControllerStorage(name string) (any, error) {
	addr, contract, ok := h.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownController, name)
	}
	var out any
	err := h.Read(func(env Env) error {
		st, err := contract.Storage(env, addr)
		out = st
		return err
	})
	return out, err
}

// Invoke runs one controller entrypoint and every operation it causes. The
// returned error is the failure that rolled the unit back; the receipt is
// returned in both cases.
func (h *Host) Invoke(ctx context.Context, inv types.Invocation) (*Receipt, error) {
	h.regMu.RLock()
	d, ok := h.contracts[inv.Target]
	h.regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownController, inv.Target)
	}
	if !d.contract.HasEntrypoint(inv.Entrypoint) {
		return nil, fmt.Errorf("runtime: controller %s has no entrypoint %q", d.name, inv.Entrypoint)
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	first := types.Operation{
		Kind:       types.OperationTransaction,
		Source:     inv.Sender,
		Target:     inv.Target,
		Entrypoint: inv.Entrypoint,
		Amount:     inv.Amount,
		Params:     inv.Payload,
	}
	receipt := &Receipt{
		ID:         inv.ID,
		Controller: d.name,
		Target:     inv.Target,
		Entrypoint: inv.Entrypoint,
		Sender:     inv.Sender,
	}
	return h.run(ctx, receipt, true, func(env Env) ([]types.Operation, error) {
		return []types.Operation{first}, nil
	})
}

// Apply runs fn as an atomic unit and delivers the operations it returns.
// label names the unit in receipts and logs.
func (h *Host) Apply(ctx context.Context, label string, fn func(env Env) ([]types.Operation, error)) (*Receipt, error) {
	receipt := &Receipt{ID: uuid.NewString(), Entrypoint: label}
	return h.run(ctx, receipt, false, fn)
}

func (h *Host) env(db storage.Database, emitter events.Emitter) Env {
	return Env{
		State:    state.NewManager(db),
		Emitter:  emitter,
		Views:    h.views,
		Resolver: h,
		Pauses:   h.pauses,
		Now:      h.clock(),
	}
}

// run executes one unit and hands its receipt to the observers once the host
// lock is released. claim records the receipt id so it cannot run twice.
func (h *Host) run(ctx context.Context, receipt *Receipt, claim bool, fn func(env Env) ([]types.Operation, error)) (*Receipt, error) {
	receipt, err := h.runUnit(ctx, receipt, claim, fn)
	if receipt != nil {
		h.notify(ctx, receipt)
	}
	return receipt, err
}

func (h *Host) runUnit(ctx context.Context, receipt *Receipt, claim bool, fn func(env Env) ([]types.Operation, error)) (*Receipt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if claim {
		used, err := invocationUsed(state.NewManager(h.db), receipt.ID)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInvocation, receipt.ID)
		}
	}

	ctx, span := h.tracer.Start(ctx, "runtime.unit", trace.WithAttributes(
		attribute.String("treasury.unit_id", receipt.ID),
		attribute.String("treasury.entrypoint", receipt.Entrypoint),
		attribute.String("treasury.controller", receipt.Controller),
	))
	defer span.End()

	receipt.StartedAt = h.clock()
	overlay := storage.NewOverlay(h.db)
	buffer := &events.Buffer{}
	env := h.env(overlay, buffer)

	delivered, err := h.execute(ctx, env, fn)
	if err == nil && claim {
		err = claimInvocation(env.State, receipt.ID, StatusCommitted)
	}
	if err == nil {
		err = overlay.Commit()
	}
	receipt.Duration = time.Since(receipt.StartedAt)
	if digest, digestErr := OperationsDigest(delivered); digestErr == nil {
		receipt.Digest = digest
	}
	receipt.Operations = delivered

	if err != nil {
		overlay.Discard()
		buffer.Drain()
		if claim {
			if claimErr := claimInvocation(state.NewManager(h.db), receipt.ID, StatusFailed); claimErr != nil {
				h.logger.Error("record failed invocation id",
					slog.String("id", receipt.ID),
					slog.String("error", claimErr.Error()))
			}
		}
		receipt.Status = StatusFailed
		receipt.Error = err.Error()
		codeLabel := "internal"
		if code, ok := coreerrors.CodeOf(err); ok {
			receipt.Code = uint16(code)
			codeLabel = code.String()
		}
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		h.metrics.ObserveInvocation(receipt.Entrypoint, codeLabel, receipt.Duration)
		h.logger.Warn("invocation rolled back",
			slog.String("id", receipt.ID),
			slog.String("controller", receipt.Controller),
			slog.String("entrypoint", receipt.Entrypoint),
			slog.String("error", err.Error()))
		return receipt, err
	}

	receipt.Status = StatusCommitted
	committed := buffer.Drain()
	receipt.Events = make([]*types.Event, 0, len(committed))
	for _, evt := range committed {
		receipt.Events = append(receipt.Events, events.Envelope(evt))
		observability.Events().RecordEvent(evt.EventType())
		if moved, ok := evt.(events.FundsMoved); ok {
			observability.Events().RecordTransfer(moved.Asset)
		}
		h.sink.Emit(evt)
	}
	span.SetAttributes(attribute.Int("treasury.operations", len(delivered)))
	h.metrics.ObserveInvocation(receipt.Entrypoint, "", receipt.Duration)
	h.logger.Info("invocation committed",
		slog.String("id", receipt.ID),
		slog.String("controller", receipt.Controller),
		slog.String("entrypoint", receipt.Entrypoint),
		slog.Int("operations", len(delivered)),
		slog.String("digest", receipt.Digest))
	return receipt, nil
}

func (h *Host) notify(ctx context.Context, receipt *Receipt) {
	h.regMu.RLock()
	observers := append([]Observer(nil), h.observers...)
	h.regMu.RUnlock()
	for _, o := range observers {
		o.ObserveReceipt(ctx, receipt)
	}
}

// execute drains the operation queue in FIFO order. Operations emitted while
// handling an operation are appended behind everything already queued.
func (h *Host) execute(ctx context.Context, env Env, fn func(env Env) ([]types.Operation, error)) ([]types.Operation, error) {
	queue, err := fn(env)
	if err != nil {
		return nil, err
	}
	delivered := make([]types.Operation, 0, len(queue))
	for len(queue) > 0 {
		if len(delivered) >= h.maxOps {
			return delivered, errOperationLimit
		}
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		op := queue[0]
		queue = queue[1:]
		delivered = append(delivered, op)
		follow, err := h.deliver(ctx, env, op)
		if err != nil {
			return delivered, err
		}
		queue = append(queue, follow...)
	}
	return delivered, nil
}

func (h *Host) deliver(ctx context.Context, env Env, op types.Operation) ([]types.Operation, error) {
	h.metrics.RecordOperation(op.Entrypoint)
	if op.Kind == types.OperationDelegation {
		delegate := ""
		if kh, ok := op.Params.(types.SetDelegateParams); ok && kh.Delegate != nil {
			delegate = kh.Delegate.String()
		}
		return nil, env.State.KVPut(delegateKey(op.Source), delegate)
	}

	h.regMu.RLock()
	d, isController := h.contracts[op.Target]
	_, sourceIsController := h.contracts[op.Source]
	collab, isCollaborator := h.collaborators[op.Target]
	h.regMu.RUnlock()

	amount := op.AttachedAmount()
	if sourceIsController {
		if err := env.State.DebitNative(op.Source, amount); err != nil {
			if errors.Is(err, state.ErrInsufficientBalance) {
				return nil, coreerrors.New(coreerrors.CodeNotEnoughTokens, "%v", err)
			}
			return nil, err
		}
	}

	switch {
	case isController:
		if !d.contract.HasEntrypoint(op.Entrypoint) {
			return nil, missingEntrypoint(op)
		}
		if err := env.State.CreditNative(op.Target, amount); err != nil {
			return nil, err
		}
		payload, err := encodeParams(op.Params)
		if err != nil {
			return nil, err
		}
		balance, err := env.State.NativeBalance(op.Target)
		if err != nil {
			return nil, err
		}
		call := types.CallContext{
			Self:    op.Target,
			Sender:  op.Source,
			Amount:  amount,
			Balance: balance,
			Now:     env.Now,
		}
		return d.contract.Dispatch(ctx, env, call, op.Entrypoint, payload)
	case isCollaborator:
		if !collab.HasEntrypoint(op.Entrypoint) {
			return nil, missingEntrypoint(op)
		}
		if err := env.State.CreditNative(op.Target, amount); err != nil {
			return nil, err
		}
		return collab.Apply(ctx, env, op)
	default:
		if op.Target.IsContract() || op.Entrypoint != types.EntrypointDefault {
			return nil, missingEntrypoint(op)
		}
		return nil, env.State.CreditNative(op.Target, amount)
	}
}

// missingEntrypoint reports an operation no contract can accept. Token
// entrypoints map to the approval code, everything else to the pool code.
func missingEntrypoint(op types.Operation) error {
	switch op.Entrypoint {
	case types.EntrypointApprove, types.EntrypointTransfer, types.EntrypointGetBalance:
		return coreerrors.New(coreerrors.CodeApprovalError, "%s has no entrypoint %s", op.Target, op.Entrypoint)
	default:
		return coreerrors.New(coreerrors.CodeDexContractError, "%s has no entrypoint %s", op.Target, op.Entrypoint)
	}
}

func encodeParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case *uint256.Int:
		if p == nil {
			return nil, nil
		}
	}
	return json.Marshal(params)
}

func delegateKey(addr crypto.Address) []byte {
	return []byte("delegate:" + addr.String())
}

// Delegate returns the baker the controller at addr delegates to, or "".
func Delegate(env Env, addr crypto.Address) (string, error) {
	var out string
	if _, err := env.State.KVGet(delegateKey(addr), &out); err != nil {
		return "", err
	}
	return out, nil
}

func invocationKey(id string) []byte {
	return []byte("invocation:" + id)
}

func invocationUsed(m *state.Manager, id string) (bool, error) {
	var status string
	return m.KVGet(invocationKey(id), &status)
}

func claimInvocation(m *state.Manager, id, status string) error {
	return m.KVPut(invocationKey(id), status)
}
