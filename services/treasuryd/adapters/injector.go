package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"treasury/core/runtime"
	"treasury/core/types"
	"treasury/crypto"
)

const (
	injectorAttempts  = 3
	injectorQueueSize = 256
)

// RemoteContract stands in for a contract living outside the host. It accepts
// the configured entrypoints; the operations addressed to it are forwarded by
// the Injector once the emitting unit commits.
type RemoteContract struct {
	addr        crypto.Address
	entrypoints map[string]struct{}
}

// NewRemoteContract declares a remote contract at addr.
func NewRemoteContract(addr crypto.Address, entrypoints []string) *RemoteContract {
	set := make(map[string]struct{}, len(entrypoints))
	for _, ep := range entrypoints {
		if ep = strings.TrimSpace(ep); ep != "" {
			set[ep] = struct{}{}
		}
	}
	return &RemoteContract{addr: addr, entrypoints: set}
}

func (r *RemoteContract) Address() crypto.Address { return r.addr }

func (r *RemoteContract) HasEntrypoint(entrypoint string) bool {
	_, ok := r.entrypoints[entrypoint]
	return ok
}

// Apply accepts the operation. Remote replies, such as balance callbacks,
// come back later as ordinary invocations.
func (r *RemoteContract) Apply(context.Context, runtime.Env, types.Operation) ([]types.Operation, error) {
	return nil, nil
}

// Batch is the body posted to the injector.
type Batch struct {
	ReceiptID  string            `json:"receiptId"`
	Controller string            `json:"controller"`
	Digest     string            `json:"digest"`
	Operations []types.Operation `json:"operations"`
}

// Injector forwards the operations of committed receipts that target remote
// contracts to POST {endpoint}/v1/operations. The receipt id is the
// idempotency key, so a retried batch is applied at most once downstream.
//
// ObserveReceipt only queues the batch; Run delivers queued batches in commit
// order.
type Injector struct {
	endpoint string
	apiKey   string
	client   *http.Client
	remotes  map[crypto.Address]*RemoteContract
	logger   *slog.Logger
	backoff  time.Duration

	queue   chan Batch
	stopped chan struct{}
}

// NewInjector constructs an injector for the given remote contracts.
func NewInjector(endpoint, apiKey string, timeout time.Duration, remotes []*RemoteContract, logger *slog.Logger) (*Injector, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("injector endpoint required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	inj := &Injector{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		remotes:  make(map[crypto.Address]*RemoteContract, len(remotes)),
		logger:   logger,
		backoff:  250 * time.Millisecond,
		queue:    make(chan Batch, injectorQueueSize),
		stopped:  make(chan struct{}),
	}
	for _, r := range remotes {
		inj.remotes[r.Address()] = r
	}
	return inj, nil
}

// ObserveReceipt implements runtime.Observer. It blocks only while the queue
// is full and Run is still draining it.
func (i *Injector) ObserveReceipt(_ context.Context, receipt *runtime.Receipt) {
	if !receipt.Committed() {
		return
	}
	batch := i.batchFor(receipt)
	if len(batch.Operations) == 0 {
		return
	}
	select {
	case <-i.stopped:
	default:
		select {
		case i.queue <- batch:
			return
		case <-i.stopped:
		}
	}
	i.logger.Error("injector: stopped, batch not forwarded",
		slog.String("receipt", receipt.ID),
		slog.Int("operations", len(batch.Operations)))
}

// Run forwards queued batches until ctx is cancelled, then flushes what is
// already queued.
func (i *Injector) Run(ctx context.Context) error {
	defer close(i.stopped)
	for {
		select {
		case <-ctx.Done():
			i.flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case batch := <-i.queue:
			i.deliver(context.WithoutCancel(ctx), batch)
		}
	}
}

func (i *Injector) flush(ctx context.Context) {
	for {
		select {
		case batch := <-i.queue:
			i.deliver(ctx, batch)
		default:
			return
		}
	}
}

func (i *Injector) deliver(ctx context.Context, batch Batch) {
	if err := i.Forward(ctx, batch); err != nil {
		i.logger.Error("injector: forward failed",
			slog.String("receipt", batch.ReceiptID),
			slog.Int("operations", len(batch.Operations)),
			slog.String("error", err.Error()))
	}
}

func (i *Injector) batchFor(receipt *runtime.Receipt) Batch {
	batch := Batch{ReceiptID: receipt.ID, Controller: receipt.Controller, Digest: receipt.Digest}
	for _, op := range receipt.Operations {
		if _, ok := i.remotes[op.Target]; ok {
			batch.Operations = append(batch.Operations, op)
		}
	}
	return batch
}

// Forward posts batch, retrying transport errors and 5xx responses.
func (i *Injector) Forward(ctx context.Context, batch Batch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("injector: encode batch: %w", err)
	}
	key := batch.ReceiptID
	if _, err := uuid.Parse(key); err != nil {
		key = uuid.NewSHA1(uuid.NameSpaceOID, body).String()
	}
	var lastErr error
	for attempt := 0; attempt < injectorAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(i.backoff * time.Duration(attempt)):
			}
		}
		retry, err := i.post(ctx, key, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func (i *Injector) post(ctx context.Context, key string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpoint+"/v1/operations", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	if i.apiKey != "" {
		req.Header.Set("X-API-Key", i.apiKey)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("injector: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("injector: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	return resp.StatusCode >= 500, err
}
