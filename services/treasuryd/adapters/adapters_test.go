package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"treasury/core/runtime"
	"treasury/core/types"
	"treasury/crypto"
	"treasury/native/liquidity"
	"treasury/native/oracle"
	"treasury/sandbox"
	"treasury/storage"
)

func addr(kind crypto.AddressKind, fill byte) crypto.Address {
	return crypto.NewAddress(kind, bytes.Repeat([]byte{fill}, 20))
}

func TestOracleClientDecodesLayouts(t *testing.T) {
	feed := addr(crypto.Originated, 0x30)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/views/"+feed.String(), r.URL.Path)
		require.Equal(t, "key", r.Header.Get("X-API-Key"))
		switch r.URL.Query().Get("asset") {
		case "XTZ-USD":
			json.NewEncoder(w).Encode(viewResponse{Layout: "time_price", Value: []string{"1700000000", "1050000"}})
		case "CANDLE":
			json.NewEncoder(w).Encode(viewResponse{Layout: "candle", Value: []string{
				"2023-11-14T22:12:20Z", "2023-11-14T22:13:20Z", "1", "2", "1", "990000", "0",
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client, err := NewOracleClient(srv.URL+"/", "key", time.Second)
	require.NoError(t, err)

	payload, err := client.GetPrice(context.Background(), feed, "XTZ-USD")
	require.NoError(t, err)
	tp, ok := payload.(oracle.TimePrice)
	require.True(t, ok)
	require.Equal(t, int64(1_700_000_000), tp.ObservedAt.Unix())
	require.Equal(t, uint64(1_050_000), tp.Price.Uint64())

	payload, err = client.GetPrice(context.Background(), feed, "CANDLE")
	require.NoError(t, err)
	candle, ok := payload.(oracle.Candle)
	require.True(t, ok)
	require.Equal(t, uint64(990_000), candle.Close.Uint64())
	require.Equal(t, int64(1_700_000_000), candle.End.Unix())

	_, err = client.GetPrice(context.Background(), feed, "NONE")
	require.True(t, errors.Is(err, oracle.ErrNoView))
}

func TestDecodeViewRejectsMalformedTuples(t *testing.T) {
	_, err := DecodeView("price_time", []string{"1"})
	require.Error(t, err)
	_, err = DecodeView("price_time", []string{"-5", "1700000000"})
	require.Error(t, err)
	_, err = DecodeView("time_price", []string{"yesterday", "5"})
	require.Error(t, err)
	_, err = DecodeView("ohlc", []string{"1", "2"})
	require.Error(t, err)

	payload, err := DecodeView("price_time", []string{"1000000", "2023-11-14T22:13:20Z"})
	require.NoError(t, err)
	require.Equal(t, oracle.LayoutPriceTime, payload.Layout())
}

type injectorSink struct {
	mu       sync.Mutex
	keys     []string
	batches  []Batch
	failures int
}

func (s *injectorSink) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/operations", r.URL.Path)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failures > 0 {
			s.failures--
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var batch Batch
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		s.keys = append(s.keys, r.Header.Get("Idempotency-Key"))
		s.batches = append(s.batches, batch)
		w.WriteHeader(http.StatusAccepted)
	})
}

func TestInjectorForwardsCommittedRemoteOperations(t *testing.T) {
	var (
		executor  = addr(crypto.ImplicitEd25519, 0x02)
		liqAddr   = addr(crypto.Originated, 0x10)
		tokenAddr = addr(crypto.Originated, 0x12)
		poolAddr  = addr(crypto.Originated, 0x13)
		harbinger = addr(crypto.Originated, 0x17)
		now       = time.Unix(50_000, 0)
	)
	sink := &injectorSink{failures: 1}
	srv := httptest.NewServer(sink.handler(t))
	defer srv.Close()

	token := NewRemoteContract(tokenAddr, []string{types.EntrypointApprove, types.EntrypointTransfer, types.EntrypointGetBalance})
	pool := NewRemoteContract(poolAddr, []string{types.EntrypointInvestLiquidity})
	inj, err := NewInjector(srv.URL, "", time.Second, []*RemoteContract{token, pool}, nil)
	require.NoError(t, err)
	inj.backoff = time.Millisecond

	feeds := sandbox.NewFeeds()
	feeds.SetTimePrice(harbinger, 2_000_000, now)
	host, err := runtime.NewHost(runtime.Config{DB: storage.NewMemDB(), Views: feeds, Clock: func() time.Time { return now }})
	require.NoError(t, err)
	require.NoError(t, host.RegisterCollaborator(token))
	require.NoError(t, host.RegisterCollaborator(pool))
	host.AddObserver(inj)
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inj.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	lq := liquidity.DefaultStorage()
	lq.Governor = executor
	lq.Executor = executor
	lq.Token = tokenAddr
	lq.AMM = poolAddr
	lq.Oracle = harbinger
	ctx := context.Background()
	require.NoError(t, host.Deploy(ctx, "liquidity", liqAddr, &runtime.LiquidityContract{Initial: lq}))
	_, err = host.Apply(ctx, "fund", func(env runtime.Env) ([]types.Operation, error) {
		return nil, env.State.CreditNative(liqAddr, uint256.NewInt(3_000_000))
	})
	require.NoError(t, err)

	tokens := new(uint256.Int).Mul(uint256.NewInt(2), oracle.Precision)
	payload, err := json.Marshal(liquidity.AddLiquidityParams{Tokens: tokens, Mutez: uint256.NewInt(1_000_000)})
	require.NoError(t, err)
	receipt, err := host.Invoke(ctx, types.Invocation{
		Target:     liqAddr,
		Entrypoint: liquidity.EntrypointAddLiquidity,
		Sender:     executor,
		Payload:    payload,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.batches) == 1
	}, 2*time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.batches, 1)
	require.Equal(t, []string{receipt.ID}, sink.keys)
	batch := sink.batches[0]
	require.Equal(t, "liquidity", batch.Controller)
	require.Equal(t, receipt.Digest, batch.Digest)
	require.Len(t, batch.Operations, 2)
	require.Equal(t, types.EntrypointApprove, batch.Operations[0].Entrypoint)
	require.Equal(t, types.EntrypointInvestLiquidity, batch.Operations[1].Entrypoint)
	require.Equal(t, uint64(1_000_000), batch.Operations[1].Amount.Uint64())
}

func TestInjectorSkipsFailedReceiptsAndClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "rejected", http.StatusBadRequest)
	}))
	defer srv.Close()

	target := addr(crypto.Originated, 0x12)
	inj, err := NewInjector(srv.URL, "", time.Second, []*RemoteContract{NewRemoteContract(target, []string{"approve"})}, nil)
	require.NoError(t, err)
	inj.backoff = time.Millisecond

	op := types.Operation{Target: target, Entrypoint: "approve"}
	inj.ObserveReceipt(context.Background(), &runtime.Receipt{ID: "failed", Status: runtime.StatusFailed, Operations: []types.Operation{op}})
	require.Zero(t, calls)

	err = inj.Forward(context.Background(), Batch{ReceiptID: "not-a-uuid", Operations: []types.Operation{op}})
	require.ErrorContains(t, err, "status 400")
	require.Equal(t, 1, calls)
}

func TestInjectorQueuesWithoutBlockingObservers(t *testing.T) {
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		keys []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	target := addr(crypto.Originated, 0x12)
	inj, err := NewInjector(srv.URL, "", 5*time.Second, []*RemoteContract{NewRemoteContract(target, []string{"approve"})}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inj.Run(ctx) }()

	op := types.Operation{Target: target, Entrypoint: "approve"}
	ids := []string{
		"0f8fad5b-d9cb-469f-a165-70867728950e",
		"7c9e6679-7425-40de-944b-e07fc1f90ae7",
	}
	returned := make(chan struct{})
	go func() {
		for _, id := range ids {
			inj.ObserveReceipt(context.Background(), &runtime.Receipt{ID: id, Status: runtime.StatusCommitted, Operations: []types.Operation{op}})
		}
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatalf("observer blocked on a stalled injector endpoint")
	}

	cancel()
	close(release)
	require.ErrorIs(t, <-done, context.Canceled)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, ids, keys)

	inj.ObserveReceipt(context.Background(), &runtime.Receipt{ID: ids[0], Status: runtime.StatusCommitted, Operations: []types.Operation{op}})
	require.Len(t, keys, 2)
}
