package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
	"github.com/madfam-io/renec-harvester-sub000/internal/hash/sha256"
)

func TestNewChromedp_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewChromedp(Config{MaxParallel: -1}, sha256.New())
	require.Error(t, err)

	_, err = NewChromedp(Config{}, nil)
	require.Error(t, err)
}

func TestNewChromedp_Defaults(t *testing.T) {
	t.Parallel()
	f, err := NewChromedp(Config{}, sha256.New())
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, defaultNavTimeout, f.cfg.NavigationTimeout)
	require.Equal(t, defaultBodySampleCap, f.cfg.BodySampleCap)
	require.Nil(t, f.limiter, "no limiter when MaxParallel is 0")
}

func TestFetcher_LimiterBlocksAndCancels(t *testing.T) {
	t.Parallel()
	f, err := NewChromedp(Config{MaxParallel: 1}, sha256.New())
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = f.acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	f.release()
	require.NoError(t, f.acquire(context.Background()))
	f.release()
}

func TestExchangeLog_TracksBackgroundTrafficOnly(t *testing.T) {
	t.Parallel()
	log := newExchangeLog()

	log.captureEvent(&network.EventRequestWillBeSent{
		RequestID: "req-1",
		Type:      network.ResourceTypeXHR,
		Request:   &network.Request{Method: "POST"},
	})
	log.captureEvent(&network.EventResponseReceived{
		RequestID: "req-1",
		Type:      network.ResourceTypeXHR,
		Response:  &network.Response{URL: "https://reg.test/controlador.do?accion=consultar", Status: 200},
	})
	// Images and scripts are ignored.
	log.captureEvent(&network.EventResponseReceived{
		RequestID: "req-2",
		Type:      network.ResourceTypeImage,
		Response:  &network.Response{URL: "https://reg.test/logo.png", Status: 200},
	})
	// The document response only feeds the page status.
	log.captureEvent(&network.EventResponseReceived{
		RequestID: "req-3",
		Type:      network.ResourceTypeDocument,
		Response:  &network.Response{URL: "https://reg.test/", Status: 200},
	})

	pending := log.snapshot()
	require.Len(t, pending, 1)
	require.Equal(t, "POST", pending[0].method)
	require.Equal(t, 200, pending[0].status)
	require.Equal(t, 200, log.documentStatus())
}

func TestExchangeLog_ExchangesInObservationOrder(t *testing.T) {
	t.Parallel()
	log := newExchangeLog()
	for i, id := range []network.RequestID{"a", "b", "c"} {
		log.captureEvent(&network.EventResponseReceived{
			RequestID: id,
			Type:      network.ResourceTypeFetch,
			Response:  &network.Response{URL: string(id), Status: 200 + int64(i)},
		})
	}
	// Body retrieval failed for "b", so it stays unresolved.
	log.resolve("a", harvester.InterceptedExchange{URL: "a", BodyHash: "h1"})
	log.resolve("c", harvester.InterceptedExchange{URL: "c", BodyHash: "h3"})

	out := log.exchanges()
	require.Len(t, out, 2)
	require.Equal(t, "a", out[0].URL)
	require.Equal(t, "c", out[1].URL)
}

func TestNoop_AlwaysErrors(t *testing.T) {
	t.Parallel()
	_, err := NewNoop().Fetch(context.Background(), "https://reg.test/", harvester.FetchOptions{})
	require.Error(t, err)
}
