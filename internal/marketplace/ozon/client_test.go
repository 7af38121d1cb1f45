package ozon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/stockwatch/internal/config"
	"github.com/vladislavdragonenkov/stockwatch/internal/gateway"
)

func testCredentials() config.CredentialSet {
	return config.CredentialSet{
		"amodecor": {
			APIKey:          "api-key",
			ClientID:        "client-1",
			AdvClientID:     "adv-id",
			AdvClientSecret: "adv-secret",
		},
		"orion": {APIKey: "k", ClientID: "3"},
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	gw := gateway.New(gateway.Config{
		MaxAttempts: 2,
		MinBackoff:  time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
		Timeout:     2 * time.Second,
	}, gateway.WithLogger(log.WithField("component", "gateway-test")))

	return New(gw, testCredentials(), Config{
		SellerURL:        srv.URL,
		PerformanceURL:   srv.URL,
		PageInterval:     0,
		ProductBatchSize: 2,
	}, log.WithField("component", "ozon-test"))
}

func decodeBody(r *http.Request, v any) {
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, v)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type sellerAPIFake struct {
	mu          sync.Mutex
	infoCalls   []string
	badHeaders  int
	stocksFails bool
}

func (f *sellerAPIFake) handler() http.Handler {
	mux := http.NewServeMux()
	check := func(r *http.Request) {
		if r.Header.Get("Client-Id") != "client-1" || r.Header.Get("Api-Key") != "api-key" {
			f.mu.Lock()
			f.badHeaders++
			f.mu.Unlock()
		}
	}

	mux.HandleFunc("/v2/product/list", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		var body productListRequest
		decodeBody(r, &body)
		switch body.LastID {
		case "":
			writeJSON(w, map[string]any{"result": map[string]any{
				"items":   []map[string]any{{"product_id": 1, "offer_id": "A-1"}, {"product_id": 2, "offer_id": "A-2"}},
				"last_id": "p2",
			}})
		case "p2":
			writeJSON(w, map[string]any{"result": map[string]any{
				"items":   []map[string]any{{"product_id": 3, "offer_id": "обои-3"}},
				"last_id": "p3",
			}})
		default:
			writeJSON(w, map[string]any{"result": map[string]any{"items": []any{}, "last_id": ""}})
		}
	})

	mux.HandleFunc("/v2/product/info", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		var body map[string]string
		decodeBody(r, &body)
		code := body["offer_id"]
		f.mu.Lock()
		f.infoCalls = append(f.infoCalls, code)
		f.mu.Unlock()

		switch code {
		case "A-1":
			writeJSON(w, map[string]any{"result": map[string]any{"id": 1, "name": "Обои синие", "offer_id": "A-1", "sku": 111, "stocks": map[string]int{"present": 0}}})
		case "A-2":
			writeJSON(w, map[string]any{"result": map[string]any{"id": 2, "name": "Клей", "offer_id": "A-2", "sku": "222", "stocks": map[string]int{"present": 9}}})
		case "oboi-3":
			writeJSON(w, map[string]any{"result": map[string]any{"id": 3, "name": "Обои", "offer_id": "oboi-3", "sku": 333, "stocks": map[string]int{"present": 4}}})
		default:
			_, _ = w.Write([]byte(`null`))
		}
	})

	mux.HandleFunc("/v3/product/info/stocks", func(w http.ResponseWriter, r *http.Request) {
		check(r)
		if f.stocksFails {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var body productListRequest
		decodeBody(r, &body)
		if body.LastID == "" {
			writeJSON(w, map[string]any{"result": map[string]any{
				"items": []map[string]any{
					{"offer_id": "A-1", "stocks": []map[string]any{{"type": "fbo", "present": 0}, {"type": "fbs", "present": 0}}},
					{"offer_id": "A-2", "stocks": []map[string]any{{"type": "fbo", "present": 5}, {"type": "fbs", "present": 2}}},
				},
				"last_id":  "s2",
				"has_next": true,
			}})
			return
		}
		writeJSON(w, map[string]any{"result": map[string]any{
			"items":    []map[string]any{{"offer_id": "ОБОИ-3", "stocks": []map[string]any{{"type": "fbo", "present": 1}}}},
			"last_id":  "s3",
			"has_next": false,
		}})
	})
	return mux
}

func TestListProducts(t *testing.T) {
	fake := &sellerAPIFake{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	products, err := newTestClient(t, srv).ListProducts(context.Background(), "amodecor")
	require.NoError(t, err)
	require.Len(t, products, 3)

	assert.Equal(t, "111", products[0].Sku.ExternalSKU)
	assert.Equal(t, "A-1", products[0].Sku.VendorCode)
	assert.Equal(t, 0, products[0].Stock())
	assert.Equal(t, "amodecor", products[0].Seller)
	assert.Equal(t, "https://www.ozon.ru/product/111", products[0].URL)

	assert.Equal(t, "222", products[1].Sku.ExternalSKU)
	assert.Equal(t, 5, products[1].StockFBO)
	assert.Equal(t, 2, products[1].StockFBS)

	// Третий товар найден только транслитом; остатка по найденному артикулу в листинге нет.
	assert.Equal(t, "333", products[2].Sku.ExternalSKU)
	assert.Equal(t, "oboi-3", products[2].Sku.VendorCode)
	assert.Equal(t, 4, products[2].StockFBO)

	assert.Zero(t, fake.badHeaders)
	assert.Contains(t, fake.infoCalls, "обои-3")
	assert.Contains(t, fake.infoCalls, "ОБОИ-3")
	assert.Contains(t, fake.infoCalls, "oboi-3")
}

func TestListProducts_StockLevelsFallback(t *testing.T) {
	fake := &sellerAPIFake{stocksFails: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	products, err := newTestClient(t, srv).ListProducts(context.Background(), "amodecor")
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, 9, products[1].StockFBO)
	assert.Zero(t, products[1].StockFBS)
}

func TestListProducts_MissingCredentials(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	products, err := newTestClient(t, srv).ListProducts(context.Background(), "stroy_otdelka")
	require.NoError(t, err)
	require.Empty(t, products)
	require.Zero(t, calls.Load())
}

func TestStockLevels(t *testing.T) {
	srv := httptest.NewServer((&sellerAPIFake{}).handler())
	defer srv.Close()

	levels, err := newTestClient(t, srv).StockLevels(context.Background(), "amodecor")
	require.NoError(t, err)
	require.Equal(t, map[string]Stock{
		"A-1":    {},
		"A-2":    {FBO: 5, FBS: 2},
		"ОБОИ-3": {FBO: 1},
	}, levels)
}

func TestProductInfo_NotFound(t *testing.T) {
	fake := &sellerAPIFake{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	_, ok, err := newTestClient(t, srv).ProductInfo(context.Background(), "amodecor", "zz-9")
	require.NoError(t, err)
	require.False(t, ok)
	// as_is и upper_case различаются, транслит совпадает с исходным артикулом.
	require.Equal(t, []string{"zz-9", "ZZ-9"}, fake.infoCalls)
}

func TestDailySales(t *testing.T) {
	var requests []analyticsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body analyticsRequest
		decodeBody(r, &body)
		requests = append(requests, body)

		rows := []map[string]any{}
		if body.Offset == 0 {
			for i := 0; i < body.Limit; i++ {
				rows = append(rows, map[string]any{
					"dimensions": []map[string]string{{"id": fmt.Sprintf("%d", 1000+i)}, {"id": "2024-03-01"}},
					"metrics":    []float64{2},
				})
			}
		} else {
			rows = append(rows,
				map[string]any{"dimensions": []map[string]string{{"id": "111"}, {"id": "2024-03-02"}}, "metrics": []float64{3}},
				map[string]any{"dimensions": []map[string]string{{"id": "111"}, {"id": "2024-03-03"}}, "metrics": []float64{0}},
				map[string]any{"dimensions": []map[string]string{{"id": "111"}, {"id": "bad-date"}}, "metrics": []float64{1}},
			)
		}
		writeJSON(w, map[string]any{"result": map[string]any{"data": rows}})
	}))
	defer srv.Close()

	from := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 30, 8, 0, 0, 0, time.UTC)
	sales, err := newTestClient(t, srv).DailySales(context.Background(), "amodecor", from, to)
	require.NoError(t, err)

	require.Len(t, requests, 2)
	assert.Equal(t, "2024-03-01", requests[0].DateFrom)
	assert.Equal(t, "2024-03-30", requests[0].DateTo)
	assert.Equal(t, []string{"ordered_units"}, requests[0].Metrics)
	assert.Equal(t, []string{"sku", "day"}, requests[0].Dimension)
	assert.Equal(t, 1000, requests[1].Offset)

	assert.Len(t, sales, 1001)
	require.Len(t, sales["111"], 2)
	assert.Equal(t, 3, sales["111"][0].Quantity)
	assert.True(t, sales["111"][0].InStock)
	assert.Equal(t, 0, sales["111"][1].Quantity)
	assert.False(t, sales["111"][1].InStock)
}

func TestProductInfos_PauseAfterBatchCompletes(t *testing.T) {
	const (
		pause = 40 * time.Millisecond
		delay = 30 * time.Millisecond
	)
	var (
		mu     sync.Mutex
		starts = map[string]time.Time{}
		ends   = map[string]time.Time{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		decodeBody(r, &body)
		code := body["offer_id"]
		mu.Lock()
		starts[code] = time.Now()
		mu.Unlock()
		time.Sleep(delay)
		writeJSON(w, map[string]any{"result": map[string]any{"offer_id": code, "sku": 1}})
		mu.Lock()
		ends[code] = time.Now()
		mu.Unlock()
	}))
	defer srv.Close()

	gw := gateway.New(gateway.Config{MaxAttempts: 1, Timeout: 2 * time.Second},
		gateway.WithLogger(log.WithField("component", "gateway-test")))
	client := New(gw, testCredentials(), Config{
		SellerURL:        srv.URL,
		PerformanceURL:   srv.URL,
		PageInterval:     pause,
		ProductBatchSize: 2,
	}, log.WithField("component", "ozon-test"))

	creds, _ := testCredentials().Lookup("amodecor")
	infos, err := client.productInfos(context.Background(), "amodecor", creds, []string{"B1", "B2", "B3", "B4"})
	require.NoError(t, err)
	require.Len(t, infos, 4)

	firstEnd := ends["B1"]
	if ends["B2"].After(firstEnd) {
		firstEnd = ends["B2"]
	}
	for _, code := range []string{"B3", "B4"} {
		gap := starts[code].Sub(firstEnd)
		assert.GreaterOrEqual(t, gap, pause, "%s started %s after previous batch finished", code, gap)
	}
}

func TestProductInfos_CanceledContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	creds, _ := testCredentials().Lookup("amodecor")
	_, err := newTestClient(t, srv).productInfos(ctx, "amodecor", creds, []string{"A-1", "A-2", "A-3"})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, calls.Load())
}
