package ozon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type performanceFake struct {
	mu           sync.Mutex
	tokenCalls   int
	badAuth      int
	pages        map[string][]int
	searchPages  []int
	failCampaign string
}

func (f *performanceFake) handler() http.Handler {
	f.pages = map[string][]int{}
	mux := http.NewServeMux()
	auth := func(r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			f.mu.Lock()
			f.badAuth++
			f.mu.Unlock()
		}
	}

	mux.HandleFunc("/api/client/token", func(w http.ResponseWriter, r *http.Request) {
		var body tokenRequest
		decodeBody(r, &body)
		if body.ClientID != "adv-id" || body.ClientSecret != "adv-secret" || body.GrantType != "client_credentials" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		f.tokenCalls++
		f.mu.Unlock()
		writeJSON(w, map[string]any{"access_token": "token-1", "token_type": "Bearer", "expires_in": 1800})
	})

	mux.HandleFunc("/api/client/campaign", func(w http.ResponseWriter, r *http.Request) {
		auth(r)
		if r.URL.Query().Get("advObjectType") != "SKU" || r.URL.Query().Get("state") != "CAMPAIGN_STATE_RUNNING" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"list": []map[string]any{
			{"id": "9001", "title": "Трафарет", "state": "CAMPAIGN_STATE_RUNNING"},
			{"id": 9002, "title": "Осень", "state": "CAMPAIGN_STATE_RUNNING"},
		}})
	})

	mux.HandleFunc("/api/client/campaign/search_promo/v2/products", func(w http.ResponseWriter, r *http.Request) {
		auth(r)
		var body searchPromoRequest
		decodeBody(r, &body)
		f.mu.Lock()
		f.searchPages = append(f.searchPages, body.Page)
		f.mu.Unlock()

		products := []map[string]any{}
		total := "100"
		switch body.Page {
		case 0:
			for i := 0; i < body.PageSize; i++ {
				products = append(products, map[string]any{"sku": strconv.Itoa(5000 + i)})
			}
		case 1:
			products = append(products, map[string]any{"sku": "333"})
			total = "1"
		}
		writeJSON(w, map[string]any{"products": products, "total": total})
	})

	mux.HandleFunc("/api/client/campaign/{id}/v2/products", func(w http.ResponseWriter, r *http.Request) {
		auth(r)
		id := r.PathValue("id")
		if id == f.failCampaign {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		f.mu.Lock()
		f.pages[id] = append(f.pages[id], page)
		f.mu.Unlock()

		products := []map[string]any{}
		if page == 0 {
			n := size
			if id == "9002" {
				n = 1
			}
			for i := 0; i < n; i++ {
				products = append(products, map[string]any{"sku": fmt.Sprintf("%s-%d", id, i)})
			}
		} else if page == 1 {
			products = append(products, map[string]any{"sku": 111})
		}
		writeJSON(w, map[string]any{"products": products})
	})
	return mux
}

func TestRunningCampaigns(t *testing.T) {
	fake := &performanceFake{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	campaigns, err := newTestClient(t, srv).RunningCampaigns(context.Background(), "amodecor")
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	assert.Equal(t, "9001", campaigns[0].ID)
	assert.Equal(t, "9002", campaigns[1].ID)
	assert.Equal(t, "Осень", campaigns[1].Title)
	assert.Zero(t, fake.badAuth)
}

func TestCampaignProducts_ShortPageTerminates(t *testing.T) {
	fake := &performanceFake{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	client := newTestClient(t, srv)

	skus, err := client.CampaignProducts(context.Background(), "amodecor", "9001")
	require.NoError(t, err)
	require.Len(t, skus, 101)
	assert.Equal(t, "111", skus[100])
	assert.Equal(t, []int{0, 1}, fake.pages["9001"])

	skus, err = client.CampaignProducts(context.Background(), "amodecor", "9002")
	require.NoError(t, err)
	assert.Equal(t, []string{"9002-0"}, skus)
	assert.Equal(t, []int{0}, fake.pages["9002"])
}

func TestCampaignProducts_TransportFailureIsNoData(t *testing.T) {
	fake := &performanceFake{failCampaign: "9001"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	skus, err := newTestClient(t, srv).CampaignProducts(context.Background(), "amodecor", "9001")
	require.NoError(t, err)
	require.Empty(t, skus)
}

func TestSearchPromotedProducts_TotalBelowTerminates(t *testing.T) {
	fake := &performanceFake{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	skus, err := newTestClient(t, srv).SearchPromotedProducts(context.Background(), "amodecor")
	require.NoError(t, err)
	require.Len(t, skus, 101)
	assert.Equal(t, "333", skus[100])
	assert.Equal(t, []int{0, 1}, fake.searchPages)
}

func TestPerformanceToken_IsReused(t *testing.T) {
	fake := &performanceFake{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	client := newTestClient(t, srv)

	_, err := client.RunningCampaigns(context.Background(), "amodecor")
	require.NoError(t, err)
	_, err = client.CampaignProducts(context.Background(), "amodecor", "9001")
	require.NoError(t, err)
	_, err = client.SearchPromotedProducts(context.Background(), "amodecor")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.tokenCalls)
	assert.Zero(t, fake.badAuth)
}

func TestPerformance_MissingCredentials(t *testing.T) {
	fake := &performanceFake{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	client := newTestClient(t, srv)

	// У orion есть ключи Seller API, но нет ключей рекламного кабинета.
	campaigns, err := client.RunningCampaigns(context.Background(), "orion")
	require.NoError(t, err)
	require.Empty(t, campaigns)

	skus, err := client.SearchPromotedProducts(context.Background(), "orion")
	require.NoError(t, err)
	require.Empty(t, skus)
	assert.Zero(t, fake.tokenCalls)
}
