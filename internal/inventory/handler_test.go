package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockroom/internal/catalog"
	"github.com/odyssey-erp/stockroom/internal/shared"
	"github.com/odyssey-erp/stockroom/internal/table"
	"github.com/odyssey-erp/stockroom/internal/view"
	_ "github.com/odyssey-erp/stockroom/testing"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu          sync.Mutex
	products    []catalog.Product
	listErr     error
	createErr   error
	createCalls int
	created     []catalog.Product
	updated     map[int64]catalog.Product
	deleted     []int64
	out         []int64
	in          []int64
	queries     []catalog.Query
}

func (f *fakeAPI) List(ctx context.Context, q catalog.Query) (catalog.PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.listErr != nil {
		return catalog.PageResult{}, f.listErr
	}
	var matched []catalog.Product
	for _, p := range f.products {
		if name := strings.ToLower(q.Criteria.Name); name != "" && !strings.Contains(strings.ToLower(p.Name), name) {
			continue
		}
		if len(q.Criteria.Categories) > 0 && !q.Criteria.HasCategory(p.Category) {
			continue
		}
		if q.Criteria.Availability == catalog.AvailabilityInStock && !p.InStock() {
			continue
		}
		if q.Criteria.Availability == catalog.AvailabilityOutOfStock && p.InStock() {
			continue
		}
		matched = append(matched, p)
	}
	res := catalog.PageResult{Content: matched, TotalElements: len(matched)}
	if q.Paged {
		res.Content = table.Page(matched, q.Page, q.Size)
		res.Page = q.Page
		res.Size = q.Size
	}
	return res, nil
}

func (f *fakeAPI) Create(ctx context.Context, p catalog.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, p)
	return nil
}

func (f *fakeAPI) Update(ctx context.Context, id int64, p catalog.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updated == nil {
		f.updated = make(map[int64]catalog.Product)
	}
	f.updated[id] = p
	return nil
}

func (f *fakeAPI) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) MarkOutOfStock(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, id)
	return nil
}

func (f *fakeAPI) MarkInStock(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = append(f.in, id)
	return nil
}

// lastPagedQuery returns the most recent single-page listing request.
func (f *fakeAPI) lastPagedQuery() catalog.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.queries) - 1; i >= 0; i-- {
		if f.queries[i].Paged {
			return f.queries[i]
		}
	}
	return catalog.Query{}
}

func product(id int64, name, category string, qty int, price string) catalog.Product {
	return catalog.Product{ID: id, Name: name, Category: category, QuantityInStock: qty, UnitPrice: decimal.RequireFromString(price)}
}

func manyProducts(n int) []catalog.Product {
	out := make([]catalog.Product, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, product(int64(i), "Item "+string(rune('A'+i-1)), "General", 20, "1.00"))
	}
	return out
}

type harness struct {
	t        *testing.T
	api      *fakeAPI
	redis    *redis.Client
	sessions *shared.SessionManager
	router   chi.Router
	cookie   *http.Cookie
}

func newHarness(t *testing.T, api *fakeAPI, opts Options) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	templates, err := view.NewEngine()
	require.NoError(t, err)
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, api, templates, shared.NewCSRFManager("csrfsecret"), shared.NewLocker(client), shared.NewIdempotencyStore(client, time.Hour), nil, opts)
	handler.now = func() time.Time { return testNow }

	router := chi.NewRouter()
	router.Route("/inventory", handler.MountRoutes)
	return &harness{t: t, api: api, redis: client, sessions: sessions, router: router}
}

func (h *harness) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	h.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	sess, err := h.sessions.Load(req.Context(), req)
	require.NoError(h.t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	require.NoError(h.t, h.sessions.Commit(ctx, res, req, sess))
	for _, c := range (&http.Response{Header: res.Header()}).Cookies() {
		if c.Name == h.sessions.CookieName() {
			h.cookie = c
		}
	}
	return res
}

func (h *harness) state() State {
	h.t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	sess, err := h.sessions.Load(req.Context(), req)
	require.NoError(h.t, err)
	st, err := LoadState(sess)
	require.NoError(h.t, err)
	return st
}

func (h *harness) sessionID() string {
	h.t.Helper()
	require.NotNil(h.t, h.cookie)
	id, _, ok := strings.Cut(h.cookie.Value, ".")
	require.True(h.t, ok)
	return id
}

func requireRedirect(t *testing.T, res *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Equal(t, "/inventory", res.Header().Get("Location"))
}

func TestInventoryPageShowsFirstPageWithStyles(t *testing.T) {
	products := manyProducts(12)
	products[0].QuantityInStock = 0
	products[1].QuantityInStock = 3
	h := newHarness(t, &fakeAPI{products: products}, Options{PageSize: 10})

	res := h.do(http.MethodGet, "/inventory", nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Showing 1-10 of 12")
	assert.Contains(t, body, "Item J")
	assert.NotContains(t, body, "Item K")
	assert.Contains(t, body, `class="row-out-of-stock"`)
	assert.Contains(t, body, `class="num stock-critical"`)
	assert.Contains(t, body, `aria-checked="false"`)
}

func TestPageParameterClampsToLastPage(t *testing.T) {
	h := newHarness(t, &fakeAPI{products: manyProducts(12)}, Options{PageSize: 10})

	res := h.do(http.MethodGet, "/inventory?page=9", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Showing 11-12 of 12")
	assert.Equal(t, 1, h.state().Page)

	res = h.do(http.MethodGet, "/inventory?page=abc", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestSortClickOrdersRows(t *testing.T) {
	api := &fakeAPI{products: []catalog.Product{
		product(1, "Cherry", "Fruit", 5, "3.00"),
		product(2, "apple", "Fruit", 5, "1.00"),
		product(3, "Banana", "Fruit", 5, "2.00"),
	}}
	h := newHarness(t, api, Options{})

	requireRedirect(t, h.do(http.MethodPost, "/inventory/sort/name", url.Values{}))
	st := h.state()
	assert.Equal(t, table.Slot{Field: table.FieldName, Order: table.OrderAsc}, st.Sort.Primary)

	body := h.do(http.MethodGet, "/inventory", nil).Body.String()
	apple := strings.Index(body, "<td>apple</td>")
	banana := strings.Index(body, "<td>Banana</td>")
	cherry := strings.Index(body, "<td>Cherry</td>")
	require.True(t, apple >= 0 && banana >= 0 && cherry >= 0)
	assert.Less(t, apple, banana)
	assert.Less(t, banana, cherry)
	assert.Contains(t, body, `aria-sort="ascending"`)

	res := h.do(http.MethodPost, "/inventory/sort/color", url.Values{})
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestSearchFiltersAndValidates(t *testing.T) {
	api := &fakeAPI{products: []catalog.Product{
		product(1, "Green apple", "Fruit", 5, "1.00"),
		product(2, "Carrot", "Vegetable", 5, "1.00"),
	}}
	h := newHarness(t, api, Options{})

	res := h.do(http.MethodPost, "/inventory/search", url.Values{"name": {strings.Repeat("x", 121)}})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Search text must be at most 120 characters.")
	assert.False(t, h.state().Search.Active())

	res = h.do(http.MethodPost, "/inventory/search", url.Values{"availability": {"sometimes"}})
	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Choose a valid availability.")

	requireRedirect(t, h.do(http.MethodPost, "/inventory/search", url.Values{
		"name":         {"apple"},
		"category":     {"Fruit"},
		"availability": {"in_stock"},
	}))
	st := h.state()
	assert.Equal(t, catalog.Criteria{Name: "apple", Categories: []string{"Fruit"}, Availability: catalog.AvailabilityInStock}, st.Search)

	body := h.do(http.MethodGet, "/inventory", nil).Body.String()
	assert.Contains(t, body, "Green apple")
	assert.NotContains(t, body, "<td>Carrot</td>")
	// Categories come from the unfiltered listing.
	assert.Contains(t, body, `value="Vegetable"`)

	requireRedirect(t, h.do(http.MethodPost, "/inventory/search/reset", url.Values{}))
	assert.False(t, h.state().Search.Active())
}

func TestToggleOneMarksStock(t *testing.T) {
	api := &fakeAPI{products: manyProducts(3)}
	h := newHarness(t, api, Options{})

	requireRedirect(t, h.do(http.MethodPost, "/inventory/selection/2", url.Values{}))
	assert.Equal(t, []int64{2}, api.out)
	assert.True(t, h.state().Selection.Has(2))
	assert.Contains(t, h.do(http.MethodGet, "/inventory", nil).Body.String(), "Stock status updated")

	requireRedirect(t, h.do(http.MethodPost, "/inventory/selection/2", url.Values{}))
	assert.Equal(t, []int64{2}, api.in)
	assert.False(t, h.state().Selection.Has(2))

	res := h.do(http.MethodPost, "/inventory/selection/nope", url.Values{})
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestTogglePageSelectsVisibleRows(t *testing.T) {
	api := &fakeAPI{products: manyProducts(12)}
	h := newHarness(t, api, Options{PageSize: 10})

	requireRedirect(t, h.do(http.MethodPost, "/inventory/selection/page", url.Values{}))
	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, api.out)
	assert.Equal(t, 10, h.state().Selection.Len())
	assert.Contains(t, h.do(http.MethodGet, "/inventory", nil).Body.String(), `aria-checked="true"`)

	requireRedirect(t, h.do(http.MethodPost, "/inventory/selection/clear", url.Values{}))
	assert.Zero(t, h.state().Selection.Len())
	assert.Empty(t, api.in)
}

func TestToggleRejectedWhileUpdateRuns(t *testing.T) {
	api := &fakeAPI{products: manyProducts(3)}
	h := newHarness(t, api, Options{})
	h.do(http.MethodGet, "/inventory", nil)

	release, err := shared.NewLocker(h.redis).Acquire(context.Background(), shared.StockLockKey(h.sessionID()), time.Minute)
	require.NoError(t, err)

	requireRedirect(t, h.do(http.MethodPost, "/inventory/selection/1", url.Values{}))
	assert.Empty(t, api.out)
	body := h.do(http.MethodGet, "/inventory", nil).Body.String()
	assert.Contains(t, body, "A stock update is already running.")
	assert.Contains(t, body, "Updating stock")

	release()
	requireRedirect(t, h.do(http.MethodPost, "/inventory/selection/1", url.Values{}))
	assert.Equal(t, []int64{1}, api.out)
}

func validProductForm(key string) url.Values {
	return url.Values{
		"name":            {"Widget"},
		"category":        {"Hardware"},
		"unit_price":      {"2.50"},
		"quantity":        {"4"},
		"expiration_date": {"2025-12-31"},
		submissionField:   {key},
	}
}

func TestCreateProductOnce(t *testing.T) {
	api := &fakeAPI{products: []catalog.Product{product(1, "Bolt", "Hardware", 5, "0.10")}}
	h := newHarness(t, api, Options{})

	res := h.do(http.MethodGet, "/inventory/products/new", nil)
	require.Equal(t, http.StatusOK, res.Code)
	key := h.state().SubmissionKey
	require.NotEmpty(t, key)
	assert.Contains(t, res.Body.String(), key)

	requireRedirect(t, h.do(http.MethodPost, "/inventory/products", validProductForm(key)))
	require.Len(t, api.created, 1)
	created := api.created[0]
	assert.Equal(t, "Widget", created.Name)
	assert.True(t, decimal.RequireFromString("2.5").Equal(created.UnitPrice))
	assert.Equal(t, "2025-03-01", created.CreationDate.String())
	assert.Nil(t, created.UpdateDate)
	st := h.state()
	assert.False(t, st.Form.Staged())
	assert.Empty(t, st.SubmissionKey)
	assert.Contains(t, h.do(http.MethodGet, "/inventory", nil).Body.String(), "Product added successfully")

	requireRedirect(t, h.do(http.MethodPost, "/inventory/products", validProductForm(key)))
	assert.Equal(t, 1, api.createCalls)
	assert.Contains(t, h.do(http.MethodGet, "/inventory", nil).Body.String(), "This product was already submitted.")
}

func TestCreateValidationErrorMakesNoCall(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, Options{})

	form := validProductForm("k1")
	form.Set("name", strings.Repeat("n", 121))
	form.Set("unit_price", "0")
	res := h.do(http.MethodPost, "/inventory/products", form)
	require.Equal(t, http.StatusBadRequest, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Name must be at most 120 characters.")
	assert.Contains(t, body, "Price must be a number greater than 0.")
	assert.Zero(t, api.createCalls)
	assert.True(t, h.state().Form.Open)
}

func TestCreateFailureKeepsStagedValues(t *testing.T) {
	api := &fakeAPI{createErr: &catalog.APIError{Op: "save", Status: http.StatusInternalServerError}}
	h := newHarness(t, api, Options{})
	h.do(http.MethodGet, "/inventory/products/new", nil)
	key := h.state().SubmissionKey

	requireRedirect(t, h.do(http.MethodPost, "/inventory/products", validProductForm(key)))
	st := h.state()
	assert.False(t, st.Form.Open)
	assert.Equal(t, "Widget", st.Form.Name)
	assert.Equal(t, key, st.SubmissionKey)
	body := h.do(http.MethodGet, "/inventory", nil).Body.String()
	assert.Contains(t, body, "Error while trying to save. Please try again.")
	assert.Contains(t, body, "Resume")

	res := h.do(http.MethodGet, "/inventory/products/new", nil)
	assert.Contains(t, res.Body.String(), `value="Widget"`)

	// The failed attempt released its key, so a retry reaches the API.
	api.createErr = nil
	requireRedirect(t, h.do(http.MethodPost, "/inventory/products", validProductForm(key)))
	assert.Equal(t, 2, api.createCalls)
	require.Len(t, api.created, 1)
}

func TestEditKeepsCreationDate(t *testing.T) {
	bolt := product(5, "Bolt", "Hardware", 5, "0.10")
	created, err := catalog.ParseDate("2024-01-05")
	require.NoError(t, err)
	bolt.CreationDate = &created
	api := &fakeAPI{products: []catalog.Product{bolt}}
	h := newHarness(t, api, Options{})

	res := h.do(http.MethodGet, "/inventory/products/5/edit", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `value="Bolt"`)
	assert.Contains(t, res.Body.String(), `action="/inventory/products/5"`)

	requireRedirect(t, h.do(http.MethodPost, "/inventory/products/5", url.Values{
		"name":       {"Bolt"},
		"category":   {"Hardware"},
		"unit_price": {"0.20"},
		"quantity":   {"9"},
	}))
	updated, ok := api.updated[5]
	require.True(t, ok)
	assert.Equal(t, "2024-01-05", updated.CreationDate.String())
	assert.Equal(t, "2025-03-01", updated.UpdateDate.String())
	assert.Equal(t, 9, updated.QuantityInStock)
	assert.Contains(t, h.do(http.MethodGet, "/inventory", nil).Body.String(), "Product updated successfully")
}

func TestEditUnknownProductRedirects(t *testing.T) {
	h := newHarness(t, &fakeAPI{products: manyProducts(2)}, Options{})

	requireRedirect(t, h.do(http.MethodGet, "/inventory/products/99/edit", nil))
	assert.Contains(t, h.do(http.MethodGet, "/inventory", nil).Body.String(), "This product no longer exists.")
}

func TestDeleteDropsSelectionAndDraft(t *testing.T) {
	api := &fakeAPI{products: manyProducts(3)}
	h := newHarness(t, api, Options{})
	h.do(http.MethodPost, "/inventory/selection/3", url.Values{})
	h.do(http.MethodGet, "/inventory/products/3/edit", nil)

	requireRedirect(t, h.do(http.MethodPost, "/inventory/products/3/delete", url.Values{}))
	assert.Equal(t, []int64{3}, api.deleted)
	st := h.state()
	assert.False(t, st.Selection.Has(3))
	assert.False(t, st.Form.Staged())
}

func TestCancelDiscardsDraft(t *testing.T) {
	h := newHarness(t, &fakeAPI{}, Options{})
	h.do(http.MethodGet, "/inventory/products/new", nil)
	require.True(t, h.state().Form.Staged())

	requireRedirect(t, h.do(http.MethodPost, "/inventory/products/cancel", url.Values{}))
	st := h.state()
	assert.False(t, st.Form.Staged())
	assert.Empty(t, st.SubmissionKey)
}

func reportProducts() []catalog.Product {
	return []catalog.Product{
		product(1, "Apple", "Fruit", 10, "2.00"),
		product(2, "Pear", "Fruit", 0, "9.00"),
		product(3, "Leek", "Vegetable", 4, "10.00"),
	}
}

func TestReportExports(t *testing.T) {
	h := newHarness(t, &fakeAPI{products: reportProducts()}, Options{ServerPaging: true, PageSize: 1})

	res := h.do(http.MethodGet, "/inventory/report.csv", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, `attachment; filename="inventory-report.csv"`, res.Header().Get("Content-Disposition"))
	assert.Equal(t, "Category,Total Products,Total Value,Average Price\n"+
		"Fruit,10,20.00,2.00\n"+
		"Vegetable,4,40.00,10.00\n"+
		"Overall,14,60.00,4.29\n", res.Body.String())

	res = h.do(http.MethodGet, "/inventory/report.json", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &decoded))
	assert.Contains(t, decoded, "categories")
	assert.Contains(t, decoded, "overall")

	res = h.do(http.MethodGet, "/inventory/report", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "$4.29")
}

func TestListingErrorIsShownAndExportFails(t *testing.T) {
	api := &fakeAPI{listErr: &catalog.APIError{Op: "load products", Err: errors.New("connection refused")}}
	h := newHarness(t, api, Options{})

	res := h.do(http.MethodGet, "/inventory", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Error while trying to load products. Please try again.")

	res = h.do(http.MethodGet, "/inventory/report.csv", nil)
	assert.Equal(t, http.StatusBadGateway, res.Code)
	assert.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
}

func TestServerPagingDelegatesAndClamps(t *testing.T) {
	api := &fakeAPI{products: manyProducts(12)}
	h := newHarness(t, api, Options{ServerPaging: true, PageSize: 5})

	res := h.do(http.MethodGet, "/inventory?page=9", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Showing 11-12 of 12")
	assert.Equal(t, 2, h.state().Page)
	last := api.lastPagedQuery()
	assert.True(t, last.Paged)
	assert.Equal(t, 2, last.Page)
	assert.Equal(t, 5, last.Size)

	h.do(http.MethodPost, "/inventory/sort/unitPrice", url.Values{})
	h.do(http.MethodGet, "/inventory", nil)
	assert.Equal(t, []catalog.SortKey{{Field: "unitPrice", Order: "asc"}}, api.lastPagedQuery().Sort)
}

func TestServerPagingCategoriesAndReportCoverWholeCatalog(t *testing.T) {
	api := &fakeAPI{products: reportProducts()}
	h := newHarness(t, api, Options{ServerPaging: true, PageSize: 1})

	res := h.do(http.MethodGet, "/inventory", nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "Showing 1-1 of 3")
	assert.Contains(t, body, `name="category" value="Vegetable"`)
	assert.Contains(t, body, "$4.29")
	assert.NotContains(t, body, "<td>Leek</td>")
}
