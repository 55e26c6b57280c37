package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/stockroom/internal/catalog"
	"github.com/odyssey-erp/stockroom/internal/observability"
	"github.com/odyssey-erp/stockroom/internal/productform"
	"github.com/odyssey-erp/stockroom/internal/report"
	"github.com/odyssey-erp/stockroom/internal/selection"
	"github.com/odyssey-erp/stockroom/internal/shared"
	"github.com/odyssey-erp/stockroom/internal/table"
	"github.com/odyssey-erp/stockroom/internal/view"
)

const (
	basePath        = "/inventory"
	createModule    = "product-create"
	submissionField = "submission_key"
	// DefaultPageSize is used when Options leaves PageSize unset.
	DefaultPageSize = 10
)

// API is the inventory service surface the console drives.
type API interface {
	catalog.Lister
	productform.Saver
	selection.StockMutator
	Delete(ctx context.Context, id int64) error
}

// Options tunes paging and stock updates.
type Options struct {
	// ServerPaging delegates sorting and paging to the API.
	ServerPaging bool
	PageSize     int
	StockTimeout time.Duration
}

// Handler wires HTTP endpoints for the inventory console.
type Handler struct {
	logger      *slog.Logger
	api         API
	source      *catalog.Source
	templates   *view.Engine
	csrf        *shared.CSRFManager
	locker      *shared.Locker
	idempotency *shared.IdempotencyStore
	metrics     *observability.Metrics
	opts        Options
	now         func() time.Time
}

// NewHandler constructs the inventory handler. locker, idempotency and metrics may be nil.
func NewHandler(logger *slog.Logger, api API, templates *view.Engine, csrf *shared.CSRFManager, locker *shared.Locker, idempotency *shared.IdempotencyStore, metrics *observability.Metrics, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.StockTimeout <= 0 {
		opts.StockTimeout = selection.DefaultTimeout
	}
	mode := "client"
	if opts.ServerPaging {
		mode = "server"
	}
	h := &Handler{
		logger:      logger.With(slog.String("module", "inventory")),
		api:         api,
		templates:   templates,
		csrf:        csrf,
		locker:      locker,
		idempotency: idempotency,
		metrics:     metrics,
		opts:        opts,
		now:         time.Now,
	}
	h.source = catalog.NewSource(api, func(outcome string, elapsed time.Duration) {
		metrics.ObserveCatalogFetch(mode, outcome, elapsed)
	})
	return h
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showInventory)
	r.Post("/search", h.handleSearch)
	r.Post("/search/reset", h.handleSearchReset)
	r.Post("/sort/{field}", h.handleSort)
	r.Post("/selection/page", h.handleTogglePage)
	r.Post("/selection/clear", h.handleClearSelection)
	r.Post("/selection/{id}", h.handleToggleOne)
	r.Get("/products/new", h.showCreateForm)
	r.Post("/products", h.handleCreate)
	r.Post("/products/cancel", h.handleCancelForm)
	r.Get("/products/{id}/edit", h.showEditForm)
	r.Post("/products/{id}", h.handleUpdate)
	r.Post("/products/{id}/delete", h.handleDelete)
	r.Get("/report", h.showReport)
	r.Get("/report.csv", h.exportReportCSV)
	r.Get("/report.json", h.exportReportJSON)
}

func (h *Handler) showInventory(w http.ResponseWriter, r *http.Request) {
	sess, st := h.state(r)
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		st.Page = table.IndexFromUIPage(page)
	}
	page := h.buildPage(r.Context(), sess, &st)
	h.saveState(sess, st)
	h.render(w, r, "pages/inventory.html", "Inventory", page, http.StatusOK)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess, st := h.state(r)
	form := parseSearchForm(r)
	if errs := form.validate(); len(errs) > 0 {
		page := h.buildPage(r.Context(), sess, &st)
		page.Search = newSearchView(form.criteria(), page.Categories, errs)
		h.saveState(sess, st)
		h.render(w, r, "pages/inventory.html", "Inventory", page, http.StatusBadRequest)
		return
	}
	st.Search = form.criteria()
	st.Page = 0
	h.logger.Debug("search products", slog.Bool("active", st.Search.Active()))
	h.redirect(w, r, sess, st)
}

func (h *Handler) handleSearchReset(w http.ResponseWriter, r *http.Request) {
	sess, st := h.state(r)
	st.Search = catalog.Criteria{}
	st.Page = 0
	h.redirect(w, r, sess, st)
}

func (h *Handler) handleSort(w http.ResponseWriter, r *http.Request) {
	field, err := table.ParseField(chi.URLParam(r, "field"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess, st := h.state(r)
	st.Sort = st.Sort.Click(field)
	h.redirect(w, r, sess, st)
}

func (h *Handler) handleToggleOne(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess, st := h.state(r)
	coord := h.coordinator(sess, st.Selection)
	err := coord.ToggleOne(r.Context(), id)
	st.Selection = coord.Selected()
	h.flashStockOutcome(sess, err)
	h.redirect(w, r, sess, st)
}

func (h *Handler) handleTogglePage(w http.ResponseWriter, r *http.Request) {
	sess, st := h.state(r)
	list, err := h.load(r.Context(), &st)
	if err != nil {
		h.logger.Error("load page for selection", slog.Any("error", err))
		addFlash(sess, shared.FlashError, shared.UserSafeMessage(err))
		h.redirect(w, r, sess, st)
		return
	}
	coord := h.coordinator(sess, st.Selection)
	err = coord.ToggleAllOnPage(r.Context(), productIDs(list.rows))
	st.Selection = coord.Selected()
	h.flashStockOutcome(sess, err)
	h.redirect(w, r, sess, st)
}

func (h *Handler) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	sess, st := h.state(r)
	coord := h.coordinator(sess, st.Selection)
	coord.Clear()
	st.Selection = coord.Selected()
	h.redirect(w, r, sess, st)
}

func (h *Handler) showCreateForm(w http.ResponseWriter, r *http.Request) {
	sess, st := h.state(r)
	if st.Form.Staged() && st.Form.Mode == productform.ModeCreate {
		st.Form.Open = true
	} else {
		st.Form = productform.NewForm()
	}
	if st.SubmissionKey == "" {
		st.SubmissionKey = uuid.NewString()
	}
	h.renderForm(w, r, sess, st, nil, http.StatusOK)
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess, st := h.state(r)
	if st.Form.Staged() && st.Form.Mode == productform.ModeEdit && st.Form.EditingID == id {
		st.Form.Open = true
		h.renderForm(w, r, sess, st, nil, http.StatusOK)
		return
	}
	list, err := h.load(r.Context(), &st)
	if err != nil {
		h.logger.Error("load product for edit", slog.Int64("product_id", id), slog.Any("error", err))
		addFlash(sess, shared.FlashError, shared.UserSafeMessage(err))
		h.redirect(w, r, sess, st)
		return
	}
	product, found := findProduct(id, list.store.Rows(), list.store.Products())
	if !found {
		addFlash(sess, shared.FlashError, "This product no longer exists.")
		h.redirect(w, r, sess, st)
		return
	}
	st.Form = productform.FromProduct(product)
	h.renderForm(w, r, sess, st, nil, http.StatusOK)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess, st := h.state(r)
	form := parseProductForm(r, productform.ModeCreate, 0)
	if errs := form.Validate(); len(errs) > 0 {
		st.Form = form
		h.renderForm(w, r, sess, st, errs.Map(), http.StatusBadRequest)
		return
	}

	key := r.PostFormValue(submissionField)
	if h.idempotency != nil && key != "" {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, createModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				addFlash(sess, shared.FlashInfo, "This product was already submitted.")
			} else {
				h.logger.Error("reserve submission key", slog.Any("error", err))
				addFlash(sess, shared.FlashError, shared.UserSafeMessage(err))
			}
			h.redirect(w, r, sess, st)
			return
		}
	}

	err := form.Submit(r.Context(), h.api, h.now())
	st.Form = form
	if err != nil {
		if h.idempotency != nil && key != "" {
			if delErr := h.idempotency.Delete(r.Context(), key, createModule); delErr != nil {
				h.logger.Warn("release submission key", slog.Any("error", delErr))
			}
		}
		h.logger.Error("create product", slog.Any("error", err))
		addFlash(sess, shared.FlashError, shared.UserSafeMessage(err))
		h.redirect(w, r, sess, st)
		return
	}
	st.SubmissionKey = ""
	h.logger.Info("product created", slog.String("name", r.PostFormValue("name")))
	addFlash(sess, shared.FlashSuccess, productform.SuccessMessage(productform.ModeCreate))
	h.redirect(w, r, sess, st)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess, st := h.state(r)
	form := parseProductForm(r, productform.ModeEdit, id)
	if st.Form.Mode == productform.ModeEdit && st.Form.EditingID == id && st.Form.CreationDate != "" {
		form.CreationDate = st.Form.CreationDate
	}
	if errs := form.Validate(); len(errs) > 0 {
		st.Form = form
		h.renderForm(w, r, sess, st, errs.Map(), http.StatusBadRequest)
		return
	}

	err := form.Submit(r.Context(), h.api, h.now())
	st.Form = form
	if err != nil {
		h.logger.Error("update product", slog.Int64("product_id", id), slog.Any("error", err))
		addFlash(sess, shared.FlashError, shared.UserSafeMessage(err))
		h.redirect(w, r, sess, st)
		return
	}
	h.logger.Info("product updated", slog.Int64("product_id", id))
	addFlash(sess, shared.FlashSuccess, productform.SuccessMessage(productform.ModeEdit))
	h.redirect(w, r, sess, st)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess, st := h.state(r)
	if err := h.api.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete product", slog.Int64("product_id", id), slog.Any("error", err))
		addFlash(sess, shared.FlashError, shared.UserSafeMessage(err))
		h.redirect(w, r, sess, st)
		return
	}
	st.Selection.Remove(id)
	if st.Form.Mode == productform.ModeEdit && st.Form.EditingID == id {
		st.Form.Cancel()
	}
	h.logger.Info("product deleted", slog.Int64("product_id", id))
	addFlash(sess, shared.FlashSuccess, "Product deleted successfully")
	h.redirect(w, r, sess, st)
}

func (h *Handler) handleCancelForm(w http.ResponseWriter, r *http.Request) {
	sess, st := h.state(r)
	st.Form.Cancel()
	st.SubmissionKey = ""
	h.redirect(w, r, sess, st)
}

func (h *Handler) showReport(w http.ResponseWriter, r *http.Request) {
	data := reportView{}
	rep, err := h.loadReport(r.Context())
	if err != nil {
		h.logger.Error("load report", slog.Any("error", err))
		data.LoadError = shared.UserSafeMessage(err)
	}
	data.Report = rep
	h.render(w, r, "pages/report.html", "Inventory Report", data, http.StatusOK)
}

// buildPage loads the listing for st and assembles the table view. st.Page is
// clamped to the pages that exist.
func (h *Handler) buildPage(ctx context.Context, sess *shared.Session, st *State) pageView {
	coord := h.coordinator(sess, st.Selection)
	page := pageView{
		Columns:       columnsFor(st.Sort),
		Search:        newSearchView(st.Search, nil, nil),
		Updating:      coord.IsUpdating(ctx),
		SelectedCount: st.Selection.Len(),
	}
	if st.Form.Staged() {
		draft := st.Form
		page.Draft = &draft
	}

	list, err := h.load(ctx, st)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		page.LoadError = shared.UserSafeMessage(err)
		return page
	}
	now := h.now()
	for _, p := range list.rows {
		page.Rows = append(page.Rows, rowView{
			Product:    p,
			Selected:   st.Selection.Has(p.ID),
			RowClass:   table.StyleFor(p, now).Class(),
			StockClass: table.LevelFor(p.QuantityInStock).Class(),
		})
	}
	page.Header = coord.HeaderState(productIDs(list.rows))
	page.Window = list.window
	page.Searching = list.store.Searching()
	page.Categories = catalog.Categories(list.store.Products())
	page.Search = newSearchView(st.Search, page.Categories, nil)
	page.Report = list.report.Report()
	return page
}

// listing is one loaded table page.
type listing struct {
	store  *catalog.Store
	report *report.Aggregator
	rows   []catalog.Product
	window table.Window
}

// load refreshes a store for st and cuts the visible page. In client mode the
// whole result is sorted and paged here; in server mode the API does both and
// an out-of-range page is clamped and fetched again.
func (h *Handler) load(ctx context.Context, st *State) (listing, error) {
	store := catalog.NewStore(h.source)
	agg := report.NewAggregator()
	store.Subscribe(agg.Observe)
	list := listing{store: store, report: agg}

	if err := store.Refresh(ctx, h.query(*st)); err != nil {
		return list, err
	}
	if !h.opts.ServerPaging {
		sorted := table.Sort(store.Rows(), st.Sort)
		list.window = table.Window{Index: st.Page, PageSize: h.opts.PageSize, TotalElements: len(sorted)}.Clamp()
		st.Page = list.window.Index
		list.rows = table.Page(sorted, list.window.Index, list.window.PageSize)
		return list, nil
	}

	requested := table.Window{Index: st.Page, PageSize: h.opts.PageSize, TotalElements: store.Total()}
	list.window = requested.Clamp()
	if list.window.Index != requested.Index {
		st.Page = list.window.Index
		if err := store.Refresh(ctx, h.query(*st)); err != nil {
			return list, err
		}
		list.window.TotalElements = store.Total()
	}
	list.rows = table.Page(store.Rows(), 0, h.opts.PageSize)
	return list, nil
}

func (h *Handler) query(st State) catalog.Query {
	q := catalog.Query{Criteria: st.Search}
	if h.opts.ServerPaging {
		q.Paged = true
		q.Page = st.Page
		q.Size = h.opts.PageSize
		q.Sort = st.Sort.Keys()
	}
	return q
}

// loadReport aggregates the whole unfiltered catalog.
func (h *Handler) loadReport(ctx context.Context) (report.Report, error) {
	store := catalog.NewStore(h.source)
	agg := report.NewAggregator()
	store.Subscribe(agg.Observe)
	if err := store.Refresh(ctx, catalog.Query{}); err != nil {
		return report.Report{}, err
	}
	return agg.Report(), nil
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, sess *shared.Session, st State, errs map[string]string, status int) {
	data := formView{
		Form:          st.Form,
		Errors:        errs,
		Action:        basePath + "/products",
		Heading:       "Add product",
		SubmitLabel:   "Save",
		SubmissionKey: st.SubmissionKey,
	}
	if data.Errors == nil {
		data.Errors = map[string]string{}
	}
	if st.Form.Mode == productform.ModeEdit {
		data.Action = basePath + "/products/" + strconv.FormatInt(st.Form.EditingID, 10)
		data.Heading = "Edit product"
		data.SubmissionKey = ""
	}
	if list, err := h.load(r.Context(), &st); err != nil {
		h.logger.Warn("load categories", slog.Any("error", err))
	} else {
		data.Categories = catalog.Categories(list.store.Products())
	}
	h.saveState(sess, st)
	h.render(w, r, "pages/product_form.html", data.Heading, data, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, err := h.csrf.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Warn("ensure csrf token", slog.Any("error", err))
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: title, CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render inventory", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// state returns the request session and its console state. Unreadable state is
// logged and replaced by the zero State.
func (h *Handler) state(r *http.Request) (*shared.Session, State) {
	sess := shared.SessionFromContext(r.Context())
	st, err := LoadState(sess)
	if err != nil {
		h.logger.Warn("load inventory state", slog.Any("error", err))
		return sess, State{}
	}
	return sess, st
}

func (h *Handler) saveState(sess *shared.Session, st State) {
	if err := SaveState(sess, st); err != nil {
		h.logger.Warn("save inventory state", slog.Any("error", err))
	}
}

// redirect stores st and sends the browser back to the table.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, sess *shared.Session, st State) {
	h.saveState(sess, st)
	http.Redirect(w, r, basePath, http.StatusSeeOther)
}

func (h *Handler) flashStockOutcome(sess *shared.Session, err error) {
	switch {
	case err == nil:
		addFlash(sess, shared.FlashSuccess, "Stock status updated")
	case errors.Is(err, selection.ErrUpdateInProgress):
		addFlash(sess, shared.FlashInfo, "A stock update is already running. Please wait for it to finish.")
	default:
		h.logger.Error("update stock status", slog.Any("error", err))
		addFlash(sess, shared.FlashError, shared.UserSafeMessage(err))
	}
}

func addFlash(sess *shared.Session, kind, message string) {
	if sess == nil {
		return
	}
	sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
}

func productID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func findProduct(id int64, lists ...[]catalog.Product) (catalog.Product, bool) {
	for _, products := range lists {
		for _, p := range products {
			if p.ID == id {
				return p, true
			}
		}
	}
	return catalog.Product{}, false
}

func parseProductForm(r *http.Request, mode productform.Mode, id int64) productform.Form {
	form := productform.Form{
		Open:           true,
		Mode:           mode,
		EditingID:      id,
		Name:           r.PostFormValue("name"),
		Category:       r.PostFormValue("category"),
		UseNewCategory: r.PostFormValue("use_new_category") != "",
		NewCategory:    r.PostFormValue("new_category"),
		UnitPrice:      r.PostFormValue("unit_price"),
		Quantity:       r.PostFormValue("quantity"),
		ExpirationDate: r.PostFormValue("expiration_date"),
		CreationDate:   r.PostFormValue("creation_date"),
	}
	form.Normalize()
	return form
}
