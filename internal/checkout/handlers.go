package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/clothesfashion/backend-checkout/internal/common"
	"github.com/clothesfashion/backend-checkout/internal/voucher"
)

// Handler exposes the checkout session API.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// Routes mounts the checkout endpoints. The router is expected to sit behind
// the auth middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Start)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/billing", h.UpdateBilling)
		r.Put("/address", h.ApplyAddress)
		r.Put("/payment-method", h.SetPaymentMethod)
		r.Put("/notes", h.SetNotes)
		r.Get("/vouchers", h.ListVouchers)
		r.Put("/vouchers/select", h.SelectVoucher)
		r.Post("/next", h.Advance)
		r.Post("/back", h.Retreat)
		r.Post("/refresh", h.Refresh)
		r.Post("/submit", h.Submit)
	})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	user, token, ok := h.identity(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Start(r.Context(), user, token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, view)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Get(r.Context(), chi.URLParam(r, "sessionID"), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

type billingRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email" validate:"omitempty,email"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
}

func (h *Handler) UpdateBilling(w http.ResponseWriter, r *http.Request) {
	user, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req billingRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.Svc.UpdateBilling(r.Context(), chi.URLParam(r, "sessionID"), user.ID, BillingInfo(req))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

type applyAddressRequest struct {
	AddressID string `json:"addressId" validate:"required"`
}

func (h *Handler) ApplyAddress(w http.ResponseWriter, r *http.Request) {
	user, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req applyAddressRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.Svc.ApplyAddress(r.Context(), chi.URLParam(r, "sessionID"), user.ID, req.AddressID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

type paymentMethodRequest struct {
	Method string   `json:"method" validate:"required"`
	Card   CardInfo `json:"card"`
}

func (h *Handler) SetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	user, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req paymentMethodRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.Svc.SetPaymentMethod(r.Context(), chi.URLParam(r, "sessionID"), user.ID, req.Method, req.Card)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

type notesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

func (h *Handler) SetNotes(w http.ResponseWriter, r *http.Request) {
	user, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req notesRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.Svc.SetNotes(r.Context(), chi.URLParam(r, "sessionID"), user.ID, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	user, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Get(r.Context(), chi.URLParam(r, "sessionID"), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	grouped := map[voucher.Category][]voucher.Voucher{
		voucher.CategoryClothes:  {},
		voucher.CategoryShipping: {},
	}
	for _, v := range view.Vouchers {
		grouped[v.Category] = append(grouped[v.Category], v)
	}
	common.JSONData(w, http.StatusOK, grouped)
}

type selectVoucherRequest struct {
	Category string `json:"category" validate:"required,oneof=clothes shipping"`
	Code     string `json:"code"`
}

func (h *Handler) SelectVoucher(w http.ResponseWriter, r *http.Request) {
	user, token, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req selectVoucherRequest
	if !h.decode(w, r, &req) {
		return
	}
	cat := voucher.ParseCategory(req.Category)
	view, err := h.Svc.SelectVoucher(r.Context(), chi.URLParam(r, "sessionID"), user.ID, token, cat, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	user, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Advance(r.Context(), chi.URLParam(r, "sessionID"), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

func (h *Handler) Retreat(w http.ResponseWriter, r *http.Request) {
	user, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Retreat(r.Context(), chi.URLParam(r, "sessionID"), user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	user, token, ok := h.identity(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Refresh(r.Context(), chi.URLParam(r, "sessionID"), user.ID, token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, token, ok := h.identity(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Submit(r.Context(), chi.URLParam(r, "sessionID"), user.ID, token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, view)
}

// identity pulls the authenticated user and bearer token from the context.
// A missing token is an authentication failure, not a submission failure.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (common.User, string, bool) {
	user, ok := common.UserFrom(r.Context())
	if !ok || user.ID == "" {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return common.User{}, "", false
	}
	token, ok := common.TokenFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return common.User{}, "", false
	}
	return user, token, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid payload", nil)
		return false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(dst); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, validationMessage(err), nil)
			return false
		}
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return "invalid fields: " + strings.Join(fields, ", ")
	}
	return "invalid payload"
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if appErr, ok := common.AsAppError(err); ok {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = common.CodeInternal
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unexpected error", nil)
}
