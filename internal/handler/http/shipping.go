package http

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront-shipping/internal/domain"
	"github.com/utafrali/storefront-shipping/internal/geolocation"
	"github.com/utafrali/storefront-shipping/internal/service"
	"github.com/utafrali/storefront-shipping/pkg/httputil"
	"github.com/utafrali/storefront-shipping/pkg/middleware"
	"github.com/utafrali/storefront-shipping/pkg/validator"
)

// ShippingHandler handles HTTP requests for shipping sessions and the
// caller's address book.
type ShippingHandler struct {
	service   *service.ShippingService
	committer *service.Committer
	logger    *slog.Logger
}

// NewShippingHandler creates a new shipping HTTP handler.
func NewShippingHandler(svc *service.ShippingService, committer *service.Committer, logger *slog.Logger) *ShippingHandler {
	return &ShippingHandler{
		service:   svc,
		committer: committer,
		logger:    logger,
	}
}

// --- Request DTOs ---

// StartSessionRequest is the JSON request body for opening a session.
type StartSessionRequest struct {
	CheckoutID string `json:"checkout_id" validate:"omitempty,max=64"`
}

// SetAddressTextRequest replaces the free-form address text.
type SetAddressTextRequest struct {
	Text *string `json:"text" validate:"required,max=1000"`
}

// SetPhoneRequest replaces the phone number.
type SetPhoneRequest struct {
	Phone *string `json:"phone" validate:"required"`
}

// SelectAddressRequest picks a saved address.
type SelectAddressRequest struct {
	AddressID string `json:"address_id" validate:"required,uuid"`
}

// PinLocationRequest is a coordinate picked on the map.
type PinLocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
}

// LocateRequest carries the client's device geolocation outcome. A null or
// missing device means the client has no location capability.
type LocateRequest struct {
	Device *geolocation.DeviceReport `json:"device"`
}

// SubmitRequest is the JSON request body for submitting a session.
type SubmitRequest struct {
	SaveAddress bool `json:"save_address"`
}

// --- Handlers ---

// StartSession handles POST /api/v1/shipping/sessions
// @Summary Start a shipping session
// @Description Opens a shipping session, prefilled from the caller's last confirmed shipping details.
// @Tags shipping
// @Accept json
// @Produce json
// @Param request body StartSessionRequest false "Checkout reference"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/shipping/sessions [post]
func (h *ShippingHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.service.Start(r.Context(), middleware.UserIDFromContext(r.Context()), req.CheckoutID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: res})
}

// GetSession handles GET /api/v1/shipping/sessions/{id}
// @Summary Get a shipping session
// @Tags shipping
// @Produce json
// @Param id path string true "Session UUID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/shipping/sessions/{id} [get]
func (h *ShippingHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.service.Get(r.Context(), middleware.UserIDFromContext(r.Context()), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: service.Result{Session: session, Notices: domain.Notices{}},
	})
}

// SetAddressText handles PUT /api/v1/shipping/sessions/{id}/address
// @Summary Set the free-text shipping address
// @Description Replaces the address text. The coordinate and provenance are left as they are.
// @Tags shipping
// @Accept json
// @Produce json
// @Param id path string true "Session UUID"
// @Param request body SetAddressTextRequest true "Address text"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/shipping/sessions/{id}/address [put]
func (h *ShippingHandler) SetAddressText(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req SetAddressTextRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.service.SetText(r.Context(), middleware.UserIDFromContext(r.Context()), id, *req.Text)
	h.writeResult(w, r, res, err)
}

// SetPhone handles PUT /api/v1/shipping/sessions/{id}/phone. Input that is
// not made of at most ten digits is ignored and the unchanged session is
// returned.
// @Summary Set the contact phone number
// @Tags shipping
// @Accept json
// @Produce json
// @Param id path string true "Session UUID"
// @Param request body SetPhoneRequest true "Phone digits"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/shipping/sessions/{id}/phone [put]
func (h *ShippingHandler) SetPhone(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req SetPhoneRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.service.SetPhone(r.Context(), middleware.UserIDFromContext(r.Context()), id, *req.Phone)
	h.writeResult(w, r, res, err)
}

// SelectAddress handles POST /api/v1/shipping/sessions/{id}/select
// @Summary Select a saved address
// @Description Applies one of the caller's saved addresses. If the address book cannot be read the session is returned unchanged with an error notice.
// @Tags shipping
// @Accept json
// @Produce json
// @Param id path string true "Session UUID"
// @Param request body SelectAddressRequest true "Saved address id"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/shipping/sessions/{id}/select [post]
func (h *ShippingHandler) SelectAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req SelectAddressRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.service.Select(r.Context(), middleware.UserIDFromContext(r.Context()), id, req.AddressID)
	h.writeResult(w, r, res, err)
}

// PinLocation handles POST /api/v1/shipping/sessions/{id}/pin
// @Summary Pin the shipping location on the map
// @Tags shipping
// @Accept json
// @Produce json
// @Param id path string true "Session UUID"
// @Param request body PinLocationRequest true "Coordinate"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/shipping/sessions/{id}/pin [post]
func (h *ShippingHandler) PinLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req PinLocationRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.service.Pin(r.Context(), middleware.UserIDFromContext(r.Context()), id, domain.Coordinate{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	})
	h.writeResult(w, r, res, err)
}

// Locate handles POST /api/v1/shipping/sessions/{id}/locate
// @Summary Detect the caller's location
// @Description Applies the device fix, or falls back to an IP lookup. Location failures answer 200 with notices.
// @Tags shipping
// @Accept json
// @Produce json
// @Param id path string true "Session UUID"
// @Param request body LocateRequest false "Device report"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/shipping/sessions/{id}/locate [post]
func (h *ShippingHandler) Locate(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req LocateRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.service.Locate(r.Context(), middleware.UserIDFromContext(r.Context()), id, service.LocateInput{
		Device:   req.Device,
		ClientIP: clientIP(r),
	})
	h.writeResult(w, r, res, err)
}

// Submit handles POST /api/v1/shipping/sessions/{id}/submit
// @Summary Submit the shipping details
// @Description Validates the selection and commits it. A 422 carries the session and the validation notice.
// @Tags shipping
// @Accept json
// @Produce json
// @Param id path string true "Session UUID"
// @Param request body SubmitRequest false "Submit options"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/shipping/sessions/{id}/submit [post]
func (h *ShippingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.committer.Submit(r.Context(), middleware.UserIDFromContext(r.Context()), id, service.SubmitInput{
		SaveAddress: req.SaveAddress,
	})
	if err != nil {
		if res != nil {
			httputil.WriteErrorWithData(w, r, err, res, h.logger)
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

func (h *ShippingHandler) writeResult(w http.ResponseWriter, r *http.Request, res *service.Result, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return "", false
	}
	return id.String(), true
}

// clientIP returns the caller's address as set by chi's RealIP middleware.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
