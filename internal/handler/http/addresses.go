package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront-shipping/internal/domain"
	"github.com/utafrali/storefront-shipping/pkg/httputil"
	"github.com/utafrali/storefront-shipping/pkg/middleware"
)

// AddressListResponse is the caller's address book.
type AddressListResponse struct {
	Addresses []domain.Address `json:"addresses"`
	Notices   domain.Notices   `json:"notices"`
}

func newAddressList(addresses []domain.Address, notices domain.Notices) AddressListResponse {
	if addresses == nil {
		addresses = []domain.Address{}
	}
	if notices == nil {
		notices = domain.Notices{}
	}
	return AddressListResponse{Addresses: addresses, Notices: notices}
}

// ListAddresses handles GET /api/v1/shipping/addresses
// @Summary List saved addresses
// @Description Anonymous callers get an empty list.
// @Tags addresses
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/v1/shipping/addresses [get]
func (h *ShippingHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.service.ListAddresses(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newAddressList(addresses, nil)})
}

// DeleteAddress handles DELETE /api/v1/shipping/addresses/{id}?confirm=true
// @Summary Delete a saved address
// @Description Requires confirm=true. On a store failure the re-fetched list is returned with the error.
// @Tags addresses
// @Produce json
// @Param id path string true "Address UUID"
// @Param confirm query bool true "Explicit confirmation"
// @Success 200 {object} map[string]interface{}
// @Failure 428 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/v1/shipping/addresses/{id} [delete]
func (h *ShippingHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	addresses, notices, err := h.service.DeleteAddress(r.Context(), middleware.UserIDFromContext(r.Context()), id.String(), confirmed)
	if err != nil {
		if addresses != nil || len(notices) > 0 {
			httputil.WriteErrorWithData(w, r, err, newAddressList(addresses, notices), h.logger)
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newAddressList(addresses, notices)})
}
