package payment

import (
	"encoding/json"
	"net/http"

	"github.com/noah-isme/popup-offer/internal/common"
)

// Handler exposes the payment intent endpoint and the client payment config.
type Handler struct {
	Gateway        *Gateway
	PublishableKey string
}

type intentReq struct {
	Amount json.RawMessage `json:"amount"`
}

type configResp struct {
	PublishableKey string `json:"publishableKey"`
	Mock           bool   `json:"mock"`
	Currency       string `json:"currency"`
}

// CreateIntent handles POST /api/create-payment-intent.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Gateway == nil {
		common.WriteError(w, notConfigured())
		return
	}
	var req intentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteError(w, invalidAmount())
		return
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var opts []IntentOption
	if key := common.IdempotencyKey(r.Context()); key != "" {
		opts = append(opts, WithIdempotencyKey(key))
	}
	intent, err := h.Gateway.CreatePaymentIntent(r.Context(), amount, opts...)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, intent)
}

// Config handles GET /api/payment-config.
func (h *Handler) Config(w http.ResponseWriter, _ *http.Request) {
	resp := configResp{Currency: DefaultCurrency}
	if h != nil {
		resp.PublishableKey = h.PublishableKey
		if h.Gateway != nil {
			resp.Mock = h.Gateway.Mode() == "mock"
			resp.Currency = h.Gateway.Currency()
		}
	}
	common.JSON(w, http.StatusOK, resp)
}
