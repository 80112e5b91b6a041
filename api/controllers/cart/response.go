package cart

import (
	cartsvc "github.com/identitywear/storefront-backend/internal/cart"
)

type cartResponse struct {
	SessionID string             `json:"session_id"`
	Items     []cartsvc.LineItem `json:"items"`
	ItemCount int                `json:"item_count"`
	Totals    cartsvc.Totals     `json:"totals"`
	Notice    *cartsvc.Notice    `json:"notice,omitempty"`
}

func newCartResponse(sessionID string, store *cartsvc.Store, notice cartsvc.Notice) cartResponse {
	items := store.Items()
	resp := cartResponse{
		SessionID: sessionID,
		Items:     items,
		Totals:    store.Totals(),
	}
	for _, item := range items {
		resp.ItemCount += item.Quantity
	}
	if notice.Kind != cartsvc.NoticeNone {
		resp.Notice = &notice
	}
	return resp
}
