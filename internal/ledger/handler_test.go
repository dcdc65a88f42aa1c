package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func TestHandlerListFilters(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	user := uuid.NewString()
	_, _ = svc.Record(ctx, deposit(user, "0x1", StatusCompleted))
	_, _ = svc.Record(ctx, deposit(user, "failed-1", StatusFailed))

	app := fiber.New()
	h := NewHandler(svc)
	app.Get("/transactions", h.List)
	app.Get("/transactions/:reference", h.ByReference)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/transactions?type=deposit&status=completed", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var body struct {
		Count        int                   `json:"count"`
		Transactions []transactionResponse `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Transactions[0].Reference != "0x1" || body.Transactions[0].Amount != "500" {
		t.Fatalf("unexpected listing %+v", body)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/transactions?type=LOAN", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/transactions/0xmissing", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
