package payments

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeduper struct {
	seen map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: map[string]bool{}}
}

func (f *fakeDeduper) AlreadyProcessed(_ context.Context, source, eventID string) (bool, error) {
	return f.seen[source+":"+eventID], nil
}

func (f *fakeDeduper) MarkProcessed(_ context.Context, source, eventID string) (bool, error) {
	key := source + ":" + eventID
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

const testSecret = "whsec_test"

func postWebhook(t *testing.T, handler *WebhookHandler, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	if sign {
		req.Header.Set(SignatureHeader, SignPayload(testSecret, body))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	r, _, settler, _ := newTestReconciler(t)
	handler := NewWebhookHandler(testSecret, r, newFakeDeduper(), nil)

	body := []byte(`{"event_id":"evt_1","event":"payment.completed","data":{"order_id":"order_x","payment_id":"pay_1"}}`)
	rec := postWebhook(t, handler, body, false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, settler.confirmed)
}

func TestWebhookRejectsMalformedEvent(t *testing.T) {
	r, _, _, _ := newTestReconciler(t)
	handler := NewWebhookHandler(testSecret, r, newFakeDeduper(), nil)

	rec := postWebhook(t, handler, []byte(`{"event":"payment.completed"}`), true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookProcessesAndDedups(t *testing.T) {
	r, mock, settler, _ := newTestReconciler(t)
	handler := NewWebhookHandler(testSecret, r, newFakeDeduper(), nil)

	apptID := uuid.New()
	order := &Order{
		ID:             uuid.New(),
		ClientID:       uuid.New(),
		AppointmentID:  &apptID,
		Status:         OrderPending,
		GatewayOrderID: "order_x",
	}
	mock.ExpectQuery("SELECT (.+) FROM payment_orders").
		WithArgs("order_x").
		WillReturnRows(orderRow(order))
	mock.ExpectExec("UPDATE payment_orders").
		WithArgs("pay_1", pgxmock.AnyArg(), order.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	body := []byte(`{"event_id":"evt_1","event":"payment.completed","data":{"order_id":"order_x","payment_id":"pay_1"}}`)
	rec := postWebhook(t, handler, body, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{apptID}, settler.confirmed)

	// Redelivery of the same event id is acknowledged without touching the
	// database at all.
	rec = postWebhook(t, handler, body, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, settler.confirmed, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookAcknowledgesUnknownEventKind(t *testing.T) {
	r, _, _, _ := newTestReconciler(t)
	handler := NewWebhookHandler(testSecret, r, newFakeDeduper(), nil)

	body := []byte(`{"event_id":"evt_2","event":"payout.created","data":{"order_id":"order_x"}}`)
	rec := postWebhook(t, handler, body, true)
	assert.Equal(t, http.StatusOK, rec.Code)
}
