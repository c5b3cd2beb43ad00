package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/taskfair/marketplace-backend/internal/models"
	"github.com/taskfair/marketplace-backend/internal/repository"
	"github.com/taskfair/marketplace-backend/internal/service"
)

// stubEscrowStore lets a real EscrowService run against canned outcomes.
type stubEscrowStore struct {
	result     *repository.ConfirmEscrowResult
	err        error
	calls      int
	lastParams repository.ConfirmEscrowParams
}

func (s *stubEscrowStore) ConfirmEscrow(ctx context.Context, p repository.ConfirmEscrowParams) (*repository.ConfirmEscrowResult, error) {
	s.calls++
	s.lastParams = p
	return s.result, s.err
}

func (s *stubEscrowStore) GetAuthorizedByTask(ctx context.Context, taskID uuid.UUID) (*models.Payment, error) {
	return nil, repository.ErrPaymentNotFound
}

func newWebhookRouter(store *stubEscrowStore, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	escrow := service.NewEscrowService(store, nil, nil, nil, nil, nil, nil)
	handler := NewWebhookHandler(escrow, secret)
	r := gin.New()
	r.POST("/webhooks/processor", handler.HandleProcessorEvent)
	return r
}

func checkoutEventBody(eventID string, taskID, offerID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {
			"session_id": "cs_1",
			"metadata": {
				"task_id": %q,
				"offer_id": %q,
				"base_amount": "100.00",
				"platform_fee": "12.50",
				"payment_method": "online"
			}
		}
	}`, eventID, taskID, offerID))
}

func TestWebhook_CheckoutCompleted_Success(t *testing.T) {
	taskID := uuid.New()
	offerID := uuid.New()
	store := &stubEscrowStore{result: &repository.ConfirmEscrowResult{
		Payment: &models.Payment{ID: uuid.New(), Amount: 100},
		Offer:   &models.Offer{ID: offerID, Status: models.OfferStatusAccepted},
		Task:    &models.Task{ID: taskID, Status: models.TaskStatusInProgress},
	}}
	r := newWebhookRouter(store, "")

	req, _ := http.NewRequest("POST", "/webhooks/processor", bytes.NewReader(checkoutEventBody("evt_1", taskID, offerID)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, 100.0, store.lastParams.Amount)
	assert.Equal(t, 12.5, store.lastParams.PlatformFee)
}

func TestWebhook_InvalidSecret(t *testing.T) {
	store := &stubEscrowStore{}
	r := newWebhookRouter(store, "whsec_expected")

	req, _ := http.NewRequest("POST", "/webhooks/processor", bytes.NewReader(checkoutEventBody("evt_1", uuid.New(), uuid.New())))
	req.Header.Set("X-Webhook-Secret", "whsec_wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, store.calls)
}

func TestWebhook_RedeliveryAcknowledged(t *testing.T) {
	// A duplicate delivery must answer 200 so the processor stops retrying.
	store := &stubEscrowStore{err: repository.ErrEventAlreadyHandled}
	r := newWebhookRouter(store, "")

	req, _ := http.NewRequest("POST", "/webhooks/processor", bytes.NewReader(checkoutEventBody("evt_dup", uuid.New(), uuid.New())))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_UnknownReferenceAcknowledged(t *testing.T) {
	store := &stubEscrowStore{err: repository.ErrTaskNotFound}
	r := newWebhookRouter(store, "")

	req, _ := http.NewRequest("POST", "/webhooks/processor", bytes.NewReader(checkoutEventBody("evt_ghost", uuid.New(), uuid.New())))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_MalformedMetadataAcknowledged(t *testing.T) {
	store := &stubEscrowStore{}
	r := newWebhookRouter(store, "")

	body := []byte(`{
		"id": "evt_bad",
		"type": "checkout.session.completed",
		"data": {"session_id": "cs_1", "metadata": {"task_id": "not-a-uuid"}}
	}`)
	req, _ := http.NewRequest("POST", "/webhooks/processor", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, store.calls)
}

func TestWebhook_UnhandledTypeAcknowledged(t *testing.T) {
	store := &stubEscrowStore{}
	r := newWebhookRouter(store, "")

	body := []byte(`{"id": "evt_x", "type": "payment_intent.succeeded", "data": {}}`)
	req, _ := http.NewRequest("POST", "/webhooks/processor", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, store.calls)
}

func TestWebhook_MissingEnvelopeFields(t *testing.T) {
	store := &stubEscrowStore{}
	r := newWebhookRouter(store, "")

	req, _ := http.NewRequest("POST", "/webhooks/processor", bytes.NewReader([]byte(`{"data": {}}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
