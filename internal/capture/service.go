// Package capture turns inbound HTTP requests into durable captured-request
// records and hands them to the notification broker for live delivery.
package capture

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/hookscope/hookscope/internal/notify"
	"github.com/hookscope/hookscope/internal/storage"
)

// Service validates the target endpoint, normalizes the inbound request and
// persists it, then publishes the stored record to live viewers.
type Service struct {
	store  *storage.Store
	broker *notify.Broker
}

// NewService creates a capture service.
func NewService(store *storage.Store, broker *notify.Broker) *Service {
	return &Service{store: store, broker: broker}
}

// Capture records one inbound request against an endpoint.
//
// storage.ErrEndpointNotFound propagates verbatim when the endpoint does not
// exist; the HTTP boundary owes the sender a 404, not a 500. Capture is
// successful once the row is persisted: the publish to the broker is
// fire-and-forget and cannot affect the result. Exactly one row and at most
// one publish happen per call, however many viewers are subscribed.
func (s *Service) Capture(ctx context.Context, endpointID, method string, header http.Header, body string) (*storage.CapturedRequest, error) {
	headersJSON, err := json.Marshal(NormalizeHeaders(header))
	if err != nil {
		return nil, err
	}

	request, err := s.store.InsertCapturedRequest(ctx, endpointID, method, string(headersJSON), body)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(request)
	if err != nil {
		// The record is durable; live delivery is best-effort.
		log.Printf("Failed to serialize captured request %s: %v", request.ID, err)
		return request, nil
	}
	s.broker.Publish(endpointID, payload)

	return request, nil
}

// NormalizeHeaders collapses an http.Header into a flat name-to-value map.
// Multi-valued headers keep their last-seen value; names keep the case they
// arrived with after transport canonicalization.
func NormalizeHeaders(header http.Header) map[string]string {
	normalized := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) == 0 {
			continue
		}
		normalized[name] = values[len(values)-1]
	}
	return normalized
}
