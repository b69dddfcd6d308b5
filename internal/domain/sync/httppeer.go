package sync

import (
	"context"
	"net/http"

	"medical-record-store/internal/domain/records"
	"medical-record-store/internal/platform/httpclient"
)

// Wire types del protocolo de sync sobre HTTP. También los usa el handler
// del lado servidor.
type ClockSummaryResponse struct {
	Clocks map[string]records.VectorClock `json:"clocks"`
}

type EntriesSinceRequest struct {
	RecordID string              `json:"record_id"`
	Since    records.VectorClock `json:"since"`
}

type EntriesSinceResponse struct {
	Entries []records.ChangeEntry `json:"entries"`
}

type PushRequest struct {
	Entries []records.ChangeEntry `json:"entries"`
}

type PushResponse struct {
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
}

// HTTPPeer habla con el endpoint de sync de otra réplica (el servidor, u
// otro device). Implementa Peer sobre el httpclient de la plataforma.
type HTTPPeer struct {
	client  *httpclient.Client
	headers map[string]string
}

func NewHTTPPeer(client *httpclient.Client, headers map[string]string) *HTTPPeer {
	return &HTTPPeer{client: client, headers: headers}
}

func (p *HTTPPeer) ClockSummary(ctx context.Context) (map[string]records.VectorClock, error) {
	var resp ClockSummaryResponse
	if err := p.client.DoJSON(ctx, http.MethodGet, "/sync/clocks", p.headers, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Clocks == nil {
		resp.Clocks = map[string]records.VectorClock{}
	}
	return resp.Clocks, nil
}

func (p *HTTPPeer) EntriesSince(ctx context.Context, recordID string, since records.VectorClock) ([]records.ChangeEntry, error) {
	req := EntriesSinceRequest{RecordID: recordID, Since: since}
	var resp EntriesSinceResponse
	if err := p.client.DoJSON(ctx, http.MethodPost, "/sync/entries", p.headers, req, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Push envía entries locales al peer (la mitad saliente de una ronda
// bidireccional).
func (p *HTTPPeer) Push(ctx context.Context, entries []records.ChangeEntry) (PushResponse, error) {
	var resp PushResponse
	err := p.client.DoJSON(ctx, http.MethodPost, "/sync/push", p.headers, PushRequest{Entries: entries}, &resp)
	return resp, err
}
