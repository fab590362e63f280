package handler_test

import (
	"net/http"
	"testing"

	"github.com/jmerrifield20/forkledger/internal/journal"
)

func TestJournalOverview_genesisOnly(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/v1/journal", nil, nil)
	expectStatus(t, w, http.StatusOK)

	var resp struct {
		Entries int    `json:"entries"`
		Root    string `json:"root"`
	}
	decode(t, w, &resp)
	if resp.Entries != 1 || resp.Root != journal.GenesisHash {
		t.Errorf("expected only the genesis entry, got %+v", resp)
	}
}

func TestJournal_recordsLedgerEvents(t *testing.T) {
	api := newTestAPI(t)
	id := api.createLedger(t, true)
	api.clock.Advance(1)
	expectStatus(t, api.do(t, http.MethodPost, "/api/v1/ledgers/"+id+"/mint", &ctrl,
		map[string]string{"to": alice.String(), "amount": "3"}), http.StatusOK)

	w := api.do(t, http.MethodGet, "/api/v1/journal/entries?from=1&limit=10", nil, nil)
	expectStatus(t, w, http.StatusOK)
	var page struct {
		Entries []journal.Entry `json:"entries"`
		Count   int             `json:"count"`
	}
	decode(t, w, &page)
	if page.Count != 2 || page.Entries[0].Kind != "ledger.created" || page.Entries[1].Kind != "mint" {
		t.Fatalf("unexpected entries %+v", page.Entries)
	}
	if page.Entries[1].LedgerID != id || page.Entries[1].PrevHash != page.Entries[0].Hash {
		t.Errorf("entries not chained: %+v", page.Entries)
	}

	w = api.do(t, http.MethodGet, "/api/v1/journal/verify", nil, nil)
	expectStatus(t, w, http.StatusOK)
	var verify struct {
		Valid bool `json:"valid"`
	}
	decode(t, w, &verify)
	if !verify.Valid {
		t.Error("expected a valid chain")
	}

	w = api.do(t, http.MethodGet, "/api/v1/journal/entries?from=50", nil, nil)
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &page)
	if page.Count != 0 || page.Entries == nil {
		t.Errorf("expected an empty, non-null page, got %s", w.Body.String())
	}
}

func TestJournalGetEntry(t *testing.T) {
	api := newTestAPI(t)

	expectStatus(t, api.do(t, http.MethodGet, "/api/v1/journal/entries/0", nil, nil), http.StatusOK)
	expectStatus(t, api.do(t, http.MethodGet, "/api/v1/journal/entries/999", nil, nil), http.StatusNotFound)
	expectStatus(t, api.do(t, http.MethodGet, "/api/v1/journal/entries/abc", nil, nil), http.StatusBadRequest)
	expectStatus(t, api.do(t, http.MethodGet, "/api/v1/journal/entries?limit=0", nil, nil), http.StatusBadRequest)
}
