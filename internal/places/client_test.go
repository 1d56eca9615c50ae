package places

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammed-shakir/poi-cache/internal/core/model"
)

func TestSearchNearby_RequestShapeAndDecode(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s", r.Method)
		}
		if got := r.Header.Get("X-Goog-Api-Key"); got != "k123" {
			t.Errorf("api key header: got %q", got)
		}
		if got := r.Header.Get("X-Goog-FieldMask"); got != "places.id" {
			t.Errorf("field mask header: got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type: got %q", got)
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &gotBody); err != nil {
			t.Errorf("body json: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"places":[
			{"id":"a","displayName":{"text":"Cafe A"},"location":{"latitude":59.3,"longitude":18.0},"editorialSummary":{"text":"x"}},
			{"id":"b","location":{"latitude":59.31,"longitude":18.01},"userRatingCount":"42"}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.Client(), Config{URL: srv.URL, APIKey: "k123", FieldMask: "places.id"})
	req := model.Request{Lat: 59.3, Lng: 18.0, Radius: 500, BooleanQuery: "cafe"}
	got, err := c.SearchNearby(context.Background(), req, model.SubQuery{Included: []string{"cafe"}, Excluded: []string{"bar"}})
	if err != nil {
		t.Fatalf("SearchNearby: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 places, got %d", len(got))
	}
	if got[0].DisplayName == nil || got[0].DisplayName.Text != "Cafe A" {
		t.Fatalf("display name not decoded: %+v", got[0].DisplayName)
	}
	if _, ok := got[0].Extra["editorialSummary"]; !ok {
		t.Fatalf("unknown field should be kept in Extra, got %v", got[0].Extra)
	}
	if _, ok := got[0].Extra["id"]; ok {
		t.Fatalf("known field leaked into Extra")
	}

	inc, _ := gotBody["includedTypes"].([]any)
	if len(inc) != 1 || inc[0] != "cafe" {
		t.Fatalf("includedTypes: %v", gotBody["includedTypes"])
	}
	exc, _ := gotBody["excludedTypes"].([]any)
	if len(exc) != 1 || exc[0] != "bar" {
		t.Fatalf("excludedTypes: %v", gotBody["excludedTypes"])
	}
	lr, _ := gotBody["locationRestriction"].(map[string]any)
	circle, _ := lr["circle"].(map[string]any)
	if circle["radius"] != 500.0 {
		t.Fatalf("radius: %v", circle["radius"])
	}
	center, _ := circle["center"].(map[string]any)
	if center["latitude"] != 59.3 || center["longitude"] != 18.0 {
		t.Fatalf("center: %v", center)
	}
}

func TestSearchNearby_NonOKIsUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.Client(), Config{URL: srv.URL})
	_, err := c.SearchNearby(context.Background(), model.Request{Lat: 1, Lng: 1, Radius: 10}, model.SubQuery{Included: []string{"bar"}})
	if !errors.Is(err, ErrUpstreamStatus) {
		t.Fatalf("want ErrUpstreamStatus, got %v", err)
	}
}

func TestSearchNearby_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.Client(), Config{URL: srv.URL})
	got, err := c.SearchNearby(context.Background(), model.Request{Lat: 1, Lng: 1, Radius: 10}, model.SubQuery{Included: []string{"bar"}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want no places, got %d", len(got))
	}
}

func TestSearchNearby_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"places":[]}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(nil, srv.Client(), Config{URL: srv.URL})
	if _, err := c.SearchNearby(ctx, model.Request{Lat: 1, Lng: 1, Radius: 10}, model.SubQuery{Included: []string{"bar"}}); err == nil {
		t.Fatal("expected error on canceled context")
	}
}
