package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmit_SendsRanking(t *testing.T) {
	var got submitRequest
	var gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"average_final_score":73.25,"details":{"n":3}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "someone@example.com", 0)
	resp, err := c.Submit(context.Background(), "tax_lawyer.yml", []string{"c", "a", "b"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if gotAuth != "someone@example.com" {
		t.Errorf("Authorization = %q, want identity verbatim", gotAuth)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if got.ConfigPath != "tax_lawyer.yml" {
		t.Errorf("config_path = %q", got.ConfigPath)
	}
	if len(got.ObjectIDs) != 3 || got.ObjectIDs[0] != "c" || got.ObjectIDs[1] != "a" || got.ObjectIDs[2] != "b" {
		t.Errorf("object_ids = %v, want [c a b]", got.ObjectIDs)
	}

	score, ok := resp.AverageFinalScore()
	if !ok || score != 73.25 {
		t.Errorf("AverageFinalScore = %v, %v; want 73.25, true", score, ok)
	}
	if _, ok := resp["details"]; !ok {
		t.Error("response not passed through verbatim")
	}
}

func TestSubmit_NonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "id", 0).Submit(context.Background(), "x.yml", []string{"a"})
	if !errors.Is(err, ErrSubmission) {
		t.Fatalf("err = %v, want ErrSubmission", err)
	}
}

func TestSubmit_JSONArrayIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1,2,3]`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "id", 0).Submit(context.Background(), "x.yml", []string{"a"})
	if !errors.Is(err, ErrSubmission) {
		t.Fatalf("err = %v, want ErrSubmission", err)
	}
}

func TestSubmit_ErrorStatusWithJSONBodyPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"unknown config"}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "id", 0).Submit(context.Background(), "nope.yml", []string{"a"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp["error"] != "unknown config" {
		t.Errorf("response = %v", resp)
	}
	if _, ok := resp.AverageFinalScore(); ok {
		t.Error("AverageFinalScore reported present for an error body")
	}
}

func TestSubmit_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, "id", 0).Submit(context.Background(), "x.yml", []string{"a"})
	if !errors.Is(err, ErrSubmission) {
		t.Fatalf("err = %v, want ErrSubmission", err)
	}
}

func TestSubmit_EmptyIDsSentAsArray(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "id", 0).Submit(context.Background(), "x.yml", nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ids, ok := raw["object_ids"].([]any); !ok || len(ids) != 0 {
		t.Errorf("object_ids = %#v, want []", raw["object_ids"])
	}
}
