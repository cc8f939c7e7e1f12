package entitlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// Checkが正しい認証ヘッダーとボディでAPIを呼び出すことを検証
func TestClient_Check(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(CheckResult{Allowed: true})
	}))
	defer server.Close()

	client := NewClient("sk-test", server.URL, testLogger())

	result, err := client.Check(context.Background(), "user-1", FeatureQuizMode)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}

	if !result.Allowed {
		t.Error("expected allowed result")
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotPath != "/check" {
		t.Errorf("path = %q, want /check", gotPath)
	}
	if gotBody["customer_id"] != "user-1" {
		t.Errorf("customer_id = %q, want user-1", gotBody["customer_id"])
	}
	if gotBody["feature_id"] != FeatureQuizMode {
		t.Errorf("feature_id = %q, want %q", gotBody["feature_id"], FeatureQuizMode)
	}
}

// APIがエラーステータスを返した場合にCheckがエラーを返すことを検証
func TestClient_Check_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient("sk-test", server.URL, testLogger())

	_, err := client.Check(context.Background(), "user-1", FeatureQuizMode)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

// Trackが使用量を送信することを検証
func TestClient_Track(t *testing.T) {
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient("sk-test", server.URL, testLogger())

	if err := client.Track(context.Background(), "user-1", FeatureAIQuestions, 1); err != nil {
		t.Fatalf("Track returned error: %v", err)
	}

	if gotBody["feature_id"] != FeatureAIQuestions {
		t.Errorf("feature_id = %v", gotBody["feature_id"])
	}
	if gotBody["value"].(float64) != 1 {
		t.Errorf("value = %v, want 1", gotBody["value"])
	}
}

// Checkoutがリダイレクト先URLを返すことを検証
func TestClient_Checkout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout" {
			t.Errorf("path = %q, want /checkout", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"url": "https://pay.example.com/cs_123"})
	}))
	defer server.Close()

	client := NewClient("sk-test", server.URL, testLogger())

	url, err := client.Checkout(context.Background(), "user-1", ProductPro, "https://app.example.com/done")
	if err != nil {
		t.Fatalf("Checkout returned error: %v", err)
	}
	if url != "https://pay.example.com/cs_123" {
		t.Errorf("url = %q", url)
	}
}

// BillingPortalがポータルURLを返すことを検証
func TestClient_BillingPortal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customers/user-1/billing_portal" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"url": "https://billing.example.com/p_123"})
	}))
	defer server.Close()

	client := NewClient("sk-test", server.URL, testLogger())

	url, err := client.BillingPortal(context.Background(), "user-1", "https://app.example.com/settings")
	if err != nil {
		t.Fatalf("BillingPortal returned error: %v", err)
	}
	if url != "https://billing.example.com/p_123" {
		t.Errorf("url = %q", url)
	}
}

// 空エンドポイント指定時にデフォルトエンドポイントが使われることを検証
func TestNewClient_DefaultEndpoint(t *testing.T) {
	client := NewClient("sk-test", "", testLogger())
	if client.endpoint != defaultEndpoint {
		t.Errorf("endpoint = %q, want %q", client.endpoint, defaultEndpoint)
	}
}
