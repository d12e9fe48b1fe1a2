package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"certivax/internal/adapters/auth/jwtverifier"
	mem "certivax/internal/adapters/storage/memory"
	"certivax/internal/domain/registry"
	"certivax/internal/router"
)

const (
	ownerID   = "owner-1"
	farmerID  = "farmer-1"
	vetID     = "vet-1"
	auditorID = "auditor-1"
)

func newServer(t *testing.T, opts router.Options) *httptest.Server {
	t.Helper()

	if opts.Service == nil {
		svc := registry.NewService(mem.NewStore(), registry.Options{})
		if _, err := svc.Bootstrap(context.Background(), ownerID, registry.Commitment([]byte("certivax"))); err != nil {
			t.Fatalf("bootstrap: %v", err)
		}
		opts.Service = svc
	}
	ts := httptest.NewServer(router.NewRouter(opts))
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTP_EndToEnd_CertificationFlow(t *testing.T) {
	ts := newServer(t, router.Options{})

	// 1) Owner reparte roles
	assignRole(t, ts.URL, farmerID, "Farmer")
	assignRole(t, ts.URL, vetID, "Vet")
	assignRole(t, ts.URL, auditorID, "4")
	{
		st, body := doReq(t, ts.URL, "GET", "/roles/"+auditorID, "", nil)
		if st != http.StatusOK || !strings.Contains(string(body), `"role":"Auditor"`) {
			t.Fatalf("expected auditor role, got %d body=%s", st, string(body))
		}
	}

	// 2) Productor da de alta el animal
	{
		st, body := doReq(t, ts.URL, "POST", "/animals", farmerID, map[string]any{"id": "VACA-001"})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 create animal, got %d body=%s", st, string(body))
		}
		var a animalResp
		decodeBody(t, body, &a)
		if a.QualityScore != 100 || a.CurrentState != "Created" || !a.IsActive {
			t.Fatalf("unexpected animal %+v", a)
		}
	}

	// 3) Veterinario registra una vacunación
	meta := `{"vaccine":"aftosa","lot":"L-77"}`
	hash := commitment(t, ts.URL, meta)
	recID := createRecord(t, ts.URL, vetID, "VACA-001", map[string]any{
		"event_type": "Vaccination",
		"cert_hash":  hash,
		"meta_json":  meta,
	})
	if recID != 1 {
		t.Fatalf("expected first record id 1, got %d", recID)
	}
	if a := getAnimal(t, ts.URL, "VACA-001"); a.CurrentState != "PendingReview" {
		t.Fatalf("expected PendingReview, got %s", a.CurrentState)
	}

	// 4) Auditor verifica
	{
		st, body := doReq(t, ts.URL, "POST", "/records/1/verify", auditorID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 verify, got %d body=%s", st, string(body))
		}
		var r recordResp
		decodeBody(t, body, &r)
		if r.VerifState != "Verified" || r.DTEState != "Verified" {
			t.Fatalf("unexpected record %+v", r)
		}
	}
	if a := getAnimal(t, ts.URL, "VACA-001"); a.CurrentState != "InTracking" || a.QualityScore != 100 {
		t.Fatalf("unexpected animal after verify %+v", a)
	}

	// 5) Segundo registro revocado
	recID2 := createRecord(t, ts.URL, vetID, "VACA-001", map[string]any{
		"event_type": "HealthCheck",
		"cert_hash":  hash,
	})
	{
		st, body := doReq(t, ts.URL, "POST", "/records/"+strconv.FormatUint(recID2, 10)+"/revoke", auditorID, map[string]any{
			"reason": "certificado ilegible",
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 revoke, got %d body=%s", st, string(body))
		}
		var r recordResp
		decodeBody(t, body, &r)
		if r.RevocationReason != "certificado ilegible" || r.VerifState != "Revoked" {
			t.Fatalf("unexpected record %+v", r)
		}
	}
	if a := getAnimal(t, ts.URL, "VACA-001"); a.CurrentState != "Rejected" || a.QualityScore != 90 {
		t.Fatalf("unexpected animal after revoke %+v", a)
	}

	// 6) Re-verificar el primero ya no es posible
	{
		st, body := doReq(t, ts.URL, "POST", "/records/1/verify", auditorID, nil)
		if st != http.StatusConflict {
			t.Fatalf("expected 409 re-verify, got %d body=%s", st, string(body))
		}
		var e errorResp
		decodeBody(t, body, &e)
		if e.Error != "invalid_state" || e.Reason != "record already processed" {
			t.Fatalf("unexpected error body %+v", e)
		}
	}

	// 7) Owner actualiza el estado del registro verificado
	{
		st, body := doReq(t, ts.URL, "POST", "/records/1/state", ownerID, map[string]any{"state": "Updated"})
		if st != http.StatusOK {
			t.Fatalf("expected 200 update state, got %d body=%s", st, string(body))
		}
	}

	// 8) Lecturas públicas
	{
		st, body := doReq(t, ts.URL, "GET", "/records/1/hash?value="+hash, "", nil)
		if st != http.StatusOK || !strings.Contains(string(body), `"matches":true`) {
			t.Fatalf("expected matching hash, got %d body=%s", st, string(body))
		}
	}
	{
		st, body := doReq(t, ts.URL, "GET", "/records/total", "", nil)
		if st != http.StatusOK || !strings.Contains(string(body), `"total":2`) {
			t.Fatalf("expected total 2, got %d body=%s", st, string(body))
		}
	}
	{
		st, body := doReq(t, ts.URL, "GET", "/animals/VACA-001/records", "", nil)
		if st != http.StatusOK || strings.TrimSpace(string(body)) != "[1,2]" {
			t.Fatalf("expected [1,2], got %d body=%s", st, string(body))
		}
	}

	// 9) Cierre del animal: no acepta más registros
	{
		st, body := doReq(t, ts.URL, "POST", "/animals/VACA-001/close", ownerID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 close, got %d body=%s", st, string(body))
		}
	}
	{
		st, _ := doReq(t, ts.URL, "POST", "/animals/VACA-001/records", vetID, map[string]any{
			"event_type": "Feeding",
			"cert_hash":  hash,
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 on closed animal, got %d", st)
		}
	}

	// 10) El log de notificaciones refleja el flujo
	{
		st, body := doReq(t, ts.URL, "GET", "/notifications?after=3&limit=2", "", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 notifications, got %d body=%s", st, string(body))
		}
		var resp struct {
			Items []struct {
				Seq  uint64 `json:"seq"`
				Kind string `json:"kind"`
			} `json:"items"`
			NextAfter uint64 `json:"next_after"`
		}
		decodeBody(t, body, &resp)
		if len(resp.Items) != 2 || resp.Items[0].Kind != "AnimalCreated" || resp.Items[1].Kind != "RecordCreated" || resp.NextAfter != 5 {
			t.Fatalf("unexpected notifications %+v", resp)
		}
	}
}

func TestHTTP_AuthorizationErrors(t *testing.T) {
	ts := newServer(t, router.Options{})
	assignRole(t, ts.URL, vetID, "Vet")

	cases := []struct {
		name     string
		method   string
		path     string
		caller   string
		body     any
		status   int
		errorKey string
	}{
		{"missing principal", "POST", "/animals", "", map[string]any{"id": "A"}, http.StatusUnauthorized, "unauthorized"},
		{"wrong role", "POST", "/animals", vetID, map[string]any{"id": "A"}, http.StatusForbidden, "unauthorized"},
		{"assign owner role", "PUT", "/roles/x", ownerID, map[string]any{"role": "Owner"}, http.StatusBadRequest, "invalid_input"},
		{"demote owner", "DELETE", "/roles/" + ownerID, ownerID, nil, http.StatusUnprocessableEntity, "invariant_violation"},
		{"unknown role name", "PUT", "/roles/x", ownerID, map[string]any{"role": "Sheriff"}, http.StatusBadRequest, "invalid_input"},
		{"bad json", "POST", "/animals", ownerID, "not-an-object", http.StatusBadRequest, "invalid_input"},
		{"missing animal", "GET", "/animals/nope", "", nil, http.StatusNotFound, "not_found"},
		{"bad record id", "GET", "/records/abc", "", nil, http.StatusBadRequest, "invalid_input"},
		{"record zero", "GET", "/records/0", "", nil, http.StatusBadRequest, "invalid_input"},
		{"missing record", "GET", "/records/9", "", nil, http.StatusNotFound, "not_found"},
		{"bad hash", "GET", "/records/1/hash?value=0x12", "", nil, http.StatusBadRequest, "invalid_input"},
		{"bad limit", "GET", "/notifications?limit=0", "", nil, http.StatusBadRequest, "invalid_input"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, body := doReq(t, ts.URL, tc.method, tc.path, tc.caller, tc.body)
			if st != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, st, string(body))
			}
			var e errorResp
			decodeBody(t, body, &e)
			if e.Error != tc.errorKey {
				t.Fatalf("expected error %q, got %+v", tc.errorKey, e)
			}
		})
	}
}

func TestHTTP_DuplicateAnimal(t *testing.T) {
	ts := newServer(t, router.Options{})

	st, _ := doReq(t, ts.URL, "POST", "/animals", ownerID, map[string]any{"id": "A-1"})
	if st != http.StatusCreated {
		t.Fatalf("expected 201, got %d", st)
	}
	st, body := doReq(t, ts.URL, "POST", "/animals", ownerID, map[string]any{"id": "A-1"})
	if st != http.StatusConflict || !strings.Contains(string(body), "already_exists") {
		t.Fatalf("expected 409 already_exists, got %d body=%s", st, string(body))
	}
}

func TestHTTP_RegistryInfo(t *testing.T) {
	ts := newServer(t, router.Options{})

	st, body := doReq(t, ts.URL, "GET", "/registry", "", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", st, string(body))
	}
	var info struct {
		Owner        string `json:"owner"`
		ContractHash string `json:"contract_hash"`
	}
	decodeBody(t, body, &info)
	if info.Owner != ownerID || info.ContractHash != registry.Commitment([]byte("certivax")).Hex() {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestHTTP_JWTMode(t *testing.T) {
	v, err := jwtverifier.New("test-key", "")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	ts := newServer(t, router.Options{AuthVerifier: v})

	// Con verifier el header de debug no alcanza
	st, _ := doReq(t, ts.URL, "POST", "/animals", ownerID, map[string]any{"id": "A-1"})
	if st != http.StatusUnauthorized {
		t.Fatalf("expected 401 with debug header in jwt mode, got %d", st)
	}

	token, err := v.Sign(ownerID, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	b, _ := json.Marshal(map[string]any{"id": "A-1"})
	req, _ := http.NewRequest("POST", ts.URL+"/animals", bytes.NewReader(b))
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(res.Body)
		t.Fatalf("expected 201 with bearer token, got %d body=%s", res.StatusCode, string(body))
	}
}

func TestHTTP_Health(t *testing.T) {
	ts := newServer(t, router.Options{})
	st, body := doReq(t, ts.URL, "GET", "/health", "", nil)
	if st != http.StatusOK || string(body) != "ok" {
		t.Fatalf("expected plain ok, got %d body=%s", st, string(body))
	}

	failing := newServer(t, router.Options{HealthChecks: map[string]router.HealthCheck{
		"store": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}})
	st, body = doReq(t, failing.URL, "GET", "/health", "", nil)
	if st != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d body=%s", st, string(body))
	}
	var checks map[string]string
	decodeBody(t, body, &checks)
	if checks["store"] != "ok" || checks["redis"] != "connection refused" {
		t.Fatalf("unexpected checks %v", checks)
	}
}

func TestHTTP_Metrics(t *testing.T) {
	ts := newServer(t, router.Options{MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("certivax_up 1\n"))
	})})
	st, body := doReq(t, ts.URL, "GET", "/metrics", "", nil)
	if st != http.StatusOK || !strings.Contains(string(body), "certivax_up") {
		t.Fatalf("expected metrics body, got %d body=%s", st, string(body))
	}
}

type animalResp struct {
	ID           string   `json:"id"`
	QualityScore int      `json:"quality_score"`
	CurrentState string   `json:"current_state"`
	IsActive     bool     `json:"is_active"`
	RecordIDs    []uint64 `json:"record_ids"`
}

type recordResp struct {
	ID               uint64 `json:"id"`
	VerifState       string `json:"verif_state"`
	DTEState         string `json:"dte_state"`
	RevocationReason string `json:"revocation_reason"`
}

type errorResp struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func assignRole(t *testing.T, baseURL, principal, role string) {
	t.Helper()

	st, body := doReq(t, baseURL, "PUT", "/roles/"+principal, ownerID, map[string]any{"role": role})
	if st != http.StatusOK {
		t.Fatalf("expected 200 assign role, got %d body=%s", st, string(body))
	}
}

func commitment(t *testing.T, baseURL, meta string) string {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/commitments", "", map[string]any{"meta_json": meta})
	if st != http.StatusOK {
		t.Fatalf("expected 200 commitment, got %d body=%s", st, string(body))
	}
	var resp struct {
		Hash string `json:"hash"`
	}
	decodeBody(t, body, &resp)
	if resp.Hash == "" {
		t.Fatalf("commitment: missing hash body=%s", string(body))
	}
	return resp.Hash
}

func createRecord(t *testing.T, baseURL, userID, animalID string, payload map[string]any) uint64 {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/animals/"+animalID+"/records", userID, payload)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create record, got %d body=%s", st, string(body))
	}
	var r recordResp
	decodeBody(t, body, &r)
	if r.ID == 0 {
		t.Fatalf("create record: missing id body=%s", string(body))
	}
	return r.ID
}

func getAnimal(t *testing.T, baseURL, id string) animalResp {
	t.Helper()

	st, body := doReq(t, baseURL, "GET", "/animals/"+id, "", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 get animal, got %d body=%s", st, string(body))
	}
	var a animalResp
	decodeBody(t, body, &a)
	return a
}

func decodeBody(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode body: %v body=%s", err, string(body))
	}
}

func doReq(t *testing.T, baseURL, method, path, debugPrincipal string, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if debugPrincipal != "" {
		req.Header.Set("X-Debug-Principal", debugPrincipal)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, respBody
}
