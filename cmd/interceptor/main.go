// interceptor is the in-path valve: a forward HTTP proxy that suspends
// every outbound request and consults the VEIL engine before letting it
// through. It satisfies the proxy contract the engine expects — token
// handshake plus a self-minted intent declaration per consultation.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
)

type interceptor struct {
	engineURL string
	token     string
	consult   *http.Client
	transport http.RoundTripper
}

func newInterceptor(engineURL, token string) *interceptor {
	return &interceptor{
		engineURL: engineURL,
		token:     token,
		consult:   &http.Client{Timeout: 2 * time.Second},
		transport: http.DefaultTransport,
	}
}

func (p *interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		// TLS interception is the commodity MITM proxy's job, not this
		// shim's.
		http.Error(w, "VEIL Security: Request Blocked (CONNECT not supported)", http.StatusForbidden)
		return
	}

	host := r.URL.Hostname()

	// Never consult the engine about traffic to the engine itself.
	if strings.Contains(host, "veil-engine") || host == "localhost" || host == "127.0.0.1" {
		p.forward(w, r)
		return
	}

	slog.Info("Intercepting", "method", r.Method, "url", r.URL.String())

	verdict, reason, err := p.consultEngine(r)
	if err != nil {
		slog.Error("Engine consultation failed, defaulting to BLOCK", "error", err)
		p.block(w, "Engine Failure")
		return
	}
	if verdict != core.StatusAllow {
		slog.Warn("Request blocked", "reason", reason)
		p.block(w, reason)
		return
	}

	p.forward(w, r)
}

func (p *interceptor) consultEngine(r *http.Request) (core.VerdictStatus, string, error) {
	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	payload, err := json.Marshal(core.AssessmentRequest{
		Method:  r.Method,
		URL:     r.URL.String(),
		Host:    r.URL.Hostname(),
		Headers: headers,
	})
	if err != nil {
		return core.StatusBlock, "", err
	}

	// The shim declares its own low-risk intent: the action it performs is
	// always the consultation itself. The agent's original headers, its
	// own X-Veil-Intent included, travel inside the assessment document
	// for the policy layer to inspect.
	declaration, err := json.Marshal(core.IntentDeclaration{
		Goal:          "proxy_forward",
		Action:        "POST /v1/assess",
		Justification: fmt.Sprintf("Forwarding intercepted request to %s", r.URL.Hostname()),
		RiskLevel:     core.RiskLow,
		Nonce:         uuid.New().String(),
		Timestamp:     time.Now().Unix(),
	})
	if err != nil {
		return core.StatusBlock, "", err
	}

	req, err := http.NewRequest(http.MethodPost, p.engineURL+"/v1/assess", bytes.NewReader(payload))
	if err != nil {
		return core.StatusBlock, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", p.token)
	req.Header.Set("X-Veil-Intent", string(declaration))

	resp, err := p.consult.Do(req)
	if err != nil {
		return core.StatusBlock, "", err
	}
	defer resp.Body.Close()

	var decision core.AssessmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return core.StatusBlock, "", err
	}
	if decision.Verdict == "" {
		decision.Verdict = core.StatusBlock
	}
	return decision.Verdict, decision.Reason, nil
}

func (p *interceptor) forward(w http.ResponseWriter, r *http.Request) {
	out := r.Clone(r.Context())
	out.RequestURI = ""

	resp, err := p.transport.RoundTrip(out)
	if err != nil {
		http.Error(w, fmt.Sprintf("upstream error: %v", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func (p *interceptor) block(w http.ResponseWriter, reason string) {
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprintf(w, "VEIL Security: Request Blocked (%s)", reason)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	engineURL := envOr("VEIL_ENGINE_URL", "http://localhost:8000")
	token := envOr("INTERNAL_TOKEN", "dev-secret-token-CHANGE-IN-PROD")
	port := envOr("PROXY_PORT", "8080")

	log.Printf("VEIL interceptor online. Engine: %s", engineURL)
	if err := http.ListenAndServe(":"+port, newInterceptor(engineURL, token)); err != nil {
		log.Fatalf("Interceptor failed: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
