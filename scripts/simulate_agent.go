// simulate_agent drives a VEIL engine the way a governed agent would:
// declare intent, submit the action, watch the verdict. Run it against a
// dev engine to see all four gates react.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/core"
)

func main() {
	engineURL := envOr("VEIL_ENGINE_URL", "http://localhost:8000")
	token := envOr("INTERNAL_TOKEN", "dev-secret-token-CHANGE-IN-PROD")

	fmt.Println("🤖 Agent starting against", engineURL)

	// 1. A compliant low-risk action.
	fmt.Println("\n--- Scenario 1: compliant low-risk request ---")
	submit(engineURL, token, core.IntentDeclaration{
		Goal:          "sync customer records",
		Action:        "POST /v1/assess",
		Justification: "Nightly CRM sync job",
		RiskLevel:     core.RiskLow,
		Nonce:         uuid.New().String(),
		Timestamp:     time.Now().Unix(),
	}, `{"method":"GET","url":"https://crm.example.com/records","host":"crm.example.com","headers":{}}`)

	// 2. A high-risk action: the judge weighs evidence vs justification.
	fmt.Println("\n--- Scenario 2: high-risk request, judged ---")
	submit(engineURL, token, core.IntentDeclaration{
		Goal:          "update billing plan",
		Action:        "POST /v1/assess",
		Justification: "Customer 4411 upgraded to the enterprise tier",
		RiskLevel:     core.RiskHigh,
		Nonce:         uuid.New().String(),
		Timestamp:     time.Now().Unix(),
	}, `{"method":"POST","url":"https://billing.example.com/plans","host":"billing.example.com","headers":{},"plan":"enterprise"}`)

	// 3. A dangerous payload: blocked by the deterministic pre-filter.
	fmt.Println("\n--- Scenario 3: dangerous payload ---")
	submit(engineURL, token, core.IntentDeclaration{
		Goal:          "clean up test data",
		Action:        "POST /v1/assess",
		Justification: "Removing stale fixtures",
		RiskLevel:     core.RiskHigh,
		Nonce:         uuid.New().String(),
		Timestamp:     time.Now().Unix(),
	}, `{"method":"POST","url":"https://db.example.com/query","host":"db.example.com","headers":{},"sql":"DROP TABLE users;"}`)

	// 4. A replayed nonce.
	fmt.Println("\n--- Scenario 4: nonce replay ---")
	replayed := core.IntentDeclaration{
		Goal:          "fetch report",
		Action:        "POST /v1/assess",
		Justification: "Weekly report pull",
		RiskLevel:     core.RiskLow,
		Nonce:         uuid.New().String(),
		Timestamp:     time.Now().Unix(),
	}
	body := `{"method":"GET","url":"https://reports.example.com/weekly","host":"reports.example.com","headers":{}}`
	submit(engineURL, token, replayed, body)
	submit(engineURL, token, replayed, body)
}

func submit(engineURL, token string, decl core.IntentDeclaration, body string) {
	declaration, err := json.Marshal(decl)
	if err != nil {
		log.Fatalf("encode declaration: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, engineURL+"/v1/assess", bytes.NewReader([]byte(body)))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", token)
	req.Header.Set("X-Veil-Intent", string(declaration))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("engine unreachable: %v", err)
	}
	defer resp.Body.Close()

	var decision core.AssessmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		log.Fatalf("decode verdict: %v", err)
	}

	switch decision.Verdict {
	case core.StatusAllow:
		fmt.Printf("✅ ALLOW (%d) — %s\n", resp.StatusCode, decl.Goal)
	default:
		fmt.Printf("⛔ BLOCK (%d) — %s\n", resp.StatusCode, decision.Reason)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
