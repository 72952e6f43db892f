package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Redirect      string `json:"redirect"`
	User          *struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type composeResponse struct {
	RecipientCount    int      `json:"recipientCount"`
	RecipientPreview  []string `json:"recipientPreview"`
	RecipientOverflow int      `json:"recipientOverflow"`
}

type submitResponse struct {
	Error    string `json:"error"`
	Campaign *struct {
		CampaignID     string `json:"campaignId"`
		TotalScheduled int    `json:"totalScheduled"`
		StartTime      string `json:"startTime"`
	} `json:"campaign"`
}

type dashboardResponse struct {
	Scheduled struct {
		Total int `json:"total"`
		Items []struct {
			Email       string `json:"email"`
			ScheduledAt string `json:"scheduledAt"`
			Variant     string `json:"variant"`
		} `json:"items"`
	} `json:"scheduled"`
	Sent struct {
		Total int `json:"total"`
	} `json:"sent"`
}

// Walks through one campaign against a running outboxlab. The credential is
// self-signed: outboxlab reads identity claims without verifying them.
func main() {
	baseURL := getenvDefault("OUTBOXLAB_URL", "http://localhost:3000")
	email := getenvDefault("DEMO_EMAIL", "demo@outboxlab.dev")
	client := &http.Client{Timeout: 30 * time.Second}

	fmt.Println("Signing in as", email)
	var session sessionResponse
	postJSON(client, baseURL+"/api/session/credential", map[string]string{"credential": demoCredential(email)}, &session)
	if !session.Authenticated {
		fmt.Fprintln(os.Stderr, "login was not accepted")
		os.Exit(1)
	}
	fmt.Printf("- user id=%s next=%s\n", session.User.ID, session.Redirect)

	fmt.Println("Drafting campaign...")
	mustDecode(mustDo(client, http.MethodPut, baseURL+"/api/compose", "application/json", jsonBody(map[string]any{
		"subject":        "OutboxLab walk-through",
		"body":           "Hello!\n\nThis campaign was scheduled by **example/campaign**.",
		"delayBetweenMs": 1500,
		"hourlyLimit":    120,
	})), &composeResponse{})

	var draft composeResponse
	uploadRecipients(client, baseURL, "recipients.csv", buildRecipientList(7), &draft)
	fmt.Printf("- %d recipients: %s", draft.RecipientCount, strings.Join(draft.RecipientPreview, ", "))
	if draft.RecipientOverflow > 0 {
		fmt.Printf(" +%d", draft.RecipientOverflow)
	}
	fmt.Println()

	fmt.Println("Submitting...")
	resp := mustDo(client, http.MethodPost, baseURL+"/api/compose/submit", "", nil)
	var result submitResponse
	mustDecode(resp, &result)
	if result.Campaign == nil {
		fmt.Fprintln(os.Stderr, "schedule failed:", result.Error)
		os.Exit(1)
	}
	fmt.Printf("- campaign %s: %d emails from %s\n", result.Campaign.CampaignID, result.Campaign.TotalScheduled, result.Campaign.StartTime)

	fmt.Println("Dashboard:")
	var dash dashboardResponse
	mustDecode(mustDo(client, http.MethodPost, baseURL+"/api/dashboard/refresh?limit=10", "", nil), &dash)
	fmt.Printf("- scheduled total=%d sent total=%d\n", dash.Scheduled.Total, dash.Sent.Total)
	for _, item := range dash.Scheduled.Items {
		fmt.Printf("  %s at %s (%s)\n", item.Email, item.ScheduledAt, item.Variant)
	}
}

func demoCredential(email string) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "demo-" + strings.SplitN(email, "@", 2)[0],
		"email": email,
		"name":  "OutboxLab Demo",
	}).SignedString([]byte("demo"))
	if err != nil {
		panic(err)
	}
	return token
}

func buildRecipientList(n int) string {
	lines := []string{"email,name"}
	for i := 1; i <= n; i++ {
		lines = append(lines, fmt.Sprintf("reader%d@outboxlab.dev,Reader %d", i, i))
	}
	lines = append(lines, "reader1@outboxlab.dev,Duplicate")
	return strings.Join(lines, "\n")
}

func uploadRecipients(client *http.Client, baseURL, filename, content string, out any) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		panic(err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		panic(err)
	}
	if err := mw.Close(); err != nil {
		panic(err)
	}
	mustDecode(mustDo(client, http.MethodPost, baseURL+"/api/compose/recipients", mw.FormDataContentType(), &buf), out)
}

func postJSON(client *http.Client, url string, payload, out any) {
	mustDecode(mustDo(client, http.MethodPost, url, "application/json", jsonBody(payload)), out)
}

func jsonBody(payload any) io.Reader {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return bytes.NewReader(data)
}

// mustDo accepts 422 and 502 so the submit step can print the inline error.
func mustDo(client *http.Client, method, url, contentType string, body io.Reader) *http.Response {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		panic(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := client.Do(req)
	if err != nil {
		panic(err)
	}
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnprocessableEntity && resp.StatusCode != http.StatusBadGateway {
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		panic(fmt.Sprintf("request failed: %s %s: %s", method, url, string(b)))
	}
	return resp
}

func mustDecode(resp *http.Response, v any) {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		panic(err)
	}
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
