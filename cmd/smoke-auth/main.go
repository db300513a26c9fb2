package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// Smoke test against a running credence-api: open two sessions, rotate one,
// replay the consumed token, and verify that the replay burned every session.

type session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func main() {
	base := os.Getenv("CREDENCE_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	email := os.Getenv("CREDENCE_SMOKE_EMAIL")
	password := os.Getenv("CREDENCE_SMOKE_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("CREDENCE_SMOKE_EMAIL and CREDENCE_SMOKE_PASSWORD are required")
	}

	client := &http.Client{Timeout: 5 * time.Second}

	a := login(client, base, email, password)
	b := login(client, base, email, password)

	rotated, code := refresh(client, base, a.RefreshToken)
	if code != http.StatusOK {
		log.Fatalf("rotate: expected 200, got %d", code)
	}

	if _, code := refresh(client, base, a.RefreshToken); code != http.StatusUnauthorized {
		log.Fatalf("replay of consumed token: expected 401, got %d", code)
	}
	if _, code := refresh(client, base, rotated.RefreshToken); code != http.StatusUnauthorized {
		log.Fatalf("successor after replay: expected 401, got %d", code)
	}
	if _, code := refresh(client, base, b.RefreshToken); code != http.StatusUnauthorized {
		log.Fatalf("sibling session after replay: expected 401, got %d", code)
	}

	fmt.Println("OK: rotation is single-use and reuse revokes the whole family")
}

func login(client *http.Client, base, email, password string) session {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := client.Post(base+"/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var s session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		log.Fatalf("decode login: %v", err)
	}
	return s
}

func refresh(client *http.Client, base, token string) (session, int) {
	req, err := http.NewRequest(http.MethodPost, base+"/v1/auth/refresh", nil)
	if err != nil {
		log.Fatalf("refresh request: %v", err)
	}
	req.Header.Set("Refresh-Token", token)
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("refresh: %v", err)
	}
	defer resp.Body.Close()
	var s session
	_ = json.NewDecoder(resp.Body).Decode(&s)
	return s, resp.StatusCode
}
