package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	baseURL = "http://localhost:8080"
)

func main() {
	// Wait for server to start
	time.Sleep(2 * time.Second)

	fmt.Println("Starting Integration Test...")

	boardID := "smoke-board-" + uuid.NewString()[:8]
	cardID := "smoke-card-" + uuid.NewString()[:8]

	fmt.Println("1. Storing card...")
	card := map[string]string{
		"board_id":    boardID,
		"title":       "Fix auth-service bug, depends on v2.1.0, assigned to @alice",
		"description": "Blocks PROJ-42. Owned by @bob, see https://example.com/runbook",
	}
	if _, ok := sendRequest(http.MethodPut, "/cards/"+cardID, card, http.StatusOK); !ok {
		fail("Store card")
	}
	fmt.Println("PASSED: Store card")

	fmt.Println("2. Starting extraction...")
	if _, ok := sendRequest(http.MethodPost, "/cards/"+cardID+"/extract", nil, http.StatusAccepted); !ok {
		fail("Start extraction")
	}

	var job struct {
		State  string   `json:"state"`
		Errors []string `json:"errors"`
	}
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		body, ok := sendRequest(http.MethodGet, "/cards/"+cardID+"/extraction", nil, http.StatusOK)
		if !ok {
			fail("Poll extraction")
		}
		if err := json.Unmarshal(body, &job); err != nil {
			fail("Decode job: " + err.Error())
		}
		if job.State == "done" || job.State == "failed" {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if job.State != "done" {
		fail("Extraction finished in state " + job.State)
	}
	for _, e := range job.Errors {
		fmt.Printf("  stage error: %s\n", e)
	}
	fmt.Println("PASSED: Extraction")

	fmt.Println("3. Reading knowledge...")
	if _, ok := sendRequest(http.MethodGet, "/cards/"+cardID+"/knowledge", nil, http.StatusOK); !ok {
		fail("Card knowledge")
	}
	if _, ok := sendRequest(http.MethodGet, "/boards/"+boardID+"/clusters", nil, http.StatusOK); !ok {
		fail("Board clusters")
	}
	fmt.Println("PASSED: Knowledge")
}

func fail(step string) {
	fmt.Println("FAILED: " + step)
	os.Exit(1)
}

func sendRequest(method, endpoint string, payload interface{}, want int) ([]byte, bool) {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return nil, false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return nil, false
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return respBody, true
}
