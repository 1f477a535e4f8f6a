// Command gensmoke exercises the class generation pipeline against a running
// gateway: it checks term readiness, triggers a generation run and reports the
// resulting score and conflict count. Intended for staging smoke checks after
// a deploy or a data import.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type readinessReport struct {
	CanGenerate                     bool     `json:"canGenerate"`
	StudentDataCompleteness         float64  `json:"studentDataCompleteness"`
	TeacherAvailabilityCompleteness float64  `json:"teacherAvailabilityCompleteness"`
	LevelAssignmentCompleteness     float64  `json:"levelAssignmentCompleteness"`
	BlockingIssues                  []string `json:"blockingIssues"`
}

type proposalReport struct {
	ProposalID        string  `json:"proposalId"`
	GenerationRun     int     `json:"generationRun"`
	OptimizationScore float64 `json:"optimizationScore"`
	ConflictCount     int     `json:"conflictCount"`
	CanApprove        bool    `json:"canApprove"`
}

func main() {
	var (
		base      string
		termID    string
		token     string
		strategy  string
		timeout   time.Duration
		checkOnly bool
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&termID, "term", "", "Term ID to generate for")
	flag.StringVar(&token, "token", os.Getenv("CLASSGEN_TOKEN"), "Bearer token")
	flag.StringVar(&strategy, "strategy", "BALANCE", "Priority strategy")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "HTTP client timeout")
	flag.BoolVar(&checkOnly, "check-only", false, "Only report readiness, do not generate")
	flag.Parse()

	if termID == "" {
		log.Fatal("missing -term")
	}

	client := &http.Client{Timeout: timeout}

	readiness, err := fetchReadiness(client, base, token, termID)
	if err != nil {
		log.Fatalf("readiness check failed: %v", err)
	}

	fmt.Printf("term %s readiness: students %.0f%%, availability %.0f%%, levels %.0f%%\n",
		termID,
		readiness.StudentDataCompleteness,
		readiness.TeacherAvailabilityCompleteness,
		readiness.LevelAssignmentCompleteness)
	for _, issue := range readiness.BlockingIssues {
		fmt.Printf("  blocking: %s\n", issue)
	}

	if !readiness.CanGenerate {
		fmt.Println("term is not ready for generation")
		os.Exit(1)
	}
	if checkOnly {
		return
	}

	proposal, elapsed, err := runGeneration(client, base, token, termID, strategy)
	if err != nil {
		log.Fatalf("generation failed: %v", err)
	}

	fmt.Printf("run %d (%s) score=%.1f conflicts=%d canApprove=%t in %s\n",
		proposal.GenerationRun, proposal.ProposalID,
		proposal.OptimizationScore, proposal.ConflictCount,
		proposal.CanApprove, elapsed.Round(time.Millisecond))

	if proposal.OptimizationScore == 0 {
		os.Exit(1)
	}
}

func fetchReadiness(client *http.Client, base, token, termID string) (*readinessReport, error) {
	url := fmt.Sprintf("%s/terms/%s/generation/readiness", base, termID)
	data, err := doRequest(client, http.MethodGet, url, token, nil)
	if err != nil {
		return nil, err
	}
	var report readinessReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func runGeneration(client *http.Client, base, token, termID, strategy string) (*proposalReport, time.Duration, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"parameters": map[string]interface{}{"priorityStrategy": strategy},
	})
	if err != nil {
		return nil, 0, err
	}

	url := fmt.Sprintf("%s/terms/%s/generation/proposals", base, termID)
	start := time.Now()
	data, err := doRequest(client, http.MethodPost, url, token, payload)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, err
	}

	var report proposalReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, elapsed, err
	}
	return &report, elapsed, nil
}

func doRequest(client *http.Client, method, url, token string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, raw)
	}
	if env.Error != nil {
		return nil, fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return env.Data, nil
}
