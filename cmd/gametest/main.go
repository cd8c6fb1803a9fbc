// Batch smoke-runner: boots every downloaded story headlessly, drives it to
// its first input prompt and records the text it printed on the way. Used
// to catch interpreter regressions across a large story corpus.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/davetcode/zeta/zmachine"
)

// TestResult captures the outcome of running a single game
type TestResult struct {
	Filename     string   `json:"filename"`
	Version      uint8    `json:"version,omitempty"`
	Success      bool     `json:"success"`
	ErrorMessage string   `json:"error_message,omitempty"`
	FirstScreen  []string `json:"first_screen,omitempty"`
	DurationMs   int64    `json:"duration_ms"`
}

const gameTimeout = 10 * time.Second

func main() {
	storiesDir := flag.String("stories", "stories", "Directory containing Z-machine story files")
	outputDir := flag.String("output", "testdata", "Directory to write results to")
	singleGame := flag.String("game", "", "Test a single game file instead of all games")
	flag.Parse()

	if *singleGame != "" {
		result := runGameTest(*singleGame)
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		if !result.Success {
			os.Exit(1)
		}
		return
	}

	runAllGames(*storiesDir, *outputDir)
}

func runAllGames(storiesDir, outputDir string) {
	if _, err := os.Stat(storiesDir); os.IsNotExist(err) {
		fmt.Printf("Stories directory not found: %s\n", storiesDir)
		fmt.Println("Run 'go run ./cmd/scraper' first to download games.")
		os.Exit(1)
	}

	entries, err := os.ReadDir(storiesDir)
	if err != nil {
		fmt.Printf("Failed to read stories directory: %v\n", err)
		os.Exit(1)
	}

	var games []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".z3") || strings.HasSuffix(name, ".z4") ||
			strings.HasSuffix(name, ".z5") || strings.HasSuffix(name, ".z7") ||
			strings.HasSuffix(name, ".z8") {
			games = append(games, filepath.Join(storiesDir, name))
		}
	}

	if len(games) == 0 {
		fmt.Printf("No game files found in %s\n", storiesDir)
		os.Exit(1)
	}

	fmt.Printf("Found %d games to test\n", len(games))

	var results []TestResult

	for i, gamePath := range games {
		filename := filepath.Base(gamePath)
		result := runGameTest(gamePath)
		results = append(results, result)

		status := "✓"
		if !result.Success {
			status = "✗"
		}
		fmt.Printf("[%d/%d] %s %s\n", i+1, len(games), status, filename)
		if !result.Success && result.ErrorMessage != "" {
			fmt.Printf("        Error: %s\n", result.ErrorMessage)
		}
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Printf("Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	resultsPath := filepath.Join(outputDir, "test_results.json")
	resultsJSON, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(resultsPath, resultsJSON, 0644); err != nil {
		fmt.Printf("Failed to write results: %v\n", err)
	} else {
		fmt.Printf("\nResults written to %s\n", resultsPath)
	}

	passed := 0
	failed := 0
	for _, r := range results {
		if r.Success {
			passed++
		} else {
			failed++
		}
	}
	fmt.Printf("\n=== SUMMARY ===\nPassed: %d\nFailed: %d\nTotal: %d\n", passed, failed, len(results))
}

// runGameTest boots a story and pumps its output until it asks for input,
// quits, errors or times out. Reaching the first prompt counts as success.
func runGameTest(gamePath string) TestResult {
	result := TestResult{Filename: filepath.Base(gamePath)}
	start := time.Now()

	romBytes, err := os.ReadFile(gamePath)
	if err != nil {
		result.ErrorMessage = err.Error()
		return result
	}
	result.Version = romBytes[0]

	outputChannel := make(chan any)
	inputChannel := make(chan zmachine.InputResponse)
	saveRestoreChannel := make(chan zmachine.SaveRestoreResponse)

	var machine *zmachine.ZMachine
	loadErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%v", r)
			}
		}()
		machine = zmachine.LoadRom(romBytes, inputChannel, saveRestoreChannel, outputChannel)
		return nil
	}()
	if loadErr != nil {
		result.ErrorMessage = loadErr.Error()
		return result
	}
	machine.SetRandomSeed(1) // keep runs reproducible

	go machine.Run()

	var screen strings.Builder
	deadline := time.After(gameTimeout)

	for {
		select {
		case msg := <-outputChannel:
			switch msg := msg.(type) {
			case string:
				screen.WriteString(msg)
			case zmachine.InputRequest:
				result.Success = true
			case zmachine.Save:
				go func() { saveRestoreChannel <- zmachine.SaveResponse{Success: false} }()
			case zmachine.Restore:
				go func() { saveRestoreChannel <- zmachine.RestoreResponse{Success: false} }()
			case zmachine.TranscriptControl:
				go func() { saveRestoreChannel <- zmachine.SaveResponse{Success: false} }()
			case zmachine.RuntimeError:
				result.ErrorMessage = string(msg)
			case zmachine.Quit:
				result.Success = result.Success || screen.Len() > 0
			}
		case <-deadline:
			if !result.Success && result.ErrorMessage == "" {
				result.ErrorMessage = "timed out before first input request"
			}
		}

		if result.Success || result.ErrorMessage != "" {
			break
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	result.FirstScreen = strings.Split(screen.String(), "\n")
	if len(result.FirstScreen) > 30 {
		result.FirstScreen = result.FirstScreen[:30]
	}

	return result
}
