package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// A stand-in for the real scoring script. Behavior is picked with
// FAKE_SCORER_MODE: echo (default), sleep, fail, garbage, errordoc, noisy, huge.
func main() {
	payload, _ := io.ReadAll(os.Stdin)
	switch os.Getenv("FAKE_SCORER_MODE") {
	case "sleep":
		time.Sleep(60 * time.Second)
	case "fail":
		fmt.Fprintln(os.Stderr, "bad feature")
		os.Exit(1)
	case "garbage":
		fmt.Print("not json")
	case "errordoc":
		fmt.Print(`{"error":"model file missing"}`)
	case "noisy":
		fmt.Fprintln(os.Stderr, "loading model")
		fmt.Fprintln(os.Stderr, "warming up")
		fmt.Print(`{"prediction":0,"probability":0.1}`)
	case "huge":
		fmt.Print(strings.Repeat(" ", 2<<20))
	default:
		echo(payload)
	}
}

func echo(payload []byte) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		fmt.Fprintln(os.Stderr, "bad payload:", err)
		os.Exit(2)
	}
	n := rows(doc["input"])
	if raw, ok := doc["values"]; ok {
		n = rows(raw)
	}
	if n == 0 {
		fmt.Print(`{"prediction":1,"probability":0.75}`)
		return
	}
	preds := make([]int, n)
	probs := make([]float64, n)
	for i := range preds {
		preds[i] = i % 2
		probs[i] = 0.5
	}
	out, _ := json.Marshal(map[string]any{"predictions": preds, "probabilities": probs})
	os.Stdout.Write(out)
}

// rows returns the number of records in a batch payload, or 0 for a single one.
func rows(raw json.RawMessage) int {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return 0
	}
	if strings.HasPrefix(strings.TrimSpace(string(list[0])), "[") || strings.HasPrefix(strings.TrimSpace(string(list[0])), "{") {
		return len(list)
	}
	return 0
}
