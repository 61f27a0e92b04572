// Replay tool for measuring Kestrel's transaction classifier against
// labelled data.
//
// Usage:
//
//	go run ./cmd/replay -csv /path/to/transactions.csv -url http://localhost:8080
//
// The CSV needs a header with "amount", a type column ("transactionType" or
// PaySim's "type") and optionally "isFraud" and "supplierId". Each row is
// submitted to POST /transactions and the returned label is compared with
// the isFraud column.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one labelled transaction from the CSV.
type Row struct {
	Line       int
	Type       string
	Amount     decimal.Decimal
	SupplierID string
	IsFraud    bool
}

type submitRequest struct {
	SupplierID string          `json:"supplierId,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"transactionType"`
}

type submitResponse struct {
	Record struct {
		ID           string `json:"id"`
		FraudScore   int    `json:"fraudScore"`
		Label        string `json:"label"`
		IsSuspicious bool   `json:"isSuspicious"`
	} `json:"record"`
	Alert *struct {
		ID       string `json:"id"`
		Severity string `json:"severity"`
	} `json:"alert"`
}

// Tally tracks replay results.
type Tally struct {
	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64

	TotalProcessed int64
	TotalErrors    int64
	Throttled      int64
	AlertsRaised   int64

	Normal     int64
	Suspicious int64
	Fraudulent int64

	ProcessingTimeMs int64
}

func (t *Tally) record(row Row, res *submitResponse) {
	switch res.Record.Label {
	case "fraudulent":
		atomic.AddInt64(&t.Fraudulent, 1)
	case "suspicious":
		atomic.AddInt64(&t.Suspicious, 1)
	default:
		atomic.AddInt64(&t.Normal, 1)
	}
	if res.Alert != nil {
		atomic.AddInt64(&t.AlertsRaised, 1)
	}

	predicted := res.Record.IsSuspicious
	switch {
	case predicted && row.IsFraud:
		atomic.AddInt64(&t.TruePositives, 1)
	case predicted && !row.IsFraud:
		atomic.AddInt64(&t.FalsePositives, 1)
	case !predicted && !row.IsFraud:
		atomic.AddInt64(&t.TrueNegatives, 1)
	default:
		atomic.AddInt64(&t.FalseNegatives, 1)
	}
}

var errThrottled = errors.New("rate limited")

func main() {
	csvPath := flag.String("csv", "", "Path to labelled transaction CSV")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	accountID := flag.String("account", "replay", "Account ID for requests")
	limit := flag.Int("limit", 10000, "Maximum rows to replay (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: replay -csv /path/to/transactions.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("KESTREL REPLAY")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Account ID:  %s\n", *accountID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run ./cmd/kestrel")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	rows, skipped, err := readRows(f, *limit)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d rows (%d skipped)\n", len(rows), skipped)

	start := time.Now()
	tally := run(rows, *baseURL, *accountID, *workers, *verbose)
	printResults(tally, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readRows parses a labelled CSV. Rows with an unparseable amount or an
// unknown type are skipped and counted.
func readRows(r io.Reader, limit int) ([]Row, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int)
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	typeCol, ok := col["transactiontype"]
	if !ok {
		typeCol, ok = col["type"]
	}
	amountCol, hasAmount := col["amount"]
	if !ok || !hasAmount {
		return nil, 0, errors.New("header must contain amount and transactionType (or type)")
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []Row
	skipped := 0
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil || typeCol >= len(rec) || amountCol >= len(rec) {
			skipped++
			continue
		}

		txType, ok := normalizeType(rec[typeCol])
		if !ok {
			skipped++
			continue
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(rec[amountCol]))
		if err != nil || amount.IsNegative() {
			skipped++
			continue
		}

		fraud := strings.ToLower(field(rec, "isfraud"))
		rows = append(rows, Row{
			Line:       line,
			Type:       txType,
			Amount:     amount,
			SupplierID: field(rec, "supplierid"),
			IsFraud:    fraud == "1" || fraud == "true",
		})

		if limit > 0 && len(rows) >= limit {
			break
		}
	}
	return rows, skipped, nil
}

// normalizeType accepts Kestrel transaction types and maps PaySim's.
func normalizeType(s string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PAYMENT", "TRANSFER", "CASH_OUT", "DEBIT":
		return "payment", true
	case "REFUND", "CASH_IN":
		return "refund", true
	case "ADJUSTMENT":
		return "adjustment", true
	}
	return "", false
}

func run(rows []Row, baseURL, accountID string, numWorkers int, verbose bool) *Tally {
	tally := &Tally{}

	work := make(chan Row, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for row := range work {
				start := time.Now()
				res, err := submit(client, baseURL, accountID, row)
				atomic.AddInt64(&tally.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&tally.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&tally.TotalErrors, 1)
					if errors.Is(err, errThrottled) {
						atomic.AddInt64(&tally.Throttled, 1)
					}
					if verbose {
						fmt.Printf("ERROR: line %d -> %v\n", row.Line, err)
					}
					continue
				}

				tally.record(row, res)
				if verbose {
					mark := "ok"
					if res.Record.IsSuspicious != row.IsFraud {
						mark = "MISS"
					}
					fmt.Printf("%-4s line %-6d | %-10s | $%14s | fraud: %-5v | %-10s (%d)\n",
						mark, row.Line, row.Type, row.Amount.StringFixed(2), row.IsFraud,
						res.Record.Label, res.Record.FraudScore)
				}
			}
		}()
	}

	for _, row := range rows {
		work <- row
	}
	close(work)
	wg.Wait()

	return tally
}

func submit(client *http.Client, baseURL, accountID string, row Row) (*submitResponse, error) {
	body, err := json.Marshal(submitRequest{SupplierID: row.SupplierID, Amount: row.Amount, Type: row.Type})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-ID", accountID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusTooManyRequests:
		return nil, errThrottled
	default:
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var res submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func printResults(t *Tally, duration time.Duration) {
	fmt.Println("\nREPLAY RESULTS")

	fmt.Printf("\nSUBMISSIONS\n")
	fmt.Printf("   Processed:     %d\n", t.TotalProcessed)
	fmt.Printf("   Errors:        %d (rate limited: %d)\n", t.TotalErrors, t.Throttled)
	fmt.Printf("   Alerts raised: %d\n", t.AlertsRaised)

	fmt.Printf("\nLABELS\n")
	fmt.Printf("   normal:      %d\n", t.Normal)
	fmt.Printf("   suspicious:  %d\n", t.Suspicious)
	fmt.Printf("   fraudulent:  %d\n", t.Fraudulent)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                    flagged   normal")
	fmt.Printf("   actual fraud   %8d %8d   (TP, FN)\n", t.TruePositives, t.FalseNegatives)
	fmt.Printf("   actual normal  %8d %8d   (FP, TN)\n", t.FalsePositives, t.TrueNegatives)

	precision := ratio(t.TruePositives, t.TruePositives+t.FalsePositives)
	recall := ratio(t.TruePositives, t.TruePositives+t.FalseNegatives)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	accuracy := ratio(t.TruePositives+t.TrueNegatives,
		t.TruePositives+t.TrueNegatives+t.FalsePositives+t.FalseNegatives)

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f\n", precision)
	fmt.Printf("   Recall:     %.4f\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:  %v\n", duration.Round(time.Millisecond))
	if t.TotalProcessed > 0 {
		fmt.Printf("   Avg Latency:     %.2f ms\n", float64(t.ProcessingTimeMs)/float64(t.TotalProcessed))
		fmt.Printf("   Throughput:      %.2f tx/sec\n", float64(t.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
