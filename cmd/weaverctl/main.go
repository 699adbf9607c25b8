// Command weaverctl is the operator CLI: it talks to a running weaverd's
// HTTP API (spec.md §6) and renders runs/orders/candles as tables, the
// same way cmd/decoder used to connect to the feed simulator's WebSocket
// and print what it found.
//
// Usage:
//
//	weaverctl runs list
//	weaverctl runs get <id>
//	weaverctl runs create -strategy sma-crossover -mode backtest -symbols AAPL,MSFT -timeframe 1m -start 2026-01-01T00:00:00Z -end 2026-01-02T00:00:00Z
//	weaverctl runs start <id>
//	weaverctl runs stop <id>
//	weaverctl orders list -run <id>
//	weaverctl orders get <id>
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

func main() {
	baseURL := os.Getenv("WEAVERCTL_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8100"
	}

	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	c := &client{base: strings.TrimRight(baseURL, "/")}
	resource, verb, rest := os.Args[1], os.Args[2], os.Args[3:]

	var err error
	switch resource {
	case "runs":
		err = runsCmd(c, verb, rest)
	case "orders":
		err = ordersCmd(c, verb, rest)
	case "candles":
		err = candlesCmd(c, rest)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "weaverctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: weaverctl (runs|orders) (list|get|create|start|stop) [args]")
	fmt.Fprintln(os.Stderr, "       weaverctl candles -symbol SYM -timeframe 1m")
}

// client is a thin HTTP client for weaverd's REST surface.
type client struct {
	base string
	hc   http.Client
}

func (c *client) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var envelope struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&envelope)
		return fmt.Errorf("%s %s: %d %s: %s", method, path, resp.StatusCode, envelope.Code, envelope.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type runRow struct {
	ID         string     `json:"id"`
	StrategyID string     `json:"strategyId"`
	Mode       string     `json:"mode"`
	Status     string     `json:"status"`
	Symbols    []string   `json:"symbols"`
	Timeframe  string     `json:"timeframe"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
}

type runList struct {
	Items []runRow `json:"items"`
	Total int64    `json:"total"`
}

func runsCmd(c *client, verb string, args []string) error {
	switch verb {
	case "list":
		var out runList
		if err := c.do(http.MethodGet, "/api/v1/runs", nil, &out); err != nil {
			return err
		}
		printRuns(out.Items)
		return nil

	case "get":
		if len(args) < 1 {
			return fmt.Errorf("usage: weaverctl runs get <id>")
		}
		var r runRow
		if err := c.do(http.MethodGet, "/api/v1/runs/"+args[0], nil, &r); err != nil {
			return err
		}
		printRuns([]runRow{r})
		return nil

	case "create":
		fs := flag.NewFlagSet("runs create", flag.ExitOnError)
		strategy := fs.String("strategy", "", "strategy plugin id")
		mode := fs.String("mode", "backtest", "backtest|paper|live")
		symbols := fs.String("symbols", "", "comma-separated symbols")
		timeframe := fs.String("timeframe", "1m", "bar timeframe")
		start := fs.String("start", "", "RFC3339 start time (backtest only)")
		end := fs.String("end", "", "RFC3339 end time (backtest only)")
		fs.Parse(args)

		body := map[string]any{
			"strategy_id": *strategy,
			"mode":        *mode,
			"symbols":     strings.Split(*symbols, ","),
			"timeframe":   *timeframe,
		}
		if *start != "" {
			body["start_time"] = *start
		}
		if *end != "" {
			body["end_time"] = *end
		}

		var r runRow
		if err := c.do(http.MethodPost, "/api/v1/runs", body, &r); err != nil {
			return err
		}
		printRuns([]runRow{r})
		return nil

	case "start", "stop":
		if len(args) < 1 {
			return fmt.Errorf("usage: weaverctl runs %s <id>", verb)
		}
		var r runRow
		if err := c.do(http.MethodPost, "/api/v1/runs/"+args[0]+"/"+verb, nil, &r); err != nil {
			return err
		}
		printRuns([]runRow{r})
		return nil

	default:
		return fmt.Errorf("unknown runs subcommand %q", verb)
	}
}

func printRuns(runs []runRow) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Strategy", "Mode", "Status", "Symbols", "Timeframe", "Created")
	for _, r := range runs {
		table.Append(
			r.ID,
			r.StrategyID,
			r.Mode,
			r.Status,
			strings.Join(r.Symbols, ","),
			r.Timeframe,
			r.CreatedAt.Format(time.RFC3339),
		)
	}
	table.Render()
}

type orderRow struct {
	ID              string      `json:"id"`
	RunID           string      `json:"runId"`
	Symbol          string      `json:"symbol"`
	Side            string      `json:"side"`
	Type            string      `json:"type"`
	Qty             json.Number `json:"qty"`
	Status          string      `json:"status"`
	FilledQty       json.Number `json:"filledQty"`
	ExchangeOrderID string      `json:"exchangeOrderId"`
}

type orderList struct {
	Items []orderRow `json:"items"`
	Total int64      `json:"total"`
}

func ordersCmd(c *client, verb string, args []string) error {
	switch verb {
	case "list":
		fs := flag.NewFlagSet("orders list", flag.ExitOnError)
		runID := fs.String("run", "", "filter by run id")
		status := fs.String("status", "", "filter by status")
		fs.Parse(args)

		path := "/api/v1/orders?"
		if *runID != "" {
			path += "run_id=" + *runID + "&"
		}
		if *status != "" {
			path += "status=" + *status
		}

		var out orderList
		if err := c.do(http.MethodGet, path, nil, &out); err != nil {
			return err
		}
		printOrders(out.Items)
		return nil

	case "get":
		if len(args) < 1 {
			return fmt.Errorf("usage: weaverctl orders get <id>")
		}
		var o orderRow
		if err := c.do(http.MethodGet, "/api/v1/orders/"+args[0], nil, &o); err != nil {
			return err
		}
		printOrders([]orderRow{o})
		return nil

	default:
		return fmt.Errorf("unknown orders subcommand %q", verb)
	}
}

func printOrders(orders []orderRow) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Run", "Symbol", "Side", "Type", "Qty", "Status", "Filled", "ExchangeID")
	for _, o := range orders {
		table.Append(o.ID, o.RunID, o.Symbol, o.Side, o.Type, o.Qty.String(), o.Status, o.FilledQty.String(), o.ExchangeOrderID)
	}
	table.Render()
}

func candlesCmd(c *client, args []string) error {
	fs := flag.NewFlagSet("candles", flag.ExitOnError)
	symbol := fs.String("symbol", "", "symbol")
	timeframe := fs.String("timeframe", "1m", "timeframe")
	limit := fs.String("limit", "50", "max rows")
	fs.Parse(args)

	path := fmt.Sprintf("/api/v1/candles?symbol=%s&timeframe=%s&limit=%s", *symbol, *timeframe, *limit)

	var bars []struct {
		Timestamp time.Time `json:"timestamp"`
		Open      float64   `json:"open"`
		High      float64   `json:"high"`
		Low       float64   `json:"low"`
		Close     float64   `json:"close"`
		Volume    float64   `json:"volume"`
	}
	if err := c.do(http.MethodGet, path, nil, &bars); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Open", "High", "Low", "Close", "Volume")
	for _, b := range bars {
		table.Append(
			b.Timestamp.Format(time.RFC3339),
			fmt.Sprintf("%.4f", b.Open),
			fmt.Sprintf("%.4f", b.High),
			fmt.Sprintf("%.4f", b.Low),
			fmt.Sprintf("%.4f", b.Close),
			fmt.Sprintf("%.0f", b.Volume),
		)
	}
	table.Render()
	return nil
}
