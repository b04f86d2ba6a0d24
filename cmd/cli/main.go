package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"modelhub/internal/aggregate"
	"modelhub/internal/logging"
	"modelhub/internal/stream"
	"modelhub/pkg/models"
)

const defaultBaseURL = "http://localhost:8080"

func main() {
	logging.Init(logging.Config{Level: "warn", Format: "console"})

	global := flag.NewFlagSet("modelhub", flag.ExitOnError)
	baseURL := global.String("api", envOr("MODELHUB_API", defaultBaseURL), "API base URL")
	timeout := global.Duration("timeout", 30*time.Second, "request timeout")
	if err := global.Parse(os.Args[1:]); err != nil {
		logging.Fatal().Err(err).Msg("parse flags")
	}
	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	client := &http.Client{Timeout: *timeout}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "search":
		handleSearch(ctx, client, *baseURL, rest)
	case "trending":
		handleTrending(ctx, client, *baseURL, rest)
	case "details":
		handleDetails(ctx, client, *baseURL, rest)
	case "sources":
		var resp map[string]any
		if err := doJSON(ctx, client, http.MethodGet, *baseURL+"/sources", &resp); err != nil {
			logging.Fatal().Err(err).Msg("sources failed")
		}
		printJSON(resp)
	case "watch":
		wsURL, err := websocketURL(*baseURL, "/ws")
		if err != nil {
			logging.Fatal().Err(err).Msg("invalid base url")
		}
		if err := runWatch(wsURL, os.Stdin, os.Stdout); err != nil {
			logging.Fatal().Err(err).Msg("watch failed")
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

type searchFlags struct {
	query    string
	page     int
	pageSize int
	sortBy   string
	sources  string
	freeOnly bool
	minPrice string
	maxPrice string
}

func handleSearch(ctx context.Context, client *http.Client, baseURL string, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var f searchFlags
	fs.StringVar(&f.query, "q", "", "search query")
	fs.IntVar(&f.page, "page", 1, "page number")
	fs.IntVar(&f.pageSize, "size", 20, "page size")
	fs.StringVar(&f.sortBy, "sort", "", "relevance|newest|likes|price_asc|price_desc")
	fs.StringVar(&f.sources, "sources", "", "comma-separated source allow-list")
	fs.BoolVar(&f.freeOnly, "free", false, "free listings only")
	fs.StringVar(&f.minPrice, "min-price", "", "minimum price")
	fs.StringVar(&f.maxPrice, "max-price", "", "maximum price")
	_ = fs.Parse(args)
	if f.query == "" && fs.NArg() > 0 {
		f.query = strings.Join(fs.Args(), " ")
	}

	u, err := searchURL(baseURL, f)
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid base url")
	}
	var resp aggregate.Response
	if err := doJSON(ctx, client, http.MethodGet, u, &resp); err != nil {
		logging.Fatal().Err(err).Msg("search failed")
	}
	printResults(os.Stdout, resp)
}

func handleTrending(ctx context.Context, client *http.Client, baseURL string, args []string) {
	fs := flag.NewFlagSet("trending", flag.ExitOnError)
	var f searchFlags
	fs.IntVar(&f.page, "page", 1, "page number")
	fs.IntVar(&f.pageSize, "size", 20, "page size")
	fs.StringVar(&f.sources, "sources", "", "comma-separated source allow-list")
	_ = fs.Parse(args)

	u, err := trendingURL(baseURL, f)
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid base url")
	}
	var resp aggregate.Response
	if err := doJSON(ctx, client, http.MethodGet, u, &resp); err != nil {
		logging.Fatal().Err(err).Msg("trending failed")
	}
	printResults(os.Stdout, resp)
}

func handleDetails(ctx context.Context, client *http.Client, baseURL string, args []string) {
	if len(args) != 2 {
		logging.Fatal().Msg("usage: modelhub details <source> <external-id>")
	}
	var l models.Listing
	endpoint := baseURL + "/details/" + url.PathEscape(args[0]) + "/" + url.PathEscape(args[1])
	if err := doJSON(ctx, client, http.MethodGet, endpoint, &l); err != nil {
		logging.Fatal().Err(err).Msg("details failed")
	}
	printJSON(l)
}

func searchURL(baseURL string, f searchFlags) (string, error) {
	u, err := url.Parse(baseURL + "/search")
	if err != nil {
		return "", err
	}
	qv := u.Query()
	qv.Set("q", f.query)
	qv.Set("page", strconv.Itoa(f.page))
	qv.Set("pageSize", strconv.Itoa(f.pageSize))
	if f.sortBy != "" {
		qv.Set("sortBy", f.sortBy)
	}
	if f.sources != "" {
		qv.Set("sources", f.sources)
	}
	if f.freeOnly {
		qv.Set("freeOnly", "true")
	}
	if f.minPrice != "" {
		qv.Set("minPrice", f.minPrice)
	}
	if f.maxPrice != "" {
		qv.Set("maxPrice", f.maxPrice)
	}
	u.RawQuery = qv.Encode()
	return u.String(), nil
}

func trendingURL(baseURL string, f searchFlags) (string, error) {
	u, err := url.Parse(baseURL + "/trending")
	if err != nil {
		return "", err
	}
	qv := u.Query()
	qv.Set("page", strconv.Itoa(f.page))
	qv.Set("pageSize", strconv.Itoa(f.pageSize))
	if f.sources != "" {
		qv.Set("sources", f.sources)
	}
	u.RawQuery = qv.Encode()
	return u.String(), nil
}

// runWatch keeps a socket open and sends every input line as a search
// (an empty line asks for trending), printing each reply.
func runWatch(wsURL string, in io.Reader, out io.Writer) error {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, welcome, err := conn.ReadMessage(); err == nil {
		fmt.Fprintln(out, string(welcome))
	}

	scanner := bufio.NewScanner(in)
	for n := 1; scanner.Scan(); n++ {
		msg := stream.Message{Type: "search", ID: strconv.Itoa(n), Query: strings.TrimSpace(scanner.Text())}
		if msg.Query == "" {
			msg.Type = "trending"
		}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
		_, reply, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(reply))
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return scanner.Err()
}

func doJSON(ctx context.Context, client *http.Client, method, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func printResults(w io.Writer, resp aggregate.Response) {
	fmt.Fprintf(w, "page %d/%d (%d total)\n", resp.Page, resp.TotalPages, resp.TotalCount)
	for _, l := range resp.Results {
		price := "free"
		if !l.IsFree {
			price = fmt.Sprintf("%.2f %s", l.Price, l.Currency)
		}
		fmt.Fprintf(w, "  [%s] %s  %s  likes=%d  %s\n", l.Source, l.Title, price, l.Likes, l.URL)
	}
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logging.Fatal().Err(err).Msg("json")
	}
	fmt.Println(string(b))
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return (&url.URL{
		Scheme: scheme,
		Host:   u.Host,
		Path:   path,
	}).String(), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printUsage() {
	fmt.Println("modelhub [-api URL] <command> [flags]")
	fmt.Println("commands:")
	fmt.Println("  search -q <query> [-page N] [-size N] [-sort key] [-sources a,b] [-free] [-min-price X] [-max-price Y]")
	fmt.Println("  trending [-page N] [-size N] [-sources a,b]")
	fmt.Println("  details <source> <external-id>")
	fmt.Println("  sources")
	fmt.Println("  watch   (reads queries from stdin over the websocket)")
}
