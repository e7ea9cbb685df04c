// Package tle fetches fresh orbital elements and applies them to the
// satellite catalog.
package tle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/core"
)

// DefaultCelestrakURL is the Celestrak GP query endpoint.
const DefaultCelestrakURL = "https://celestrak.org/NORAD/elements/gp.php"

const maxBodyBytes = 1 << 20

var (
	// ErrNoElements indicates the source has no element set for the id.
	ErrNoElements = errors.New("no element set available")
	// ErrMalformed indicates a response that is not a two-line element set.
	ErrMalformed = errors.New("malformed element set")
)

// ElementSet is one parsed two-line element set.
type ElementSet struct {
	Name  string
	Line1 string
	Line2 string
	Epoch time.Time
}

// Source returns the current element set for a catalog number.
type Source interface {
	Fetch(ctx context.Context, noradID int) (*ElementSet, error)
}

// Celestrak queries the Celestrak GP service by catalog number.
type Celestrak struct {
	baseURL    string
	httpClient *http.Client
}

// NewCelestrak returns a Source for baseURL, defaulting to the public
// service.
func NewCelestrak(baseURL string, client *http.Client) *Celestrak {
	if baseURL == "" {
		baseURL = DefaultCelestrakURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Celestrak{baseURL: baseURL, httpClient: client}
}

// Fetch implements Source.
func (c *Celestrak) Fetch(ctx context.Context, noradID int) (*ElementSet, error) {
	url := c.baseURL + "?CATNR=" + strconv.Itoa(noradID) + "&FORMAT=TLE"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching elements for %d: %w", noradID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: catalog number %d", ErrNoElements, noradID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, c.baseURL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	set, err := Parse(string(body))
	if errors.Is(err, ErrNoElements) {
		return nil, fmt.Errorf("%w: catalog number %d", ErrNoElements, noradID)
	}
	return set, err
}

// Parse reads the first element set of text, with or without a leading
// name line. Celestrak answers unknown ids with a plain-text notice, which
// is reported as ErrNoElements.
func Parse(text string) (*ElementSet, error) {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r\n "); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading elements: %w", err)
	}
	if len(lines) == 0 || strings.HasPrefix(lines[0], "No GP data found") {
		return nil, ErrNoElements
	}

	set := &ElementSet{}
	if !strings.HasPrefix(lines[0], "1 ") {
		set.Name = strings.TrimSpace(lines[0])
		lines = lines[1:]
	}
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "1 ") || !strings.HasPrefix(lines[1], "2 ") {
		return nil, fmt.Errorf("%w: expected lines 1 and 2", ErrMalformed)
	}
	set.Line1, set.Line2 = strings.TrimSpace(lines[0]), strings.TrimSpace(lines[1])
	epoch, err := core.ParseTLE(set.Line1, set.Line2)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	set.Epoch = epoch
	return set, nil
}
