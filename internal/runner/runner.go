package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnsupportedLanguage marks a language tag outside the closed set. It is
// a client fault: no outbound call is attempted for it.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Judge0 language ids for the supported tags.
var languageIDs = map[string]int{
	"cpp":        54,
	"python":     71,
	"java":       62,
	"javascript": 63,
}

// Supported reports whether the proxy can dispatch the given language tag.
func Supported(language string) bool {
	_, ok := languageIDs[language]
	return ok
}

// Service relays run requests to an external Judge0 instance. It is
// stateless and carries no room awareness; concurrent calls are independent.
type Service struct {
	client  *http.Client
	baseURL string
	apiKey  string
	apiHost string
}

func New(baseURL, apiKey, apiHost string, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		apiHost: apiHost,
	}
}

type submissionRequest struct {
	LanguageID int    `json:"language_id"`
	SourceCode string `json:"source_code"`
}

type submissionResult struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Message       string `json:"message"`
}

// Run submits code to the execution service and returns its output as
// lines. Service and transport failures come back as a single descriptive
// line alongside the error, so callers can report without crashing the
// request path.
func (s *Service) Run(ctx context.Context, language, code string) ([]string, error) {
	langID, ok := languageIDs[language]
	if !ok {
		return nil, ErrUnsupportedLanguage
	}

	body, err := json.Marshal(submissionRequest{
		LanguageID: langID,
		SourceCode: code,
	})
	if err != nil {
		return errorLines(err), err
	}

	url := s.baseURL + "/submissions?base64_encoded=false&wait=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errorLines(err), err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-RapidAPI-Key", s.apiKey)
	}
	if s.apiHost != "" {
		req.Header.Set("X-RapidAPI-Host", s.apiHost)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errorLines(err), err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("execution service returned %d", resp.StatusCode)
		return errorLines(err), err
	}

	var result submissionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errorLines(err), err
	}

	// Output precedence: stdout, then stderr, then compiler diagnostics.
	switch {
	case result.Stdout != "":
		return strings.Split(result.Stdout, "\n"), nil
	case result.Stderr != "":
		return strings.Split(result.Stderr, "\n"), nil
	case result.CompileOutput != "":
		return strings.Split(result.CompileOutput, "\n"), nil
	}
	return []string{"No output"}, nil
}

func errorLines(err error) []string {
	return []string{fmt.Sprintf("Error: %v", err)}
}
