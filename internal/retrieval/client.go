// Package retrieval is the HTTP/JSON client of the external adaptive
// question and scoring service.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skillsense/assessment-backend/internal/model"
)

// maxBodySize bounds how much of a service response is read.
const maxBodySize = 4 << 20

// ErrBodyTooLarge is returned when a response exceeds maxBodySize.
var ErrBodyTooLarge = errors.New("retrieval: response body too large")

// StartTestRequest opens an adaptive session on the service.
type StartTestRequest struct {
	UserID     string `json:"user_id"`
	Skill      string `json:"skill"`
	SelfRating int    `json:"self_rating"`
}

// NextQuestionRequest reports an answer and asks for the next question.
type NextQuestionRequest struct {
	UserID         string  `json:"user_id"`
	QuestionID     int     `json:"question_id"`
	SelectedOption string  `json:"selected_option"`
	TimeTaken      float64 `json:"time_taken"`
	PreviousLevel  int     `json:"previous_level"`
	CorrectAnswer  string  `json:"correct_answer"`
}

// EndTestRequest closes the adaptive session and asks for the final score.
type EndTestRequest struct {
	UserID string `json:"user_id"`
	Skill  string `json:"skill"`
}

// EndTestResponse carries the authoritative score and history.
type EndTestResponse struct {
	UserID             string               `json:"user_id"`
	Skill              string               `json:"skill"`
	FinalScore         float64              `json:"final_score"`
	QuestionsAttempted int                  `json:"questions_attempted"`
	History            []model.HistoryEntry `json:"history"`
}

// ExplainMistakeRequest asks the service to explain a wrong or skipped answer.
type ExplainMistakeRequest struct {
	QuestionTitle     string `json:"question_title"`
	UserAnswer        string `json:"user_answer"`
	CorrectAnswer     string `json:"correct_answer"`
	CorrectOptionText string `json:"correct_option_text"`
	UserOptionText    string `json:"user_option_text"`
}

// ExplainMistakeResponse is the service's explanation.
type ExplainMistakeResponse struct {
	Explanation string `json:"explanation"`
}

// Client talks to the scoring service at a single base URL.
type Client struct {
	baseURL string
	client  *http.Client
}

// New constructs a client for the given base URL.
func New(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{}}
}

// NewWithTimeout constructs a client whose requests time out after timeout.
func NewWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// StartTest opens a session and returns the first question.
func (c *Client) StartTest(ctx context.Context, req StartTestRequest) (model.Question, error) {
	var q model.Question
	if err := c.call(ctx, "/start_test", req, &q); err != nil {
		return model.Question{}, err
	}
	return q, nil
}

// NextQuestion submits an answer and returns the following question.
func (c *Client) NextQuestion(ctx context.Context, req NextQuestionRequest) (model.Question, error) {
	var q model.Question
	if err := c.call(ctx, "/next_question", req, &q); err != nil {
		return model.Question{}, err
	}
	return q, nil
}

// EndTest finalizes scoring.
func (c *Client) EndTest(ctx context.Context, req EndTestRequest) (EndTestResponse, error) {
	var res EndTestResponse
	if err := c.call(ctx, "/end_test", req, &res); err != nil {
		return EndTestResponse{}, err
	}
	return res, nil
}

// ExplainMistake requests an explanation for a single answered question.
func (c *Client) ExplainMistake(ctx context.Context, req ExplainMistakeRequest) (ExplainMistakeResponse, error) {
	var res ExplainMistakeResponse
	if err := c.call(ctx, "/explain_mistake", req, &res); err != nil {
		return ExplainMistakeResponse{}, err
	}
	return res, nil
}

func (c *Client) call(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	body, status, err := c.post(ctx, path, payload)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	if status != http.StatusOK {
		return decodeHTTPError(path, status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, int, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if len(body) > maxBodySize {
		return nil, resp.StatusCode, ErrBodyTooLarge
	}
	return body, resp.StatusCode, nil
}

// StatusError is a non-success response from the service.
type StatusError struct {
	Path   string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: http %d: %s", e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: http %d", e.Path, e.Status)
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// decodeHTTPError understands the service's {"detail": ...} error body, where
// detail is either a string or a list of validation entries.
func decodeHTTPError(path string, status int, body []byte) error {
	se := &StatusError{Path: path, Status: status}
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err == nil && len(resp.Detail) > 0 {
		var s string
		if json.Unmarshal(resp.Detail, &s) == nil {
			se.Detail = s
		} else {
			se.Detail = string(resp.Detail)
		}
	}
	return se
}
