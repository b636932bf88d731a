package model

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// Option is a single answer choice of a question.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Options is the ordered option-key → option-text mapping of a question.
// On the wire it is a JSON object; the object's key order is preserved.
type Options []Option

// Has reports whether key names one of the options.
func (o Options) Has(key string) bool {
	for _, opt := range o {
		if opt.Key == key {
			return true
		}
	}
	return false
}

// Text returns the text of the option with the given key.
func (o Options) Text(key string) (string, bool) {
	for _, opt := range o {
		if opt.Key == key {
			return opt.Text, true
		}
	}
	return "", false
}

// UnmarshalJSON decodes a JSON object keeping its member order.
func (o *Options) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("options: invalid JSON")
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		*o = nil
		return nil
	}
	if !res.IsObject() {
		return errors.New("options: expected a JSON object")
	}

	opts := make(Options, 0, 4)
	res.ForEach(func(key, value gjson.Result) bool {
		opts = append(opts, Option{Key: key.String(), Text: value.String()})
		return true
	})
	*o = opts
	return nil
}

// MarshalJSON encodes the options as a JSON object in their stored order.
func (o Options) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, opt := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(opt.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(opt.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Question is a single adaptive question as issued by the scoring service.
// CorrectAnswer is never used for local grading; it is only echoed back to
// the service on the next submission.
type Question struct {
	ID            int     `json:"question_id"`
	Title         string  `json:"question_title"`
	Options       Options `json:"options"`
	Difficulty    int     `json:"difficulty"`
	CorrectAnswer string  `json:"correct_answer,omitempty"`
}

// ForCandidate strips the correct answer before the question leaves the server.
func (q Question) ForCandidate() QuestionForCandidate {
	return QuestionForCandidate{
		ID:         q.ID,
		Title:      q.Title,
		Options:    q.Options,
		Difficulty: q.Difficulty,
	}
}

// QuestionForCandidate is a question without its correct answer.
type QuestionForCandidate struct {
	ID         int     `json:"question_id"`
	Title      string  `json:"question_title"`
	Options    Options `json:"options"`
	Difficulty int     `json:"difficulty"`
}

// HistoryEntry is one question of the scoring service's final history.
type HistoryEntry struct {
	QuestionID    int     `json:"question_id"`
	QuestionTitle string  `json:"question_title"`
	Options       Options `json:"options"`
	UserAnswer    *string `json:"user_answer"`
	CorrectAnswer string  `json:"correct_answer"`
	Difficulty    int     `json:"difficulty,omitempty"`
	Explanation   string  `json:"explanation,omitempty"`
}

// Correct reports whether the recorded user answer matches the correct one.
func (h HistoryEntry) Correct() bool {
	return h.UserAnswer != nil && *h.UserAnswer == h.CorrectAnswer
}
