package service

import (
	"context"
	"time"

	"github.com/skillsense/assessment-backend/internal/metrics"
	"github.com/skillsense/assessment-backend/internal/model"
	"github.com/skillsense/assessment-backend/internal/proctor"
	"github.com/skillsense/assessment-backend/internal/retrieval"
)

// instrumentedRetriever times every scoring service call.
type instrumentedRetriever struct {
	next    proctor.Retriever
	metrics *metrics.Metrics
}

func (r instrumentedRetriever) StartTest(ctx context.Context, req retrieval.StartTestRequest) (model.Question, error) {
	start := time.Now()
	q, err := r.next.StartTest(ctx, req)
	r.metrics.ObserveRetrieval("start_test", start, err)
	return q, err
}

func (r instrumentedRetriever) NextQuestion(ctx context.Context, req retrieval.NextQuestionRequest) (model.Question, error) {
	start := time.Now()
	q, err := r.next.NextQuestion(ctx, req)
	r.metrics.ObserveRetrieval("next_question", start, err)
	return q, err
}

func (r instrumentedRetriever) EndTest(ctx context.Context, req retrieval.EndTestRequest) (retrieval.EndTestResponse, error) {
	start := time.Now()
	res, err := r.next.EndTest(ctx, req)
	r.metrics.ObserveRetrieval("end_test", start, err)
	return res, err
}
