package exercise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/japaniel/lexercise/pkg/corpus"
)

// Store persists exercises and their attempt history.
type Store interface {
	// Create inserts ex with its levels and returns it with ID and CreatedAt
	// set. It returns ErrConflict when the per-type unique key is taken.
	Create(ctx context.Context, ex Exercise) (Exercise, error)
	// Get returns ErrNotFound unless an exercise with both id and type exists.
	Get(ctx context.Context, id int64, t Type) (Exercise, error)
	// List returns one page of the ordering described by q.
	List(ctx context.Context, q ListQuery, offset, limit int) ([]Entry, error)
	AppendHistory(ctx context.Context, h History) error
	// History returns the attempts of userID on an exercise, newest first.
	// An empty userID matches every user.
	History(ctx context.Context, exerciseID int64, userID string) ([]History, error)
}

// Tokenizer splits a sentence into the words an ordering exercise shuffles.
type Tokenizer interface {
	Words(language, text string) []string
}

// fieldsTokenizer splits on white space.
type fieldsTokenizer struct{}

func (fieldsTokenizer) Words(_, text string) []string { return strings.Fields(text) }

// Service authors, renders, grades and schedules exercises.
type Service struct {
	store     Store
	corpus    corpus.Reader
	validator *Validator
	tokenizer Tokenizer
	logger    *slog.Logger
	rand      func() *rand.Rand
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTokenizer sets the tokenizer used by ordering exercises. Without it
// sentences are split on white space.
func WithTokenizer(t Tokenizer) Option {
	return func(s *Service) { s.tokenizer = t }
}

// WithRand sets the source of per-build random generators.
func WithRand(fn func() *rand.Rand) Option {
	return func(s *Service) { s.rand = fn }
}

// WithClock sets the clock stamping history rows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the engine to its store and corpus.
func NewService(store Store, rd corpus.Reader, opts ...Option) *Service {
	s := &Service{
		store:     store,
		corpus:    rd,
		validator: NewValidator(rd),
		tokenizer: fieldsTokenizer{},
		logger:    slog.Default(),
		rand:      newRand,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates ex and persists it with its sanitized content and derived
// levels.
func (s *Service) Create(ctx context.Context, ex Exercise) (Exercise, error) {
	if err := checkShape(ex); err != nil {
		return Exercise{}, err
	}
	r, err := resolve(ctx, s.corpus, ex)
	if err != nil {
		return Exercise{}, err
	}
	content, err := s.validator.Validate(ctx, r)
	if err != nil {
		return Exercise{}, err
	}

	ex.ID = 0
	ex.Content = content
	ex.Levels = r.levels()
	created, err := s.store.Create(ctx, ex)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return Exercise{}, err
		}
		return Exercise{}, fmt.Errorf("create exercise: %w", err)
	}
	s.logger.Info("created exercise", "id", created.ID, "type", created.Type, "language", created.Language)
	return created, nil
}

// Get returns a stored exercise.
func (s *Service) Get(ctx context.Context, id int64, t Type) (Exercise, error) {
	return s.store.Get(ctx, id, t)
}

// Build renders exercise id of type t. Every call samples distractors anew.
func (s *Service) Build(ctx context.Context, id int64, t Type) (Payload, error) {
	ex, err := s.store.Get(ctx, id, t)
	if err != nil {
		return nil, err
	}
	r, err := resolve(ctx, s.corpus, ex)
	if err != nil {
		return nil, err
	}
	m, err := s.material(ctx, r)
	if err != nil {
		return nil, err
	}
	v, err := newVariant(r, m)
	if err != nil {
		return nil, err
	}

	p := v.Build(s.rand())
	p["id"] = ex.ID
	p["type"] = ex.Type
	return p, nil
}

// material loads what the variant of r needs beyond its own references.
func (s *Service) material(ctx context.Context, r *Resolved) (*material, error) {
	m := &material{}
	for _, p := range Catalog[r.Type].Pools {
		p = poolFor(r.Type, r.Content.SubType, p)
		ids := r.Content.Distractors[p.Name]
		if len(ids) == 0 {
			continue
		}
		var err error
		switch p.Name {
		case PoolTerm:
			m.terms, err = s.corpus.Terms(ctx, ids)
		case PoolLexical:
			m.lexicals, err = s.corpus.Lexicals(ctx, ids)
		case PoolDefinition:
			m.definitions, err = s.corpus.Definitions(ctx, ids)
		case PoolImage:
			m.images, err = s.corpus.Images(ctx, ids)
		}
		if err != nil {
			return nil, fmt.Errorf("load %s distractors: %w", p.Name, err)
		}
	}

	var err error
	switch r.Type {
	case OrderSentence:
		m.tokens = s.tokenizer.Words(r.Language, r.Example.Text)
	case ListenTermMChoice:
		m.rhymes, err = rhymesWithAudio(ctx, s.corpus, r.TermID)
	case TermMChoice:
		sel, _ := highlightSelector(r)
		m.highlight, err = s.corpus.Highlight(ctx, sel)
		if isCorpusNotFound(err) {
			err = nil
		}
	case TermConnection:
		m.connections, err = s.corpus.Terms(ctx, r.Content.Connections)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s material: %w", r.Type, err)
	}
	return m, nil
}

// CheckRequest is one submitted attempt.
type CheckRequest struct {
	UserID     string
	ExerciseID int64
	Type       Type
	// Answer is the {"answer": ...} body as submitted.
	Answer json.RawMessage
	// Request is the payload the learner was shown.
	Request json.RawMessage
}

// Result is the outcome returned to the learner. Graded is false for
// exercises that are accepted without a check.
type Result struct {
	Correct       bool `json:"correct"`
	CorrectAnswer any  `json:"correct_answer"`
	Graded        bool `json:"graded"`
}

// Check grades an answer and records the attempt. A history row is appended
// for every call, duplicates included.
func (s *Service) Check(ctx context.Context, req CheckRequest) (Result, error) {
	if req.UserID == "" {
		return Result{}, invalid("user", "user is required")
	}
	ex, err := s.store.Get(ctx, req.ExerciseID, req.Type)
	if err != nil {
		return Result{}, err
	}
	a, err := DecodeAnswer(ex.Type, req.Answer)
	if err != nil {
		return Result{}, err
	}
	r, err := resolve(ctx, s.corpus, ex)
	if err != nil {
		return Result{}, err
	}
	v, err := newVariant(r, nil)
	if err != nil {
		return Result{}, err
	}

	g := v.Assert(a)
	res := Result{Correct: g.Correct, CorrectAnswer: v.CorrectAnswer(), Graded: g.Graded}

	response, err := mergeResponse(req.Answer, res)
	if err != nil {
		return Result{}, err
	}
	request := req.Request
	if len(request) == 0 {
		request = json.RawMessage("{}")
	}
	h := History{
		ID:         uuid.New(),
		ExerciseID: ex.ID,
		UserID:     req.UserID,
		CreatedAt:  s.now().UTC(),
		Correct:    res.Correct,
		Response:   response,
		Request:    request,
	}
	if err := s.store.AppendHistory(ctx, h); err != nil {
		return Result{}, fmt.Errorf("append history: %w", err)
	}
	s.logger.Debug("checked answer", "exercise", ex.ID, "type", ex.Type, "user", req.UserID, "correct", res.Correct, "graded", res.Graded)
	return res, nil
}

// mergeResponse adds the grading result to the submitted answer object. A
// body that is not an object is kept under "answer".
func mergeResponse(answer json.RawMessage, res Result) (json.RawMessage, error) {
	merged := map[string]any{}
	if len(answer) > 0 {
		if err := json.Unmarshal(answer, &merged); err != nil || merged == nil {
			merged = map[string]any{"answer": answer}
		}
	}
	merged["correct"] = res.Correct
	merged["correct_answer"] = res.CorrectAnswer
	merged["graded"] = res.Graded
	b, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return b, nil
}

// History lists the recorded attempts on an exercise, newest first.
func (s *Service) History(ctx context.Context, exerciseID int64, userID string) ([]History, error) {
	return s.store.History(ctx, exerciseID, userID)
}
