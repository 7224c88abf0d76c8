package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"room-event-service/internal/domain"
)

// QuestionLoader fetches catalog questions from a backing store.
type QuestionLoader interface {
	LoadQuestion(ctx context.Context, questionID uuid.UUID) (domain.Question, error)
}

// QuestionCatalog caches questions with TTL to avoid repeated DB hits.
type QuestionCatalog struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[uuid.UUID]cachedQuestion
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionCatalog(loader QuestionLoader, ttl time.Duration) *QuestionCatalog {
	return &QuestionCatalog{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[uuid.UUID]cachedQuestion),
	}
}

func (c *QuestionCatalog) GetQuestion(ctx context.Context, questionID uuid.UUID) (domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[questionID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.question, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(questionID.String(), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[questionID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.question, nil
		}
		c.mu.RUnlock()

		question, err := c.loader.LoadQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}

		c.mu.Lock()
		c.cache[questionID] = cachedQuestion{
			question:  question,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return question, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return result.(domain.Question), nil
}

func (c *QuestionCatalog) HasCodeEditor(ctx context.Context, questionID uuid.UUID) (bool, error) {
	q, err := c.GetQuestion(ctx, questionID)
	if err != nil {
		return false, err
	}
	return q.CodeEditor != nil, nil
}

func (c *QuestionCatalog) GetSeedContent(ctx context.Context, questionID uuid.UUID) (string, bool, error) {
	q, err := c.GetQuestion(ctx, questionID)
	if err != nil {
		return "", false, err
	}
	if q.CodeEditor == nil {
		return "", false, nil
	}
	return q.CodeEditor.Content, true, nil
}

// StaticQuestionLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	questions map[uuid.UUID]domain.Question
}

func NewStaticQuestionLoader(questions ...domain.Question) *StaticQuestionLoader {
	l := &StaticQuestionLoader{questions: make(map[uuid.UUID]domain.Question, len(questions))}
	for _, q := range questions {
		l.questions[q.ID] = q
	}
	return l
}

func (l *StaticQuestionLoader) LoadQuestion(_ context.Context, questionID uuid.UUID) (domain.Question, error) {
	if q, ok := l.questions[questionID]; ok {
		return q, nil
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (c *QuestionCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
