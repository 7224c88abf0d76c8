package redis

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"room-event-service/internal/domain"
)

// QuestionLoader fetches catalog questions from a backing store.
type QuestionLoader interface {
	LoadQuestion(ctx context.Context, questionID uuid.UUID) (domain.Question, error)
}

// QuestionCatalog caches catalog questions in Redis (hash per question) and
// falls back to a loader on cache miss.
// Questions are stored as: HSET question:{id} value .. hasCodeEditor 0|1 content .. lang ..
type QuestionCatalog struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCatalog(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCatalog {
	return &QuestionCatalog{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCatalog) GetQuestion(ctx context.Context, questionID uuid.UUID) (domain.Question, error) {
	key := c.key(questionID)

	fields, err := c.client.HGetAll(ctx, key).Result()
	if err == nil && len(fields) > 0 {
		return questionFromCache(questionID, fields), nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		fields, err := c.client.HGetAll(ctx, key).Result()
		if err == nil && len(fields) > 0 {
			return questionFromCache(questionID, fields), nil
		}

		question, err := c.loader.LoadQuestion(ctx, questionID)
		if err != nil {
			return domain.Question{}, err
		}

		hasCodeEditor, content, lang := "0", "", ""
		if question.CodeEditor != nil {
			hasCodeEditor, content, lang = "1", question.CodeEditor.Content, question.CodeEditor.Lang
		}
		ttl := c.ttlWithJitter()
		pipe := c.client.Pipeline()
		pipe.HSet(ctx, key,
			"value", question.Value,
			"hasCodeEditor", hasCodeEditor,
			"content", content,
			"lang", lang,
		)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

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

func (c *QuestionCatalog) key(questionID uuid.UUID) string {
	return "question:" + questionID.String()
}

func questionFromCache(questionID uuid.UUID, fields map[string]string) domain.Question {
	q := domain.Question{ID: questionID, Value: fields["value"]}
	if fields["hasCodeEditor"] == "1" {
		q.CodeEditor = &domain.CodeEditor{Content: fields["content"], Lang: fields["lang"]}
	}
	return q
}

func (c *QuestionCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
