package app

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"room-event-service/internal/domain"
)

// AnalyticsRepository reads the relational data analytics are built from.
// All listings are restricted to one room.
type AnalyticsRepository interface {
	GetRoom(ctx context.Context, roomID uuid.UUID) (domain.Room, error)
	ListRoomQuestions(ctx context.Context, roomID uuid.UUID) ([]domain.AnalyticsQuestionRow, error)
	ListParticipants(ctx context.Context, roomID uuid.UUID) ([]domain.Participant, error)
	ListEvaluations(ctx context.Context, roomID uuid.UUID) ([]domain.Evaluation, error)
}

// AnalyticsService builds room analytics. It never writes.
type AnalyticsService struct {
	repo AnalyticsRepository
}

func NewAnalyticsService(repo AnalyticsRepository) *AnalyticsService {
	return &AnalyticsService{repo: repo}
}

// GetAnalytics returns the scored summary of roomID.
func (s *AnalyticsService) GetAnalytics(ctx context.Context, roomID uuid.UUID) (domain.Analytics, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Analytics{}, err
	}

	var (
		questions    []domain.AnalyticsQuestionRow
		participants []domain.Participant
		evaluations  []domain.Evaluation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		questions, err = s.repo.ListRoomQuestions(gctx, roomID)
		return err
	})
	g.Go(func() error {
		var err error
		participants, err = s.repo.ListParticipants(gctx, roomID)
		return err
	})
	g.Go(func() error {
		var err error
		evaluations, err = s.repo.ListEvaluations(gctx, roomID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Analytics{}, err
	}
	return BuildAnalytics(room, questions, participants, evaluations), nil
}

type evaluationKey struct {
	user     uuid.UUID
	question uuid.UUID
}

// BuildAnalytics joins a room's questions, participants and evaluations.
//
// A participant's comment and marks are only visible once their review is
// Closed. The room is Completed when no evaluation is left in Draft; only
// then are averages computed. Marks of zero mean "not scored" and never
// count towards an average; the average of nothing is 0.
func BuildAnalytics(room domain.Room, questions []domain.AnalyticsQuestionRow, participants []domain.Participant, evaluations []domain.Evaluation) domain.Analytics {
	rows := make([]domain.AnalyticsQuestionRow, 0, len(questions))
	for _, q := range questions {
		// Automated rooms hide questions that were never reached.
		if room.Type == domain.RoomTypeAI && q.State == domain.StateOpen {
			continue
		}
		rows = append(rows, q)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Order < rows[j].Order })

	submitted := make(map[evaluationKey]domain.Evaluation)
	byUser := make(map[uuid.UUID][]domain.Evaluation)
	for _, e := range evaluations {
		byUser[e.UserID] = append(byUser[e.UserID], e)
		if e.State == domain.EvaluationSubmitted {
			submitted[evaluationKey{user: e.UserID, question: e.QuestionID}] = e
		}
	}

	analytics := domain.Analytics{
		Questions:  make([]domain.AnalyticsQuestion, 0, len(rows)),
		UserReview: make([]domain.AnalyticsUserMark, 0, len(participants)),
		Completed:  true,
	}

	for _, p := range participants {
		visible := p.ReviewState == domain.ReviewClosed
		mark := domain.AnalyticsUserMark{
			UserID:          p.UserID,
			Nickname:        p.Nickname,
			Avatar:          p.Avatar,
			ParticipantType: p.Type,
		}
		var marks []int
		for _, e := range byUser[p.UserID] {
			if e.State == domain.EvaluationDraft {
				analytics.Completed = false
			}
			if e.Mark != nil && *e.Mark > 0 {
				marks = append(marks, *e.Mark)
			}
		}
		if visible {
			avg := average(marks)
			mark.AverageMark = &avg
			if strings.TrimSpace(p.Review) != "" {
				comment := p.Review
				mark.Comment = &comment
			}
		}
		analytics.UserReview = append(analytics.UserReview, mark)
	}

	for _, row := range rows {
		q := domain.AnalyticsQuestion{
			ID:     row.QuestionID,
			Status: string(row.State),
			Value:  row.Value,
			Users:  make([]domain.AnalyticsUser, 0, len(participants)),
		}
		var marks []int
		for _, p := range participants {
			user := domain.AnalyticsUser{ID: p.UserID}
			if e, ok := submitted[evaluationKey{user: p.UserID, question: row.QuestionID}]; ok && p.ReviewState == domain.ReviewClosed {
				user.Evaluation = &domain.AnalyticsQuestionEvaluation{Review: e.Review, Mark: e.Mark}
				if e.Mark != nil && *e.Mark > 0 {
					marks = append(marks, *e.Mark)
				}
			}
			q.Users = append(q.Users, user)
		}
		if analytics.Completed {
			avg := average(marks)
			q.AverageMark = &avg
		}
		analytics.Questions = append(analytics.Questions, q)
	}

	if analytics.Completed {
		analytics.AverageMark = roomAverage(analytics.UserReview)
	}
	return analytics
}

// roomAverage averages the participants' non-zero averages; nil when no
// participant review is visible.
func roomAverage(users []domain.AnalyticsUserMark) *float64 {
	var (
		sum     float64
		n       int
		visible bool
	)
	for _, u := range users {
		if u.AverageMark == nil {
			continue
		}
		visible = true
		if *u.AverageMark > 0 {
			sum += *u.AverageMark
			n++
		}
	}
	if !visible {
		return nil
	}
	avg := 0.0
	if n > 0 {
		avg = sum / float64(n)
	}
	return &avg
}

func average(marks []int) float64 {
	if len(marks) == 0 {
		return 0
	}
	sum := 0
	for _, m := range marks {
		sum += m
	}
	return float64(sum) / float64(len(marks))
}
