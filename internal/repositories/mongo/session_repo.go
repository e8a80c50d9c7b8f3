package mongo

import (
	"context"
	"errors"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yoockh/rehearse/internal/models"
	"github.com/yoockh/rehearse/internal/utils"
)

// Completion is what the scoring pipeline writes back to a session.
type Completion struct {
	Scores      models.ScoreVector
	Feedback    models.Feedback
	Source      string
	CompletedAt time.Time
}

type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string, limit int64) ([]models.Session, error)

	// AppendTranscript pushes entries in order. It only matches sessions
	// still accepting turns and returns false otherwise.
	AppendTranscript(ctx context.Context, sessionID string, entries ...models.TranscriptEntry) (bool, error)

	// MarkAnalyzing moves an open session to analyzing. false means the
	// session was not open.
	MarkAnalyzing(ctx context.Context, sessionID string, endedAt time.Time, durationSeconds int64, video *models.VideoMetrics) (bool, error)
	Complete(ctx context.Context, sessionID string, c Completion) error
	Cancel(ctx context.Context, sessionID string, at time.Time) (bool, error)

	Stats(ctx context.Context, userID string) (*models.SessionStats, error)
	Trends(ctx context.Context, userID string, since time.Time) ([]models.TrendPoint, error)
}

var openStatuses = bson.A{models.StatusPending, models.StatusActive}

type sessionRepo struct {
	col *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepository {
	return &sessionRepo{col: db.Collection("sessions")}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Transcript == nil {
		s.Transcript = []models.TranscriptEntry{}
	}
	_, err := r.col.InsertOne(ctx, s)
	return err
}

func (r *sessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string, limit int64) ([]models.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	cur, err := r.col.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit).
			SetProjection(bson.M{"system_prompt": 0}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Session{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sessionRepo) AppendTranscript(ctx context.Context, sessionID string, entries ...models.TranscriptEntry) (bool, error) {
	if len(entries) == 0 {
		return true, nil
	}
	res, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "status": bson.M{"$in": openStatuses}},
		bson.M{"$push": bson.M{"transcript": bson.M{"$each": entries}}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *sessionRepo) MarkAnalyzing(ctx context.Context, sessionID string, endedAt time.Time, durationSeconds int64, video *models.VideoMetrics) (bool, error) {
	set := bson.M{
		"status":           models.StatusAnalyzing,
		"ended_at":         endedAt.UTC(),
		"duration_seconds": durationSeconds,
	}
	if video != nil {
		set["video_metrics"] = video
	}
	res, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "status": bson.M{"$in": openStatuses}},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *sessionRepo) Complete(ctx context.Context, sessionID string, c Completion) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "status": models.StatusAnalyzing},
		bson.M{"$set": bson.M{
			"status":          models.StatusCompleted,
			"scores":          c.Scores,
			"feedback":        c.Feedback,
			"analysis_source": c.Source,
			"completed_at":    c.CompletedAt.UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) Cancel(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "status": bson.M{"$in": openStatuses}},
		bson.M{"$set": bson.M{"status": models.StatusCancelled, "ended_at": at.UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

type statsRow struct {
	Total         int64   `bson:"total"`
	Completed     int64   `bson:"completed"`
	Seconds       float64 `bson:"seconds"`
	Confidence    float64 `bson:"confidence"`
	Clarity       float64 `bson:"clarity"`
	Empathy       float64 `bson:"empathy"`
	Communication float64 `bson:"communication"`
	Overall       float64 `bson:"overall"`
}

func (s statsRow) scores() models.ScoreVector {
	return models.ScoreVector{
		Confidence:    int(math.Round(s.Confidence)),
		Clarity:       int(math.Round(s.Clarity)),
		Empathy:       int(math.Round(s.Empathy)),
		Communication: int(math.Round(s.Communication)),
		Overall:       int(math.Round(s.Overall)),
	}
}

// completedOnly yields the field for completed sessions and null otherwise,
// so $avg skips everything else.
func completedOnly(field string) bson.M {
	return bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{"$status", models.StatusCompleted}}, "$" + field, nil,
	}}
}

func (r *sessionRepo) Stats(ctx context.Context, userID string) (*models.SessionStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": 1},
			"completed": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$status", models.StatusCompleted}}, 1, 0,
			}}},
			"seconds":       bson.M{"$sum": "$duration_seconds"},
			"confidence":    bson.M{"$avg": completedOnly("scores.confidence")},
			"clarity":       bson.M{"$avg": completedOnly("scores.clarity")},
			"empathy":       bson.M{"$avg": completedOnly("scores.empathy")},
			"communication": bson.M{"$avg": completedOnly("scores.communication")},
			"overall":       bson.M{"$avg": completedOnly("scores.overall")},
		}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []statsRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := &models.SessionStats{}
	if len(rows) == 0 {
		return out, nil
	}
	row := rows[0]
	out.TotalSessions = row.Total
	out.CompletedSessions = row.Completed
	out.PracticeMinutes = math.Round(row.Seconds/60*10) / 10
	if row.Completed > 0 {
		sv := row.scores()
		out.AverageScores = &sv
	}
	return out, nil
}

type trendRow struct {
	Day      string `bson:"_id"`
	Sessions int    `bson:"sessions"`
	statsRow `bson:",inline"`
}

func (r *sessionRepo) Trends(ctx context.Context, userID string, since time.Time) ([]models.TrendPoint, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"user_id":      userID,
			"status":       models.StatusCompleted,
			"completed_at": bson.M{"$gte": since.UTC()},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":           bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$completed_at"}},
			"sessions":      bson.M{"$sum": 1},
			"confidence":    bson.M{"$avg": "$scores.confidence"},
			"clarity":       bson.M{"$avg": "$scores.clarity"},
			"empathy":       bson.M{"$avg": "$scores.empathy"},
			"communication": bson.M{"$avg": "$scores.communication"},
			"overall":       bson.M{"$avg": "$scores.overall"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []trendRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]models.TrendPoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.TrendPoint{Date: row.Day, Sessions: row.Sessions, Scores: row.scores()})
	}
	return out, nil
}
