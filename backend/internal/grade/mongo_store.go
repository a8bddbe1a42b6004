package grade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"shs_lms/backend/internal/grading"
	"shs_lms/backend/internal/shared"
)

// MongoStore implements Store over the grading collections
type MongoStore struct {
	db                 *mongo.Database
	quarterGradesCol   *mongo.Collection
	quarterlyGradesCol *mongo.Collection
	stagedCol          *mongo.Collection
	postedCol          *mongo.Collection
}

// NewMongoStore creates a new MongoStore instance
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:                 db,
		quarterGradesCol:   db.Collection(shared.CollectionQuarterGrades),
		quarterlyGradesCol: db.Collection(shared.CollectionQuarterlyGrades),
		stagedCol:          db.Collection(shared.CollectionStagedBatches),
		postedCol:          db.Collection(shared.CollectionPostedGrades),
	}
}

// EnsureIndexes creates the lookup, uniqueness and TTL indexes
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.quarterGradesCol: {
			{Keys: bson.D{{Key: "academic_year", Value: 1}, {Key: "quarter", Value: 1}, {Key: "class_id", Value: 1}, {Key: "section", Value: 1}}},
		},
		s.quarterlyGradesCol: {
			{Keys: bson.D{{Key: "academic_year", Value: 1}, {Key: "class_id", Value: 1}, {Key: "quarter", Value: 1}}},
		},
		s.stagedCol: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
		s.postedCol: {
			{Keys: bson.D{{Key: "posting_key", Value: 1}, {Key: "sequence", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "class_id", Value: 1}, {Key: "section", Value: 1}, {Key: "student_ids", Value: 1}}},
		},
	}

	for col, models := range indexes {
		if _, err := col.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", col.Name(), err)
		}
	}

	log.Println("INFO: Grading indexes ensured")
	return nil
}

func (s *MongoStore) SaveQuarterGrades(ctx context.Context, records []shared.QuarterGradeRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": r.ID}).
			SetReplacement(r).
			SetUpsert(true))
	}
	_, err := s.quarterGradesCol.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

func (s *MongoStore) ListQuarterGrades(ctx context.Context, key shared.SectionKey) ([]shared.QuarterGradeRecord, error) {
	filter := bson.M{
		"academic_year": key.Period.AcademicYear,
		"quarter":       key.Period.Quarter,
		"class_id":      key.ClassID,
		"section":       key.Section,
	}
	return shared.FindAll[shared.QuarterGradeRecord](ctx, s.quarterGradesCol, filter, shared.BuildFindOptions(0, "student_name", 1))
}

func (s *MongoStore) SaveQuarterlyGrades(ctx context.Context, grades []shared.QuarterlyGrade) error {
	if len(grades) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(grades))
	for _, g := range grades {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": g.ID}).
			SetReplacement(g).
			SetUpsert(true))
	}
	_, err := s.quarterlyGradesCol.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

func (s *MongoStore) GetQuarterlyGrade(ctx context.Context, id string) (*shared.QuarterlyGrade, error) {
	var g shared.QuarterlyGrade
	if err := s.quarterlyGradesCol.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *MongoStore) ListQuarterlyGrades(ctx context.Context, academicYear, classID string, quarter grading.Quarter) ([]shared.QuarterlyGrade, error) {
	filter := bson.M{"academic_year": academicYear, "class_id": classID, "quarter": quarter}
	return shared.FindAll[shared.QuarterlyGrade](ctx, s.quarterlyGradesCol, filter)
}

func (s *MongoStore) PutStagedBatch(ctx context.Context, batch shared.StagedBatch) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.stagedCol.ReplaceOne(ctx, bson.M{"_id": batch.ID}, batch, opts)
	return err
}

func (s *MongoStore) GetStagedBatch(ctx context.Context, id string) (*shared.StagedBatch, error) {
	var b shared.StagedBatch
	if err := s.stagedCol.FindOne(ctx, bson.M{"_id": id}).Decode(&b); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *MongoStore) DeleteStagedBatch(ctx context.Context, id string) error {
	res, err := s.stagedCol.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) InsertPostedGrades(ctx context.Context, record shared.PostedGradeRecord) error {
	if _, err := s.postedCol.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("posted grade record %s: %w", record.ID, ErrConflict)
		}
		return err
	}
	return nil
}

func (s *MongoStore) ListPostedGrades(ctx context.Context, postingKey string) ([]shared.PostedGradeRecord, error) {
	return shared.FindAll[shared.PostedGradeRecord](ctx, s.postedCol,
		bson.M{"posting_key": postingKey},
		shared.BuildFindOptions(0, "sequence", 1))
}

func (s *MongoStore) FindPostedGradesForStudent(ctx context.Context, studentID, classID, section string) ([]shared.PostedGradeRecord, error) {
	filter := bson.M{
		"class_id":    classID,
		"section":     section,
		"student_ids": studentID,
	}
	return shared.FindAll[shared.PostedGradeRecord](ctx, s.postedCol, filter, shared.BuildFindOptions(0, "posted_at", 1))
}

// isNotFound reports whether err is a missing-record error from a store or
// provider
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, mongo.ErrNoDocuments)
}
