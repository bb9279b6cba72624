package doctors

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/medibook/patient-portal/internal/availability"
	"github.com/medibook/patient-portal/internal/upstream"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	mu      sync.Mutex
	records []upstream.DoctorRecord
	err     error
	calls   int
}

func (s *stubLister) ListDoctors(ctx context.Context) ([]upstream.DoctorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.records, s.err
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func sampleRecords() []upstream.DoctorRecord {
	return []upstream.DoctorRecord{
		{ID: "doc1", Name: "Dr. Richard James", Speciality: "General physician", Available: true, Fees: 50,
			SlotsBooked: map[string][]string{"5_3_2025": {"10:00 AM"}}},
		{ID: "doc2", Name: "Dr. Emily Larson", Speciality: "Gynecologist", Available: true, Fees: 60,
			WorkingHoursStart: 8, WorkingHoursEnd: 12},
		{ID: "doc3", Name: "Dr. Sarah Patel", Speciality: "General physician", Available: false},
		{ID: "doc4", Name: "Dr. Christopher Lee", Speciality: "general physician", Available: true},
	}
}

func TestFromRecordDefaultsHoursAndBookedIndex(t *testing.T) {
	recs := sampleRecords()

	d := FromRecord(recs[0], availability.DefaultWorkingHours())
	assert.Equal(t, availability.WorkingHours{StartHour: 10, EndHour: 21}, d.Hours)
	assert.Equal(t, []string{"10:00 AM"}, d.SlotsBooked["5_3_2025"])

	d = FromRecord(recs[1], availability.DefaultWorkingHours())
	assert.Equal(t, availability.WorkingHours{StartHour: 8, EndHour: 12}, d.Hours)
	assert.NotNil(t, d.SlotsBooked)

	inverted := upstream.DoctorRecord{ID: "x", WorkingHoursStart: 20, WorkingHoursEnd: 9}
	assert.Equal(t, availability.DefaultWorkingHours(), FromRecord(inverted, availability.DefaultWorkingHours()).Hours)
}

func TestFilterBySpeciality(t *testing.T) {
	var all []Doctor
	for _, rec := range sampleRecords() {
		all = append(all, FromRecord(rec, availability.DefaultWorkingHours()))
	}

	assert.Len(t, FilterBySpeciality(all, ""), 4)
	gp := FilterBySpeciality(all, "General physician")
	require.Len(t, gp, 3)
	assert.Equal(t, "doc4", gp[2].ID)
	assert.Empty(t, FilterBySpeciality(all, "Neurologist"))
}

func TestRelated(t *testing.T) {
	var all []Doctor
	for _, rec := range sampleRecords() {
		all = append(all, FromRecord(rec, availability.DefaultWorkingHours()))
	}

	related := Related(all, "doc1")
	require.Len(t, related, 1)
	assert.Equal(t, "doc4", related[0].ID, "unavailable doctors and the doctor itself are excluded")
	assert.Empty(t, Related(all, "doc2"))
	assert.Nil(t, Related(all, "missing"))
}

func TestDirectoryCachesList(t *testing.T) {
	client, mr := setupTestRedis(t)
	src := &stubLister{records: sampleRecords()}
	dir := NewDirectory(src, client, time.Minute, nil)
	ctx := context.Background()

	first, err := dir.List(ctx)
	require.NoError(t, err)
	second, err := dir.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists(listCacheKey))
	assert.Equal(t, time.Minute, mr.TTL(listCacheKey))

	doc, err := dir.Get(ctx, "doc2")
	require.NoError(t, err)
	assert.Equal(t, 8, doc.Hours.StartHour)
	assert.Equal(t, 1, src.calls)
}

func TestDirectoryInvalidate(t *testing.T) {
	client, mr := setupTestRedis(t)
	src := &stubLister{records: sampleRecords()}
	dir := NewDirectory(src, client, time.Minute, nil)
	ctx := context.Background()

	_, err := dir.List(ctx)
	require.NoError(t, err)
	require.NoError(t, dir.Invalidate(ctx))
	assert.False(t, mr.Exists(listCacheKey))

	_, err = dir.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestDirectoryCacheExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	src := &stubLister{records: sampleRecords()}
	dir := NewDirectory(src, client, time.Minute, nil)
	ctx := context.Background()

	_, err := dir.List(ctx)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = dir.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestDirectoryWithoutRedis(t *testing.T) {
	src := &stubLister{records: sampleRecords()}
	dir := NewDirectory(src, nil, time.Minute, nil)
	ctx := context.Background()

	_, err := dir.List(ctx)
	require.NoError(t, err)
	_, err = dir.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	assert.NoError(t, dir.Invalidate(ctx))
}

func TestDirectoryCorruptCacheFallsThrough(t *testing.T) {
	client, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(listCacheKey, "{not json"))
	src := &stubLister{records: sampleRecords()}
	dir := NewDirectory(src, client, time.Minute, nil)

	all, err := dir.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, 1, src.calls)
}

func TestDirectoryErrors(t *testing.T) {
	upstreamErr := errors.New("connection refused")
	dir := NewDirectory(&stubLister{err: upstreamErr}, nil, 0, nil)
	_, err := dir.List(context.Background())
	assert.ErrorIs(t, err, upstreamErr)

	dir = NewDirectory(&stubLister{records: sampleRecords()}, nil, 0, nil)
	_, err = dir.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectoryWorkingHoursOverride(t *testing.T) {
	dir := NewDirectory(&stubLister{records: sampleRecords()}, nil, 0, nil).
		WithWorkingHours(availability.WorkingHours{StartHour: 9, EndHour: 17})
	assert.Equal(t, 9, dir.WorkingHours().StartHour)

	doc, err := dir.Get(context.Background(), "doc1")
	require.NoError(t, err)
	assert.Equal(t, availability.WorkingHours{StartHour: 9, EndHour: 17}, doc.Hours)

	dir.WithWorkingHours(availability.WorkingHours{StartHour: 12, EndHour: 12})
	assert.Equal(t, 9, dir.WorkingHours().StartHour, "invalid override ignored")
}
